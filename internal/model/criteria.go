package model

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Criteria is the campaign's structured search specification. It is a
// closed tagged variant: exactly one payload pointer is set, matching the
// campaign type. MaxResults caps unique leads for every variant (0 means
// no cap).
type Criteria struct {
	Type       CampaignType `json:"type"`
	MaxResults int          `json:"max_results,omitempty"`

	Area        *AreaCriteria        `json:"area,omitempty"`
	Query       *QueryCriteria       `json:"query,omitempty"`
	Gap         *GapCriteria         `json:"gap,omitempty"`
	CompanyList *CompanyListCriteria `json:"company_list,omitempty"`
	Similar     *SimilarCriteria     `json:"similar,omitempty"`
}

// AreaCriteria searches businesses around a geographic point.
type AreaCriteria struct {
	Postcode  string  `json:"postcode,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	RadiusKm  float64 `json:"radius_km"`
	Industry  string  `json:"industry,omitempty"`
}

// QueryCriteria drives a free-text AI discovery search.
type QueryCriteria struct {
	Prompt   string `json:"prompt"`
	Industry string `json:"industry,omitempty"`
}

// GapCriteria finds businesses in an area not already served, excluding
// named competitors.
type GapCriteria struct {
	Postcode        string   `json:"postcode,omitempty"`
	Latitude        float64  `json:"latitude"`
	Longitude       float64  `json:"longitude"`
	RadiusKm        float64  `json:"radius_km"`
	Industry        string   `json:"industry,omitempty"`
	CompetitorNames []string `json:"competitor_names,omitempty"`
}

// CompanyListCriteria enriches an explicit list of company names, supplied
// inline or as an .xlsx file path.
type CompanyListCriteria struct {
	Names    []string `json:"names,omitempty"`
	FilePath string   `json:"file_path,omitempty"`
}

// SimilarCriteria looks up businesses similar to a seed company.
type SimilarCriteria struct {
	SeedCompanyName string `json:"seed_company_name"`
	SeedWebsite     string `json:"seed_website,omitempty"`
}

// criteriaPayloads maps each campaign type to a check that its payload is
// present. Adding a campaign type means adding exactly one row here.
var criteriaPayloads = map[CampaignType]func(c Criteria) bool{
	TypeAreaSearch:      func(c Criteria) bool { return c.Area != nil },
	TypeGapAnalysis:     func(c Criteria) bool { return c.Gap != nil },
	TypeCustomQuery:     func(c Criteria) bool { return c.Query != nil },
	TypeCompanyList:     func(c Criteria) bool { return c.CompanyList != nil },
	TypeSimilarBusiness: func(c Criteria) bool { return c.Similar != nil },
}

// Validate checks the variant is well-formed: known type, matching payload
// present, and no foreign payloads set.
func (c Criteria) Validate() error {
	check, ok := criteriaPayloads[c.Type]
	if !ok {
		return eris.Errorf("criteria: unknown campaign type %q", c.Type)
	}
	if !check(c) {
		return eris.Errorf("criteria: missing payload for type %q", c.Type)
	}

	set := 0
	for _, present := range []bool{
		c.Area != nil, c.Query != nil, c.Gap != nil, c.CompanyList != nil, c.Similar != nil,
	} {
		if present {
			set++
		}
	}
	if set != 1 {
		return eris.Errorf("criteria: expected exactly one payload, got %d", set)
	}

	if c.MaxResults < 0 {
		return eris.New("criteria: max_results must not be negative")
	}

	return nil
}

// MarshalCriteria serializes criteria for the campaign row.
func MarshalCriteria(c Criteria) ([]byte, error) {
	data, err := json.Marshal(c)
	return data, eris.Wrap(err, "criteria: marshal")
}

// UnmarshalCriteria deserializes criteria from the campaign row.
func UnmarshalCriteria(data []byte) (Criteria, error) {
	var c Criteria
	if len(data) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, eris.Wrap(err, "criteria: unmarshal")
	}
	return c, nil
}
