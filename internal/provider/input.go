package provider

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/campaign-engine/internal/model"
)

// Kilometers per degree of latitude; longitude shrinks with cos(lat).
const kmPerDegreeLat = 110.574

// inputBuilders maps each campaign type to its SearchInput construction.
// Exhaustive by construction: a new campaign type fails loudly in
// BuildInput until a row is added here.
var inputBuilders = map[model.CampaignType]func(c model.Criteria) (SearchInput, error){
	model.TypeAreaSearch:      buildAreaInput,
	model.TypeGapAnalysis:     buildGapInput,
	model.TypeCustomQuery:     buildQueryInput,
	model.TypeCompanyList:     buildCompanyListInput,
	model.TypeSimilarBusiness: buildSimilarInput,
}

// BuildInput turns validated campaign criteria into the provider search
// input.
func BuildInput(c model.Criteria) (SearchInput, error) {
	build, ok := inputBuilders[c.Type]
	if !ok {
		return SearchInput{}, eris.Errorf("provider: no input builder for campaign type %q", c.Type)
	}

	in, err := build(c)
	if err != nil {
		return SearchInput{}, err
	}
	in.Type = c.Type
	in.MaxResults = c.MaxResults
	return in, nil
}

func buildAreaInput(c model.Criteria) (SearchInput, error) {
	a := c.Area
	if a.RadiusKm <= 0 {
		return SearchInput{}, eris.New("provider: area search requires a positive radius")
	}
	return SearchInput{
		Industry:  a.Industry,
		Latitude:  a.Latitude,
		Longitude: a.Longitude,
		RadiusKm:  a.RadiusKm,
		Postcode:  a.Postcode,
		Envelope:  searchEnvelope(a.Latitude, a.Longitude, a.RadiusKm),
	}, nil
}

func buildGapInput(c model.Criteria) (SearchInput, error) {
	g := c.Gap
	if g.RadiusKm <= 0 {
		return SearchInput{}, eris.New("provider: gap analysis requires a positive radius")
	}
	return SearchInput{
		Industry:     g.Industry,
		Latitude:     g.Latitude,
		Longitude:    g.Longitude,
		RadiusKm:     g.RadiusKm,
		Postcode:     g.Postcode,
		Envelope:     searchEnvelope(g.Latitude, g.Longitude, g.RadiusKm),
		ExcludeNames: g.CompetitorNames,
	}, nil
}

func buildQueryInput(c model.Criteria) (SearchInput, error) {
	q := c.Query
	if strings.TrimSpace(q.Prompt) == "" {
		return SearchInput{}, eris.New("provider: custom query requires a prompt")
	}
	return SearchInput{
		Prompt:   q.Prompt,
		Industry: q.Industry,
	}, nil
}

func buildCompanyListInput(c model.Criteria) (SearchInput, error) {
	cl := c.CompanyList
	names := make([]string, 0, len(cl.Names))
	for _, n := range cl.Names {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}

	if cl.FilePath != "" {
		fromFile, err := readCompanyList(cl.FilePath)
		if err != nil {
			return SearchInput{}, err
		}
		names = append(names, fromFile...)
	}

	if len(names) == 0 {
		return SearchInput{}, eris.New("provider: company list is empty")
	}
	return SearchInput{CompanyNames: names}, nil
}

func buildSimilarInput(c model.Criteria) (SearchInput, error) {
	s := c.Similar
	if strings.TrimSpace(s.SeedCompanyName) == "" {
		return SearchInput{}, eris.New("provider: similar search requires a seed company name")
	}
	return SearchInput{
		SeedCompanyName: s.SeedCompanyName,
		SeedWebsite:     s.SeedWebsite,
	}, nil
}

// searchEnvelope computes the bounding box around a circle of radiusKm
// centered at (lat, lon).
func searchEnvelope(lat, lon, radiusKm float64) *geom.Bounds {
	dLat := radiusKm / kmPerDegreeLat
	dLon := radiusKm / (kmPerDegreeLat * math.Cos(lat*math.Pi/180))
	return geom.NewBounds(geom.XY).Set(lon-dLon, lat-dLat, lon+dLon, lat+dLat)
}

// readCompanyList reads company names from the first column of the first
// sheet of an .xlsx file. A header row containing "name" or "company" is
// skipped; blank cells are ignored.
func readCompanyList(path string) ([]string, error) {
	file, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "provider: open company list %s", path)
	}
	if len(file.Sheets) == 0 {
		return nil, eris.Errorf("provider: company list %s has no sheets", path)
	}

	var names []string
	for i, row := range file.Sheets[0].Rows {
		if len(row.Cells) == 0 {
			continue
		}
		name := strings.TrimSpace(row.Cells[0].String())
		if name == "" {
			continue
		}
		if i == 0 {
			lower := strings.ToLower(name)
			if lower == "name" || lower == "company" || lower == "company name" {
				continue
			}
		}
		names = append(names, name)
	}
	return names, nil
}
