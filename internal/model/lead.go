package model

import "time"

// LeadStatus is the CRM progression state of a lead. The engine only ever
// writes discovery; later stages belong to downstream CRM workflows.
type LeadStatus string

const (
	LeadStatusDiscovery LeadStatus = "discovery"
	LeadStatusLead      LeadStatus = "lead"
	LeadStatusProspect  LeadStatus = "prospect"
)

// FieldProvenance records which provider supplied one merged lead field.
type FieldProvenance struct {
	Provider   string    `json:"provider"`
	TargetID   string    `json:"target_id"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Lead is a deduplicated business record promoted from one or more
// targets. It is owned by the tenant and outlives the campaign that
// created it. ConversionProbability is a placeholder filled by a
// downstream analysis step.
type Lead struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	CampaignID string `json:"campaign_id"`

	Name               string  `json:"name"`
	RegistrationNumber string  `json:"registration_number,omitempty"`
	Address            string  `json:"address,omitempty"`
	Postcode           string  `json:"postcode,omitempty"`
	Website            string  `json:"website,omitempty"`
	Phone              string  `json:"phone,omitempty"`
	Rating             float64 `json:"rating,omitempty"`
	ReviewCount        int     `json:"review_count,omitempty"`

	Status                LeadStatus `json:"status"`
	ConversionProbability *float64   `json:"conversion_probability,omitempty"`

	// Provenance maps merged field names to the provider that supplied
	// them, e.g. "phone" -> {provider: places, ...}.
	Provenance map[string]FieldProvenance `json:"provenance,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
