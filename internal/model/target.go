package model

import (
	"encoding/json"
	"time"
)

// TargetDisposition records what the pipeline decided about a target.
type TargetDisposition string

const (
	TargetPending           TargetDisposition = "pending"
	TargetPromoted          TargetDisposition = "promoted"
	TargetDiscardedDup      TargetDisposition = "discarded_duplicate"
	TargetDiscardedExcluded TargetDisposition = "discarded_excluded"
)

// Target is a raw candidate business as returned by a single provider,
// before deduplication. Targets are written once and never mutated apart
// from their disposition; RawPayload keeps the provider's response for
// audit and debugging.
type Target struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaign_id"`
	TenantID   string `json:"tenant_id"`
	Provider   string `json:"provider"`

	Name               string  `json:"name"`
	Address            string  `json:"address,omitempty"`
	Postcode           string  `json:"postcode,omitempty"`
	RegistrationNumber string  `json:"registration_number,omitempty"`
	Website            string  `json:"website,omitempty"`
	Phone              string  `json:"phone,omitempty"`
	Rating             float64 `json:"rating,omitempty"`
	ReviewCount        int     `json:"review_count,omitempty"`

	RawPayload json.RawMessage `json:"raw_payload,omitempty"`

	Disposition     TargetDisposition `json:"disposition"`
	MatchedEntityID string            `json:"matched_entity_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
