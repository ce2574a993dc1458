package model

import "time"

// EventType identifies a campaign lifecycle or progress event.
type EventType string

const (
	EventQueued    EventType = "queued"
	EventStarted   EventType = "started"
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventCancelled EventType = "cancelled"
)

// CampaignEvent is one push-channel message addressed to a tenant's live
// clients. Progress payloads carry the running counters.
type CampaignEvent struct {
	CampaignID string         `json:"campaign_id"`
	TenantID   string         `json:"tenant_id"`
	Type       EventType      `json:"event_type"`
	Payload    map[string]any `json:"payload,omitempty"`
	At         time.Time      `json:"at"`
}

// ProgressEvent builds a progress event carrying the current counters.
func ProgressEvent(c *Campaign, provider string) CampaignEvent {
	return CampaignEvent{
		CampaignID: c.ID,
		TenantID:   c.TenantID,
		Type:       EventProgress,
		Payload: map[string]any{
			"provider":           provider,
			"targets_found":      c.Counters.TargetsFound,
			"leads_created":      c.Counters.LeadsCreated,
			"duplicates_skipped": c.Counters.DuplicatesSkipped,
			"errors_count":       c.Counters.ErrorsCount,
		},
		At: time.Now().UTC(),
	}
}
