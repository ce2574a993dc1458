// Package model defines the campaign engine's domain types: campaigns and
// their lifecycle, raw provider targets, promoted leads, and the events
// published while a run executes.
package model

import "time"

// CampaignStatus is the execution state of a campaign.
type CampaignStatus string

const (
	StatusDraft     CampaignStatus = "draft"
	StatusQueued    CampaignStatus = "queued"
	StatusRunning   CampaignStatus = "running"
	StatusCompleted CampaignStatus = "completed"
	StatusFailed    CampaignStatus = "failed"
	StatusCancelled CampaignStatus = "cancelled"
)

// IsTerminal reports whether the status ends a run. Terminal campaigns can
// only leave via an explicit restart (terminal -> queued).
func (s CampaignStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s CampaignStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusQueued, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CampaignType selects how criteria are interpreted and which providers run.
type CampaignType string

const (
	TypeAreaSearch      CampaignType = "area_search"
	TypeGapAnalysis     CampaignType = "gap_analysis"
	TypeCustomQuery     CampaignType = "custom_query"
	TypeCompanyList     CampaignType = "company_list"
	TypeSimilarBusiness CampaignType = "similar_business"
)

// Valid reports whether t is a known campaign type.
func (t CampaignType) Valid() bool {
	switch t {
	case TypeAreaSearch, TypeGapAnalysis, TypeCustomQuery, TypeCompanyList, TypeSimilarBusiness:
		return true
	}
	return false
}

// Counters holds the run counters surfaced in progress events. All four are
// monotonically non-decreasing while a campaign is running.
type Counters struct {
	TargetsFound      int `json:"targets_found"`
	LeadsCreated      int `json:"leads_created"`
	DuplicatesSkipped int `json:"duplicates_skipped"`
	ErrorsCount       int `json:"errors_count"`
}

// Add returns the element-wise sum of two counter sets.
func (c Counters) Add(d Counters) Counters {
	return Counters{
		TargetsFound:      c.TargetsFound + d.TargetsFound,
		LeadsCreated:      c.LeadsCreated + d.LeadsCreated,
		DuplicatesSkipped: c.DuplicatesSkipped + d.DuplicatesSkipped,
		ErrorsCount:       c.ErrorsCount + d.ErrorsCount,
	}
}

// Campaign is the root aggregate: a user-defined, bounded lead-discovery
// run. The engine owns Status, JobRef, the timestamps, and Counters; the
// CRUD surface that creates campaigns is out of scope here.
type Campaign struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	Name      string         `json:"name"`
	Type      CampaignType   `json:"type"`
	CreatedBy string         `json:"created_by,omitempty"`
	Status    CampaignStatus `json:"status"`
	Criteria  Criteria       `json:"criteria"`

	// JobRef is the opaque queue handle for the active execution job,
	// set when the campaign is queued.
	JobRef string `json:"job_ref,omitempty"`

	QueuedAt    *time.Time `json:"queued_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Counters      Counters `json:"counters"`
	Warnings      []string `json:"warnings,omitempty"`
	FailureReason string   `json:"failure_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transition is one entry in a campaign's append-only transition log.
type Transition struct {
	CampaignID string         `json:"campaign_id"`
	From       CampaignStatus `json:"from"`
	To         CampaignStatus `json:"to"`
	Cause      string         `json:"cause"`
	At         time.Time      `json:"at"`
}

// startableStatuses are the states from which an explicit start (or
// restart) request is accepted. Starting from a terminal state resets
// counters and behaves as a fresh queue.
var startableStatuses = []CampaignStatus{
	StatusDraft, StatusCompleted, StatusFailed, StatusCancelled,
}

// StartableFrom returns the statuses a start request is legal from.
func StartableFrom() []CampaignStatus {
	out := make([]CampaignStatus, len(startableStatuses))
	copy(out, startableStatuses)
	return out
}

// CancellableFrom returns the statuses a cancel request is legal from.
func CancellableFrom() []CampaignStatus {
	return []CampaignStatus{StatusQueued, StatusRunning}
}
