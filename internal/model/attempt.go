package model

import "time"

// AttemptOutcome classifies how a provider call ended.
type AttemptOutcome string

const (
	AttemptSuccess     AttemptOutcome = "success"
	AttemptTimeout     AttemptOutcome = "timeout"
	AttemptError       AttemptOutcome = "error"
	AttemptRateLimited AttemptOutcome = "rate_limited"
	AttemptSkipped     AttemptOutcome = "skipped"
)

// EnrichmentAttempt records one provider call within a campaign run. It
// feeds the partial-success decision and the run summary; attempts are
// logged, not persisted as rows.
type EnrichmentAttempt struct {
	Provider    string         `json:"provider"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	Outcome     AttemptOutcome `json:"outcome"`
	Items       int            `json:"items"`
	Err         string         `json:"error,omitempty"`
}

// Succeeded reports whether the attempt counts toward partial success.
// A skipped provider (result cap already met) is not a failure.
func (a EnrichmentAttempt) Succeeded() bool {
	return a.Outcome == AttemptSuccess
}
