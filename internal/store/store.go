// Package store persists campaigns, their transition log, raw targets,
// and promoted leads, and answers the deduplication lookups. Postgres is
// the production backend; SQLite serves development and tests.
package store

import (
	"context"
	"errors"

	"github.com/sells-group/campaign-engine/internal/model"
)

// ErrNotFound is returned when a campaign id does not exist.
var ErrNotFound = errors.New("store: campaign not found")

// ErrInvalidTransition is returned when a conditional status transition
// finds the campaign in a state outside the allowed from-set. Callers use
// it to reject double starts and stale queue deliveries.
var ErrInvalidTransition = errors.New("store: invalid status transition")

// CampaignFilter narrows ListCampaigns.
type CampaignFilter struct {
	TenantID string
	Status   model.CampaignStatus
	Type     model.CampaignType
	Limit    int
	Offset   int
}

// Store is the persistence interface for the campaign engine.
type Store interface {
	// Campaigns
	CreateCampaign(ctx context.Context, c *model.Campaign) error
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, filter CampaignFilter) ([]model.Campaign, error)

	// TransitionCampaign atomically moves a campaign to the target status
	// iff its current status is in from, appends the transition log entry,
	// and returns the updated campaign. A campaign outside the from-set
	// returns ErrInvalidTransition.
	TransitionCampaign(ctx context.Context, id string, from []model.CampaignStatus, to model.CampaignStatus, cause string) (*model.Campaign, error)

	// GetStatus reads just the persisted status; the pipeline polls this
	// at cancellation checkpoints.
	GetStatus(ctx context.Context, id string) (model.CampaignStatus, error)

	ListTransitions(ctx context.Context, campaignID string) ([]model.Transition, error)

	// Run state
	SetJobRef(ctx context.Context, id, jobRef string) error
	ResetRunState(ctx context.Context, id string) error
	UpdateCounters(ctx context.Context, id string, delta model.Counters) (model.Counters, error)
	AddWarning(ctx context.Context, id, warning string) error
	SetFailureReason(ctx context.Context, id, reason string) error

	// Targets and leads
	InsertTargets(ctx context.Context, targets []model.Target) (int64, error)
	MarkTargetDisposition(ctx context.Context, targetID string, d model.TargetDisposition, matchedEntityID string) error
	ListTargets(ctx context.Context, campaignID string) ([]model.Target, error)
	InsertLeads(ctx context.Context, leads []model.Lead) error
	ListLeads(ctx context.Context, campaignID string) ([]model.Lead, error)

	// Deduplication lookups over customers and prior leads; see
	// dedup.Lookup.
	FindByRegistration(ctx context.Context, tenantID, registration string) (string, bool, error)
	FindByNormalizedName(ctx context.Context, tenantID, normalizedName, outwardCode string) (string, bool, error)

	// Claims guard against concurrent execution of the same campaign.
	AcquireClaim(ctx context.Context, campaignID, owner string) (bool, error)
	ReleaseClaim(ctx context.Context, campaignID, owner string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
