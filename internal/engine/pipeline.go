package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/campaign-engine/internal/dedup"
	"github.com/sells-group/campaign-engine/internal/events"
	"github.com/sells-group/campaign-engine/internal/model"
	"github.com/sells-group/campaign-engine/internal/provider"
	"github.com/sells-group/campaign-engine/internal/store"
)

// errCancelled aborts a run when a checkpoint observes the persisted
// status flipped to cancelled. The worker acks the job without a further
// transition.
var errCancelled = errors.New("engine: campaign cancelled")

// Pipeline runs one campaign's enrichment: resolve the tenant's providers,
// build the search input, fan out to the campaign type's providers,
// persist and deduplicate targets as each provider returns, then merge
// survivors into leads.
type Pipeline struct {
	store     store.Store
	providers provider.Source
	dedup     *dedup.Service
	events    events.Publisher
}

// NewPipeline creates a pipeline over the given store and provider source.
func NewPipeline(s store.Store, providers provider.Source, dd *dedup.Service, pub events.Publisher) *Pipeline {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Pipeline{store: s, providers: providers, dedup: dd, events: pub}
}

// attempt is one provider's completed search.
type attempt struct {
	name    string
	targets []model.Target
	err     error
	elapsed time.Duration
}

// Run executes the campaign to completion or failure. A nil return means
// the partial-success policy held: at least one provider delivered.
// Provider failures become warnings; a store failure, an unusable
// criteria, or every provider failing is run-fatal.
func (p *Pipeline) Run(ctx context.Context, c *model.Campaign) error {
	in, err := provider.BuildInput(c.Criteria)
	if err != nil {
		return eris.Wrap(err, "engine: build search input")
	}

	// Credentials resolve per run, so tenant overrides apply without a
	// restart.
	registry, err := p.providers.ForTenant(c.TenantID)
	if err != nil {
		return eris.Wrap(err, "engine: resolve providers")
	}
	providers := registry.ForType(c.Type)
	if len(providers) == 0 {
		return eris.Errorf("engine: no providers configured for campaign type %q", c.Type)
	}

	results := make(chan attempt, len(providers))
	g, gctx := errgroup.WithContext(ctx)
	for _, prov := range providers {
		g.Go(func() error {
			started := time.Now()
			targets, serr := prov.Search(gctx, in)
			results <- attempt{name: prov.Name(), targets: targets, err: serr, elapsed: time.Since(started)}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	excluded := excludeSet(in.ExcludeNames)

	var succeeded, failed int
	var kept []model.Target
	for att := range results {
		// Cancellation checkpoint: the persisted status is authoritative.
		status, err := p.store.GetStatus(ctx, c.ID)
		if err != nil {
			return eris.Wrap(err, "engine: read campaign status")
		}
		if status == model.StatusCancelled {
			return errCancelled
		}

		if att.err != nil {
			failed++
			zap.L().Warn("provider search failed",
				zap.String("campaign_id", c.ID),
				zap.String("provider", att.name),
				zap.Duration("elapsed", att.elapsed),
				zap.Error(att.err),
			)
			if err := p.store.AddWarning(ctx, c.ID, att.err.Error()); err != nil {
				return eris.Wrap(err, "engine: record warning")
			}
			if err := p.progress(ctx, c, att.name, model.Counters{ErrorsCount: 1}); err != nil {
				return err
			}
			continue
		}

		succeeded++
		zap.L().Info("provider search returned",
			zap.String("campaign_id", c.ID),
			zap.String("provider", att.name),
			zap.Int("targets", len(att.targets)),
			zap.Duration("elapsed", att.elapsed),
		)
		if len(att.targets) == 0 {
			continue
		}

		for i := range att.targets {
			att.targets[i].CampaignID = c.ID
			att.targets[i].TenantID = c.TenantID
		}
		if _, err := p.store.InsertTargets(ctx, att.targets); err != nil {
			return eris.Wrap(err, "engine: persist targets")
		}

		delta := model.Counters{TargetsFound: len(att.targets)}
		for i := range att.targets {
			t := &att.targets[i]
			if excluded[dedup.NormalizeName(t.Name)] {
				if err := p.store.MarkTargetDisposition(ctx, t.ID, model.TargetDiscardedExcluded, ""); err != nil {
					return eris.Wrap(err, "engine: mark excluded target")
				}
				continue
			}

			verdict, err := p.dedup.IsDuplicate(ctx, *t, c.TenantID)
			if err != nil {
				return eris.Wrap(err, "engine: duplicate check")
			}
			if verdict.Duplicate {
				delta.DuplicatesSkipped++
				if err := p.store.MarkTargetDisposition(ctx, t.ID, model.TargetDiscardedDup, verdict.MatchedEntityID); err != nil {
					return eris.Wrap(err, "engine: mark duplicate target")
				}
				continue
			}
			kept = append(kept, *t)
		}

		if err := p.progress(ctx, c, att.name, delta); err != nil {
			return err
		}
	}

	if succeeded == 0 {
		return eris.Errorf("engine: all %d providers failed", failed)
	}

	return p.promote(ctx, c, kept, in.MaxResults)
}

// promote merges surviving targets into leads, enforces the result cap,
// and persists them.
func (p *Pipeline) promote(ctx context.Context, c *model.Campaign, targets []model.Target, maxResults int) error {
	leads, contributors := mergeTargets(c, targets)

	if maxResults > 0 && len(leads) > maxResults {
		dropped := len(leads) - maxResults
		leads = leads[:maxResults]
		warning := fmt.Sprintf("result cap %d reached, %d candidates not promoted", maxResults, dropped)
		if err := p.store.AddWarning(ctx, c.ID, warning); err != nil {
			return eris.Wrap(err, "engine: record cap warning")
		}
	}

	if len(leads) == 0 {
		return nil
	}

	if err := p.store.InsertLeads(ctx, leads); err != nil {
		return eris.Wrap(err, "engine: persist leads")
	}
	for i := range leads {
		for _, targetID := range contributors[i] {
			if err := p.store.MarkTargetDisposition(ctx, targetID, model.TargetPromoted, leads[i].ID); err != nil {
				return eris.Wrap(err, "engine: mark promoted target")
			}
		}
	}

	return p.progress(ctx, c, "", model.Counters{LeadsCreated: len(leads)})
}

// progress applies a counter delta and emits a progress event carrying
// the new totals.
func (p *Pipeline) progress(ctx context.Context, c *model.Campaign, providerName string, delta model.Counters) error {
	totals, err := p.store.UpdateCounters(ctx, c.ID, delta)
	if err != nil {
		return eris.Wrap(err, "engine: update counters")
	}
	c.Counters = totals
	p.events.Publish(ctx, model.ProgressEvent(c, providerName))
	return nil
}

// mergeTargets groups targets by business fingerprint and merges each
// group into one lead. The first provider to supply a field wins; later
// providers fill gaps. Returns the leads in first-seen order plus, per
// lead, the ids of the targets that contributed to it.
func mergeTargets(c *model.Campaign, targets []model.Target) ([]model.Lead, [][]string) {
	index := make(map[string]int)
	var leads []model.Lead
	var contributors [][]string

	for _, t := range targets {
		fp := dedup.Fingerprint(t.Name, t.Postcode)
		i, ok := index[fp]
		if !ok {
			i = len(leads)
			index[fp] = i
			leads = append(leads, model.Lead{
				TenantID:   c.TenantID,
				CampaignID: c.ID,
				Name:       t.Name,
				Status:     model.LeadStatusDiscovery,
				Provenance: make(map[string]model.FieldProvenance),
			})
			contributors = append(contributors, nil)
		}
		mergeField(&leads[i], t)
		contributors[i] = append(contributors[i], t.ID)
	}

	return leads, contributors
}

// mergeField copies t's non-empty fields into empty slots of the lead,
// recording provenance per field.
func mergeField(l *model.Lead, t model.Target) {
	record := func(field string) {
		if _, seen := l.Provenance[field]; !seen {
			l.Provenance[field] = model.FieldProvenance{
				Provider:   t.Provider,
				TargetID:   t.ID,
				RecordedAt: time.Now().UTC(),
			}
		}
	}

	record("name")
	if l.RegistrationNumber == "" && t.RegistrationNumber != "" {
		l.RegistrationNumber = t.RegistrationNumber
		record("registration_number")
	}
	if l.Address == "" && t.Address != "" {
		l.Address = t.Address
		record("address")
	}
	if l.Postcode == "" && t.Postcode != "" {
		l.Postcode = t.Postcode
		record("postcode")
	}
	if l.Website == "" && t.Website != "" {
		l.Website = t.Website
		record("website")
	}
	if l.Phone == "" && t.Phone != "" {
		l.Phone = t.Phone
		record("phone")
	}
	if l.Rating == 0 && t.Rating > 0 {
		l.Rating = t.Rating
		l.ReviewCount = t.ReviewCount
		record("rating")
	}
}

// excludeSet builds the normalized competitor-name set for gap analysis.
func excludeSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		if norm := dedup.NormalizeName(n); norm != "" {
			out[norm] = true
		}
	}
	return out
}
