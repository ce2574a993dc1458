package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/campaign-engine/internal/dedup"
	"github.com/sells-group/campaign-engine/internal/events"
	"github.com/sells-group/campaign-engine/internal/model"
	"github.com/sells-group/campaign-engine/internal/provider"
	"github.com/sells-group/campaign-engine/internal/queue"
	"github.com/sells-group/campaign-engine/internal/store"
)

// fakeProvider runs a test-supplied search function under a real provider
// name so the registry dispatches to it.
type fakeProvider struct {
	name string
	fn   func(ctx context.Context, in provider.SearchInput) ([]model.Target, error)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Search(ctx context.Context, in provider.SearchInput) ([]model.Target, error) {
	return f.fn(ctx, in)
}

// staticProvider returns fixed targets.
func staticProvider(name string, targets []model.Target) *fakeProvider {
	return &fakeProvider{name: name, fn: func(context.Context, provider.SearchInput) ([]model.Target, error) {
		return targets, nil
	}}
}

// failingProvider always returns err.
func failingProvider(name string, err error) *fakeProvider {
	return &fakeProvider{name: name, fn: func(context.Context, provider.SearchInput) ([]model.Target, error) {
		return nil, err
	}}
}

// harness wires a real SQLite store and in-memory queue to the engine.
type harness struct {
	store     *store.SQLiteStore
	queue     *queue.Memory
	hub       *events.Hub
	lifecycle *Lifecycle
	pool      *Pool
}

func newHarness(t *testing.T, providers ...provider.Provider) *harness {
	t.Helper()

	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	q := queue.NewMemory(16)
	hub := events.NewHub(64)
	pipeline := NewPipeline(s, provider.NewStaticSource(providers...), dedup.NewService(s), hub)

	return &harness{
		store:     s,
		queue:     q,
		hub:       hub,
		lifecycle: NewLifecycle(s, q, hub),
		pool:      NewPool(s, q, pipeline, hub, 1, 5*time.Second),
	}
}

// createCampaign persists a draft campaign with the given criteria.
func (h *harness) createCampaign(t *testing.T, typ model.CampaignType, criteria model.Criteria) *model.Campaign {
	t.Helper()
	c := &model.Campaign{
		TenantID: "tenant-1",
		Name:     "test campaign",
		Type:     typ,
		Criteria: criteria,
	}
	require.NoError(t, h.store.CreateCampaign(context.Background(), c))
	return c
}

// runUntilTerminal runs the pool until the campaign reaches a terminal
// status, then stops it.
func (h *harness) runUntilTerminal(t *testing.T, id string) *model.Campaign {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.pool.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(10 * time.Second)
	for {
		c, err := h.store.GetCampaign(context.Background(), id)
		require.NoError(t, err)
		if c.Status.IsTerminal() {
			cancel()
			<-done
			return c
		}
		if time.Now().After(deadline) {
			cancel()
			<-done
			t.Fatalf("campaign %s never reached a terminal status, last %s", id, c.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func areaCriteria() model.Criteria {
	return model.Criteria{
		Type: model.TypeAreaSearch,
		Area: &model.AreaCriteria{
			Postcode: "LE17 5NJ", Latitude: 52.456, Longitude: -1.199,
			RadiusKm: 10, Industry: "plumbing",
		},
	}
}

func queryCriteria(maxResults int) model.Criteria {
	return model.Criteria{
		Type:       model.TypeCustomQuery,
		MaxResults: maxResults,
		Query:      &model.QueryCriteria{Prompt: "family-run plumbers in Leicestershire"},
	}
}

// makeTargets builds n distinct targets attributed to a provider.
func makeTargets(providerName, prefix string, n int) []model.Target {
	out := make([]model.Target, n)
	for i := range out {
		out[i] = model.Target{
			Provider: providerName,
			Name:     fmt.Sprintf("%s %d Ltd", prefix, i+1),
			Postcode: "LE17 4AT",
			Address:  fmt.Sprintf("%d High Street, Lutterworth", i+1),
		}
	}
	return out
}
