//go:build !integration

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/campaign-engine/internal/engine"
	"github.com/sells-group/campaign-engine/internal/events"
	"github.com/sells-group/campaign-engine/internal/model"
	"github.com/sells-group/campaign-engine/internal/queue"
	"github.com/sells-group/campaign-engine/internal/store"
)

func newTestAPI(t *testing.T) (*api, store.Store) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	hub := events.NewHub(16)
	return &api{
		store:     st,
		lifecycle: engine.NewLifecycle(st, queue.NewMemory(16), hub),
		hub:       hub,
	}, st
}

func seedCampaign(t *testing.T, st store.Store) *model.Campaign {
	t.Helper()
	c := &model.Campaign{
		TenantID: "tenant-1",
		Name:     "API test",
		Type:     model.TypeAreaSearch,
		Criteria: model.Criteria{
			Type: model.TypeAreaSearch,
			Area: &model.AreaCriteria{Latitude: 52.456, Longitude: -1.199, RadiusKm: 10},
		},
	}
	require.NoError(t, st.CreateCampaign(context.Background(), c))
	return c
}

func TestHealthEndpoint(t *testing.T) {
	a, _ := newTestAPI(t)

	rr := httptest.NewRecorder()
	a.router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestStartEndpoint(t *testing.T) {
	a, st := newTestAPI(t)
	c := seedCampaign(t, st)

	rr := httptest.NewRecorder()
	a.router().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/campaigns/"+c.ID+"/start", nil))

	require.Equal(t, http.StatusOK, rr.Code)

	var got model.Campaign
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, model.StatusQueued, got.Status)
	assert.NotEmpty(t, got.JobRef)
}

func TestStartEndpoint_DoubleStartConflicts(t *testing.T) {
	a, st := newTestAPI(t)
	c := seedCampaign(t, st)

	router := a.router()
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/campaigns/"+c.ID+"/start", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/campaigns/"+c.ID+"/start", nil))
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestStartEndpoint_UnknownCampaign(t *testing.T) {
	a, _ := newTestAPI(t)

	rr := httptest.NewRecorder()
	a.router().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/campaigns/nope/start", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "not found")
}

func TestCancelEndpoint(t *testing.T) {
	a, st := newTestAPI(t)
	c := seedCampaign(t, st)

	router := a.router()
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/campaigns/"+c.ID+"/start", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/campaigns/"+c.ID+"/cancel", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var got model.Campaign
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, model.StatusCancelled, got.Status)
}

func TestCancelEndpoint_DraftConflicts(t *testing.T) {
	a, st := newTestAPI(t)
	c := seedCampaign(t, st)

	rr := httptest.NewRecorder()
	a.router().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/campaigns/"+c.ID+"/cancel", nil))

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestRestartEndpoint_SurfacesPreviousFailure(t *testing.T) {
	a, st := newTestAPI(t)
	c := seedCampaign(t, st)
	ctx := context.Background()

	// Walk the campaign into a failed state with a recorded reason.
	_, err := st.TransitionCampaign(ctx, c.ID, model.StartableFrom(), model.StatusQueued, "start")
	require.NoError(t, err)
	_, err = st.TransitionCampaign(ctx, c.ID, []model.CampaignStatus{model.StatusQueued}, model.StatusRunning, "claimed")
	require.NoError(t, err)
	require.NoError(t, st.SetFailureReason(ctx, c.ID, "all providers failed"))
	_, err = st.TransitionCampaign(ctx, c.ID, []model.CampaignStatus{model.StatusRunning}, model.StatusFailed, "run failed")
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	a.router().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/campaigns/"+c.ID+"/restart", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Campaign              model.Campaign `json:"campaign"`
		PreviousStatus        string         `json:"previous_status"`
		PreviousFailureReason string         `json:"previous_failure_reason"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, model.StatusQueued, body.Campaign.Status)
	assert.Equal(t, "failed", body.PreviousStatus)
	assert.Equal(t, "all providers failed", body.PreviousFailureReason)
	assert.Empty(t, body.Campaign.FailureReason)
}

func TestListCampaignsEndpoint_TenantFilter(t *testing.T) {
	a, st := newTestAPI(t)
	seedCampaign(t, st)
	other := seedCampaign(t, st)
	_, err := st.TransitionCampaign(context.Background(), other.ID, model.StartableFrom(), model.StatusQueued, "start")
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	a.router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/campaigns?tenant=tenant-1&status=queued", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var got []model.Campaign
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, other.ID, got[0].ID)
}

func TestTransitionsEndpoint(t *testing.T) {
	a, st := newTestAPI(t)
	c := seedCampaign(t, st)
	_, err := st.TransitionCampaign(context.Background(), c.ID, model.StartableFrom(), model.StatusQueued, "start")
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	a.router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/campaigns/"+c.ID+"/transitions", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var got []model.Transition
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, model.StatusQueued, got[0].To)
}
