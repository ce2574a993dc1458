package provider

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/campaign-engine/internal/config"
	"github.com/sells-group/campaign-engine/internal/model"
	"github.com/sells-group/campaign-engine/internal/resilience"
	"github.com/sells-group/campaign-engine/pkg/places"
)

type mockPlacesClient struct {
	mock.Mock
}

func (m *mockPlacesClient) SearchNearby(ctx context.Context, req places.SearchNearbyRequest) (*places.SearchResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*places.SearchResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPlacesClient) SearchText(ctx context.Context, req places.SearchTextRequest) (*places.SearchResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*places.SearchResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

var _ places.Client = (*mockPlacesClient)(nil)

func placesTestConfig() config.PlacesConfig {
	return config.PlacesConfig{
		TimeoutSecs:   5,
		RatePerSec:    1000,
		MaxPageSize:   20,
		RetryMaxTries: 1,
	}
}

func TestPlaces_AreaSearchWithIndustryUsesTextSearch(t *testing.T) {
	client := &mockPlacesClient{}
	client.On("SearchText", mock.Anything, mock.MatchedBy(func(req places.SearchTextRequest) bool {
		return req.TextQuery == "plumbing near LE17 5NJ" && req.LocationBias != nil
	})).Return(&places.SearchResponse{Places: []places.Place{
		{
			ID:               "p1",
			DisplayName:      places.DisplayName{Text: "Lutterworth Plumbing"},
			FormattedAddress: "5 High St, Lutterworth LE17 4AT, UK",
			Location:         places.LatLng{Latitude: 52.46, Longitude: -1.2},
		},
	}}, nil)

	in, err := BuildInput(model.Criteria{
		Type: model.TypeAreaSearch,
		Area: &model.AreaCriteria{
			Postcode: "LE17 5NJ", Latitude: 52.456, Longitude: -1.199,
			RadiusKm: 10, Industry: "plumbing",
		},
	})
	require.NoError(t, err)

	p := NewPlaces(client, placesTestConfig())
	targets, err := p.Search(context.Background(), in)

	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, NamePlaces, targets[0].Provider)
	assert.Equal(t, "Lutterworth Plumbing", targets[0].Name)
	assert.Equal(t, "LE17 4AT", targets[0].Postcode)
	assert.Equal(t, model.TargetPending, targets[0].Disposition)
	assert.NotEmpty(t, targets[0].RawPayload)
}

func TestPlaces_AreaSearchFiltersOutOfEnvelope(t *testing.T) {
	client := &mockPlacesClient{}
	client.On("SearchNearby", mock.Anything, mock.Anything).
		Return(&places.SearchResponse{Places: []places.Place{
			{ID: "in", DisplayName: places.DisplayName{Text: "Inside"}, Location: places.LatLng{Latitude: 52.46, Longitude: -1.2}},
			{ID: "out", DisplayName: places.DisplayName{Text: "Far Away"}, Location: places.LatLng{Latitude: 55.9, Longitude: -3.2}},
		}}, nil)

	in, err := BuildInput(model.Criteria{
		Type: model.TypeAreaSearch,
		Area: &model.AreaCriteria{Latitude: 52.456, Longitude: -1.199, RadiusKm: 10},
	})
	require.NoError(t, err)

	p := NewPlaces(client, placesTestConfig())
	targets, err := p.Search(context.Background(), in)

	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "Inside", targets[0].Name)
}

func TestPlaces_RateLimitSurfacesTyped(t *testing.T) {
	client := &mockPlacesClient{}
	client.On("SearchNearby", mock.Anything, mock.Anything).
		Return(nil, &places.APIError{StatusCode: http.StatusTooManyRequests, Body: "quota"})

	in, err := BuildInput(model.Criteria{
		Type: model.TypeAreaSearch,
		Area: &model.AreaCriteria{Latitude: 52.4, Longitude: -1.2, RadiusKm: 5},
	})
	require.NoError(t, err)

	p := NewPlaces(client, placesTestConfig())
	_, err = p.Search(context.Background(), in)

	var pe *resilience.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, NamePlaces, pe.Provider)
	assert.Equal(t, resilience.KindRateLimited, pe.Kind)

	// 429 must not be retried.
	client.AssertNumberOfCalls(t, "SearchNearby", 1)
}

func TestPlaces_ServerErrorRetried(t *testing.T) {
	client := &mockPlacesClient{}
	client.On("SearchNearby", mock.Anything, mock.Anything).
		Return(nil, &places.APIError{StatusCode: http.StatusInternalServerError}).Once()
	client.On("SearchNearby", mock.Anything, mock.Anything).
		Return(&places.SearchResponse{}, nil).Once()

	cfg := placesTestConfig()
	cfg.RetryMaxTries = 2

	in, err := BuildInput(model.Criteria{
		Type: model.TypeAreaSearch,
		Area: &model.AreaCriteria{Latitude: 52.4, Longitude: -1.2, RadiusKm: 5},
	})
	require.NoError(t, err)

	p := NewPlaces(client, cfg)
	p.retry.InitialBackoff = 1 // keep the test fast

	targets, err := p.Search(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, targets)
	client.AssertNumberOfCalls(t, "SearchNearby", 2)
}

func TestPlaces_CompanyListSkipsFailedName(t *testing.T) {
	client := &mockPlacesClient{}
	client.On("SearchText", mock.Anything, mock.MatchedBy(func(req places.SearchTextRequest) bool {
		return req.TextQuery == "Acme Widgets"
	})).Return(nil, &places.APIError{StatusCode: http.StatusBadRequest})
	client.On("SearchText", mock.Anything, mock.MatchedBy(func(req places.SearchTextRequest) bool {
		return req.TextQuery == "Lutterworth Tooling"
	})).Return(&places.SearchResponse{Places: []places.Place{
		{DisplayName: places.DisplayName{Text: "Lutterworth Tooling"}},
	}}, nil)

	p := NewPlaces(client, placesTestConfig())
	targets, err := p.Search(context.Background(), SearchInput{
		Type:         model.TypeCompanyList,
		CompanyNames: []string{"Acme Widgets", "Lutterworth Tooling"},
	})

	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "Lutterworth Tooling", targets[0].Name)
}

func TestPlaces_CompanyListAbortsOnAuthFailure(t *testing.T) {
	client := &mockPlacesClient{}
	client.On("SearchText", mock.Anything, mock.Anything).
		Return(nil, &places.APIError{StatusCode: http.StatusForbidden})

	p := NewPlaces(client, placesTestConfig())
	_, err := p.Search(context.Background(), SearchInput{
		Type:         model.TypeCompanyList,
		CompanyNames: []string{"One", "Two"},
	})

	var pe *resilience.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, resilience.KindAuth, pe.Kind)
	client.AssertNumberOfCalls(t, "SearchText", 1)
}

func TestExtractPostcode(t *testing.T) {
	tests := []struct {
		address  string
		expected string
	}{
		{"5 High St, Lutterworth LE17 4AT, UK", "LE17 4AT"},
		{"1 Mill Lane, Manchester M1 1AE", "M1 1AE"},
		{"Somewhere without a postcode", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, extractPostcode(tt.address), tt.address)
	}
}
