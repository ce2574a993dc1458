package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/campaign-engine/internal/config"
	"github.com/sells-group/campaign-engine/internal/model"
	"github.com/sells-group/campaign-engine/internal/resilience"
	"github.com/sells-group/campaign-engine/pkg/anthropic"
)

type mockModelClient struct {
	mock.Mock
}

func (m *mockModelClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*anthropic.MessageResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

var _ anthropic.Client = (*mockModelClient)(nil)

func discoveryTestConfig() config.AnthropicConfig {
	return config.AnthropicConfig{
		Model:       "claude-sonnet-4-5-20250929",
		TimeoutSecs: 5,
		MaxTokens:   4096,
	}
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
	}
}

func TestDiscovery_CustomQuery(t *testing.T) {
	client := &mockModelClient{}
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-sonnet-4-5-20250929" &&
			req.System != "" &&
			len(req.Messages) == 1 &&
			req.Messages[0].Content == "independent plumbing firms in the Midlands"
	})).Return(textResponse(`[
		{"name": "Lutterworth Plumbing", "postcode": "LE17 4AT", "website": "https://lp.example"},
		{"name": "Mid-Shires Heating", "postcode": "CV21 2AB"}
	]`), nil)

	p := NewDiscovery(client, discoveryTestConfig())
	targets, err := p.Search(context.Background(), SearchInput{
		Type:   model.TypeCustomQuery,
		Prompt: "independent plumbing firms in the Midlands",
	})

	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, NameDiscovery, targets[0].Provider)
	assert.Equal(t, "Lutterworth Plumbing", targets[0].Name)
	assert.Equal(t, model.TargetPending, targets[0].Disposition)
	assert.NotEmpty(t, targets[0].RawPayload)
}

func TestDiscovery_GapPromptMentionsExclusions(t *testing.T) {
	var gotPrompt string
	client := &mockModelClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			gotPrompt = args.Get(1).(anthropic.MessageRequest).Messages[0].Content
		}).
		Return(textResponse(`[]`), nil)

	p := NewDiscovery(client, discoveryTestConfig())
	_, err := p.Search(context.Background(), SearchInput{
		Type:         model.TypeGapAnalysis,
		Industry:     "roofing",
		Postcode:     "LE17 5NJ",
		RadiusKm:     10,
		ExcludeNames: []string{"Apex Roofing Ltd"},
		MaxResults:   25,
	})

	require.NoError(t, err)
	assert.Contains(t, gotPrompt, "roofing")
	assert.Contains(t, gotPrompt, "LE17 5NJ")
	assert.Contains(t, gotPrompt, "Apex Roofing Ltd")
	assert.Contains(t, gotPrompt, "at most 25")
}

func TestDiscovery_ToleratesMarkdownFences(t *testing.T) {
	client := &mockModelClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("Here are the results:\n```json\n[{\"name\": \"Acme\"}]\n```"), nil)

	p := NewDiscovery(client, discoveryTestConfig())
	targets, err := p.Search(context.Background(), SearchInput{
		Type:   model.TypeCustomQuery,
		Prompt: "anything",
	})

	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "Acme", targets[0].Name)
}

func TestDiscovery_DropsNamelessResults(t *testing.T) {
	client := &mockModelClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`[{"name": ""}, {"name": "Real Business"}]`), nil)

	p := NewDiscovery(client, discoveryTestConfig())
	targets, err := p.Search(context.Background(), SearchInput{
		Type:   model.TypeCustomQuery,
		Prompt: "anything",
	})

	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "Real Business", targets[0].Name)
}

func TestDiscovery_NoArrayIsError(t *testing.T) {
	client := &mockModelClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("I could not find any businesses."), nil)

	p := NewDiscovery(client, discoveryTestConfig())
	_, err := p.Search(context.Background(), SearchInput{
		Type:   model.TypeCustomQuery,
		Prompt: "anything",
	})

	assert.Error(t, err)
}

func TestDiscovery_RateLimitSurfacesImmediately(t *testing.T) {
	client := &mockModelClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, &anthropic.APIError{StatusCode: 429, Body: "rate_limit_error"})

	p := NewDiscovery(client, discoveryTestConfig())
	_, err := p.Search(context.Background(), SearchInput{
		Type:   model.TypeCustomQuery,
		Prompt: "anything",
	})

	var pe *resilience.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, resilience.KindRateLimited, pe.Kind)
	assert.Equal(t, 429, pe.StatusCode)
	client.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestDiscovery_AuthFailureNotRetried(t *testing.T) {
	client := &mockModelClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, &anthropic.APIError{StatusCode: 401, Body: "authentication_error"})

	p := NewDiscovery(client, discoveryTestConfig())
	_, err := p.Search(context.Background(), SearchInput{
		Type:   model.TypeCustomQuery,
		Prompt: "anything",
	})

	var pe *resilience.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, resilience.KindAuth, pe.Kind)
	client.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestDiscovery_RetriesOverloadedModel(t *testing.T) {
	client := &mockModelClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, &anthropic.APIError{StatusCode: 529, Body: "overloaded_error"}).Once()
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`[{"name": "Acme"}]`), nil).Once()

	p := NewDiscovery(client, discoveryTestConfig())
	targets, err := p.Search(context.Background(), SearchInput{
		Type:   model.TypeCustomQuery,
		Prompt: "anything",
	})

	require.NoError(t, err)
	require.Len(t, targets, 1)
	client.AssertNumberOfCalls(t, "CreateMessage", 2)
}

func TestDiscovery_UnsupportedTypeIsNoop(t *testing.T) {
	client := &mockModelClient{}

	p := NewDiscovery(client, discoveryTestConfig())
	targets, err := p.Search(context.Background(), SearchInput{Type: model.TypeCompanyList})

	require.NoError(t, err)
	assert.Nil(t, targets)
	client.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}
