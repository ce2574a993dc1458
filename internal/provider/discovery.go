package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/campaign-engine/internal/config"
	"github.com/sells-group/campaign-engine/internal/model"
	"github.com/sells-group/campaign-engine/internal/resilience"
	"github.com/sells-group/campaign-engine/pkg/anthropic"
)

const discoverySystemPrompt = `You research businesses for a B2B lead generation team.
Given a request, return real businesses that match it as a JSON array.
Each element: {"name", "address", "postcode", "website", "phone"}.
Use empty strings for unknown fields. Return ONLY the JSON array, no
commentary. Never invent businesses you are not confident exist.`

// Discovery finds businesses by asking a language model. It is the
// slowest provider and runs under the longest timeout. Model calls are
// expensive, so the retry budget is smaller than the other adapters'.
type Discovery struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	retry     resilience.RetryConfig
}

// NewDiscovery creates the AI discovery provider adapter.
func NewDiscovery(client anthropic.Client, cfg config.AnthropicConfig) *Discovery {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 2
	if cfg.RetryMaxTries > 0 {
		retry.MaxAttempts = cfg.RetryMaxTries
	}
	retry.OnRetry = resilience.RetryLogger(NameDiscovery, "create_message")

	return &Discovery{
		client:    client,
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
		timeout:   time.Duration(cfg.TimeoutSecs) * time.Second,
		retry:     retry,
	}
}

func (p *Discovery) Name() string { return NameDiscovery }

func (p *Discovery) Search(ctx context.Context, in SearchInput) ([]model.Target, error) {
	prompt := p.buildPrompt(in)
	if prompt == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// Status errors are classified before the retry decision so rate
	// limits and auth failures surface immediately.
	resp, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     p.model,
			MaxTokens: p.maxTokens,
			System:    discoverySystemPrompt,
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
		if err != nil {
			var apiErr *anthropic.APIError
			if errors.As(err, &apiErr) {
				return nil, resilience.NewProviderError(NameDiscovery,
					resilience.ClassifyStatus(apiErr.StatusCode), apiErr.StatusCode, err)
			}
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return nil, classifyErr(NameDiscovery, err)
	}
	resp.Usage.LogCost(p.model, "discovery")

	targets, err := parseDiscoveryResponse(resp.Text())
	if err != nil {
		return nil, classifyErr(NameDiscovery, err)
	}
	return targets, nil
}

func (p *Discovery) buildPrompt(in SearchInput) string {
	var b strings.Builder
	switch in.Type {
	case model.TypeAreaSearch:
		fmt.Fprintf(&b, "Find %s businesses within %.0f km of ", industryOrAny(in.Industry), in.RadiusKm)
		writeLocation(&b, in)
	case model.TypeGapAnalysis:
		fmt.Fprintf(&b, "Find %s businesses within %.0f km of ", industryOrAny(in.Industry), in.RadiusKm)
		writeLocation(&b, in)
		if len(in.ExcludeNames) > 0 {
			fmt.Fprintf(&b, ". Exclude these companies: %s", strings.Join(in.ExcludeNames, "; "))
		}
	case model.TypeCustomQuery:
		b.WriteString(in.Prompt)
		if in.Industry != "" {
			fmt.Fprintf(&b, " (industry: %s)", in.Industry)
		}
	case model.TypeSimilarBusiness:
		fmt.Fprintf(&b, "Find businesses similar to %q", in.SeedCompanyName)
		if in.SeedWebsite != "" {
			fmt.Fprintf(&b, " (%s)", in.SeedWebsite)
		}
		b.WriteString(": same industry, similar size, ideally nearby")
	default:
		return ""
	}

	if in.MaxResults > 0 {
		fmt.Fprintf(&b, ". Return at most %d businesses", in.MaxResults)
	}
	return b.String()
}

func industryOrAny(industry string) string {
	if industry == "" {
		return "local"
	}
	return industry
}

func writeLocation(b *strings.Builder, in SearchInput) {
	if in.Postcode != "" {
		fmt.Fprintf(b, "UK postcode %s", in.Postcode)
		return
	}
	fmt.Fprintf(b, "coordinates %.4f, %.4f", in.Latitude, in.Longitude)
}

type discoveredBusiness struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Postcode string `json:"postcode"`
	Website  string `json:"website"`
	Phone    string `json:"phone"`
}

// parseDiscoveryResponse extracts the JSON array from the model output,
// tolerating surrounding prose and markdown fences.
func parseDiscoveryResponse(text string) ([]model.Target, error) {
	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start < 0 || end <= start {
		return nil, eris.Errorf("discovery: no JSON array in model output (%d bytes)", len(text))
	}

	var businesses []discoveredBusiness
	if err := json.Unmarshal([]byte(text[start:end+1]), &businesses); err != nil {
		return nil, eris.Wrap(err, "discovery: parse model output")
	}

	targets := make([]model.Target, 0, len(businesses))
	for _, biz := range businesses {
		if strings.TrimSpace(biz.Name) == "" {
			zap.L().Debug("discovery result without a name, dropped")
			continue
		}
		raw, _ := json.Marshal(biz)
		targets = append(targets, model.Target{
			Provider:    NameDiscovery,
			Name:        biz.Name,
			Address:     biz.Address,
			Postcode:    biz.Postcode,
			Website:     biz.Website,
			Phone:       biz.Phone,
			RawPayload:  raw,
			Disposition: model.TargetPending,
		})
	}
	return targets, nil
}
