package provider

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/campaign-engine/internal/config"
	"github.com/sells-group/campaign-engine/internal/dedup"
	"github.com/sells-group/campaign-engine/internal/model"
	"github.com/sells-group/campaign-engine/internal/resilience"
	"github.com/sells-group/campaign-engine/pkg/companieshouse"
)

const registryPageSize = 50

// CompaniesHouse finds businesses through the UK company registry. Its
// results carry registration numbers, which make downstream deduplication
// exact.
type CompaniesHouse struct {
	client  companieshouse.Client
	limiter *rate.Limiter
	timeout time.Duration
	retry   resilience.RetryConfig
}

// NewCompaniesHouse creates the registry provider adapter.
func NewCompaniesHouse(client companieshouse.Client, cfg config.CompaniesHouseConfig) *CompaniesHouse {
	retry := resilience.DefaultRetryConfig()
	if cfg.RetryMaxTries > 0 {
		retry.MaxAttempts = cfg.RetryMaxTries
	}
	retry.OnRetry = resilience.RetryLogger(NameCompaniesHouse, "search")

	return &CompaniesHouse{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		timeout: time.Duration(cfg.TimeoutSecs) * time.Second,
		retry:   retry,
	}
}

func (p *CompaniesHouse) Name() string { return NameCompaniesHouse }

func (p *CompaniesHouse) Search(ctx context.Context, in SearchInput) ([]model.Target, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var (
		targets []model.Target
		err     error
	)
	switch in.Type {
	case model.TypeAreaSearch, model.TypeGapAnalysis:
		targets, err = p.searchIndustry(ctx, in)
	case model.TypeCompanyList:
		targets, err = p.searchByName(ctx, in)
	default:
		return nil, nil
	}

	if err != nil {
		return nil, classifyErr(NameCompaniesHouse, err)
	}
	return targets, nil
}

// searchIndustry queries the registry by industry keyword and narrows to
// the campaign's area. The registry has no geo search; the outward-code
// letters of the campaign postcode act as a coarse county filter.
func (p *CompaniesHouse) searchIndustry(ctx context.Context, in SearchInput) ([]model.Target, error) {
	if in.Industry == "" {
		return nil, nil
	}

	result, err := p.callSearch(ctx, in.Industry, registryPageSize)
	if err != nil {
		return nil, err
	}

	areaPrefix := outwardLetters(in.Postcode)
	var targets []model.Target
	for _, item := range result.Items {
		if item.CompanyStatus != "active" {
			continue
		}
		if areaPrefix != "" && outwardLetters(item.Address.PostalCode) != areaPrefix {
			continue
		}
		targets = append(targets, itemToTarget(item))
	}
	return targets, nil
}

// searchByName resolves each listed company to its registry record. A
// name that cannot be found is skipped; rate-limit and auth failures stop
// the whole provider.
func (p *CompaniesHouse) searchByName(ctx context.Context, in SearchInput) ([]model.Target, error) {
	var targets []model.Target
	for _, name := range in.CompanyNames {
		result, err := p.callSearch(ctx, name, 5)
		if err != nil {
			if isFatalKind(err) {
				return nil, err
			}
			zap.L().Warn("registry lookup failed, skipping name",
				zap.String("name", name), zap.Error(err))
			continue
		}

		item, ok := bestMatch(name, result.Items)
		if !ok {
			continue
		}

		target := itemToTarget(item)
		if profile := p.fetchProfile(ctx, item.CompanyNumber); profile != nil {
			raw, _ := json.Marshal(profile)
			target.RawPayload = raw
			target.Address = formatAddress(profile.RegisteredOfficeAddress)
			target.Postcode = profile.RegisteredOfficeAddress.PostalCode
		}
		targets = append(targets, target)
	}
	return targets, nil
}

// fetchProfile enriches a hit with its full record. Best effort: a miss
// leaves the search-level fields in place.
func (p *CompaniesHouse) fetchProfile(ctx context.Context, companyNumber string) *companieshouse.CompanyProfile {
	profile, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (*companieshouse.CompanyProfile, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		profile, err := p.client.GetCompanyProfile(ctx, companyNumber)
		return profile, p.wrapAPIError(err)
	})
	if err != nil {
		zap.L().Warn("registry profile fetch failed",
			zap.String("company_number", companyNumber), zap.Error(err))
		return nil
	}
	return profile
}

// callSearch runs one rate-limited registry search with retries. Status
// errors are classified before the retry decision so rate limits and
// client errors surface immediately.
func (p *CompaniesHouse) callSearch(ctx context.Context, query string, pageSize int) (*companieshouse.SearchResult, error) {
	return resilience.DoVal(ctx, p.retry, func(ctx context.Context) (*companieshouse.SearchResult, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		result, err := p.client.SearchCompanies(ctx, query, pageSize)
		if err != nil {
			return nil, p.wrapAPIError(err)
		}
		return result, nil
	})
}

// bestMatch picks the first active hit whose normalized name matches the
// requested one, falling back to the first active hit.
func bestMatch(name string, items []companieshouse.CompanyItem) (companieshouse.CompanyItem, bool) {
	want := dedup.NormalizeName(name)
	var fallback *companieshouse.CompanyItem
	for i := range items {
		item := items[i]
		if item.CompanyStatus != "active" {
			continue
		}
		if dedup.NormalizeName(item.Title) == want {
			return item, true
		}
		if fallback == nil {
			fallback = &item
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return companieshouse.CompanyItem{}, false
}

func (p *CompaniesHouse) wrapAPIError(err error) error {
	var apiErr *companieshouse.APIError
	if errors.As(err, &apiErr) {
		return resilience.NewProviderError(NameCompaniesHouse,
			resilience.ClassifyStatus(apiErr.StatusCode), apiErr.StatusCode, err)
	}
	return err
}

func itemToTarget(item companieshouse.CompanyItem) model.Target {
	raw, _ := json.Marshal(item)
	return model.Target{
		Provider:           NameCompaniesHouse,
		Name:               item.Title,
		Address:            item.AddressSnippet,
		Postcode:           item.Address.PostalCode,
		RegistrationNumber: item.CompanyNumber,
		RawPayload:         raw,
		Disposition:        model.TargetPending,
	}
}

func formatAddress(a companieshouse.Address) string {
	parts := make([]string, 0, 5)
	for _, p := range []string{a.AddressLine1, a.AddressLine2, a.Locality, a.Region, a.PostalCode} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// outwardLetters returns the leading letters of a postcode's outward code
// ("LE17 5NJ" -> "LE").
func outwardLetters(postcode string) string {
	outward := dedup.OutwardCode(postcode)
	for i, r := range outward {
		if r >= '0' && r <= '9' {
			return outward[:i]
		}
	}
	return outward
}
