package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/campaign-engine/internal/config"
	"github.com/sells-group/campaign-engine/internal/model"
	"github.com/sells-group/campaign-engine/internal/resilience"
	"github.com/sells-group/campaign-engine/pkg/places"
)

// Places finds businesses through the places/geocoding API. It is the
// fastest provider and runs under the shortest timeout.
type Places struct {
	client   places.Client
	limiter  *rate.Limiter
	timeout  time.Duration
	retry    resilience.RetryConfig
	pageSize int
}

// NewPlaces creates the places provider adapter.
func NewPlaces(client places.Client, cfg config.PlacesConfig) *Places {
	retry := resilience.DefaultRetryConfig()
	if cfg.RetryMaxTries > 0 {
		retry.MaxAttempts = cfg.RetryMaxTries
	}
	retry.OnRetry = resilience.RetryLogger(NamePlaces, "search")

	return &Places{
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		timeout:  time.Duration(cfg.TimeoutSecs) * time.Second,
		retry:    retry,
		pageSize: cfg.MaxPageSize,
	}
}

func (p *Places) Name() string { return NamePlaces }

// Search dispatches by campaign type. All failures come back as
// classified provider errors.
func (p *Places) Search(ctx context.Context, in SearchInput) ([]model.Target, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var (
		targets []model.Target
		err     error
	)
	switch in.Type {
	case model.TypeAreaSearch, model.TypeGapAnalysis:
		targets, err = p.searchArea(ctx, in)
	case model.TypeCompanyList:
		targets, err = p.searchByName(ctx, in)
	case model.TypeSimilarBusiness:
		targets, err = p.searchSimilar(ctx, in)
	default:
		return nil, nil
	}

	if err != nil {
		return nil, classifyErr(NamePlaces, err)
	}
	return targets, nil
}

func (p *Places) searchArea(ctx context.Context, in SearchInput) ([]model.Target, error) {
	circle := places.Circle{
		Center: places.LatLng{Latitude: in.Latitude, Longitude: in.Longitude},
		Radius: in.RadiusKm * 1000,
	}

	resp, err := p.call(ctx, func(ctx context.Context) (*places.SearchResponse, error) {
		if in.Industry != "" {
			// Free-text industries go through text search; the nearby
			// endpoint only accepts fixed place types.
			return p.client.SearchText(ctx, places.SearchTextRequest{
				TextQuery:      fmt.Sprintf("%s near %s", in.Industry, p.areaLabel(in)),
				MaxResultCount: p.pageSize,
				LocationBias:   &circle,
			})
		}
		return p.client.SearchNearby(ctx, places.SearchNearbyRequest{
			MaxResultCount:      p.pageSize,
			LocationRestriction: circle,
		})
	})
	if err != nil {
		return nil, err
	}

	targets := make([]model.Target, 0, len(resp.Places))
	for _, place := range resp.Places {
		if in.Envelope != nil && !inEnvelope(in.Envelope, place.Location) {
			continue
		}
		targets = append(targets, placeToTarget(place))
	}
	return targets, nil
}

func (p *Places) searchByName(ctx context.Context, in SearchInput) ([]model.Target, error) {
	var targets []model.Target
	for _, name := range in.CompanyNames {
		resp, err := p.call(ctx, func(ctx context.Context) (*places.SearchResponse, error) {
			return p.client.SearchText(ctx, places.SearchTextRequest{
				TextQuery:      name,
				MaxResultCount: 1,
			})
		})
		if err != nil {
			if isFatalKind(err) {
				return nil, err
			}
			zap.L().Warn("places lookup failed, skipping name",
				zap.String("name", name), zap.Error(err))
			continue
		}
		if len(resp.Places) > 0 {
			targets = append(targets, placeToTarget(resp.Places[0]))
		}
	}
	return targets, nil
}

func (p *Places) searchSimilar(ctx context.Context, in SearchInput) ([]model.Target, error) {
	// Find the seed listing first, then search its category around its
	// own location.
	seedResp, err := p.call(ctx, func(ctx context.Context) (*places.SearchResponse, error) {
		return p.client.SearchText(ctx, places.SearchTextRequest{
			TextQuery:      in.SeedCompanyName,
			MaxResultCount: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	if len(seedResp.Places) == 0 || len(seedResp.Places[0].Types) == 0 {
		return nil, nil
	}
	seed := seedResp.Places[0]

	resp, err := p.call(ctx, func(ctx context.Context) (*places.SearchResponse, error) {
		return p.client.SearchNearby(ctx, places.SearchNearbyRequest{
			IncludedTypes:  seed.Types[:1],
			MaxResultCount: p.pageSize,
			LocationRestriction: places.Circle{
				Center: seed.Location,
				Radius: 25_000,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	targets := make([]model.Target, 0, len(resp.Places))
	for _, place := range resp.Places {
		if place.ID == seed.ID {
			continue
		}
		targets = append(targets, placeToTarget(place))
	}
	return targets, nil
}

func (p *Places) areaLabel(in SearchInput) string {
	if in.Postcode != "" {
		return in.Postcode
	}
	return fmt.Sprintf("%.4f,%.4f", in.Latitude, in.Longitude)
}

// call runs one rate-limited API call with retries. Status errors are
// classified before the retry decision so rate limits and client errors
// surface immediately.
func (p *Places) call(ctx context.Context, fn func(ctx context.Context) (*places.SearchResponse, error)) (*places.SearchResponse, error) {
	return resilience.DoVal(ctx, p.retry, func(ctx context.Context) (*places.SearchResponse, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := fn(ctx)
		if err != nil {
			var apiErr *places.APIError
			if errors.As(err, &apiErr) {
				return nil, resilience.NewProviderError(NamePlaces,
					resilience.ClassifyStatus(apiErr.StatusCode), apiErr.StatusCode, err)
			}
			return nil, err
		}
		return resp, nil
	})
}

// isFatalKind reports whether the provider should stop iterating:
// rate limits and credential failures will not get better on the next
// name.
func isFatalKind(err error) bool {
	var pe *resilience.ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Kind == resilience.KindRateLimited || pe.Kind == resilience.KindAuth
}

func inEnvelope(b *geom.Bounds, loc places.LatLng) bool {
	if loc.Latitude == 0 && loc.Longitude == 0 {
		// No location on the listing; keep it rather than guess.
		return true
	}
	return b.OverlapsPoint(geom.XY, geom.Coord{loc.Longitude, loc.Latitude})
}

var ukPostcodeRe = regexp.MustCompile(`[A-Z]{1,2}\d[A-Z\d]?\s*\d[A-Z]{2}`)

// placeToTarget normalizes a listing, extracting the postcode from the
// formatted address.
func placeToTarget(place places.Place) model.Target {
	raw, _ := json.Marshal(place)
	return model.Target{
		Provider:    NamePlaces,
		Name:        place.DisplayName.Text,
		Address:     place.FormattedAddress,
		Postcode:    extractPostcode(place.FormattedAddress),
		Website:     place.WebsiteURI,
		Phone:       place.NationalPhoneNumber,
		Rating:      place.Rating,
		ReviewCount: place.UserRatingCount,
		RawPayload:  raw,
		Disposition: model.TargetPending,
	}
}

func extractPostcode(address string) string {
	return strings.TrimSpace(ukPostcodeRe.FindString(strings.ToUpper(address)))
}
