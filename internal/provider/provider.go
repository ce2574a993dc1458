// Package provider adapts the external enrichment services behind one
// Search interface. Each adapter owns its timeout, rate limiter, and retry
// policy, and converts every failure into a classified
// resilience.ProviderError so the pipeline can continue with partial data.
package provider

import (
	"context"
	"errors"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/campaign-engine/internal/model"
	"github.com/sells-group/campaign-engine/internal/resilience"
)

// Provider names, used in targets, attempts, warnings, and provenance.
const (
	NamePlaces         = "places"
	NameCompaniesHouse = "companies_house"
	NameDiscovery      = "ai_discovery"
)

// SearchInput is the normalized search request built from campaign
// criteria. Which fields are set depends on the campaign type; adapters
// use what they understand and ignore the rest.
type SearchInput struct {
	Type     model.CampaignType
	Industry string

	// Prompt drives AI discovery for custom_query campaigns.
	Prompt string

	// Geographic scope for area_search and gap_analysis.
	Latitude  float64
	Longitude float64
	RadiusKm  float64
	Postcode  string
	// Envelope is the bounding box around the search circle, used to
	// reject results placed outside the area.
	Envelope *geom.Bounds

	// CompanyNames is the explicit list for company_list campaigns.
	CompanyNames []string

	// ExcludeNames lists competitors to leave out (gap_analysis).
	ExcludeNames []string

	// Seed business for similar_business campaigns.
	SeedCompanyName string
	SeedWebsite     string

	// MaxResults caps how many candidates a single provider should
	// return; 0 means provider default.
	MaxResults int
}

// Provider is a single enrichment source.
type Provider interface {
	Name() string
	Search(ctx context.Context, in SearchInput) ([]model.Target, error)
}

// classifyErr converts an adapter-level failure into a ProviderError.
// Errors that are already classified pass through unchanged.
func classifyErr(name string, err error) error {
	if err == nil {
		return nil
	}
	var pe *resilience.ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return resilience.NewProviderError(name, resilience.Classify(err), 0, err)
}
