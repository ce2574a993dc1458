package provider

import "github.com/sells-group/campaign-engine/internal/model"

// providerSets names which providers run for each campaign type, in
// dispatch order. All providers in a set are fanned out concurrently.
var providerSets = map[model.CampaignType][]string{
	model.TypeAreaSearch:      {NamePlaces, NameCompaniesHouse, NameDiscovery},
	model.TypeGapAnalysis:     {NamePlaces, NameCompaniesHouse, NameDiscovery},
	model.TypeCustomQuery:     {NameDiscovery},
	model.TypeCompanyList:     {NameCompaniesHouse, NamePlaces},
	model.TypeSimilarBusiness: {NameDiscovery, NamePlaces},
}

// Registry holds the configured providers by name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds a registry from the given providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the named provider.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// ForType returns the providers to fan out for a campaign type. Providers
// named in the set but not registered are silently omitted, which lets a
// deployment run without, say, an AI discovery key.
func (r *Registry) ForType(t model.CampaignType) []Provider {
	names := providerSets[t]
	out := make([]Provider, 0, len(names))
	for _, name := range names {
		if p, ok := r.providers[name]; ok {
			out = append(out, p)
		}
	}
	return out
}
