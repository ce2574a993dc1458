package provider

import (
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/campaign-engine/internal/config"
	"github.com/sells-group/campaign-engine/internal/credentials"
	"github.com/sells-group/campaign-engine/pkg/anthropic"
	"github.com/sells-group/campaign-engine/pkg/companieshouse"
	"github.com/sells-group/campaign-engine/pkg/places"
)

// Source yields the provider set for a campaign run. Resolution happens
// once per run, so tenant credential overrides take effect without a
// process restart.
type Source interface {
	ForTenant(tenantID string) (*Registry, error)
}

// StaticSource serves the same fixed providers to every tenant.
type StaticSource struct {
	registry *Registry
}

// NewStaticSource wraps a fixed provider set in a Source.
func NewStaticSource(providers ...Provider) *StaticSource {
	return &StaticSource{registry: NewRegistry(providers...)}
}

func (s *StaticSource) ForTenant(string) (*Registry, error) {
	return s.registry, nil
}

// Factory builds per-tenant provider sets. Each provider's credential
// goes through the two-level resolver: the tenant's override when
// present, otherwise the shared default. Providers without a credential
// for the tenant are left out of the set; a tenant resolving no
// credentials at all is an error.
//
// Adapters are cached per resolved credential, so every tenant on the
// shared default shares one adapter and with it one rate limiter.
type Factory struct {
	resolver  *credentials.Resolver
	places    config.PlacesConfig
	registry  config.CompaniesHouseConfig
	discovery config.AnthropicConfig

	mu    sync.Mutex
	cache map[adapterKey]Provider
}

type adapterKey struct {
	kind credentials.ProviderKind
	cred credentials.Credential
}

// NewFactory creates a provider factory over the given resolver.
func NewFactory(resolver *credentials.Resolver, placesCfg config.PlacesConfig, registryCfg config.CompaniesHouseConfig, discoveryCfg config.AnthropicConfig) *Factory {
	return &Factory{
		resolver:  resolver,
		places:    placesCfg,
		registry:  registryCfg,
		discovery: discoveryCfg,
		cache:     make(map[adapterKey]Provider),
	}
}

// ForTenant resolves the tenant's credentials and returns its registry.
func (f *Factory) ForTenant(tenantID string) (*Registry, error) {
	var providers []Provider

	if cred, err := f.resolver.Resolve(tenantID, credentials.KindPlaces); err == nil {
		providers = append(providers, f.adapter(credentials.KindPlaces, cred, func() Provider {
			opts := []places.Option{}
			if cred.BaseURL != "" {
				opts = append(opts, places.WithBaseURL(cred.BaseURL))
			}
			return NewPlaces(places.NewClient(cred.Key, opts...), f.places)
		}))
	} else {
		zap.L().Debug("places credential missing, provider left out",
			zap.String("tenant_id", tenantID))
	}

	if cred, err := f.resolver.Resolve(tenantID, credentials.KindCompaniesHouse); err == nil {
		providers = append(providers, f.adapter(credentials.KindCompaniesHouse, cred, func() Provider {
			opts := []companieshouse.Option{}
			if cred.BaseURL != "" {
				opts = append(opts, companieshouse.WithBaseURL(cred.BaseURL))
			}
			return NewCompaniesHouse(companieshouse.NewClient(cred.Key, opts...), f.registry)
		}))
	} else {
		zap.L().Debug("companies house credential missing, provider left out",
			zap.String("tenant_id", tenantID))
	}

	if cred, err := f.resolver.Resolve(tenantID, credentials.KindDiscovery); err == nil {
		providers = append(providers, f.adapter(credentials.KindDiscovery, cred, func() Provider {
			return NewDiscovery(anthropic.NewClient(cred.Key), f.discovery)
		}))
	} else {
		zap.L().Debug("anthropic credential missing, provider left out",
			zap.String("tenant_id", tenantID))
	}

	if len(providers) == 0 {
		return nil, eris.Errorf("provider: no credentials resolve for tenant %q", tenantID)
	}
	return NewRegistry(providers...), nil
}

func (f *Factory) adapter(kind credentials.ProviderKind, cred credentials.Credential, build func() Provider) Provider {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := adapterKey{kind: kind, cred: cred}
	if p, ok := f.cache[key]; ok {
		return p
	}
	p := build()
	f.cache[key] = p
	return p
}
