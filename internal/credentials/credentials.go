// Package credentials resolves per-provider API credentials with a
// two-level lookup: tenant-specific overrides first, then the shared
// defaults. Resolution happens once per run and the result is passed down
// explicitly.
package credentials

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ProviderKind names a credentialed provider.
type ProviderKind string

const (
	KindPlaces         ProviderKind = "places"
	KindCompaniesHouse ProviderKind = "companies_house"
	KindDiscovery      ProviderKind = "discovery"
)

// Credential is one resolved provider credential.
type Credential struct {
	Key     string `yaml:"key"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// File is the on-disk credentials layout: shared defaults plus per-tenant
// overrides keyed by tenant id.
type File struct {
	Defaults map[ProviderKind]Credential            `yaml:"defaults"`
	Tenants  map[string]map[ProviderKind]Credential `yaml:"tenants"`
}

// Resolver answers credential lookups for campaign runs.
type Resolver struct {
	file File
}

// NewResolver builds a resolver from already-parsed contents.
func NewResolver(file File) *Resolver {
	return &Resolver{file: file}
}

// LoadResolver reads a credentials YAML file. An empty path yields a
// resolver that only knows the defaults passed via SetDefault.
func LoadResolver(path string) (*Resolver, error) {
	if path == "" {
		return NewResolver(File{}), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "credentials: read %s", path)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrap(err, "credentials: parse")
	}

	return NewResolver(file), nil
}

// SetDefault registers the shared default credential for a provider,
// typically sourced from the main config. Existing file defaults win.
func (r *Resolver) SetDefault(kind ProviderKind, cred Credential) {
	if r.file.Defaults == nil {
		r.file.Defaults = make(map[ProviderKind]Credential)
	}
	if existing, ok := r.file.Defaults[kind]; ok && existing.Key != "" {
		return
	}
	r.file.Defaults[kind] = cred
}

// Resolve returns the credential for a tenant and provider kind: the
// tenant's override when present, otherwise the shared default.
func (r *Resolver) Resolve(tenantID string, kind ProviderKind) (Credential, error) {
	if overrides, ok := r.file.Tenants[tenantID]; ok {
		if cred, ok := overrides[kind]; ok && cred.Key != "" {
			return cred, nil
		}
	}

	if cred, ok := r.file.Defaults[kind]; ok && cred.Key != "" {
		return cred, nil
	}

	return Credential{}, eris.Errorf("credentials: no credential for provider %q (tenant %s)", kind, tenantID)
}
