package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/campaign-engine/internal/model"
)

type stubProvider struct {
	name string
}

func (s *stubProvider) Name() string { return s.name }
func (s *stubProvider) Search(context.Context, SearchInput) ([]model.Target, error) {
	return nil, nil
}

func TestRegistry_ForType(t *testing.T) {
	reg := NewRegistry(
		&stubProvider{name: NamePlaces},
		&stubProvider{name: NameCompaniesHouse},
		&stubProvider{name: NameDiscovery},
	)

	area := reg.ForType(model.TypeAreaSearch)
	assert.Len(t, area, 3)

	query := reg.ForType(model.TypeCustomQuery)
	assert.Len(t, query, 1)
	assert.Equal(t, NameDiscovery, query[0].Name())
}

func TestRegistry_OmitsUnregistered(t *testing.T) {
	// A deployment without an AI key still runs area searches on the
	// remaining providers.
	reg := NewRegistry(
		&stubProvider{name: NamePlaces},
		&stubProvider{name: NameCompaniesHouse},
	)

	providers := reg.ForType(model.TypeAreaSearch)
	assert.Len(t, providers, 2)
	for _, p := range providers {
		assert.NotEqual(t, NameDiscovery, p.Name())
	}
}

func TestRegistry_EverySetCoversKnownTypes(t *testing.T) {
	for _, campaignType := range []model.CampaignType{
		model.TypeAreaSearch, model.TypeGapAnalysis, model.TypeCustomQuery,
		model.TypeCompanyList, model.TypeSimilarBusiness,
	} {
		assert.NotEmpty(t, providerSets[campaignType], "no providers for %q", campaignType)
	}
}

func TestRegistry_Get(t *testing.T) {
	reg := NewRegistry(&stubProvider{name: NamePlaces})

	p, ok := reg.Get(NamePlaces)
	assert.True(t, ok)
	assert.Equal(t, NamePlaces, p.Name())

	_, ok = reg.Get(NameDiscovery)
	assert.False(t, ok)
}
