package companieshouse

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchCompanies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/companies", r.URL.Path)
		assert.Equal(t, "acme widgets", r.URL.Query().Get("q"))
		assert.Equal(t, "50", r.URL.Query().Get("items_per_page"))

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "test-key", user)
		assert.Empty(t, pass)

		_, _ = w.Write([]byte(`{
			"total_results": 1,
			"items": [
				{
					"company_number": "01234567",
					"title": "ACME WIDGETS LIMITED",
					"company_status": "active",
					"company_type": "ltd",
					"date_of_creation": "1998-03-12",
					"address_snippet": "5 High Street, Lutterworth, LE17 4AT",
					"address": {
						"address_line_1": "5 High Street",
						"locality": "Lutterworth",
						"postal_code": "LE17 4AT"
					}
				}
			]
		}`))
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	result, err := client.SearchCompanies(context.Background(), "acme widgets", 50)

	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalResults)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "01234567", result.Items[0].CompanyNumber)
	assert.Equal(t, "LE17 4AT", result.Items[0].Address.PostalCode)
}

func TestGetCompanyProfile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/company/SC123456", r.URL.Path)

		_, _ = w.Write([]byte(`{
			"company_number": "SC123456",
			"company_name": "HIGHLAND TOOLING LIMITED",
			"company_status": "active",
			"type": "ltd",
			"date_of_creation": "2011-06-01",
			"sic_codes": ["25620"],
			"registered_office_address": {"postal_code": "IV1 1AA"}
		}`))
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	profile, err := client.GetCompanyProfile(context.Background(), "SC123456")

	require.NoError(t, err)
	assert.Equal(t, "HIGHLAND TOOLING LIMITED", profile.CompanyName)
	assert.Equal(t, []string{"25620"}, profile.SICCodes)
}

func TestSearchCompanies_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	_, err := client.SearchCompanies(context.Background(), "acme", 0)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
}

func TestGetCompanyProfile_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid key", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient("bad-key", WithBaseURL(server.URL))
	_, err := client.GetCompanyProfile(context.Background(), "01234567")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}
