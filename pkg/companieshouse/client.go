// Package companieshouse is a client for the Companies House public data
// API, the company registry provider.
package companieshouse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.company-information.service.gov.uk"

// Client queries the registry.
type Client interface {
	SearchCompanies(ctx context.Context, query string, itemsPerPage int) (*SearchResult, error)
	GetCompanyProfile(ctx context.Context, companyNumber string) (*CompanyProfile, error)
}

// SearchResult is a page of company search hits.
type SearchResult struct {
	TotalResults int           `json:"total_results"`
	Items        []CompanyItem `json:"items"`
}

// CompanyItem is a single search hit.
type CompanyItem struct {
	CompanyNumber   string  `json:"company_number"`
	Title           string  `json:"title"`
	CompanyStatus   string  `json:"company_status"`
	CompanyType     string  `json:"company_type"`
	DateOfCreation  string  `json:"date_of_creation"`
	AddressSnippet  string  `json:"address_snippet"`
	Address         Address `json:"address"`
	SICCodeSnippets string  `json:"description"`
}

// Address is a registered office address.
type Address struct {
	AddressLine1 string `json:"address_line_1"`
	AddressLine2 string `json:"address_line_2"`
	Locality     string `json:"locality"`
	Region       string `json:"region"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
}

// CompanyProfile is a full registry record.
type CompanyProfile struct {
	CompanyNumber           string   `json:"company_number"`
	CompanyName             string   `json:"company_name"`
	CompanyStatus           string   `json:"company_status"`
	Type                    string   `json:"type"`
	DateOfCreation          string   `json:"date_of_creation"`
	SICCodes                []string `json:"sic_codes"`
	RegisteredOfficeAddress Address  `json:"registered_office_address"`
}

// APIError is a non-2xx response, preserved so callers can classify rate
// limits and auth failures.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("companieshouse: status %d: %s", e.StatusCode, e.Body)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Companies House client. The API key is sent as the
// basic-auth username with an empty password, per the registry's scheme.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) SearchCompanies(ctx context.Context, query string, itemsPerPage int) (*SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	if itemsPerPage > 0 {
		params.Set("items_per_page", strconv.Itoa(itemsPerPage))
	}

	var result SearchResult
	if err := c.get(ctx, "/search/companies?"+params.Encode(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) GetCompanyProfile(ctx context.Context, companyNumber string) (*CompanyProfile, error) {
	var profile CompanyProfile
	if err := c.get(ctx, "/company/"+url.PathEscape(companyNumber), &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "companieshouse: create request")
	}
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "companieshouse: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "companieshouse: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "companieshouse: unmarshal response")
	}
	return nil
}
