package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase with ltd", "acme widgets ltd", "ACME WIDGETS"},
		{"limited suffix", "Acme Widgets Limited", "ACME WIDGETS"},
		{"plc suffix", "Lutterworth Tooling PLC", "LUTTERWORTH TOOLING"},
		{"llp suffix", "Harper & Finch LLP", "HARPER AND FINCH"},
		{"punctuation stripped", "J.B. Smith & Co.", "JB SMITH AND"},
		{"ampersand mapped", "Fish & Chips", "FISH AND CHIPS"},
		{"hyphen to space", "Mid-Shires Plumbing", "MID SHIRES PLUMBING"},
		{"diacritics folded", "Café Rouge Ltd", "CAFE ROUGE"},
		{"multi space collapsed", "  Acme   Widgets  ", "ACME WIDGETS"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeName(tt.input))
		})
	}
}

func TestNormalizeName_SameBusinessDifferentProviders(t *testing.T) {
	// A places listing and a registry record for the same business must
	// normalize identically.
	assert.Equal(t,
		NormalizeName("Lutterworth Plumbing & Heating"),
		NormalizeName("LUTTERWORTH PLUMBING AND HEATING LIMITED"),
	)
}

func TestOutwardCode(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"LE17 5NJ", "LE17"},
		{"le17 5nj", "LE17"},
		{"LE175NJ", "LE17"},
		{"SW1A 1AA", "SW1A"},
		{"M1 1AE", "M1"},
		{"M11AE", "M1"},
		{"", ""},
		{"LE1", "LE1"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, OutwardCode(tt.input), "postcode %q", tt.input)
	}
}

func TestNormalizeRegistration(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"1234567", "01234567"},
		{"01234567", "01234567"},
		{"SC123456", "SC123456"},
		{"sc123456", "SC123456"},
		{" 0123 4567 ", "01234567"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, NormalizeRegistration(tt.input), "registration %q", tt.input)
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("Acme Widgets Ltd", "LE17 5NJ")
	b := Fingerprint("ACME WIDGETS LIMITED", "LE17 9ZZ")
	c := Fingerprint("Acme Widgets Ltd", "CV23 1AB")

	assert.Equal(t, a, b, "same name, same outward code")
	assert.NotEqual(t, a, c, "different outward code")
}
