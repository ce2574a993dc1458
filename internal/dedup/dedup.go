package dedup

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/campaign-engine/internal/model"
)

// Match rules, strongest first.
const (
	RuleRegistration = "registration_number"
	RuleNamePostcode = "name_postcode"
)

// Verdict is the outcome of a duplicate check.
type Verdict struct {
	Duplicate       bool
	MatchedEntityID string
	// Rule names which precedence rule matched, empty when not a
	// duplicate.
	Rule string
}

// Lookup is the read-only slice of the record store the service needs.
// Both queries search existing customers and prior leads for the tenant.
type Lookup interface {
	FindByRegistration(ctx context.Context, tenantID, registration string) (entityID string, found bool, err error)
	FindByNormalizedName(ctx context.Context, tenantID, normalizedName, outwardCode string) (entityID string, found bool, err error)
}

// Service answers duplicate checks. It is a pure function over the Lookup
// interface: no mutation, no internal state, safe to call concurrently
// for different targets.
type Service struct {
	lookup Lookup
}

// NewService creates a deduplication service over the given lookup.
func NewService(lookup Lookup) *Service {
	return &Service{lookup: lookup}
}

// IsDuplicate decides whether the candidate already exists for the
// tenant. Exact registration match is checked before the fuzzier
// name+postcode rule so that a real new lead is never wrongly skipped by
// a name collision alone when registrations disagree.
func (s *Service) IsDuplicate(ctx context.Context, candidate model.Target, tenantID string) (Verdict, error) {
	if reg := NormalizeRegistration(candidate.RegistrationNumber); reg != "" {
		id, found, err := s.lookup.FindByRegistration(ctx, tenantID, reg)
		if err != nil {
			return Verdict{}, eris.Wrap(err, "dedup: registration lookup")
		}
		if found {
			return Verdict{Duplicate: true, MatchedEntityID: id, Rule: RuleRegistration}, nil
		}
	}

	name := NormalizeName(candidate.Name)
	if name == "" {
		return Verdict{}, nil
	}

	id, found, err := s.lookup.FindByNormalizedName(ctx, tenantID, name, OutwardCode(candidate.Postcode))
	if err != nil {
		return Verdict{}, eris.Wrap(err, "dedup: name lookup")
	}
	if found {
		return Verdict{Duplicate: true, MatchedEntityID: id, Rule: RuleNamePostcode}, nil
	}

	return Verdict{}, nil
}
