package domain

import (
	"fmt"
	"strings"
	"time"
)

// AllowRule is a whitelist entry. Any base domain ending with Name is
// considered benign and never scored.
//
// Notes:
// - Name is expected to be canonical and without a trailing dot.
// - Source identifies where the entry came from ("config" or a list file path).
type AllowRule struct {
	Name    string
	Source  string
	AddedAt time.Time
}

// NewAllowRule constructs an AllowRule and validates its fields.
func NewAllowRule(name, source string, addedAt time.Time) (AllowRule, error) {
	r := AllowRule{
		Name:    strings.TrimSpace(name),
		Source:  strings.TrimSpace(source),
		AddedAt: addedAt,
	}
	if err := r.Validate(); err != nil {
		return AllowRule{}, err
	}
	return r, nil
}

// Validate checks the AllowRule for required fields.
func (r AllowRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name must not be empty")
	}
	if r.Source == "" {
		return fmt.Errorf("rule source must not be empty")
	}
	if r.AddedAt.IsZero() {
		return fmt.Errorf("rule addedAt must be set")
	}
	return nil
}

// Matches reports whether baseDomain ends with the rule name.
// This is a plain string suffix: "notgoogle.com" matches "google.com".
func (r AllowRule) Matches(baseDomain string) bool {
	return strings.HasSuffix(baseDomain, r.Name)
}

// AllowDecision is the outcome of checking a base domain against the whitelist.
type AllowDecision struct {
	Allowed     bool   // true if the base domain is whitelisted
	MatchedRule string // whitelist entry that matched
	Source      string // source of the matched entry
}

// IsAllowed is a convenience accessor.
func (d AllowDecision) IsAllowed() bool { return d.Allowed }

// EmptyDecision returns a not-whitelisted decision.
func EmptyDecision() AllowDecision { return AllowDecision{} }
