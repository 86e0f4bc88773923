package domain

import "strings"

const labelSeparator = "."

// ParsedName splits a queried name into the part under inspection and the
// domain it is sent to.
//
// BaseDomain is approximated as the last two labels; no public suffix list is consulted,
// so "x.example.co.uk" yields base "co.uk".
type ParsedName struct {
	Full       string // queried name without trailing separators
	BaseDomain string // last two labels
	Subdomain  string // remaining labels, empty for a two-label name
}

// ParseName splits name into base domain and subdomain.
// It returns false for names with fewer than two labels; that is not an error,
// the event is simply not applicable.
func ParseName(name string) (ParsedName, bool) {
	full := strings.TrimRight(name, labelSeparator)
	labels := strings.Split(full, labelSeparator)
	if len(labels) < 2 {
		return ParsedName{}, false
	}

	n := len(labels)
	return ParsedName{
		Full:       full,
		BaseDomain: strings.Join(labels[n-2:], labelSeparator),
		Subdomain:  strings.Join(labels[:n-2], labelSeparator),
	}, true
}

// HasSubdomain reports whether anything precedes the base domain.
func (p ParsedName) HasSubdomain() bool {
	return p.Subdomain != ""
}
