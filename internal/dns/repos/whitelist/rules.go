package whitelist

import (
	"time"

	"github.com/haukened/exfil-watch/internal/dns/common/utils"
	"github.com/haukened/exfil-watch/internal/dns/domain"
)

// SourceConfig attributes entries that came from configuration.
const SourceConfig = "config"

// RulesFromNames converts configured names into AllowRules. Names are
// canonicalized; blanks are skipped.
func RulesFromNames(names []string, source string, now time.Time) []domain.AllowRule {
	out := make([]domain.AllowRule, 0, len(names))
	for _, n := range names {
		rule, err := domain.NewAllowRule(utils.CanonicalDNSName(n), source, now)
		if err != nil {
			continue
		}
		out = append(out, rule)
	}
	return out
}

// Merge concatenates rule sets, keeping the first occurrence of each name.
func Merge(sets ...[]domain.AllowRule) []domain.AllowRule {
	seen := make(map[string]struct{})
	var out []domain.AllowRule
	for _, set := range sets {
		for _, r := range set {
			if _, ok := seen[r.Name]; ok {
				continue
			}
			seen[r.Name] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}
