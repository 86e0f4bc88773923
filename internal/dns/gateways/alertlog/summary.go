package alertlog

import "github.com/haukened/exfil-watch/internal/dns/domain"

// Summary aggregates alert counts for dashboards.
type Summary struct {
	Total         int                     `json:"total"`
	HighEntropy   int                     `json:"high_entropy"`
	LongSubdomain int                     `json:"long_subdomain"`
	HighFrequency int                     `json:"high_frequency"`
	BySeverity    map[domain.Severity]int `json:"by_severity"`
}

// Summarize counts records overall, per rule, and per severity.
func Summarize(records []domain.AlertRecord) Summary {
	s := Summary{BySeverity: make(map[domain.Severity]int)}
	for _, r := range records {
		s.Total++
		if r.HasRule(domain.RuleHighEntropy) {
			s.HighEntropy++
		}
		if r.HasRule(domain.RuleLongSubdomain) {
			s.LongSubdomain++
		}
		if r.HasRule(domain.RuleHighFrequency) {
			s.HighFrequency++
		}
		s.BySeverity[r.Severity]++
	}
	return s
}
