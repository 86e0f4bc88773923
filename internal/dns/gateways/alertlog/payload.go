package alertlog

import (
	"time"

	"github.com/haukened/exfil-watch/internal/dns/domain"
)

// Payload is the JSON shape of an alert on the HTTP API and the message bus.
type Payload struct {
	Time      string   `json:"time"`
	Timestamp string   `json:"timestamp,omitempty"`
	Rules     []string `json:"rules"`
	Rule      string   `json:"rule"`
	SourceIP  string   `json:"src_ip"`
	Domain    string   `json:"domain"`
	Subdomain string   `json:"subdomain"`
	Entropy   float64  `json:"entropy"`
	Severity  string   `json:"severity"`
}

// NewPayload converts rec. Timestamp is only set when rec carries a full
// date, which records read back from the log file do not.
func NewPayload(rec domain.AlertRecord) Payload {
	rules := make([]string, 0, len(rec.Rules))
	for _, r := range rec.Rules {
		rules = append(rules, string(r))
	}
	p := Payload{
		Time:      rec.Clock(),
		Rules:     rules,
		Rule:      rec.RuleDescription(),
		SourceIP:  rec.SourceIP,
		Domain:    rec.Domain,
		Subdomain: rec.Subdomain,
		Entropy:   rec.Entropy,
		Severity:  string(rec.Severity),
	}
	if rec.Timestamp.Year() > 1 {
		p.Timestamp = rec.Timestamp.Format(time.RFC3339Nano)
	}
	return p
}

// NewPayloads converts a slice of records.
func NewPayloads(recs []domain.AlertRecord) []Payload {
	out := make([]Payload, 0, len(recs))
	for _, r := range recs {
		out = append(out, NewPayload(r))
	}
	return out
}
