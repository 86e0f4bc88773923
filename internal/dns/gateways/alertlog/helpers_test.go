package alertlog

import (
	"time"

	"github.com/haukened/exfil-watch/internal/dns/domain"
)

func sampleRecord(clock string, sev domain.Severity, rules ...domain.RuleName) domain.AlertRecord {
	ts, _ := time.ParseInLocation("15:04:05", clock, time.Local)
	return domain.AlertRecord{
		Timestamp: ts,
		Rules:     rules,
		SourceIP:  "10.0.0.5",
		Domain:    "dGhpcyBpcyBhIHNlY3JldCBwYXlsb2Fk.evil.net",
		Subdomain: "dGhpcyBpcyBhIHNlY3JldCBwYXlsb2Fk",
		Entropy:   4.33,
		Severity:  sev,
	}
}
