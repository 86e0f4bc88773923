package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FieldSeparator delimits fields of an alert log line.
const FieldSeparator = " | "

const (
	alertTimeLayout = "15:04:05"
	entropyPrefix   = "entropy="
	severityPrefix  = "severity="
	// minAlertFields is the field count below which a log line is unusable.
	minAlertFields = 6
)

// ErrShortAlertLine is returned for log lines with fewer than the required fields.
var ErrShortAlertLine = errors.New("alert line has too few fields")

// AlertRecord is one raised alert. Written once, never modified.
type AlertRecord struct {
	Timestamp time.Time // only the wall-clock time of day is persisted
	Rules     []RuleName
	SourceIP  string
	Domain    string // full queried name
	Subdomain string
	Entropy   float64
	Severity  Severity
}

// NewAlertRecord builds the record for an alerting verdict.
func NewAlertRecord(ts time.Time, ev QueryEvent, name ParsedName, entropy float64, v Verdict) AlertRecord {
	rules := make([]RuleName, len(v.Triggered))
	copy(rules, v.Triggered)
	return AlertRecord{
		Timestamp: ts,
		Rules:     rules,
		SourceIP:  ev.SourceIP,
		Domain:    name.Full,
		Subdomain: name.Subdomain,
		Entropy:   entropy,
		Severity:  v.Severity,
	}
}

// Clock returns the persisted HH:MM:SS local time of day.
func (a AlertRecord) Clock() string {
	return a.Timestamp.Local().Format(alertTimeLayout)
}

// RuleDescription joins the rule names with RuleSeparator.
func (a AlertRecord) RuleDescription() string {
	return RuleOutcome{Triggered: a.Rules}.Description()
}

// HasRule reports whether r is among the record's rules.
func (a AlertRecord) HasRule(r RuleName) bool {
	return RuleOutcome{Triggered: a.Rules}.Has(r)
}

// Line renders the record in the alert log format, without a trailing newline:
//
//	HH:MM:SS | rule + rule | src | domain | subdomain | entropy=X.XX | severity=LEVEL
//
// Domain and Subdomain are written with EscapeField so a name can never
// break the line or shift its fields.
func (a AlertRecord) Line() string {
	var b strings.Builder
	b.Grow(96 + len(a.Domain) + len(a.Subdomain))
	b.WriteString(a.Clock())
	b.WriteString(FieldSeparator)
	b.WriteString(a.RuleDescription())
	b.WriteString(FieldSeparator)
	b.WriteString(a.SourceIP)
	b.WriteString(FieldSeparator)
	b.WriteString(EscapeField(a.Domain))
	b.WriteString(FieldSeparator)
	b.WriteString(EscapeField(a.Subdomain))
	b.WriteString(FieldSeparator)
	b.WriteString(entropyPrefix)
	b.WriteString(strconv.FormatFloat(a.Entropy, 'f', 2, 64))
	b.WriteString(FieldSeparator)
	b.WriteString(severityPrefix)
	b.WriteString(string(a.Severity))
	return b.String()
}

// ParseAlertLine reads back a line produced by Line.
// A missing severity field yields SeverityUnknown. The date part of
// Timestamp is zero; only the time of day survives the round trip.
func ParseAlertLine(line string) (AlertRecord, error) {
	parts := strings.Split(strings.TrimSpace(line), FieldSeparator)
	if len(parts) < minAlertFields {
		return AlertRecord{}, fmt.Errorf("%w: got %d, want at least %d", ErrShortAlertLine, len(parts), minAlertFields)
	}

	ts, err := time.ParseInLocation(alertTimeLayout, strings.TrimSpace(parts[0]), time.Local)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("invalid alert time %q: %w", parts[0], err)
	}

	entropy, err := strconv.ParseFloat(strings.TrimPrefix(strings.TrimSpace(parts[5]), entropyPrefix), 64)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("invalid entropy %q: %w", parts[5], err)
	}

	rec := AlertRecord{
		Timestamp: ts,
		Rules:     parseRules(parts[1]),
		SourceIP:  parts[2],
		Domain:    UnescapeField(parts[3]),
		Subdomain: UnescapeField(parts[4]),
		Entropy:   entropy,
		Severity:  SeverityUnknown,
	}
	if len(parts) > minAlertFields {
		rec.Severity = ParseSeverity(strings.TrimPrefix(strings.TrimSpace(parts[6]), severityPrefix))
	}
	return rec, nil
}

func parseRules(s string) []RuleName {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	raw := strings.Split(s, RuleSeparator)
	rules := make([]RuleName, 0, len(raw))
	for _, r := range raw {
		if r = strings.TrimSpace(r); r != "" {
			rules = append(rules, RuleName(r))
		}
	}
	return rules
}

// EscapeField rewrites control bytes, '|' and '\\' as \DDD decimal escapes,
// the same notation DNS presentation format uses. Everything else, including
// multi-byte UTF-8, passes through unchanged.
func EscapeField(s string) string {
	if !strings.ContainsFunc(s, needsEscape) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c == 0x7f || c == '|' || c == '\\' {
			fmt.Fprintf(&b, "\\%03d", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// UnescapeField reverses EscapeField. Backslashes not followed by three
// digits are kept as is.
func UnescapeField(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && isDigit(s[i+1]) && isDigit(s[i+2]) && isDigit(s[i+3]) {
			if v := int(s[i+1]-'0')*100 + int(s[i+2]-'0')*10 + int(s[i+3]-'0'); v <= 0xff {
				out = append(out, byte(v))
				i += 3
				continue
			}
		}
		out = append(out, s[i])
	}
	return string(out)
}

func needsEscape(r rune) bool {
	return r < 0x20 || r == 0x7f || r == '|' || r == '\\'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
