package domain

import (
	"fmt"
	"strings"
	"time"
)

// RuleName identifies a detection rule. The string form is what appears in the alert log.
type RuleName string

const (
	RuleHighEntropy   RuleName = "HIGH ENTROPY SUBDOMAIN"
	RuleLongSubdomain RuleName = "LONG SUBDOMAIN"
	RuleHighFrequency RuleName = "HIGH FREQUENCY"
)

// RuleSeparator joins triggered rule names in the alert log.
const RuleSeparator = " + "

// Severity labels a raised alert.
type Severity string

const (
	SeverityMedium   Severity = "MEDIUM"
	SeverityCritical Severity = "CRITICAL"
	// SeverityUnknown is used when reading log lines written without a severity field.
	SeverityUnknown Severity = "N/A"
)

// ParseSeverity converts a logged severity string, returning SeverityUnknown
// for anything unrecognized.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToUpper(strings.TrimSpace(s))) {
	case SeverityMedium:
		return SeverityMedium
	case SeverityCritical:
		return SeverityCritical
	default:
		return SeverityUnknown
	}
}

// Policy holds the tuned detection thresholds.
type Policy struct {
	EntropyThreshold   float64       // rule A fires at or above this entropy
	CriticalEntropy    float64       // a single hit at or above this entropy alerts as CRITICAL
	LengthThreshold    int           // rule B fires at or above this many characters
	FrequencyThreshold int           // rule C fires at or above this many queries per window
	Window             time.Duration // trailing window used by the frequency tracker
}

// DefaultPolicy returns the thresholds the detector ships with.
func DefaultPolicy() Policy {
	return Policy{
		EntropyThreshold:   3.8,
		CriticalEntropy:    4.0,
		LengthThreshold:    52,
		FrequencyThreshold: 20,
		Window:             60 * time.Second,
	}
}

// Validate rejects policies that could never or would always fire.
func (p Policy) Validate() error {
	if p.EntropyThreshold <= 0 {
		return fmt.Errorf("entropy threshold must be positive, got %v", p.EntropyThreshold)
	}
	if p.CriticalEntropy < p.EntropyThreshold {
		return fmt.Errorf("critical entropy %v must not be below entropy threshold %v", p.CriticalEntropy, p.EntropyThreshold)
	}
	if p.LengthThreshold <= 0 {
		return fmt.Errorf("length threshold must be positive, got %d", p.LengthThreshold)
	}
	if p.FrequencyThreshold <= 0 {
		return fmt.Errorf("frequency threshold must be positive, got %d", p.FrequencyThreshold)
	}
	if p.Window <= 0 {
		return fmt.Errorf("window must be positive, got %v", p.Window)
	}
	return nil
}

// Signals are the raw measurements taken for one query.
type Signals struct {
	Entropy         float64
	SubdomainLength int
	WindowCount     int
}

// RuleOutcome lists the rules that fired, in rule order, and how many did.
type RuleOutcome struct {
	Triggered     []RuleName
	SeverityScore int
}

// Has reports whether r fired.
func (o RuleOutcome) Has(r RuleName) bool {
	for _, t := range o.Triggered {
		if t == r {
			return true
		}
	}
	return false
}

// Description joins the triggered rule names for the alert log.
func (o RuleOutcome) Description() string {
	names := make([]string, len(o.Triggered))
	for i, r := range o.Triggered {
		names[i] = string(r)
	}
	return strings.Join(names, RuleSeparator)
}

// Verdict is the decision for one query.
// Severity is only meaningful when Alert is true.
type Verdict struct {
	RuleOutcome
	Alert    bool
	Severity Severity
}

// Evaluate applies policy p to the measured signals.
func Evaluate(p Policy, s Signals) Verdict {
	return Decide(
		s.Entropy >= p.EntropyThreshold,
		s.SubdomainLength >= p.LengthThreshold,
		s.WindowCount >= p.FrequencyThreshold,
		s.Entropy,
		p.CriticalEntropy,
	)
}

// Decide combines the three rule results into a verdict.
//
// Two or more rules raise an alert. A single rule only does when the entropy
// reaches criticalEntropy; lone lower-confidence hits are too common in
// legitimate traffic. All three rules, or critical entropy, make it CRITICAL.
func Decide(highEntropy, longSubdomain, highFrequency bool, entropy, criticalEntropy float64) Verdict {
	var out RuleOutcome
	if highEntropy {
		out.Triggered = append(out.Triggered, RuleHighEntropy)
	}
	if longSubdomain {
		out.Triggered = append(out.Triggered, RuleLongSubdomain)
	}
	if highFrequency {
		out.Triggered = append(out.Triggered, RuleHighFrequency)
	}
	out.SeverityScore = len(out.Triggered)

	critical := entropy >= criticalEntropy
	v := Verdict{RuleOutcome: out}
	if out.SeverityScore < 2 && !critical {
		return v
	}

	v.Alert = true
	if out.SeverityScore == 3 || critical {
		v.Severity = SeverityCritical
	} else {
		v.Severity = SeverityMedium
	}
	return v
}
