package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_Scenarios(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name      string
		signals   Signals
		wantRules []RuleName
		wantScore int
		wantAlert bool
		wantSev   Severity
	}{
		{
			name:      "entropy and length without frequency is medium",
			signals:   Signals{Entropy: 3.9, SubdomainLength: 60, WindowCount: 3},
			wantRules: []RuleName{RuleHighEntropy, RuleLongSubdomain},
			wantScore: 2,
			wantAlert: true,
			wantSev:   SeverityMedium,
		},
		{
			name:      "single very high entropy hit is critical",
			signals:   Signals{Entropy: 4.2, SubdomainLength: 10, WindowCount: 1},
			wantRules: []RuleName{RuleHighEntropy},
			wantScore: 1,
			wantAlert: true,
			wantSev:   SeverityCritical,
		},
		{
			name:      "frequency alone does not alert",
			signals:   Signals{Entropy: 2.1, SubdomainLength: 8, WindowCount: 25},
			wantRules: []RuleName{RuleHighFrequency},
			wantScore: 1,
			wantAlert: false,
		},
		{
			name:      "all three rules are critical",
			signals:   Signals{Entropy: 3.85, SubdomainLength: 70, WindowCount: 20},
			wantRules: []RuleName{RuleHighEntropy, RuleLongSubdomain, RuleHighFrequency},
			wantScore: 3,
			wantAlert: true,
			wantSev:   SeverityCritical,
		},
		{
			name:      "nothing fires",
			signals:   Signals{Entropy: 1.5, SubdomainLength: 4, WindowCount: 1},
			wantScore: 0,
			wantAlert: false,
		},
		{
			name:      "entropy alone below critical does not alert",
			signals:   Signals{Entropy: 3.95, SubdomainLength: 20, WindowCount: 1},
			wantRules: []RuleName{RuleHighEntropy},
			wantScore: 1,
			wantAlert: false,
		},
		{
			name:      "length alone does not alert",
			signals:   Signals{Entropy: 3.0, SubdomainLength: 80, WindowCount: 1},
			wantRules: []RuleName{RuleLongSubdomain},
			wantScore: 1,
			wantAlert: false,
		},
		{
			name:      "length and frequency is medium",
			signals:   Signals{Entropy: 3.0, SubdomainLength: 52, WindowCount: 20},
			wantRules: []RuleName{RuleLongSubdomain, RuleHighFrequency},
			wantScore: 2,
			wantAlert: true,
			wantSev:   SeverityMedium,
		},
		{
			name:      "thresholds are inclusive",
			signals:   Signals{Entropy: 3.8, SubdomainLength: 52, WindowCount: 19},
			wantRules: []RuleName{RuleHighEntropy, RuleLongSubdomain},
			wantScore: 2,
			wantAlert: true,
			wantSev:   SeverityMedium,
		},
		{
			name:      "critical entropy boundary is inclusive",
			signals:   Signals{Entropy: 4.0, SubdomainLength: 1, WindowCount: 1},
			wantRules: []RuleName{RuleHighEntropy},
			wantScore: 1,
			wantAlert: true,
			wantSev:   SeverityCritical,
		},
		{
			name:      "critical entropy upgrades a two rule hit",
			signals:   Signals{Entropy: 4.5, SubdomainLength: 60, WindowCount: 1},
			wantRules: []RuleName{RuleHighEntropy, RuleLongSubdomain},
			wantScore: 2,
			wantAlert: true,
			wantSev:   SeverityCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Evaluate(p, tt.signals)
			assert.Equal(t, tt.wantRules, v.Triggered)
			assert.Equal(t, tt.wantScore, v.SeverityScore)
			assert.Equal(t, tt.wantAlert, v.Alert)
			if tt.wantAlert {
				assert.Equal(t, tt.wantSev, v.Severity)
			} else {
				assert.Empty(t, v.Severity)
			}
		})
	}
}

func TestEvaluate_CustomPolicy(t *testing.T) {
	p := Policy{
		EntropyThreshold:   3.0,
		CriticalEntropy:    3.5,
		LengthThreshold:    10,
		FrequencyThreshold: 5,
		Window:             10 * time.Second,
	}
	v := Evaluate(p, Signals{Entropy: 3.6, SubdomainLength: 3, WindowCount: 1})
	assert.True(t, v.Alert)
	assert.Equal(t, SeverityCritical, v.Severity)

	v = Evaluate(p, Signals{Entropy: 1.0, SubdomainLength: 10, WindowCount: 5})
	assert.True(t, v.Alert)
	assert.Equal(t, SeverityMedium, v.Severity)
}

func TestRuleOutcome_DescriptionAndHas(t *testing.T) {
	o := RuleOutcome{Triggered: []RuleName{RuleHighEntropy, RuleHighFrequency}, SeverityScore: 2}
	assert.Equal(t, "HIGH ENTROPY SUBDOMAIN + HIGH FREQUENCY", o.Description())
	assert.True(t, o.Has(RuleHighFrequency))
	assert.False(t, o.Has(RuleLongSubdomain))
	assert.Equal(t, "", RuleOutcome{}.Description())
}

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, SeverityMedium, ParseSeverity("MEDIUM"))
	assert.Equal(t, SeverityCritical, ParseSeverity(" critical "))
	assert.Equal(t, SeverityUnknown, ParseSeverity(""))
	assert.Equal(t, SeverityUnknown, ParseSeverity("HIGH"))
}

func TestPolicy_Validate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())

	tests := []struct {
		name   string
		mutate func(p *Policy)
	}{
		{"zero entropy threshold", func(p *Policy) { p.EntropyThreshold = 0 }},
		{"critical below threshold", func(p *Policy) { p.CriticalEntropy = 3.0 }},
		{"zero length threshold", func(p *Policy) { p.LengthThreshold = 0 }},
		{"negative frequency threshold", func(p *Policy) { p.FrequencyThreshold = -1 }},
		{"zero window", func(p *Policy) { p.Window = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}
