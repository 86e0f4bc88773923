package domain

import "testing"

func TestParseName(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantOK    bool
		wantFull  string
		wantBase  string
		wantSub   string
		hasSubdom bool
	}{
		{
			name:   "empty string",
			input:  "",
			wantOK: false,
		},
		{
			name:   "single label",
			input:  "localhost",
			wantOK: false,
		},
		{
			name:   "single label with trailing dot",
			input:  "localhost.",
			wantOK: false,
		},
		{
			name:   "root only",
			input:  ".",
			wantOK: false,
		},
		{
			name:     "two labels",
			input:    "example.com",
			wantOK:   true,
			wantFull: "example.com",
			wantBase: "example.com",
			wantSub:  "",
		},
		{
			name:     "two labels with trailing dot",
			input:    "example.com.",
			wantOK:   true,
			wantFull: "example.com",
			wantBase: "example.com",
			wantSub:  "",
		},
		{
			name:      "three labels",
			input:     "mail.google.com",
			wantOK:    true,
			wantFull:  "mail.google.com",
			wantBase:  "google.com",
			wantSub:   "mail",
			hasSubdom: true,
		},
		{
			name:      "deep name keeps every preceding label",
			input:     "a.b.c.evil.net.",
			wantOK:    true,
			wantFull:  "a.b.c.evil.net",
			wantBase:  "evil.net",
			wantSub:   "a.b.c",
			hasSubdom: true,
		},
		{
			name:      "whitelisted name embedded in subdomain",
			input:     "google.com.evil.net",
			wantOK:    true,
			wantFull:  "google.com.evil.net",
			wantBase:  "evil.net",
			wantSub:   "google.com",
			hasSubdom: true,
		},
		{
			name:      "no public suffix awareness",
			input:     "www.example.co.uk",
			wantOK:    true,
			wantFull:  "www.example.co.uk",
			wantBase:  "co.uk",
			wantSub:   "www.example",
			hasSubdom: true,
		},
		{
			name:      "case is preserved",
			input:     "aGVsbG8.Evil.NET",
			wantOK:    true,
			wantFull:  "aGVsbG8.Evil.NET",
			wantBase:  "Evil.NET",
			wantSub:   "aGVsbG8",
			hasSubdom: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseName(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseName(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if !ok {
				if got != (ParsedName{}) {
					t.Errorf("ParseName(%q) = %+v, want zero value on failure", tt.input, got)
				}
				return
			}
			if got.Full != tt.wantFull {
				t.Errorf("Full = %q, want %q", got.Full, tt.wantFull)
			}
			if got.BaseDomain != tt.wantBase {
				t.Errorf("BaseDomain = %q, want %q", got.BaseDomain, tt.wantBase)
			}
			if got.Subdomain != tt.wantSub {
				t.Errorf("Subdomain = %q, want %q", got.Subdomain, tt.wantSub)
			}
			if got.HasSubdomain() != tt.hasSubdom {
				t.Errorf("HasSubdomain() = %v, want %v", got.HasSubdomain(), tt.hasSubdom)
			}
		})
	}
}
