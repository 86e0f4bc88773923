package whitelist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/haukened/exfil-watch/internal/dns/domain"
)

func TestRulesFromNames(t *testing.T) {
	now := time.Unix(1723550000, 0)
	got := RulesFromNames([]string{"Google.COM.", " ", "", "redd.it"}, SourceConfig, now)

	assert.Equal(t, []domain.AllowRule{
		{Name: "google.com", Source: SourceConfig, AddedAt: now},
		{Name: "redd.it", Source: SourceConfig, AddedAt: now},
	}, got)
}

func TestMerge(t *testing.T) {
	now := time.Unix(1, 0)
	a := []domain.AllowRule{{Name: "google.com", Source: "config", AddedAt: now}}
	b := []domain.AllowRule{
		{Name: "google.com", Source: "file", AddedAt: now},
		{Name: "apple.com", Source: "file", AddedAt: now},
	}

	got := Merge(a, b)
	assert.Len(t, got, 2)
	assert.Equal(t, "config", got[0].Source)
	assert.Equal(t, "apple.com", got[1].Name)

	assert.Empty(t, Merge())
}
