package capture

import (
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"

	"github.com/haukened/exfil-watch/internal/dns/common/clock"
	"github.com/haukened/exfil-watch/internal/dns/domain"
)

var testNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestClock() *clock.MockClock {
	return &clock.MockClock{CurrentTime: testNow}
}

func packQuery(t *testing.T, name string) []byte {
	t.Helper()
	m := new(dns.Msg)
	m.SetQuestion(name, dns.TypeA)
	data, err := m.Pack()
	require.NoError(t, err)
	return data
}

func packResponse(t *testing.T, name string) []byte {
	t.Helper()
	m := new(dns.Msg)
	m.SetQuestion(name, dns.TypeA)
	m.Response = true
	data, err := m.Pack()
	require.NoError(t, err)
	return data
}

func receive(t *testing.T, ch <-chan domain.QueryEvent) domain.QueryEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return domain.QueryEvent{}
	}
}
