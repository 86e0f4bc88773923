package detector

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/haukened/exfil-watch/internal/dns/common/clock"
	"github.com/haukened/exfil-watch/internal/dns/common/log"
	"github.com/haukened/exfil-watch/internal/dns/domain"
	"github.com/haukened/exfil-watch/internal/dns/repos/frequency"
	"github.com/haukened/exfil-watch/internal/dns/repos/whitelist"
	"github.com/haukened/exfil-watch/internal/dns/repos/whitelist/bloom"
	"github.com/haukened/exfil-watch/internal/dns/repos/whitelist/lru"
	"github.com/haukened/exfil-watch/internal/dns/repos/whitelist/memory"
)

var (
	testNow = time.Date(2025, 8, 13, 14, 30, 0, 0, time.Local)

	// 14 distinct characters: entropy log2(14) ~ 3.81, above the rule threshold
	// but below critical.
	mediumEntropy = "abcdefghijklmn"
	// four copies stay at the same entropy and reach 56 characters
	longMedium = strings.Repeat(mediumEntropy, 4)
	// 16 distinct characters: entropy exactly 4.0, critical on its own
	criticalEntropy = "0123456789abcdef"

	errBoom = errors.New("boom")
)

// recordingSink keeps appended alerts in order.
type recordingSink struct {
	mu      sync.Mutex
	records []domain.AlertRecord
	err     error
}

func (s *recordingSink) Append(rec domain.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingSink) all() []domain.AlertRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AlertRecord, len(s.records))
	copy(out, s.records)
	return out
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Notify(rec domain.AlertRecord) error {
	return m.Called(rec).Error(0)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(rec domain.AlertRecord) error {
	return m.Called(rec).Error(0)
}

// countingMetrics tallies calls by name.
type countingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
	alerts   map[domain.Severity]int
	sinkErr  int
	pubErr   int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{outcomes: map[string]int{}, alerts: map[domain.Severity]int{}}
}

func (m *countingMetrics) ObserveOutcome(o string) {
	m.mu.Lock()
	m.outcomes[o]++
	m.mu.Unlock()
}

func (m *countingMetrics) ObserveAlert(rec domain.AlertRecord) {
	m.mu.Lock()
	m.alerts[rec.Severity]++
	m.mu.Unlock()
}

func (m *countingMetrics) SinkError() {
	m.mu.Lock()
	m.sinkErr++
	m.mu.Unlock()
}

func (m *countingMetrics) PublishError() {
	m.mu.Lock()
	m.pubErr++
	m.mu.Unlock()
}

// recordingLogger captures messages at every level.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level  string
	msg    string
	fields map[string]any
}

func (l *recordingLogger) add(level string, fields map[string]any, msg string) {
	l.mu.Lock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: fields})
	l.mu.Unlock()
}

func (l *recordingLogger) Info(f map[string]any, m string)  { l.add("info", f, m) }
func (l *recordingLogger) Error(f map[string]any, m string) { l.add("error", f, m) }
func (l *recordingLogger) Debug(f map[string]any, m string) { l.add("debug", f, m) }
func (l *recordingLogger) Warn(f map[string]any, m string)  { l.add("warn", f, m) }
func (l *recordingLogger) Panic(f map[string]any, m string) { l.add("panic", f, m) }
func (l *recordingLogger) Fatal(f map[string]any, m string) { l.add("fatal", f, m) }

func (l *recordingLogger) messages(msg string) []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logEntry
	for _, e := range l.entries {
		if e.msg == msg {
			out = append(out, e)
		}
	}
	return out
}

var _ log.Logger = (*recordingLogger)(nil)

func newWhitelist(t *testing.T, names ...string) whitelist.Repository {
	t.Helper()
	cache, err := lru.New(64)
	require.NoError(t, err)
	repo := whitelist.NewRepository(memory.New(), cache, bloom.NewFactory(), 0.01)
	require.NoError(t, repo.UpdateAll(whitelist.RulesFromNames(names, whitelist.SourceConfig, testNow), 1, testNow.Unix()))
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

type fixture struct {
	det     *Detector
	tracker *frequency.Tracker
	sink    *recordingSink
	metrics *countingMetrics
	logger  *recordingLogger
	clock   *clock.MockClock
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	tracker, err := frequency.New(frequency.Options{Window: 60 * time.Second})
	require.NoError(t, err)

	f := &fixture{
		tracker: tracker,
		sink:    &recordingSink{},
		metrics: newCountingMetrics(),
		logger:  &recordingLogger{},
		clock:   &clock.MockClock{CurrentTime: testNow},
	}
	opts := Options{
		Policy:    domain.DefaultPolicy(),
		Whitelist: newWhitelist(t, "google.com", "cloudfront.net"),
		Tracker:   tracker,
		Sink:      f.sink,
		Metrics:   f.metrics,
		Clock:     f.clock,
		Logger:    f.logger,
	}
	if mutate != nil {
		mutate(&opts)
	}
	f.det, err = New(opts)
	require.NoError(t, err)
	return f
}

func event(ts time.Time, name string) domain.QueryEvent {
	return domain.NewQueryEvent(ts, "10.0.0.5", name)
}
