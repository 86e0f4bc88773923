package capture

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/haukened/exfil-watch/internal/dns/common/log"
	"github.com/haukened/exfil-watch/internal/dns/domain"
)

// ReplaySource reads recorded queries from a file, one per line:
//
//	<timestamp> <source_ip> <queried_name>
//
// The timestamp is RFC 3339 or unix seconds (fractions allowed). Blank lines
// and lines starting with '#' are ignored; malformed lines are counted and
// skipped. Unlike live sources, replay waits for queue space instead of
// dropping, so every recorded query is inspected.
type ReplaySource struct {
	path   string
	logger log.Logger
	stats  counters

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewReplaySource creates a replay source for path.
func NewReplaySource(path string, logger log.Logger) *ReplaySource {
	return &ReplaySource{path: path, logger: logger}
}

// Start opens the file and begins replaying it.
func (s *ReplaySource) Start(ctx context.Context, out chan<- domain.QueryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open replay file %s: %w", s.path, err)
	}

	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})

	s.logger.Info(map[string]any{
		"source":  string(SourceReplay),
		"address": s.path,
	}, "capture source started")

	s.wg.Add(1)
	go s.replay(ctx, f, s.stopCh, s.done, out)
	return nil
}

// Stop interrupts the replay and waits for it to exit.
func (s *ReplaySource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// Done is closed once the whole file has been replayed or replay was stopped.
// It is nil before Start.
func (s *ReplaySource) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Address returns the file path.
func (s *ReplaySource) Address() string {
	return s.path
}

// Stats returns the source counters.
func (s *ReplaySource) Stats() Stats {
	return s.stats.snapshot()
}

func (s *ReplaySource) replay(ctx context.Context, f *os.File, stopCh <-chan struct{}, done chan<- struct{}, out chan<- domain.QueryEvent) {
	defer s.wg.Done()
	defer close(done)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ev, err := ParseReplayLine(line)
		if err != nil {
			s.stats.malformed.Add(1)
			s.logger.Debug(map[string]any{"line": lineNum, "error": err.Error()}, "skipping replay line")
			continue
		}
		select {
		case out <- ev:
			s.stats.received.Add(1)
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn(map[string]any{"file": s.path, "error": err.Error()}, "replay read failed")
	}
	s.logger.Info(map[string]any{
		"file":      s.path,
		"events":    s.stats.received.Load(),
		"malformed": s.stats.malformed.Load(),
	}, "replay finished")
}

// ParseReplayLine parses "<timestamp> <source_ip> <name>".
func ParseReplayLine(line string) (domain.QueryEvent, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return domain.QueryEvent{}, fmt.Errorf("expected 3 fields, got %d", len(fields))
	}
	ts, err := parseReplayTime(fields[0])
	if err != nil {
		return domain.QueryEvent{}, err
	}
	return domain.NewQueryEvent(ts, fields[1], fields[2]), nil
}

func parseReplayTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	whole := int64(secs)
	frac := secs - float64(whole)
	return time.Unix(whole, int64(frac*float64(time.Second))), nil
}
