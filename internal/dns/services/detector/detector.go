// Package detector runs the per-query pipeline: parse, whitelist, score,
// count, evaluate and report.
package detector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/haukened/exfil-watch/internal/dns/common/clock"
	"github.com/haukened/exfil-watch/internal/dns/common/log"
	"github.com/haukened/exfil-watch/internal/dns/domain"
)

// DefaultPruneInterval is how often Run sweeps idle domains from the tracker.
const DefaultPruneInterval = 30 * time.Second

var (
	ErrNoTracker = errors.New("detector requires a frequency tracker")
	ErrNoSink    = errors.New("detector requires an alert sink")
)

// Options wires a Detector. Whitelist, Notifier, Publisher and Metrics are optional.
type Options struct {
	Policy        domain.Policy
	Whitelist     Whitelist
	Tracker       Tracker
	Sink          AlertSink
	Notifier      Notifier
	Publisher     Publisher
	Metrics       Metrics
	Clock         clock.Clock
	Logger        log.Logger
	PruneInterval time.Duration
}

// Inspection is everything measured for one event.
type Inspection struct {
	Event     domain.QueryEvent
	Timestamp time.Time
	Parsed    domain.ParsedName
	Decision  domain.AllowDecision
	Entropy   float64
	Length    int
	Count     int
	Verdict   domain.Verdict
	Outcome   Outcome
}

// Detector scores query events and reports the ones that look like tunneling.
type Detector struct {
	policy        domain.Policy
	whitelist     Whitelist
	tracker       Tracker
	sink          AlertSink
	notifier      Notifier
	publisher     Publisher
	metrics       Metrics
	clock         clock.Clock
	logger        log.Logger
	pruneInterval time.Duration

	// latest event time seen, in unix nanoseconds; drives pruning
	highWater atomic.Int64
}

// New validates opts and returns a Detector.
func New(opts Options) (*Detector, error) {
	if err := opts.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	if opts.Tracker == nil {
		return nil, ErrNoTracker
	}
	if opts.Sink == nil {
		return nil, ErrNoSink
	}

	d := &Detector{
		policy:        opts.Policy,
		whitelist:     opts.Whitelist,
		tracker:       opts.Tracker,
		sink:          opts.Sink,
		notifier:      opts.Notifier,
		publisher:     opts.Publisher,
		metrics:       opts.Metrics,
		clock:         opts.Clock,
		logger:        opts.Logger,
		pruneInterval: opts.PruneInterval,
	}
	if d.metrics == nil {
		d.metrics = noopMetrics{}
	}
	if d.clock == nil {
		d.clock = clock.RealClock{}
	}
	if d.logger == nil {
		d.logger = log.GetLogger()
	}
	if d.pruneInterval <= 0 {
		d.pruneInterval = DefaultPruneInterval
	}
	return d, nil
}

// Policy returns the thresholds in use.
func (d *Detector) Policy() domain.Policy {
	return d.policy
}

// Inspect runs the detection pipeline for ev without reporting anything.
// It returns false when the event was filtered before scoring.
//
// Events are timed by their own timestamp so replayed traffic keeps its
// original spacing; the clock only stands in for events without one.
func (d *Detector) Inspect(ev domain.QueryEvent) (Inspection, bool) {
	ins := Inspection{Event: ev, Timestamp: ev.Timestamp}
	if ins.Timestamp.IsZero() {
		ins.Timestamp = d.clock.Now()
	}

	parsed, ok := domain.ParseName(ev.QueriedName)
	if !ok {
		ins.Outcome = OutcomeFilteredMalformed
		return ins, false
	}
	ins.Parsed = parsed
	base := strings.ToLower(parsed.BaseDomain)

	if d.whitelist != nil {
		ins.Decision = d.whitelist.Decide(base)
		if ins.Decision.Allowed {
			ins.Outcome = OutcomeFilteredWhitelist
			return ins, false
		}
	}

	if !parsed.HasSubdomain() {
		ins.Outcome = OutcomeFilteredNoSubdomain
		return ins, false
	}

	d.advance(ins.Timestamp)
	ins.Entropy = domain.Entropy(parsed.Subdomain)
	ins.Length = domain.SubdomainLength(parsed.Subdomain)
	ins.Count = d.tracker.Observe(base, ins.Timestamp)
	ins.Verdict = domain.Evaluate(d.policy, domain.Signals{
		Entropy:         ins.Entropy,
		SubdomainLength: ins.Length,
		WindowCount:     ins.Count,
	})

	ins.Outcome = OutcomeClean
	if ins.Verdict.Alert {
		ins.Outcome = OutcomeAlerted
	}
	return ins, true
}

// Handle inspects ev and reports an alert if one is raised. Only a sink
// failure is returned; notifier and publisher failures are logged and counted.
// Processing of later events is never affected by either.
func (d *Detector) Handle(ev domain.QueryEvent) (Inspection, error) {
	ins, _ := d.Inspect(ev)
	d.metrics.ObserveOutcome(ins.Outcome.String())
	d.observe(ins)

	if ins.Outcome != OutcomeAlerted {
		return ins, nil
	}

	rec := domain.NewAlertRecord(ins.Timestamp, ev, ins.Parsed, ins.Entropy, ins.Verdict)
	d.metrics.ObserveAlert(rec)

	var sinkErr error
	if err := d.sink.Append(rec); err != nil {
		sinkErr = fmt.Errorf("failed to append alert: %w", err)
		d.metrics.SinkError()
		d.logger.Error(map[string]any{
			"domain": rec.Domain,
			"error":  err,
		}, "failed to append alert")
	}

	if d.notifier != nil {
		if err := d.notifier.Notify(rec); err != nil {
			d.metrics.PublishError()
			d.logger.Warn(map[string]any{"error": err}, "failed to print alert")
		}
	}

	if d.publisher != nil {
		if err := d.publisher.Publish(rec); err != nil {
			d.metrics.PublishError()
			d.logger.Warn(map[string]any{"error": err}, "failed to publish alert")
		}
	}

	return ins, sinkErr
}

// Run handles events from in, one at a time and in arrival order, until in
// is closed. Cancelling ctx stops pruning but events already queued are still
// handled; the caller closes in once its producers have stopped.
func (d *Detector) Run(ctx context.Context, in <-chan domain.QueryEvent) {
	ticker := time.NewTicker(d.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-in:
			if !ok {
				return
			}
			_, _ = d.Handle(ev)
		case <-ticker.C:
			d.Prune()
		case <-ctx.Done():
			d.drain(in)
			return
		}
	}
}

// Prune drops tracker windows that are empty as of the latest event time.
func (d *Detector) Prune() int {
	hw := d.highWater.Load()
	if hw == 0 {
		return 0
	}
	removed := d.tracker.Prune(time.Unix(0, hw))
	if removed > 0 {
		d.logger.Debug(map[string]any{"removed": removed}, "pruned idle domains")
	}
	return removed
}

func (d *Detector) drain(in <-chan domain.QueryEvent) {
	n := 0
	for ev := range in {
		_, _ = d.Handle(ev)
		n++
	}
	if n > 0 {
		d.logger.Info(map[string]any{"events": n}, "drained queued events")
	}
}

// advance raises the high-water mark to ts if ts is later.
func (d *Detector) advance(ts time.Time) {
	n := ts.UnixNano()
	for {
		cur := d.highWater.Load()
		if n <= cur || d.highWater.CompareAndSwap(cur, n) {
			return
		}
	}
}

// observe writes the per-query debug line.
func (d *Detector) observe(ins Inspection) {
	d.logger.Debug(map[string]any{
		"time":      ins.Timestamp,
		"src_ip":    ins.Event.SourceIP,
		"name":      ins.Event.QueriedName,
		"base":      ins.Parsed.BaseDomain,
		"subdomain": ins.Parsed.Subdomain,
		"entropy":   ins.Entropy,
		"count":     ins.Count,
		"outcome":   ins.Outcome.String(),
	}, "dns query observed")
}
