package detector

import (
	"time"

	"github.com/haukened/exfil-watch/internal/dns/domain"
)

// Whitelist decides whether a base domain is trusted and never scored.
type Whitelist interface {
	Decide(base string) domain.AllowDecision
}

// Tracker counts queries per base domain over a sliding window.
type Tracker interface {
	Observe(base string, now time.Time) int
	Prune(now time.Time) int
}

// AlertSink persists raised alerts in the order they are handed over.
type AlertSink interface {
	Append(rec domain.AlertRecord) error
}

// Notifier shows an alert to the operator as it happens.
type Notifier interface {
	Notify(rec domain.AlertRecord) error
}

// Publisher forwards alerts to other systems.
type Publisher interface {
	Publish(rec domain.AlertRecord) error
}

// Metrics receives per-query and per-alert counts.
type Metrics interface {
	ObserveOutcome(outcome string)
	ObserveAlert(rec domain.AlertRecord)
	SinkError()
	PublishError()
}

type noopMetrics struct{}

func (noopMetrics) ObserveOutcome(string)           {}
func (noopMetrics) ObserveAlert(domain.AlertRecord) {}
func (noopMetrics) SinkError()                      {}
func (noopMetrics) PublishError()                   {}
