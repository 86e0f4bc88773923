package domain

import (
	"time"

	"github.com/haukened/exfil-watch/internal/dns/common/utils"
)

// UnknownSource is recorded when a capture source cannot attribute a query to an IP.
const UnknownSource = "unknown"

// QueryEvent is a single observed DNS query as handed over by a capture source.
// It is consumed synchronously by the detector and never retained.
type QueryEvent struct {
	Timestamp   time.Time
	SourceIP    string
	QueriedName string
}

// NewQueryEvent builds a QueryEvent, dropping invalid UTF-8 from the name and
// substituting UnknownSource for an empty source address.
func NewQueryEvent(ts time.Time, sourceIP, name string) QueryEvent {
	if sourceIP == "" {
		sourceIP = UnknownSource
	}
	return QueryEvent{
		Timestamp:   ts,
		SourceIP:    sourceIP,
		QueriedName: utils.ValidUTF8Name(name),
	}
}
