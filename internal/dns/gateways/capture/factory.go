package capture

import (
	"fmt"

	"github.com/haukened/exfil-watch/internal/dns/common/clock"
	"github.com/haukened/exfil-watch/internal/dns/common/log"
	"github.com/haukened/exfil-watch/internal/dns/gateways/wire"
)

// NewSource creates a capture source of the given type. addr is a UDP
// address, a unix socket path, or a file path depending on the type.
func NewSource(kind SourceType, addr string, decoder wire.QueryDecoder, clk clock.Clock, logger log.Logger) (Source, error) {
	switch kind {
	case SourceUDP:
		return NewUDPSource(addr, decoder, clk, logger), nil
	case SourceDnstap:
		return NewDnstapSource(addr, decoder, clk, logger), nil
	case SourceReplay:
		return NewReplaySource(addr, logger), nil
	default:
		return nil, fmt.Errorf("unsupported capture source: %s", kind)
	}
}

// GetSupportedSources returns the source types NewSource can build.
func GetSupportedSources() []SourceType {
	return []SourceType{SourceUDP, SourceDnstap, SourceReplay}
}

// IsSourceSupported reports whether kind is a supported source type.
func IsSourceSupported(kind SourceType) bool {
	for _, s := range GetSupportedSources() {
		if s == kind {
			return true
		}
	}
	return false
}
