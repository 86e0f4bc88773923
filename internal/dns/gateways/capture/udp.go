package capture

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/haukened/exfil-watch/internal/dns/common/clock"
	"github.com/haukened/exfil-watch/internal/dns/common/log"
	"github.com/haukened/exfil-watch/internal/dns/domain"
	"github.com/haukened/exfil-watch/internal/dns/gateways/wire"
)

// maxPacketSize fits EDNS-sized queries.
const maxPacketSize = 4096

// UDPSource receives copies of DNS query packets (port mirroring, a tee
// target, or a forwarder) and emits one event per decodable query. It never
// answers.
type UDPSource struct {
	addr    string
	decoder wire.QueryDecoder
	clock   clock.Clock
	logger  log.Logger
	stats   counters

	mu      sync.Mutex
	conn    *net.UDPConn
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewUDPSource creates a UDP source bound to addr on Start.
func NewUDPSource(addr string, decoder wire.QueryDecoder, clk clock.Clock, logger log.Logger) *UDPSource {
	return &UDPSource{
		addr:    addr,
		decoder: decoder,
		clock:   clk,
		logger:  logger,
	}
}

// Start binds the socket and starts the read loop.
func (s *UDPSource) Start(ctx context.Context, out chan<- domain.QueryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	udpAddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s: %w", s.addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to bind UDP socket on %s: %w", s.addr, err)
	}

	s.conn = conn
	s.running = true
	s.stopCh = make(chan struct{})

	s.logger.Info(map[string]any{
		"source":  string(SourceUDP),
		"address": conn.LocalAddr().String(),
	}, "capture source started")

	s.wg.Add(1)
	go s.listenLoop(conn, s.stopCh, out)
	go stopOnCancel(ctx, s.stopCh, s.Stop)
	return nil
}

// Stop closes the socket and waits for the read loop to exit.
func (s *UDPSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	conn := s.conn
	s.mu.Unlock()

	closeErr := conn.Close()
	s.wg.Wait()

	s.logger.Info(map[string]any{
		"source":  string(SourceUDP),
		"address": s.addr,
	}, "capture source stopped")
	return closeErr
}

// Address returns the bound address while running, else the configured one.
func (s *UDPSource) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil && s.running {
		return s.conn.LocalAddr().String()
	}
	return s.addr
}

// Stats returns the source counters.
func (s *UDPSource) Stats() Stats {
	return s.stats.snapshot()
}

func (s *UDPSource) listenLoop(conn *net.UDPConn, stopCh <-chan struct{}, out chan<- domain.QueryEvent) {
	defer s.wg.Done()
	buffer := make([]byte, maxPacketSize)

	for {
		n, from, err := conn.ReadFromUDP(buffer)
		if err != nil {
			select {
			case <-stopCh:
				return
			default:
			}
			s.logger.Warn(map[string]any{"error": err.Error()}, "failed to read UDP packet")
			continue
		}
		s.handlePacket(buffer[:n], from, out)
	}
}

func (s *UDPSource) handlePacket(data []byte, from *net.UDPAddr, out chan<- domain.QueryEvent) {
	q, err := s.decoder.DecodeQuery(data)
	if err != nil {
		s.stats.malformed.Add(1)
		s.logger.Debug(map[string]any{
			"client": from.String(),
			"size":   len(data),
			"error":  err.Error(),
		}, "failed to decode DNS query")
		return
	}
	src := domain.UnknownSource
	if from != nil && from.IP != nil {
		src = from.IP.String()
	}
	s.stats.offer(out, domain.NewQueryEvent(s.clock.Now(), src, q.Name))
}

// stopOnCancel calls stop when ctx ends, unless stopCh closes first.
func stopOnCancel(ctx context.Context, stopCh <-chan struct{}, stop func() error) {
	select {
	case <-ctx.Done():
		_ = stop()
	case <-stopCh:
	}
}
