package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	dnstap "github.com/dnstap/golang-dnstap"
	framestream "github.com/farsightsec/golang-framestream"
	"google.golang.org/protobuf/proto"

	"github.com/haukened/exfil-watch/internal/dns/common/clock"
	"github.com/haukened/exfil-watch/internal/dns/common/log"
	"github.com/haukened/exfil-watch/internal/dns/domain"
	"github.com/haukened/exfil-watch/internal/dns/gateways/wire"
)

// dnstapContentType is the frame stream content type dnstap senders announce.
var dnstapContentType = []byte("protobuf:dnstap.Dnstap")

// socketMode lets the resolver's group write to the socket.
const socketMode = 0o660

// DnstapSource accepts dnstap frame streams from a resolver (unbound, knot,
// dnsdist, coredns) on a unix socket. Only query messages are turned into
// events; responses are ignored.
type DnstapSource struct {
	path    string
	decoder wire.QueryDecoder
	clock   clock.Clock
	logger  log.Logger
	stats   counters

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewDnstapSource creates a dnstap source listening on the unix socket path.
func NewDnstapSource(path string, decoder wire.QueryDecoder, clk clock.Clock, logger log.Logger) *DnstapSource {
	return &DnstapSource{
		path:    path,
		decoder: decoder,
		clock:   clk,
		logger:  logger,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start removes a stale socket file, listens, and starts accepting senders.
func (s *DnstapSource) Start(ctx context.Context, out chan<- domain.QueryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	_ = os.Remove(s.path)
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("failed to listen on socket %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, socketMode); err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to chmod socket %s: %w", s.path, err)
	}

	s.listener = ln
	s.running = true
	s.stopCh = make(chan struct{})

	s.logger.Info(map[string]any{
		"source":  string(SourceDnstap),
		"address": s.path,
	}, "capture source started")

	s.wg.Add(1)
	go s.acceptLoop(ln, out)
	go stopOnCancel(ctx, s.stopCh, s.Stop)
	return nil
}

// Stop closes the listener and every open sender connection, then waits
// for all handlers to return.
func (s *DnstapSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	err := s.listener.Close()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	_ = os.Remove(s.path)

	s.logger.Info(map[string]any{
		"source":  string(SourceDnstap),
		"address": s.path,
	}, "capture source stopped")
	return err
}

// Address returns the socket path.
func (s *DnstapSource) Address() string {
	return s.path
}

// Stats returns the source counters.
func (s *DnstapSource) Stats() Stats {
	return s.stats.snapshot()
}

func (s *DnstapSource) acceptLoop(ln net.Listener, out chan<- domain.QueryEvent) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			s.logger.Warn(map[string]any{"error": err.Error()}, "dnstap accept failed")
			return
		}
		if !s.track(conn) {
			_ = conn.Close()
			return
		}
		s.wg.Add(1)
		go s.handleConn(conn, out)
	}
}

// track registers conn for Stop; false means the source is already stopping.
func (s *DnstapSource) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *DnstapSource) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *DnstapSource) handleConn(conn net.Conn, out chan<- domain.QueryEvent) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	dec, err := framestream.NewDecoder(conn, &framestream.DecoderOptions{
		ContentType:   dnstapContentType,
		Bidirectional: true,
	})
	if err != nil {
		s.logger.Warn(map[string]any{"error": err.Error()}, "dnstap handshake failed")
		return
	}

	for {
		frame, err := dec.Decode()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug(map[string]any{"error": err.Error()}, "dnstap stream ended")
			}
			return
		}
		s.handleFrame(frame, out)
	}
}

// handleFrame decodes one dnstap protobuf frame and emits an event for queries.
func (s *DnstapSource) handleFrame(frame []byte, out chan<- domain.QueryEvent) {
	var dt dnstap.Dnstap
	if err := proto.Unmarshal(frame, &dt); err != nil {
		s.stats.malformed.Add(1)
		return
	}
	msg := dt.GetMessage()
	if msg == nil || !isQueryType(msg.GetType()) {
		return
	}
	if len(msg.GetQueryMessage()) == 0 {
		s.stats.malformed.Add(1)
		return
	}

	q, err := s.decoder.DecodeQuery(msg.GetQueryMessage())
	if err != nil {
		s.stats.malformed.Add(1)
		return
	}

	src := domain.UnknownSource
	if addr := msg.GetQueryAddress(); len(addr) == net.IPv4len || len(addr) == net.IPv6len {
		src = net.IP(addr).String()
	}

	ts := s.clock.Now()
	if msg.QueryTimeSec != nil {
		ts = time.Unix(int64(msg.GetQueryTimeSec()), int64(msg.GetQueryTimeNsec()))
	}

	s.stats.offer(out, domain.NewQueryEvent(ts, src, q.Name))
}

func isQueryType(t dnstap.Message_Type) bool {
	switch t {
	case dnstap.Message_CLIENT_QUERY, dnstap.Message_RESOLVER_QUERY, dnstap.Message_FORWARDER_QUERY:
		return true
	default:
		return false
	}
}
