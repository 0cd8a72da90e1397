// Package portmap is the registration port server (portmap v2, GETPORT
// only) VXI-11 clients query before connecting to the core channel.
//
// The mapper answers only while the core channel can accept another link.
// When every slot is taken requests are dropped without a reply, which
// lets discovery tools skip a busy gateway.
package portmap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/gpibgate/internal/logger"
	"github.com/marmos91/gpibgate/internal/protocol/rpc"
	"github.com/marmos91/gpibgate/internal/ratelimiter"
	"github.com/marmos91/gpibgate/pkg/adapter"
	"github.com/marmos91/gpibgate/pkg/metrics"
)

// maxMessageSize bounds one port mapper request: a call header with two
// maximum-size auth bodies plus the mapping.
const maxMessageSize = 1024

// Adapter serves GETPORT over UDP and TCP on the same port.
type Adapter struct {
	config    Config
	allocator Allocator
	metrics   metrics.PortmapMetrics
	limiter   *ratelimiter.Limiter

	// socketMu orders storing the sockets against closing shutdown.
	socketMu  sync.Mutex
	udpConn   net.PacketConn
	listener  net.Listener
	boundPort atomic.Int32

	workers     sync.WaitGroup
	tcpConns    sync.Map
	tcpCount    atomic.Int32
	activeConns sync.WaitGroup

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// New creates a port mapper answering for allocator.
//
// Panics if config validation fails or allocator is nil.
func New(config Config, allocator Allocator, m metrics.PortmapMetrics) *Adapter {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		panic(fmt.Sprintf("invalid portmap config: %v", err))
	}
	if allocator == nil {
		panic("portmap: nil allocator")
	}
	if m == nil {
		m = metrics.NewNoopPortmapMetrics()
	}

	return &Adapter{
		config:    config,
		allocator: allocator,
		metrics:   m,
		limiter:   ratelimiter.New(config.RateLimit, config.RateBurst),
		shutdown:  make(chan struct{}),
	}
}

// Serve binds the configured transports and blocks until ctx is cancelled.
func (s *Adapter) Serve(ctx context.Context) error {
	var udpConn net.PacketConn
	var listener net.Listener
	var err error

	addr := fmt.Sprintf(":%d", s.config.Port)
	if !s.config.DisableUDP {
		udpConn, err = net.ListenPacket("udp", addr)
		if err != nil {
			return fmt.Errorf("failed to create portmap UDP socket on port %d: %w", s.config.Port, err)
		}
	}
	if !s.config.DisableTCP {
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			if udpConn != nil {
				_ = udpConn.Close()
			}
			return fmt.Errorf("failed to create portmap TCP listener on port %d: %w", s.config.Port, err)
		}
	}

	return s.ServeConns(ctx, udpConn, listener)
}

// ServeConns serves on already bound sockets. Either may be nil.
func (s *Adapter) ServeConns(ctx context.Context, udpConn net.PacketConn, listener net.Listener) error {
	if udpConn == nil && listener == nil {
		return errors.New("portmap: no socket to serve")
	}

	if !s.setSockets(udpConn, listener) {
		logger.Debug("Portmap stopped before serving, closing sockets")
		closeSockets(udpConn, listener)
		return nil
	}

	if udpConn != nil {
		if addr, ok := udpConn.LocalAddr().(*net.UDPAddr); ok {
			s.boundPort.Store(int32(addr.Port))
		}
		logger.Info("Portmap listening on udp %s", udpConn.LocalAddr())
		s.workers.Add(1)
		go func() {
			defer s.workers.Done()
			s.serveUDP(udpConn)
		}()
	}

	if listener != nil {
		if addr, ok := listener.Addr().(*net.TCPAddr); ok {
			s.boundPort.Store(int32(addr.Port))
		}
		logger.Info("Portmap listening on tcp %s", listener.Addr())
		s.workers.Add(1)
		go func() {
			defer s.workers.Done()
			s.acceptTCP(listener)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("Portmap shutdown signal received: %v", ctx.Err())
	case <-s.shutdown:
	}
	s.initiateShutdown()

	return s.waitShutdown()
}

func (s *Adapter) serveUDP(conn net.PacketConn) {
	buf := make([]byte, maxMessageSize)

	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Debug("Portmap UDP read error: %v", err)
			continue
		}

		reply, result := s.handleCall(buf[:n], sourceKey(from))
		s.metrics.RecordLookup("udp", result)
		if reply == nil {
			continue
		}

		if _, err := conn.WriteTo(reply, from); err != nil {
			logger.Debug("Portmap UDP reply to %s failed: %v", from, err)
		}
	}
}

func (s *Adapter) acceptTCP(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Debug("Portmap accept error: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if int(s.tcpCount.Load()) >= s.config.MaxConnections {
			logger.Debug("Portmap connection from %s rejected: limit reached", conn.RemoteAddr())
			_ = conn.Close()
			continue
		}

		s.tcpCount.Add(1)
		s.activeConns.Add(1)
		addr := conn.RemoteAddr().String()
		s.tcpConns.Store(addr, conn)

		go func() {
			defer func() {
				s.tcpConns.Delete(addr)
				s.tcpCount.Add(-1)
				s.activeConns.Done()
			}()
			s.serveTCP(conn)
		}()
	}
}

// serveTCP answers record-marked requests until EOF, idle timeout or a
// dropped request.
func (s *Adapter) serveTCP(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in portmap connection from %s: %v", conn.RemoteAddr(), r)
		}
		_ = conn.Close()
	}()

	source := sourceKey(conn.RemoteAddr())

	for {
		select {
		case <-s.shutdown:
			return
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(s.config.IdleTimeout)); err != nil {
			return
		}

		message, err := rpc.ReadRecord(conn, maxMessageSize)
		if err != nil {
			if errors.Is(err, rpc.ErrRecordTooLarge) {
				s.metrics.RecordLookup("tcp", resultMalformed)
			}
			logger.Debug("Portmap TCP connection from %s ended: %v", conn.RemoteAddr(), err)
			return
		}

		reply, result := s.handleCall(message, source)
		s.metrics.RecordLookup("tcp", result)
		if reply == nil {
			if result == resultNoCapacity {
				return
			}
			continue
		}

		if err := conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
			return
		}
		if _, err := conn.Write(rpc.AddRecordMark(reply)); err != nil {
			logger.Debug("Portmap TCP reply to %s failed: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

// sourceKey is the rate limiting key: the client IP without port.
func sourceKey(addr net.Addr) string {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP.String()
	case *net.TCPAddr:
		return a.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// setSockets records the sockets unless shutdown has already begun.
func (s *Adapter) setSockets(udpConn net.PacketConn, listener net.Listener) bool {
	s.socketMu.Lock()
	defer s.socketMu.Unlock()

	select {
	case <-s.shutdown:
		return false
	default:
	}
	s.udpConn = udpConn
	s.listener = listener
	return true
}

func closeSockets(udpConn net.PacketConn, listener net.Listener) {
	if udpConn != nil {
		_ = udpConn.Close()
	}
	if listener != nil {
		_ = listener.Close()
	}
}

func (s *Adapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		s.socketMu.Lock()
		close(s.shutdown)
		udpConn, listener := s.udpConn, s.listener
		s.socketMu.Unlock()

		closeSockets(udpConn, listener)
		s.tcpConns.Range(func(_, value any) bool {
			_ = value.(net.Conn).SetReadDeadline(time.Now())
			return true
		})
	})
}

func (s *Adapter) waitShutdown() error {
	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Portmap stopped")
		return nil
	case <-time.After(s.config.ShutdownTimeout):
		s.tcpConns.Range(func(_, value any) bool {
			_ = value.(net.Conn).Close()
			return true
		})
		return fmt.Errorf("portmap shutdown timeout: %d connections force-closed", s.tcpCount.Load())
	}
}

// Stop initiates shutdown. Safe to call more than once.
func (s *Adapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Port returns the bound port once serving, else the configured port.
func (s *Adapter) Port() int {
	if p := s.boundPort.Load(); p > 0 {
		return int(p)
	}
	return s.config.Port
}

func (s *Adapter) Protocol() string {
	return "portmap"
}

var _ adapter.Adapter = (*Adapter)(nil)
