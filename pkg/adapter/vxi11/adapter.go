// Package vxi11 serves the VXI-11 DEVICE_CORE channel over TCP.
//
// Each accepted connection is handled by one goroutine. A connection may
// hold at most one link at a time; links live in a fixed slot table whose
// index is the wire link id. Bus I/O goes through the injected
// bridge.Instrument.
package vxi11

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/gpibgate/internal/logger"
	"github.com/marmos91/gpibgate/pkg/adapter"
	"github.com/marmos91/gpibgate/pkg/bridge"
	"github.com/marmos91/gpibgate/pkg/metrics"
)

// Adapter is the VXI-11 core channel server.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed, in-flight bus operations cancelled
//  3. Wait for active connections (up to ShutdownTimeout)
//  4. Force-close what is left
type Adapter struct {
	config  Config
	metrics metrics.VXI11Metrics

	instMu     sync.RWMutex
	instrument bridge.Instrument

	links *linkTable

	// listenerMu orders storing the listener against closing shutdown, so
	// a Stop that runs before Serve still closes it.
	listenerMu sync.Mutex
	listener   net.Listener
	boundPort  atomic.Int32

	activeConns       sync.WaitGroup
	connCount         atomic.Int32
	activeConnections sync.Map

	shutdownOnce   sync.Once
	shutdown       chan struct{}
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc
}

// New creates an adapter in a stopped state. Call SetInstrument before
// Serve.
//
// Panics if config validation fails.
func New(config Config, m metrics.VXI11Metrics) *Adapter {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		panic(fmt.Sprintf("invalid VXI-11 config: %v", err))
	}

	if m == nil {
		m = metrics.NewNoopVXI11Metrics()
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())

	return &Adapter{
		config:         config,
		metrics:        m,
		links:          newLinkTable(config.MaxLinks),
		shutdown:       make(chan struct{}),
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancel,
	}
}

// SetInstrument injects the bridge used for bus I/O.
func (s *Adapter) SetInstrument(inst bridge.Instrument) {
	s.instMu.Lock()
	defer s.instMu.Unlock()
	s.instrument = inst
	logger.Debug("VXI-11 instrument configured")
}

func (s *Adapter) getInstrument() bridge.Instrument {
	s.instMu.RLock()
	defer s.instMu.RUnlock()
	return s.instrument
}

// Serve listens on the configured port and blocks until ctx is cancelled.
func (s *Adapter) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to create VXI-11 listener on port %d: %w", s.config.Port, err)
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener serves on an existing listener. Port reports the
// listener's port from here on.
func (s *Adapter) ServeListener(ctx context.Context, listener net.Listener) error {
	if !s.setListener(listener) {
		logger.Debug("VXI-11 stopped before serving, closing %s", listener.Addr())
		_ = listener.Close()
		return nil
	}
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		s.boundPort.Store(int32(tcpAddr.Port))
	}

	logger.Info("VXI-11 server listening on %s", listener.Addr())
	logger.Debug("VXI-11 config: max_links=%d max_connections=%d max_recv_size=%d close_on_destroy=%v",
		s.config.MaxLinks, s.config.MaxConnections, s.config.MaxRecvSize, s.config.CloseOnDestroy)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("VXI-11 shutdown signal received: %v", ctx.Err())
		case <-s.shutdown:
		}
		s.initiateShutdown()
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(ctx)
	}

	for {
		tcpConn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				logger.Debug("Error accepting VXI-11 connection: %v", err)
				// avoid spinning on persistent accept errors
				time.Sleep(10 * time.Millisecond)
				continue
			}
		}

		if int(s.connCount.Load()) >= s.config.MaxConnections {
			logger.Warn("VXI-11 connection from %s rejected: %d connections open",
				tcpConn.RemoteAddr(), s.connCount.Load())
			s.metrics.RecordConnectionRejected()
			_ = tcpConn.Close()
			continue
		}

		s.activeConns.Add(1)
		current := s.connCount.Add(1)
		connAddr := tcpConn.RemoteAddr().String()
		s.activeConnections.Store(connAddr, tcpConn)

		s.metrics.RecordConnectionAccepted()
		s.metrics.SetActiveConnections(current)
		logger.Debug("VXI-11 connection accepted from %s (active: %d)", connAddr, current)

		conn := newConnection(s, tcpConn)
		go func(addr string) {
			defer func() {
				s.activeConnections.Delete(addr)
				s.activeConns.Done()
				current := s.connCount.Add(-1)
				s.metrics.RecordConnectionClosed()
				s.metrics.SetActiveConnections(current)
				logger.Debug("VXI-11 connection closed from %s (active: %d)", addr, current)
			}()

			conn.Serve(s.shutdownCtx)
		}(connAddr)
	}
}

// setListener records the listener unless shutdown has already begun.
func (s *Adapter) setListener(listener net.Listener) bool {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	select {
	case <-s.shutdown:
		return false
	default:
	}
	s.listener = listener
	return true
}

func (s *Adapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("VXI-11 shutdown initiated")

		s.listenerMu.Lock()
		close(s.shutdown)
		listener := s.listener
		s.listenerMu.Unlock()

		if listener != nil {
			if err := listener.Close(); err != nil {
				logger.Debug("Error closing VXI-11 listener: %v", err)
			}
		}

		s.cancelRequests()

		// wake connections blocked waiting for their next request
		s.activeConnections.Range(func(_, value any) bool {
			_ = value.(net.Conn).SetReadDeadline(time.Now())
			return true
		})
	})
}

func (s *Adapter) gracefulShutdown() error {
	logger.Info("VXI-11 graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		s.connCount.Load(), s.config.ShutdownTimeout)

	if s.waitConnections(s.config.ShutdownTimeout) {
		logger.Info("VXI-11 graceful shutdown complete: all connections closed")
		return nil
	}

	remaining := s.connCount.Load()
	logger.Warn("VXI-11 shutdown timeout exceeded: %d connection(s) still active after %v, forcing closure",
		remaining, s.config.ShutdownTimeout)
	s.forceCloseConnections()
	return fmt.Errorf("VXI-11 shutdown timeout: %d connections force-closed", remaining)
}

// waitConnections reports whether every connection finished within timeout.
func (s *Adapter) waitConnections(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (s *Adapter) forceCloseConnections() {
	closed := 0
	s.activeConnections.Range(func(key, value any) bool {
		conn := value.(net.Conn)
		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing connection to %s: %v", key, err)
		} else {
			closed++
			s.metrics.RecordConnectionForceClosed()
		}
		return true
	})

	if closed > 0 {
		logger.Info("Force-closed %d VXI-11 connection(s)", closed)
	}
}

// Stop initiates shutdown and waits for connections until ctx expires.
// Safe to call more than once and concurrently with Serve.
func (s *Adapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		logger.Warn("VXI-11 stop: %d connection(s) still active: %v", s.connCount.Load(), ctx.Err())
		return ctx.Err()
	}
}

func (s *Adapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			logger.Info("VXI-11 metrics: active_connections=%d active_links=%d",
				s.connCount.Load(), s.links.count())
		}
	}
}

// Allocate is the port mapper's view of the server: the core channel port
// while a link slot is free, 0 otherwise.
func (s *Adapter) Allocate() uint32 {
	select {
	case <-s.shutdown:
		return 0
	default:
	}

	if !s.links.hasFree() {
		return 0
	}
	return uint32(s.Port())
}

// Connections returns the number of open TCP connections.
func (s *Adapter) Connections() int {
	return int(s.connCount.Load())
}

// Links returns the number of occupied link slots.
func (s *Adapter) Links() int {
	return s.links.count()
}

// Port returns the bound port once serving, else the configured port.
func (s *Adapter) Port() int {
	if p := s.boundPort.Load(); p > 0 {
		return int(p)
	}
	return s.config.Port
}

func (s *Adapter) Protocol() string {
	return "VXI-11"
}

var (
	_ adapter.Adapter        = (*Adapter)(nil)
	_ adapter.InstrumentUser = (*Adapter)(nil)
)
