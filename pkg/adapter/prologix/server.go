// Package prologix is the alternate line protocol: a TCP server speaking
// the "++" command subset of Prologix GPIB-Ethernet controllers over the
// same bridge the VXI-11 channel uses.
//
// Each client has its own current address, auto-read flag and EOS mode.
// "++savecfg" persists them in the settings store and "++rst" restores
// them.
package prologix

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
	"github.com/marmos91/gpibgate/pkg/store/settings"
)

// Adapter is the line server.
type Adapter struct {
	config Config
	store  settings.Store

	instMu     sync.RWMutex
	instrument bridge.Instrument

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

// New creates a line server persisting settings in store.
//
// Panics if config validation fails or store is nil.
func New(config Config, store settings.Store) *Adapter {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		panic(fmt.Sprintf("invalid line server config: %v", err))
	}
	if store == nil {
		panic("prologix: nil settings store")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Adapter{
		config:         config,
		store:          store,
		shutdown:       make(chan struct{}),
		shutdownCtx:    ctx,
		cancelRequests: cancel,
	}
}

func (s *Adapter) SetInstrument(inst bridge.Instrument) {
	s.instMu.Lock()
	defer s.instMu.Unlock()
	s.instrument = inst
}

func (s *Adapter) getInstrument() bridge.Instrument {
	s.instMu.RLock()
	defer s.instMu.RUnlock()
	return s.instrument
}

// Serve listens on the configured port until ctx is cancelled.
func (s *Adapter) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to create line server listener on port %d: %w", s.config.Port, err)
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener serves on an existing listener.
func (s *Adapter) ServeListener(ctx context.Context, listener net.Listener) error {
	if !s.setListener(listener) {
		_ = listener.Close()
		return nil
	}
	if addr, ok := listener.Addr().(*net.TCPAddr); ok {
		s.boundPort.Store(int32(addr.Port))
	}
	logger.Info("Line server listening on %s", listener.Addr())

	go func() {
		select {
		case <-ctx.Done():
		case <-s.shutdown:
		}
		s.initiateShutdown()
	}()

	for {
		tcpConn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				logger.Debug("Error accepting line server connection: %v", err)
				time.Sleep(10 * time.Millisecond)
				continue
			}
		}

		if int(s.connCount.Load()) >= s.config.MaxConnections {
			logger.Warn("Line server connection from %s rejected: limit reached", tcpConn.RemoteAddr())
			_, _ = tcpConn.Write([]byte("Error: too many connections\n"))
			_ = tcpConn.Close()
			continue
		}

		s.activeConns.Add(1)
		s.connCount.Add(1)
		addr := tcpConn.RemoteAddr().String()
		s.activeConnections.Store(addr, tcpConn)

		go func() {
			defer func() {
				s.activeConnections.Delete(addr)
				s.connCount.Add(-1)
				s.activeConns.Done()
			}()
			newSession(s, tcpConn).serve(s.shutdownCtx)
		}()
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
		s.listenerMu.Lock()
		close(s.shutdown)
		listener := s.listener
		s.listenerMu.Unlock()

		if listener != nil {
			_ = listener.Close()
		}
		s.cancelRequests()
		s.activeConnections.Range(func(_, value any) bool {
			_ = value.(net.Conn).SetReadDeadline(time.Now())
			return true
		})
	})
}

func (s *Adapter) gracefulShutdown() error {
	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Line server stopped")
		return nil
	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		s.activeConnections.Range(func(_, value any) bool {
			_ = value.(net.Conn).Close()
			return true
		})
		return fmt.Errorf("line server shutdown timeout: %d connections force-closed", remaining)
	}
}

// Stop initiates shutdown and waits for clients until ctx expires.
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
		return ctx.Err()
	}
}

// Connections returns the number of connected clients.
func (s *Adapter) Connections() int {
	return int(s.connCount.Load())
}

func (s *Adapter) Port() int {
	if p := s.boundPort.Load(); p > 0 {
		return int(p)
	}
	return s.config.Port
}

func (s *Adapter) Protocol() string {
	return "Prologix"
}

var (
	_ adapter.Adapter        = (*Adapter)(nil)
	_ adapter.InstrumentUser = (*Adapter)(nil)
)
