// Package server runs the gateway's protocol adapters against one shared
// instrument bridge.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/gpibgate/internal/logger"
	"github.com/marmos91/gpibgate/pkg/adapter"
	"github.com/marmos91/gpibgate/pkg/bridge"
	"github.com/marmos91/gpibgate/pkg/metrics"
)

// DefaultStopTimeout bounds the shutdown of all adapters together.
const DefaultStopTimeout = 30 * time.Second

// GatewayServer coordinates the protocol adapters.
//
// Every adapter implementing adapter.InstrumentUser receives the shared
// bridge when it is registered. Serve runs all adapters concurrently; the
// first adapter failure, or cancellation of the context, stops all of them
// in reverse registration order.
type GatewayServer struct {
	instrument    bridge.Instrument
	metricsServer *metrics.Server
	stopTimeout   time.Duration

	mu       sync.RWMutex
	adapters []adapter.Adapter
	served   bool
}

// New creates a server sharing inst between its adapters.
//
// Panics if inst is nil.
func New(inst bridge.Instrument) *GatewayServer {
	if inst == nil {
		panic("instrument cannot be nil")
	}
	return &GatewayServer{
		instrument:  inst,
		stopTimeout: DefaultStopTimeout,
		adapters:    make([]adapter.Adapter, 0, 3),
	}
}

// SetMetricsServer runs m alongside the adapters. Nil disables it.
func (s *GatewayServer) SetMetricsServer(m *metrics.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metricsServer = m
}

// SetStopTimeout changes how long Serve waits for adapters to stop.
func (s *GatewayServer) SetStopTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimeout = d
}

// AddAdapter registers a protocol adapter. Protocols and ports must be
// unique. It must be called before Serve.
func (s *GatewayServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		return errors.New("server: nil adapter")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return errors.New("server: cannot add adapter after Serve")
	}

	protocol, port := a.Protocol(), a.Port()
	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	if user, ok := a.(adapter.InstrumentUser); ok {
		user.SetInstrument(s.instrument)
	}

	s.adapters = append(s.adapters, a)
	logger.Info("Registered %s adapter on port %d", protocol, port)
	return nil
}

// Adapters returns the registered adapters in registration order.
func (s *GatewayServer) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]adapter.Adapter(nil), s.adapters...)
}

type adapterError struct {
	protocol string
	err      error
}

// Serve starts every adapter and blocks until ctx is cancelled or an
// adapter fails. It returns ctx.Err() on a requested shutdown and the
// adapter's error on failure. Serve may only be called once.
func (s *GatewayServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return errors.New("server: Serve already called")
	}
	s.served = true
	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return errors.New("server: no adapters registered")
	}
	adapters := append([]adapter.Adapter(nil), s.adapters...)
	metricsServer := s.metricsServer
	stopTimeout := s.stopTimeout
	s.mu.Unlock()

	logger.Info("Starting gateway with %d adapter(s)", len(adapters))

	// adapters get their own context so the metrics server keeps
	// answering while they drain
	adapterCtx, cancelAdapters := context.WithCancel(ctx)
	defer cancelAdapters()

	errChan := make(chan adapterError, len(adapters))
	var wg sync.WaitGroup

	for _, a := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Info("Starting %s adapter on port %d", protocol, a.Port())

			err := a.Serve(adapterCtx)
			switch {
			case err == nil:
				logger.Info("%s adapter stopped", protocol)
			case adapterCtx.Err() != nil:
				logger.Debug("%s adapter stopped: %v", protocol, err)
			default:
				logger.Error("%s adapter failed: %v", protocol, err)
				errChan <- adapterError{protocol: protocol, err: err}
			}
		}(a)
	}

	metricsCtx, cancelMetrics := context.WithCancel(context.Background())
	defer cancelMetrics()
	metricsDone := make(chan struct{})
	if metricsServer != nil {
		go func() {
			defer close(metricsDone)
			if err := metricsServer.Start(metricsCtx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	} else {
		close(metricsDone)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		shutdownErr = ctx.Err()
	case failed := <-errChan:
		logger.Error("Adapter %s failed, shutting down all adapters", failed.protocol)
		shutdownErr = fmt.Errorf("%s adapter error: %w", failed.protocol, failed.err)
	}

	s.stopAll(adapters, stopTimeout)
	cancelAdapters()
	wg.Wait()

	cancelMetrics()
	<-metricsDone

	logger.Info("Gateway stopped")
	return shutdownErr
}

func (s *GatewayServer) stopAll(adapters []adapter.Adapter, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		a := adapters[i]
		if err := a.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", a.Protocol(), err)
		} else {
			logger.Debug("%s adapter stopped", a.Protocol())
		}
	}
}
