package metrics

import "time"

// VXI11Metrics provides observability for the VXI-11 core channel.
//
// Implementations can collect metrics about RPC requests, link lifecycle
// and throughput. If none is provided to the adapter, a no-op
// implementation is used.
type VXI11Metrics interface {
	// RecordRequest records a completed RPC with its procedure name,
	// duration and device error code ("" on success).
	RecordRequest(procedure string, duration time.Duration, errorCode string)

	// RecordBytesTransferred records payload bytes. direction is "read" or "write".
	RecordBytesTransferred(direction string, bytes uint64)

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// SetActiveLinks updates the number of occupied link slots.
	SetActiveLinks(count int)

	// RecordConnectionAccepted increments the accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionRejected increments the counter of connections
	// refused because the connection limit was reached.
	RecordConnectionRejected()

	// RecordConnectionClosed increments the closed connections counter.
	RecordConnectionClosed()

	// RecordConnectionForceClosed increments the counter of connections
	// closed by the shutdown timeout.
	RecordConnectionForceClosed()
}

// NewNoopVXI11Metrics returns a VXI11Metrics that discards everything.
func NewNoopVXI11Metrics() VXI11Metrics {
	return noopVXI11Metrics{}
}

type noopVXI11Metrics struct{}

func (noopVXI11Metrics) RecordRequest(string, time.Duration, string) {}
func (noopVXI11Metrics) RecordBytesTransferred(string, uint64)      {}
func (noopVXI11Metrics) SetActiveConnections(int32)                 {}
func (noopVXI11Metrics) SetActiveLinks(int)                         {}
func (noopVXI11Metrics) RecordConnectionAccepted()                  {}
func (noopVXI11Metrics) RecordConnectionRejected()                  {}
func (noopVXI11Metrics) RecordConnectionClosed()                    {}
func (noopVXI11Metrics) RecordConnectionForceClosed()               {}
