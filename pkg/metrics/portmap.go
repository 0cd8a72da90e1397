package metrics

// PortmapMetrics counts port-mapper lookups.
type PortmapMetrics interface {
	// RecordLookup records one GETPORT request. transport is "udp" or
	// "tcp"; result is one of "success", "unregistered", "dropped",
	// "rate_limited", "malformed" or an RPC accept status name.
	RecordLookup(transport string, result string)
}

// NewNoopPortmapMetrics returns a PortmapMetrics that discards everything.
func NewNoopPortmapMetrics() PortmapMetrics {
	return noopPortmapMetrics{}
}

type noopPortmapMetrics struct{}

func (noopPortmapMetrics) RecordLookup(string, string) {}
