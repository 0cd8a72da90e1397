package metrics

import "time"

// BusMetrics provides observability for addressed bus transactions.
type BusMetrics interface {
	// RecordTransaction records one transaction. operation is "read" or
	// "write"; err is nil on success.
	RecordTransaction(operation string, address int, bytes int, duration time.Duration, err error)

	// RecordTokenWait records how long a transaction waited for the bus
	// ownership token.
	RecordTokenWait(duration time.Duration)

	// SetClaims updates the number of outstanding link claims.
	SetClaims(count int)
}

// NewNoopBusMetrics returns a BusMetrics that discards everything.
func NewNoopBusMetrics() BusMetrics {
	return noopBusMetrics{}
}

type noopBusMetrics struct{}

func (noopBusMetrics) RecordTransaction(string, int, int, time.Duration, error) {}
func (noopBusMetrics) RecordTokenWait(time.Duration)                          {}
func (noopBusMetrics) SetClaims(int)                                          {}
