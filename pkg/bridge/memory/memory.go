// Package memory provides an in-memory bridge.Instrument for tests.
//
// Every write is recorded per address and every read returns the next
// queued response for the address. Counters make it possible to assert
// that a code path caused no bus traffic at all.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/marmos91/gpibgate/pkg/bridge"
)

// ErrNoResponse is returned by Read when nothing is queued for the address.
var ErrNoResponse = errors.New("memory: no response queued")

// Instrument is a deterministic fake bridge.
type Instrument struct {
	mu sync.Mutex

	identity  []byte
	writes    map[int][][]byte
	responses map[int][][]byte

	claims       int
	maxClaims    int
	totalClaims  int
	transactions int
	fail         error
}

// New creates a fake answering address 0 with identity.
func New(identity string) *Instrument {
	return &Instrument{
		identity:  []byte(identity),
		writes:    make(map[int][][]byte),
		responses: make(map[int][][]byte),
	}
}

// SetMaxClaims makes Claim fail once n claims are outstanding. 0 disables the limit.
func (m *Instrument) SetMaxClaims(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxClaims = n
}

// SetFail makes every non-identity Write and Read return err. nil clears it.
func (m *Instrument) SetFail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// QueueResponse queues data to be returned by the next Read at address.
func (m *Instrument) QueueResponse(address int, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[address] = append(m.responses[address], append([]byte{}, data...))
}

func (m *Instrument) Write(ctx context.Context, address int, data []byte) error {
	if address == bridge.IdentityAddress {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.transactions++
	if m.fail != nil {
		return m.fail
	}
	m.writes[address] = append(m.writes[address], append([]byte{}, data...))
	return nil
}

func (m *Instrument) Read(ctx context.Context, address int, max int) ([]byte, error) {
	if address == bridge.IdentityAddress {
		n := min(max, len(m.identity))
		return append([]byte{}, m.identity[:n]...), nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.transactions++
	if m.fail != nil {
		return nil, m.fail
	}

	queue := m.responses[address]
	if len(queue) == 0 {
		return nil, ErrNoResponse
	}
	data := queue[0]
	m.responses[address] = queue[1:]

	if len(data) > max {
		data = data[:max]
	}
	return data, nil
}

func (m *Instrument) Claim() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxClaims > 0 && m.claims >= m.maxClaims {
		return false
	}
	m.claims++
	m.totalClaims++
	return true
}

func (m *Instrument) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claims > 0 {
		m.claims--
	}
}

// Claims returns the outstanding claim count.
func (m *Instrument) Claims() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.claims
}

// TotalClaims returns how many times Claim succeeded.
func (m *Instrument) TotalClaims() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalClaims
}

// Transactions returns the number of non-identity reads and writes.
func (m *Instrument) Transactions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transactions
}

// Writes returns the payloads written to address, oldest first.
func (m *Instrument) Writes(address int) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte{}, m.writes[address]...)
}

var _ bridge.Instrument = (*Instrument)(nil)
