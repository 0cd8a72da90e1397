package vxi11

import (
	"sync"
	"time"

	"github.com/marmos91/gpibgate/pkg/bridge"
)

// link is the state of one occupied slot. A fresh link is allocated every
// time a slot is taken so nothing survives from a previous owner.
type link struct {
	id        uint32
	connID    string
	address   int
	createdAt time.Time

	// instrument holds the claim taken at CREATE_LINK.
	instrument bridge.Instrument

	// pending holds DEVICE_WRITE chunks received without the END flag.
	pending []byte
}

// linkTable is the fixed-size slot table. Slot index is the wire link id.
//
// Only slot occupancy is guarded by the mutex. A link's fields are touched
// exclusively by the connection goroutine that owns it.
type linkTable struct {
	mu    sync.Mutex
	slots []*link
	used  int
}

func newLinkTable(size int) *linkTable {
	return &linkTable{slots: make([]*link, size)}
}

// reserve takes the lowest free slot for connID. It returns nil when the
// table is full.
func (t *linkTable) reserve(connID string) *link {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, l := range t.slots {
		if l != nil {
			continue
		}
		l = &link{id: uint32(i), connID: connID, createdAt: time.Now()}
		t.slots[i] = l
		t.used++
		return l
	}
	return nil
}

// free empties the slot held by l. Freeing a link that no longer owns its
// slot is a no-op.
func (t *linkTable) free(l *link) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if int(l.id) < len(t.slots) && t.slots[l.id] == l {
		t.slots[l.id] = nil
		t.used--
	}
}

func (t *linkTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.used
}

func (t *linkTable) hasFree() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.used < len(t.slots)
}
