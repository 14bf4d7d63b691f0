package session

import (
	"encoding/binary"
	"sync"

	"github.com/google/uuid"
)

const lockStripes = 64

// stripedLock serializes work per session id without a map that grows with
// every id. Unrelated ids may share a stripe.
type stripedLock struct {
	stripes [lockStripes]sync.Mutex
}

func (l *stripedLock) lock(id uuid.UUID) func() {
	m := &l.stripes[binary.BigEndian.Uint64(id[8:])%lockStripes]
	m.Lock()
	return m.Unlock
}
