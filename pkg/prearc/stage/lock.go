package stage

import (
	"sync"

	"github.com/vuiis/prearc/pkg/prearc/internalerr"
)

// LockKey identifies one destination file within one staging session.
type LockKey struct {
	Project    string
	Timestamp  string
	FolderName string
	File       string
}

// lockTable tracks which destinations are mid-write in this process. Locks
// are short-lived: held for one object write, never across invocations.
type lockTable struct {
	mu   sync.Mutex
	held map[LockKey]struct{}
}

// acquire takes the lock for key, failing fast when another invocation holds
// it. Blocking here would stall a receive worker on a duplicate send.
func (t *lockTable) acquire(key LockKey) (*Guard, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.held == nil {
		t.held = make(map[LockKey]struct{})
	}
	if _, ok := t.held[key]; ok {
		return nil, internalerr.Client("", internalerr.ErrConcurrentSend)
	}
	t.held[key] = struct{}{}
	return &Guard{table: t, key: key}, nil
}

// Guard releases a held destination lock. Release is idempotent so it can
// sit in a defer and still be called early.
type Guard struct {
	table *lockTable
	key   LockKey
	once  sync.Once
}

// Release frees the destination for other invocations.
func (g *Guard) Release() {
	g.once.Do(func() {
		g.table.mu.Lock()
		delete(g.table.held, g.key)
		g.table.mu.Unlock()
	})
}
