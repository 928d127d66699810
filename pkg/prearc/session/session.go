// Package session defines the staging-session store: provisional groupings
// of incoming objects sharing a study tag, held in the pre-archive pending
// review or auto-archive.
package session

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Status of a staging session.
type Status string

const (
	StatusReceiving Status = "RECEIVING"
	StatusReady     Status = "READY"
	StatusError     Status = "ERROR"
)

// TouchInterval bounds how often a session's last-built timestamp is
// refreshed. One refresh per object received would be pure write
// amplification.
const TouchInterval = 15 * time.Second

// Data is one staging-session row. Project is empty for unassigned-project
// ingestion.
type Data struct {
	Project           string
	FolderName        string
	Name              string
	Timestamp         string
	StudyTag          string
	Modality          string
	Status            Status
	Subject           string
	Visit             string
	ScanDate          string
	LastBuiltAt       time.Time
	PreventAnon       bool
	PreventAutoCommit bool
	Source            string
	URL               string
	ArchiveMode       string
}

// Key identifies the session a given object belongs to.
func (d Data) Key() Key {
	return Key{Project: d.Project, StudyTag: d.StudyTag}
}

// Key is the lookup key for get-or-create.
type Key struct {
	Project  string
	StudyTag string
}

// GetOrCreateResult reports which branch a get-or-create took. Created is
// load-bearing: it tells the caller whether it owns the row for rollback
// purposes.
type GetOrCreateResult struct {
	Session Data
	Created bool
}

// Store is the staging-session store. All cross-invocation mutable state
// goes through here; implementations must make GetOrCreate atomic.
type Store interface {
	// GetOrCreate returns the stored session for initial's key, or creates
	// one from initial. Stored fields are authoritative on the existing
	// branch.
	GetOrCreate(ctx context.Context, initial Data) (GetOrCreateResult, error)

	// TouchLastBuilt refreshes the session's last-built timestamp, but only
	// when more than TouchInterval has elapsed since the stored value.
	TouchLastBuilt(ctx context.Context, sess Data) error

	// Delete removes the session row identified by folder, timestamp and
	// project. Used only to roll back a row created by a failed call.
	Delete(ctx context.Context, folderName, timestamp, projectID string) error

	// Get returns the session for key, if present.
	Get(ctx context.Context, key Key) (Data, bool, error)

	// List returns every staged session, newest first.
	List(ctx context.Context) ([]Data, error)

	Close() error
}

var (
	tsMu      sync.Mutex
	tsEntropy = ulid.Monotonic(rand.Reader, 0)
)

// MakeTimestamp names the timestamp directory for a new upload. ULIDs are
// lexically time-ordered and collision-free across concurrent invocations.
func MakeTimestamp() string {
	tsMu.Lock()
	defer tsMu.Unlock()
	return ulid.MustNew(ulid.Now(), tsEntropy).String()
}
