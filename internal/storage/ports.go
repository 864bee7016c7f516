package storage

import (
	"context"
	"time"
)

// DefaultKey is the storage identifier the tally mapping is kept under.
const DefaultKey = "chromebook_counts"

type (
	// KeyValueStore is the durable storage contract: one value per key,
	// replaced whole on every write.
	KeyValueStore interface {
		// Get returns the stored value and whether the key exists.
		Get(ctx context.Context, key string) (value []byte, ok bool, err error)
		// Put replaces the value for key. A failed Put leaves the previous value intact.
		Put(ctx context.Context, key string, value []byte) error
	}

	// EventRecorder stores the audit trail of committed tally changes.
	EventRecorder interface {
		RecordEvent(ctx context.Context, e Event) error
	}
)

// Event is one audited tally change.
type Event struct {
	ID         string
	Op         string
	Date       string
	Count      float64
	Average    float64
	Persisted  bool
	OccurredAt time.Time
	RecordedAt time.Time
}
