package tally

import (
	"time"

	"tally/internal/core"
)

// Op names a store operation.
type Op string

const (
	OpLoad      Op = "load"
	OpIncrement Op = "increment"
	OpUpsert    Op = "upsert"
	OpDelete    Op = "delete"
)

// Snapshot is a read-only projection of the store. Counts and History are
// copies and may be kept or modified by the caller.
type Snapshot struct {
	Ready      bool             `json:"ready"`
	Version    uint64           `json:"version"`
	Today      string           `json:"today"`
	TodayCount float64          `json:"today_count"`
	Average    float64          `json:"average"`
	Counts     core.Mapping     `json:"counts"`
	History    []core.DayRecord `json:"history"`
}

// Change describes one committed mutation. Persisted is false when the
// durable write failed and memory is ahead of storage.
type Change struct {
	Op        Op
	Date      string
	Count     float64
	Existed   bool
	Persisted bool
	At        time.Time
	Snapshot  Snapshot
}

func newSnapshot(ready bool, version uint64, today string, counts core.Mapping) Snapshot {
	c := counts.Clone()
	stats := c.Stats(today)
	return Snapshot{
		Ready:      ready,
		Version:    version,
		Today:      today,
		TodayCount: stats.TodayCount,
		Average:    stats.Average,
		Counts:     c,
		History:    c.History(),
	}
}
