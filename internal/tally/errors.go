package tally

import "errors"

var (
	// ErrNotReady is returned by mutations issued before Load.
	ErrNotReady = errors.New("tally store not loaded")

	// ErrInvalidEntry marks an upsert with an empty or malformed date, or a
	// count that is not a number. Nothing is changed or persisted.
	ErrInvalidEntry = errors.New("invalid tally entry")

	// ErrCorruptState means the persisted snapshot could not be decoded. Load
	// falls back to an empty mapping and the store is still usable.
	ErrCorruptState = errors.New("corrupt tally state")

	// ErrPersistence means the durable write failed. The in-memory change has
	// been applied and will be written again by the next successful mutation.
	ErrPersistence = errors.New("tally persistence failed")
)
