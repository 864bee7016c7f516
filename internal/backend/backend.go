// Package backend opens the KeyValueStore selected by DATA_BACKEND.
package backend

import (
	"fmt"
	"strings"

	"tally/internal/config"
	"tally/internal/storage"
)

// Kind names a storage implementation.
type Kind string

const (
	File   Kind = "file"
	SQLite Kind = "sqlite"
	Memory Kind = "memory"
)

var kinds = []Kind{File, SQLite, Memory}

// Kinds lists the selectable implementations in display order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// ParseKind accepts a DATA_BACKEND value, ignoring case and padding.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown storage backend %q (want one of %v)", s, kinds)
}

// Settings is the subset of configuration a backend needs.
type Settings struct {
	Kind       Kind
	DataDir    string
	SQLitePath string
}

func SettingsFrom(cfg *config.Config) (Settings, error) {
	if cfg == nil {
		return Settings{}, fmt.Errorf("backend settings: nil config")
	}
	kind, err := ParseKind(cfg.DataBackend)
	if err != nil {
		return Settings{}, err
	}
	return Settings{Kind: kind, DataDir: cfg.DataDir, SQLitePath: cfg.SQLiteDBPath}, nil
}

func (s Settings) check() error {
	switch s.Kind {
	case File:
		if s.DataDir == "" {
			return fmt.Errorf("file backend: DATA_DIR is empty")
		}
	case SQLite:
		if s.SQLitePath == "" {
			return fmt.Errorf("sqlite backend: SQLITE_DB_PATH is empty")
		}
	case Memory:
	default:
		return fmt.Errorf("unknown storage backend %q", s.Kind)
	}
	return nil
}

// Opened is an open store plus whatever has to be released with it.
type Opened struct {
	Store   storage.KeyValueStore
	Kind    Kind
	release func() error
}

// Close releases the store's resources. It is safe on a nil Opened.
func (o *Opened) Close() error {
	if o == nil || o.release == nil {
		return nil
	}
	return o.release()
}
