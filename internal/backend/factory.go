package backend

import (
	"context"
	"fmt"

	applog "tally/internal/log"
	"tally/internal/storage"
	"tally/internal/storage/file"
	"tally/internal/storage/memory"
)

// Opener turns Settings into a ready KeyValueStore.
type Opener interface {
	Open(ctx context.Context, s Settings) (*Opened, error)
}

type opener struct {
	logger *applog.Logger
}

func NewOpener(logger *applog.Logger) Opener {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &opener{logger: logger.WithComponent(applog.ComponentBackend)}
}

func (o *opener) Open(ctx context.Context, s Settings) (*Opened, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch s.Kind {
	case File:
		store := file.New(s.DataDir)
		o.logger.InfoContext(ctx, "Using file storage", "data_dir", store.Dir())
		return &Opened{Store: store, Kind: File}, nil

	case SQLite:
		repo, err := storage.NewSQLiteRepository(s.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		o.logger.InfoContext(ctx, "Using SQLite storage", "db_path", s.SQLitePath)
		return &Opened{Store: repo, Kind: SQLite, release: repo.Close}, nil

	default:
		o.logger.WarnContext(ctx, "Using memory storage, tallies are lost on restart")
		return &Opened{Store: memory.New(), Kind: Memory}, nil
	}
}
