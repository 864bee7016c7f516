package cli

import (
	"context"
	"log/slog"
	"testing"
	"time"

	applog "tally/internal/log"
)

func TestSetupLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := SetupLogger("debug", applog.ComponentWorker)
	if logger.Component() != applog.ComponentWorker {
		t.Errorf("Component() = %q, want %q", logger.Component(), applog.ComponentWorker)
	}
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("default logger should have debug enabled")
	}
}

func TestSignalContextFollowsParent(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := SignalContext(parent, applog.Discard())
	defer cancel()

	cancelParent()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled with its parent")
	}
}
