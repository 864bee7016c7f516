package worker

import (
	"context"
	"fmt"
	"time"

	"tally/internal/amqp"
	applog "tally/internal/log"
	"tally/internal/storage"
)

// AuditWorker records every tally change announced on the queue into the
// audit table. It never touches the tally mapping itself.
type AuditWorker struct {
	recorder storage.EventRecorder
	logger   *applog.Logger
	now      func() time.Time
}

func NewAuditWorker(recorder storage.EventRecorder, logger *applog.Logger) *AuditWorker {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &AuditWorker{
		recorder: recorder,
		logger:   logger.WithComponent(applog.ComponentWorker),
		now:      time.Now,
	}
}

// HandleTallyChanged stores one message. Redelivered messages are absorbed by
// the recorder, which ignores ids it has already seen.
func (w *AuditWorker) HandleTallyChanged(ctx context.Context, msg *amqp.TallyChangedMessage) error {
	w.logger.DebugContext(ctx, "Processing tally change",
		applog.FieldEventID, msg.ID,
		applog.FieldOperation, msg.Op,
		applog.FieldDate, msg.Date)

	event := storage.Event{
		ID:         msg.ID,
		Op:         msg.Op,
		Date:       msg.Date,
		Count:      msg.Count,
		Average:    msg.Average,
		Persisted:  msg.Persisted,
		OccurredAt: msg.Timestamp,
		RecordedAt: w.now(),
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = event.RecordedAt
	}

	if err := w.recorder.RecordEvent(ctx, event); err != nil {
		return fmt.Errorf("record event %s: %w", msg.ID, err)
	}

	if !msg.Persisted {
		w.logger.WarnContext(ctx, "Recorded tally change that was not persisted by the server",
			applog.FieldEventID, msg.ID,
			applog.FieldOperation, msg.Op,
			applog.FieldDate, msg.Date)
		return nil
	}

	w.logger.InfoContext(ctx, "Recorded tally change",
		applog.FieldEventID, msg.ID,
		applog.FieldOperation, msg.Op,
		applog.FieldDate, msg.Date,
		applog.FieldCount, msg.Count,
		applog.FieldAverage, msg.Average)
	return nil
}

// EventLister is implemented by recorders that can read the audit trail back.
type EventLister interface {
	ListEvents(ctx context.Context, limit int) ([]storage.Event, error)
}

// StartupCheck logs the most recent recorded events so an operator can see
// where the audit trail left off before consumption resumes.
func (w *AuditWorker) StartupCheck(ctx context.Context, lister EventLister, limit int) error {
	events, err := lister.ListEvents(ctx, limit)
	if err != nil {
		return fmt.Errorf("list recent events: %w", err)
	}

	if len(events) == 0 {
		w.logger.InfoContext(ctx, "No tally events recorded yet")
		return nil
	}

	last := events[0]
	w.logger.InfoContext(ctx, "Resuming tally audit",
		"recent", len(events),
		"last_event", last.ID,
		applog.FieldOperation, last.Op,
		applog.FieldDate, last.Date,
		"last_occurred_at", last.OccurredAt.Format(time.RFC3339))
	return nil
}
