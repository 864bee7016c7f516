package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"tally/internal/amqp"
	applog "tally/internal/log"
	"tally/internal/tally"
)

const drainTimeout = 5 * time.Second

// Publisher sends change messages to the broker.
type Publisher interface {
	PublishTallyChanged(ctx context.Context, msg *amqp.TallyChangedMessage) error
}

// ChangePublisher forwards committed store changes to a Publisher from a
// single background goroutine so a slow broker never delays a tally
// operation. When the buffer is full, or Run has already returned, the
// change is dropped, counted and logged.
type ChangePublisher struct {
	publisher Publisher
	logger    *applog.Logger
	queue     chan *amqp.TallyChangedMessage

	dropped   atomic.Int64
	published atomic.Int64

	mu      sync.Mutex
	running bool
	stopped bool
}

func NewChangePublisher(publisher Publisher, buffer int, logger *applog.Logger) *ChangePublisher {
	if buffer < 1 {
		buffer = 1
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &ChangePublisher{
		publisher: publisher,
		logger:    logger.WithComponent(applog.ComponentAMQP),
		queue:     make(chan *amqp.TallyChangedMessage, buffer),
	}
}

// Attach subscribes to store and returns the unsubscribe function.
func (p *ChangePublisher) Attach(store *tally.Store) func() {
	return store.Subscribe(p.Enqueue)
}

// Enqueue converts c to a message and queues it without blocking.
func (p *ChangePublisher) Enqueue(c tally.Change) {
	msg := MessageFromChange(c)

	// Held across the send so a message is either queued before Run's final
	// drain or seen as late.
	p.mu.Lock()
	reason := ""
	if p.stopped {
		reason = "publisher stopped"
	} else {
		select {
		case p.queue <- msg:
		default:
			reason = "queue full"
		}
	}
	p.mu.Unlock()

	if reason == "" {
		return
	}
	p.dropped.Add(1)
	p.logger.Warn("Dropping tally event",
		"reason", reason,
		applog.FieldEventID, msg.ID,
		applog.FieldOperation, msg.Op,
		applog.FieldDate, msg.Date)
}

// MessageFromChange builds the broker message for a committed change.
func MessageFromChange(c tally.Change) *amqp.TallyChangedMessage {
	msg := amqp.NewTallyChangedMessage(string(c.Op), c.Date, c.Count)
	msg.Today = c.Snapshot.Today
	msg.TodayCount = c.Snapshot.TodayCount
	msg.Average = c.Snapshot.Average
	msg.Version = c.Snapshot.Version
	msg.Persisted = c.Persisted
	if !c.At.IsZero() {
		msg.Timestamp = c.At
	}
	return msg
}

// Run publishes queued messages until ctx is cancelled, then makes a
// bounded attempt to flush what is still buffered. A publisher runs once;
// changes enqueued after it stops are counted as dropped.
func (p *ChangePublisher) Run(ctx context.Context) error {
	p.mu.Lock()
	switch {
	case p.running:
		p.mu.Unlock()
		return errors.New("change publisher is already running")
	case p.stopped:
		p.mu.Unlock()
		return errors.New("change publisher has stopped")
	}
	p.running = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	p.logger.InfoContext(ctx, "Change publisher started", "buffer", cap(p.queue))

	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.stopped = true
			p.mu.Unlock()
			p.drain()
			return nil
		case msg := <-p.queue:
			p.publish(ctx, msg)
		}
	}
}

func (p *ChangePublisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	flushed := 0
	for {
		select {
		case msg := <-p.queue:
			p.publish(ctx, msg)
			flushed++
		default:
			p.logger.Info("Change publisher stopped",
				"flushed", flushed,
				"published", p.published.Load(),
				"dropped", p.dropped.Load())
			return
		}
	}
}

func (p *ChangePublisher) publish(ctx context.Context, msg *amqp.TallyChangedMessage) {
	if err := p.publisher.PublishTallyChanged(ctx, msg); err != nil {
		p.logger.ErrorContext(ctx, "Failed to publish tally event",
			applog.FieldEventID, msg.ID,
			applog.FieldOperation, msg.Op,
			applog.FieldErrorType, applog.ErrorTypeNetwork,
			applog.FieldError, fmt.Errorf("publish: %w", err))
		return
	}
	p.published.Add(1)
}

// Dropped returns how many changes were discarded, either because the queue
// was full or because the publisher had stopped.
func (p *ChangePublisher) Dropped() int64 {
	return p.dropped.Load()
}

// Published returns how many changes reached the broker.
func (p *ChangePublisher) Published() int64 {
	return p.published.Load()
}
