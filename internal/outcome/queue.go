package outcome

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrQueueClosed is returned by Submit after Close.
var ErrQueueClosed = errors.New("edit queue closed")

// Handler processes one edit event.
type Handler interface {
	Handle(ctx context.Context, ev EditEvent) (string, error)
}

// Result is the outcome of one queued edit.
type Result struct {
	CommandID string
	CallID    string
	Err       error
}

type command struct {
	id     string
	ctx    context.Context
	event  EditEvent
	result chan Result
}

// Queue feeds edit events to a single worker goroutine so edits are
// handled one at a time in submission order.
type Queue struct {
	handler Handler
	cmds    chan command
	done    chan struct{}
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewQueue starts the worker. size bounds the number of pending edits.
func NewQueue(handler Handler, size int, logger zerolog.Logger) *Queue {
	if size <= 0 {
		size = 1
	}
	q := &Queue{
		handler: handler,
		cmds:    make(chan command, size),
		done:    make(chan struct{}),
		log:     logger.With().Str("component", "edit-queue").Logger(),
	}
	go q.run()
	return q
}

// Submit enqueues an edit. The returned channel receives exactly one Result.
func (q *Queue) Submit(ctx context.Context, ev EditEvent) (<-chan Result, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil, ErrQueueClosed
	}

	cmd := command{id: uuid.NewString(), ctx: ctx, event: ev, result: make(chan Result, 1)}
	select {
	case q.cmds <- cmd:
		return cmd.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting edits, drains the pending ones and waits for the
// worker to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	close(q.cmds)
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for cmd := range q.cmds {
		callID, err := q.handler.Handle(cmd.ctx, cmd.event)
		switch {
		case errors.Is(err, ErrIgnored):
			q.log.Debug().Str("command_id", cmd.id).Str("reason", err.Error()).Msg("Edit ignored")
		case err != nil:
			q.log.Error().Stack().Err(err).Str("command_id", cmd.id).Str("sheet", cmd.event.Sheet).Int("row", cmd.event.Row).Msg("Edit failed")
		}
		cmd.result <- Result{CommandID: cmd.id, CallID: callID, Err: err}
	}
}
