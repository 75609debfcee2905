// Package syncq mirrors collection mutations to the remote collection
// service on a best-effort basis. Callers enqueue and move on; the
// worker retries transient failures with exponential backoff and gives
// up loudly, never blocking the request path.
//
// Losing a mirror write is acceptable: the session store stays
// authoritative for the UI, and the next successful write or the next
// login-triggered merge repairs the remote side.
package syncq

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"shopsync/internal/model"
	"shopsync/internal/remote"
)

// Applier applies one mutation remotely. Satisfied by *remote.Client.
type Applier interface {
	Apply(ctx context.Context, token string, kind model.Kind, m remote.Mutation) error
}

// Op is one queued mirror operation.
type Op struct {
	Token    string
	Kind     model.Kind
	Mutation remote.Mutation
}

// Config tunes the queue. Zero values get sensible defaults.
type Config struct {
	// QueueSize bounds pending operations; enqueues beyond it are
	// dropped (and reported) rather than blocking. Default 256.
	QueueSize int

	// MaxAttempts per operation, including the first. Default 4.
	MaxAttempts int

	// MaxInterval caps the backoff between attempts. Default 5s.
	MaxInterval time.Duration

	// OnFailure runs after an operation is dropped or exhausts its
	// retries. Optional; failures are always logged regardless.
	OnFailure func(op Op, err error)
}

// Queue is the mirror worker. Start it once with Run; Enqueue from any
// goroutine.
type Queue struct {
	applier Applier
	cfg     Config
	logger  *slog.Logger
	ops     chan Op
}

// New creates a mirror queue.
func New(applier Applier, cfg Config, logger *slog.Logger) *Queue {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	return &Queue{
		applier: applier,
		cfg:     cfg,
		logger:  logger,
		ops:     make(chan Op, cfg.QueueSize),
	}
}

// Enqueue queues a mutation for mirroring. Never blocks: if the queue is
// full the operation is dropped and reported through OnFailure.
func (q *Queue) Enqueue(op Op) {
	select {
	case q.ops <- op:
	default:
		err := model.ErrRemoteWrite
		q.logger.Warn("mirror queue full, dropping operation",
			slog.String("kind", string(op.Kind)),
			slog.String("action", op.Mutation.Action),
		)
		if q.cfg.OnFailure != nil {
			q.cfg.OnFailure(op, err)
		}
	}
}

// Run processes queued operations until ctx is canceled.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-q.ops:
			q.deliver(ctx, op)
		}
	}
}

// deliver applies one operation, retrying with exponential backoff until
// it succeeds, attempts run out, or ctx is canceled.
func (q *Queue) deliver(ctx context.Context, op Op) {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.InitialInterval = 100 * time.Millisecond
	backoffCfg.MaxInterval = q.cfg.MaxInterval

	var lastErr error
	for attempt := 1; attempt <= q.cfg.MaxAttempts; attempt++ {
		lastErr = q.applier.Apply(ctx, op.Token, op.Kind, op.Mutation)
		if lastErr == nil {
			return
		}

		q.logger.Warn("mirror write failed",
			slog.String("kind", string(op.Kind)),
			slog.String("action", op.Mutation.Action),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()),
		)

		if attempt == q.cfg.MaxAttempts {
			break
		}
		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			sleep = q.cfg.MaxInterval
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}

	q.logger.Error("mirror write abandoned",
		slog.String("kind", string(op.Kind)),
		slog.String("action", op.Mutation.Action),
		slog.Int("attempts", q.cfg.MaxAttempts),
		slog.String("error", lastErr.Error()),
	)
	if q.cfg.OnFailure != nil {
		q.cfg.OnFailure(op, lastErr)
	}
}
