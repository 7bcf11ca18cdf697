package async

import (
	"context"
	"errors"
	"time"
)

// ErrQueueClosed is returned by Enqueue once Shutdown has started.
var ErrQueueClosed = errors.New("queue is shutting down")

// Job asks for one statement file to be parsed.
type Job struct {
	Path        string
	UserID      string
	Force       bool // parse even when the same content was parsed before
	SubmittedAt time.Time
}

// Processor handles one job. It is called from the queue's workers.
type Processor interface {
	Process(ctx context.Context, job Job) error
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
