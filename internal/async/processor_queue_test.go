package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	mu      sync.Mutex
	paths   []string
	release chan struct{}
	err     error
}

func (p *recordingProcessor) Process(ctx context.Context, job Job) error {
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, job.Path)
	return p.err
}

func (p *recordingProcessor) processed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.paths...)
}

func TestProcessorQueue_DrainsOnShutdown(t *testing.T) {
	proc := &recordingProcessor{}
	q := NewProcessorQueue(proc, nil, WithWorkers(3), WithQueueSize(16))

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(context.Background(), Job{Path: fmt.Sprintf("s-%d.pdf", i)}))
	}
	q.Shutdown(context.Background())

	assert.ElementsMatch(t,
		[]string{"s-0.pdf", "s-1.pdf", "s-2.pdf", "s-3.pdf", "s-4.pdf", "s-5.pdf", "s-6.pdf", "s-7.pdf", "s-8.pdf", "s-9.pdf"},
		proc.processed())
}

func TestProcessorQueue_ClosedRejects(t *testing.T) {
	q := NewProcessorQueue(&recordingProcessor{}, nil)
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())

	err := q.Enqueue(context.Background(), Job{Path: "late.pdf"})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestProcessorQueue_Backpressure(t *testing.T) {
	proc := &recordingProcessor{release: make(chan struct{})}
	q := NewProcessorQueue(proc, nil, WithWorkers(1), WithQueueSize(1))

	// one job held by the worker, one in the buffer
	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "a"}))
	require.Eventually(t, func() bool { return len(q.ch) == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "b"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, Job{Path: "c"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(proc.release)
	q.Shutdown(context.Background())
	assert.Equal(t, []string{"a", "b"}, proc.processed())
}

func TestProcessorQueue_ErrorsDoNotStopWorkers(t *testing.T) {
	proc := &recordingProcessor{err: errors.New("boom")}
	q := NewProcessorQueue(proc, nil, WithWorkers(1), WithProcessTimeout(time.Second))
	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "a"}))
	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "b"}))
	q.Shutdown(context.Background())
	assert.Len(t, proc.processed(), 2)
}

func TestProcessorQueue_ShutdownTimeout(t *testing.T) {
	proc := &recordingProcessor{release: make(chan struct{})}
	q := NewProcessorQueue(proc, nil, WithWorkers(1))
	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "stuck"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	q.Shutdown(ctx)
	assert.Less(t, time.Since(start), time.Second)

	close(proc.release)
}
