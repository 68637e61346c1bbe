// Package writeback runs durable-tier writes in the background.
//
// A Queue is a bounded job channel served by a fixed set of workers. Callers
// never block on Submit: when the channel is full the task is dropped and the
// drop is reported like any other failure. Each task runs at most once.
//
// Failures are logged and also published on Errors() so operators (or tests)
// can observe them. The error channel is buffered and written without
// blocking, so a consumer that never reads it cannot stall the workers.
package writeback

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/chartcn/pkg/errors"
)

// Defaults applied by Options.ValidateAndSetDefaults.
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 256
	errorBuffer      = 64
)

// Task is a unit of background work. The context is cancelled when the
// queue is closed with an expired deadline.
type Task func(ctx context.Context) error

// Failure describes a task that did not complete.
type Failure struct {
	Name string
	Err  error
}

func (f Failure) Error() string {
	return fmt.Sprintf("writeback %s: %v", f.Name, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Options configures a Queue.
type Options struct {
	Workers   int
	QueueSize int
	Logger    *log.Logger
}

// ValidateAndSetDefaults fills zero fields.
func (o *Options) ValidateAndSetDefaults() error {
	if o.Workers < 0 || o.QueueSize < 0 {
		return errors.New(errors.ErrCodeValidation, "writeback: negative workers or queue size")
	}
	if o.Workers == 0 {
		o.Workers = DefaultWorkers
	}
	if o.QueueSize == 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return nil
}

type job struct {
	name string
	fn   Task
}

// Queue is a bounded background worker queue.
type Queue struct {
	jobs   chan job
	errs   chan error
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	submitted atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Pending   int   `json:"pending"`
	Submitted int64 `json:"submitted"`
	Dropped   int64 `json:"dropped"`
	Failed    int64 `json:"failed"`
}

// New starts a queue with opts.Workers goroutines.
func New(opts Options) (*Queue, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		jobs:   make(chan job, opts.QueueSize),
		errs:   make(chan error, errorBuffer),
		logger: opts.Logger,
		ctx:    ctx,
		cancel: cancel,
	}
	for range opts.Workers {
		q.wg.Add(1)
		go q.worker()
	}
	return q, nil
}

// Submit enqueues fn without blocking. It reports false when the task was
// rejected because the queue is full or closed.
func (q *Queue) Submit(name string, fn Task) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.report(name, errors.New(errors.ErrCodeStore, "queue closed"))
		q.dropped.Add(1)
		return false
	}
	select {
	case q.jobs <- job{name: name, fn: fn}:
		q.submitted.Add(1)
		return true
	default:
		q.report(name, errors.New(errors.ErrCodeStore, "queue full"))
		q.dropped.Add(1)
		return false
	}
}

// Errors returns the channel failures are published on.
func (q *Queue) Errors() <-chan error {
	return q.errs
}

// Stats returns current counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Pending:   len(q.jobs),
		Submitted: q.submitted.Load(),
		Dropped:   q.dropped.Load(),
		Failed:    q.failed.Load(),
	}
}

// Close stops intake and waits for queued and in-flight tasks. If ctx
// expires first, running tasks see their context cancelled and Close
// returns ctx.Err() without waiting further.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		return ctx.Err()
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for j := range q.jobs {
		if err := q.run(j); err != nil {
			q.failed.Add(1)
			q.report(j.name, err)
		}
	}
}

func (q *Queue) run(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.ErrCodeInternal, "panic: %v", r)
		}
	}()
	return j.fn(q.ctx)
}

func (q *Queue) report(name string, err error) {
	q.logger.Warn("background write failed", "task", name, "err", err)
	select {
	case q.errs <- Failure{Name: name, Err: err}:
	default:
	}
}
