// Package queue provides the serialization queue in front of the store: a
// strict FIFO that runs admitted tasks one at a time on a single worker
// goroutine.
//
// Guarantees:
//   - at most one task executes at any instant;
//   - tasks run in admission order;
//   - a task's completion, success, failure or panic, releases exactly the next
//     task;
//   - admitted tasks are never dropped or cancelled; Close drains them.
//
// There is no per-task timeout. A task that never returns blocks every task
// behind it.
//
// The backlog is unbounded unless Options.Capacity is set, in which case
// Submit rejects work with ErrFull once Capacity tasks are waiting.
package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	// ErrClosed is returned by Submit after Close has been called.
	ErrClosed = errors.New("queue: closed")

	// ErrFull is returned by Submit when a capacity is configured and the
	// backlog is at capacity.
	ErrFull = errors.New("queue: backlog full")

	// ErrPanic wraps the value of a task that panicked.
	ErrPanic = errors.New("queue: task panicked")
)

// Task is a unit of work. ctx is the queue's run context; it is only
// cancelled once Close gives up waiting for the backlog to drain.
type Task func(ctx context.Context) error

type entry struct {
	name string
	task Task
	done chan error // buffered(1)
}

// Options configures a Queue.
type Options struct {
	// Name labels log lines and metrics.
	Name string
	// Capacity bounds the number of waiting tasks; <= 0 means unbounded.
	Capacity int
}

// Queue is a single-worker FIFO task queue. It is safe for concurrent use.
type Queue struct {
	name     string
	capacity int

	mu      sync.Mutex
	pending []entry
	closed  bool
	signal  chan struct{} // buffered(1), coalesces wakeups

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{} // closed when the worker exits
}

// New starts a Queue and its worker goroutine.
func New(opts Options) *Queue {
	name := opts.Name
	if name == "" {
		name = "default"
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		name:     name,
		capacity: opts.Capacity,
		pending:  make([]entry, 0, 64),
		signal:   make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go q.loop()
	return q
}

// Submit admits task to the back of the queue and returns immediately. The
// returned channel receives the task's result once it has run; callers that
// do not care may ignore it.
func (q *Queue) Submit(task Task) (<-chan error, error) {
	return q.SubmitNamed("", task)
}

// SubmitNamed is Submit with a label used in logs.
func (q *Queue) SubmitNamed(name string, task Task) (<-chan error, error) {
	if task == nil {
		return nil, errors.New("queue: nil task")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		rejected.WithLabelValues(q.name, "closed").Inc()
		return nil, ErrClosed
	}
	if q.capacity > 0 && len(q.pending) >= q.capacity {
		rejected.WithLabelValues(q.name, "full").Inc()
		return nil, ErrFull
	}

	e := entry{name: name, task: task, done: make(chan error, 1)}
	q.pending = append(q.pending, e)
	depth.WithLabelValues(q.name).Set(float64(len(q.pending)))

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return e.done, nil
}

// Do submits task and waits for its result. If ctx ends first, Do returns
// ctx.Err(); the task still runs in its turn.
func (q *Queue) Do(ctx context.Context, task Task) error {
	done, err := q.Submit(task)
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of admitted tasks that have not started yet.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops admitting tasks and waits for the backlog to drain. If ctx ends
// before the worker finishes, the run context handed to tasks is cancelled and
// Close returns ctx.Err(); remaining tasks still run, observing a cancelled
// context. Close is idempotent.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.signal)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		q.cancel()
		return ctx.Err()
	}
}

// Done is closed once the worker has exited after Close.
func (q *Queue) Done() <-chan struct{} { return q.done }

func (q *Queue) loop() {
	defer close(q.done)
	defer q.cancel()

	for {
		e, ok := q.next()
		if !ok {
			return
		}
		err := q.run(e)
		e.done <- err
	}
}

// next blocks until a task is available or the queue is closed and empty.
func (q *Queue) next() (entry, bool) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			e := q.pending[0]
			q.pending[0] = entry{} // release references for GC
			if len(q.pending) == 1 {
				q.pending = q.pending[:0]
			} else {
				q.pending = q.pending[1:]
			}
			depth.WithLabelValues(q.name).Set(float64(len(q.pending)))
			q.mu.Unlock()
			return e, true
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return entry{}, false
		}
		<-q.signal
	}
}

// run executes one task, converting a panic into an error.
func (q *Queue) run(e entry) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Str("queue", q.name).
				Str("task", e.name).
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("queue task panicked")
			err = fmt.Errorf("%w: %v", ErrPanic, rec)
		}
		result := "ok"
		if err != nil {
			result = "error"
		}
		tasks.WithLabelValues(q.name, result).Inc()
	}()

	if err = e.task(q.ctx); err != nil {
		log.Error().
			Err(err).
			Str("queue", q.name).
			Str("task", e.name).
			Msg("queue task failed")
	}
	return err
}
