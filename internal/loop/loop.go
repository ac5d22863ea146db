// Package loop runs outbound chat operations on a single ordered executor.
//
// Callers on arbitrary goroutines hand work to the loop instead of calling the
// chat client directly. Tasks run one at a time in submission order. A caller
// either fires and forgets (Submit) or waits with a deadline (SubmitWait);
// a deadline miss is reported as ErrTimeout, never as success.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/keepmind9/discordbackend/internal/logger"
	"github.com/sirupsen/logrus"
)

var (
	// ErrTimeout is returned by SubmitWait when the task did not finish in time
	ErrTimeout = errors.New("task timed out")
	// ErrClosed is returned when submitting to a loop that has been shut down
	ErrClosed = errors.New("task loop closed")
)

// Task is a unit of outbound work. ctx is cancelled on shutdown.
type Task func(ctx context.Context) error

// Future tracks a submitted task
type Future struct {
	ID   string
	Name string
	done chan struct{}
	err  error
}

// Done is closed once the task has finished or been cancelled
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the task result; only valid after Done is closed
func (f *Future) Err() error {
	return f.err
}

func (f *Future) finish(err error) {
	f.err = err
	close(f.done)
}

type job struct {
	future *Future
	task   Task
}

// Loop is an ordered single-worker executor
type Loop struct {
	// submitMu orders submitters, including those waiting for a free slot
	submitMu sync.Mutex

	mu      sync.Mutex
	queue   chan *job
	pending map[string]*Future
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	closed  bool
}

// New creates a loop with the given queue capacity. Call Start before use.
func New(queueSize int) *Loop {
	if queueSize <= 0 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		queue:   make(chan *job, queueSize),
		pending: make(map[string]*Future),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the worker goroutine
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if l.running {
		return fmt.Errorf("task loop is already running")
	}
	l.running = true

	l.wg.Add(1)
	go l.run()

	logger.Debug("task-loop-started")
	return nil
}

func (l *Loop) run() {
	defer l.wg.Done()

	for {
		select {
		case <-l.ctx.Done():
			l.drain()
			return
		case j := <-l.queue:
			l.execute(j)
		}
	}
}

func (l *Loop) execute(j *job) {
	// A task dequeued after cancellation is reported as cancelled, not run
	if err := l.ctx.Err(); err != nil {
		l.complete(j, err)
		return
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task %s panicked: %v", j.future.Name, r)
			}
		}()
		return j.task(l.ctx)
	}()
	l.complete(j, err)
}

func (l *Loop) drain() {
	for {
		select {
		case j := <-l.queue:
			l.complete(j, context.Canceled)
		default:
			return
		}
	}
}

func (l *Loop) complete(j *job, err error) {
	l.mu.Lock()
	delete(l.pending, j.future.ID)
	l.mu.Unlock()

	if err != nil {
		logger.WithFields(logrus.Fields{
			"task_id": j.future.ID,
			"task":    j.future.Name,
			"error":   err,
		}).Debug("task-finished-with-error")
	}
	j.future.finish(err)
}

// Submit schedules task without waiting for it to run. When the queue is
// full it waits for a free slot. Failures are logged.
func (l *Loop) Submit(name string, task Task) (*Future, error) {
	return l.submit(context.Background(), name, task)
}

func (l *Loop) submit(ctx context.Context, name string, task Task) (*Future, error) {
	l.submitMu.Lock()
	defer l.submitMu.Unlock()

	f := &Future{
		ID:   uuid.New().String(),
		Name: name,
		done: make(chan struct{}),
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	l.pending[f.ID] = f
	l.mu.Unlock()

	select {
	case l.queue <- &job{future: f, task: task}:
	case <-l.ctx.Done():
		l.forget(f)
		return nil, ErrClosed
	case <-ctx.Done():
		l.forget(f)
		return nil, ctx.Err()
	}

	go func() {
		<-f.done
		if f.err != nil && !errors.Is(f.err, context.Canceled) {
			logger.WithFields(logrus.Fields{
				"task_id": f.ID,
				"task":    f.Name,
				"error":   f.err,
			}).Error("task-failed")
		}
	}()

	return f, nil
}

func (l *Loop) forget(f *Future) {
	l.mu.Lock()
	delete(l.pending, f.ID)
	l.mu.Unlock()
}

// SubmitWait schedules task and waits up to timeout for its result. Time
// spent waiting for a queue slot counts against timeout.
func (l *Loop) SubmitWait(ctx context.Context, name string, timeout time.Duration, task Task) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	enqueueCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	f, err := l.submit(enqueueCtx, name, task)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%s: %w", name, ErrTimeout)
		}
		return err
	}

	select {
	case <-f.Done():
		return f.Err()
	case <-timer.C:
		logger.WithFields(logrus.Fields{
			"task_id": f.ID,
			"task":    name,
			"timeout": timeout,
		}).Warn("task-wait-timed-out")
		return fmt.Errorf("%s: %w", name, ErrTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits until every task submitted before the call has finished
func (l *Loop) Flush(ctx context.Context) error {
	f, err := l.submit(ctx, "flush", func(context.Context) error { return nil })
	if err != nil {
		return err
	}
	select {
	case <-f.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of submitted tasks that have not finished
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Shutdown cancels all outstanding tasks and waits for the worker to exit.
// Errors from cancelled tasks are swallowed; Shutdown itself never fails
// except when ctx expires first.
func (l *Loop) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	running := l.running
	outstanding := len(l.pending)
	l.mu.Unlock()

	logger.WithField("outstanding", outstanding).Info("cancelling-outstanding-tasks")
	l.cancel()

	if running {
		done := make(chan struct{})
		go func() {
			l.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			logger.Debug("task-loop-stopped")
		case <-ctx.Done():
			return fmt.Errorf("task loop did not stop: %w", ctx.Err())
		}
	}

	// Submitters still waiting for a slot see the cancellation and leave;
	// anything they managed to enqueue is completed here
	l.submitMu.Lock()
	l.drain()
	l.submitMu.Unlock()
	return nil
}
