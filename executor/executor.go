// Package executor runs long computations on a single reusable background
// goroutine. One job runs at a time; progress reports and the final result
// are delivered through channels on a per-job handle.
package executor

import (
	"context"
	"errors"
	"sync"
)

// ErrCancelled is delivered for jobs torn down by Cancel, including
// submissions still waiting on a busy worker.
var ErrCancelled = errors.New("executor: job cancelled")

// Progress is one step report from a running job.
type Progress struct {
	Phase   string
	Percent float64
}

// Job is a unit of background work. Run must return promptly once ctx is
// done. Reports arrive on the handle in call order; a report may be dropped
// if the consumer lags.
type Job interface {
	Name() string
	Run(ctx context.Context, report func(Progress)) (any, error)
}

// Result carries the job outcome.
type Result struct {
	Value any
	Err   error
}

// Handle observes a submitted job. The Progress channel is closed before
// Done delivers, so draining Progress then reading Done sees every report.
type Handle struct {
	Progress <-chan Progress
	Done     <-chan Result
}

type submission struct {
	job      Job
	gen      uint64
	progress chan Progress
	done     chan Result
}

// Executor owns at most one worker goroutine, created lazily on the first
// Submit and replaced after Cancel.
type Executor struct {
	mu          sync.Mutex
	idle        *sync.Cond
	synchronous bool
	gen         uint64
	running     bool
	jobs        chan submission
	cancel      context.CancelFunc
}

// New creates an idle executor. With synchronous set, Submit runs jobs on
// the calling goroutine and returns an already completed handle.
func New(synchronous bool) *Executor {
	e := &Executor{synchronous: synchronous}
	e.idle = sync.NewCond(&e.mu)

	return e
}

// Synchronous reports whether jobs run on the caller's goroutine.
func (e *Executor) Synchronous() bool {
	return e.synchronous
}

// Busy reports whether a job is currently running.
func (e *Executor) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.running
}

// Submit schedules a job. One job runs at a time; while another job is in
// flight, Submit blocks until that job completes, then dispatches. A Cancel
// issued while Submit is waiting fails the submission with ErrCancelled.
func (e *Executor) Submit(job Job) (*Handle, error) {
	e.mu.Lock()

	gen := e.gen
	for e.running {
		e.idle.Wait()
		if e.gen != gen {
			e.mu.Unlock()
			return nil, ErrCancelled
		}
	}

	sub := submission{
		job:      job,
		gen:      e.gen,
		progress: make(chan Progress, 128),
		done:     make(chan Result, 1),
	}
	handle := &Handle{Progress: sub.progress, Done: sub.done}

	if e.synchronous {
		e.running = true
		e.mu.Unlock()

		e.runJob(context.Background(), sub)

		return handle, nil
	}

	if e.jobs == nil {
		ctx, cancel := context.WithCancel(context.Background())
		e.jobs = make(chan submission, 1)
		e.cancel = cancel

		go e.work(ctx, e.jobs)
	}

	e.running = true
	e.jobs <- sub
	e.mu.Unlock()

	return handle, nil
}

// Cancel aborts the running job and tears down the worker. The aborted
// job's handle receives ErrCancelled. The next Submit starts a fresh
// worker.
func (e *Executor) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
		e.jobs = nil
	}

	// Invalidate in-flight completions so they cannot clear the state of
	// a job submitted after this cancel.
	e.gen++
	e.running = false
	e.idle.Broadcast()
}

func (e *Executor) work(ctx context.Context, jobs <-chan submission) {
	for {
		select {
		case <-ctx.Done():
			// Fail anything submitted but not yet started.
			for {
				select {
				case sub := <-jobs:
					close(sub.progress)
					sub.done <- Result{Err: ErrCancelled}
				default:
					return
				}
			}
		case sub := <-jobs:
			e.runJob(ctx, sub)
		}
	}
}

func (e *Executor) runJob(ctx context.Context, sub submission) {
	report := func(p Progress) {
		select {
		case sub.progress <- p:
		default:
		}
	}

	value, err := sub.job.Run(ctx, report)

	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		value, err = nil, ErrCancelled
	}

	close(sub.progress)
	sub.done <- Result{Value: value, Err: err}

	e.finish(sub.gen)
}

func (e *Executor) finish(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen == e.gen {
		e.running = false
		e.idle.Broadcast()
	}
}
