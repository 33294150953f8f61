package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcJob struct {
	name string
	run  func(ctx context.Context, report func(Progress)) (any, error)
}

func (j funcJob) Name() string { return j.name }

func (j funcJob) Run(ctx context.Context, report func(Progress)) (any, error) {
	return j.run(ctx, report)
}

func drain(t *testing.T, h *Handle) ([]Progress, Result) {
	t.Helper()

	var reports []Progress
	for p := range h.Progress {
		reports = append(reports, p)
	}

	select {
	case res := <-h.Done:
		return reports, res
	case <-time.After(5 * time.Second):
		t.Fatal("job did not complete")
		return nil, Result{}
	}
}

func TestSubmitDeliversResultAndProgress(t *testing.T) {
	e := New(false)
	defer e.Cancel()

	handle, err := e.Submit(funcJob{
		name: "compute",
		run: func(ctx context.Context, report func(Progress)) (any, error) {
			report(Progress{Phase: "a", Percent: 0.5})
			report(Progress{Phase: "b", Percent: 1.0})
			return 42, nil
		},
	})
	require.NoError(t, err)

	reports, res := drain(t, handle)
	require.NoError(t, res.Err)
	assert.Equal(t, 42, res.Value)
	require.Len(t, reports, 2)
	assert.Equal(t, "a", reports[0].Phase)
	assert.Equal(t, "b", reports[1].Phase)
}

func TestSubmitWaitsForRunningJob(t *testing.T) {
	e := New(false)
	defer e.Cancel()

	release := make(chan struct{})
	first, err := e.Submit(funcJob{
		name: "slow",
		run: func(ctx context.Context, report func(Progress)) (any, error) {
			<-release
			return "first", nil
		},
	})
	require.NoError(t, err)
	assert.True(t, e.Busy())

	type submitOutcome struct {
		handle *Handle
		err    error
	}
	second := make(chan submitOutcome, 1)
	go func() {
		h, err := e.Submit(funcJob{
			name: "second",
			run: func(ctx context.Context, report func(Progress)) (any, error) {
				return "second", nil
			},
		})
		second <- submitOutcome{handle: h, err: err}
	}()

	// The second submission parks behind the running job.
	select {
	case <-second:
		t.Fatal("submit returned while another job was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	_, res := drain(t, first)
	require.NoError(t, res.Err)
	assert.Equal(t, "first", res.Value)

	select {
	case out := <-second:
		require.NoError(t, out.err)
		_, res := drain(t, out.handle)
		require.NoError(t, res.Err)
		assert.Equal(t, "second", res.Value)
	case <-time.After(5 * time.Second):
		t.Fatal("waiting submission was never dispatched")
	}

	assert.Eventually(t, func() bool { return !e.Busy() }, time.Second, 5*time.Millisecond)
}

func TestCancelUnblocksWaitingSubmit(t *testing.T) {
	e := New(false)

	started := make(chan struct{})
	_, err := e.Submit(funcJob{
		name: "first",
		run: func(ctx context.Context, report func(Progress)) (any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	require.NoError(t, err)
	<-started

	waiting := make(chan error, 1)
	go func() {
		_, err := e.Submit(funcJob{
			name: "second",
			run: func(ctx context.Context, report func(Progress)) (any, error) {
				return nil, nil
			},
		})
		waiting <- err
	}()

	// Let the second submission park on the busy worker before cancelling.
	time.Sleep(100 * time.Millisecond)
	e.Cancel()

	select {
	case err := <-waiting:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("waiting submission was not released by Cancel")
	}
}

func TestCancelAbortsRunningJob(t *testing.T) {
	e := New(false)

	started := make(chan struct{})
	handle, err := e.Submit(funcJob{
		name: "interruptible",
		run: func(ctx context.Context, report func(Progress)) (any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	require.NoError(t, err)

	<-started
	e.Cancel()

	_, res := drain(t, handle)
	assert.ErrorIs(t, res.Err, ErrCancelled)
	assert.False(t, e.Busy())
}

func TestFreshWorkerAfterCancel(t *testing.T) {
	e := New(false)
	defer e.Cancel()

	started := make(chan struct{})
	_, err := e.Submit(funcJob{
		name: "first",
		run: func(ctx context.Context, report func(Progress)) (any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	require.NoError(t, err)
	<-started
	e.Cancel()

	handle, err := e.Submit(funcJob{
		name: "second",
		run: func(ctx context.Context, report func(Progress)) (any, error) {
			return "ok", nil
		},
	})
	require.NoError(t, err)

	_, res := drain(t, handle)
	require.NoError(t, res.Err)
	assert.Equal(t, "ok", res.Value)
}

func TestJobErrorPropagates(t *testing.T) {
	e := New(false)
	defer e.Cancel()

	boom := errors.New("boom")
	handle, err := e.Submit(funcJob{
		name: "failing",
		run: func(ctx context.Context, report func(Progress)) (any, error) {
			return nil, boom
		},
	})
	require.NoError(t, err)

	_, res := drain(t, handle)
	assert.ErrorIs(t, res.Err, boom)
}

func TestSynchronousMode(t *testing.T) {
	e := New(true)
	assert.True(t, e.Synchronous())

	ran := false
	handle, err := e.Submit(funcJob{
		name: "inline",
		run: func(ctx context.Context, report func(Progress)) (any, error) {
			ran = true
			report(Progress{Phase: "only", Percent: 1.0})
			return "done", nil
		},
	})
	require.NoError(t, err)

	// The job already ran on this goroutine.
	assert.True(t, ran)
	assert.False(t, e.Busy())

	reports, res := drain(t, handle)
	require.NoError(t, res.Err)
	assert.Equal(t, "done", res.Value)
	require.Len(t, reports, 1)
	assert.Equal(t, "only", reports[0].Phase)
}
