package workers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingWorker runs fn on every (re)start and counts invocations.
type countingWorker struct {
	runs atomic.Int32
	fn   func(ctx context.Context, run int32) error
}

func (w *countingWorker) Run(ctx context.Context) error {
	return w.fn(ctx, w.runs.Add(1))
}

func TestSupervisor_WorkerFinishingCleanlyIsNotRestarted(t *testing.T) {
	req := require.New(t)
	sup := NewSupervisor(testLogger(), time.Millisecond)

	worker := &countingWorker{fn: func(ctx context.Context, run int32) error {
		return nil
	}}
	sup.Add(worker)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sup.Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not return after worker finished")
	}
	req.EqualValues(1, worker.runs.Load())
}

func TestSupervisor_PanickingWorkerIsRestarted(t *testing.T) {
	req := require.New(t)
	sup := NewSupervisor(testLogger(), time.Millisecond)

	// Given a worker that panics twice before finishing cleanly
	worker := &countingWorker{fn: func(ctx context.Context, run int32) error {
		if run <= 2 {
			panic("boom")
		}
		return nil
	}}
	sup.Add(worker)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sup.Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not recover from worker panics")
	}
	req.EqualValues(3, worker.runs.Load())
}

func TestSupervisor_ErroringWorkerIsRestarted(t *testing.T) {
	req := require.New(t)
	sup := NewSupervisor(testLogger(), time.Millisecond)

	worker := &countingWorker{fn: func(ctx context.Context, run int32) error {
		if run == 1 {
			return errors.New("transient failure")
		}
		return nil
	}}
	sup.Add(worker)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sup.Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not restart erroring worker")
	}
	req.EqualValues(2, worker.runs.Load())
}

func TestSupervisor_StopCancelsBlockedWorkers(t *testing.T) {
	req := require.New(t)
	sup := NewSupervisor(testLogger(), time.Millisecond)

	worker := &countingWorker{fn: func(ctx context.Context, run int32) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	sup.Add(worker)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sup.Run(context.Background())
	}()

	// Give the worker a moment to start blocking, then stop
	time.Sleep(20 * time.Millisecond)
	sup.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not unwind on Stop")
	}
	req.EqualValues(1, worker.runs.Load())
}

func TestSupervisor_ParentContextCancellationStopsWorkers(t *testing.T) {
	req := require.New(t)
	sup := NewSupervisor(testLogger(), time.Millisecond)

	worker := &countingWorker{fn: func(ctx context.Context, run int32) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	sup.Add(worker)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sup.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor ignored parent cancellation")
	}
	req.EqualValues(1, worker.runs.Load())
}
