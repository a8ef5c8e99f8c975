package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonlite/litegate/pkg/lite"
	"github.com/tonlite/litegate/pkg/types"
)

func newTestWorker(t *testing.T, m *lite.Mock) *Worker {
	t.Helper()
	return NewWorker(Config{
		Index:      0,
		Liteserver: types.LiteserverConfig{Index: 0, Address: "127.0.0.1", Port: 1234},
		QueueSize:  8,
		NewCapability: func(types.LiteserverConfig) (lite.Capability, error) {
			return m, nil
		},
		LastBlockProbeInterval: 20 * time.Millisecond,
		ArchivalProbeInterval:  time.Hour,
	})
}

func TestWorkerSubmitAndResolve(t *testing.T) {
	m := lite.NewMock(100, false)
	w := newTestWorker(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	task := types.NewTask("t1", types.MethodGetConfigParam, time.Now().Add(time.Second), []any{18, 0}, nil)
	require.NoError(t, w.Submit(task))

	select {
	case res := <-task.ResultChan():
		require.NoError(t, res.Err)
		assert.Equal(t, "t1", res.TaskID)
	case <-time.After(time.Second):
		t.Fatal("task did not resolve in time")
	}

	w.Shutdown()
	<-w.Done()
}

func TestWorkerSubmitPastDeadline(t *testing.T) {
	m := lite.NewMock(100, false)
	w := newTestWorker(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	task := types.NewTask("t2", types.MethodGetConfigParam, time.Now().Add(-time.Second), []any{18, 0}, nil)
	require.NoError(t, w.Submit(task))

	select {
	case res := <-task.ResultChan():
		assert.ErrorIs(t, res.Err, types.ErrTimeout)
	case <-time.After(time.Second):
		t.Fatal("task did not resolve in time")
	}

	w.Shutdown()
	<-w.Done()
}

func TestWorkerOverloadedQueue(t *testing.T) {
	m := lite.NewMock(100, false)
	m.MethodDelay = map[string]time.Duration{"raw_get_account_state": time.Hour}
	w := newTestWorker(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// The first task occupies the task loop (blocked on MethodDelay); the
	// remaining QueueSize entries fill the inbox to capacity.
	for i := 0; i < 9; i++ {
		task := types.NewTask("filler", types.MethodRawGetAccountState, time.Now().Add(time.Hour), []any{"addr", 0}, nil)
		_ = w.Submit(task)
	}

	overflow := types.NewTask("overflow", types.MethodRawGetAccountState, time.Now().Add(time.Hour), []any{"addr", 0}, nil)
	err := w.Submit(overflow)
	assert.ErrorIs(t, err, types.ErrOverloaded)

	w.Shutdown()
	<-w.Done()
}

func TestWorkerLastBlockProbeUpdatesSnapshot(t *testing.T) {
	m := lite.NewMock(42, false)
	w := newTestWorker(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.Snapshot().LastBlock == 42 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 42, w.Snapshot().LastBlock)

	w.Shutdown()
	<-w.Done()
}

func TestWorkerDiesAfterConsecutiveProbeFailures(t *testing.T) {
	m := lite.NewMock(1, false)
	m.MasterErr = assertErr{}
	w := newTestWorker(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	var sawDead bool
	timeout := time.After(5 * time.Second)
loop:
	for {
		select {
		case ev, ok := <-w.Events():
			if !ok {
				break loop
			}
			if ev.Kind == types.EventDeadReport {
				sawDead = true
				break loop
			}
		case <-timeout:
			break loop
		}
	}
	assert.True(t, sawDead, "expected worker to report itself dead after repeated probe failures")

	<-w.Done()
}

type assertErr struct{}

func (assertErr) Error() string { return "masterchain info unavailable" }
