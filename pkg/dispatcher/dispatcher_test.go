package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonlite/litegate/pkg/consensus"
	"github.com/tonlite/litegate/pkg/lite"
	"github.com/tonlite/litegate/pkg/supervisor"
	"github.com/tonlite/litegate/pkg/types"
)

func newHarness(t *testing.T, mocks map[int]*lite.Mock) (*supervisor.Supervisor, *consensus.Tracker) {
	t.Helper()
	tracker := consensus.NewTracker()
	cfgs := make([]types.LiteserverConfig, 0, len(mocks))
	for idx := range mocks {
		cfgs = append(cfgs, types.LiteserverConfig{Index: idx})
	}
	sup := supervisor.New(supervisor.Options{
		Liteservers: cfgs,
		NewCapability: func(cfg types.LiteserverConfig) (lite.Capability, error) {
			return mocks[cfg.Index], nil
		},
		QueueSize: 16,
		Tracker:   tracker,
	})

	ctx := context.Background()
	sup.Start(ctx)

	require.Eventually(t, func() bool {
		for idx := range mocks {
			w, ok := sup.Worker(idx)
			if !ok || !w.Alive() {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)

	// Let the last-block probes populate consensus at least once.
	require.Eventually(t, func() bool {
		tracker.Recompute()
		return tracker.Block().Seqno > 0
	}, 2*time.Second, 20*time.Millisecond)

	return sup, tracker
}

func TestDispatchAnyWorkingHappyPath(t *testing.T) {
	mocks := map[int]*lite.Mock{0: lite.NewMock(100, false), 1: lite.NewMock(100, false)}
	sup, tracker := newHarness(t, mocks)
	defer sup.Shutdown()

	d := New(sup, tracker, time.Second)
	res, err := d.Dispatch(context.Background(), Request{Method: types.MethodGetConfigParam, Args: []any{18, 0}, Policy: AnyWorking})
	require.NoError(t, err)
	assert.NoError(t, res.Err)
}

func TestDispatchArchivalPreferredFallsBackWhenNoneArchival(t *testing.T) {
	mocks := map[int]*lite.Mock{0: lite.NewMock(100, false), 1: lite.NewMock(100, false)}
	sup, tracker := newHarness(t, mocks)
	defer sup.Shutdown()

	d := New(sup, tracker, time.Second)
	res, err := d.Dispatch(context.Background(), Request{Method: types.MethodRawGetTransactions, Args: []any{"addr", int64(0), ""}, Policy: ArchivalPreferred})
	require.NoError(t, err)
	assert.NoError(t, res.Err)
}

func TestDispatchTimeoutLeavesNoFutureBehind(t *testing.T) {
	m := lite.NewMock(100, false)
	m.MethodDelay = map[string]time.Duration{"raw_get_account_state": time.Hour}
	mocks := map[int]*lite.Mock{0: m}
	sup, tracker := newHarness(t, mocks)
	defer sup.Shutdown()

	d := New(sup, tracker, 50*time.Millisecond)
	_, err := d.Dispatch(context.Background(), Request{Method: types.MethodRawGetAccountState, Args: []any{"addr", 0}, Policy: AnyWorking})
	assert.ErrorIs(t, err, types.ErrTimeout)
}

func TestDispatchFanOutReturnsFirstAndDiscardsRest(t *testing.T) {
	mocks := map[int]*lite.Mock{
		0: lite.NewMock(100, false),
		1: lite.NewMock(100, false),
		2: lite.NewMock(100, false),
		3: lite.NewMock(100, false),
	}
	mocks[0].Delay = 5 * time.Millisecond
	mocks[1].Delay = time.Hour
	mocks[2].Delay = time.Hour
	mocks[3].Delay = time.Hour

	sup, tracker := newHarness(t, mocks)
	defer sup.Shutdown()

	d := New(sup, tracker, time.Second)
	res, err := d.Dispatch(context.Background(), Request{Method: types.MethodRawSendMessage, Args: []any{[]byte("boc")}, Policy: FanOut})
	require.NoError(t, err)
	assert.NoError(t, res.Err)
}
