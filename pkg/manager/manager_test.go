package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonlite/litegate/pkg/lite"
	"github.com/tonlite/litegate/pkg/types"
)

func newTestManager(t *testing.T, mocks map[int]*lite.Mock) *Manager {
	t.Helper()
	cfgs := make([]types.LiteserverConfig, 0, len(mocks))
	for idx := range mocks {
		cfgs = append(cfgs, types.LiteserverConfig{Index: idx})
	}
	mgr := New(Options{
		Liteservers: cfgs,
		NewCapability: func(cfg types.LiteserverConfig) (lite.Capability, error) {
			return mocks[cfg.Index], nil
		},
		QueueSize:      16,
		RequestTimeout: time.Second,
	})
	ctx := context.Background()
	mgr.Start(ctx)

	require.Eventually(t, func() bool {
		return mgr.GetConsensusBlock().Seqno > 0 || allAlive(mgr)
	}, 2*time.Second, 10*time.Millisecond)

	t.Cleanup(mgr.Shutdown)
	return mgr
}

func allAlive(mgr *Manager) bool {
	for _, w := range mgr.GetWorkersState() {
		if w.LastBlock <= 0 {
			return false
		}
	}
	return len(mgr.GetWorkersState()) > 0
}

func TestManagerSingleWorkerHappyPath(t *testing.T) {
	m := lite.NewMock(12345, false)
	mgr := newTestManager(t, map[int]*lite.Mock{0: m})

	require.Eventually(t, func() bool {
		return mgr.GetConsensusBlock().Seqno == 12345
	}, 2*time.Second, 10*time.Millisecond)

	res, err := mgr.GetMasterchainInfo(context.Background())
	require.NoError(t, err)
	last, _ := res["last"].(lite.Result)
	assert.EqualValues(t, 12345, last["seqno"])
}

func TestManagerArchivalPreference(t *testing.T) {
	a := lite.NewMock(100, false)
	b := lite.NewMock(100, true)
	mgr := newTestManager(t, map[int]*lite.Mock{0: a, 1: b})

	require.Eventually(t, func() bool {
		return mgr.GetConsensusBlock().Seqno == 100
	}, 2*time.Second, 10*time.Millisecond)

	// force archival probes to have run by waiting for IsArchival to show on worker 1
	require.Eventually(t, func() bool {
		for _, w := range mgr.GetWorkersState() {
			if w.Index == 1 && w.IsArchival {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	res, err := mgr.GetBlockHeader(context.Background(), -1, -9223372036854775808, 100-5000, "", "")
	require.NoError(t, err)
	assert.NotNil(t, res)
}

func TestManagerFanOutSend(t *testing.T) {
	mocks := map[int]*lite.Mock{}
	for i := 0; i < 4; i++ {
		mk := lite.NewMock(10, false)
		if i == 0 {
			mk.Delay = 50 * time.Millisecond
		} else {
			mk.Delay = 500 * time.Millisecond
		}
		mocks[i] = mk
	}
	mgr := newTestManager(t, mocks)

	require.Eventually(t, func() bool {
		return mgr.GetConsensusBlock().Seqno == 10
	}, 2*time.Second, 10*time.Millisecond)

	start := time.Now()
	res, err := mgr.RawSendMessage(context.Background(), []byte("boc"))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.Equal(t, "ok", res.TypeTag())
}

func TestManagerBlockNotFoundSurfacesAs404Kind(t *testing.T) {
	m := lite.NewMock(100, false)
	m.BlockNotFound = true
	mgr := newTestManager(t, map[int]*lite.Mock{0: m})

	require.Eventually(t, func() bool {
		return mgr.GetConsensusBlock().Seqno == 100
	}, 2*time.Second, 10*time.Millisecond)

	_, err := mgr.LookupBlock(context.Background(), -1, -9223372036854775808, 50, 0, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Equal(t, 404, types.StatusCode(err))
}

func TestManagerGetWorkersStateAndConsensusBlock(t *testing.T) {
	mgr := newTestManager(t, map[int]*lite.Mock{0: lite.NewMock(5, false)})
	require.Eventually(t, func() bool {
		return mgr.GetConsensusBlock().Seqno == 5
	}, 2*time.Second, 10*time.Millisecond)

	states := mgr.GetWorkersState()
	require.Len(t, states, 1)
	assert.Equal(t, 5, states[0].LastBlock)
}
