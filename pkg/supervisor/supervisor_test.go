package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonlite/litegate/pkg/consensus"
	"github.com/tonlite/litegate/pkg/lite"
	"github.com/tonlite/litegate/pkg/types"
)

func TestSupervisorSpawnsOneWorkerPerLiteserver(t *testing.T) {
	tracker := consensus.NewTracker()
	sup := New(Options{
		Liteservers: []types.LiteserverConfig{{Index: 0}, {Index: 1}},
		NewCapability: func(types.LiteserverConfig) (lite.Capability, error) {
			return lite.NewMock(10, false), nil
		},
		QueueSize: 4,
		Tracker:   tracker,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		w0, ok0 := sup.Worker(0)
		w1, ok1 := sup.Worker(1)
		if ok0 && ok1 && w0.Alive() && w1.Alive() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	w0, _ := sup.Worker(0)
	w1, _ := sup.Worker(1)
	assert.True(t, w0.Alive())
	assert.True(t, w1.Alive())

	sup.Shutdown()
}

func TestSupervisorQuarantinesAfterThreeRestarts(t *testing.T) {
	sup := New(Options{
		Liteservers: []types.LiteserverConfig{{Index: 0}},
		NewCapability: func(types.LiteserverConfig) (lite.Capability, error) {
			return lite.NewMock(10, false), nil
		},
		QueueSize: 4,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Don't call Start (its 1s liveness tick is too slow for a unit test);
	// drive spawn/tick directly to exercise the same quarantine policy.
	sup.spawn(ctx, 0, false)
	require.Eventually(t, func() bool {
		w, ok := sup.Worker(0)
		return ok && w.Alive()
	}, time.Second, 5*time.Millisecond)

	for i := 0; i < 3; i++ {
		w, _ := sup.Worker(0)
		w.Shutdown()
		require.Eventually(t, func() bool { return !w.Alive() }, time.Second, 5*time.Millisecond)
		sup.tickSlot(ctx, 0)
	}
	// The third restart's spawn() bumped restartCount to 3; the quarantine
	// check itself runs at the top of the next tick.
	sup.tickSlot(ctx, 0)

	snap := sup.Snapshot()[0]
	assert.False(t, snap.IsEnabled, "slot should be quarantined after three restarts")
	assert.Equal(t, 3, snap.RestartCount, "restart counter is kept until the quarantine expires")
	assert.True(t, snap.QuarantineUntil.After(time.Now()))

	sup.Shutdown()
}
