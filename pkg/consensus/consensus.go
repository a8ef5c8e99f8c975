// Package consensus tracks the cluster's agreed-upon freshest block seqno
// and, from it, which workers are currently "working" (fresh enough to
// serve requests). The algorithm is grounded directly on the reference
// manager's check_working loop: 0/-1 readings are ignored, the best-known
// seqno forms a sliding 4-wide histogram, and the first bucket whose
// cumulative share reaches 60% of suitable workers sets the new consensus,
// published only if it advances strictly.
package consensus

import (
	"strconv"
	"sync"
	"time"

	"github.com/tonlite/litegate/pkg/metrics"
	"github.com/tonlite/litegate/pkg/types"
)

const (
	window         = 4
	quorumFraction = 0.6
)

// Tracker holds the current consensus block and the per-worker last-known
// seqnos it was derived from. Safe for concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	block   types.ConsensusBlock
	last    map[int]int
	working map[int]bool
}

func NewTracker() *Tracker {
	return &Tracker{
		block:   types.ConsensusBlock{Seqno: 0},
		last:    make(map[int]int),
		working: make(map[int]bool),
	}
}

// ReportLastBlock records a worker's last observed masterchain seqno. A
// worker whose probe failed should not call this: the prior value is kept
// until the next successful probe, per the worker's own invariant.
func (t *Tracker) ReportLastBlock(index int, seqno int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[index] = seqno
}

// RemoveWorker drops a worker's last-known seqno, e.g. on permanent
// quarantine, so it no longer participates in the consensus histogram.
func (t *Tracker) RemoveWorker(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, index)
	delete(t.working, index)
}

// Recompute runs one round of the consensus algorithm and returns the
// resulting block. It is meant to be called on a fixed tick (1s in
// production, per the reference implementation).
func (t *Tracker) Recompute() types.ConsensusBlock {
	t.mu.Lock()
	defer t.mu.Unlock()

	best := 0
	suitable := make([]int, 0, len(t.last))
	for _, seqno := range t.last {
		if seqno <= 0 {
			continue
		}
		suitable = append(suitable, seqno)
		if seqno > best {
			best = seqno
		}
	}

	if len(suitable) > 0 {
		strat := make([]int, window)
		for _, seqno := range suitable {
			d := best - seqno
			if d >= 0 && d < window {
				strat[d]++
			}
		}
		// total_suitable is every nonzero reading, not just the ones
		// captured by the 4-wide window: a worker lagging more than 3
		// blocks behind best still counts toward the 60% denominator, it
		// just never contributes to a strat bucket.
		total := len(suitable)
		sum := 0
		candidate := 0
		found := false
		for k, count := range strat {
			sum += count
			if float64(sum) >= float64(total)*quorumFraction {
				candidate = best - k
				found = true
				break
			}
		}
		if found && candidate > t.block.Seqno {
			t.block = types.ConsensusBlock{Seqno: candidate, Timestamp: time.Now()}
		}
	}

	for index, seqno := range t.last {
		t.working[index] = seqno > 0 && seqno >= t.block.Seqno
	}

	metrics.ConsensusSeqno.Set(float64(t.block.Seqno))
	for index, working := range t.working {
		v := 0.0
		if working {
			v = 1.0
		}
		metrics.WorkerWorking.WithLabelValues(strconv.Itoa(index)).Set(v)
	}

	return t.block
}

// Block returns the last computed consensus block.
func (t *Tracker) Block() types.ConsensusBlock {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.block
}

// IsWorking reports whether a worker's last reported seqno is at or ahead
// of the current consensus. Unknown workers are never working.
func (t *Tracker) IsWorking(index int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.working[index]
}

// WorkingSet returns a snapshot copy of the working-status map, keyed by
// worker index.
func (t *Tracker) WorkingSet() map[int]bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[int]bool, len(t.working))
	for k, v := range t.working {
		out[k] = v
	}
	return out
}

// Run drives Recompute on a 1-second tick until stop is closed. It is the
// goroutine analogue of the reference manager's check_working background
// task.
func (t *Tracker) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.Recompute()
		}
	}
}
