package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecomputeFiveWorkerExample(t *testing.T) {
	tr := NewTracker()
	seqnos := map[int]int{0: 100, 1: 100, 2: 99, 3: 98, 4: 0}
	for idx, s := range seqnos {
		tr.ReportLastBlock(idx, s)
	}

	block := tr.Recompute()
	assert.Equal(t, 99, block.Seqno)

	working := tr.WorkingSet()
	assert.True(t, working[0])
	assert.True(t, working[1])
	assert.True(t, working[2])
	assert.False(t, working[3])
	assert.False(t, working[4], "zero readings are excluded from the histogram and never working")
}

func TestRecomputeSingleWorker(t *testing.T) {
	tr := NewTracker()
	tr.ReportLastBlock(0, 555)

	block := tr.Recompute()
	assert.Equal(t, 555, block.Seqno)
	assert.True(t, tr.IsWorking(0))
}

func TestRecomputeAllUnknown(t *testing.T) {
	tr := NewTracker()
	tr.ReportLastBlock(0, 0)
	tr.ReportLastBlock(1, -1)

	block := tr.Recompute()
	assert.Equal(t, 0, block.Seqno)
	assert.False(t, tr.IsWorking(0))
	assert.False(t, tr.IsWorking(1))
}

func TestConsensusNeverRegresses(t *testing.T) {
	tr := NewTracker()
	tr.ReportLastBlock(0, 100)
	tr.ReportLastBlock(1, 100)
	first := tr.Recompute()
	assert.Equal(t, 100, first.Seqno)

	// A worker's reading drops (e.g. restarted and resyncing); the cluster
	// consensus must not regress below its prior high-water mark.
	tr.ReportLastBlock(1, 50)
	second := tr.Recompute()
	assert.Equal(t, 100, second.Seqno)
	assert.True(t, tr.IsWorking(0))
	assert.False(t, tr.IsWorking(1))
}

func TestConsensusAdvances(t *testing.T) {
	tr := NewTracker()
	tr.ReportLastBlock(0, 100)
	tr.Recompute()

	tr.ReportLastBlock(0, 150)
	tr.ReportLastBlock(1, 150)
	block := tr.Recompute()
	assert.Equal(t, 150, block.Seqno)
}

func TestRemoveWorkerDropsFromHistogram(t *testing.T) {
	tr := NewTracker()
	tr.ReportLastBlock(0, 100)
	tr.ReportLastBlock(1, 1)
	tr.Recompute()

	tr.RemoveWorker(1)
	block := tr.Recompute()
	assert.Equal(t, 100, block.Seqno)
	_, stillTracked := tr.WorkingSet()[1]
	assert.False(t, stillTracked)
}
