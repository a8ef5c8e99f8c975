// Package worker implements the per-upstream execution domain described in
// SPEC_FULL.md §4.1: one Worker owns one lite.Capability, a bounded inbound
// task queue, and an outbound event stream, following the goroutine-plus-
// channel shape the teacher repo uses for its own worker loops
// (pkg/worker/worker.go's heartbeatLoop/containerExecutorLoop and
// pkg/worker/health_monitor.go's monitorLoop).
package worker

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tonlite/litegate/pkg/lite"
	"github.com/tonlite/litegate/pkg/log"
	"github.com/tonlite/litegate/pkg/metrics"
	"github.com/tonlite/litegate/pkg/types"
)

const (
	lastBlockProbeInterval    = time.Second
	archivalProbeInterval     = 600 * time.Second
	maxConsecutiveProbeErrors = 10
)

// CapabilityFactory constructs the native capability for one upstream. It
// is a factory, not a constructor call, so tests can substitute lite.Mock.
type CapabilityFactory func(cfg types.LiteserverConfig) (lite.Capability, error)

// Config configures a single Worker.
type Config struct {
	Index         int
	Liteserver    types.LiteserverConfig
	QueueSize     int // bounded inbound queue depth; default 64
	NewCapability CapabilityFactory

	// LastBlockProbeInterval and ArchivalProbeInterval override the
	// production defaults (1s / 600s); tests shrink them to avoid
	// multi-second sleeps. Zero means "use the default".
	LastBlockProbeInterval time.Duration
	ArchivalProbeInterval  time.Duration
}

// Worker serializes access to one native capability. It never blocks the
// manager: Submit either enqueues or fails fast with ErrOverloaded.
type Worker struct {
	index int
	cfg   types.LiteserverConfig

	inbox  chan *types.Task
	events chan types.WorkerEvent
	stopCh chan struct{}
	doneCh chan struct{}

	newCapability CapabilityFactory
	cap           lite.Capability

	lastBlockProbeInterval time.Duration
	archivalProbeInterval  time.Duration

	alive      atomic.Bool
	lastBlock  atomic.Int64 // -1 == unknown
	isArchival atomic.Bool
	tasksCount atomic.Int64

	logger zerolog.Logger
}

func NewWorker(cfg Config) *Worker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.LastBlockProbeInterval <= 0 {
		cfg.LastBlockProbeInterval = lastBlockProbeInterval
	}
	if cfg.ArchivalProbeInterval <= 0 {
		cfg.ArchivalProbeInterval = archivalProbeInterval
	}
	w := &Worker{
		index:                  cfg.Index,
		cfg:                    cfg.Liteserver,
		inbox:                  make(chan *types.Task, cfg.QueueSize),
		events:                 make(chan types.WorkerEvent, cfg.QueueSize),
		stopCh:                 make(chan struct{}),
		doneCh:                 make(chan struct{}),
		newCapability:          cfg.NewCapability,
		lastBlockProbeInterval: cfg.LastBlockProbeInterval,
		archivalProbeInterval:  cfg.ArchivalProbeInterval,
		logger:                 log.WithWorker("worker", cfg.Index),
	}
	w.lastBlock.Store(-1)
	return w
}

// Index returns the worker's configured slot.
func (w *Worker) Index() int { return w.index }

// Events returns the worker's outbound event stream, consumed by the
// supervisor in arrival order until the worker exits and the channel closes.
func (w *Worker) Events() <-chan types.WorkerEvent { return w.events }

// Done is closed once Run returns, clean or dead.
func (w *Worker) Done() <-chan struct{} { return w.doneCh }

// Alive reports the worker's last known liveness (lock-free snapshot).
func (w *Worker) Alive() bool { return w.alive.Load() }

// Snapshot returns a read-only view of the worker's observable state.
func (w *Worker) Snapshot() types.WorkerInfo {
	return types.WorkerInfo{
		Index:      w.index,
		Address:    w.cfg.Address,
		Port:       w.cfg.Port,
		LastBlock:  int(w.lastBlock.Load()),
		IsArchival: w.isArchival.Load(),
		IsEnabled:  true,
		TasksCount: w.tasksCount.Load(),
	}
}

// Submit enqueues a task without blocking. A full queue surfaces
// back-pressure to the caller as ErrOverloaded rather than blocking the
// HTTP hot path.
func (w *Worker) Submit(task *types.Task) error {
	select {
	case w.inbox <- task:
		return nil
	default:
		return types.ErrOverloaded
	}
}

// Shutdown requests orderly termination. It does not wait for Run to
// return; callers select on Done() for that.
func (w *Worker) Shutdown() {
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
}

// Run drives the worker's three cooperative loops until Shutdown is
// called, the parent context is cancelled, or the worker declares itself
// dead. It blocks until the worker has fully exited.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.doneCh)
	defer close(w.events)

	cap, err := w.newCapability(w.cfg)
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to construct capability")
		w.emitDead(err)
		return
	}
	if err := cap.Init(ctx); err != nil {
		w.logger.Error().Err(err).Msg("capability init failed")
		w.emitDead(err)
		return
	}
	w.cap = cap
	w.alive.Store(true)

	innerCtx, cancel := context.WithCancel(ctx)
	deadCh := make(chan error, 1)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); w.lastBlockProbeLoop(innerCtx, deadCh) }()
	go func() { defer wg.Done(); w.archivalProbeLoop(innerCtx) }()
	go func() { defer wg.Done(); w.taskLoop(innerCtx, deadCh) }()

	var deadErr error
	select {
	case <-ctx.Done():
	case <-w.stopCh:
	case deadErr = <-deadCh:
		w.logger.Error().Err(deadErr).Msg("worker declared itself dead")
	}

	cancel()
	wg.Wait()
	w.alive.Store(false)
	cap.Close()

	if deadErr != nil {
		w.emitDead(deadErr)
	}
}

func (w *Worker) emitDead(err error) {
	select {
	case w.events <- types.WorkerEvent{Kind: types.EventDeadReport, Index: w.index, DeadErr: err}:
	default:
	}
}

// taskLoop pulls one task at a time from the inbound queue and dispatches
// it onto the capability. A fatal exception escaping a single iteration is
// reported upward instead of crashing the whole process.
func (w *Worker) taskLoop(ctx context.Context, deadCh chan<- error) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-w.inbox:
			w.runTask(ctx, task, deadCh)
		}
	}
}

func (w *Worker) runTask(ctx context.Context, task *types.Task, deadCh chan<- error) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic in task %s: %v", task.ID, r)
			task.Resolve(types.TaskResult{TaskID: task.ID, Method: task.Method, Err: err, WorkerInfo: w.Snapshot()})
			select {
			case deadCh <- err:
			default:
			}
		}
	}()

	w.tasksCount.Add(1)

	if time.Now().After(task.Deadline) {
		res := types.TaskResult{TaskID: task.ID, Method: task.Method, Err: types.ErrTimeout, WorkerInfo: w.Snapshot()}
		task.Resolve(res)
		w.publishResult(res)
		return
	}

	start := time.Now()
	value, err := w.dispatch(ctx, task.Method, task.Args)
	elapsed := time.Since(start)

	res := types.TaskResult{
		TaskID:     task.ID,
		Method:     task.Method,
		Elapsed:    elapsed,
		Params:     task.Args,
		Value:      value,
		Err:        err,
		WorkerInfo: w.Snapshot(),
	}
	task.Resolve(res)
	w.publishResult(res)
}

func (w *Worker) publishResult(res types.TaskResult) {
	select {
	case w.events <- types.WorkerEvent{Kind: types.EventTaskResult, Index: w.index, TaskResult: &res}:
	default:
		w.logger.Warn().Str("task_id", res.TaskID).Msg("event stream full, dropping task-result event")
	}
}

func (w *Worker) lastBlockProbeLoop(ctx context.Context, deadCh chan<- error) {
	ticker := time.NewTicker(w.lastBlockProbeInterval)
	defer ticker.Stop()

	consecutiveFailures := 0
	probe := func() bool {
		info, err := w.cap.GetMasterchainInfo(ctx)
		if err != nil {
			consecutiveFailures++
			w.logger.Debug().Err(err).Int("consecutive_failures", consecutiveFailures).Msg("last-block probe failed")
		} else {
			consecutiveFailures = 0
			w.lastBlock.Store(int64(info.Last.Seqno))
		}
		w.publishLastBlock()
		if consecutiveFailures >= maxConsecutiveProbeErrors {
			select {
			case deadCh <- fmt.Errorf("last-block probe failed %d consecutive times: %w", consecutiveFailures, err):
			default:
			}
			return false
		}
		return true
	}

	if !probe() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !probe() {
				return
			}
		}
	}
}

func (w *Worker) publishLastBlock() {
	lb := int(w.lastBlock.Load())
	metrics.WorkerLastBlock.WithLabelValues(strconv.Itoa(w.index)).Set(float64(lb))
	select {
	case w.events <- types.WorkerEvent{Kind: types.EventLastBlockUpdate, Index: w.index, LastBlock: lb}:
	default:
	}
}

func (w *Worker) archivalProbeLoop(ctx context.Context) {
	ticker := time.NewTicker(w.archivalProbeInterval)
	defer ticker.Stop()

	probe := func() {
		seqno := 2 + rand.Intn(2000000-2)
		res, err := w.cap.GetBlockTransactions(ctx, -1, minShard, seqno, 10, "", "", 0, "")
		switch {
		case err != nil:
			w.logger.Debug().Err(err).Msg("archival probe error, state unchanged")
			return
		case res.TypeTag() == "blocks.transactions":
			w.isArchival.Store(true)
		case isBlockNotFound(res):
			w.isArchival.Store(false)
		default:
			return
		}
		w.publishArchival()
	}

	probe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probe()
		}
	}
}

// minShard is the shard identifier for the full masterchain shard, used by
// the archival probe's historical block-transactions fetch.
const minShard = -9223372036854775808

func isBlockNotFound(res lite.Result) bool {
	if res.TypeTag() != "error" {
		return false
	}
	msg, _ := res["message"].(string)
	return msg == "block not found" || msg == "not found"
}

func (w *Worker) publishArchival() {
	archival := w.isArchival.Load()
	v := 0.0
	if archival {
		v = 1.0
	}
	metrics.WorkerArchival.WithLabelValues(strconv.Itoa(w.index)).Set(v)
	select {
	case w.events <- types.WorkerEvent{Kind: types.EventArchivalUpdate, Index: w.index, Archival: archival}:
	default:
	}
}
