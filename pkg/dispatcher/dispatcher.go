// Package dispatcher selects a worker (or set of workers) for a task,
// submits it, and awaits the result. The selection policies and the
// fan-out-of-4 broadcast for send-message methods are grounded directly on
// the reference manager's select_worker/dispatch_request_to_worker/
// _send_message functions.
package dispatcher

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tonlite/litegate/pkg/consensus"
	"github.com/tonlite/litegate/pkg/log"
	"github.com/tonlite/litegate/pkg/metrics"
	"github.com/tonlite/litegate/pkg/supervisor"
	"github.com/tonlite/litegate/pkg/types"
)

// Policy selects which worker(s) a call should be routed to.
type Policy int

const (
	// AnyWorking picks uniformly among all workers within consensus
	// freshness.
	AnyWorking Policy = iota
	// ArchivalPreferred picks uniformly among archival working workers,
	// falling back to AnyWorking if none exist.
	ArchivalPreferred
	// Sticky honors a caller-supplied worker index if it is working,
	// falling back to AnyWorking otherwise.
	Sticky
	// FanOut submits to N distinct working workers and returns the first
	// completion, discarding the rest.
	FanOut
)

const fanOutCount = 4

// recencyThreshold is the seqno distance under which a block-scoped lookup
// is still served by AnyWorking instead of falling back to an archival
// node, per the reference implementation's history cutoff.
const recencyThreshold = 2000

// Dispatcher submits tasks to workers chosen by a Policy and awaits their
// resolution against a deadline.
type Dispatcher struct {
	sup            *supervisor.Supervisor
	tracker        *consensus.Tracker
	requestTimeout time.Duration
	logger         zerolog.Logger
}

func New(sup *supervisor.Supervisor, tracker *consensus.Tracker, requestTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		sup:            sup,
		tracker:        tracker,
		requestTimeout: requestTimeout,
		logger:         log.WithComponent("dispatcher"),
	}
}

// Request describes one call to dispatch.
type Request struct {
	Method      types.Method
	Args        []any
	Policy      Policy
	StickyIndex int // used only when Policy == Sticky
}

// Dispatch resolves a worker per the policy, submits the task, and blocks
// until it resolves or the deadline elapses.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (types.TaskResult, error) {
	start := time.Now()
	res, err := d.dispatch(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	} else if res.Err != nil {
		outcome = "upstream_error"
	}
	metrics.DispatchDuration.WithLabelValues(req.Method.String()).Observe(time.Since(start).Seconds())
	metrics.DispatchTotal.WithLabelValues(req.Method.String(), outcome).Inc()
	return res, err
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) (types.TaskResult, error) {
	if req.Policy == FanOut {
		return d.dispatchFanOut(ctx, req)
	}

	idx, err := d.selectOne(req)
	if err != nil {
		return types.TaskResult{}, err
	}
	return d.dispatchToWorker(ctx, idx, req.Method, req.Args)
}

func (d *Dispatcher) dispatchToWorker(ctx context.Context, idx int, method types.Method, args []any) (types.TaskResult, error) {
	w, ok := d.sup.Worker(idx)
	if !ok {
		return types.TaskResult{}, types.ErrNoWorkerAvailable
	}

	deadline := time.Now().Add(d.requestTimeout)
	task := types.NewTask(uuid.NewString(), method, deadline, args, nil)
	if err := w.Submit(task); err != nil {
		return types.TaskResult{}, err
	}

	select {
	case res := <-task.ResultChan():
		return res, nil
	case <-ctx.Done():
		return types.TaskResult{}, ctx.Err()
	case <-time.After(d.requestTimeout):
		return types.TaskResult{}, types.ErrTimeout
	}
}

// selectOne implements AnyWorking/ArchivalPreferred/Sticky.
func (d *Dispatcher) selectOne(req Request) (int, error) {
	switch req.Policy {
	case Sticky:
		if d.tracker.IsWorking(req.StickyIndex) {
			return req.StickyIndex, nil
		}
		return d.selectSuitable(nil)
	case ArchivalPreferred:
		archival := true
		idx, err := d.selectSuitable(&archival)
		if err == nil {
			return idx, nil
		}
		return d.selectSuitable(nil)
	default:
		return d.selectSuitable(nil)
	}
}

// selectSuitable returns a uniformly random working worker index, optionally
// restricted to archival (true) or non-archival (false) nodes.
func (d *Dispatcher) selectSuitable(archival *bool) (int, error) {
	candidates := make([]int, 0)
	for _, info := range d.sup.Snapshot() {
		if !info.IsWorking || !info.IsEnabled {
			continue
		}
		if archival != nil && info.IsArchival != *archival {
			continue
		}
		candidates = append(candidates, info.Index)
	}
	if len(candidates) == 0 {
		return 0, types.ErrNoWorkerAvailable
	}
	return candidates[rand.Intn(len(candidates))], nil
}

// RecencyPolicy picks AnyWorking when targetSeqno is within recencyThreshold
// of the current consensus, else ArchivalPreferred — used by
// lookup_block/get_shards/get_block_header/get_config_param.
func (d *Dispatcher) RecencyPolicy(targetSeqno int) Policy {
	if targetSeqno <= 0 {
		return AnyWorking
	}
	consensusSeqno := d.tracker.Block().Seqno
	if consensusSeqno-targetSeqno < recencyThreshold {
		return AnyWorking
	}
	return ArchivalPreferred
}

// dispatchFanOut submits the task to fanOutCount distinct working workers
// and returns the first completion. There is no shared registry to purge:
// each task carries its own result channel, and the losing tasks are not
// cancelled; they run to completion on their workers and their results go
// unread.
func (d *Dispatcher) dispatchFanOut(ctx context.Context, req Request) (types.TaskResult, error) {
	candidates, err := d.selectMany(fanOutCount)
	if err != nil {
		return types.TaskResult{}, err
	}

	deadline := time.Now().Add(d.requestTimeout)
	type pending struct {
		idx  int
		task *types.Task
	}
	tasks := make([]pending, 0, len(candidates))
	for _, idx := range candidates {
		w, ok := d.sup.Worker(idx)
		if !ok {
			continue
		}
		task := types.NewTask(uuid.NewString(), req.Method, deadline, req.Args, nil)
		if err := w.Submit(task); err != nil {
			continue
		}
		tasks = append(tasks, pending{idx: idx, task: task})
	}
	if len(tasks) == 0 {
		return types.TaskResult{}, types.ErrNoWorkerAvailable
	}

	cases := make(chan types.TaskResult, len(tasks))
	for _, p := range tasks {
		go func(t *types.Task) {
			select {
			case res := <-t.ResultChan():
				cases <- res
			case <-ctx.Done():
			}
		}(p.task)
	}

	select {
	case res := <-cases:
		return res, nil
	case <-ctx.Done():
		return types.TaskResult{}, ctx.Err()
	case <-time.After(d.requestTimeout):
		return types.TaskResult{}, types.ErrTimeout
	}
	// Losing tasks' results are dropped: Task.Resolve is non-blocking and
	// single-assignment, so late workers completing after this function
	// returns do not leak or panic; they simply have no reader.
}

func (d *Dispatcher) selectMany(count int) ([]int, error) {
	candidates := make([]int, 0)
	for _, info := range d.sup.Snapshot() {
		if info.IsWorking && info.IsEnabled {
			candidates = append(candidates, info.Index)
		}
	}
	rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	if len(candidates) == 0 {
		return nil, types.ErrNoWorkerAvailable
	}
	if len(candidates) > count {
		candidates = candidates[:count]
	}
	return candidates, nil
}
