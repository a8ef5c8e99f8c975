// Package supervisor owns the worker pool's lifecycle: spawning one
// pkg/worker.Worker per configured liteserver, restarting dead workers, and
// quarantining a slot that restarts too often. The policy is grounded
// directly on the reference manager's check_children_alive loop: three
// restarts disables the slot for ten minutes; once the quarantine window
// elapses the slot is re-enabled and its restart counter resets.
package supervisor

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tonlite/litegate/pkg/consensus"
	"github.com/tonlite/litegate/pkg/log"
	"github.com/tonlite/litegate/pkg/metrics"
	"github.com/tonlite/litegate/pkg/types"
	"github.com/tonlite/litegate/pkg/worker"
)

const (
	defaultRestartThreshold = 3
	defaultQuarantineWindow = 10 * time.Minute
	checkTick               = time.Second
)

// slot tracks one liteserver's worker plus the supervisory bookkeeping the
// reference implementation keeps inline on its workers dict entry.
type slot struct {
	mu              sync.Mutex
	cfg             types.LiteserverConfig
	w               *worker.Worker
	restartCount    int
	isEnabled       bool
	quarantineUntil time.Time
}

// Supervisor owns every worker slot, restarts dead ones, and feeds worker
// events into the consensus tracker and an optional task-result sink.
type Supervisor struct {
	newCapability    worker.CapabilityFactory
	queueSize        int
	tracker          *consensus.Tracker
	onTaskResult     func(types.TaskResult)
	restartThreshold int
	quarantineWindow time.Duration

	mu    sync.RWMutex
	slots map[int]*slot

	stopCh chan struct{}
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// Options configures a Supervisor.
type Options struct {
	Liteservers   []types.LiteserverConfig
	NewCapability worker.CapabilityFactory
	QueueSize     int
	Tracker       *consensus.Tracker
	OnTaskResult  func(types.TaskResult)

	// RestartThreshold and QuarantineWindow make §9's "ambiguity in restart
	// policy" explicit operator tunables rather than constants. Zero values
	// fall back to the reference implementation's literal 3-within-window /
	// 10-minute defaults.
	RestartThreshold int
	QuarantineWindow time.Duration
}

func New(opts Options) *Supervisor {
	restartThreshold := opts.RestartThreshold
	if restartThreshold <= 0 {
		restartThreshold = defaultRestartThreshold
	}
	quarantineWindow := opts.QuarantineWindow
	if quarantineWindow <= 0 {
		quarantineWindow = defaultQuarantineWindow
	}
	s := &Supervisor{
		newCapability:    opts.NewCapability,
		queueSize:        opts.QueueSize,
		tracker:          opts.Tracker,
		onTaskResult:     opts.OnTaskResult,
		restartThreshold: restartThreshold,
		quarantineWindow: quarantineWindow,
		slots:            make(map[int]*slot, len(opts.Liteservers)),
		stopCh:           make(chan struct{}),
		logger:           log.WithComponent("supervisor"),
	}
	for _, cfg := range opts.Liteservers {
		s.slots[cfg.Index] = &slot{cfg: cfg, isEnabled: true}
	}
	return s
}

// Start spawns every configured worker and launches the liveness loop. It
// returns once all initial workers have been launched (not necessarily
// initialized); callers should select on individual workers' readiness via
// their event streams if a synchronous startup is required.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.RLock()
	indices := make([]int, 0, len(s.slots))
	for idx := range s.slots {
		indices = append(indices, idx)
	}
	s.mu.RUnlock()

	for _, idx := range indices {
		s.spawn(ctx, idx, false)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.checkChildrenAliveLoop(ctx)
	}()
}

// Shutdown stops every worker and the liveness loop, and waits for them to
// exit.
func (s *Supervisor) Shutdown() {
	close(s.stopCh)
	s.mu.RLock()
	for _, sl := range s.slots {
		sl.mu.Lock()
		if sl.w != nil {
			sl.w.Shutdown()
		}
		sl.mu.Unlock()
	}
	s.mu.RUnlock()
	s.wg.Wait()
}

func (s *Supervisor) spawn(ctx context.Context, idx int, restart bool) {
	s.mu.RLock()
	sl := s.slots[idx]
	s.mu.RUnlock()
	if sl == nil {
		return
	}

	sl.mu.Lock()
	cfg := sl.cfg
	if restart {
		sl.restartCount++
		metrics.WorkerRestartsTotal.WithLabelValues(strconv.Itoa(idx)).Inc()
	}
	sl.mu.Unlock()

	w := worker.NewWorker(worker.Config{
		Index:         idx,
		Liteserver:    cfg,
		QueueSize:     s.queueSize,
		NewCapability: s.newCapability,
	})

	sl.mu.Lock()
	sl.w = w
	sl.mu.Unlock()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		w.Run(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.consumeEvents(idx, w)
	}()
}

func (s *Supervisor) consumeEvents(idx int, w *worker.Worker) {
	for ev := range w.Events() {
		switch ev.Kind {
		case types.EventLastBlockUpdate:
			if s.tracker != nil {
				s.tracker.ReportLastBlock(idx, ev.LastBlock)
			}
		case types.EventTaskResult:
			if s.onTaskResult != nil && ev.TaskResult != nil {
				s.onTaskResult(*ev.TaskResult)
			}
		case types.EventDeadReport:
			s.logger.Error().Int("ls_index", idx).Err(ev.DeadErr).Msg("worker reported itself dead")
		case types.EventArchivalUpdate:
			// State lives on the worker itself (Snapshot); nothing to track here.
		}
	}
}

// checkChildrenAliveLoop mirrors the reference implementation's
// check_children_alive: every tick, re-enable slots whose quarantine has
// elapsed, quarantine slots that have restarted too often, and restart any
// enabled slot whose worker has exited.
func (s *Supervisor) checkChildrenAliveLoop(ctx context.Context) {
	ticker := time.NewTicker(checkTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Supervisor) tick(ctx context.Context) {
	s.mu.RLock()
	indices := make([]int, 0, len(s.slots))
	for idx := range s.slots {
		indices = append(indices, idx)
	}
	s.mu.RUnlock()

	for _, idx := range indices {
		s.tickSlot(ctx, idx)
	}
}

func (s *Supervisor) tickSlot(ctx context.Context, idx int) {
	s.mu.RLock()
	sl := s.slots[idx]
	s.mu.RUnlock()
	if sl == nil {
		return
	}

	now := time.Now()
	sl.mu.Lock()
	if !sl.isEnabled && now.After(sl.quarantineUntil) {
		sl.isEnabled = true
		sl.restartCount = 0
	}
	if sl.isEnabled && sl.restartCount >= s.restartThreshold {
		sl.isEnabled = false
		sl.quarantineUntil = now.Add(s.quarantineWindow)
	}
	alive := sl.w != nil && sl.w.Alive()
	enabled := sl.isEnabled
	sl.mu.Unlock()

	q := 0.0
	if !enabled {
		q = 1.0
	}
	metrics.WorkerQuarantined.WithLabelValues(strconv.Itoa(idx)).Set(q)

	if !alive && enabled {
		if s.tracker != nil {
			s.tracker.RemoveWorker(idx)
		}
		s.logger.Error().Int("ls_index", idx).Msg("worker is dead, restarting")
		s.spawn(ctx, idx, true)
	}
}

// Worker returns the live worker for a slot, if any.
func (s *Supervisor) Worker(idx int) (*worker.Worker, bool) {
	s.mu.RLock()
	sl, ok := s.slots[idx]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.w, sl.w != nil
}

// Snapshot returns one WorkerInfo per configured slot, combining the
// worker's own observable state with supervisory bookkeeping and the
// consensus tracker's is-working verdict.
func (s *Supervisor) Snapshot() []types.WorkerInfo {
	s.mu.RLock()
	indices := make([]int, 0, len(s.slots))
	for idx := range s.slots {
		indices = append(indices, idx)
	}
	s.mu.RUnlock()

	out := make([]types.WorkerInfo, 0, len(indices))
	for _, idx := range indices {
		s.mu.RLock()
		sl := s.slots[idx]
		s.mu.RUnlock()

		sl.mu.Lock()
		w := sl.w
		info := types.WorkerInfo{
			Index:           idx,
			Address:         sl.cfg.Address,
			Port:            sl.cfg.Port,
			IsEnabled:       sl.isEnabled,
			RestartCount:    sl.restartCount,
			QuarantineUntil: sl.quarantineUntil,
		}
		sl.mu.Unlock()

		if w != nil {
			ws := w.Snapshot()
			info.LastBlock = ws.LastBlock
			info.IsArchival = ws.IsArchival
			info.TasksCount = ws.TasksCount
		}
		if s.tracker != nil {
			info.IsWorking = s.tracker.IsWorking(idx) && info.IsEnabled
		}
		out = append(out, info)
	}
	return out
}

// WorkingIndices returns the slots currently eligible for dispatch: enabled
// and marked working by the consensus tracker. Worker liveness is not
// checked here.
func (s *Supervisor) WorkingIndices() []int {
	snaps := s.Snapshot()
	out := make([]int, 0, len(snaps))
	for _, info := range snaps {
		if info.IsWorking && info.IsEnabled {
			out = append(out, info.Index)
		}
	}
	return out
}
