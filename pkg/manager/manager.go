// Package manager wires the supervisor, consensus tracker, dispatcher and
// cache into the public verb surface §4.6 names, the way pyTON/manager.py's
// TonlibManager exposes its getXxx/raw_xxx async methods to the HTTP/
// JSON-RPC layer. The Manager is the only thing pkg/api talks to.
package manager

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tonlite/litegate/pkg/cache"
	"github.com/tonlite/litegate/pkg/consensus"
	"github.com/tonlite/litegate/pkg/dispatcher"
	"github.com/tonlite/litegate/pkg/lite"
	"github.com/tonlite/litegate/pkg/log"
	"github.com/tonlite/litegate/pkg/supervisor"
	"github.com/tonlite/litegate/pkg/types"
	"github.com/tonlite/litegate/pkg/worker"
)

var logger = log.WithComponent("manager")

// Options configures a Manager.
type Options struct {
	Liteservers    []types.LiteserverConfig
	NewCapability  worker.CapabilityFactory
	QueueSize      int
	RequestTimeout time.Duration
	Cache          *cache.Cache // nil is fine; wrapped calls just always miss

	// StrictMessageDecoding gates get_transactions' §9 open question.
	StrictMessageDecoding bool

	// RestartThreshold and QuarantineWindow are forwarded to the supervisor;
	// see supervisor.Options for their defaulting behavior.
	RestartThreshold int
	QuarantineWindow time.Duration
}

// Manager owns the supervisor, the consensus tracker, and the dispatcher,
// and exposes the gateway's blockchain-query verbs.
type Manager struct {
	sup        *supervisor.Supervisor
	tracker    *consensus.Tracker
	dispatcher *dispatcher.Dispatcher
	cache      *cache.Cache
	strict     bool

	stopConsensus chan struct{}
}

// New constructs a Manager without starting it. Start spawns one worker per
// configured liteserver and begins the consensus/liveness background loops;
// callers must then call Shutdown to release resources.
func New(opts Options) *Manager {
	tracker := consensus.NewTracker()

	sup := supervisor.New(supervisor.Options{
		Liteservers:      opts.Liteservers,
		NewCapability:    opts.NewCapability,
		QueueSize:        opts.QueueSize,
		Tracker:          tracker,
		RestartThreshold: opts.RestartThreshold,
		QuarantineWindow: opts.QuarantineWindow,
	})

	requestTimeout := opts.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}

	m := &Manager{
		sup:           sup,
		tracker:       tracker,
		dispatcher:    dispatcher.New(sup, tracker, requestTimeout),
		cache:         opts.Cache,
		strict:        opts.StrictMessageDecoding,
		stopConsensus: make(chan struct{}),
	}
	return m
}

// Start launches the worker pool and the consensus tracker's 1Hz loop.
func (m *Manager) Start(ctx context.Context) {
	m.sup.Start(ctx)
	go m.tracker.Run(m.stopConsensus)
}

// Shutdown stops the consensus loop and every worker, waiting for them to
// exit.
func (m *Manager) Shutdown() {
	close(m.stopConsensus)
	m.sup.Shutdown()
}

// classifyUpstream turns an error-shaped liteserver payload into a proper Go
// error per §7: "block not found"-style messages on the lookup verbs become
// ErrNotFound (404); every other error payload becomes ErrUpstream (500).
// A nil or non-error result classifies to nil. This runs *after* the cache
// wrapper, not inside it: check_error=false methods (try_locate_tx_by_*)
// still cache the raw error-shaped Result per §4.5's
// documented quirk, but every caller still observes a proper error.
func classifyUpstream(method types.Method, res lite.Result) error {
	if res == nil || !res.IsError() {
		return nil
	}
	msg, _ := res["message"].(string)
	if msg == "" {
		msg = "upstream error"
	}
	if isNotFoundVerb(method) && strings.Contains(strings.ToLower(msg), "not found") {
		return fmt.Errorf("%w: %s", types.ErrNotFound, msg)
	}
	return fmt.Errorf("%w: %s", types.ErrUpstream, msg)
}

// isNotFoundVerb reports whether method is one of the lookup verbs §7 calls
// out for 404 treatment on a not-found payload.
func isNotFoundVerb(method types.Method) bool {
	switch method {
	case types.MethodLookupBlock, types.MethodGetBlockHeader, types.MethodGetShards,
		types.MethodRawGetBlockTransactions, types.MethodGetBlockTransactions, types.MethodGetBlockTransactionsExt,
		types.MethodTryLocateTxByIncomingMessage, types.MethodTryLocateTxByOutcomingMessage:
		return true
	default:
		return false
	}
}

// call runs a dispatch, optionally through the cache, and unwraps the
// TaskResult into (lite.Result, error) the way every public verb returns.
func (m *Manager) call(ctx context.Context, req dispatcher.Request) (lite.Result, error) {
	do := func() (lite.Result, error) {
		res, err := m.dispatcher.Dispatch(ctx, req)
		if err != nil {
			return nil, err
		}
		if res.Err != nil {
			return nil, res.Err
		}
		result, _ := res.Value.(lite.Result)
		return result, nil
	}
	var result lite.Result
	var err error
	if m.cache == nil {
		result, err = do()
	} else {
		result, err = m.cache.Do(ctx, req.Method, req.Args, do)
	}
	if err != nil {
		return result, err
	}
	return result, classifyUpstream(req.Method, result)
}

// callWithArchivalFallback retries once against an archival worker on
// UpstreamError, matching raw_get_account_state/generic_get_account_state/
// raw_run_method's single fallback.
func (m *Manager) callWithArchivalFallback(ctx context.Context, method types.Method, args []any) (lite.Result, error) {
	attempt := func(policy dispatcher.Policy) (lite.Result, error, error) {
		res, err := m.dispatcher.Dispatch(ctx, dispatcher.Request{Method: method, Args: args, Policy: policy})
		if err != nil {
			return nil, nil, err
		}
		if res.Err != nil {
			return nil, res.Err, nil
		}
		value, _ := res.Value.(lite.Result)
		return value, nil, nil
	}

	do := func() (lite.Result, error) {
		value, upstreamErr, dispatchErr := attempt(dispatcher.AnyWorking)
		if dispatchErr != nil {
			// Selection/timeout/overloaded failures never reached a
			// capability call, so there is nothing to retry against.
			return nil, dispatchErr
		}
		if upstreamErr == nil && !value.IsError() {
			return value, nil
		}

		logger.Warn().Str("method", method.String()).Err(upstreamErr).Msg("retrying on archival node after upstream error")
		archValue, archUpstreamErr, archDispatchErr := attempt(dispatcher.ArchivalPreferred)
		if archDispatchErr != nil {
			return nil, archDispatchErr
		}
		if archUpstreamErr != nil {
			return nil, archUpstreamErr
		}
		return archValue, nil
	}

	var result lite.Result
	var err error
	if m.cache == nil {
		result, err = do()
	} else {
		result, err = m.cache.Do(ctx, method, args, do)
	}
	if err != nil {
		return result, err
	}
	return result, classifyUpstream(method, result)
}

// GetMasterchainInfo implements get_masterchain_info: any working worker, 1s cache.
func (m *Manager) GetMasterchainInfo(ctx context.Context) (lite.Result, error) {
	return m.call(ctx, dispatcher.Request{Method: types.MethodGetMasterchainInfo, Policy: dispatcher.AnyWorking})
}

// RawGetAccountState implements raw_get_account_state.
func (m *Manager) RawGetAccountState(ctx context.Context, address string, seqno int) (lite.Result, error) {
	return m.callWithArchivalFallback(ctx, types.MethodRawGetAccountState, []any{address, seqno})
}

// GenericGetAccountState implements generic_get_account_state.
func (m *Manager) GenericGetAccountState(ctx context.Context, address string, seqno int) (lite.Result, error) {
	return m.callWithArchivalFallback(ctx, types.MethodGenericGetAccountState, []any{address, seqno})
}

// RawGetTransactions implements raw_get_transactions, archival if requested.
func (m *Manager) RawGetTransactions(ctx context.Context, address string, fromLT int64, fromHash string, archival bool) (lite.Result, error) {
	policy := dispatcher.AnyWorking
	if archival {
		policy = dispatcher.ArchivalPreferred
	}
	return m.call(ctx, dispatcher.Request{Method: types.MethodRawGetTransactions, Args: []any{address, fromLT, fromHash}, Policy: policy})
}

// RawRunMethod implements raw_run_method.
func (m *Manager) RawRunMethod(ctx context.Context, address, method string, stackData []any, seqno int) (lite.Result, error) {
	return m.callWithArchivalFallback(ctx, types.MethodRawRunMethod, []any{address, method, stackData, seqno})
}

// RawEstimateFees implements raw_estimate_fees.
func (m *Manager) RawEstimateFees(ctx context.Context, destination string, body, initCode, initData []byte, ignoreChksig bool) (lite.Result, error) {
	return m.call(ctx, dispatcher.Request{Method: types.MethodRawEstimateFees, Args: []any{destination, body, initCode, initData, ignoreChksig}, Policy: dispatcher.AnyWorking})
}

// recencyPolicy routes lookup_block/get_shards/get_block_header/
// get_config_param by §4.4's "policy-by-recency" rule.
func (m *Manager) recencyPolicy(targetSeqno int) dispatcher.Policy {
	return m.dispatcher.RecencyPolicy(targetSeqno)
}

// LookupBlock implements lookup_block.
func (m *Manager) LookupBlock(ctx context.Context, workchain int32, shard int64, seqno int, lt int64, unixtime int) (lite.Result, error) {
	policy := dispatcher.ArchivalPreferred
	if workchain == -1 && seqno > 0 {
		policy = m.recencyPolicy(seqno)
	}
	return m.call(ctx, dispatcher.Request{Method: types.MethodLookupBlock, Args: []any{workchain, shard, seqno, lt, unixtime}, Policy: policy})
}

// GetShards implements get_shards.
func (m *Manager) GetShards(ctx context.Context, masterSeqno int) (lite.Result, error) {
	policy := dispatcher.ArchivalPreferred
	if masterSeqno > 0 {
		policy = m.recencyPolicy(masterSeqno)
	}
	return m.call(ctx, dispatcher.Request{Method: types.MethodGetShards, Args: []any{masterSeqno}, Policy: policy})
}

// GetBlockHeader implements get_block_header.
func (m *Manager) GetBlockHeader(ctx context.Context, workchain int32, shard int64, seqno int, rootHash, fileHash string) (lite.Result, error) {
	policy := dispatcher.ArchivalPreferred
	if workchain == -1 && seqno > 0 {
		policy = m.recencyPolicy(seqno)
	}
	return m.call(ctx, dispatcher.Request{Method: types.MethodGetBlockHeader, Args: []any{workchain, shard, seqno, rootHash, fileHash}, Policy: policy})
}

// GetConfigParam implements get_config_param.
func (m *Manager) GetConfigParam(ctx context.Context, configID int, seqno int) (lite.Result, error) {
	if seqno <= 0 {
		seqno = m.tracker.Block().Seqno
	}
	return m.call(ctx, dispatcher.Request{Method: types.MethodGetConfigParam, Args: []any{configID, seqno}, Policy: m.recencyPolicy(seqno)})
}

// RawGetBlockTransactions implements raw_get_block_transactions (always archival).
func (m *Manager) RawGetBlockTransactions(ctx context.Context, workchain int32, shard int64, seqno int, rootHash, fileHash string, count int, afterLT int64, afterHash string) (lite.Result, error) {
	return m.call(ctx, dispatcher.Request{
		Method: types.MethodRawGetBlockTransactions,
		Args:   []any{workchain, shard, seqno, rootHash, fileHash, count, afterLT, afterHash},
		Policy: dispatcher.ArchivalPreferred,
	})
}

// GetBlockTransactions implements get_block_transactions (always archival).
func (m *Manager) GetBlockTransactions(ctx context.Context, workchain int32, shard int64, seqno int, count int, rootHash, fileHash string, afterLT int64, afterHash string) (lite.Result, error) {
	return m.call(ctx, dispatcher.Request{
		Method: types.MethodGetBlockTransactions,
		Args:   []any{workchain, shard, seqno, count, rootHash, fileHash, afterLT, afterHash},
		Policy: dispatcher.ArchivalPreferred,
	})
}

// GetBlockTransactionsExt implements get_block_transactions_ext (always archival).
func (m *Manager) GetBlockTransactionsExt(ctx context.Context, workchain int32, shard int64, seqno int, count int, rootHash, fileHash string, afterLT int64, afterHash string) (lite.Result, error) {
	return m.call(ctx, dispatcher.Request{
		Method: types.MethodGetBlockTransactionsExt,
		Args:   []any{workchain, shard, seqno, count, rootHash, fileHash, afterLT, afterHash},
		Policy: dispatcher.ArchivalPreferred,
	})
}

// GetTokenData implements get_token_data.
func (m *Manager) GetTokenData(ctx context.Context, address string) (lite.Result, error) {
	return m.call(ctx, dispatcher.Request{Method: types.MethodGetTokenData, Args: []any{address}, Policy: dispatcher.AnyWorking})
}

// TryLocateTxByIncomingMessage implements try_locate_tx_by_incoming_message (always archival).
func (m *Manager) TryLocateTxByIncomingMessage(ctx context.Context, source, destination string, creationLT int64) (lite.Result, error) {
	return m.call(ctx, dispatcher.Request{Method: types.MethodTryLocateTxByIncomingMessage, Args: []any{source, destination, creationLT}, Policy: dispatcher.ArchivalPreferred})
}

// TryLocateTxByOutcomingMessage implements try_locate_tx_by_outcoming_message (always archival).
func (m *Manager) TryLocateTxByOutcomingMessage(ctx context.Context, source, destination string, creationLT int64) (lite.Result, error) {
	return m.call(ctx, dispatcher.Request{Method: types.MethodTryLocateTxByOutcomingMessage, Args: []any{source, destination, creationLT}, Policy: dispatcher.ArchivalPreferred})
}

// RawSendMessage implements raw_send_message: fan-out-of-4, never cached.
func (m *Manager) RawSendMessage(ctx context.Context, boc []byte) (lite.Result, error) {
	return m.call(ctx, dispatcher.Request{Method: types.MethodRawSendMessage, Args: []any{boc}, Policy: dispatcher.FanOut})
}

// RawSendMessageReturnHash implements raw_send_message_return_hash: fan-out-of-4, never cached.
func (m *Manager) RawSendMessageReturnHash(ctx context.Context, boc []byte) (lite.Result, error) {
	return m.call(ctx, dispatcher.Request{Method: types.MethodRawSendMessageReturnHash, Args: []any{boc}, Policy: dispatcher.FanOut})
}

// RawCreateAndSendQuery implements raw_create_and_send_query: any, never cached.
func (m *Manager) RawCreateAndSendQuery(ctx context.Context, destination string, body, initCode, initData []byte) (lite.Result, error) {
	return m.call(ctx, dispatcher.Request{Method: types.MethodRawCreateAndSendQuery, Args: []any{destination, body, initCode, initData}, Policy: dispatcher.AnyWorking})
}

// RawCreateAndSendMessage implements raw_create_and_send_message: any, never cached.
func (m *Manager) RawCreateAndSendMessage(ctx context.Context, destination string, body, initialAccountState []byte) (lite.Result, error) {
	return m.call(ctx, dispatcher.Request{Method: types.MethodRawCreateAndSendMessage, Args: []any{destination, body, initialAccountState}, Policy: dispatcher.AnyWorking})
}

// GetConsensusBlock implements get_consensus_block: an in-memory read, no dispatch.
func (m *Manager) GetConsensusBlock() types.ConsensusBlock {
	return m.tracker.Block()
}

// GetWorkersState implements get_workers_state: an in-memory read, no dispatch.
func (m *Manager) GetWorkersState() []types.WorkerInfo {
	return m.sup.Snapshot()
}
