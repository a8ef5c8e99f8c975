package worker

import (
	"context"
	"fmt"

	"github.com/tonlite/litegate/pkg/lite"
	"github.com/tonlite/litegate/pkg/types"
)

// dispatch is the exhaustive switch that replaces the source system's
// dynamic getattr(client, method) dispatch with a statically checked one.
// Args are positional and pre-validated by the caller (pkg/manager); a type
// assertion failure here indicates a caller bug, not a liteserver error, and
// is reported as such.
func (w *Worker) dispatch(ctx context.Context, method types.Method, args []any) (lite.Result, error) {
	a := argReader{args: args}
	switch method {
	case types.MethodGetMasterchainInfo:
		info, err := w.cap.GetMasterchainInfo(ctx)
		if err != nil {
			return nil, err
		}
		return lite.Result{
			"@type": "blocks.masterchainInfo",
			"last": lite.Result{
				"workchain": info.Last.Workchain,
				"shard":     info.Last.Shard,
				"seqno":     info.Last.Seqno,
			},
			"state_root_hash": info.StateRootHash,
		}, nil

	case types.MethodGetMasterchainBlockSignatures:
		return w.cap.GetMasterchainBlockSignatures(ctx, a.int(0))

	case types.MethodGetShardBlockProof:
		return w.cap.GetShardBlockProof(ctx, a.int32(0), a.int64(1), a.int(2), a.int(3))

	case types.MethodLookupBlock:
		return w.cap.LookupBlock(ctx, a.int32(0), a.int64(1), a.int(2), a.int64(3), a.int(4))

	case types.MethodGetShards:
		return w.cap.GetShards(ctx, a.int(0))

	case types.MethodGetBlockHeader:
		return w.cap.GetBlockHeader(ctx, a.int32(0), a.int64(1), a.int(2), a.str(3), a.str(4))

	case types.MethodGetBlockTransactions:
		return w.cap.GetBlockTransactions(ctx, a.int32(0), a.int64(1), a.int(2), a.int(3), a.str(4), a.str(5), a.int64(6), a.str(7))

	case types.MethodGetBlockTransactionsExt:
		return w.cap.GetBlockTransactionsExt(ctx, a.int32(0), a.int64(1), a.int(2), a.int(3), a.str(4), a.str(5), a.int64(6), a.str(7))

	case types.MethodRawGetBlockTransactions:
		return w.cap.RawGetBlockTransactions(ctx, a.int32(0), a.int64(1), a.int(2), a.str(3), a.str(4), a.int(5), a.int64(6), a.str(7))

	case types.MethodRawGetAccountState:
		return w.cap.RawGetAccountState(ctx, a.str(0), a.int(1))

	case types.MethodGenericGetAccountState:
		return w.cap.GenericGetAccountState(ctx, a.str(0), a.int(1))

	case types.MethodRawGetTransactions:
		return w.cap.RawGetTransactions(ctx, a.str(0), a.int64(1), a.str(2))

	case types.MethodGetTransactions:
		// get_transactions is a manager-level composite built from repeated
		// raw_get_transactions calls; it is never dispatched to a worker
		// directly, so routing it here is a caller bug.
		return nil, fmt.Errorf("get_transactions must be handled by the manager, not dispatched to a worker")

	case types.MethodRawRunMethod:
		return w.cap.RawRunMethod(ctx, a.str(0), a.str(1), a.anySlice(2), a.int(3))

	case types.MethodRawSendMessage:
		return w.cap.RawSendMessage(ctx, a.bytes(0))

	case types.MethodRawSendMessageReturnHash:
		return w.cap.RawSendMessageReturnHash(ctx, a.bytes(0))

	case types.MethodRawCreateQuery:
		return w.cap.RawCreateQuery(ctx, a.str(0), a.bytes(1), a.bytes(2), a.bytes(3))

	case types.MethodRawSendQuery:
		return w.cap.RawSendQuery(ctx, a.result(0))

	case types.MethodRawCreateAndSendQuery:
		return w.cap.RawCreateAndSendQuery(ctx, a.str(0), a.bytes(1), a.bytes(2), a.bytes(3))

	case types.MethodRawCreateAndSendMessage:
		return w.cap.RawCreateAndSendMessage(ctx, a.str(0), a.bytes(1), a.bytes(2))

	case types.MethodRawEstimateFees:
		return w.cap.RawEstimateFees(ctx, a.str(0), a.bytes(1), a.bytes(2), a.bytes(3), a.bool(4))

	case types.MethodGetConfigParam:
		return w.cap.GetConfigParam(ctx, a.int(0), a.int(1))

	case types.MethodGetTokenData:
		return w.cap.GetTokenData(ctx, a.str(0))

	case types.MethodTryLocateTxByIncomingMessage:
		return w.cap.TryLocateTxByIncomingMessage(ctx, a.str(0), a.str(1), a.int64(2))

	case types.MethodTryLocateTxByOutcomingMessage:
		return w.cap.TryLocateTxByOutcomingMessage(ctx, a.str(0), a.str(1), a.int64(2))

	default:
		return nil, fmt.Errorf("unknown method %v", method)
	}
}

// argReader adapts the Task's positional []any argument slice into the
// native types each Capability method expects, panicking (caught by
// runTask's recover) on a caller bug rather than silently truncating.
type argReader struct{ args []any }

func (a argReader) at(i int) any {
	if i >= len(a.args) {
		panic(fmt.Sprintf("dispatch: missing argument at position %d", i))
	}
	return a.args[i]
}

func (a argReader) str(i int) string {
	v, ok := a.at(i).(string)
	if !ok {
		panic(fmt.Sprintf("dispatch: argument %d is not a string", i))
	}
	return v
}

func (a argReader) bytes(i int) []byte {
	switch v := a.at(i).(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		panic(fmt.Sprintf("dispatch: argument %d is not bytes", i))
	}
}

func (a argReader) bool(i int) bool {
	v, ok := a.at(i).(bool)
	if !ok {
		panic(fmt.Sprintf("dispatch: argument %d is not a bool", i))
	}
	return v
}

func (a argReader) int(i int) int {
	switch v := a.at(i).(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		panic(fmt.Sprintf("dispatch: argument %d is not an int", i))
	}
}

func (a argReader) int32(i int) int32 {
	return int32(a.int(i))
}

func (a argReader) int64(i int) int64 {
	switch v := a.at(i).(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	default:
		panic(fmt.Sprintf("dispatch: argument %d is not an int64", i))
	}
}

func (a argReader) anySlice(i int) []any {
	v, ok := a.at(i).([]any)
	if !ok {
		panic(fmt.Sprintf("dispatch: argument %d is not a slice", i))
	}
	return v
}

func (a argReader) result(i int) lite.Result {
	v, ok := a.at(i).(lite.Result)
	if !ok {
		panic(fmt.Sprintf("dispatch: argument %d is not a Result", i))
	}
	return v
}
