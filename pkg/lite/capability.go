// Package lite defines the narrow, statically-typed surface a worker uses
// to talk to one upstream liteserver. In the source system this is a
// proprietary binary-protocol client reached through a shared native
// library; here it is represented as a plain Go interface so a worker's
// task loop can dispatch on it with an exhaustive switch instead of
// reflection (see SPEC_FULL.md "Dynamic method dispatch").
//
// A Capability instance is not safe for concurrent use and must be owned
// by exactly one Worker (pkg/worker) at a time.
package lite

import "context"

// Result is an opaque, liteserver-shaped JSON payload. Fields are accessed
// by tag the way the upstream tonlib JSON protocol is, rather than a large
// hand-maintained struct tree per method — the gateway is fundamentally a
// pass-through of liteserver responses, decoded just enough to implement
// routing, caching, and the get_transactions pagination/normalization in
// pkg/manager.
type Result map[string]any

// TypeTag returns the well-known "@type" discriminator, or "" if absent.
func (r Result) TypeTag() string {
	if r == nil {
		return ""
	}
	t, _ := r["@type"].(string)
	return t
}

// IsError reports whether the payload is a liteserver-side error result.
func (r Result) IsError() bool { return r.TypeTag() == "error" }

// BlockID identifies a block in the canonical (workchain, shard, seqno)
// triple plus its root/file hashes once known.
type BlockID struct {
	Workchain int32  `json:"workchain"`
	Shard     int64  `json:"shard"`
	Seqno     int    `json:"seqno"`
	RootHash  string `json:"root_hash,omitempty"`
	FileHash  string `json:"file_hash,omitempty"`
}

// MasterchainInfo is the decoded response of get_masterchain_info — the
// only method result the worker needs to inspect structurally, since its
// Last.Seqno drives the last-block probe and consensus math.
type MasterchainInfo struct {
	Last          BlockID `json:"last"`
	StateRootHash string  `json:"state_root_hash,omitempty"`
}

// Capability is the set of blockchain query operations a worker can invoke
// against its upstream liteserver, plus Init/Close lifecycle hooks. The
// canonical method set mirrors §6 of SPEC_FULL.md.
type Capability interface {
	// Init performs whatever handshake/sync step is needed before the
	// capability can serve requests. A failing Init means the owning
	// worker should exit with a "dead" status.
	Init(ctx context.Context) error
	Close() error

	GetMasterchainInfo(ctx context.Context) (MasterchainInfo, error)
	GetMasterchainBlockSignatures(ctx context.Context, seqno int) (Result, error)
	GetShardBlockProof(ctx context.Context, workchain int32, shard int64, seqno int, fromSeqno int) (Result, error)
	LookupBlock(ctx context.Context, workchain int32, shard int64, seqno int, lt int64, unixtime int) (Result, error)
	GetShards(ctx context.Context, masterSeqno int) (Result, error)
	GetBlockHeader(ctx context.Context, workchain int32, shard int64, seqno int, rootHash, fileHash string) (Result, error)
	GetBlockTransactions(ctx context.Context, workchain int32, shard int64, seqno int, count int, rootHash, fileHash string, afterLT int64, afterHash string) (Result, error)
	GetBlockTransactionsExt(ctx context.Context, workchain int32, shard int64, seqno int, count int, rootHash, fileHash string, afterLT int64, afterHash string) (Result, error)
	RawGetBlockTransactions(ctx context.Context, workchain int32, shard int64, seqno int, rootHash, fileHash string, count int, afterLT int64, afterHash string) (Result, error)

	RawGetAccountState(ctx context.Context, address string, seqno int) (Result, error)
	GenericGetAccountState(ctx context.Context, address string, seqno int) (Result, error)
	RawGetTransactions(ctx context.Context, address string, fromLT int64, fromHash string) (Result, error)
	RawRunMethod(ctx context.Context, address, method string, stackData []any, seqno int) (Result, error)
	RawSendMessage(ctx context.Context, boc []byte) (Result, error)
	RawSendMessageReturnHash(ctx context.Context, boc []byte) (Result, error)
	RawCreateQuery(ctx context.Context, destination string, body, initCode, initData []byte) (Result, error)
	RawSendQuery(ctx context.Context, queryInfo Result) (Result, error)
	RawCreateAndSendQuery(ctx context.Context, destination string, body, initCode, initData []byte) (Result, error)
	RawCreateAndSendMessage(ctx context.Context, destination string, body, initialAccountState []byte) (Result, error)
	RawEstimateFees(ctx context.Context, destination string, body, initCode, initData []byte, ignoreChksig bool) (Result, error)
	GetConfigParam(ctx context.Context, configID int, seqno int) (Result, error)
	GetTokenData(ctx context.Context, address string) (Result, error)
	TryLocateTxByIncomingMessage(ctx context.Context, source, destination string, creationLT int64) (Result, error)
	TryLocateTxByOutcomingMessage(ctx context.Context, source, destination string, creationLT int64) (Result, error)
}
