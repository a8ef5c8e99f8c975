package lite

import (
	"context"
	"sync"
	"time"
)

// Mock is a deterministic, in-memory Capability used by tests to drive
// worker, dispatcher, and manager behavior without a real liteserver.
type Mock struct {
	mu sync.Mutex

	Seqno      int
	Archival   bool
	InitErr    error
	MasterErr  error
	BlockNotFound bool

	// Delay, if set, is applied before RawSendMessage/RawSendMessageReturnHash
	// return — used to simulate fan-out races (§8 scenario 4).
	Delay time.Duration
	// SendResult overrides the default ok payload for send methods.
	SendResult Result
	SendErr    error

	// MethodDelay lets a test stall an arbitrary method (e.g.
	// raw_get_account_state) to exercise dispatcher timeouts.
	MethodDelay map[string]time.Duration

	closed bool
}

func NewMock(seqno int, archival bool) *Mock {
	return &Mock{Seqno: seqno, Archival: archival}
}

func (m *Mock) sleep(ctx context.Context, method string) error {
	m.mu.Lock()
	d := m.MethodDelay[method]
	m.mu.Unlock()
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mock) Init(ctx context.Context) error { return m.InitErr }
func (m *Mock) Close() error                   { m.closed = true; return nil }

func (m *Mock) GetMasterchainInfo(ctx context.Context) (MasterchainInfo, error) {
	if err := m.sleep(ctx, "get_masterchain_info"); err != nil {
		return MasterchainInfo{}, err
	}
	if m.MasterErr != nil {
		return MasterchainInfo{}, m.MasterErr
	}
	m.mu.Lock()
	seqno := m.Seqno
	m.mu.Unlock()
	return MasterchainInfo{Last: BlockID{Workchain: -1, Seqno: seqno}}, nil
}

// SetSeqno lets a test advance the mock's reported chain height.
func (m *Mock) SetSeqno(seqno int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Seqno = seqno
}

func (m *Mock) GetMasterchainBlockSignatures(ctx context.Context, seqno int) (Result, error) {
	return Result{"@type": "blocks.blockSignatures", "seqno": seqno}, nil
}

func (m *Mock) GetShardBlockProof(ctx context.Context, workchain int32, shard int64, seqno int, fromSeqno int) (Result, error) {
	return Result{"@type": "blocks.shardBlockProof"}, nil
}

func (m *Mock) LookupBlock(ctx context.Context, workchain int32, shard int64, seqno int, lt int64, unixtime int) (Result, error) {
	if m.BlockNotFound {
		return Result{"@type": "error", "message": "block not found"}, nil
	}
	return Result{"@type": "ton.blockIdExt", "workchain": workchain, "shard": shard, "seqno": seqno}, nil
}

func (m *Mock) GetShards(ctx context.Context, masterSeqno int) (Result, error) {
	return Result{"@type": "blocks.shards"}, nil
}

func (m *Mock) GetBlockHeader(ctx context.Context, workchain int32, shard int64, seqno int, rootHash, fileHash string) (Result, error) {
	if err := m.sleep(ctx, "get_block_header"); err != nil {
		return nil, err
	}
	return Result{"@type": "blocks.header", "workchain": workchain, "shard": shard, "seqno": seqno}, nil
}

func (m *Mock) GetBlockTransactions(ctx context.Context, workchain int32, shard int64, seqno int, count int, rootHash, fileHash string, afterLT int64, afterHash string) (Result, error) {
	return m.blockTransactions(ctx)
}

func (m *Mock) GetBlockTransactionsExt(ctx context.Context, workchain int32, shard int64, seqno int, count int, rootHash, fileHash string, afterLT int64, afterHash string) (Result, error) {
	return m.blockTransactions(ctx)
}

func (m *Mock) RawGetBlockTransactions(ctx context.Context, workchain int32, shard int64, seqno int, rootHash, fileHash string, count int, afterLT int64, afterHash string) (Result, error) {
	return m.blockTransactions(ctx)
}

func (m *Mock) blockTransactions(ctx context.Context) (Result, error) {
	if err := m.sleep(ctx, "archival_probe"); err != nil {
		return nil, err
	}
	if m.BlockNotFound || !m.Archival {
		return Result{"@type": "error", "message": "block not found"}, nil
	}
	return Result{"@type": "blocks.transactions", "transactions": []any{}}, nil
}

func (m *Mock) RawGetAccountState(ctx context.Context, address string, seqno int) (Result, error) {
	if err := m.sleep(ctx, "raw_get_account_state"); err != nil {
		return nil, err
	}
	return Result{
		"@type":   "raw.accountState",
		"balance": "1000000000",
		"last_transaction_id": Result{"lt": "100", "hash": "aGFzaA=="},
	}, nil
}

func (m *Mock) GenericGetAccountState(ctx context.Context, address string, seqno int) (Result, error) {
	if err := m.sleep(ctx, "generic_get_account_state"); err != nil {
		return nil, err
	}
	return Result{"@type": "fullAccountState"}, nil
}

func (m *Mock) RawGetTransactions(ctx context.Context, address string, fromLT int64, fromHash string) (Result, error) {
	if err := m.sleep(ctx, "raw_get_transactions"); err != nil {
		return nil, err
	}
	return Result{"@type": "raw.transactions", "transactions": []any{}}, nil
}

func (m *Mock) RawRunMethod(ctx context.Context, address, method string, stackData []any, seqno int) (Result, error) {
	return Result{"@type": "smc.runResult"}, nil
}

func (m *Mock) RawSendMessage(ctx context.Context, boc []byte) (Result, error) {
	return m.send(ctx)
}

func (m *Mock) RawSendMessageReturnHash(ctx context.Context, boc []byte) (Result, error) {
	return m.send(ctx)
}

func (m *Mock) send(ctx context.Context) (Result, error) {
	if m.Delay > 0 {
		t := time.NewTimer(m.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.SendErr != nil {
		return nil, m.SendErr
	}
	if m.SendResult != nil {
		return m.SendResult, nil
	}
	return Result{"@type": "ok"}, nil
}

func (m *Mock) RawCreateQuery(ctx context.Context, destination string, body, initCode, initData []byte) (Result, error) {
	return Result{"@type": "query.info"}, nil
}

func (m *Mock) RawSendQuery(ctx context.Context, queryInfo Result) (Result, error) {
	return Result{"@type": "ok"}, nil
}

func (m *Mock) RawCreateAndSendQuery(ctx context.Context, destination string, body, initCode, initData []byte) (Result, error) {
	return Result{"@type": "ok"}, nil
}

func (m *Mock) RawCreateAndSendMessage(ctx context.Context, destination string, body, initialAccountState []byte) (Result, error) {
	return Result{"@type": "ok"}, nil
}

func (m *Mock) RawEstimateFees(ctx context.Context, destination string, body, initCode, initData []byte, ignoreChksig bool) (Result, error) {
	return Result{"@type": "query.fees"}, nil
}

func (m *Mock) GetConfigParam(ctx context.Context, configID int, seqno int) (Result, error) {
	return Result{"@type": "configInfo"}, nil
}

func (m *Mock) GetTokenData(ctx context.Context, address string) (Result, error) {
	return Result{"@type": "tokenData"}, nil
}

func (m *Mock) TryLocateTxByIncomingMessage(ctx context.Context, source, destination string, creationLT int64) (Result, error) {
	return Result{"@type": "raw.transaction"}, nil
}

func (m *Mock) TryLocateTxByOutcomingMessage(ctx context.Context, source, destination string, creationLT int64) (Result, error) {
	return Result{"@type": "raw.transaction"}, nil
}
