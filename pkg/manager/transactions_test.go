package manager

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonlite/litegate/pkg/lite"
	"github.com/tonlite/litegate/pkg/types"
)

// pagingMock serves raw_get_account_state/raw_get_transactions with a
// scripted single page of two transactions, one carrying a decodable
// msg.dataRaw body and one with message data absent.
type pagingMock struct {
	*lite.Mock
}

func newPagingMock() *pagingMock {
	return &pagingMock{Mock: lite.NewMock(100, false)}
}

func (p *pagingMock) RawGetAccountState(ctx context.Context, address string, seqno int) (lite.Result, error) {
	return lite.Result{
		"@type":               "raw.accountState",
		"last_transaction_id": lite.Result{"lt": "200", "hash": "aGFzaA=="},
	}, nil
}

func (p *pagingMock) RawGetTransactions(ctx context.Context, address string, fromLT int64, fromHash string) (lite.Result, error) {
	body := base64.StdEncoding.EncodeToString([]byte("hello"))
	return lite.Result{
		"@type": "raw.transactions",
		"transactions": []any{
			lite.Result{
				"transaction_id": lite.Result{"lt": "200"},
				"in_msg": lite.Result{
					"source":      lite.Result{"account_address": "EQsender"},
					"destination": lite.Result{"account_address": "EQdest"},
					"msg_data":    lite.Result{"@type": "msg.dataRaw", "body": body},
				},
			},
			lite.Result{
				"transaction_id": lite.Result{"lt": "150"},
			},
		},
	}, nil
}

func newTransactionsTestManager(t *testing.T, m lite.Capability) *Manager {
	t.Helper()
	mgr := New(Options{
		Liteservers: []types.LiteserverConfig{{Index: 0}},
		NewCapability: func(types.LiteserverConfig) (lite.Capability, error) {
			return m, nil
		},
		QueueSize:      16,
		RequestTimeout: time.Second,
	})
	mgr.Start(context.Background())
	t.Cleanup(mgr.Shutdown)

	require.Eventually(t, func() bool {
		return mgr.GetConsensusBlock().Seqno > 0
	}, 2*time.Second, 10*time.Millisecond)
	return mgr
}

func TestGetTransactionsDecodesMessageAndNormalizesAddresses(t *testing.T) {
	mgr := newTransactionsTestManager(t, newPagingMock())

	txs, err := mgr.GetTransactions(context.Background(), "EQaddr", GetTransactionsOptions{
		Limit:          10,
		DecodeMessages: true,
	})
	require.NoError(t, err)
	require.Len(t, txs, 2)

	inMsg := txs[0]["in_msg"].(lite.Result)
	assert.Equal(t, "EQsender", inMsg["source"])
	assert.Equal(t, "EQdest", inMsg["destination"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("hello")), inMsg["message"])
}

func TestGetTransactionsLenientDecodeFailureClearsMessage(t *testing.T) {
	mgr := newTransactionsTestManager(t, newPagingMock())
	mgr.strict = false

	txs, err := mgr.GetTransactions(context.Background(), "EQaddr", GetTransactionsOptions{Limit: 10, DecodeMessages: true})
	require.NoError(t, err)

	// Corrupt body to force a decode failure on a copy and confirm lenient clearing.
	bad := lite.Result{"@type": "msg.dataRaw", "body": "not-base64!!"}
	msg := lite.Result{"msg_data": bad}
	mgr.normalizeMessage(msg)
	assert.Equal(t, "", msg["message"])
	_ = txs
}

func TestGetTransactionsStrictDecodeFailureRecordsError(t *testing.T) {
	mgr := newTransactionsTestManager(t, newPagingMock())
	mgr.strict = true

	bad := lite.Result{"@type": "msg.dataRaw", "body": "not-base64!!"}
	msg := lite.Result{"msg_data": bad}
	mgr.normalizeMessage(msg)
	assert.NotEmpty(t, msg["decode_error"])
	assert.Nil(t, msg["message"])
}
