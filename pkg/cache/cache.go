// Package cache memoizes liteserver results per method with a per-method
// TTL, grounded on the reference manager's setup_cache/CacheManager: each
// verb gets its own expiry, and most verbs refuse to cache an
// error-shaped payload — except try_locate_tx_by_* and get_transactions,
// which cache errors too, a documented legacy quirk preserved here rather
// than "fixed".
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tonlite/litegate/pkg/lite"
	"github.com/tonlite/litegate/pkg/metrics"
	"github.com/tonlite/litegate/pkg/types"
)

// Backend is the storage side of the cache. A nil Backend makes every
// lookup a miss and every store a no-op.
type Backend interface {
	Get(ctx context.Context, key string) (lite.Result, bool)
	Set(ctx context.Context, key string, value lite.Result, ttl time.Duration)
}

// policy is the per-method cache configuration: TTL and whether
// error-shaped payloads are eligible for storage.
type policy struct {
	ttl        time.Duration
	checkError bool // true = refuse to cache @type=="error" payloads
}

// defaultTable mirrors setup_cache's per-verb expirations exactly.
var defaultTable = map[types.Method]policy{
	types.MethodGetMasterchainInfo:            {time.Second, true},
	types.MethodGetMasterchainBlockSignatures: {5 * time.Second, true},
	types.MethodGetShardBlockProof:            {5 * time.Second, true},
	types.MethodLookupBlock:                   {600 * time.Second, true},
	types.MethodGetShards:                     {600 * time.Second, true},
	types.MethodGetBlockHeader:                {600 * time.Second, true},
	types.MethodGetBlockTransactions:          {600 * time.Second, true},
	types.MethodRawGetBlockTransactions:       {600 * time.Second, true},
	types.MethodRawGetAccountState:            {5 * time.Second, true},
	types.MethodGenericGetAccountState:        {5 * time.Second, true},
	types.MethodRawGetTransactions:            {5 * time.Second, true},
	types.MethodGetTransactions:               {15 * time.Second, false},
	types.MethodRawRunMethod:                  {5 * time.Second, true},
	types.MethodRawEstimateFees:               {5 * time.Second, true},
	types.MethodGetConfigParam:                {5 * time.Second, true},
	types.MethodGetTokenData:                  {15 * time.Second, true},
	types.MethodTryLocateTxByIncomingMessage:  {600 * time.Second, false},
	types.MethodTryLocateTxByOutcomingMessage: {600 * time.Second, false},
}

// Cache wraps a Backend with the per-method policy table.
type Cache struct {
	backend Backend
	table   map[types.Method]policy
}

func New(backend Backend) *Cache {
	return &Cache{backend: backend, table: defaultTable}
}

// Cached is true for any method the table assigns a nonzero TTL to; every
// other method (sends, queries, raw_run_method's siblings not listed) is
// always dispatched fresh.
func (c *Cache) Cached(method types.Method) bool {
	p, ok := c.table[method]
	return ok && p.ttl > 0
}

// key canonicalizes a method+args pair into a stable cache key.
func key(method types.Method, args []any) string {
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%s:%v", method, args)
	}
	return fmt.Sprintf("%s:%s", method, b)
}

// Do looks up method(args) in the cache, calling fn on a miss and storing
// the result per the method's policy. A Backend of nil always misses.
func (c *Cache) Do(ctx context.Context, method types.Method, args []any, fn func() (lite.Result, error)) (lite.Result, error) {
	p, ok := c.table[method]
	if !ok || p.ttl <= 0 || c.backend == nil {
		return fn()
	}

	k := key(method, args)
	if val, hit := c.backend.Get(ctx, k); hit {
		metrics.CacheHitsTotal.WithLabelValues(method.String()).Inc()
		return val, nil
	}
	metrics.CacheMissesTotal.WithLabelValues(method.String()).Inc()

	res, err := fn()
	if err != nil {
		return res, err
	}
	if p.checkError && res.IsError() {
		return res, nil
	}
	c.backend.Set(ctx, k, res, p.ttl)
	return res, nil
}
