package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonlite/litegate/pkg/lite"
	"github.com/tonlite/litegate/pkg/manager"
	"github.com/tonlite/litegate/pkg/types"
)

func newTestServer(t *testing.T, seqno int) *Server {
	t.Helper()
	mgr := manager.New(manager.Options{
		Liteservers: []types.LiteserverConfig{{Index: 0}},
		NewCapability: func(types.LiteserverConfig) (lite.Capability, error) {
			return lite.NewMock(seqno, false), nil
		},
		QueueSize:      16,
		RequestTimeout: time.Second,
	})
	ctx := context.Background()
	mgr.Start(ctx)

	require.Eventually(t, func() bool {
		return mgr.GetConsensusBlock().Seqno == seqno
	}, 2*time.Second, 10*time.Millisecond)

	t.Cleanup(mgr.Shutdown)
	return NewServer(mgr)
}

func TestGetMasterchainInfoEnvelope(t *testing.T) {
	s := newTestServer(t, 555)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/getMasterchainInfo", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var env envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.True(t, env.Ok)
}

func TestGetAddressInformationRejectsBadAddress(t *testing.T) {
	s := newTestServer(t, 10)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/getAddressInformation?address=not-an-address", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var env envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.False(t, env.Ok)
}

func TestReadyReportsWorkingWorkers(t *testing.T) {
	s := newTestServer(t, 20)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var ready readyResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ready))
	assert.Equal(t, "ready", ready.Status)
}

func TestDetectAddressRoundTrip(t *testing.T) {
	s := newTestServer(t, 10)

	hex := "0000000000000000000000000000000000000000000000000000000000000001"
	hex = hex[len(hex)-64:]
	req := httptest.NewRequest(http.MethodGet, "/api/v1/detectAddress?address=0:"+hex, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var env envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.True(t, env.Ok)
}
