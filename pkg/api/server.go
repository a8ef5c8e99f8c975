// Package api exposes the Manager's verb surface over HTTP, in the
// teacher's net/http.ServeMux style (pkg/api/health.go), plus /health,
// /ready and /metrics. The envelope mirrors the reference gateway's
// TonResponse(ok, result, error, code) shape rather than inventing a new
// wire format; routing, validation and auth beyond that are intentionally
// left thin per the public-API non-goal.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tonlite/litegate/pkg/manager"
	"github.com/tonlite/litegate/pkg/metrics"
	"github.com/tonlite/litegate/pkg/tonaddr"
	"github.com/tonlite/litegate/pkg/types"
)

func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// Server wires the Manager's verbs to HTTP handlers.
type Server struct {
	mgr *manager.Manager
	mux *http.ServeMux
}

// NewServer builds the route table. Routing is a flat switch over
// registered paths rather than a generic JSON-RPC dispatch table, since a
// full routing/validation layer is out of scope.
func NewServer(mgr *manager.Manager) *Server {
	s := &Server{mgr: mgr, mux: http.NewServeMux()}

	s.mux.HandleFunc("/health", s.health)
	s.mux.HandleFunc("/ready", s.ready)
	s.mux.Handle("/metrics", metrics.Handler())

	s.mux.HandleFunc("/api/v1/getMasterchainInfo", s.getMasterchainInfo)
	s.mux.HandleFunc("/api/v1/getAddressInformation", s.rawGetAccountState)
	s.mux.HandleFunc("/api/v1/getExtendedAddressInformation", s.genericGetAccountState)
	s.mux.HandleFunc("/api/v1/getTransactions", s.getTransactions)
	s.mux.HandleFunc("/api/v1/rawGetTransactions", s.rawGetTransactions)
	s.mux.HandleFunc("/api/v1/runGetMethod", s.rawRunMethod)
	s.mux.HandleFunc("/api/v1/estimateFee", s.rawEstimateFees)
	s.mux.HandleFunc("/api/v1/lookupBlock", s.lookupBlock)
	s.mux.HandleFunc("/api/v1/shards", s.getShards)
	s.mux.HandleFunc("/api/v1/getBlockHeader", s.getBlockHeader)
	s.mux.HandleFunc("/api/v1/getConfigParam", s.getConfigParam)
	s.mux.HandleFunc("/api/v1/getBlockTransactions", s.getBlockTransactions)
	s.mux.HandleFunc("/api/v1/getTokenData", s.getTokenData)
	s.mux.HandleFunc("/api/v1/tryLocateTxByIncomingMessage", s.tryLocateTxByIncomingMessage)
	s.mux.HandleFunc("/api/v1/tryLocateTxByOutcomingMessage", s.tryLocateTxByOutcomingMessage)
	s.mux.HandleFunc("/api/v1/sendBoc", s.rawSendMessage)
	s.mux.HandleFunc("/api/v1/sendBocReturnHash", s.rawSendMessageReturnHash)
	s.mux.HandleFunc("/api/v1/packAddress", s.packAddress)
	s.mux.HandleFunc("/api/v1/unpackAddress", s.unpackAddress)
	s.mux.HandleFunc("/api/v1/detectAddress", s.detectAddress)
	s.mux.HandleFunc("/api/v1/getConsensusBlock", s.getConsensusBlock)
	s.mux.HandleFunc("/api/v1/getWorkersState", s.getWorkersState)

	return s
}

// Start runs the HTTP server until ctx is canceled, then shuts it down
// gracefully, matching the teacher's HealthServer.Start timeout profile.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Handler exposes the route table for embedding or testing.
func (s *Server) Handler() http.Handler { return s.mux }

// envelope mirrors the reference gateway's {ok, result} / {ok, error, code}
// JSON response shape.
type envelope struct {
	Ok     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	Code   int    `json:"code,omitempty"`
}

func writeResult(w http.ResponseWriter, result any, err error) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		code := types.StatusCode(err)
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(envelope{Ok: false, Error: err.Error(), Code: code})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(envelope{Ok: true, Result: result})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Ok: false, Error: msg, Code: status})
}

// --- health / ready -------------------------------------------------------

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{Status: "healthy", Timestamp: time.Now()})
}

type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	working := 0
	for _, info := range s.mgr.GetWorkersState() {
		if info.IsWorking {
			working++
		}
	}
	ready := working > 0
	if ready {
		checks["workers"] = strconv.Itoa(working) + " working"
	} else {
		checks["workers"] = "none working"
	}

	status := http.StatusOK
	statusText := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		statusText = "not ready"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResponse{Status: statusText, Checks: checks})
}

// --- query helpers ---------------------------------------------------------

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func queryInt64(r *http.Request, key string, fallback int64) int64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func queryBool(r *http.Request, key string, fallback bool) bool {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// --- verb handlers -----------------------------------------------------------

func (s *Server) getMasterchainInfo(w http.ResponseWriter, r *http.Request) {
	res, err := s.mgr.GetMasterchainInfo(r.Context())
	writeResult(w, res, err)
}

func (s *Server) rawGetAccountState(w http.ResponseWriter, r *http.Request) {
	address, err := tonaddr.Prepare(r.URL.Query().Get("address"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid address")
		return
	}
	res, derr := s.mgr.RawGetAccountState(r.Context(), address, queryInt(r, "seqno", 0))
	writeResult(w, res, derr)
}

func (s *Server) genericGetAccountState(w http.ResponseWriter, r *http.Request) {
	address, err := tonaddr.Prepare(r.URL.Query().Get("address"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid address")
		return
	}
	res, derr := s.mgr.GenericGetAccountState(r.Context(), address, queryInt(r, "seqno", 0))
	writeResult(w, res, derr)
}

func (s *Server) rawGetTransactions(w http.ResponseWriter, r *http.Request) {
	address, err := tonaddr.Prepare(r.URL.Query().Get("address"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid address")
		return
	}
	res, derr := s.mgr.RawGetTransactions(r.Context(), address,
		queryInt64(r, "lt", 0), r.URL.Query().Get("hash"), queryBool(r, "archival", false))
	writeResult(w, res, derr)
}

func (s *Server) getTransactions(w http.ResponseWriter, r *http.Request) {
	address, err := tonaddr.Prepare(r.URL.Query().Get("address"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid address")
		return
	}
	opts := manager.GetTransactionsOptions{
		Limit:          queryInt(r, "limit", 10),
		ToLT:           queryInt64(r, "to_lt", 0),
		DecodeMessages: true,
		Archival:       queryBool(r, "archival", false),
	}
	if lt := r.URL.Query().Get("lt"); lt != "" {
		opts.HaveFrom = true
		opts.FromLT = queryInt64(r, "lt", 0)
		opts.FromHash = r.URL.Query().Get("hash")
	}
	txs, derr := s.mgr.GetTransactions(r.Context(), address, opts)
	writeResult(w, txs, derr)
}

func (s *Server) rawRunMethod(w http.ResponseWriter, r *http.Request) {
	address, err := tonaddr.Prepare(r.URL.Query().Get("address"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid address")
		return
	}
	res, derr := s.mgr.RawRunMethod(r.Context(), address, r.URL.Query().Get("method"), nil, queryInt(r, "seqno", 0))
	writeResult(w, res, derr)
}

func (s *Server) rawEstimateFees(w http.ResponseWriter, r *http.Request) {
	destination, err := tonaddr.Prepare(r.URL.Query().Get("address"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid address")
		return
	}
	res, derr := s.mgr.RawEstimateFees(r.Context(), destination, nil, nil, nil, queryBool(r, "ignore_chksig", false))
	writeResult(w, res, derr)
}

func (s *Server) lookupBlock(w http.ResponseWriter, r *http.Request) {
	res, err := s.mgr.LookupBlock(r.Context(),
		int32(queryInt(r, "workchain", -1)), queryInt64(r, "shard", 0),
		queryInt(r, "seqno", 0), queryInt64(r, "lt", 0), queryInt(r, "unixtime", 0))
	writeResult(w, res, err)
}

func (s *Server) getShards(w http.ResponseWriter, r *http.Request) {
	res, err := s.mgr.GetShards(r.Context(), queryInt(r, "seqno", 0))
	writeResult(w, res, err)
}

func (s *Server) getBlockHeader(w http.ResponseWriter, r *http.Request) {
	res, err := s.mgr.GetBlockHeader(r.Context(),
		int32(queryInt(r, "workchain", -1)), queryInt64(r, "shard", 0), queryInt(r, "seqno", 0),
		r.URL.Query().Get("root_hash"), r.URL.Query().Get("file_hash"))
	writeResult(w, res, err)
}

func (s *Server) getConfigParam(w http.ResponseWriter, r *http.Request) {
	res, err := s.mgr.GetConfigParam(r.Context(), queryInt(r, "config_id", 0), queryInt(r, "seqno", 0))
	writeResult(w, res, err)
}

func (s *Server) getBlockTransactions(w http.ResponseWriter, r *http.Request) {
	res, err := s.mgr.GetBlockTransactions(r.Context(),
		int32(queryInt(r, "workchain", -1)), queryInt64(r, "shard", 0), queryInt(r, "seqno", 0),
		queryInt(r, "count", 40), r.URL.Query().Get("root_hash"), r.URL.Query().Get("file_hash"),
		queryInt64(r, "after_lt", 0), r.URL.Query().Get("after_hash"))
	writeResult(w, res, err)
}

func (s *Server) getTokenData(w http.ResponseWriter, r *http.Request) {
	address, err := tonaddr.Prepare(r.URL.Query().Get("address"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid address")
		return
	}
	res, derr := s.mgr.GetTokenData(r.Context(), address)
	writeResult(w, res, derr)
}

func (s *Server) tryLocateTxByIncomingMessage(w http.ResponseWriter, r *http.Request) {
	res, err := s.mgr.TryLocateTxByIncomingMessage(r.Context(),
		r.URL.Query().Get("source"), r.URL.Query().Get("destination"), queryInt64(r, "created_lt", 0))
	writeResult(w, res, err)
}

func (s *Server) tryLocateTxByOutcomingMessage(w http.ResponseWriter, r *http.Request) {
	res, err := s.mgr.TryLocateTxByOutcomingMessage(r.Context(),
		r.URL.Query().Get("source"), r.URL.Query().Get("destination"), queryInt64(r, "created_lt", 0))
	writeResult(w, res, err)
}

type sendBocRequest struct {
	Boc string `json:"boc"`
}

func (s *Server) decodeBoc(r *http.Request) ([]byte, error) {
	var req sendBocRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.New("malformed request body")
	}
	if req.Boc == "" {
		return nil, errors.New("boc is required")
	}
	return decodeBase64(req.Boc)
}

func (s *Server) rawSendMessage(w http.ResponseWriter, r *http.Request) {
	boc, err := s.decodeBoc(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	res, derr := s.mgr.RawSendMessage(r.Context(), boc)
	writeResult(w, res, derr)
}

func (s *Server) rawSendMessageReturnHash(w http.ResponseWriter, r *http.Request) {
	boc, err := s.decodeBoc(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	res, derr := s.mgr.RawSendMessageReturnHash(r.Context(), boc)
	writeResult(w, res, derr)
}

func (s *Server) packAddress(w http.ResponseWriter, r *http.Request) {
	forms, err := tonaddr.DetectAddress(r.URL.Query().Get("address"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid address")
		return
	}
	writeResult(w, forms.BounceableURL, nil)
}

func (s *Server) unpackAddress(w http.ResponseWriter, r *http.Request) {
	forms, err := tonaddr.DetectAddress(r.URL.Query().Get("address"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid address")
		return
	}
	writeResult(w, forms.RawForm, nil)
}

func (s *Server) detectAddress(w http.ResponseWriter, r *http.Request) {
	forms, err := tonaddr.DetectAddress(r.URL.Query().Get("address"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid address")
		return
	}
	writeResult(w, forms, nil)
}

func (s *Server) getConsensusBlock(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.mgr.GetConsensusBlock(), nil)
}

func (s *Server) getWorkersState(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.mgr.GetWorkersState(), nil)
}
