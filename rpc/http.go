package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"ammpool/native/amm"
	"ammpool/native/token"
	"ammpool/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	authTokenEnv    = "AMMPOOL_RPC_TOKEN"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
)

// Server exposes the pool engine and token ledger over JSON-RPC 2.0.
type Server struct {
	engine    *amm.Engine
	ledger    *token.Ledger
	authToken string
	metrics   *observability.PoolMetrics
}

// NewServer constructs an RPC server. The bearer token protecting mutating
// administrative methods is read from the AMMPOOL_RPC_TOKEN environment
// variable; when unset those methods are rejected.
func NewServer(engine *amm.Engine, ledger *token.Ledger) *Server {
	return &Server{
		engine:    engine,
		ledger:    ledger,
		authToken: strings.TrimSpace(os.Getenv(authTokenEnv)),
		metrics:   observability.Metrics(),
	}
}

// Start serves RPC requests on the supplied address until the listener fails.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	return http.ListenAndServe(addr, mux)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeEngineError maps an engine or ledger failure onto the RPC error codes.
func writeEngineError(w http.ResponseWriter, req *RPCRequest, err error) {
	switch {
	case errors.Is(err, amm.ErrUnauthorized):
		writeError(w, http.StatusForbidden, req.ID, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, amm.ErrInvalidAmount),
		errors.Is(err, amm.ErrInvalidReserves),
		errors.Is(err, amm.ErrUnsupportedAsset),
		errors.Is(err, amm.ErrInsufficientReserves),
		errors.Is(err, amm.ErrAmountOverflow),
		errors.Is(err, amm.ErrPoolNotFound),
		errors.Is(err, token.ErrTokenUnknown):
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), nil)
	}
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return false
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	supplied := strings.TrimSpace(header[len(prefix):])
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authToken)) == 1
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "POST required", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "unable to read request body", nil)
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON-RPC request", err.Error())
		return
	}

	switch req.Method {
	case "amm_createPool", "amm_addLiquidity", "amm_removeLiquidity", "token_approve", "token_mint":
		if !s.authorized(r) {
			writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "unauthorized", nil)
			return
		}
	}

	switch req.Method {
	case "amm_createPool":
		s.handleCreatePool(w, &req)
	case "amm_addLiquidity":
		s.handleAddLiquidity(w, &req)
	case "amm_removeLiquidity":
		s.handleRemoveLiquidity(w, &req)
	case "amm_swapExactAForB":
		s.handleSwap(w, &req, true)
	case "amm_swapExactBForA":
		s.handleSwap(w, &req, false)
	case "amm_getPrice":
		s.handleGetPrice(w, &req)
	case "amm_getReserves":
		s.handleGetReserves(w, &req)
	case "token_balanceOf":
		s.handleBalanceOf(w, &req)
	case "token_allowance":
		s.handleAllowance(w, &req)
	case "token_approve":
		s.handleApprove(w, &req)
	case "token_mint":
		s.handleMint(w, &req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
	}
}
