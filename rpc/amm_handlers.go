package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"ammpool/crypto"
)

func parseAddress(raw json.RawMessage) ([20]byte, error) {
	var addr [20]byte
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return addr, fmt.Errorf("address must be a string")
	}
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(encoded))
	if err != nil {
		return addr, err
	}
	copy(addr[:], decoded.Bytes())
	return addr, nil
}

func parseAmount(raw json.RawMessage) (*uint256.Int, error) {
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, fmt.Errorf("amount must be a decimal string")
	}
	amount, err := uint256.FromDecimal(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %v", err)
	}
	return amount, nil
}

func parseSymbol(raw json.RawMessage) (string, error) {
	var symbol string
	if err := json.Unmarshal(raw, &symbol); err != nil {
		return "", fmt.Errorf("token symbol must be a string")
	}
	if strings.TrimSpace(symbol) == "" {
		return "", fmt.Errorf("token symbol required")
	}
	return symbol, nil
}

type createPoolResult struct {
	TokenA string `json:"tokenA"`
	TokenB string `json:"tokenB"`
	Owner  string `json:"owner"`
}

func (s *Server) handleCreatePool(w http.ResponseWriter, req *RPCRequest) {
	if len(req.Params) != 3 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected [owner, tokenA, tokenB]", nil)
		return
	}
	owner, err := parseAddress(req.Params[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	tokenA, err := parseSymbol(req.Params[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	tokenB, err := parseSymbol(req.Params[2])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	pool, err := s.engine.CreatePool(owner, tokenA, tokenB)
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, createPoolResult{
		TokenA: pool.TokenA,
		TokenB: pool.TokenB,
		Owner:  crypto.NewAddress(crypto.PoolPrefix, pool.Owner[:]).String(),
	})
}

type liquidityParams struct {
	caller  [20]byte
	amountA *uint256.Int
	amountB *uint256.Int
}

func parseLiquidityParams(req *RPCRequest) (*liquidityParams, error) {
	if len(req.Params) != 3 {
		return nil, fmt.Errorf("expected [caller, amountA, amountB]")
	}
	caller, err := parseAddress(req.Params[0])
	if err != nil {
		return nil, err
	}
	amountA, err := parseAmount(req.Params[1])
	if err != nil {
		return nil, err
	}
	amountB, err := parseAmount(req.Params[2])
	if err != nil {
		return nil, err
	}
	return &liquidityParams{caller: caller, amountA: amountA, amountB: amountB}, nil
}

func (s *Server) handleAddLiquidity(w http.ResponseWriter, req *RPCRequest) {
	params, err := parseLiquidityParams(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	err = s.engine.AddLiquidity(params.caller, params.amountA, params.amountB)
	s.metrics.ObserveLiquidityOp("add", err)
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleRemoveLiquidity(w http.ResponseWriter, req *RPCRequest) {
	params, err := parseLiquidityParams(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	err = s.engine.RemoveLiquidity(params.caller, params.amountA, params.amountB)
	s.metrics.ObserveLiquidityOp("remove", err)
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type swapResult struct {
	AmountOut string `json:"amountOut"`
}

func (s *Server) handleSwap(w http.ResponseWriter, req *RPCRequest, aForB bool) {
	if len(req.Params) != 2 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected [caller, amountIn]", nil)
		return
	}
	caller, err := parseAddress(req.Params[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amountIn, err := parseAmount(req.Params[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	direction := "a_for_b"
	start := time.Now()
	var amountOut *uint256.Int
	if aForB {
		amountOut, err = s.engine.SwapExactAForB(caller, amountIn)
	} else {
		direction = "b_for_a"
		amountOut, err = s.engine.SwapExactBForA(caller, amountIn)
	}
	s.metrics.ObserveSwap(direction, start, err)
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, swapResult{AmountOut: amountOut.Dec()})
}

type priceResult struct {
	Token string `json:"token"`
	Price string `json:"price"`
	Scale string `json:"scale"`
}

func (s *Server) handleGetPrice(w http.ResponseWriter, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected [token]", nil)
		return
	}
	symbol, err := parseSymbol(req.Params[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	price, err := s.engine.Price(symbol)
	s.metrics.ObservePriceQuery(err)
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, priceResult{
		Token: strings.ToUpper(strings.TrimSpace(symbol)),
		Price: price.Dec(),
		Scale: "1000000000000000000",
	})
}

type reservesResult struct {
	TokenA   string `json:"tokenA"`
	TokenB   string `json:"tokenB"`
	ReserveA string `json:"reserveA"`
	ReserveB string `json:"reserveB"`
}

func (s *Server) handleGetReserves(w http.ResponseWriter, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected no params", nil)
		return
	}
	pool, err := s.engine.Pool()
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, reservesResult{
		TokenA:   pool.TokenA,
		TokenB:   pool.TokenB,
		ReserveA: pool.ReserveA.Dec(),
		ReserveB: pool.ReserveB.Dec(),
	})
}
