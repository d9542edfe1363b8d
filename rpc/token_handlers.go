package rpc

import (
	"net/http"
)

type balanceResult struct {
	Balance string `json:"balance"`
}

func (s *Server) handleBalanceOf(w http.ResponseWriter, req *RPCRequest) {
	if len(req.Params) != 2 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected [account, token]", nil)
		return
	}
	account, err := parseAddress(req.Params[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	symbol, err := parseSymbol(req.Params[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	balance, err := s.ledger.BalanceOf(account, symbol)
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, balanceResult{Balance: balance.Dec()})
}

type allowanceResult struct {
	Allowance string `json:"allowance"`
}

func (s *Server) handleAllowance(w http.ResponseWriter, req *RPCRequest) {
	if len(req.Params) != 3 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected [owner, spender, token]", nil)
		return
	}
	owner, err := parseAddress(req.Params[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	spender, err := parseAddress(req.Params[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	symbol, err := parseSymbol(req.Params[2])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	allowance, err := s.ledger.Allowance(owner, spender, symbol)
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, allowanceResult{Allowance: allowance.Dec()})
}

func (s *Server) handleApprove(w http.ResponseWriter, req *RPCRequest) {
	if len(req.Params) != 4 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected [owner, spender, token, amount]", nil)
		return
	}
	owner, err := parseAddress(req.Params[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	spender, err := parseAddress(req.Params[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	symbol, err := parseSymbol(req.Params[2])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(req.Params[3])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.ledger.Approve(owner, spender, symbol, amount); err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleMint(w http.ResponseWriter, req *RPCRequest) {
	if len(req.Params) != 4 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected [authority, recipient, token, amount]", nil)
		return
	}
	authority, err := parseAddress(req.Params[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	recipient, err := parseAddress(req.Params[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	symbol, err := parseSymbol(req.Params[2])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(req.Params[3])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.ledger.Mint(authority, recipient, symbol, amount); err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}
