package token

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"ammpool/core/state"
)

var (
	ErrTokenUnknown          = errors.New("token ledger: token not registered")
	ErrInsufficientBalance   = errors.New("token ledger: insufficient balance")
	ErrInsufficientAllowance = errors.New("token ledger: insufficient allowance")
	ErrBalanceOverflow       = errors.New("token ledger: balance overflows 256 bits")
	ErrSupplyOverflow        = errors.New("token ledger: total supply overflows 256 bits")
	ErrNotMintAuthority      = errors.New("token ledger: caller is not the mint authority")

	errNilState = errors.New("token ledger: state not configured")
)

// State abstracts the subset of state manager functionality required by the
// ledger.
type State interface {
	Token(symbol string) (*state.TokenMetadata, error)
	Balance(addr []byte, symbol string) (*uint256.Int, error)
	SetBalance(addr []byte, symbol string, amount *uint256.Int) error
	Allowance(owner, spender []byte, symbol string) (*uint256.Int, error)
	SetAllowance(owner, spender []byte, symbol string, amount *uint256.Int) error
	TotalSupply(symbol string) (*uint256.Int, error)
	SetTotalSupply(symbol string, amount *uint256.Int) error
}

// Ledger implements per-symbol fungible-asset accounting: balances, delegated
// allowances and circulating supply. It is the external collaborator the pool
// engine moves funds through; the engine never touches balances directly.
type Ledger struct {
	state State
}

// NewLedger constructs a ledger bound to the provided state backend.
func NewLedger(state State) *Ledger {
	return &Ledger{state: state}
}

func (l *Ledger) requireToken(symbol string) (string, error) {
	if l == nil || l.state == nil {
		return "", errNilState
	}
	normalized := state.NormalizeSymbol(symbol)
	meta, err := l.state.Token(normalized)
	if err != nil {
		return "", err
	}
	if meta == nil {
		return "", fmt.Errorf("%w: %s", ErrTokenUnknown, normalized)
	}
	return normalized, nil
}

// TotalSupply returns the circulating supply of the token.
func (l *Ledger) TotalSupply(symbol string) (*uint256.Int, error) {
	normalized, err := l.requireToken(symbol)
	if err != nil {
		return nil, err
	}
	return l.state.TotalSupply(normalized)
}

// BalanceOf returns the balance held by the account.
func (l *Ledger) BalanceOf(addr [20]byte, symbol string) (*uint256.Int, error) {
	normalized, err := l.requireToken(symbol)
	if err != nil {
		return nil, err
	}
	return l.state.Balance(addr[:], normalized)
}

// Transfer moves amount units from one account to another. A zero amount is a
// no-op.
func (l *Ledger) Transfer(from, to [20]byte, symbol string, amount *uint256.Int) error {
	normalized, err := l.requireToken(symbol)
	if err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	fromBal, err := l.state.Balance(from[:], normalized)
	if err != nil {
		return err
	}
	if fromBal.Lt(amount) {
		return ErrInsufficientBalance
	}
	// Self-transfers stop after the funds check; crediting the same key
	// would overwrite the debit.
	if from == to {
		return nil
	}
	toBal, err := l.state.Balance(to[:], normalized)
	if err != nil {
		return err
	}
	newToBal := new(uint256.Int)
	if _, overflow := newToBal.AddOverflow(toBal, amount); overflow {
		return ErrBalanceOverflow
	}
	newFromBal := new(uint256.Int).Sub(fromBal, amount)
	if err := l.state.SetBalance(from[:], normalized, newFromBal); err != nil {
		return err
	}
	return l.state.SetBalance(to[:], normalized, newToBal)
}

// Approve sets the spending limit spender may draw from owner's balance.
func (l *Ledger) Approve(owner, spender [20]byte, symbol string, amount *uint256.Int) error {
	normalized, err := l.requireToken(symbol)
	if err != nil {
		return err
	}
	if amount == nil {
		amount = uint256.NewInt(0)
	}
	return l.state.SetAllowance(owner[:], spender[:], normalized, amount)
}

// Allowance returns the remaining spending limit granted by owner to spender.
func (l *Ledger) Allowance(owner, spender [20]byte, symbol string) (*uint256.Int, error) {
	normalized, err := l.requireToken(symbol)
	if err != nil {
		return nil, err
	}
	return l.state.Allowance(owner[:], spender[:], normalized)
}

// TransferFrom moves amount units from owner to recipient on behalf of
// spender, consuming the corresponding allowance.
func (l *Ledger) TransferFrom(spender, owner, recipient [20]byte, symbol string, amount *uint256.Int) error {
	normalized, err := l.requireToken(symbol)
	if err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	allowance, err := l.state.Allowance(owner[:], spender[:], normalized)
	if err != nil {
		return err
	}
	if allowance.Lt(amount) {
		return ErrInsufficientAllowance
	}
	if err := l.Transfer(owner, recipient, normalized, amount); err != nil {
		return err
	}
	remaining := new(uint256.Int).Sub(allowance, amount)
	return l.state.SetAllowance(owner[:], spender[:], normalized, remaining)
}

// Mint creates new units and credits them to the recipient. Only the token's
// registered mint authority may mint.
func (l *Ledger) Mint(authority, to [20]byte, symbol string, amount *uint256.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	normalized := state.NormalizeSymbol(symbol)
	meta, err := l.state.Token(normalized)
	if err != nil {
		return err
	}
	if meta == nil {
		return fmt.Errorf("%w: %s", ErrTokenUnknown, normalized)
	}
	if len(meta.MintAuthority) != 20 || [20]byte(meta.MintAuthority) != authority {
		return ErrNotMintAuthority
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	supply, err := l.state.TotalSupply(normalized)
	if err != nil {
		return err
	}
	newSupply := new(uint256.Int)
	if _, overflow := newSupply.AddOverflow(supply, amount); overflow {
		return ErrSupplyOverflow
	}
	balance, err := l.state.Balance(to[:], normalized)
	if err != nil {
		return err
	}
	newBalance := new(uint256.Int)
	if _, overflow := newBalance.AddOverflow(balance, amount); overflow {
		return ErrBalanceOverflow
	}
	if err := l.state.SetBalance(to[:], normalized, newBalance); err != nil {
		return err
	}
	return l.state.SetTotalSupply(normalized, newSupply)
}
