package amm

import (
	"fmt"

	"github.com/holiman/uint256"

	"ammpool/core/state"
)

// Pool holds the reserve counters for one two-asset constant-product pool.
// TokenA, TokenB and Owner are fixed at creation; the reserves change only
// inside the four mutating engine operations.
type Pool struct {
	TokenA   string
	TokenB   string
	Owner    [20]byte
	ReserveA *uint256.Int
	ReserveB *uint256.Int
}

// Clone returns a deep copy to avoid callers mutating shared pointers.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.ReserveA = cloneAmount(p.ReserveA)
	clone.ReserveB = cloneAmount(p.ReserveB)
	return &clone
}

// SanitizePool normalises the token symbols and guarantees non-nil reserves.
func SanitizePool(p *Pool) (*Pool, error) {
	if p == nil {
		return nil, fmt.Errorf("amm: nil pool")
	}
	tokenA := state.NormalizeSymbol(p.TokenA)
	tokenB := state.NormalizeSymbol(p.TokenB)
	if tokenA == "" || tokenB == "" {
		return nil, fmt.Errorf("amm: pool token symbols required")
	}
	if tokenA == tokenB {
		return nil, fmt.Errorf("amm: pool tokens must differ")
	}
	sanitized := p.Clone()
	sanitized.TokenA = tokenA
	sanitized.TokenB = tokenB
	return sanitized, nil
}

type storedPool struct {
	TokenA   string
	TokenB   string
	Owner    [20]byte
	ReserveA []byte
	ReserveB []byte
}

func toStoredPool(p *Pool) *storedPool {
	stored := &storedPool{}
	if p == nil {
		return stored
	}
	stored.TokenA = p.TokenA
	stored.TokenB = p.TokenB
	stored.Owner = p.Owner
	stored.ReserveA = cloneAmount(p.ReserveA).Bytes()
	stored.ReserveB = cloneAmount(p.ReserveB).Bytes()
	return stored
}

func fromStoredPool(stored *storedPool) (*Pool, error) {
	if stored == nil {
		return nil, fmt.Errorf("amm: nil stored pool")
	}
	if len(stored.ReserveA) > 32 || len(stored.ReserveB) > 32 {
		return nil, fmt.Errorf("amm: stored reserve exceeds 256 bits")
	}
	return &Pool{
		TokenA:   stored.TokenA,
		TokenB:   stored.TokenB,
		Owner:    stored.Owner,
		ReserveA: new(uint256.Int).SetBytes(stored.ReserveA),
		ReserveB: new(uint256.Int).SetBytes(stored.ReserveB),
	}, nil
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Set(v)
}
