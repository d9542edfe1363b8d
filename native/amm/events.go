package amm

import (
	"github.com/holiman/uint256"

	"ammpool/core/types"
	"ammpool/crypto"
)

const (
	EventTypePoolCreated      = "amm.pool.created"
	EventTypeLiquidityAdded   = "amm.liquidity.added"
	EventTypeLiquidityRemoved = "amm.liquidity.removed"
	EventTypeSwapExecuted     = "amm.swap.executed"
)

// NewPoolCreatedEvent returns the canonical payload emitted when the pool is
// created.
func NewPoolCreatedEvent(p *Pool) *types.Event {
	attrs := make(map[string]string)
	if p != nil {
		attrs["tokenA"] = p.TokenA
		attrs["tokenB"] = p.TokenB
		attrs["owner"] = addressToString(p.Owner)
	}
	return &types.Event{Type: EventTypePoolCreated, Attributes: attrs}
}

// NewLiquidityAddedEvent returns the canonical payload emitted when the owner
// funds the pool.
func NewLiquidityAddedEvent(provider [20]byte, amountA, amountB *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypeLiquidityAdded,
		Attributes: map[string]string{
			"provider": addressToString(provider),
			"amountA":  amountToString(amountA),
			"amountB":  amountToString(amountB),
		},
	}
}

// NewLiquidityRemovedEvent returns the canonical payload emitted when the
// owner withdraws reserves.
func NewLiquidityRemovedEvent(provider [20]byte, amountA, amountB *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypeLiquidityRemoved,
		Attributes: map[string]string{
			"provider": addressToString(provider),
			"amountA":  amountToString(amountA),
			"amountB":  amountToString(amountB),
		},
	}
}

// NewSwapExecutedEvent returns the canonical payload emitted after a completed
// swap.
func NewSwapExecutedEvent(trader [20]byte, tokenIn, tokenOut string, amountIn, amountOut *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypeSwapExecuted,
		Attributes: map[string]string{
			"trader":    addressToString(trader),
			"tokenIn":   tokenIn,
			"tokenOut":  tokenOut,
			"amountIn":  amountToString(amountIn),
			"amountOut": amountToString(amountOut),
		},
	}
}

func addressToString(addr [20]byte) string {
	return crypto.NewAddress(crypto.PoolPrefix, addr[:]).String()
}

func amountToString(amount *uint256.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.Dec()
}
