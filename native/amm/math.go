package amm

import "github.com/holiman/uint256"

// PriceScale is the fixed-point scale for spot prices, matching the 18-decimal
// convention assumed for both assets.
var PriceScale = uint256.NewInt(1_000_000_000_000_000_000)

// GetAmountOut quotes a constant-product swap:
//
//	amountOut = floor(amountIn * reserveOut / (reserveIn + amountIn))
//
// Rounding toward zero guarantees the post-trade reserve product never
// decreases, and the output is always strictly less than reserveOut.
func GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if amountIn == nil || amountIn.IsZero() {
		return nil, ErrInvalidAmount
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInvalidReserves
	}
	numerator := new(uint256.Int)
	if _, overflow := numerator.MulOverflow(amountIn, reserveOut); overflow {
		return nil, ErrAmountOverflow
	}
	denominator := new(uint256.Int)
	if _, overflow := denominator.AddOverflow(reserveIn, amountIn); overflow {
		return nil, ErrAmountOverflow
	}
	return numerator.Div(numerator, denominator), nil
}

// SpotPrice derives the fixed-point amount of the quote asset one unit of the
// base asset is worth: reserveQuote * PriceScale / reserveBase. Both reserves
// must be populated; an empty pool has no price.
func SpotPrice(reserveBase, reserveQuote *uint256.Int) (*uint256.Int, error) {
	if reserveBase == nil || reserveBase.IsZero() || reserveQuote == nil || reserveQuote.IsZero() {
		return nil, ErrInvalidReserves
	}
	scaled := new(uint256.Int)
	if _, overflow := scaled.MulOverflow(reserveQuote, PriceScale); overflow {
		return nil, ErrAmountOverflow
	}
	return scaled.Div(scaled, reserveBase), nil
}
