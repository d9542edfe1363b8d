package amm

import "errors"

var (
	// ErrUnauthorized rejects owner-only operations invoked by any other
	// principal.
	ErrUnauthorized = errors.New("amm engine: caller is not the pool owner")
	// ErrInsufficientReserves rejects withdrawals that exceed the current
	// reserves.
	ErrInsufficientReserves = errors.New("amm engine: withdrawal exceeds reserves")
	// ErrLedgerTransferFailed wraps a pull or push the external ledger refused.
	ErrLedgerTransferFailed = errors.New("amm engine: ledger transfer failed")
	// ErrInvalidAmount rejects a zero swap input.
	ErrInvalidAmount = errors.New("amm engine: amount must be positive")
	// ErrInvalidReserves rejects operations against an empty-sided pool.
	ErrInvalidReserves = errors.New("amm engine: pool reserves must be positive")
	// ErrUnsupportedAsset rejects price queries for tokens outside the pair.
	ErrUnsupportedAsset = errors.New("amm engine: unsupported asset")
	// ErrAmountOverflow rejects arithmetic that would exceed 256 bits.
	ErrAmountOverflow = errors.New("amm engine: amount overflows 256 bits")
	// ErrInvariantViolation reports a constant-product decrease detected after
	// a swap. It should be unreachable with floor rounding.
	ErrInvariantViolation = errors.New("amm engine: constant product invariant violated")
	// ErrPoolExists rejects a second pool creation.
	ErrPoolExists = errors.New("amm engine: pool already created")
	// ErrPoolNotFound rejects operations before the pool has been created.
	ErrPoolNotFound = errors.New("amm engine: pool not created")

	errNilState  = errors.New("amm engine: state not configured")
	errNilLedger = errors.New("amm engine: ledger not configured")
)
