package token

import (
	"errors"

	"github.com/holiman/uint256"
)

var errNilLedger = errors.New("token custody: ledger not configured")

// CustodyClient moves funds between external accounts and a single custodian
// account. Pulls are authorised by a pre-existing delegated allowance granted
// to the custodian; pushes spend the custodian's own balance.
type CustodyClient struct {
	ledger    *Ledger
	custodian [20]byte
}

// NewCustodyClient binds a custody client to the ledger and the custodian
// address holding pooled funds.
func NewCustodyClient(ledger *Ledger, custodian [20]byte) *CustodyClient {
	return &CustodyClient{ledger: ledger, custodian: custodian}
}

// Custodian returns the account that holds custodied funds.
func (c *CustodyClient) Custodian() [20]byte {
	if c == nil {
		return [20]byte{}
	}
	return c.custodian
}

// Pull draws amount units of the token from the external account into custody,
// consuming the allowance the account granted to the custodian.
func (c *CustodyClient) Pull(symbol string, from [20]byte, amount *uint256.Int) error {
	if c == nil || c.ledger == nil {
		return errNilLedger
	}
	return c.ledger.TransferFrom(c.custodian, from, c.custodian, symbol, amount)
}

// Push releases amount units from custody to the external account.
func (c *CustodyClient) Push(symbol string, to [20]byte, amount *uint256.Int) error {
	if c == nil || c.ledger == nil {
		return errNilLedger
	}
	return c.ledger.Transfer(c.custodian, to, symbol, amount)
}

// Reclaim reverses a completed Push while a failed transition is being
// unwound. It moves the units straight back into custody without consuming an
// allowance; the recipient never observes the aborted operation.
func (c *CustodyClient) Reclaim(symbol string, from [20]byte, amount *uint256.Int) error {
	if c == nil || c.ledger == nil {
		return errNilLedger
	}
	return c.ledger.Transfer(from, c.custodian, symbol, amount)
}
