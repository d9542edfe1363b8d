package state

import (
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"ammpool/storage"
)

// Manager provides typed access to ledger and pool state stored in the
// underlying key-value database. All monetary quantities are 256-bit unsigned
// integers; negative values are unrepresentable.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// TokenMetadata describes a fungible asset tracked by the ledger.
type TokenMetadata struct {
	Symbol        string
	Name          string
	Decimals      uint8
	MintAuthority []byte
}

var (
	tokenPrefix     = []byte("token:")
	balancePrefix   = []byte("balance:")
	allowancePrefix = []byte("allowance:")
	supplyPrefix    = []byte("supply:")
)

// NormalizeSymbol canonicalises a token symbol for use as a state key.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func tokenMetadataKey(symbol string) []byte {
	buf := make([]byte, 0, len(tokenPrefix)+len(symbol))
	buf = append(buf, tokenPrefix...)
	buf = append(buf, symbol...)
	return ethcrypto.Keccak256(buf)
}

func balanceKey(addr []byte, symbol string) []byte {
	buf := make([]byte, 0, len(balancePrefix)+len(symbol)+1+len(addr))
	buf = append(buf, balancePrefix...)
	buf = append(buf, symbol...)
	buf = append(buf, ':')
	buf = append(buf, addr...)
	return ethcrypto.Keccak256(buf)
}

func allowanceKey(owner, spender []byte, symbol string) []byte {
	buf := make([]byte, 0, len(allowancePrefix)+len(symbol)+2+len(owner)+len(spender))
	buf = append(buf, allowancePrefix...)
	buf = append(buf, symbol...)
	buf = append(buf, ':')
	buf = append(buf, owner...)
	buf = append(buf, ':')
	buf = append(buf, spender...)
	return ethcrypto.Keccak256(buf)
}

func supplyKey(symbol string) []byte {
	buf := make([]byte, 0, len(supplyPrefix)+len(symbol))
	buf = append(buf, supplyPrefix...)
	buf = append(buf, symbol...)
	return ethcrypto.Keccak256(buf)
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) loadTokenMetadata(symbol string) (*TokenMetadata, error) {
	key := tokenMetadataKey(symbol)
	ok, err := m.db.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	data, err := m.db.Get(key)
	if err != nil {
		return nil, err
	}
	meta := &TokenMetadata{}
	if err := rlp.DecodeBytes(data, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func (m *Manager) writeTokenMetadata(symbol string, meta *TokenMetadata) error {
	encoded, err := rlp.EncodeToBytes(meta)
	if err != nil {
		return err
	}
	return m.db.Put(tokenMetadataKey(symbol), encoded)
}

// RegisterToken records metadata for a new token symbol. Registering the same
// symbol twice is an error.
func (m *Manager) RegisterToken(symbol, name string, decimals uint8) error {
	normalized := NormalizeSymbol(symbol)
	if normalized == "" {
		return fmt.Errorf("state: token symbol must not be empty")
	}
	existing, err := m.loadTokenMetadata(normalized)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("state: token %s already registered", normalized)
	}
	meta := &TokenMetadata{Symbol: normalized, Name: strings.TrimSpace(name), Decimals: decimals}
	return m.writeTokenMetadata(normalized, meta)
}

// Token returns the metadata for the supplied symbol, or nil when unknown.
func (m *Manager) Token(symbol string) (*TokenMetadata, error) {
	return m.loadTokenMetadata(NormalizeSymbol(symbol))
}

// TokenExists reports whether the symbol has been registered.
func (m *Manager) TokenExists(symbol string) bool {
	meta, err := m.loadTokenMetadata(NormalizeSymbol(symbol))
	return err == nil && meta != nil
}

// SetTokenMintAuthority records the account permitted to mint new units.
func (m *Manager) SetTokenMintAuthority(symbol string, authority []byte) error {
	normalized := NormalizeSymbol(symbol)
	meta, err := m.loadTokenMetadata(normalized)
	if err != nil {
		return err
	}
	if meta == nil {
		return fmt.Errorf("state: token %s not registered", normalized)
	}
	meta.MintAuthority = append([]byte(nil), authority...)
	return m.writeTokenMetadata(normalized, meta)
}

func (m *Manager) readAmount(key []byte) (*uint256.Int, error) {
	ok, err := m.db.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return uint256.NewInt(0), nil
	}
	data, err := m.db.Get(key)
	if err != nil {
		return nil, err
	}
	var raw []byte
	if err := rlp.DecodeBytes(data, &raw); err != nil {
		return nil, err
	}
	if len(raw) > 32 {
		return nil, fmt.Errorf("state: stored amount exceeds 256 bits")
	}
	return new(uint256.Int).SetBytes(raw), nil
}

func (m *Manager) writeAmount(key []byte, amount *uint256.Int) error {
	if amount == nil {
		amount = uint256.NewInt(0)
	}
	encoded, err := rlp.EncodeToBytes(amount.Bytes())
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

// SetBalance stores a token balance for the provided account.
func (m *Manager) SetBalance(addr []byte, symbol string, amount *uint256.Int) error {
	if len(addr) == 0 {
		return fmt.Errorf("state: address must not be empty")
	}
	normalized := NormalizeSymbol(symbol)
	if normalized == "" {
		return fmt.Errorf("state: token symbol must not be empty")
	}
	meta, err := m.loadTokenMetadata(normalized)
	if err != nil {
		return err
	}
	if meta == nil {
		return fmt.Errorf("state: token %s not registered", normalized)
	}
	return m.writeAmount(balanceKey(addr, normalized), amount)
}

// Balance retrieves a token balance for the provided account, zero when unset.
func (m *Manager) Balance(addr []byte, symbol string) (*uint256.Int, error) {
	return m.readAmount(balanceKey(addr, NormalizeSymbol(symbol)))
}

// SetAllowance stores the delegated spending limit granted by owner to spender.
func (m *Manager) SetAllowance(owner, spender []byte, symbol string, amount *uint256.Int) error {
	if len(owner) == 0 || len(spender) == 0 {
		return fmt.Errorf("state: owner and spender must not be empty")
	}
	normalized := NormalizeSymbol(symbol)
	if normalized == "" {
		return fmt.Errorf("state: token symbol must not be empty")
	}
	return m.writeAmount(allowanceKey(owner, spender, normalized), amount)
}

// Allowance retrieves the delegated spending limit, zero when unset.
func (m *Manager) Allowance(owner, spender []byte, symbol string) (*uint256.Int, error) {
	return m.readAmount(allowanceKey(owner, spender, NormalizeSymbol(symbol)))
}

// SetTotalSupply records the circulating supply for the symbol.
func (m *Manager) SetTotalSupply(symbol string, amount *uint256.Int) error {
	normalized := NormalizeSymbol(symbol)
	if normalized == "" {
		return fmt.Errorf("state: token symbol must not be empty")
	}
	return m.writeAmount(supplyKey(normalized), amount)
}

// TotalSupply retrieves the circulating supply, zero when unset.
func (m *Manager) TotalSupply(symbol string) (*uint256.Int, error) {
	return m.readAmount(supplyKey(NormalizeSymbol(symbol)))
}

// KVPut stores an RLP-encoded value under a hashed key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("state: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(kvKey(key), encoded)
}

// KVGet loads an RLP-encoded value into out, reporting whether it was present.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("state: key must not be empty")
	}
	hashed := kvKey(key)
	ok, err := m.db.Has(hashed)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	data, err := m.db.Get(hashed)
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}
