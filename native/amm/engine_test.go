package amm

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/holiman/uint256"

	"ammpool/core/events"
	"ammpool/core/state"
	"ammpool/core/types"
	"ammpool/native/token"
	"ammpool/storage"
)

const (
	testTokenA = "TKA"
	testTokenB = "TKB"
)

func testAddr(b byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = b
	}
	return addr
}

type engineFixture struct {
	engine    *Engine
	ledger    *token.Ledger
	custody   *token.CustodyClient
	recorder  *events.Recorder
	owner     [20]byte
	trader    [20]byte
	custodian [20]byte
}

// newEngineFixture wires the engine to a real in-memory ledger stack: both
// tokens registered, owner and trader funded, and the custodian granted an
// unlimited allowance from each account.
func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	manager := state.NewManager(storage.NewMemDB())
	owner := testAddr(0x01)
	trader := testAddr(0x02)
	custodian := testAddr(0xCC)

	for _, symbol := range []string{testTokenA, testTokenB} {
		if err := manager.RegisterToken(symbol, "Test "+symbol, 18); err != nil {
			t.Fatalf("register %s: %v", symbol, err)
		}
		if err := manager.SetTokenMintAuthority(symbol, owner[:]); err != nil {
			t.Fatalf("set mint authority %s: %v", symbol, err)
		}
	}

	ledger := token.NewLedger(manager)
	for _, symbol := range []string{testTokenA, testTokenB} {
		for _, account := range [][20]byte{owner, trader} {
			if err := ledger.Mint(owner, account, symbol, uint256.NewInt(1_000_000)); err != nil {
				t.Fatalf("mint %s: %v", symbol, err)
			}
			if err := ledger.Approve(account, custodian, symbol, new(uint256.Int).SetAllOne()); err != nil {
				t.Fatalf("approve %s: %v", symbol, err)
			}
		}
	}

	custody := token.NewCustodyClient(ledger, custodian)
	recorder := events.NewRecorder()

	engine := NewEngine()
	engine.SetState(manager)
	engine.SetLedger(custody)
	engine.SetEmitter(recorder)

	return &engineFixture{
		engine:    engine,
		ledger:    ledger,
		custody:   custody,
		recorder:  recorder,
		owner:     owner,
		trader:    trader,
		custodian: custodian,
	}
}

func (f *engineFixture) createPool(t *testing.T) {
	t.Helper()
	if _, err := f.engine.CreatePool(f.owner, testTokenA, testTokenB); err != nil {
		t.Fatalf("create pool: %v", err)
	}
}

func (f *engineFixture) fund(t *testing.T, amountA, amountB uint64) {
	t.Helper()
	if err := f.engine.AddLiquidity(f.owner, uint256.NewInt(amountA), uint256.NewInt(amountB)); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}
}

func (f *engineFixture) balance(t *testing.T, account [20]byte, symbol string) uint64 {
	t.Helper()
	bal, err := f.ledger.BalanceOf(account, symbol)
	if err != nil {
		t.Fatalf("balance of %s: %v", symbol, err)
	}
	return bal.Uint64()
}

func (f *engineFixture) requireReserves(t *testing.T, wantA, wantB uint64) {
	t.Helper()
	reserveA, reserveB, err := f.engine.Reserves()
	if err != nil {
		t.Fatalf("reserves: %v", err)
	}
	if reserveA.Uint64() != wantA || reserveB.Uint64() != wantB {
		t.Fatalf("reserves = (%s, %s), want (%d, %d)", reserveA.Dec(), reserveB.Dec(), wantA, wantB)
	}
}

func lastEvent(t *testing.T, recorder *events.Recorder) *types.Event {
	t.Helper()
	entries := recorder.Events()
	if len(entries) == 0 {
		t.Fatal("no events recorded")
	}
	carrier, ok := entries[len(entries)-1].(interface{ Event() *types.Event })
	if !ok {
		t.Fatalf("unexpected event payload type %T", entries[len(entries)-1])
	}
	return carrier.Event()
}

func TestCreatePool(t *testing.T) {
	fix := newEngineFixture(t)

	pool, err := fix.engine.CreatePool(fix.owner, "tka", "tkb")
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	if pool.TokenA != testTokenA || pool.TokenB != testTokenB {
		t.Fatalf("pool symbols = (%s, %s), want normalised (%s, %s)", pool.TokenA, pool.TokenB, testTokenA, testTokenB)
	}
	if !pool.ReserveA.IsZero() || !pool.ReserveB.IsZero() {
		t.Fatalf("new pool reserves = (%s, %s), want zero", pool.ReserveA.Dec(), pool.ReserveB.Dec())
	}

	evt := lastEvent(t, fix.recorder)
	if evt.Type != EventTypePoolCreated {
		t.Fatalf("event type = %s, want %s", evt.Type, EventTypePoolCreated)
	}

	if _, err := fix.engine.CreatePool(fix.owner, testTokenA, testTokenB); !errors.Is(err, ErrPoolExists) {
		t.Fatalf("expected ErrPoolExists, got %v", err)
	}
}

func TestCreatePoolRejectsUnknownToken(t *testing.T) {
	fix := newEngineFixture(t)
	if _, err := fix.engine.CreatePool(fix.owner, testTokenA, "NOPE"); err == nil {
		t.Fatal("expected error for unregistered token")
	}
}

func TestCreatePoolRejectsIdenticalTokens(t *testing.T) {
	fix := newEngineFixture(t)
	if _, err := fix.engine.CreatePool(fix.owner, testTokenA, "tka"); err == nil {
		t.Fatal("expected error for identical token symbols")
	}
}

func TestAddLiquidityFundsPool(t *testing.T) {
	fix := newEngineFixture(t)
	fix.createPool(t)

	ownerABefore := fix.balance(t, fix.owner, testTokenA)
	ownerBBefore := fix.balance(t, fix.owner, testTokenB)

	fix.fund(t, 1000, 2000)

	fix.requireReserves(t, 1000, 2000)
	if got := fix.balance(t, fix.owner, testTokenA); got != ownerABefore-1000 {
		t.Fatalf("owner %s balance = %d, want %d", testTokenA, got, ownerABefore-1000)
	}
	if got := fix.balance(t, fix.owner, testTokenB); got != ownerBBefore-2000 {
		t.Fatalf("owner %s balance = %d, want %d", testTokenB, got, ownerBBefore-2000)
	}
	if got := fix.balance(t, fix.custodian, testTokenA); got != 1000 {
		t.Fatalf("custodian %s balance = %d, want 1000", testTokenA, got)
	}
	if got := fix.balance(t, fix.custodian, testTokenB); got != 2000 {
		t.Fatalf("custodian %s balance = %d, want 2000", testTokenB, got)
	}

	evt := lastEvent(t, fix.recorder)
	if evt.Type != EventTypeLiquidityAdded {
		t.Fatalf("event type = %s, want %s", evt.Type, EventTypeLiquidityAdded)
	}
	if evt.Attributes["amountA"] != "1000" || evt.Attributes["amountB"] != "2000" {
		t.Fatalf("event amounts = (%s, %s), want (1000, 2000)", evt.Attributes["amountA"], evt.Attributes["amountB"])
	}
}

func TestAddLiquidityRejectsNonOwner(t *testing.T) {
	fix := newEngineFixture(t)
	fix.createPool(t)

	traderBefore := fix.balance(t, fix.trader, testTokenA)

	err := fix.engine.AddLiquidity(fix.trader, uint256.NewInt(1000), uint256.NewInt(2000))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	fix.requireReserves(t, 0, 0)
	if got := fix.balance(t, fix.trader, testTokenA); got != traderBefore {
		t.Fatalf("trader balance changed on rejected call: %d != %d", got, traderBefore)
	}
}

func TestSwapAgainstFundedPool(t *testing.T) {
	fix := newEngineFixture(t)
	fix.createPool(t)
	fix.fund(t, 1000, 2000)

	traderABefore := fix.balance(t, fix.trader, testTokenA)
	traderBBefore := fix.balance(t, fix.trader, testTokenB)

	amountOut, err := fix.engine.SwapExactAForB(fix.trader, uint256.NewInt(100))
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if amountOut.Uint64() != 181 {
		t.Fatalf("amount out = %s, want 181", amountOut.Dec())
	}

	fix.requireReserves(t, 1100, 1819)
	if got := fix.balance(t, fix.trader, testTokenA); got != traderABefore-100 {
		t.Fatalf("trader %s balance = %d, want %d", testTokenA, got, traderABefore-100)
	}
	if got := fix.balance(t, fix.trader, testTokenB); got != traderBBefore+181 {
		t.Fatalf("trader %s balance = %d, want %d", testTokenB, got, traderBBefore+181)
	}

	evt := lastEvent(t, fix.recorder)
	if evt.Type != EventTypeSwapExecuted {
		t.Fatalf("event type = %s, want %s", evt.Type, EventTypeSwapExecuted)
	}
	if evt.Attributes["tokenIn"] != testTokenA || evt.Attributes["tokenOut"] != testTokenB {
		t.Fatalf("event tokens = (%s, %s), want (%s, %s)", evt.Attributes["tokenIn"], evt.Attributes["tokenOut"], testTokenA, testTokenB)
	}
	if evt.Attributes["amountIn"] != "100" || evt.Attributes["amountOut"] != "181" {
		t.Fatalf("event amounts = (%s, %s), want (100, 181)", evt.Attributes["amountIn"], evt.Attributes["amountOut"])
	}
}

func TestSwapBothDirections(t *testing.T) {
	fix := newEngineFixture(t)
	fix.createPool(t)
	fix.fund(t, 1000, 2000)

	out, err := fix.engine.SwapExactBForA(fix.trader, uint256.NewInt(200))
	if err != nil {
		t.Fatalf("swap B for A: %v", err)
	}
	// 200 * 1000 / (2000 + 200) = 90
	if out.Uint64() != 90 {
		t.Fatalf("amount out = %s, want 90", out.Dec())
	}
	fix.requireReserves(t, 910, 2200)
}

func TestSwapRejectsZeroAmount(t *testing.T) {
	fix := newEngineFixture(t)
	fix.createPool(t)
	fix.fund(t, 1000, 2000)

	if _, err := fix.engine.SwapExactAForB(fix.trader, uint256.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := fix.engine.SwapExactAForB(fix.trader, nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for nil, got %v", err)
	}
}

func TestSwapRejectsEmptyPool(t *testing.T) {
	fix := newEngineFixture(t)
	fix.createPool(t)

	if _, err := fix.engine.SwapExactAForB(fix.trader, uint256.NewInt(100)); !errors.Is(err, ErrInvalidReserves) {
		t.Fatalf("expected ErrInvalidReserves, got %v", err)
	}
	if len(fix.recorder.Events()) != 1 {
		t.Fatalf("expected only the pool creation event, got %d events", len(fix.recorder.Events()))
	}
}

func TestSwapPreservesReserveProduct(t *testing.T) {
	fix := newEngineFixture(t)
	fix.createPool(t)
	fix.fund(t, 1000, 2000)

	reserveA, reserveB, err := fix.engine.Reserves()
	if err != nil {
		t.Fatalf("reserves: %v", err)
	}
	k := new(big.Int).Mul(reserveA.ToBig(), reserveB.ToBig())

	for i, amountIn := range []uint64{100, 7, 523, 1, 999} {
		if i%2 == 0 {
			_, err = fix.engine.SwapExactAForB(fix.trader, uint256.NewInt(amountIn))
		} else {
			_, err = fix.engine.SwapExactBForA(fix.trader, uint256.NewInt(amountIn))
		}
		if err != nil {
			t.Fatalf("swap %d: %v", i, err)
		}
		reserveA, reserveB, err = fix.engine.Reserves()
		if err != nil {
			t.Fatalf("reserves after swap %d: %v", i, err)
		}
		nextK := new(big.Int).Mul(reserveA.ToBig(), reserveB.ToBig())
		if nextK.Cmp(k) < 0 {
			t.Fatalf("swap %d: reserve product decreased from %s to %s", i, k, nextK)
		}
		k = nextK
	}
}

func TestRemoveLiquidityRestoresBalances(t *testing.T) {
	fix := newEngineFixture(t)
	fix.createPool(t)

	ownerABefore := fix.balance(t, fix.owner, testTokenA)
	ownerBBefore := fix.balance(t, fix.owner, testTokenB)

	fix.fund(t, 1000, 2000)
	if err := fix.engine.RemoveLiquidity(fix.owner, uint256.NewInt(1000), uint256.NewInt(2000)); err != nil {
		t.Fatalf("remove liquidity: %v", err)
	}

	fix.requireReserves(t, 0, 0)
	if got := fix.balance(t, fix.owner, testTokenA); got != ownerABefore {
		t.Fatalf("owner %s balance = %d, want %d", testTokenA, got, ownerABefore)
	}
	if got := fix.balance(t, fix.owner, testTokenB); got != ownerBBefore {
		t.Fatalf("owner %s balance = %d, want %d", testTokenB, got, ownerBBefore)
	}

	evt := lastEvent(t, fix.recorder)
	if evt.Type != EventTypeLiquidityRemoved {
		t.Fatalf("event type = %s, want %s", evt.Type, EventTypeLiquidityRemoved)
	}
}

func TestRemoveLiquidityRejectsExcessWithdrawal(t *testing.T) {
	fix := newEngineFixture(t)
	fix.createPool(t)
	fix.fund(t, 1000, 2000)

	err := fix.engine.RemoveLiquidity(fix.owner, uint256.NewInt(1001), uint256.NewInt(0))
	if !errors.Is(err, ErrInsufficientReserves) {
		t.Fatalf("expected ErrInsufficientReserves, got %v", err)
	}
	fix.requireReserves(t, 1000, 2000)
}

func TestRemoveLiquidityRejectsNonOwner(t *testing.T) {
	fix := newEngineFixture(t)
	fix.createPool(t)
	fix.fund(t, 1000, 2000)

	err := fix.engine.RemoveLiquidity(fix.trader, uint256.NewInt(100), uint256.NewInt(100))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	fix.requireReserves(t, 1000, 2000)
}

// faultyLedger delegates to the real custody client but fails every Push,
// simulating a payout leg that dies after the pull already completed.
type faultyLedger struct {
	inner *token.CustodyClient
}

func (f *faultyLedger) Pull(symbol string, from [20]byte, amount *uint256.Int) error {
	return f.inner.Pull(symbol, from, amount)
}

func (f *faultyLedger) Push(string, [20]byte, *uint256.Int) error {
	return fmt.Errorf("push rejected")
}

func (f *faultyLedger) Reclaim(symbol string, from [20]byte, amount *uint256.Int) error {
	return f.inner.Reclaim(symbol, from, amount)
}

func TestSwapRollsBackOnPushFailure(t *testing.T) {
	fix := newEngineFixture(t)
	fix.createPool(t)
	fix.fund(t, 1000, 2000)

	traderABefore := fix.balance(t, fix.trader, testTokenA)
	eventsBefore := len(fix.recorder.Events())

	fix.engine.SetLedger(&faultyLedger{inner: fix.custody})
	_, err := fix.engine.SwapExactAForB(fix.trader, uint256.NewInt(100))
	if !errors.Is(err, ErrLedgerTransferFailed) {
		t.Fatalf("expected ErrLedgerTransferFailed, got %v", err)
	}

	fix.engine.SetLedger(fix.custody)
	fix.requireReserves(t, 1000, 2000)
	if got := fix.balance(t, fix.trader, testTokenA); got != traderABefore {
		t.Fatalf("trader balance not restored: %d != %d", got, traderABefore)
	}
	if got := len(fix.recorder.Events()); got != eventsBefore {
		t.Fatalf("failed swap emitted an event: %d != %d", got, eventsBefore)
	}
}

func TestAddLiquidityRollsBackOnSecondPullFailure(t *testing.T) {
	fix := newEngineFixture(t)
	fix.createPool(t)

	// Revoke the TKB allowance so the second pull fails after the first
	// already moved funds into custody.
	if err := fix.ledger.Approve(fix.owner, fix.custodian, testTokenB, uint256.NewInt(0)); err != nil {
		t.Fatalf("approve: %v", err)
	}

	ownerABefore := fix.balance(t, fix.owner, testTokenA)

	err := fix.engine.AddLiquidity(fix.owner, uint256.NewInt(1000), uint256.NewInt(2000))
	if !errors.Is(err, ErrLedgerTransferFailed) {
		t.Fatalf("expected ErrLedgerTransferFailed, got %v", err)
	}

	fix.requireReserves(t, 0, 0)
	if got := fix.balance(t, fix.owner, testTokenA); got != ownerABefore {
		t.Fatalf("owner balance not restored: %d != %d", got, ownerABefore)
	}
	if got := fix.balance(t, fix.custodian, testTokenA); got != 0 {
		t.Fatalf("custodian retained %d units after rollback", got)
	}
}

func TestPriceQuotes(t *testing.T) {
	fix := newEngineFixture(t)
	fix.createPool(t)
	fix.fund(t, 1000, 2000)

	priceA, err := fix.engine.Price("tka")
	if err != nil {
		t.Fatalf("price of %s: %v", testTokenA, err)
	}
	wantA := new(uint256.Int).Mul(uint256.NewInt(2), PriceScale)
	if !priceA.Eq(wantA) {
		t.Fatalf("price of %s = %s, want %s", testTokenA, priceA.Dec(), wantA.Dec())
	}

	priceB, err := fix.engine.Price(testTokenB)
	if err != nil {
		t.Fatalf("price of %s: %v", testTokenB, err)
	}
	wantB := new(uint256.Int).Div(PriceScale, uint256.NewInt(2))
	if !priceB.Eq(wantB) {
		t.Fatalf("price of %s = %s, want %s", testTokenB, priceB.Dec(), wantB.Dec())
	}
}

func TestPriceRequiresBothReserves(t *testing.T) {
	fix := newEngineFixture(t)
	fix.createPool(t)
	fix.fund(t, 1000, 0)

	if _, err := fix.engine.Price(testTokenA); !errors.Is(err, ErrInvalidReserves) {
		t.Fatalf("price of %s: expected ErrInvalidReserves, got %v", testTokenA, err)
	}
	if _, err := fix.engine.Price(testTokenB); !errors.Is(err, ErrInvalidReserves) {
		t.Fatalf("price of %s: expected ErrInvalidReserves, got %v", testTokenB, err)
	}
}

func TestQueriesWithoutConfiguredState(t *testing.T) {
	var nilEngine *Engine
	if _, err := nilEngine.Price(testTokenA); err == nil {
		t.Fatal("nil engine price: expected error")
	}
	if _, _, err := nilEngine.Reserves(); err == nil {
		t.Fatal("nil engine reserves: expected error")
	}
	if _, err := nilEngine.Pool(); err == nil {
		t.Fatal("nil engine pool: expected error")
	}

	bare := NewEngine()
	if _, err := bare.Price(testTokenA); err == nil {
		t.Fatal("unconfigured engine price: expected error")
	}
	if _, _, err := bare.Reserves(); err == nil {
		t.Fatal("unconfigured engine reserves: expected error")
	}
	if _, err := bare.Pool(); err == nil {
		t.Fatal("unconfigured engine pool: expected error")
	}
}

func TestPriceRejectsUnknownAsset(t *testing.T) {
	fix := newEngineFixture(t)
	fix.createPool(t)
	fix.fund(t, 1000, 2000)

	if _, err := fix.engine.Price("NOPE"); !errors.Is(err, ErrUnsupportedAsset) {
		t.Fatalf("expected ErrUnsupportedAsset, got %v", err)
	}
}

func TestOperationsRequirePool(t *testing.T) {
	fix := newEngineFixture(t)

	if err := fix.engine.AddLiquidity(fix.owner, uint256.NewInt(1), uint256.NewInt(1)); !errors.Is(err, ErrPoolNotFound) {
		t.Fatalf("add liquidity: expected ErrPoolNotFound, got %v", err)
	}
	if _, err := fix.engine.SwapExactAForB(fix.trader, uint256.NewInt(1)); !errors.Is(err, ErrPoolNotFound) {
		t.Fatalf("swap: expected ErrPoolNotFound, got %v", err)
	}
	if _, err := fix.engine.Price(testTokenA); !errors.Is(err, ErrPoolNotFound) {
		t.Fatalf("price: expected ErrPoolNotFound, got %v", err)
	}
}
