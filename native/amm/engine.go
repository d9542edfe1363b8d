package amm

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/holiman/uint256"

	"ammpool/core/events"
	"ammpool/core/state"
	"ammpool/core/types"
)

var poolStateKey = []byte("amm/pool")

// Storage abstracts the subset of state manager functionality required by the
// engine.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	TokenExists(symbol string) bool
}

// Ledger is the external asset capability the engine moves funds through.
// Pull and Push are independently failable; Reclaim exists solely so a
// completed Push can be reversed while a failed transition is unwound.
type Ledger interface {
	Pull(token string, from [20]byte, amount *uint256.Int) error
	Push(token string, to [20]byte, amount *uint256.Int) error
	Reclaim(token string, from [20]byte, amount *uint256.Int) error
}

type ammEvent struct {
	evt *types.Event
}

func (e ammEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e ammEvent) Event() *types.Event { return e.evt }

// Engine executes the pool state transitions. Every public operation is a
// single serialized transition: the mutex covers ledger transfers, reserve
// arithmetic and persistence, and any partial effects are unwound before an
// error surfaces. Events are emitted only after a committed transition, after
// the mutex is released.
type Engine struct {
	mu      sync.Mutex
	store   Storage
	ledger  Ledger
	emitter events.Emitter
}

// NewEngine creates a pool engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(store Storage) { e.store = store }

// SetLedger configures the external asset ledger used by the engine.
func (e *Engine) SetLedger(ledger Ledger) { e.ledger = ledger }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(ammEvent{evt: event})
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	return nil
}

func (e *Engine) loadPool() (*Pool, error) {
	var stored storedPool
	ok, err := e.store.KVGet(poolStateKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPoolNotFound
	}
	return fromStoredPool(&stored)
}

func (e *Engine) storePool(p *Pool) error {
	return e.store.KVPut(poolStateKey, toStoredPool(p))
}

// journalStep records one completed ledger transfer so it can be reversed.
type journalStep struct {
	pull   bool
	token  string
	party  [20]byte
	amount *uint256.Int
}

type journal struct {
	steps []journalStep
}

func (j *journal) recordPull(token string, from [20]byte, amount *uint256.Int) {
	j.steps = append(j.steps, journalStep{pull: true, token: token, party: from, amount: cloneAmount(amount)})
}

func (j *journal) recordPush(token string, to [20]byte, amount *uint256.Int) {
	j.steps = append(j.steps, journalStep{token: token, party: to, amount: cloneAmount(amount)})
}

// unwind reverses the recorded transfers in LIFO order.
func (j *journal) unwind(ledger Ledger) error {
	for i := len(j.steps) - 1; i >= 0; i-- {
		step := j.steps[i]
		var err error
		if step.pull {
			err = ledger.Push(step.token, step.party, step.amount)
		} else {
			err = ledger.Reclaim(step.token, step.party, step.amount)
		}
		if err != nil {
			return err
		}
	}
	j.steps = nil
	return nil
}

// abort unwinds any completed transfers and returns the original cause. A
// rollback failure is attached to the cause rather than replacing it.
func (e *Engine) abort(j *journal, cause error) error {
	if err := j.unwind(e.ledger); err != nil {
		return fmt.Errorf("%w (rollback failed: %v)", cause, err)
	}
	return cause
}

// CreatePool fixes the pool's asset identities and owner. Both tokens must be
// registered with the ledger state and the pool can only be created once.
func (e *Engine) CreatePool(owner [20]byte, tokenA, tokenB string) (*Pool, error) {
	e.mu.Lock()
	pool, evt, err := e.createPoolLocked(owner, tokenA, tokenB)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	e.emit(evt)
	return pool, nil
}

func (e *Engine) createPoolLocked(owner [20]byte, tokenA, tokenB string) (*Pool, *types.Event, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	pool, err := SanitizePool(&Pool{TokenA: tokenA, TokenB: tokenB, Owner: owner})
	if err != nil {
		return nil, nil, err
	}
	if !e.store.TokenExists(pool.TokenA) {
		return nil, nil, fmt.Errorf("amm engine: token %s not registered", pool.TokenA)
	}
	if !e.store.TokenExists(pool.TokenB) {
		return nil, nil, fmt.Errorf("amm engine: token %s not registered", pool.TokenB)
	}
	if _, err := e.loadPool(); err == nil {
		return nil, nil, ErrPoolExists
	} else if err != ErrPoolNotFound {
		return nil, nil, err
	}
	if err := e.storePool(pool); err != nil {
		return nil, nil, err
	}
	return pool.Clone(), NewPoolCreatedEvent(pool), nil
}

// AddLiquidity pulls both amounts from the owner into custody and increments
// the reserves. Owner-only.
func (e *Engine) AddLiquidity(caller [20]byte, amountA, amountB *uint256.Int) error {
	e.mu.Lock()
	evt, err := e.addLiquidityLocked(caller, amountA, amountB)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.emit(evt)
	return nil
}

func (e *Engine) addLiquidityLocked(caller [20]byte, amountA, amountB *uint256.Int) (*types.Event, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	if caller != pool.Owner {
		return nil, ErrUnauthorized
	}
	amountA = cloneAmount(amountA)
	amountB = cloneAmount(amountB)
	j := &journal{}
	if !amountA.IsZero() {
		if err := e.ledger.Pull(pool.TokenA, caller, amountA); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLedgerTransferFailed, err)
		}
		j.recordPull(pool.TokenA, caller, amountA)
	}
	if !amountB.IsZero() {
		if err := e.ledger.Pull(pool.TokenB, caller, amountB); err != nil {
			return nil, e.abort(j, fmt.Errorf("%w: %v", ErrLedgerTransferFailed, err))
		}
		j.recordPull(pool.TokenB, caller, amountB)
	}
	newReserveA := new(uint256.Int)
	if _, overflow := newReserveA.AddOverflow(pool.ReserveA, amountA); overflow {
		return nil, e.abort(j, ErrAmountOverflow)
	}
	newReserveB := new(uint256.Int)
	if _, overflow := newReserveB.AddOverflow(pool.ReserveB, amountB); overflow {
		return nil, e.abort(j, ErrAmountOverflow)
	}
	pool.ReserveA = newReserveA
	pool.ReserveB = newReserveB
	if err := e.storePool(pool); err != nil {
		return nil, e.abort(j, err)
	}
	return NewLiquidityAddedEvent(caller, amountA, amountB), nil
}

// RemoveLiquidity pushes both amounts from custody back to the owner and
// decrements the reserves. Owner-only.
func (e *Engine) RemoveLiquidity(caller [20]byte, amountA, amountB *uint256.Int) error {
	e.mu.Lock()
	evt, err := e.removeLiquidityLocked(caller, amountA, amountB)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.emit(evt)
	return nil
}

func (e *Engine) removeLiquidityLocked(caller [20]byte, amountA, amountB *uint256.Int) (*types.Event, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	if caller != pool.Owner {
		return nil, ErrUnauthorized
	}
	amountA = cloneAmount(amountA)
	amountB = cloneAmount(amountB)
	if pool.ReserveA.Lt(amountA) || pool.ReserveB.Lt(amountB) {
		return nil, ErrInsufficientReserves
	}
	j := &journal{}
	if !amountA.IsZero() {
		if err := e.ledger.Push(pool.TokenA, caller, amountA); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLedgerTransferFailed, err)
		}
		j.recordPush(pool.TokenA, caller, amountA)
	}
	if !amountB.IsZero() {
		if err := e.ledger.Push(pool.TokenB, caller, amountB); err != nil {
			return nil, e.abort(j, fmt.Errorf("%w: %v", ErrLedgerTransferFailed, err))
		}
		j.recordPush(pool.TokenB, caller, amountB)
	}
	pool.ReserveA = new(uint256.Int).Sub(pool.ReserveA, amountA)
	pool.ReserveB = new(uint256.Int).Sub(pool.ReserveB, amountB)
	if err := e.storePool(pool); err != nil {
		return nil, e.abort(j, err)
	}
	return NewLiquidityRemovedEvent(caller, amountA, amountB), nil
}

// SwapExactAForB pulls amountIn of token A from the caller and pushes the
// constant-product quote of token B back. Open to any caller.
func (e *Engine) SwapExactAForB(caller [20]byte, amountIn *uint256.Int) (*uint256.Int, error) {
	return e.swap(caller, amountIn, true)
}

// SwapExactBForA is the mirror image of SwapExactAForB.
func (e *Engine) SwapExactBForA(caller [20]byte, amountIn *uint256.Int) (*uint256.Int, error) {
	return e.swap(caller, amountIn, false)
}

func (e *Engine) swap(caller [20]byte, amountIn *uint256.Int, aForB bool) (*uint256.Int, error) {
	e.mu.Lock()
	amountOut, evt, err := e.swapLocked(caller, amountIn, aForB)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	e.emit(evt)
	return amountOut, nil
}

func (e *Engine) swapLocked(caller [20]byte, amountIn *uint256.Int, aForB bool) (*uint256.Int, *types.Event, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	if amountIn == nil || amountIn.IsZero() {
		return nil, nil, ErrInvalidAmount
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, nil, err
	}
	amountIn = cloneAmount(amountIn)
	tokenIn, tokenOut := pool.TokenA, pool.TokenB
	reserveIn, reserveOut := pool.ReserveA, pool.ReserveB
	if !aForB {
		tokenIn, tokenOut = pool.TokenB, pool.TokenA
		reserveIn, reserveOut = pool.ReserveB, pool.ReserveA
	}
	amountOut, err := GetAmountOut(amountIn, reserveIn, reserveOut)
	if err != nil {
		return nil, nil, err
	}
	j := &journal{}
	if err := e.ledger.Pull(tokenIn, caller, amountIn); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrLedgerTransferFailed, err)
	}
	j.recordPull(tokenIn, caller, amountIn)
	if err := e.ledger.Push(tokenOut, caller, amountOut); err != nil {
		return nil, nil, e.abort(j, fmt.Errorf("%w: %v", ErrLedgerTransferFailed, err))
	}
	j.recordPush(tokenOut, caller, amountOut)

	oldK := new(big.Int).Mul(reserveIn.ToBig(), reserveOut.ToBig())
	newReserveIn := new(uint256.Int)
	if _, overflow := newReserveIn.AddOverflow(reserveIn, amountIn); overflow {
		return nil, nil, e.abort(j, ErrAmountOverflow)
	}
	newReserveOut := new(uint256.Int).Sub(reserveOut, amountOut)
	newK := new(big.Int).Mul(newReserveIn.ToBig(), newReserveOut.ToBig())
	if newK.Cmp(oldK) < 0 {
		return nil, nil, e.abort(j, ErrInvariantViolation)
	}
	if aForB {
		pool.ReserveA, pool.ReserveB = newReserveIn, newReserveOut
	} else {
		pool.ReserveB, pool.ReserveA = newReserveIn, newReserveOut
	}
	if err := e.storePool(pool); err != nil {
		return nil, nil, e.abort(j, err)
	}
	return amountOut, NewSwapExecutedEvent(caller, tokenIn, tokenOut, amountIn, amountOut), nil
}

// Price derives the fixed-point spot price (scale 1e18) of one unit of the
// supplied asset in terms of the other pool asset.
func (e *Engine) Price(symbol string) (*uint256.Int, error) {
	if e == nil || e.store == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	switch state.NormalizeSymbol(symbol) {
	case pool.TokenA:
		return SpotPrice(pool.ReserveA, pool.ReserveB)
	case pool.TokenB:
		return SpotPrice(pool.ReserveB, pool.ReserveA)
	default:
		return nil, ErrUnsupportedAsset
	}
}

// Reserves returns copies of the current reserve counters.
func (e *Engine) Reserves() (*uint256.Int, *uint256.Int, error) {
	if e == nil || e.store == nil {
		return nil, nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	pool, err := e.loadPool()
	if err != nil {
		return nil, nil, err
	}
	return cloneAmount(pool.ReserveA), cloneAmount(pool.ReserveB), nil
}

// Pool returns a copy of the pool definition and reserves.
func (e *Engine) Pool() (*Pool, error) {
	if e == nil || e.store == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	return pool.Clone(), nil
}
