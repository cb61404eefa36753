package htlc

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"swaplock/core/events"
)

var errNilState = errors.New("htlc engine: state not configured")

// engineState is the persistence and asset-transfer capability consumed by the
// engine. Transfer must debit `from` and credit `to` atomically or fail without
// partial effect.
type engineState interface {
	EscrowPut(*Escrow) error
	EscrowGet(key [32]byte) (*Escrow, bool)
	Transfer(from, to [20]byte, asset string, amount *big.Int) error
	VaultAddress(asset string) ([20]byte, error)
}

// Engine enforces the hash time-locked escrow state machine over an injected
// state backend and clock. Every state transition serialises per escrow key, so
// a reveal racing a cancel can never both observe an Active record.
type Engine struct {
	state   engineState
	emitter events.Emitter
	admin   [20]byte
	nowFn   func() int64
	locks   *keyLocks
}

// NewEngine creates an engine with a no-op emitter and the wall clock. Callers
// override collaborators via the setters.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		locks:   newKeyLocks(),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAdmin configures the deployment-wide administrator allowed to reveal or
// cancel on behalf of the taker or owner. The zero address disables the
// override path entirely.
func (e *Engine) SetAdmin(addr [20]byte) { e.admin = addr }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests to supply
// deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt escrowEvent) {
	if e == nil || e.emitter == nil || evt.evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) isAdmin(caller [20]byte) bool {
	return e.admin != ([20]byte{}) && caller == e.admin
}

func (e *Engine) transfer(from, to [20]byte, asset string, amount *big.Int) error {
	if err := e.state.Transfer(from, to, asset, amount); err != nil {
		// The underlying asset-layer message is preserved verbatim; the core
		// does not interpret transfer failure causes.
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return nil
}

// Create validates the escrow definition, pulls the deposit into the per-asset
// vault and persists the Active record. The pull and the insert are a unit: if
// the insert fails the deposit is returned to the owner.
func (e *Engine) Create(orderID string, secretHash [32]byte, owner, taker [20]byte, asset string, amount *big.Int, duration int64) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if strings.TrimSpace(orderID) == "" {
		return nil, ErrInvalidOrderID
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if secretHash == ([32]byte{}) {
		return nil, ErrInvalidHash
	}
	if duration <= 0 {
		return nil, ErrInvalidTimelock
	}
	if taker == ([20]byte{}) {
		return nil, ErrInvalidTaker
	}

	key := EscrowKey(orderID, owner)
	e.locks.lock(key)
	defer e.locks.unlock(key)

	// Records are never deleted, so any occupant is a conflict regardless of
	// its status.
	if _, ok := e.state.EscrowGet(key); ok {
		return nil, ErrAlreadyExists
	}
	vault, err := e.state.VaultAddress(normalized)
	if err != nil {
		return nil, err
	}
	amt := new(big.Int).Set(amount)
	if err := e.transfer(owner, vault, normalized, amt); err != nil {
		return nil, err
	}
	now := e.now()
	esc := &Escrow{
		OrderID:    orderID,
		SecretHash: secretHash,
		Owner:      owner,
		Taker:      taker,
		Asset:      normalized,
		Amount:     amt,
		Timelock:   now + duration,
		CreatedAt:  now,
		Status:     StatusActive,
	}
	if err := e.state.EscrowPut(esc); err != nil {
		_ = e.state.Transfer(vault, owner, normalized, amt)
		return nil, err
	}
	e.emit(escrowEvent{evt: NewCreatedEvent(esc)})
	return esc.Clone(), nil
}

// Reveal releases the deposit to the taker when the correct secret is
// presented before the timelock. Only the taker or the administrator may call
// it, and exactly one call can ever succeed per escrow.
func (e *Engine) Reveal(orderID string, owner [20]byte, secret []byte, caller [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	key := EscrowKey(orderID, owner)
	e.locks.lock(key)
	defer e.locks.unlock(key)

	esc, ok := e.state.EscrowGet(key)
	if !ok {
		return nil, ErrNotFound
	}
	if esc.Status != StatusActive {
		return nil, ErrNotActive
	}
	if caller != esc.Taker && !e.isAdmin(caller) {
		return nil, ErrUnauthorized
	}
	// At exactly the timelock it is already too late to complete.
	if e.now() >= esc.Timelock {
		return nil, ErrTimelockExpired
	}
	digest := SecretDigest(secret)
	if subtle.ConstantTimeCompare(digest[:], esc.SecretHash[:]) != 1 {
		return nil, ErrHashMismatch
	}
	vault, err := e.state.VaultAddress(esc.Asset)
	if err != nil {
		return nil, err
	}
	amount := new(big.Int).Set(esc.Amount)
	if err := e.transfer(vault, esc.Taker, esc.Asset, amount); err != nil {
		return nil, err
	}
	esc.Status = StatusCompleted
	if err := e.state.EscrowPut(esc); err != nil {
		_ = e.state.Transfer(esc.Taker, vault, esc.Asset, amount)
		return nil, err
	}
	e.emit(escrowEvent{evt: NewCompletedEvent(esc, secret)})
	return amount, nil
}

// Cancel refunds the deposit to the owner once the timelock has been reached.
// Only the owner or the administrator may call it.
func (e *Engine) Cancel(orderID string, owner [20]byte, caller [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	key := EscrowKey(orderID, owner)
	e.locks.lock(key)
	defer e.locks.unlock(key)

	esc, ok := e.state.EscrowGet(key)
	if !ok {
		return nil, ErrNotFound
	}
	if esc.Status != StatusActive {
		return nil, ErrNotActive
	}
	if caller != esc.Owner && !e.isAdmin(caller) {
		return nil, ErrUnauthorized
	}
	if e.now() < esc.Timelock {
		return nil, ErrTimelockNotExpired
	}
	vault, err := e.state.VaultAddress(esc.Asset)
	if err != nil {
		return nil, err
	}
	amount := new(big.Int).Set(esc.Amount)
	if err := e.transfer(vault, esc.Owner, esc.Asset, amount); err != nil {
		return nil, err
	}
	esc.Status = StatusCancelled
	if err := e.state.EscrowPut(esc); err != nil {
		_ = e.state.Transfer(esc.Owner, vault, esc.Asset, amount)
		return nil, err
	}
	e.emit(escrowEvent{evt: NewCancelledEvent(esc)})
	return amount, nil
}

// Get returns a copy of the stored escrow record.
func (e *Engine) Get(orderID string, owner [20]byte) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	esc, ok := e.state.EscrowGet(EscrowKey(orderID, owner))
	if !ok {
		return nil, ErrNotFound
	}
	return esc.Clone(), nil
}

// Exists reports whether any record occupies the (orderID, owner) key.
func (e *Engine) Exists(orderID string, owner [20]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	_, ok := e.state.EscrowGet(EscrowKey(orderID, owner))
	return ok, nil
}

// IsActive reports whether the record exists and has not reached a terminal
// state. A missing record is an error, matching the other accessors.
func (e *Engine) IsActive(orderID string, owner [20]byte) (bool, error) {
	esc, err := e.Get(orderID, owner)
	if err != nil {
		return false, err
	}
	return esc.Status == StatusActive, nil
}

// IsTimelockExpired reports whether the cancellation window is open for a
// stored escrow. A missing record is an error, not false.
func (e *Engine) IsTimelockExpired(orderID string, owner [20]byte) (bool, error) {
	esc, err := e.Get(orderID, owner)
	if err != nil {
		return false, err
	}
	return e.now() >= esc.Timelock, nil
}
