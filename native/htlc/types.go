package htlc

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// Status represents the lifecycle state of a hash time-locked escrow. Active is
// the only non-terminal state; Completed and Cancelled never transition again.
type Status uint8

const (
	StatusActive Status = iota + 1
	StatusCompleted
	StatusCancelled
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

var (
	ErrNotFound           = errors.New("htlc: escrow not found")
	ErrInvalidOrderID     = errors.New("htlc: order id required")
	ErrNotActive          = errors.New("htlc: escrow is not active")
	ErrAlreadyExists      = errors.New("htlc: escrow already exists")
	ErrInvalidAmount      = errors.New("htlc: amount must be positive")
	ErrInvalidHash        = errors.New("htlc: secret hash must not be zero")
	ErrInvalidTimelock    = errors.New("htlc: timelock duration must be positive")
	ErrInvalidTaker       = errors.New("htlc: taker must not be the zero address")
	ErrInvalidAsset       = errors.New("htlc: invalid asset symbol")
	ErrUnauthorized       = errors.New("htlc: unauthorized caller")
	ErrTimelockExpired    = errors.New("htlc: timelock expired")
	ErrTimelockNotExpired = errors.New("htlc: timelock not expired")
	ErrHashMismatch       = errors.New("htlc: secret does not match stored hash")
	ErrTransferFailed     = errors.New("htlc: asset transfer failed")
	ErrInsufficientFunds  = errors.New("htlc: insufficient funds")
)

// NativeAsset is the symbol used for the ledger's native coin.
const NativeAsset = "SPN"

var assetPattern = regexp.MustCompile(`^[A-Z0-9]{1,16}$`)

// NormalizeAsset returns the canonical uppercase form of an asset symbol or an
// error when the symbol is malformed.
func NormalizeAsset(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if !assetPattern.MatchString(trimmed) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAsset, symbol)
	}
	return trimmed, nil
}

// Escrow captures one hash time-locked deposit. The record is immutable apart
// from Status, which moves exactly once out of Active.
type Escrow struct {
	OrderID    string
	SecretHash [32]byte
	Owner      [20]byte
	Taker      [20]byte
	Asset      string
	Amount     *big.Int
	Timelock   int64
	CreatedAt  int64
	Status     Status
}

// Key returns the composite storage key for the escrow.
func (e *Escrow) Key() [32]byte {
	return EscrowKey(e.OrderID, e.Owner)
}

// EscrowKey derives the composite (orderID, owner) key. The same order id used
// by two owners never collides, and one owner cannot hold two records under the
// same order id.
func EscrowKey(orderID string, owner [20]byte) [32]byte {
	h := sha256.New()
	h.Write([]byte(orderID))
	h.Write(owner[:])
	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}

// SecretDigest hashes a revealed secret with the ledger's agreed hash function.
func SecretDigest(secret []byte) [32]byte {
	return sha256.Sum256(secret)
}

// Clone returns a deep copy so callers can mutate the copy without affecting
// the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Amount != nil {
		clone.Amount = new(big.Int).Set(e.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// Sanitize validates and normalises the escrow definition, returning a cloned
// instance with a canonical asset symbol and non-nil amount. The original value
// is not mutated.
func Sanitize(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("htlc: nil escrow")
	}
	clone := e.Clone()
	asset, err := NormalizeAsset(clone.Asset)
	if err != nil {
		return nil, err
	}
	clone.Asset = asset
	if strings.TrimSpace(clone.OrderID) == "" {
		return nil, fmt.Errorf("htlc: order id required")
	}
	if clone.Amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("htlc: invalid status %d", clone.Status)
	}
	return clone, nil
}
