package state

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"swaplock/native/htlc"
	"swaplock/storage"
)

var (
	escrowRecordPrefix = []byte("htlc/escrow/")
	balancePrefix      = []byte("htlc/balance/")
)

const vaultSeed = "swaplock/vault/"

// Manager persists escrow records and the per-asset balance ledger on top of a
// raw key-value store. Record keys are hashed so the layout stays uniform
// regardless of order-id length.
type Manager struct {
	mu sync.Mutex
	db storage.Database
}

func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func escrowStorageKey(key [32]byte) []byte {
	buf := make([]byte, len(escrowRecordPrefix)+len(key))
	copy(buf, escrowRecordPrefix)
	copy(buf[len(escrowRecordPrefix):], key[:])
	return ethcrypto.Keccak256(buf)
}

func balanceStorageKey(addr [20]byte, asset string) []byte {
	buf := make([]byte, 0, len(balancePrefix)+len(addr)+1+len(asset))
	buf = append(buf, balancePrefix...)
	buf = append(buf, addr[:]...)
	buf = append(buf, '/')
	buf = append(buf, asset...)
	return ethcrypto.Keccak256(buf)
}

// VaultAddress derives the custody address holding deposits for one asset. The
// derivation is deterministic so every node agrees on the vault without any
// stored registry.
func (m *Manager) VaultAddress(asset string) ([20]byte, error) {
	normalized, err := htlc.NormalizeAsset(asset)
	if err != nil {
		return [20]byte{}, err
	}
	hash := ethcrypto.Keccak256([]byte(vaultSeed + normalized))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr, nil
}

// storedEscrow is the RLP shadow of htlc.Escrow. RLP has no signed integer
// support, so timestamps travel as big.Int.
type storedEscrow struct {
	OrderID    string
	SecretHash [32]byte
	Owner      [20]byte
	Taker      [20]byte
	Asset      string
	Amount     *big.Int
	Timelock   *big.Int
	CreatedAt  *big.Int
	Status     uint8
}

func newStoredEscrow(e *htlc.Escrow) *storedEscrow {
	amount := big.NewInt(0)
	if e.Amount != nil {
		amount = new(big.Int).Set(e.Amount)
	}
	return &storedEscrow{
		OrderID:    e.OrderID,
		SecretHash: e.SecretHash,
		Owner:      e.Owner,
		Taker:      e.Taker,
		Asset:      e.Asset,
		Amount:     amount,
		Timelock:   big.NewInt(e.Timelock),
		CreatedAt:  big.NewInt(e.CreatedAt),
		Status:     uint8(e.Status),
	}
}

func (s *storedEscrow) toEscrow() (*htlc.Escrow, error) {
	if s == nil {
		return nil, fmt.Errorf("state: nil escrow record")
	}
	out := &htlc.Escrow{
		OrderID:    s.OrderID,
		SecretHash: s.SecretHash,
		Owner:      s.Owner,
		Taker:      s.Taker,
		Asset:      s.Asset,
		Amount:     big.NewInt(0),
		Status:     htlc.Status(s.Status),
	}
	if s.Amount != nil {
		out.Amount = new(big.Int).Set(s.Amount)
	}
	if s.Timelock != nil {
		out.Timelock = s.Timelock.Int64()
	}
	if s.CreatedAt != nil {
		out.CreatedAt = s.CreatedAt.Int64()
	}
	return htlc.Sanitize(out)
}

// EscrowPut validates and persists an escrow record under its composite key.
func (m *Manager) EscrowPut(e *htlc.Escrow) error {
	sanitized, err := htlc.Sanitize(e)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(newStoredEscrow(sanitized))
	if err != nil {
		return err
	}
	return m.db.Put(escrowStorageKey(sanitized.Key()), encoded)
}

// EscrowGet loads the record stored under the composite key. Corrupt records
// are treated as absent.
func (m *Manager) EscrowGet(key [32]byte) (*htlc.Escrow, bool) {
	data, err := m.db.Get(escrowStorageKey(key))
	if err != nil || len(data) == 0 {
		return nil, false
	}
	stored := new(storedEscrow)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false
	}
	record, err := stored.toEscrow()
	if err != nil {
		return nil, false
	}
	return record, true
}

func (m *Manager) loadBalance(addr [20]byte, asset string) (*big.Int, error) {
	data, err := m.db.Get(balanceStorageKey(addr, asset))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(data), nil
}

func (m *Manager) writeBalance(addr [20]byte, asset string, value *big.Int) error {
	if value.Sign() < 0 {
		return fmt.Errorf("state: negative balance")
	}
	return m.db.Put(balanceStorageKey(addr, asset), value.Bytes())
}

// BalanceOf returns the asset balance held by an address.
func (m *Manager) BalanceOf(addr [20]byte, asset string) (*big.Int, error) {
	normalized, err := htlc.NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadBalance(addr, normalized)
}

// Transfer moves amount of asset between two accounts. The debit and credit
// happen under one lock so concurrent transfers cannot observe a half-applied
// move.
func (m *Manager) Transfer(from, to [20]byte, asset string, amount *big.Int) error {
	normalized, err := htlc.NormalizeAsset(asset)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return htlc.ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	fromBalance, err := m.loadBalance(from, normalized)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: 0x%x has %s %s, need %s", htlc.ErrInsufficientFunds,
			from, fromBalance, normalized, amount)
	}
	if from == to {
		return nil
	}
	toBalance, err := m.loadBalance(to, normalized)
	if err != nil {
		return err
	}
	if err := m.writeBalance(from, normalized, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	if err := m.writeBalance(to, normalized, new(big.Int).Add(toBalance, amount)); err != nil {
		// Restore the debited side so the move stays all-or-nothing.
		if restoreErr := m.writeBalance(from, normalized, fromBalance); restoreErr != nil {
			return errors.Join(err, fmt.Errorf("state: rollback sender: %w", restoreErr))
		}
		return err
	}
	return nil
}

// Mint credits freshly issued units of an asset to an address. Reserved for
// the administrator path; the caller enforces authorisation.
func (m *Manager) Mint(addr [20]byte, asset string, amount *big.Int) error {
	normalized, err := htlc.NormalizeAsset(asset)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return htlc.ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, err := m.loadBalance(addr, normalized)
	if err != nil {
		return err
	}
	return m.writeBalance(addr, normalized, new(big.Int).Add(balance, amount))
}
