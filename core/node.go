package core

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"swaplock/core/events"
	"swaplock/core/state"
	"swaplock/native/htlc"
	"swaplock/storage"
)

// GenesisAlloc seeds an account balance the first time a data directory is
// opened.
type GenesisAlloc struct {
	Address [20]byte
	Asset   string
	Amount  *big.Int
}

// Node wires the persistent state manager, the escrow engine and the event
// ring together behind one facade. The RPC server and the CLI only ever talk
// to a Node.
type Node struct {
	db     storage.Database
	state  *state.Manager
	engine *htlc.Engine
	events *events.Ring
}

// NewNode opens the ledger on top of db. Genesis allocations are applied once
// per data directory; reopening an initialised store ignores them.
func NewNode(db storage.Database, admin [20]byte, allocs []GenesisAlloc) (*Node, error) {
	manager := state.NewManager(db)
	ring := events.NewRing(0)

	engine := htlc.NewEngine()
	engine.SetState(manager)
	engine.SetAdmin(admin)
	engine.SetEmitter(ring)

	n := &Node{
		db:     db,
		state:  manager,
		engine: engine,
		events: ring,
	}
	if err := n.applyGenesis(allocs); err != nil {
		return nil, err
	}
	return n, nil
}

var genesisMarkerKey = ethcrypto.Keccak256([]byte("swaplock/genesis"))

func (n *Node) applyGenesis(allocs []GenesisAlloc) error {
	done, err := n.db.Has(genesisMarkerKey)
	if err != nil {
		return fmt.Errorf("core: check genesis marker: %w", err)
	}
	if done {
		return nil
	}
	for _, alloc := range allocs {
		if err := n.state.Mint(alloc.Address, alloc.Asset, alloc.Amount); err != nil {
			return fmt.Errorf("core: genesis alloc for 0x%x: %w", alloc.Address, err)
		}
	}
	return n.db.Put(genesisMarkerKey, []byte{1})
}

// SetNowFunc overrides the engine clock. Tests only.
func (n *Node) SetNowFunc(now func() int64) {
	n.engine.SetNowFunc(now)
}

// CreateEscrow locks amount of asset from owner until the taker reveals the
// secret or the timelock lets the owner cancel.
func (n *Node) CreateEscrow(orderID string, secretHash [32]byte, owner, taker [20]byte, asset string, amount *big.Int, duration int64) (*htlc.Escrow, error) {
	return n.engine.Create(orderID, secretHash, owner, taker, asset, amount, duration)
}

// RevealEscrow releases the locked funds to the taker in exchange for the
// secret behind the hashlock.
func (n *Node) RevealEscrow(orderID string, owner [20]byte, secret []byte, caller [20]byte) (*big.Int, error) {
	return n.engine.Reveal(orderID, owner, secret, caller)
}

// CancelEscrow refunds an expired escrow back to its owner.
func (n *Node) CancelEscrow(orderID string, owner [20]byte, caller [20]byte) (*big.Int, error) {
	return n.engine.Cancel(orderID, owner, caller)
}

func (n *Node) GetEscrow(orderID string, owner [20]byte) (*htlc.Escrow, error) {
	return n.engine.Get(orderID, owner)
}

func (n *Node) EscrowExists(orderID string, owner [20]byte) (bool, error) {
	return n.engine.Exists(orderID, owner)
}

func (n *Node) EscrowIsActive(orderID string, owner [20]byte) (bool, error) {
	return n.engine.IsActive(orderID, owner)
}

func (n *Node) EscrowIsExpired(orderID string, owner [20]byte) (bool, error) {
	return n.engine.IsTimelockExpired(orderID, owner)
}

// Mint issues new units of an asset. Authorisation is enforced by the RPC
// layer; the ledger itself does not gate issuance.
func (n *Node) Mint(addr [20]byte, asset string, amount *big.Int) error {
	return n.state.Mint(addr, asset, amount)
}

func (n *Node) BalanceOf(addr [20]byte, asset string) (*big.Int, error) {
	return n.state.BalanceOf(addr, asset)
}

func (n *Node) VaultAddress(asset string) ([20]byte, error) {
	return n.state.VaultAddress(asset)
}

// Events returns up to limit retained ledger events whose type starts with
// prefix, oldest first.
func (n *Node) Events(prefix string, limit int) []events.Entry {
	return n.events.List(prefix, limit)
}

// Close releases the underlying database.
func (n *Node) Close() error {
	return n.db.Close()
}
