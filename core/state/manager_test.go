package state

import (
	"errors"
	"math/big"
	"testing"

	"swaplock/native/htlc"
	"swaplock/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemDB())
}

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func testEscrow() *htlc.Escrow {
	return &htlc.Escrow{
		OrderID:    "order-1",
		SecretHash: htlc.SecretDigest([]byte("secret")),
		Owner:      testAddr(0x01),
		Taker:      testAddr(0x02),
		Asset:      "SPN",
		Amount:     big.NewInt(500),
		Timelock:   4_600,
		CreatedAt:  1_000,
		Status:     htlc.StatusActive,
	}
}

func TestEscrowRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	escrow := testEscrow()
	if err := manager.EscrowPut(escrow); err != nil {
		t.Fatalf("put escrow: %v", err)
	}
	stored, ok := manager.EscrowGet(escrow.Key())
	if !ok {
		t.Fatalf("expected stored escrow")
	}
	if stored.OrderID != escrow.OrderID || stored.Owner != escrow.Owner || stored.Taker != escrow.Taker {
		t.Fatalf("unexpected identity fields: %+v", stored)
	}
	if stored.SecretHash != escrow.SecretHash {
		t.Fatalf("secret hash mismatch")
	}
	if stored.Amount.Cmp(escrow.Amount) != 0 {
		t.Fatalf("amount mismatch: got %s", stored.Amount)
	}
	if stored.Timelock != escrow.Timelock || stored.CreatedAt != escrow.CreatedAt {
		t.Fatalf("timestamp mismatch: %+v", stored)
	}
	if stored.Status != htlc.StatusActive {
		t.Fatalf("unexpected status %v", stored.Status)
	}
}

func TestEscrowPutOverwritesStatus(t *testing.T) {
	manager := newTestManager(t)
	escrow := testEscrow()
	if err := manager.EscrowPut(escrow); err != nil {
		t.Fatalf("put escrow: %v", err)
	}
	escrow.Status = htlc.StatusCompleted
	if err := manager.EscrowPut(escrow); err != nil {
		t.Fatalf("overwrite escrow: %v", err)
	}
	stored, ok := manager.EscrowGet(escrow.Key())
	if !ok || stored.Status != htlc.StatusCompleted {
		t.Fatalf("expected completed record, got %+v ok=%v", stored, ok)
	}
}

func TestEscrowGetMissing(t *testing.T) {
	manager := newTestManager(t)
	if _, ok := manager.EscrowGet(htlc.EscrowKey("nope", testAddr(0x09))); ok {
		t.Fatalf("expected miss for unknown key")
	}
}

func TestEscrowPutRejectsMalformed(t *testing.T) {
	manager := newTestManager(t)
	escrow := testEscrow()
	escrow.Amount = big.NewInt(0)
	if err := manager.EscrowPut(escrow); !errors.Is(err, htlc.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	escrow = testEscrow()
	escrow.Asset = "not valid"
	if err := manager.EscrowPut(escrow); !errors.Is(err, htlc.ErrInvalidAsset) {
		t.Fatalf("expected ErrInvalidAsset, got %v", err)
	}
}

func TestVaultAddressDeterministic(t *testing.T) {
	manager := newTestManager(t)
	first, err := manager.VaultAddress("SPN")
	if err != nil {
		t.Fatalf("vault address: %v", err)
	}
	second, err := manager.VaultAddress(" spn ")
	if err != nil {
		t.Fatalf("vault address normalized: %v", err)
	}
	if first != second {
		t.Fatalf("expected normalization to yield the same vault")
	}
	if first == (testAddr(0x00)) {
		t.Fatalf("vault address must not be zero")
	}
	other, err := manager.VaultAddress("USDX")
	if err != nil {
		t.Fatalf("vault address other: %v", err)
	}
	if other == first {
		t.Fatalf("distinct assets must map to distinct vaults")
	}
	if _, err := manager.VaultAddress("bad asset!"); !errors.Is(err, htlc.ErrInvalidAsset) {
		t.Fatalf("expected ErrInvalidAsset, got %v", err)
	}
}

func TestMintAndBalance(t *testing.T) {
	manager := newTestManager(t)
	addr := testAddr(0x01)
	balance, err := manager.BalanceOf(addr, "SPN")
	if err != nil {
		t.Fatalf("balance of empty account: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("expected zero balance, got %s", balance)
	}
	if err := manager.Mint(addr, "SPN", big.NewInt(750)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := manager.Mint(addr, "SPN", big.NewInt(250)); err != nil {
		t.Fatalf("second mint: %v", err)
	}
	balance, err = manager.BalanceOf(addr, "spn")
	if err != nil {
		t.Fatalf("balance after mint: %v", err)
	}
	if balance.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("expected 1000, got %s", balance)
	}
	if err := manager.Mint(addr, "SPN", big.NewInt(0)); !errors.Is(err, htlc.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero mint, got %v", err)
	}
}

func TestTransferMovesFunds(t *testing.T) {
	manager := newTestManager(t)
	alice := testAddr(0x0a)
	bob := testAddr(0x0b)
	if err := manager.Mint(alice, "SPN", big.NewInt(300)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := manager.Transfer(alice, bob, "SPN", big.NewInt(120)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	aliceBalance, _ := manager.BalanceOf(alice, "SPN")
	bobBalance, _ := manager.BalanceOf(bob, "SPN")
	if aliceBalance.Cmp(big.NewInt(180)) != 0 || bobBalance.Cmp(big.NewInt(120)) != 0 {
		t.Fatalf("unexpected balances: alice=%s bob=%s", aliceBalance, bobBalance)
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	manager := newTestManager(t)
	alice := testAddr(0x0a)
	bob := testAddr(0x0b)
	if err := manager.Mint(alice, "SPN", big.NewInt(50)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	err := manager.Transfer(alice, bob, "SPN", big.NewInt(51))
	if !errors.Is(err, htlc.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	aliceBalance, _ := manager.BalanceOf(alice, "SPN")
	if aliceBalance.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("failed transfer must not touch balances, got %s", aliceBalance)
	}
}

func TestTransferSelfIsNoop(t *testing.T) {
	manager := newTestManager(t)
	alice := testAddr(0x0a)
	if err := manager.Mint(alice, "SPN", big.NewInt(40)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := manager.Transfer(alice, alice, "SPN", big.NewInt(10)); err != nil {
		t.Fatalf("self transfer: %v", err)
	}
	balance, _ := manager.BalanceOf(alice, "SPN")
	if balance.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("self transfer must keep balance, got %s", balance)
	}
	if err := manager.Transfer(alice, alice, "SPN", big.NewInt(41)); !errors.Is(err, htlc.ErrInsufficientFunds) {
		t.Fatalf("self transfer above balance must fail, got %v", err)
	}
}

func TestBalancesIsolatedPerAsset(t *testing.T) {
	manager := newTestManager(t)
	alice := testAddr(0x0a)
	if err := manager.Mint(alice, "SPN", big.NewInt(5)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	other, err := manager.BalanceOf(alice, "USDX")
	if err != nil {
		t.Fatalf("balance of other asset: %v", err)
	}
	if other.Sign() != 0 {
		t.Fatalf("expected isolated asset ledger, got %s", other)
	}
}
