package config

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load missing config: %v", err)
	}
	if cfg.RPCAddress != ":8080" || cfg.DataDir != "./swaplock-data" || cfg.NetworkName != "swaplock-local" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config written to disk: %v", err)
	}
	// Loading the written file again round-trips.
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.RPCAddress != cfg.RPCAddress {
		t.Fatalf("round trip mismatch: %+v", reloaded)
	}
}

func TestLoadFillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := "NetworkName = \"swapnet\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NetworkName != "swapnet" {
		t.Fatalf("expected explicit network name, got %q", cfg.NetworkName)
	}
	if cfg.RPCAddress != ":8080" || cfg.DataDir != "./swaplock-data" {
		t.Fatalf("expected defaults for omitted fields: %+v", cfg)
	}
}

func TestAdminAddressParsing(t *testing.T) {
	cfg := &Config{AdminAddress: "0x" + strings.Repeat("ab", 20)}
	addr, err := cfg.Admin()
	if err != nil {
		t.Fatalf("parse admin: %v", err)
	}
	if addr[0] != 0xab || addr[19] != 0xab {
		t.Fatalf("unexpected admin bytes: %x", addr)
	}

	cfg = &Config{AdminAddress: ""}
	addr, err = cfg.Admin()
	if err != nil {
		t.Fatalf("empty admin: %v", err)
	}
	if addr != ([20]byte{}) {
		t.Fatalf("empty admin must decode to zero address")
	}

	cfg = &Config{AdminAddress: "0x1234"}
	if _, err := cfg.Admin(); err == nil {
		t.Fatalf("expected error for short admin address")
	}
}

func TestLoadRejectsBadAdmin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := "AdminAddress = \"0xzz\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for malformed admin address")
	}
}

func TestGenesisEntryDecode(t *testing.T) {
	entry := GenesisEntry{
		Address: "0x" + strings.Repeat("01", 20),
		Asset:   "SPN",
		Amount:  "1000000",
	}
	addr, asset, amount, err := entry.Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if addr[19] != 0x01 || asset != "SPN" {
		t.Fatalf("unexpected decode: addr=%x asset=%s", addr, asset)
	}
	if amount.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("unexpected amount %s", amount)
	}

	entry.Amount = "not-a-number"
	if _, _, _, err := entry.Decode(); err == nil {
		t.Fatalf("expected error for malformed amount")
	}
	entry.Amount = "10"
	entry.Address = "0x01"
	if _, _, _, err := entry.Decode(); err == nil {
		t.Fatalf("expected error for short address")
	}
}
