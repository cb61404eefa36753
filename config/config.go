package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress      string         `toml:"RPCAddress"`
	DataDir         string         `toml:"DataDir"`
	NetworkName     string         `toml:"NetworkName"`
	AdminAddress    string         `toml:"AdminAddress"`
	EventRingSize   int            `toml:"EventRingSize"`
	GenesisAccounts []GenesisEntry `toml:"GenesisAccounts"`
}

// GenesisEntry is one balance seeded the first time the data directory is
// opened.
type GenesisEntry struct {
	Address string `toml:"Address"`
	Asset   string `toml:"Asset"`
	Amount  string `toml:"Amount"`
}

// Load loads the configuration from the given path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./swaplock-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "swaplock-local"
	}
	if cfg.GenesisAccounts == nil {
		cfg.GenesisAccounts = []GenesisEntry{}
	}

	if _, err := cfg.Admin(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Admin decodes the configured administrator address. An empty value returns
// the zero address, which disables the override paths entirely.
func (c *Config) Admin() ([20]byte, error) {
	var addr [20]byte
	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(c.AdminAddress), "0x"))
	if raw == "" {
		return addr, nil
	}
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return addr, fmt.Errorf("invalid AdminAddress: %w", err)
	}
	if len(decoded) != len(addr) {
		return addr, fmt.Errorf("invalid AdminAddress: want %d bytes, got %d", len(addr), len(decoded))
	}
	copy(addr[:], decoded)
	return addr, nil
}

// Decode parses one genesis entry into its binary form.
func (g GenesisEntry) Decode() ([20]byte, string, *big.Int, error) {
	var addr [20]byte
	raw := strings.TrimPrefix(strings.TrimSpace(g.Address), "0x")
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return addr, "", nil, fmt.Errorf("genesis entry address %q: %w", g.Address, err)
	}
	if len(decoded) != len(addr) {
		return addr, "", nil, fmt.Errorf("genesis entry address %q: want %d bytes", g.Address, len(addr))
	}
	copy(addr[:], decoded)
	amount, ok := new(big.Int).SetString(strings.TrimSpace(g.Amount), 10)
	if !ok {
		return addr, "", nil, fmt.Errorf("genesis entry amount %q: not a decimal integer", g.Amount)
	}
	return addr, strings.TrimSpace(g.Asset), amount, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:      ":8080",
		DataDir:         "./swaplock-data",
		NetworkName:     "swaplock-local",
		AdminAddress:    "",
		EventRingSize:   0,
		GenesisAccounts: []GenesisEntry{},
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
