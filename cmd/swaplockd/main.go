package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"swaplock/config"
	"swaplock/core"
	"swaplock/observability/logging"
	"swaplock/rpc"
	"swaplock/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("SWAPLOCK_ENV"))
	logger := logging.Setup("swaplockd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	admin, err := cfg.Admin()
	if err != nil {
		logger.Error("failed to parse admin address", slog.Any("error", err))
		os.Exit(1)
	}

	allocs, err := genesisAllocs(cfg)
	if err != nil {
		logger.Error("failed to parse genesis accounts", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.String("dir", cfg.DataDir), slog.Any("error", err))
		os.Exit(1)
	}

	node, err := core.NewNode(db, admin, allocs)
	if err != nil {
		logger.Error("failed to create node", slog.Any("error", err))
		_ = db.Close()
		os.Exit(1)
	}

	rpcServer := rpc.NewServer(node, logger)
	rpcErrCh := make(chan error, 1)
	go func() {
		rpcErrCh <- rpcServer.Start(cfg.RPCAddress)
	}()

	logger.Info("swaplock node running",
		slog.String("network", cfg.NetworkName),
		slog.String("rpc", cfg.RPCAddress),
		slog.String("data_dir", cfg.DataDir))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	case err := <-rpcErrCh:
		if err != nil {
			logger.Error("RPC server terminated", slog.Any("error", err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rpcServer.Shutdown(ctx); err != nil {
		logger.Error("RPC shutdown failed", slog.Any("error", err))
	}
	if err := node.Close(); err != nil {
		logger.Error("database close failed", slog.Any("error", err))
	}
}

func genesisAllocs(cfg *config.Config) ([]core.GenesisAlloc, error) {
	allocs := make([]core.GenesisAlloc, 0, len(cfg.GenesisAccounts))
	for i, entry := range cfg.GenesisAccounts {
		addr, asset, amount, err := entry.Decode()
		if err != nil {
			return nil, fmt.Errorf("genesis account %d: %w", i, err)
		}
		allocs = append(allocs, core.GenesisAlloc{Address: addr, Asset: asset, Amount: amount})
	}
	return allocs, nil
}
