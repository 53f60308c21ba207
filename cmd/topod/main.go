package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	httpserver "hyperkv/internal/http"
	"hyperkv/pkg/cluster"
	"hyperkv/pkg/configstore"
	"hyperkv/pkg/metrics"
	"hyperkv/pkg/topology"
)

func main() {
	configPath := flag.String("config", "topod.yaml", "path to YAML config")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "topod: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := initConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	initLogger(&cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	localAddr := netip.MustParseAddrPort(cfg.Node.Addr) // проверено в Validate

	// --- история конфигураций на диске ---
	store, err := configstore.Open(cfg.Store.Path, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	collector := metrics.NewPrometheus(prometheus.DefaultRegisterer)
	holder := topology.NewHolder(cfg.History.Retain)

	// --- ZooKeeper: единственный писатель holder ---
	watcher, err := cluster.NewConfigWatcher(cfg.ZooKeeper.Servers, cfg.ZooKeeper.SessionTimeout, cfg.ZooKeeper.ConfigPath, holder)
	if err != nil {
		return err
	}
	defer watcher.Close()
	watcher.Store = store
	watcher.Keep = cfg.History.Persist
	watcher.Metrics = collector

	// последняя сохранённая версия доступна до подключения к ZK
	if err := watcher.Restore(); err != nil {
		slog.Warn("failed to restore topology from disk", "error", err)
	}

	watchDone := make(chan error, 1)
	go func() {
		watchDone <- watcher.Run(ctx, cfg.ZooKeeper.ConnectTimeout)
	}()

	router := &cluster.Router{LocalAddr: localAddr, Topology: holder, Metrics: collector}

	server := httpserver.NewServer(holder, router, strconv.Itoa(cfg.Server.Port))
	server.SetHistory(store)
	server.ReadHeaderTimeout = cfg.Server.ReadHeaderTimeout
	server.ShutdownTimeout = cfg.Server.ShutdownTimeout
	if err := server.Start(); err != nil {
		return err
	}

	slog.Info("topod running", "node", localAddr.String(), "zk", cfg.ZooKeeper.Servers, "path", cfg.ZooKeeper.ConfigPath)

	var watchErr error
	select {
	case <-ctx.Done():
	case watchErr = <-watchDone:
		if watchErr != nil {
			slog.Error("config watcher stopped", "error", watchErr)
		}
	}

	if err := server.Stop(); err != nil {
		slog.Error("error stopping server", "error", err)
	}
	slog.Info("topod stopped")
	return watchErr
}
