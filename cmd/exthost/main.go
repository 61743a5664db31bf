// Command exthost is the isolated extension host process. It is spawned
// by the main process with its stdio bound to the frame channel, stays
// inert until the init call arrives, and loads extensions on demand.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kiteleaf/exthost/internal/channel"
	"github.com/kiteleaf/exthost/internal/config"
	"github.com/kiteleaf/exthost/internal/emitter"
	"github.com/kiteleaf/exthost/internal/hostplugin"
	"github.com/kiteleaf/exthost/internal/lock"
	"github.com/kiteleaf/exthost/internal/log"
	"github.com/kiteleaf/exthost/internal/rpc"
	"github.com/kiteleaf/exthost/internal/state"
	"github.com/kiteleaf/exthost/internal/status"
	"github.com/kiteleaf/exthost/internal/storage"
)

const version = "0.2.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("exthost", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file (optional)")
	showVersion := fs.Bool("version", false, "Show version information")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	if *showVersion {
		fmt.Printf("exthost version %s\n", version)
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("exthost starting", "version", version, "name", cfg.Service.Name)

	stateLock, err := lock.Acquire(cfg.State.Path)
	if err != nil {
		logger.Error("failed to lock state db (another host may be running)", "error", err)
		return 1
	}
	defer stateLock.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	// Transport → emitter → engine: the single channel shared by every
	// proxy identifier in this process.
	ch := channel.New(os.Stdin, os.Stdout)
	em := emitter.New()
	ch.OnFrame(em.Publish)

	engine := rpc.New(ch, em)
	ch.OnClose(engine.Shutdown)

	host := &hostplugin.HostContext{
		Engine:  engine,
		Emitter: em,
		Logger:  log.WithComponent("hostplugin"),
	}
	manager := hostplugin.NewManager(host, hostplugin.GoLoader{})
	if err := hostplugin.RegisterService(engine, manager); err != nil {
		logger.Error("failed to register plugin manager", "error", err)
		return 1
	}

	store := state.NewStore(db)
	if err := state.RegisterService(engine, store); err != nil {
		logger.Error("failed to register storage service", "error", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 2)
	channelDone := make(chan struct{})

	go func() {
		defer close(channelDone)
		if err := ch.Run(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("channel: %w", err)
		}
	}()

	if cfg.Status.Enabled {
		statusServer := status.New(status.Config{Listen: cfg.Status.Listen}, manager, ch, log.WithComponent("status"))
		go func() {
			if err := statusServer.Start(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("status: %w", err)
			}
		}()
		logger.Info("status server enabled", "listen", cfg.Status.Listen)
	}

	logger.Info("exthost running, awaiting init from main process",
		"manager_proxy", hostplugin.ManagerProxyID, "storage_proxy", state.StorageProxyID)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case <-channelDone:
		// Peer is gone; there is nothing left to serve.
		logger.Info("channel closed, shutting down")
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	ch.Close()
	logger.Info("exthost stopped")
	return 0
}
