package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"trade-stream/src/botstate"
	"trade-stream/src/config"
	"trade-stream/src/exchange"
	"trade-stream/src/interfaces"
	"trade-stream/src/logger"
	"trade-stream/src/network"
	"trade-stream/src/publisher"
	"trade-stream/src/server"
	"trade-stream/src/storage"

	"golang.org/x/sync/errgroup"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	config, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(config.LogLevel, config.Name)

	// Lifecycle context, cancelled on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 1. Snapshot archive (optional)
	var archive interfaces.IArchive
	switch config.Storage.DBType {
	case "postgres":
		archive, err = storage.NewPostgresArchive(config.MConfig, appLogger)
	case "sqlite":
		archive, err = storage.NewSQLiteArchive(config.MConfig, appLogger)
	default:
		appLogger.Info("Snapshot archiving disabled (db_type=%s)", config.Storage.DBType)
	}
	if err != nil {
		appLogger.Critical("Failed to init archive: %v", err)
	}

	var archiver *storage.Archiver
	if archive != nil {
		if err := archive.Initialize(); err != nil {
			appLogger.Critical("Failed to migrate archive: %v", err)
		}
		defer archive.Close()
		archiver = storage.NewArchiver(archive, appLogger)
	}

	// 2. Exchange clients (real where configured, simulated elsewhere)
	var networkManager interfaces.INetworkManager = network.NewAsyncNetworkManager(config.MConfig, appLogger)
	resolver := exchange.NewResolver(config.MConfig, networkManager)

	// 3. Bot state registry (bot runners push their state here)
	bots := botstate.NewProvider()

	// 4. Server + publisher loops
	srv := server.NewServer(config.MConfig, appLogger)

	var sink publisher.SnapshotSink
	if archiver != nil {
		sink = archiver
	}
	publishers := publisher.NewManager(ctx, config.MConfig, appLogger, srv, resolver, bots, sink)
	srv.SetPublishers(publishers)

	// 5. Run everything, stop on first failure or signal
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return srv.Start(groupCtx)
	})

	if archiver != nil {
		group.Go(func() error {
			return archiver.Run(groupCtx)
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		appLogger.Info("Shutting down...")
		publishers.StopAll()
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		appLogger.Error("Server failed: %v", err)
		os.Exit(1)
	}
}
