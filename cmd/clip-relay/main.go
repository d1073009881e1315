package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mikey/clip-relay/internal/control"
	"github.com/mikey/clip-relay/internal/core"
	"github.com/mikey/clip-relay/internal/di"
	"github.com/mikey/clip-relay/internal/health"
	"github.com/mikey/clip-relay/internal/ports"
	"go.uber.org/zap"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	tapPort ports.Tap,
	controlServer *control.Server,
	monitor *health.Monitor,
	replayer *core.Replayer,
	engine *core.Engine,
	state *core.State,
	store core.StateStore,
) error {
	defer logger.Sync()

	// Record process start time for uptime reporting
	if err := state.InitStats(context.Background(), time.Now()); err != nil {
		logger.Warn("Failed to initialize stats", zap.Error(err))
	}

	// Start the traffic tap
	if err := tapPort.Start(); err != nil {
		logger.Fatal("Failed to start tap", zap.Error(err))
		return err
	}

	// Start the control server
	if err := controlServer.Start(); err != nil {
		logger.Fatal("Failed to start control server", zap.Error(err))
		return err
	}

	// Start background tasks
	monitor.Start()
	replayer.Start()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	// Stop the control server
	if err := controlServer.Stop(); err != nil {
		logger.Error("Failed to stop control server", zap.Error(err))
	}

	// Stop the tap
	if err := tapPort.Stop(); err != nil {
		logger.Error("Failed to stop tap", zap.Error(err))
	}

	// Stop background tasks and wait for in-flight deliveries
	monitor.Stop()
	replayer.Stop()
	engine.Close()

	// Close the state store
	if err := store.Close(); err != nil {
		logger.Error("Failed to close state store", zap.Error(err))
	}

	logger.Info("Shutdown complete")
	return nil
}
