package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mikey/clip-relay/internal/config"
	"github.com/mikey/clip-relay/internal/core"
	"github.com/mikey/clip-relay/internal/di"
	"go.uber.org/zap"
)

func main() {
	flags := di.ParseFlags()

	// Build the dependency injection container
	container, err := di.BuildCLIContainer(flags)
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
	flags *di.CLIFlags,
	logger *zap.Logger,
	cfg *config.Config,
	engine *core.Engine,
	pipeline *core.Pipeline,
	state *core.State,
	store core.StateStore,
) error {
	defer logger.Sync()
	defer func() {
		engine.Close()
		if err := store.Close(); err != nil {
			logger.Error("Failed to close state store", zap.Error(err))
		}
	}()

	if flags.ClipID != "" {
		return injectClip(flags.ClipID, logger, cfg, pipeline, state)
	}
	return processCapture(flags, logger, cfg, pipeline, state)
}

// injectClip builds a record for a single clip ID and delivers it
func injectClip(
	clipID string,
	logger *zap.Logger,
	cfg *config.Config,
	pipeline *core.Pipeline,
	state *core.State,
) error {
	ctx := context.Background()

	fmt.Printf("\n=== Injection ===\n")
	fmt.Printf("Clip ID: %s\n", clipID)
	fmt.Printf("Endpoint: %s\n", cfg.GetString("webhook.endpoint"))
	fmt.Printf("Max attempts: %d\n", cfg.GetInt("delivery.max_retries"))
	fmt.Printf("\n")

	startTime := time.Now()

	record, err := pipeline.Inject(ctx, clipID)
	if errors.Is(err, core.ErrAlreadyDelivered) {
		fmt.Printf("=== Results ===\n")
		fmt.Printf("Delivered: true (clip was already delivered)\n")
		return nil
	}
	if err != nil {
		logger.Fatal("Failed to inject clip", zap.Error(err), zap.String("clip_id", clipID))
	}

	fmt.Printf("Audio URL: %s\n", record.AudioURL)

	outcome := waitForOutcome(ctx, state, record.ID, outcomeBudget(cfg))
	duration := time.Since(startTime)

	// Print results
	fmt.Printf("\n=== Results ===\n")
	switch {
	case outcome.delivered:
		fmt.Printf("Delivered: true\n")
	case outcome.parked:
		fmt.Printf("Delivered: false\n")
		fmt.Printf("Failure code: %d\n", outcome.failureCode)
	default:
		fmt.Printf("Delivered: unknown (no outcome before deadline)\n")
	}
	fmt.Printf("Processing time: %v\n", duration)

	if outcome.parked {
		return fmt.Errorf("delivery of clip %s failed with code %d", record.ID, outcome.failureCode)
	}
	if !outcome.delivered {
		return fmt.Errorf("no delivery outcome for clip %s", record.ID)
	}
	return nil
}

// processCapture feeds a captured response body through the pipeline
func processCapture(
	flags *di.CLIFlags,
	logger *zap.Logger,
	cfg *config.Config,
	pipeline *core.Pipeline,
	state *core.State,
) error {
	ctx := context.Background()

	// Read body from file or stdin
	var bodyReader io.Reader
	if flags.InputFile != "" {
		file, err := os.Open(flags.InputFile)
		if err != nil {
			logger.Fatal("Failed to open input file", zap.Error(err), zap.String("file", flags.InputFile))
		}
		defer file.Close()
		bodyReader = file
		logger.Info("Reading captured body from file", zap.String("file", flags.InputFile))
	} else {
		bodyReader = os.Stdin
		logger.Info("Reading captured body from stdin")
	}

	raw, err := io.ReadAll(bodyReader)
	if err != nil {
		logger.Fatal("Failed to read captured body", zap.Error(err))
	}

	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		logger.Fatal("Failed to parse captured body", zap.Error(err))
	}

	// Print input summary
	fmt.Printf("\n=== Input ===\n")
	if flags.InputFile != "" {
		fmt.Printf("File: %s\n", flags.InputFile)
	} else {
		fmt.Printf("File: stdin\n")
	}
	fmt.Printf("Body length: %d bytes\n", len(raw))
	fmt.Printf("Endpoint: %s\n", cfg.GetString("webhook.endpoint"))
	fmt.Printf("\n")

	startTime := time.Now()

	before, err := state.Stats(ctx)
	if err != nil {
		logger.Fatal("Failed to read stats", zap.Error(err))
	}

	submitted := pipeline.ProcessBody(ctx, body, core.SourceManual)

	// Wait until every submitted record has either a sent marker or a
	// failed queue entry behind it
	var after core.Stats
	deadline := time.Now().Add(outcomeBudget(cfg))
	for {
		after, err = state.Stats(ctx)
		if err == nil {
			done := (after.TotalSent - before.TotalSent) + (after.TotalFailed - before.TotalFailed)
			if done >= int64(submitted) {
				break
			}
		}
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}
	duration := time.Since(startTime)

	// Print results
	fmt.Printf("=== Results ===\n")
	fmt.Printf("Submitted: %d\n", submitted)
	fmt.Printf("Skipped: %d\n", pipeline.Skipped())
	fmt.Printf("Delivered: %d\n", after.TotalSent-before.TotalSent)
	fmt.Printf("Parked: %d\n", after.TotalFailed-before.TotalFailed)
	fmt.Printf("Processing time: %v\n", duration)

	if parked := after.TotalFailed - before.TotalFailed; parked > 0 {
		return fmt.Errorf("%d of %d clips failed delivery", parked, submitted)
	}
	return nil
}

// outcome describes the terminal state of one injected clip
type outcome struct {
	delivered   bool
	parked      bool
	failureCode int
}

// waitForOutcome polls the relay state until the clip is marked sent or
// parked, or the budget elapses
func waitForOutcome(ctx context.Context, state *core.State, clipID string, budget time.Duration) outcome {
	deadline := time.Now().Add(budget)
	for {
		if sent, err := state.HasSent(ctx, clipID); err == nil && sent {
			return outcome{delivered: true}
		}
		if items, err := state.FailedItems(ctx); err == nil {
			for _, item := range items {
				if item.Record.ID == clipID {
					return outcome{parked: true, failureCode: item.FailureCode}
				}
			}
		}
		if time.Now().After(deadline) {
			return outcome{}
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// outcomeBudget bounds the wait for a delivery outcome: every attempt at
// its full timeout, the backoff delays between them, and some slack.
func outcomeBudget(cfg *config.Config) time.Duration {
	attempts := cfg.GetInt("delivery.max_retries")
	if attempts <= 0 {
		attempts = 3
	}
	timeout, err := cfg.GetDuration("webhook.timeout")
	if err != nil || timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseDelay, err := cfg.GetDuration("delivery.base_delay")
	if err != nil || baseDelay <= 0 {
		baseDelay = time.Second
	}

	budget := time.Duration(attempts) * timeout
	for i := 1; i < attempts; i++ {
		budget += baseDelay << (i - 1)
	}
	return budget + 5*time.Second
}
