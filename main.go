// Package main provides the hydrosim entry point and CLI interface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/devskill-org/hydrosim/controller"
)

func main() {
	// Command line flags
	var (
		configFile = flag.String("config", "config.json", "Configuration file path")
		help       = flag.Bool("help", false, "Show help message")
		headless   = flag.Duration("headless", 0, "Run for a fixed wall-clock duration and print a summary")
		paused     = flag.Bool("paused", false, "Do not start the simulation automatically")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	config, err := loadConfigOrDefault(*configFile)
	if err != nil {
		fmt.Println("Error loading configuration:", err)
		return
	}

	fmt.Printf("Starting solar-to-hydrogen plant simulator with the following configuration:\n")
	fmt.Printf("  Default Tilt: %.0f deg\n", config.DefaultTiltDeg)
	fmt.Printf("  Default Electrolyte: %.1f%%\n", config.DefaultElectrolytePct)
	fmt.Printf("  Epsilon: %.2f\n", config.Epsilon)
	fmt.Printf("  Decision Cadence: %.0fs\n", config.DecisionCadenceSec)
	fmt.Printf("  Learner Enabled: %v\n", config.LearnerEnabled)
	fmt.Printf("  Tick Interval: %s\n", config.TickInterval)
	if config.ServerPort > 0 {
		fmt.Printf("  Web Server: http://localhost:%d\n", config.ServerPort)
	}
	if config.DryRun {
		fmt.Printf("  Mode: DRY-RUN (metric inserts will be logged only)\n")
	}
	fmt.Println()

	// Create logger
	logger := log.New(os.Stdout, "[SIM] ", log.LstdFlags)

	// Create simulator
	sim := controller.NewSimulatorWithServer(config, logger)
	if !*paused {
		sim.Start()
	}

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *headless > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, *headless)
		defer timeoutCancel()
	}

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- sim.Run(ctx)
	}()

	logger.Printf("Simulator started. Press Ctrl+C to stop...")

	select {
	case <-sigChan:
		logger.Printf("Shutdown signal received, stopping simulator...")
		cancel()
		<-errChan
	case err := <-errChan:
		if err != nil && err != context.Canceled && err != context.DeadlineExceeded {
			logger.Printf("Simulator error: %v", err)
		}
	}

	printSummary(sim)
	logger.Printf("Simulator stopped successfully")
}

// loadConfigOrDefault loads the config file, falling back to defaults when
// the default config path does not exist.
func loadConfigOrDefault(path string) (*controller.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && path == "config.json" {
		return controller.DefaultConfig(), nil
	}
	return controller.LoadConfig(path)
}

func printSummary(sim *controller.Simulator) {
	snap := sim.Snapshot()

	fmt.Println("\n========================================")
	fmt.Println("SIMULATION SUMMARY")
	fmt.Println("========================================")
	fmt.Printf("Simulated time:   %s\n", snap.Elapsed)
	fmt.Printf("Cumulative yield: %.3f volume\n", snap.Yield)
	fmt.Printf("Final config:     tilt %.0f deg, electrolyte %.1f%%\n",
		snap.Config.TiltDeg, snap.Config.ElectrolytePct)
	fmt.Printf("Bins explored:    %d (%d observations)\n", snap.BinCount, snap.Observations)
	if snap.Best != nil {
		fmt.Printf("Best observation: %.3f volume/min at tilt %d deg, electrolyte %.1f%%\n",
			snap.Best.Reward, snap.Best.Bin.TiltDeg, snap.Best.Bin.ElectrolytePct)
	}
	fmt.Println("========================================")
}

func showHelp() {
	fmt.Println("hydrosim - Solar-to-hydrogen plant simulator with an adaptive controller")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Simulates a tunable solar-to-hydrogen production process and drives an")
	fmt.Println("  epsilon-greedy learner that searches the (panel tilt, electrolyte")
	fmt.Println("  concentration) space to maximize hydrogen output.")
	fmt.Println()
	fmt.Println("  Key Features:")
	fmt.Println("  - Deterministic day/irradiance model with a cloud perturbation")
	fmt.Println("  - Discretized epsilon-greedy configuration search")
	fmt.Println("  - Live web dashboard with websocket snapshot streaming")
	fmt.Println("  - Optional Postgres metrics sink and CSV production history")
	fmt.Println("  - Optional live solar elevation from real coordinates")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  hydrosim [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Basic usage with default settings")
	fmt.Println("  hydrosim")
	fmt.Println()
	fmt.Println("  # Custom configuration")
	fmt.Println("  hydrosim --config=config.json")
	fmt.Println()
	fmt.Println("  # Run headless for five minutes and print the summary")
	fmt.Println("  hydrosim -headless=5m")
	fmt.Println()
	fmt.Println("  # Start paused and control via the web API")
	fmt.Println("  hydrosim -paused")
}
