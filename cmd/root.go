package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ev3sim/ev3sim/sim/preset"
	"github.com/ev3sim/ev3sim/sim/runner"
	"github.com/ev3sim/ev3sim/sim/trace"
)

var (
	// CLI flags for the run
	seed            int64         // Run seed, overrides the preset's
	presetName      string        // Built-in preset name or path to a preset YAML
	logLevel        string        // Log verbosity level
	tickRate        int           // Game ticks per simulated second
	timeScale       float64       // Wall-clock speed multiplier
	maxTicks        int64         // Stop after this many ticks (0 = unbounded)
	heartbeat       time.Duration // Unconsumed-update age that marks a robot stalled
	endOnRobotDeath bool          // Robot failures and stalls end the run
	listenAddr      string        // Relay websocket address for remote robots

	// CLI flags for recording
	traceLevel string // Trace verbosity: none, events, cycles
	traceStore string // Trace store: memory or sqlite
	tracePath  string // SQLite database file
	csvDir     string // Directory for CSV export of the trace
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "ev3sim",
	Short: "Tick-driven simulator for LEGO EV3 robots",
}

// runCmd runs a preset using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation preset",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()

		p, err := loadPreset(presetName)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if cmd.Flags().Changed("seed") {
			p.Seed = seed
		}
		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Invalid trace level: %s (valid: none, events, cycles)", traceLevel)
		}
		if csvDir != "" && trace.TraceLevel(traceLevel) == trace.TraceLevelNone {
			logrus.Fatalf("--csv needs --trace events or cycles")
		}

		cfg := runner.Config{
			Preset:    p,
			Scheduler: p.SchedulerConfig(),
			Trace:     trace.TraceConfig{Level: trace.TraceLevel(traceLevel), Store: traceStore, Path: tracePath},
			CSVDir:    csvDir,
			Listen:    listenAddr,
		}
		if cmd.Flags().Changed("tick-rate") {
			cfg.Scheduler.TickRate = tickRate
		}
		if cmd.Flags().Changed("time-scale") {
			cfg.Scheduler.TimeScale = timeScale
		}
		if cmd.Flags().Changed("heartbeat") {
			cfg.Scheduler.HeartbeatTimeout = heartbeat
		}
		if cmd.Flags().Changed("end-on-robot-death") {
			cfg.Scheduler.EndOnRobotDeath = endOnRobotDeath
		}
		cfg.Scheduler.MaxTicks = maxTicks

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		r, err := runner.New(ctx, cfg)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		logrus.Infof("Starting preset %q with seed %d at %d Hz x%g", p.Name, p.Seed, cfg.Scheduler.TickRate, cfg.Scheduler.TimeScale)

		startTime := time.Now()
		res, err := r.Run(ctx)
		if res != nil {
			printSummary(os.Stdout, res, r.Scheduler().Config().TickRate, time.Since(startTime))
		}
		if err != nil {
			logrus.Errorf("Simulation failed: %v", err)
			stop()
			os.Exit(1)
		}
		logrus.Info("Simulation complete.")
	},
}

func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// loadPreset reads name as a file when it looks like a path and as a
// built-in preset otherwise.
func loadPreset(name string) (*preset.Preset, error) {
	if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") || strings.ContainsRune(name, os.PathSeparator) {
		return preset.Load(name)
	}
	p, err := preset.Builtin(name)
	if err == nil {
		return p, nil
	}
	if _, statErr := os.Stat(name); statErr == nil {
		return preset.Load(name)
	}
	return nil, err
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// clean reports errors that only mean the program was told to stop.
func clean(err error) bool {
	return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().Int64Var(&seed, "seed", 0, "Run seed (default: the preset's)")
	runCmd.Flags().StringVar(&presetName, "preset", preset.DefaultName, "Built-in preset ("+strings.Join(preset.BuiltinNames(), ", ")+") or path to a preset YAML")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().IntVar(&tickRate, "tick-rate", 60, "Game ticks per simulated second (default: the preset's)")
	runCmd.Flags().Float64Var(&timeScale, "time-scale", 1, "Wall-clock speed multiplier (default: the preset's)")
	runCmd.Flags().Int64Var(&maxTicks, "ticks", 0, "Stop after this many ticks (0 = until the preset ends)")
	runCmd.Flags().DurationVar(&heartbeat, "heartbeat", time.Second, "Age of an unconsumed tick that marks a robot stalled (0 = off)")
	runCmd.Flags().BoolVar(&endOnRobotDeath, "end-on-robot-death", false, "End the run when a robot program fails or stalls")
	runCmd.Flags().StringVar(&listenAddr, "listen", "", "Relay websocket address for remote robots, e.g. 127.0.0.1:8765")

	runCmd.Flags().StringVar(&traceLevel, "trace", "none", "Trace level (none, events, cycles)")
	runCmd.Flags().StringVar(&traceStore, "trace-store", "memory", "Trace store (memory, sqlite)")
	runCmd.Flags().StringVar(&tracePath, "trace-path", "ev3sim-trace.db", "SQLite trace database file")
	runCmd.Flags().StringVar(&csvDir, "csv", "", "Export the trace as CSV files into this directory")

	// Attach subcommands to `root`
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(botCmd)
	rootCmd.AddCommand(schemaCmd)
}
