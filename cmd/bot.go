package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ev3sim/ev3sim/ev3"
	"github.com/ev3sim/ev3sim/ev3/programs"
	"github.com/ev3sim/ev3sim/sim/ipc"
	"github.com/ev3sim/ev3sim/sim/relay"
)

var (
	// CLI flags for an out-of-process robot
	botURL     string            // Relay endpoint of a running simulator
	botRobot   string            // Robot id to drive
	botProgram string            // Built-in program name
	botArgs    map[string]string // Program arguments
)

// botCmd drives one robot of a running simulator over the relay
var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run a built-in robot program against a running simulator",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()

		program, ok := programs.Lookup(botProgram)
		if !ok {
			logrus.Fatalf("Unknown program %q (valid: %s)", botProgram, strings.Join(programs.Names(), ", "))
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, err := relay.Dial(ctx, botURL, botRobot)
		if err != nil {
			logrus.Fatalf("Connecting to %s: %v", botURL, err)
		}
		defer client.Close()
		logrus.Infof("Driving %s (%s) with %q", client.RobotID(), client.Address(), botProgram)

		if err := runBot(ctx, client, program, programs.Args(botArgs)); err != nil {
			logrus.Errorf("Program failed: %v", err)
			client.Close()
			stop()
			os.Exit(1)
		}
		logrus.Info("Program finished.")
	},
}

// runBot runs program on bridge. The simulator retiring the robot or
// closing the connection ends the program cleanly.
func runBot(ctx context.Context, bridge ev3.Bridge, program programs.Program, args programs.Args) error {
	b, err := ev3.Connect(ctx, bridge)
	if err == nil {
		err = program(ctx, b, args)
	}
	if clean(err) || errors.Is(err, ipc.ErrMailboxClosed) || errors.Is(err, relay.ErrClientClosed) {
		return nil
	}
	return err
}

func init() {
	botCmd.Flags().StringVar(&botURL, "url", "ws://127.0.0.1:8765/robot", "Relay endpoint of the simulator")
	botCmd.Flags().StringVar(&botRobot, "robot", "Robot-0", "Robot id to drive")
	botCmd.Flags().StringVar(&botProgram, "program", "idle", "Built-in program ("+strings.Join(programs.Names(), ", ")+")")
	botCmd.Flags().StringToStringVar(&botArgs, "arg", nil, "Program argument key=value (repeatable)")
	botCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
}
