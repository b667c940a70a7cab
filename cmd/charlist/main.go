package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// newRootCmd builds the base command with every subcommand attached
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "charlist",
		Short: "List GATT characteristics of a Bluetooth Low Energy service",
		Long: `Connects to a Bluetooth Low Energy (BLE) device, discovers one GATT service and
lists its characteristics with their decoded property flags.

Failed loads are reported with a Retry action; on a terminal you are asked
whether to retry.`,
		Version: formatVersion(version),
	}
	root.SetVersionTemplate(fmt.Sprintf("{{.Name}} {{.Version}} (commit %s, built %s)\n", commit, date))

	// Silence Cobra's "Error:" prefix - main() prints clean errors
	root.SilenceErrors = true

	root.AddCommand(newCharacteristicsCmd())

	// Global flags
	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
