package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/charlist/internal/characteristiclist"
	"github.com/srg/charlist/internal/device"
	goble "github.com/srg/charlist/internal/device/go-ble"
	"github.com/srg/charlist/internal/ui/expandable"
	"github.com/srg/charlist/internal/ui/snackbar"
	"github.com/srg/charlist/pkg/config"
)

// closableBroker is a device.Broker that owns its connections
type closableBroker interface {
	device.Broker
	Close() error
}

// newBroker creates the broker a command loads through
var newBroker = func(logger *logrus.Logger, connectTimeout time.Duration) closableBroker {
	return goble.NewBroker(logger, &goble.BrokerOptions{ConnectTimeout: connectTimeout})
}

// isTerminal decides whether prompts and progress lines are shown on a command stream
var isTerminal = snackbar.IsTerminal

type characteristicsOptions struct {
	expand         bool
	json           bool
	connectTimeout time.Duration
	configPath     string
	noRetry        bool
	verbose        bool
}

// newCharacteristicsCmd creates the characteristics command
func newCharacteristicsCmd() *cobra.Command {
	opts := &characteristicsOptions{}
	cmd := &cobra.Command{
		Use:     "characteristics <device-address> <service-uuid>",
		Aliases: []string{"chars"},
		Short:   "List the characteristics of a GATT service",
		Long: `Connects to a BLE device by address, discovers the given service and lists its
characteristics. With --expand every characteristic shows its ID, UUID and the
fourteen property flags (read, write, notify, ...).

When the load fails the error is shown with a Retry action. On a terminal you are
asked whether to retry; otherwise, or with --no-retry, the command exits with an error.`,
		Example: `  charlist characteristics AA:BB:CC:DD:EE:FF 180F
  charlist chars AA:BB:CC:DD:EE:FF 6e400001-b5a3-f393-e0a9-e50e24dcca9e --expand
  charlist chars AA:BB:CC:DD:EE:FF 180D --json --connect-timeout 10s`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCharacteristics(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.expand, "expand", "e", false, "Show ID, UUID and property flags of every characteristic")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Output as JSON")
	cmd.Flags().DurationVar(&opts.connectTimeout, "connect-timeout", goble.DefaultConnectTimeout, "Connection timeout")
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	cmd.Flags().BoolVar(&opts.noRetry, "no-retry", false, "Never prompt to retry a failed load")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output")
	return cmd
}

func runCharacteristics(cmd *cobra.Command, args []string, opts *characteristicsOptions) error {
	address, serviceID := strings.TrimSpace(args[0]), strings.TrimSpace(args[1])
	if address == "" {
		return fmt.Errorf("device address must not be empty")
	}
	if _, err := device.ValidateUUID(serviceID); err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	// Flags override the config file
	if cmd.Flags().Changed("connect-timeout") {
		cfg.ConnectTimeout = opts.connectTimeout
	}
	if cmd.Flags().Changed("expand") {
		cfg.Expand = opts.expand
	}
	if opts.json {
		cfg.OutputFormat = config.OutputJSON
	}
	cfg.ApplyColor()

	// Silent unless asked for, either by flag or by an explicit config file
	fallback := logrus.PanicLevel
	if opts.configPath != "" {
		fallback = cfg.Level()
	}
	logger, err := configureLogger(cmd, "verbose", cfg, fallback)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	broker := newBroker(logger, cfg.ConnectTimeout)
	defer func() {
		if err := broker.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close broker")
		}
	}()

	stderr := cmd.ErrOrStderr()
	var listBroker device.Broker = broker
	if isTerminal(stderr) {
		listBroker = &progressBroker{Broker: broker, out: stderr, timeout: cfg.ConnectTimeout}
	}

	bar := snackbar.New(stderr, cmd.InOrStdin(),
		snackbar.WithLogger(logger),
		snackbar.WithInteractive(!opts.noRetry && isTerminal(cmd.InOrStdin())),
	)

	list := characteristiclist.NewList(listBroker, bar, logger)
	list.Load(ctx, address, serviceID)

	// Each accepted Retry runs one more load from inside Prompt; Ctrl+C ends the wait
	for list.IsLoading() && ctx.Err() == nil {
		ran, err := bar.Prompt(ctx)
		if err != nil {
			return err
		}
		if !ran {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if list.IsLoading() {
		return fmt.Errorf("%w: %w", ErrRetryDeclined, list.LastError())
	}

	out := cmd.OutOrStdout()
	if cfg.OutputFormat == config.OutputJSON {
		return renderJSON(out, list, address, serviceID)
	}
	return renderText(out, list, serviceID, cfg.Expand)
}

func serviceUUID(serviceID string) device.UUID {
	return device.UUID{UUID: device.NormalizeUUID(serviceID)}
}

func renderText(w io.Writer, list *characteristiclist.List, serviceID string, expand bool) error {
	svc := serviceUUID(serviceID).UUID
	if name := device.KnownServiceName(svc); name != "" {
		svc = fmt.Sprintf("%s (%s)", svc, name)
	}
	if _, err := fmt.Fprintf(w, "%s %s\n", color.New(color.Bold).Sprint("Service:"), svc); err != nil {
		return err
	}
	list.ExpandAll(expand)
	return list.Render(w, expandable.RenderOptions{})
}

// characteristicsJSON is the --json document
type characteristicsJSON struct {
	Address         string                   `json:"address"`
	Service         device.UUID              `json:"service"`
	ServiceName     string                   `json:"service_name,omitempty"`
	Characteristics *characteristiclist.List `json:"characteristics"`
}

func renderJSON(w io.Writer, list *characteristiclist.List, address, serviceID string) error {
	svc := serviceUUID(serviceID)
	data, err := json.MarshalIndent(characteristicsJSON{
		Address:         address,
		Service:         svc,
		ServiceName:     device.KnownServiceName(svc.UUID),
		Characteristics: list,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode characteristics: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
