package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blecentral/internal/central"
	"github.com/srg/blecentral/internal/radio"
	"github.com/srg/blecentral/pkg/config"
	"golang.org/x/term"
)

const stopTimeout = 5 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to transfer peripherals and exchange text",
	Long: `Scans for peripherals advertising the transfer service and keeps every one in
range connected and subscribed. Received text is printed as it arrives.

Input:
  hello            - broadcast "hello" to every subscribed peripheral
  @<id> hello      - send "hello" to one peripheral

Examples:
  # Default service, goble backend
  blecentral run

  # BlueZ via tinygo, stronger signal required, at most 4 links
  blecentral run --backend tinygo --rssi -60 --max-connections 4`,
	Args: cobra.NoArgs,
	RunE: runCentral,
}

var (
	runBackend        string
	runRSSI           int
	runMaxConnections int
	runNoColor        bool
)

func init() {
	runCmd.Flags().StringVar(&runBackend, "backend", "", "Radio backend: goble or tinygo (overrides config)")
	runCmd.Flags().IntVar(&runRSSI, "rssi", central.DefaultRSSIThreshold, "Weakest RSSI (dBm) admitted for connection (overrides config)")
	runCmd.Flags().IntVar(&runMaxConnections, "max-connections", 0, "Maximum simultaneous peripherals, 0 for unbounded (overrides config)")
	runCmd.Flags().BoolVar(&runNoColor, "no-color", false, "Disable colored output")
	runCmd.Flags().Bool("verbose", false, "Enable debug logging")
}

// applyRunFlags lets explicitly set flags win over the config file.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("backend") {
		cfg.Backend = runBackend
	}
	if cmd.Flags().Changed("rssi") {
		cfg.Central.RSSIThreshold = runRSSI
	}
	if cmd.Flags().Changed("max-connections") {
		cfg.Central.MaxConnections = runMaxConnections
	}
}

func runCentral(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)

	logger, err := configureLogger(cmd, cfg, "verbose")
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := radio.New(cfg.Backend, logger)
	if err != nil {
		return err
	}

	colors := !runNoColor && term.IsTerminal(int(os.Stdout.Fd()))
	mgr := central.NewManager(r, newConsole(os.Stdout, colors), cfg.CentralOptions(), logger)
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("starting central: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"backend": cfg.Backend,
		"service": cfg.Central.ServiceUUID,
	}).Info("Central started")
	fmt.Fprintln(os.Stderr, "Scanning for peripherals. Type text to broadcast, '@<id> <text>' to address one. Press Ctrl+C to stop...")

	go readInput(ctx, os.Stdin, mgr)

	select {
	case <-ctx.Done():
	case <-mgr.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := mgr.Stop(stopCtx); err != nil {
		return fmt.Errorf("stopping central: %w", err)
	}
	return ctx.Err()
}

// sender is the part of the manager driven by user input.
type sender interface {
	RequestSend(id central.Identity, text string)
	Broadcast(text string)
}

// readInput dispatches stdin lines until EOF or ctx is done.
func readInput(ctx context.Context, in io.Reader, s sender) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		id, text, ok := parseInput(scanner.Text())
		if !ok {
			continue
		}
		if id == "" {
			s.Broadcast(text)
		} else {
			s.RequestSend(id, text)
		}
	}
}

// parseInput splits "@id text" into its target and payload. Any other non-empty line
// is a broadcast.
func parseInput(line string) (central.Identity, string, bool) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return "", "", false
	}
	if !strings.HasPrefix(line, "@") {
		return "", line, true
	}

	target, text, found := strings.Cut(line[1:], " ")
	if !found || target == "" || text == "" {
		return "", "", false
	}
	return central.Identity(target), text, true
}
