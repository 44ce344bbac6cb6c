package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"WebhookChat/internal/config"
)

type rootFlags struct {
	configPath string
	webhookURL string
	senderID   string
	logDir     string
	deliveryDB string
	debug      bool
	telemetry  bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&rootFlags{})
}

func buildRootCmd(flags *rootFlags) *cobra.Command {
	root := &cobra.Command{
		Use:           "webhookchat",
		Short:         "Chat widget for a webhook-based dialogue service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Path to a TOML config file")
	pf.StringVar(&flags.webhookURL, "webhook-url", "", "Dialogue service webhook URL")
	pf.StringVar(&flags.senderID, "sender", "", "Sender id sent with every message")
	pf.StringVar(&flags.logDir, "log-dir", "", "Directory for log, trace and metric files")
	pf.StringVar(&flags.deliveryDB, "delivery-db", "", "SQLite delivery log path")
	pf.BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	pf.BoolVar(&flags.telemetry, "telemetry", true, "Export traces and metrics to the log directory")

	chat := newChatCmd(flags)
	root.AddCommand(chat, newServeCmd(flags), newStatsCmd(flags))

	// chat is the default
	root.Flags().AddFlagSet(chat.Flags())
	root.RunE = chat.RunE

	return root
}

// loadConfig reads the layered configuration and applies the flags that
// were set explicitly on the command line
func loadConfig(cmd *cobra.Command, flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("webhook-url") {
		cfg.WebhookURL = flags.webhookURL
	}
	if changed("sender") {
		cfg.SenderID = flags.senderID
	}
	if changed("log-dir") {
		cfg.LogDir = flags.logDir
	}
	if changed("delivery-db") {
		cfg.DeliveryDB = flags.deliveryDB
	}
	if changed("debug") {
		cfg.Debug = flags.debug
	}
	if changed("telemetry") {
		cfg.Telemetry = flags.telemetry
	}
	return cfg, nil
}
