package main

import (
	"time"

	"github.com/spf13/cobra"

	"WebhookChat/internal/chatbot"
	"WebhookChat/internal/deliverylog"
)

func newStatsCmd(flags *rootFlags) *cobra.Command {
	var since time.Duration
	var recent int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the delivery log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if cfg.DeliveryDB == "" {
				return chatbot.ErrNoDeliveryLog
			}

			store, err := deliverylog.Open(cfg.DeliveryDB)
			if err != nil {
				return err
			}
			defer store.Close()

			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}
			return chatbot.WriteStats(cmd.Context(), store, cmd.OutOrStdout(), from, recent)
		},
	}

	cmd.Flags().DurationVar(&since, "since", 0, "Only count deliveries started within this window (0 = all)")
	cmd.Flags().IntVar(&recent, "recent", 10, "Number of recent deliveries to list")
	return cmd
}
