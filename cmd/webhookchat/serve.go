package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"WebhookChat/internal/chatbot"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var listen string
	var serialize bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the browser widget over HTTP and websockets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.ListenAddr = listen
			}
			if cmd.Flags().Changed("serialize") {
				cfg.SerializeSubmissions = serialize
			}

			bot, err := chatbot.NewChatBot(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer bot.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Widget available at http://%s/\n", cfg.ListenAddr)
			return bot.Serve(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:8080", "Listen address")
	cmd.Flags().BoolVar(&serialize, "serialize", true, "Disable input while a reply is pending")
	return cmd
}
