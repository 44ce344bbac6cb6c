package main

import (
	"os"

	"github.com/spf13/cobra"

	"WebhookChat/internal/chatbot"
)

func newChatCmd(flags *rootFlags) *cobra.Command {
	var serialize bool
	var timeLayout string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat in the terminal (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("serialize") {
				cfg.SerializeSubmissions = serialize
			}
			if cmd.Flags().Changed("time-layout") {
				cfg.TimeLayout = timeLayout
			}

			bot, err := chatbot.NewChatBot(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer bot.Close()

			return bot.RunTerminal(cmd.Context(), os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().BoolVar(&serialize, "serialize", true, "Disable input while a reply is pending")
	cmd.Flags().StringVar(&timeLayout, "time-layout", "15:04", "Go time layout for message timestamps")
	return cmd
}
