package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatbridge",
	Short: "Bridge between a support desk and messaging channels",
	Long:  "ChatBridge normalizes chat events from WhatsApp, Telegram, and VK into one canonical model, mirrors them into the support desk, and routes agent replies back to the right channel.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
