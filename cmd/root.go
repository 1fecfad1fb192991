/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "relaygram",
	Short: "Relay Telegram chats to a webhook backend",
	Long: `relaygram bridges a Telegram bot and a remote decision-making backend.

Every inbound update is normalized and POSTed to {SERVER_URL}/user/webhook;
the backend answers with a declarative action (reply, show_menu, send_photo,
edit_message, delete_message) that relaygram executes against the chat.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version
}
