// Package main is the entry point for the chat console gateway.
package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/chat-console/internal/config"
)

var rootCmd = &cobra.Command{
	Use:          "console",
	Short:        "Chat console gateway",
	Long:         `Streams assistant responses from the chatbot backend to the browser page.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(loadConfig(cmd))
	},
}

// loadConfig reads the environment, then applies any flags that were set.
func loadConfig(cmd *cobra.Command) *config.Config {
	cfg := config.Load()

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.ServerPort, _ = flags.GetString("port")
	}
	if flags.Changed("backend-url") {
		url, _ := flags.GetString("backend-url")
		cfg.BackendURL = strings.TrimRight(url, "/")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	return cfg
}

func init() {
	rootCmd.PersistentFlags().StringP("port", "p", "", "listen port (overrides PORT)")
	rootCmd.PersistentFlags().String("backend-url", "", "chatbot backend base URL (overrides BACKEND_URL)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "log level (overrides LOG_LEVEL)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
