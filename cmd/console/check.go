package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/chat-console/internal/backend"
	"github.com/capitalize-ai/chat-console/pkg/logger"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the chatbot backend is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		client := backend.NewClient(backend.Config{
			BaseURL: cfg.BackendURL,
			Timeout: cfg.BackendTimeout,
		}, logger.NewNop())

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		if err := client.Ping(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "backend %s is healthy\n", cfg.BackendURL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
