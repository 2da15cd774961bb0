package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/maclay/research-assistant/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "research-assistant",
	Short: "AI market-research report pipeline",
	Long:  "Turns a short research brief into a long-form market-research report: collects market data via a Gemini-compatible generation service, mines local reference documents, analyzes cases, and verifies every link in the delivered report.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
