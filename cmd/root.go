package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/litscope/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "litscope",
	Short: "Interactive workbench for literature and trial search results",
	Long:  "Searches PubMed and ClinicalTrials.gov, attaches Claude-computed columns to result tables, and tracks provenance of derived row sets for comparison.",
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
