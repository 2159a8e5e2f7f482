package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/plansight/enroll-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "enroll-cli",
	Short: "Medicare Advantage enrollment warehouse",
	Long:  "Loads the monthly CMS enrollment publications, resolves plan identities across yearly crosswalks, derives reporting dimensions, and reconciles the published totals with a full audit trail.",
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
