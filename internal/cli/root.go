// Package cli wires the cobra command tree of the gradkit binary.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gradkit/gradkit/internal/observability/logging"
	"github.com/gradkit/gradkit/pkg/config"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "gradkit",
	Short: "gradkit - event-driven training orchestration",
	Long: `gradkit drives training and evaluation passes over a model: epoch and
iteration events, metric histories, batch-loading statistics, gradient
clipping, loss scaling, and periodic checkpointing.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		logger, err = logging.NewZapLogger(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

// Execute runs the command tree
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml)")
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newVersionCmd())
}
