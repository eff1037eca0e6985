package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hybrid-diagnosis-engine/internal/config"
	"github.com/hybrid-diagnosis-engine/internal/domain"
	"github.com/hybrid-diagnosis-engine/internal/registry"
)

var (
	configPath string

	cfg    *domain.Config
	logger *logrus.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Hybrid clinical diagnosis engine",
	Long: `diagnose scores a clinical case for Autoimmune Encephalitis (AE) or
Pemphigus Vulgaris (PV) with the fitted model ensemble, the clinical guardrail
and, for AE, an optional imaging study.

Models are read from models.dir at startup; missing artifacts degrade gracefully.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var opts []config.Option
		if configPath != "" {
			opts = append(opts, config.WithConfigFile(configPath))
		}
		manager, err := config.NewManager(opts...)
		if err != nil {
			return err
		}
		if err := manager.Validate(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		cfg = manager.GetConfig()
		logger = config.NewLogger(cfg.Logging)
		if used := manager.ConfigFileUsed(); used != "" {
			logger.WithField("file", used).Debug("Configuration loaded")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file (default: ./config.yaml)")

	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadRegistry() *registry.Registry {
	return registry.Load(cfg.Models.Dir, logger,
		registry.WithSerializedAccess(cfg.Inference.SerializeModels))
}
