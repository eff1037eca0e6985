package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/hybrid-diagnosis-engine/internal/domain"
	"github.com/hybrid-diagnosis-engine/internal/service"
	"github.com/hybrid-diagnosis-engine/internal/store"
)

var (
	predictDisease string
	predictData    string
	predictImage   string
	predictSave    bool
)

// predictCmd scores a single case
var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Score a clinical case",
	Long: `Score a clinical case read from a JSON object of feature values.

Examples:
  diagnose predict --disease AE --data case.json --image mri.png
  diagnose predict --disease PV --data case.json --save`,
	Args: cobra.NoArgs,
	RunE: runPredict,
}

func init() {
	predictCmd.Flags().StringVar(&predictDisease, "disease", "AE", "Disease category (AE or PV)")
	predictCmd.Flags().StringVar(&predictData, "data", "", "JSON file with the clinical values (required)")
	predictCmd.Flags().StringVar(&predictImage, "image", "", "Imaging study for AE fusion")
	predictCmd.Flags().BoolVar(&predictSave, "save", false, "Persist the result to the session store")
	predictCmd.MarkFlagRequired("data")
}

func runPredict(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	disease, err := domain.ParseDiseaseCategory(predictDisease)
	if err != nil {
		return err
	}
	clinical, err := readCase(predictData)
	if err != nil {
		return err
	}

	engine, err := service.NewDiagnosticEngine(logger, loadRegistry(), cfg)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}

	result, err := engine.Predict(ctx, clinical, predictImage, disease)
	if err != nil {
		return err
	}

	if predictSave {
		sessions, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to open session store: %w", err)
		}
		defer sessions.Close()

		session := domain.NewSession("", predictImage, result)
		if err := sessions.Save(ctx, session); err != nil {
			return err
		}
		logger.WithField("session_id", session.ID).Info("Session saved")
	}

	return writeJSON(cmd, result)
}

// readCase decodes the clinical values. Non-numeric entries are left to the
// feature engineer, which coerces or drops them.
func readCase(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read case file: %w", err)
	}
	var clinical map[string]any
	if err := json.Unmarshal(data, &clinical); err != nil {
		return nil, fmt.Errorf("failed to parse case file: %w", err)
	}
	if clinical == nil {
		clinical = map[string]any{}
	}
	return clinical, nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
