package main

import (
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hybrid-diagnosis-engine/internal/domain"
)

// modelsCmd reports which artifacts loaded
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List loaded model artifacts",
	Args:  cobra.NoArgs,
	RunE:  runModels,
}

var modelRoles = []domain.ModelKey{
	domain.ModelRandomForest,
	domain.ModelXGBoost,
	domain.ModelLightGBM,
	domain.ModelMeta,
	domain.ModelCNN,
}

func runModels(cmd *cobra.Command, args []string) error {
	models := loadRegistry()
	explainers := models.Explainers()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "MODEL\tLOADED\tEXPLAINER\n")
	for _, key := range modelRoles {
		fmt.Fprintf(w, "%s\t%v\t%v\n", key, models.Has(key), slices.Contains(explainers, key))
	}
	return w.Flush()
}
