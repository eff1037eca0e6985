package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hybrid-diagnosis-engine/internal/store"
)

var (
	historyLimit  int
	historyOffset int
	historyJSON   bool
	historyDelete string
)

// historyCmd lists stored sessions
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List saved diagnostic sessions",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of sessions")
	historyCmd.Flags().IntVar(&historyOffset, "offset", 0, "Number of sessions to skip")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Export every session as JSON")
	historyCmd.Flags().StringVar(&historyDelete, "delete", "", "Delete the session with this ID")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sessions, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer sessions.Close()

	if historyDelete != "" {
		if err := sessions.Delete(ctx, historyDelete); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", historyDelete)
		return nil
	}

	if historyJSON {
		return sessions.ExportJSON(ctx, cmd.OutOrStdout())
	}

	list, err := sessions.List(ctx, historyLimit, historyOffset)
	if err != nil {
		return err
	}
	total, err := sessions.Count(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions stored")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tDISEASE\tLABEL\tCONFIDENCE\tCREATED\n")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\n",
			s.ID, s.Disease, s.Label, s.Confidence, s.CreatedAt.Format("2006-01-02 15:04"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Showing %d of %d sessions\n", len(list), total)
	return nil
}
