package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/checkpoint"
	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/database"
	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/report"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Prints the progress stored in the checkpoint file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		store := checkpoint.New(cfg.Output.CheckpointFile, logger)

		cp, ok := store.Load()
		if !ok {
			fmt.Fprintf(out, "No usable checkpoint at %s; the next run starts fresh.\n", store.Path())
		} else {
			report.CheckpointStatus(out, store.Path(), cp)
		}

		if cfg.Database.URL == "" {
			return nil
		}
		db, err := database.Connect(cmd.Context(), database.DefaultConfig(cfg.Database.URL))
		if err != nil {
			return err
		}
		defer db.Close()

		counts, err := database.NewRecordRepository(db, "").CountByStatus(cmd.Context())
		if err != nil {
			return err
		}
		t := report.NewTable(out)
		t.SetTitle("PostgreSQL mirror")
		t.AppendHeader(table.Row{"Status", "Records"})
		t.AppendRow(table.Row{database.StatusAccepted, counts[database.StatusAccepted]})
		t.AppendRow(table.Row{database.StatusRejected, counts[database.StatusRejected]})
		t.Render()
		return nil
	},
}
