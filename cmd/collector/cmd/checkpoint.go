package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/checkpoint"
)

func init() {
	checkpointCmd.AddCommand(checkpointResetCmd)
	rootCmd.AddCommand(checkpointCmd)
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Manages the checkpoint file.",
}

var checkpointResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Deletes the checkpoint so the next run starts from zero.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := checkpoint.New(cfg.Output.CheckpointFile, logger)
		if err := store.Reset(); err != nil {
			return err
		}
		logger.Info("checkpoint reset", "path", store.Path())
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", store.Path())
		return nil
	},
}
