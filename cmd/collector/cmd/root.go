// Package cmd implements the collector command line.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/config"
	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/ingestion"
	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/logging"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFatal       = 1
	ExitInterrupted = 130
)

var (
	cfg       config.Config
	logger    *slog.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:           "collector",
	Short:         "collector gathers geolocated posts about the energy crisis into a labelled dataset.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger, logCloser, err = logging.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to init logger: %w", err)
		}
		return nil
	},
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if logCloser != nil {
		defer logCloser.Close()
	}
	if err == nil {
		return ExitOK
	}

	code := exitCode(err)
	if code == ExitInterrupted {
		return code
	}
	if logger != nil {
		logger.Error("collector failed", "error", err)
	} else {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("collector failed", "error", err)
	}
	return code
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ingestion.ErrInterrupted):
		return ExitInterrupted
	default:
		return ExitFatal
	}
}
