package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/config"
)

// New constructs a slog.Logger configured according to the provided settings.
// When cfg.File is set, records go to stdout and are appended to that file;
// the returned closer releases it.
func New(cfg config.LoggingConfig) (*slog.Logger, io.Closer, error) {
	out, closer, err := output(cfg.File)
	if err != nil {
		return nil, nil, err
	}

	handler, err := buildHandler(cfg, out)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}

	return slog.New(handler), closer, nil
}

func output(file string) (io.Writer, io.Closer, error) {
	if file == "" {
		return os.Stdout, nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return io.MultiWriter(os.Stdout, f), f, nil
}

func buildHandler(cfg config.LoggingConfig, out io.Writer) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: cfg.Level}

	switch cfg.Format {
	case "json":
		return slog.NewJSONHandler(out, opts), nil
	case "text":
		return slog.NewTextHandler(out, opts), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
