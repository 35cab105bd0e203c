package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/archive"
	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/auth"
	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/checkpoint"
	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/config"
	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/database"
	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/filter"
	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/ingestion"
	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/lexicon"
	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/metrics"
	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/models"
	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/query"
	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/report"
	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/server"
	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/sink"
)

const (
	acceptedPrefix = "tweets_"
	rejectedPrefix = "nonrelevant_"
	stampLayout    = "20060102_150405"
	archiveTimeout = 5 * time.Minute
)

type runFlags struct {
	target         int
	startDate      string
	endDate        string
	outputDir      string
	nonRelevantDir string
	checkpointFile string
}

var flags runFlags

func init() {
	f := runCmd.Flags()
	f.IntVar(&flags.target, "target", 0, "accepted records to collect (overrides MINIMUM_TWEETS)")
	f.StringVar(&flags.startDate, "start-date", "", "first day searched, YYYY-MM-DD (overrides DATE_START)")
	f.StringVar(&flags.endDate, "end-date", "", "last day searched, YYYY-MM-DD (overrides DATE_END)")
	f.StringVar(&flags.outputDir, "output-dir", "", "directory for accepted records (overrides OUTPUT_DIR)")
	f.StringVar(&flags.nonRelevantDir, "nonrelevant-dir", "", "directory for rejected records (overrides NONRELEVANT_DIR)")
	f.StringVar(&flags.checkpointFile, "checkpoint-file", "", "checkpoint path (overrides CHECKPOINT_FILE)")

	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collects records until the target is reached, resuming from the last checkpoint.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyRunFlags(&cfg, cmd, flags); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runCollection(ctx, cmd, cfg)
	},
}

// applyRunFlags overrides cfg with the flags the user set and revalidates it.
func applyRunFlags(c *config.Config, cmd *cobra.Command, f runFlags) error {
	changed := cmd.Flags().Changed

	if changed("target") {
		c.Collection.Target = f.target
	}
	if changed("start-date") {
		d, err := config.ParseDate(f.startDate)
		if err != nil {
			return fmt.Errorf("invalid --start-date: %w", err)
		}
		c.Collection.DateStart = d
	}
	if changed("end-date") {
		d, err := config.ParseDate(f.endDate)
		if err != nil {
			return fmt.Errorf("invalid --end-date: %w", err)
		}
		c.Collection.DateEnd = d
	}
	if changed("output-dir") {
		c.Output.OutputDir = f.outputDir
	}
	if changed("nonrelevant-dir") {
		c.Output.NonRelevantDir = f.nonRelevantDir
	}
	if changed("checkpoint-file") {
		c.Output.CheckpointFile = f.checkpointFile
	}

	if err := c.Validate(); err != nil {
		return err
	}
	return c.ValidateTransport()
}

func runCollection(ctx context.Context, cmd *cobra.Command, cfg config.Config) error {
	runID := uuid.NewString()
	log := logger.With("run_id", runID)
	startedAt := time.Now()
	stamp := startedAt.Format(stampLayout)
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))

	lex, err := lexicon.Load(cfg.Output.LexiconFile)
	if err != nil {
		return fmt.Errorf("failed to load lexicon: %w", err)
	}

	conn, err := newConnector(cfg.Transport, log)
	if err != nil {
		return fmt.Errorf("failed to create connector: %w", err)
	}

	collector, err := metrics.NewCollector()
	if err != nil {
		return fmt.Errorf("failed to create metrics collector: %w", err)
	}

	accepted, err := sink.New(sink.Options{
		Name:      "accepted",
		Dir:       cfg.Output.OutputDir,
		Base:      acceptedPrefix + stamp,
		Threshold: cfg.Output.AcceptedFlushThreshold,
	}, sink.AcceptedCodec, log)
	if err != nil {
		return err
	}
	rejected, err := sink.New(sink.Options{
		Name:      "rejected",
		Dir:       cfg.Output.NonRelevantDir,
		Base:      rejectedPrefix + stamp,
		Threshold: cfg.Output.RejectedFlushThreshold,
	}, sink.RejectedCodec, log)
	if err != nil {
		return err
	}
	accepted.SetObserver(collector)
	rejected.SetObserver(collector)

	store := checkpoint.New(cfg.Output.CheckpointFile, log)
	seeders := []ingestion.IDSource{
		sink.PriorOutput{Dirs: []string{cfg.Output.OutputDir, cfg.Output.NonRelevantDir}},
	}
	var checks []server.HealthCheck

	if cfg.Database.URL != "" {
		db, err := openDatabase(ctx, cfg.Database.URL, log)
		if err != nil {
			return err
		}
		defer db.Close()

		repo := database.NewRecordRepository(db, runID)
		accepted.SetMirror(repo.AcceptedMirror())
		rejected.SetMirror(repo.RejectedMirror())
		seeders = append(seeders, repo)
		checks = append(checks, server.HealthCheck{
			Name:  "postgres",
			Check: func(ctx context.Context) error { return database.HealthCheck(ctx, db) },
		})
		log.Info("postgres mirror enabled")
	}

	deps := ingestion.EngineDeps{
		Connector:   conn,
		Queries:     query.NewGenerator(lex, query.Options{ComboRatio: cfg.Collection.ComboRatio, Start: cfg.Collection.DateStart, End: cfg.Collection.DateEnd}, rng, log),
		Filter:      filter.New(lex),
		Controller:  ingestion.NewController(pacingPolicy(cfg.Pacing), backoffPolicy(cfg.Backoff), ingestion.SystemClock(), rng, log),
		Accepted:    accepted,
		Rejected:    rejected,
		Checkpoints: store,
		Recorder:    collector,
		Seeders:     seeders,
		Rand:        rng,
	}

	if cfg.Redis.URL != "" {
		mirror, err := ingestion.NewRedisDedupMirror(ctx, cfg.Redis.URL, cfg.Redis.DedupKey)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer mirror.Close()
		deps.Mirror = mirror
		checks = append(checks, server.HealthCheck{Name: "redis", Check: mirror.Ping})
		log.Info("redis dedup mirror enabled", "key", cfg.Redis.DedupKey)
	}

	engine, err := ingestion.NewEngine(ingestion.EngineConfig{
		RunID:             runID,
		Target:            cfg.Collection.Target,
		CheckpointEvery:   cfg.Collection.CheckpointEvery,
		ProgressEvery:     100,
		RotateProbability: cfg.Collection.RotateProbability,
		MaxEmptyPages:     cfg.Collection.MaxEmptyPages,
		Auth: ingestion.RetryPolicy{
			MaxAttempts: cfg.Backoff.AuthMaxRetries,
			BaseDelay:   cfg.Backoff.AuthRetryDelay,
		},
	}, deps, log)
	if err != nil {
		return err
	}

	if cfg.Monitor.Port != "" {
		srv, err := startMonitor(cfg.Monitor, engine.State(), collector, log, checks...)
		if err != nil {
			return err
		}
		defer srv.Shutdown(context.WithoutCancel(ctx))
	}

	log.Info("starting collection",
		"target", cfg.Collection.Target,
		"transport", conn.Name(),
		"from", cfg.Collection.DateStart.Format(time.DateOnly),
		"to", cfg.Collection.DateEnd.Format(time.DateOnly),
		"output", filepath.Join(cfg.Output.OutputDir, acceptedPrefix+stamp),
	)

	runErr := engine.Run(ctx)
	report.RunSummary(cmd.OutOrStdout(), engine.State().Snapshot(), time.Since(startedAt))

	if cfg.Archive.Bucket != "" {
		files := append(accepted.Files(), rejected.Files()...)
		files = append(files, store.Path())
		archiveRun(context.WithoutCancel(ctx), cfg.Archive, runID, files, log)
	}
	return runErr
}

func newConnector(c config.TransportConfig, log *slog.Logger) (ingestion.Connector, error) {
	switch c.Kind {
	case config.TransportHTML:
		conn, err := ingestion.NewHTMLConnector(ingestion.HTMLConfig{
			BaseURL:   c.HTMLSearchBaseURL,
			UserAgent: c.UserAgent,
			Timeout:   c.Timeout,
		}, log)
		if err != nil {
			return nil, err
		}
		return conn, nil
	case config.TransportAPI:
		return ingestion.NewTwitterConnector(ingestion.TwitterConfig{
			BaseURL:     c.TwitterBaseURL,
			BearerToken: c.TwitterBearer,
			APIKey:      c.TwitterAPIKey,
			APISecret:   c.TwitterAPISecret,
			UserAgent:   c.UserAgent,
			Timeout:     c.Timeout,
		}, log), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", c.Kind)
	}
}

func pacingPolicy(p config.PacingConfig) ingestion.PacingPolicy {
	return ingestion.PacingPolicy{
		MinPause:      p.MinPause,
		MaxPause:      p.MaxPause,
		LongPauseProb: p.LongPauseProb,
		LongPauseMin:  p.LongPauseMin,
		LongPauseMax:  p.LongPauseMax,
		MinSpacing:    p.MinSpacing,
		PageTurnMin:   p.PageTurnMin,
		PageTurnMax:   p.PageTurnMax,
	}
}

func backoffPolicy(b config.BackoffConfig) ingestion.BackoffPolicy {
	return ingestion.BackoffPolicy{
		RateLimitBase:          b.RateLimitBase,
		RateLimitCap:           b.RateLimitCap,
		TransientBase:          b.RetryBaseDelay,
		TransientCap:           b.RetryMaxDelay,
		MaxConsecutiveFailures: b.MaxRetries,
	}
}

func openDatabase(ctx context.Context, url string, log *slog.Logger) (*sql.DB, error) {
	db, err := database.Connect(ctx, database.DefaultConfig(url))
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(ctx, db, database.Migrations(), log); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("connected to postgres", "url", database.RedactURL(url))
	return db, nil
}

func startMonitor(c config.MonitorConfig, state server.StatusProvider, collector *metrics.Collector, log *slog.Logger, checks ...server.HealthCheck) (*server.Server, error) {
	authenticator, err := auth.NewAuthenticator(auth.Config{
		JWTSecret:     c.JWTSecret,
		AdminPassword: c.AdminPassword,
		TokenDuration: c.TokenTTL,
	})
	if err != nil {
		return nil, err
	}

	srv := server.New(server.DefaultConfig(c.Port), log, server.NewHandler(state, authenticator, collector, log, checks...))
	go func() {
		if err := srv.Start(); err != nil {
			log.Error("monitor server stopped", "error", err)
		}
	}()
	return srv, nil
}

func archiveRun(ctx context.Context, c config.ArchiveConfig, runID string, files []string, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, archiveTimeout)
	defer cancel()

	uploader, err := archive.New(ctx, archive.Config{
		Bucket:       c.Bucket,
		Prefix:       c.Prefix,
		Region:       c.Region,
		UsePathStyle: c.UsePathStyle,
	}, log)
	if err != nil {
		log.Error("failed to create archive uploader", "kind", models.ErrorKindPersistenceFailure, "error", err)
		return
	}
	keys, err := uploader.UploadRun(ctx, runID, files)
	if err != nil {
		log.Error("failed to archive run", "kind", models.ErrorKindPersistenceFailure, "uploaded", len(keys), "error", err)
		return
	}
	log.Info("run archived", "bucket", c.Bucket, "files", len(keys))
}
