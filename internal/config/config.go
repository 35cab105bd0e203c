package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Logging    LoggingConfig
	Collection CollectionConfig
	Output     OutputConfig
	Pacing     PacingConfig
	Backoff    BackoffConfig
	Transport  TransportConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Archive    ArchiveConfig
	Monitor    MonitorConfig
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
	// File, when set, receives a copy of every record.
	File string
}

// CollectionConfig drives the engine loop and the query generator.
type CollectionConfig struct {
	Target            int
	DateStart         time.Time
	DateEnd           time.Time
	CheckpointEvery   int
	ComboRatio        float64
	RotateProbability float64
	MaxEmptyPages     int
}

// OutputConfig locates the files a run reads and writes.
type OutputConfig struct {
	OutputDir              string
	NonRelevantDir         string
	CheckpointFile         string
	LexiconFile            string
	AcceptedFlushThreshold int
	RejectedFlushThreshold int
}

// PacingConfig holds the randomized delays between transport calls.
type PacingConfig struct {
	MinPause      time.Duration
	MaxPause      time.Duration
	LongPauseProb float64
	LongPauseMin  time.Duration
	LongPauseMax  time.Duration
	MinSpacing    time.Duration
	PageTurnMin   time.Duration
	PageTurnMax   time.Duration
}

// BackoffConfig holds the waits applied after failed transport calls.
type BackoffConfig struct {
	RateLimitBase  time.Duration
	RateLimitCap   time.Duration
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	MaxRetries     int
	AuthMaxRetries int
	AuthRetryDelay time.Duration
}

// Transport kinds.
const (
	TransportAPI  = "api"
	TransportHTML = "html"
)

// TransportConfig selects and configures the connector.
type TransportConfig struct {
	Kind              string
	TwitterBaseURL    string
	TwitterBearer     string
	TwitterAPIKey     string
	TwitterAPISecret  string
	HTMLSearchBaseURL string
	UserAgent         string
	Timeout           time.Duration
}

// DatabaseConfig enables the PostgreSQL mirror when URL is set. Without
// DATABASE_URL the URL is built from the Cloud SQL settings.
type DatabaseConfig struct {
	URL      string
	Instance string
	User     string
	Password string
	Name     string
}

// RedisConfig enables the Redis dedup mirror when URL is set.
type RedisConfig struct {
	URL      string
	DedupKey string
}

// ArchiveConfig enables the S3 upload when Bucket is set.
type ArchiveConfig struct {
	Bucket       string
	Prefix       string
	Region       string
	UsePathStyle bool
}

// MonitorConfig enables the monitor HTTP server when Port is set.
type MonitorConfig struct {
	Port          string
	AdminPassword string
	JWTSecret     string
	TokenTTL      time.Duration
}

const (
	defaultLogFormat = "json"

	defaultTarget          = 10000
	defaultCheckpointEvery = 10
	defaultComboRatio      = 0.7
	defaultRotateProb      = 0.3
	defaultMaxEmptyPages   = 5

	defaultOutputDir      = "data/output"
	defaultNonRelevantDir = "data/nonrelevant"
	defaultCheckpointFile = "data/checkpoints/last_checkpoint.json"
	defaultAcceptedFlush  = 100
	defaultRejectedFlush  = 200

	defaultTwitterBaseURL = "https://api.twitter.com"
	defaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	defaultTimeout        = 30 * time.Second
	defaultDedupKey       = "collector:seen_ids"
	defaultArchivePrefix  = "collector/"
	defaultTokenTTL       = 24 * time.Hour
)

var (
	defaultDateStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	defaultDateEnd   = time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
)

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Collection: CollectionConfig{
			Target:            defaultTarget,
			DateStart:         defaultDateStart,
			DateEnd:           defaultDateEnd,
			CheckpointEvery:   defaultCheckpointEvery,
			ComboRatio:        defaultComboRatio,
			RotateProbability: defaultRotateProb,
			MaxEmptyPages:     defaultMaxEmptyPages,
		},
		Output: OutputConfig{
			OutputDir:              defaultOutputDir,
			NonRelevantDir:         defaultNonRelevantDir,
			CheckpointFile:         defaultCheckpointFile,
			AcceptedFlushThreshold: defaultAcceptedFlush,
			RejectedFlushThreshold: defaultRejectedFlush,
		},
		Pacing: PacingConfig{
			MinPause:      1500 * time.Millisecond,
			MaxPause:      5 * time.Second,
			LongPauseProb: 0.1,
			LongPauseMin:  8 * time.Second,
			LongPauseMax:  15 * time.Second,
			MinSpacing:    5 * time.Second,
			PageTurnMin:   8 * time.Second,
			PageTurnMax:   15 * time.Second,
		},
		Backoff: BackoffConfig{
			RateLimitBase:  60 * time.Second,
			RateLimitCap:   time.Hour,
			RetryBaseDelay: 30 * time.Second,
			RetryMaxDelay:  10 * time.Minute,
			MaxRetries:     5,
			AuthMaxRetries: 3,
			AuthRetryDelay: 30 * time.Second,
		},
		Transport: TransportConfig{
			Kind:           TransportAPI,
			TwitterBaseURL: defaultTwitterBaseURL,
			UserAgent:      defaultUserAgent,
			Timeout:        defaultTimeout,
		},
		Redis: RedisConfig{
			DedupKey: defaultDedupKey,
		},
		Archive: ArchiveConfig{
			Prefix: defaultArchivePrefix,
		},
		Monitor: MonitorConfig{
			TokenTTL: defaultTokenTTL,
		},
	}
}

// Load reads configuration from environment variables, applying defaults when
// values are not provided. The first invalid value is reported as
// "invalid NAME: reason".
func Load() (Config, error) {
	cfg := Default()
	env := &envReader{}

	env.logLevel("LOG_LEVEL", &cfg.Logging.Level)
	env.oneOf("LOG_FORMAT", &cfg.Logging.Format, "json", "text")
	env.str("LOG_FILE", &cfg.Logging.File)

	env.positiveInt("MINIMUM_TWEETS", &cfg.Collection.Target)
	env.date("DATE_START", &cfg.Collection.DateStart)
	env.date("DATE_END", &cfg.Collection.DateEnd)
	env.positiveInt("CHECKPOINT_EVERY", &cfg.Collection.CheckpointEvery)
	env.probability("COMBO_RATIO", &cfg.Collection.ComboRatio)
	env.probability("ROTATE_PROBABILITY", &cfg.Collection.RotateProbability)
	env.positiveInt("MAX_EMPTY_PAGES", &cfg.Collection.MaxEmptyPages)

	env.str("OUTPUT_DIR", &cfg.Output.OutputDir)
	env.str("NONRELEVANT_DIR", &cfg.Output.NonRelevantDir)
	env.str("CHECKPOINT_FILE", &cfg.Output.CheckpointFile)
	env.str("LEXICON_FILE", &cfg.Output.LexiconFile)
	env.positiveInt("ACCEPTED_FLUSH_THRESHOLD", &cfg.Output.AcceptedFlushThreshold)
	env.positiveInt("REJECTED_FLUSH_THRESHOLD", &cfg.Output.RejectedFlushThreshold)

	env.seconds("MIN_PAUSE", &cfg.Pacing.MinPause)
	env.seconds("MAX_PAUSE", &cfg.Pacing.MaxPause)
	env.probability("LONG_PAUSE_PROB", &cfg.Pacing.LongPauseProb)
	env.seconds("LONG_PAUSE_MIN", &cfg.Pacing.LongPauseMin)
	env.seconds("LONG_PAUSE_MAX", &cfg.Pacing.LongPauseMax)
	env.seconds("MIN_CALL_SPACING", &cfg.Pacing.MinSpacing)
	env.seconds("PAGE_TURN_MIN", &cfg.Pacing.PageTurnMin)
	env.seconds("PAGE_TURN_MAX", &cfg.Pacing.PageTurnMax)

	env.seconds("RATE_LIMIT_BASE", &cfg.Backoff.RateLimitBase)
	env.seconds("RATE_LIMIT_CAP", &cfg.Backoff.RateLimitCap)
	env.seconds("RETRY_BASE_DELAY", &cfg.Backoff.RetryBaseDelay)
	env.seconds("RETRY_MAX_DELAY", &cfg.Backoff.RetryMaxDelay)
	env.positiveInt("MAX_RETRIES", &cfg.Backoff.MaxRetries)
	env.positiveInt("AUTH_MAX_RETRIES", &cfg.Backoff.AuthMaxRetries)
	env.seconds("AUTH_RETRY_DELAY", &cfg.Backoff.AuthRetryDelay)

	env.oneOf("TRANSPORT", &cfg.Transport.Kind, TransportAPI, TransportHTML)
	env.str("TWITTER_API_BASE_URL", &cfg.Transport.TwitterBaseURL)
	env.str("TWITTER_BEARER_TOKEN", &cfg.Transport.TwitterBearer)
	env.str("TWITTER_API_KEY", &cfg.Transport.TwitterAPIKey)
	env.str("TWITTER_API_SECRET", &cfg.Transport.TwitterAPISecret)
	env.str("HTML_SEARCH_BASE_URL", &cfg.Transport.HTMLSearchBaseURL)
	env.str("USER_AGENT", &cfg.Transport.UserAgent)
	env.seconds("TRANSPORT_TIMEOUT", &cfg.Transport.Timeout)

	env.str("DATABASE_URL", &cfg.Database.URL)
	env.str("INSTANCE_CONNECTION_NAME", &cfg.Database.Instance)
	env.str("DB_USER", &cfg.Database.User)
	env.str("DB_PASSWORD", &cfg.Database.Password)
	env.str("DB_NAME", &cfg.Database.Name)
	env.str("REDIS_URL", &cfg.Redis.URL)
	env.str("REDIS_DEDUP_KEY", &cfg.Redis.DedupKey)

	env.str("ARCHIVE_S3_BUCKET", &cfg.Archive.Bucket)
	env.str("ARCHIVE_S3_PREFIX", &cfg.Archive.Prefix)
	env.str("AWS_REGION", &cfg.Archive.Region)
	env.boolean("ARCHIVE_S3_PATH_STYLE", &cfg.Archive.UsePathStyle)

	env.str("MONITOR_PORT", &cfg.Monitor.Port)
	env.str("MONITOR_ADMIN_PASSWORD", &cfg.Monitor.AdminPassword)
	env.str("MONITOR_JWT_SECRET", &cfg.Monitor.JWTSecret)
	env.duration("MONITOR_TOKEN_TTL", &cfg.Monitor.TokenTTL)

	if env.err != nil {
		return Config{}, env.err
	}
	if err := cfg.Database.resolve(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks relations between values. It runs again after CLI flags
// are applied.
func (c Config) Validate() error {
	if c.Collection.DateStart.After(c.Collection.DateEnd) {
		return fmt.Errorf("invalid DATE_START: %s is after DATE_END %s",
			c.Collection.DateStart.Format(time.DateOnly), c.Collection.DateEnd.Format(time.DateOnly))
	}
	if c.Collection.Target <= 0 {
		return fmt.Errorf("invalid MINIMUM_TWEETS: must be a positive integer")
	}
	if c.Pacing.MinPause > c.Pacing.MaxPause {
		return errors.New("invalid MIN_PAUSE: greater than MAX_PAUSE")
	}
	if c.Pacing.LongPauseMin > c.Pacing.LongPauseMax {
		return errors.New("invalid LONG_PAUSE_MIN: greater than LONG_PAUSE_MAX")
	}
	if c.Pacing.PageTurnMin > c.Pacing.PageTurnMax {
		return errors.New("invalid PAGE_TURN_MIN: greater than PAGE_TURN_MAX")
	}
	if c.Backoff.RateLimitBase > c.Backoff.RateLimitCap {
		return errors.New("invalid RATE_LIMIT_BASE: greater than RATE_LIMIT_CAP")
	}
	if c.Backoff.RetryBaseDelay > c.Backoff.RetryMaxDelay {
		return errors.New("invalid RETRY_BASE_DELAY: greater than RETRY_MAX_DELAY")
	}
	if c.Output.OutputDir == "" || c.Output.NonRelevantDir == "" || c.Output.CheckpointFile == "" {
		return errors.New("invalid OUTPUT_DIR: output, nonrelevant and checkpoint paths are required")
	}
	if c.Monitor.Port != "" && (c.Monitor.AdminPassword == "" || c.Monitor.JWTSecret == "") {
		return errors.New("invalid MONITOR_PORT: MONITOR_ADMIN_PASSWORD and MONITOR_JWT_SECRET are required")
	}
	return nil
}

// ValidateTransport checks that the selected connector has what it needs.
// Only the run command calls it.
func (c Config) ValidateTransport() error {
	switch c.Transport.Kind {
	case TransportAPI:
		hasKeys := c.Transport.TwitterAPIKey != "" && c.Transport.TwitterAPISecret != ""
		if c.Transport.TwitterBearer == "" && !hasKeys {
			return errors.New("invalid TWITTER_BEARER_TOKEN: set a bearer token or TWITTER_API_KEY and TWITTER_API_SECRET")
		}
	case TransportHTML:
		if c.Transport.HTMLSearchBaseURL == "" {
			return errors.New("invalid HTML_SEARCH_BASE_URL: required when TRANSPORT=html")
		}
	default:
		return fmt.Errorf("invalid TRANSPORT: unknown kind %q", c.Transport.Kind)
	}
	return nil
}

// envReader parses variables into typed fields and keeps the first error.
type envReader struct {
	err error
}

func (r *envReader) lookup(key string) (string, bool) {
	if r.err != nil {
		return "", false
	}
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func (r *envReader) fail(key string, err error) {
	r.err = fmt.Errorf("invalid %s: %w", key, err)
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.lookup(key); ok {
		*dst = v
	}
}

func (r *envReader) oneOf(key string, dst *string, allowed ...string) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	for _, a := range allowed {
		if v == a {
			*dst = v
			return
		}
	}
	r.fail(key, fmt.Errorf("must be one of %s", strings.Join(allowed, ", ")))
}

func (r *envReader) positiveInt(key string, dst *int) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		r.fail(key, errors.New("must be a positive integer"))
		return
	}
	*dst = n
}

func (r *envReader) probability(key string, dst *float64) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	p, err := strconv.ParseFloat(v, 64)
	if err != nil || p < 0 || p > 1 {
		r.fail(key, errors.New("must be a number between 0 and 1"))
		return
	}
	*dst = p
}

func (r *envReader) seconds(key string, dst *time.Duration) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	d, err := parseSeconds(v)
	if err != nil {
		r.fail(key, err)
		return
	}
	*dst = d
}

func (r *envReader) duration(key string, dst *time.Duration) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		r.fail(key, errors.New("must be a positive duration such as 12h"))
		return
	}
	*dst = d
}

func (r *envReader) date(key string, dst *time.Time) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	d, err := ParseDate(v)
	if err != nil {
		r.fail(key, err)
		return
	}
	*dst = d
}

func (r *envReader) boolean(key string, dst *bool) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, errors.New("must be true or false"))
		return
	}
	*dst = b
}

func (r *envReader) logLevel(key string, dst *slog.Level) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	level, err := parseLogLevel(v)
	if err != nil {
		r.fail(key, err)
		return
	}
	*dst = level
}

// ParseDate parses a YYYY-MM-DD date in UTC.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.ParseInLocation(time.DateOnly, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("must be a YYYY-MM-DD date")
	}
	return d, nil
}

// parseSeconds accepts fractional seconds such as "1.5".
func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative number of seconds")
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
