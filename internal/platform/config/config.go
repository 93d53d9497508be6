package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/lueurxax/workflow-popularity/internal/platform/worker"
)

// ErrInvalidConfig is returned when a loaded value is out of range.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	PostgresDSN string `env:"POSTGRES_DSN,required"`
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8080"`
	SourcesFile string `env:"SOURCES_FILE"`

	// Database pool
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"10"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"2"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`

	// Scoring and analytics
	VideoViewWeight          float64       `env:"VIDEO_VIEW_WEIGHT" envDefault:"1"`
	VideoLikeWeight          float64       `env:"VIDEO_LIKE_WEIGHT" envDefault:"5"`
	VideoCommentWeight       float64       `env:"VIDEO_COMMENT_WEIGHT" envDefault:"10"`
	ForumViewWeight          float64       `env:"FORUM_VIEW_WEIGHT" envDefault:"1"`
	ForumReplyWeight         float64       `env:"FORUM_REPLY_WEIGHT" envDefault:"8"`
	TrendInterestWeight      float64       `env:"TREND_INTEREST_WEIGHT" envDefault:"1"`
	DecayHalfLifeDays        float64       `env:"DECAY_HALF_LIFE_DAYS" envDefault:"14"`
	TitleSimilarityThreshold float64       `env:"TITLE_SIMILARITY_THRESHOLD" envDefault:"0.8"`
	DivergenceThreshold      float64       `env:"DIVERGENCE_THRESHOLD" envDefault:"100"`
	DivergenceTolerance      time.Duration `env:"DIVERGENCE_TOLERANCE" envDefault:"48h"`
	RegressionWindow         int           `env:"REGRESSION_WINDOW" envDefault:"10"`
	MinHistory               int           `env:"MIN_HISTORY" envDefault:"3"`
	HighConfidenceMinPoints  int           `env:"HIGH_CONFIDENCE_MIN_POINTS" envDefault:"5"`
	HighConfidenceMaxCV      float64       `env:"HIGH_CONFIDENCE_MAX_CV" envDefault:"0.10"`
	MediumConfidenceMaxCV    float64       `env:"MEDIUM_CONFIDENCE_MAX_CV" envDefault:"0.30"`
	FlatSlopeRatio           float64       `env:"FLAT_SLOPE_RATIO" envDefault:"0.01"`

	// Schedule (UTC)
	SchedulerTickInterval  time.Duration `env:"SCHEDULER_TICK_INTERVAL" envDefault:"5m"`
	SchedulerCatchupWindow time.Duration `env:"SCHEDULER_CATCHUP_WINDOW" envDefault:"6h"`
	DailyCollectionHour    int           `env:"DAILY_COLLECTION_HOUR" envDefault:"2"`
	WeeklyAnalyticsDay     string        `env:"WEEKLY_ANALYTICS_DAY" envDefault:"sunday"`
	WeeklyAnalyticsHour    int           `env:"WEEKLY_ANALYTICS_HOUR" envDefault:"3"`
	StaleRunAfter          time.Duration `env:"STALE_RUN_AFTER" envDefault:"2h"`

	// Collection
	AdapterTimeout time.Duration `env:"ADAPTER_TIMEOUT" envDefault:"5m"`
	FetchLimit     int           `env:"FETCH_LIMIT" envDefault:"200"`
	DeepFetchLimit int           `env:"DEEP_FETCH_LIMIT" envDefault:"1000"`

	// Retry shared by all adapters
	RetryAttempts   int           `env:"SOURCE_RETRY_ATTEMPTS" envDefault:"3"`
	RetryBaseDelay  time.Duration `env:"SOURCE_RETRY_BASE_DELAY" envDefault:"2s"`
	RetryMultiplier float64       `env:"SOURCE_RETRY_MULTIPLIER" envDefault:"2"`
	RetryJitter     float64       `env:"SOURCE_RETRY_JITTER" envDefault:"0.5"`

	// YouTube
	YouTubeAPIKey     string   `env:"YOUTUBE_API_KEY"`
	YouTubeQueries    []string `env:"YOUTUBE_QUERIES" envSeparator:","`
	YouTubeCountries  []string `env:"YOUTUBE_COUNTRIES" envSeparator:","`
	YouTubeChannelIDs []string `env:"YOUTUBE_CHANNEL_IDS" envSeparator:","`
	YouTubePages      int      `env:"YOUTUBE_PAGES_PER_QUERY" envDefault:"1"`
	YouTubeMinViews   int64    `env:"YOUTUBE_MIN_VIEWS" envDefault:"10"`
	YouTubeRPM        int      `env:"YOUTUBE_RPM" envDefault:"120"`
	YouTubeFeedRPM    int      `env:"YOUTUBE_FEED_RPM" envDefault:"30"`

	// Forum
	ForumEnabled     bool          `env:"FORUM_ENABLED" envDefault:"true"`
	ForumBaseURL     string        `env:"FORUM_BASE_URL" envDefault:"https://community.n8n.io"`
	ForumAPIKey      string        `env:"FORUM_API_KEY"`
	ForumAPIUsername string        `env:"FORUM_API_USERNAME"`
	ForumPages       int           `env:"FORUM_PAGES" envDefault:"5"`
	ForumRPM         int           `env:"FORUM_RPM" envDefault:"30"`
	ForumTimeout     time.Duration `env:"FORUM_TIMEOUT" envDefault:"30s"`

	// Trends
	TrendsEnabled   bool          `env:"TRENDS_ENABLED" envDefault:"true"`
	TrendsKeywords  []string      `env:"TRENDS_KEYWORDS" envSeparator:","`
	TrendsCountries []string      `env:"TRENDS_COUNTRIES" envSeparator:","`
	TrendsTimeframe string        `env:"TRENDS_TIMEFRAME" envDefault:"today 3-m"`
	TrendsRPM       int           `env:"TRENDS_RPM" envDefault:"20"`
	TrendsTimeout   time.Duration `env:"TRENDS_TIMEOUT" envDefault:"30s"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	if cfg.SourcesFile != "" {
		catalog, err := LoadCatalog(cfg.SourcesFile)
		if err != nil {
			return nil, err
		}

		catalog.apply(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks ranges that env tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	for name, w := range map[string]float64{
		"VIDEO_VIEW_WEIGHT":     c.VideoViewWeight,
		"VIDEO_LIKE_WEIGHT":     c.VideoLikeWeight,
		"VIDEO_COMMENT_WEIGHT":  c.VideoCommentWeight,
		"FORUM_VIEW_WEIGHT":     c.ForumViewWeight,
		"FORUM_REPLY_WEIGHT":    c.ForumReplyWeight,
		"TREND_INTEREST_WEIGHT": c.TrendInterestWeight,
	} {
		if w < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}

	if c.DecayHalfLifeDays < 0 {
		errs = append(errs, errors.New("DECAY_HALF_LIFE_DAYS must not be negative"))
	}

	if c.TitleSimilarityThreshold <= 0 || c.TitleSimilarityThreshold > 1 {
		errs = append(errs, errors.New("TITLE_SIMILARITY_THRESHOLD must be in (0, 1]"))
	}

	if c.DivergenceThreshold < 0 {
		errs = append(errs, errors.New("DIVERGENCE_THRESHOLD must not be negative"))
	}

	if c.DivergenceTolerance <= 0 {
		errs = append(errs, errors.New("DIVERGENCE_TOLERANCE must be positive"))
	}

	if c.MinHistory < 2 {
		errs = append(errs, errors.New("MIN_HISTORY must be at least 2"))
	}

	if c.RegressionWindow < c.MinHistory {
		errs = append(errs, errors.New("REGRESSION_WINDOW must not be below MIN_HISTORY"))
	}

	if c.HighConfidenceMaxCV > c.MediumConfidenceMaxCV {
		errs = append(errs, errors.New("HIGH_CONFIDENCE_MAX_CV must not exceed MEDIUM_CONFIDENCE_MAX_CV"))
	}

	if !validHour(c.DailyCollectionHour) || !validHour(c.WeeklyAnalyticsHour) {
		errs = append(errs, fmt.Errorf("collection hours must be in [0, %d)", worker.HoursPerDay))
	}

	if _, err := parseWeekday(c.WeeklyAnalyticsDay); err != nil {
		errs = append(errs, err)
	}

	if c.FetchLimit <= 0 || c.DeepFetchLimit < c.FetchLimit {
		errs = append(errs, errors.New("FETCH_LIMIT must be positive and not exceed DEEP_FETCH_LIMIT"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}

	return nil
}

// IsLocal reports whether the process runs in a developer environment.
func (c *Config) IsLocal() bool {
	return c.AppEnv == "local"
}

func validHour(h int) bool {
	return h >= 0 && h < worker.HoursPerDay
}

func parseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))

	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}

	return time.Sunday, fmt.Errorf("WEEKLY_ANALYTICS_DAY %q is not a weekday", s)
}
