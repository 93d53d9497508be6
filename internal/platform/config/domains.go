package config

import (
	"time"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
)

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	PostgresDSN       string
	MaxConnections    int32
	MinConnections    int32
	MaxConnIdleTime   time.Duration
	MaxConnLifetime   time.Duration
	HealthCheckPeriod time.Duration
}

// ScheduleConfig holds the UTC calendar of the recurring jobs.
type ScheduleConfig struct {
	TickInterval  time.Duration
	CatchUp       time.Duration
	DailyHour     int
	WeeklyDay     time.Weekday
	WeeklyHour    int
	StaleRunAfter time.Duration
}

// CollectionConfig holds orchestrator limits.
type CollectionConfig struct {
	AdapterTimeout time.Duration
	FetchLimit     int
	DeepFetchLimit int
}

// RetryConfig holds the adapter backoff policy.
type RetryConfig struct {
	Attempts   int
	BaseDelay  time.Duration
	Multiplier float64
	Jitter     float64
}

// YouTubeConfig holds video source settings. An empty API key selects the
// channel feed fallback.
type YouTubeConfig struct {
	APIKey     string
	Queries    []string
	Countries  []string
	ChannelIDs []string
	Pages      int
	MinViews   int64
	RPM        int
	FeedRPM    int
}

// ForumConfig holds Discourse forum settings.
type ForumConfig struct {
	Enabled     bool
	BaseURL     string
	APIKey      string
	APIUsername string
	Pages       int
	RPM         int
	Timeout     time.Duration
}

// TrendsConfig holds search trend settings.
type TrendsConfig struct {
	Enabled   bool
	Keywords  []string
	Countries []string
	Timeframe string
	RPM       int
	Timeout   time.Duration
}

func (c *Config) DatabaseCfg() DatabaseConfig {
	return DatabaseConfig{
		PostgresDSN:       c.PostgresDSN,
		MaxConnections:    c.DBMaxConnections,
		MinConnections:    c.DBMinConnections,
		MaxConnIdleTime:   c.DBMaxConnIdleTime,
		MaxConnLifetime:   c.DBMaxConnLifetime,
		HealthCheckPeriod: c.DBHealthCheckPeriod,
	}
}

// ScheduleCfg returns the schedule. Validate has already checked the weekday.
func (c *Config) ScheduleCfg() ScheduleConfig {
	day, _ := parseWeekday(c.WeeklyAnalyticsDay) //nolint:errcheck // checked by Validate

	return ScheduleConfig{
		TickInterval:  c.SchedulerTickInterval,
		CatchUp:       c.SchedulerCatchupWindow,
		DailyHour:     c.DailyCollectionHour,
		WeeklyDay:     day,
		WeeklyHour:    c.WeeklyAnalyticsHour,
		StaleRunAfter: c.StaleRunAfter,
	}
}

func (c *Config) CollectionCfg() CollectionConfig {
	return CollectionConfig{
		AdapterTimeout: c.AdapterTimeout,
		FetchLimit:     c.FetchLimit,
		DeepFetchLimit: c.DeepFetchLimit,
	}
}

func (c *Config) RetryCfg() RetryConfig {
	return RetryConfig{
		Attempts:   c.RetryAttempts,
		BaseDelay:  c.RetryBaseDelay,
		Multiplier: c.RetryMultiplier,
		Jitter:     c.RetryJitter,
	}
}

func (c *Config) YouTubeCfg() YouTubeConfig {
	return YouTubeConfig{
		APIKey:     c.YouTubeAPIKey,
		Queries:    c.YouTubeQueries,
		Countries:  c.YouTubeCountries,
		ChannelIDs: c.YouTubeChannelIDs,
		Pages:      c.YouTubePages,
		MinViews:   c.YouTubeMinViews,
		RPM:        c.YouTubeRPM,
		FeedRPM:    c.YouTubeFeedRPM,
	}
}

func (c *Config) ForumCfg() ForumConfig {
	return ForumConfig{
		Enabled:     c.ForumEnabled,
		BaseURL:     c.ForumBaseURL,
		APIKey:      c.ForumAPIKey,
		APIUsername: c.ForumAPIUsername,
		Pages:       c.ForumPages,
		RPM:         c.ForumRPM,
		Timeout:     c.ForumTimeout,
	}
}

func (c *Config) TrendsCfg() TrendsConfig {
	return TrendsConfig{
		Enabled:   c.TrendsEnabled,
		Keywords:  c.TrendsKeywords,
		Countries: c.TrendsCountries,
		Timeframe: c.TrendsTimeframe,
		RPM:       c.TrendsRPM,
		Timeout:   c.TrendsTimeout,
	}
}

// Tuning builds the numeric policy shared by normalization, merging, scoring
// and analytics.
func (c *Config) Tuning() domain.Tuning {
	return domain.Tuning{
		VideoViewWeight:          c.VideoViewWeight,
		VideoLikeWeight:          c.VideoLikeWeight,
		VideoCommentWeight:       c.VideoCommentWeight,
		ForumViewWeight:          c.ForumViewWeight,
		ForumReplyWeight:         c.ForumReplyWeight,
		TrendInterestWeight:      c.TrendInterestWeight,
		DecayLambda:              domain.DecayLambdaForHalfLife(c.DecayHalfLifeDays),
		TitleSimilarityThreshold: c.TitleSimilarityThreshold,
		DivergenceThreshold:      c.DivergenceThreshold,
		DivergenceTolerance:      c.DivergenceTolerance,
		RegressionWindow:         c.RegressionWindow,
		MinHistory:               c.MinHistory,
		HighConfidenceMinPoints:  c.HighConfidenceMinPoints,
		HighConfidenceMaxCV:      c.HighConfidenceMaxCV,
		MediumConfidenceMaxCV:    c.MediumConfidenceMaxCV,
		FlatSlopeRatio:           c.FlatSlopeRatio,
	}
}
