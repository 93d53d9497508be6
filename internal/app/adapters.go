package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lueurxax/workflow-popularity/internal/ingest/sources"
	"github.com/lueurxax/workflow-popularity/internal/platform/config"
)

var errNoSources = errors.New("no source adapters configured")

// buildAdapters creates the enabled adapters. The video source uses the Data
// API when a key is set and the public channel feeds otherwise.
func buildAdapters(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) ([]sources.Adapter, error) {
	rc := cfg.RetryCfg()
	retry := sources.RetryPolicy{
		Attempts:   rc.Attempts,
		BaseDelay:  rc.BaseDelay,
		Multiplier: rc.Multiplier,
		Jitter:     rc.Jitter,
	}

	var adapters []sources.Adapter

	video, err := videoAdapter(ctx, cfg.YouTubeCfg(), retry, logger)
	if err != nil {
		return nil, err
	}

	if video != nil {
		adapters = append(adapters, video)
	}

	if fc := cfg.ForumCfg(); fc.Enabled {
		adapters = append(adapters, sources.NewForumAdapter(sources.ForumConfig{
			BaseURL:        fc.BaseURL,
			APIKey:         fc.APIKey,
			APIUsername:    fc.APIUsername,
			Pages:          fc.Pages,
			RequestsPerMin: fc.RPM,
			Timeout:        fc.Timeout,
			Retry:          retry,
		}, logger))
	}

	if tc := cfg.TrendsCfg(); tc.Enabled {
		adapters = append(adapters, sources.NewTrendsAdapter(sources.TrendsConfig{
			Keywords:       tc.Keywords,
			Countries:      tc.Countries,
			Timeframe:      tc.Timeframe,
			RequestsPerMin: tc.RPM,
			Timeout:        tc.Timeout,
			Retry:          retry,
		}, logger))
	}

	if len(adapters) == 0 {
		return nil, errNoSources
	}

	for _, a := range adapters {
		logger.Info().Str("source", string(a.Source())).Msg("source adapter enabled")
	}

	return adapters, nil
}

func videoAdapter(ctx context.Context, yc config.YouTubeConfig, retry sources.RetryPolicy, logger *zerolog.Logger) (sources.Adapter, error) {
	if yc.APIKey != "" {
		adapter, err := sources.NewYouTubeAdapter(ctx, sources.YouTubeConfig{
			APIKey:         yc.APIKey,
			Queries:        yc.Queries,
			Countries:      yc.Countries,
			PagesPerQuery:  yc.Pages,
			MinViews:       yc.MinViews,
			RequestsPerMin: yc.RPM,
			Retry:          retry,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("video adapter init: %w", err)
		}

		return adapter, nil
	}

	if len(yc.ChannelIDs) == 0 {
		logger.Warn().Msg("no YOUTUBE_API_KEY and no YOUTUBE_CHANNEL_IDS, video source disabled")

		return nil, nil
	}

	return sources.NewYouTubeFeedAdapter(sources.YouTubeFeedConfig{
		ChannelIDs:     yc.ChannelIDs,
		RequestsPerMin: yc.FeedRPM,
		Retry:          retry,
	}, logger), nil
}
