package sources

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
	coreerrors "github.com/lueurxax/workflow-popularity/internal/core/errors"
)

const (
	youtubeMaxPageSize     = 50
	youtubeDefaultPages    = 1
	youtubeDefaultMinViews = 10
	youtubeDefaultRPM      = 120
	youtubeLanguage        = "en"
	youtubeOrder           = "relevance"
	youtubeTypeVideo       = "video"
	youtubePartSearch      = "id,snippet"
	youtubePartStatistics  = "statistics"
)

// DefaultVideoQueries are searched when no catalog overrides them.
var DefaultVideoQueries = []string{"n8n workflow tutorial", "n8n automation", "n8n integration"}

// DefaultCountries are the regions collected by default.
var DefaultCountries = []string{"US", "IN"}

var errYouTubeDisabled = errors.New("youtube api key not configured")

// YouTubeConfig configures the YouTube Data API adapter.
type YouTubeConfig struct {
	APIKey         string
	Queries        []string
	Countries      []string
	PagesPerQuery  int
	MinViews       int64
	RequestsPerMin int
	Retry          RetryPolicy

	// Endpoint overrides the API base URL.
	Endpoint string
}

// YouTubeAdapter searches videos per country and query and attaches their statistics.
type YouTubeAdapter struct {
	cfg     YouTubeConfig
	svc     *youtube.Service
	limiter *rate.Limiter
	logger  *zerolog.Logger
	now     func() time.Time
}

// NewYouTubeAdapter creates the adapter. An API key is required.
func NewYouTubeAdapter(ctx context.Context, cfg YouTubeConfig, logger *zerolog.Logger) (*YouTubeAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errYouTubeDisabled
	}

	if len(cfg.Queries) == 0 {
		cfg.Queries = DefaultVideoQueries
	}

	if len(cfg.Countries) == 0 {
		cfg.Countries = DefaultCountries
	}

	if cfg.PagesPerQuery <= 0 {
		cfg.PagesPerQuery = youtubeDefaultPages
	}

	if cfg.MinViews <= 0 {
		cfg.MinViews = youtubeDefaultMinViews
	}

	if cfg.RequestsPerMin <= 0 {
		cfg.RequestsPerMin = youtubeDefaultRPM
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	return &YouTubeAdapter{
		cfg:     cfg,
		svc:     svc,
		limiter: newLimiter(cfg.RequestsPerMin),
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Source returns domain.SourceVideo.
func (a *YouTubeAdapter) Source() domain.Source {
	return domain.SourceVideo
}

// Fetch yields videos published after since. Each search page together with
// its statistics call is one page of the sequence. Videos below the minimum
// view count are dropped.
func (a *YouTubeAdapter) Fetch(ctx context.Context, since time.Time, limit int) iter.Seq2[domain.RawRecord, error] {
	return func(yield func(domain.RawRecord, error) bool) {
		yielded := 0

		for _, country := range a.cfg.Countries {
			for _, query := range a.cfg.Queries {
				token := ""

				for page := 0; page < a.cfg.PagesPerQuery; page++ {
					left := remaining(limit, yielded)
					if left <= 0 {
						return
					}

					recs, next, err := a.fetchPage(ctx, query, country, since, token, min(left, youtubeMaxPageSize))
					if err != nil {
						yield(domain.RawRecord{}, &coreerrors.SourceUnavailableError{Source: string(domain.SourceVideo), Err: err})
						return
					}

					for _, r := range recs {
						if !yield(domain.NewVideoRecord(r), nil) {
							return
						}

						yielded++
					}

					if next == "" {
						break
					}

					token = next
				}
			}
		}
	}
}

func (a *YouTubeAdapter) fetchPage(ctx context.Context, query, country string, since time.Time, token string, size int) ([]domain.VideoRecord, string, error) {
	var search *youtube.SearchListResponse

	err := a.cfg.Retry.Do(ctx, a.logger, "youtube.search", func() error {
		if err := a.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}

		call := a.svc.Search.List([]string{youtubePartSearch}).
			Q(query).
			Type(youtubeTypeVideo).
			RegionCode(country).
			RelevanceLanguage(youtubeLanguage).
			Order(youtubeOrder).
			MaxResults(int64(size)).
			Context(ctx)

		if !since.IsZero() {
			call = call.PublishedAfter(since.UTC().Format(time.RFC3339))
		}

		if token != "" {
			call = call.PageToken(token)
		}

		resp, err := call.Do()
		if err != nil {
			return wrapGoogleAPIError(err)
		}

		search = resp

		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("search %q in %s: %w", query, country, err)
	}

	ids := make([]string, 0, len(search.Items))
	snippets := make(map[string]*youtube.SearchResultSnippet, len(search.Items))

	for _, item := range search.Items {
		if item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
			continue
		}

		if _, dup := snippets[item.Id.VideoId]; dup {
			continue
		}

		ids = append(ids, item.Id.VideoId)
		snippets[item.Id.VideoId] = item.Snippet
	}

	if len(ids) == 0 {
		return nil, search.NextPageToken, nil
	}

	stats, err := a.fetchStatistics(ctx, ids)
	if err != nil {
		return nil, "", err
	}

	fetchedAt := a.now().UTC()
	out := make([]domain.VideoRecord, 0, len(ids))

	for _, id := range ids {
		st, ok := stats[id]
		if !ok || int64(st.ViewCount) < a.cfg.MinViews {
			continue
		}

		sn := snippets[id]

		out = append(out, domain.VideoRecord{
			VideoID:     id,
			Title:       sn.Title,
			Description: sn.Description,
			Channel:     sn.ChannelTitle,
			URL:         "https://www.youtube.com/watch?v=" + id,
			Country:     country,
			PublishedAt: parseTime(sn.PublishedAt),
			FetchedAt:   fetchedAt,
			Views:       int64(st.ViewCount),
			Likes:       int64(st.LikeCount),
			Comments:    int64(st.CommentCount),
		})
	}

	return out, search.NextPageToken, nil
}

func (a *YouTubeAdapter) fetchStatistics(ctx context.Context, ids []string) (map[string]*youtube.VideoStatistics, error) {
	out := make(map[string]*youtube.VideoStatistics, len(ids))

	err := a.cfg.Retry.Do(ctx, a.logger, "youtube.videos", func() error {
		if err := a.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}

		resp, err := a.svc.Videos.List([]string{youtubePartStatistics}).Id(ids...).Context(ctx).Do()
		if err != nil {
			return wrapGoogleAPIError(err)
		}

		for _, item := range resp.Items {
			if item.Statistics != nil {
				out[item.Id] = item.Statistics
			}
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("video statistics: %w", err)
	}

	return out, nil
}

// wrapGoogleAPIError maps API status codes onto StatusError so the retry
// policy classifies them like plain HTTP responses.
func wrapGoogleAPIError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code != http.StatusOK {
		return fmt.Errorf("%w: %s", &StatusError{Code: apiErr.Code}, apiErr.Message)
	}

	return err
}
