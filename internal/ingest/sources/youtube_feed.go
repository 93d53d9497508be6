package sources

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	"github.com/rs/zerolog"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
	coreerrors "github.com/lueurxax/workflow-popularity/internal/core/errors"
)

const (
	feedDefaultBaseURL = "https://www.youtube.com/feeds/videos.xml"
	feedDefaultRPM     = 30
	feedParamChannel   = "channel_id"

	extYT         = "yt"
	extMedia      = "media"
	extVideoID    = "videoId"
	extGroup      = "group"
	extCommunity  = "community"
	extStatistics = "statistics"
	extStarRating = "starRating"
	extDesc       = "description"
	attrViews     = "views"
	attrCount     = "count"
)

// YouTubeFeedConfig configures the keyless channel feed adapter.
type YouTubeFeedConfig struct {
	ChannelIDs     []string
	BaseURL        string
	RequestsPerMin int
	Timeout        time.Duration
	Retry          RetryPolicy
}

// YouTubeFeedAdapter reads public channel Atom feeds. It needs no API key and
// reports views and rating counts without a region, so records are global.
type YouTubeFeedAdapter struct {
	channels []string
	baseURL  string
	http     *fetcher
	parser   *gofeed.Parser
	logger   *zerolog.Logger
	now      func() time.Time
}

// NewYouTubeFeedAdapter creates the feed adapter.
func NewYouTubeFeedAdapter(cfg YouTubeFeedConfig, logger *zerolog.Logger) *YouTubeFeedAdapter {
	base := cfg.BaseURL
	if base == "" {
		base = feedDefaultBaseURL
	}

	rpm := cfg.RequestsPerMin
	if rpm <= 0 {
		rpm = feedDefaultRPM
	}

	return &YouTubeFeedAdapter{
		channels: cfg.ChannelIDs,
		baseURL:  base,
		http:     newFetcher(cfg.Timeout, rpm, cfg.Retry, logger),
		parser:   gofeed.NewParser(),
		logger:   logger,
		now:      time.Now,
	}
}

// Source returns domain.SourceVideo.
func (a *YouTubeFeedAdapter) Source() domain.Source {
	return domain.SourceVideo
}

// Fetch yields the videos of every configured channel published after since.
// Each channel feed is one page.
func (a *YouTubeFeedAdapter) Fetch(ctx context.Context, since time.Time, limit int) iter.Seq2[domain.RawRecord, error] {
	return func(yield func(domain.RawRecord, error) bool) {
		yielded := 0

		for _, channel := range a.channels {
			feed, err := a.fetchFeed(ctx, channel)
			if err != nil {
				yield(domain.RawRecord{}, &coreerrors.SourceUnavailableError{Source: string(domain.SourceVideo), Err: err})
				return
			}

			fetchedAt := a.now().UTC()

			for _, item := range feed.Items {
				rec := feedItemToRecord(item, fetchedAt)

				if !since.IsZero() && !rec.PublishedAt.IsZero() && rec.PublishedAt.Before(since) {
					continue
				}

				if remaining(limit, yielded) <= 0 {
					return
				}

				if !yield(domain.NewVideoRecord(rec), nil) {
					return
				}

				yielded++
			}
		}
	}
}

func (a *YouTubeFeedAdapter) fetchFeed(ctx context.Context, channel string) (*gofeed.Feed, error) {
	u := a.baseURL + "?" + url.Values{feedParamChannel: {channel}}.Encode()

	body, err := a.http.get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("fetch channel feed %s: %w", channel, err)
	}

	feed, err := a.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse channel feed %s: %w", channel, err)
	}

	return feed, nil
}

func feedItemToRecord(item *gofeed.Item, fetchedAt time.Time) domain.VideoRecord {
	rec := domain.VideoRecord{
		VideoID:   extensionValue(item.Extensions, extYT, extVideoID),
		Title:     item.Title,
		URL:       item.Link,
		Country:   domain.CountryGlobal,
		FetchedAt: fetchedAt,
	}

	if rec.VideoID == "" {
		rec.VideoID = strings.TrimPrefix(item.GUID, "yt:video:")
	}

	if item.PublishedParsed != nil {
		rec.PublishedAt = item.PublishedParsed.UTC()
	}

	if len(item.Authors) > 0 && item.Authors[0] != nil {
		rec.Channel = item.Authors[0].Name
	}

	group := firstExtension(item.Extensions[extMedia][extGroup])
	if group == nil {
		return rec
	}

	if d := firstExtension(group.Children[extDesc]); d != nil {
		rec.Description = d.Value
	}

	community := firstExtension(group.Children[extCommunity])
	if community == nil {
		return rec
	}

	if st := firstExtension(community.Children[extStatistics]); st != nil {
		rec.Views = parseCount(st.Attrs[attrViews])
	}

	if rating := firstExtension(community.Children[extStarRating]); rating != nil {
		rec.Likes = parseCount(rating.Attrs[attrCount])
	}

	return rec
}

func extensionValue(exts ext.Extensions, ns, name string) string {
	if e := firstExtension(exts[ns][name]); e != nil {
		return strings.TrimSpace(e.Value)
	}

	return ""
}

func firstExtension(list []ext.Extension) *ext.Extension {
	if len(list) == 0 {
		return nil
	}

	return &list[0]
}

func parseCount(v string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0
	}

	return n
}
