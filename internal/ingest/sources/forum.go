package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/rs/zerolog"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
	coreerrors "github.com/lueurxax/workflow-popularity/internal/core/errors"
)

const (
	forumDefaultBaseURL = "https://community.n8n.io"
	forumDefaultPages   = 5
	forumDefaultRPM     = 30
	forumHeaderAPIKey   = "Api-Key"
	forumHeaderAPIUser  = "Api-Username"
)

// ForumConfig configures the Discourse adapter.
type ForumConfig struct {
	BaseURL        string
	APIKey         string
	APIUsername    string
	Pages          int
	RequestsPerMin int
	Timeout        time.Duration
	Retry          RetryPolicy
}

// ForumAdapter reads the latest topics of a Discourse forum page by page.
type ForumAdapter struct {
	baseURL string
	pages   int
	http    *fetcher
	logger  *zerolog.Logger
	now     func() time.Time
}

// NewForumAdapter creates a Discourse adapter.
func NewForumAdapter(cfg ForumConfig, logger *zerolog.Logger) *ForumAdapter {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = forumDefaultBaseURL
	}

	pages := cfg.Pages
	if pages <= 0 {
		pages = forumDefaultPages
	}

	rpm := cfg.RequestsPerMin
	if rpm <= 0 {
		rpm = forumDefaultRPM
	}

	f := newFetcher(cfg.Timeout, rpm, cfg.Retry, logger)
	f.headers.Set(headerAccept, mimeJSON)

	if cfg.APIKey != "" {
		f.headers.Set(forumHeaderAPIKey, cfg.APIKey)

		if cfg.APIUsername != "" {
			f.headers.Set(forumHeaderAPIUser, cfg.APIUsername)
		}
	}

	return &ForumAdapter{baseURL: base, pages: pages, http: f, logger: logger, now: time.Now}
}

// Source returns domain.SourceForum.
func (a *ForumAdapter) Source() domain.Source {
	return domain.SourceForum
}

// Fetch yields topics with activity after since. Pages are requested in
// order until the configured page count, an empty page or a page whose
// topics are all older than since.
func (a *ForumAdapter) Fetch(ctx context.Context, since time.Time, limit int) iter.Seq2[domain.RawRecord, error] {
	return func(yield func(domain.RawRecord, error) bool) {
		yielded := 0

		for page := 0; page < a.pages; page++ {
			topics, err := a.fetchPage(ctx, page)
			if err != nil {
				yield(domain.RawRecord{}, &coreerrors.SourceUnavailableError{Source: string(domain.SourceForum), Err: err})
				return
			}

			if len(topics) == 0 {
				return
			}

			fetchedAt := a.now().UTC()
			fresh := 0

			for _, t := range topics {
				rec := a.toRecord(t, fetchedAt)
				if !since.IsZero() && rec.LastPostedAt.Before(since) {
					continue
				}

				fresh++

				if remaining(limit, yielded) <= 0 {
					return
				}

				if !yield(domain.NewForumRecord(rec), nil) {
					return
				}

				yielded++
			}

			a.logger.Debug().Str(logFieldSource, string(domain.SourceForum)).Int(logFieldPage, page).Int(logFieldCount, fresh).Msg("forum page fetched")

			if fresh == 0 {
				return
			}
		}
	}
}

func (a *ForumAdapter) fetchPage(ctx context.Context, page int) ([]discourseTopic, error) {
	u := a.baseURL + "/latest.json?" + url.Values{"page": {strconv.Itoa(page)}}.Encode()

	body, err := a.http.get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("forum page %d: %w", page, err)
	}

	var resp discourseLatest
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse forum page %d: %w", page, err)
	}

	return resp.TopicList.Topics, nil
}

func (a *ForumAdapter) toRecord(t discourseTopic, fetchedAt time.Time) domain.ForumRecord {
	id := ""
	if t.ID > 0 {
		id = strconv.FormatInt(t.ID, 10)
	}

	created := parseTime(t.CreatedAt)

	lastPosted := parseTime(t.LastPostedAt)
	if lastPosted.IsZero() {
		lastPosted = parseTime(t.BumpedAt)
	}

	if lastPosted.IsZero() {
		lastPosted = created
	}

	link := ""
	if id != "" {
		link = fmt.Sprintf("%s/t/%s/%s", a.baseURL, t.Slug, id)
	}

	return domain.ForumRecord{
		TopicID:      id,
		Slug:         t.Slug,
		URL:          link,
		Title:        t.Title,
		CategoryID:   t.CategoryID,
		CreatedAt:    created,
		LastPostedAt: lastPosted,
		FetchedAt:    fetchedAt,
		Views:        t.Views,
		Replies:      t.ReplyCount,
		Likes:        t.LikeCount,
		Participants: t.ParticipantCount,
	}
}

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}

	t, err := dateparse.ParseIn(v, time.UTC)
	if err != nil {
		return time.Time{}
	}

	return t.UTC()
}

type discourseLatest struct {
	TopicList struct {
		Topics []discourseTopic `json:"topics"`
	} `json:"topic_list"`
}

type discourseTopic struct {
	ID               int64  `json:"id"`
	Title            string `json:"title"`
	Slug             string `json:"slug"`
	CategoryID       int    `json:"category_id"`
	CreatedAt        string `json:"created_at"`
	LastPostedAt     string `json:"last_posted_at"`
	BumpedAt         string `json:"bumped_at"`
	Views            int64  `json:"views"`
	ReplyCount       int64  `json:"reply_count"`
	LikeCount        int64  `json:"like_count"`
	PostsCount       int64  `json:"posts_count"`
	ParticipantCount int64  `json:"participant_count"`
}
