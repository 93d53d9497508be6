package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
	coreerrors "github.com/lueurxax/workflow-popularity/internal/core/errors"
)

const (
	searchPage1 = `{"nextPageToken":"p2","items":[
		{"id":{"kind":"youtube#video","videoId":"a1"},"snippet":{"title":"Slack Notifier","description":"d","channelTitle":"c","publishedAt":"2026-04-01T10:00:00Z"}},
		{"id":{"kind":"youtube#video","videoId":"a2"},"snippet":{"title":"Tiny","channelTitle":"c","publishedAt":"2026-04-01T10:00:00Z"}}
	]}`
	searchPage2 = `{"items":[
		{"id":{"kind":"youtube#video","videoId":"a3"},"snippet":{"title":"Gmail Digest","channelTitle":"c","publishedAt":"2026-04-02T10:00:00Z"}}
	]}`
	videoStats = `{"items":[
		{"id":"a1","statistics":{"viewCount":"1000","likeCount":"100","commentCount":"10"}},
		{"id":"a2","statistics":{"viewCount":"3"}},
		{"id":"a3","statistics":{"viewCount":"50","likeCount":"2"}}
	]}`
)

type youtubeStub struct {
	searches   int32
	failSearch int32
	regions    atomic.Value
}

func (s *youtubeStub) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body string

		switch {
		case strings.HasSuffix(r.URL.Path, "/search"):
			n := atomic.AddInt32(&s.searches, 1)
			if n <= atomic.LoadInt32(&s.failSearch) {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":{"code":403,"message":"quotaExceeded"}}`))

				return
			}

			s.regions.Store(r.URL.Query().Get("regionCode"))

			body = searchPage1
			if r.URL.Query().Get("pageToken") == "p2" {
				body = searchPage2
			}
		case strings.HasSuffix(r.URL.Path, "/videos"):
			body = videoStats
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")

		if _, err := w.Write([]byte(body)); err != nil {
			t.Errorf(failedToWriteResp, err)
		}
	}
}

func newTestYouTube(t *testing.T, stub *youtubeStub, pages int) *YouTubeAdapter {
	t.Helper()

	ts := httptest.NewServer(stub.handler(t))
	t.Cleanup(ts.Close)

	a, err := NewYouTubeAdapter(context.Background(), YouTubeConfig{
		APIKey:         "test-key",
		Queries:        []string{"n8n workflow tutorial"},
		Countries:      []string{"IN"},
		PagesPerQuery:  pages,
		RequestsPerMin: 6000,
		Retry:          fastRetry(),
		Endpoint:       ts.URL + "/",
	}, nopLogger())
	require.NoError(t, err)

	return a
}

func TestYouTubeAdapter_FetchPagesAndFilters(t *testing.T) {
	stub := &youtubeStub{}
	a := newTestYouTube(t, stub, 2)

	recs, err := Drain(a.Fetch(context.Background(), time.Time{}, 0))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	v := recs[0].Video
	require.NotNil(t, v)
	assert.Equal(t, "a1", v.VideoID)
	assert.Equal(t, "IN", v.Country)
	assert.Equal(t, int64(1000), v.Views)
	assert.Equal(t, int64(100), v.Likes)
	assert.Equal(t, int64(10), v.Comments)
	assert.Equal(t, "https://www.youtube.com/watch?v=a1", v.URL)

	assert.Equal(t, "a3", recs[1].Video.VideoID)
	assert.Equal(t, domain.SourceVideo, recs[1].Source())
	assert.Equal(t, int32(2), atomic.LoadInt32(&stub.searches))
	assert.Equal(t, "IN", stub.regions.Load())
}

func TestYouTubeAdapter_Limit(t *testing.T) {
	a := newTestYouTube(t, &youtubeStub{}, 2)

	recs, err := Drain(a.Fetch(context.Background(), time.Time{}, 1))
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestYouTubeAdapter_QuotaErrorIsUnavailable(t *testing.T) {
	stub := &youtubeStub{failSearch: 100}
	a := newTestYouTube(t, stub, 1)

	recs, err := Drain(a.Fetch(context.Background(), time.Time{}, 0))
	require.Error(t, err)
	assert.Empty(t, recs)
	assert.ErrorIs(t, err, coreerrors.ErrSourceUnavailable)
	assert.Equal(t, int32(1), atomic.LoadInt32(&stub.searches), "403 must not be retried")
}

func TestNewYouTubeAdapter_RequiresKey(t *testing.T) {
	_, err := NewYouTubeAdapter(context.Background(), YouTubeConfig{}, nopLogger())
	assert.ErrorIs(t, err, errYouTubeDisabled)
}
