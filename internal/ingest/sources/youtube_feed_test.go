package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
)

const channelFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns:media="http://search.yahoo.com/mrss/" xmlns="http://www.w3.org/2005/Atom">
 <title>n8n</title>
 <entry>
  <id>yt:video:vid1</id>
  <yt:videoId>vid1</yt:videoId>
  <title>Build a Slack Notifier</title>
  <link rel="alternate" href="https://www.youtube.com/watch?v=vid1"/>
  <author><name>n8n</name></author>
  <published>2026-04-10T12:00:00+00:00</published>
  <media:group>
   <media:title>Build a Slack Notifier</media:title>
   <media:description>Step by step</media:description>
   <media:community>
    <media:starRating count="321" average="5.00" min="1" max="5"/>
    <media:statistics views="9876"/>
   </media:community>
  </media:group>
 </entry>
 <entry>
  <id>yt:video:vid0</id>
  <yt:videoId>vid0</yt:videoId>
  <title>Old video</title>
  <link rel="alternate" href="https://www.youtube.com/watch?v=vid0"/>
  <published>2025-01-01T12:00:00+00:00</published>
 </entry>
</feed>`

func TestYouTubeFeedAdapter_Fetch(t *testing.T) {
	var gotChannel atomic.Value

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotChannel.Store(r.URL.Query().Get("channel_id"))

		w.Header().Set("Content-Type", "application/atom+xml")

		if _, err := w.Write([]byte(channelFeed)); err != nil {
			t.Errorf(failedToWriteResp, err)
		}
	}))
	defer ts.Close()

	a := NewYouTubeFeedAdapter(YouTubeFeedConfig{
		ChannelIDs: []string{"UC123"}, BaseURL: ts.URL, RequestsPerMin: 6000, Retry: fastRetry(),
	}, nopLogger())

	recs, err := Drain(a.Fetch(context.Background(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 0))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "UC123", gotChannel.Load())

	v := recs[0].Video
	require.NotNil(t, v)
	assert.Equal(t, "vid1", v.VideoID)
	assert.Equal(t, "Build a Slack Notifier", v.Title)
	assert.Equal(t, int64(9876), v.Views)
	assert.Equal(t, int64(321), v.Likes)
	assert.Equal(t, "Step by step", v.Description)
	assert.Equal(t, "n8n", v.Channel)
	assert.Equal(t, domain.CountryGlobal, v.Country)

	all, err := Drain(a.Fetch(context.Background(), time.Time{}, 0))
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
