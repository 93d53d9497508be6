package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/lueurxax/workflow-popularity/internal/core/errors"
)

func timeline(values ...int) string {
	points := make([]string, len(values))
	for i, v := range values {
		points[i] = fmt.Sprintf(`{"time":"%d","value":[%d]}`, 1700000000+i*86400, v)
	}

	return `)]}',` + "\n" + `{"default":{"timelineData":[` + strings.Join(points, ",") + `]}}`
}

func trendsServer(t *testing.T, series map[string]string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body string

		switch r.URL.Path {
		case trendsExplorePath:
			var req exploreRequest
			require.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("req")), &req))

			item := req.ComparisonItem[0]
			token := item.Keyword + "|" + item.Geo
			body = `)]}'` + "\n" + fmt.Sprintf(`{"widgets":[{"id":"RELATED_QUERIES","token":"x"},{"id":"TIMESERIES","token":%q,"request":{"time":%q}}]}`, token, item.Time)
		case trendsMultilinePath:
			s, ok := series[r.URL.Query().Get("token")]
			if !ok {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}

			body = s
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}

		if _, err := w.Write([]byte(body)); err != nil {
			t.Errorf(failedToWriteResp, err)
		}
	}))
}

func TestTrendsAdapter_Fetch(t *testing.T) {
	ts := trendsServer(t, map[string]string{
		"n8n|US":           timeline(40, 60, 80),
		"n8n|IN":           timeline(),
		"zapier vs n8n|US": timeline(10, 20),
		"zapier vs n8n|IN": timeline(5),
	})
	defer ts.Close()

	a := NewTrendsAdapter(TrendsConfig{
		Keywords: []string{"n8n", "zapier vs n8n"}, Countries: []string{"US", "IN"},
		BaseURL: ts.URL, RequestsPerMin: 6000, Retry: fastRetry(),
	}, nopLogger())

	recs, err := Drain(a.Fetch(context.Background(), time.Time{}, 0))
	require.NoError(t, err)
	require.Len(t, recs, 3, "empty series are skipped")

	first := recs[0].Trend
	require.NotNil(t, first)
	assert.Equal(t, "n8n", first.Keyword)
	assert.Equal(t, "US", first.Country)
	assert.InDelta(t, 60, first.Interest, 1e-9)
	assert.InDelta(t, 80, first.CurrentInterest, 1e-9)
	assert.Contains(t, first.URL, "geo=US")
}

func TestTrendsAdapter_RateLimitedExhaustsRetries(t *testing.T) {
	ts := trendsServer(t, map[string]string{"n8n|US": timeline(1, 2, 3)})
	defer ts.Close()

	a := NewTrendsAdapter(TrendsConfig{
		Keywords: []string{"n8n", "missing"}, Countries: []string{"US"},
		BaseURL: ts.URL, RequestsPerMin: 6000, Retry: fastRetry(),
	}, nopLogger())

	recs, err := Drain(a.Fetch(context.Background(), time.Time{}, 0))
	require.Len(t, recs, 1)
	assert.ErrorIs(t, err, coreerrors.ErrSourceUnavailable)
}

func TestSummarizeSeries(t *testing.T) {
	mean, last, trend := SummarizeSeries([]float64{10, 20, 30})
	assert.InDelta(t, 20, mean, 1e-9)
	assert.InDelta(t, 30, last, 1e-9)
	assert.Zero(t, trend)

	values := make([]float64, 90)
	for i := range values {
		values[i] = 10
		if i >= 60 {
			values[i] = 15
		}
	}

	_, _, trend = SummarizeSeries(values)
	assert.InDelta(t, 50, trend, 1e-9)

	mean, last, trend = SummarizeSeries(nil)
	assert.Zero(t, mean+last+trend)
}

func TestStripXSSI(t *testing.T) {
	assert.Equal(t, `{"a":1}`, string(stripXSSI([]byte(")]}',\n{\"a\":1}"))))
	assert.Equal(t, `{"a":1}`, string(stripXSSI([]byte(")]}'\n{\"a\":1}"))))
	assert.Equal(t, `{"a":1}`, string(stripXSSI([]byte(`{"a":1}`))))
}
