package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
	coreerrors "github.com/lueurxax/workflow-popularity/internal/core/errors"
)

const (
	trendsDefaultBaseURL   = "https://trends.google.com"
	trendsExplorePath      = "/trends/api/explore"
	trendsMultilinePath    = "/trends/api/widgetdata/multiline"
	trendsExploreUIPath    = "/trends/explore"
	trendsDefaultTimeframe = "today 3-m"
	trendsDefaultRPM       = 20
	trendsLanguage         = "en-US"
	trendsTZ               = "360"
	trendsWidgetTimeseries = "TIMESERIES"
	trendsWindowDays       = 30
	percent                = 100
)

// DefaultTrendKeywords are queried when no catalog overrides them.
var DefaultTrendKeywords = []string{"n8n", "n8n automation", "zapier vs n8n"}

var (
	errTrendsNoWidget = errors.New("trends timeseries widget missing")
	xssiPrefix        = []byte(")]}'")
)

// TrendsConfig configures the search-trend adapter.
type TrendsConfig struct {
	Keywords       []string
	Countries      []string
	Timeframe      string
	BaseURL        string
	RequestsPerMin int
	Timeout        time.Duration
	Retry          RetryPolicy
}

// TrendsAdapter reads the interest-over-time series of keywords per region.
// Each country and keyword pair is one page.
type TrendsAdapter struct {
	cfg    TrendsConfig
	http   *fetcher
	logger *zerolog.Logger
	now    func() time.Time
}

// NewTrendsAdapter creates the adapter.
func NewTrendsAdapter(cfg TrendsConfig, logger *zerolog.Logger) *TrendsAdapter {
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = DefaultTrendKeywords
	}

	if len(cfg.Countries) == 0 {
		cfg.Countries = DefaultCountries
	}

	if cfg.Timeframe == "" {
		cfg.Timeframe = trendsDefaultTimeframe
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = trendsDefaultBaseURL
	}

	rpm := cfg.RequestsPerMin
	if rpm <= 0 {
		rpm = trendsDefaultRPM
	}

	return &TrendsAdapter{
		cfg:    cfg,
		http:   newFetcher(cfg.Timeout, rpm, cfg.Retry, logger),
		logger: logger,
		now:    time.Now,
	}
}

// Source returns domain.SourceTrend.
func (a *TrendsAdapter) Source() domain.Source {
	return domain.SourceTrend
}

// Fetch yields one record per country and keyword with data. The series
// always covers the configured timeframe, so since does not narrow it.
func (a *TrendsAdapter) Fetch(ctx context.Context, _ time.Time, limit int) iter.Seq2[domain.RawRecord, error] {
	return func(yield func(domain.RawRecord, error) bool) {
		yielded := 0

		for _, country := range a.cfg.Countries {
			for _, keyword := range a.cfg.Keywords {
				if remaining(limit, yielded) <= 0 {
					return
				}

				rec, ok, err := a.fetchKeyword(ctx, keyword, country)
				if err != nil {
					yield(domain.RawRecord{}, &coreerrors.SourceUnavailableError{Source: string(domain.SourceTrend), Err: err})
					return
				}

				if !ok {
					continue
				}

				if !yield(domain.NewTrendRecord(rec), nil) {
					return
				}

				yielded++
			}
		}
	}
}

func (a *TrendsAdapter) fetchKeyword(ctx context.Context, keyword, country string) (domain.TrendRecord, bool, error) {
	widget, err := a.explore(ctx, keyword, country)
	if err != nil {
		return domain.TrendRecord{}, false, err
	}

	values, err := a.series(ctx, widget)
	if err != nil {
		return domain.TrendRecord{}, false, err
	}

	if len(values) == 0 {
		return domain.TrendRecord{}, false, nil
	}

	mean, last, trend := SummarizeSeries(values)

	return domain.TrendRecord{
		Keyword:         keyword,
		URL:             a.exploreURL(keyword, country),
		Country:         country,
		FetchedAt:       a.now().UTC(),
		Interest:        mean,
		CurrentInterest: last,
		TrendPercentage: trend,
	}, true, nil
}

func (a *TrendsAdapter) explore(ctx context.Context, keyword, country string) (trendsWidget, error) {
	req := exploreRequest{
		ComparisonItem: []comparisonItem{{Keyword: keyword, Geo: country, Time: a.cfg.Timeframe}},
		Category:       0,
		Property:       "",
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return trendsWidget{}, fmt.Errorf("encode explore request: %w", err)
	}

	q := url.Values{"hl": {trendsLanguage}, "tz": {trendsTZ}, "req": {string(payload)}}

	body, err := a.http.get(ctx, a.cfg.BaseURL+trendsExplorePath+"?"+q.Encode())
	if err != nil {
		return trendsWidget{}, fmt.Errorf("explore %q in %s: %w", keyword, country, err)
	}

	var resp exploreResponse
	if err := json.Unmarshal(stripXSSI(body), &resp); err != nil {
		return trendsWidget{}, fmt.Errorf("parse explore response: %w", err)
	}

	for _, w := range resp.Widgets {
		if w.ID == trendsWidgetTimeseries {
			return w, nil
		}
	}

	return trendsWidget{}, fmt.Errorf("%w: %q in %s", errTrendsNoWidget, keyword, country)
}

func (a *TrendsAdapter) series(ctx context.Context, w trendsWidget) ([]float64, error) {
	q := url.Values{"hl": {trendsLanguage}, "tz": {trendsTZ}, "req": {string(w.Request)}, "token": {w.Token}}

	body, err := a.http.get(ctx, a.cfg.BaseURL+trendsMultilinePath+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("timeseries: %w", err)
	}

	var resp multilineResponse
	if err := json.Unmarshal(stripXSSI(body), &resp); err != nil {
		return nil, fmt.Errorf("parse timeseries: %w", err)
	}

	values := make([]float64, 0, len(resp.Default.TimelineData))

	for _, point := range resp.Default.TimelineData {
		if len(point.Value) == 0 {
			continue
		}

		values = append(values, point.Value[0])
	}

	return values, nil
}

func (a *TrendsAdapter) exploreURL(keyword, country string) string {
	q := url.Values{"q": {keyword}}
	if country != "" {
		q.Set("geo", country)
	}

	return a.cfg.BaseURL + trendsExploreUIPath + "?" + q.Encode()
}

// SummarizeSeries returns the mean interest, the latest value and the change
// of the last 30 points against the 30 before them, in percent. The change is
// 0 when fewer than 61 points exist or the earlier window is all zero.
func SummarizeSeries(values []float64) (mean, last, trendPct float64) {
	if len(values) == 0 {
		return 0, 0, 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}

	mean = sum / float64(len(values))
	last = values[len(values)-1]

	if len(values) <= 2*trendsWindowDays {
		return mean, last, 0
	}

	recent := average(values[len(values)-trendsWindowDays:])
	previous := average(values[len(values)-2*trendsWindowDays : len(values)-trendsWindowDays])

	if previous > 0 {
		trendPct = (recent - previous) / previous * percent
	}

	return mean, last, trendPct
}

func average(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}

	return sum / float64(len(v))
}

// stripXSSI removes the anti-hijacking prefix and the rest of its line.
func stripXSSI(body []byte) []byte {
	body = bytes.TrimSpace(body)
	if !bytes.HasPrefix(body, xssiPrefix) {
		return body
	}

	body = body[len(xssiPrefix):]
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		return body[i+1:]
	}

	return bytes.TrimLeft(body, ", ")
}

type exploreRequest struct {
	ComparisonItem []comparisonItem `json:"comparisonItem"`
	Category       int              `json:"category"`
	Property       string           `json:"property"`
}

type comparisonItem struct {
	Keyword string `json:"keyword"`
	Geo     string `json:"geo"`
	Time    string `json:"time"`
}

type exploreResponse struct {
	Widgets []trendsWidget `json:"widgets"`
}

type trendsWidget struct {
	ID      string          `json:"id"`
	Token   string          `json:"token"`
	Request json.RawMessage `json:"request"`
}

type multilineResponse struct {
	Default struct {
		TimelineData []struct {
			Time  string    `json:"time"`
			Value []float64 `json:"value"`
		} `json:"timelineData"`
	} `json:"default"`
}
