// Package normalize maps provider-specific raw records onto the canonical
// workflow observation shape and computes the per-source engagement sub-score.
package normalize

import (
	"strings"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
	coreerrors "github.com/lueurxax/workflow-popularity/internal/core/errors"
)

const (
	fieldExternalID = "external_id"
	fieldTitle      = "title"
	fieldRecord     = "record"

	videoURLPrefix = "https://www.youtube.com/watch?v="
)

// Normalizer converts raw records into observations. It holds no state beyond
// its weights and is safe for concurrent use.
type Normalizer struct {
	tuning domain.Tuning
}

// New creates a Normalizer using the engagement weights of tuning.
func New(tuning domain.Tuning) *Normalizer {
	return &Normalizer{tuning: tuning}
}

// Normalize maps one raw record. A record without its external identifier or
// title yields a *MalformedRecordError.
func (n *Normalizer) Normalize(rec domain.RawRecord) (domain.WorkflowObservation, error) {
	switch {
	case rec.Video != nil:
		return n.normalizeVideo(*rec.Video)
	case rec.Forum != nil:
		return n.normalizeForum(*rec.Forum)
	case rec.Trend != nil:
		return n.normalizeTrend(*rec.Trend)
	default:
		return domain.WorkflowObservation{}, &coreerrors.MalformedRecordError{Source: "unknown", Field: fieldRecord}
	}
}

// NormalizeBatch normalizes every record, skipping malformed ones. dropped is
// the number of skipped records and errs holds their errors in input order.
func (n *Normalizer) NormalizeBatch(records []domain.RawRecord) (obs []domain.WorkflowObservation, dropped int, errs []error) {
	obs = make([]domain.WorkflowObservation, 0, len(records))

	for _, rec := range records {
		o, err := n.Normalize(rec)
		if err != nil {
			dropped++

			errs = append(errs, err)

			continue
		}

		obs = append(obs, o)
	}

	return obs, dropped, errs
}

func (n *Normalizer) normalizeVideo(v domain.VideoRecord) (domain.WorkflowObservation, error) {
	id := strings.TrimSpace(v.VideoID)
	title := CleanTitle(v.Title)

	if err := requireIdentity(domain.SourceVideo, id, title); err != nil {
		return domain.WorkflowObservation{}, err
	}

	metrics := domain.RawMetrics{
		Views:    nonNegative(v.Views),
		Likes:    nonNegative(v.Likes),
		Comments: nonNegative(v.Comments),
	}

	url := v.URL
	if url == "" {
		url = videoURLPrefix + id
	}

	return domain.WorkflowObservation{
		Source:     domain.SourceVideo,
		ExternalID: id,
		Title:      title,
		URL:        url,
		Country:    domain.NormalizeCountry(v.Country),
		ObservedAt: v.FetchedAt,
		RawMetrics: metrics,
		Engagement: n.VideoEngagement(metrics),
	}, nil
}

func (n *Normalizer) normalizeForum(f domain.ForumRecord) (domain.WorkflowObservation, error) {
	id := strings.TrimSpace(f.TopicID)
	title := CleanTitle(f.Title)

	if err := requireIdentity(domain.SourceForum, id, title); err != nil {
		return domain.WorkflowObservation{}, err
	}

	metrics := domain.RawMetrics{
		Views:   nonNegative(f.Views),
		Likes:   nonNegative(f.Likes),
		Replies: nonNegative(f.Replies),
	}

	return domain.WorkflowObservation{
		Source:     domain.SourceForum,
		ExternalID: id,
		Title:      title,
		URL:        f.URL,
		Country:    domain.CountryGlobal,
		ObservedAt: f.FetchedAt,
		RawMetrics: metrics,
		Engagement: n.ForumEngagement(metrics),
	}, nil
}

func (n *Normalizer) normalizeTrend(t domain.TrendRecord) (domain.WorkflowObservation, error) {
	title := CleanTitle(t.Keyword)
	id := NormalizeTitle(title)

	if err := requireIdentity(domain.SourceTrend, id, title); err != nil {
		return domain.WorkflowObservation{}, err
	}

	interest := t.Interest
	if interest < 0 {
		interest = 0
	}

	metrics := domain.RawMetrics{Interest: interest}

	return domain.WorkflowObservation{
		Source:     domain.SourceTrend,
		ExternalID: id,
		Title:      title,
		URL:        t.URL,
		Country:    domain.NormalizeCountry(t.Country),
		ObservedAt: t.FetchedAt,
		RawMetrics: metrics,
		Engagement: n.TrendEngagement(metrics),
	}, nil
}

// VideoEngagement is views*w + likes*w + comments*w.
func (n *Normalizer) VideoEngagement(m domain.RawMetrics) float64 {
	return float64(m.Views)*n.tuning.VideoViewWeight +
		float64(m.Likes)*n.tuning.VideoLikeWeight +
		float64(m.Comments)*n.tuning.VideoCommentWeight
}

// ForumEngagement is views*w + replies*w.
func (n *Normalizer) ForumEngagement(m domain.RawMetrics) float64 {
	return float64(m.Views)*n.tuning.ForumViewWeight +
		float64(m.Replies)*n.tuning.ForumReplyWeight
}

// TrendEngagement is the provider's interest index times its weight.
func (n *Normalizer) TrendEngagement(m domain.RawMetrics) float64 {
	return m.Interest * n.tuning.TrendInterestWeight
}

func requireIdentity(src domain.Source, id, title string) error {
	if id == "" {
		return &coreerrors.MalformedRecordError{Source: string(src), Field: fieldExternalID}
	}

	if title == "" {
		return &coreerrors.MalformedRecordError{Source: string(src), Field: fieldTitle}
	}

	return nil
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}

	return v
}
