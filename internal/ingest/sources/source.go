// Package sources implements the provider adapters that feed the collection
// run: a video platform, a discussion forum and a search-trend service.
package sources

import (
	"context"
	"iter"
	"time"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
)

// Adapter fetches raw records from one external provider.
//
// Fetch returns a lazy sequence. Records of pages that were fetched
// successfully are yielded before the error of a later page, so a consumer
// keeps everything it saw. Ranging over the sequence again restarts it from
// the first page. since bounds staleness; overlapping records are allowed.
// limit caps the number of records, 0 means the adapter default.
type Adapter interface {
	Source() domain.Source
	Fetch(ctx context.Context, since time.Time, limit int) iter.Seq2[domain.RawRecord, error]
}

const (
	secondsPerMinute = 60.0
	userAgent        = "workflow-popularity/1.0 (+https://github.com/lueurxax/workflow-popularity)"
	headerUserAgent  = "User-Agent"
	headerAccept     = "Accept"
	mimeJSON         = "application/json"

	defaultTimeout        = 30 * time.Second
	defaultRequestsPerMin = 60
)

// Drain collects a sequence. Records yielded before an error are returned
// together with that error.
func Drain(seq iter.Seq2[domain.RawRecord, error]) ([]domain.RawRecord, error) {
	var out []domain.RawRecord

	for rec, err := range seq {
		if err != nil {
			return out, err
		}

		out = append(out, rec)
	}

	return out, nil
}

// remaining reports how many more records may be yielded under limit.
func remaining(limit, yielded int) int {
	if limit <= 0 {
		return int(^uint(0) >> 1)
	}

	return limit - yielded
}
