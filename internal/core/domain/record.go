package domain

import "time"

// RawRecord is a closed tagged variant over the per-provider record shapes.
// Exactly one of the pointers is set.
type RawRecord struct {
	Video *VideoRecord
	Forum *ForumRecord
	Trend *TrendRecord
}

// VideoRecord is a video platform search hit with its statistics.
type VideoRecord struct {
	VideoID     string
	Title       string
	Description string
	Channel     string
	URL         string
	Country     string
	PublishedAt time.Time
	FetchedAt   time.Time
	Views       int64
	Likes       int64
	Comments    int64
}

// ForumRecord is a discussion topic.
type ForumRecord struct {
	TopicID      string
	Slug         string
	URL          string
	Title        string
	CategoryID   int
	CreatedAt    time.Time
	LastPostedAt time.Time
	FetchedAt    time.Time
	Views        int64
	Replies      int64
	Likes        int64
	Participants int64
}

// TrendRecord is the search-interest summary of a keyword in one region.
type TrendRecord struct {
	Keyword         string
	URL             string
	Country         string
	FetchedAt       time.Time
	Interest        float64
	CurrentInterest float64
	TrendPercentage float64
}

// NewVideoRecord wraps a video record.
func NewVideoRecord(r VideoRecord) RawRecord { return RawRecord{Video: &r} }

// NewForumRecord wraps a forum record.
func NewForumRecord(r ForumRecord) RawRecord { return RawRecord{Forum: &r} }

// NewTrendRecord wraps a trend record.
func NewTrendRecord(r TrendRecord) RawRecord { return RawRecord{Trend: &r} }

// Source reports the variant tag. An empty record reports "".
func (r RawRecord) Source() Source {
	switch {
	case r.Video != nil:
		return SourceVideo
	case r.Forum != nil:
		return SourceForum
	case r.Trend != nil:
		return SourceTrend
	default:
		return ""
	}
}
