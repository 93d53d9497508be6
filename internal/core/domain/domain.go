// Package domain holds the core types of the popularity tracker: raw source
// records, normalized observations, canonical workflow entities, score
// snapshots, derived analytics and collection run bookkeeping.
package domain

import (
	"fmt"
	"strings"
)

// Source identifies the external provider an observation came from.
type Source string

// Known sources.
const (
	SourceVideo Source = "video"
	SourceForum Source = "forum"
	SourceTrend Source = "trend"
)

// AllSources lists the sources in their canonical order.
var AllSources = []Source{SourceVideo, SourceForum, SourceTrend}

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	switch s {
	case SourceVideo, SourceForum, SourceTrend:
		return true
	default:
		return false
	}
}

// ParseSource converts a string into a Source.
func ParseSource(v string) (Source, error) {
	s := Source(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown source %q", v)
	}

	return s, nil
}

// Region constants.
const (
	// CountryGlobal scopes a snapshot or observation to no particular region.
	CountryGlobal = "global"

	// RestOfWorld is reported as the low side of a divergence when an entity
	// is only observed in one country.
	RestOfWorld = "rest-of-world"
)

// NormalizeCountry upper-cases ISO-3166 alpha-2 codes and maps anything else to CountryGlobal.
func NormalizeCountry(v string) string {
	v = strings.TrimSpace(v)
	if len(v) != 2 {
		return CountryGlobal
	}

	for _, r := range v {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return CountryGlobal
		}
	}

	return strings.ToUpper(v)
}
