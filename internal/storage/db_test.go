package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTitleTokens(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty", in: "", want: []string{}},
		{name: "dedup keeps first order", in: "slack to slack notifier", want: []string{"slack", "to", "notifier"}},
		{name: "collapses whitespace", in: "  gmail   bot ", want: []string{"gmail", "bot"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, titleTokens(tt.in))
		})
	}
}

func TestParseUUID(t *testing.T) {
	id, ok := parseUUID("2f1c7c1e-8a4b-5c55-9b1a-0c7d6b1f3e20")
	require.True(t, ok)
	assert.Equal(t, "2f1c7c1e-8a4b-5c55-9b1a-0c7d6b1f3e20", fromUUID(id))

	_, ok = parseUUID("not-a-uuid")
	assert.False(t, ok)
}

func TestCandidateQuery(t *testing.T) {
	query, args, err := candidateQuery([]string{"slack", "notifier"}).ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT id FROM workflow_entities WHERE title_tokens && $1 "+
			"ORDER BY cardinality(ARRAY(SELECT unnest(title_tokens) INTERSECT SELECT unnest($2::text[]))) DESC, created_at, id "+
			"LIMIT 200",
		query)
	assert.Len(t, args, 2)
}

func TestSanitizeUTF8(t *testing.T) {
	assert.Equal(t, "ok", SanitizeUTF8("ok"))
	assert.Equal(t, "ab", SanitizeUTF8("a\xffb"))
}
