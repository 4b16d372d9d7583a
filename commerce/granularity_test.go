package commerce_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warp/commerce-engine/commerce"
)

func TestParseGranularity(t *testing.T) {
	tests := []struct {
		in   string
		want commerce.Granularity
		ok   bool
	}{
		{"hour", commerce.GranularityHour, true},
		{" Day ", commerce.GranularityDay, true},
		{"WEEK", commerce.GranularityWeek, true},
		{"year", commerce.GranularityYear, true},
		{"", commerce.GranularityDay, false},
		{"fortnight", commerce.GranularityDay, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := commerce.ParseGranularity(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestBucketLabel(t *testing.T) {
	// Thursday 2024-01-04 15:42 UTC
	ts := time.Date(2024, time.January, 4, 15, 42, 10, 0, time.UTC)

	assert.Equal(t, "2024-01-04T15:00:00Z", commerce.GranularityHour.BucketLabel(ts))
	assert.Equal(t, "2024-01-04", commerce.GranularityDay.BucketLabel(ts))
	assert.Equal(t, "2024-01-01", commerce.GranularityWeek.BucketLabel(ts), "weeks start on Monday")
	assert.Equal(t, "2024-01-01", commerce.GranularityYear.BucketLabel(ts))
}

func TestBucketStart_WeekOfSunday_BelongsToPreviousMonday(t *testing.T) {
	sunday := time.Date(2024, time.March, 10, 23, 59, 0, 0, time.UTC)

	assert.Equal(t, "2024-03-04", commerce.GranularityWeek.BucketLabel(sunday))
}

func TestBucketStart_ConvertsToUTC(t *testing.T) {
	// 2024-01-01 01:30 in UTC+3 is still 2023-12-31 in UTC.
	loc := time.FixedZone("UTC+3", 3*60*60)
	ts := time.Date(2024, time.January, 1, 1, 30, 0, 0, loc)

	assert.Equal(t, "2023-12-31", commerce.GranularityDay.BucketLabel(ts))
	assert.Equal(t, "2023-01-01", commerce.GranularityYear.BucketLabel(ts))
}
