package commerce

import (
	"strings"
	"time"
)

// =============================================================================
// GRANULARITY - Time bucket width for purchase counts
// =============================================================================

type Granularity int

const (
	GranularityHour Granularity = iota
	GranularityDay
	GranularityWeek
	GranularityYear
)

// DefaultGranularity is used for blank or unrecognized input.
const DefaultGranularity = GranularityDay

var granularityNames = map[Granularity]string{
	GranularityHour: "hour",
	GranularityDay:  "day",
	GranularityWeek: "week",
	GranularityYear: "year",
}

// ParseGranularity maps request input to a Granularity. Unknown values fall
// back to DefaultGranularity and report ok=false so callers can log it.
func ParseGranularity(s string) (g Granularity, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hour":
		return GranularityHour, true
	case "day":
		return GranularityDay, true
	case "week":
		return GranularityWeek, true
	case "year":
		return GranularityYear, true
	}
	return DefaultGranularity, false
}

func (g Granularity) String() string {
	if name, ok := granularityNames[g]; ok {
		return name
	}
	return granularityNames[DefaultGranularity]
}

// BucketStart truncates t (in UTC) to the start of its calendar bucket.
// Weeks start on Monday.
func (g Granularity) BucketStart(t time.Time) time.Time {
	t = t.UTC()
	switch g {
	case GranularityHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	case GranularityWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case GranularityYear:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// Label formats a bucket start the way the API returns it.
func (g Granularity) Label(bucket time.Time) string {
	if g == GranularityHour {
		return bucket.UTC().Format("2006-01-02T15:00:00Z")
	}
	return bucket.UTC().Format(DateLayout)
}

// BucketLabel is BucketStart followed by Label.
func (g Granularity) BucketLabel(t time.Time) string {
	return g.Label(g.BucketStart(t))
}
