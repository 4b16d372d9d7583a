package commerce

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-day format used by query parameters and bucket labels.
const DateLayout = "2006-01-02"

// =============================================================================
// DATE RANGE - Inclusive calendar days
// =============================================================================

// DateRange covers whole UTC days. A zero From or To leaves that side open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// NewDateRange truncates both ends to their UTC day.
func NewDateRange(from, to time.Time) DateRange {
	return DateRange{From: startOfDay(from), To: startOfDay(to)}
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// Bounds returns [lower, upper) timestamps; upper is the start of the day after To.
func (r DateRange) Bounds() (lower, upper time.Time) {
	if !r.From.IsZero() {
		lower = startOfDay(r.From)
	}
	if !r.To.IsZero() {
		upper = startOfDay(r.To).AddDate(0, 0, 1)
	}
	return lower, upper
}

func (r DateRange) Contains(t time.Time) bool {
	lower, upper := r.Bounds()
	if !lower.IsZero() && t.Before(lower) {
		return false
	}
	if !upper.IsZero() && !t.Before(upper) {
		return false
	}
	return true
}

func (r DateRange) Valid() bool {
	return r.From.IsZero() || r.To.IsZero() || !r.To.Before(r.From)
}

func startOfDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// PURCHASE FILTER - Shared by listing and granularity queries
// =============================================================================

// PurchaseFilter narrows completed purchases. Nil pointers mean "no filter".
type PurchaseFilter struct {
	Range           DateRange
	CategoryID      *CategoryID
	ClientID        *ClientID
	AdministratorID *AdministratorID
}

// =============================================================================
// PAGINATION
// =============================================================================

const (
	DefaultPage    = 1
	DefaultPerPage = 25
	MaxPerPage     = 100
)

type PageRequest struct {
	Page    int
	PerPage int
}

// Normalize applies defaults to missing or non-positive values and caps PerPage.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

func (p PageRequest) Offset() int { return (p.Page - 1) * p.PerPage }

// TotalPages is ceil(total/perPage).
func TotalPages(total int64, perPage int) int {
	if perPage <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(perPage) - 1) / int64(perPage))
}
