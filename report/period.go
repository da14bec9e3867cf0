// Package report assembles contribution reports: it orchestrates the primary
// PR listing, the enrichment pipeline, and star aggregation, computes the
// summary aggregates, and commits the result to the permanent cache.
package report

import (
	"strings"
	"time"
)

// Period names the supported report windows.
type Period string

const (
	Period1Year   Period = "1_year"
	Period2Years  Period = "2_years"
	Period5Years  Period = "5_years"
	PeriodAllTime Period = "all_time"
)

// allTimeStart is the earliest date worth querying; nothing upstream
// predates it.
var allTimeStart = time.Date(2008, time.January, 1, 0, 0, 0, 0, time.UTC)

// NormalizePeriod maps arbitrary input onto a supported period, defaulting
// to one year for anything unrecognized.
func NormalizePeriod(raw string) Period {
	switch Period(strings.ToLower(strings.TrimSpace(raw))) {
	case Period1Year:
		return Period1Year
	case Period2Years:
		return Period2Years
	case Period5Years:
		return Period5Years
	case PeriodAllTime:
		return PeriodAllTime
	default:
		return Period1Year
	}
}

// DateRange resolves the period into a concrete [since, until] window ending
// at now.
func (p Period) DateRange(now time.Time) (since, until time.Time) {
	until = now.UTC()
	switch p {
	case Period2Years:
		since = until.AddDate(0, 0, -730)
	case Period5Years:
		since = until.AddDate(0, 0, -1825)
	case PeriodAllTime:
		since = allTimeStart
	default:
		since = until.AddDate(0, 0, -365)
	}
	return since, until
}
