package rules

import (
	"sort"
	"time"

	"github.com/liamcoop/staffrules/roster"
)

// periodSortKey places Period violations after every dated violation
var periodSortKey = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

func dateSortKey(date string) time.Time {
	if date == PeriodDate {
		return periodSortKey
	}
	t, err := time.Parse(roster.DateLayout, date)
	if err != nil {
		// Unparseable dates share the Period slot
		return periodSortKey
	}
	return t
}

// SortViolations orders violations by date ascending, then severity
// descending. The sort is stable so equal entries keep evaluation order.
func SortViolations(vs []*Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		di, dj := dateSortKey(vs[i].Date), dateSortKey(vs[j].Date)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return vs[i].Severity.Rank() > vs[j].Severity.Rank()
	})
}
