package rules

import (
	"strings"
	"time"
)

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// DayFilterApplies reports whether a condition with the given day filter
// applies on a date falling on weekday. An empty filter or "all" applies
// every day; an unrecognised filter never matches.
func DayFilterApplies(filter string, weekday time.Weekday) bool {
	f := strings.ToLower(strings.TrimSpace(filter))
	weekend := weekday == time.Saturday || weekday == time.Sunday

	switch f {
	case "", "all":
		return true
	case "weekdays", "weekday":
		return !weekend
	case "weekends", "weekend":
		return weekend
	}

	if wd, ok := weekdayNames[f]; ok {
		return wd == weekday
	}
	return false
}

// IsKnownDayFilter reports whether filter is one DayFilterApplies understands
func IsKnownDayFilter(filter string) bool {
	f := strings.ToLower(strings.TrimSpace(filter))
	switch f {
	case "", "all", "weekdays", "weekday", "weekends", "weekend":
		return true
	}
	_, ok := weekdayNames[f]
	return ok
}
