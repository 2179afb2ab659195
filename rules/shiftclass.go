package rules

import "strings"

// Shift classification works on display names, not on a shift taxonomy.
// Vacation shifts carry a space-delimited "C " token, request shifts an
// "R1" or "R 1" marker.

func isVacationShift(name string) bool {
	return strings.HasPrefix(name, "C ") || strings.Contains(name, " C ")
}

func isRequestShift(name string) bool {
	return strings.Contains(name, "R1") || strings.Contains(name, "R 1")
}

func isLeaveShift(name string) bool {
	return isVacationShift(name) || isRequestShift(name)
}

func isOffShift(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), "off")
}

func isDayShift(name string) bool {
	return !isLeaveShift(name) && strings.Contains(strings.ToLower(name), "day")
}

func isNightShift(name string) bool {
	return !isLeaveShift(name) && strings.Contains(strings.ToLower(name), "night")
}
