package multitenantengine

import (
	"fmt"
	"regexp"
	"time"

	"github.com/liamcoop/staffrules/roster"
)

var validUnitID = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// ValidateUnitID checks a unit identifier is usable as a URL path segment and
// a Redis key component
func ValidateUnitID(unitID string) error {
	if len(unitID) == 0 {
		return fmt.Errorf("unit ID cannot be empty")
	}
	if len(unitID) > 64 {
		return fmt.Errorf("unit ID length %d exceeds maximum of 64 characters", len(unitID))
	}
	if !validUnitID.MatchString(unitID) {
		return fmt.Errorf("unit ID %q must match pattern ^[a-zA-Z0-9][a-zA-Z0-9_-]*$", unitID)
	}
	return nil
}

// Roster warning kinds
const (
	WarningDuplicateID     = "duplicate_id"
	WarningUnknownRole     = "unknown_role"
	WarningUnknownEmployee = "unknown_employee"
	WarningUnknownShift    = "unknown_shift"
	WarningInvalidDate     = "invalid_date"
)

// RosterWarning reports a roster entry the engine will skip or count as
// unknown
type RosterWarning struct {
	Kind    string `json:"kind"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

// CheckRoster lists dangling references in roster data. The engine tolerates
// all of them, so these are warnings only.
func CheckRoster(data roster.Data) []RosterWarning {
	var warnings []RosterWarning
	add := func(kind, id, format string, args ...any) {
		warnings = append(warnings, RosterWarning{Kind: kind, ID: id, Message: fmt.Sprintf(format, args...)})
	}

	roles := make(map[string]bool, len(data.JobRoles))
	for _, r := range data.JobRoles {
		if roles[r.ID] {
			add(WarningDuplicateID, r.ID, "job role %s is defined more than once", r.ID)
		}
		roles[r.ID] = true
	}

	shifts := make(map[string]bool, len(data.ShiftTypes))
	for _, s := range data.ShiftTypes {
		if shifts[s.ID] {
			add(WarningDuplicateID, s.ID, "shift type %s is defined more than once", s.ID)
		}
		shifts[s.ID] = true
	}

	employees := make(map[string]bool, len(data.Employees))
	for _, e := range data.Employees {
		if employees[e.ID] {
			add(WarningDuplicateID, e.ID, "employee %s is defined more than once", e.ID)
		}
		employees[e.ID] = true
		if !roles[e.RoleID] {
			add(WarningUnknownRole, e.ID, "employee %s has unknown role %q", e.ID, e.RoleID)
		}
	}

	for i, a := range data.Assignments {
		if !employees[a.EmployeeID] {
			add(WarningUnknownEmployee, a.EmployeeID, "assignment %d references unknown employee %q", i, a.EmployeeID)
		}
		if !shifts[a.ShiftID] {
			add(WarningUnknownShift, a.ShiftID, "assignment %d references unknown shift %q", i, a.ShiftID)
		}
		if _, err := time.Parse(roster.DateLayout, a.Date); err != nil {
			add(WarningInvalidDate, a.Date, "assignment %d has date %q, want YYYY-MM-DD", i, a.Date)
		}
	}

	return warnings
}
