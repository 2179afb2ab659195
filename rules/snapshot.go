package rules

import (
	"strings"
	"time"

	"github.com/liamcoop/staffrules/roster"
)

// StaffingSnapshot aggregates one date's assignments.
// ByRole and ByShift are keyed by role and shift ID; ByRoleShift by roleShiftKey.
type StaffingSnapshot struct {
	Date        string
	Weekday     time.Weekday
	IsWeekend   bool
	ByRole      map[string]int
	ByShift     map[string]int
	ByRoleShift map[string]int
	Summary     map[string]int
	TotalStaff  int
	EmployeeIDs []string

	facts map[string]any
}

func roleShiftKey(roleID, shiftID string) string {
	return roleID + "/" + shiftID
}

type assignmentKey struct {
	employeeID string
	date       string
}

// RosterIndex is built once per evaluation pass so every per-day and
// per-employee lookup is a map hit.
type RosterIndex struct {
	employees   []roster.Employee
	roles       map[string]roster.JobRole
	shifts      map[string]roster.ShiftType
	roleOrder   []roster.JobRole
	shiftOrder  []roster.ShiftType
	assignments map[assignmentKey]roster.Assignment
}

// NewRosterIndex indexes the provider's current contents.
// A later assignment for the same employee and date replaces an earlier one.
func NewRosterIndex(p roster.Provider) *RosterIndex {
	idx := &RosterIndex{
		employees:   p.Employees(),
		roles:       make(map[string]roster.JobRole),
		shifts:      make(map[string]roster.ShiftType),
		roleOrder:   p.JobRoles(),
		shiftOrder:  p.ShiftTypes(),
		assignments: make(map[assignmentKey]roster.Assignment),
	}
	for _, r := range idx.roleOrder {
		idx.roles[r.ID] = r
	}
	for _, s := range idx.shiftOrder {
		idx.shifts[s.ID] = s
	}
	for _, a := range p.Assignments() {
		idx.assignments[assignmentKey{a.EmployeeID, a.Date}] = a
	}
	return idx
}

// Employees returns the roster's employees in roster order
func (idx *RosterIndex) Employees() []roster.Employee {
	return idx.employees
}

// Assignment returns the employee's assignment on date, if any
func (idx *RosterIndex) Assignment(employeeID, date string) (roster.Assignment, bool) {
	a, ok := idx.assignments[assignmentKey{employeeID, date}]
	return a, ok
}

// ShiftName returns the display name of a shift ID, or "" when unknown
func (idx *RosterIndex) ShiftName(shiftID string) string {
	return idx.shifts[shiftID].Name
}

// RoleName returns the display name of a role ID, or "" when unknown
func (idx *RosterIndex) RoleName(roleID string) string {
	return idx.roles[roleID].Name
}

// resolveRoles maps a role reference (ID or case-insensitive name) to role IDs
func (idx *RosterIndex) resolveRoles(ref string) []string {
	if _, ok := idx.roles[ref]; ok {
		return []string{ref}
	}
	var ids []string
	for _, r := range idx.roleOrder {
		if strings.EqualFold(strings.TrimSpace(r.Name), strings.TrimSpace(ref)) {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// resolveShifts maps a shift reference (ID or case-insensitive name) to shift IDs
func (idx *RosterIndex) resolveShifts(ref string) []string {
	if _, ok := idx.shifts[ref]; ok {
		return []string{ref}
	}
	var ids []string
	for _, s := range idx.shiftOrder {
		if strings.EqualFold(strings.TrimSpace(s.Name), strings.TrimSpace(ref)) {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// summaryRoles are the role rows of the summary panel; each is matched
// against job role names case-insensitively.
var summaryRoles = []struct {
	key     string
	aliases []string
}{
	{"charge", []string{"charge", "charge nurse", "charge rn"}},
	{"rn", []string{"rn", "registered nurse"}},
	{"lpn", []string{"lpn", "licensed practical nurse"}},
	{"cna", []string{"cna", "nursing assistant", "certified nursing assistant"}},
	{"tech", []string{"tech", "technician", "pct", "patient care technician"}},
	{"clerk", []string{"clerk", "unit clerk", "secretary", "unit secretary"}},
}

func summaryRoleKey(roleName string) string {
	name := strings.ToLower(strings.TrimSpace(roleName))
	for _, sr := range summaryRoles {
		for _, alias := range sr.aliases {
			if name == alias {
				return sr.key
			}
		}
	}
	return ""
}

// BuildSnapshot aggregates the assignments of one date. References to
// unknown roles or shifts add nothing to the matching counters.
func BuildSnapshot(date string, idx *RosterIndex) *StaffingSnapshot {
	snap := &StaffingSnapshot{
		Date:        date,
		ByRole:      make(map[string]int),
		ByShift:     make(map[string]int),
		ByRoleShift: make(map[string]int),
		Summary:     make(map[string]int, len(summaryRoles)*2),
	}
	for _, sr := range summaryRoles {
		snap.Summary[sr.key+"_day"] = 0
		snap.Summary[sr.key+"_night"] = 0
	}

	if t, err := time.Parse(roster.DateLayout, date); err == nil {
		snap.Weekday = t.Weekday()
		snap.IsWeekend = snap.Weekday == time.Saturday || snap.Weekday == time.Sunday
	}

	for _, emp := range idx.employees {
		a, ok := idx.Assignment(emp.ID, date)
		if !ok {
			continue
		}
		snap.TotalStaff++
		snap.EmployeeIDs = append(snap.EmployeeIDs, emp.ID)

		role, roleKnown := idx.roles[emp.RoleID]
		shift, shiftKnown := idx.shifts[a.ShiftID]
		if roleKnown {
			snap.ByRole[role.ID]++
		}
		if shiftKnown {
			snap.ByShift[shift.ID]++
		}
		if !roleKnown || !shiftKnown {
			continue
		}
		snap.ByRoleShift[roleShiftKey(role.ID, shift.ID)]++

		if key := summaryRoleKey(role.Name); key != "" {
			if isDayShift(shift.Name) {
				snap.Summary[key+"_day"]++
			}
			if isNightShift(shift.Name) {
				snap.Summary[key+"_night"]++
			}
		}
	}

	return snap
}

// Facts exposes the snapshot to CEL expressions and JSON-logic guards.
// Role and shift counts are keyed by display name; every known role and
// shift is present, with zero when unstaffed.
func (s *StaffingSnapshot) Facts(idx *RosterIndex) map[string]any {
	if s.facts != nil {
		return s.facts
	}

	roles := make(map[string]any, len(idx.roleOrder))
	for _, r := range idx.roleOrder {
		roles[r.Name] = int64(s.ByRole[r.ID]) + toInt64(roles[r.Name])
	}
	shifts := make(map[string]any, len(idx.shiftOrder))
	for _, sh := range idx.shiftOrder {
		shifts[sh.Name] = int64(s.ByShift[sh.ID]) + toInt64(shifts[sh.Name])
	}
	summary := make(map[string]any, len(s.Summary))
	for k, v := range s.Summary {
		summary[k] = int64(v)
	}

	s.facts = map[string]any{
		"date":    s.Date,
		"weekday": s.Weekday.String(),
		"weekend": s.IsWeekend,
		"total":   int64(s.TotalStaff),
		"roles":   roles,
		"shifts":  shifts,
		"summary": summary,
	}
	return s.facts
}

func toInt64(v any) int64 {
	n, _ := v.(int64)
	return n
}
