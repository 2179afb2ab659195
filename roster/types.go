// Package roster holds the scheduling data the rule engine reads: employees,
// job roles, shift types and the date-indexed shift assignments.
package roster

import (
	"sync"
	"time"
)

// DateLayout is the ISO calendar date format used by assignments and violations
const DateLayout = "2006-01-02"

// Employee represents a staff member on the roster
type Employee struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	RoleID string `json:"roleId" yaml:"roleId"`
}

// JobRole represents a job role such as RN or Charge
type JobRole struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// ShiftType represents a kind of shift an employee can be assigned to
type ShiftType struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Color string `json:"color,omitempty" yaml:"color,omitempty"`
}

// Assignment links one employee to one shift type on one date
type Assignment struct {
	EmployeeID string `json:"employeeId" yaml:"employeeId"`
	Date       string `json:"date" yaml:"date"`
	ShiftID    string `json:"shiftId" yaml:"shiftId"`
}

// Provider gives read-only access to the live roster.
// Implementations must return collections in a stable order.
type Provider interface {
	Employees() []Employee
	JobRoles() []JobRole
	ShiftTypes() []ShiftType
	Assignments() []Assignment
}

// Data is the serializable form of a roster
type Data struct {
	Employees   []Employee   `json:"employees" yaml:"employees"`
	JobRoles    []JobRole    `json:"jobRoles" yaml:"jobRoles"`
	ShiftTypes  []ShiftType  `json:"shiftTypes" yaml:"shiftTypes"`
	Assignments []Assignment `json:"assignments" yaml:"assignments"`
}

// Roster is an in-memory Provider whose contents can be swapped atomically
type Roster struct {
	data Data
	mu   sync.RWMutex
}

// New creates a roster from the given data
func New(data Data) *Roster {
	return &Roster{data: data}
}

// Replace swaps the whole roster
func (r *Roster) Replace(data Data) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = data
}

// Snapshot returns a copy of the current roster data
func (r *Roster) Snapshot() Data {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Data{
		Employees:   append([]Employee(nil), r.data.Employees...),
		JobRoles:    append([]JobRole(nil), r.data.JobRoles...),
		ShiftTypes:  append([]ShiftType(nil), r.data.ShiftTypes...),
		Assignments: append([]Assignment(nil), r.data.Assignments...),
	}
}

func (r *Roster) Employees() []Employee {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data.Employees
}

func (r *Roster) JobRoles() []JobRole {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data.JobRoles
}

func (r *Roster) ShiftTypes() []ShiftType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data.ShiftTypes
}

func (r *Roster) Assignments() []Assignment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data.Assignments
}

// Calendar supplies the interval the UI is currently showing
type Calendar interface {
	Interval() (start time.Time, days int)
}

// StaticCalendar is a settable Calendar
type StaticCalendar struct {
	start time.Time
	days  int
	mu    sync.RWMutex
}

// NewStaticCalendar creates a calendar showing days days from start
func NewStaticCalendar(start time.Time, days int) *StaticCalendar {
	return &StaticCalendar{start: StartOfDay(start), days: days}
}

// Interval returns the current interval start and length
func (c *StaticCalendar) Interval() (time.Time, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.start, c.days
}

// SetInterval moves the calendar window
func (c *StaticCalendar) SetInterval(start time.Time, days int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = StartOfDay(start)
	c.days = days
}

// StartOfDay truncates t to midnight UTC of its calendar date
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Dates lists the ISO dates of the interval starting at start
func Dates(start time.Time, days int) []string {
	if days <= 0 {
		return nil
	}
	start = StartOfDay(start)
	out := make([]string, 0, days)
	for i := 0; i < days; i++ {
		out = append(out, start.AddDate(0, 0, i).Format(DateLayout))
	}
	return out
}
