package main

import (
	"github.com/liamcoop/staffrules/multitenantengine"
	"github.com/liamcoop/staffrules/rules"
)

// API request and response models

// CreateUnitRequest is the body for creating a unit
type CreateUnitRequest struct {
	ID   string `json:"id" example:"icu"`
	Name string `json:"name" example:"Intensive Care"`
}

// UnitResponse describes a loaded unit
type UnitResponse struct {
	ID            string `json:"id" example:"icu"`
	Name          string `json:"name" example:"Intensive Care"`
	Rules         int    `json:"rules" example:"4"`
	CalendarStart string `json:"calendarStart" example:"2024-01-01"`
	CalendarDays  int    `json:"calendarDays" example:"28"`
}

// UnitsListResponse is the response for listing units
type UnitsListResponse struct {
	Units []UnitResponse `json:"units"`
}

// CalendarRequest moves a unit's evaluation interval
type CalendarRequest struct {
	Start string `json:"start" example:"2024-01-01"`
	Days  int    `json:"days" example:"28"`
}

// RosterResponse summarizes an accepted roster upload
type RosterResponse struct {
	Employees   int                               `json:"employees"`
	Assignments int                               `json:"assignments"`
	Warnings    []multitenantengine.RosterWarning `json:"warnings"`
}

// EvaluateRequest optionally overrides the unit's calendar for one pass
type EvaluateRequest struct {
	Start string `json:"start,omitempty" example:"2024-01-01"`
	Days  *int   `json:"days,omitempty" example:"7"`
}

// SeverityCounts tallies violations per severity
type SeverityCounts struct {
	Error   int `json:"error"`
	Warning int `json:"warning"`
	Info    int `json:"info"`
}

// EvaluateResponse is the response for an evaluation pass
type EvaluateResponse struct {
	Violations     []*rules.Violation `json:"violations"`
	Diagnostics    []rules.Diagnostic `json:"diagnostics"`
	Summary        SeverityCounts     `json:"summary"`
	EvaluationTime string             `json:"evaluationTime" example:"1.2ms"`
}

// PreviewResponse is the response for previewing one rule
type PreviewResponse struct {
	Violations  []*rules.Violation `json:"violations"`
	Diagnostics []rules.Diagnostic `json:"diagnostics"`
}

// RulesListResponse is the response for listing rules
type RulesListResponse struct {
	Rules []*rules.Rule `json:"rules"`
}

// TemplatesListResponse is the response for listing templates
type TemplatesListResponse struct {
	Templates []rules.Template `json:"templates"`
}

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Error   string `json:"error" example:"rule not found"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is the health check response
type HealthResponse struct {
	Status      string           `json:"status" example:"healthy"`
	UnitsLoaded int              `json:"unitsLoaded"`
	Database    string           `json:"database,omitempty" example:"ok"`
	Redis       string           `json:"redis,omitempty" example:"ok"`
	Counters    map[string]int64 `json:"counters"`
}

func summarize(vs []*rules.Violation) SeverityCounts {
	var c SeverityCounts
	for _, v := range vs {
		switch v.Severity {
		case rules.SeverityWarning:
			c.Warning++
		case rules.SeverityInfo:
			c.Info++
		default:
			c.Error++
		}
	}
	return c
}
