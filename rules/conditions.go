package rules

import (
	"errors"
	"strings"
)

var errMissingTarget = errors.New("condition does not name the role or shift to count")

type countContext struct {
	cond  *Condition
	snap  *StaffingSnapshot
	idx   *RosterIndex
	exprs *ExpressionCompiler
}

type countFunc func(ctx *countContext) (float64, error)

type kindSpec struct {
	count    countFunc
	describe func(c *Condition) string
}

// dailyKinds maps per-day condition kinds to their counting functions.
// Employee-scoped kinds live in employeeKinds.
var dailyKinds = map[ConditionKind]kindSpec{
	KindCountByRole: {
		count: func(ctx *countContext) (float64, error) {
			if ctx.cond.Role == "" {
				return 0, errMissingTarget
			}
			n := 0
			for _, id := range ctx.idx.resolveRoles(ctx.cond.Role) {
				n += ctx.snap.ByRole[id]
			}
			return float64(n), nil
		},
		describe: func(c *Condition) string { return c.Role + " staff" },
	},
	KindCountByShift: {
		count: func(ctx *countContext) (float64, error) {
			if ctx.cond.Shift == "" {
				return 0, errMissingTarget
			}
			n := 0
			for _, id := range ctx.idx.resolveShifts(ctx.cond.Shift) {
				n += ctx.snap.ByShift[id]
			}
			return float64(n), nil
		},
		describe: func(c *Condition) string { return "staff on " + c.Shift + " shift" },
	},
	KindCountByRoleAndShift: {
		count: func(ctx *countContext) (float64, error) {
			if ctx.cond.Role == "" || ctx.cond.Shift == "" {
				return 0, errMissingTarget
			}
			n := 0
			for _, roleID := range ctx.idx.resolveRoles(ctx.cond.Role) {
				for _, shiftID := range ctx.idx.resolveShifts(ctx.cond.Shift) {
					n += ctx.snap.ByRoleShift[roleShiftKey(roleID, shiftID)]
				}
			}
			return float64(n), nil
		},
		describe: func(c *Condition) string { return c.Role + " staff on " + c.Shift + " shift" },
	},
	KindTotalStaff: {
		count: func(ctx *countContext) (float64, error) {
			return float64(ctx.snap.TotalStaff), nil
		},
		describe: func(*Condition) string { return "total staff" },
	},
	KindCustomExpression: {
		count: func(ctx *countContext) (float64, error) {
			if strings.TrimSpace(ctx.cond.Expression) == "" {
				return 0, errMissingTarget
			}
			return ctx.exprs.Eval(ctx.cond.Expression, ctx.snap.Facts(ctx.idx))
		},
		describe: func(c *Condition) string { return "for " + c.Expression },
	},
}

var summaryLabels = map[string]string{
	"charge": "Charge",
	"rn":     "RN",
	"lpn":    "LPN",
	"cna":    "CNA",
	"tech":   "Tech",
	"clerk":  "Clerk",
}

func init() {
	for _, sr := range summaryRoles {
		for _, part := range []string{"day", "night"} {
			row := sr.key + "_" + part
			label := summaryLabels[sr.key] + " staff on " + part + " shifts"
			dailyKinds[ConditionKind("summary_"+row)] = kindSpec{
				count: func(ctx *countContext) (float64, error) {
					return float64(ctx.snap.Summary[row]), nil
				},
				describe: func(*Condition) string { return label },
			}
		}
	}
}

// IsKnownKind reports whether the engine has a counting function for kind
func IsKnownKind(kind ConditionKind) bool {
	if _, ok := dailyKinds[kind]; ok {
		return true
	}
	_, ok := employeeKinds[kind]
	return ok
}
