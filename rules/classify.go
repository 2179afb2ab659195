package rules

// Classification partitions enabled rules by evaluation scope
type Classification struct {
	// Employee rules are simple rules whose conditions are all employee-scoped
	Employee []*Rule
	// Daily rules are evaluated once per date against that date's snapshot
	Daily []*Rule
	// Advanced rules carry a JSON condition tree, evaluated per date
	Advanced []*Rule
}

// Classify sorts rules into scopes, dropping disabled ones. Input order is
// kept within each scope.
func Classify(rules []*Rule) Classification {
	var c Classification
	for _, r := range rules {
		if r == nil || !r.Enabled {
			continue
		}
		switch {
		case r.IsAdvanced():
			c.Advanced = append(c.Advanced, r)
		case isEmployeeRule(r):
			c.Employee = append(c.Employee, r)
		default:
			c.Daily = append(c.Daily, r)
		}
	}
	return c
}

func isEmployeeRule(r *Rule) bool {
	if len(r.Conditions) == 0 {
		return false
	}
	for _, cond := range r.Conditions {
		if !cond.Type.IsEmployeeScoped() {
			return false
		}
	}
	return true
}
