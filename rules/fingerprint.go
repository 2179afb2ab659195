package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/liamcoop/staffrules/roster"
)

// fingerprintedRule is the part of a rule that can change its violations.
// Timestamps and descriptions are left out so replicas holding the same
// rules agree.
type fingerprintedRule struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Conditions []Condition `json:"conditions,omitempty"`
}

// evaluationFingerprint hashes everything a pass reads besides its interval:
// the active rules in order and the roster. When something cannot be
// encoded, salt is mixed in so the result is never shared with another engine.
func evaluationFingerprint(active []*Rule, p roster.Provider, salt string) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	unshared := false

	for _, r := range active {
		if err := enc.Encode(fingerprintedRule{ID: r.ID, Name: r.Name, Conditions: r.Conditions}); err != nil {
			unshared = true
		}
		// advanced trees may be malformed, so their bytes go in as they are
		fmt.Fprintf(h, "%d:", len(r.JSON))
		h.Write(r.JSON)
	}

	for _, part := range []any{p.Employees(), p.JobRoles(), p.ShiftTypes(), p.Assignments()} {
		if err := enc.Encode(part); err != nil {
			unshared = true
		}
	}

	if unshared {
		fmt.Fprintf(h, "unshared:%s", salt)
	}
	return hex.EncodeToString(h.Sum(nil))
}
