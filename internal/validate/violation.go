// Package validate checks manifests structurally against a fixed schema and
// semantically against business rules. Validators never mutate their input.
package validate

import (
	"fmt"
	"sort"
)

// Severity grades a violation. Only errors make a manifest invalid.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Kind separates schema findings from business-rule findings.
type Kind string

const (
	KindSchema   Kind = "schema"
	KindBusiness Kind = "business"
)

// Violation is one validation finding.
type Violation struct {
	Kind     Kind     `json:"kind"`
	Rule     string   `json:"rule"`
	Path     string   `json:"path"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

func (v Violation) String() string {
	return fmt.Sprintf("[%s] %s %s: %s", v.Severity, v.Rule, v.Path, v.Message)
}

// OK reports whether none of the violations is an error.
func OK(vs []Violation) bool {
	for _, v := range vs {
		if v.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Errors returns only the error-severity violations.
func Errors(vs []Violation) []Violation {
	var out []Violation
	for _, v := range vs {
		if v.Severity == SeverityError {
			out = append(out, v)
		}
	}
	return out
}

// Rules returns the distinct rule names in vs, sorted.
func Rules(vs []Violation) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range vs {
		if !seen[v.Rule] {
			seen[v.Rule] = true
			out = append(out, v.Rule)
		}
	}
	sort.Strings(out)
	return out
}
