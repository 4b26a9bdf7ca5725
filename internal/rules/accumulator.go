package rules

import (
	"maps"
	"slices"
)

// Kind classifies a rule finding.
type Kind string

const (
	KindMissingRequired      Kind = "missing_required"
	KindInvalidType          Kind = "invalid_type"
	KindInvalidValue         Kind = "invalid_value"
	KindSecurity             Kind = "security"
	KindDeprecated           Kind = "deprecated"
	KindBestPractice         Kind = "best_practice"
	KindInefficient          Kind = "inefficient"
	KindUnbounded            Kind = "unbounded"
	KindInvalidConfiguration Kind = "invalid_configuration"
	KindInternal             Kind = "internal"
)

// Issue is one rule finding.
type Issue struct {
	Kind     Kind   `json:"type"`
	Property string `json:"property,omitempty"`
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
	// Code, when set, is the workflow-level issue code the finding maps to.
	Code string `json:"code,omitempty"`
}

// Result is the outcome of validating one node configuration.
type Result struct {
	Valid       bool           `json:"valid"`
	Errors      []Issue        `json:"errors"`
	Warnings    []Issue        `json:"warnings"`
	Suggestions []string       `json:"suggestions"`
	Autofix     map[string]any `json:"autofix,omitempty"`
}

// Accumulator collects findings for one node. It is a value: every method
// returns an updated copy and never mutates the receiver's backing storage,
// so rule functions thread it through and return it.
//
// Every push names the minimum profile at which the finding applies; pushes
// above the active profile are dropped.
type Accumulator struct {
	profile     Profile
	errors      []Issue
	warnings    []Issue
	suggestions []string
	autofix     map[string]any
}

// NewAccumulator creates an empty accumulator for the given profile.
func NewAccumulator(p Profile) Accumulator {
	return Accumulator{profile: p}
}

// Profile returns the active profile.
func (a Accumulator) Profile() Profile { return a.profile }

// Active reports whether findings at min are reported under the active profile.
func (a Accumulator) Active(min Profile) bool { return a.profile >= min }

// Error records an error finding.
func (a Accumulator) Error(min Profile, is Issue) Accumulator {
	if !a.Active(min) {
		return a
	}
	a.errors = append(slices.Clip(a.errors), is)
	return a
}

// Warn records a warning finding.
func (a Accumulator) Warn(min Profile, is Issue) Accumulator {
	if !a.Active(min) {
		return a
	}
	a.warnings = append(slices.Clip(a.warnings), is)
	return a
}

// Suggest records a suggestion once.
func (a Accumulator) Suggest(min Profile, s string) Accumulator {
	if !a.Active(min) || slices.Contains(a.suggestions, s) {
		return a
	}
	a.suggestions = append(slices.Clip(a.suggestions), s)
	return a
}

// Fix sets an autofix key. Later writes to the same key win. A nil value
// means the key should be removed.
func (a Accumulator) Fix(min Profile, key string, value any) Accumulator {
	if !a.Active(min) {
		return a
	}
	next := maps.Clone(a.autofix)
	if next == nil {
		next = make(map[string]any, 1)
	}
	next[key] = value
	a.autofix = next
	return a
}

// HasError reports whether an error was recorded for the property.
func (a Accumulator) HasError(property string) bool {
	for _, is := range a.errors {
		if is.Property == property {
			return true
		}
	}
	return false
}

// Counts returns the number of errors and warnings recorded so far.
func (a Accumulator) Counts() (errors, warnings int) {
	return len(a.errors), len(a.warnings)
}

// Result freezes the accumulator into a Result. Slices are never nil.
func (a Accumulator) Result() *Result {
	r := &Result{
		Errors:      append([]Issue{}, a.errors...),
		Warnings:    append([]Issue{}, a.warnings...),
		Suggestions: append([]string{}, a.suggestions...),
		Autofix:     maps.Clone(a.autofix),
	}
	r.Valid = len(r.Errors) == 0
	return r
}
