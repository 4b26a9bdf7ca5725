package rules

import (
	"strings"

	"github.com/rendis/flowcheck/pkg/schema"
)

// Profile is a strictness level. Each profile reports everything the
// previous one does, plus more.
type Profile int

const (
	ProfileMinimal Profile = iota
	ProfileRuntime
	ProfileAIFriendly
	ProfileStrict
)

const (
	// DefaultProfile applies to single-node rule checks that name no profile.
	DefaultProfile = ProfileAIFriendly
	// DefaultWorkflowProfile applies to workflow runs that name no profile.
	DefaultWorkflowProfile = ProfileRuntime
)

var profileNames = [...]string{"minimal", "runtime", "ai-friendly", "strict"}

func (p Profile) String() string {
	if p < ProfileMinimal || p > ProfileStrict {
		return "unknown"
	}
	return profileNames[p]
}

// ParseProfile parses a profile name. Underscores are accepted in place of
// dashes.
func ParseProfile(s string) (Profile, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for i, name := range profileNames {
		if norm == name {
			return Profile(i), nil
		}
	}
	return 0, schema.NewErrorf(schema.ErrCodeValidation,
		"unknown profile %q; expected one of %s", s, strings.Join(profileNames[:], ", ")).
		WithDetails(map[string]any{"profile": s})
}

// ProfileOr parses s, or returns def when s is blank.
func ProfileOr(s string, def Profile) (Profile, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	return ParseProfile(s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Profile) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Profile) UnmarshalText(b []byte) error {
	parsed, err := ParseProfile(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
