package rules

import (
	"fmt"
	"strings"
)

// essentialsRule is the fallback for types without a dedicated rule. It
// infers the essentials from the descriptor: selector properties, URL
// properties, credentials and destructive operations.
func essentialsRule(acc Accumulator, in Input) Accumulator {
	if len(in.Props) == 0 {
		return acc.Suggest(ProfileStrict, fmt.Sprintf("No property metadata for %s; only generic checks were applied", in.Local()))
	}

	for _, p := range in.Props {
		if p.Type != "options" || (p.Name != "resource" && p.Name != "operation") {
			continue
		}
		if _, set := in.Config[p.Name]; !set && isEmpty(p.Default) {
			acc = acc.Warn(ProfileAIFriendly, Issue{
				Kind:     KindMissingRequired,
				Property: p.Name,
				Message:  fmt.Sprintf("No %s selected", p.Name),
				Fix:      fmt.Sprintf("Set '%s' explicitly", p.Name),
			})
		}
	}

	if raw := in.Text("url"); raw != "" && !IsExpression(raw) {
		acc = checkURL(acc, "url", raw)
	}

	if len(in.Credentials) > 0 && !in.HasCredentials && !strings.HasSuffix(in.Local(), "Trigger") {
		acc = acc.Warn(ProfileAIFriendly, Issue{
			Kind:    KindMissingRequired,
			Message: fmt.Sprintf("No credentials attached; %s expects one of: %s", in.Local(), strings.Join(in.Credentials, ", ")),
			Fix:     "Attach a credential",
		})
	}

	if CategoryOf(in) == CategoryDestructive && !in.Has("filters") && !in.Has("where") && !in.Has("query") && !in.Has("id") {
		acc = acc.Warn(ProfileAIFriendly, Issue{
			Kind:     KindSecurity,
			Property: "operation",
			Message:  fmt.Sprintf("Destructive operation '%s' without an identifying filter", in.Operation()),
		})
	}
	return acc
}
