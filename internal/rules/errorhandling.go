package rules

import (
	"strings"

	"github.com/rendis/flowcheck/pkg/schema"
)

// Category is the IO class of a node configuration.
type Category int

const (
	CategoryNone Category = iota
	CategoryRead
	CategoryWrite
	CategoryDestructive
)

func (c Category) String() string {
	switch c {
	case CategoryRead:
		return "read"
	case CategoryWrite:
		return "write"
	case CategoryDestructive:
		return "destructive"
	}
	return "none"
}

// categorizers decide the IO class of types whose class depends on their
// configuration. Types not listed fall back to inferCategory.
var categorizers = map[string]func(Input) Category{
	base("httpRequest"):  httpCategory,
	base("postgres"):     sqlCategory,
	base("mySql"):        sqlCategory,
	base("microsoftSql"): sqlCategory,
	base("mongoDb"):      mongoCategory,
	base("slack"):        operationCategory,
	base("googleSheets"): operationCategory,
	base("gmail"):        operationCategory,
	base("emailSend"):    func(Input) Category { return CategoryWrite },
	base("openAi"):       func(Input) Category { return CategoryRead },
	lc("openAi"):         func(Input) Category { return CategoryRead },
}

// noIO lists types that never perform external IO even if they declare
// credentials (triggers receive, they do not call out).
var noIO = map[string]bool{
	base("webhook"):          true,
	base("respondToWebhook"): true,
	base("code"):             true,
	base("function"):         true,
	base("set"):              true,
	base("if"):               true,
	base("switch"):           true,
	base("filter"):           true,
	base("merge"):            true,
	base("wait"):             true,
	base("splitInBatches"):   true,
	base("noOp"):             true,
	base("stickyNote"):       true,
	base("executeWorkflow"):  true,
}

// CategoryOf returns the IO class of a node configuration.
func CategoryOf(in Input) Category {
	if noIO[in.Type] || strings.HasPrefix(in.Type, lcPrefix) && in.Type != lc("openAi") {
		return CategoryNone
	}
	if f, ok := categorizers[in.Type]; ok {
		return f(in)
	}
	return inferCategory(in)
}

// NeedsErrorHandling reports whether the node talks to an external system
// and has none of the error handling settings.
func NeedsErrorHandling(in Input) bool {
	if CategoryOf(in) == CategoryNone {
		return false
	}
	_, on := in.Config["onError"]
	_, retry := in.Config["retryOnFail"]
	_, cof := in.Config["continueOnFail"]
	return !on && !retry && !cof
}

// inferCategory guesses the IO class of an unrecognized type from its
// credentials and declared properties.
func inferCategory(in Input) Category {
	networked := len(in.Credentials) > 0 || in.HasCredentials
	for _, p := range in.Props {
		if p.Name == "url" {
			networked = true
		}
	}
	if !networked || strings.HasSuffix(in.Local(), "Trigger") {
		return CategoryNone
	}
	return operationCategory(in)
}

func operationCategory(in Input) Category {
	op := strings.ToLower(in.Operation())
	switch {
	case op == "":
		return CategoryWrite
	case containsAny(op, "delete", "remove", "clear", "drop", "truncate", "archive"):
		return CategoryDestructive
	case strings.HasPrefix(op, "get") || containsAny(op, "read", "search", "find", "select", "list", "lookup", "history", "permalink"):
		return CategoryRead
	}
	return CategoryWrite
}

func httpCategory(in Input) Category {
	switch strings.ToUpper(in.StringOr("method", "GET")) {
	case "GET", "HEAD", "OPTIONS":
		return CategoryRead
	case "DELETE":
		return CategoryDestructive
	}
	return CategoryWrite
}

func sqlCategory(in Input) Category {
	switch in.Operation() {
	case "select":
		return CategoryRead
	case "deleteTable", "delete":
		return CategoryDestructive
	case "executeQuery":
		q := strings.ToUpper(strings.TrimSpace(in.Text("query")))
		switch {
		case strings.HasPrefix(q, "SELECT"), strings.HasPrefix(q, "WITH"), strings.HasPrefix(q, "SHOW"):
			return CategoryRead
		case containsAny(q, "DELETE ", "DROP ", "TRUNCATE "):
			return CategoryDestructive
		}
	}
	return CategoryWrite
}

func mongoCategory(in Input) Category {
	switch in.Operation() {
	case "find", "aggregate":
		return CategoryRead
	case "delete":
		return CategoryDestructive
	}
	return CategoryWrite
}

// errorHandlingRule applies the onError/retryOnFail/continueOnFail
// convention. Conflicting, deprecated and invalid settings are reported on
// every type; missing handling and retry policy only on IO-capable ones.
func errorHandlingRule(acc Accumulator, in Input) Accumulator {
	onErr, hasOn := in.Config["onError"]
	cof, hasCof := in.Config["continueOnFail"]
	_, hasRetry := in.Config["retryOnFail"]

	switch {
	case hasCof && hasOn:
		acc = acc.Error(ProfileRuntime, Issue{
			Kind:     KindInvalidConfiguration,
			Property: "continueOnFail",
			Message:  "Both 'continueOnFail' and 'onError' are set; 'continueOnFail' is superseded by 'onError'",
			Fix:      "Remove 'continueOnFail'",
		})
		acc = acc.Fix(ProfileRuntime, "continueOnFail", nil)

	case hasCof:
		mapped := schema.OnErrorStop
		if b, _ := cof.(bool); b {
			mapped = schema.OnErrorContinue
		}
		acc = acc.Warn(ProfileRuntime, Issue{
			Kind:     KindDeprecated,
			Property: "continueOnFail",
			Message:  "'continueOnFail' is deprecated; use 'onError' instead",
			Fix:      "Replace with onError: '" + mapped + "'",
		})
		acc = acc.Fix(ProfileRuntime, "continueOnFail", nil)
		acc = acc.Fix(ProfileRuntime, "onError", mapped)
	}

	if s, ok := onErr.(string); ok && hasOn {
		switch s {
		case schema.OnErrorStop, schema.OnErrorContinue, schema.OnErrorContinueOutput:
		default:
			acc = acc.Error(ProfileRuntime, Issue{
				Kind:     KindInvalidValue,
				Property: "onError",
				Message:  "Invalid onError value '" + s + "'",
				Fix:      "Use stopWorkflow, continueRegularOutput or continueErrorOutput",
			})
		}
	}

	cat := CategoryOf(in)
	if cat == CategoryNone {
		return acc
	}

	if !hasOn && !hasRetry && !hasCof {
		acc = acc.Warn(ProfileAIFriendly, Issue{
			Kind:     KindBestPractice,
			Property: "onError",
			Message:  "No error handling configured for a " + cat.String() + " operation",
			Fix:      "Set 'onError' and 'retryOnFail' on the node",
			Code:     schema.CodeErrorHandlingMissing,
		})
		for k, v := range errorDefaults(cat) {
			acc = acc.Fix(ProfileAIFriendly, k, v)
		}
	}

	if cat != CategoryDestructive && !in.Bool("retryOnFail") {
		acc = acc.Warn(ProfileStrict, Issue{
			Kind:     KindBestPractice,
			Property: "retryOnFail",
			Message:  "External call has no retry policy",
			Fix:      "Set retryOnFail: true with maxTries",
		})
	}
	return acc
}

// errorDefaults returns the autofix patch for a category.
func errorDefaults(cat Category) map[string]any {
	switch cat {
	case CategoryDestructive:
		return map[string]any{"onError": schema.OnErrorStop}
	case CategoryRead:
		return map[string]any{
			"onError":          schema.OnErrorContinue,
			"retryOnFail":      true,
			"maxTries":         3,
			"waitBetweenTries": 1000,
		}
	}
	return map[string]any{"onError": schema.OnErrorContinueOutput}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
