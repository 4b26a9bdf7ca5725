package rules

import (
	"regexp"
	"strings"
)

var (
	deleteNoWhereRe = regexp.MustCompile(`(?is)^\s*(DELETE\s+FROM|UPDATE)\s+[^;]*$`)
	whereRe         = regexp.MustCompile(`(?i)\bWHERE\b`)
	dropRe          = regexp.MustCompile(`(?i)\b(DROP\s+(TABLE|DATABASE|SCHEMA)|TRUNCATE)\b`)
	selectStarRe    = regexp.MustCompile(`(?i)^\s*SELECT\s+\*`)
	limitRe         = regexp.MustCompile(`(?i)\b(LIMIT|TOP)\b`)
)

// sqlRule covers Postgres, MySQL and Microsoft SQL.
func sqlRule(acc Accumulator, in Input) Accumulator {
	switch in.Operation() {
	case "executeQuery":
		q := in.Text("query")
		if strings.TrimSpace(q) == "" {
			return acc
		}
		for _, stmt := range strings.Split(q, ";") {
			if deleteNoWhereRe.MatchString(stmt) && !whereRe.MatchString(stmt) {
				acc = acc.Warn(ProfileRuntime, Issue{
					Kind:     KindSecurity,
					Property: "query",
					Message:  "DELETE/UPDATE without WHERE affects every row",
					Fix:      "Add a WHERE clause",
				})
				break
			}
		}
		if dropRe.MatchString(q) {
			acc = acc.Warn(ProfileRuntime, Issue{
				Kind:     KindSecurity,
				Property: "query",
				Message:  "Query drops or truncates data",
			})
		}
		if strings.Contains(q, "{{") {
			acc = acc.Warn(ProfileAIFriendly, Issue{
				Kind:     KindSecurity,
				Property: "query",
				Message:  "Expressions interpolated into SQL are open to injection",
				Fix:      "Use query parameters ($1, $2 / ?) with options.queryReplacement",
			})
		}
		if selectStarRe.MatchString(q) && !limitRe.MatchString(q) {
			acc = acc.Warn(ProfileStrict, Issue{
				Kind:     KindUnbounded,
				Property: "query",
				Message:  "SELECT * without LIMIT may return an unbounded result",
				Fix:      "Select explicit columns and add LIMIT",
			})
		}
	case "select":
		if in.Bool("returnAll") {
			acc = acc.Warn(ProfileAIFriendly, Issue{
				Kind:     KindUnbounded,
				Property: "returnAll",
				Message:  "returnAll loads the whole table",
				Fix:      "Set a limit",
			})
		}
	case "deleteTable":
		cmd := in.StringOr("deleteCommand", "truncate")
		if cmd == "drop" || cmd == "truncate" || !in.Has("where") {
			acc = acc.Warn(ProfileRuntime, Issue{
				Kind:     KindSecurity,
				Property: "deleteCommand",
				Message:  "Operation '" + cmd + "' removes every row of the table",
				Fix:      "Use deleteCommand 'delete' with a where filter",
			})
		}
	case "delete":
		if !in.Has("deleteKey") {
			acc = acc.Warn(ProfileRuntime, Issue{
				Kind:     KindSecurity,
				Property: "deleteKey",
				Message:  "Delete without a key column",
			})
		}
	}
	return acc
}

func mongoRule(acc Accumulator, in Input) Accumulator {
	op := in.Operation()
	q, hasQuery := in.Config["query"]
	if hasQuery && !IsExpression(q) && !validJSON(q) {
		acc = acc.Error(ProfileRuntime, Issue{
			Kind:     KindInvalidValue,
			Property: "query",
			Message:  "query is not valid JSON",
		})
	}
	emptyFilter := !hasQuery || isEmpty(q) || strings.TrimSpace(asString(q)) == "{}"

	switch op {
	case "delete":
		if emptyFilter {
			acc = acc.Warn(ProfileRuntime, Issue{
				Kind:     KindSecurity,
				Property: "query",
				Message:  "Delete with an empty filter removes every document in the collection",
				Fix:      "Add a filter to query",
			})
		}
	case "find":
		if !in.Has("options.limit") {
			acc = acc.Warn(ProfileStrict, Issue{
				Kind:     KindUnbounded,
				Property: "options.limit",
				Message:  "find without a limit may return an unbounded result",
			})
		}
	case "update", "findOneAndUpdate", "findOneAndReplace":
		if !in.Has("updateKey") {
			acc = acc.Error(ProfileRuntime, Issue{
				Kind:     KindMissingRequired,
				Property: "updateKey",
				Message:  "updateKey is required to match documents",
			})
		}
	}
	return acc
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
