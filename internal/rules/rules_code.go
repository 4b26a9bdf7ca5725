package rules

import (
	"regexp"
	"strings"
)

var (
	returnRe       = regexp.MustCompile(`\breturn\b`)
	pyImportRe     = regexp.MustCompile(`(?m)^\s*(import|from)\s+(requests|pandas|numpy|urllib3|boto3)\b`)
	jsRequireRe    = regexp.MustCompile(`require\(\s*['"](axios|node-fetch|request|pg|mysql)['"]\s*\)`)
	inputAllRe     = regexp.MustCompile(`\$input\.all\(\)|\bitems\b`)
	jsonShortcutRe = regexp.MustCompile(`\$json\b`)
)

func codeRule(acc Accumulator, in Input) Accumulator {
	lang := in.StringOr("language", "javaScript")
	prop := "jsCode"
	if strings.HasPrefix(lang, "python") {
		prop = "pythonCode"
	}
	code := in.Text(prop)
	if strings.TrimSpace(code) == "" {
		return acc.Error(ProfileMinimal, Issue{
			Kind:     KindMissingRequired,
			Property: prop,
			Message:  "Code cannot be empty",
			Fix:      "Add code that returns an array of items",
		})
	}

	if !returnRe.MatchString(code) {
		acc = acc.Error(ProfileRuntime, Issue{
			Kind:     KindInvalidValue,
			Property: prop,
			Message:  "Code does not return any data",
			Fix:      "Return an array of items, e.g. return [{json: {...}}]",
		})
	}

	if strings.Contains(code, "{{") && strings.Contains(code, "}}") {
		acc = acc.Warn(ProfileRuntime, Issue{
			Kind:     KindInvalidValue,
			Property: prop,
			Message:  "{{ }} expression syntax is not evaluated inside code",
			Fix:      "Use $json / $input directly in code",
		})
	}

	switch in.StringOr("mode", "runOnceForAllItems") {
	case "runOnceForAllItems":
		if prop == "jsCode" && jsonShortcutRe.MatchString(code) && !inputAllRe.MatchString(code) {
			acc = acc.Warn(ProfileAIFriendly, Issue{
				Kind:     KindBestPractice,
				Property: prop,
				Message:  "$json in 'Run Once for All Items' mode only refers to the first item",
				Fix:      "Use $input.all() or switch mode to runOnceForEachItem",
			})
		}
	case "runOnceForEachItem":
		if strings.Contains(code, "$input.all()") {
			acc = acc.Warn(ProfileAIFriendly, Issue{
				Kind:     KindBestPractice,
				Property: prop,
				Message:  "$input.all() in 'Run Once for Each Item' mode processes every item once per item",
				Fix:      "Use $input.item or switch mode to runOnceForAllItems",
			})
		}
	}

	if pyImportRe.MatchString(code) || jsRequireRe.MatchString(code) {
		acc = acc.Warn(ProfileRuntime, Issue{
			Kind:     KindInvalidConfiguration,
			Property: prop,
			Message:  "Code imports a library that is not available in the code sandbox",
			Fix:      "Use an HTTP Request or database node instead",
		})
	}
	return acc
}

func functionRule(acc Accumulator, in Input) Accumulator {
	acc = acc.Warn(ProfileRuntime, Issue{
		Kind:    KindDeprecated,
		Message: "The Function node is deprecated; use the Code node",
		Fix:     "Replace with n8n-nodes-base.code",
	})
	if code := in.Text("functionCode"); code != "" && !returnRe.MatchString(code) {
		acc = acc.Error(ProfileRuntime, Issue{
			Kind:     KindInvalidValue,
			Property: "functionCode",
			Message:  "Code does not return any data",
		})
	}
	return acc
}
