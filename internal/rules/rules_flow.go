package rules

import (
	"fmt"
	"strings"
)

func setRule(acc Accumulator, in Input) Accumulator {
	switch in.StringOr("mode", "manual") {
	case "raw":
		v, ok := in.Config["jsonOutput"]
		if !ok || isEmpty(v) {
			return acc.Error(ProfileMinimal, Issue{
				Kind:     KindMissingRequired,
				Property: "jsonOutput",
				Message:  "jsonOutput is required in raw mode",
			})
		}
		if !IsExpression(v) && !validJSON(v) {
			acc = acc.Error(ProfileRuntime, Issue{
				Kind:     KindInvalidValue,
				Property: "jsonOutput",
				Message:  "jsonOutput is not valid JSON",
			})
		}
	default:
		if list, _ := in.Value("assignments.assignments"); isEmpty(list) && !in.Has("values") {
			acc = acc.Warn(ProfileRuntime, Issue{
				Kind:     KindInvalidConfiguration,
				Property: "assignments",
				Message:  "No fields are set",
				Fix:      "Add at least one assignment",
			})
		}
	}
	return acc
}

// conditionsRule covers If and Filter.
func conditionsRule(acc Accumulator, in Input) Accumulator {
	list, _ := in.Value("conditions.conditions")
	conds, _ := list.([]any)
	if _, set := in.Config["conditions"]; set && len(conds) == 0 {
		return acc.Warn(ProfileRuntime, Issue{
			Kind:     KindInvalidConfiguration,
			Property: "conditions",
			Message:  "No conditions defined",
			Fix:      "Add at least one condition",
		})
	}
	for i, c := range conds {
		m, _ := c.(map[string]any)
		op, _ := m["operator"].(map[string]any)
		if len(op) == 0 || op["operation"] == nil {
			acc = acc.Error(ProfileRuntime, Issue{
				Kind:     KindMissingRequired,
				Property: fmt.Sprintf("conditions.conditions[%d].operator", i),
				Message:  fmt.Sprintf("Condition %d has no operator", i+1),
			})
			continue
		}
		if isEmpty(m["leftValue"]) {
			acc = acc.Warn(ProfileAIFriendly, Issue{
				Kind:     KindInvalidConfiguration,
				Property: fmt.Sprintf("conditions.conditions[%d].leftValue", i),
				Message:  fmt.Sprintf("Condition %d compares an empty value", i+1),
			})
		}
	}
	if len(conds) > 1 {
		if comb, _ := in.Value("conditions.combinator"); comb == nil {
			acc = acc.Suggest(ProfileStrict, "Set conditions.combinator (and/or) explicitly on '"+in.Name+"'")
		}
	}
	return acc
}

func switchRule(acc Accumulator, in Input) Accumulator {
	switch in.StringOr("mode", "rules") {
	case "rules":
		list, _ := in.Value("rules.values")
		if rules, _ := list.([]any); len(rules) == 0 {
			acc = acc.Warn(ProfileRuntime, Issue{
				Kind:     KindInvalidConfiguration,
				Property: "rules",
				Message:  "Switch has no routing rules",
				Fix:      "Add at least one rule",
			})
		}
		if !in.Has("options.fallbackOutput") {
			acc = acc.Suggest(ProfileAIFriendly, "Configure a fallback output on '"+in.Name+"' so unmatched items are not dropped")
		}
	case "expression":
		if n, ok := in.Number("numberOutputs"); ok && n < 2 {
			acc = acc.Warn(ProfileRuntime, Issue{
				Kind:     KindInvalidValue,
				Property: "numberOutputs",
				Message:  "Switch in expression mode needs at least 2 outputs",
			})
		}
		if !in.Has("output") {
			acc = acc.Error(ProfileMinimal, Issue{
				Kind:     KindMissingRequired,
				Property: "output",
				Message:  "Output index expression is required in expression mode",
			})
		}
	}
	return acc
}

func mergeRule(acc Accumulator, in Input) Accumulator {
	switch in.StringOr("mode", "append") {
	case "combine":
		if in.StringOr("combineBy", "combineByFields") == "combineByFields" && !in.Has("fieldsToMatchString") && !in.Has("mergeByFields") {
			acc = acc.Error(ProfileRuntime, Issue{
				Kind:     KindMissingRequired,
				Property: "fieldsToMatchString",
				Message:  "Fields to match are required when combining by fields",
			})
		}
	case "combineBySql":
		if !in.Has("query") {
			acc = acc.Error(ProfileMinimal, Issue{
				Kind:     KindMissingRequired,
				Property: "query",
				Message:  "SQL query is required when combining by SQL",
			})
		}
	}
	if n, ok := in.Number("numberInputs"); ok && n > 10 {
		acc = acc.Warn(ProfileStrict, Issue{
			Kind:     KindInefficient,
			Property: "numberInputs",
			Message:  fmt.Sprintf("Merge with %v inputs is hard to follow", n),
		})
	}
	return acc
}

func splitInBatchesRule(acc Accumulator, in Input) Accumulator {
	if n, ok := in.Number("batchSize"); ok && n < 1 {
		acc = acc.Error(ProfileRuntime, Issue{
			Kind:     KindInvalidValue,
			Property: "batchSize",
			Message:  "batchSize must be at least 1",
		})
		acc = acc.Fix(ProfileRuntime, "batchSize", 1)
	}
	return acc.Suggest(ProfileAIFriendly, "Loop Over Items '"+in.Name+"': output 0 is 'done', output 1 is 'loop'; connect the processing branch back to this node")
}

func waitRule(acc Accumulator, in Input) Accumulator {
	switch in.StringOr("resume", "timeInterval") {
	case "timeInterval":
		n, ok := in.Number("amount")
		if ok && n <= 0 {
			acc = acc.Error(ProfileRuntime, Issue{
				Kind:     KindInvalidValue,
				Property: "amount",
				Message:  "Wait amount must be positive",
			})
		}
		if ok && in.StringOr("unit", "hours") == "days" && n > 30 {
			acc = acc.Warn(ProfileStrict, Issue{
				Kind:     KindUnbounded,
				Property: "amount",
				Message:  "Waiting more than 30 days keeps executions open for a long time",
			})
		}
	case "specificTime":
		if !in.Has("dateTime") {
			acc = acc.Error(ProfileMinimal, Issue{
				Kind:     KindMissingRequired,
				Property: "dateTime",
				Message:  "dateTime is required when resuming at a specific time",
			})
		}
	case "webhook", "form":
		if !in.Bool("limitWaitTime") {
			acc = acc.Warn(ProfileAIFriendly, Issue{
				Kind:     KindUnbounded,
				Property: "limitWaitTime",
				Message:  "Execution waits indefinitely for the resume call",
				Fix:      "Enable limitWaitTime",
			})
		}
	}
	return acc
}

func executeWorkflowRule(acc Accumulator, in Input) Accumulator {
	switch in.StringOr("source", "database") {
	case "database":
		if isEmpty(resourceValue(in.Config["workflowId"])) {
			acc = acc.Error(ProfileMinimal, Issue{
				Kind:     KindMissingRequired,
				Property: "workflowId",
				Message:  "workflowId is required to call a workflow from the database",
			})
		}
	case "parameter":
		v, ok := in.Config["workflowJson"]
		switch {
		case !ok || isEmpty(v):
			acc = acc.Error(ProfileMinimal, Issue{
				Kind:     KindMissingRequired,
				Property: "workflowJson",
				Message:  "workflowJson is required when the workflow is passed as a parameter",
			})
		case !IsExpression(v) && !validJSON(v):
			acc = acc.Error(ProfileRuntime, Issue{
				Kind:     KindInvalidValue,
				Property: "workflowJson",
				Message:  "workflowJson is not valid JSON",
			})
		}
	case "localFile":
		if !in.Has("workflowPath") {
			acc = acc.Error(ProfileMinimal, Issue{
				Kind:     KindMissingRequired,
				Property: "workflowPath",
				Message:  "workflowPath is required when loading a local file",
			})
		}
	case "url":
		raw := in.Text("workflowUrl")
		if raw == "" {
			acc = acc.Error(ProfileMinimal, Issue{
				Kind:     KindMissingRequired,
				Property: "workflowUrl",
				Message:  "workflowUrl is required when loading from a URL",
			})
		} else if !IsExpression(raw) {
			acc = checkURL(acc, "workflowUrl", raw)
		}
	}
	if strings.EqualFold(in.Text("mode"), "each") {
		acc = acc.Suggest(ProfileStrict, "'"+in.Name+"' runs the sub-workflow once per item; use mode 'once' for batch processing")
	}
	return acc
}
