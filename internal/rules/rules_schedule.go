package rules

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func checkCron(acc Accumulator, prop, expr string) Accumulator {
	if expr == "" || IsExpression(expr) {
		return acc
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return acc.Error(ProfileRuntime, Issue{
			Kind:     KindInvalidValue,
			Property: prop,
			Message:  fmt.Sprintf("Invalid cron expression '%s': %v", expr, err),
			Fix:      "Use 5 or 6 fields, e.g. '0 9 * * 1-5'",
		})
	}
	return acc
}

func scheduleRule(acc Accumulator, in Input) Accumulator {
	raw, _ := in.Value("rule.interval")
	intervals, _ := raw.([]any)
	if _, set := in.Config["rule"]; set && len(intervals) == 0 {
		return acc.Error(ProfileMinimal, Issue{
			Kind:     KindMissingRequired,
			Property: "rule.interval",
			Message:  "Schedule has no trigger interval",
		})
	}
	for i, it := range intervals {
		m, _ := it.(map[string]any)
		prop := fmt.Sprintf("rule.interval[%d]", i)
		field, _ := m["field"].(string)
		switch field {
		case "cronExpression":
			expr, _ := m["expression"].(string)
			if expr == "" {
				acc = acc.Error(ProfileMinimal, Issue{
					Kind:     KindMissingRequired,
					Property: prop + ".expression",
					Message:  "Cron expression is empty",
				})
				continue
			}
			acc = checkCron(acc, prop+".expression", expr)
		case "seconds":
			if n, ok := toNumber(m["secondsInterval"]); ok && n < 10 {
				acc = acc.Warn(ProfileStrict, Issue{
					Kind:     KindInefficient,
					Property: prop + ".secondsInterval",
					Message:  "Triggering more often than every 10 seconds",
				})
			}
		case "minutes":
			if n, ok := toNumber(m["minutesInterval"]); ok && n < 1 {
				acc = acc.Error(ProfileRuntime, Issue{
					Kind:     KindInvalidValue,
					Property: prop + ".minutesInterval",
					Message:  "minutesInterval must be at least 1",
				})
			}
		}
	}
	return acc
}

func cronRule(acc Accumulator, in Input) Accumulator {
	acc = acc.Warn(ProfileRuntime, Issue{
		Kind:    KindDeprecated,
		Message: "The Cron node is deprecated; use the Schedule Trigger",
		Fix:     "Replace with n8n-nodes-base.scheduleTrigger",
	})
	raw, _ := in.Value("triggerTimes.item")
	items, _ := raw.([]any)
	for i, it := range items {
		m, _ := it.(map[string]any)
		if m["mode"] == "custom" {
			expr, _ := m["cronExpression"].(string)
			acc = checkCron(acc, fmt.Sprintf("triggerTimes.item[%d].cronExpression", i), expr)
		}
	}
	return acc
}
