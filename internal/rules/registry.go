package rules

import "github.com/rendis/flowcheck/internal/catalog"

// Rule validates one node configuration. It receives the accumulator built
// so far and returns the updated one.
type Rule func(acc Accumulator, in Input) Accumulator

const (
	basePrefix = catalog.PackageBase + "."
	lcPrefix   = catalog.PackageLangChain + "."
)

func base(local string) string { return basePrefix + local }
func lc(local string) string   { return lcPrefix + local }

// builtinRules maps canonical type names to their rule functions.
func builtinRules() map[string]Rule {
	return map[string]Rule{
		base("httpRequest"):      httpRequestRule,
		base("webhook"):          webhookRule,
		base("respondToWebhook"): respondToWebhookRule,
		base("code"):             codeRule,
		base("function"):         functionRule,
		base("set"):              setRule,
		base("if"):               conditionsRule,
		base("filter"):           conditionsRule,
		base("switch"):           switchRule,
		base("merge"):            mergeRule,
		base("splitInBatches"):   splitInBatchesRule,
		base("wait"):             waitRule,
		base("executeWorkflow"):  executeWorkflowRule,
		base("postgres"):         sqlRule,
		base("mySql"):            sqlRule,
		base("microsoftSql"):     sqlRule,
		base("mongoDb"):          mongoRule,
		base("slack"):            slackRule,
		base("googleSheets"):     sheetsRule,
		base("emailSend"):        emailRule,
		base("gmail"):            gmailRule,
		base("openAi"):           legacyOpenAIRule,
		lc("openAi"):             openAIRule,
		base("scheduleTrigger"):  scheduleRule,
		base("cron"):             cronRule,
	}
}
