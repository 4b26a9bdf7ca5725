package rules

import (
	"fmt"
	"net/mail"
	"strings"
)

func slackRule(acc Accumulator, in Input) Accumulator {
	if in.Resource() != "message" {
		return acc
	}
	switch op := in.Operation(); op {
	case "post":
		target := in.StringOr("select", "channel")
		prop := "channelId"
		if target == "user" {
			prop = "user"
		}
		if isEmpty(resourceValue(in.Config[prop])) {
			acc = acc.Error(ProfileMinimal, Issue{
				Kind:     KindMissingRequired,
				Property: prop,
				Message:  fmt.Sprintf("Slack message needs a %s to post to", target),
			})
		}
		if in.StringOr("messageType", "text") == "text" && !in.Has("text") {
			acc = acc.Error(ProfileRuntime, Issue{
				Kind:     KindMissingRequired,
				Property: "text",
				Message:  "Message text is required",
			})
		}
	case "update", "delete", "getPermalink":
		if !in.Has("ts") {
			acc = acc.Error(ProfileMinimal, Issue{
				Kind:     KindMissingRequired,
				Property: "ts",
				Message:  "Message timestamp (ts) is required to " + op + " a message",
			})
		}
	}
	return acc
}

func sheetsRule(acc Accumulator, in Input) Accumulator {
	if in.Resource() != "sheet" {
		return acc
	}
	switch op := in.Operation(); op {
	case "append", "update", "appendOrUpdate":
		if !in.Has("columns") {
			acc = acc.Warn(ProfileAIFriendly, Issue{
				Kind:     KindInvalidConfiguration,
				Property: "columns",
				Message:  "No column mapping; all input fields are written as-is",
			})
		}
		if op != "append" {
			matching, _ := in.Value("columns.matchingColumns")
			if isEmpty(matching) {
				acc = acc.Warn(ProfileRuntime, Issue{
					Kind:     KindMissingRequired,
					Property: "columns.matchingColumns",
					Message:  "A column to match on is required to " + op + " rows",
				})
			}
		}
	case "read":
		if !in.Has("filtersUI") {
			acc = acc.Warn(ProfileStrict, Issue{
				Kind:     KindUnbounded,
				Property: "filtersUI",
				Message:  "Reading without filters loads the whole sheet",
			})
		}
	case "clear", "delete":
		acc = acc.Warn(ProfileAIFriendly, Issue{
			Kind:     KindSecurity,
			Property: "operation",
			Message:  "Operation '" + op + "' removes sheet data",
		})
	}
	return acc
}

func emailRule(acc Accumulator, in Input) Accumulator {
	for _, prop := range []string{"fromEmail", "toEmail"} {
		raw := in.Text(prop)
		if raw == "" || IsExpression(raw) {
			continue
		}
		for _, addr := range strings.Split(raw, ",") {
			if _, err := mail.ParseAddress(strings.TrimSpace(addr)); err != nil {
				acc = acc.Error(ProfileRuntime, Issue{
					Kind:     KindInvalidValue,
					Property: prop,
					Message:  fmt.Sprintf("'%s' is not a valid email address", strings.TrimSpace(addr)),
				})
				break
			}
		}
	}
	if !in.Has("subject") {
		acc = acc.Warn(ProfileAIFriendly, Issue{
			Kind:     KindBestPractice,
			Property: "subject",
			Message:  "Email has no subject",
		})
	}
	body := "html"
	if in.StringOr("emailFormat", "html") == "text" {
		body = "text"
	}
	if !in.Has(body) {
		acc = acc.Warn(ProfileRuntime, Issue{
			Kind:     KindMissingRequired,
			Property: body,
			Message:  "Email body is empty",
		})
	}
	return acc
}

func gmailRule(acc Accumulator, in Input) Accumulator {
	if in.Resource() == "message" && in.Operation() == "send" {
		for _, prop := range []string{"sendTo", "subject", "message"} {
			if !in.Has(prop) {
				acc = acc.Error(ProfileMinimal, Issue{
					Kind:     KindMissingRequired,
					Property: prop,
					Message:  fmt.Sprintf("'%s' is required to send a message", prop),
				})
			}
		}
	}
	return acc
}

func legacyOpenAIRule(acc Accumulator, in Input) Accumulator {
	acc = acc.Warn(ProfileRuntime, Issue{
		Kind:    KindDeprecated,
		Message: "The legacy OpenAI node is deprecated; use the LangChain OpenAI node",
		Fix:     "Replace with @n8n/n8n-nodes-langchain.openAi",
	})
	if in.Resource() == "text" && in.StringOr("operation", "complete") == "complete" && !in.Has("prompt") {
		acc = acc.Error(ProfileMinimal, Issue{
			Kind:     KindMissingRequired,
			Property: "prompt",
			Message:  "Prompt is required for text completion",
		})
	}
	return openAIRule(acc, in)
}

func openAIRule(acc Accumulator, in Input) Accumulator {
	if n, ok := in.Number("options.maxTokens"); ok && n <= 0 {
		acc = acc.Error(ProfileRuntime, Issue{
			Kind:     KindInvalidValue,
			Property: "options.maxTokens",
			Message:  "maxTokens must be positive",
		})
	}
	if t, ok := in.Number("options.temperature"); ok && (t < 0 || t > 2) {
		acc = acc.Error(ProfileRuntime, Issue{
			Kind:     KindInvalidValue,
			Property: "options.temperature",
			Message:  "temperature must be between 0 and 2",
		})
	}
	if !in.Has("options.maxTokens") {
		acc = acc.Warn(ProfileStrict, Issue{
			Kind:     KindUnbounded,
			Property: "options.maxTokens",
			Message:  "No maxTokens limit set",
		})
	}
	return acc
}
