package rules

import (
	"fmt"
	"net/url"
	"strings"
)

func httpRequestRule(acc Accumulator, in Input) Accumulator {
	if raw, ok := in.Config["url"].(string); ok && raw != "" && !IsExpression(raw) {
		acc = checkURL(acc, "url", raw)
	}

	method := strings.ToUpper(in.StringOr("method", "GET"))
	switch method {
	case "POST", "PUT", "PATCH":
		if !in.Bool("sendBody") {
			acc = acc.Warn(ProfileAIFriendly, Issue{
				Kind:     KindBestPractice,
				Property: "sendBody",
				Message:  method + " request without a body",
				Fix:      "Set sendBody: true and provide bodyParameters or jsonBody",
			})
		}
	}

	if in.Bool("sendBody") && in.StringOr("specifyBody", "keypair") == "json" {
		if v, ok := in.Config["jsonBody"]; ok && !IsExpression(v) && !validJSON(v) {
			acc = acc.Error(ProfileRuntime, Issue{
				Kind:     KindInvalidValue,
				Property: "jsonBody",
				Message:  "jsonBody is not valid JSON",
				Fix:      "Fix the JSON or build it with an expression",
			})
		}
	}

	if in.StringOr("authentication", "none") == "none" && !in.Bool("sendHeaders") {
		if u := in.Text("url"); strings.Contains(strings.ToLower(u), "api") {
			acc = acc.Suggest(ProfileAIFriendly, "HTTP Request '"+in.Name+"' calls an API without authentication; configure credentials if the API requires them")
		}
	}

	if _, ok := in.Number("options.timeout"); !ok {
		acc = acc.Warn(ProfileStrict, Issue{
			Kind:     KindUnbounded,
			Property: "options.timeout",
			Message:  "No request timeout configured",
			Fix:      "Set options.timeout (milliseconds)",
		})
		acc = acc.Fix(ProfileStrict, "options.timeout", 30000)
	}
	return acc
}

// checkURL validates a literal URL parameter.
func checkURL(acc Accumulator, prop, raw string) Accumulator {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		if !strings.Contains(raw, "://") {
			acc = acc.Fix(ProfileRuntime, prop, "https://"+raw)
			return acc.Error(ProfileRuntime, Issue{
				Kind:     KindInvalidValue,
				Property: prop,
				Message:  fmt.Sprintf("URL '%s' has no scheme", raw),
				Fix:      "Prefix the URL with https://",
			})
		}
		return acc.Error(ProfileRuntime, Issue{
			Kind:     KindInvalidValue,
			Property: prop,
			Message:  fmt.Sprintf("URL '%s' is not valid", raw),
		})
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return acc.Error(ProfileRuntime, Issue{
			Kind:     KindInvalidValue,
			Property: prop,
			Message:  fmt.Sprintf("URL scheme '%s' is not supported; use http or https", u.Scheme),
		})
	}
	return acc
}

func webhookRule(acc Accumulator, in Input) Accumulator {
	path := in.Text("path")
	switch {
	case path == "":
		acc = acc.Warn(ProfileAIFriendly, Issue{
			Kind:     KindBestPractice,
			Property: "path",
			Message:  "Webhook path is not set; a random path will be generated",
			Fix:      "Set a stable, descriptive path",
		})
	case strings.HasPrefix(path, "/"):
		acc = acc.Warn(ProfileRuntime, Issue{
			Kind:     KindInvalidValue,
			Property: "path",
			Message:  "Webhook path should not start with '/'",
			Fix:      "Remove the leading '/'",
		})
		acc = acc.Fix(ProfileRuntime, "path", strings.TrimLeft(path, "/"))
	}

	switch in.Text("responseMode") {
	case "responseNode":
		acc = acc.Suggest(ProfileRuntime, "Webhook '"+in.Name+"' responds from a Respond to Webhook node; make sure every branch reaches one")
	case "lastNode":
		acc = acc.Suggest(ProfileAIFriendly, "Webhook '"+in.Name+"' returns the output of the last node; long workflows may time out the caller")
	}
	return acc
}

func respondToWebhookRule(acc Accumulator, in Input) Accumulator {
	switch in.StringOr("respondWith", "firstIncomingItem") {
	case "json":
		if v, ok := in.Config["responseBody"]; ok && !IsExpression(v) && !validJSON(v) {
			acc = acc.Error(ProfileRuntime, Issue{
				Kind:     KindInvalidValue,
				Property: "responseBody",
				Message:  "responseBody is not valid JSON",
			})
		}
	case "redirect":
		if raw := in.Text("redirectURL"); raw != "" && !IsExpression(raw) {
			acc = checkURL(acc, "redirectURL", raw)
		}
	}
	return acc
}
