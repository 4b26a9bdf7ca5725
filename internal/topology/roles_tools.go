package topology

import (
	"encoding/json"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/rendis/flowcheck/pkg/schema"
)

const maxTopK = 20

var (
	placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	regionRe      = regexp.MustCompile(`(?s)\{\{.*?\}\}`)
	identRe       = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// searchCredentials maps search tools to the credential they need.
var searchCredentials = map[string]string{
	lc("toolSerpApi"):      "serpApi",
	lc("toolSearXng"):      "searXngApi",
	lc("toolWolframAlpha"): "wolframAlphaApi",
}

func vectorStoreToolRole(r *run, n *schema.Node) {
	stores := r.ix.Inbound(n.Name, schema.KindVectorStore)
	if len(stores) == 0 {
		r.errorf(n, schema.CodeMissingVectorStore,
			"Vector Store Tool '%s' has no vector store connected (ai_vectorStore)", n.Name)
	}
	for _, s := range stores {
		checkVectorStore(r, s.Name, n.Name)
	}
	if len(r.ix.Inbound(n.Name, schema.KindLanguageModel)) == 0 {
		r.errorf(n, schema.CodeMissingLanguageModel,
			"Vector Store Tool '%s' has no language model connected to answer from the retrieved documents", n.Name)
	}
	if k, ok := number(n, "topK"); ok && k > maxTopK {
		r.warnf(n, schema.CodeTopology,
			"Vector Store Tool '%s' retrieves %v documents; more than %d floods the model context", n.Name, k, maxTopK)
	}
	if text(n, "description") == "" {
		r.warnf(n, schema.CodeInvalidToolConfig,
			"Vector Store Tool '%s' has no description of the data it covers", n.Name)
	}
}

func httpToolRole(r *run, n *schema.Node) {
	if text(n, "toolDescription") == "" && text(n, "description") == "" {
		r.errorf(n, schema.CodeInvalidToolConfig,
			"HTTP Request Tool '%s' has no description; the agent uses it to decide when to call the tool", n.Name)
	}

	raw := text(n, "url")
	switch {
	case raw == "":
		r.errorf(n, schema.CodeInvalidToolConfig, "HTTP Request Tool '%s' has no URL", n.Name)
	case !isExpression(raw):
		sample := placeholderRe.ReplaceAllString(raw, "x")
		u, err := url.Parse(sample)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			r.errorf(n, schema.CodeInvalidToolConfig,
				"HTTP Request Tool '%s' URL '%s' must be an absolute http:// or https:// URL", n.Name, raw)
		}
	}

	used := usedPlaceholders(n)
	declared := declaredPlaceholders(n)
	for _, name := range sortedKeys(used) {
		if !declared[name] {
			r.errorf(n, schema.CodePlaceholderMismatch,
				"HTTP Request Tool '%s' uses placeholder {%s} that is not defined in placeholderDefinitions", n.Name, name)
		}
	}
	for _, name := range sortedKeys(declared) {
		if !used[name] {
			r.warnf(n, schema.CodePlaceholderMismatch,
				"HTTP Request Tool '%s' defines placeholder '%s' but never uses it", n.Name, name)
		}
	}
}

// usedPlaceholders collects {name} tokens from every string parameter except
// the description and the definitions themselves. {{ }} regions are ignored.
func usedPlaceholders(n *schema.Node) map[string]bool {
	used := make(map[string]bool)
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			for _, m := range placeholderRe.FindAllStringSubmatch(regionRe.ReplaceAllString(t, ""), -1) {
				used[m[1]] = true
			}
		case map[string]any:
			for _, child := range t {
				walk(child)
			}
		case []any:
			for _, child := range t {
				walk(child)
			}
		}
	}
	for k, v := range n.Parameters {
		switch k {
		case "toolDescription", "description", "placeholderDefinitions", "name":
			continue
		}
		walk(v)
	}
	return used
}

func declaredPlaceholders(n *schema.Node) map[string]bool {
	out := make(map[string]bool)
	v, _ := value(n, "placeholderDefinitions.values")
	list, _ := v.([]any)
	for _, item := range list {
		m, _ := item.(map[string]any)
		if name, _ := m["name"].(string); name != "" {
			out[name] = true
		}
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func codeToolRole(r *run, n *schema.Node) {
	checkToolName(r, n, "Code Tool", true)
	if text(n, "description") == "" {
		r.warnf(n, schema.CodeInvalidToolConfig,
			"Code Tool '%s' has no description; the agent uses it to decide when to call the tool", n.Name)
	}

	body := "jsCode"
	if strings.HasPrefix(text(n, "language"), "python") {
		body = "pythonCode"
	}
	if text(n, body) == "" {
		r.errorf(n, schema.CodeInvalidToolConfig, "Code Tool '%s' has no code", n.Name)
	}

	if !flag(n, "specifyInputSchema") {
		return
	}
	switch schemaType := text(n, "schemaType"); schemaType {
	case "manual":
		raw := text(n, "inputSchema")
		if raw == "" {
			r.errorf(n, schema.CodeInvalidToolConfig,
				"Code Tool '%s' specifies an input schema but inputSchema is empty", n.Name)
			return
		}
		if isExpression(raw) {
			return
		}
		doc, err := r.schemas.compile(raw)
		if err != nil {
			r.errorf(n, schema.CodeInvalidToolConfig,
				"Code Tool '%s' input schema is invalid: %s", n.Name, err.Error())
			return
		}
		if t, _ := doc["type"].(string); t != "object" {
			r.warnf(n, schema.CodeInvalidToolConfig,
				"Code Tool '%s' input schema should describe an object (type: object)", n.Name)
		}
	default:
		example := text(n, "jsonSchemaExample")
		if example == "" {
			r.errorf(n, schema.CodeInvalidToolConfig,
				"Code Tool '%s' specifies an input schema but jsonSchemaExample is empty", n.Name)
			return
		}
		if !isExpression(example) && !json.Valid([]byte(example)) {
			r.errorf(n, schema.CodeInvalidToolConfig,
				"Code Tool '%s' jsonSchemaExample is not valid JSON", n.Name)
		}
	}
}

// checkToolName validates the function name the agent calls the tool by.
func checkToolName(r *run, n *schema.Node, label string, required bool) {
	name := text(n, "name")
	switch {
	case name == "" && required:
		r.errorf(n, schema.CodeInvalidToolConfig, "%s '%s' has no function name", label, n.Name)
	case name != "" && !isExpression(name) && !identRe.MatchString(name):
		r.errorf(n, schema.CodeInvalidToolConfig,
			"%s '%s' function name '%s' must contain only letters, digits and underscores and not start with a digit",
			label, n.Name, name)
	}
}

func workflowToolRole(r *run, n *schema.Node) {
	checkToolName(r, n, "Workflow Tool", false)
	if text(n, "description") == "" {
		r.warnf(n, schema.CodeInvalidToolConfig,
			"Workflow Tool '%s' has no description; the agent uses it to decide when to call the tool", n.Name)
	}
	switch source := text(n, "source"); source {
	case "parameter":
		raw := text(n, "workflowJson")
		switch {
		case raw == "":
			r.errorf(n, schema.CodeInvalidToolConfig, "Workflow Tool '%s' has no workflowJson", n.Name)
		case !isExpression(raw) && !json.Valid([]byte(raw)):
			r.errorf(n, schema.CodeInvalidToolConfig, "Workflow Tool '%s' workflowJson is not valid JSON", n.Name)
		}
	default:
		if locatorValue(n, "workflowId") == "" {
			r.errorf(n, schema.CodeInvalidToolConfig, "Workflow Tool '%s' has no workflowId", n.Name)
		}
	}
}

func mcpToolRole(r *run, n *schema.Node) {
	endpoint := text(n, "endpointUrl")
	if endpoint == "" {
		endpoint = text(n, "sseEndpoint")
	}
	switch {
	case endpoint == "":
		r.errorf(n, schema.CodeInvalidToolConfig, "MCP Client Tool '%s' has no server endpoint", n.Name)
	case !isExpression(endpoint):
		u, err := url.Parse(endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			r.errorf(n, schema.CodeInvalidToolConfig,
				"MCP Client Tool '%s' endpoint '%s' must be an http:// or https:// URL", n.Name, endpoint)
		}
	}
	if text(n, "include") == "selected" {
		v, _ := value(n, "includeTools")
		if list, _ := v.([]any); len(list) == 0 {
			r.warnf(n, schema.CodeInvalidToolConfig,
				"MCP Client Tool '%s' exposes selected tools but none are selected", n.Name)
		}
	}
}

func searchToolRole(r *run, n *schema.Node) {
	cred := searchCredentials[r.typeOf(n.Name)]
	if len(n.Credentials) == 0 {
		r.errorf(n, schema.CodeInvalidToolConfig, "Search tool '%s' needs %s credentials", n.Name, cred)
	}
}
