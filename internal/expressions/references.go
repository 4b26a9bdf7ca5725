package expressions

import (
	"regexp"
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// builtins are the $-identifiers the platform defines inside expressions.
var builtins = map[string]struct{}{
	"$json": {}, "$input": {}, "$node": {}, "$items": {}, "$binary": {},
	"$parameter": {}, "$rawParameter": {}, "$env": {}, "$vars": {}, "$secrets": {},
	"$workflow": {}, "$execution": {}, "$prevNode": {}, "$runIndex": {},
	"$itemIndex": {}, "$now": {}, "$today": {}, "$jmespath": {}, "$if": {},
	"$ifEmpty": {}, "$max": {}, "$min": {}, "$fromAI": {}, "$fromai": {},
	"$response": {}, "$pageCount": {}, "$request": {}, "$nodeVersion": {},
	"$position": {}, "$mode": {}, "$evaluateExpression": {}, "$self": {},
	"$data": {}, "$agentInfo": {},
}

// literalBuiltins are flagged when they appear outside {{ }} in an
// expression-mode value.
var literalBuiltins = []string{"$json", "$node", "$input", "$items", "$binary", "$workflow", "$execution", "$now", "$vars", "$env"}

var (
	nodeBracketRe = regexp.MustCompile(`\$node\[\s*["']([^"']+)["']\s*\]`)
	nodeDotRe     = regexp.MustCompile(`\$node\.([A-Za-z_][A-Za-z0-9_]*)`)
	selectorRe    = regexp.MustCompile(`\$\(\s*["']([^"']+)["']\s*\)`)
	itemsRe       = regexp.MustCompile(`\$items\(\s*["']([^"']+)["']`)
	identRe       = regexp.MustCompile(`\$[A-Za-z_][A-Za-z0-9_]*`)
)

// nodeReferences extracts the node names referenced by code, in order of
// first appearance.
func nodeReferences(code string) []string {
	type hit struct {
		pos  int
		name string
	}
	var hits []hit
	for _, re := range []*regexp.Regexp{nodeBracketRe, nodeDotRe, selectorRe, itemsRe} {
		for _, m := range re.FindAllStringSubmatchIndex(code, -1) {
			hits = append(hits, hit{pos: m[0], name: code[m[2]:m[3]]})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	seen := make(map[string]bool, len(hits))
	var out []string
	for _, h := range hits {
		if !seen[h.name] {
			seen[h.name] = true
			out = append(out, h.name)
		}
	}
	return out
}

// identifiers returns the distinct $-identifiers of code in order of first
// appearance. code must already have its string literals blanked.
func identifiers(code string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, loc := range identRe.FindAllStringIndex(code, -1) {
		if loc[0] > 0 && isIdentByte(code[loc[0]-1]) {
			continue
		}
		id := code[loc[0]:loc[1]]
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// builtinsIn lists the builtins that appear in literal text.
func builtinsIn(text string) []string {
	var out []string
	for _, b := range literalBuiltins {
		idx := strings.Index(text, b)
		if idx < 0 {
			continue
		}
		end := idx + len(b)
		if end < len(text) && isIdentByte(text[end]) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// suggestBuiltin returns the closest known builtin for an unknown identifier.
func suggestBuiltin(ident string) string {
	lower := strings.ToLower(ident)
	best, bestDist := "", 3
	names := make([]string, 0, len(builtins))
	for b := range builtins {
		names = append(names, b)
	}
	sort.Strings(names)
	for _, b := range names {
		if strings.ToLower(b) == lower {
			return b
		}
		if d := levenshtein.Distance(lower, strings.ToLower(b), nil); d < bestDist {
			best, bestDist = b, d
		}
	}
	return best
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
