package expressions

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/expr-lang/expr/parser"
)

// Options tunes a Check call.
type Options struct {
	// AllNodes is every node name in the workflow. When set, references to a
	// node that exists but is not upstream are reported as such instead of
	// as unknown nodes.
	AllNodes []string
}

// Result is the outcome of checking one node's parameter tree.
type Result struct {
	Valid       bool     `json:"valid"`
	Errors      []string `json:"errors"`
	Warnings    []string `json:"warnings"`
	Expressions int      `json:"expressions"`

	UsedVariables map[string]struct{} `json:"-"`
	UsedNodes     map[string]struct{} `json:"-"`
}

// MarshalJSON renders the used variable and node sets as sorted arrays.
func (r *Result) MarshalJSON() ([]byte, error) {
	type plain Result
	return json.Marshal(struct {
		*plain
		UsedVariables []string `json:"usedVariables"`
		UsedNodes     []string `json:"usedNodes"`
	}{(*plain)(r), r.Variables(), r.Nodes()})
}

func newResult() *Result {
	return &Result{
		Valid:         true,
		Errors:        []string{},
		Warnings:      []string{},
		UsedVariables: make(map[string]struct{}),
		UsedNodes:     make(map[string]struct{}),
	}
}

// Variables returns the used builtin variables, sorted.
func (r *Result) Variables() []string { return sortedSet(r.UsedVariables) }

// Nodes returns the referenced node names, sorted.
func (r *Result) Nodes() []string { return sortedSet(r.UsedNodes) }

func (r *Result) errorf(path, format string, args ...any) {
	r.Errors = append(r.Errors, path+": "+fmt.Sprintf(format, args...))
	r.Valid = false
}

func (r *Result) warnf(path, format string, args ...any) {
	r.Warnings = append(r.Warnings, path+": "+fmt.Sprintf(format, args...))
}

// Checker validates template expressions in parameter trees. Parse outcomes
// are cached for the Checker's lifetime, so a Checker is meant to serve one
// workflow run and be dropped with it. Safe for concurrent use.
type Checker struct {
	mu    sync.RWMutex
	cache map[string]string // region -> parse error ("" when it parses)
}

// NewChecker creates a Checker with an empty parse cache.
func NewChecker() *Checker {
	return &Checker{cache: make(map[string]string)}
}

// Check validates params with a fresh Checker.
func Check(params map[string]any, upstream []string, opts Options) *Result {
	return NewChecker().Check(params, upstream, opts)
}

// Cached returns the number of distinct regions parsed so far.
func (c *Checker) Cached() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Check walks params and validates every string carrying a {{ }} region.
// upstream lists the node names that precede the checked node causally.
func (c *Checker) Check(params map[string]any, upstream []string, opts Options) *Result {
	res := newResult()
	sc := &scope{
		upstream: toSet(upstream),
		all:      toSet(opts.AllNodes),
		hasAll:   len(opts.AllNodes) > 0,
	}
	c.walk(res, sc, "parameters", params)
	return res
}

type scope struct {
	upstream map[string]struct{}
	all      map[string]struct{}
	hasAll   bool
}

func (c *Checker) walk(res *Result, sc *scope, path string, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			c.walk(res, sc, path+"."+k, t[k])
		}
	case []any:
		for i, e := range t {
			c.walk(res, sc, fmt.Sprintf("%s[%d]", path, i), e)
		}
	case string:
		c.checkString(res, sc, path, t)
	}
}

func (c *Checker) checkString(res *Result, sc *scope, path, s string) {
	prefixed := strings.HasPrefix(s, "=")
	body := s
	if prefixed {
		body = s[1:]
	}

	if !strings.Contains(body, "{{") && !strings.Contains(body, "}}") {
		if prefixed {
			for _, v := range builtinsIn(body) {
				res.warnf(path, "%s outside {{ }} is treated as literal text; wrap it as {{ %s }}", v, v)
			}
		}
		return
	}

	regions, outside, err := splitRegions(body)
	if err != "" {
		res.errorf(path, "%s", err)
		return
	}

	if !prefixed {
		res.warnf(path, "value contains {{ }} but does not start with '='; it will be treated as literal text")
	} else {
		for _, v := range builtinsIn(outside) {
			res.warnf(path, "%s outside {{ }} is treated as literal text; wrap it as {{ %s }}", v, v)
		}
	}

	for _, region := range regions {
		res.Expressions++
		c.checkRegion(res, sc, path, region)
	}
}

func (c *Checker) checkRegion(res *Result, sc *scope, path, region string) {
	code := strings.TrimSpace(region)
	if code == "" {
		res.errorf(path, "empty expression {{ }}")
		return
	}

	for _, name := range nodeReferences(code) {
		res.UsedNodes[name] = struct{}{}
		if _, ok := sc.upstream[name]; ok {
			continue
		}
		if _, ok := sc.all[name]; ok {
			res.errorf(path, "expression references node %q which is not upstream of this node", name)
			continue
		}
		if sc.hasAll {
			res.errorf(path, "expression references unknown node %q", name)
		} else {
			res.errorf(path, "expression references node %q which is not among the upstream nodes", name)
		}
	}

	stripped, hasRegex := blankRegexLiterals(stripStrings(code))
	for _, ident := range identifiers(stripped) {
		if _, ok := builtins[ident]; ok {
			res.UsedVariables[ident] = struct{}{}
			continue
		}
		if hint := suggestBuiltin(ident); hint != "" {
			res.errorf(path, "unknown variable %s (did you mean %s?)", ident, hint)
		} else {
			res.errorf(path, "unknown variable %s", ident)
		}
	}

	if msg := bracketBalance(stripped); msg != "" {
		res.errorf(path, "%s in {{ %s }}", msg, code)
		return
	}

	if hasRegex || jsOnly(stripped) {
		return
	}
	if msg := c.parse(code); msg != "" {
		res.warnf(path, "expression may contain a syntax error: %s", msg)
	}
}

// parse returns the cached parse error for code, or "" when it parses.
func (c *Checker) parse(code string) string {
	c.mu.RLock()
	if msg, ok := c.cache[code]; ok {
		c.mu.RUnlock()
		return msg
	}
	c.mu.RUnlock()

	msg := ""
	if _, err := parser.Parse(code); err != nil {
		msg = firstLine(err.Error())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[code] = msg
	return msg
}

// splitRegions returns the {{ }} bodies of s and the text outside them.
// A non-empty error string reports unbalanced or nested delimiters.
func splitRegions(s string) (regions []string, outside string, err string) {
	if strings.Count(s, "{{") != strings.Count(s, "}}") {
		return nil, "", "unmatched expression brackets {{ }}"
	}

	var out strings.Builder
	i := 0
	for i < len(s) {
		open := strings.Index(s[i:], "{{")
		cl := strings.Index(s[i:], "}}")
		if open == -1 {
			if cl != -1 {
				return nil, "", "closing }} without opening {{"
			}
			out.WriteString(s[i:])
			break
		}
		if cl != -1 && cl < open {
			return nil, "", "closing }} without opening {{"
		}
		out.WriteString(s[i : i+open])
		start := i + open + 2

		end := strings.Index(s[start:], "}}")
		if end == -1 {
			return nil, "", "unclosed {{ expression"
		}
		if nested := strings.Index(s[start:], "{{"); nested != -1 && nested < end {
			return nil, "", "nested {{ inside an expression"
		}
		regions = append(regions, s[start:start+end])
		i = start + end + 2
	}
	return regions, out.String(), ""
}

func toSet(names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

func sortedSet(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
