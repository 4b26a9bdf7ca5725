package expressions

import "strings"

// jsOnlyMarkers are constructs the expr grammar cannot parse. Regions that
// contain them only get the bracket balance check.
var jsOnlyMarkers = []string{"===", "!==", "=>", "function", "new ", ";", "`", "typeof", "instanceof", "++", "--", "/*", "//"}

func jsOnly(code string) bool {
	for _, m := range jsOnlyMarkers {
		if strings.Contains(code, m) {
			return true
		}
	}
	return false
}

// regexPrecursors are the characters after which a slash opens a regular
// expression literal rather than a division.
const regexPrecursors = "(,=:[!&|?{};+-*%<>~^"

// blankRegexLiterals blanks the bodies of /pattern/flags literals in code,
// which must already have its string literals blanked. It reports whether
// any literal was found.
func blankRegexLiterals(code string) (string, bool) {
	b := []byte(code)
	found := false
	for i := 0; i < len(b); i++ {
		if b[i] != '/' || !opensRegex(b[:i]) {
			continue
		}
		end := regexEnd(b, i+1)
		if end < 0 {
			continue
		}
		for j := i + 1; j < end; j++ {
			b[j] = ' '
		}
		found = true
		i = end
	}
	return string(b), found
}

func opensRegex(before []byte) bool {
	for i := len(before) - 1; i >= 0; i-- {
		switch c := before[i]; c {
		case ' ', '\t', '\n', '\r':
			continue
		case '/':
			return false
		default:
			return strings.IndexByte(regexPrecursors, c) >= 0
		}
	}
	return true
}

// regexEnd returns the index of the slash closing a literal whose body
// starts at start, or -1. Slashes inside [...] classes do not close it.
func regexEnd(b []byte, start int) int {
	if start >= len(b) || b[start] == '/' || b[start] == '*' {
		return -1
	}
	inClass := false
	for i := start; i < len(b); i++ {
		switch b[i] {
		case '\\':
			i++
		case '[':
			inClass = true
		case ']':
			inClass = false
		case '\n':
			return -1
		case '/':
			if !inClass {
				return i
			}
		}
	}
	return -1
}

// stripStrings blanks the contents of quoted string literals so that
// identifiers and brackets inside them are ignored. Quotes are kept.
func stripStrings(code string) string {
	b := []byte(code)
	var quote byte
	for i := 0; i < len(b); i++ {
		c := b[i]
		if quote == 0 {
			if c == '"' || c == '\'' || c == '`' {
				quote = c
			}
			continue
		}
		switch c {
		case '\\':
			b[i] = ' '
			if i+1 < len(b) {
				b[i+1] = ' '
				i++
			}
		case quote:
			quote = 0
		default:
			b[i] = ' '
		}
	}
	return string(b)
}

// bracketBalance reports the first (), [] or {} mismatch in code, or "".
func bracketBalance(code string) string {
	pairs := map[byte]byte{')': '(', ']': '[', '}': '{'}
	var stack []byte
	for i := 0; i < len(code); i++ {
		switch c := code[i]; c {
		case '(', '[', '{':
			stack = append(stack, c)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[c] {
				return "unbalanced " + bracketName(c)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return "unbalanced " + bracketName(stack[len(stack)-1])
	}
	return ""
}

func bracketName(c byte) string {
	switch c {
	case '(', ')':
		return "parentheses"
	case '[', ']':
		return "square brackets"
	default:
		return "braces"
	}
}
