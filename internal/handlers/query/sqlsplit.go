// SPDX-License-Identifier: EPL-2.0

package query

import "strings"

// StatementKind classifies a split SQL statement.
type StatementKind int

const (
	// KindQuery is a statement expected to return rows (SELECT, EXPLAIN,
	// SHOW, WITH, PRAGMA-as-query…).
	KindQuery StatementKind = iota
	// KindStatement is a statement expected to report rows-affected
	// (INSERT, UPDATE, DELETE, DDL…).
	KindStatement
)

// Statement is one SQL statement split out of a larger script, with its
// byte offsets into the original text.
type Statement struct {
	Text  string
	Start int
	End   int
	Kind  StatementKind
}

var queryKeywords = []string{"select", "explain", "show", "with", "describe", "desc", "pragma", "values"}

// SplitStatements splits src into individual statements on top-level `;`
// boundaries, skipping separators inside single/double-quoted strings and
// -- / # / /* */ comments. No ecosystem pack example ships a SQL parser;
// this hand-rolled splitter implements exactly the subset spec.md §4.4.3
// requires (byte offsets, query/statement classification) rather than a
// general SQL grammar.
func SplitStatements(src string) []Statement {
	var out []Statement
	start := 0
	i := 0
	n := len(src)

	for i < n {
		switch c := src[i]; {
		case c == '\'' || c == '"':
			i = skipQuoted(src, i, c)
		case c == '-' && i+1 < n && src[i+1] == '-':
			i = skipLineComment(src, i)
		case c == '#':
			i = skipLineComment(src, i)
		case c == '/' && i+1 < n && src[i+1] == '*':
			i = skipBlockComment(src, i)
		case c == ';':
			out = append(out, makeStatement(src, start, i))
			i++
			start = i
			continue
		default:
			i++
		}
	}
	if trimmed := strings.TrimSpace(src[start:]); trimmed != "" {
		out = append(out, makeStatement(src, start, n))
	}
	return out
}

func makeStatement(src string, start, end int) Statement {
	text := src[start:end]
	trimmedStart := start
	for trimmedStart < end && isSQLSpace(src[trimmedStart]) {
		trimmedStart++
	}
	return Statement{
		Text:  strings.TrimSpace(text),
		Start: trimmedStart,
		End:   end,
		Kind:  classify(text),
	}
}

func isSQLSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func classify(stmt string) StatementKind {
	trimmed := strings.TrimSpace(stmt)
	first := firstWord(strings.ToLower(trimmed))
	for _, kw := range queryKeywords {
		if first == kw {
			return KindQuery
		}
	}
	return KindStatement
}

func firstWord(s string) string {
	s = strings.TrimLeft(s, "( \t\n\r")
	i := 0
	for i < len(s) && (isAlnum(s[i]) || s[i] == '_') {
		i++
	}
	return s[:i]
}

func isAlnum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func skipQuoted(s string, i int, quote byte) int {
	i++
	for i < len(s) {
		if s[i] == '\\' && i+1 < len(s) {
			i += 2
			continue
		}
		if s[i] == quote {
			// SQL doubles the quote character to escape it inside a
			// string ('it''s'); treat a doubled quote as still-inside.
			if i+1 < len(s) && s[i+1] == quote {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return i
}

func skipLineComment(s string, i int) int {
	for i < len(s) && s[i] != '\n' {
		i++
	}
	return i
}

func skipBlockComment(s string, i int) int {
	i += 2
	for i+1 < len(s) {
		if s[i] == '*' && s[i+1] == '/' {
			return i + 2
		}
		i++
	}
	return len(s)
}
