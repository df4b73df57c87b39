package guardrail

import (
	"errors"
	"fmt"
	"strings"
)

// tokenKind classifies a lexed SQL token.
type tokenKind int

const (
	tokWord   tokenKind = iota // keyword or bare identifier
	tokIdent                   // delimited identifier: [x], "x" or `x`
	tokString                  // string literal
	tokNumber                  // numeric literal
	tokPunct                   // single punctuation or operator character
)

type token struct {
	kind tokenKind
	// text is the token as written, except for tokIdent where the
	// delimiters are removed.
	text string
	pos  int
}

func (t token) is(punct string) bool {
	return t.kind == tokPunct && t.text == punct
}

var errEmpty = errors.New("no tokens")

// lex splits sql into tokens, dropping whitespace and comments. It fails on
// unterminated literals, identifiers or block comments, on unbalanced
// parentheses, and on input that contains no tokens.
func lex(sql string) ([]token, error) {
	var (
		toks  []token
		depth int
		i     int
	)
	n := len(sql)

	for i < n {
		c := sql[i]
		switch {
		case isSpace(c):
			i++

		case c == '-' && i+1 < n && sql[i+1] == '-':
			for i < n && sql[i] != '\n' {
				i++
			}

		case c == '/' && i+1 < n && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				return nil, fmt.Errorf("unterminated block comment at offset %d", i)
			}
			i += 2 + end + 2

		case c == '\'' || ((c == 'N' || c == 'n') && i+1 < n && sql[i+1] == '\''):
			start := i
			if c != '\'' {
				i++
			}
			end, ok := scanQuoted(sql, i, '\'')
			if !ok {
				return nil, fmt.Errorf("unterminated string literal at offset %d", start)
			}
			toks = append(toks, token{kind: tokString, text: sql[start:end], pos: start})
			i = end

		case c == '"' || c == '`':
			end, ok := scanQuoted(sql, i, c)
			if !ok {
				return nil, fmt.Errorf("unterminated identifier at offset %d", i)
			}
			toks = append(toks, token{kind: tokIdent, text: unquote(sql[i+1:end-1], c), pos: i})
			i = end

		case c == '[':
			end, ok := scanQuoted(sql, i, ']')
			if !ok {
				return nil, fmt.Errorf("unterminated identifier at offset %d", i)
			}
			toks = append(toks, token{kind: tokIdent, text: unquote(sql[i+1:end-1], ']'), pos: i})
			i = end

		case isDigit(c) || (c == '.' && i+1 < n && isDigit(sql[i+1])):
			start := i
			i = scanNumber(sql, i)
			toks = append(toks, token{kind: tokNumber, text: sql[start:i], pos: start})

		case isWordStart(c):
			start := i
			for i < n && isWordChar(sql[i]) {
				i++
			}
			toks = append(toks, token{kind: tokWord, text: sql[start:i], pos: start})

		default:
			switch c {
			case '(':
				depth++
			case ')':
				depth--
				if depth < 0 {
					return nil, fmt.Errorf("unbalanced parenthesis at offset %d", i)
				}
			}
			toks = append(toks, token{kind: tokPunct, text: string(c), pos: i})
			i++
		}
	}

	if depth != 0 {
		return nil, fmt.Errorf("unbalanced parentheses: %d unclosed", depth)
	}
	if len(toks) == 0 {
		return nil, errEmpty
	}
	return toks, nil
}

// scanQuoted scans a delimited run whose opener is at sql[i] and returns the
// offset just past the closing delimiter. A doubled closing delimiter is an
// escaped literal character.
func scanQuoted(sql string, i int, delim byte) (int, bool) {
	i++
	for i < len(sql) {
		if sql[i] == delim {
			if i+1 < len(sql) && sql[i+1] == delim {
				i += 2
				continue
			}
			return i + 1, true
		}
		i++
	}
	return 0, false
}

func unquote(s string, delim byte) string {
	doubled := string([]byte{delim, delim})
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		out = append(out, s[i])
		if i+1 < len(s) && s[i:i+2] == doubled {
			i++
		}
	}
	return string(out)
}

func scanNumber(sql string, i int) int {
	n := len(sql)
	for i < n && (isDigit(sql[i]) || sql[i] == '.') {
		i++
	}
	if i < n && (sql[i] == 'e' || sql[i] == 'E') {
		j := i + 1
		if j < n && (sql[j] == '+' || sql[j] == '-') {
			j++
		}
		if j < n && isDigit(sql[j]) {
			i = j
			for i < n && isDigit(sql[i]) {
				i++
			}
		}
	}
	return i
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isWordStart(c byte) bool {
	return c == '_' || c == '@' || c == '#' || (c|0x20 >= 'a' && c|0x20 <= 'z') || c >= 0x80
}

func isWordChar(c byte) bool {
	return isWordStart(c) || isDigit(c) || c == '$'
}
