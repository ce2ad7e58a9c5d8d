package expr

import (
	"errors"
	"strconv"
	"strings"
)

type kind int

const (
	kindIdent kind = iota
	kindString
	kindNumber
	kindBool
	kindNull
	kindEq
	kindNeq
	kindLt
	kindLte
	kindGt
	kindGte
	kindAnd
	kindOr
	kindNot
	kindLParen
	kindRParen
)

func (k kind) isComparison() bool {
	return k >= kindEq && k <= kindGte
}

type lexeme struct {
	kind kind
	text string
}

type symbol struct {
	text string
	kind kind
}

var symbols = []symbol{
	{"==", kindEq},
	{"!=", kindNeq},
	{"<=", kindLte},
	{">=", kindGte},
	{"&&", kindAnd},
	{"||", kindOr},
	{"<", kindLt},
	{">", kindGt},
	{"!", kindNot},
	{"(", kindLParen},
	{")", kindRParen},
}

func lex(input string) ([]lexeme, error) {
	var out []lexeme
	pos := 0
	for pos < len(input) {
		ch := input[pos]
		if isSpace(ch) {
			pos++
			continue
		}

		if ch == '"' || ch == '\'' {
			text, next, err := lexString(input, pos)
			if err != nil {
				return nil, err
			}
			out = append(out, lexeme{kind: kindString, text: text})
			pos = next
			continue
		}

		if sym, ok := matchSymbol(input[pos:]); ok {
			out = append(out, lexeme{kind: sym.kind, text: sym.text})
			pos += len(sym.text)
			continue
		}
		switch ch {
		case '=':
			return nil, errors.New("expr: unexpected '='; use '=='")
		case '&':
			return nil, errors.New("expr: unexpected '&'; use '&&'")
		case '|':
			return nil, errors.New("expr: unexpected '|'; use '||'")
		}

		start := pos
		for pos < len(input) && !isSpace(input[pos]) && !strings.ContainsRune("()!=&|<>", rune(input[pos])) {
			pos++
		}
		out = append(out, classifyWord(input[start:pos]))
	}
	return out, nil
}

func matchSymbol(rest string) (symbol, bool) {
	for _, sym := range symbols {
		if strings.HasPrefix(rest, sym.text) {
			return sym, true
		}
	}
	return symbol{}, false
}

func lexString(input string, start int) (string, int, error) {
	quote := input[start]
	var b strings.Builder
	escaped := false
	for pos := start + 1; pos < len(input); pos++ {
		c := input[pos]
		switch {
		case escaped:
			b.WriteByte(unescape(c))
			escaped = false
		case c == '\\':
			escaped = true
		case c == quote:
			return b.String(), pos + 1, nil
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, errors.New("expr: unterminated string literal")
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	default:
		return c
	}
}

func classifyWord(word string) lexeme {
	switch strings.ToLower(word) {
	case "true", "false":
		return lexeme{kind: kindBool, text: strings.ToLower(word)}
	case "null", "nil":
		return lexeme{kind: kindNull, text: "null"}
	case "and":
		return lexeme{kind: kindAnd, text: "&&"}
	case "or":
		return lexeme{kind: kindOr, text: "||"}
	case "not":
		return lexeme{kind: kindNot, text: "!"}
	}
	if _, err := strconv.ParseFloat(word, 64); err == nil {
		return lexeme{kind: kindNumber, text: word}
	}
	return lexeme{kind: kindIdent, text: word}
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}
