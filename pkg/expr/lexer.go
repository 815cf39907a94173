package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdentifier
	tokenString
	tokenNumber
	tokenPunct
)

type token struct {
	kind tokenKind
	raw  string
	num  float64
	pos  int
}

// punctuators ordered longest first so the scanner is greedy.
var punctuators = []string{
	"===", "!==", "?.[",
	"==", "!=", "<=", ">=", "&&", "||", "??", "?.",
	"+", "-", "*", "/", "%", "<", ">", "!", "?", ":", ".", ",", "(", ")", "[", "]",
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0

	for i < len(input) {
		ch := input[i]
		if ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' {
			i++
			continue
		}

		switch {
		case ch == '"' || ch == '\'':
			value, next, err := scanString(input, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokenString, raw: value, pos: i})
			i = next
			continue
		case isDigit(ch) || (ch == '.' && i+1 < len(input) && isDigit(input[i+1]) && !followsOperand(tokens)):
			start := i
			if afterMemberDot(tokens) {
				// items.0.name: only the index digits belong to this token
				for i < len(input) && isDigit(input[i]) {
					i++
				}
			} else {
				for i < len(input) && (isDigit(input[i]) || input[i] == '.' || input[i] == 'e' || input[i] == 'E' ||
					((input[i] == '+' || input[i] == '-') && (input[i-1] == 'e' || input[i-1] == 'E'))) {
					i++
				}
			}
			raw := input[start:i]
			num, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("expr: invalid number %q at %d", raw, start)
			}
			tokens = append(tokens, token{kind: tokenNumber, raw: raw, num: num, pos: start})
			continue
		case isIdentStart(ch):
			start := i
			for i < len(input) && isIdentPart(input[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokenIdentifier, raw: input[start:i], pos: start})
			continue
		}

		matched := false
		for _, p := range punctuators {
			if strings.HasPrefix(input[i:], p) {
				// "?." followed by a digit is a ternary with a decimal literal
				if p == "?." && i+2 < len(input) && isDigit(input[i+2]) {
					continue
				}
				tokens = append(tokens, token{kind: tokenPunct, raw: p, pos: i})
				i += len(p)
				matched = true
				break
			}
		}
		if !matched {
			return nil, fmt.Errorf("expr: unexpected character %q at %d", ch, i)
		}
	}

	tokens = append(tokens, token{kind: tokenEOF, pos: len(input)})
	return tokens, nil
}

func scanString(input string, start int) (string, int, error) {
	quote := input[start]
	var b strings.Builder
	i := start + 1
	for i < len(input) {
		c := input[i]
		switch {
		case c == '\\':
			if i+1 >= len(input) {
				return "", 0, errors.New("expr: unterminated escape sequence")
			}
			switch esc := input[i+1]; esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(esc)
			}
			i += 2
		case c == quote:
			return b.String(), i + 1, nil
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, errors.New("expr: unterminated string literal")
}

// followsOperand reports whether the previous token ends an operand, in which
// case a '.' starts a member access rather than a decimal literal.
func followsOperand(tokens []token) bool {
	if len(tokens) == 0 {
		return false
	}
	prev := tokens[len(tokens)-1]
	switch prev.kind {
	case tokenIdentifier, tokenNumber, tokenString:
		return true
	case tokenPunct:
		return prev.raw == ")" || prev.raw == "]"
	}
	return false
}

func afterMemberDot(tokens []token) bool {
	if len(tokens) == 0 {
		return false
	}
	prev := tokens[len(tokens)-1]
	return prev.kind == tokenPunct && (prev.raw == "." || prev.raw == "?.")
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isIdentStart(ch byte) bool {
	return ch == '_' || ch == '$' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool { return isIdentStart(ch) || isDigit(ch) }
