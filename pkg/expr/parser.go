package expr

import (
	"fmt"
)

type tokenStream struct {
	tokens []token
	pos    int
}

func (s *tokenStream) peek() token { return s.tokens[s.pos] }

func (s *tokenStream) next() token {
	tok := s.tokens[s.pos]
	if tok.kind != tokenEOF {
		s.pos++
	}
	return tok
}

func (s *tokenStream) match(raw string) bool {
	tok := s.tokens[s.pos]
	if tok.kind != tokenPunct || tok.raw != raw {
		return false
	}
	s.pos++
	return true
}

func (s *tokenStream) expect(raw string) error {
	if s.match(raw) {
		return nil
	}
	tok := s.peek()
	return fmt.Errorf("expr: expected %q at %d, got %s", raw, tok.pos, describe(tok))
}

func describe(tok token) string {
	if tok.kind == tokenEOF {
		return "end of expression"
	}
	return fmt.Sprintf("%q", tok.raw)
}

func parse(tokens []token) (node, error) {
	stream := &tokenStream{tokens: tokens}
	if stream.peek().kind == tokenEOF {
		return nil, fmt.Errorf("expr: empty expression")
	}
	n, err := parseTernary(stream)
	if err != nil {
		return nil, err
	}
	if tok := stream.peek(); tok.kind != tokenEOF {
		return nil, fmt.Errorf("expr: unexpected token %s at %d", describe(tok), tok.pos)
	}
	return n, nil
}

func parseTernary(s *tokenStream) (node, error) {
	cond, err := parseNullish(s)
	if err != nil {
		return nil, err
	}
	if !s.match("?") {
		return cond, nil
	}
	then, err := parseTernary(s)
	if err != nil {
		return nil, err
	}
	if err := s.expect(":"); err != nil {
		return nil, err
	}
	otherwise, err := parseTernary(s)
	if err != nil {
		return nil, err
	}
	return conditionalNode{cond: cond, then: then, otherwise: otherwise}, nil
}

func parseNullish(s *tokenStream) (node, error) {
	left, err := parseOr(s)
	if err != nil {
		return nil, err
	}
	for s.match("??") {
		right, err := parseOr(s)
		if err != nil {
			return nil, err
		}
		left = logicalNode{op: "??", left: left, right: right}
	}
	return left, nil
}

func parseOr(s *tokenStream) (node, error) {
	left, err := parseAnd(s)
	if err != nil {
		return nil, err
	}
	for s.match("||") {
		right, err := parseAnd(s)
		if err != nil {
			return nil, err
		}
		left = logicalNode{op: "||", left: left, right: right}
	}
	return left, nil
}

func parseAnd(s *tokenStream) (node, error) {
	left, err := parseEquality(s)
	if err != nil {
		return nil, err
	}
	for s.match("&&") {
		right, err := parseEquality(s)
		if err != nil {
			return nil, err
		}
		left = logicalNode{op: "&&", left: left, right: right}
	}
	return left, nil
}

func parseBinaryLevel(s *tokenStream, ops []string, operand func(*tokenStream) (node, error)) (node, error) {
	left, err := operand(s)
	if err != nil {
		return nil, err
	}
	for {
		matched := ""
		for _, op := range ops {
			if s.match(op) {
				matched = op
				break
			}
		}
		if matched == "" {
			return left, nil
		}
		right, err := operand(s)
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: matched, left: left, right: right}
	}
}

func parseEquality(s *tokenStream) (node, error) {
	return parseBinaryLevel(s, []string{"===", "!==", "==", "!="}, parseRelational)
}

func parseRelational(s *tokenStream) (node, error) {
	return parseBinaryLevel(s, []string{"<=", ">=", "<", ">"}, parseAdditive)
}

func parseAdditive(s *tokenStream) (node, error) {
	return parseBinaryLevel(s, []string{"+", "-"}, parseMultiplicative)
}

func parseMultiplicative(s *tokenStream) (node, error) {
	return parseBinaryLevel(s, []string{"*", "/", "%"}, parseUnary)
}

func parseUnary(s *tokenStream) (node, error) {
	for _, op := range []string{"!", "-", "+"} {
		if s.match(op) {
			inner, err := parseUnary(s)
			if err != nil {
				return nil, err
			}
			return unaryNode{op: op, inner: inner}, nil
		}
	}
	return parsePostfix(s)
}

func parsePostfix(s *tokenStream) (node, error) {
	target, err := parsePrimary(s)
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case s.match("."):
			key, err := memberKey(s)
			if err != nil {
				return nil, err
			}
			target, err = memberOrCall(s, target, key, false)
			if err != nil {
				return nil, err
			}
		case s.match("?."):
			key, err := memberKey(s)
			if err != nil {
				return nil, err
			}
			target, err = memberOrCall(s, target, key, true)
			if err != nil {
				return nil, err
			}
		case s.match("["):
			index, err := parseTernary(s)
			if err != nil {
				return nil, err
			}
			if err := s.expect("]"); err != nil {
				return nil, err
			}
			target = indexNode{object: target, index: index}
		case s.match("?.["):
			index, err := parseTernary(s)
			if err != nil {
				return nil, err
			}
			if err := s.expect("]"); err != nil {
				return nil, err
			}
			target = indexNode{object: target, index: index, optional: true}
		default:
			return target, nil
		}
	}
}

func memberKey(s *tokenStream) (string, error) {
	tok := s.next()
	switch tok.kind {
	case tokenIdentifier, tokenNumber:
		return tok.raw, nil
	default:
		return "", fmt.Errorf("expr: expected property name at %d, got %s", tok.pos, describe(tok))
	}
}

func memberOrCall(s *tokenStream, target node, key string, optional bool) (node, error) {
	if !s.match("(") {
		return memberNode{object: target, key: key, optional: optional}, nil
	}
	if _, ok := methods[key]; !ok {
		return nil, fmt.Errorf("expr: unsupported method %q", key)
	}
	args, err := parseArgs(s, ")")
	if err != nil {
		return nil, err
	}
	return callNode{receiver: target, method: key, args: args, optional: optional}, nil
}

func parseArgs(s *tokenStream, closing string) ([]node, error) {
	var args []node
	if s.match(closing) {
		return args, nil
	}
	for {
		arg, err := parseTernary(s)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if s.match(closing) {
			return args, nil
		}
		if err := s.expect(","); err != nil {
			return nil, err
		}
	}
}

func parsePrimary(s *tokenStream) (node, error) {
	tok := s.next()
	switch tok.kind {
	case tokenNumber:
		return literalNode{value: tok.num}, nil
	case tokenString:
		return literalNode{value: tok.raw}, nil
	case tokenIdentifier:
		switch tok.raw {
		case "true":
			return literalNode{value: true}, nil
		case "false":
			return literalNode{value: false}, nil
		case "null", "undefined":
			return literalNode{value: nil}, nil
		}
		if s.peek().kind == tokenPunct && s.peek().raw == "(" {
			return nil, fmt.Errorf("expr: function calls are not supported (%s at %d)", tok.raw, tok.pos)
		}
		return identNode{name: tok.raw}, nil
	case tokenPunct:
		switch tok.raw {
		case "(":
			inner, err := parseTernary(s)
			if err != nil {
				return nil, err
			}
			if err := s.expect(")"); err != nil {
				return nil, err
			}
			return inner, nil
		case "[":
			items, err := parseArgs(s, "]")
			if err != nil {
				return nil, err
			}
			return arrayNode{items: items}, nil
		}
	}
	return nil, fmt.Errorf("expr: unexpected %s at %d", describe(tok), tok.pos)
}
