package expr

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/goliatone/go-formrules/pkg/visibility"
)

type node interface {
	eval(ctx visibility.Context) (bool, error)
	// idents appends the identifiers the node reads.
	idents(dst []string) []string
}

type binaryNode struct {
	op          kind
	left, right node
}

func (n binaryNode) eval(ctx visibility.Context) (bool, error) {
	ok, err := n.left.eval(ctx)
	if err != nil {
		return false, err
	}
	if n.op == kindOr && ok {
		return true, nil
	}
	if n.op == kindAnd && !ok {
		return false, nil
	}
	return n.right.eval(ctx)
}

func (n binaryNode) idents(dst []string) []string {
	return n.right.idents(n.left.idents(dst))
}

type notNode struct {
	inner node
}

func (n notNode) eval(ctx visibility.Context) (bool, error) {
	ok, err := n.inner.eval(ctx)
	return !ok, err
}

func (n notNode) idents(dst []string) []string { return n.inner.idents(dst) }

type truthyNode struct {
	ident string
}

func (n truthyNode) eval(ctx visibility.Context) (bool, error) {
	value, ok := lookup(ctx, n.ident)
	return ok && truthy(value), nil
}

func (n truthyNode) idents(dst []string) []string { return append(dst, n.ident) }

// compareNode compares the value of an identifier with a literal.
type compareNode struct {
	ident string
	op    kind
	lit   lexeme
}

func (n compareNode) idents(dst []string) []string { return append(dst, n.ident) }

func (n compareNode) eval(ctx visibility.Context) (bool, error) {
	left, _ := lookup(ctx, n.ident)

	switch n.lit.kind {
	case kindNull:
		return compareEquality(n.op, isNull(left), true)
	case kindBool:
		got, _ := coerceBool(left)
		return compareEquality(n.op, got, n.lit.text == "true")
	case kindNumber:
		want, err := strconv.ParseFloat(n.lit.text, 64)
		if err != nil {
			return false, fmt.Errorf("expr: invalid number literal %q", n.lit.text)
		}
		got, _ := coerceNumber(left)
		return compareOrdered(n.op, got, want), nil
	default:
		return compareOrdered(n.op, coerceString(left), n.lit.text), nil
	}
}

func compareEquality(op kind, got, want bool) (bool, error) {
	switch op {
	case kindEq:
		return got == want, nil
	case kindNeq:
		return got != want, nil
	default:
		return false, errors.New("expr: ordering operators need numbers or strings")
	}
}

func compareOrdered[T float64 | string](op kind, a, b T) bool {
	switch op {
	case kindEq:
		return a == b
	case kindNeq:
		return a != b
	case kindLt:
		return a < b
	case kindLte:
		return a <= b
	case kindGt:
		return a > b
	case kindGte:
		return a >= b
	default:
		return false
	}
}

type parser struct {
	lexemes []lexeme
	pos     int
}

func parse(lexemes []lexeme) (node, error) {
	p := &parser{lexemes: lexemes}
	n, err := p.or()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.lexemes) {
		return nil, fmt.Errorf("expr: unexpected token %q", p.lexemes[p.pos].text)
	}
	return n, nil
}

func (p *parser) or() (node, error) {
	return p.binary(kindOr, p.and)
}

func (p *parser) and() (node, error) {
	return p.binary(kindAnd, p.unary)
}

func (p *parser) binary(op kind, operand func() (node, error)) (node, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
	for p.accept(op) {
		right, err := operand()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) unary() (node, error) {
	if p.accept(kindNot) {
		inner, err := p.unary()
		if err != nil {
			return nil, err
		}
		return notNode{inner: inner}, nil
	}
	return p.primary()
}

func (p *parser) primary() (node, error) {
	if p.accept(kindLParen) {
		inner, err := p.or()
		if err != nil {
			return nil, err
		}
		if !p.accept(kindRParen) {
			return nil, errors.New("expr: missing closing ')'")
		}
		return inner, nil
	}

	ident, ok := p.take()
	if !ok {
		return nil, errors.New("expr: empty expression")
	}
	if ident.kind != kindIdent {
		return nil, fmt.Errorf("expr: expected identifier, got %q", ident.text)
	}

	op, ok := p.peek()
	if !ok || !op.kind.isComparison() {
		return truthyNode{ident: ident.text}, nil
	}
	p.pos++

	operand, ok := p.take()
	if !ok {
		return nil, errors.New("expr: missing operand")
	}
	switch operand.kind {
	case kindString, kindNumber, kindBool, kindNull:
		return compareNode{ident: ident.text, op: op.kind, lit: operand}, nil
	case kindIdent:
		// Bare words compare as strings: `plan == pro`.
		return compareNode{ident: ident.text, op: op.kind, lit: lexeme{kind: kindString, text: operand.text}}, nil
	default:
		return nil, fmt.Errorf("expr: expected operand, got %q", operand.text)
	}
}

func (p *parser) peek() (lexeme, bool) {
	if p.pos >= len(p.lexemes) {
		return lexeme{}, false
	}
	return p.lexemes[p.pos], true
}

func (p *parser) take() (lexeme, bool) {
	lx, ok := p.peek()
	if ok {
		p.pos++
	}
	return lx, ok
}

func (p *parser) accept(k kind) bool {
	lx, ok := p.peek()
	if !ok || lx.kind != k {
		return false
	}
	p.pos++
	return true
}
