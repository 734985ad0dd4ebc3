/*
Copyright 2024 The atc-router Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package parser implements the ATC grammar's precedence-climbing parser
// (spec.md §4.2): `!` binds tightest, then the predicate operators, then
// `&&`, then `||`, with parentheses overriding. It produces an internal/ast
// tree with literal RHS values already typed (except pending regex
// patterns, which internal/bind compiles once the LHS field type is known).
package parser

import (
	"strconv"

	"github.com/Kong/atc-router/internal/ast"
	"github.com/Kong/atc-router/internal/lexer"
	"github.com/Kong/atc-router/internal/srcerr"
	"github.com/Kong/atc-router/internal/types"
)

// Error is a parse-time failure rendered per spec.md §7. It is an alias so
// callers can type-assert *parser.Error without reaching into internal/srcerr.
type Error = srcerr.Error

var transforms = map[string]bool{
	"lower": true,
	"any":   true,
}

type parser struct {
	src    string
	toks   []lexer.Token
	pos    int
}

// Parse tokenizes and parses src into an expression tree. A bare empty
// (whitespace-only) src is rejected: ATC has no "always true" literal.
func Parse(src string) (ast.Node, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Kind != lexer.EOF {
		return nil, p.errAt(tok, tokenWidth(tok), "unexpected trailing input")
	}
	return node, nil
}

func tokenize(src string) ([]lexer.Token, error) {
	lx := lexer.New(src)
	var toks []lexer.Token
	for {
		tok, err := lx.Next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Kind == lexer.EOF {
			return toks, nil
		}
	}
}

func tokenWidth(tok lexer.Token) int {
	if n := len(tok.Raw); n > 0 {
		return n
	}
	return 1
}

func (p *parser) peek() lexer.Token {
	return p.toks[p.pos]
}

func (p *parser) advance() lexer.Token {
	tok := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return tok
}

func (p *parser) errAt(tok lexer.Token, width int, reason string) error {
	return &srcerr.Error{
		Source: p.src,
		Pos:    srcerr.Position{Line: tok.Line, Col: tok.Col},
		Width:  width,
		Reason: reason,
	}
}

func (p *parser) expect(k lexer.Kind, what string) (lexer.Token, error) {
	tok := p.peek()
	if tok.Kind != k {
		return tok, p.errAt(tok, tokenWidth(tok), "expected "+what)
	}
	return p.advance(), nil
}

// parseOr := parseAnd ( "||" parseAnd )*
func (p *parser) parseOr() (ast.Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == lexer.Or {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.Or{Left: left, Right: right}
	}
	return left, nil
}

// parseAnd := parseTerm ( "&&" parseTerm )*
func (p *parser) parseAnd() (ast.Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == lexer.And {
		p.advance()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &ast.And{Left: left, Right: right}
	}
	return left, nil
}

// parseTerm := "!" term | "(" expression ")" | predicate
func (p *parser) parseTerm() (ast.Node, error) {
	switch p.peek().Kind {
	case lexer.Not:
		p.advance()
		inner, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		return &ast.Not{Inner: inner}, nil
	case lexer.LParen:
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	default:
		return p.parsePredicate()
	}
}

// parsePredicate := lhs binary_op rhs
func (p *parser) parsePredicate() (ast.Node, error) {
	lhs, err := p.parseLHS()
	if err != nil {
		return nil, err
	}
	op, err := p.parseOperator()
	if err != nil {
		return nil, err
	}
	rhsTok := p.peek()
	rhs, err := p.parseRHS()
	if err != nil {
		return nil, err
	}
	return &ast.Predicate{
		LHS: lhs,
		Op:  op,
		RHS: rhs,
		Pos: srcerr.Position{Line: rhsTok.Line, Col: rhsTok.Col},
	}, nil
}

// parseLHS := transform_fn | ident, where transform_fn := ident "(" ident ")".
// The argument of a transform is a bare field name; transforms do not nest.
func (p *parser) parseLHS() (ast.LHS, error) {
	tok, err := p.expect(lexer.Ident, "a field name or transform")
	if err != nil {
		return ast.LHS{}, err
	}
	if p.peek().Kind == lexer.LParen && transforms[tok.Text] {
		p.advance() // (
		inner, err := p.expect(lexer.Ident, "a field name")
		if err != nil {
			return ast.LHS{}, err
		}
		if _, err := p.expect(lexer.RParen, "')'"); err != nil {
			return ast.LHS{}, err
		}
		return ast.LHS{Field: inner.Text, Transform: tok.Text}, nil
	}
	if p.peek().Kind == lexer.LParen {
		return ast.LHS{}, p.errAt(tok, tokenWidth(tok), "unknown transform '"+tok.Text+"'")
	}
	return ast.LHS{Field: tok.Text}, nil
}

func (p *parser) parseOperator() (ast.Operator, error) {
	tok := p.peek()
	switch tok.Kind {
	case lexer.Eq:
		p.advance()
		return ast.Equals, nil
	case lexer.NotEq:
		p.advance()
		return ast.NotEquals, nil
	case lexer.Tilde:
		p.advance()
		return ast.Regex, nil
	case lexer.Prefix:
		p.advance()
		return ast.Prefix, nil
	case lexer.Postfix:
		p.advance()
		return ast.Postfix, nil
	case lexer.Gt:
		p.advance()
		return ast.Greater, nil
	case lexer.Lt:
		p.advance()
		return ast.Less, nil
	case lexer.GtEq:
		p.advance()
		return ast.GreaterEq, nil
	case lexer.LtEq:
		p.advance()
		return ast.LessEq, nil
	case lexer.Ident:
		switch tok.Text {
		case "in":
			p.advance()
			return ast.In, nil
		case "not":
			p.advance()
			if _, err := p.expectIdentText("in"); err != nil {
				return 0, err
			}
			return ast.NotIn, nil
		case "contains":
			p.advance()
			return ast.Contains, nil
		}
	}
	return 0, p.errAt(tok, tokenWidth(tok), "expected a binary operator")
}

func (p *parser) expectIdentText(text string) (lexer.Token, error) {
	tok := p.peek()
	if tok.Kind != lexer.Ident || tok.Text != text {
		return tok, p.errAt(tok, tokenWidth(tok), "expected '"+text+"'")
	}
	return p.advance(), nil
}

// parseRHS := str_lit | rawstr_lit | ip_lit | int_lit
func (p *parser) parseRHS() (types.Value, error) {
	tok := p.peek()
	switch tok.Kind {
	case lexer.String, lexer.RawString:
		p.advance()
		if err := types.ValidateUTF8(tok.Text); err != nil {
			return types.Value{}, p.errAt(tok, tokenWidth(tok), err.Error())
		}
		return types.NewString(tok.Text), nil
	case lexer.IPLiteral:
		p.advance()
		return parseNumOrIP(p, tok)
	default:
		return types.Value{}, p.errAt(tok, tokenWidth(tok), "expected a string, integer, or IP literal")
	}
}

// parseNumOrIP disambiguates the combined int/IP/CIDR lexical class by
// content, per spec.md §4.2's grammar: an int_lit never contains '.', ':',
// or '/', so trying int first is unambiguous; anything else is attempted as
// a CIDR, then a bare address.
func parseNumOrIP(p *parser, tok lexer.Token) (types.Value, error) {
	text := tok.Text
	if looksLikeInt(text) {
		base := 10
		body := text
		neg := false
		if len(body) > 0 && body[0] == '-' {
			neg = true
			body = body[1:]
		}
		switch {
		case len(body) > 1 && (body[0:2] == "0x" || body[0:2] == "0X"):
			base = 16
			body = body[2:]
		case len(body) > 1 && body[0] == '0':
			base = 8
		}
		n, err := strconv.ParseUint(body, base, 64)
		if err != nil {
			return types.Value{}, p.errAt(tok, tokenWidth(tok), "invalid integer literal '"+text+"'")
		}
		v := int64(n)
		if neg {
			v = -v
		}
		return types.NewInt(v), nil
	}
	if v, err := types.NewIPCIDR(text); err == nil {
		return v, nil
	}
	if v, err := types.NewIPAddr(text); err == nil {
		return v, nil
	}
	return types.Value{}, p.errAt(tok, tokenWidth(tok), "invalid literal '"+text+"': not a valid integer, IP address, or CIDR")
}

// looksLikeInt reports whether text matches int_lit's grammar: optional
// '-', then "0x"+hex, "0"+octal, or plain decimal digits. IP/CIDR literals
// always contain '.', ':' or '/', which this rejects.
func looksLikeInt(text string) bool {
	if text == "" {
		return false
	}
	body := text
	if body[0] == '-' {
		body = body[1:]
	}
	if body == "" {
		return false
	}
	if len(body) > 2 && (body[0:2] == "0x" || body[0:2] == "0X") {
		hex := body[2:]
		if hex == "" {
			return false
		}
		for i := 0; i < len(hex); i++ {
			c := hex[i]
			if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
				return false
			}
		}
		return true
	}
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
