// Package parser turns Entish source text into statements.
//
// The grammar, loosest binding first:
//
//	statement  = comment | ("ergo" | "∴") clause "." | "?" clause "." |
//	             "roll" clause "." | "verify" "." | "load" "(" string ")" "." |
//	             fact [":-" clause] "." | expression "."
//	clause     = xor {"|" xor}
//	xor        = and {"^" and}
//	and        = unary {"&" unary}
//	unary      = "~" unary | "(" clause ")" | fact | comparison
//	comparison = expression comparator expression
//	expression = term {("+" | "-") term}
//	term       = power {("*" | "/") power}
//	power      = sign ["^" power]
//	sign       = "-" sign | primary
//
// Capitalised identifiers are strings, lowercase identifiers are variables
// or table names, and "?" is the wildcard.
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/cognicore/entmoot/pkg/entmoot/ast"
)

// Located is a statement with the position of its first token.
type Located struct {
	Statement ast.Statement
	Pos       lexer.Position
}

// Error is a syntax error at a source position.
type Error struct {
	Pos lexer.Position
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

// Parse parses every statement in src. On a syntax error it returns the
// statements before the error together with an *Error.
func Parse(filename, src string) ([]Located, error) {
	toks, err := tokenize(filename, src)
	if err != nil {
		var lexErr *lexer.Error
		if errors.As(err, &lexErr) {
			return nil, &Error{Pos: lexErr.Pos, Msg: lexErr.Msg}
		}
		return nil, err
	}

	p := &parser{toks: toks}
	var out []Located
	for {
		tok := p.toks[p.pos]
		switch {
		case tok.EOF():
			return out, nil
		case tok.Type == tokComment:
			p.pos++
			out = append(out, Located{Statement: ast.Comment{Text: commentText(tok.Value)}, Pos: tok.Pos})
			continue
		}
		stmt, err := p.statement()
		if err != nil {
			return out, err
		}
		out = append(out, Located{Statement: stmt, Pos: tok.Pos})
	}
}

// ParseStatements is Parse without positions.
func ParseStatements(filename, src string) ([]ast.Statement, error) {
	located, err := Parse(filename, src)
	stmts := make([]ast.Statement, len(located))
	for i, l := range located {
		stmts[i] = l.Statement
	}
	return stmts, err
}

// ParseClause parses a standalone clause such as "parent(x, p) & x != y".
func ParseClause(src string) (ast.Clause, error) {
	toks, err := tokenize("", src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	c, err := p.clause()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); !tok.EOF() {
		return nil, p.unexpected(tok, "end of clause")
	}
	return c, nil
}

func commentText(raw string) string {
	if strings.HasPrefix(raw, "//") {
		return strings.TrimSpace(raw[2:])
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(raw, "/*"), "*/"))
}

type parser struct {
	toks []lexer.Token
	pos  int
}

// peek returns the next token, skipping comments inside a statement.
func (p *parser) peek() lexer.Token {
	return p.lookahead(0)
}

func (p *parser) lookahead(n int) lexer.Token {
	for i := p.pos; i < len(p.toks); i++ {
		if p.toks[i].Type == tokComment {
			continue
		}
		if n == 0 {
			return p.toks[i]
		}
		n--
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) next() lexer.Token {
	for p.pos < len(p.toks)-1 && p.toks[p.pos].Type == tokComment {
		p.pos++
	}
	tok := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return tok
}

// accept consumes the next token if its text is value.
func (p *parser) accept(value string) bool {
	tok := p.peek()
	if tok.EOF() || tok.Type == tokString || tok.Value != value {
		return false
	}
	p.next()
	return true
}

func (p *parser) expect(value string) error {
	if p.accept(value) {
		return nil
	}
	return p.unexpected(p.peek(), strconv.Quote(value))
}

func (p *parser) unexpected(tok lexer.Token, want string) *Error {
	got := strconv.Quote(tok.Value)
	if tok.EOF() {
		got = "end of input"
	}
	return &Error{Pos: tok.Pos, Msg: fmt.Sprintf("unexpected %s, expected %s", got, want)}
}

func (p *parser) keyword(tok lexer.Token, word string) bool {
	return tok.Type == tokIdent && tok.Value == word
}

func (p *parser) statement() (ast.Statement, error) {
	tok := p.peek()
	switch {
	case p.keyword(tok, "ergo") || tok.Type == tokTherefore:
		p.next()
		c, err := p.clause()
		if err != nil {
			return nil, err
		}
		return ast.Claim{Clause: c}, p.expect(".")
	case tok.Type == tokPunct && tok.Value == "?":
		p.next()
		c, err := p.clause()
		if err != nil {
			return nil, err
		}
		return ast.Query{Clause: c}, p.expect(".")
	case p.keyword(tok, "roll") && p.lookahead(1).Value != "(":
		p.next()
		c, err := p.clause()
		if err != nil {
			return nil, err
		}
		return ast.Rolling{Clause: c}, p.expect(".")
	case p.keyword(tok, "verify") && p.lookahead(1).Value == ".":
		p.next()
		return ast.Verify{}, p.expect(".")
	case p.keyword(tok, "load") && p.lookahead(1).Value == "(" && p.lookahead(2).Type == tokString:
		p.next()
		p.next()
		path, err := unquote(p.next())
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return ast.Load{Path: path}, p.expect(".")
	}

	if p.startsFact() {
		head, err := p.fact()
		if err != nil {
			return nil, err
		}
		if p.accept(":-") {
			body, err := p.clause()
			if err != nil {
				return nil, err
			}
			return ast.Inference{Head: head, Body: body}, p.expect(".")
		}
		return ast.Assertion{Fact: head}, p.expect(".")
	}

	expr, err := p.comparisonOrExpression()
	if err != nil {
		return nil, err
	}
	return ast.Evaluation{Expr: expr}, p.expect(".")
}

// startsFact reports whether the next tokens open a fact pattern: an
// optional "~" and a table name that is not a function.
func (p *parser) startsFact() bool {
	i := 0
	if tok := p.lookahead(0); tok.Type == tokPunct && tok.Value == "~" {
		i = 1
	}
	name := p.lookahead(i)
	if name.Type != tokIdent || p.lookahead(i+1).Value != "(" {
		return false
	}
	_, isFunc := ast.LookupFunction(name.Value)
	return !isFunc
}

func (p *parser) fact() (ast.Fact, error) {
	negative := p.accept("~")
	name := p.next()
	if name.Type != tokIdent {
		return ast.Fact{}, p.unexpected(name, "table name")
	}
	if err := p.expect("("); err != nil {
		return ast.Fact{}, err
	}
	f := ast.Fact{Table: name.Value, Negative: negative}
	if p.accept(")") {
		return f, nil
	}
	for {
		e, err := p.expression()
		if err != nil {
			return ast.Fact{}, err
		}
		f.Fields = append(f.Fields, e)
		if p.accept(",") {
			continue
		}
		return f, p.expect(")")
	}
}

func (p *parser) clause() (ast.Clause, error) {
	return p.junction("|", p.xor, func(cs []ast.Clause) ast.Clause { return ast.Disjunction{Clauses: cs} })
}

func (p *parser) xor() (ast.Clause, error) {
	return p.junction("^", p.and, func(cs []ast.Clause) ast.Clause { return ast.ExclusiveDisjunction{Clauses: cs} })
}

func (p *parser) and() (ast.Clause, error) {
	return p.junction("&", p.unary, func(cs []ast.Clause) ast.Clause { return ast.Conjunction{Clauses: cs} })
}

func (p *parser) junction(op string, operand func() (ast.Clause, error), build func([]ast.Clause) ast.Clause) (ast.Clause, error) {
	first, err := operand()
	if err != nil {
		return nil, err
	}
	clauses := []ast.Clause{first}
	for p.accept(op) {
		c, err := operand()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, c)
	}
	if len(clauses) == 1 {
		return first, nil
	}
	return build(clauses), nil
}

func (p *parser) unary() (ast.Clause, error) {
	if p.peek().Value == "~" && !p.startsFact() {
		p.next()
		c, err := p.unary()
		if err != nil {
			return nil, err
		}
		return ast.Negate(c), nil
	}

	if p.peek().Value == "(" {
		// A parenthesis opens either an expression, as in (1 + 2) * 4 = 12,
		// or a nested clause.
		save := p.pos
		if c, err := p.comparison(); err == nil {
			return c, nil
		}
		p.pos = save
		p.next()
		c, err := p.clause()
		if err != nil {
			return nil, err
		}
		return c, p.expect(")")
	}

	if p.startsFact() {
		return p.fact()
	}
	return p.comparison()
}

func (p *parser) comparison() (ast.Comparison, error) {
	left, err := p.expression()
	if err != nil {
		return ast.Comparison{}, err
	}
	tok := p.peek()
	if tok.Type != tokComparator {
		return ast.Comparison{}, p.unexpected(tok, "comparison operator")
	}
	p.next()
	right, err := p.expression()
	if err != nil {
		return ast.Comparison{}, err
	}
	return ast.Comparison{Op: ast.Comparator(tok.Value), Left: left, Right: right}, nil
}

func (p *parser) comparisonOrExpression() (ast.Expression, error) {
	left, err := p.expression()
	if err != nil {
		return nil, err
	}
	tok := p.peek()
	if tok.Type != tokComparator {
		return left, nil
	}
	p.next()
	right, err := p.expression()
	if err != nil {
		return nil, err
	}
	return ast.Comparison{Op: ast.Comparator(tok.Value), Left: left, Right: right}, nil
}

func (p *parser) expression() (ast.Expression, error) {
	return p.binary(p.term, ast.Add, ast.Sub)
}

func (p *parser) term() (ast.Expression, error) {
	return p.binary(p.power, ast.Mul, ast.Div)
}

func (p *parser) binary(operand func() (ast.Expression, error), ops ...ast.Operator) (ast.Expression, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
outer:
	for {
		for _, op := range ops {
			if p.accept(string(op)) {
				right, err := operand()
				if err != nil {
					return nil, err
				}
				left = ast.BinaryOp{Op: op, Left: left, Right: right}
				continue outer
			}
		}
		return left, nil
	}
}

// power is right-associative. A "^" whose right side is not an expression
// is left for the clause parser, which reads it as exclusive or.
func (p *parser) power() (ast.Expression, error) {
	left, err := p.sign()
	if err != nil {
		return nil, err
	}
	save := p.pos
	if !p.accept("^") {
		return left, nil
	}
	right, err := p.power()
	if err != nil {
		p.pos = save
		return left, nil
	}
	return ast.BinaryOp{Op: ast.Pow, Left: left, Right: right}, nil
}

func (p *parser) sign() (ast.Expression, error) {
	if !p.accept("-") {
		return p.primary()
	}
	e, err := p.sign()
	if err != nil {
		return nil, err
	}
	if n, ok := e.(ast.Number); ok {
		return ast.Number{Value: -n.Value}, nil
	}
	return ast.BinaryOp{Op: ast.Sub, Left: ast.Number{Value: 0}, Right: e}, nil
}

func (p *parser) primary() (ast.Expression, error) {
	tok := p.next()
	switch tok.Type {
	case tokNumber:
		v, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, &Error{Pos: tok.Pos, Msg: err.Error()}
		}
		return ast.Number{Value: v}, nil
	case tokRoll:
		return parseRoll(tok)
	case tokString:
		s, err := unquote(tok)
		if err != nil {
			return nil, err
		}
		return ast.String{Value: s}, nil
	case tokPunct:
		switch tok.Value {
		case "?":
			return ast.Variable{Name: ast.Wildcard}, nil
		case "(":
			e, err := p.expression()
			if err != nil {
				return nil, err
			}
			return e, p.expect(")")
		}
	case tokIdent:
		return p.identifier(tok)
	}
	return nil, p.unexpected(tok, "expression")
}

func (p *parser) identifier(tok lexer.Token) (ast.Expression, error) {
	if p.peek().Value == "(" {
		fn, ok := ast.LookupFunction(tok.Value)
		if !ok {
			return nil, &Error{Pos: tok.Pos, Msg: fmt.Sprintf("%s is a fact pattern, not an expression", tok.Value)}
		}
		p.next()
		call := ast.Call{Func: fn}
		if p.accept(")") {
			return call, nil
		}
		for {
			arg, err := p.comparisonOrExpression()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
			if p.accept(",") {
				continue
			}
			return call, p.expect(")")
		}
	}

	switch tok.Value {
	case "true":
		return ast.Boolean{Value: true}, nil
	case "false":
		return ast.Boolean{Value: false}, nil
	}
	if unicode.IsUpper([]rune(tok.Value)[0]) {
		return ast.String{Value: tok.Value}, nil
	}
	return ast.Variable{Name: tok.Value}, nil
}

func parseRoll(tok lexer.Token) (ast.Roll, error) {
	count, rest, _ := strings.Cut(tok.Value, "d")
	die, mod := rest, ""
	if i := strings.IndexAny(rest, "+-"); i >= 0 {
		die, mod = rest[:i], rest[i:]
	}

	var r ast.Roll
	var err error
	if r.Count, err = strconv.Atoi(count); err != nil {
		return r, &Error{Pos: tok.Pos, Msg: err.Error()}
	}
	if r.Die, err = strconv.Atoi(die); err != nil {
		return r, &Error{Pos: tok.Pos, Msg: err.Error()}
	}
	if mod != "" {
		if r.Modifier, err = strconv.Atoi(mod); err != nil {
			return r, &Error{Pos: tok.Pos, Msg: err.Error()}
		}
	}
	if r.Die < 1 {
		return r, &Error{Pos: tok.Pos, Msg: fmt.Sprintf("roll %s needs at least one face", tok.Value)}
	}
	return r, nil
}

func unquote(tok lexer.Token) (string, error) {
	if tok.Type != tokString {
		return "", &Error{Pos: tok.Pos, Msg: fmt.Sprintf("expected a string, got %q", tok.Value)}
	}
	s, err := strconv.Unquote(tok.Value)
	if err != nil {
		return "", &Error{Pos: tok.Pos, Msg: fmt.Sprintf("bad string %s: %v", tok.Value, err)}
	}
	return s, nil
}
