package ast

import "strconv"

// Statement is one top-level Entish statement.
type Statement interface {
	String() string
	statement()
}

// Comment is source commentary; executing it is a no-op.
type Comment struct {
	Text string
}

// Assertion adds a grounded fact, or retracts it when the fact is negative.
type Assertion struct {
	Fact Fact
}

// Inference is the rule "Head :- Body."
type Inference struct {
	Head Fact
	Body Clause
}

// Claim is a clause checked for truth ("ergo" / "∴").
type Claim struct {
	Clause Clause
}

// Query asks for the facts matching a clause ("?").
type Query struct {
	Clause Clause
}

// Rolling samples the dice of every fact matching a clause ("roll").
type Rolling struct {
	Clause Clause
}

// Evaluation is a bare expression such as Pr(2d6 = 7).
type Evaluation struct {
	Expr Expression
}

// Verify re-checks every claim recorded so far.
type Verify struct{}

// Load asks the loader to execute another source file.
type Load struct {
	Path string
}

func (Comment) statement()    {}
func (Assertion) statement()  {}
func (Inference) statement()  {}
func (Claim) statement()      {}
func (Query) statement()      {}
func (Rolling) statement()    {}
func (Evaluation) statement() {}
func (Verify) statement()     {}
func (Load) statement()       {}

func (c Comment) String() string    { return "// " + c.Text }
func (a Assertion) String() string  { return a.Fact.String() + "." }
func (i Inference) String() string  { return i.Head.String() + " :- " + i.Body.String() + "." }
func (c Claim) String() string      { return "ergo " + c.Clause.String() + "." }
func (q Query) String() string      { return "? " + q.Clause.String() + "." }
func (r Rolling) String() string    { return "roll " + r.Clause.String() + "." }
func (e Evaluation) String() string { return e.Expr.String() + "." }
func (Verify) String() string       { return "verify." }
func (l Load) String() string       { return "load(" + strconv.Quote(l.Path) + ")." }
