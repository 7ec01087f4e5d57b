package ast

import (
	"fmt"
	"strings"
)

// Clause is a fact pattern, conjunction, disjunction, exclusive disjunction
// or comparison.
type Clause interface {
	fmt.Stringer
	clause()
}

// Fact is a table name with ordered fields. Stored facts hold only constants;
// patterns may hold variables and expressions. A negative fact retracts
// instead of asserting, and negates a pattern.
type Fact struct {
	Table    string
	Fields   []Expression
	Negative bool
}

func (Fact) clause() {}

func (f Fact) String() string {
	fields := make([]string, len(f.Fields))
	for i, e := range f.Fields {
		fields[i] = e.String()
	}
	s := f.Table + "(" + strings.Join(fields, ", ") + ")"
	if f.Negative {
		return "~" + s
	}
	return s
}

// Tuple returns the fact's fields as constants. ok is false if any field is
// not grounded.
func (f Fact) Tuple() (t Tuple, ok bool) {
	t = make(Tuple, len(f.Fields))
	for i, e := range f.Fields {
		c, isConst := e.(Constant)
		if !isConst {
			return nil, false
		}
		t[i] = c
	}
	return t, true
}

// Conjunction holds when every clause holds, joined on shared variables.
type Conjunction struct {
	Clauses  []Clause
	Negative bool
}

// Disjunction holds when any clause holds.
type Disjunction struct {
	Clauses  []Clause
	Negative bool
}

// ExclusiveDisjunction holds when exactly one clause holds.
type ExclusiveDisjunction struct {
	Clauses  []Clause
	Negative bool
}

func (Conjunction) clause()          {}
func (Disjunction) clause()          {}
func (ExclusiveDisjunction) clause() {}

func (c Conjunction) String() string { return junction(c.Clauses, "&", c.Negative) }

func (d Disjunction) String() string { return junction(d.Clauses, "|", d.Negative) }

func (x ExclusiveDisjunction) String() string { return junction(x.Clauses, "^", x.Negative) }

func junction(clauses []Clause, op string, negative bool) string {
	parts := make([]string, len(clauses))
	for i, c := range clauses {
		parts[i] = c.String()
	}
	s := "(" + strings.Join(parts, " "+op+" ") + ")"
	if negative {
		return "~" + s
	}
	return s
}

// Negate returns the logical complement of a clause where one is expressible
// locally: fact patterns and junctions toggle their flag, comparisons invert
// their operator.
func Negate(c Clause) Clause {
	switch v := c.(type) {
	case Fact:
		v.Negative = !v.Negative
		return v
	case Conjunction:
		v.Negative = !v.Negative
		return v
	case Disjunction:
		v.Negative = !v.Negative
		return v
	case ExclusiveDisjunction:
		v.Negative = !v.Negative
		return v
	case Comparison:
		v.Op = v.Op.Negate()
		return v
	default:
		return c
	}
}
