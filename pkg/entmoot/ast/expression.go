package ast

import (
	"fmt"
	"strings"
)

// Expression is a constant, variable, binary operation, function call or
// comparison.
type Expression interface {
	fmt.Stringer
	expression()
}

// Wildcard is the variable name that matches any value without binding.
const Wildcard = "?"

// Variable refers to a value bound during clause evaluation.
type Variable struct {
	Name string
}

func (Variable) expression() {}

func (v Variable) String() string { return v.Name }

// IsWildcard reports whether v is the anonymous "?" variable.
func (v Variable) IsWildcard() bool { return v.Name == Wildcard }

// Operator is an arithmetic operator.
type Operator string

const (
	Add Operator = "+"
	Sub Operator = "-"
	Mul Operator = "*"
	Div Operator = "/"
	Pow Operator = "^"
)

func (o Operator) precedence() int {
	switch o {
	case Add, Sub:
		return 1
	case Mul, Div:
		return 2
	case Pow:
		return 3
	default:
		return 0
	}
}

// BinaryOp applies an arithmetic operator to two numeric operands.
type BinaryOp struct {
	Op    Operator
	Left  Expression
	Right Expression
}

func (BinaryOp) expression() {}

func (b BinaryOp) String() string {
	left, right := b.Left.String(), b.Right.String()
	prec := b.Op.precedence()
	// ^ associates to the right, everything else to the left.
	if l, ok := b.Left.(BinaryOp); ok {
		if lp := l.Op.precedence(); lp < prec || (lp == prec && b.Op == Pow) {
			left = "(" + left + ")"
		}
	}
	if r, ok := b.Right.(BinaryOp); ok {
		if rp := r.Op.precedence(); rp < prec || (rp == prec && b.Op != Pow) {
			right = "(" + right + ")"
		}
	}
	return left + " " + string(b.Op) + " " + right
}

// Function identifies a built-in function.
type Function string

const (
	Floor Function = "floor"
	Ceil  Function = "ceil"
	Sum   Function = "sum"
	Count Function = "count"
	Min   Function = "min"
	Max   Function = "max"
	Pr    Function = "Pr"
)

var functions = map[string]Function{
	"floor": Floor,
	"ceil":  Ceil,
	"sum":   Sum,
	"count": Count,
	"min":   Min,
	"max":   Max,
	"pr":    Pr,
}

// LookupFunction resolves a function name case-insensitively, so both
// Floor and floor name the same function.
func LookupFunction(name string) (Function, bool) {
	fn, ok := functions[strings.ToLower(name)]
	return fn, ok
}

// IsAggregate reports whether the function folds a group of bindings.
func (f Function) IsAggregate() bool {
	switch f {
	case Sum, Count, Min, Max:
		return true
	default:
		return false
	}
}

// Call invokes a built-in function.
type Call struct {
	Func Function
	Args []Expression
}

func (Call) expression() {}

func (c Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return string(c.Func) + "(" + strings.Join(args, ", ") + ")"
}

// Comparator is a relational operator.
type Comparator string

const (
	Eq Comparator = "="
	Ne Comparator = "!="
	Gt Comparator = ">"
	Ge Comparator = ">="
	Lt Comparator = "<"
	Le Comparator = "<="
)

// Negate returns the complementary comparator.
func (c Comparator) Negate() Comparator {
	switch c {
	case Eq:
		return Ne
	case Ne:
		return Eq
	case Gt:
		return Le
	case Ge:
		return Lt
	case Lt:
		return Ge
	case Le:
		return Gt
	default:
		return c
	}
}

// Comparison is both an expression (yielding a Boolean) and a clause.
type Comparison struct {
	Op    Comparator
	Left  Expression
	Right Expression
}

func (Comparison) expression() {}
func (Comparison) clause()     {}

func (c Comparison) String() string {
	return c.Left.String() + " " + string(c.Op) + " " + c.Right.String()
}

// Walk calls fn for expr and each of its sub-expressions, depth first. If fn
// returns false the children of that node are skipped.
func Walk(expr Expression, fn func(Expression) bool) {
	if !fn(expr) {
		return
	}
	switch e := expr.(type) {
	case BinaryOp:
		Walk(e.Left, fn)
		Walk(e.Right, fn)
	case Comparison:
		Walk(e.Left, fn)
		Walk(e.Right, fn)
	case Call:
		for _, a := range e.Args {
			Walk(a, fn)
		}
	}
}

// HasAggregate reports whether expr calls an aggregate function.
func HasAggregate(expr Expression) bool {
	found := false
	Walk(expr, func(e Expression) bool {
		if c, ok := e.(Call); ok && c.Func.IsAggregate() {
			found = true
		}
		return !found
	})
	return found
}

// Variables returns the named variables of expr in first-appearance order.
// Variables inside aggregate calls are skipped when outsideAggregates is set.
func Variables(expr Expression, outsideAggregates bool) []string {
	var names []string
	seen := map[string]bool{}
	Walk(expr, func(e Expression) bool {
		switch v := e.(type) {
		case Variable:
			if !v.IsWildcard() && !seen[v.Name] {
				seen[v.Name] = true
				names = append(names, v.Name)
			}
		case Call:
			if outsideAggregates && v.Func.IsAggregate() {
				return false
			}
		}
		return true
	})
	return names
}
