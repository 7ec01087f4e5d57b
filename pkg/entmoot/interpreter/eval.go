package interpreter

import (
	"fmt"
	"math"
	"strings"

	"github.com/cognicore/entmoot/pkg/entmoot/ast"
	"github.com/cognicore/entmoot/pkg/entmoot/dice"
	"github.com/cognicore/entmoot/pkg/entmoot/internalerr"
)

// Eval evaluates expr against a single set of variable values. Aggregates
// see a group of one.
func Eval(expr ast.Expression, values map[string]ast.Constant) (ast.Constant, error) {
	return EvalGroup(expr, []map[string]ast.Constant{values})
}

// EvalGroup evaluates expr for a group of bindings that agree on every
// variable used outside aggregate calls. Those variables are read from the
// first member; aggregate calls fold over all of them.
func EvalGroup(expr ast.Expression, group []map[string]ast.Constant) (ast.Constant, error) {
	if len(group) == 0 {
		group = []map[string]ast.Constant{nil}
	}
	return evaluator{group: group}.eval(expr)
}

type evaluator struct {
	group []map[string]ast.Constant
}

func (e evaluator) eval(expr ast.Expression) (ast.Constant, error) {
	switch x := expr.(type) {
	case ast.Constant:
		return x, nil
	case ast.Variable:
		if x.IsWildcard() {
			return nil, fmt.Errorf("%w: wildcard has no value", internalerr.ErrUnboundVariable)
		}
		v, ok := e.group[0][x.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", internalerr.ErrUnboundVariable, x.Name)
		}
		return v, nil
	case ast.BinaryOp:
		return e.arithmetic(x)
	case ast.Comparison:
		l, err := e.eval(x.Left)
		if err != nil {
			return nil, err
		}
		r, err := e.eval(x.Right)
		if err != nil {
			return nil, err
		}
		ok, err := Compare(l, x.Op, r)
		if err != nil {
			return nil, err
		}
		return ast.Boolean{Value: ok}, nil
	case ast.Call:
		return e.call(x)
	default:
		return nil, fmt.Errorf("%w: cannot evaluate %T", internalerr.ErrUsage, expr)
	}
}

func (e evaluator) number(expr ast.Expression) (float64, error) {
	v, err := e.eval(expr)
	if err != nil {
		return 0, err
	}
	n, ok := v.(ast.Number)
	if !ok {
		return 0, fmt.Errorf("%w: %s is a %s, not a number", internalerr.ErrType, v, ast.Kind(v))
	}
	return n.Value, nil
}

func (e evaluator) arithmetic(b ast.BinaryOp) (ast.Constant, error) {
	l, err := e.number(b.Left)
	if err != nil {
		return nil, err
	}
	r, err := e.number(b.Right)
	if err != nil {
		return nil, err
	}
	switch b.Op {
	case ast.Add:
		return ast.Number{Value: l + r}, nil
	case ast.Sub:
		return ast.Number{Value: l - r}, nil
	case ast.Mul:
		return ast.Number{Value: l * r}, nil
	case ast.Div:
		return ast.Number{Value: l / r}, nil
	case ast.Pow:
		return ast.Number{Value: math.Pow(l, r)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown operator %q", internalerr.ErrUsage, b.Op)
	}
}

func (e evaluator) call(c ast.Call) (ast.Constant, error) {
	if len(c.Args) != 1 {
		return nil, fmt.Errorf("%w: %s takes one argument, got %d", internalerr.ErrUsage, c.Func, len(c.Args))
	}
	arg := c.Args[0]

	switch c.Func {
	case ast.Floor, ast.Ceil:
		n, err := e.number(arg)
		if err != nil {
			return nil, err
		}
		if c.Func == ast.Floor {
			return ast.Number{Value: math.Floor(n)}, nil
		}
		return ast.Number{Value: math.Ceil(n)}, nil
	case ast.Pr:
		return e.probability(arg)
	case ast.Count:
		return ast.Number{Value: float64(len(e.group))}, nil
	case ast.Sum, ast.Min, ast.Max:
		return e.fold(c.Func, arg)
	default:
		return nil, fmt.Errorf("%w: unknown function %q", internalerr.ErrUsage, c.Func)
	}
}

// probability computes Pr(roll op target) exactly. Any other argument is
// returned as evaluated, so Pr(2d6) is the roll itself.
func (e evaluator) probability(arg ast.Expression) (ast.Constant, error) {
	cmp, ok := arg.(ast.Comparison)
	if !ok {
		return e.eval(arg)
	}
	l, err := e.eval(cmp.Left)
	if err != nil {
		return nil, err
	}
	r, err := e.eval(cmp.Right)
	if err != nil {
		return nil, err
	}

	op := cmp.Op
	roll, isRoll := l.(ast.Roll)
	target := r
	if !isRoll {
		if roll, isRoll = r.(ast.Roll); isRoll {
			target = l
			op = mirror(op)
		}
	}
	if !isRoll {
		// Nothing random: the probability is 0 or 1.
		ok, err := Compare(l, cmp.Op, r)
		if err != nil {
			return nil, err
		}
		if ok {
			return ast.Number{Value: 1}, nil
		}
		return ast.Number{Value: 0}, nil
	}

	n, ok := target.(ast.Number)
	if !ok {
		return nil, fmt.Errorf("%w: Pr compares %s against a %s", internalerr.ErrType, roll, ast.Kind(target))
	}
	p, _ := dice.Probability(roll, op, n.Value).Float64()
	return ast.Number{Value: p}, nil
}

// mirror swaps the sides of a comparator: a < b iff b > a.
func mirror(op ast.Comparator) ast.Comparator {
	switch op {
	case ast.Gt:
		return ast.Lt
	case ast.Ge:
		return ast.Le
	case ast.Lt:
		return ast.Gt
	case ast.Le:
		return ast.Ge
	default:
		return op
	}
}

// fold evaluates arg for every member of the group. Members where arg is
// unbound, and roll values, are skipped.
func (e evaluator) fold(fn ast.Function, arg ast.Expression) (ast.Constant, error) {
	var (
		acc  float64
		seen int
	)
	for _, member := range e.group {
		v, err := evaluator{group: []map[string]ast.Constant{member}}.eval(arg)
		if err != nil {
			if isUnbound(err) {
				continue
			}
			return nil, err
		}
		var n float64
		switch x := v.(type) {
		case ast.Number:
			n = x.Value
		case ast.Roll:
			continue
		default:
			return nil, fmt.Errorf("%w: %s over %s %s", internalerr.ErrType, fn, ast.Kind(v), v)
		}
		switch {
		case seen == 0 && fn != ast.Sum:
			acc = n
		case fn == ast.Sum:
			acc += n
		case fn == ast.Min:
			acc = math.Min(acc, n)
		case fn == ast.Max:
			acc = math.Max(acc, n)
		}
		seen++
	}
	if seen == 0 && fn != ast.Sum {
		return nil, fmt.Errorf("%w: %s(%s) has no numeric values", internalerr.ErrUnboundVariable, fn, arg)
	}
	return ast.Number{Value: acc}, nil
}

// Compare applies a comparator to two constants. Rolls stand for their
// expected value. Numbers compare numerically and strings lexicographically;
// booleans support only equality. Constants of different kinds are unequal
// and cannot be ordered.
func Compare(l ast.Constant, op ast.Comparator, r ast.Constant) (bool, error) {
	if roll, ok := l.(ast.Roll); ok {
		l = ast.Number{Value: dice.Expected(roll)}
	}
	if roll, ok := r.(ast.Roll); ok {
		r = ast.Number{Value: dice.Expected(roll)}
	}

	var order int
	switch x := l.(type) {
	case ast.Number:
		y, ok := r.(ast.Number)
		if !ok {
			return mixed(l, op, r)
		}
		switch {
		case x.Value < y.Value:
			order = -1
		case x.Value > y.Value:
			order = 1
		case x.Value != y.Value:
			// NaN is unordered: only != holds.
			return op == ast.Ne, nil
		}
	case ast.String:
		y, ok := r.(ast.String)
		if !ok {
			return mixed(l, op, r)
		}
		order = strings.Compare(x.Value, y.Value)
	case ast.Boolean:
		y, ok := r.(ast.Boolean)
		if !ok {
			return mixed(l, op, r)
		}
		switch op {
		case ast.Eq:
			return x.Value == y.Value, nil
		case ast.Ne:
			return x.Value != y.Value, nil
		default:
			return false, fmt.Errorf("%w: booleans cannot be ordered with %s", internalerr.ErrType, op)
		}
	default:
		return false, fmt.Errorf("%w: cannot compare %T", internalerr.ErrType, l)
	}

	switch op {
	case ast.Eq:
		return order == 0, nil
	case ast.Ne:
		return order != 0, nil
	case ast.Gt:
		return order > 0, nil
	case ast.Ge:
		return order >= 0, nil
	case ast.Lt:
		return order < 0, nil
	case ast.Le:
		return order <= 0, nil
	default:
		return false, fmt.Errorf("%w: unknown comparator %q", internalerr.ErrUsage, op)
	}
}

func mixed(l ast.Constant, op ast.Comparator, r ast.Constant) (bool, error) {
	switch op {
	case ast.Eq:
		return false, nil
	case ast.Ne:
		return true, nil
	default:
		return false, fmt.Errorf("%w: cannot order %s %s and %s %s", internalerr.ErrType, ast.Kind(l), l, ast.Kind(r), r)
	}
}
