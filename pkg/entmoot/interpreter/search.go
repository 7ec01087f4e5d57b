package interpreter

import (
	"context"
	"fmt"

	"github.com/cognicore/entmoot/pkg/entmoot/ast"
	"github.com/cognicore/entmoot/pkg/entmoot/internalerr"
)

// Binding is one way a clause can be satisfied: the variable values it
// fixes, the stored facts that justified them, and the guards that still
// wait for variables bound elsewhere in the clause.
type Binding struct {
	Values map[string]ast.Constant
	Facts  []ast.Fact
	Guards []ast.Clause
}

func (b Binding) clone() Binding {
	values := make(map[string]ast.Constant, len(b.Values))
	for k, v := range b.Values {
		values[k] = v
	}
	return Binding{
		Values: values,
		Facts:  append([]ast.Fact(nil), b.Facts...),
		Guards: append([]ast.Clause(nil), b.Guards...),
	}
}

// merge joins two bindings. ok is false when they disagree on a variable.
func merge(a, b Binding) (Binding, bool) {
	out := a.clone()
	for k, v := range b.Values {
		if prev, bound := out.Values[k]; bound {
			if !ast.Equal(prev, v) {
				return Binding{}, false
			}
			continue
		}
		out.Values[k] = v
	}
	out.Facts = append(out.Facts, b.Facts...)
	out.Guards = append(out.Guards, b.Guards...)
	return out, true
}

// Search returns every binding that satisfies clause against the current
// database. Guards are fully resolved: a comparison that still mentions an
// unbound variable is an error.
func (in *Interpreter) Search(ctx context.Context, clause ast.Clause) ([]Binding, error) {
	bindings, err := in.search(ctx, clause)
	if err != nil {
		return nil, err
	}
	out := bindings[:0]
	for _, b := range bindings {
		ok, err := in.resolve(ctx, &b, true)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (in *Interpreter) search(ctx context.Context, clause ast.Clause) ([]Binding, error) {
	switch c := clause.(type) {
	case ast.Fact:
		if c.Negative {
			return []Binding{{Values: map[string]ast.Constant{}, Guards: []ast.Clause{c}}}, nil
		}
		return in.matchFact(ctx, c)
	case ast.Conjunction:
		if c.Negative {
			return nil, fmt.Errorf("%w: negated conjunction %s inside a clause", internalerr.ErrUsage, c)
		}
		return in.searchConjunction(ctx, c)
	case ast.Disjunction:
		if c.Negative {
			return nil, fmt.Errorf("%w: negated disjunction %s inside a clause", internalerr.ErrUsage, c)
		}
		var out []Binding
		for _, child := range c.Clauses {
			bs, err := in.search(ctx, child)
			if err != nil {
				return nil, err
			}
			out = append(out, bs...)
		}
		return out, nil
	case ast.ExclusiveDisjunction:
		if c.Negative {
			return nil, fmt.Errorf("%w: negated exclusive disjunction %s inside a clause", internalerr.ErrUsage, c)
		}
		return in.searchExclusive(ctx, c)
	case ast.Comparison:
		return []Binding{{Values: map[string]ast.Constant{}, Guards: []ast.Clause{c}}}, nil
	default:
		return nil, fmt.Errorf("%w: cannot search %T", internalerr.ErrUsage, clause)
	}
}

func (in *Interpreter) matchFact(ctx context.Context, pattern ast.Fact) ([]Binding, error) {
	rows, err := in.store.Scan(ctx, pattern.Table)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", pattern.Table, err)
	}
	var out []Binding
	for _, row := range rows {
		b, ok := matchTuple(pattern, row, nil)
		if !ok {
			continue
		}
		b.Facts = []ast.Fact{row.Fact(pattern.Table)}
		keep, err := in.resolve(ctx, &b, false)
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, b)
		}
	}
	return out, nil
}

// matchTuple matches the pattern's fields against a prefix of row, starting
// from the values in seed. Compound fields become equality guards.
func matchTuple(pattern ast.Fact, row ast.Tuple, seed map[string]ast.Constant) (Binding, bool) {
	if len(row) < len(pattern.Fields) {
		return Binding{}, false
	}
	b := Binding{Values: make(map[string]ast.Constant, len(seed)+len(pattern.Fields))}
	for k, v := range seed {
		b.Values[k] = v
	}
	for i, field := range pattern.Fields {
		value := row[i]
		switch f := field.(type) {
		case ast.Variable:
			if f.IsWildcard() {
				continue
			}
			if prev, bound := b.Values[f.Name]; bound {
				if !ast.Equal(prev, value) {
					return Binding{}, false
				}
				continue
			}
			b.Values[f.Name] = value
		case ast.Constant:
			if !ast.Equal(f, value) {
				return Binding{}, false
			}
		default:
			b.Guards = append(b.Guards, ast.Comparison{Op: ast.Eq, Left: field, Right: value})
		}
	}
	return b, true
}

func (in *Interpreter) searchConjunction(ctx context.Context, c ast.Conjunction) ([]Binding, error) {
	var filters []ast.Comparison
	acc := []Binding{{Values: map[string]ast.Constant{}}}

	for _, child := range c.Clauses {
		if cmp, ok := child.(ast.Comparison); ok && ast.HasAggregate(cmp) {
			filters = append(filters, cmp)
			continue
		}
		bs, err := in.search(ctx, child)
		if err != nil {
			return nil, err
		}
		var next []Binding
		for _, left := range acc {
			for _, right := range bs {
				joined, ok := merge(left, right)
				if !ok {
					continue
				}
				keep, err := in.resolve(ctx, &joined, false)
				if err != nil {
					return nil, err
				}
				if keep {
					next = append(next, joined)
				}
			}
		}
		acc = next
		if len(acc) == 0 {
			return nil, nil
		}
	}

	for _, f := range filters {
		var err error
		acc, err = filterGroups(acc, f)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func (in *Interpreter) searchExclusive(ctx context.Context, x ast.ExclusiveDisjunction) ([]Binding, error) {
	var winner []Binding
	holding := 0
	for _, child := range x.Clauses {
		bs, err := in.search(ctx, child)
		if err != nil {
			return nil, err
		}
		kept := bs[:0]
		for _, b := range bs {
			ok, err := in.resolve(ctx, &b, false)
			if err != nil {
				return nil, err
			}
			if ok {
				kept = append(kept, b)
			}
		}
		if len(kept) > 0 {
			holding++
			winner = kept
		}
	}
	if holding != 1 {
		return nil, nil
	}
	return winner, nil
}

// resolve evaluates the binding's guards in place. A guard whose variables
// are not all bound stays pending unless final is set, in which case
// comparisons fail with ErrUnboundVariable and negated patterns treat the
// missing variables as free. It reports false if any guard fails.
func (in *Interpreter) resolve(ctx context.Context, b *Binding, final bool) (bool, error) {
	var pending []ast.Clause
	for _, g := range b.Guards {
		if !final && !bound(g, b.Values) {
			pending = append(pending, g)
			continue
		}
		ok, err := in.holds(ctx, g, b.Values)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	b.Guards = pending
	return true, nil
}

func bound(guard ast.Clause, values map[string]ast.Constant) bool {
	for _, name := range guardVariables(guard) {
		if _, ok := values[name]; !ok {
			return false
		}
	}
	return true
}

func guardVariables(guard ast.Clause) []string {
	switch g := guard.(type) {
	case ast.Comparison:
		return ast.Variables(g, false)
	case ast.Fact:
		var names []string
		for _, f := range g.Fields {
			names = append(names, ast.Variables(f, false)...)
		}
		return names
	default:
		return nil
	}
}

func (in *Interpreter) holds(ctx context.Context, guard ast.Clause, values map[string]ast.Constant) (bool, error) {
	switch g := guard.(type) {
	case ast.Comparison:
		v, err := Eval(g, values)
		if err != nil {
			return false, err
		}
		return truthy(v)
	case ast.Fact:
		found, err := in.exists(ctx, ast.Fact{Table: g.Table, Fields: g.Fields}, values)
		if err != nil {
			return false, err
		}
		return found != g.Negative, nil
	default:
		return false, fmt.Errorf("%w: %T cannot be a guard", internalerr.ErrUsage, guard)
	}
}

// exists reports whether any stored tuple matches pattern once the given
// values are substituted for its variables.
func (in *Interpreter) exists(ctx context.Context, pattern ast.Fact, values map[string]ast.Constant) (bool, error) {
	rows, err := in.store.Scan(ctx, pattern.Table)
	if err != nil {
		return false, fmt.Errorf("scan %s: %w", pattern.Table, err)
	}
	for _, row := range rows {
		b, ok := matchTuple(pattern, row, values)
		if !ok {
			continue
		}
		keep, err := in.resolve(ctx, &b, true)
		if err != nil {
			return false, err
		}
		if keep {
			return true, nil
		}
	}
	return false, nil
}

func truthy(c ast.Constant) (bool, error) {
	b, ok := c.(ast.Boolean)
	if !ok {
		return false, fmt.Errorf("%w: expected a boolean, got %s %s", internalerr.ErrType, ast.Kind(c), c)
	}
	return b.Value, nil
}
