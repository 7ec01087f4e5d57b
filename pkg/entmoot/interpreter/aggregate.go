package interpreter

import (
	"errors"
	"fmt"

	"github.com/cognicore/entmoot/pkg/entmoot/ast"
	"github.com/cognicore/entmoot/pkg/entmoot/internalerr"
)

// group is a run of bindings that agree on the grouping variables.
type group struct {
	key     ast.Tuple
	members []Binding
}

func (g group) values() []map[string]ast.Constant {
	out := make([]map[string]ast.Constant, len(g.members))
	for i, b := range g.members {
		out[i] = b.Values
	}
	return out
}

// groupBy partitions bindings by the values of vars, keeping groups in the
// order their first member appears.
func groupBy(bindings []Binding, vars []string) ([]group, error) {
	var groups []group
	index := map[string]int{}
	for _, b := range bindings {
		key := make(ast.Tuple, len(vars))
		for i, name := range vars {
			v, ok := b.Values[name]
			if !ok {
				return nil, fmt.Errorf("%w: %s is needed to group aggregates", internalerr.ErrUnboundVariable, name)
			}
			key[i] = v
		}
		k := key.Key()
		i, seen := index[k]
		if !seen {
			i = len(groups)
			index[k] = i
			groups = append(groups, group{key: key})
		}
		groups[i].members = append(groups[i].members, b)
	}
	return groups, nil
}

// filterGroups keeps the groups of bindings for which an aggregate
// comparison holds. Bindings are grouped by the comparison's variables
// outside aggregate calls.
func filterGroups(bindings []Binding, cmp ast.Comparison) ([]Binding, error) {
	groups, err := groupBy(bindings, ast.Variables(cmp, true))
	if err != nil {
		return nil, err
	}
	var out []Binding
	for _, g := range groups {
		v, err := EvalGroup(cmp, g.values())
		if err != nil {
			return nil, err
		}
		ok, err := truthy(v)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, g.members...)
		}
	}
	return out, nil
}

// headVariables lists the head's variables used outside aggregate calls, in
// first-appearance order across fields.
func headVariables(head ast.Fact) []string {
	var names []string
	seen := map[string]bool{}
	for _, f := range head.Fields {
		for _, name := range ast.Variables(f, true) {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

func aggregating(head ast.Fact) bool {
	for _, f := range head.Fields {
		if ast.HasAggregate(f) {
			return true
		}
	}
	return false
}

// derivation is one head tuple produced by an inference. Aggregating heads
// carry the key of the group they summarise.
type derivation struct {
	tuple     ast.Tuple
	aggregate bool
	group     string
}

// deriveHeads evaluates the head for each binding, or once per group when
// the head aggregates.
func deriveHeads(head ast.Fact, bindings []Binding) ([]derivation, error) {
	if !aggregating(head) {
		out := make([]derivation, 0, len(bindings))
		for _, b := range bindings {
			t, err := evalFields(head, []map[string]ast.Constant{b.Values})
			if err != nil {
				return nil, err
			}
			out = append(out, derivation{tuple: t})
		}
		return out, nil
	}

	groups, err := groupBy(bindings, headVariables(head))
	if err != nil {
		return nil, err
	}
	out := make([]derivation, 0, len(groups))
	for _, g := range groups {
		t, err := evalFields(head, g.values())
		if err != nil {
			return nil, err
		}
		out = append(out, derivation{tuple: t, aggregate: true, group: g.key.Key()})
	}
	return out, nil
}

func evalFields(head ast.Fact, group []map[string]ast.Constant) (ast.Tuple, error) {
	t := make(ast.Tuple, len(head.Fields))
	for i, f := range head.Fields {
		v, err := EvalGroup(f, group)
		if err != nil {
			return nil, fmt.Errorf("%s field %d: %w", head.Table, i, err)
		}
		t[i] = v
	}
	return t, nil
}

func isUnbound(err error) bool {
	return errors.Is(err, internalerr.ErrUnboundVariable)
}
