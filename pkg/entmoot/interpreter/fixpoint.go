package interpreter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cognicore/entmoot/pkg/entmoot/ast"
	"github.com/cognicore/entmoot/pkg/entmoot/internalerr"
)

// Propagation selects how registered inferences react to new facts.
type Propagation string

const (
	// Cascade re-applies inferences depth first as soon as a new fact
	// appears. Projections run until nothing new appears. Generative
	// inferences run at most once per statement.
	Cascade Propagation = "cascade"
	// Saturate re-applies every inference in passes until a pass derives
	// nothing new.
	Saturate Propagation = "saturate"
)

// DefaultMaxPasses bounds saturation when no limit is configured.
const DefaultMaxPasses = 1000

// ParsePropagation validates a propagation mode name.
func ParsePropagation(s string) (Propagation, error) {
	switch p := Propagation(s); p {
	case Cascade, Saturate:
		return p, nil
	case "":
		return Cascade, nil
	default:
		return "", fmt.Errorf("%w: unknown propagation mode %q", internalerr.ErrUsage, s)
	}
}

// run tracks what a single statement did to the database.
type run struct {
	// fired holds the generative inferences already applied.
	fired   map[int]bool
	derived []ast.Fact
}

func newRun() *run {
	return &run{fired: map[int]bool{}}
}

// insert stores a tuple. New tuples are recorded and, in cascade mode,
// propagated immediately.
func (in *Interpreter) insert(ctx context.Context, r *run, table string, t ast.Tuple) error {
	added, err := in.store.Insert(ctx, table, t)
	if err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	if !added {
		return nil
	}
	fact := t.Fact(table)
	r.derived = append(r.derived, fact)
	in.log.Debug("fact added", zap.Stringer("fact", fact))

	if in.propagation == Cascade {
		return in.cascade(ctx, r)
	}
	return nil
}

func (in *Interpreter) retract(ctx context.Context, table string, t ast.Tuple) error {
	n, err := in.store.Retract(ctx, table, t)
	if err != nil {
		return fmt.Errorf("retract %s: %w", table, err)
	}
	if n > 0 {
		in.log.Debug("fact retracted", zap.Stringer("fact", t.Fact(table)), zap.Int("count", n))
	}
	return nil
}

// cascade applies every inference to the grown database. A projection only
// recombines stored constants, so re-applying it ends once the finite set of
// tuples it can reach is stored. A generative inference is applied once per
// statement.
func (in *Interpreter) cascade(ctx context.Context, r *run) error {
	for i := range in.inferences {
		if in.generative[i] && r.fired[i] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		r.fire(in, i)
		if err := in.apply(ctx, r, i); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) fire(in *Interpreter, i int) {
	if in.generative[i] {
		r.fired[i] = true
	}
}

// generative reports whether inf can derive constants that are not already
// stored: a head field computes a value, or an aggregating head reads its
// own table.
func generative(inf ast.Inference) bool {
	aggregates := false
	for _, f := range inf.Head.Fields {
		computes := false
		ast.Walk(f, func(e ast.Expression) bool {
			switch v := e.(type) {
			case ast.BinaryOp:
				computes = true
			case ast.Call:
				if v.Func.IsAggregate() {
					aggregates = true
					return false
				}
				computes = true
			}
			return !computes
		})
		if computes {
			return true
		}
	}
	return aggregates && readsTable(inf.Body, inf.Head.Table)
}

func readsTable(c ast.Clause, table string) bool {
	switch v := c.(type) {
	case ast.Fact:
		return v.Table == table
	case ast.Conjunction:
		return anyReads(v.Clauses, table)
	case ast.Disjunction:
		return anyReads(v.Clauses, table)
	case ast.ExclusiveDisjunction:
		return anyReads(v.Clauses, table)
	default:
		return false
	}
}

func anyReads(cs []ast.Clause, table string) bool {
	for _, c := range cs {
		if readsTable(c, table) {
			return true
		}
	}
	return false
}

// saturate re-applies every inference until a full pass adds nothing.
func (in *Interpreter) saturate(ctx context.Context, r *run) error {
	for pass := 1; ; pass++ {
		if pass > in.maxPasses {
			return fmt.Errorf("%w: no fixpoint after %d passes", internalerr.ErrIterationLimit, in.maxPasses)
		}
		before := len(r.derived)
		for i := range in.inferences {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := in.apply(ctx, r, i); err != nil {
				return err
			}
		}
		in.log.Debug("saturation pass", zap.Int("pass", pass), zap.Int("derived", len(r.derived)-before))
		if len(r.derived) == before {
			return nil
		}
	}
}

// settle finishes a statement that may have added facts. Cascade mode has
// already propagated during insertion.
func (in *Interpreter) settle(ctx context.Context, r *run) error {
	if in.propagation != Saturate || len(r.derived) == 0 {
		return nil
	}
	return in.saturate(ctx, r)
}

// apply evaluates inference i against the current database and stores the
// resulting head facts. Negative heads retract.
func (in *Interpreter) apply(ctx context.Context, r *run, i int) error {
	inf := in.inferences[i]
	bindings, err := in.Search(ctx, inf.Body)
	if err != nil {
		return fmt.Errorf("%s: %w", inf, err)
	}
	heads, err := deriveHeads(inf.Head, bindings)
	if err != nil {
		return fmt.Errorf("%s: %w", inf, err)
	}
	in.log.Debug("inference applied",
		zap.Stringer("inference", inf),
		zap.Int("bindings", len(bindings)),
		zap.Int("heads", len(heads)))

	for _, h := range heads {
		if inf.Head.Negative {
			if err := in.retract(ctx, inf.Head.Table, h.tuple); err != nil {
				return err
			}
			continue
		}
		if h.aggregate {
			if err := in.refresh(ctx, i, h); err != nil {
				return err
			}
		}
		if err := in.insert(ctx, r, inf.Head.Table, h.tuple); err != nil {
			return err
		}
	}
	return nil
}

// refresh retracts the tuple an aggregating inference previously derived for
// the same group when the group's value has changed.
func (in *Interpreter) refresh(ctx context.Context, i int, h derivation) error {
	groups := in.aggregates[i]
	if groups == nil {
		groups = map[string]ast.Tuple{}
		in.aggregates[i] = groups
	}
	prev, ok := groups[h.group]
	groups[h.group] = h.tuple
	if !ok || prev.Equal(h.tuple) {
		return nil
	}
	return in.retract(ctx, in.inferences[i].Head.Table, prev)
}
