// Package interpreter executes Entish statements against a fact store:
// assertion and retraction, rule registration with forward propagation,
// pattern queries, claims, dice rolls and expression evaluation.
//
// An Interpreter is not safe for concurrent use.
package interpreter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cognicore/entmoot/pkg/entmoot/ast"
	"github.com/cognicore/entmoot/pkg/entmoot/dice"
	"github.com/cognicore/entmoot/pkg/entmoot/internalerr"
	"github.com/cognicore/entmoot/pkg/entmoot/store"
	"github.com/cognicore/entmoot/pkg/entmoot/store/memstore"
)

// Interpreter owns a fact database and the inferences and claims registered
// against it.
type Interpreter struct {
	store       store.Store
	log         *zap.Logger
	sampler     *dice.Sampler
	strict      bool
	propagation Propagation
	maxPasses   int

	inferences []ast.Inference
	generative []bool
	rules      map[string]int
	aggregates map[int]map[string]ast.Tuple
	claims     []ast.Claim
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithStore replaces the default in-memory store.
func WithStore(s store.Store) Option {
	return func(in *Interpreter) { in.store = s }
}

// WithLogger sets the logger used for debug tracing.
func WithLogger(l *zap.Logger) Option {
	return func(in *Interpreter) {
		if l != nil {
			in.log = l
		}
	}
}

// WithPropagation selects cascade or saturate propagation.
func WithPropagation(p Propagation) Option {
	return func(in *Interpreter) { in.propagation = p }
}

// WithMaxPasses bounds the number of saturation passes per statement.
func WithMaxPasses(n int) Option {
	return func(in *Interpreter) {
		if n > 0 {
			in.maxPasses = n
		}
	}
}

// New creates an interpreter. seed fixes the dice sampler; strict makes a
// false claim an error.
func New(seed string, strict bool, opts ...Option) *Interpreter {
	in := &Interpreter{
		log:         zap.NewNop(),
		sampler:     dice.NewSampler(seed),
		strict:      strict,
		propagation: Cascade,
		maxPasses:   DefaultMaxPasses,
		rules:       map[string]int{},
		aggregates:  map[int]map[string]ast.Tuple{},
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.store == nil {
		in.store = memstore.New()
	}
	return in
}

// Close releases the underlying store.
func (in *Interpreter) Close() error {
	return in.store.Close()
}

// Strict reports whether false claims are errors.
func (in *Interpreter) Strict() bool { return in.strict }

// Result is what executing one statement produced.
type Result struct {
	Statement ast.Statement
	// Facts are the facts added by an assertion, inference or roll, or the
	// facts matched by a query.
	Facts []ast.Fact
	// Verdict is the outcome of a claim or verify statement.
	Verdict bool
	// Value is the result of an evaluation statement.
	Value ast.Constant
	// Failed lists the claims a verify statement found false.
	Failed []ast.Claim
}

// Exec executes a single statement.
func (in *Interpreter) Exec(ctx context.Context, stmt ast.Statement) (Result, error) {
	res := Result{Statement: stmt}
	in.log.Debug("exec", zap.Stringer("statement", stmt))

	var err error
	switch s := stmt.(type) {
	case ast.Comment:
	case ast.Assertion:
		res.Facts, err = in.Assert(ctx, s.Fact)
	case ast.Inference:
		res.Facts, err = in.Infer(ctx, s)
	case ast.Claim:
		res.Verdict, err = in.Claim(ctx, s.Clause)
	case ast.Query:
		res.Facts, err = in.Query(ctx, s.Clause)
	case ast.Rolling:
		res.Facts, err = in.Roll(ctx, s.Clause)
	case ast.Evaluation:
		res.Value, err = in.Evaluate(s.Expr)
	case ast.Verify:
		res.Failed, err = in.Verify(ctx)
		res.Verdict = err == nil && len(res.Failed) == 0
	case ast.Load:
		err = fmt.Errorf("%w: load(%q) needs a loader", internalerr.ErrUsage, s.Path)
	default:
		err = fmt.Errorf("%w: unsupported statement %T", internalerr.ErrUsage, stmt)
	}
	return res, err
}

func grounded(f ast.Fact) (ast.Tuple, error) {
	if t, ok := f.Tuple(); ok {
		return t, nil
	}
	// Variable-free arithmetic such as 1 / 0 folds to its value.
	t := make(ast.Tuple, len(f.Fields))
	for i, e := range f.Fields {
		if len(ast.Variables(e, false)) > 0 || ast.HasAggregate(e) || hasWildcard(e) {
			return nil, fmt.Errorf("%w: %s", internalerr.ErrGrounding, f)
		}
		c, err := Eval(e, nil)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		t[i] = c
	}
	return t, nil
}

func hasWildcard(e ast.Expression) bool {
	found := false
	ast.Walk(e, func(x ast.Expression) bool {
		if v, ok := x.(ast.Variable); ok && v.IsWildcard() {
			found = true
		}
		return !found
	})
	return found
}

// Assert stores a grounded fact and propagates it through the registered
// inferences. It returns the fact and everything derived from it, or nothing
// if the fact was already known. A negative fact is retracted instead.
func (in *Interpreter) Assert(ctx context.Context, f ast.Fact) ([]ast.Fact, error) {
	if f.Negative {
		return nil, in.Retract(ctx, f)
	}
	t, err := grounded(f)
	if err != nil {
		return nil, err
	}
	r := newRun()
	if err := in.insert(ctx, r, f.Table, t); err != nil {
		return r.derived, err
	}
	err = in.settle(ctx, r)
	return r.derived, err
}

// Retract removes every stored tuple equal to the grounded fact. Nothing is
// propagated.
func (in *Interpreter) Retract(ctx context.Context, f ast.Fact) error {
	t, err := grounded(f)
	if err != nil {
		return err
	}
	return in.retract(ctx, f.Table, t)
}

// Infer registers an inference, unless one with the same text is already
// registered, and applies it. It returns the facts derived.
func (in *Interpreter) Infer(ctx context.Context, inf ast.Inference) ([]ast.Fact, error) {
	key := inf.String()
	i, known := in.rules[key]
	if !known {
		i = len(in.inferences)
		in.inferences = append(in.inferences, inf)
		in.generative = append(in.generative, generative(inf))
		in.rules[key] = i
	}

	r := newRun()
	switch in.propagation {
	case Saturate:
		err := in.saturate(ctx, r)
		return r.derived, err
	default:
		r.fire(in, i)
		err := in.apply(ctx, r, i)
		return r.derived, err
	}
}

// Query returns the stored facts that justify each way clause can hold.
// Facts are listed once, in the order first found.
func (in *Interpreter) Query(ctx context.Context, clause ast.Clause) ([]ast.Fact, error) {
	bindings, err := in.Search(ctx, clause)
	if err != nil {
		return nil, err
	}
	return provenance(bindings), nil
}

func provenance(bindings []Binding) []ast.Fact {
	var out []ast.Fact
	seen := map[string]bool{}
	for _, b := range bindings {
		for _, f := range b.Facts {
			key := f.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, f)
		}
	}
	return out
}

// Claim checks clause against the database and records it for Verify. In
// strict mode a false claim returns ErrUnverifiedClaim.
func (in *Interpreter) Claim(ctx context.Context, clause ast.Clause) (bool, error) {
	ok, err := in.check(ctx, clause)
	if err != nil {
		return false, err
	}
	in.claims = append(in.claims, ast.Claim{Clause: clause})
	in.log.Debug("claim checked", zap.Stringer("clause", clause), zap.Bool("verdict", ok))
	if !ok && in.strict {
		return false, fmt.Errorf("%w: %s", internalerr.ErrUnverifiedClaim, clause)
	}
	return ok, nil
}

func (in *Interpreter) check(ctx context.Context, clause ast.Clause) (bool, error) {
	switch c := clause.(type) {
	case ast.Fact:
		negative := c.Negative
		c.Negative = false
		bindings, err := in.Search(ctx, c)
		if err != nil {
			return false, err
		}
		return (len(bindings) > 0) != negative, nil
	case ast.Conjunction:
		negative := c.Negative
		c.Negative = false
		bindings, err := in.Search(ctx, c)
		if err != nil {
			return false, err
		}
		return (len(bindings) > 0) != negative, nil
	case ast.Comparison:
		v, err := Eval(c, nil)
		if err != nil {
			return false, err
		}
		return truthy(v)
	case ast.Disjunction, ast.ExclusiveDisjunction:
		return false, fmt.Errorf("%w: cannot claim %s, claim each alternative instead", internalerr.ErrUsage, clause)
	default:
		return false, fmt.Errorf("%w: cannot claim %T", internalerr.ErrUsage, clause)
	}
}

// Verify re-checks every recorded claim against the current database and
// returns the ones that no longer hold.
func (in *Interpreter) Verify(ctx context.Context) ([]ast.Claim, error) {
	var failed []ast.Claim
	for _, c := range in.claims {
		ok, err := in.check(ctx, c.Clause)
		if err != nil {
			return failed, fmt.Errorf("%s: %w", c, err)
		}
		if !ok {
			failed = append(failed, c)
		}
	}
	return failed, nil
}

// Roll samples the dice fields of every fact matching clause, asserts the
// sampled facts and returns them.
func (in *Interpreter) Roll(ctx context.Context, clause ast.Clause) ([]ast.Fact, error) {
	bindings, err := in.Search(ctx, clause)
	if err != nil {
		return nil, err
	}

	var sampled []ast.Fact
	for _, f := range provenance(bindings) {
		t, err := grounded(f)
		if err != nil {
			return sampled, err
		}
		for i, c := range t {
			if roll, ok := c.(ast.Roll); ok {
				t[i] = in.sampler.Sample(roll)
			}
		}
		sampled = append(sampled, t.Fact(f.Table))

		// Each sampled fact propagates like a separate assertion.
		r := newRun()
		if err := in.insert(ctx, r, f.Table, t); err != nil {
			return sampled, err
		}
		if err := in.settle(ctx, r); err != nil {
			return sampled, err
		}
	}
	return sampled, nil
}

// Evaluate evaluates a variable-free expression.
func (in *Interpreter) Evaluate(expr ast.Expression) (ast.Constant, error) {
	return Eval(expr, nil)
}

// TableNames lists every table in first-touch order.
func (in *Interpreter) TableNames(ctx context.Context) ([]string, error) {
	return in.store.Tables(ctx)
}

// Table returns the facts stored in a table, in insertion order.
func (in *Interpreter) Table(ctx context.Context, name string) ([]ast.Fact, error) {
	rows, err := in.store.Scan(ctx, name)
	if err != nil {
		return nil, err
	}
	out := make([]ast.Fact, len(rows))
	for i, row := range rows {
		out[i] = row.Fact(name)
	}
	return out, nil
}

// Inferences returns the registered inferences in registration order.
func (in *Interpreter) Inferences() []ast.Inference {
	return append([]ast.Inference(nil), in.inferences...)
}

// Claims returns every claim checked so far.
func (in *Interpreter) Claims() []ast.Claim {
	return append([]ast.Claim(nil), in.claims...)
}
