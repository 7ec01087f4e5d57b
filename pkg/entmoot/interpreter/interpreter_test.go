package interpreter_test

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cognicore/entmoot/pkg/entmoot/ast"
	"github.com/cognicore/entmoot/pkg/entmoot/internalerr"
	"github.com/cognicore/entmoot/pkg/entmoot/interpreter"
	"github.com/cognicore/entmoot/pkg/entmoot/parser"
	"github.com/cognicore/entmoot/pkg/entmoot/store/sqlite"
)

// load executes every statement in src and fails the test on any error.
func load(t *testing.T, in *interpreter.Interpreter, src string) []interpreter.Result {
	t.Helper()
	stmts, err := parser.ParseStatements("test.ent", src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	var out []interpreter.Result
	for _, stmt := range stmts {
		res, err := in.Exec(context.Background(), stmt)
		if err != nil {
			t.Fatalf("exec %s: %v", stmt, err)
		}
		out = append(out, res)
	}
	return out
}

// execErr executes a single statement and returns its error.
func execErr(t *testing.T, in *interpreter.Interpreter, src string) error {
	t.Helper()
	stmts, err := parser.ParseStatements("test.ent", src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	if len(stmts) != 1 {
		t.Fatalf("expected one statement in %q", src)
	}
	_, err = in.Exec(context.Background(), stmts[0])
	return err
}

func claim(t *testing.T, in *interpreter.Interpreter, clause string) bool {
	t.Helper()
	res := load(t, in, "ergo "+clause+".")
	return res[0].Verdict
}

func table(t *testing.T, in *interpreter.Interpreter, name string) []string {
	t.Helper()
	facts, err := in.Table(context.Background(), name)
	if err != nil {
		t.Fatalf("Table(%s): %v", name, err)
	}
	return render(facts)
}

func render(facts []ast.Fact) []string {
	out := make([]string, len(facts))
	for i, f := range facts {
		out[i] = f.String()
	}
	return out
}

func TestInsertionIsIdempotent(t *testing.T) {
	in := interpreter.New("seed", true)
	res := load(t, in, "foo(1). foo(1).")

	if len(res[0].Facts) != 1 {
		t.Errorf("first assertion should add one fact, got %v", res[0].Facts)
	}
	if len(res[1].Facts) != 0 {
		t.Errorf("duplicate assertion should add nothing, got %v", res[1].Facts)
	}
	if diff := cmp.Diff([]string{"foo(1)"}, table(t, in, "foo")); diff != "" {
		t.Errorf("table (-want +got):\n%s", diff)
	}
}

func TestNegationRoundTrip(t *testing.T) {
	in := interpreter.New("seed", true)
	load(t, in, "tag(Auric, Commoner). tag(Auric, Adventurer). ~tag(Auric, Commoner).")

	if !claim(t, in, "~tag(Auric, Commoner)") {
		t.Error("retracted fact should be absent")
	}
	if diff := cmp.Diff([]string{"tag(Auric, Adventurer)"}, table(t, in, "tag")); diff != "" {
		t.Errorf("table (-want +got):\n%s", diff)
	}
	// Retracting again is a no-op.
	load(t, in, "~tag(Auric, Commoner).")
}

func TestBasicInference(t *testing.T) {
	in := interpreter.New("seed", true)
	load(t, in, `
class(Auric, Barbarian).
carrying(Auric, AdventuringGear).
tag(character, Adventurer) :- class(character, ?) & carrying(character, AdventuringGear).
ergo tag(Auric, Adventurer).
`)
}

func TestNegativeHeadRetracts(t *testing.T) {
	in := interpreter.New("seed", true)
	load(t, in, `
class(Auric, Barbarian).
carrying(Auric, AdventuringGear).
tag(Auric, Commoner).
tag(character, Adventurer) :- class(character, ?) & carrying(character, AdventuringGear).
~tag(character, Commoner) :- tag(character, Adventurer).
ergo ~tag(Auric, Commoner).
ergo tag(Auric, Adventurer).
`)
}

const siblings = `
sibling(x, y) :- parent(x, p) & parent(y, p) & x != y.
parent(Bin, Paula).
parent(Jane, Paula).
`

func TestSiblingJoin(t *testing.T) {
	in := interpreter.New("seed", true)
	load(t, in, siblings)
	load(t, in, `
ergo sibling(Bin, Jane) & sibling(Jane, Bin).
ergo ~sibling(Bin, Bin) & ~sibling(Jane, Jane).
ergo sibling(sibling1, sibling2) & Count(sibling1) = 2.
`)

	res := load(t, in, "? sibling(?, ?).")
	want := []string{"sibling(Bin, Jane)", "sibling(Jane, Bin)"}
	if diff := cmp.Diff(want, render(res[0].Facts)); diff != "" {
		t.Errorf("query (-want +got):\n%s", diff)
	}

	if claim(t, interpreter.New("seed", false), "sibling(a, b) & Count(a) = 3") {
		t.Error("count claim over an empty table should be false")
	}
}

func TestSiblingJoinOnSQLite(t *testing.T) {
	st, err := sqlite.OpenMemory(context.Background())
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	in := interpreter.New("seed", true, interpreter.WithStore(st))
	defer in.Close()

	load(t, in, siblings)
	load(t, in, "ergo sibling(Bin, Jane) & sibling(Jane, Bin).")
	if diff := cmp.Diff([]string{"sibling(Bin, Jane)", "sibling(Jane, Bin)"}, table(t, in, "sibling")); diff != "" {
		t.Errorf("table (-want +got):\n%s", diff)
	}
}

func TestSelfReferentialCascadeTerminates(t *testing.T) {
	in := interpreter.New("seed", true)
	load(t, in, `
foo(x+1) :- foo(x).
foo(0).
ergo foo(1).
ergo ~foo(2).
`)
	if diff := cmp.Diff([]string{"foo(0)", "foo(1)"}, table(t, in, "foo")); diff != "" {
		t.Errorf("table (-want +got):\n%s", diff)
	}
}

func TestMutualRecursion(t *testing.T) {
	in := interpreter.New("seed", true)
	load(t, in, `
foo(x+1) :- bar(x).
bar(x+1) :- foo(x).
foo(0).
ergo bar(1).
ergo ~foo(2).
`)
	if diff := cmp.Diff([]string{"foo(0)"}, table(t, in, "foo")); diff != "" {
		t.Errorf("foo (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"bar(1)"}, table(t, in, "bar")); diff != "" {
		t.Errorf("bar (-want +got):\n%s", diff)
	}
}

func TestCascadeTransitiveClosure(t *testing.T) {
	want := []string{
		"path(A, B)", "path(A, C)", "path(A, D)", "path(A, E)",
		"path(B, C)", "path(B, D)", "path(B, E)",
		"path(C, D)", "path(C, E)",
		"path(D, E)",
	}
	rules := `
path(x, y) :- edge(x, y).
path(x, z) :- path(x, y) & edge(y, z).
`
	tests := []struct {
		name string
		src  string
	}{
		{"facts first", "edge(A, B).\nedge(B, C).\nedge(C, D).\nedge(D, E).\n" + rules},
		{"facts reversed", "edge(D, E).\nedge(C, D).\nedge(B, C).\nedge(A, B).\n" + rules},
		{"rules first", rules + "edge(A, B).\nedge(B, C).\nedge(C, D).\nedge(D, E).\n"},
		{"rules first reversed", rules + "edge(D, E).\nedge(C, D).\nedge(B, C).\nedge(A, B).\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := interpreter.New("seed", true)
			load(t, in, tt.src)
			got := table(t, in, "path")
			sort.Strings(got)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("path (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDownstreamInferenceSeesEveryHead(t *testing.T) {
	in := interpreter.New("seed", true)
	load(t, in, `
sibling(x, y) :- parent(x, p) & parent(y, p) & x != y.
has_sibling(x) :- sibling(x, ?).
parent(Bin, Paula).
parent(Jane, Paula).
`)
	if diff := cmp.Diff([]string{"has_sibling(Bin)", "has_sibling(Jane)"}, table(t, in, "has_sibling")); diff != "" {
		t.Errorf("table (-want +got):\n%s", diff)
	}
}

func TestAggregateOneTuplePerGroup(t *testing.T) {
	in := interpreter.New("seed", true)
	load(t, in, `
weight(Dagger, 1).
weight(Axe, 1).
weight(TwoHandedSword, 2).
wielding(Auric, Dagger).
load(c, sum(w)) :- wielding(c, i) & weight(i, w).
wielding(Auric, Axe).
wielding(Bree, TwoHandedSword).
`)

	want := []string{"load(Auric, 2)", "load(Bree, 2)"}
	if diff := cmp.Diff(want, table(t, in, "load")); diff != "" {
		t.Errorf("load table (-want +got):\n%s", diff)
	}
	if !claim(t, in, "load(Auric, 2)") || claim(t, in, "load(Auric, 1)") {
		t.Error("stale aggregate tuple survived")
	}
}

func TestAggregateInHeadOrderIndependent(t *testing.T) {
	in := interpreter.New("seed", true)
	load(t, in, `
load(c, sum(w)) :- wielding(c, i) & weight(i, w).
weight(Dagger, 1).
weight(Axe, 3).
wielding(Auric, Dagger).
wielding(Auric, Axe).
`)
	if diff := cmp.Diff([]string{"load(Auric, 4)"}, table(t, in, "load")); diff != "" {
		t.Errorf("load table (-want +got):\n%s", diff)
	}
}

func TestDice(t *testing.T) {
	in := interpreter.New("seed", true)
	load(t, in, `
ergo 2d6 = 8.
ergo 2d6 > 7.
ergo 1d20 = 11.
`)

	res := load(t, in, "Pr(2d6 = 7).")
	if got, ok := res[0].Value.(ast.Number); !ok || got.Value != 1.0/6 {
		t.Errorf("Pr(2d6 = 7) = %v, want 6/36", res[0].Value)
	}

	res = load(t, in, "Pr(2d6).")
	if got, ok := res[0].Value.(ast.Roll); !ok || got != (ast.Roll{Count: 2, Die: 6}) {
		t.Errorf("Pr(2d6) = %v, want the roll", res[0].Value)
	}

	res = load(t, in, "Pr(7 < 2d6).")
	if got := res[0].Value.(ast.Number).Value; got != 15.0/36 {
		t.Errorf("Pr(7 < 2d6) = %v, want 15/36", got)
	}
}

func TestExclusiveDisjunction(t *testing.T) {
	in := interpreter.New("seed", false)
	load(t, in, `
class(Auric, Barbarian).
wielding(Auric, Axe).
wielding(Auric, TwoHandedSword).
`)
	const both = "class(Auric, Barbarian) & (wielding(Auric, Axe) ^ wielding(Auric, TwoHandedSword))"
	if claim(t, in, both) {
		t.Error("exclusive disjunction with both alternatives true should be false")
	}

	load(t, in, "~wielding(Auric, TwoHandedSword).")
	if !claim(t, in, both) {
		t.Error("exclusive disjunction with one alternative true should hold")
	}
}

func TestStrictAndNonStrictClaims(t *testing.T) {
	strict := interpreter.New("seed", true)
	err := execErr(t, strict, "ergo 2+2 = 5.")
	if !errors.Is(err, internalerr.ErrUnverifiedClaim) {
		t.Fatalf("expected ErrUnverifiedClaim, got %v", err)
	}

	lenient := interpreter.New("seed", false)
	res := load(t, lenient, "ergo 2+2 = 5. ergo ((1+2)*4)=12. ergo 1+2 < 10.")
	if res[0].Verdict || !res[1].Verdict || !res[2].Verdict {
		t.Errorf("unexpected verdicts %v %v %v", res[0].Verdict, res[1].Verdict, res[2].Verdict)
	}
}

func TestRollIsReproducible(t *testing.T) {
	const src = "damage(Axe, 1d8). damage(Dagger, 1d4+1). roll damage(?, ?)."
	a := interpreter.New("campaign", true)
	b := interpreter.New("campaign", true)

	ra := load(t, a, src)[2].Facts
	rb := load(t, b, src)[2].Facts
	if diff := cmp.Diff(render(ra), render(rb)); diff != "" {
		t.Fatalf("same seed rolled differently (-a +b):\n%s", diff)
	}
	if len(ra) != 2 {
		t.Fatalf("expected 2 sampled facts, got %v", ra)
	}

	axe := ra[0].Fields[1].(ast.Number).Value
	if axe < 1 || axe > 8 {
		t.Errorf("1d8 sample %v out of range", axe)
	}
	dagger := ra[1].Fields[1].(ast.Number).Value
	if dagger < 2 || dagger > 5 {
		t.Errorf("1d4+1 sample %v out of range", dagger)
	}

	rows := table(t, a, "damage")
	if len(rows) != 4 {
		t.Errorf("sampled facts should be asserted alongside the rolls, got %v", rows)
	}
}

func TestAssertFoldsArithmetic(t *testing.T) {
	in := interpreter.New("seed", true)
	res := load(t, in, "score(Auric, 2 * 3 + 1).\nratio(Up, 1 / 0).")
	if diff := cmp.Diff([]string{"score(Auric, 7)"}, render(res[0].Facts)); diff != "" {
		t.Errorf("asserted facts (-want +got):\n%s", diff)
	}
	if !claim(t, in, "ratio(Up, x) & x > 1000000") {
		t.Error("1 / 0 should store positive infinity")
	}
	load(t, in, "~score(Auric, 14 / 2).")
	if got := table(t, in, "score"); len(got) != 0 {
		t.Errorf("folded retraction should remove the fact, got %v", got)
	}
}

func TestSaturateTransitiveClosure(t *testing.T) {
	in := interpreter.New("seed", true, interpreter.WithPropagation(interpreter.Saturate))
	load(t, in, `
edge(A, B).
edge(B, C).
edge(C, D).
path(x, y) :- edge(x, y).
path(x, z) :- path(x, y) & edge(y, z).
ergo path(A, D).
`)
	if got := table(t, in, "path"); len(got) != 6 {
		t.Errorf("expected 6 paths, got %v", got)
	}

	load(t, in, "edge(D, E).")
	if !claim(t, in, "path(A, E)") {
		t.Error("new edge should extend the closure")
	}
}

func TestSaturateIterationLimit(t *testing.T) {
	in := interpreter.New("seed", true,
		interpreter.WithPropagation(interpreter.Saturate),
		interpreter.WithMaxPasses(5))
	load(t, in, "foo(x+1) :- foo(x).")

	err := execErr(t, in, "foo(0).")
	if !errors.Is(err, internalerr.ErrIterationLimit) {
		t.Fatalf("expected ErrIterationLimit, got %v", err)
	}
	// Facts derived before the limit stay.
	if got := table(t, in, "foo"); len(got) < 5 {
		t.Errorf("expected partial derivation to remain, got %v", got)
	}
}

func TestNegatedPatternInBody(t *testing.T) {
	in := interpreter.New("seed", true)
	load(t, in, `
class(Auric, Barbarian).
class(Bree, Bard).
tag(Bree, Commoner).
adventurer(c) :- ~tag(c, Commoner) & class(c, ?).
`)
	if diff := cmp.Diff([]string{"adventurer(Auric)"}, table(t, in, "adventurer")); diff != "" {
		t.Errorf("table (-want +got):\n%s", diff)
	}
}

func TestCompoundPatternField(t *testing.T) {
	in := interpreter.New("seed", true)
	res := load(t, in, "foo(0). foo(1). foo(5). ? foo(x) & foo(x + 1).")
	if diff := cmp.Diff([]string{"foo(0)", "foo(1)"}, render(res[3].Facts)); diff != "" {
		t.Errorf("query (-want +got):\n%s", diff)
	}
}

func TestPatternMatchesTuplePrefix(t *testing.T) {
	in := interpreter.New("seed", false)
	load(t, in, "carrying(Auric, DungeonRations, 5).")
	if !claim(t, in, "carrying(Auric, DungeonRations)") {
		t.Error("a shorter pattern should match the tuple's prefix")
	}
	if claim(t, in, "carrying(Auric, DungeonRations, 5, 6)") {
		t.Error("a longer pattern should not match")
	}
}

func TestFunctions(t *testing.T) {
	in := interpreter.New("seed", true)
	cases := map[string]float64{
		"floor(7 / 2).": 3,
		"ceil(7 / 2).":  4,
		"2 ^ 10.":       1024,
		"-3 + 1.":       -2,
	}
	for src, want := range cases {
		res := load(t, in, src)
		if got := res[0].Value.(ast.Number).Value; got != want {
			t.Errorf("%s = %v, want %v", src, got, want)
		}
	}
}

func TestErrorKinds(t *testing.T) {
	cases := []struct {
		src  string
		want error
	}{
		{"foo(x).", internalerr.ErrGrounding},
		{"~foo(x).", internalerr.ErrGrounding},
		{"foo(x + 1).", internalerr.ErrGrounding},
		{"foo(Auric + 1).", internalerr.ErrType},
		{"ergo Auric + 1 = 2.", internalerr.ErrType},
		{"ergo Auric < 1.", internalerr.ErrType},
		{"ergo true > false.", internalerr.ErrType},
		{"ergo x = 1.", internalerr.ErrUnboundVariable},
		{"ergo (a(x) | b(x)).", internalerr.ErrUsage},
		{"ergo ~((1+1 = 3) | (2+2 = 5)).", internalerr.ErrUsage},
		{"ergo a(x) & ~(b(x) & c(x)).", internalerr.ErrUsage},
		{`load("other.ent").`, internalerr.ErrUsage},
	}
	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			in := interpreter.New("seed", false)
			load(t, in, "a(1).")
			if err := execErr(t, in, tc.src); !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestVerify(t *testing.T) {
	in := interpreter.New("seed", true)
	load(t, in, "tag(Auric, Adventurer). ergo tag(Auric, Adventurer). ergo 1 < 2.")

	res := load(t, in, "verify.")
	if !res[0].Verdict {
		t.Fatalf("all claims should still hold, failed: %v", res[0].Failed)
	}

	load(t, in, "~tag(Auric, Adventurer).")
	res = load(t, in, "verify.")
	if res[0].Verdict || len(res[0].Failed) != 1 {
		t.Errorf("expected one failed claim, got %v", res[0].Failed)
	}
	if got := len(in.Claims()); got != 2 {
		t.Errorf("expected 2 recorded claims, got %d", got)
	}
}

func TestInferenceRegisteredOnce(t *testing.T) {
	in := interpreter.New("seed", true)
	load(t, in, siblings+"sibling(x, y) :- parent(x, p) & parent(y, p) & x != y.")
	if got := len(in.Inferences()); got != 1 {
		t.Errorf("expected 1 inference, got %d", got)
	}
	names, err := in.TableNames(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"parent", "sibling"}, names); diff != "" {
		t.Errorf("tables (-want +got):\n%s", diff)
	}
}

func TestCancelledContextStopsPropagation(t *testing.T) {
	in := interpreter.New("seed", true)
	load(t, in, "foo(x+1) :- foo(x).")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := in.Assert(ctx, ast.Fact{Table: "foo", Fields: []ast.Expression{ast.Number{Value: 0}}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
