// Package storetest holds the behaviour every store.Store must share, run
// against each backend from its own tests.
package storetest

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cognicore/entmoot/pkg/entmoot/ast"
	"github.com/cognicore/entmoot/pkg/entmoot/store"
)

// Run exercises a backend. open must return an empty store.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Run("InsertIsIdempotent", func(t *testing.T) { testInsertIsIdempotent(t, open(t)) })
	t.Run("RetractRoundTrip", func(t *testing.T) { testRetractRoundTrip(t, open(t)) })
	t.Run("ScanKeepsInsertionOrder", func(t *testing.T) { testScanOrder(t, open(t)) })
	t.Run("KindsAreDistinct", func(t *testing.T) { testKindsAreDistinct(t, open(t)) })
	t.Run("TablesInFirstTouchOrder", func(t *testing.T) { testTables(t, open(t)) })
	t.Run("NonFiniteNumbers", func(t *testing.T) { testNonFinite(t, open(t)) })
	t.Run("SeparatorInString", func(t *testing.T) { testSeparatorInString(t, open(t)) })
	t.Run("RetractUnknownTable", func(t *testing.T) { testRetractUnknownTable(t, open(t)) })
}

func tuple(cs ...ast.Constant) ast.Tuple { return ast.Tuple(cs) }

func s(v string) ast.Constant  { return ast.String{Value: v} }
func n(v float64) ast.Constant { return ast.Number{Value: v} }

func testInsertIsIdempotent(t *testing.T, st store.Store) {
	ctx := context.Background()
	defer st.Close()

	row := tuple(s("Auric"), s("Barbarian"))
	added, err := st.Insert(ctx, "class", row)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if !added {
		t.Fatal("first insert should add the tuple")
	}

	added, err = st.Insert(ctx, "class", tuple(s("Auric"), s("Barbarian")))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if added {
		t.Error("duplicate insert should be a no-op")
	}

	rows, err := st.Scan(ctx, "class")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
}

func testRetractRoundTrip(t *testing.T, st store.Store) {
	ctx := context.Background()
	defer st.Close()

	row := tuple(s("Auric"), s("Commoner"))
	if _, err := st.Insert(ctx, "tag", row); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := st.Insert(ctx, "tag", tuple(s("Auric"), s("Adventurer"))); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	removed, err := st.Retract(ctx, "tag", row)
	if err != nil {
		t.Fatalf("Retract: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removal, got %d", removed)
	}

	removed, err = st.Retract(ctx, "tag", row)
	if err != nil {
		t.Fatalf("Retract absent: %v", err)
	}
	if removed != 0 {
		t.Errorf("retracting an absent tuple should remove nothing, removed %d", removed)
	}

	rows, err := st.Scan(ctx, "tag")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	want := []ast.Tuple{tuple(s("Auric"), s("Adventurer"))}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows after retract (-want +got):\n%s", diff)
	}

	// Re-inserting a retracted tuple works again.
	added, err := st.Insert(ctx, "tag", row)
	if err != nil || !added {
		t.Errorf("re-insert after retract: added=%v err=%v", added, err)
	}
}

func testScanOrder(t *testing.T, st store.Store) {
	ctx := context.Background()
	defer st.Close()

	want := []ast.Tuple{
		tuple(s("Auric"), s("Strength"), n(16)),
		tuple(s("Auric"), s("Dexterity"), n(14)),
		tuple(s("Auric"), s("Wisdom"), n(8)),
		tuple(s("Auric"), ast.Roll{Count: 1, Die: 8, Modifier: 1}),
		tuple(ast.Boolean{Value: true}),
	}
	for _, row := range want {
		if _, err := st.Insert(ctx, "attribute", row); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	rows, err := st.Scan(ctx, "attribute")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("scan order (-want +got):\n%s", diff)
	}

	empty, err := st.Scan(ctx, "missing")
	if err != nil {
		t.Fatalf("Scan missing: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("unknown table should be empty, got %v", empty)
	}
}

func testKindsAreDistinct(t *testing.T, st store.Store) {
	ctx := context.Background()
	defer st.Close()

	for _, row := range []ast.Tuple{tuple(n(1)), tuple(s("1")), tuple(ast.Boolean{Value: true}), tuple(s("true"))} {
		added, err := st.Insert(ctx, "value", row)
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if !added {
			t.Errorf("%v should not collide with another kind", row)
		}
	}
}

func testTables(t *testing.T, st store.Store) {
	ctx := context.Background()
	defer st.Close()

	for _, name := range []string{"parent", "class", "parent", "wielding"} {
		if _, err := st.Insert(ctx, name, tuple(s("Auric"))); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	got, err := st.Tables(ctx)
	if err != nil {
		t.Fatalf("Tables: %v", err)
	}
	if diff := cmp.Diff([]string{"parent", "class", "wielding"}, got); diff != "" {
		t.Errorf("tables (-want +got):\n%s", diff)
	}
}

func testNonFinite(t *testing.T, st store.Store) {
	ctx := context.Background()
	defer st.Close()

	want := []float64{math.Inf(1), math.Inf(-1), math.NaN()}
	for _, v := range want {
		added, err := st.Insert(ctx, "ratio", tuple(s("Auric"), n(v)))
		if err != nil {
			t.Fatalf("Insert %v: %v", v, err)
		}
		if !added {
			t.Errorf("%v should be a new tuple", v)
		}
	}
	if added, err := st.Insert(ctx, "ratio", tuple(s("Auric"), n(math.NaN()))); err != nil || added {
		t.Errorf("NaN should deduplicate: added=%v err=%v", added, err)
	}

	rows, err := st.Scan(ctx, "ratio")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %v", len(want), rows)
	}
	for i, row := range rows {
		got, ok := row[1].(ast.Number)
		if !ok {
			t.Fatalf("row %d: expected a number, got %T", i, row[1])
		}
		if math.IsNaN(want[i]) {
			if !math.IsNaN(got.Value) {
				t.Errorf("row %d: expected NaN, got %v", i, got.Value)
			}
			continue
		}
		if got.Value != want[i] {
			t.Errorf("row %d: expected %v, got %v", i, want[i], got.Value)
		}
	}

	removed, err := st.Retract(ctx, "ratio", tuple(s("Auric"), n(math.Inf(1))))
	if err != nil || removed != 1 {
		t.Errorf("retract +Inf: removed=%d err=%v", removed, err)
	}
}

func testSeparatorInString(t *testing.T, st store.Store) {
	ctx := context.Background()
	defer st.Close()

	for _, row := range []ast.Tuple{
		tuple(s("a"), s("b")),
		tuple(s("a\x1fs:b")),
		tuple(s("a\x1fs1:b")),
	} {
		added, err := st.Insert(ctx, "name", row)
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if !added {
			t.Errorf("%q collided with another tuple", row.Key())
		}
	}
	rows, err := st.Scan(ctx, "name")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("expected 3 rows, got %d", len(rows))
	}
}

func testRetractUnknownTable(t *testing.T, st store.Store) {
	ctx := context.Background()
	defer st.Close()

	removed, err := st.Retract(ctx, "ghost", tuple(s("Auric")))
	if err != nil {
		t.Fatalf("Retract: %v", err)
	}
	if removed != 0 {
		t.Errorf("expected no removals, got %d", removed)
	}
	got, err := st.Tables(ctx)
	if err != nil {
		t.Fatalf("Tables: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("retract should not register a table, got %v", got)
	}
}
