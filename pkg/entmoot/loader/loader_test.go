package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cognicore/entmoot/pkg/entmoot/internalerr"
	"github.com/cognicore/entmoot/pkg/entmoot/interpreter"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func holds(t *testing.T, in *interpreter.Interpreter, table string, want int) {
	t.Helper()
	facts, err := in.Table(context.Background(), table)
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	if len(facts) != want {
		t.Errorf("expected %d %s facts, got %v", want, table, facts)
	}
}

func TestLoadRelativeIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "main.ent"), `
load("rules/siblings.ent").
parent(Bin, Paula).
parent(Jane, Paula).
ergo sibling(Bin, Jane).
`)
	writeFile(t, filepath.Join(dir, "rules", "siblings.ent"),
		"sibling(x, y) :- parent(x, p) & parent(y, p) & x != y.\n")

	in := interpreter.New("seed", true)
	if err := New(in).LoadPath(context.Background(), filepath.Join(dir, "main.ent")); err != nil {
		t.Fatalf("LoadPath: %v", err)
	}
	holds(t, in, "sibling", 2)
}

func TestLoadMarkdownBlocks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.md")
	writeFile(t, path, "# Load\n\nCharacters carry things.\n\n"+
		"```entish\nweight(Axe, 1).\nweight(Rope, 2).\nwielding(Auric, Axe).\nwielding(Auric, Rope).\n```\n\n"+
		"```go\nthis is not entish\n```\n\n"+
		"```entish\nload(c, sum(w)) :- wielding(c, i) & weight(i, w).\nergo load(Auric, 3) & 3 > 1.\n```\n")

	in := interpreter.New("seed", true)
	var results []Result
	ld := New(in, WithResultHandler(func(r Result) { results = append(results, r) }))
	if err := ld.LoadPath(context.Background(), path); err != nil {
		t.Fatalf("LoadPath: %v", err)
	}
	holds(t, in, "load", 1)
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}
	if last := results[len(results)-1]; !last.Verdict || last.Pos.Line != 18 {
		t.Errorf("claim result %+v should be true at line 18", last)
	}
}

func TestLoadDirectoryInNameOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "01-facts.ent"), "foo(1).\n")
	writeFile(t, filepath.Join(dir, "02-claims.ent"), "ergo foo(1).\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "not entish at all")
	writeFile(t, filepath.Join(dir, "sub", "03.md"), "```entish\nbar(1).\n```\n")

	in := interpreter.New("seed", true)
	ld := New(in)
	if err := ld.LoadPath(context.Background(), dir); err != nil {
		t.Fatalf("LoadPath: %v", err)
	}
	holds(t, in, "bar", 1)
	if got := len(ld.Loaded()); got != 3 {
		t.Errorf("expected 3 loaded files, got %v", ld.Loaded())
	}
}

func TestFilesLoadOnce(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.ent"), `load("b.ent"). load("b.ent"). load("a.ent").`)
	writeFile(t, filepath.Join(dir, "b.ent"), "counter(1).\n")

	in := interpreter.New("seed", true)
	count := 0
	ld := New(in, WithResultHandler(func(Result) { count++ }))
	if err := ld.LoadPath(context.Background(), filepath.Join(dir, "a.ent")); err != nil {
		t.Fatalf("LoadPath: %v", err)
	}
	if count != 1 {
		t.Errorf("b.ent should execute once, saw %d results", count)
	}
}

func TestStrictClaimReportsPosition(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "claims.ent")
	writeFile(t, path, "ergo 1 < 2.\nergo 2+2 = 5.\nfoo(1).\n")

	in := interpreter.New("seed", true)
	var verdicts []bool
	ld := New(in, WithResultHandler(func(r Result) { verdicts = append(verdicts, r.Verdict) }))
	err := ld.LoadPath(context.Background(), path)
	if !errors.Is(err, internalerr.ErrUnverifiedClaim) {
		t.Fatalf("expected ErrUnverifiedClaim, got %v", err)
	}
	var lerr *Error
	if !errors.As(err, &lerr) || lerr.Pos.Line != 2 {
		t.Errorf("expected the error on line 2, got %v", err)
	}
	if len(verdicts) != 2 || verdicts[1] {
		t.Errorf("the failed claim should still be reported, got %v", verdicts)
	}
	holds(t, in, "foo", 0)
}

func TestMarkdownSyntaxErrorLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.md")
	writeFile(t, path, "# Rules\n\n```entish\nfoo(1).\nbar(.\n```\n")

	err := New(interpreter.New("seed", true)).LoadPath(context.Background(), path)
	var lerr *Error
	if !errors.As(err, &lerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if lerr.Pos.Line != 5 || lerr.Pos.Filename != path {
		t.Errorf("expected %s:5, got %s", path, lerr.Pos)
	}
}

func TestLoadPathErrors(t *testing.T) {
	dir := t.TempDir()
	ld := New(interpreter.New("seed", true))

	if err := ld.LoadPath(context.Background(), filepath.Join(dir, "missing.ent")); !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	txt := filepath.Join(dir, "rules.txt")
	writeFile(t, txt, "foo(1).")
	if err := ld.LoadPath(context.Background(), txt); !errors.Is(err, internalerr.ErrUsage) {
		t.Errorf("expected ErrUsage, got %v", err)
	}
}

func TestLoadSourceWithoutFile(t *testing.T) {
	in := interpreter.New("seed", false)
	var results []Result
	ld := New(in, WithResultHandler(func(r Result) { results = append(results, r) }))
	if err := ld.LoadSource(context.Background(), "", "foo(1). ergo foo(2)."); err != nil {
		t.Fatalf("LoadSource: %v", err)
	}
	if len(results) != 2 || results[1].Verdict {
		t.Errorf("unexpected results %+v", results)
	}
}
