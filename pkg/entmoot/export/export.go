// Package export renders a database back to Entish source.
package export

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/cognicore/entmoot/pkg/entmoot/ast"
)

// Source is the read side of a database. *interpreter.Interpreter
// implements it.
type Source interface {
	TableNames(ctx context.Context) ([]string, error)
	Table(ctx context.Context, name string) ([]ast.Fact, error)
	Inferences() []ast.Inference
	Claims() []ast.Claim
}

// Writer persists rendered source (file, stream, etc.).
type Writer interface {
	WriteSource(ctx context.Context, content string) error
}

// Exporter renders every table as facts, then every inference as a rule.
// Loading the output into a fresh session reproduces the tables. Numbers
// with no literal form are written as divisions that evaluate to them.
type Exporter struct {
	Writer Writer
	// Claims appends the recorded claims as ergo statements.
	Claims bool
}

// Export renders src and hands it to the Writer.
func (e *Exporter) Export(ctx context.Context, src Source) error {
	if e.Writer == nil {
		return fmt.Errorf("export: nil writer")
	}
	content, err := e.Render(ctx, src)
	if err != nil {
		return err
	}
	return e.Writer.WriteSource(ctx, content)
}

// Render returns the Entish text for src.
func (e *Exporter) Render(ctx context.Context, src Source) (string, error) {
	names, err := src.TableNames(ctx)
	if err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	var b strings.Builder
	for _, name := range names {
		facts, err := src.Table(ctx, name)
		if err != nil {
			return "", fmt.Errorf("export %s: %w", name, err)
		}
		if len(facts) == 0 {
			continue
		}
		fmt.Fprintf(&b, "// %s: %d facts\n", name, len(facts))
		for _, f := range facts {
			b.WriteString(ast.Assertion{Fact: literal(f)}.String())
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}

	if infs := src.Inferences(); len(infs) > 0 {
		b.WriteString("// inferences\n")
		for _, inf := range infs {
			b.WriteString(inf.String())
			b.WriteByte('\n')
		}
	}

	if claims := src.Claims(); e.Claims && len(claims) > 0 {
		b.WriteString("\n// claims\n")
		for _, c := range claims {
			b.WriteString(c.String())
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

// literal rewrites NaN and the infinities, which render as identifiers,
// into arithmetic that reloads as the same number.
func literal(f ast.Fact) ast.Fact {
	fields := make([]ast.Expression, len(f.Fields))
	for i, e := range f.Fields {
		fields[i] = e
		n, ok := e.(ast.Number)
		if !ok {
			continue
		}
		switch {
		case math.IsNaN(n.Value):
			fields[i] = divide(0, 0)
		case math.IsInf(n.Value, 1):
			fields[i] = divide(1, 0)
		case math.IsInf(n.Value, -1):
			fields[i] = divide(-1, 0)
		}
	}
	return ast.Fact{Table: f.Table, Fields: fields, Negative: f.Negative}
}

func divide(num, den float64) ast.Expression {
	return ast.BinaryOp{Op: ast.Div, Left: ast.Number{Value: num}, Right: ast.Number{Value: den}}
}

// StreamWriter writes to an io.Writer such as stdout.
type StreamWriter struct {
	W io.Writer
}

func (s StreamWriter) WriteSource(_ context.Context, content string) error {
	_, err := io.WriteString(s.W, content)
	return err
}

// FileWriter replaces the file at Path.
type FileWriter struct {
	Path string
}

func (f FileWriter) WriteSource(_ context.Context, content string) error {
	return os.WriteFile(f.Path, []byte(content), 0o644)
}
