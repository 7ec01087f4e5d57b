// Package console renders executed statements for the terminal.
package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/cognicore/entmoot/pkg/entmoot/ast"
	"github.com/cognicore/entmoot/pkg/entmoot/loader"
)

// Palette
var (
	ColorDerived = lipgloss.Color("#2ECC71")
	ColorFalse   = lipgloss.Color("#E74C3C")
	ColorValue   = lipgloss.Color("#F4D03F")
	ColorMuted   = lipgloss.Color("#7F8C8D")
)

// Printer writes results to a terminal. Colours are dropped when the writer
// is not a terminal.
type Printer struct {
	w io.Writer
	// All also prints asserted facts and claims that hold. Otherwise only
	// derived facts, query matches, evaluations and failures are shown.
	All bool

	derived lipgloss.Style
	failed  lipgloss.Style
	value   lipgloss.Style
	muted   lipgloss.Style
}

// New creates a printer on w.
func New(w io.Writer, all bool) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:       w,
		All:     all,
		derived: r.NewStyle().Foreground(ColorDerived),
		failed:  r.NewStyle().Foreground(ColorFalse).Bold(true),
		value:   r.NewStyle().Foreground(ColorValue),
		muted:   r.NewStyle().Foreground(ColorMuted),
	}
}

// Result prints one executed statement.
func (p *Printer) Result(res loader.Result) {
	if out := p.Render(res); out != "" {
		fmt.Fprintln(p.w, out)
	}
}

// Error prints a failure.
func (p *Printer) Error(err error) {
	fmt.Fprintln(p.w, p.failed.Render("error: "+err.Error()))
}

// Render returns the text printed for res, or "" when nothing is shown.
func (p *Printer) Render(res loader.Result) string {
	var lines []string
	switch s := res.Statement.(type) {
	case ast.Assertion:
		facts := res.Facts
		if !p.All && len(facts) > 0 && facts[0].String() == s.Fact.String() {
			facts = facts[1:]
		}
		lines = p.facts(facts, "+ ")
	case ast.Inference:
		lines = p.facts(res.Facts, "+ ")
	case ast.Rolling:
		lines = p.facts(res.Facts, "rolled ")
	case ast.Query:
		if len(res.Facts) == 0 {
			lines = append(lines, p.muted.Render("no matches for "+s.String()))
		}
		for _, f := range res.Facts {
			lines = append(lines, "  "+f.String()+".")
		}
	case ast.Claim:
		if !res.Verdict {
			lines = append(lines, p.failed.Render("✗ "+s.String())+p.where(res))
		} else if p.All {
			lines = append(lines, p.derived.Render("✓ "+s.String()))
		}
	case ast.Evaluation:
		if res.Value != nil {
			lines = append(lines, p.value.Render(s.Expr.String()+" = "+res.Value.String()))
		}
	case ast.Verify:
		for _, c := range res.Failed {
			lines = append(lines, p.failed.Render("✗ "+c.String()))
		}
		if res.Verdict && p.All {
			lines = append(lines, p.derived.Render("✓ all claims hold"))
		}
	}
	return strings.Join(lines, "\n")
}

func (p *Printer) facts(facts []ast.Fact, prefix string) []string {
	lines := make([]string, 0, len(facts))
	for _, f := range facts {
		lines = append(lines, p.derived.Render(prefix+f.String()+"."))
	}
	return lines
}

func (p *Printer) where(res loader.Result) string {
	if res.Pos.Line == 0 {
		return ""
	}
	return p.muted.Render("  (" + res.Pos.String() + ")")
}
