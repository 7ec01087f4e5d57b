package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/cognicore/entmoot/internal/console"
	"github.com/cognicore/entmoot/pkg/entmoot"
	"github.com/cognicore/entmoot/pkg/entmoot/ast"
	"github.com/cognicore/entmoot/pkg/entmoot/interpreter"
	"github.com/cognicore/entmoot/pkg/entmoot/loader"
	"github.com/cognicore/entmoot/pkg/entmoot/parser"
)

const (
	prompt       = "entmoot> "
	continuation = "     ... "
)

var replCmd = &cobra.Command{
	Use:   "repl [PATH...]",
	Short: "Interactive Entish shell",
	Long: `Start a shell on a fresh session, optionally preloaded with PATHs.
Statements may span lines; input runs once it ends with a period.
:query CLAUSE lists matching facts, :dump prints the database, :quit exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		out := cmd.OutOrStdout()
		p := console.New(out, true)
		s, err := openSession(ctx, p)
		if err != nil {
			return err
		}
		defer s.Close()
		for _, path := range args {
			if err := s.LoadPath(ctx, path); err != nil {
				p.Error(err)
			}
		}

		rl, err := readline.New(prompt)
		if err != nil {
			return err
		}
		defer rl.Close()
		fmt.Fprintf(out, "entmoot session %s (seed %q). :quit to exit.\n", s.ID, s.Config.Seed)
		return repl(ctx, s, rl, p, out)
	},
}

// lineReader is the part of *readline.Instance the shell needs.
type lineReader interface {
	Readline() (string, error)
	SetPrompt(string)
}

func repl(ctx context.Context, s *entmoot.Session, rl lineReader, p *console.Printer, out io.Writer) error {
	var pending strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			pending.Reset()
			rl.SetPrompt(prompt)
			continue
		}
		if err != nil { // io.EOF
			return nil
		}

		trimmed := strings.TrimSpace(line)
		if pending.Len() == 0 {
			switch trimmed {
			case "":
				continue
			case ":quit", ":q":
				return nil
			case ":dump":
				if err := s.Export(ctx, out, true); err != nil {
					p.Error(err)
				}
				continue
			}
			if clause, ok := strings.CutPrefix(trimmed, ":query "); ok {
				query(ctx, s, p, clause)
				continue
			}
		}

		pending.WriteString(line)
		pending.WriteByte('\n')
		if !parser.Complete(pending.String()) {
			rl.SetPrompt(continuation)
			continue
		}

		if err := s.LoadSource(ctx, "", pending.String()); err != nil {
			p.Error(err)
		}
		pending.Reset()
		rl.SetPrompt(prompt)
	}
}

// query runs a bare clause, with or without a trailing period, as a query.
func query(ctx context.Context, s *entmoot.Session, p *console.Printer, src string) {
	clause, err := parser.ParseClause(strings.TrimSuffix(strings.TrimSpace(src), "."))
	if err != nil {
		p.Error(err)
		return
	}
	facts, err := s.Interpreter().Query(ctx, clause)
	if err != nil {
		p.Error(err)
		return
	}
	p.Result(loader.Result{Result: interpreter.Result{Statement: ast.Query{Clause: clause}, Facts: facts}})
}
