// Package loader executes Entish sources: .ent files, the entish code blocks
// of markdown documents, and directories of either. load("path") statements
// are resolved relative to the file that contains them.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/cognicore/entmoot/pkg/entmoot/ast"
	"github.com/cognicore/entmoot/pkg/entmoot/internalerr"
	"github.com/cognicore/entmoot/pkg/entmoot/interpreter"
	"github.com/cognicore/entmoot/pkg/entmoot/parser"
)

// Executor runs one statement. *interpreter.Interpreter implements it.
type Executor interface {
	Exec(ctx context.Context, stmt ast.Statement) (interpreter.Result, error)
}

// Result is an executed statement and where it came from.
type Result struct {
	interpreter.Result
	Pos lexer.Position
}

// Error is a failure at a source position.
type Error struct {
	Pos lexer.Position
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Pos, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Loader feeds sources to an Executor. Each file is executed at most once.
type Loader struct {
	exec     Executor
	log      *zap.Logger
	markdown goldmark.Markdown
	onResult func(Result)
	loaded   map[string]bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(ld *Loader) {
		if l != nil {
			ld.log = l
		}
	}
}

// WithResultHandler receives every executed statement's result, including
// a claim that failed in strict mode.
func WithResultHandler(fn func(Result)) Option {
	return func(ld *Loader) { ld.onResult = fn }
}

// New creates a loader executing against exec.
func New(exec Executor, opts ...Option) *Loader {
	ld := &Loader{
		exec:     exec,
		log:      zap.NewNop(),
		markdown: goldmark.New(),
		loaded:   map[string]bool{},
	}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

// Loaded lists the files executed so far, sorted.
func (ld *Loader) Loaded() []string {
	out := make([]string, 0, len(ld.loaded))
	for path := range ld.loaded {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// LoadPath executes a file or, recursively, a directory. Directory entries
// are visited in name order and only .ent and markdown files are read.
func (ld *Loader) LoadPath(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", internalerr.ErrNotFound, path)
		}
		return err
	}
	if info.IsDir() {
		return ld.loadDir(ctx, path)
	}
	if !supported(path) {
		return fmt.Errorf("%w: %s is neither an .ent nor a markdown file", internalerr.ErrUsage, path)
	}
	return ld.loadFile(ctx, path)
}

func supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ent", ".md", ".markdown":
		return true
	default:
		return false
	}
}

func (ld *Loader) loadDir(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if !e.IsDir() && !supported(path) {
			continue
		}
		if err := ld.LoadPath(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

func (ld *Loader) loadFile(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if ld.loaded[abs] {
		ld.log.Debug("already loaded", zap.String("path", abs))
		return nil
	}
	ld.loaded[abs] = true

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	ld.log.Debug("loading", zap.String("path", path))

	if strings.EqualFold(filepath.Ext(path), ".ent") {
		return ld.LoadSource(ctx, path, string(data))
	}
	return ld.LoadMarkdown(ctx, path, data)
}

// LoadSource parses and executes Entish text. name labels positions and
// anchors relative load paths; an empty name resolves them against the
// working directory.
func (ld *Loader) LoadSource(ctx context.Context, name, src string) error {
	return ld.run(ctx, name, src, 0)
}

// LoadMarkdown executes every ```entish code block of a markdown document,
// in document order.
func (ld *Loader) LoadMarkdown(ctx context.Context, name string, src []byte) error {
	blocks, err := ld.codeBlocks(src)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	// Positions are reported against the markdown file, so find where each
	// block's text starts.
	text := string(src)
	from := 0
	for _, block := range blocks {
		offset := 0
		if i := strings.Index(text[from:], block); i >= 0 {
			offset = strings.Count(text[:from+i], "\n")
			from += i + len(block)
		}
		if err := ld.run(ctx, name, block, offset); err != nil {
			return err
		}
	}
	return nil
}

// codeBlocks renders markdown to HTML and returns the text of each
// <code class="language-entish"> element.
func (ld *Loader) codeBlocks(src []byte) ([]string, error) {
	var buf bytes.Buffer
	if err := ld.markdown.Convert(src, &buf); err != nil {
		return nil, err
	}
	doc, err := html.Parse(&buf)
	if err != nil {
		return nil, err
	}

	var blocks []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "code" && hasClass(n, "language-entish") {
			blocks = append(blocks, textOf(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return blocks, nil
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func textOf(n *html.Node) string {
	var buf strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return buf.String()
}

// run parses src in full, then executes it statement by statement. Reported
// lines are shifted by lineOffset.
func (ld *Loader) run(ctx context.Context, name, src string, lineOffset int) error {
	located, err := parser.Parse(name, src)
	if err != nil {
		var syn *parser.Error
		if errors.As(err, &syn) {
			pos := syn.Pos
			pos.Line += lineOffset
			return &Error{Pos: pos, Err: fmt.Errorf("syntax error: %s", syn.Msg)}
		}
		return err
	}

	for _, l := range located {
		pos := l.Pos
		pos.Line += lineOffset

		if load, ok := l.Statement.(ast.Load); ok {
			if err := ld.LoadPath(ctx, ld.resolve(name, load.Path)); err != nil {
				return wrap(pos, err)
			}
			continue
		}

		res, err := ld.exec.Exec(ctx, l.Statement)
		if ld.onResult != nil && (err == nil || errors.Is(err, internalerr.ErrUnverifiedClaim)) {
			ld.onResult(Result{Result: res, Pos: pos})
		}
		if err != nil {
			return wrap(pos, err)
		}
	}
	return nil
}

// wrap attaches pos unless err already carries a position from a nested
// load.
func wrap(pos lexer.Position, err error) error {
	var positioned *Error
	if errors.As(err, &positioned) {
		return err
	}
	return &Error{Pos: pos, Err: err}
}

func (ld *Loader) resolve(from, path string) string {
	if filepath.IsAbs(path) || from == "" {
		return path
	}
	return filepath.Join(filepath.Dir(from), path)
}
