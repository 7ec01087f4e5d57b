// Package entmoot is the entry point for embedding the engine: a Session
// bundles a configured store, interpreter and loader.
package entmoot

import (
	"context"
	"fmt"
	"io"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/cognicore/entmoot/pkg/entmoot/config"
	"github.com/cognicore/entmoot/pkg/entmoot/export"
	"github.com/cognicore/entmoot/pkg/entmoot/interpreter"
	"github.com/cognicore/entmoot/pkg/entmoot/loader"
	"github.com/cognicore/entmoot/pkg/entmoot/store"
	"github.com/cognicore/entmoot/pkg/entmoot/store/memstore"
	"github.com/cognicore/entmoot/pkg/entmoot/store/sqlite"
)

// Session is one database with the loader that feeds it.
type Session struct {
	ID     ulid.ULID
	Config config.Config

	in     *interpreter.Interpreter
	loader *loader.Loader
	log    *zap.Logger
}

// Options configures a Session
type Options struct {
	Logger *zap.Logger
	// OnResult receives every statement the loader executes.
	OnResult func(loader.Result)
}

// Open validates cfg and builds a session on the configured store. An empty
// seed is replaced by the session ID, so every session rolls differently
// unless a seed is given.
func Open(ctx context.Context, cfg config.Config, opts Options) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	id := ulid.Make()
	if cfg.Seed == "" {
		cfg.Seed = id.String()
	}
	log = log.With(zap.Stringer("session", id))

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	propagation, err := interpreter.ParsePropagation(cfg.Propagation)
	if err != nil {
		st.Close()
		return nil, err
	}

	in := interpreter.New(cfg.Seed, cfg.Strict,
		interpreter.WithStore(st),
		interpreter.WithLogger(log),
		interpreter.WithPropagation(propagation),
		interpreter.WithMaxPasses(cfg.MaxPasses),
	)
	ldOpts := []loader.Option{loader.WithLogger(log)}
	if opts.OnResult != nil {
		ldOpts = append(ldOpts, loader.WithResultHandler(opts.OnResult))
	}

	log.Debug("session opened",
		zap.String("seed", cfg.Seed),
		zap.String("store", cfg.Store),
		zap.String("propagation", string(propagation)),
		zap.Bool("strict", cfg.Strict),
	)
	return &Session{
		ID:     id,
		Config: cfg,
		in:     in,
		loader: loader.New(in, ldOpts...),
		log:    log,
	}, nil
}

func openStore(ctx context.Context, kind string) (store.Store, error) {
	switch kind {
	case config.StoreSQLite:
		return sqlite.OpenMemory(ctx)
	default:
		return memstore.New(), nil
	}
}

// Close cleanly shuts down the session
func (s *Session) Close() error {
	return s.in.Close()
}

// Interpreter exposes the underlying engine.
func (s *Session) Interpreter() *interpreter.Interpreter { return s.in }

// LoadPath executes a file or directory.
func (s *Session) LoadPath(ctx context.Context, path string) error {
	return s.loader.LoadPath(ctx, path)
}

// LoadSource executes Entish text. load paths resolve against the working
// directory when name is empty.
func (s *Session) LoadSource(ctx context.Context, name, src string) error {
	return s.loader.LoadSource(ctx, name, src)
}

// Loaded lists the files executed so far.
func (s *Session) Loaded() []string { return s.loader.Loaded() }

// Export writes the database as Entish source to w.
func (s *Session) Export(ctx context.Context, w io.Writer, claims bool) error {
	exp := export.Exporter{Writer: export.StreamWriter{W: w}, Claims: claims}
	return exp.Export(ctx, s.in)
}
