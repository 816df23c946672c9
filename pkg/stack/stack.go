package stack

import (
	gocontext "context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/entstack/entstack/pkg/model"
	"github.com/entstack/entstack/pkg/stores"
	"github.com/entstack/entstack/pkg/telemetry"
)

// Suffixes of the side files SQLite keeps next to a WAL-mode database.
const (
	shmSuffix = "-shm"
	walSuffix = "-wal"
)

// Stack owns the persistence engine handle and its default execution
// context for the process lifetime. It is constructed once, initialized
// explicitly, and torn down explicitly; teardown followed by Initialize is
// the only supported re-entry path. Between teardown and the next
// Initialize every operation reports ErrNoContext.
type Stack struct {
	logger  zerolog.Logger
	metrics *telemetry.Metrics

	mu         sync.Mutex
	engine     *stores.Engine
	defaultCtx *Context
	children   []*Context
}

// Option configures a Stack.
type Option func(*Stack)

// WithLogger sets the stack's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Stack) { s.logger = l }
}

// WithMetrics attaches an operation metrics collector.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Stack) { s.metrics = m }
}

// New creates an uninitialized stack. Call Initialize before use.
func New(opts ...Option) *Stack {
	s := &Stack{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize loads the model description from modelPath and brings the
// persistence engine online. With a non-empty dbPath the store is
// disk-persisted at that path; otherwise it is memory-only and vanishes
// at teardown. A model that fails to load or a store that fails to open
// indicates a packaging defect; the error is returned for the caller to
// treat as fatal.
func (s *Stack) Initialize(modelPath, dbPath string) error {
	m, err := model.Load(modelPath)
	if err != nil {
		return err
	}
	return s.InitializeModel(m, dbPath)
}

// InitializeModel is Initialize with an already-loaded model.
func (s *Stack) InitializeModel(m *model.Model, dbPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine != nil {
		return fmt.Errorf("stack already initialized; teardown first")
	}

	engine, err := stores.Open(stores.Config{Path: dbPath, Model: m})
	if err != nil {
		return err
	}
	if err := engine.Init(gocontext.Background()); err != nil {
		return fmt.Errorf("failed to load store: %w", err)
	}

	s.engine = engine
	s.defaultCtx = newContext(s, nil)

	s.logger.Info().
		Str("model", m.Name).
		Int("entities", len(m.Entities)).
		Bool("persisted", engine.Persisted()).
		Str("path", engine.Path()).
		Msg("stack initialized")

	return nil
}

// Teardown takes the stack fully offline: it closes every context it
// created, detaches the engine, and for a disk-persisted store deletes
// the database file together with its -shm and -wal side files. A side
// file that does not exist is not an error, and an engine close failure
// does not stop file deletion. Tearing down an uninitialized stack is a
// no-op.
func (s *Stack) Teardown() error {
	s.mu.Lock()
	path := ""
	if s.engine != nil {
		path = s.engine.Path()
	}
	initialized := s.engine != nil
	s.mu.Unlock()

	var errs []error
	if err := s.Shutdown(); err != nil {
		errs = append(errs, err)
	}

	// Best-effort cleanup: attempt every file even after a detach failure.
	if path != "" {
		for _, p := range []string{path, path + shmSuffix, path + walSuffix} {
			if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, fmt.Errorf("failed to remove %s: %w", p, err))
			}
		}
	}

	if initialized {
		s.logger.Info().Str("path", path).Msg("stack torn down")
	}

	return errors.Join(errs...)
}

// Shutdown detaches the engine and closes every context like Teardown,
// but leaves a disk-persisted store's files in place so the same store
// can be re-opened later. Shutting down an uninitialized stack is a
// no-op.
func (s *Stack) Shutdown() error {
	s.mu.Lock()
	engine := s.engine
	defaultCtx := s.defaultCtx
	children := s.children
	s.engine = nil
	s.defaultCtx = nil
	s.children = nil
	s.mu.Unlock()

	for _, c := range children {
		c.Close()
	}
	if defaultCtx != nil {
		defaultCtx.Close()
	}
	if engine == nil {
		return nil
	}
	if err := engine.Close(); err != nil {
		return fmt.Errorf("failed to detach store: %w", err)
	}
	return nil
}

// DefaultContext returns the default execution context, or nil when the
// stack is not initialized.
func (s *Stack) DefaultContext() *Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultCtx
}

// NewChildContext returns a new execution context whose parent is the
// default context. Children are owned by their creator and should be
// closed when done; any still open are closed by Teardown.
func (s *Stack) NewChildContext() (*Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.defaultCtx == nil {
		return nil, ErrNoContext
	}

	c := newContext(s, s.defaultCtx)
	s.children = append(s.children, c)
	return c, nil
}

// target resolves the optional context argument of a facade operation:
// nil selects the default context, and a missing default is the
// "no context available" failure.
func (s *Stack) target(c *Context) (*Context, error) {
	if c != nil {
		return c, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.defaultCtx == nil {
		return nil, ErrNoContext
	}
	return s.defaultCtx, nil
}

// engineHandle returns the live engine, or ErrNoContext after teardown.
func (s *Stack) engineHandle() (*stores.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return nil, ErrNoContext
	}
	return s.engine, nil
}
