// Package trealla provides a Prolog interpreter.
package trealla

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"golang.org/x/exp/maps"

	"github.com/proliga/prolog/internal/engine"
	"github.com/proliga/prolog/internal/read"
)

// Prolog is a Prolog interpreter.
type Prolog interface {
	// Query executes a query.
	Query(ctx context.Context, query string, options ...QueryOption) Query
	// QueryOnce executes a query, retrieving a single answer and ignoring others.
	QueryOnce(ctx context.Context, query string, options ...QueryOption) (Answer, error)
	// Consult loads a Prolog file with the given path.
	Consult(ctx context.Context, filename string) error
	// ConsultText loads Prolog text into module. Use "user" for the global module.
	ConsultText(ctx context.Context, module string, text string) error
	// Register a native Go predicate.
	// NOTE: this is *experimental* and its API will likely change.
	Register(ctx context.Context, name string, arity int, predicate Predicate) error
	// RegisterNondet registers a Go predicate that may produce more than one solution.
	RegisterNondet(ctx context.Context, name string, arity int, predicate NondetPredicate) error
	// Clone creates a new clone of this interpreter, sharing its clause
	// database and atom table but starting with fresh query state.
	Clone() (Prolog, error)
	// Close destroys the Prolog instance.
	Close()
	// Stats returns diagnostic information.
	Stats() Stats
}

type prolog struct {
	m *engine.Machine

	ops *read.OpTable

	procs map[string]Predicate
	coros map[int64]coroutine
	coron int64

	dirs    map[string]string
	library string
	trace   bool
	quiet   bool

	stdout *log.Logger
	stderr *log.Logger
	debug  *log.Logger

	// out accumulates text written by write/1, nl/0 et al. during the
	// query currently running; query.answer() drains it into Answer.Output
	// and resets it, mirroring the teacher's per-call ReadStdout() on the
	// WASM instance's captured WASI stdout.
	out strings.Builder

	closing bool

	mu *sync.Mutex
}

// writeOutput appends s to the current query's captured output buffer.
// Called by the write/1 family of registered predicates (library.go).
func (pl *prolog) writeOutput(s string) {
	pl.out.WriteString(s)
}

func (pl *lockedProlog) writeOutput(s string) {
	pl.prolog.writeOutput(s)
}

// New creates a new Prolog interpreter.
func New(opts ...Option) (Prolog, error) {
	m, err := engine.New()
	if err != nil {
		return nil, fmt.Errorf("trealla: failed to create interpreter: %w", err)
	}
	pl := &prolog{
		m:     m,
		ops:   read.DefaultOps(),
		procs: make(map[string]Predicate),
		coros: make(map[int64]coroutine),
		mu:    new(sync.Mutex),
	}
	for _, opt := range opts {
		opt(pl)
	}
	if pl.quiet {
		m.Flags.UnknownError = false
	}
	if err := pl.loadBuiltins(); err != nil {
		return nil, fmt.Errorf("trealla: failed to load builtins: %w", err)
	}
	if err := pl.consultText(context.Background(), "user", preludeSource); err != nil {
		return nil, fmt.Errorf("trealla: failed to load prelude: %w", err)
	}
	return pl, nil
}

func (pl *prolog) Clone() (Prolog, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.clone()
}

// clone builds a sibling interpreter sharing the canonical atom table,
// clause database and built-in registry, but with its own frames, trail,
// choice stack and heap — the same relationship newSubMachine gives a
// spawned task, generalized to whole interpreters for Pool/DB replicas.
// A write through either sibling's Clauses is visible to the other
// immediately, since they share the one *engine.Clauses; callers that
// need isolated writes should not share a clone for that purpose.
func (pl *prolog) clone() (*prolog, error) {
	clone := &prolog{
		m:       pl.m.Clone(),
		ops:     pl.ops,
		procs:   maps.Clone(pl.procs),
		coros:   make(map[int64]coroutine),
		dirs:    pl.dirs,
		library: pl.library,
		trace:   pl.trace,
		quiet:   pl.quiet,
		stdout:  pl.stdout,
		stderr:  pl.stderr,
		debug:   pl.debug,
		mu:      new(sync.Mutex),
	}
	return clone, nil
}

func (pl *prolog) Close() {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.closing = true
}

func (pl *prolog) ConsultText(ctx context.Context, module, text string) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.closing {
		return io.EOF
	}
	return pl.consultText(ctx, module, text)
}

// consultText loads text into the interpreter. Modules are not a concept
// this engine models (clauses are global to the Machine, matching
// runtime.c's single global predicate table before per-module support was
// layered on); module is accepted for source compatibility and otherwise
// ignored, recorded in DESIGN.md as a deliberate narrowing.
func (pl *prolog) consultText(_ context.Context, _ string, text string) error {
	p, err := read.NewParser(text, pl.ops)
	if err != nil {
		return fmt.Errorf("trealla: consult text failed: %w", err)
	}
	for {
		b := engine.NewBuilder()
		adapter := newTermBuilderAdapter(b, pl.m.Atoms)
		nvars, more, err := p.ReadClause(adapter)
		if err != nil {
			return fmt.Errorf("trealla: consult text failed: %w", err)
		}
		if !more {
			return nil
		}
		frameIdx := pl.m.PushQueryFrame(nvars)
		pos := pl.m.Heap.Append(b.Term()...)
		ref := engine.Ref{Cells: pl.m.Heap.Cells(), Pos: pos, Ctx: frameIdx}
		if err := pl.loadTerm(ref); err != nil {
			return err
		}
	}
}

// loadTerm stores ref as a fact/rule, or runs it immediately if it is a
// ':-'/1 (or '?-'/1) directive, the same split a consult pass makes in the
// original implementation.
func (pl *prolog) loadTerm(ref engine.Ref) error {
	deref := pl.m.Deref(ref)
	c := deref.Cells[deref.Pos]
	neck := pl.m.Atoms.Intern(":-")
	query := pl.m.Atoms.Intern("?-")
	if c.Tag == engine.TagAtom && c.Arity == 1 && (c.Functor == neck || c.Functor == query) {
		kids := deref.Cells.Children(deref.Pos)
		body := engine.Ref{Cells: deref.Cells, Pos: kids[0], Ctx: deref.Ctx}
		_, err := pl.m.Solve(body)
		if err != nil {
			return fmt.Errorf("trealla: directive failed: %w", err)
		}
		return nil
	}
	return pl.m.AssertClause(ref, false)
}

func (pl *prolog) Consult(ctx context.Context, filename string) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.closing {
		return io.EOF
	}
	bs, err := os.ReadFile(pl.resolvePath(filename))
	if err != nil {
		return fmt.Errorf("trealla: failed to read %s: %w", filename, err)
	}
	return pl.consultText(ctx, "user", string(bs))
}

func (pl *prolog) resolvePath(filename string) string {
	if dir, ok := pl.dirs[""]; ok {
		return dir + "/" + filename
	}
	return filename
}

type Stats struct {
	MemorySize int
}

func (pl *prolog) Stats() Stats {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.stats()
}

func (pl *prolog) stats() Stats {
	return Stats{
		MemorySize: pl.m.Heap.Len() * int(engineCellSize),
	}
}

// lockedProlog skips the locking the normal *prolog does.
// It's only valid during a single RPC call.
type lockedProlog struct {
	prolog *prolog
	dead   bool
}

func (pl *lockedProlog) kill() {
	pl.dead = true
	pl.prolog = nil
}

func (pl *lockedProlog) ensure() error {
	if pl.dead {
		return fmt.Errorf("trealla: using invalid reference to interpreter")
	}
	return nil
}

func (pl *lockedProlog) Clone() (Prolog, error) {
	if err := pl.ensure(); err != nil {
		return nil, err
	}
	return pl.prolog.clone()
}

func (pl *lockedProlog) Query(ctx context.Context, ask string, options ...QueryOption) Query {
	if err := pl.ensure(); err != nil {
		return &query{err: err}
	}
	return pl.prolog.Query(ctx, ask, append(options, withoutLock)...)
}

func (pl *lockedProlog) QueryOnce(ctx context.Context, query string, options ...QueryOption) (Answer, error) {
	if err := pl.ensure(); err != nil {
		return Answer{}, err
	}
	return pl.prolog.queryOnce(ctx, query, options...)
}

func (pl *lockedProlog) ConsultText(ctx context.Context, module, text string) error {
	if err := pl.ensure(); err != nil {
		return err
	}
	return pl.prolog.consultText(ctx, module, text)
}

func (pl *lockedProlog) Consult(ctx context.Context, filename string) error {
	if err := pl.ensure(); err != nil {
		return err
	}
	return pl.prolog.Consult(ctx, filename)
}

func (pl *lockedProlog) Register(ctx context.Context, name string, arity int, proc Predicate) error {
	if err := pl.ensure(); err != nil {
		return err
	}
	return pl.prolog.register(ctx, name, arity, proc)
}

func (pl *lockedProlog) RegisterNondet(ctx context.Context, name string, arity int, proc NondetPredicate) error {
	if err := pl.ensure(); err != nil {
		return err
	}
	return pl.prolog.registerNondet(ctx, name, arity, proc)
}

func (pl *lockedProlog) Close() {
	if err := pl.ensure(); err != nil {
		return
	}
	pl.prolog.closing = true
}

func (pl *lockedProlog) Stats() Stats {
	if err := pl.ensure(); err != nil {
		return Stats{}
	}
	return pl.prolog.stats()
}

// Option is an optional parameter for New.
type Option func(*prolog)

// WithPreopenDir sets the preopen directory to dir. Calling this again will overwrite it.
// Consult prefixes every file name it is given with dir.
func WithPreopenDir(dir string) Option {
	return func(pl *prolog) {
		if pl.dirs == nil {
			pl.dirs = make(map[string]string)
		}
		pl.dirs[""] = dir
	}
}

// WithMapDir records alias as pointing to directory dir.
// This can be called multiple times with different aliases.
// The aliases are stored but not used to resolve file names; Consult
// uses only the WithPreopenDir directory.
func WithMapDir(alias, dir string) Option {
	return func(pl *prolog) {
		if pl.dirs == nil {
			pl.dirs = make(map[string]string)
		}
		pl.dirs[alias] = dir
	}
}

// WithLibraryPath sets the global library path for the interpreter.
// The path is stored and copied to clones; no loading path reads it.
func WithLibraryPath(path string) Option {
	return func(pl *prolog) {
		pl.library = path
	}
}

// WithTrace sets the trace flag for all queries. The flag is stored and
// copied to clones; the engine produces no trace output.
func WithTrace() Option {
	return func(pl *prolog) {
		pl.trace = true
	}
}

// WithQuiet enables the quiet option. This makes an undeclared predicate
// fail silently instead of throwing existence_error.
func WithQuiet() Option {
	return func(pl *prolog) {
		pl.quiet = true
	}
}

// WithStdoutLog sets the standard output logger. The logger is stored and
// copied to clones; query output is not written to it but returned in
// Answer.Output.
func WithStdoutLog(logger *log.Logger) Option {
	return func(pl *prolog) {
		pl.stdout = logger
	}
}

// WithStderrLog sets the standard error logger. The logger is stored and
// copied to clones; nothing is written to it.
func WithStderrLog(logger *log.Logger) Option {
	return func(pl *prolog) {
		pl.stderr = logger
	}
}

// WithDebugLog sets the debug logger. The logger is stored and copied to
// clones; nothing is written to it.
func WithDebugLog(logger *log.Logger) Option {
	return func(pl *prolog) {
		pl.debug = logger
	}
}

// WithMaxConcurrency is accepted for source compatibility; this
// implementation has no WASM instance memory to bound, so it is a no-op.
func WithMaxConcurrency(queries int) Option {
	return func(pl *prolog) {}
}

const engineCellSize = 64 // approximate, for Stats().MemorySize only

var (
	_ Prolog = (*prolog)(nil)
	_ Prolog = &lockedProlog{}
)
