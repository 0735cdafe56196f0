package trealla

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/proliga/prolog/internal/engine"
	"github.com/proliga/prolog/internal/read"
)

// Query is a Prolog query iterator.
type Query interface {
	// Next computes the next solution. Returns true if it found one and false if there are no more results.
	Next(context.Context) bool
	// Current returns the current solution prepared by Next.
	Current() Answer
	// Close destroys this query. It is not necessary to call this if you exhaust results via Next.
	Close() error
	// Err returns this query's error. Always check this after iterating.
	Err() error
}

type query struct {
	pl   *prolog
	goal string
	bind bindings

	varNames map[string]int64
	goalRef  engine.Ref
	base     int
	started  bool

	cur           Answer
	err           error
	done          bool
	firstConsumed bool

	locked bool

	coros map[int64]struct{}

	mu *sync.Mutex
}

// Query executes a query, returning an iterator for results.
func (pl *prolog) Query(ctx context.Context, goal string, options ...QueryOption) Query {
	q := pl.start(ctx, goal, options...)
	runtime.SetFinalizer(q, finalize)
	return q
}

func (pl *prolog) QueryOnce(ctx context.Context, goal string, options ...QueryOption) (Answer, error) {
	return pl.queryOnce(ctx, goal, options...)
}

func (pl *prolog) queryOnce(ctx context.Context, goal string, options ...QueryOption) (Answer, error) {
	q := pl.start(ctx, goal, options...)
	var ans Answer
	if q.Next(ctx) {
		ans = q.Current()
	}
	q.Close()
	return ans, q.Err()
}

func (pl *prolog) start(_ context.Context, goal string, options ...QueryOption) *query {
	q := &query{
		pl:   pl,
		goal: goal,
		mu:   new(sync.Mutex),
	}

	for _, opt := range options {
		opt(q)
	}

	if !q.locked {
		pl.mu.Lock()
		defer pl.mu.Unlock()
	}

	text := q.reify()

	p, err := read.NewParser(text+" .", pl.ops)
	if err != nil {
		q.setError(fmt.Errorf("trealla: %w", err))
		return q
	}
	b := engine.NewBuilder()
	adapter := newTermBuilderAdapter(b, pl.m.Atoms)
	nvars, more, err := p.ReadClause(adapter)
	if err != nil {
		q.setError(fmt.Errorf("trealla: %w", err))
		return q
	}
	if !more {
		q.setError(fmt.Errorf("trealla: empty query"))
		return q
	}
	q.varNames = p.Vars()

	frameIdx := pl.m.PushQueryFrame(nvars)
	pos := pl.m.Heap.Append(b.Term()...)
	q.goalRef = engine.Ref{Cells: pl.m.Heap.Cells(), Pos: pos, Ctx: frameIdx}
	q.base = pl.m.Choices.Len()

	pl.out.Reset()
	solved, err := pl.m.Solve(q.goalRef)
	q.started = true
	q.done = !solved.Ok
	if err != nil {
		q.setError(queryErr(q.pl, err))
		return q
	}
	if solved.Ok {
		q.cur = q.answer()
	} else {
		// A query with zero solutions ever is a failure, reported as
		// ErrFailure; running out of solutions on redo (below) is just
		// the end of iteration, not an error — matches spec §8 scenario
		// 1's "asking for more solutions → false" (no error).
		q.setError(ErrFailure)
	}
	return q
}

func (q *query) redo() bool {
	if !q.locked {
		q.pl.mu.Lock()
		defer q.pl.mu.Unlock()
	}
	q.pl.out.Reset()
	solved, err := q.pl.m.Redo(q.base)
	q.done = !solved.Ok
	if err != nil {
		q.setError(queryErr(q.pl, err))
		return false
	}
	if !solved.Ok {
		return false
	}
	q.cur = q.answer()
	return true
}

func (q *query) answer() Answer {
	sol := Solution{}
	for name, id := range q.varNames {
		if strings.HasPrefix(name, "_") {
			continue
		}
		ref := engine.Ref{Cells: q.goalRef.Cells, Pos: 0, Ctx: q.goalRef.Ctx}
		_ = ref // the variable's home frame is the goal's frame; slot == id
		vref := engine.Ref{Cells: engine.Term{engine.VarCell(id)}, Pos: 0, Ctx: q.goalRef.Ctx}
		sol[name] = termFromRef(q.pl.m, vref)
	}
	return Answer{
		Query:    q.goal,
		Solution: sol,
		Output:   q.pl.out.String(),
	}
}

func (q *query) Next(_ context.Context) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.err != nil {
		return false
	}
	if !q.started {
		return false
	}
	if q.cur.Query != "" || len(q.cur.Solution) > 0 {
		ans := q.cur
		q.cur = Answer{}
		_ = ans
	}

	if !q.firstConsumed {
		q.firstConsumed = true
		if !q.done {
			return true
		}
		return false
	}

	if q.done {
		return false
	}
	return q.redo()
}

func (q *query) Current() Answer {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cur
}

func (q *query) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.done = true
	return nil
}

func (q *query) bindVar(name string, value Term) {
	for i, bind := range q.bind {
		if bind.name == name {
			bind.value = value
			q.bind[i] = bind
			return
		}
	}
	q.bind = append(q.bind, binding{
		name:  name,
		value: value,
	})
}

// reify prepends any WithBind/WithBinding substitutions onto the goal text
// as a conjunction, same trick the original plays to pass Go values into a
// query without a separate wire format.
func (q *query) reify() string {
	if len(q.bind) == 0 {
		return q.goal
	}
	var sb strings.Builder
	sb.WriteString(q.bind.String())
	sb.WriteString(", ")
	sb.WriteString(q.goal)
	return sb.String()
}

func (q *query) setError(err error) {
	if err != nil && q.err == nil {
		q.err = err
	}
}

func (q *query) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

func queryErr(pl *prolog, err error) error {
	if pt, ok := err.(*engine.PrologThrow); ok {
		return ErrThrow{Ball: ballToTerm(pl.m, pt.Ball)}
	}
	return err
}

func finalize(q *query) {
	q.Close()
}

// QueryOption is an optional parameter for queries.
type QueryOption func(*query)

// WithBind binds the given variable to the given term.
func WithBind(variable string, value Term) QueryOption {
	return func(q *query) {
		q.bindVar(variable, value)
	}
}

// WithBinding binds a map of variables to terms.
func WithBinding(subs Substitution) QueryOption {
	return func(q *query) {
		for _, bind := range subs.bindings() {
			q.bindVar(bind.name, bind.value)
		}
	}
}

func withoutLock(q *query) {
	q.locked = true
}

var _ Query = (*query)(nil)
