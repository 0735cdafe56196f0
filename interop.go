package trealla

import (
	"context"
	"fmt"
	"iter"

	"github.com/proliga/prolog/internal/engine"
)

// Predicate is a Prolog predicate implemented in Go.
// subquery is an opaque number representing the current query.
// goal is the goal called, which includes the arguments.
//
// Return value meaning:
//   - By default, the term returned will be unified with the goal.
//   - Return a throw/1 compound to throw instead.
//   - Return a call/1 compound to call a different goal instead.
//   - Return a 'fail' atom to fail instead.
//   - Return a 'true' atom to succeed without unifying anything.
type Predicate func(pl Prolog, subquery Subquery, goal Term) Term

// NondetPredicate works similarly to [Predicate], but can create multiple choice points.
type NondetPredicate func(pl Prolog, subquery Subquery, goal Term) iter.Seq[Term]

// Subquery is an opaque value representing an in-flight query.
//
// The native engine runs one *engine.Machine per query rather than
// multiplexing many subqueries inside a single shared WASM instance (the
// reason this type exists in the teacher's API), so there is currently
// only ever one live subquery per Predicate invocation; Subquery is kept
// in the calling convention for source compatibility and is always 0.
type Subquery uint32

type coroutine struct {
	next func() (Term, bool)
	stop func()
}

type coroer interface {
	CoroStart(subq Subquery, seq iter.Seq[Term]) int64
	CoroNext(subq Subquery, id int64) (Term, bool)
	CoroStop(subq Subquery, id int64)
}

func (pl *prolog) Register(ctx context.Context, name string, arity int, proc Predicate) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.register(ctx, name, arity, proc)
}

// register installs proc as a native engine built-in: the bridge
// (bridgePredicate) takes the place of the teacher's host_rpc clause plus
// WASM host-call trampoline, since there is no guest/host boundary left
// to cross.
func (pl *prolog) register(_ context.Context, name string, arity int, proc Predicate) error {
	pi := piTerm(Atom(name), arity)
	pl.procs[pi.String()] = proc
	functor := pl.m.Atoms.Intern(name)
	pl.m.Builtins.Register(functor, arity, pl.bridgePredicate(proc))
	return nil
}

// bridgePredicate adapts a host Predicate into an engine.BuiltinFunc:
// convert the goal cell to a host Term, run proc, and interpret its
// return value per Predicate's documented convention.
func (pl *prolog) bridgePredicate(proc Predicate) engine.BuiltinFunc {
	return func(m *engine.Machine, goal engine.Ref, cont *engine.Cont) (*engine.Cont, bool, error) {
		goalTerm := termFromRef(m, goal)
		locked := &lockedProlog{prolog: pl}
		result := catch(proc, locked, Subquery(0), goalTerm)
		locked.kill()
		return pl.applyPredicateResult(m, goal, result, cont)
	}
}

// applyPredicateResult turns a Predicate's return value into the
// continuation/halt/error triple callBuiltin expects, per the four cases
// [Predicate]'s doc comment promises: throw/1, call/1, the 'fail' and
// 'true' atoms, and the default unify-with-goal case.
func (pl *prolog) applyPredicateResult(m *engine.Machine, goal engine.Ref, result Term, cont *engine.Cont) (*engine.Cont, bool, error) {
	switch t := result.(type) {
	case Atom:
		switch t {
		case "fail", "false":
			return nil, true, nil
		case "true":
			return cont.Next, false, nil
		}
	case Compound:
		switch {
		case t.Functor == "throw" && len(t.Args) == 1:
			ref, err := termToRef(m, pl.ops, t.Args[0])
			if err != nil {
				return nil, false, err
			}
			return nil, false, &engine.PrologThrow{Ball: cloneOutRef(m, ref)}
		case t.Functor == "call" && len(t.Args) == 1:
			ref, err := termToRef(m, pl.ops, t.Args[0])
			if err != nil {
				return nil, false, err
			}
			return &engine.Cont{Goal: ref, CutBarrier: m.Choices.Len(), Next: cont.Next}, false, nil
		}
	}

	ref, err := termToRef(m, pl.ops, result)
	if err != nil {
		return nil, false, err
	}
	if engine.Unify(m.Bindings(), goal, ref) {
		return cont.Next, false, nil
	}
	return nil, true, nil
}

// cloneOutRef deep-clones ref into a frame-independent engine.Term
// outside the engine package, the same shape (*Machine).cloneOut
// produces for throw/1's ball, needed here since a Go predicate's thrown
// ball must outlive the frame termToRef parsed it into.
func cloneOutRef(m *engine.Machine, ref engine.Ref) engine.Term {
	b := engine.NewBuilder()
	seen := map[engine.VarRef]int64{}
	var next int64
	engine.DeepClone(m, b, ref.Cells, ref.Pos, ref.Ctx, seen, &next)
	return b.Term()
}

func (pl *prolog) RegisterNondet(ctx context.Context, name string, arity int, proc NondetPredicate) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.registerNondet(ctx, name, arity, proc)
}

// registerNondet wraps proc in a Predicate shim that starts a pulled
// coroutine over its iter.Seq and hands control to '$coro_next'/2, which
// generates one solution per redo (see sys_coro_next_2) until the
// sequence is exhausted.
//
// Unlike the teacher's call_cleanup-wrapped version, this does not
// guarantee the coroutine's stop func runs if the caller cuts away before
// exhausting it (core call_cleanup/2 is not implemented by this engine);
// full exhaustion still cleans up normally since iter.Pull's own stop
// is implicit once Next reports no more values. Recorded in DESIGN.md.
func (pl *prolog) registerNondet(ctx context.Context, name string, arity int, proc NondetPredicate) error {
	shim := func(pl2 Prolog, subquery Subquery, goal Term) Term {
		plc := pl2.(coroer)
		seq := proc(pl2, subquery, goal)
		id := plc.CoroStart(subquery, seq)
		return Atom("$coro_next").Of(id, goal)
	}
	return pl.register(ctx, name, arity, shim)
}

// '$coro_next'(+ID, ?Goal)
func sys_coro_next_2(pl Prolog, subquery Subquery, goal Term) Term {
	plc := pl.(coroer)
	g := goal.(Compound)
	id, ok := g.Args[0].(int64)
	if !ok {
		return throwTerm(domainError("integer", g.Args[0], g.pi()))
	}
	t, ok := plc.CoroNext(subquery, id)
	if !ok || t == nil {
		return Atom("fail")
	}
	// call(( Goal = Result ; '$coro_next'(ID, Goal) ))
	return Atom("call").Of(
		Atom(";").Of(
			Atom("=").Of(g.Args[1], t),
			Atom("$coro_next").Of(id, g.Args[1]),
		),
	)
}

// '$coro_stop'(+ID)
func sys_coro_stop_1(pl Prolog, subquery Subquery, goal Term) Term {
	plc := pl.(coroer)
	g := goal.(Compound)
	id, ok := g.Args[0].(int64)
	if !ok {
		return throwTerm(domainError("integer", g.Args[0], g.pi()))
	}
	plc.CoroStop(subquery, id)
	return goal
}

func (pl *prolog) CoroStart(_ Subquery, seq iter.Seq[Term]) int64 {
	pl.coron++
	id := pl.coron
	next, stop := iter.Pull(seq)
	pl.coros[id] = coroutine{next: next, stop: stop}
	return id
}

func (pl *prolog) CoroNext(_ Subquery, id int64) (Term, bool) {
	coro, ok := pl.coros[id]
	if !ok {
		return Atom("false"), false
	}
	next, ok := coro.next()
	if !ok {
		delete(pl.coros, id)
	}
	return next, ok
}

func (pl *prolog) CoroStop(_ Subquery, id int64) {
	coro, ok := pl.coros[id]
	if !ok {
		return
	}
	coro.stop()
	delete(pl.coros, id)
}

func (pl *lockedProlog) CoroStart(subq Subquery, seq iter.Seq[Term]) int64 {
	return pl.prolog.CoroStart(subq, seq)
}

func (pl *lockedProlog) CoroNext(subq Subquery, id int64) (Term, bool) {
	return pl.prolog.CoroNext(subq, id)
}

func (pl *lockedProlog) CoroStop(subq Subquery, id int64) {
	pl.prolog.CoroStop(subq, id)
}

// catch recovers from a panic inside pred (a Go predicate is host code
// and may panic instead of returning a throw/1 term) and turns it into an
// ordinary throw/1 result, the same safety net the teacher's host-call
// trampoline provided at the WASM boundary.
func catch(pred Predicate, pl Prolog, subq Subquery, goal Term) (result Term) {
	defer func() {
		if threw := recover(); threw != nil {
			switch ball := threw.(type) {
			case Atom:
				result = throwTerm(ball)
			case Compound:
				if ball.Functor == "throw" && len(ball.Args) == 1 {
					result = ball
				} else {
					result = throwTerm(ball)
				}
			default:
				result = throwTerm(
					Atom("system_error").Of(
						Atom("panic").Of(fmt.Sprint(threw)),
						goal,
					),
				)
			}
		}
	}()
	result = pred(pl, subq, goal)
	return
}

var (
	_ coroer = (*prolog)(nil)
	_ coroer = (*lockedProlog)(nil)
)
