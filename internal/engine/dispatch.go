package engine

import "fmt"

// Cont is a pending-goal continuation: the next goal to run and, chained
// through Next, everything still left to do after it. Spec §9 flags the
// original's pointer-heavy nested conjunction/disjunction trees as a
// candidate for host-idiomatic restructuring; Cont is that restructuring
// — a goal still lives as a flat cell-stream Term (Ref keeps the
// NbrCells-countable invariant intact for any individual term), but the
// dispatcher's bookkeeping of "what runs after this" is an ordinary
// linked list instead of cursor arithmetic over a shared array.
type Cont struct {
	Goal       Ref
	CutBarrier int // choice-stack depth a '!' within Goal cuts back to
	Next       *Cont
}

// pushGoal prepends a goal onto a continuation chain.
func pushGoal(goal Ref, barrier int, next *Cont) *Cont {
	return &Cont{Goal: goal, CutBarrier: barrier, Next: next}
}

// Solved is returned by Solve to report what happened: either a resumable
// success (the caller can call Redo to look for the next solution) or
// exhaustion.
type Solved struct {
	Ok bool
}

// Solve drives goal to its first solution, leaving the Machine's state
// (bindings, trail, choice stack) exactly as they were at that solution
// so the caller can inspect bindings, then call Redo for the next one.
// This is the top-level entry a query, findall, or \+ all share.
func (m *Machine) Solve(goal Ref) (Solved, error) {
	base := m.Choices.Len()
	cont := pushGoal(goal, base, nil)
	return m.run(cont, base)
}

// Redo resumes after a prior Solve/Redo success, backtracking into the
// choice stack down to (but not below) base and retrying, looking for
// another solution.
func (m *Machine) Redo(base int) (Solved, error) {
	ok, err := m.backtrack(base)
	if err != nil || !ok {
		return Solved{}, err
	}
	return m.drain(base)
}

// run executes cont to its first success or to exhaustion.
func (m *Machine) run(cont *Cont, base int) (Solved, error) {
	return m.drain(base, cont)
}

// drain is the dispatcher's main step loop. It repeatedly pops the head
// goal off the continuation chain, dispatches it, and on failure
// backtracks into the choice stack down to base; it returns as soon as
// cont becomes nil (full success) or the choice stack is exhausted back
// to base (final failure).
func (m *Machine) drain(base int, seed ...*Cont) (Solved, error) {
	var cont *Cont
	if len(seed) > 0 {
		cont = seed[0]
	}
	for {
		if cont == nil {
			return Solved{Ok: true}, nil
		}
		next, halt, err := m.step(cont)
		if err != nil {
			unwound, uerr := m.unwindToCatch(err)
			if uerr != nil {
				return Solved{}, uerr
			}
			if unwound == nil {
				return Solved{}, err
			}
			cont = unwound
			continue
		}
		if halt {
			ok, berr := m.backtrack(base)
			if berr != nil {
				return Solved{}, berr
			}
			if !ok {
				return Solved{Ok: false}, nil
			}
			cont = m.resumeCont
			continue
		}
		cont = next
	}
}

// resumeCont is set by backtrack to the continuation a retried choice
// point wants to run next; drain picks it up immediately after a
// successful backtrack.
//
// (This lives on Machine, not as a return value threaded through
// drain/backtrack, because backtrack is also called directly by Redo.)

// step executes exactly the head goal of cont, returning the
// continuation to run next. halt==true means the goal failed outright
// and the caller must backtrack.
func (m *Machine) step(cont *Cont) (next *Cont, halt bool, err error) {
	goal := m.Deref(cont.Goal)
	c := goal.cell()

	if c.Tag == TagVar {
		return nil, false, instantiationError(m, "call")
	}
	if c.Tag != TagAtom {
		return nil, false, typeErrorTerm(m, "callable", goal)
	}

	w := m.Atoms.Well()

	switch {
	case c.Functor == w.True && c.Arity == 0:
		return cont.Next, false, nil

	case c.Functor == w.Fail && c.Arity == 0:
		return nil, true, nil

	case c.Functor == w.Cut && c.Arity == 0:
		m.Choices.CutTo(cont.CutBarrier, true)
		return cont.Next, false, nil

	case c.Functor == w.Comma && c.Arity == 2:
		kids := goal.Cells.Children(goal.Pos)
		left := Ref{Cells: goal.Cells, Pos: kids[0], Ctx: goal.Ctx}
		right := Ref{Cells: goal.Cells, Pos: kids[1], Ctx: goal.Ctx}
		rightCont := pushGoal(right, cont.CutBarrier, cont.Next)
		return pushGoal(left, cont.CutBarrier, rightCont), false, nil

	case c.Functor == w.Semicolon && c.Arity == 2:
		return m.stepDisjunction(goal, cont)

	case c.Functor == w.Arrow && c.Arity == 2:
		return m.stepIfThen(goal, cont, nil)

	case c.Functor == w.Call && c.Arity >= 1:
		return m.stepCall(goal, cont)

	case isNegation(m, c):
		return m.stepNegation(goal, cont)

	case c.Functor == w.Throw && c.Arity == 1:
		kids := goal.Cells.Children(goal.Pos)
		ball := m.cloneOut(Ref{Cells: goal.Cells, Pos: kids[0], Ctx: goal.Ctx})
		return nil, false, &PrologThrow{Ball: ball}

	case isCatch(m, c):
		return m.stepCatch(goal, cont)

	case isPopCatch(m, c):
		if n := len(m.catches); n > 0 {
			m.catches = m.catches[:n-1]
		}
		return cont.Next, false, nil
	}

	if bi, ok := m.Builtins.Lookup(c.Functor, int(c.Arity)); ok {
		return m.callBuiltin(bi, goal, cont)
	}

	return m.stepUserPredicate(goal, cont)
}

func isNegation(m *Machine, c Cell) bool {
	naf, ok := m.Atoms.Lookup("\\+")
	return ok && c.Functor == naf && c.Arity == 1
}

func isCatch(m *Machine, c Cell) bool {
	cat, ok := m.Atoms.Lookup("catch")
	return ok && c.Functor == cat && c.Arity == 3
}

func isPopCatch(m *Machine, c Cell) bool {
	pop, ok := m.Atoms.Lookup("$pop_catch")
	return ok && c.Functor == pop && c.Arity == 0
}

// stepDisjunction handles ';'/2, special-casing (If -> Then ; Else) per
// ISO, and otherwise pushing a choice point that retries the right branch.
func (m *Machine) stepDisjunction(goal Ref, cont *Cont) (*Cont, bool, error) {
	kids := goal.Cells.Children(goal.Pos)
	left := Ref{Cells: goal.Cells, Pos: kids[0], Ctx: goal.Ctx}
	right := Ref{Cells: goal.Cells, Pos: kids[1], Ctx: goal.Ctx}

	lc := m.Deref(left).cell()
	w := m.Atoms.Well()
	if lc.Tag == TagAtom && lc.Functor == w.Arrow && lc.Arity == 2 {
		return m.stepIfThen(m.Deref(left), cont, &right)
	}

	rightCont := pushGoal(right, cont.CutBarrier, cont.Next)
	m.pushRetryOnce(rightCont)
	m.Frames.MarkChoice(goal.Ctx)
	return pushGoal(left, cont.CutBarrier, cont.Next), false, nil
}

// stepIfThen handles If -> Then, and If -> Then ; Else when elseGoal is
// non-nil: If is solved with its own fresh cut barrier (so a '!' inside
// If cuts only If's own choices) and committed to its first solution via
// an inline cut; only then does Then run. If If has no solution and
// elseGoal is given, Else runs instead.
func (m *Machine) stepIfThen(arrow Ref, cont *Cont, elseGoal *Ref) (*Cont, bool, error) {
	kids := arrow.Cells.Children(arrow.Pos)
	ifGoal := Ref{Cells: arrow.Cells, Pos: kids[0], Ctx: arrow.Ctx}
	thenGoal := Ref{Cells: arrow.Cells, Pos: kids[1], Ctx: arrow.Ctx}

	condBase := m.Choices.Len()
	sol, err := m.Solve(ifGoal)
	if err != nil {
		return nil, false, err
	}
	if !sol.Ok {
		if elseGoal != nil {
			return pushGoal(*elseGoal, cont.CutBarrier, cont.Next), false, nil
		}
		return nil, true, nil
	}
	m.Choices.CutTo(condBase, true)
	return pushGoal(thenGoal, cont.CutBarrier, cont.Next), false, nil
}

// stepNegation handles \+/1: Goal is solved in an isolated sub-query;
// any bindings it made are undone regardless of outcome (spec treats
// \+ as negation-as-failure, not as a generator), and \+Goal succeeds
// exactly when Goal has no solution.
func (m *Machine) stepNegation(goal Ref, cont *Cont) (*Cont, bool, error) {
	kids := goal.Cells.Children(goal.Pos)
	inner := Ref{Cells: goal.Cells, Pos: kids[0], Ctx: goal.Ctx}

	trailMark := m.Trail.Len()
	heapMark := m.Heap.Len()
	base := m.Choices.Len()

	sol, err := m.Solve(inner)
	if err != nil {
		return nil, false, err
	}
	m.Choices.CutTo(base, true)
	m.Trail.Unwind(m.Frames, trailMark, 0)
	m.Heap.Truncate(heapMark)

	if sol.Ok {
		return nil, true, nil
	}
	return cont.Next, false, nil
}

// stepCall handles call/N: call(G, A1..Ak) is G's goal extended with k
// extra arguments, built fresh on the heap, and run under its own cut
// barrier — a '!' inside a call/N'd goal is opaque to the caller, per
// ISO's call/1 semantics generalized to call/N.
func (m *Machine) stepCall(goal Ref, cont *Cont) (*Cont, bool, error) {
	kids := goal.Cells.Children(goal.Pos)
	gref := m.Deref(Ref{Cells: goal.Cells, Pos: kids[0], Ctx: goal.Ctx})
	gc := gref.cell()
	if gc.Tag == TagVar {
		return nil, false, instantiationError(m, "call")
	}
	if gc.Tag != TagAtom {
		return nil, false, typeErrorTerm(m, "callable", gref)
	}
	extra := kids[1:]
	if len(extra) == 0 {
		return pushGoal(gref, m.Choices.Len(), cont.Next), false, nil
	}

	baseArgs := gref.Cells.Children(gref.Pos)
	newArity := int(gc.Arity) + len(extra)
	pos := m.Heap.Put(func(b *Builder) {
		b.Compound(gc.Functor, newArity, func() {
			for _, a := range baseArgs {
				cloneInto(m, b, Ref{Cells: gref.Cells, Pos: a, Ctx: gref.Ctx})
			}
			for _, e := range extra {
				cloneInto(m, b, Ref{Cells: goal.Cells, Pos: e, Ctx: goal.Ctx})
			}
		})
	})
	ng := Ref{Cells: m.Heap.Cells(), Pos: pos, Ctx: gref.Ctx}
	return pushGoal(ng, m.Choices.Len(), cont.Next), false, nil
}

func cloneInto(m *Machine, b *Builder, ref Ref) {
	seen := map[VarRef]int64{}
	var next int64
	DeepClone(m, b, ref.Cells, ref.Pos, ref.Ctx, seen, &next)
}

// stepCatch handles catch/3: Goal runs with a catch frame recorded so
// that if it throws a ball unifying with Catcher, execution resumes at
// Recovery instead of propagating further (spec §4.9, §9's
// Result-like-type restructuring of the original's longjmp-based
// exception control flow).
func (m *Machine) stepCatch(goal Ref, cont *Cont) (*Cont, bool, error) {
	kids := goal.Cells.Children(goal.Pos)
	inner := Ref{Cells: goal.Cells, Pos: kids[0], Ctx: goal.Ctx}
	catcher := Ref{Cells: goal.Cells, Pos: kids[1], Ctx: goal.Ctx}
	recovery := Ref{Cells: goal.Cells, Pos: kids[2], Ctx: goal.Ctx}

	frame := catchFrame{
		catcher:    catcher,
		recovery:   recovery,
		choiceMark: m.Choices.Len(),
		trailMark:  m.Trail.Len(),
		heapMark:   m.Heap.Len(),
		cont:       cont,
	}
	m.catches = append(m.catches, frame)
	return pushGoal(inner, m.Choices.Len(), &Cont{Goal: popCatchMarker(m), CutBarrier: cont.CutBarrier, Next: cont.Next}), false, nil
}

// popCatchMarker manufactures a goal ref for a synthetic $pop_catch/0
// bookkeeping atom, used to know when the protected goal of catch/3 has
// run to completion (successfully or via later backtracking out of it)
// so its catch frame can be discarded.
func popCatchMarker(m *Machine) Ref {
	off := m.Atoms.Intern("$pop_catch")
	pos := len(m.sysCells)
	m.sysCells = append(m.sysCells, AtomCell(off))
	return Ref{Cells: Term(m.sysCells), Pos: pos, Ctx: -1}
}

type catchFrame struct {
	catcher    Ref
	recovery   Ref
	choiceMark int
	trailMark  int
	heapMark   int
	cont       *Cont
}

// stepUserPredicate resolves goal against the clause database: indexes
// candidates by first argument, tries them in order, and reuses the
// current frame in place (TCO) when the call is the clause's last goal
// and it recurses into its own predicate, per spec §4.4/§4.7.
func (m *Machine) stepUserPredicate(goal Ref, cont *Cont) (*Cont, bool, error) {
	c := goal.cell()
	key := PredKey{Functor: c.Functor, Arity: int(c.Arity)}
	pred := m.Clauses.Lookup(key)
	if pred == nil {
		if m.Flags.UnknownError {
			return nil, false, existenceError(m, "procedure", fmt.Sprintf("%s/%d", m.Atoms.Name(c.Functor), c.Arity))
		}
		return nil, true, nil
	}

	ikey, iok := CallKeyRef0(m.Bindings(), goal)
	candidates := pred.Candidates(ikey, iok)
	return m.tryClauses(goal, candidates, 0, cont)
}

// CallKeyRef0 computes the first-argument index key directly off a
// goal Ref (rather than a separately-derefed argument), the shape
// stepUserPredicate needs.
func CallKeyRef0(bn *Bindings, goal Ref) (indexKey, bool) {
	return CallKey(bn, goal.Cells, goal.Pos, goal.Ctx)
}

// tryClauses attempts candidates[from:] against goal in order, pushing a
// choice point for the remaining alternatives whenever more than one
// remains untried.
func (m *Machine) tryClauses(goal Ref, candidates []*Clause, from int, cont *Cont) (*Cont, bool, error) {
	// barrier is the call site's choice-stack height, captured before this
	// call tries a single candidate or pushes a choice point for the rest
	// of them: a '!' in the clause body this call commits to must discard
	// every choice point back down to here (spec §4.6's "outer cut... to
	// the point at which the enclosing clause was chosen"), including the
	// very choice point this call is about to push for its own sibling
	// clauses below. Capturing it after that push (as the last candidate's
	// successful match used to) would leave that sibling-clause choice
	// point un-cut, so a cut in a non-last clause would fail to prune the
	// clauses tried after it. On a retry (this function re-entered from a
	// pushed choice point's Retry closure), the choice stack has already
	// been popped back down to this same height by backtrack before Retry
	// runs, so re-capturing it here on each call still yields the one true
	// call-site height rather than drifting.
	barrier := m.Choices.Len()
	for i := from; i < len(candidates); i++ {
		cl := candidates[i]
		heapMark := m.Heap.Len()
		trailMark := m.Trail.Len()
		framesMark := m.Frames.Save()

		frameIdx, headOk := m.unifyHead(goal, cl)
		if !headOk {
			m.Trail.Unwind(m.Frames, trailMark, 0)
			m.Frames.Restore(framesMark)
			m.Heap.Truncate(heapMark)
			continue
		}

		last := i+1 >= len(candidates)
		if !last {
			rem := candidates[i+1:]
			idx := i + 1
			m.Choices.Push(ChoicePoint{
				HeapMark:  heapMark,
				TrailMark: trailMark,
				Frames:    framesMark,
				Frame:     frameIdx,
				Cont:      cont,
				CatchMark: len(m.catches),
				QueueNum:  -1,
				Retry: func(mm *Machine) (*Cont, bool) {
					next, halt, err := mm.tryClauses(goal, rem, 0, cont)
					_ = idx
					if err != nil || halt {
						return nil, false
					}
					return next, true
				},
			})
			m.Frames.MarkChoice(goal.Ctx)
		}

		body := cl.Body
		bodyCtx := frameIdx
		if last && cont.Next == nil && m.tcoEligible(goal.Ctx, frameIdx, cl) {
			m.Frames.ReuseFrom(goal.Ctx, frameIdx)
			bodyCtx = goal.Ctx
		}
		if len(body) == 0 {
			return cont.Next, false, nil
		}
		return pushGoal(Ref{Cells: body, Pos: 0, Ctx: bodyCtx}, barrier, cont.Next), false, nil
	}
	return nil, true, nil
}

// tcoEligible reports whether the just-unified tentative frame frameIdx
// can be folded back into the calling frame callerCtx in place (spec
// §4.4/§4.6's tail-call-optimized frame reuse): callerCtx must be a real
// predicate frame (not the permanent root) with no choice point still
// depending on it (spec's "any_choices" gate), cl's head/body must name
// the same predicate callerCtx itself was called under (the compiled
// "TAILREC" case, not last-call reuse in general — spec §4.7 describes
// the flag as specifically "calls back into the enclosing clause's own
// functor"), and every top-level head argument must be a variable or an
// arity-0 leaf. That last condition is narrower than the unifier's own
// "no_tco" signal (spec §4.5: disable reuse only when a bound value
// actually references the frame being released) — tracking that
// precisely would mean threading a flag through every Unify call: this
// engine instead only fires TCO where a compound head argument can never
// arise, so no binding into an older surviving frame can end up pointing
// at a frame this call is about to release out from under it.
func (m *Machine) tcoEligible(callerCtx, frameIdx int, cl *Clause) bool {
	if callerCtx <= 0 || !m.Frames.IsTop(frameIdx) || m.Frames.HasChoices(callerCtx) {
		return false
	}
	functor, arity := m.Frames.Indicator(callerCtx)
	if functor != cl.Head[0].Functor || arity != int(cl.Head[0].Arity) {
		return false
	}
	return headIsTCOSafe(cl.Head)
}

// headIsTCOSafe reports whether every top-level argument of head is a
// variable or a leaf (atom, number, string) rather than a compound
// subterm — see tcoEligible's doc comment for why this is the condition
// frame-reuse safety reduces to here.
func headIsTCOSafe(head Term) bool {
	for _, k := range head.Children(0) {
		c := head[k]
		if c.Tag == TagVar || c.Arity == 0 {
			continue
		}
		return false
	}
	return true
}

// unifyHead allocates a fresh frame sized for the clause, then unifies
// goal's arguments against the clause head's arguments one at a time.
func (m *Machine) unifyHead(goal Ref, cl *Clause) (int, bool) {
	frameIdx := m.Frames.Push(m.curFrame, nil, cl.NVars, cl.Head[0].Functor, int(cl.Head[0].Arity))
	bn := m.Bindings()
	gk := goal.Cells.Children(goal.Pos)
	hk := cl.Head.Children(0)
	for i := range hk {
		if !Unify(bn, Ref{Cells: goal.Cells, Pos: gk[i], Ctx: goal.Ctx}, Ref{Cells: cl.Head, Pos: hk[i], Ctx: frameIdx}) {
			return frameIdx, false
		}
	}
	return frameIdx, true
}

// backtrack pops choice points down to (but not including) base,
// invoking each one's Retry until one yields a continuation to resume,
// or the stack is exhausted. On success it stashes the continuation in
// m.resumeCont for drain to pick up.
func (m *Machine) backtrack(base int) (bool, error) {
	for m.Choices.Len() > base {
		cp, ok := m.Choices.Pop()
		if !ok {
			return false, nil
		}
		m.Trail.Unwind(m.Frames, cp.TrailMark, cp.PinMask)
		m.Frames.Restore(cp.Frames)
		m.Heap.Truncate(cp.HeapMark)
		if len(m.catches) > cp.CatchMark {
			m.catches = m.catches[:cp.CatchMark]
		}
		m.curFrame = cp.Frame

		next, ok := cp.Retry(m)
		if !ok {
			continue
		}
		m.resumeCont = next
		return true, nil
	}
	return false, nil
}

// cloneOut deep-clones ref into a fresh, frame-independent Term — used
// when a value must outlive the frame it was built in, as throw/1's ball
// must survive the unwind back to a catch/3 whose frame predates it.
func (m *Machine) cloneOut(ref Ref) Term {
	b := NewBuilder()
	seen := map[VarRef]int64{}
	var next int64
	DeepClone(m, b, ref.Cells, ref.Pos, ref.Ctx, seen, &next)
	return b.Term()
}

// pushRetryOnce pushes a choice point whose single retry resumes rightCont
// exactly once, used by disjunction's right branch.
func (m *Machine) pushRetryOnce(rightCont *Cont) {
	heapMark := m.Heap.Len()
	trailMark := m.Trail.Len()
	framesMark := m.Frames.Save()
	fired := false
	m.Choices.Push(ChoicePoint{
		HeapMark:  heapMark,
		TrailMark: trailMark,
		Frames:    framesMark,
		Frame:     m.curFrame,
		CatchMark: len(m.catches),
		QueueNum:  -1,
		Retry: func(mm *Machine) (*Cont, bool) {
			if fired {
				return nil, false
			}
			fired = true
			return rightCont, true
		},
	})
}
