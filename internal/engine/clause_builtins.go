package engine

import "strings"

// clauseRefPrefix marks an atom as encoding a ClauseID rather than being
// ordinary program text, so clauseRefID can tell the two apart and so a
// clause/3 reference printed by a caller is visibly not a plain atom.
const clauseRefPrefix = "$clause$"

func clauseRefAtom(m *Machine, id ClauseID) Atom {
	return m.Atoms.Intern(clauseRefPrefix + id.String())
}

func clauseRefID(m *Machine, a Atom) (ClauseID, bool) {
	name := m.Atoms.Name(a)
	rest, ok := strings.CutPrefix(name, clauseRefPrefix)
	if !ok {
		return ClauseID{}, false
	}
	id, err := ParseClauseID(rest)
	if err != nil {
		return ClauseID{}, false
	}
	return id, true
}

// registerClauseBuiltins wires clause/3, erase/1 and instance/2 (spec §12,
// grounded on trealla's builtins.c): clause/3 additionally reports the
// matched clause's identity, erase/1 retracts by that identity alone, and
// instance/2 reconstructs a clause's Head:-Body term from it. All three
// ride directly on the UUID field spec §4.3/§6 already requires every
// clause to carry.
func registerClauseBuiltins(b *Builtins, atoms *Atoms) {
	reg := func(name string, arity int, fn BuiltinFunc) { b.Register(atoms.Intern(name), arity, fn) }
	reg("clause", 3, biClause3)
	reg("erase", 1, biErase1)
	reg("instance", 2, biInstance2)
}

func biClause3(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	headRef := m.Deref(arg(goal, 0))
	key, ok := predKeyOf(m, headRef)
	if !ok {
		return nil, false, instantiationError(m, "clause")
	}
	pred := m.Clauses.Lookup(key)
	if pred == nil {
		return nil, true, nil
	}
	ikey, iok := CallKeyRef0(m.Bindings(), Ref{Cells: headRef.Cells, Pos: headRef.Pos, Ctx: headRef.Ctx})
	candidates := pred.Candidates(ikey, iok)
	return m.tryClauseRefs(headRef, arg(goal, 1), arg(goal, 2), candidates, 0, cont)
}

// tryClauseRefs mirrors tryClauses but additionally unifies the matched
// clause's body and identity, pushing a choice point over the remaining
// candidates exactly like the user-predicate dispatcher does.
func (m *Machine) tryClauseRefs(headRef, bodyArg, refArg Ref, candidates []*Clause, from int, cont *Cont) (*Cont, bool, error) {
	w := m.Atoms.Well()
	for i := from; i < len(candidates); i++ {
		cl := candidates[i]
		if cl.Erased {
			continue
		}
		heapMark := m.Heap.Len()
		trailMark := m.Trail.Len()
		framesMark := m.Frames.Save()

		frameIdx := m.Frames.Push(m.curFrame, nil, cl.NVars, 0, 0)
		bn := m.Bindings()
		if !Unify(bn, headRef, Ref{Cells: cl.Head, Pos: 0, Ctx: frameIdx}) {
			m.Trail.Unwind(m.Frames, trailMark, 0)
			m.Frames.Restore(framesMark)
			m.Heap.Truncate(heapMark)
			continue
		}
		var bodyTarget Ref
		if len(cl.Body) == 0 {
			bodyTarget = Ref{Cells: Term{AtomCell(w.True)}, Pos: 0, Ctx: -1}
		} else {
			bodyTarget = Ref{Cells: cl.Body, Pos: 0, Ctx: frameIdx}
		}
		refPos := m.Heap.Append(AtomCell(clauseRefAtom(m, cl.ID)))
		if !Unify(bn, bodyArg, bodyTarget) || !Unify(bn, refArg, Ref{Cells: m.Heap.Cells(), Pos: refPos, Ctx: -1}) {
			m.Trail.Unwind(m.Frames, trailMark, 0)
			m.Frames.Restore(framesMark)
			m.Heap.Truncate(heapMark)
			continue
		}

		if i+1 < len(candidates) {
			rem := candidates[i+1:]
			m.Choices.Push(ChoicePoint{
				HeapMark:  heapMark,
				TrailMark: trailMark,
				Frames:    framesMark,
				Frame:     frameIdx,
				CatchMark: len(m.catches),
				QueueNum:  -1,
				Retry: func(mm *Machine) (*Cont, bool) {
					next, halt, err := mm.tryClauseRefs(headRef, bodyArg, refArg, rem, 0, cont)
					if err != nil || halt {
						return nil, false
					}
					return next, true
				},
			})
			m.Frames.MarkChoice(headRef.Ctx)
		}
		return cont.Next, false, nil
	}
	return nil, true, nil
}

func biErase1(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	ref := m.Deref(arg(goal, 0))
	c := ref.cell()
	if c.Tag != TagAtom || c.Arity != 0 {
		return nil, false, typeError(m, "clause_reference", "")
	}
	id, ok := clauseRefID(m, c.Functor)
	if !ok {
		return nil, false, existenceError(m, "clause_reference", m.Atoms.Name(c.Functor))
	}
	key, _, ok := m.Clauses.ByID(id)
	if !ok || !m.Clauses.Erase(key, id) {
		return nil, false, existenceError(m, "clause_reference", m.Atoms.Name(c.Functor))
	}
	return cont.Next, false, nil
}

func biInstance2(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	ref := m.Deref(arg(goal, 0))
	c := ref.cell()
	if c.Tag != TagAtom || c.Arity != 0 {
		return nil, false, typeError(m, "clause_reference", "")
	}
	id, ok := clauseRefID(m, c.Functor)
	if !ok {
		return nil, false, existenceError(m, "clause_reference", m.Atoms.Name(c.Functor))
	}
	_, cl, ok := m.Clauses.ByID(id)
	if !ok || cl.Erased {
		return nil, false, existenceError(m, "clause_reference", m.Atoms.Name(c.Functor))
	}

	w := m.Atoms.Well()
	// Head and Body share one slot numbering (cl.NVars wide) exactly as
	// unifyHead expects when it homes a clause under a fresh frame; a
	// structural copy via appendClonedTerm (no Deref, Var.Num preserved
	// verbatim) followed by a single frame allocation reproduces that
	// without reaching into frame internals twice.
	pos := m.Heap.Put(func(b *Builder) {
		if len(cl.Body) == 0 {
			appendClonedTerm(b, cl.Head)
			return
		}
		b.Compound(w.Neck, 2, func() {
			appendClonedTerm(b, cl.Head)
			appendClonedTerm(b, cl.Body)
		})
	})
	frameIdx := m.Frames.Push(m.curFrame, nil, cl.NVars, 0, 0)
	if Unify(m.Bindings(), arg(goal, 1), Ref{Cells: m.Heap.Cells(), Pos: pos, Ctx: frameIdx}) {
		return cont.Next, false, nil
	}
	return nil, true, nil
}
