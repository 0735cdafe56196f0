package engine

import (
	"sort"

	"golang.org/x/exp/slices"
)

// registerFindallFamily wires findall/3, bagof/3, and setof/3 into b,
// following spec §4.8's queue-based construction: run Goal to
// exhaustion, copying Template into a queue at each success, then turn
// the queue into a list.
func registerFindallFamily(b *Builtins, atoms *Atoms) {
	reg := func(name string, arity int, fn BuiltinFunc) { b.Register(atoms.Intern(name), arity, fn) }
	reg("findall", 3, biFindall)
	reg("bagof", 3, biBagof)
	reg("setof", 3, biSetof)
	reg("forall", 2, biForall)
	reg("aggregate_all", 3, biAggregateAllCount)
}

// collectAll drives goal to every solution, deep-cloning template at each
// success into a fresh Go slice of Terms (frame-independent, so they
// outlive the backtracking that produces them) — the Go-idiomatic
// replacement for spec §4.8's fixed out-of-band queue buffer.
func collectAll(m *Machine, template, goal Ref) ([]Term, error) {
	var out []Term
	base := m.Choices.Len()
	trailMark := m.Trail.Len()

	sol, err := m.Solve(goal)
	if err != nil {
		return nil, err
	}
	for sol.Ok {
		out = append(out, m.cloneOut(template))
		sol, err = m.Redo(base)
		if err != nil {
			return nil, err
		}
	}
	m.Choices.CutTo(base, true)
	m.Trail.Unwind(m.Frames, trailMark, 0)
	return out, nil
}

func biFindall(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	results, err := collectAll(m, arg(goal, 0), arg(goal, 1))
	if err != nil {
		return nil, false, err
	}
	return unifyResultList(m, results, arg(goal, 2), cont)
}

func unifyResultList(m *Machine, results []Term, out Ref, cont *Cont) (*Cont, bool, error) {
	w := m.Atoms.Well()
	pos := m.Heap.Put(func(b *Builder) {
		b.List(w, len(results), func(i int) {
			appendClonedTerm(b, results[i])
		})
	})
	if Unify(m.Bindings(), out, Ref{Cells: m.Heap.Cells(), Pos: pos, Ctx: -1}) {
		return cont.Next, false, nil
	}
	return nil, true, nil
}

// appendClonedTerm splices a standalone Term (produced by cloneOut, whose
// variables are Builder-local placeholders with Ctx -1) into b by
// re-walking it; since the term carries no live frame bindings there is
// nothing to dereference, only structure to copy.
func appendClonedTerm(b *Builder, t Term) {
	var walk func(pos int) int
	walk = func(pos int) int {
		c := t[pos]
		switch c.Tag {
		case TagVar:
			return b.Var(c.Num)
		case TagAtom:
			if c.Arity == 0 {
				return b.Atom(c.Functor)
			}
			kids := t.Children(pos)
			return b.Compound(c.Functor, int(c.Arity), func() {
				for _, k := range kids {
					walk(k)
				}
			})
		case TagInt:
			return b.Leaf(Cell{Tag: TagInt, Num: c.Num, Den: c.Den})
		case TagFloat:
			return b.Float(c.Flt)
		case TagString:
			return b.Str(c.Str)
		default:
			return b.Leaf(Cell{Tag: c.Tag})
		}
	}
	walk(0)
}

// stripCarets peels '^'/2-quantified existential variables off goal,
// returning the innermost goal and every variable named by a '^' at any
// level — spec §4.8's bagof/setof existential-variable stripping.
func stripCarets(m *Machine, goal Ref) (inner Ref, existentials map[VarRef]bool) {
	existentials = map[VarRef]bool{}
	caret, _ := m.Atoms.Lookup("^")
	cur := m.Deref(goal)
	for {
		c := cur.cell()
		if c.Tag != TagAtom || c.Arity != 2 || c.Functor != caret {
			return cur, existentials
		}
		kids := cur.Cells.Children(cur.Pos)
		varsIn(m, Ref{Cells: cur.Cells, Pos: kids[0], Ctx: cur.Ctx}, existentials)
		cur = m.Deref(Ref{Cells: cur.Cells, Pos: kids[1], Ctx: cur.Ctx})
	}
}

// varsIn collects every free variable reachable from ref into out.
func varsIn(m *Machine, ref Ref, out map[VarRef]bool) {
	ref = m.Deref(ref)
	c := ref.cell()
	if c.Tag == TagVar {
		out[VarRef{Frame: ref.Ctx, Slot: int(c.Num)}] = true
		return
	}
	if c.Tag != TagAtom || c.Arity == 0 {
		return
	}
	for _, k := range ref.Cells.Children(ref.Pos) {
		varsIn(m, Ref{Cells: ref.Cells, Pos: k, Ctx: ref.Ctx}, out)
	}
}

// witness pairs a solution's free-variable bindings (the "key" a
// bagof/setof partition groups by) with the template value collected for
// that solution.
type witness struct {
	key   Term
	value Term
}

// collectWitnesses runs goal to exhaustion like collectAll, but for each
// solution also clones the current bindings of freeVars (in a stable
// order) so the caller can partition by them afterward — spec §4.8's
// "partition the queue by the values of the free variables" described as
// a pin-mask retry; here it is simply computed after the fact from
// already-materialized witnesses, which is equivalent and avoids
// reimplementing pin-mask bookkeeping per solution.
func collectWitnesses(m *Machine, template, goalInner Ref, freeOrder []VarRef) ([]witness, error) {
	var out []witness
	base := m.Choices.Len()
	trailMark := m.Trail.Len()

	sol, err := m.Solve(goalInner)
	if err != nil {
		return nil, err
	}
	for sol.Ok {
		kb := NewBuilder()
		kb.Compound(0, len(freeOrder), func() {
			for _, vr := range freeOrder {
				slot := m.Frames.Get(vr.Frame, vr.Slot)
				var vref Ref
				if slot.Bound {
					vref = slot.Value
				} else {
					vref = Ref{Cells: Term{VarCell(0)}, Pos: 0, Ctx: vr.Frame}
				}
				seen := map[VarRef]int64{}
				var next int64
				DeepClone(m, kb, vref.Cells, vref.Pos, vref.Ctx, seen, &next)
			}
		})
		out = append(out, witness{key: kb.Term(), value: m.cloneOut(template)})
		sol, err = m.Redo(base)
		if err != nil {
			return nil, err
		}
	}
	m.Choices.CutTo(base, true)
	m.Trail.Unwind(m.Frames, trailMark, 0)
	return out, nil
}

func freeVarOrder(m *Machine, template, goalWithoutCarets Ref, existentials map[VarRef]bool) []VarRef {
	tVars := map[VarRef]bool{}
	varsIn(m, template, tVars)
	gVars := map[VarRef]bool{}
	varsIn(m, goalWithoutCarets, gVars)

	var order []VarRef
	seen := map[VarRef]bool{}
	for vr := range gVars {
		if tVars[vr] || existentials[vr] || seen[vr] {
			continue
		}
		seen[vr] = true
		order = append(order, vr)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].Frame != order[j].Frame {
			return order[i].Frame < order[j].Frame
		}
		return order[i].Slot < order[j].Slot
	})
	return order
}

func termLess(a, b Term) bool {
	return compareClonedTerms(a, 0, b, 0) < 0
}

func termEqual(a, b Term) bool {
	return compareClonedTerms(a, 0, b, 0) == 0
}

// compareClonedTerms implements the standard order of terms (spec §5)
// directly over two frame-independent cloned Terms, rather than through
// Machine.Deref — witnesses and results produced by cloneOut have no live
// frame to resolve against.
func compareClonedTerms(a Term, ai int, b Term, bi int) int {
	ac, bc := a[ai], b[bi]
	rank := func(c Cell) int {
		switch c.Tag {
		case TagVar:
			return 0
		case TagFloat, TagInt:
			return 1
		case TagAtom:
			if c.Arity == 0 {
				return 2
			}
			return 4
		case TagString:
			return 3
		default:
			return 5
		}
	}
	ra, rb := rank(ac), rank(bc)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 0:
		return int(ac.Num - bc.Num)
	case 1:
		af, bf := numAsFloat(ac), numAsFloat(bc)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	case 2:
		return int(ac.Functor) - int(bc.Functor)
	case 3:
		if ac.Str < bc.Str {
			return -1
		}
		if ac.Str > bc.Str {
			return 1
		}
		return 0
	default:
		if ac.Arity != bc.Arity {
			return int(ac.Arity) - int(bc.Arity)
		}
		if ac.Functor != bc.Functor {
			return int(ac.Functor) - int(bc.Functor)
		}
		ak, bk := a.Children(ai), b.Children(bi)
		for i := range ak {
			if c := compareClonedTerms(a, ak[i], b, bk[i]); c != 0 {
				return c
			}
		}
		return 0
	}
}

// biBagof and biSetof share partitioning logic; setof additionally sorts
// and deduplicates (spec §4.8, §8's "setof sorted + no duplicates"
// testable property).
func biBagof(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	return bagofSetof(m, goal, cont, false)
}

func biSetof(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	return bagofSetof(m, goal, cont, true)
}

func bagofSetof(m *Machine, goal Ref, cont *Cont, sorted bool) (*Cont, bool, error) {
	template := arg(goal, 0)
	inner, existentials := stripCarets(m, arg(goal, 1))
	order := freeVarOrder(m, template, inner, existentials)

	witnesses, err := collectWitnesses(m, template, inner, order)
	if err != nil {
		return nil, false, err
	}
	if len(witnesses) == 0 {
		return nil, true, nil
	}

	slices.SortFunc(witnesses, func(a, b witness) bool { return termLess(a.key, b.key) })

	groups := make([][]Term, 0)
	keys := make([]Term, 0)
	for _, w := range witnesses {
		if len(keys) > 0 && termEqual(keys[len(keys)-1], w.key) {
			groups[len(groups)-1] = append(groups[len(groups)-1], w.value)
			continue
		}
		keys = append(keys, w.key)
		groups = append(groups, []Term{w.value})
	}

	trailMark := m.Trail.Len()
	base := m.Choices.Len()
	for i := len(groups) - 1; i >= 1; i-- {
		i := i
		m.Choices.Push(ChoicePoint{
			TrailMark: trailMark,
			Frames:    m.Frames.Save(),
			HeapMark:  m.Heap.Len(),
			CatchMark: len(m.catches),
			QueueNum:  -1,
			Retry: func(mm *Machine) (*Cont, bool) {
				return mm.finishBagGroup(order, keys[i], groups[i], goal, sorted, cont)
			},
		})
	}
	if len(groups) > 1 {
		m.Frames.MarkChoice(goal.Ctx)
	}
	return m.finishBagGroup(order, keys[0], groups[0], goal, sorted, cont), false, nil
}

// finishBagGroup unifies the free-variable witness key back into the
// call (so the caller observes which binding of the free variables this
// group corresponds to), sorts/dedupes the group if this is setof, and
// unifies it with the result list argument.
func (m *Machine) finishBagGroup(order []VarRef, key Term, group []Term, goal Ref, sorted bool, cont *Cont) *Cont {
	bn := m.Bindings()
	for i, vr := range order {
		pos := m.Heap.Append(key.Span(key.Children(0)[i])...)
		argRef := Ref{Cells: Term{VarCell(int64(vr.Slot))}, Pos: 0, Ctx: vr.Frame}
		if !Unify(bn, argRef, Ref{Cells: m.Heap.Cells(), Pos: pos, Ctx: -1}) {
			return nil
		}
	}
	if sorted {
		slices.SortFunc(group, func(a, b Term) bool { return termLess(a, b) })
		deduped := group[:0]
		for i, t := range group {
			if i == 0 || !termEqual(group[i-1], t) {
				deduped = append(deduped, t)
			}
		}
		group = deduped
	}
	next, _, err := unifyResultList(m, group, arg(goal, 2), cont)
	if err != nil {
		return nil
	}
	return next
}

// biForall implements forall(Cond, Action) as \+ (Cond, \+ Action).
func biForall(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	cond := arg(goal, 0)
	action := arg(goal, 1)
	base := m.Choices.Len()
	trailMark := m.Trail.Len()

	sol, err := m.Solve(cond)
	if err != nil {
		return nil, false, err
	}
	ok := true
	for sol.Ok && ok {
		asol, aerr := m.Solve(action)
		if aerr != nil {
			return nil, false, aerr
		}
		if !asol.Ok {
			ok = false
			break
		}
		sol, err = m.Redo(base)
		if err != nil {
			return nil, false, err
		}
	}
	m.Choices.CutTo(base, true)
	m.Trail.Unwind(m.Frames, trailMark, 0)
	if ok {
		return cont.Next, false, nil
	}
	return nil, true, nil
}

// biAggregateAllCount implements the common aggregate_all(count, Goal,
// Count) shape; the richer aggregate_all(bag/set/sum/max(...), ...)
// forms are left to the surface library, matching spec §1's framing of
// list/aggregate utilities as external collaborators beyond findall's
// core triad.
func biAggregateAllCount(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	spec := m.Deref(arg(goal, 0))
	countAtom := m.Atoms.Intern("count")
	if spec.cell().Tag != TagAtom || spec.cell().Functor != countAtom || spec.cell().Arity != 0 {
		return nil, false, domainError(m, "aggregate_spec", "")
	}
	results, err := collectAll(m, arg(goal, 0), arg(goal, 1))
	if err != nil {
		return nil, false, err
	}
	pos := m.Heap.Append(IntCell(int64(len(results))))
	if Unify(m.Bindings(), arg(goal, 2), Ref{Cells: m.Heap.Cells(), Pos: pos, Ctx: -1}) {
		return cont.Next, false, nil
	}
	return nil, true, nil
}
