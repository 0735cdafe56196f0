package engine

import (
	"fmt"
	"strconv"
)

// BuiltinFunc is the calling convention spec §4.7 describes: given the
// (already-indexed) goal cell and the continuation it should hand control
// to on success, a built-in either returns the next continuation, signals
// plain failure (halt=true, err=nil), or throws (err != nil).
type BuiltinFunc func(m *Machine, goal Ref, cont *Cont) (next *Cont, halt bool, err error)

// Builtins is the (name, arity) → BuiltinFunc lookup table spec §4.7
// calls the "two static tables (core ISO set, extended set)" — kept here
// as one table since the instance-scoped Machine (spec §9) makes the
// ISO/extended split an organizational one, not a storage one.
type Builtins struct {
	table map[PredKey]BuiltinFunc
}

// NewBuiltins constructs the table and registers the core built-ins
// (arithmetic, type tests, term inspection, database mutation). The
// findall family, the task built-ins and the clause built-ins are added
// by New on top of this table.
// Built-ins the spec explicitly treats as external collaborators
// (I/O, formatting, the parser, directives) are registered by the
// surrounding prolog package instead, via Register.
func NewBuiltins(atoms *Atoms) *Builtins {
	b := &Builtins{table: make(map[PredKey]BuiltinFunc)}
	registerCoreBuiltins(b, atoms)
	return b
}

// CorePredicates lists every (name, arity) this package itself registers,
// for listing/1 and predicate_property/2's benefit when deciding whether a
// predicate is user-defined or built in.
func (b *Builtins) CorePredicates() []PredKey {
	keys := make([]PredKey, 0, len(b.table))
	for k := range b.table {
		keys = append(keys, k)
	}
	return keys
}

// Register adds or overrides a built-in. Used both internally and by the
// embedding API's interop layer to install Go-backed predicates (spec §6
// describes the embedding API generally; per-predicate Go callbacks are
// this package's extension of it, grounded on the teacher's
// Register/RegisterNondet).
func (b *Builtins) Register(functor Atom, arity int, fn BuiltinFunc) {
	b.table[PredKey{Functor: functor, Arity: arity}] = fn
}

// Lookup finds the built-in for (functor, arity), if any.
func (b *Builtins) Lookup(functor Atom, arity int) (BuiltinFunc, bool) {
	fn, ok := b.table[PredKey{Functor: functor, Arity: arity}]
	return fn, ok
}

func (m *Machine) callBuiltin(fn BuiltinFunc, goal Ref, cont *Cont) (*Cont, bool, error) {
	return fn(m, goal, cont)
}

func arg(goal Ref, i int) Ref {
	kids := goal.Cells.Children(goal.Pos)
	return Ref{Cells: goal.Cells, Pos: kids[i], Ctx: goal.Ctx}
}

func registerCoreBuiltins(b *Builtins, atoms *Atoms) {
	reg := func(name string, arity int, fn BuiltinFunc) {
		b.Register(atoms.Intern(name), arity, fn)
	}

	reg("=", 2, biUnify)
	reg("\\=", 2, biNotUnify)
	reg("unify_with_occurs_check", 2, biUnifyOccurs)
	reg("==", 2, biEqual)
	reg("\\==", 2, biNotEqual)
	reg("@<", 2, biOrderLt)
	reg("@>", 2, biOrderGt)
	reg("@=<", 2, biOrderLe)
	reg("@>=", 2, biOrderGe)
	reg("compare", 3, biCompare3)

	reg("var", 1, biVar)
	reg("nonvar", 1, biNonvar)
	reg("atom", 1, biAtom)
	reg("number", 1, biNumber)
	reg("integer", 1, biInteger)
	reg("float", 1, biFloat)
	reg("atomic", 1, biAtomic)
	reg("compound", 1, biCompound)
	reg("callable", 1, biCallable)
	reg("is_list", 1, biIsList)
	reg("ground", 1, biGround)

	reg("is", 2, biIs)
	for _, op := range []string{"=:=", "=\\=", "<", ">", "=<", ">="} {
		reg(op, 2, makeArithCompare(op))
	}

	reg("functor", 3, biFunctor)
	reg("arg", 3, biArg)
	reg("=..", 2, biUniv)
	reg("copy_term", 2, biCopyTerm)

	reg("asserta", 1, biAsserta)
	reg("assertz", 1, biAssertz)
	reg("assert", 1, biAssertz)
	reg("retract", 1, biRetract)
	reg("retractall", 1, biRetractAll)
	reg("abolish", 1, biAbolish)

	reg("atom_codes", 2, biAtomCodes)
	reg("atom_chars", 2, biAtomChars)
	reg("char_code", 2, biCharCode)
	reg("number_codes", 2, biNumberCodes)
	reg("number_chars", 2, biNumberChars)
	reg("atom_number", 2, biAtomNumber)
	reg("atom_length", 2, biAtomLength)
	reg("atom_concat", 3, biAtomConcat)
	reg("upcase_atom", 2, biUpcaseAtom)
	reg("downcase_atom", 2, biDowncaseAtom)

	reg("once", 1, biOnce)
	reg("halt", 0, biHalt0)
	reg("halt", 1, biHalt1)
}

func biUnify(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	if Unify(m.Bindings(), arg(goal, 0), arg(goal, 1)) {
		return cont.Next, false, nil
	}
	return nil, true, nil
}

func biNotUnify(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	trailMark := m.Trail.Len()
	ok := Unify(m.Bindings(), arg(goal, 0), arg(goal, 1))
	m.Trail.Unwind(m.Frames, trailMark, 0)
	if ok {
		return nil, true, nil
	}
	return cont.Next, false, nil
}

// biUnifyOccurs implements unify_with_occurs_check/2: run a plain Unify,
// then reject it if any binding it made would close a cycle, undoing the
// bindings rather than refusing them up front since Unify has no
// occurs-aware mode of its own.
func biUnifyOccurs(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	trailMark := m.Trail.Len()
	bn := m.Bindings()
	if !Unify(bn, arg(goal, 0), arg(goal, 1)) {
		m.Trail.Unwind(m.Frames, trailMark, 0)
		return nil, true, nil
	}
	for i := trailMark; i < m.Trail.Len(); i++ {
		e := m.Trail.entries[i]
		vr := VarRef{Frame: e.Frame, Slot: e.Slot}
		slot := m.Frames.Get(e.Frame, e.Slot)
		if slot.Bound && Occurs(bn, vr, slot.Value) {
			m.Trail.Unwind(m.Frames, trailMark, 0)
			return nil, true, nil
		}
	}
	return cont.Next, false, nil
}

// structuralEqual implements ==/2: unlike unify, it never binds a
// variable — two unbound variables are equal only if they name the same
// slot, matching spec §8's "==/2 is not unify" baseline ISO semantics.
func structuralEqual(m *Machine, x, y Ref) bool {
	x, y = m.Deref(x), m.Deref(y)
	xc, yc := x.cell(), y.cell()
	if xc.Tag != yc.Tag {
		return false
	}
	switch xc.Tag {
	case TagVar:
		return x.Ctx == y.Ctx && xc.Num == yc.Num
	case TagAtom:
		if xc.Functor != yc.Functor || xc.Arity != yc.Arity {
			return false
		}
		xk, yk := x.Cells.Children(x.Pos), y.Cells.Children(y.Pos)
		for i := range xk {
			if !structuralEqual(m, Ref{Cells: x.Cells, Pos: xk[i], Ctx: x.Ctx}, Ref{Cells: y.Cells, Pos: yk[i], Ctx: y.Ctx}) {
				return false
			}
		}
		return true
	case TagInt:
		return xc.Num == yc.Num && xc.Den == yc.Den
	case TagFloat:
		return xc.Flt == yc.Flt
	case TagString:
		return xc.Str == yc.Str
	default:
		return true
	}
}

func biEqual(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	if structuralEqual(m, arg(goal, 0), arg(goal, 1)) {
		return cont.Next, false, nil
	}
	return nil, true, nil
}

func biNotEqual(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	if !structuralEqual(m, arg(goal, 0), arg(goal, 1)) {
		return cont.Next, false, nil
	}
	return nil, true, nil
}

// standardOrder implements the total order spec §5's "Ordering
// guarantees" names: Var < Number < Atom < String < Compound, compounds
// by arity then name then arguments left to right.
func standardOrder(m *Machine, x, y Ref) int {
	x, y = m.Deref(x), m.Deref(y)
	xc, yc := x.cell(), y.cell()
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
	rx, ry := rank(xc), rank(yc)
	if rx != ry {
		return rx - ry
	}
	switch rx {
	case 0:
		if x.Ctx != y.Ctx {
			return x.Ctx - y.Ctx
		}
		return int(xc.Num - yc.Num)
	case 1:
		af, bf := numAsFloat(xc), numAsFloat(yc)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	case 2:
		if xc.Functor == yc.Functor {
			return 0
		}
		if m.Atoms.Name(xc.Functor) < m.Atoms.Name(yc.Functor) {
			return -1
		}
		return 1
	case 3:
		if xc.Str < yc.Str {
			return -1
		}
		if xc.Str > yc.Str {
			return 1
		}
		return 0
	default:
		if int(xc.Arity) != int(yc.Arity) {
			return int(xc.Arity) - int(yc.Arity)
		}
		if xc.Functor != yc.Functor {
			if m.Atoms.Name(xc.Functor) < m.Atoms.Name(yc.Functor) {
				return -1
			}
			return 1
		}
		xk, yk := x.Cells.Children(x.Pos), y.Cells.Children(y.Pos)
		for i := range xk {
			if c := standardOrder(m, Ref{Cells: x.Cells, Pos: xk[i], Ctx: x.Ctx}, Ref{Cells: y.Cells, Pos: yk[i], Ctx: y.Ctx}); c != 0 {
				return c
			}
		}
		return 0
	}
}

func numAsFloat(c Cell) float64 {
	if c.Tag == TagFloat {
		return c.Flt
	}
	return float64(c.Num) / float64(c.Den)
}

func makeOrderBuiltin(pred func(int) bool) BuiltinFunc {
	return func(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
		if pred(standardOrder(m, arg(goal, 0), arg(goal, 1))) {
			return cont.Next, false, nil
		}
		return nil, true, nil
	}
}

var biOrderLt = makeOrderBuiltin(func(c int) bool { return c < 0 })
var biOrderGt = makeOrderBuiltin(func(c int) bool { return c > 0 })
var biOrderLe = makeOrderBuiltin(func(c int) bool { return c <= 0 })
var biOrderGe = makeOrderBuiltin(func(c int) bool { return c >= 0 })

func biCompare3(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	c := standardOrder(m, arg(goal, 1), arg(goal, 2))
	var atomName string
	switch {
	case c < 0:
		atomName = "<"
	case c > 0:
		atomName = ">"
	default:
		atomName = "="
	}
	pos := m.Heap.Append(AtomCell(m.Atoms.Intern(atomName)))
	if Unify(m.Bindings(), arg(goal, 0), Ref{Cells: m.Heap.Cells(), Pos: pos, Ctx: -1}) {
		return cont.Next, false, nil
	}
	return nil, true, nil
}

func makeTypeCheck(pred func(Cell) bool) BuiltinFunc {
	return func(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
		ref := m.Deref(arg(goal, 0))
		if pred(ref.cell()) {
			return cont.Next, false, nil
		}
		return nil, true, nil
	}
}

var biVar = makeTypeCheck(func(c Cell) bool { return c.Tag == TagVar })
var biNonvar = makeTypeCheck(func(c Cell) bool { return c.Tag != TagVar })
var biAtom = makeTypeCheck(func(c Cell) bool { return c.Tag == TagAtom && c.Arity == 0 })
var biNumber = makeTypeCheck(func(c Cell) bool { return c.Tag == TagInt || c.Tag == TagFloat })
var biInteger = makeTypeCheck(func(c Cell) bool { return c.Tag == TagInt })
var biFloat = makeTypeCheck(func(c Cell) bool { return c.Tag == TagFloat })
var biAtomic = makeTypeCheck(func(c Cell) bool {
	return c.Tag == TagInt || c.Tag == TagFloat || c.Tag == TagString || (c.Tag == TagAtom && c.Arity == 0)
})
var biCompound = makeTypeCheck(func(c Cell) bool { return c.Tag == TagAtom && c.Arity > 0 })
var biCallable = makeTypeCheck(func(c Cell) bool { return c.Tag == TagAtom })

func biIsList(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	w := m.Atoms.Well()
	ref := m.Deref(arg(goal, 0))
	for {
		c := ref.cell()
		if c.Tag == TagAtom && c.Arity == 0 && c.Functor == w.Nil {
			return cont.Next, false, nil
		}
		if c.Tag != TagAtom || c.Arity != 2 || c.Functor != w.Dot {
			return nil, true, nil
		}
		kids := ref.Cells.Children(ref.Pos)
		ref = m.Deref(Ref{Cells: ref.Cells, Pos: kids[1], Ctx: ref.Ctx})
	}
}

func biGround(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	if isGround(m, arg(goal, 0)) {
		return cont.Next, false, nil
	}
	return nil, true, nil
}

func isGround(m *Machine, ref Ref) bool {
	ref = m.Deref(ref)
	c := ref.cell()
	if c.Tag == TagVar {
		return false
	}
	if c.Tag != TagAtom || c.Arity == 0 {
		return true
	}
	for _, k := range ref.Cells.Children(ref.Pos) {
		if !isGround(m, Ref{Cells: ref.Cells, Pos: k, Ctx: ref.Ctx}) {
			return false
		}
	}
	return true
}

func biIs(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	n, err := m.EvalArith(arg(goal, 1))
	if err != nil {
		return nil, false, err
	}
	pos := m.NumberToHeapCell(n)
	if Unify(m.Bindings(), arg(goal, 0), Ref{Cells: m.Heap.Cells(), Pos: pos, Ctx: -1}) {
		return cont.Next, false, nil
	}
	return nil, true, nil
}

func makeArithCompare(op string) BuiltinFunc {
	return func(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
		a, err := m.EvalArith(arg(goal, 0))
		if err != nil {
			return nil, false, err
		}
		b, err := m.EvalArith(arg(goal, 1))
		if err != nil {
			return nil, false, err
		}
		c := compareNumbers(a, b)
		var ok bool
		switch op {
		case "=:=":
			ok = c == 0
		case "=\\=":
			ok = c != 0
		case "<":
			ok = c < 0
		case ">":
			ok = c > 0
		case "=<":
			ok = c <= 0
		case ">=":
			ok = c >= 0
		}
		if ok {
			return cont.Next, false, nil
		}
		return nil, true, nil
	}
}

func biFunctor(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	ref := m.Deref(arg(goal, 0))
	c := ref.cell()
	bn := m.Bindings()
	if c.Tag != TagVar {
		var namePos int
		var ar int
		switch c.Tag {
		case TagAtom:
			namePos = m.Heap.Append(AtomCell(c.Functor))
			ar = int(c.Arity)
		case TagInt:
			namePos = m.Heap.Append(IntCell(c.Num))
		case TagFloat:
			namePos = m.Heap.Append(FloatCell(c.Flt))
		case TagString:
			namePos = m.Heap.Append(StringCell(c.Str))
		}
		nameRef := Ref{Cells: m.Heap.Cells(), Pos: namePos, Ctx: -1}
		arPos := m.Heap.Append(IntCell(int64(ar)))
		arRef := Ref{Cells: m.Heap.Cells(), Pos: arPos, Ctx: -1}
		if Unify(bn, arg(goal, 1), nameRef) && Unify(bn, arg(goal, 2), arRef) {
			return cont.Next, false, nil
		}
		return nil, true, nil
	}

	nameRef := m.Deref(arg(goal, 1))
	arRef := m.Deref(arg(goal, 2))
	nc, ac := nameRef.cell(), arRef.cell()
	if nc.Tag == TagVar || ac.Tag != TagInt {
		return nil, false, instantiationError(m, "functor")
	}
	n := int(ac.Num)
	var pos int
	if n == 0 {
		pos = m.Heap.Append(nc)
	} else if nc.Tag == TagAtom {
		pos = m.Heap.Put(func(b *Builder) {
			b.Compound(nc.Functor, n, func() {
				for i := 0; i < n; i++ {
					b.Var(int64(i))
				}
			})
		})
		fr := m.Frames.Push(m.curFrame, nil, n, nc.Functor, n)
		return finishFunctorBuild(m, goal, pos, fr, cont)
	} else {
		return nil, false, typeError(m, "atom", "")
	}
	if Unify(bn, arg(goal, 0), Ref{Cells: m.Heap.Cells(), Pos: pos, Ctx: -1}) {
		return cont.Next, false, nil
	}
	return nil, true, nil
}

func finishFunctorBuild(m *Machine, goal Ref, pos, frameIdx int, cont *Cont) (*Cont, bool, error) {
	if Unify(m.Bindings(), arg(goal, 0), Ref{Cells: m.Heap.Cells(), Pos: pos, Ctx: frameIdx}) {
		return cont.Next, false, nil
	}
	return nil, true, nil
}

func biArg(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	nRef := m.Deref(arg(goal, 0))
	tRef := m.Deref(arg(goal, 1))
	nc := nRef.cell()
	tc := tRef.cell()
	if nc.Tag == TagVar || tc.Tag == TagVar {
		return nil, false, instantiationError(m, "arg")
	}
	if nc.Tag != TagInt {
		return nil, false, typeError(m, "integer", "")
	}
	if tc.Tag != TagAtom || tc.Arity == 0 {
		return nil, false, typeError(m, "compound", "")
	}
	n := int(nc.Num)
	if n < 1 || n > int(tc.Arity) {
		return nil, true, nil
	}
	kids := tRef.Cells.Children(tRef.Pos)
	childRef := Ref{Cells: tRef.Cells, Pos: kids[n-1], Ctx: tRef.Ctx}
	if Unify(m.Bindings(), arg(goal, 2), childRef) {
		return cont.Next, false, nil
	}
	return nil, true, nil
}

func biUniv(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	w := m.Atoms.Well()
	ref := m.Deref(arg(goal, 0))
	c := ref.cell()
	bn := m.Bindings()
	if c.Tag != TagVar {
		listPos := m.Heap.Put(func(b *Builder) {
			var elems []func(*Builder)
			switch c.Tag {
			case TagAtom:
				elems = append(elems, func(b *Builder) { b.Atom(c.Functor) })
				for _, k := range ref.Cells.Children(ref.Pos) {
					kk := k
					elems = append(elems, func(b *Builder) { cloneInto(m, b, Ref{Cells: ref.Cells, Pos: kk, Ctx: ref.Ctx}) })
				}
			case TagInt:
				elems = append(elems, func(b *Builder) { b.Int(c.Num) })
			case TagFloat:
				elems = append(elems, func(b *Builder) { b.Float(c.Flt) })
			case TagString:
				elems = append(elems, func(b *Builder) { b.Str(c.Str) })
			}
			b.List(w, len(elems), func(i int) { elems[i](b) })
		})
		if Unify(bn, arg(goal, 1), Ref{Cells: m.Heap.Cells(), Pos: listPos, Ctx: -1}) {
			return cont.Next, false, nil
		}
		return nil, true, nil
	}

	elems, ok := listToSlice(m, arg(goal, 1))
	if !ok || len(elems) == 0 {
		return nil, false, instantiationError(m, "=..")
	}
	head := m.Deref(elems[0])
	hc := head.cell()
	var pos int
	if len(elems) == 1 {
		pos = m.Heap.Append(hc)
		if Unify(bn, arg(goal, 0), Ref{Cells: m.Heap.Cells(), Pos: pos, Ctx: -1}) {
			return cont.Next, false, nil
		}
		return nil, true, nil
	}
	if hc.Tag != TagAtom {
		return nil, false, typeError(m, "atom", "")
	}
	pos = m.Heap.Put(func(b *Builder) {
		b.Compound(hc.Functor, len(elems)-1, func() {
			for _, e := range elems[1:] {
				cloneInto(m, b, e)
			}
		})
	})
	if Unify(bn, arg(goal, 0), Ref{Cells: m.Heap.Cells(), Pos: pos, Ctx: -1}) {
		return cont.Next, false, nil
	}
	return nil, true, nil
}

// listToSlice flattens a proper list term into its element Refs.
func listToSlice(m *Machine, ref Ref) ([]Ref, bool) {
	w := m.Atoms.Well()
	var out []Ref
	cur := m.Deref(ref)
	for {
		c := cur.cell()
		if c.Tag == TagAtom && c.Arity == 0 && c.Functor == w.Nil {
			return out, true
		}
		if c.Tag != TagAtom || c.Arity != 2 || c.Functor != w.Dot {
			return nil, false
		}
		kids := cur.Cells.Children(cur.Pos)
		out = append(out, Ref{Cells: cur.Cells, Pos: kids[0], Ctx: cur.Ctx})
		cur = m.Deref(Ref{Cells: cur.Cells, Pos: kids[1], Ctx: cur.Ctx})
	}
}

func biCopyTerm(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	src := arg(goal, 0)
	b := NewBuilder()
	seen := map[VarRef]int64{}
	var next int64
	DeepClone(m, b, src.Cells, src.Pos, src.Ctx, seen, &next)
	nvars := int(next)
	frameIdx := m.Frames.Push(m.curFrame, nil, nvars, 0, 0)
	pos := m.Heap.Append(b.Term()...)
	if Unify(m.Bindings(), arg(goal, 1), Ref{Cells: m.Heap.Cells(), Pos: pos, Ctx: frameIdx}) {
		return cont.Next, false, nil
	}
	return nil, true, nil
}

func predKeyOf(m *Machine, ref Ref) (PredKey, bool) {
	c := ref.cell()
	if c.Tag != TagAtom {
		return PredKey{}, false
	}
	return PredKey{Functor: c.Functor, Arity: int(c.Arity)}, true
}

// splitClause pulls Head and Body apart from a ':-'/2 term, or treats the
// whole term as a fact with an empty (true) body.
func splitClause(m *Machine, ref Ref) (head, body Ref, hasBody bool) {
	ref = m.Deref(ref)
	c := ref.cell()
	w := m.Atoms.Well()
	if c.Tag == TagAtom && c.Arity == 2 && c.Functor == w.Neck {
		kids := ref.Cells.Children(ref.Pos)
		return Ref{Cells: ref.Cells, Pos: kids[0], Ctx: ref.Ctx}, Ref{Cells: ref.Cells, Pos: kids[1], Ctx: ref.Ctx}, true
	}
	return ref, Ref{}, false
}

func storeClause(m *Machine, clauseRef Ref, front bool) (*Cont, bool, error) {
	headRef, bodyRef, hasBody := splitClause(m, clauseRef)
	headRef = m.Deref(headRef)
	key, ok := predKeyOf(m, headRef)
	if !ok {
		return nil, false, typeError(m, "callable", "")
	}

	hb := NewBuilder()
	seen := map[VarRef]int64{}
	var nextVar int64
	DeepClone(m, hb, headRef.Cells, headRef.Pos, headRef.Ctx, seen, &nextVar)
	headTerm := hb.Term()

	var bodyTerm Term
	if hasBody {
		bb := NewBuilder()
		DeepClone(m, bb, bodyRef.Cells, bodyRef.Pos, bodyRef.Ctx, seen, &nextVar)
		bodyTerm = bb.Term()
	}

	if front {
		m.Clauses.Asserta(key, headTerm, bodyTerm, int(nextVar))
	} else {
		m.Clauses.Assertz(key, headTerm, bodyTerm, int(nextVar))
	}
	return nil, false, nil
}

func biAsserta(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	if _, _, err := storeClause(m, arg(goal, 0), true); err != nil {
		return nil, false, err
	}
	return cont.Next, false, nil
}

func biAssertz(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	if _, _, err := storeClause(m, arg(goal, 0), false); err != nil {
		return nil, false, err
	}
	return cont.Next, false, nil
}

func biRetract(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	headRef, bodyRef, hasBody := splitClause(m, arg(goal, 0))
	headRef = m.Deref(headRef)
	key, ok := predKeyOf(m, headRef)
	if !ok {
		return nil, false, typeError(m, "callable", "")
	}
	pred := m.Clauses.Lookup(key)
	if pred == nil {
		return nil, true, nil
	}
	for _, cl := range pred.all() {
		trailMark := m.Trail.Len()
		framesMark := m.Frames.Save()
		frameIdx := m.Frames.Push(m.curFrame, nil, cl.NVars, 0, 0)
		bn := m.Bindings()
		if !Unify(bn, headRef, Ref{Cells: cl.Head, Pos: 0, Ctx: frameIdx}) {
			m.Trail.Unwind(m.Frames, trailMark, 0)
			m.Frames.Restore(framesMark)
			continue
		}
		bodyOk := true
		if hasBody {
			var bodyTarget Ref
			if len(cl.Body) == 0 {
				bodyTarget = Ref{Cells: Term{AtomCell(m.Atoms.Well().True)}, Pos: 0, Ctx: -1}
			} else {
				bodyTarget = Ref{Cells: cl.Body, Pos: 0, Ctx: frameIdx}
			}
			bodyOk = Unify(bn, bodyRef, bodyTarget)
		}
		if !bodyOk {
			m.Trail.Unwind(m.Frames, trailMark, 0)
			m.Frames.Restore(framesMark)
			continue
		}
		m.Clauses.Erase(key, cl.ID)
		return cont.Next, false, nil
	}
	return nil, true, nil
}

func biRetractAll(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	ref := m.Deref(arg(goal, 0))
	key, ok := predKeyOf(m, ref)
	if !ok {
		return nil, false, typeError(m, "callable", "")
	}
	pred := m.Clauses.Lookup(key)
	if pred == nil {
		m.Clauses.Ensure(key)
		return cont.Next, false, nil
	}
	for _, cl := range pred.all() {
		trailMark := m.Trail.Len()
		framesMark := m.Frames.Save()
		frameIdx := m.Frames.Push(m.curFrame, nil, cl.NVars, 0, 0)
		if Unify(m.Bindings(), ref, Ref{Cells: cl.Head, Pos: 0, Ctx: frameIdx}) {
			m.Clauses.Erase(key, cl.ID)
		}
		m.Trail.Unwind(m.Frames, trailMark, 0)
		m.Frames.Restore(framesMark)
	}
	return cont.Next, false, nil
}

func biAbolish(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	ref := m.Deref(arg(goal, 0))
	c := ref.cell()
	// abolish/1 expects Name/Arity; '/' shares no well-known slot, so
	// resolve it by name directly here.
	slash, _ := m.Atoms.Lookup("/")
	if c.Tag != TagAtom || c.Arity != 2 || c.Functor != slash {
		return nil, false, typeError(m, "predicate_indicator", "")
	}
	kids := ref.Cells.Children(ref.Pos)
	nameC := m.Deref(Ref{Cells: ref.Cells, Pos: kids[0], Ctx: ref.Ctx}).cell()
	arC := m.Deref(Ref{Cells: ref.Cells, Pos: kids[1], Ctx: ref.Ctx}).cell()
	m.Clauses.Abolish(PredKey{Functor: nameC.Functor, Arity: int(arC.Num)})
	return cont.Next, false, nil
}

func biAtomCodes(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	return atomTextConv(m, goal, cont, true)
}

func biAtomChars(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	return atomTextConv(m, goal, cont, false)
}

// atomTextConv implements atom_codes/2 and atom_chars/2, which differ
// only in whether list elements are character codes (integers) or
// one-character atoms.
func atomTextConv(m *Machine, goal Ref, cont *Cont, codes bool) (*Cont, bool, error) {
	w := m.Atoms.Well()
	aRef := m.Deref(arg(goal, 0))
	ac := aRef.cell()
	bn := m.Bindings()
	if ac.Tag != TagVar {
		var text string
		switch ac.Tag {
		case TagAtom:
			text = m.Atoms.Name(ac.Functor)
		case TagInt:
			text = strconv.FormatInt(ac.Num, 10)
		case TagFloat:
			text = strconv.FormatFloat(ac.Flt, 'g', -1, 64)
		default:
			return nil, false, typeError(m, "atomic", "")
		}
		runes := []rune(text)
		pos := m.Heap.Put(func(b *Builder) {
			b.List(w, len(runes), func(i int) {
				if codes {
					b.Int(int64(runes[i]))
				} else {
					b.Atom(m.Atoms.Intern(string(runes[i])))
				}
			})
		})
		if Unify(bn, arg(goal, 1), Ref{Cells: m.Heap.Cells(), Pos: pos, Ctx: -1}) {
			return cont.Next, false, nil
		}
		return nil, true, nil
	}

	elems, ok := listToSlice(m, arg(goal, 1))
	if !ok {
		return nil, false, instantiationError(m, "atom_codes")
	}
	var sb []rune
	for _, e := range elems {
		ec := m.Deref(e).cell()
		if codes {
			sb = append(sb, rune(ec.Num))
		} else {
			sb = append(sb, []rune(m.Atoms.Name(ec.Functor))...)
		}
	}
	pos := m.Heap.Append(AtomCell(m.Atoms.Intern(string(sb))))
	if Unify(bn, arg(goal, 0), Ref{Cells: m.Heap.Cells(), Pos: pos, Ctx: -1}) {
		return cont.Next, false, nil
	}
	return nil, true, nil
}

func biCharCode(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	bn := m.Bindings()
	aRef := m.Deref(arg(goal, 0))
	if aRef.cell().Tag == TagAtom {
		r := []rune(m.Atoms.Name(aRef.cell().Functor))
		if len(r) != 1 {
			return nil, false, typeError(m, "character", "")
		}
		pos := m.Heap.Append(IntCell(int64(r[0])))
		if Unify(bn, arg(goal, 1), Ref{Cells: m.Heap.Cells(), Pos: pos, Ctx: -1}) {
			return cont.Next, false, nil
		}
		return nil, true, nil
	}
	cRef := m.Deref(arg(goal, 1))
	if cRef.cell().Tag != TagInt {
		return nil, false, instantiationError(m, "char_code")
	}
	pos := m.Heap.Append(AtomCell(m.Atoms.Intern(string(rune(cRef.cell().Num)))))
	if Unify(bn, arg(goal, 0), Ref{Cells: m.Heap.Cells(), Pos: pos, Ctx: -1}) {
		return cont.Next, false, nil
	}
	return nil, true, nil
}

func parseNumberText(s string) (Cell, bool) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return IntCell(n), true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return FloatCell(f), true
	}
	return Cell{}, false
}

func biNumberCodes(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	return numberTextConv(m, goal, cont, true)
}

func biNumberChars(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	return numberTextConv(m, goal, cont, false)
}

func numberTextConv(m *Machine, goal Ref, cont *Cont, codes bool) (*Cont, bool, error) {
	w := m.Atoms.Well()
	bn := m.Bindings()
	nRef := m.Deref(arg(goal, 0))
	nc := nRef.cell()
	if nc.Tag == TagInt || nc.Tag == TagFloat {
		var text string
		if nc.Tag == TagInt {
			text = strconv.FormatInt(nc.Num, 10)
		} else {
			text = strconv.FormatFloat(nc.Flt, 'g', -1, 64)
		}
		runes := []rune(text)
		pos := m.Heap.Put(func(b *Builder) {
			b.List(w, len(runes), func(i int) {
				if codes {
					b.Int(int64(runes[i]))
				} else {
					b.Atom(m.Atoms.Intern(string(runes[i])))
				}
			})
		})
		if Unify(bn, arg(goal, 1), Ref{Cells: m.Heap.Cells(), Pos: pos, Ctx: -1}) {
			return cont.Next, false, nil
		}
		return nil, true, nil
	}

	elems, ok := listToSlice(m, arg(goal, 1))
	if !ok {
		return nil, false, instantiationError(m, "number_codes")
	}
	var sb []rune
	for _, e := range elems {
		ec := m.Deref(e).cell()
		if codes {
			sb = append(sb, rune(ec.Num))
		} else {
			sb = append(sb, []rune(m.Atoms.Name(ec.Functor))...)
		}
	}
	cell, ok := parseNumberText(string(sb))
	if !ok {
		return nil, false, &PrologThrow{Ball: func() Term {
			b := NewBuilder()
			b.Compound(w.Error, 2, func() {
				b.Atom(m.Atoms.Intern("syntax_error"))
				b.Atom(m.Atoms.Intern("illegal_number"))
			})
			return b.Term()
		}()}
	}
	pos := m.Heap.Append(cell)
	if Unify(bn, arg(goal, 0), Ref{Cells: m.Heap.Cells(), Pos: pos, Ctx: -1}) {
		return cont.Next, false, nil
	}
	return nil, true, nil
}

func biAtomNumber(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	bn := m.Bindings()
	aRef := m.Deref(arg(goal, 0))
	if aRef.cell().Tag == TagAtom {
		cell, ok := parseNumberText(m.Atoms.Name(aRef.cell().Functor))
		if !ok {
			return nil, true, nil
		}
		pos := m.Heap.Append(cell)
		if Unify(bn, arg(goal, 1), Ref{Cells: m.Heap.Cells(), Pos: pos, Ctx: -1}) {
			return cont.Next, false, nil
		}
		return nil, true, nil
	}
	nRef := m.Deref(arg(goal, 1))
	nc := nRef.cell()
	var text string
	if nc.Tag == TagInt {
		text = strconv.FormatInt(nc.Num, 10)
	} else if nc.Tag == TagFloat {
		text = strconv.FormatFloat(nc.Flt, 'g', -1, 64)
	} else {
		return nil, false, instantiationError(m, "atom_number")
	}
	pos := m.Heap.Append(AtomCell(m.Atoms.Intern(text)))
	if Unify(bn, arg(goal, 0), Ref{Cells: m.Heap.Cells(), Pos: pos, Ctx: -1}) {
		return cont.Next, false, nil
	}
	return nil, true, nil
}

func biAtomLength(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	aRef := m.Deref(arg(goal, 0))
	if aRef.cell().Tag != TagAtom {
		return nil, false, typeError(m, "atom", "")
	}
	n := len([]rune(m.Atoms.Name(aRef.cell().Functor)))
	pos := m.Heap.Append(IntCell(int64(n)))
	if Unify(m.Bindings(), arg(goal, 1), Ref{Cells: m.Heap.Cells(), Pos: pos, Ctx: -1}) {
		return cont.Next, false, nil
	}
	return nil, true, nil
}

func textOf(m *Machine, ref Ref) (string, bool) {
	ref = m.Deref(ref)
	c := ref.cell()
	switch c.Tag {
	case TagAtom:
		if c.Arity != 0 {
			return "", false
		}
		return m.Atoms.Name(c.Functor), true
	case TagString:
		return c.Str, true
	case TagInt:
		return strconv.FormatInt(c.Num, 10), true
	case TagFloat:
		return strconv.FormatFloat(c.Flt, 'g', -1, 64), true
	default:
		return "", false
	}
}

func biAtomConcat(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	a, aok := textOf(m, arg(goal, 0))
	b, bok := textOf(m, arg(goal, 1))
	bn := m.Bindings()
	if aok && bok {
		pos := m.Heap.Append(AtomCell(m.Atoms.Intern(a + b)))
		if Unify(bn, arg(goal, 2), Ref{Cells: m.Heap.Cells(), Pos: pos, Ctx: -1}) {
			return cont.Next, false, nil
		}
		return nil, true, nil
	}
	whole, ok := textOf(m, arg(goal, 2))
	if !ok {
		return nil, false, instantiationError(m, "atom_concat")
	}
	// Nondeterministic split is not offered here (single deterministic
	// attempt only): this engine package registers the deterministic
	// third-mode; the full backtracking split mode belongs to the
	// surface-level string-utility built-ins spec §1 places out of core
	// scope.
	runes := []rune(whole)
	for i := 0; i <= len(runes); i++ {
		left, right := string(runes[:i]), string(runes[i:])
		trailMark := m.Trail.Len()
		lp := m.Heap.Append(AtomCell(m.Atoms.Intern(left)))
		rp := m.Heap.Append(AtomCell(m.Atoms.Intern(right)))
		if Unify(bn, arg(goal, 0), Ref{Cells: m.Heap.Cells(), Pos: lp, Ctx: -1}) &&
			Unify(bn, arg(goal, 1), Ref{Cells: m.Heap.Cells(), Pos: rp, Ctx: -1}) {
			return cont.Next, false, nil
		}
		m.Trail.Unwind(m.Frames, trailMark, 0)
	}
	return nil, true, nil
}

func biUpcaseAtom(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	return caseAtom(m, goal, cont, true)
}

func biDowncaseAtom(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	return caseAtom(m, goal, cont, false)
}

func caseAtom(m *Machine, goal Ref, cont *Cont, upper bool) (*Cont, bool, error) {
	text, ok := textOf(m, arg(goal, 0))
	if !ok {
		return nil, false, instantiationError(m, "upcase_atom")
	}
	var out string
	if upper {
		out = toUpper(text)
	} else {
		out = toLower(text)
	}
	pos := m.Heap.Append(AtomCell(m.Atoms.Intern(out)))
	if Unify(m.Bindings(), arg(goal, 1), Ref{Cells: m.Heap.Cells(), Pos: pos, Ctx: -1}) {
		return cont.Next, false, nil
	}
	return nil, true, nil
}

func toUpper(s string) string {
	r := []rune(s)
	for i, c := range r {
		if c >= 'a' && c <= 'z' {
			r[i] = c - ('a' - 'A')
		}
	}
	return string(r)
}

func toLower(s string) string {
	r := []rune(s)
	for i, c := range r {
		if c >= 'A' && c <= 'Z' {
			r[i] = c + ('a' - 'A')
		}
	}
	return string(r)
}

// biOnce implements once/1: equivalent to (Goal -> true ; fail), it runs
// Goal and commits to its first solution.
func biOnce(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	inner := arg(goal, 0)
	base := m.Choices.Len()
	sol, err := m.Solve(inner)
	if err != nil {
		return nil, false, err
	}
	m.Choices.CutTo(base, true)
	if !sol.Ok {
		return nil, true, nil
	}
	return cont.Next, false, nil
}

func biHalt0(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	m.Halted = true
	m.HaltCode = 0
	return nil, false, errHalt
}

func biHalt1(m *Machine, goal Ref, cont *Cont) (*Cont, bool, error) {
	c := m.Deref(arg(goal, 0)).cell()
	m.Halted = true
	if c.Tag == TagInt {
		m.HaltCode = int(c.Num)
	}
	return nil, false, errHalt
}

var errHalt = fmt.Errorf("engine: halted")

func compareNumbers(a, b interface{ AsFloat() float64 }) int {
	af, bf := a.AsFloat(), b.AsFloat()
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	default:
		return 0
	}
}
