package trealla

import (
	"fmt"

	"github.com/proliga/prolog/internal/engine"
	"github.com/proliga/prolog/internal/read"
)

// termBuilderAdapter lets internal/read.Parser build directly into an
// engine.Builder: the parser only knows string-named atoms/functors, the
// engine only knows interned Atom offsets, so this is the one place that
// bridges them.
type termBuilderAdapter struct {
	b     *engine.Builder
	atoms *engine.Atoms
	dot   engine.Atom
	nilA  engine.Atom
}

func newTermBuilderAdapter(b *engine.Builder, atoms *engine.Atoms) *termBuilderAdapter {
	w := atoms.Well()
	return &termBuilderAdapter{b: b, atoms: atoms, dot: w.Dot, nilA: w.Nil}
}

func (a *termBuilderAdapter) Atom(name string) int { return a.b.Atom(a.atoms.Intern(name)) }
func (a *termBuilderAdapter) Int(n int64) int      { return a.b.Int(n) }
func (a *termBuilderAdapter) Float(f float64) int  { return a.b.Float(f) }
func (a *termBuilderAdapter) Str(s string) int     { return a.b.Str(s) }
func (a *termBuilderAdapter) Var(id int64) int     { return a.b.Var(id) }

func (a *termBuilderAdapter) Compound(functor string, arity int, fn func()) int {
	return a.b.Compound(a.atoms.Intern(functor), arity, fn)
}

func (a *termBuilderAdapter) List(n int, elemFn func(i int), tailFn func()) {
	var build func(i int)
	build = func(i int) {
		if i == n {
			if tailFn != nil {
				tailFn()
			} else {
				a.b.Atom(a.nilA)
			}
			return
		}
		a.b.Compound(a.dot, 2, func() {
			elemFn(i)
			build(i + 1)
		})
	}
	build(0)
}

var _ read.TermBuilder = (*termBuilderAdapter)(nil)

// parseTermInto parses one `Term .`-terminated clause from text, allocates
// a fresh frame sized to however many variables it used, and returns a Ref
// into it, the same shape tryClauses hands to unifyHead.
func parseTermInto(m *engine.Machine, ops *read.OpTable, text string) (engine.Ref, error) {
	p, err := read.NewParser(text, ops)
	if err != nil {
		return engine.Ref{}, err
	}
	b := engine.NewBuilder()
	adapter := newTermBuilderAdapter(b, m.Atoms)
	nvars, _, err := p.ReadClause(adapter)
	if err != nil {
		return engine.Ref{}, err
	}
	frameIdx := m.PushQueryFrame(nvars)
	pos := m.Heap.Append(b.Term()...)
	return engine.Ref{Cells: m.Heap.Cells(), Pos: pos, Ctx: frameIdx}, nil
}

// termToRef renders t as Prolog source text (reusing marshal, the same
// routine Term.String/Compound.String already rely on) and parses that text
// into the engine's heap, the cheapest way to turn a host-side Term into
// engine cells without hand-rolling a second encoder.
func termToRef(m *engine.Machine, ops *read.OpTable, t Term) (engine.Ref, error) {
	text, err := marshal(t)
	if err != nil {
		return engine.Ref{}, err
	}
	return parseTermInto(m, ops, text+" .")
}

// termFromRef converts a dereferenced engine term back into a host Term,
// the inverse used for reporting query solutions and for handing goals to
// Go-defined predicates.
func termFromRef(m *engine.Machine, ref engine.Ref) Term {
	ref = m.Deref(ref)
	cells := ref.Cells
	c := cells[ref.Pos]
	switch c.Tag {
	case engine.TagVar:
		return Variable{Name: fmt.Sprintf("_G%d_%d", ref.Ctx, c.Num)}
	case engine.TagInt:
		return c.Num
	case engine.TagFloat:
		return c.Flt
	case engine.TagString:
		return c.Str
	case engine.TagAtom:
		w := m.Atoms.Well()
		if c.Arity == 0 {
			if c.Functor == w.Nil {
				return Atom("[]")
			}
			return Atom(m.Atoms.Name(c.Functor))
		}
		if c.Functor == w.Dot && c.Arity == 2 {
			if elems, ok := properList(m, ref, w); ok {
				return elems
			}
		}
		kids := cells.Children(ref.Pos)
		args := make([]Term, len(kids))
		for i, k := range kids {
			args[i] = termFromRef(m, engine.Ref{Cells: cells, Pos: k, Ctx: ref.Ctx})
		}
		return Compound{Functor: Atom(m.Atoms.Name(c.Functor)), Args: args}
	default:
		return nil
	}
}

// ballToTerm converts a frame-independent ball (produced by
// (*Machine).cloneOut for an uncaught throw/1, or the Ball a registered
// Go predicate throws) into a host Term. Unlike termFromRef this never
// dereferences through a frame: a ball's cells carry only placeholder
// variables under the Ctx -1 convention, which do not correspond to any
// live frame's slot store.
func ballToTerm(m *engine.Machine, ball engine.Term) Term {
	if len(ball) == 0 {
		return Atom("error")
	}
	return ballNodeToTerm(m, ball, 0)
}

func ballNodeToTerm(m *engine.Machine, cells engine.Term, pos int) Term {
	c := cells[pos]
	w := m.Atoms.Well()
	switch c.Tag {
	case engine.TagVar:
		return Variable{Name: fmt.Sprintf("_B%d", c.Num)}
	case engine.TagInt:
		return c.Num
	case engine.TagFloat:
		return c.Flt
	case engine.TagString:
		return c.Str
	case engine.TagAtom:
		if c.Arity == 0 {
			if c.Functor == w.Nil {
				return Atom("[]")
			}
			return Atom(m.Atoms.Name(c.Functor))
		}
		if c.Functor == w.Dot && c.Arity == 2 {
			if elems, ok := ballList(m, cells, pos, w); ok {
				return elems
			}
		}
		kids := cells.Children(pos)
		args := make([]Term, len(kids))
		for i, k := range kids {
			args[i] = ballNodeToTerm(m, cells, k)
		}
		return Compound{Functor: Atom(m.Atoms.Name(c.Functor)), Args: args}
	default:
		return nil
	}
}

func ballList(m *engine.Machine, cells engine.Term, pos int, w engine.WellKnown) ([]Term, bool) {
	var elems []Term
	for {
		c := cells[pos]
		if c.Tag == engine.TagAtom && c.Arity == 0 && c.Functor == w.Nil {
			return elems, true
		}
		if !(c.Tag == engine.TagAtom && c.Arity == 2 && c.Functor == w.Dot) {
			return nil, false
		}
		kids := cells.Children(pos)
		elems = append(elems, ballNodeToTerm(m, cells, kids[0]))
		pos = kids[1]
	}
}

func properList(m *engine.Machine, ref engine.Ref, w engine.WellKnown) ([]Term, bool) {
	var elems []Term
	cur := m.Deref(ref)
	for {
		c := cur.Cells[cur.Pos]
		if c.Tag == engine.TagAtom && c.Arity == 0 && c.Functor == w.Nil {
			return elems, true
		}
		if !(c.Tag == engine.TagAtom && c.Arity == 2 && c.Functor == w.Dot) {
			return nil, false
		}
		kids := cur.Cells.Children(cur.Pos)
		elems = append(elems, termFromRef(m, engine.Ref{Cells: cur.Cells, Pos: kids[0], Ctx: cur.Ctx}))
		cur = m.Deref(engine.Ref{Cells: cur.Cells, Pos: kids[1], Ctx: cur.Ctx})
	}
}
