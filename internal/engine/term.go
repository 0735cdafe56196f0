package engine

// Builder assembles a flat, pre-order Term bottom-up: push leaves and
// compounds, and NbrCells is fixed up automatically from the number of
// cells contributed by each child. It's the usual way internal/read and
// the clause compiler turn a parsed AST into the cell stream spec §3
// requires.
type Builder struct {
	cells []Cell
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

// Leaf appends a single-cell (non-compound) term and returns its index.
func (b *Builder) Leaf(c Cell) int {
	c.NbrCells = 1
	b.cells = append(b.cells, c)
	return len(b.cells) - 1
}

// Atom appends a 0-arity atom.
func (b *Builder) Atom(off Atom) int { return b.Leaf(AtomCell(off)) }

// Int appends an integer leaf.
func (b *Builder) Int(n int64) int { return b.Leaf(IntCell(n)) }

// Float appends a float leaf.
func (b *Builder) Float(f float64) int { return b.Leaf(FloatCell(f)) }

// Str appends a string leaf.
func (b *Builder) Str(s string) int { return b.Leaf(StringCell(s)) }

// Var appends a variable leaf bound to local slot idx.
func (b *Builder) Var(idx int64) int { return b.Leaf(VarCell(idx)) }

// Compound reserves a compound root cell; fn must build each of the arity
// children in order (each child call returns its own index, which the
// caller discards — only the root index matters to callers of Compound).
// NbrCells on the root is computed from how many cells fn actually wrote.
func (b *Builder) Compound(functor Atom, arity int, fn func()) int {
	root := len(b.cells)
	b.cells = append(b.cells, CompoundHead(functor, arity, 1))
	fn()
	b.cells[root].NbrCells = uint32(len(b.cells) - root)
	return root
}

// List builds a canonical '.'(H, '.'(H2, ... [])) list from elems, each
// built by the corresponding elemFn. w.Dot/w.Nil supply the functor names.
func (b *Builder) List(w WellKnown, n int, elemFn func(i int)) int {
	if n == 0 {
		return b.Atom(w.Nil)
	}
	var build func(i int) int
	build = func(i int) int {
		if i == n {
			return b.Atom(w.Nil)
		}
		return b.Compound(w.Dot, 2, func() {
			elemFn(i)
			build(i + 1)
		})
	}
	return build(0)
}

// Term returns the finished, immutable cell stream.
func (b *Builder) Term() Term { return Term(b.cells) }

// Derefer resolves a Ref through whatever variable bindings are currently
// live — implemented by the engine's Bindings store. DeepClone and the
// unifier only need this much of it.
type Derefer interface {
	Deref(ref Ref) Ref
}

// DeepClone walks src (rooted at pos, under context ctx), dereferencing
// every variable it meets through m, and emits a value-equivalent,
// frame-independent copy into dst. Unbound variables encountered are
// copied as fresh heap-local placeholders tracked in seen, so that two
// occurrences of the same source variable become the same placeholder in
// the copy (required for findall/assert to preserve sharing within one
// template). List spines are walked and dereferenced into an explicit
// slice first (see cloneList); building the copy still nests one Go call
// per spine node.
func DeepClone(m Derefer, dst *Builder, cells Term, pos, ctx int, seen map[VarRef]int64, nextVar *int64) {
	cloneList(m, dst, cells, pos, ctx, seen, nextVar)
}

func cloneOne(m Derefer, dst *Builder, cells Term, pos, ctx int, seen map[VarRef]int64, nextVar *int64) int {
	ref := m.Deref(Ref{Cells: cells, Pos: pos, Ctx: ctx})
	c := ref.Cells[ref.Pos]
	switch c.Tag {
	case TagVar:
		vr := VarRef{Frame: ref.Ctx, Slot: int(c.Num)}
		if id, ok := seen[vr]; ok {
			return dst.Var(id)
		}
		id := *nextVar
		*nextVar++
		seen[vr] = id
		return dst.Var(id)
	case TagAtom:
		if c.Arity == 0 {
			return dst.Atom(c.Functor)
		}
		kids := ref.Cells.Children(ref.Pos)
		return dst.Compound(c.Functor, int(c.Arity), func() {
			for _, k := range kids {
				cloneOne(m, dst, ref.Cells, k, ref.Ctx, seen, nextVar)
			}
		})
	case TagInt:
		return dst.Leaf(Cell{Tag: TagInt, Num: c.Num, Den: c.Den})
	case TagFloat:
		return dst.Float(c.Flt)
	case TagString:
		return dst.Str(c.Str)
	default:
		return dst.Leaf(Cell{Tag: c.Tag})
	}
}

// cloneList is cloneOne specialized for a right-nested chain of one binary
// functor, such as a '.'/2 list spine: the chain is walked iteratively into
// a slice, but the copy is then built by one nested Go call per node, so
// Go-stack usage still grows with list length.
func cloneList(m Derefer, dst *Builder, cells Term, pos, ctx int, seen map[VarRef]int64, nextVar *int64) int {
	ref := m.Deref(Ref{Cells: cells, Pos: pos, Ctx: ctx})
	c := ref.Cells[ref.Pos]
	if c.Tag != TagAtom || c.Arity != 2 {
		return cloneOne(m, dst, cells, pos, ctx, seen, nextVar)
	}
	// Peel off a run of list cells node-by-node using an explicit slice as
	// a work stack instead of Go-stack recursion.
	type pending struct {
		head Ref
	}
	var spine []pending
	cur := ref
	for {
		cc := cur.Cells[cur.Pos]
		if cc.Tag != TagAtom || cc.Arity != 2 || cc.Functor != c.Functor {
			break
		}
		kids := cur.Cells.Children(cur.Pos)
		head := m.Deref(Ref{Cells: cur.Cells, Pos: kids[0], Ctx: cur.Ctx})
		spine = append(spine, pending{head: head})
		tail := m.Deref(Ref{Cells: cur.Cells, Pos: kids[1], Ctx: cur.Ctx})
		cur = tail
	}
	// The spine is a right-nested chain of the root's own binary functor
	// ('.'/2 for a list); the first node of any other shape is the tail.
	var build func(i int) int
	build = func(i int) int {
		if i == len(spine) {
			return cloneOne(m, dst, cur.Cells, cur.Pos, cur.Ctx, seen, nextVar)
		}
		h := spine[i].head
		return dst.Compound(c.Functor, 2, func() {
			cloneOne(m, dst, h.Cells, h.Pos, h.Ctx, seen, nextVar)
			build(i + 1)
		})
	}
	return build(0)
}
