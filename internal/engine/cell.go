package engine

// Tag identifies the variant a Cell's payload carries. Spec §3 enumerates
// these as the universal carrier for every value and sub-term.
type Tag uint8

const (
	TagEmpty Tag = iota
	TagVar
	TagAtom
	TagString
	TagInt
	TagFloat
	TagIndirect
	TagEnd
)

func (t Tag) String() string {
	switch t {
	case TagEmpty:
		return "empty"
	case TagVar:
		return "var"
	case TagAtom:
		return "atom"
	case TagString:
		return "string"
	case TagInt:
		return "int"
	case TagFloat:
		return "float"
	case TagIndirect:
		return "indirect"
	case TagEnd:
		return "end"
	default:
		return "?"
	}
}

// Flag is a bitset of secondary cell properties. Only the subset the engine
// actually consults lives here; parser-only flags (hex/octal literal base,
// small-inline-string) belong to internal/read, which hands the engine
// already-decoded values.
type Flag uint32

const (
	FlagBuiltin Flag = 1 << iota
	// FlagTail marks the last goal cell of a clause body.
	FlagTail
	// FlagTailRec marks a goal that is both FlagTail and calls back into
	// the enclosing clause's own functor — a tail-call-optimization
	// candidate (spec §4.4, §4.7).
	FlagTailRec
	// FlagConstString marks a string payload the engine must never try to
	// mutate in place (mirrors spec §3's "flagged const if non-freeable";
	// Go's GC means there is nothing to free, but aliasing still matters).
	FlagConstString
)

// Cell is the fixed-width tagged record spec §3 describes: a tag, an arity,
// a flag set, the inclusive cell count of the subtree rooted here, and a
// payload that varies by tag.
//
// For a compound cell (Arity > 0) Functor names the principal functor and
// the Arity immediate children follow this cell in pre-order; NbrCells is
// 1 + the sum of the children's NbrCells, the "flat-and-countable"
// invariant spec §3/§8 requires. Leaf cells (Arity == 0) always have
// NbrCells == 1.
type Cell struct {
	Tag      Tag
	Arity    uint8
	Flags    Flag
	NbrCells uint32

	Functor Atom // TagAtom / compound functor name

	Num int64 // integer numerator; var slot index; builtin opcode
	Den int64 // rational denominator (1 for plain integers)
	Flt float64

	Str string // TagString payload
}

// Term is a packed, pre-order array of cells forming a single tree; Term[0]
// is the root and its NbrCells spans the whole slice (spec §3 "Term").
type Term []Cell

// Children returns the index of each direct child of the cell at pos,
// computed by pointer arithmetic over NbrCells rather than by walking
// pointers — the "flat-and-countable" property spec §3 calls out.
func (t Term) Children(pos int) []int {
	root := t[pos]
	if root.Arity == 0 {
		return nil
	}
	kids := make([]int, 0, root.Arity)
	i := pos + 1
	for k := 0; k < int(root.Arity); k++ {
		kids = append(kids, i)
		i += int(t[i].NbrCells)
	}
	return kids
}

// Span returns the sub-slice of t spanning the subtree rooted at pos.
func (t Term) Span(pos int) Term {
	return t[pos : pos+int(t[pos].NbrCells)]
}

// AtomCell builds a single-cell atom term.
func AtomCell(off Atom) Cell {
	return Cell{Tag: TagAtom, NbrCells: 1, Functor: off}
}

// IntCell builds a single-cell integer term (den defaults to 1; rationals
// with den != 1 are constructed directly).
func IntCell(n int64) Cell {
	return Cell{Tag: TagInt, NbrCells: 1, Num: n, Den: 1}
}

// FloatCell builds a single-cell float term.
func FloatCell(f float64) Cell {
	return Cell{Tag: TagFloat, NbrCells: 1, Flt: f}
}

// StringCell builds a single-cell string term.
func StringCell(s string) Cell {
	return Cell{Tag: TagString, NbrCells: 1, Str: s}
}

// VarCell builds a single-cell variable term referencing local slot idx
// within whatever frame ends up as its context.
func VarCell(idx int64) Cell {
	return Cell{Tag: TagVar, NbrCells: 1, Num: idx}
}

// CompoundHead builds the root cell of a compound term; the caller appends
// the children's cell streams immediately after and then fixes up
// NbrCells (see Builder in term.go for the usual way to do this).
func CompoundHead(functor Atom, arity int, nbrCells int) Cell {
	return Cell{Tag: TagAtom, Arity: uint8(arity), Functor: functor, NbrCells: uint32(nbrCells)}
}

// IsCallable reports whether the cell at pos is an atom or compound (i.e.
// something that can appear as a goal or clause head).
func (t Term) IsCallable(pos int) bool {
	tag := t[pos].Tag
	return tag == TagAtom
}

// Indicator returns the (Functor, Arity) pair identifying pos's predicate,
// valid only when IsCallable(pos).
func (t Term) Indicator(pos int) (Atom, int) {
	c := t[pos]
	return c.Functor, int(c.Arity)
}
