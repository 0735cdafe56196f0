package engine

// Ref locates a sub-term: a cell stream, the index of its root cell within
// that stream, and the frame context that gives meaning to any Var cells
// inside it. This is spec's "(cell, context) pair" made concrete.
type Ref struct {
	Cells Term
	Pos   int
	Ctx   int
}

func (r Ref) cell() Cell { return r.Cells[r.Pos] }

// VarRef names one logical variable: a frame index plus a local slot
// index within that frame.
type VarRef struct {
	Frame int
	Slot  int
}

// Slot is the backing storage for one logical variable. An unbound slot
// has Bound == false; a bound slot's Value names where its binding lives.
type Slot struct {
	Bound bool
	Value Ref
}

// Frame is an activation record: the caller to return to, how many local
// variable slots it owns, and whether any choice point still depends on
// it (which disables frame-reuse TCO, spec §4.4).
type Frame struct {
	Prev       int // index of the calling frame, -1 for the root
	Return     *Cont
	NSlots     int
	Base       int // base index into the slot store
	Overflow   int // base index of slots appended after the frame was topmost, or -1
	OverflowN  int
	AnyChoices bool
	Functor    Atom // for TCO's "calls back into its own clause" check
	Arity      int
}

// Frames is the LIFO stack of activation records plus their backing slot
// store. Slots live in one contiguous, growable array so that
// create_vars(n) can cheaply extend the top frame in place (spec §4.4);
// once a frame is no longer topmost, its extra slots go to the overflow
// region at the current top instead.
type Frames struct {
	frames []Frame
	slots  []Slot
}

// NewFrames returns an empty frame stack with a single root frame (no
// caller, no local variables) so curr_frame always has somewhere to point.
func NewFrames() *Frames {
	fr := &Frames{}
	fr.frames = append(fr.frames, Frame{Prev: -1, Overflow: -1})
	return fr
}

// Push allocates a new frame with n uninitialized (unbound) slots and
// returns its index.
func (fr *Frames) Push(prev int, ret *Cont, n int, functor Atom, arity int) int {
	base := len(fr.slots)
	fr.slots = append(fr.slots, make([]Slot, n)...)
	fr.frames = append(fr.frames, Frame{
		Prev: prev, Return: ret, NSlots: n, Base: base, Overflow: -1,
		Functor: functor, Arity: arity,
	})
	return len(fr.frames) - 1
}

// Reuse overwrites the frame at idx in place for tail-call optimization:
// its slot count and base are replaced (the old slots are abandoned, the
// new ones freshly zeroed) but its index in the stack, and therefore every
// VarRef pointing elsewhere at it, is unchanged.
func (fr *Frames) Reuse(idx int, ret *Cont, n int, functor Atom, arity int) {
	base := len(fr.slots)
	fr.slots = append(fr.slots, make([]Slot, n)...)
	f := &fr.frames[idx]
	f.Return = ret
	f.NSlots = n
	f.Base = base
	f.Overflow = -1
	f.OverflowN = 0
	f.AnyChoices = false
	f.Functor = functor
	f.Arity = arity
}

// IsTop reports whether frame idx is the most recently pushed frame still
// eligible for in-place extension (create_vars) or reuse (TCO).
func (fr *Frames) IsTop(idx int) bool { return idx == len(fr.frames)-1 }

// ReuseFrom completes tail-call-optimized frame reuse (spec §4.4): dst
// (the calling frame, already live further down the stack) takes over
// the slot range and predicate identity just allocated for the tentative
// topmost frame src, and src's now-redundant frame-stack entry is
// dropped. src must be the topmost frame (checked by the caller via
// IsTop before committing to this path); every VarRef that already names
// dst by its frame index keeps resolving correctly since dst's index
// never changes, only what it points at.
func (fr *Frames) ReuseFrom(dst, src int) {
	sf := fr.frames[src]
	df := &fr.frames[dst]
	df.NSlots = sf.NSlots
	df.Base = sf.Base
	df.Overflow = sf.Overflow
	df.OverflowN = sf.OverflowN
	df.Functor = sf.Functor
	df.Arity = sf.Arity
	df.AnyChoices = false
	fr.frames = fr.frames[:src]
}

// MarkChoice flags frame idx as choice-live: some choice point now depends
// on its bindings surviving, which disables frame-reuse TCO for it until
// that frame is popped again (spec §4.4).
func (fr *Frames) MarkChoice(idx int) {
	if idx >= 0 && idx < len(fr.frames) {
		fr.frames[idx].AnyChoices = true
	}
}

// HasChoices reports whether frame idx has been marked choice-live since
// it was pushed or last reused.
func (fr *Frames) HasChoices(idx int) bool {
	return fr.frames[idx].AnyChoices
}

// Indicator returns the (Functor, Arity) frame idx was pushed or reused
// for, the pair TCO's "calls back into its own clause" check compares
// against the callee's predicate key.
func (fr *Frames) Indicator(idx int) (Atom, int) {
	f := &fr.frames[idx]
	return f.Functor, f.Arity
}

// CreateVars grows frame idx by n slots, per spec §4.4: appended in place
// if the frame is still topmost, else placed at the current top and
// tracked via the frame's Overflow base.
func (fr *Frames) CreateVars(idx int, n int) {
	f := &fr.frames[idx]
	if fr.IsTop(idx) && f.Overflow == -1 {
		fr.slots = append(fr.slots, make([]Slot, n)...)
		f.NSlots += n
		return
	}
	base := len(fr.slots)
	fr.slots = append(fr.slots, make([]Slot, n)...)
	if f.Overflow == -1 {
		f.Overflow = base
	}
	f.NSlots += n
	f.OverflowN += n
}

// slotIndex resolves (frame, local) to an absolute index into fr.slots,
// branching on the overflow region per spec §4.4's GET_SLOT.
func (fr *Frames) slotIndex(frame, local int) int {
	f := &fr.frames[frame]
	if local < f.NSlots-f.OverflowN || f.Overflow == -1 {
		return f.Base + local
	}
	return f.Overflow + (local - (f.NSlots - f.OverflowN))
}

// Get returns the slot for (frame, local).
func (fr *Frames) Get(frame, local int) Slot {
	return fr.slots[fr.slotIndex(frame, local)]
}

// Bind records that (frame, local) is now bound to value. Returns the
// absolute slot index, which is what the trail needs to undo it later.
func (fr *Frames) Bind(frame, local int, value Ref) int {
	i := fr.slotIndex(frame, local)
	fr.slots[i] = Slot{Bound: true, Value: value}
	return i
}

// Unbind resets the slot at absolute index i back to unbound (used by
// trail rewind). A pinned slot (spec §4.8) must never reach this.
func (fr *Frames) Unbind(i int) {
	fr.slots[i] = Slot{}
}

// UnbindLogical resets (frame, local) rather than an absolute index.
func (fr *Frames) UnbindLogical(frame, local int) {
	fr.Unbind(fr.slotIndex(frame, local))
}

// Mark captures the current frame/slot stack depths for a choice point.
type Mark struct {
	Frames int
	Slots  int
}

// Save returns the current stack depths.
func (fr *Frames) Save() Mark {
	return Mark{Frames: len(fr.frames), Slots: len(fr.slots)}
}

// Restore truncates the frame and slot stacks back to a prior Mark. Called
// on backtracking; any frame above the mark is, by construction, no longer
// reachable from any live choice point or binding.
func (fr *Frames) Restore(m Mark) {
	fr.frames = fr.frames[:m.Frames]
	fr.slots = fr.slots[:m.Slots]
}

// Deref chases ref through variable bindings until it reaches a non-Var
// cell or an unbound Var, implementing spec §4.4's deref_var. Indirection
// (spec's TagIndirect) is modeled by a bound Slot's Value simply pointing
// at a different Cells/Ctx pair, so TagIndirect cells never need to occur
// in a stream this package builds.
func (fr *Frames) Deref(ref Ref) Ref {
	for {
		c := ref.cell()
		if c.Tag != TagVar {
			return ref
		}
		if ref.Ctx == -1 {
			// A Ctx of -1 names a frame-independent cell (spec §4.2's
			// deep_clone_term output: a thrown ball, a findall/bagof/setof
			// result, anything cloneOut produced) rather than a real
			// activation record, so there is no frame to index a slot
			// out of. Such a variable is always treated as fresh and
			// permanently unbound — see Bindings.bind's matching case.
			return ref
		}
		slot := fr.Get(ref.Ctx, int(c.Num))
		if !slot.Bound {
			return ref
		}
		ref = slot.Value
	}
}

var _ Derefer = (*Frames)(nil)
