package engine

// Flags holds the module-level parsing and runtime knobs spec §6 and
// runtime.c's module_new describe: what double-quoted text reads as, whether
// escape sequences are honored, how rationals are parsed and displayed, and
// whether calling an undeclared predicate is an error or a silent failure.
//
// Historically double_quotes defaulted to codes; this engine instead
// defaults to atom, matching modern Trealla (recorded in DESIGN.md as the
// resolution of that Open Question).
type Flags struct {
	// UnknownError, when true, makes a call to an undeclared predicate
	// throw existence_error(procedure, Name/Arity) instead of silently
	// failing (ISO's "unknown" flag, default "error").
	UnknownError bool

	// DoubleQuotes selects how "..." literals are read: "atom", "codes",
	// or "chars". The parser itself is text-in, cells-out and does not
	// consult this directly; the clause loader applies it when handing a
	// parsed string literal to the engine.
	DoubleQuotes string

	// CharacterEscapes enables backslash escapes inside quoted atoms and
	// strings (the lexer in internal/read always honors them; this flag
	// exists so a module can be loaded with them turned off, matching
	// parse.c's configurable escape handling).
	CharacterEscapes bool

	// RationalSyntax selects how a rational number literal like 1r2 is
	// accepted: "natural" (N/D or NrD) or "compatibility" (off). Rational
	// arithmetic beyond is/2's int/float pair is otherwise out of scope.
	RationalSyntax string

	// PreferRationals makes '/' between two integers that don't divide
	// evenly produce a rational rather than a float where the engine
	// supports it; internal/arith currently always produces a float, so
	// this flag is recorded for parity with spec §6 but not yet consulted.
	PreferRationals bool
}

// DefaultFlags returns the flag set a freshly created module starts with.
func DefaultFlags() Flags {
	return Flags{
		UnknownError:     true,
		DoubleQuotes:     "atom",
		CharacterEscapes: true,
		RationalSyntax:   "natural",
		PreferRationals:  false,
	}
}

// Machine is one engine instance: the shared, persistent stores (atoms,
// clauses, builtins) plus the per-query working state (frames, trail,
// choices, heap) spec §9 groups under "instance state, not globals" so that
// a host process can run more than one interpreter, or more than one
// concurrent subquery over the same database, without any package-level
// variables. newSubMachine (task.go) and Clone (used by the embedding API's
// Pool/DB replication) both build a Machine by sharing the first group and
// replacing the second.
type Machine struct {
	Atoms    *Atoms
	Clauses  *Clauses
	Builtins *Builtins

	Frames  *Frames
	Trail   *Trail
	Choices *Choices
	Heap    *Heap

	Flags Flags

	// Streams is the open-stream registry spec §12 describes; core
	// execution never reads or writes through it; it exists for the
	// embedding API's I/O built-ins to share across clones of one module.
	Streams *StreamTable

	tasks *Tasks

	// curFrame is the frame index goal dispatch is currently running
	// under; unifyHead/TCO consult it as the "calling frame" for a
	// freshly pushed or reused frame.
	curFrame int

	// catches is the open catch/3 stack, innermost last.
	catches []catchFrame

	// sysCells backs synthetic bookkeeping goals (like $pop_catch) that
	// need a stable Ref but don't belong on the heap proper, since they
	// must survive a Heap.Truncate back past where they were minted.
	sysCells []Cell

	// resumeCont is the continuation a successful backtrack leaves for
	// drain to pick up next; see dispatch.go's backtrack/drain.
	resumeCont *Cont

	// Halted and HaltCode record a halt/0 or halt/1 call; once Halted is
	// set the Machine must not be driven further.
	Halted   bool
	HaltCode int
}

// New creates a fresh, empty Machine: its own atom pool, clause store, and
// the built-in table every module starts with (core ISO predicates plus the
// findall/bagof/setof/forall family and the cooperative task predicates).
// The embedding API layers its own external-collaborator built-ins
// (I/O, consult, directives, Go-backed Register'd predicates) on top via
// Builtins.Register.
func New() (*Machine, error) {
	atoms := NewAtoms()
	clauses, err := NewClauses()
	if err != nil {
		return nil, err
	}
	builtins := NewBuiltins(atoms)
	registerFindallFamily(builtins, atoms)
	registerTaskBuiltins(builtins, atoms)
	registerClauseBuiltins(builtins, atoms)

	return &Machine{
		Atoms:    atoms,
		Clauses:  clauses,
		Builtins: builtins,
		Frames:   NewFrames(),
		Trail:    &Trail{},
		Choices:  NewChoices(),
		Heap:     NewHeap(),
		Flags:    DefaultFlags(),
		Streams:  NewStreamTable(),
		tasks:    newTasks(),
		curFrame: 0,
	}, nil
}

// Bindings returns the (Frames, Trail) pair Unify and DeepClone need,
// built fresh each call since it is a thin, stateless view over fields
// Machine already owns.
func (m *Machine) Bindings() *Bindings {
	return &Bindings{Frames: m.Frames, Trail: m.Trail}
}

// Deref satisfies Derefer by delegating to the frame store through
// Bindings, the convenience spelling most call sites outside dispatch.go
// use.
func (m *Machine) Deref(ref Ref) Ref {
	return m.Frames.Deref(ref)
}

// Clone returns a sibling Machine sharing this one's atom table, clause
// database and built-in registry but starting with fresh frames, trail,
// choice stack, heap and task list — the same relationship newSubMachine
// gives a spawned task, generalized to the embedding API's Pool/DB replicas.
func (m *Machine) Clone() *Machine {
	return &Machine{
		Atoms:    m.Atoms,
		Clauses:  m.Clauses,
		Builtins: m.Builtins,
		Frames:   NewFrames(),
		Trail:    &Trail{},
		Choices:  NewChoices(),
		Heap:     NewHeap(),
		Flags:    m.Flags,
		Streams:  m.Streams,
		tasks:    newTasks(),
		curFrame: 0,
	}
}

// PushQueryFrame allocates the frame a freshly parsed top-level term (a
// query, or a clause about to be asserted) should be homed under: the
// permanent root frame is always index 0, so this is just Frames.Push
// spelled out for callers outside the package that don't otherwise touch
// frame internals.
func (m *Machine) PushQueryFrame(nvars int) int {
	return m.Frames.Push(0, nil, nvars, 0, 0)
}

// AssertClause stores ref (a whole clause term, optionally ':-'/2) into the
// clause database, used by Consult/ConsultText to load text parsed outside
// the package. It mirrors assertz/1's storeClause exactly, down to sharing
// one variable-renumbering pass across Head and Body.
func (m *Machine) AssertClause(ref Ref, front bool) error {
	_, _, err := storeClause(m, ref, front)
	return err
}

// ResetQuery clears per-query working state (choices, trail position,
// catches) without disturbing the clause database, used between a
// top-level query and the next one so one query's leftover choice points
// never leak into another's. Heap and Frames are intentionally left alone:
// callers that want a fully clean slate use a new Machine (Clone) instead,
// since heap/frame truncation back to zero would invalidate any term the
// caller still holds a Ref into (e.g. a query's own bound variables).
func (m *Machine) ResetQuery() {
	m.Choices = NewChoices()
	m.Trail = &Trail{}
	m.catches = nil
	m.resumeCont = nil
}
