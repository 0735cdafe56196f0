package engine

import "fmt"

// PrologThrow carries a ball thrown by throw/1 or raised internally by a
// builtin (instantiation_error, type_error, etc. — spec §4.9's uniform
// "error(FormalError, Context)" shape) up through Go's own error-return
// convention, the Result-like restructuring spec §9 calls for in place
// of the original's setjmp/longjmp unwind.
type PrologThrow struct {
	Ball Term
}

// Error satisfies the error interface with a generic message; rendering
// Ball as Prolog text needs an Atoms table this type deliberately doesn't
// carry a reference to (it would tie every error value to one Machine's
// lifetime) — callers that want the printed form render Ball themselves
// against their Machine's atom table.
func (e *PrologThrow) Error() string {
	return fmt.Sprintf("prolog exception (%d cells)", len(e.Ball))
}

// unwindToCatch walks the machine's open catch/3 frames from innermost to
// outermost looking for one whose Catcher unifies with err's ball. The
// first match wins: its choice/trail/heap state is restored, the matched
// frame and everything nested inside it are discarded, and Recovery
// becomes the continuation to run next. No match means err propagates to
// the caller unchanged.
func (m *Machine) unwindToCatch(err error) (*Cont, error) {
	pt, ok := err.(*PrologThrow)
	if !ok {
		return nil, err
	}

	for len(m.catches) > 0 {
		frame := m.catches[len(m.catches)-1]
		m.catches = m.catches[:len(m.catches)-1]

		m.Choices.CutTo(frame.choiceMark, true)
		m.Trail.Unwind(m.Frames, frame.trailMark, 0)
		m.Heap.Truncate(frame.heapMark)

		ballPos := m.Heap.Put(func(b *Builder) {
			seen := map[VarRef]int64{}
			var next int64
			DeepClone(noopDerefer{}, b, pt.Ball, 0, -1, seen, &next)
		})
		ballRef := Ref{Cells: m.Heap.Cells(), Pos: ballPos, Ctx: -1}

		bn := m.Bindings()
		if Unify(bn, frame.catcher, ballRef) {
			return pushGoal(frame.recovery, m.Choices.Len(), frame.cont), nil
		}
		m.Trail.Unwind(m.Frames, frame.trailMark, 0)
	}
	return nil, err
}

// noopDerefer treats every cell as already dereferenced, used when
// cloning a ball that was itself already produced by cloneOut (and so
// contains no TagVar referencing a live frame, only the clone's own
// placeholder variables, which are never bound).
type noopDerefer struct{}

func (noopDerefer) Deref(ref Ref) Ref { return ref }

func throwTerm(m *Machine, functor string, args ...func(b *Builder)) *PrologThrow {
	b := NewBuilder()
	errAtom := m.Atoms.Intern(functor)
	ctxAtom := m.Atoms.Intern("$ctx")
	b.Compound(m.Atoms.Well().Error, 2, func() {
		if len(args) == 0 {
			b.Atom(errAtom)
		} else {
			b.Compound(errAtom, len(args), func() {
				for _, a := range args {
					a(b)
				}
			})
		}
		b.Atom(ctxAtom)
	})
	return &PrologThrow{Ball: b.Term()}
}

func instantiationError(m *Machine, _ string) error {
	b := NewBuilder()
	b.Compound(m.Atoms.Well().Error, 2, func() {
		b.Atom(m.Atoms.Intern("instantiation_error"))
		b.Atom(m.Atoms.Intern("$ctx"))
	})
	return &PrologThrow{Ball: b.Term()}
}

func typeErrorTerm(m *Machine, expected string, got Ref) error {
	return throwTerm(m, "type_error", func(b *Builder) {
		b.Atom(m.Atoms.Intern(expected))
	}, func(b *Builder) {
		cloneInto(m, b, got)
	})
}

func typeError(m *Machine, expected, culprit string) error {
	return throwTerm(m, "type_error", func(b *Builder) {
		b.Atom(m.Atoms.Intern(expected))
	}, func(b *Builder) {
		b.Atom(m.Atoms.Intern(culprit))
	})
}

func domainError(m *Machine, domain, culprit string) error {
	return throwTerm(m, "domain_error", func(b *Builder) {
		b.Atom(m.Atoms.Intern(domain))
	}, func(b *Builder) {
		b.Atom(m.Atoms.Intern(culprit))
	})
}

func existenceError(m *Machine, kind, culprit string) error {
	return throwTerm(m, "existence_error", func(b *Builder) {
		b.Atom(m.Atoms.Intern(kind))
	}, func(b *Builder) {
		b.Atom(m.Atoms.Intern(culprit))
	})
}

func permissionError(m *Machine, op, kind, culprit string) error {
	return throwTerm(m, "permission_error", func(b *Builder) {
		b.Atom(m.Atoms.Intern(op))
	}, func(b *Builder) {
		b.Atom(m.Atoms.Intern(kind))
	}, func(b *Builder) {
		b.Atom(m.Atoms.Intern(culprit))
	})
}

func evaluationError(m *Machine, what string) error {
	return throwTerm(m, "evaluation_error", func(b *Builder) {
		b.Atom(m.Atoms.Intern(what))
	})
}

func resourceError(m *Machine, what string) error {
	return throwTerm(m, "resource_error", func(b *Builder) {
		b.Atom(m.Atoms.Intern(what))
	})
}
