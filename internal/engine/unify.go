package engine

// Bindings bundles the two stores a unification pass needs: the frame
// stack a Var cell's slot index is relative to, and the trail it must
// record every new binding on. Machine.Bindings builds one over the
// machine's own stores; tests construct one directly.
type Bindings struct {
	Frames *Frames
	Trail  *Trail
}

// Deref satisfies Derefer by delegating to the frame store.
func (bn *Bindings) Deref(ref Ref) Ref { return bn.Frames.Deref(ref) }

// bind records that the variable named by ref (which must already have
// been derefed to an unbound Var cell) now holds value, pushing a trail
// entry so backtracking can undo it.
//
// ref.Ctx == -1 names a frame-independent placeholder variable (see
// Frames.Deref) rather than a slot in a real frame: there is nothing to
// write it into and nothing will ever look it up again once the catch/3
// or findall/bagof/setof call that produced it returns, so binding one is
// a no-op — the unification that called bind still succeeds, it simply
// has nothing to record.
func (bn *Bindings) bind(ref Ref, value Ref) {
	if ref.Ctx == -1 {
		return
	}
	c := ref.cell()
	i := bn.Frames.Bind(ref.Ctx, int(c.Num), value)
	bn.Trail.entries = append(bn.Trail.entries, TrailEntry{Frame: ref.Ctx, Slot: int(c.Num)})
	_ = i
}

// olderThan reports whether a is the variable that should survive a
// var-var binding in preference to b, per spec §4.5's rule of binding the
// more recently created (generally deeper-context) variable to the older
// one, so that dereferencing a live variable never needs to cross out of
// a frame that has since been reclaimed. Frame index is used as the proxy
// for "age": lower frame index was pushed first and so is older.
func olderThan(a, b Ref) bool {
	if a.Ctx != b.Ctx {
		return a.Ctx < b.Ctx
	}
	return a.cell().Num < b.cell().Num
}

// Unify attempts to make x and y equal by binding unbound variables,
// recording every binding on the trail, and returns whether it succeeded.
// On failure, bindings already made before the mismatch was discovered are
// left in place for the caller to undo via Trail.Unwind back to a mark
// taken before the call — Unify itself does not roll back partial work,
// matching spec §4.5's description of the case table (the caller is
// always a choice-point-guarded context that can cheaply unwind).
func Unify(bn *Bindings, x Ref, y Ref) bool {
	x = bn.Deref(x)
	y = bn.Deref(y)

	xc, yc := x.cell(), y.cell()

	if xc.Tag == TagVar && yc.Tag == TagVar {
		if x.Ctx == y.Ctx && xc.Num == yc.Num {
			return true
		}
		if olderThan(x, y) {
			bn.bind(y, x)
		} else {
			bn.bind(x, y)
		}
		return true
	}
	if xc.Tag == TagVar {
		bn.bind(x, y)
		return true
	}
	if yc.Tag == TagVar {
		bn.bind(y, x)
		return true
	}

	if xc.Tag != yc.Tag {
		return numericCrossUnify(xc, yc)
	}

	switch xc.Tag {
	case TagAtom:
		if xc.Functor != yc.Functor || xc.Arity != yc.Arity {
			return false
		}
		if xc.Arity == 0 {
			return true
		}
		xk, yk := x.Cells.Children(x.Pos), y.Cells.Children(y.Pos)
		for i := range xk {
			if !Unify(bn, Ref{Cells: x.Cells, Pos: xk[i], Ctx: x.Ctx}, Ref{Cells: y.Cells, Pos: yk[i], Ctx: y.Ctx}) {
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
		return false
	}
}

// numericCrossUnify handles the cross-tag case that could look unifiable:
// a would-be integer and float never unify (spec keeps them
// strictly distinct, unlike arithmetic comparison which does coerce), so
// this always fails — kept as a named step so the reason is legible at
// the call site rather than folded into a bare "return false".
func numericCrossUnify(_, _ Cell) bool { return false }

// Occurs reports whether the variable named by vr occurs anywhere within
// ref (after dereferencing), used only by unify_with_occurs_check/2 —
// spec marks plain unify/2 as not performing this check by default.
func Occurs(bn *Bindings, vr VarRef, ref Ref) bool {
	ref = bn.Deref(ref)
	c := ref.cell()
	if c.Tag == TagVar {
		return ref.Ctx == vr.Frame && int(c.Num) == vr.Slot
	}
	if c.Tag != TagAtom || c.Arity == 0 {
		return false
	}
	for _, k := range ref.Cells.Children(ref.Pos) {
		if Occurs(bn, vr, Ref{Cells: ref.Cells, Pos: k, Ctx: ref.Ctx}) {
			return true
		}
	}
	return false
}
