package engine

// CallKey computes the first-argument index key for a call site: goal's
// first argument, dereferenced through bn, reduced to the same indexKey
// shape clause heads are indexed under (spec §5.2). ok is false when the
// first argument is an unbound variable or goal has no arguments, in
// which case every clause is a candidate.
func CallKey(bn *Bindings, goal Term, pos, ctx int) (indexKey, bool) {
	kids := goal.Children(pos)
	if len(kids) == 0 {
		return indexKey{}, false
	}
	ref := bn.Deref(Ref{Cells: goal, Pos: kids[0], Ctx: ctx})
	c := ref.cell()
	switch c.Tag {
	case TagVar:
		return indexKey{}, false
	case TagAtom:
		return indexKey{tag: TagAtom, functor: c.Functor, arity: c.Arity}, true
	case TagInt:
		return indexKey{tag: TagInt, num: c.Num}, true
	case TagFloat:
		return indexKey{tag: TagFloat, num: int64(c.Flt)}, true
	case TagString:
		return indexKey{tag: TagString, str: c.Str}, true
	default:
		return indexKey{}, false
	}
}

// CallKeyRef is CallKey's counterpart when the first argument is already
// in hand as a Ref, avoiding a second Children() call. (The dispatcher
// itself keys calls through CallKeyRef0.)
func CallKeyRef(bn *Bindings, argRef Ref) (indexKey, bool) {
	ref := bn.Deref(argRef)
	c := ref.cell()
	switch c.Tag {
	case TagVar:
		return indexKey{}, false
	case TagAtom:
		return indexKey{tag: TagAtom, functor: c.Functor, arity: c.Arity}, true
	case TagInt:
		return indexKey{tag: TagInt, num: c.Num}, true
	case TagFloat:
		return indexKey{tag: TagFloat, num: int64(c.Flt)}, true
	case TagString:
		return indexKey{tag: TagString, str: c.Str}, true
	default:
		return indexKey{}, false
	}
}
