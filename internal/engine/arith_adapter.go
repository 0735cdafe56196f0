package engine

import "github.com/proliga/prolog/internal/arith"

// arithTerm adapts a dereferenced Ref to arith.Term, the narrow view
// internal/arith needs. One is created per sub-term visited during
// evaluation rather than once up front, since each argument must be
// independently dereferenced through the current bindings.
type arithTerm struct {
	m   *Machine
	ref Ref
}

func (t arithTerm) deref() Ref { return t.m.Deref(t.ref) }

func (t arithTerm) IsVar() bool   { return t.deref().cell().Tag == TagVar }
func (t arithTerm) IsInt() bool   { return t.deref().cell().Tag == TagInt }
func (t arithTerm) Int() int64    { return t.deref().cell().Num }
func (t arithTerm) IsFloat() bool { return t.deref().cell().Tag == TagFloat }
func (t arithTerm) Float() float64 { return t.deref().cell().Flt }

func (t arithTerm) Functor() (string, int, bool) {
	ref := t.deref()
	c := ref.cell()
	if c.Tag != TagAtom {
		return "", 0, false
	}
	return t.m.Atoms.Name(c.Functor), int(c.Arity), true
}

func (t arithTerm) Arg(i int) arith.Term {
	ref := t.deref()
	kids := ref.Cells.Children(ref.Pos)
	return arithTerm{m: t.m, ref: Ref{Cells: ref.Cells, Pos: kids[i], Ctx: ref.Ctx}}
}

// EvalArith evaluates the expression at ref and surfaces any evaluation
// failure as the matching Prolog exception.
func (m *Machine) EvalArith(ref Ref) (arith.Number, error) {
	n, err := arith.Eval(arithTerm{m: m, ref: ref})
	if err == nil {
		return n, nil
	}
	ee, ok := err.(*arith.EvalError)
	if !ok {
		return arith.Number{}, err
	}
	switch ee.Kind {
	case "instantiation_error":
		return arith.Number{}, instantiationError(m, "is")
	case "type_error":
		return arith.Number{}, typeError(m, "evaluable", ee.Detail)
	case "evaluation_error":
		return arith.Number{}, evaluationError(m, ee.Detail)
	case "domain_error":
		return arith.Number{}, domainError(m, ee.Detail, "")
	default:
		return arith.Number{}, evaluationError(m, ee.Detail)
	}
}

// NumberToHeapCell allocates a leaf cell for n on the heap and returns its
// position.
func (m *Machine) NumberToHeapCell(n arith.Number) int {
	if n.IsFloat {
		return m.Heap.Append(FloatCell(n.F))
	}
	return m.Heap.Append(IntCell(n.I))
}
