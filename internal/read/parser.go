package read

import "fmt"

// TermBuilder is the narrow construction interface the parser targets,
// implemented by an adapter over internal/engine's Builder so this
// package never imports engine (spec §1 keeps the parser an external
// collaborator, not a core dependency).
type TermBuilder interface {
	Atom(name string) int
	Int(n int64) int
	Float(f float64) int
	Str(s string) int
	Var(id int64) int
	Compound(functor string, arity int, fn func()) int
	// List builds a list of n elements via elemFn(i), then calls tailFn
	// to build whatever follows (Nil for a proper list, another element
	// for `[H|T]` parsed as T, etc). tailFn may be nil for [].
	List(n int, elemFn func(i int), tailFn func())
}

// Parser reads one clause or query term at a time from text.
type Parser struct {
	toks []token
	pos  int
	ops  *OpTable
	vars map[string]int64
	next int64
}

// NewParser tokenizes the whole of src up front (consult-sized inputs
// are small enough that this is simpler than streaming, matching the
// teacher's own "load whole file" ConsultText shape).
func NewParser(src string, ops *OpTable) (*Parser, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	return &Parser{toks: toks, ops: ops}, nil
}

func (p *Parser) tok() token  { return p.toks[p.pos] }
func (p *Parser) advance()    { p.pos++ }
func (p *Parser) atEOF() bool { return p.tok().kind == tokEOF }

// ReadClause parses one `Term .`-terminated clause into b, returning the
// number of distinct variables it used (for frame sizing) and false for
// more if input is exhausted.
func (p *Parser) ReadClause(b TermBuilder) (nvars int, more bool, err error) {
	if p.atEOF() {
		return 0, false, nil
	}
	p.vars = map[string]int64{}
	p.next = 0
	thunk, err := p.exprThunk(1200, b)
	if err != nil {
		return 0, false, err
	}
	thunk()
	if p.tok().kind != tokEnd {
		return 0, false, fmt.Errorf("read: expected '.' at token %v", p.tok())
	}
	p.advance()
	return int(p.next), true, nil
}

// Vars returns the name->slot mapping built by the most recent ReadClause
// call, letting a caller report bindings back under their source names.
func (p *Parser) Vars() map[string]int64 {
	return p.vars
}

func (p *Parser) varID(name string) int64 {
	if name == "_" {
		id := p.next
		p.next++
		return id
	}
	if id, ok := p.vars[name]; ok {
		return id
	}
	id := p.next
	p.next++
	p.vars[name] = id
	return id
}

func argMaxPrec(d opDef) (leftMax, rightMax int) {
	switch d.typ {
	case xfx:
		return d.priority - 1, d.priority - 1
	case xfy:
		return d.priority - 1, d.priority
	case yfx:
		return d.priority, d.priority - 1
	}
	return d.priority, d.priority
}

// peekInfixOrPostfixName returns the textual name of the next token if it
// could plausibly be an infix/postfix operator (an atom token, or the
// ',' / '|' punctuation ISO treats as operators in argument position).
func (p *Parser) peekInfixOrPostfixName() (string, bool) {
	t := p.tok()
	switch t.kind {
	case tokAtom:
		return t.text, true
	case tokPunct:
		if t.text == "," || t.text == "|" {
			return t.text, true
		}
	}
	return "", false
}

// primary parses one primary term (atom, number, variable, string,
// parenthesized term, list, curly term, compound, or prefix-operator
// application) and returns a thunk that emits it through b, plus the
// priority that term binds at (0 for anything but a bare prefix-operator
// application without parentheses).
func (p *Parser) primary(maxPrec int, b TermBuilder) (func(), int, error) {
	t := p.tok()
	switch t.kind {
	case tokInt:
		p.advance()
		return func() { b.Int(t.ival) }, 0, nil
	case tokFloat:
		p.advance()
		return func() { b.Float(t.fval) }, 0, nil
	case tokString:
		p.advance()
		return func() { b.Str(t.text) }, 0, nil
	case tokVar:
		p.advance()
		id := p.varID(t.text)
		return func() { b.Var(id) }, 0, nil
	case tokPunct:
		switch t.text {
		case "(":
			p.advance()
			var thunk func()
			var err error
			thunk, err = p.exprThunk(1200, b)
			if err != nil {
				return nil, 0, err
			}
			if p.tok().kind != tokPunct || p.tok().text != ")" {
				return nil, 0, fmt.Errorf("read: expected ')'")
			}
			p.advance()
			return thunk, 0, nil
		case "[":
			return p.list(b)
		case "{":
			p.advance()
			if p.tok().kind == tokPunct && p.tok().text == "}" {
				p.advance()
				return func() { b.Atom("{}") }, 0, nil
			}
			thunk, err := p.exprThunk(1200, b)
			if err != nil {
				return nil, 0, err
			}
			if p.tok().kind != tokPunct || p.tok().text != "}" {
				return nil, 0, fmt.Errorf("read: expected '}'")
			}
			p.advance()
			return func() { b.Compound("{}", 1, thunk) }, 0, nil
		}
		return nil, 0, fmt.Errorf("read: unexpected token %q", t.text)
	case tokAtom:
		name := t.text
		p.advance()
		if p.tok().kind == tokPunct && p.tok().text == "(" && !precededBySpace() {
			p.advance()
			var argThunks []func()
			for {
				th, err := p.exprThunk(999, b)
				if err != nil {
					return nil, 0, err
				}
				argThunks = append(argThunks, th)
				if p.tok().kind == tokPunct && p.tok().text == "," {
					p.advance()
					continue
				}
				break
			}
			if p.tok().kind != tokPunct || p.tok().text != ")" {
				return nil, 0, fmt.Errorf("read: expected ')' closing %s(", name)
			}
			p.advance()
			return func() {
				b.Compound(name, len(argThunks), func() {
					for _, th := range argThunks {
						th()
					}
				})
			}, 0, nil
		}
		if name == "-" && (p.tok().kind == tokInt || p.tok().kind == tokFloat) {
			nt := p.tok()
			p.advance()
			if nt.kind == tokInt {
				return func() { b.Int(-nt.ival) }, 0, nil
			}
			return func() { b.Float(-nt.fval) }, 0, nil
		}
		if d, ok := p.ops.Prefix(name); ok && d.priority <= maxPrec && p.canStartTerm() {
			argMax := d.priority
			if d.typ == fx {
				argMax--
			}
			th, err := p.exprThunk(argMax, b)
			if err != nil {
				return nil, 0, err
			}
			return func() { b.Compound(name, 1, th) }, d.priority, nil
		}
		return func() { b.Atom(name) }, 0, nil
	default:
		return nil, 0, fmt.Errorf("read: unexpected end of input")
	}
}

// exprThunk parses an expression of priority at most maxPrec and returns a
// thunk that emits it, instead of calling the builder immediately, for contexts (argument lists, parens) where the caller
// composes it with others before committing.
func (p *Parser) exprThunk(maxPrec int, b TermBuilder) (func(), error) {
	left, leftPrec, err := p.primary(maxPrec, b)
	if err != nil {
		return nil, err
	}
	var result func()
	err = p.infixLoopThunk(left, leftPrec, maxPrec, b, &result)
	return result, err
}

func (p *Parser) infixLoopThunk(leftThunk func(), leftPrec int, maxPrec int, b TermBuilder, out *func()) error {
	for {
		name, ok := p.peekInfixOrPostfixName()
		if !ok {
			*out = leftThunk
			return nil
		}
		if d, ok := p.ops.Infix(name); ok && d.priority <= maxPrec {
			la, ra := argMaxPrec(d)
			if leftPrec > la {
				*out = leftThunk
				return nil
			}
			p.advance()
			prevLeft := leftThunk
			rightThunk, err := p.exprThunk(ra, b)
			if err != nil {
				return err
			}
			leftThunk = func() {
				b.Compound(name, 2, func() {
					prevLeft()
					rightThunk()
				})
			}
			leftPrec = d.priority
			continue
		}
		if d, ok := p.ops.Postfix(name); ok && d.priority <= maxPrec {
			la := d.priority
			if d.typ == xf {
				la--
			}
			if leftPrec > la {
				*out = leftThunk
				return nil
			}
			p.advance()
			prevLeft := leftThunk
			leftThunk = func() { b.Compound(name, 1, func() { prevLeft() }) }
			leftPrec = d.priority
			continue
		}
		*out = leftThunk
		return nil
	}
}

func (p *Parser) canStartTerm() bool {
	t := p.tok()
	switch t.kind {
	case tokEOF, tokEnd:
		return false
	case tokPunct:
		return t.text == "(" || t.text == "[" || t.text == "{"
	case tokAtom:
		if _, ok := p.ops.Infix(t.text); ok {
			if _, isPrefix := p.ops.Prefix(t.text); !isPrefix {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func (p *Parser) list(b TermBuilder) (func(), int, error) {
	p.advance() // '['
	if p.tok().kind == tokPunct && p.tok().text == "]" {
		p.advance()
		return func() { b.Atom("[]") }, 0, nil
	}
	var elems []func()
	for {
		th, err := p.exprThunk(999, b)
		if err != nil {
			return nil, 0, err
		}
		elems = append(elems, th)
		if p.tok().kind == tokPunct && p.tok().text == "," {
			p.advance()
			continue
		}
		break
	}
	var tail func()
	if p.tok().kind == tokPunct && p.tok().text == "|" {
		p.advance()
		th, err := p.exprThunk(999, b)
		if err != nil {
			return nil, 0, err
		}
		tail = th
	}
	if p.tok().kind != tokPunct || p.tok().text != "]" {
		return nil, 0, fmt.Errorf("read: expected ']'")
	}
	p.advance()
	return func() {
		b.List(len(elems), func(i int) { elems[i]() }, tail)
	}, 0, nil
}

// precededBySpace is always false in this lexer: whitespace is discarded
// during tokenization rather than recorded, so f(X) and f (X) are
// indistinguishable after lexing. This only matters for telling a
// functor application from an atom followed by a parenthesized term,
// which ISO resolves by requiring no space before '('; accepting both
// spellings is a deliberate simplification.
func precededBySpace() bool { return false }
