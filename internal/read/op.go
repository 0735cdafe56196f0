package read

// opType is one of the seven ISO operator classes.
type opType int

const (
	xfx opType = iota
	xfy
	yfx
	fy
	fx
	xf
	yf
)

type opDef struct {
	priority int
	typ      opType
}

// OpTable is a module's operator table (spec §3's "Module... operator
// table"), defaulted to the standard set and extendable by op/3
// directives at consult time.
type OpTable struct {
	infix   map[string]opDef
	prefix  map[string]opDef
	postfix map[string]opDef
}

// DefaultOps returns the standard ISO-plus-common-extensions operator
// table every module starts from.
func DefaultOps() *OpTable {
	t := &OpTable{infix: map[string]opDef{}, prefix: map[string]opDef{}, postfix: map[string]opDef{}}
	add := func(pri int, typ opType, names ...string) {
		for _, n := range names {
			switch typ {
			case xfx, xfy, yfx:
				t.infix[n] = opDef{pri, typ}
			case fy, fx:
				t.prefix[n] = opDef{pri, typ}
			case xf, yf:
				t.postfix[n] = opDef{pri, typ}
			}
		}
	}
	add(1200, xfx, ":-", "-->")
	add(1200, fx, ":-", "?-")
	add(1100, xfy, ";", "|")
	add(1105, xfy, "|")
	add(1050, xfy, "->", "*->")
	add(1000, xfy, ",")
	add(990, xfy, ":=")
	add(900, fy, "\\+")
	add(700, xfx, "=", "\\=", "==", "\\==", "@<", "@>", "@=<", "@>=",
		"is", "=..", "=:=", "=\\=", "<", ">", "=<", ">=", "as", ">:<", ":<")
	add(600, xfy, ":")
	add(500, yfx, "+", "-", "/\\", "\\/", "xor")
	add(500, fx, "?")
	add(400, yfx, "*", "/", "//", "mod", "rem", "div", "<<", ">>")
	add(200, xfx, "**")
	add(200, xfy, "^")
	add(200, fy, "-", "+", "\\")
	add(100, yfx, ".")
	add(1, fx, "$")
	return t
}

func (t *OpTable) Infix(name string) (opDef, bool)   { d, ok := t.infix[name]; return d, ok }
func (t *OpTable) Prefix(name string) (opDef, bool)   { d, ok := t.prefix[name]; return d, ok }
func (t *OpTable) Postfix(name string) (opDef, bool)  { d, ok := t.postfix[name]; return d, ok }

// Define installs or overrides an operator, the effect of op/3.
func (t *OpTable) Define(priority int, typ string, name string) {
	switch typ {
	case "xfx":
		t.infix[name] = opDef{priority, xfx}
	case "xfy":
		t.infix[name] = opDef{priority, xfy}
	case "yfx":
		t.infix[name] = opDef{priority, yfx}
	case "fy":
		t.prefix[name] = opDef{priority, fy}
	case "fx":
		t.prefix[name] = opDef{priority, fx}
	case "xf":
		t.postfix[name] = opDef{priority, xf}
	case "yf":
		t.postfix[name] = opDef{priority, yf}
	}
}
