package grammar

import (
	"fmt"

	"github.com/emerald-lang/emerald/token"
)

// ActionKind is the content of a parse table cell.
type ActionKind uint8

const (
	Error ActionKind = iota
	Accept
	Shift
	Reduce
	// Decide holds both a shift target and a reduce rule; the parser picks
	// one with the operator precedence table.
	Decide
)

func (k ActionKind) String() string {
	switch k {
	case Error:
		return "error"
	case Accept:
		return "accept"
	case Shift:
		return "shift"
	case Reduce:
		return "reduce"
	case Decide:
		return "decide"
	}
	return fmt.Sprintf("ActionKind(%d)", uint8(k))
}

// Action is one parse table cell. For non-terminal columns a Shift action is
// the goto edge.
type Action struct {
	Kind   ActionKind `cbor:"1,keyasint"`
	Shift  int32      `cbor:"2,keyasint"`
	Reduce int32      `cbor:"3,keyasint"`
}

// Table is a dense state x token action table.
type Table struct {
	axiom     token.Kind
	states    int
	width     int
	actions   []Action
	rules     []Rule
	decides   int
	conflicts int
}

func newTable(axiom token.Kind, states int, rules []Rule) *Table {
	return &Table{
		axiom:   axiom,
		states:  states,
		width:   token.Count,
		actions: make([]Action, states*token.Count),
		rules:   rules,
	}
}

func (t *Table) set(state int, k token.Kind, a Action) {
	t.actions[state*t.width+int(k)] = a
}

// Action returns the cell for a state and token.
func (t *Table) Action(state int, k token.Kind) Action {
	if state < 0 || state >= t.states || int(k) >= t.width {
		return Action{}
	}
	return t.actions[state*t.width+int(k)]
}

// States returns the number of parser states.
func (t *Table) States() int { return t.states }

// Rules returns the productions the table reduces by.
func (t *Table) Rules() []Rule { return t.rules }

// Rule returns production i.
func (t *Table) Rule(i int) Rule { return t.rules[i] }

// Axiom returns the grammar's start symbol.
func (t *Table) Axiom() token.Kind { return t.axiom }

// Decides returns the number of shift/reduce cells left to the parser.
func (t *Table) Decides() int { return t.decides }

// Conflicts returns the number of reduce/reduce conflicts resolved while
// building.
func (t *Table) Conflicts() int { return t.conflicts }

// Expected returns the terminals that have an action in state.
func (t *Table) Expected(state int) []token.Kind {
	var out []token.Kind
	for k := token.EOF; token.IsTerminal(k); k++ {
		if t.Action(state, k).Kind != Error {
			out = append(out, k)
		}
	}
	return out
}
