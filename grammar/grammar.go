// Package grammar builds LALR(1) parse tables from a grammar description.
//
// A grammar is a list of rules loaded from TOML. Each rule carries RuleData
// telling the parser which token supplies a literal, which AST node type the
// reduction synthesizes and which child it merges into instead of creating a
// new node. Build computes First and Follow sets, the LALR item kernels and
// a dense action table in which shift/reduce conflicts become Decide cells
// for the parser to settle with operator precedence.
package grammar

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/emerald-lang/emerald/ast"
	"github.com/emerald-lang/emerald/token"
)

//go:embed emerald.toml
var defaultSource []byte

// DefaultSource returns the embedded Emerald grammar description.
func DefaultSource() []byte {
	return defaultSource
}

// RuleData tells the parser how a reduction shapes the syntax tree.
type RuleData struct {
	// Data is the right-hand token whose literal is captured as the node
	// payload.
	Data token.Kind
	// Node is the node type synthesized by the reduction.
	Node ast.NodeType
	// Merge is the right-hand token whose node is reused as the result; the
	// remaining children are attached to it.
	Merge token.Kind
}

// Rule is one production.
type Rule struct {
	Index int
	Left  token.Kind
	Right []token.Kind
	Data  RuleData
}

func (r Rule) String() string {
	var b strings.Builder
	b.WriteString(r.Left.String())
	b.WriteString(" ->")
	for _, t := range r.Right {
		b.WriteString(" ")
		b.WriteString(t.String())
	}
	return b.String()
}

// Grammar is a validated rule list with its First and Follow sets. Rule 0 is
// always the augmented rule Start -> axiom.
type Grammar struct {
	Axiom  token.Kind
	rules  []Rule
	byLeft map[token.Kind][]int
	first  map[token.Kind]TokenSet
	follow map[token.Kind]TokenSet
}

type description struct {
	Axiom string            `toml:"axiom"`
	Rules []ruleDescription `toml:"rules"`
}

type ruleDescription struct {
	Rule  string `toml:"rule"`
	Node  string `toml:"node"`
	Data  string `toml:"data"`
	Merge string `toml:"merge"`
}

// Default returns the embedded Emerald grammar.
func Default() (*Grammar, error) {
	return Parse(defaultSource)
}

// LoadFile reads a grammar description from disk.
func LoadFile(path string) (*Grammar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read grammar %s: %w", path, err)
	}
	g, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("grammar %s: %w", path, err)
	}
	return g, nil
}

// Parse decodes and validates a TOML grammar description.
func Parse(src []byte) (*Grammar, error) {
	var desc description
	if err := toml.Unmarshal(src, &desc); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	axiom, ok := token.Lookup(desc.Axiom)
	if !ok || !token.IsNonTerminal(axiom) || axiom == token.Start {
		return nil, fmt.Errorf("invalid axiom %q", desc.Axiom)
	}
	rules := make([]Rule, 0, len(desc.Rules))
	for i, rd := range desc.Rules {
		rule, err := parseRule(rd)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		rules = append(rules, rule)
	}
	return New(axiom, rules)
}

func parseRule(rd ruleDescription) (Rule, error) {
	lhs, rhs, found := strings.Cut(rd.Rule, "->")
	if !found {
		return Rule{}, fmt.Errorf("missing '->' in %q", rd.Rule)
	}
	left, ok := token.Lookup(strings.TrimSpace(lhs))
	if !ok || !token.IsNonTerminal(left) {
		return Rule{}, fmt.Errorf("left side %q is not a non-terminal", strings.TrimSpace(lhs))
	}
	rule := Rule{Left: left}
	for _, name := range strings.Fields(rhs) {
		k, ok := token.Lookup(name)
		if !ok || k == token.None || k == token.Start {
			return Rule{}, fmt.Errorf("unknown symbol %q in %q", name, rd.Rule)
		}
		rule.Right = append(rule.Right, k)
	}
	if rd.Node != "" {
		n, ok := ast.LookupNodeType(rd.Node)
		if !ok {
			return Rule{}, fmt.Errorf("unknown node type %q", rd.Node)
		}
		rule.Data.Node = n
	}
	var err error
	if rule.Data.Data, err = rightHandToken(rule, rd.Data); err != nil {
		return Rule{}, err
	}
	if rule.Data.Merge, err = rightHandToken(rule, rd.Merge); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

func rightHandToken(rule Rule, name string) (token.Kind, error) {
	if name == "" {
		return token.None, nil
	}
	k, ok := token.Lookup(name)
	if !ok {
		return token.None, fmt.Errorf("unknown symbol %q", name)
	}
	for _, t := range rule.Right {
		if t == k {
			return k, nil
		}
	}
	return token.None, fmt.Errorf("%s does not appear in %s", name, rule)
}

// New builds a grammar from rules, prepending the augmented start rule and
// computing First and Follow sets.
func New(axiom token.Kind, rules []Rule) (*Grammar, error) {
	g := &Grammar{
		Axiom:  axiom,
		byLeft: map[token.Kind][]int{},
	}
	g.rules = append(g.rules, Rule{Index: 0, Left: token.Start, Right: []token.Kind{axiom}})
	for _, r := range rules {
		r.Index = len(g.rules)
		g.rules = append(g.rules, r)
	}
	for _, r := range g.rules {
		g.byLeft[r.Left] = append(g.byLeft[r.Left], r.Index)
	}
	for _, r := range g.rules {
		for _, t := range r.Right {
			if token.IsNonTerminal(t) && len(g.byLeft[t]) == 0 {
				return nil, fmt.Errorf("non-terminal %s has no rules", t)
			}
		}
	}
	if len(g.byLeft[axiom]) == 0 {
		return nil, fmt.Errorf("axiom %s has no rules", axiom)
	}
	g.computeFirst()
	g.computeFollow()
	return g, nil
}

// Rules returns the productions, augmented rule first.
func (g *Grammar) Rules() []Rule {
	return g.rules
}

// First returns the First set of a symbol. token.None in the result means
// the symbol derives the empty string.
func (g *Grammar) First(k token.Kind) TokenSet {
	if token.IsTerminal(k) {
		var s TokenSet
		s.Add(k)
		return s
	}
	return g.first[k]
}

// Follow returns the Follow set of a non-terminal.
func (g *Grammar) Follow(k token.Kind) TokenSet {
	return g.follow[k]
}

// firstOf returns the First set of a symbol sequence, including token.None
// when the whole sequence is nullable.
func (g *Grammar) firstOf(seq []token.Kind) TokenSet {
	var out TokenSet
	for _, t := range seq {
		f := g.First(t)
		nullable := f.Has(token.None)
		f.Remove(token.None)
		out.Union(f)
		if !nullable {
			return out
		}
	}
	out.Add(token.None)
	return out
}

func (g *Grammar) computeFirst() {
	g.first = map[token.Kind]TokenSet{}
	for changed := true; changed; {
		changed = false
		for _, r := range g.rules {
			set := g.first[r.Left]
			if set.Union(g.firstOf(r.Right)) {
				g.first[r.Left] = set
				changed = true
			}
		}
	}
}

func (g *Grammar) computeFollow() {
	g.follow = map[token.Kind]TokenSet{}
	var seed TokenSet
	seed.Add(token.None)
	seed.Add(token.EOF)
	g.follow[token.Start] = seed
	g.follow[g.Axiom] = seed
	for changed := true; changed; {
		changed = false
		for _, r := range g.rules {
			for i, t := range r.Right {
				if !token.IsNonTerminal(t) {
					continue
				}
				rest := g.firstOf(r.Right[i+1:])
				add := rest
				add.Remove(token.None)
				if rest.Has(token.None) {
					add.Union(g.follow[r.Left])
				}
				set := g.follow[t]
				if set.Union(add) {
					g.follow[t] = set
					changed = true
				}
			}
		}
	}
}
