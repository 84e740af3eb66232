package grammar

import (
	"encoding/binary"
	"sort"

	"github.com/rs/zerolog"

	"github.com/emerald-lang/emerald/token"
)

// item is an LALR(1) item: a rule, a dot position and a lookahead set.
type item struct {
	rule int32
	dot  int32
	la   TokenSet
}

// itemPool holds the items of one closure computation. Released slots are
// recycled by the next closure so building a table does not allocate an item
// per visit.
type itemPool struct {
	items []item
	free  []int32
}

func (p *itemPool) alloc(it item) int32 {
	if n := len(p.free); n > 0 {
		idx := p.free[n-1]
		p.free = p.free[:n-1]
		p.items[idx] = it
		return idx
	}
	p.items = append(p.items, it)
	return int32(len(p.items) - 1)
}

func (p *itemPool) release(indices []int32) {
	p.free = append(p.free, indices...)
}

// kernel is one parser state: its kernel items sorted by (rule, dot) and
// the goto edges leaving it.
type kernel struct {
	items       []item
	transitions map[token.Kind]int
}

type itemKey struct {
	rule, dot int32
}

type builder struct {
	g       *Grammar
	pool    itemPool
	kernels []*kernel
	index   map[string]int
}

func coreKey(items []item) string {
	buf := make([]byte, 0, len(items)*8)
	for _, it := range items {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(it.rule))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(it.dot))
	}
	return string(buf)
}

// closure expands kernel items with the items of every non-terminal that
// follows a dot. Items equal in rule and dot are merged by unioning their
// lookaheads, and a merged item whose lookahead grew is processed again.
func (b *builder) closure(kernelItems []item) []item {
	pos := make(map[itemKey]int32, len(kernelItems)*4)
	order := make([]int32, 0, len(kernelItems)*4)
	work := make([]int32, 0, len(kernelItems)*4)
	for _, it := range kernelItems {
		idx := b.pool.alloc(it)
		pos[itemKey{it.rule, it.dot}] = idx
		order = append(order, idx)
		work = append(work, idx)
	}
	for len(work) > 0 {
		idx := work[len(work)-1]
		work = work[:len(work)-1]
		it := b.pool.items[idx]
		rule := b.g.rules[it.rule]
		if int(it.dot) >= len(rule.Right) {
			continue
		}
		next := rule.Right[it.dot]
		if !token.IsNonTerminal(next) {
			continue
		}
		la := b.g.firstOf(rule.Right[it.dot+1:])
		if la.Has(token.None) {
			la.Remove(token.None)
			la.Union(it.la)
		}
		for _, r := range b.g.byLeft[next] {
			key := itemKey{int32(r), 0}
			if j, ok := pos[key]; ok {
				if b.pool.items[j].la.Union(la) {
					work = append(work, j)
				}
				continue
			}
			j := b.pool.alloc(item{rule: int32(r), la: la})
			pos[key] = j
			order = append(order, j)
			work = append(work, j)
		}
	}
	out := make([]item, len(order))
	for i, idx := range order {
		out[i] = b.pool.items[idx]
	}
	b.pool.release(order)
	return out
}

// build computes the LALR(1) kernels. Targets with the same core are
// unified; when unification grows a target's lookaheads the target is queued
// again so the growth propagates to its successors.
func (b *builder) build() {
	var startLA TokenSet
	startLA.Add(token.EOF)
	b.addKernel([]item{{rule: 0, dot: 0, la: startLA}})

	queue := []int{0}
	queued := map[int]bool{0: true}
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		queued[k] = false

		groups := map[token.Kind][]item{}
		var symbols []token.Kind
		for _, it := range b.closure(b.kernels[k].items) {
			rule := b.g.rules[it.rule]
			if int(it.dot) >= len(rule.Right) {
				continue
			}
			sym := rule.Right[it.dot]
			if _, ok := groups[sym]; !ok {
				symbols = append(symbols, sym)
			}
			groups[sym] = append(groups[sym], item{rule: it.rule, dot: it.dot + 1, la: it.la})
		}
		sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })

		for _, sym := range symbols {
			items := groups[sym]
			sortItems(items)
			target, ok := b.index[coreKey(items)]
			if !ok {
				target = b.addKernel(items)
				queue = append(queue, target)
				queued[target] = true
			} else {
				grew := false
				existing := b.kernels[target].items
				for i := range existing {
					if existing[i].la.Union(items[i].la) {
						grew = true
					}
				}
				if grew && !queued[target] {
					queue = append(queue, target)
					queued[target] = true
				}
			}
			b.kernels[k].transitions[sym] = target
		}
	}
}

func sortItems(items []item) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].rule != items[j].rule {
			return items[i].rule < items[j].rule
		}
		return items[i].dot < items[j].dot
	})
}

func (b *builder) addKernel(items []item) int {
	idx := len(b.kernels)
	b.kernels = append(b.kernels, &kernel{items: items, transitions: map[token.Kind]int{}})
	b.index[coreKey(items)] = idx
	return idx
}

// Build computes the LALR(1) parse table. Shift/reduce conflicts become
// Decide cells; reduce/reduce conflicts keep the lower rule index and are
// logged as warnings.
func (g *Grammar) Build(log zerolog.Logger) (*Table, error) {
	b := &builder{g: g, index: map[string]int{}}
	b.build()

	t := newTable(g.Axiom, len(b.kernels), g.rules)
	for s, k := range b.kernels {
		for sym, target := range k.transitions {
			t.set(s, sym, Action{Kind: Shift, Shift: int32(target)})
		}
		for _, it := range b.closure(k.items) {
			rule := g.rules[it.rule]
			if int(it.dot) < len(rule.Right) {
				continue
			}
			for _, la := range it.la.Tokens() {
				if it.rule == 0 {
					if la == token.EOF {
						t.set(s, la, Action{Kind: Accept})
					}
					continue
				}
				t.addReduce(s, la, int32(it.rule), log)
			}
		}
	}
	log.Debug().
		Int("states", t.states).
		Int("rules", len(t.rules)).
		Int("decide", t.decides).
		Int("conflicts", t.conflicts).
		Msg("parse table built")
	return t, nil
}

func (t *Table) addReduce(state int, la token.Kind, rule int32, log zerolog.Logger) {
	cell := &t.actions[state*t.width+int(la)]
	switch cell.Kind {
	case Error:
		cell.Kind = Reduce
		cell.Reduce = rule
	case Shift:
		cell.Kind = Decide
		cell.Reduce = rule
		t.decides++
	case Reduce, Decide:
		if cell.Reduce == rule {
			return
		}
		kept, dropped := cell.Reduce, rule
		if rule < kept {
			kept, dropped = rule, cell.Reduce
		}
		cell.Reduce = kept
		t.conflicts++
		log.Warn().
			Int("state", state).
			Str("token", la.String()).
			Str("kept", t.rules[kept].String()).
			Str("dropped", t.rules[dropped].String()).
			Msg("reduce/reduce conflict")
	case Accept:
		t.conflicts++
		log.Warn().
			Int("state", state).
			Str("token", la.String()).
			Str("dropped", t.rules[rule].String()).
			Msg("reduce conflicts with accept")
	}
}
