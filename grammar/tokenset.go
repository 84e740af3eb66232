package grammar

import (
	"math/bits"
	"strings"

	"github.com/emerald-lang/emerald/token"
)

// TokenSet is a set of token kinds. token.None stands for epsilon.
type TokenSet [4]uint64

// Add inserts k.
func (s *TokenSet) Add(k token.Kind) {
	s[k>>6] |= 1 << (k & 63)
}

// Remove deletes k.
func (s *TokenSet) Remove(k token.Kind) {
	s[k>>6] &^= 1 << (k & 63)
}

// Has reports whether k is a member.
func (s TokenSet) Has(k token.Kind) bool {
	return s[k>>6]&(1<<(k&63)) != 0
}

// Union adds every member of other and reports whether s grew.
func (s *TokenSet) Union(other TokenSet) bool {
	changed := false
	for i := range s {
		merged := s[i] | other[i]
		if merged != s[i] {
			s[i] = merged
			changed = true
		}
	}
	return changed
}

// Len returns the number of members.
func (s TokenSet) Len() int {
	n := 0
	for _, w := range s {
		n += bits.OnesCount64(w)
	}
	return n
}

// Tokens returns the members in ascending order.
func (s TokenSet) Tokens() []token.Kind {
	out := make([]token.Kind, 0, s.Len())
	for i, w := range s {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			out = append(out, token.Kind(i*64+b))
			w &^= 1 << b
		}
	}
	return out
}

func (s TokenSet) String() string {
	toks := s.Tokens()
	parts := make([]string, len(toks))
	for i, t := range toks {
		parts[i] = t.String()
	}
	return "{" + strings.Join(parts, " ") + "}"
}
