// Package names interns identifiers and dotted paths.
//
// Every identifier the toolchain handles (namespace segments, symbol names,
// property names) is interned once into a process-wide table and referred to
// by a small integer afterwards. A Path is a fixed-depth array of interned
// names, so it is comparable and can be used directly as a map key.
package names

import (
	"fmt"
	"strings"
	"sync"
)

// MaxDepth is the maximum number of segments in a Path.
const MaxDepth = 5

// Name is an interned identifier. The zero Name is the empty string.
type Name uint32

var interner = struct {
	sync.Mutex
	ids     map[string]Name
	strings []string
}{
	ids:     map[string]Name{"": 0},
	strings: []string{""},
}

// Intern returns the Name for s, adding it to the table if needed.
func Intern(s string) Name {
	interner.Lock()
	defer interner.Unlock()
	if id, ok := interner.ids[s]; ok {
		return id
	}
	id := Name(len(interner.strings))
	interner.strings = append(interner.strings, s)
	interner.ids[s] = id
	return id
}

// Lookup returns the Name for s without interning it.
func Lookup(s string) (Name, bool) {
	interner.Lock()
	defer interner.Unlock()
	id, ok := interner.ids[s]
	return id, ok
}

func (n Name) String() string {
	interner.Lock()
	defer interner.Unlock()
	if int(n) >= len(interner.strings) {
		return fmt.Sprintf("<name %d>", uint32(n))
	}
	return interner.strings[n]
}

// Path is a dotted identifier such as "Math.Vector.Length".
type Path struct {
	segments [MaxDepth]Name
	depth    uint8
}

// Root is the empty path, naming the global namespace.
var Root = Path{}

// ParsePath splits a dotted string into an interned Path.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return Root, nil
	}
	parts := strings.Split(s, ".")
	if len(parts) > MaxDepth {
		return Root, fmt.Errorf("path %q exceeds %d segments", s, MaxDepth)
	}
	var p Path
	for _, part := range parts {
		if part == "" {
			return Root, fmt.Errorf("path %q has an empty segment", s)
		}
		p.segments[p.depth] = Intern(part)
		p.depth++
	}
	return p, nil
}

// MustParsePath is like ParsePath but panics on error.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Single returns a one-segment path.
func Single(n Name) Path {
	var p Path
	p.segments[0] = n
	p.depth = 1
	return p
}

// Len returns the number of segments.
func (p Path) Len() int { return int(p.depth) }

// IsRoot reports whether p has no segments.
func (p Path) IsRoot() bool { return p.depth == 0 }

// At returns segment i.
func (p Path) At(i int) Name { return p.segments[i] }

// Last returns the final segment, or the empty name for the root.
func (p Path) Last() Name {
	if p.depth == 0 {
		return 0
	}
	return p.segments[p.depth-1]
}

// Parent returns p without its final segment.
func (p Path) Parent() Path {
	if p.depth == 0 {
		return p
	}
	p.depth--
	p.segments[p.depth] = 0
	return p
}

// Append returns p extended by n. The second result is false if the path
// would exceed MaxDepth.
func (p Path) Append(n Name) (Path, bool) {
	if p.depth == MaxDepth {
		return p, false
	}
	p.segments[p.depth] = n
	p.depth++
	return p, true
}

// Join appends every segment of q to p.
func (p Path) Join(q Path) (Path, bool) {
	if int(p.depth)+int(q.depth) > MaxDepth {
		return p, false
	}
	for i := 0; i < int(q.depth); i++ {
		p.segments[p.depth] = q.segments[i]
		p.depth++
	}
	return p, true
}

// HasPrefix reports whether p equals prefix or lies beneath it.
func (p Path) HasPrefix(prefix Path) bool {
	if prefix.depth > p.depth {
		return false
	}
	for i := 0; i < int(prefix.depth); i++ {
		if p.segments[i] != prefix.segments[i] {
			return false
		}
	}
	return true
}

func (p Path) String() string {
	parts := make([]string, p.depth)
	for i := range parts {
		parts[i] = p.segments[i].String()
	}
	return strings.Join(parts, ".")
}
