package object

import (
	"sync"
	"sync/atomic"
)

const (
	chunkBits = 8
	chunkSize = 1 << chunkBits
)

type slot[T any] struct {
	value T
	gen   atomic.Uint32
	refs  atomic.Int32
	live  atomic.Bool
}

type chunk[T any] [chunkSize]slot[T]

// Reallocator is implemented by cell types that can reset themselves in
// place when a freed cell is reused, keeping buffers they own.
type Reallocator interface {
	Realloc()
}

// Allocator is a slab of cells of one type. Cells are never moved, so a
// lookup does not lock; only allocation and sweeping take the mutex.
type Allocator[T any] struct {
	mu     sync.Mutex
	chunks atomic.Pointer[[]*chunk[T]]
	length uint32   // cells handed out so far, guarded by mu
	free   []uint32 // reclaimed cells, reused last-in first-out
	clear  func(*T)
}

// NewAllocator returns an empty allocator. The clear hook, if non-nil, runs
// on every cell the sweep reclaims.
func NewAllocator[T any](clear func(*T)) *Allocator[T] {
	a := &Allocator[T]{clear: clear}
	empty := make([]*chunk[T], 0)
	a.chunks.Store(&empty)
	return a
}

func (a *Allocator[T]) slot(index uint32) *slot[T] {
	dir := *a.chunks.Load()
	ci := int(index >> chunkBits)
	if ci >= len(dir) {
		return nil
	}
	return &dir[ci][index&(chunkSize-1)]
}

// grow appends a chunk. The caller holds mu.
func (a *Allocator[T]) grow() {
	old := *a.chunks.Load()
	dir := make([]*chunk[T], len(old), len(old)+1)
	copy(dir, old)
	dir = append(dir, new(chunk[T]))
	a.chunks.Store(&dir)
}

// Alloc returns a handle to a cell initialized by init. The returned handle
// owns one reference. A reclaimed cell is reused before the slab grows.
func (a *Allocator[T]) Alloc(init func(*T)) Handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	var index uint32
	if n := len(a.free); n > 0 {
		index = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		index = a.length
		a.length++
		if int(index>>chunkBits) >= len(*a.chunks.Load()) {
			a.grow()
		}
	}
	s := a.slot(index)
	if r, ok := any(&s.value).(Reallocator); ok {
		r.Realloc()
	} else {
		var zero T
		s.value = zero
	}
	if init != nil {
		init(&s.value)
	}
	s.refs.Store(1)
	s.live.Store(true)
	return Handle{Index: index, Gen: s.gen.Load()}
}

func (a *Allocator[T]) valid(h Handle) *slot[T] {
	s := a.slot(h.Index)
	if s == nil || !s.live.Load() || s.gen.Load() != h.Gen {
		return nil
	}
	return s
}

// Get returns the cell for h, or nil if the handle is stale.
func (a *Allocator[T]) Get(h Handle) *T {
	if s := a.valid(h); s != nil {
		return &s.value
	}
	return nil
}

// Retain adds a reference to the cell.
func (a *Allocator[T]) Retain(h Handle) {
	if s := a.valid(h); s != nil {
		s.refs.Add(1)
	}
}

// Release drops a reference. The cell is reclaimed by a later Sweep.
func (a *Allocator[T]) Release(h Handle) {
	if s := a.valid(h); s != nil {
		s.refs.Add(-1)
	}
}

// RefCount returns the cell's reference count, or 0 for a stale handle.
func (a *Allocator[T]) RefCount(h Handle) int32 {
	if s := a.valid(h); s != nil {
		return s.refs.Load()
	}
	return 0
}

// Sweep moves every live cell whose reference count is at most zero onto the
// free-list and returns how many cells it reclaimed.
func (a *Allocator[T]) Sweep() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	freed := 0
	for i := uint32(0); i < a.length; i++ {
		s := a.slot(i)
		if !s.live.Load() || s.refs.Load() > 0 {
			continue
		}
		if a.clear != nil {
			a.clear(&s.value)
		}
		s.live.Store(false)
		s.gen.Add(1)
		a.free = append(a.free, i)
		freed++
	}
	return freed
}

// Len returns the number of cells the slab has grown to.
func (a *Allocator[T]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int(a.length)
}

// Live returns the number of cells currently in use.
func (a *Allocator[T]) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int(a.length) - len(a.free)
}
