package vm

import (
	"sync"

	"github.com/emerald-lang/emerald/object"
)

// queue is an unbounded FIFO whose pop blocks until an item arrives or the
// queue is closed.
type queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	closed bool
}

func newQueue[T any]() *queue[T] {
	q := &queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends v. It reports false once the queue is closed.
func (q *queue[T]) push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, v)
	q.cond.Signal()
	return true
}

// pop waits for the next item. It reports false when the queue is closed.
func (q *queue[T]) pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	var zero T
	if q.closed {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return v, true
}

// close wakes every waiter and returns the items never popped.
func (q *queue[T]) close() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	rest := q.items
	q.items = nil
	q.cond.Broadcast()
	return rest
}

// promise is the result slot of one queued call.
type promise struct {
	done  chan struct{}
	value object.Value
}

// A promise id packs a slot index with the slot's generation, so an id
// that was already read never reaches a later call reusing its slot.
const (
	slotBits = 24
	slotMask = 1<<slotBits - 1
)

// promiseTable hands out result slots and recycles them once read.
type promiseTable struct {
	mu    sync.Mutex
	slots []*promise
	gens  []int
	free  []int
}

func (t *promiseTable) alloc() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := &promise{done: make(chan struct{})}
	var i int
	if n := len(t.free); n > 0 {
		i = t.free[n-1]
		t.free = t.free[:n-1]
		t.slots[i] = p
	} else {
		i = len(t.slots)
		t.slots = append(t.slots, p)
		t.gens = append(t.gens, 0)
	}
	t.gens[i]++
	return t.gens[i]<<slotBits | i
}

// lookup returns the slot of id and its promise, or nil when id is stale.
// t.mu must be held.
func (t *promiseTable) lookup(id int) (int, *promise) {
	if id < 0 {
		return 0, nil
	}
	i := id & slotMask
	if i >= len(t.slots) || t.gens[i] != id>>slotBits {
		return 0, nil
	}
	return i, t.slots[i]
}

func (t *promiseTable) get(id int) *promise {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, p := t.lookup(id)
	return p
}

// resolve stores the result of promise id, taking ownership of v.
func (t *promiseTable) resolve(id int, v object.Value) bool {
	p := t.get(id)
	if p == nil {
		return false
	}
	p.value = v
	close(p.done)
	return true
}

// take frees the slot of id and hands its value to the caller. The promise
// must be resolved.
func (t *promiseTable) take(id int, p *promise) object.Value {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, cur := t.lookup(id)
	if cur == nil || cur != p {
		return object.Undefined
	}
	t.slots[i] = nil
	t.free = append(t.free, i)
	v := p.value
	p.value = object.Undefined
	return v
}

// pending counts unread promises.
func (t *promiseTable) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots) - len(t.free)
}
