package compiler

import "math/bits"

// MaxRegisters is the size of a function's register file.
const MaxRegisters = 256

// Registers tracks which registers of the function being compiled are in
// use. The allocator is greedy: the lowest free register is handed out
// first, and a register is reused as soon as it is freed.
type Registers struct {
	used [MaxRegisters / 64]uint64
	high int // one past the highest register ever allocated
}

// GetFirstFree allocates the lowest free register. It returns false when all
// registers are taken.
func (r *Registers) GetFirstFree() (uint8, bool) {
	for w, word := range r.used {
		if word == ^uint64(0) {
			continue
		}
		reg := w*64 + bits.TrailingZeros64(^word)
		r.set(reg)
		return uint8(reg), true
	}
	return 0, false
}

// GetLastFree returns the lowest register above every register in use,
// without allocating it.
func (r *Registers) GetLastFree() int {
	for w := len(r.used) - 1; w >= 0; w-- {
		if word := r.used[w]; word != 0 {
			return w*64 + 64 - bits.LeadingZeros64(word)
		}
	}
	return 0
}

// Reserve allocates n contiguous registers above every register in use and
// returns the first. It returns false if the run does not fit.
func (r *Registers) Reserve(n int) (uint8, bool) {
	base := r.GetLastFree()
	if base+n > MaxRegisters {
		return 0, false
	}
	for i := 0; i < n; i++ {
		r.set(base + i)
	}
	return uint8(base), true
}

// FreeRegister releases reg.
func (r *Registers) FreeRegister(reg uint8) {
	r.used[reg/64] &^= 1 << (reg % 64)
}

// FreeRange releases n registers starting at base.
func (r *Registers) FreeRange(base uint8, n int) {
	for i := 0; i < n; i++ {
		r.FreeRegister(base + uint8(i))
	}
}

// InUse reports whether reg is allocated.
func (r *Registers) InUse(reg uint8) bool {
	return r.used[reg/64]&(1<<(reg%64)) != 0
}

// Count returns the number of registers the function needs.
func (r *Registers) Count() int {
	return r.high
}

func (r *Registers) set(reg int) {
	r.used[reg/64] |= 1 << (reg % 64)
	if reg+1 > r.high {
		r.high = reg + 1
	}
}
