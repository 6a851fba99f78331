// Package mempool pools float32 buffers used for image tensors.
package mempool

import (
	"sync"
	"sync/atomic"
)

const step = 1024

var (
	pools sync.Map // key: size class (int), value: *sync.Pool

	gets   atomic.Int64
	misses atomic.Int64
)

// sizeClass rounds n up to the next multiple of 1024 (minimum 1024).
func sizeClass(n int) int {
	if n <= step {
		return step
	}
	return (n + step - 1) / step * step
}

func poolFor(cls int) *sync.Pool {
	p, _ := pools.LoadOrStore(cls, &sync.Pool{New: func() any {
		misses.Add(1)
		return make([]float32, cls)
	}})
	return p.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
}

// GetFloat32 returns a buffer of length n. Contents are not zeroed.
// Return it with PutFloat32 once no reader holds it.
func GetFloat32(n int) []float32 {
	gets.Add(1)
	cls := sizeClass(n)
	buf, ok := poolFor(cls).Get().([]float32)
	if !ok || cap(buf) < cls {
		buf = make([]float32, cls)
	}
	return buf[:n]
}

// PutFloat32 returns a buffer to its pool. Nil slices are ignored.
func PutFloat32(buf []float32) {
	if buf == nil {
		return
	}
	cls := sizeClass(cap(buf))
	if cls != cap(buf) {
		// not one of ours
		return
	}
	poolFor(cls).Put(buf[:cap(buf)]) //nolint:staticcheck // slices are small headers
}

// Stats reports how many buffers were requested and how many had to be allocated.
type Stats struct {
	Gets   int64 `json:"gets"`
	Misses int64 `json:"misses"`
}

// GetStats returns the pool counters.
func GetStats() Stats {
	return Stats{Gets: gets.Load(), Misses: misses.Load()}
}
