// Package bufpool hands out reusable byte buffers for socket reads and
// stream copies.
package bufpool

import "sync"

const (
	SmallSize  = 4 << 10
	MediumSize = 32 << 10
)

// Pool manages reusable byte buffers in two size classes
type Pool struct {
	small  sync.Pool
	medium sync.Pool
}

// New creates an empty pool.
func New() *Pool {
	return &Pool{
		small:  sync.Pool{New: func() any { buf := make([]byte, SmallSize); return &buf }},
		medium: sync.Pool{New: func() any { buf := make([]byte, MediumSize); return &buf }},
	}
}

var defaultPool = New()

// Get returns a buffer of exactly size bytes. Requests above MediumSize get
// a fresh allocation that Put will not keep.
func (p *Pool) Get(size int) []byte {
	switch {
	case size <= SmallSize:
		return (*p.small.Get().(*[]byte))[:size]
	case size <= MediumSize:
		return (*p.medium.Get().(*[]byte))[:size]
	default:
		return make([]byte, size)
	}
}

// Put returns a buffer obtained from Get.
func (p *Pool) Put(buf []byte) {
	switch cap(buf) {
	case SmallSize:
		full := buf[:SmallSize]
		p.small.Put(&full)
	case MediumSize:
		full := buf[:MediumSize]
		p.medium.Put(&full)
	}
	// Non-standard capacities are left to the GC.
}

// Get takes a buffer from the process-wide pool.
func Get(size int) []byte {
	return defaultPool.Get(size)
}

// Put returns a buffer to the process-wide pool.
func Put(buf []byte) {
	defaultPool.Put(buf)
}
