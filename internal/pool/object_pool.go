package pool

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// maxPooledBufferSize buffers grown beyond this are dropped instead of pooled.
const maxPooledBufferSize = 64 << 10

// Pool is a generic object pool with usage counters.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T) bool

	gets    atomic.Int64
	puts    atomic.Int64
	news    atomic.Int64
	dropped atomic.Int64
}

// NewPool creates a pool. reset prepares an object for reuse and reports
// whether it should be kept; a nil reset keeps everything.
func NewPool[T any](newFunc func() T, reset func(T) bool) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() any {
		p.news.Add(1)
		return newFunc()
	}
	return p
}

// Get retrieves an object from the pool.
func (p *Pool[T]) Get() T {
	p.gets.Add(1)
	return p.pool.Get().(T)
}

// Put returns an object to the pool.
func (p *Pool[T]) Put(obj T) {
	p.puts.Add(1)
	if p.reset != nil && !p.reset(obj) {
		p.dropped.Add(1)
		return
	}
	p.pool.Put(obj)
}

// Stats returns pool statistics.
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Gets:    p.gets.Load(),
		Puts:    p.puts.Load(),
		News:    p.news.Load(),
		Dropped: p.dropped.Load(),
	}
}

// PoolStats contains pool statistics.
type PoolStats struct {
	Gets    int64 `json:"gets"`
	Puts    int64 `json:"puts"`
	News    int64 `json:"news"`
	Dropped int64 `json:"dropped"`
}

// HitRate returns the fraction of Gets served without allocating.
func (s PoolStats) HitRate() float64 {
	if s.Gets == 0 {
		return 0
	}
	return float64(s.Gets-s.News) / float64(s.Gets)
}

// ByteBufferPool provides scratch buffers for encoding notification payloads.
// A buffer must not be returned while anything still reads from it.
var ByteBufferPool = NewPool(
	func() *bytes.Buffer {
		return bytes.NewBuffer(make([]byte, 0, 1024))
	},
	func(b *bytes.Buffer) bool {
		if b.Cap() > maxPooledBufferSize {
			return false
		}
		b.Reset()
		return true
	},
)
