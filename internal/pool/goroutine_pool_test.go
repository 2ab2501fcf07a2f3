package pool

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoroutinePool_RunsAndDrains(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{Workers: 2, QueueSize: 16})

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error {
			ran.Add(1)
			return nil
		}))
	}
	p.Close()

	assert.Equal(t, int32(10), ran.Load())
	stats := p.Stats()
	assert.Equal(t, int64(10), stats.Submitted)
	assert.Equal(t, int64(10), stats.Completed)
}

func TestGoroutinePool_FullAndClosed(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{Workers: 1, QueueSize: 1})

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error {
		close(started)
		<-block
		return nil
	}))
	<-started
	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error { return nil }))

	err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolFull)

	close(block)
	p.Close()
	p.Close()

	err = p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.Equal(t, int64(1), p.Stats().Rejected)
}

func TestGoroutinePool_ErrorsAndPanics(t *testing.T) {
	var errs, panics atomic.Int32
	p := NewGoroutinePool(GoroutinePoolConfig{
		Workers:      1,
		QueueSize:    4,
		ErrorHandler: func(error) { errs.Add(1) },
		PanicHandler: func(any) { panics.Add(1) },
	})

	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error {
		return errors.New("boom")
	}))
	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error {
		panic("oops")
	}))
	p.Close()

	assert.Equal(t, int32(2), errs.Load())
	assert.Equal(t, int32(1), panics.Load())
	assert.Equal(t, int64(2), p.Stats().Failed)
}

func TestByteBufferPool_Reset(t *testing.T) {
	buf := ByteBufferPool.Get()
	buf.WriteString("payload")
	ByteBufferPool.Put(buf)

	again := ByteBufferPool.Get()
	assert.Equal(t, 0, again.Len())
	ByteBufferPool.Put(again)
}

func TestPool_DropsRejectedObjects(t *testing.T) {
	p := NewPool(
		func() *bytes.Buffer { return new(bytes.Buffer) },
		func(b *bytes.Buffer) bool {
			if b.Cap() > maxPooledBufferSize {
				return false
			}
			b.Reset()
			return true
		},
	)

	small := p.Get()
	small.WriteString("ok")
	p.Put(small)

	large := p.Get()
	large.Grow(maxPooledBufferSize + 1)
	p.Put(large)

	stats := p.Stats()
	assert.Equal(t, int64(2), stats.Gets)
	assert.Equal(t, int64(2), stats.Puts)
	assert.Equal(t, int64(1), stats.Dropped)
	assert.GreaterOrEqual(t, stats.News, int64(1))
	assert.LessOrEqual(t, stats.HitRate(), 0.5)
}
