package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type item struct{ n int }

func TestPoolCountsAllocsAndFrees(t *testing.T) {
	p := NewPool(func() *item { return &item{} })

	a := p.Get()
	b := p.Get()
	p.Put(a)

	st := p.Stats()
	assert.Equal(t, uint64(2), st.Allocs)
	assert.Equal(t, uint64(1), st.Frees)
	assert.Equal(t, uint64(1), st.Outstanding())
	assert.GreaterOrEqual(t, st.Created, uint64(2))

	p.Put(b)
	assert.Zero(t, p.Stats().Outstanding())
}

func TestGateEnterLeave(t *testing.T) {
	var g Gate
	assert.Equal(t, int64(1), g.Enter())
	assert.Equal(t, int64(2), g.Enter())
	assert.Equal(t, int64(2), g.Leave())
	assert.Equal(t, int64(1), g.Active())
	assert.Equal(t, int64(1), g.Leave())
	assert.Zero(t, g.Active())
}

func TestGateLeaveWithoutEnterPanics(t *testing.T) {
	var g Gate
	assert.Panics(t, func() { g.Leave() })
}

func TestGateConcurrent(t *testing.T) {
	var g Gate
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				g.Enter()
				g.Leave()
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, g.Active())
}
