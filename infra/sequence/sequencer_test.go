package sequence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextIsMonotonic(t *testing.T) {
	s := New(5)
	assert.Equal(t, uint64(6), s.Next())
	assert.Equal(t, uint64(7), s.Next())
	assert.Equal(t, uint64(7), s.Current())
}

func TestAdvanceNeverRewinds(t *testing.T) {
	s := New(10)
	s.Advance(3)
	assert.Equal(t, uint64(10), s.Current())
	s.Advance(20)
	assert.Equal(t, uint64(21), s.Next())
}

func TestNextConcurrentUnique(t *testing.T) {
	s := New(0)
	var mu sync.Mutex
	seen := make(map[uint64]bool)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := s.Next()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 5000)
}
