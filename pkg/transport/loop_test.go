package transport

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoopRunsInOrder(t *testing.T) {
	l := NewLoop(nil)
	defer l.Close()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	l.Flush()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoopPostFromCallback(t *testing.T) {
	l := NewLoop(nil)
	defer l.Close()

	done := make(chan struct{})
	l.Post(func() {
		l.Post(func() { close(done) })
	})
	<-done
}

func TestLoopSurvivesPanics(t *testing.T) {
	l := NewLoop(nil)
	defer l.Close()

	ran := false
	l.Post(func() { panic("boom") })
	l.Post(func() { ran = true })
	l.Flush()

	assert.True(t, ran)
}

func TestLoopCloseDrainsAndRejects(t *testing.T) {
	l := NewLoop(nil)

	ran := 0
	for i := 0; i < 10; i++ {
		l.Post(func() { ran++ })
	}
	l.Close()

	assert.Equal(t, 10, ran)
	assert.False(t, l.Post(func() { ran++ }))
	assert.NotPanics(t, l.Flush)
	assert.NotPanics(t, l.Close)
}
