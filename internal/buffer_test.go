package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulateDrainsInOrder(t *testing.T) {
	t.Parallel()

	producer := make(chan int)
	consumer := accumulate(producer, &slicebuffer[int]{})

	// Produce a burst larger than anything downstream has consumed.
	go func() {
		for i := range 100 {
			producer <- i
		}
		close(producer)
	}()

	got := []int{}
	for v := range consumer {
		got = append(got, v)
	}

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestAccumulateCloses(t *testing.T) {
	t.Parallel()

	producer := make(chan string)
	consumer := accumulate(producer, &slicebuffer[string]{})
	close(producer)

	select {
	case _, ok := <-consumer:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("consumer never closed")
	}
}

func TestSlicebuffer(t *testing.T) {
	t.Parallel()

	buf := &slicebuffer[int]{}

	_, ok := buf.peek()
	assert.False(t, ok)
	assert.Equal(t, 0, buf.len())

	buf.push(1)
	buf.push(2)
	assert.Equal(t, 2, buf.len())

	head, ok := buf.peek()
	require.True(t, ok)
	assert.Equal(t, 1, head)

	assert.Equal(t, 1, buf.pop())
	assert.Equal(t, 2, buf.pop())
	assert.Equal(t, 0, buf.len())
}
