package dobj

import (
	"flag"
	"testing"

	"github.com/go-playground/assert/v2"
)

func init() {
	flag.Set("logtostderr", "true")
}

func TestIdRecyclerDense(t *testing.T) {
	recycler := newIdRecycler(1)
	assert.Equal(t, recycler.Allocate(), uint32(1))
	assert.Equal(t, recycler.Allocate(), uint32(2))
	assert.Equal(t, recycler.Allocate(), uint32(3))
	assert.Equal(t, recycler.Allocate(), uint32(4))
}

func TestIdRecyclerSmallestFirst(t *testing.T) {
	recycler := newIdRecycler(1)
	for i := 0; i < 6; i += 1 {
		recycler.Allocate()
	}
	recycler.Recycle(5)
	recycler.Recycle(2)
	recycler.Recycle(4)

	// freed ids are reused in ascending order
	assert.Equal(t, recycler.Allocate(), uint32(2))
	assert.Equal(t, recycler.Allocate(), uint32(4))
	assert.Equal(t, recycler.Allocate(), uint32(5))
	assert.Equal(t, recycler.Allocate(), uint32(7))
}

func TestReconnectDelaySchedule(t *testing.T) {
	expected := []int{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 512, 512}
	for attempts, seconds := range expected {
		assert.Equal(t, int(reconnectDelay(attempts, 9).Seconds()), seconds)
	}
}
