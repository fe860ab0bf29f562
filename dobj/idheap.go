package dobj

import (
	"container/heap"
)

// idHeap is a min-heap of freed object ids.
type idHeap []uint32

// heap.Interface

func (self idHeap) Len() int {
	return len(self)
}

func (self idHeap) Less(i int, j int) bool {
	return self[i] < self[j]
}

func (self idHeap) Swap(i int, j int) {
	self[i], self[j] = self[j], self[i]
}

func (self *idHeap) Push(x any) {
	*self = append(*self, x.(uint32))
}

func (self *idHeap) Pop() any {
	n := len(*self)
	id := (*self)[n-1]
	*self = (*self)[:n-1]
	return id
}

// idRecycler keeps the id space dense from the first id: allocation pops the
// smallest freed id if any, else takes the next unused one. Ids ride on
// every message, so compact ids keep the varints short.
type idRecycler struct {
	freed idHeap
	nextId uint32
}

func newIdRecycler(firstId uint32) *idRecycler {
	return &idRecycler{
		freed: idHeap{},
		nextId: firstId,
	}
}

func (self *idRecycler) Allocate() uint32 {
	if 0 < len(self.freed) {
		return heap.Pop(&self.freed).(uint32)
	}
	id := self.nextId
	self.nextId += 1
	return id
}

func (self *idRecycler) Recycle(id uint32) {
	heap.Push(&self.freed, id)
}
