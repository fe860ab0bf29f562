package dobj

import (
	"context"
)

const loopBufferSize = 1024

// Loop is the single logical main thread that owns all object state on one
// side of the protocol. I/O goroutines post work items to it and never touch
// shared state directly.
type Loop struct {
	ctx context.Context
	cancel context.CancelFunc

	work chan func()
}

func NewLoop(ctx context.Context) *Loop {
	cancelCtx, cancel := context.WithCancel(ctx)
	loop := &Loop{
		ctx: cancelCtx,
		cancel: cancel,
		work: make(chan func(), loopBufferSize),
	}
	go loop.run()
	return loop
}

func (self *Loop) run() {
	for {
		select {
		case <-self.ctx.Done():
			return
		case f := <-self.work:
			f()
		}
	}
}

// Post enqueues a work item. Safe from any goroutine.
func (self *Loop) Post(f func()) {
	select {
	case <-self.ctx.Done():
	case self.work <- f:
	}
}

// Run enqueues a work item and waits for it to complete. Must not be called
// from the loop itself.
func (self *Loop) Run(f func()) {
	done := make(chan struct{})
	self.Post(func() {
		defer close(done)
		f()
	})
	select {
	case <-self.ctx.Done():
	case <-done:
	}
}

func (self *Loop) Done() <-chan struct{} {
	return self.ctx.Done()
}

func (self *Loop) Close() {
	self.cancel()
}
