package docstore

import (
	"context"

	"github.com/golang/glog"

	"statelink.io/dobj/dobj"
)

const bindingBufferSize = 256

// Host is the endpoint that owns the bound object's loop. Both dobj.Client
// and dobj.Server satisfy it: clients bind docstore-backed objects they
// write, servers bind authoritative objects they persist.
type Host interface {
	Run(f func())
	Root() *dobj.DObject
}

// Binding connects one object to a Store: the document is loaded and applied
// as the object's initial state, and every writer-side mutation is written
// through incrementally in order.
type Binding struct {
	ctx context.Context
	cancel context.CancelFunc

	host Host
	obj *dobj.DObject
	store Store
	key string

	loaded chan struct{}
	updates chan map[string]any
	removeDelta func()
}

func NewBinding(ctx context.Context, host Host, obj *dobj.DObject, store Store) (*Binding, error) {
	var key string
	var keyErr error
	host.Run(func() {
		key, keyErr = KeyForPath(host.Root(), obj.Path())
	})
	if keyErr != nil {
		return nil, keyErr
	}

	cancelCtx, cancel := context.WithCancel(ctx)
	binding := &Binding{
		ctx: cancelCtx,
		cancel: cancel,
		host: host,
		obj: obj,
		store: store,
		key: key,
		loaded: make(chan struct{}),
		updates: make(chan map[string]any, bindingBufferSize),
	}

	host.Run(func() {
		binding.removeDelta = obj.OnDelta(func(delta dobj.Delta) {
			update, ok := UpdateForDelta(delta)
			if !ok {
				return
			}
			select {
			case binding.updates <- update:
			default:
				glog.Warningf("[doc]%s: update backlog full, dropping", binding.key)
			}
		})
	})

	go binding.load()
	go binding.run()
	return binding, nil
}

func (self *Binding) Key() string {
	return self.key
}

// Loaded closes once the stored document has been applied. Populators wait
// on it so that restored state precedes the first sync.
func (self *Binding) Loaded() <-chan struct{} {
	return self.loaded
}

// load fetches the document and applies it as the initial state on the loop.
// A missing document activates the object with defaults.
func (self *Binding) load() {
	defer close(self.loaded)
	doc, err := self.store.Get(self.ctx, self.key)
	if err != nil {
		glog.Infof("[doc]%s: load error = %s", self.key, err)
		self.host.Run(func() {
			self.obj.DocApply(nil)
		})
		return
	}
	self.host.Run(func() {
		self.obj.DocApply(doc)
	})
}

// run drains write-through updates one at a time, preserving mutation order.
func (self *Binding) run() {
	for {
		select {
		case <-self.ctx.Done():
			return
		case update := <-self.updates:
			if err := self.store.Update(self.ctx, self.key, update); err != nil {
				glog.Infof("[doc]%s: update error = %s", self.key, err)
			}
		}
	}
}

// Flush writes the object's full document, replacing whatever is stored.
func (self *Binding) Flush() error {
	var doc map[string]any
	self.host.Run(func() {
		doc = self.obj.DocValue()
	})
	return self.store.Set(self.ctx, self.key, doc)
}

func (self *Binding) Close() {
	if self.removeDelta != nil {
		self.removeDelta()
	}
	self.cancel()
}
