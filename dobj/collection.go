package dobj

import (
	"context"

	"github.com/golang/glog"

	"statelink.io/dobj/wire"
)

// CollectionSettings configures one string-keyed subtree of child objects.
type CollectionSettings struct {
	// New constructs the child object for a key's path. On the server this
	// returns an authoritative object; on the client a detached schema
	// object for path walks.
	New func(path Path) *DObject
	// CanAccess is consulted per subscriber before resolving a key.
	// Denial surfaces to the client as SubscribeFailed. May suspend.
	CanAccess func(ctx context.Context, session *Session, key string) (bool, error)
	// Populate runs once over a freshly constructed child. May suspend.
	// Concurrent resolvers of the same key share one run.
	Populate func(ctx context.Context, obj *DObject) error
}

// resolution is the per-key memoised future: concurrent subscribers to the
// same key share one materialisation.
type resolution struct {
	done chan struct{}
	obj *DObject
	err error
}

// Collection is a field naming a subtree of addressable child objects keyed
// by string. It carries no direct data over the wire; children are reached
// via path resolution.
type Collection struct {
	field
	settings *CollectionSettings
	resolutions map[string]*resolution
}

func NewCollection(obj *DObject, id uint32, name string, settings *CollectionSettings) *Collection {
	collection := &Collection{
		field: field{
			obj: obj,
			id: id,
			name: name,
		},
		settings: settings,
		resolutions: map[string]*resolution{},
	}
	obj.attach(collection)
	return collection
}

func (self *Collection) childPath(key string) Path {
	return self.obj.path.Child(self.id, key)
}

// resolutionFor returns the memo entry for a key, creating a pending one if
// absent. The creator materialises; everyone else waits on done.
// Must run on the owning loop.
func (self *Collection) resolutionFor(key string) (*resolution, bool) {
	if res, ok := self.resolutions[key]; ok {
		return res, false
	}
	res := &resolution{
		done: make(chan struct{}),
	}
	self.resolutions[key] = res
	return res, true
}

// Materialize synchronously constructs (or returns) the child for a key
// without running access checks or populators. Used for client-side path
// walks and document key construction. Must run on the owning loop.
func (self *Collection) Materialize(key string) *DObject {
	res, created := self.resolutionFor(key)
	if created {
		res.obj = self.settings.New(self.childPath(key))
		close(res.done)
	}
	select {
	case <-res.done:
	default:
		// a server-side populate is in flight; the schema walk cannot
		// wait on the loop, so hand back a detached view
		return self.settings.New(self.childPath(key))
	}
	return res.obj
}

// Resolved returns the already materialised child for a key, if any.
// Must run on the owning loop.
func (self *Collection) Resolved(key string) (*DObject, bool) {
	res, ok := self.resolutions[key]
	if !ok {
		return nil, false
	}
	select {
	case <-res.done:
	default:
		return nil, false
	}
	if res.err != nil {
		return nil, false
	}
	return res.obj, true
}

// collections carry no state in a sync
func (self *Collection) encodeSync(w *wire.Writer) {
}

func (self *Collection) apply(messageType MessageType, keyWire wire.WireType, valueWire wire.WireType, r *wire.Reader) {
	glog.Warningf("[dobj]%s: message type %d on collection field %s", self.obj.path, messageType, self.name)
	if messageType == MessageMapSet {
		r.Skip(keyWire)
	}
	r.Skip(valueWire)
}

func (self *Collection) DocValue() (any, bool) {
	return nil, false
}

func (self *Collection) DocApply(v any) {
}
