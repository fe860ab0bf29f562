package dobj

import (
	"github.com/golang/glog"

	"golang.org/x/exp/maps"

	"statelink.io/dobj/wire"
)

// Set is an unordered unique set of elements.
type Set[T comparable] struct {
	field
	codec *wire.Codec
	listCodec *wire.Codec
	elems map[T]struct{}
	addedCallbacks *CallbackList[func(T)]
	removedCallbacks *CallbackList[func(T)]
}

func NewSet[T comparable](obj *DObject, id uint32, name string, elementCodec *wire.Codec) *Set[T] {
	set := &Set[T]{
		field: field{
			obj: obj,
			id: id,
			name: name,
		},
		codec: elementCodec,
		listCodec: wire.ListCodec(elementCodec),
		elems: map[T]struct{}{},
		addedCallbacks: NewCallbackList[func(T)](),
		removedCallbacks: NewCallbackList[func(T)](),
	}
	obj.attach(set)
	return set
}

func (self *Set[T]) Has(v T) bool {
	_, ok := self.elems[v]
	return ok
}

func (self *Set[T]) Len() int {
	return len(self.elems)
}

func (self *Set[T]) Values() []T {
	return maps.Keys(self.elems)
}

// Add inserts an element on the writer side. Adding a present element is a
// no-op and emits nothing.
func (self *Set[T]) Add(v T) {
	self.obj.assertWriter()
	if _, ok := self.elems[v]; ok {
		return
	}
	self.elems[v] = struct{}{}
	self.obj.emit(func(w *wire.Writer) {
		w.WriteVarUint(uint64(MessageSetAdd))
		w.WriteTag(self.id, self.codec.Wire)
		self.codec.Encode(w, v)
	})
	self.obj.emitDelta(Delta{
		Field: self,
		Type: MessageSetAdd,
		Key: wire.DocKeyString(self.codec.ToDoc(v)),
		Value: true,
	})
	self.fireAdded(v)
}

func (self *Set[T]) Remove(v T) {
	self.obj.assertWriter()
	if _, ok := self.elems[v]; !ok {
		return
	}
	delete(self.elems, v)
	self.obj.emit(func(w *wire.Writer) {
		w.WriteVarUint(uint64(MessageSetRemove))
		w.WriteTag(self.id, self.codec.Wire)
		self.codec.Encode(w, v)
	})
	self.obj.emitDelta(Delta{
		Field: self,
		Type: MessageSetRemove,
		Key: wire.DocKeyString(self.codec.ToDoc(v)),
	})
	self.fireRemoved(v)
}

func (self *Set[T]) OnAdded(callback func(T)) func() {
	return self.addedCallbacks.Add(callback)
}

func (self *Set[T]) OnRemoved(callback func(T)) func() {
	return self.removedCallbacks.Add(callback)
}

func (self *Set[T]) fireAdded(v T) {
	for _, callback := range self.addedCallbacks.Get() {
		callback(v)
	}
}

func (self *Set[T]) fireRemoved(v T) {
	for _, callback := range self.removedCallbacks.Get() {
		callback(v)
	}
}

func (self *Set[T]) encodeSync(w *wire.Writer) {
	w.WriteTag(self.id, wire.ByteLength)
	elems := make([]any, 0, len(self.elems))
	for v := range self.elems {
		elems = append(elems, any(v))
	}
	self.listCodec.Encode(w, elems)
}

func (self *Set[T]) apply(messageType MessageType, keyWire wire.WireType, valueWire wire.WireType, r *wire.Reader) {
	switch messageType {
	case MessageSync:
		self.applyFull(self.listCodec.DecodeChecked(r, valueWire))
	case MessageSetAdd:
		v, ok := self.codec.DecodeChecked(r, valueWire).(T)
		if !ok {
			return
		}
		if _, present := self.elems[v]; present {
			// no-op deltas fire nothing
			return
		}
		self.elems[v] = struct{}{}
		self.fireAdded(v)
	case MessageSetRemove:
		v, ok := self.codec.DecodeChecked(r, valueWire).(T)
		if !ok {
			return
		}
		if _, present := self.elems[v]; !present {
			return
		}
		delete(self.elems, v)
		self.fireRemoved(v)
	default:
		glog.Warningf("[dobj]%s: message type %d on set field %s", self.obj.path, messageType, self.name)
		r.Skip(valueWire)
	}
}

// applyFull diffs a full set state against the current one.
func (self *Set[T]) applyFull(v any) {
	next := map[T]struct{}{}
	if elems, ok := v.([]any); ok {
		for _, elem := range elems {
			if typed, ok := elem.(T); ok {
				next[typed] = struct{}{}
			}
		}
	}
	for v := range self.elems {
		if _, ok := next[v]; !ok {
			delete(self.elems, v)
			self.fireRemoved(v)
		}
	}
	for v := range next {
		if _, ok := self.elems[v]; !ok {
			self.elems[v] = struct{}{}
			self.fireAdded(v)
		}
	}
}

func (self *Set[T]) DocValue() (any, bool) {
	doc := map[string]any{}
	for v := range self.elems {
		doc[wire.DocKeyString(self.codec.ToDoc(v))] = true
	}
	return doc, true
}

func (self *Set[T]) DocApply(v any) {
	doc, ok := v.(map[string]any)
	if !ok {
		return
	}
	next := map[T]struct{}{}
	for key := range doc {
		if typed, ok := wire.DocKeyParse(self.codec, key).(T); ok {
			next[typed] = struct{}{}
		}
	}
	for elem := range self.elems {
		if _, ok := next[elem]; !ok {
			delete(self.elems, elem)
			self.fireRemoved(elem)
		}
	}
	for elem := range next {
		if _, ok := self.elems[elem]; !ok {
			self.elems[elem] = struct{}{}
			self.fireAdded(elem)
		}
	}
}
