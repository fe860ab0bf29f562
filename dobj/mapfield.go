package dobj

import (
	"github.com/golang/glog"

	"golang.org/x/exp/maps"

	"statelink.io/dobj/wire"
)

// Map is a key-unique mapping.
type Map[K comparable, V comparable] struct {
	field
	keyCodec *wire.Codec
	valueCodec *wire.Codec
	dictCodec *wire.Codec
	entries map[K]V
	setCallbacks *CallbackList[func(K, V)]
	removedCallbacks *CallbackList[func(K)]
}

func NewMap[K comparable, V comparable](obj *DObject, id uint32, name string, keyCodec *wire.Codec, valueCodec *wire.Codec) *Map[K, V] {
	m := &Map[K, V]{
		field: field{
			obj: obj,
			id: id,
			name: name,
		},
		keyCodec: keyCodec,
		valueCodec: valueCodec,
		dictCodec: wire.MapCodec(keyCodec, valueCodec),
		entries: map[K]V{},
		setCallbacks: NewCallbackList[func(K, V)](),
		removedCallbacks: NewCallbackList[func(K)](),
	}
	obj.attach(m)
	return m
}

func (self *Map[K, V]) Get(k K) (V, bool) {
	v, ok := self.entries[k]
	return v, ok
}

func (self *Map[K, V]) Len() int {
	return len(self.entries)
}

func (self *Map[K, V]) Keys() []K {
	return maps.Keys(self.entries)
}

func (self *Map[K, V]) Snapshot() map[K]V {
	return maps.Clone(self.entries)
}

// Set writes one entry on the writer side. Setting an entry to its current
// value is a no-op and emits nothing.
func (self *Map[K, V]) Set(k K, v V) {
	self.obj.assertWriter()
	if current, ok := self.entries[k]; ok && current == v {
		return
	}
	self.entries[k] = v
	self.obj.emit(func(w *wire.Writer) {
		w.WriteVarUint(uint64(MessageMapSet))
		w.WriteMapTag(self.id, self.keyCodec.Wire, self.valueCodec.Wire)
		self.keyCodec.Encode(w, k)
		self.valueCodec.Encode(w, v)
	})
	self.obj.emitDelta(Delta{
		Field: self,
		Type: MessageMapSet,
		Key: wire.DocKeyString(self.keyCodec.ToDoc(k)),
		Value: self.valueCodec.ToDoc(v),
	})
	self.fireSet(k, v)
}

func (self *Map[K, V]) Remove(k K) {
	self.obj.assertWriter()
	if _, ok := self.entries[k]; !ok {
		return
	}
	delete(self.entries, k)
	self.obj.emit(func(w *wire.Writer) {
		w.WriteVarUint(uint64(MessageMapRemove))
		w.WriteTag(self.id, self.keyCodec.Wire)
		self.keyCodec.Encode(w, k)
	})
	self.obj.emitDelta(Delta{
		Field: self,
		Type: MessageMapRemove,
		Key: wire.DocKeyString(self.keyCodec.ToDoc(k)),
	})
	self.fireRemoved(k)
}

func (self *Map[K, V]) OnSet(callback func(K, V)) func() {
	return self.setCallbacks.Add(callback)
}

func (self *Map[K, V]) OnRemoved(callback func(K)) func() {
	return self.removedCallbacks.Add(callback)
}

func (self *Map[K, V]) fireSet(k K, v V) {
	for _, callback := range self.setCallbacks.Get() {
		callback(k, v)
	}
}

func (self *Map[K, V]) fireRemoved(k K) {
	for _, callback := range self.removedCallbacks.Get() {
		callback(k)
	}
}

func (self *Map[K, V]) encodeSync(w *wire.Writer) {
	w.WriteTag(self.id, wire.ByteLength)
	entries := map[any]any{}
	for k, v := range self.entries {
		entries[any(k)] = any(v)
	}
	self.dictCodec.Encode(w, entries)
}

func (self *Map[K, V]) apply(messageType MessageType, keyWire wire.WireType, valueWire wire.WireType, r *wire.Reader) {
	switch messageType {
	case MessageSync:
		self.applyFull(self.dictCodec.DecodeChecked(r, valueWire))
	case MessageMapSet:
		k, ok := self.keyCodec.DecodeChecked(r, keyWire).(K)
		if !ok {
			r.Skip(valueWire)
			return
		}
		v, ok := self.valueCodec.DecodeChecked(r, valueWire).(V)
		if !ok {
			return
		}
		if current, present := self.entries[k]; present && current == v {
			// no-op deltas fire nothing
			return
		}
		self.entries[k] = v
		self.fireSet(k, v)
	case MessageMapRemove:
		// the tag carries the key's wire type
		k, ok := self.keyCodec.DecodeChecked(r, valueWire).(K)
		if !ok {
			return
		}
		if _, present := self.entries[k]; !present {
			return
		}
		delete(self.entries, k)
		self.fireRemoved(k)
	default:
		glog.Warningf("[dobj]%s: message type %d on map field %s", self.obj.path, messageType, self.name)
		r.Skip(valueWire)
	}
}

// applyFull diffs a full dictionary state against the current one.
func (self *Map[K, V]) applyFull(v any) {
	next := map[K]V{}
	if entries, ok := v.(map[any]any); ok {
		for entryKey, entryValue := range entries {
			typedKey, keyOk := entryKey.(K)
			typedValue, valueOk := entryValue.(V)
			if keyOk && valueOk {
				next[typedKey] = typedValue
			}
		}
	}
	for k := range self.entries {
		if _, ok := next[k]; !ok {
			delete(self.entries, k)
			self.fireRemoved(k)
		}
	}
	for k, nextValue := range next {
		if current, ok := self.entries[k]; !ok || current != nextValue {
			self.entries[k] = nextValue
			self.fireSet(k, nextValue)
		}
	}
}

func (self *Map[K, V]) DocValue() (any, bool) {
	doc := map[string]any{}
	for k, v := range self.entries {
		doc[wire.DocKeyString(self.keyCodec.ToDoc(k))] = self.valueCodec.ToDoc(v)
	}
	return doc, true
}

func (self *Map[K, V]) DocApply(v any) {
	doc, ok := v.(map[string]any)
	if !ok {
		return
	}
	next := map[K]V{}
	for docKey, docValue := range doc {
		typedKey, keyOk := wire.DocKeyParse(self.keyCodec, docKey).(K)
		typedValue, valueOk := self.valueCodec.FromDoc(docValue).(V)
		if keyOk && valueOk {
			next[typedKey] = typedValue
		}
	}
	for k := range self.entries {
		if _, ok := next[k]; !ok {
			delete(self.entries, k)
			self.fireRemoved(k)
		}
	}
	for k, nextValue := range next {
		if current, ok := self.entries[k]; !ok || current != nextValue {
			self.entries[k] = nextValue
			self.fireSet(k, nextValue)
		}
	}
}
