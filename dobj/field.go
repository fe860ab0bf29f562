package dobj

import (
	"github.com/golang/glog"

	"statelink.io/dobj/wire"
)

// Field is one member of a DObject, identified by a numeric id unique within
// the object.
type Field interface {
	Id() uint32
	Name() string
	Object() *DObject

	// DocName is the `{name}${id}` document field name.
	DocName() string
	// DocValue returns the field's document form. false when the field
	// carries no document state (queues, collections).
	DocValue() (any, bool)
	// DocApply replaces the field's state from its document form,
	// firing the same events a full sync would.
	DocApply(v any)

	// encodeSync appends the field's ValueChange-style frame to a Sync
	// message. Fields with no sync state append nothing.
	encodeSync(w *wire.Writer)
	// apply consumes one delta for this field. keyWire is set only for
	// MessageMapSet; valueWire is the wire type carried in the tag.
	apply(messageType MessageType, keyWire wire.WireType, valueWire wire.WireType, r *wire.Reader)
	// decodePost consumes one inbound client post for this field.
	decodePost(session *Session, r *wire.Reader)
}

type field struct {
	obj *DObject
	id uint32
	name string
}

func (self *field) Id() uint32 {
	return self.id
}

func (self *field) Name() string {
	return self.name
}

func (self *field) Object() *DObject {
	return self.obj
}

func (self *field) DocName() string {
	return wire.DocFieldName(self.name, self.id)
}

func (self *field) decodePost(session *Session, r *wire.Reader) {
	glog.Warningf("[dobj]%s: post to non-queue field %s", self.obj.path, self.name)
	r.Skip(wire.ByteLength)
}

// Value holds one scalar or record value, resent whole on change.
type Value[T comparable] struct {
	field
	codec *wire.Codec
	current T
	changedCallbacks *CallbackList[func(T)]
}

func NewValue[T comparable](obj *DObject, id uint32, name string, codec *wire.Codec) *Value[T] {
	value := &Value[T]{
		field: field{
			obj: obj,
			id: id,
			name: name,
		},
		codec: codec,
		changedCallbacks: NewCallbackList[func(T)](),
	}
	if zero, ok := codec.ZeroValue.(T); ok {
		value.current = zero
	}
	obj.attach(value)
	return value
}

func (self *Value[T]) Get() T {
	return self.current
}

// Set mutates the value on the writer side and emits a ValueChange delta.
func (self *Value[T]) Set(v T) {
	self.obj.assertWriter()
	if self.current == v {
		return
	}
	self.current = v
	self.obj.emit(func(w *wire.Writer) {
		w.WriteVarUint(uint64(MessageValueChange))
		w.WriteTag(self.id, self.codec.Wire)
		self.codec.Encode(w, v)
	})
	self.obj.emitDelta(Delta{
		Field: self,
		Type: MessageValueChange,
		Value: self.codec.ToDoc(v),
	})
	self.fire(v)
}

func (self *Value[T]) OnChange(callback func(T)) func() {
	return self.changedCallbacks.Add(callback)
}

func (self *Value[T]) fire(v T) {
	for _, callback := range self.changedCallbacks.Get() {
		callback(v)
	}
}

func (self *Value[T]) encodeSync(w *wire.Writer) {
	w.WriteTag(self.id, self.codec.Wire)
	self.codec.Encode(w, self.current)
}

func (self *Value[T]) apply(messageType MessageType, keyWire wire.WireType, valueWire wire.WireType, r *wire.Reader) {
	switch messageType {
	case MessageSync, MessageValueChange:
		v, ok := self.codec.DecodeChecked(r, valueWire).(T)
		if !ok {
			return
		}
		if v == self.current {
			return
		}
		self.current = v
		self.fire(v)
	default:
		glog.Warningf("[dobj]%s: message type %d on value field %s", self.obj.path, messageType, self.name)
		r.Skip(valueWire)
	}
}

func (self *Value[T]) DocValue() (any, bool) {
	return self.codec.ToDoc(self.current), true
}

func (self *Value[T]) DocApply(v any) {
	decoded, ok := self.codec.FromDoc(v).(T)
	if !ok {
		return
	}
	if decoded == self.current {
		return
	}
	self.current = decoded
	self.fire(decoded)
}
