package dobj

import (
	"fmt"

	"github.com/golang/glog"

	"statelink.io/dobj/wire"
)

type State int

const (
	StateResolving State = iota
	StateFailed
	StateActive
	StateDisconnected
	StateDisposed
)

func (self State) String() string {
	switch self {
	case StateResolving:
		return "resolving"
	case StateFailed:
		return "failed"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("state(%d)", int(self))
	}
}

// Backing declares where an object's authoritative state lives.
type Backing int

const (
	BackingServer Backing = iota
	// the client is the writer and an external document store holds the state
	BackingDocStore
)

func (self Backing) String() string {
	switch self {
	case BackingServer:
		return "server"
	case BackingDocStore:
		return "docstore"
	default:
		return fmt.Sprintf("backing(%d)", int(self))
	}
}

// MessageType leads every delta payload. Upstream queue posts are the one
// exception: they carry `(field tag) ‖ payload` with no message type.
type MessageType uint64

const (
	MessageSync MessageType = 0
	MessageValueChange MessageType = 1
	MessageSetAdd MessageType = 2
	MessageSetRemove MessageType = 3
	MessageMapSet MessageType = 4
	MessageMapRemove MessageType = 5
	MessageQueueReceive MessageType = 6
)

// Delta describes one writer-side mutation in document form, for
// write-through to an external document store.
type Delta struct {
	Field Field
	Type MessageType
	// document key string for set elements and map keys
	Key string
	// document-form value, nil for removes
	Value any
}

// DObject is one replicated object: a record of typed fields identified by
// stable numeric ids. The server (or the client, for docstore-backed
// objects) authoritatively mutates it; subscribers receive incremental
// deltas. All access happens on the owning side's loop.
type DObject struct {
	path Path
	backing Backing
	writable bool
	name string

	// client-local id. 0 for the root and for server-side objects
	id uint32
	client *Client

	state State
	synced bool

	fields map[uint32]Field
	fieldOrder []Field

	stateCallbacks *CallbackList[func(State)]
	messageCallbacks *CallbackList[func([]byte)]
	deltaCallbacks *CallbackList[func(Delta)]
	subscribedCallbacks *CallbackList[func(*Session)]
	unsubscribedCallbacks *CallbackList[func(*Session)]
}

func newDObject(path Path, backing Backing, writable bool) *DObject {
	return &DObject{
		path: path,
		backing: backing,
		writable: writable,
		state: StateResolving,
		fields: map[uint32]Field{},
		fieldOrder: []Field{},
		stateCallbacks: NewCallbackList[func(State)](),
		messageCallbacks: NewCallbackList[func([]byte)](),
		deltaCallbacks: NewCallbackList[func(Delta)](),
		subscribedCallbacks: NewCallbackList[func(*Session)](),
		unsubscribedCallbacks: NewCallbackList[func(*Session)](),
	}
}

// NewServerObject creates an authoritative server-side object. The build
// function declares the fields.
func NewServerObject(path Path, build func(*DObject)) *DObject {
	obj := newDObject(path, BackingServer, true)
	obj.state = StateActive
	obj.synced = true
	if build != nil {
		build(obj)
	}
	return obj
}

// NewObject creates a detached schema object: not writable, not subscribed.
// Collections use these on the client side to materialise intermediate path
// nodes.
func NewObject(path Path, backing Backing, build func(*DObject)) *DObject {
	obj := newDObject(path, backing, false)
	if build != nil {
		build(obj)
	}
	return obj
}

func newClientObject(client *Client, id uint32, path Path, backing Backing, build func(*DObject)) *DObject {
	// for docstore-backed objects the client is the writer
	obj := newDObject(path, backing, backing == BackingDocStore)
	obj.client = client
	obj.id = id
	if build != nil {
		build(obj)
	}
	return obj
}

func (self *DObject) Path() Path {
	return self.path
}

func (self *DObject) Backing() Backing {
	return self.backing
}

func (self *DObject) Id() uint32 {
	return self.id
}

func (self *DObject) State() State {
	return self.state
}

func (self *DObject) Field(id uint32) (Field, bool) {
	field, ok := self.fields[id]
	return field, ok
}

func (self *DObject) Fields() []Field {
	return self.fieldOrder
}

func (self *DObject) OnStateChange(callback func(State)) func() {
	return self.stateCallbacks.Add(callback)
}

// OnMessage observes every emitted delta payload for this object,
// already framed with its message type but not with the object id.
func (self *DObject) OnMessage(callback func([]byte)) func() {
	return self.messageCallbacks.Add(callback)
}

// OnDelta observes writer-side mutations in document form.
func (self *DObject) OnDelta(callback func(Delta)) func() {
	return self.deltaCallbacks.Add(callback)
}

// OnSubscribed fires when a session attaches to this object,
// after its full sync was enqueued.
func (self *DObject) OnSubscribed(callback func(*Session)) func() {
	return self.subscribedCallbacks.Add(callback)
}

func (self *DObject) OnUnsubscribed(callback func(*Session)) func() {
	return self.unsubscribedCallbacks.Add(callback)
}

func (self *DObject) attach(field Field) {
	if _, ok := self.fields[field.Id()]; ok {
		panic(fmt.Sprintf("duplicate field id %d on %s", field.Id(), self.path))
	}
	self.fields[field.Id()] = field
	self.fieldOrder = append(self.fieldOrder, field)
}

// assertWriter guards authoritative mutation: the server for server-backed
// objects, the client for docstore-backed ones. A violation is a programming
// error, not a protocol error.
func (self *DObject) assertWriter() {
	if !self.writable {
		panic(fmt.Sprintf("mutation of %s-backed object %s from the non-writer side", self.backing, self.path))
	}
}

func (self *DObject) setState(state State) {
	if self.state == state {
		return
	}
	if self.state == StateDisposed {
		// disposed is terminal
		return
	}
	self.state = state
	for _, callback := range self.stateCallbacks.Get() {
		callback(state)
	}
}

// emit builds one delta payload and hands it to every message listener.
// On the server, sessions frame it with their local object id and enqueue it.
func (self *DObject) emit(build func(w *wire.Writer)) {
	callbacks := self.messageCallbacks.Get()
	deltaCallbacks := self.deltaCallbacks.Get()
	if len(callbacks) == 0 && len(deltaCallbacks) == 0 {
		// no subscribers and no document binding
		return
	}
	w := wire.NewWriter()
	build(w)
	b := w.Bytes()
	for _, callback := range callbacks {
		callback(b)
	}
}

func (self *DObject) emitDelta(delta Delta) {
	for _, callback := range self.deltaCallbacks.Get() {
		callback(delta)
	}
}

// ServerEncode writes the full-state Sync message: one ValueChange-style
// frame per field, concatenated until the message ends.
func (self *DObject) ServerEncode(w *wire.Writer) {
	w.WriteVarUint(uint64(MessageSync))
	for _, field := range self.fieldOrder {
		field.encodeSync(w)
	}
}

// ClientDecode applies one received payload, already stripped of its object
// id prefix.
func (self *DObject) ClientDecode(r *wire.Reader) {
	messageType := MessageType(r.ReadVarUint())
	if !self.synced && messageType != MessageSync {
		glog.Infof("[dobj]%s: delta %d before sync, applying best-effort", self.path, messageType)
	}
	switch messageType {
	case MessageSync:
		self.applySync(r)
	case MessageValueChange, MessageSetAdd, MessageSetRemove, MessageMapRemove, MessageQueueReceive:
		id, valueWire := wire.SplitTag(r.ReadVarUint())
		field, ok := self.fields[id]
		if !ok {
			glog.V(2).Infof("[dobj]%s: skipping unknown field %d", self.path, id)
			r.Skip(valueWire)
			return
		}
		field.apply(messageType, 0, valueWire, r)
	case MessageMapSet:
		id, keyWire, valueWire := wire.SplitMapTag(r.ReadVarUint())
		field, ok := self.fields[id]
		if !ok {
			glog.V(2).Infof("[dobj]%s: skipping unknown field %d", self.path, id)
			r.Skip(keyWire)
			r.Skip(valueWire)
			return
		}
		field.apply(messageType, keyWire, valueWire, r)
	default:
		glog.Warningf("[dobj]%s: unknown message type %d", self.path, messageType)
	}
}

// applySync applies a full state atomically: each field diffs its new state
// against its current one, firing removal events for absent entries and
// add/set events for new or changed ones, and nothing for equal ones.
func (self *DObject) applySync(r *wire.Reader) {
	for !r.End() {
		id, valueWire := wire.SplitTag(r.ReadVarUint())
		field, ok := self.fields[id]
		if !ok {
			glog.V(2).Infof("[dobj]%s: sync skipping unknown field %d", self.path, id)
			r.Skip(valueWire)
			continue
		}
		field.apply(MessageSync, 0, valueWire, r)
	}
	self.synced = true
	self.setState(StateActive)
}

// decodePost dispatches an inbound client post through the field table.
func (self *DObject) decodePost(session *Session, r *wire.Reader) {
	id, valueWire := wire.SplitTag(r.ReadVarUint())
	field, ok := self.fields[id]
	if !ok {
		glog.Warningf("[dobj]%s: post to unknown field %d", self.path, id)
		r.Skip(valueWire)
		return
	}
	field.decodePost(session, r)
}

// DocApply applies a full document snapshot, field by field, then marks the
// object active. A nil document activates a fresh object with defaults.
func (self *DObject) DocApply(doc map[string]any) {
	if doc != nil {
		for _, field := range self.fieldOrder {
			if docValue, ok := doc[field.DocName()]; ok {
				field.DocApply(docValue)
			}
		}
	}
	self.synced = true
	self.setState(StateActive)
}

// DocValue renders the object's full document form.
func (self *DObject) DocValue() map[string]any {
	doc := map[string]any{}
	for _, field := range self.fieldOrder {
		if docValue, ok := field.DocValue(); ok {
			doc[field.DocName()] = docValue
		}
	}
	return doc
}

func (self *DObject) onDisconnect() {
	if self.state == StateActive || self.state == StateResolving {
		self.synced = false
		self.setState(StateDisconnected)
	}
}

func (self *DObject) fireSubscribed(session *Session) {
	for _, callback := range self.subscribedCallbacks.Get() {
		callback(session)
	}
}

func (self *DObject) fireUnsubscribed(session *Session) {
	for _, callback := range self.unsubscribedCallbacks.Get() {
		callback(session)
	}
}
