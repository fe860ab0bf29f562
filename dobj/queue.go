package dobj

import (
	"github.com/golang/glog"

	"statelink.io/dobj/wire"
)

// Queue is a bi-directional ephemeral message channel: the client posts
// upstream messages, the writer broadcasts or sends downstream ones.
// Messages are never retained.
type Queue[Up any, Down any] struct {
	field
	upCodec *wire.Codec
	downCodec *wire.Codec
	// writer side: inbound client posts, with the posting session
	// (nil for docstore-backed local posts)
	postedCallbacks *CallbackList[func(Up, *Session)]
	// subscriber side: downstream messages
	receivedCallbacks *CallbackList[func(Down)]
}

func NewQueue[Up any, Down any](obj *DObject, id uint32, name string, upCodec *wire.Codec, downCodec *wire.Codec) *Queue[Up, Down] {
	queue := &Queue[Up, Down]{
		field: field{
			obj: obj,
			id: id,
			name: name,
		},
		upCodec: upCodec,
		downCodec: downCodec,
		postedCallbacks: NewCallbackList[func(Up, *Session)](),
		receivedCallbacks: NewCallbackList[func(Down)](),
	}
	obj.attach(queue)
	return queue
}

// Post sends one upstream message. Client only: for a server-backed object
// it forwards over the connection; for a docstore-backed object with no
// server present it fires the posted listeners locally.
func (self *Queue[Up, Down]) Post(up Up) {
	obj := self.obj
	if obj.backing == BackingDocStore {
		self.firePosted(up, nil)
		return
	}
	if obj.client == nil {
		panic("queue post from the server side")
	}
	w := wire.NewWriter()
	w.WriteTag(self.id, self.upCodec.Wire)
	self.upCodec.Encode(w, up)
	obj.client.post(obj, w.Bytes())
}

// Broadcast writes one downstream message through the object's delta
// channel, fanning out to every subscribed session.
func (self *Queue[Up, Down]) Broadcast(down Down) {
	self.obj.assertWriter()
	self.obj.emit(func(w *wire.Writer) {
		self.encodeReceive(w, down)
	})
	if self.obj.backing == BackingDocStore {
		self.fireReceived(down)
	}
}

// Send unicasts one downstream message to a single session.
func (self *Queue[Up, Down]) Send(down Down, session *Session) {
	self.obj.assertWriter()
	w := wire.NewWriter()
	self.encodeReceive(w, down)
	session.sendToObject(self.obj, w.Bytes())
}

func (self *Queue[Up, Down]) encodeReceive(w *wire.Writer, down Down) {
	w.WriteVarUint(uint64(MessageQueueReceive))
	w.WriteTag(self.id, self.downCodec.Wire)
	self.downCodec.Encode(w, down)
}

func (self *Queue[Up, Down]) OnPosted(callback func(Up, *Session)) func() {
	return self.postedCallbacks.Add(callback)
}

func (self *Queue[Up, Down]) OnReceived(callback func(Down)) func() {
	return self.receivedCallbacks.Add(callback)
}

func (self *Queue[Up, Down]) firePosted(up Up, session *Session) {
	for _, callback := range self.postedCallbacks.Get() {
		callback(up, session)
	}
}

func (self *Queue[Up, Down]) fireReceived(down Down) {
	for _, callback := range self.receivedCallbacks.Get() {
		callback(down)
	}
}

// queues carry no state in a sync
func (self *Queue[Up, Down]) encodeSync(w *wire.Writer) {
}

func (self *Queue[Up, Down]) apply(messageType MessageType, keyWire wire.WireType, valueWire wire.WireType, r *wire.Reader) {
	if messageType != MessageQueueReceive {
		glog.Warningf("[dobj]%s: message type %d on queue field %s", self.obj.path, messageType, self.name)
		r.Skip(valueWire)
		return
	}
	down, ok := self.downCodec.DecodeChecked(r, valueWire).(Down)
	if !ok {
		return
	}
	self.fireReceived(down)
}

func (self *Queue[Up, Down]) decodePost(session *Session, r *wire.Reader) {
	up, ok := self.upCodec.Decode(r).(Up)
	if !ok {
		glog.Warningf("[dobj]%s: undecodable post on queue field %s", self.obj.path, self.name)
		return
	}
	self.firePosted(up, session)
}

func (self *Queue[Up, Down]) DocValue() (any, bool) {
	return nil, false
}

func (self *Queue[Up, Down]) DocApply(v any) {
}
