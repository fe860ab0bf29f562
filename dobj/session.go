package dobj

import (
	"time"

	"github.com/golang/glog"

	"github.com/gorilla/websocket"

	"statelink.io/dobj/wire"
)

// Session is one websocket connection on the server: the client-chosen
// object ids attached to it, its identity, and its serialised send path.
// All state runs on the server loop.
type Session struct {
	server *Server
	conn *websocket.Conn
	remoteAddr string

	objects map[uint32]*DObject
	objectIds map[*DObject]uint32
	detachers map[uint32]func()

	userId string
	userIdCallbacks *CallbackList[func(string)]

	// scratch encoder for sync frames
	w *wire.Writer

	sendQueue [][]byte
	sendInFlight bool

	closed bool
}

func newSession(server *Server, conn *websocket.Conn) *Session {
	return &Session{
		server: server,
		conn: conn,
		remoteAddr: conn.RemoteAddr().String(),
		objects: map[uint32]*DObject{},
		objectIds: map[*DObject]uint32{},
		detachers: map[uint32]func(){},
		userIdCallbacks: NewCallbackList[func(string)](),
		w: wire.NewWriter(),
	}
}

// UserId is the session identity established by Authenticate, empty before.
func (self *Session) UserId() string {
	return self.userId
}

func (self *Session) OnUserIdChange(callback func(string)) func() {
	return self.userIdCallbacks.Add(callback)
}

// open runs on the loop when the websocket opens. The root is attached under
// id 0 unconditionally so the client has the meta queue immediately.
func (self *Session) open() {
	glog.V(1).Infof("[s]%s open", self.remoteAddr)
	self.SubscribeToObject(0, self.server.root)
}

// SubscribeToObject attaches an object under a client-chosen id, hooks its
// delta channel, and enqueues its full sync. The sync is enqueued before any
// mutation handler can fire, so it always precedes deltas on this session.
func (self *Session) SubscribeToObject(id uint32, obj *DObject) {
	if self.closed {
		return
	}
	if existing, ok := self.objects[id]; ok {
		glog.Warningf("[s]%s re-subscribe of id %d", self.remoteAddr, id)
		if existing == obj {
			return
		}
		self.UnsubscribeFromObject(id)
	}

	self.objects[id] = obj
	self.objectIds[obj] = id
	self.detachers[id] = obj.OnMessage(func(payload []byte) {
		self.sendFramed(id, payload)
	})

	self.w.Reset()
	obj.ServerEncode(self.w)
	self.sendFramed(id, self.w.Bytes())

	glog.V(1).Infof("[s]%s subscribe %d %s", self.remoteAddr, id, obj.path)
	obj.fireSubscribed(self)
}

func (self *Session) UnsubscribeFromObject(id uint32) {
	obj, ok := self.objects[id]
	if !ok {
		return
	}
	self.detachers[id]()
	delete(self.detachers, id)
	delete(self.objects, id)
	delete(self.objectIds, obj)
	glog.V(1).Infof("[s]%s unsubscribe %d %s", self.remoteAddr, id, obj.path)
	obj.fireUnsubscribed(self)
}

// sendToObject frames a payload for an object already attached to this
// session. Payloads for unattached objects are dropped.
func (self *Session) sendToObject(obj *DObject, payload []byte) {
	id, ok := self.objectIds[obj]
	if !ok {
		glog.V(1).Infof("[s]%s send to unattached %s", self.remoteAddr, obj.path)
		return
	}
	self.sendFramed(id, payload)
}

// sendMeta sends a control response on the meta queue.
func (self *Session) sendMeta(response MetaResponse) {
	self.server.meta.Send(response, self)
}

func (self *Session) sendFramed(id uint32, payload []byte) {
	if self.closed {
		return
	}
	w := wire.NewWriterSize(wire.VarUintSize(uint64(id)) + len(payload))
	w.WriteVarUint(uint64(id))
	w.WriteRaw(payload)
	self.send(append([]byte{}, w.Bytes()...))
}

// send serialises outbound writes per session: a single outstanding write
// plus a FIFO queue. This is what guarantees per-object delta order.
func (self *Session) send(frame []byte) {
	if self.sendInFlight {
		self.sendQueue = append(self.sendQueue, frame)
		return
	}
	self.sendInFlight = true
	go self.write(frame)
}

func (self *Session) write(frame []byte) {
	self.conn.SetWriteDeadline(time.Now().Add(self.server.settings.WriteTimeout))
	err := self.conn.WriteMessage(websocket.BinaryMessage, frame)
	self.server.loop.Post(func() {
		self.writeDone(err)
	})
}

func (self *Session) writeDone(err error) {
	if self.closed {
		return
	}
	if err != nil {
		glog.Infof("[s]%s write error = %s", self.remoteAddr, err)
		// the read pump observes the close and drives the teardown
		self.conn.Close()
		return
	}
	if 0 < len(self.sendQueue) {
		frame := self.sendQueue[0]
		self.sendQueue = self.sendQueue[1:]
		go self.write(frame)
	} else {
		self.sendInFlight = false
	}
}

// handleMessage runs on the loop for each inbound frame:
// `(object id) ‖ (field tag) ‖ payload`, an upstream queue post.
func (self *Session) handleMessage(b []byte) {
	if self.closed {
		return
	}
	r := wire.NewReader(b, "session "+self.remoteAddr)
	objectId := uint32(r.ReadVarUint())
	obj, ok := self.objects[objectId]
	if !ok {
		// may race with a just-unsubscribed object; keep the connection
		glog.Warningf("[s]%s message for unknown object id %d, dropping", self.remoteAddr, objectId)
		return
	}
	obj.decodePost(self, r)
}

// handleClose runs on the loop when the websocket closes: detach every
// handler and drop all references.
func (self *Session) handleClose() {
	if self.closed {
		return
	}
	self.closed = true
	glog.V(1).Infof("[s]%s close", self.remoteAddr)
	for id, detach := range self.detachers {
		detach()
		obj := self.objects[id]
		delete(self.objects, id)
		delete(self.objectIds, obj)
		obj.fireUnsubscribed(self)
	}
	self.detachers = map[uint32]func(){}
	self.sendQueue = nil
	delete(self.server.sessions, self)
}

func (self *Session) handleAuthenticate(request *Authenticate) {
	userId, err := self.server.authenticate(request)
	if err != nil {
		glog.Infof("[s]%s authenticate error = %s", self.remoteAddr, err)
		self.sendMeta(&AuthenticateFailed{
			Cause: "Authentication failed.",
		})
		return
	}
	glog.V(1).Infof("[s]%s authenticated %s", self.remoteAddr, userId)
	self.userId = userId
	for _, callback := range self.userIdCallbacks.Get() {
		callback(userId)
	}
}

// handleSubscribe resolves the path off-loop and attaches on completion.
// Friendly failures surface on the meta queue; everything else is logged
// server-side only.
func (self *Session) handleSubscribe(request *Subscribe) {
	go func() {
		obj, err := self.server.ResolveObject(self.server.ctx, self, request.Path)
		self.server.loop.Post(func() {
			if self.closed {
				return
			}
			if err != nil {
				if cause, ok := FriendlyCause(err); ok {
					self.sendMeta(&SubscribeFailed{
						ObjectId: request.ObjectId,
						Cause: cause,
					})
				} else {
					glog.Infof("[s]%s subscribe %s error = %s", self.remoteAddr, request.Path, err)
				}
				return
			}
			self.SubscribeToObject(request.ObjectId, obj)
		})
	}()
}

func (self *Session) handleUnsubscribe(request *Unsubscribe) {
	if request.ObjectId == 0 {
		// the root stays attached for the life of the session
		return
	}
	self.UnsubscribeFromObject(request.ObjectId)
}
