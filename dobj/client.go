package dobj

import (
	"context"
	"sort"
	"time"

	"github.com/golang/glog"

	"github.com/gorilla/websocket"

	"statelink.io/dobj/wire"
)

// TokenSource provides the client's identity. Change listeners fire when a
// fresh token should be fetched.
type TokenSource interface {
	Token(ctx context.Context) (userId string, token string, err error)
	OnChange(callback func()) func()
}

// StaticTokenSource is a fixed identity, mostly for tools and tests.
type StaticTokenSource struct {
	UserId string
	TokenValue string
}

func (self *StaticTokenSource) Token(ctx context.Context) (string, string, error) {
	return self.UserId, self.TokenValue, nil
}

func (self *StaticTokenSource) OnChange(callback func()) func() {
	return func() {}
}

type ClientSettings struct {
	Url string
	WsHandshakeTimeout time.Duration
	WriteTimeout time.Duration
	// reconnect delay is min(2^attempts, 2^MaxReconnectExponent) seconds
	MaxReconnectExponent int
	TokenSource TokenSource
	BuildRoot func(*DObject)
}

func DefaultClientSettings() *ClientSettings {
	return &ClientSettings{
		WsHandshakeTimeout: 2 * time.Second,
		WriteTimeout: 5 * time.Second,
		MaxReconnectExponent: 9,
	}
}

type connectionState int

const (
	connectionIdle connectionState = iota
	connectionConnecting
	connectionOpen
	connectionClosed
	connectionReconnecting
)

type handleEntry struct {
	obj *DObject
	pathKey string
	refs int
}

// Handle is a counted reference to a resolved object. The last release
// disposes the object, un-subscribes it, and recycles its id.
type Handle struct {
	client *Client
	entry *handleEntry
	released bool
}

func (self *Handle) Object() *DObject {
	return self.entry.obj
}

func (self *Handle) Release() {
	self.client.loop.Run(func() {
		if self.released {
			return
		}
		self.released = true
		self.entry.refs -= 1
		if self.entry.refs == 0 {
			self.client.dispose(self.entry)
		}
	})
}

// Client is the singleton per-process subscription endpoint. It owns the
// handle table, the id recycler, and the reconnect state machine. All object
// state lives on the client's loop.
type Client struct {
	ctx context.Context
	cancel context.CancelFunc

	settings *ClientSettings
	loop *Loop

	root *DObject
	meta *Queue[MetaRequest, MetaResponse]

	// id -> entry, ids dense from 0, root always 0
	entries map[uint32]*handleEntry
	// path string -> entry, deduplicates Resolve calls
	pathEntries map[string]*handleEntry
	recycler *idRecycler

	userId string
	token string

	connState connectionState
	// guards callbacks from connections that have been superseded
	connGen int
	conn *websocket.Conn
	attempts int
	reconnectDesired bool

	sendQueue [][]byte
	sendInFlight bool

	removeTokenListener func()
}

func NewClientWithDefaults(ctx context.Context, url string, tokenSource TokenSource, buildRoot func(*DObject)) *Client {
	settings := DefaultClientSettings()
	settings.Url = url
	settings.TokenSource = tokenSource
	settings.BuildRoot = buildRoot
	return NewClient(ctx, settings)
}

func NewClient(ctx context.Context, settings *ClientSettings) *Client {
	cancelCtx, cancel := context.WithCancel(ctx)
	client := &Client{
		ctx: cancelCtx,
		cancel: cancel,
		settings: settings,
		loop: NewLoop(cancelCtx),
		entries: map[uint32]*handleEntry{},
		pathEntries: map[string]*handleEntry{},
		recycler: newIdRecycler(1),
		connState: connectionIdle,
	}

	root := newClientObject(client, 0, Path{}, BackingServer, nil)
	client.meta = newMetaQueue(root)
	if settings.BuildRoot != nil {
		settings.BuildRoot(root)
	}
	client.root = root
	rootEntry := &handleEntry{
		obj: root,
		pathKey: root.path.String(),
		// pinned for the life of the client
		refs: 1,
	}
	client.entries[0] = rootEntry
	client.pathEntries[rootEntry.pathKey] = rootEntry

	client.meta.OnReceived(client.handleMetaResponse)

	if settings.TokenSource != nil {
		client.removeTokenListener = settings.TokenSource.OnChange(func() {
			go client.refreshToken()
		})
		go client.refreshToken()
	}

	return client
}

// Root returns the root object, id 0, always resolvable.
func (self *Client) Root() *DObject {
	return self.root
}

// Post schedules work on the client loop.
func (self *Client) Post(f func()) {
	self.loop.Post(f)
}

// Run schedules work on the client loop and waits for it.
func (self *Client) Run(f func()) {
	self.loop.Run(f)
}

// Resolve returns a handle on the object at a path, constructing and
// subscribing it if this is the first live reference.
func (self *Client) Resolve(path Path, backing Backing, build func(*DObject)) *Handle {
	var handle *Handle
	self.loop.Run(func() {
		pathKey := path.String()
		if entry, ok := self.pathEntries[pathKey]; ok {
			entry.refs += 1
			handle = &Handle{
				client: self,
				entry: entry,
			}
			return
		}

		id := self.recycler.Allocate()
		obj := newClientObject(self, id, path, backing, build)
		entry := &handleEntry{
			obj: obj,
			pathKey: pathKey,
			refs: 1,
		}
		self.entries[id] = entry
		self.pathEntries[pathKey] = entry
		handle = &Handle{
			client: self,
			entry: entry,
		}

		glog.V(1).Infof("[c]resolve %s as %d", path, id)

		if backing == BackingServer {
			if self.connState == connectionOpen {
				self.postSubscribe(id, path)
			} else {
				self.maybeConnect()
			}
		}
	})
	return handle
}

// dispose runs on the loop when the last handle reference drops.
func (self *Client) dispose(entry *handleEntry) {
	obj := entry.obj
	glog.V(1).Infof("[c]dispose %s id %d", obj.path, obj.id)
	delete(self.entries, obj.id)
	delete(self.pathEntries, entry.pathKey)
	self.recycler.Recycle(obj.id)
	if obj.backing == BackingServer && self.connState == connectionOpen {
		self.meta.Post(&Unsubscribe{
			ObjectId: obj.id,
		})
	}
	obj.setState(StateDisposed)
	self.maybeDisconnect()
}

func (self *Client) hasLiveServerObject() bool {
	for id, entry := range self.entries {
		if id == 0 {
			continue
		}
		if entry.obj.backing == BackingServer && entry.obj.state != StateDisposed {
			return true
		}
	}
	return false
}

// maybeConnect dials iff not already connected or dialing, a user id is
// known, and at least one server-backed non-root object is alive. The root
// alone is not worth a connection.
func (self *Client) maybeConnect() {
	if self.connState == connectionOpen || self.connState == connectionConnecting {
		return
	}
	if self.userId == "" {
		return
	}
	if !self.hasLiveServerObject() {
		return
	}
	self.reconnectDesired = true
	self.connState = connectionConnecting
	self.connGen += 1
	glog.V(1).Infof("[c]connect %s attempt %d", self.settings.Url, self.attempts)
	go self.dial(self.connGen)
}

// maybeDisconnect closes iff open and only the root remains.
func (self *Client) maybeDisconnect() {
	if self.connState != connectionOpen {
		return
	}
	if self.hasLiveServerObject() {
		return
	}
	glog.V(1).Infof("[c]disconnect, root only")
	self.reconnectDesired = false
	self.conn.Close()
}

func (self *Client) dial(gen int) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: self.settings.WsHandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(self.ctx, self.settings.Url, nil)
	self.loop.Post(func() {
		self.dialDone(gen, conn, err)
	})
}

func (self *Client) dialDone(gen int, conn *websocket.Conn, err error) {
	if gen != self.connGen {
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		glog.Infof("[c]dial error = %s", err)
		self.handleClose(gen, err)
		return
	}

	self.conn = conn
	self.connState = connectionOpen
	self.attempts = 0
	self.sendQueue = nil
	self.sendInFlight = false

	go self.readPump(gen, conn)

	self.meta.Post(&Authenticate{
		UserId: self.userId,
		Token: self.token,
	})
	// re-subscribe every live server-backed handle, smallest id first
	ids := []int{}
	for id := range self.entries {
		if id != 0 {
			ids = append(ids, int(id))
		}
	}
	sort.Ints(ids)
	for _, id := range ids {
		entry := self.entries[uint32(id)]
		if entry.obj.backing == BackingServer && entry.obj.state != StateDisposed {
			self.postSubscribe(uint32(id), entry.obj.path)
		}
	}
}

func (self *Client) readPump(gen int, conn *websocket.Conn) {
	for {
		messageType, b, err := conn.ReadMessage()
		if err != nil {
			self.loop.Post(func() {
				self.handleClose(gen, err)
			})
			return
		}
		if messageType != websocket.BinaryMessage || len(b) == 0 {
			continue
		}
		self.loop.Post(func() {
			self.handleMessage(b)
		})
	}
}

// handleClose runs on the loop for dial errors, read errors, and write
// errors. It notifies every live object and schedules the reconnect.
func (self *Client) handleClose(gen int, err error) {
	if gen != self.connGen {
		// a superseded connection
		return
	}
	if self.connState == connectionReconnecting || self.connState == connectionIdle {
		// the write and read pumps can both observe one close
		return
	}
	if self.conn != nil {
		self.conn.Close()
		self.conn = nil
	}
	wasOpen := self.connState == connectionOpen
	self.connState = connectionClosed
	self.sendQueue = nil
	self.sendInFlight = false

	if wasOpen {
		glog.Infof("[c]closed = %s", err)
		for _, entry := range self.entries {
			entry.obj.onDisconnect()
		}
	}

	if !self.reconnectDesired || !self.hasLiveServerObject() {
		self.connState = connectionIdle
		return
	}

	delay := reconnectDelay(self.attempts, self.settings.MaxReconnectExponent)
	self.attempts += 1
	self.connState = connectionReconnecting
	glog.Infof("[c]reconnect in %s", delay)
	time.AfterFunc(delay, func() {
		self.loop.Post(func() {
			if self.connState == connectionReconnecting {
				self.connState = connectionIdle
				self.maybeConnect()
			}
		})
	})
}

func (self *Client) handleMessage(b []byte) {
	r := wire.NewReader(b, "client")
	objectId := uint32(r.ReadVarUint())
	entry, ok := self.entries[objectId]
	if !ok {
		// may race with a just-unsubscribed object
		glog.Warningf("[c]message for unknown object id %d, dropping", objectId)
		return
	}
	entry.obj.ClientDecode(r)
}

func (self *Client) handleMetaResponse(response MetaResponse) {
	switch v := response.(type) {
	case *SubscribeFailed:
		glog.Infof("[c]subscribe failed %d = %s", v.ObjectId, v.Cause)
		if entry, ok := self.entries[v.ObjectId]; ok {
			entry.obj.setState(StateFailed)
		}
	case *AuthenticateFailed:
		glog.Infof("[c]authenticate failed = %s", v.Cause)
	default:
		glog.Warningf("[c]unknown meta response %T", response)
	}
}

func (self *Client) postSubscribe(id uint32, path Path) {
	self.meta.Post(&Subscribe{
		ObjectId: id,
		Path: path,
	})
}

// post frames one upstream payload with the object id and sends it.
// Runs on the loop.
func (self *Client) post(obj *DObject, payload []byte) {
	if self.connState != connectionOpen {
		glog.Infof("[c]dropping post for %s, not connected", obj.path)
		return
	}
	w := wire.NewWriterSize(wire.VarUintSize(uint64(obj.id)) + len(payload))
	w.WriteVarUint(uint64(obj.id))
	w.WriteRaw(payload)
	self.send(append([]byte{}, w.Bytes()...))
}

// send serialises outbound writes: one outstanding write at a time plus a
// FIFO queue.
func (self *Client) send(frame []byte) {
	if self.sendInFlight {
		self.sendQueue = append(self.sendQueue, frame)
		return
	}
	self.sendInFlight = true
	go self.write(self.connGen, self.conn, frame)
}

func (self *Client) write(gen int, conn *websocket.Conn, frame []byte) {
	conn.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
	err := conn.WriteMessage(websocket.BinaryMessage, frame)
	self.loop.Post(func() {
		self.writeDone(gen, err)
	})
}

func (self *Client) writeDone(gen int, err error) {
	if gen != self.connGen {
		return
	}
	if err != nil {
		glog.Infof("[c]write error = %s", err)
		self.handleClose(gen, err)
		return
	}
	if 0 < len(self.sendQueue) {
		frame := self.sendQueue[0]
		self.sendQueue = self.sendQueue[1:]
		go self.write(gen, self.conn, frame)
	} else {
		self.sendInFlight = false
	}
}

// reconnectDelay is min(2^attempts, 2^maxExponent) seconds.
func reconnectDelay(attempts int, maxExponent int) time.Duration {
	exponent := attempts
	if maxExponent < exponent {
		exponent = maxExponent
	}
	return time.Duration(1<<uint(exponent)) * time.Second
}

// refreshToken fetches the current identity and re-authenticates or
// connects as appropriate.
func (self *Client) refreshToken() {
	userId, token, err := self.settings.TokenSource.Token(self.ctx)
	if err != nil {
		glog.Infof("[c]token error = %s", err)
		return
	}
	self.loop.Run(func() {
		self.userId = userId
		self.token = token
		if self.connState == connectionOpen {
			self.meta.Post(&Authenticate{
				UserId: self.userId,
				Token: self.token,
			})
		} else {
			self.maybeConnect()
		}
	})
}

// Close clears the reconnect flag, closes the connection, and stops the
// loop.
func (self *Client) Close() {
	self.loop.Run(func() {
		self.reconnectDesired = false
		if self.removeTokenListener != nil {
			self.removeTokenListener()
		}
		if self.conn != nil {
			self.conn.Close()
		}
	})
	self.cancel()
}
