package dobj

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang/glog"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/gorilla/websocket"
)

type ServerSettings struct {
	// websocket endpoint path; any other path answers 200 empty for
	// healthchecks
	DataPath string
	WriteTimeout time.Duration
	ReadLimit int64
	// HMAC secret for verifying Authenticate tokens. Empty accepts the
	// declared user id verbatim.
	AuthSecret string
}

func DefaultServerSettings() *ServerSettings {
	return &ServerSettings{
		DataPath: "/data",
		WriteTimeout: 5 * time.Second,
		ReadLimit: 1 << 22,
	}
}

// Server owns the authoritative object tree and fans deltas out to
// subscribed sessions. It is an http.Handler: websocket upgrades on the data
// path, healthcheck 200 everywhere else.
type Server struct {
	ctx context.Context
	cancel context.CancelFunc

	settings *ServerSettings
	loop *Loop

	root *DObject
	meta *Queue[MetaRequest, MetaResponse]

	sessions map[*Session]bool

	upgrader websocket.Upgrader
}

func NewServerWithDefaults(ctx context.Context, buildRoot func(*DObject)) *Server {
	return NewServer(ctx, buildRoot, DefaultServerSettings())
}

func NewServer(ctx context.Context, buildRoot func(*DObject), settings *ServerSettings) *Server {
	cancelCtx, cancel := context.WithCancel(ctx)
	server := &Server{
		ctx: cancelCtx,
		cancel: cancel,
		settings: settings,
		loop: NewLoop(cancelCtx),
		sessions: map[*Session]bool{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	root := NewServerObject(Path{}, nil)
	server.meta = newMetaQueue(root)
	if buildRoot != nil {
		buildRoot(root)
	}
	server.root = root

	server.meta.OnPosted(func(request MetaRequest, session *Session) {
		if session == nil {
			return
		}
		switch v := request.(type) {
		case *Authenticate:
			session.handleAuthenticate(v)
		case *Subscribe:
			session.handleSubscribe(v)
		case *Unsubscribe:
			session.handleUnsubscribe(v)
		default:
			glog.Warningf("[s]unknown meta request %T", request)
		}
	})

	return server
}

func (self *Server) Root() *DObject {
	return self.root
}

// Post schedules work on the server loop. Application mutations of
// server objects go through here.
func (self *Server) Post(f func()) {
	self.loop.Post(f)
}

// Run schedules work on the server loop and waits for it.
func (self *Server) Run(f func()) {
	self.loop.Run(f)
}

func (self *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != self.settings.DataPath {
		// healthcheck
		w.WriteHeader(http.StatusOK)
		return
	}

	conn, err := self.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Infof("[s]upgrade error = %s", err)
		return
	}
	if 0 < self.settings.ReadLimit {
		conn.SetReadLimit(self.settings.ReadLimit)
	}

	session := newSession(self, conn)
	self.loop.Post(func() {
		self.sessions[session] = true
		session.open()
	})
	go self.readPump(session, conn)
}

// readPump runs per connection on an I/O goroutine, reposting every frame to
// the loop.
func (self *Server) readPump(session *Session, conn *websocket.Conn) {
	defer conn.Close()
	for {
		messageType, b, err := conn.ReadMessage()
		if err != nil {
			self.loop.Post(session.handleClose)
			return
		}
		if messageType != websocket.BinaryMessage || len(b) == 0 {
			continue
		}
		self.loop.Post(func() {
			session.handleMessage(b)
		})
	}
}

// authenticate derives the session identity from an Authenticate request.
// With a configured secret the token is verified and the user id comes from
// its claims; otherwise the declared id is accepted as-is.
func (self *Server) authenticate(request *Authenticate) (string, error) {
	if self.settings.AuthSecret == "" {
		glog.V(1).Infof("[s]accepting declared user id %s without verification", request.UserId)
		return request.UserId, nil
	}

	token, err := gojwt.Parse(
		request.Token,
		func(token *gojwt.Token) (any, error) {
			if _, ok := token.Method.(*gojwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return []byte(self.settings.AuthSecret), nil
		},
	)
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(gojwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("bad token claims")
	}
	userId, ok := claims["user_id"].(string)
	if !ok || userId == "" {
		return "", fmt.Errorf("token missing user_id")
	}
	return userId, nil
}

// ResolveObject walks a path from the root. Each step must name a collection
// field; access checks and populators may suspend the walk, but all object
// state is only touched on the loop. Concurrent resolvers of one key share a
// single materialisation.
func (self *Server) ResolveObject(ctx context.Context, session *Session, path Path) (*DObject, error) {
	current := self.root
	for i := 0; i < len(path); i += 1 {
		elem := path[i]

		var collection *Collection
		self.loop.Run(func() {
			if field, ok := current.fields[elem.CollectionId]; ok {
				collection, _ = field.(*Collection)
			}
		})
		if collection == nil {
			return nil, fmt.Errorf("path %s: field %d of %s is not a collection", path, elem.CollectionId, current.path)
		}

		// suspension point
		if collection.settings.CanAccess != nil {
			allowed, err := collection.settings.CanAccess(ctx, session, elem.Key)
			if err != nil {
				return nil, err
			}
			if !allowed {
				return nil, NewFriendlyError("Access denied.")
			}
		}

		var res *resolution
		var created bool
		self.loop.Run(func() {
			res, created = collection.resolutionFor(elem.Key)
		})

		if created {
			var child *DObject
			self.loop.Run(func() {
				child = collection.settings.New(collection.childPath(elem.Key))
			})
			var populateErr error
			if collection.settings.Populate != nil {
				// suspension point
				populateErr = collection.settings.Populate(ctx, child)
			}
			self.loop.Run(func() {
				if populateErr != nil {
					res.err = populateErr
				} else {
					res.obj = child
				}
				close(res.done)
			})
		} else {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-res.done:
			}
		}

		if res.err != nil {
			return nil, res.err
		}
		current = res.obj
	}
	return current, nil
}

// Close tears down the loop. Open websockets close via their own pumps.
func (self *Server) Close() {
	self.cancel()
}
