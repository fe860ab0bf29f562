// Package rooms is the demo schema hosted by dobjd: a tree of chat rooms
// under the root, each with a name, a player set, a score map, and a chat
// queue.
package rooms

import (
	"context"
	"strings"

	"statelink.io/dobj/dobj"
	"statelink.io/dobj/wire"
)

// root field ids. MetaQueueFieldId is 1; application fields start above it.
const (
	RoomsCollectionId = 2
	PrivateCollectionId = 3
	MotdFieldId = 4
)

// room field ids
const (
	RoomNameFieldId = 1
	PlayersFieldId = 2
	ScoresFieldId = 3
	ChatFieldId = 4
)

type ChatPost struct {
	Text string
}

type ChatEvent struct {
	UserId string
	Text string
}

var chatPostCodec = wire.StructCodec(&wire.StructSpec{
	Name: "rooms.ChatPost",
	Nullable: true,
	New: func() any {
		return &ChatPost{}
	},
	Fields: []wire.FieldSpec{
		{
			Id: 1,
			Name: "text",
			Codec: wire.StringCodec,
			Get: func(record any) any {
				return record.(*ChatPost).Text
			},
			Set: func(record any, value any) {
				record.(*ChatPost).Text = value.(string)
			},
		},
	},
})

var chatEventCodec = wire.StructCodec(&wire.StructSpec{
	Name: "rooms.ChatEvent",
	Nullable: true,
	New: func() any {
		return &ChatEvent{}
	},
	Fields: []wire.FieldSpec{
		{
			Id: 1,
			Name: "userId",
			Codec: wire.StringCodec,
			Get: func(record any) any {
				return record.(*ChatEvent).UserId
			},
			Set: func(record any, value any) {
				record.(*ChatEvent).UserId = value.(string)
			},
		},
		{
			Id: 2,
			Name: "text",
			Codec: wire.StringCodec,
			Get: func(record any) any {
				return record.(*ChatEvent).Text
			},
			Set: func(record any, value any) {
				record.(*ChatEvent).Text = value.(string)
			},
		},
	},
})

// Room is the typed view over a room object's fields.
type Room struct {
	Obj *dobj.DObject
	RoomName *dobj.Value[string]
	Players *dobj.Set[string]
	Scores *dobj.Map[string, int32]
	Chat *dobj.Queue[*ChatPost, *ChatEvent]
}

// Attach declares the room fields on a fresh object.
func Attach(obj *dobj.DObject) *Room {
	return &Room{
		Obj: obj,
		RoomName: dobj.NewValue[string](obj, RoomNameFieldId, "roomName", wire.StringCodec),
		Players: dobj.NewSet[string](obj, PlayersFieldId, "players", wire.StringCodec),
		Scores: dobj.NewMap[string, int32](obj, ScoresFieldId, "scores", wire.StringCodec, wire.Int32Codec),
		Chat: dobj.NewQueue[*ChatPost, *ChatEvent](obj, ChatFieldId, "chat", chatPostCodec, chatEventCodec),
	}
}

// FromObject recovers the typed view from an already built object.
func FromObject(obj *dobj.DObject) *Room {
	roomName, _ := obj.Field(RoomNameFieldId)
	players, _ := obj.Field(PlayersFieldId)
	scores, _ := obj.Field(ScoresFieldId)
	chat, _ := obj.Field(ChatFieldId)
	return &Room{
		Obj: obj,
		RoomName: roomName.(*dobj.Value[string]),
		Players: players.(*dobj.Set[string]),
		Scores: scores.(*dobj.Map[string, int32]),
		Chat: chat.(*dobj.Queue[*ChatPost, *ChatEvent]),
	}
}

// Root is the typed view over the root object's application fields.
type Root struct {
	Obj *dobj.DObject
	Rooms *dobj.Collection
	Private *dobj.Collection
	Motd *dobj.Value[string]
}

// BuildServerRoot declares the server root: a public rooms collection, a
// private per-user collection, and a message-of-the-day value. run executes
// work on the server loop; populators use it for field mutations. onRoom, if
// set, runs over each freshly materialised room before it is served — the
// daemon uses it to attach document-store persistence. It may suspend; an
// error fails the resolution.
func BuildServerRoot(run func(func()), onRoom func(ctx context.Context, room *Room) error) (func(*dobj.DObject), *Root) {
	root := &Root{}
	populate := func(ctx context.Context, child *dobj.DObject, defaultName string) error {
		if onRoom != nil {
			if err := onRoom(ctx, FromObject(child)); err != nil {
				return err
			}
		}
		run(func() {
			room := FromObject(child)
			// restored state wins over the default
			if room.RoomName.Get() == "" && defaultName != "" {
				room.RoomName.Set(defaultName)
			}
		})
		return nil
	}
	build := func(obj *dobj.DObject) {
		root.Obj = obj
		root.Rooms = dobj.NewCollection(obj, RoomsCollectionId, "rooms", &dobj.CollectionSettings{
			New: func(path dobj.Path) *dobj.DObject {
				return dobj.NewServerObject(path, func(child *dobj.DObject) {
					Attach(child)
				})
			},
			Populate: func(ctx context.Context, child *dobj.DObject) error {
				key := child.Path()[len(child.Path())-1].Key
				return populate(ctx, child, titleCase(key))
			},
		})
		root.Private = dobj.NewCollection(obj, PrivateCollectionId, "private", &dobj.CollectionSettings{
			New: func(path dobj.Path) *dobj.DObject {
				return dobj.NewServerObject(path, func(child *dobj.DObject) {
					Attach(child)
				})
			},
			CanAccess: func(ctx context.Context, session *dobj.Session, key string) (bool, error) {
				return session != nil && session.UserId() == key, nil
			},
			Populate: func(ctx context.Context, child *dobj.DObject) error {
				return populate(ctx, child, "")
			},
		})
		root.Motd = dobj.NewValue[string](obj, MotdFieldId, "motd", wire.StringCodec)
	}
	return build, root
}

// BuildClientRoot declares the matching client root schema.
func BuildClientRoot() (func(*dobj.DObject), *Root) {
	root := &Root{}
	build := func(obj *dobj.DObject) {
		root.Obj = obj
		root.Rooms = dobj.NewCollection(obj, RoomsCollectionId, "rooms", &dobj.CollectionSettings{
			New: func(path dobj.Path) *dobj.DObject {
				return dobj.NewObject(path, dobj.BackingServer, func(child *dobj.DObject) {
					Attach(child)
				})
			},
		})
		root.Private = dobj.NewCollection(obj, PrivateCollectionId, "private", &dobj.CollectionSettings{
			New: func(path dobj.Path) *dobj.DObject {
				return dobj.NewObject(path, dobj.BackingServer, func(child *dobj.DObject) {
					Attach(child)
				})
			},
		})
		root.Motd = dobj.NewValue[string](obj, MotdFieldId, "motd", wire.StringCodec)
	}
	return build, root
}

// RoomPath locates a public room.
func RoomPath(key string) dobj.Path {
	return dobj.NewPath(dobj.Elem(RoomsCollectionId, key))
}

// PrivatePath locates a per-user private room.
func PrivatePath(key string) dobj.Path {
	return dobj.NewPath(dobj.Elem(PrivateCollectionId, key))
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
