package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"statelink.io/dobj/dobj"
	"statelink.io/dobj/rooms"
)

func newTestClient(t *testing.T) (*dobj.Client, *rooms.Root) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	build, root := rooms.BuildClientRoot()
	settings := dobj.DefaultClientSettings()
	settings.BuildRoot = build
	client := dobj.NewClient(ctx, settings)
	t.Cleanup(client.Close)
	return client, root
}

func waitActive(t *testing.T, client *dobj.Client, obj *dobj.DObject) {
	deadline := time.Now().Add(5 * time.Second)
	for {
		var state dobj.State
		client.Run(func() {
			state = obj.State()
		})
		if state == dobj.StateActive {
			return
		}
		if deadline.Before(time.Now()) {
			t.Fatalf("object never became active: %s", state)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestKeyForPath(t *testing.T) {
	client, _ := newTestClient(t)

	var key string
	var err error
	client.Run(func() {
		key, err = KeyForPath(client.Root(), rooms.RoomPath("lobby"))
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, key, "rooms$2/lobby")

	client.Run(func() {
		key, err = KeyForPath(client.Root(), dobj.Path{})
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, key, "root")

	client.Run(func() {
		_, err = KeyForPath(client.Root(), dobj.NewPath(dobj.Elem(99, "x")))
	})
	assert.NotEqual(t, err, nil)
}

func TestUpdateForDelta(t *testing.T) {
	client, _ := newTestClient(t)

	var room *rooms.Room
	handle := client.Resolve(rooms.RoomPath("mine"), dobj.BackingDocStore, func(obj *dobj.DObject) {
		room = rooms.Attach(obj)
	})
	defer handle.Release()

	var deltas []dobj.Delta
	client.Run(func() {
		handle.Object().OnDelta(func(delta dobj.Delta) {
			deltas = append(deltas, delta)
		})
		room.RoomName.Set("Mine")
		room.Players.Add("alice")
		room.Players.Remove("alice")
		room.Scores.Set("alice", 7)
		room.Scores.Remove("alice")
	})

	assert.Equal(t, len(deltas), 5)

	update, ok := UpdateForDelta(deltas[0])
	assert.Equal(t, ok, true)
	assert.Equal(t, update, map[string]any{"roomName$1": "Mine"})

	update, _ = UpdateForDelta(deltas[1])
	assert.Equal(t, update, map[string]any{"players$2.alice": true})

	update, _ = UpdateForDelta(deltas[2])
	assert.Equal(t, update, map[string]any{"players$2.alice": Delete})

	update, _ = UpdateForDelta(deltas[3])
	assert.Equal(t, update, map[string]any{"scores$3.alice": int64(7)})

	update, _ = UpdateForDelta(deltas[4])
	assert.Equal(t, update, map[string]any{"scores$3.alice": Delete})
}

func TestBindingLoadAndWriteThrough(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	defer store.Close()

	// a previous run left a document behind
	store.Set(ctx, "rooms$2/mine", map[string]any{
		"roomName$1": "Mine",
		"players$2": map[string]any{"alice": true},
	})

	client, _ := newTestClient(t)

	var room *rooms.Room
	handle := client.Resolve(rooms.RoomPath("mine"), dobj.BackingDocStore, func(obj *dobj.DObject) {
		room = rooms.Attach(obj)
	})
	defer handle.Release()

	binding, err := NewBinding(ctx, client, handle.Object(), store)
	assert.Equal(t, err, nil)
	defer binding.Close()
	assert.Equal(t, binding.Key(), "rooms$2/mine")

	waitActive(t, client, handle.Object())

	client.Run(func() {
		assert.Equal(t, room.RoomName.Get(), "Mine")
		assert.Equal(t, room.Players.Has("alice"), true)
	})

	// the client is the writer for docstore-backed objects
	client.Run(func() {
		room.Players.Add("bob")
		room.Scores.Set("bob", 3)
	})

	deadline := time.Now().Add(5 * time.Second)
	for {
		doc, err := store.Get(ctx, "rooms$2/mine")
		assert.Equal(t, err, nil)
		players, _ := doc["players$2"].(map[string]any)
		scores, _ := doc["scores$3"].(map[string]any)
		if players["bob"] == true && scores["bob"] == int64(3) {
			break
		}
		if deadline.Before(time.Now()) {
			t.Fatalf("write-through never landed: %v", doc)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBindingFlush(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	defer store.Close()

	client, _ := newTestClient(t)

	var room *rooms.Room
	handle := client.Resolve(rooms.RoomPath("flush"), dobj.BackingDocStore, func(obj *dobj.DObject) {
		room = rooms.Attach(obj)
	})
	defer handle.Release()

	binding, err := NewBinding(ctx, client, handle.Object(), store)
	assert.Equal(t, err, nil)
	defer binding.Close()

	waitActive(t, client, handle.Object())

	client.Run(func() {
		room.RoomName.Set("Flushed")
		room.Players.Add("alice")
	})

	assert.Equal(t, binding.Flush(), nil)

	doc, err := store.Get(ctx, "rooms$2/flush")
	assert.Equal(t, err, nil)
	assert.Equal(t, doc["roomName$1"], "Flushed")
	assert.Equal(t, doc["players$2"], map[string]any{"alice": true})
}
