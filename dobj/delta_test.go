package dobj

import (
	"fmt"
	"testing"

	"github.com/go-playground/assert/v2"

	"statelink.io/dobj/wire"
)

type testState struct {
	name *Value[string]
	players *Set[string]
	scores *Map[string, int32]
}

func buildTestState(obj *DObject) *testState {
	return &testState{
		name: NewValue[string](obj, 1, "roomName", wire.StringCodec),
		players: NewSet[string](obj, 2, "players", wire.StringCodec),
		scores: NewMap[string, int32](obj, 3, "scores", wire.StringCodec, wire.Int32Codec),
	}
}

// pipe relays every delta the writer emits straight into the replica.
func pipe(writer *DObject, replica *DObject) func() {
	return writer.OnMessage(func(b []byte) {
		replica.ClientDecode(wire.NewReader(b, "pipe"))
	})
}

// syncOnce applies the writer's full state to the replica.
func syncOnce(writer *DObject, replica *DObject) {
	w := wire.NewWriter()
	writer.ServerEncode(w)
	replica.ClientDecode(wire.NewReader(w.Bytes(), "sync"))
}

func TestSyncApply(t *testing.T) {
	path := NewPath(Elem(2, "lobby"))
	var serverSide *testState
	serverObj := NewServerObject(path, func(obj *DObject) {
		serverSide = buildTestState(obj)
	})
	serverSide.name.Set("Lobby")
	serverSide.players.Add("alice")
	serverSide.scores.Set("alice", 7)

	var clientSide *testState
	clientObj := NewObject(path, BackingServer, func(obj *DObject) {
		clientSide = buildTestState(obj)
	})
	assert.Equal(t, clientObj.State(), StateResolving)

	syncOnce(serverObj, clientObj)

	assert.Equal(t, clientObj.State(), StateActive)
	assert.Equal(t, clientSide.name.Get(), "Lobby")
	assert.Equal(t, clientSide.players.Has("alice"), true)
	score, ok := clientSide.scores.Get("alice")
	assert.Equal(t, ok, true)
	assert.Equal(t, score, int32(7))

	_ = serverObj
}

func TestSetConvergence(t *testing.T) {
	path := NewPath(Elem(2, "arena"))
	var serverSide, clientSide *testState
	serverObj := NewServerObject(path, func(obj *DObject) {
		serverSide = buildTestState(obj)
	})
	clientObj := NewObject(path, BackingServer, func(obj *DObject) {
		clientSide = buildTestState(obj)
	})
	syncOnce(serverObj, clientObj)

	events := []string{}
	clientSide.players.OnAdded(func(player string) {
		events = append(events, "added "+player)
	})
	clientSide.players.OnRemoved(func(player string) {
		events = append(events, "removed "+player)
	})

	remove := pipe(serverObj, clientObj)
	defer remove()

	serverSide.players.Add("alice")
	serverSide.players.Add("bob")
	serverSide.players.Remove("alice")

	assert.Equal(t, events, []string{"added alice", "added bob", "removed alice"})
	assert.Equal(t, clientSide.players.Len(), 1)
	assert.Equal(t, clientSide.players.Has("bob"), true)
}

func TestMapSetNoOp(t *testing.T) {
	path := NewPath(Elem(2, "arena"))
	var serverSide, clientSide *testState
	serverObj := NewServerObject(path, func(obj *DObject) {
		serverSide = buildTestState(obj)
	})
	clientObj := NewObject(path, BackingServer, func(obj *DObject) {
		clientSide = buildTestState(obj)
	})
	syncOnce(serverObj, clientObj)

	setCount := 0
	clientSide.scores.OnSet(func(player string, score int32) {
		setCount += 1
	})

	remove := pipe(serverObj, clientObj)
	defer remove()

	serverSide.scores.Set("alice", 7)
	// the writer short-circuits the duplicate set
	serverSide.scores.Set("alice", 7)
	assert.Equal(t, setCount, 1)

	// a duplicate delta on the wire is also a no-op for the replica
	w := wire.NewWriter()
	w.WriteVarUint(uint64(MessageMapSet))
	w.WriteMapTag(3, wire.ByteLength, wire.VarInt)
	wire.StringCodec.Encode(w, "alice")
	wire.Int32Codec.Encode(w, int32(7))
	clientObj.ClientDecode(wire.NewReader(w.Bytes(), "test"))
	assert.Equal(t, setCount, 1)
}

func TestSetAddDuplicateDelta(t *testing.T) {
	path := NewPath(Elem(2, "arena"))
	var clientSide *testState
	clientObj := NewObject(path, BackingServer, func(obj *DObject) {
		clientSide = buildTestState(obj)
	})

	addCount := 0
	clientSide.players.OnAdded(func(player string) {
		addCount += 1
	})

	add := func() {
		w := wire.NewWriter()
		w.WriteVarUint(uint64(MessageSetAdd))
		w.WriteTag(2, wire.ByteLength)
		wire.StringCodec.Encode(w, "alice")
		clientObj.ClientDecode(wire.NewReader(w.Bytes(), "test"))
	}
	add()
	add()

	assert.Equal(t, addCount, 1)
	assert.Equal(t, clientSide.players.Len(), 1)
}

func TestSyncDiff(t *testing.T) {
	path := NewPath(Elem(2, "arena"))
	var serverSide, clientSide *testState
	serverObj := NewServerObject(path, func(obj *DObject) {
		serverSide = buildTestState(obj)
	})
	clientObj := NewObject(path, BackingServer, func(obj *DObject) {
		clientSide = buildTestState(obj)
	})

	serverSide.name.Set("Arena")
	serverSide.players.Add("alice")
	serverSide.players.Add("bob")
	serverSide.scores.Set("alice", 1)
	serverSide.scores.Set("bob", 2)
	syncOnce(serverObj, clientObj)

	// mutate while "disconnected", then re-sync
	serverSide.players.Remove("alice")
	serverSide.players.Add("carol")
	serverSide.scores.Set("bob", 3)

	events := []string{}
	clientSide.name.OnChange(func(name string) {
		events = append(events, "name "+name)
	})
	clientSide.players.OnAdded(func(player string) {
		events = append(events, "added "+player)
	})
	clientSide.players.OnRemoved(func(player string) {
		events = append(events, "removed "+player)
	})
	clientSide.scores.OnSet(func(player string, score int32) {
		events = append(events, fmt.Sprintf("set %s=%d", player, score))
	})
	clientSide.scores.OnRemoved(func(player string) {
		events = append(events, "cleared "+player)
	})

	syncOnce(serverObj, clientObj)

	// equal entries fire nothing: no name event, no alice score event
	assert.Equal(t, contains(events, "name Arena"), false)
	assert.Equal(t, contains(events, "set alice=1"), false)
	assert.Equal(t, contains(events, "removed alice"), true)
	assert.Equal(t, contains(events, "added carol"), true)
	assert.Equal(t, contains(events, "set bob=3"), true)

	assert.Equal(t, clientSide.players.Has("alice"), false)
	assert.Equal(t, clientSide.players.Has("bob"), true)
	assert.Equal(t, clientSide.players.Has("carol"), true)
	score, _ := clientSide.scores.Get("bob")
	assert.Equal(t, score, int32(3))
}

func contains(events []string, event string) bool {
	for _, e := range events {
		if e == event {
			return true
		}
	}
	return false
}

func TestDeltaBeforeSync(t *testing.T) {
	path := NewPath(Elem(2, "arena"))
	var clientSide *testState
	clientObj := NewObject(path, BackingServer, func(obj *DObject) {
		clientSide = buildTestState(obj)
	})

	w := wire.NewWriter()
	w.WriteVarUint(uint64(MessageValueChange))
	w.WriteTag(1, wire.ByteLength)
	wire.StringCodec.Encode(w, "Early")
	clientObj.ClientDecode(wire.NewReader(w.Bytes(), "test"))

	// applied best-effort, but the state stays non-active until sync
	assert.Equal(t, clientSide.name.Get(), "Early")
	assert.Equal(t, clientObj.State(), StateResolving)
}

func TestUnknownFieldForwardCompat(t *testing.T) {
	path := NewPath(Elem(2, "arena"))
	var serverSide, clientSide *testState
	serverObj := NewServerObject(path, func(obj *DObject) {
		serverSide = buildTestState(obj)
	})
	clientObj := NewObject(path, BackingServer, func(obj *DObject) {
		clientSide = buildTestState(obj)
	})
	serverSide.name.Set("Arena")

	// a newer server appends field 99 to the sync
	w := wire.NewWriter()
	serverObj.ServerEncode(w)
	w.WriteTag(99, wire.VarInt)
	w.WriteVarUint(42)

	clientObj.ClientDecode(wire.NewReader(w.Bytes(), "test"))
	assert.Equal(t, clientObj.State(), StateActive)
	assert.Equal(t, clientSide.name.Get(), "Arena")
}

func TestReplicaConvergence(t *testing.T) {
	path := NewPath(Elem(2, "arena"))
	var serverSide, clientSide *testState
	serverObj := NewServerObject(path, func(obj *DObject) {
		serverSide = buildTestState(obj)
	})
	clientObj := NewObject(path, BackingServer, func(obj *DObject) {
		clientSide = buildTestState(obj)
	})
	syncOnce(serverObj, clientObj)

	remove := pipe(serverObj, clientObj)
	defer remove()

	serverSide.name.Set("A")
	serverSide.name.Set("B")
	for i := 0; i < 16; i += 1 {
		player := fmt.Sprintf("p%d", i%5)
		if i%3 == 0 {
			serverSide.players.Remove(player)
		} else {
			serverSide.players.Add(player)
		}
		serverSide.scores.Set(player, int32(i))
	}
	serverSide.scores.Remove("p0")

	assert.Equal(t, clientSide.name.Get(), serverSide.name.Get())
	assert.Equal(t, clientSide.players.Len(), serverSide.players.Len())
	for _, player := range serverSide.players.Values() {
		assert.Equal(t, clientSide.players.Has(player), true)
	}
	assert.Equal(t, clientSide.scores.Snapshot(), serverSide.scores.Snapshot())
}

func TestAuthorityViolationPanics(t *testing.T) {
	path := NewPath(Elem(2, "arena"))
	var clientSide *testState
	NewObject(path, BackingServer, func(obj *DObject) {
		clientSide = buildTestState(obj)
	})

	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic mutating a server-backed object from the client")
		}
	}()
	clientSide.name.Set("nope")
}

func TestDocStoreBackedClientIsWriter(t *testing.T) {
	client := NewClient(ctxForTest(t), &ClientSettings{})
	defer client.Close()

	var state *testState
	handle := client.Resolve(NewPath(Elem(9, "mine")), BackingDocStore, func(obj *DObject) {
		state = buildTestState(obj)
	})
	defer handle.Release()

	client.Run(func() {
		state.name.Set("ok")
	})
	client.Run(func() {
		assert.Equal(t, state.name.Get(), "ok")
	})
}
