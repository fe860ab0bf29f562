package docstore

import (
	"context"
	"flag"
	"testing"

	"github.com/go-playground/assert/v2"
)

func init() {
	flag.Set("logtostderr", "true")
}

func TestMemStoreUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	defer store.Close()

	err := store.Update(ctx, "root/a", map[string]any{
		"roomName$1": "Lobby",
		"players$2.alice": true,
	})
	assert.Equal(t, err, nil)

	err = store.Update(ctx, "root/a", map[string]any{
		"players$2.bob": true,
		"players$2.alice": Delete,
	})
	assert.Equal(t, err, nil)

	doc, err := store.Get(ctx, "root/a")
	assert.Equal(t, err, nil)
	assert.Equal(t, doc["roomName$1"], "Lobby")
	assert.Equal(t, doc["players$2"], map[string]any{"bob": true})
}

func TestMemStoreGetIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	defer store.Close()

	store.Set(ctx, "k", map[string]any{"a$1": "x"})
	doc, _ := store.Get(ctx, "k")
	doc["a$1"] = "mutated"

	doc2, _ := store.Get(ctx, "k")
	assert.Equal(t, doc2["a$1"], "x")
}

func TestMemStoreMissing(t *testing.T) {
	store := NewMemStore()
	defer store.Close()
	doc, err := store.Get(context.Background(), "absent")
	assert.Equal(t, err, nil)
	assert.Equal(t, doc, nil)
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	assert.Equal(t, err, nil)
	defer store.Close()

	doc := map[string]any{
		"roomName$1": "Lobby",
		"players$2": map[string]any{
			"alice": true,
		},
		"pos$5": []any{1.0, 2.0, 3.0},
	}
	assert.Equal(t, store.Set(ctx, "rooms$2/lobby", doc), nil)

	loaded, err := store.Get(ctx, "rooms$2/lobby")
	assert.Equal(t, err, nil)
	assert.Equal(t, loaded["roomName$1"], "Lobby")
	assert.Equal(t, loaded["players$2"], map[string]any{"alice": true})
	assert.Equal(t, loaded["pos$5"], []any{1.0, 2.0, 3.0})
}

func TestFileStoreUpdate(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	assert.Equal(t, err, nil)
	defer store.Close()

	assert.Equal(t, store.Update(ctx, "k", map[string]any{"scores$3.alice": int64(7)}), nil)
	assert.Equal(t, store.Update(ctx, "k", map[string]any{"scores$3.alice": Delete, "scores$3.bob": int64(1)}), nil)

	doc, err := store.Get(ctx, "k")
	assert.Equal(t, err, nil)
	scores := doc["scores$3"].(map[string]any)
	_, hasAlice := scores["alice"]
	assert.Equal(t, hasAlice, false)
	assert.Equal(t, scores["bob"], int64(1))
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	assert.Equal(t, err, nil)
	defer store.Close()
	_, err = store.Get(context.Background(), "../escape")
	assert.NotEqual(t, err, nil)
}
