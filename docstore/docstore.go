package docstore

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/exp/maps"
)

// Store is the external document store behind docstore-backed objects. Keys
// are slash-joined paths; documents are field maps. Update merges, with
// dotted field paths addressing nested entries and the Delete sentinel
// removing them.
type Store interface {
	// Get returns the document at key, nil when absent.
	Get(ctx context.Context, key string) (map[string]any, error)
	// Set replaces the whole document at key.
	Set(ctx context.Context, key string, doc map[string]any) error
	// Update merges fields into the document at key, creating it if
	// absent.
	Update(ctx context.Context, key string, fields map[string]any) error
	Close() error
}

type deleteSentinel struct{}

// Delete is the field-delete sentinel for Update.
var Delete any = deleteSentinel{}

// applyUpdate merges one dotted-path field into a document.
func applyUpdate(doc map[string]any, fieldPath string, value any) {
	parts := strings.Split(fieldPath, ".")
	for i := 0; i < len(parts)-1; i += 1 {
		next, ok := doc[parts[i]].(map[string]any)
		if !ok {
			if value == Delete {
				return
			}
			next = map[string]any{}
			doc[parts[i]] = next
		}
		doc = next
	}
	leaf := parts[len(parts)-1]
	if value == Delete {
		delete(doc, leaf)
	} else {
		doc[leaf] = value
	}
}

// MemStore is an in-memory Store for tests and single-process use.
type MemStore struct {
	mutex sync.Mutex
	docs map[string]map[string]any
}

func NewMemStore() *MemStore {
	return &MemStore{
		docs: map[string]map[string]any{},
	}
}

func (self *MemStore) Get(ctx context.Context, key string) (map[string]any, error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	doc, ok := self.docs[key]
	if !ok {
		return nil, nil
	}
	return cloneDoc(doc), nil
}

func (self *MemStore) Set(ctx context.Context, key string, doc map[string]any) error {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.docs[key] = cloneDoc(doc)
	return nil
}

func (self *MemStore) Update(ctx context.Context, key string, fields map[string]any) error {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	doc, ok := self.docs[key]
	if !ok {
		doc = map[string]any{}
		self.docs[key] = doc
	}
	for fieldPath, value := range fields {
		applyUpdate(doc, fieldPath, value)
	}
	return nil
}

func (self *MemStore) Close() error {
	return nil
}

// Keys lists the stored document keys.
func (self *MemStore) Keys() []string {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return maps.Keys(self.docs)
}

func cloneDoc(doc map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range doc {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneDoc(nested)
		} else {
			out[k] = v
		}
	}
	return out
}
