package docstore

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileStore keeps one cbor document per key under a root directory. Writes
// go through a temp file and rename. Good enough for single-node
// persistence; swap in a real document store client for anything shared.
type FileStore struct {
	dir string
	mutex sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{
		dir: dir,
	}, nil
}

func (self *FileStore) docPath(key string) (string, error) {
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("bad document key %q", key)
	}
	return filepath.Join(self.dir, filepath.FromSlash(key)+".cbor"), nil
}

func (self *FileStore) Get(ctx context.Context, key string) (map[string]any, error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.read(key)
}

func (self *FileStore) read(key string) (map[string]any, error) {
	docPath, err := self.docPath(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(docPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := cbor.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	return normalizeDoc(raw), nil
}

func (self *FileStore) Set(ctx context.Context, key string, doc map[string]any) error {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.write(key, doc)
}

func (self *FileStore) write(key string, doc map[string]any) error {
	docPath, err := self.docPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(docPath), 0o755); err != nil {
		return err
	}
	b, err := cbor.Marshal(doc)
	if err != nil {
		return err
	}
	tmpPath := docPath + ".tmp"
	if err := os.WriteFile(tmpPath, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, docPath)
}

func (self *FileStore) Update(ctx context.Context, key string, fields map[string]any) error {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	doc, err := self.read(key)
	if err != nil {
		return err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	for fieldPath, value := range fields {
		applyUpdate(doc, fieldPath, value)
	}
	return self.write(key, doc)
}

func (self *FileStore) Close() error {
	return nil
}

// normalizeDoc rewrites cbor's map[any]any decoding into the map[string]any
// shape the mapping layer works with, and cbor's uint64 decoding of
// non-negative integers back into the int64 the mapping layer writes.
func normalizeDoc(doc map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range doc {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := map[string]any{}
		for k, nested := range t {
			if s, ok := k.(string); ok {
				out[s] = normalizeValue(nested)
			}
		}
		return out
	case map[string]any:
		return normalizeDoc(t)
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			out[i] = normalizeValue(elem)
		}
		return out
	case uint64:
		if t <= math.MaxInt64 {
			return int64(t)
		}
		return t
	default:
		return v
	}
}
