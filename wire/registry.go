package wire

import (
	"fmt"
	"sync"
)

// Process-wide codec cache. Codecs are built once per type from schema
// metadata and memoised by type name: a write-once mapping read many times.
var registry = struct {
	mutex sync.RWMutex
	codecs map[string]*Codec
}{
	codecs: map[string]*Codec{},
}

func registerCodec(name string, build func() *Codec) *Codec {
	registry.mutex.RLock()
	codec, ok := registry.codecs[name]
	registry.mutex.RUnlock()
	if ok {
		return codec
	}

	codec = build()

	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	if existing, ok := registry.codecs[name]; ok {
		return existing
	}
	registry.codecs[name] = codec
	return codec
}

// LookupCodec returns the memoised codec for a registered type name.
func LookupCodec(name string) (*Codec, bool) {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	codec, ok := registry.codecs[name]
	return codec, ok
}

// Ref resolves a registered codec lazily, for self- and mutually-recursive
// record types. The name must be registered before the first encode or
// decode through the reference.
func Ref(name string) *Codec {
	var resolveOnce sync.Once
	var resolved *Codec
	resolve := func() *Codec {
		resolveOnce.Do(func() {
			codec, ok := LookupCodec(name)
			if !ok {
				panic(fmt.Sprintf("codec reference %q used before registration", name))
			}
			resolved = codec
		})
		return resolved
	}
	return &Codec{
		// recursive records are always length-delimited
		Wire: ByteLength,
		Encode: func(w *Writer, v any) {
			resolve().Encode(w, v)
		},
		Decode: func(r *Reader) any {
			return resolve().Decode(r)
		},
		Size: func(v any) int {
			return resolve().Size(v)
		},
		ToDoc: func(v any) any {
			return resolve().ToDoc(v)
		},
		FromDoc: func(v any) any {
			return resolve().FromDoc(v)
		},
		ZeroValue: nil,
	}
}

// DocFieldName is the `{name}${id}` document field convention.
func DocFieldName(name string, id uint32) string {
	return fmt.Sprintf("%s$%d", name, id)
}
