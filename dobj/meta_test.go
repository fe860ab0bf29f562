package dobj

import (
	"context"
	"testing"

	"github.com/go-playground/assert/v2"

	"statelink.io/dobj/wire"
)

func ctxForTest(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func metaRequestRoundTrip(t *testing.T, request MetaRequest) MetaRequest {
	w := wire.NewWriter()
	metaRequestCodec.Encode(w, request)
	assert.Equal(t, w.Len(), metaRequestCodec.Size(request))

	r := wire.NewReader(w.Bytes(), "test")
	decoded := metaRequestCodec.Decode(r)
	assert.Equal(t, r.End(), true)
	if decoded == nil {
		return nil
	}
	return decoded.(MetaRequest)
}

func TestMetaRequestRoundTrip(t *testing.T) {
	authenticate := metaRequestRoundTrip(t, &Authenticate{
		UserId: "alice",
		Token: "tok",
	})
	assert.Equal(t, authenticate, &Authenticate{UserId: "alice", Token: "tok"})

	subscribe := metaRequestRoundTrip(t, &Subscribe{
		ObjectId: 3,
		Path: NewPath(Elem(2, "lobby")),
	}).(*Subscribe)
	assert.Equal(t, subscribe.ObjectId, uint32(3))
	assert.Equal(t, subscribe.Path.Equal(NewPath(Elem(2, "lobby"))), true)

	unsubscribe := metaRequestRoundTrip(t, &Unsubscribe{
		ObjectId: 3,
	})
	assert.Equal(t, unsubscribe, &Unsubscribe{ObjectId: 3})
}

func TestMetaResponseRoundTrip(t *testing.T) {
	for _, response := range []MetaResponse{
		&AuthenticateFailed{Cause: "bad token"},
		&SubscribeFailed{ObjectId: 7, Cause: "Access denied."},
	} {
		w := wire.NewWriter()
		metaResponseCodec.Encode(w, response)
		assert.Equal(t, w.Len(), metaResponseCodec.Size(response))

		r := wire.NewReader(w.Bytes(), "test")
		assert.Equal(t, metaResponseCodec.Decode(r), response)
		assert.Equal(t, r.End(), true)
	}
}

func TestMetaQueuePostDispatch(t *testing.T) {
	var meta *Queue[MetaRequest, MetaResponse]
	root := NewServerObject(Path{}, nil)
	meta = newMetaQueue(root)

	var posted MetaRequest
	meta.OnPosted(func(request MetaRequest, session *Session) {
		posted = request
	})

	// a client frames the post as `(field tag) ‖ request`
	w := wire.NewWriter()
	w.WriteTag(MetaQueueFieldId, metaRequestCodec.Wire)
	metaRequestCodec.Encode(w, &Authenticate{UserId: "alice"})

	root.decodePost(nil, wire.NewReader(w.Bytes(), "test"))
	assert.Equal(t, posted, &Authenticate{UserId: "alice"})
}
