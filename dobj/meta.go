package dobj

import (
	"statelink.io/dobj/wire"
)

// The root object carries one well-known queue that is the only transport
// for subscription control. Application fields on the root use ids above
// MetaQueueFieldId.
const MetaQueueFieldId = 1

// MetaQueue is the root control channel type.
//
// This is spelled out as *Queue[MetaRequest, MetaResponse] at each use site
// rather than as a type alias: a type alias here hits a known Go compiler
// limitation (golang/go#50729) that misreports a recursive type because of
// the Field/DObject interface cycle.

// MetaRequest is an upstream control request from the client.
type MetaRequest interface {
	isMetaRequest()
}

type Authenticate struct {
	UserId string
	Token string
}

type Subscribe struct {
	ObjectId uint32
	Path Path
}

type Unsubscribe struct {
	ObjectId uint32
}

func (self *Authenticate) isMetaRequest() {}
func (self *Subscribe) isMetaRequest() {}
func (self *Unsubscribe) isMetaRequest() {}

// MetaResponse is a downstream control failure from the server.
type MetaResponse interface {
	isMetaResponse()
}

type AuthenticateFailed struct {
	Cause string
}

type SubscribeFailed struct {
	ObjectId uint32
	Cause string
}

func (self *AuthenticateFailed) isMetaResponse() {}
func (self *SubscribeFailed) isMetaResponse() {}

var authenticateSpec = &wire.StructSpec{
	Name: "dobj.Authenticate",
	TypeId: 1,
	New: func() any {
		return &Authenticate{}
	},
	Matches: func(v any) bool {
		_, ok := v.(*Authenticate)
		return ok
	},
	Fields: []wire.FieldSpec{
		{
			Id: 1,
			Name: "userId",
			Codec: wire.StringCodec,
			Get: func(record any) any {
				return record.(*Authenticate).UserId
			},
			Set: func(record any, value any) {
				record.(*Authenticate).UserId = value.(string)
			},
		},
		{
			Id: 2,
			Name: "token",
			Codec: wire.StringCodec,
			Get: func(record any) any {
				return record.(*Authenticate).Token
			},
			Set: func(record any, value any) {
				record.(*Authenticate).Token = value.(string)
			},
		},
	},
}

var subscribeSpec = &wire.StructSpec{
	Name: "dobj.Subscribe",
	TypeId: 2,
	New: func() any {
		return &Subscribe{}
	},
	Matches: func(v any) bool {
		_, ok := v.(*Subscribe)
		return ok
	},
	Fields: []wire.FieldSpec{
		{
			Id: 1,
			Name: "objectId",
			Codec: wire.Uint32Codec,
			Get: func(record any) any {
				return record.(*Subscribe).ObjectId
			},
			Set: func(record any, value any) {
				record.(*Subscribe).ObjectId = value.(uint32)
			},
		},
		{
			Id: 2,
			Name: "path",
			Codec: PathCodec,
			Get: func(record any) any {
				return record.(*Subscribe).Path
			},
			Set: func(record any, value any) {
				record.(*Subscribe).Path = value.(Path)
			},
		},
	},
}

var unsubscribeSpec = &wire.StructSpec{
	Name: "dobj.Unsubscribe",
	TypeId: 3,
	New: func() any {
		return &Unsubscribe{}
	},
	Matches: func(v any) bool {
		_, ok := v.(*Unsubscribe)
		return ok
	},
	Fields: []wire.FieldSpec{
		{
			Id: 1,
			Name: "objectId",
			Codec: wire.Uint32Codec,
			Get: func(record any) any {
				return record.(*Unsubscribe).ObjectId
			},
			Set: func(record any, value any) {
				record.(*Unsubscribe).ObjectId = value.(uint32)
			},
		},
	},
}

var authenticateFailedSpec = &wire.StructSpec{
	Name: "dobj.AuthenticateFailed",
	TypeId: 1,
	New: func() any {
		return &AuthenticateFailed{}
	},
	Matches: func(v any) bool {
		_, ok := v.(*AuthenticateFailed)
		return ok
	},
	Fields: []wire.FieldSpec{
		{
			Id: 1,
			Name: "cause",
			Codec: wire.StringCodec,
			Get: func(record any) any {
				return record.(*AuthenticateFailed).Cause
			},
			Set: func(record any, value any) {
				record.(*AuthenticateFailed).Cause = value.(string)
			},
		},
	},
}

var subscribeFailedSpec = &wire.StructSpec{
	Name: "dobj.SubscribeFailed",
	TypeId: 2,
	New: func() any {
		return &SubscribeFailed{}
	},
	Matches: func(v any) bool {
		_, ok := v.(*SubscribeFailed)
		return ok
	},
	Fields: []wire.FieldSpec{
		{
			Id: 1,
			Name: "objectId",
			Codec: wire.Uint32Codec,
			Get: func(record any) any {
				return record.(*SubscribeFailed).ObjectId
			},
			Set: func(record any, value any) {
				record.(*SubscribeFailed).ObjectId = value.(uint32)
			},
		},
		{
			Id: 2,
			Name: "cause",
			Codec: wire.StringCodec,
			Get: func(record any) any {
				return record.(*SubscribeFailed).Cause
			},
			Set: func(record any, value any) {
				record.(*SubscribeFailed).Cause = value.(string)
			},
		},
	},
}

var metaRequestCodec = wire.StructCodec(&wire.StructSpec{
	Name: "dobj.MetaRequest",
	Subtypes: []*wire.StructSpec{
		authenticateSpec,
		subscribeSpec,
		unsubscribeSpec,
	},
})

var metaResponseCodec = wire.StructCodec(&wire.StructSpec{
	Name: "dobj.MetaResponse",
	Subtypes: []*wire.StructSpec{
		authenticateFailedSpec,
		subscribeFailedSpec,
	},
})

// newMetaQueue installs the control queue on a root object under
// construction.
func newMetaQueue(obj *DObject) *Queue[MetaRequest, MetaResponse] {
	return NewQueue[MetaRequest, MetaResponse](obj, MetaQueueFieldId, "meta", metaRequestCodec, metaResponseCodec)
}
