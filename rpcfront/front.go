// Package rpcfront is the gRPC front door for a burrow.Cache[string, []byte]
// — the byte-value instantiation a network-facing cache service exposes,
// the same way Redis and memcached front doors work in raw bytes rather
// than arbitrary Go values. It wires together every teacher middleware
// package (auth, security, policy, contextx, interceptors, internal/core,
// ping, tracing) that the root burrow package itself has no use for, since
// those packages exist to build a grpc.Server, and burrow.Cache isn't one.
package rpcfront

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	grpcEncoding "google.golang.org/grpc/encoding"
	_ "google.golang.org/grpc/encoding/proto"
	"google.golang.org/protobuf/proto"

	"github.com/burrowcache/burrow"
)

const codecSubtype = "burrowfrontjson"

func init() {
	grpcEncoding.RegisterCodec(frontCodec{})
}

type frontMsg interface{ isFrontMsg() }

type frontCodec struct{}

func (frontCodec) Name() string { return codecSubtype }

func (frontCodec) Marshal(v any) ([]byte, error) {
	if _, ok := v.(frontMsg); ok {
		return json.Marshal(v)
	}
	if m, ok := v.(proto.Message); ok {
		return proto.Marshal(m)
	}
	return nil, fmt.Errorf("front codec: unsupported message type %T", v)
}

func (frontCodec) Unmarshal(data []byte, v any) error {
	if _, ok := v.(frontMsg); ok {
		return json.Unmarshal(data, v)
	}
	if m, ok := v.(proto.Message); ok {
		return proto.Unmarshal(data, m)
	}
	return fmt.Errorf("front codec: unsupported message type %T", v)
}

// ---------- wire types ----------

type GetRequest struct{ Key string }
type GetResponse struct {
	Status string
	Value  []byte
}

type SetRequest struct {
	Key   string
	Value []byte
	TTLMS *int64
	Async bool
}
type SetResponse struct{ Status string }

type DelRequest struct {
	Key   string
	Async bool
}
type DelResponse struct {
	Status  string
	Removed bool
}

type ExistsRequest struct{ Key string }
type ExistsResponse struct {
	Status string
	Exists bool
}

type TTLRequest struct{ Key string }
type TTLResponse struct {
	Status       string
	RemainingMS  *int64
}

type ClearRequest struct{ Async bool }
type ClearResponse struct {
	Status  string
	Removed int
}

type SizeRequest struct{}
type SizeResponse struct {
	Status string
	Size   int
}

func (*GetRequest) isFrontMsg()     {}
func (*GetResponse) isFrontMsg()    {}
func (*SetRequest) isFrontMsg()     {}
func (*SetResponse) isFrontMsg()    {}
func (*DelRequest) isFrontMsg()     {}
func (*DelResponse) isFrontMsg()    {}
func (*ExistsRequest) isFrontMsg()  {}
func (*ExistsResponse) isFrontMsg() {}
func (*TTLRequest) isFrontMsg()     {}
func (*TTLResponse) isFrontMsg()    {}
func (*ClearRequest) isFrontMsg()   {}
func (*ClearResponse) isFrontMsg()  {}
func (*SizeRequest) isFrontMsg()    {}
func (*SizeResponse) isFrontMsg()   {}

// ---------- service ----------

// CacheFront is the handler interface the ServiceDesc below dispatches to.
// *Front (this package's own type) implements it directly against a
// burrow.Cache[string, []byte].
type CacheFront interface {
	Get(ctx context.Context, req *GetRequest) (*GetResponse, error)
	Set(ctx context.Context, req *SetRequest) (*SetResponse, error)
	Del(ctx context.Context, req *DelRequest) (*DelResponse, error)
	Exists(ctx context.Context, req *ExistsRequest) (*ExistsResponse, error)
	TTL(ctx context.Context, req *TTLRequest) (*TTLResponse, error)
	Clear(ctx context.Context, req *ClearRequest) (*ClearResponse, error)
	Size(ctx context.Context, req *SizeRequest) (*SizeResponse, error)
}

// Front adapts a *burrow.Cache[string, []byte] into a CacheFront, the same
// role ping.defaultHandler plays for ping.Handler.
type Front struct {
	cache *burrow.Cache[string, []byte]
}

// NewFront wraps cache for gRPC exposure.
func NewFront(cache *burrow.Cache[string, []byte]) *Front {
	return &Front{cache: cache}
}

func (f *Front) Get(ctx context.Context, req *GetRequest) (*GetResponse, error) {
	r := f.cache.Get(ctx, req.Key)
	resp := &GetResponse{Status: string(r.Status)}
	if b, ok := r.Payload.([]byte); ok {
		resp.Value = b
	}
	return resp, nil
}

func (f *Front) Set(ctx context.Context, req *SetRequest) (*SetResponse, error) {
	r := f.cache.Set(ctx, req.Key, req.Value, req.TTLMS, req.Async)
	return &SetResponse{Status: string(r.Status)}, nil
}

func (f *Front) Del(ctx context.Context, req *DelRequest) (*DelResponse, error) {
	r := f.cache.Del(ctx, req.Key, req.Async)
	removed, _ := r.Payload.(bool)
	return &DelResponse{Status: string(r.Status), Removed: removed}, nil
}

func (f *Front) Exists(ctx context.Context, req *ExistsRequest) (*ExistsResponse, error) {
	r := f.cache.Exists(ctx, req.Key)
	exists, _ := r.Payload.(bool)
	return &ExistsResponse{Status: string(r.Status), Exists: exists}, nil
}

func (f *Front) TTL(ctx context.Context, req *TTLRequest) (*TTLResponse, error) {
	r := f.cache.TTL(ctx, req.Key)
	resp := &TTLResponse{Status: string(r.Status)}
	if ms, ok := r.Payload.(int64); ok {
		resp.RemainingMS = &ms
	}
	return resp, nil
}

func (f *Front) Clear(ctx context.Context, req *ClearRequest) (*ClearResponse, error) {
	r := f.cache.Clear(ctx, req.Async)
	removed, _ := r.Payload.(int)
	return &ClearResponse{Status: string(r.Status), Removed: removed}, nil
}

func (f *Front) Size(ctx context.Context, req *SizeRequest) (*SizeResponse, error) {
	r := f.cache.Size(ctx)
	size, _ := r.Payload.(int)
	return &SizeResponse{Status: string(r.Status), Size: size}, nil
}

// ServiceDesc registers CacheFront on a grpc.Server without a protoc step,
// following ping.ServiceDesc's pattern.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "burrow.CacheFront",
	HandlerType: (*CacheFront)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Get", Handler: getHandler},
		{MethodName: "Set", Handler: setHandler},
		{MethodName: "Del", Handler: delHandler},
		{MethodName: "Exists", Handler: existsHandler},
		{MethodName: "TTL", Handler: ttlHandler},
		{MethodName: "Clear", Handler: clearHandler},
		{MethodName: "Size", Handler: sizeHandler},
	},
	Metadata: "burrow/front.proto",
}

func getHandler(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(GetRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(CacheFront).Get(ctx, req)
}

func setHandler(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(SetRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(CacheFront).Set(ctx, req)
}

func delHandler(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(DelRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(CacheFront).Del(ctx, req)
}

func existsHandler(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(ExistsRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(CacheFront).Exists(ctx, req)
}

func ttlHandler(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(TTLRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(CacheFront).TTL(ctx, req)
}

func clearHandler(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(ClearRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(CacheFront).Clear(ctx, req)
}

func sizeHandler(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(SizeRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(CacheFront).Size(ctx, req)
}
