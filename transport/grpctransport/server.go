package grpctransport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/arin-halvorsen/scoped/errs"
	"github.com/arin-halvorsen/scoped/transport"
	"github.com/arin-halvorsen/scoped/wire"
)

const serviceName = "scoped.transport.Transport"

var registerCodecOnce sync.Once

func ensureCodecRegistered() {
	registerCodecOnce.Do(func() {
		encoding.RegisterCodec(jsonCodec{})
	})
}

// serviceDesc builds the hand-written grpc.ServiceDesc for handler: one
// unary method ("Call") and one server-streaming method ("Stream"),
// mirroring what protoc would emit for a service with those two RPCs,
// minus the generated stub types.
func serviceDesc(handler transport.Handler) *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "Call",
				Handler: func(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
					var req envelope
					if err := dec(&req); err != nil {
						return nil, fmt.Errorf("grpctransport: decode call request: %w", err)
					}
					payload, err := wire.Decode(req.Payload)
					if err != nil {
						return nil, fmt.Errorf("grpctransport: decode call payload: %w", err)
					}
					resp, err := handler.Call(ctx, req.Method, payload)
					if err != nil {
						return nil, err
					}
					encoded, err := wire.Encode(resp)
					if err != nil {
						return nil, fmt.Errorf("grpctransport: encode call response: %w", err)
					}
					return &envelope{Method: req.Method, Payload: encoded}, nil
				},
			},
		},
		Streams: []grpc.StreamDesc{
			{
				StreamName:    "Stream",
				ServerStreams: true,
				Handler: func(_ any, stream grpc.ServerStream) error {
					var req envelope
					if err := stream.RecvMsg(&req); err != nil {
						return fmt.Errorf("grpctransport: decode stream request: %w", err)
					}
					payload, err := wire.Decode(req.Payload)
					if err != nil {
						return fmt.Errorf("grpctransport: decode stream payload: %w", err)
					}
					return handler.Stream(stream.Context(), req.Method, payload, func(v wire.Variant) error {
						encoded, err := wire.Encode(v)
						if err != nil {
							return fmt.Errorf("grpctransport: encode stream message: %w", err)
						}
						return stream.SendMsg(&envelope{Method: req.Method, Payload: encoded})
					})
				},
			},
		},
		Metadata: "scoped/transport",
	}
}

// Server is a running gRPC server exposing a single transport.Handler.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
}

// Bind starts a gRPC server listening on ep (Protocol is the network,
// e.g. "tcp" or "unix"; Authority is the address) and registers handler
// as its sole service.
func Bind(ep transport.Endpoint, handler transport.Handler) (*Server, error) {
	ensureCodecRegistered()

	lis, err := net.Listen(ep.Protocol, ep.Authority)
	if err != nil {
		return nil, fmt.Errorf("grpctransport: bind %s: %w: %v", ep, errs.ErrResourceError, err)
	}

	gs := grpc.NewServer()
	gs.RegisterService(serviceDesc(handler), nil)

	srv := &Server{grpcServer: gs, listener: lis}
	go func() {
		_ = gs.Serve(lis) // Close stops serving; the resulting error isn't actionable here.
	}()
	return srv, nil
}

// Close gracefully stops the server. Safe to call once; blocks until all
// in-flight RPCs complete.
func (s *Server) Close() error {
	s.grpcServer.GracefulStop()
	return nil
}

// Addr returns the address the server actually bound, which may differ
// from the requested endpoint's authority when it asked for an
// OS-assigned port (":0").
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
