package grpctransport

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/arin-halvorsen/scoped/errs"
	"github.com/arin-halvorsen/scoped/transport"
	"github.com/arin-halvorsen/scoped/wire"
)

// Dial connects to ep (Protocol/Authority forming a grpc target, e.g.
// "unix:/run/scoped/registry.sock") using the package's codec instead of
// protobuf.
func Dial(_ context.Context, ep transport.Endpoint) (transport.Conn, error) {
	ensureCodecRegistered()

	target := ep.Protocol + ":" + ep.Authority
	cc, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("grpctransport: dial %s: %w: %v", ep, errs.ErrMiddleware, err)
	}
	return &conn{cc: cc}, nil
}

type conn struct {
	cc *grpc.ClientConn
}

func (c *conn) Call(ctx context.Context, method string, req wire.Variant) (wire.Variant, error) {
	payload, err := wire.Encode(req)
	if err != nil {
		return wire.Variant{}, fmt.Errorf("grpctransport: encode call request: %w", err)
	}

	reqEnv := &envelope{Method: method, Payload: payload}
	respEnv := new(envelope)
	fullMethod := "/" + serviceName + "/Call"
	if err := c.cc.Invoke(ctx, fullMethod, reqEnv, respEnv, grpc.CallContentSubtype(codecName)); err != nil {
		return wire.Variant{}, fmt.Errorf("grpctransport: call %s: %w: %v", method, errs.ErrMiddleware, err)
	}
	return wire.Decode(respEnv.Payload)
}

func (c *conn) Stream(ctx context.Context, method string, req wire.Variant) (transport.Stream, error) {
	payload, err := wire.Encode(req)
	if err != nil {
		return nil, fmt.Errorf("grpctransport: encode stream request: %w", err)
	}

	desc := &grpc.StreamDesc{StreamName: "Stream", ServerStreams: true}
	fullMethod := "/" + serviceName + "/Stream"
	cs, err := c.cc.NewStream(ctx, desc, fullMethod, grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, fmt.Errorf("grpctransport: open stream %s: %w: %v", method, errs.ErrMiddleware, err)
	}
	if err := cs.SendMsg(&envelope{Method: method, Payload: payload}); err != nil {
		return nil, fmt.Errorf("grpctransport: send stream request: %w", err)
	}
	if err := cs.CloseSend(); err != nil {
		return nil, fmt.Errorf("grpctransport: close send: %w", err)
	}
	return &clientStream{cs: cs}, nil
}

func (c *conn) Close() error {
	return c.cc.Close()
}

type clientStream struct {
	cs grpc.ClientStream
}

func (s *clientStream) Recv() (wire.Variant, error) {
	env := new(envelope)
	if err := s.cs.RecvMsg(env); err != nil {
		if err == io.EOF {
			return wire.Variant{}, io.EOF
		}
		return wire.Variant{}, fmt.Errorf("grpctransport: recv: %w", err)
	}
	return wire.Decode(env.Payload)
}

func (s *clientStream) Close() error {
	return nil
}
