package engine

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// executeQueryMethod is the single RPC this package ever calls. There is
// no .proto for it (spec.md §1 scopes the wire format to the engine
// itself); the method name just needs to be unique per connection so
// grpc's multiplexing framing has something to key on.
const executeQueryMethod = "/odf.engine.v1.Engine/ExecuteQuery"

var executeQueryStreamDesc = grpc.StreamDesc{
	StreamName:    "ExecuteQuery",
	ServerStreams: true,
	ClientStreams: true,
}

// GRPCClient is the one Client implementation: a bidirectional-streaming
// RPC to an out-of-process engine, with optional mTLS dialed the same
// way any loopback-local gRPC client/server pair in this codebase is.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// Dial opens a connection to an engine listening at addr. tlsConfig may
// be nil, in which case the connection is plaintext — engines run
// loopback-local to the transform service (spec.md §9), so mTLS is the
// caller's choice rather than a hard requirement the way it is for the
// teacher's cluster control plane.
func Dial(addr string, tlsConfig *tls.Config) (*GRPCClient, error) {
	var creds credentials.TransportCredentials
	if tlsConfig != nil {
		creds = credentials.NewTLS(tlsConfig)
	} else {
		creds = insecure.NewCredentials()
	}

	conn, err := grpc.Dial(addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(gobCodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("engine: dial %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// ExecuteQuery opens the stream, sends the single request, and relays
// the engine's response messages onto the returned channel until a
// terminal message arrives or the stream ends.
func (c *GRPCClient) ExecuteQuery(ctx context.Context, req ExecuteQueryRequest) (<-chan Response, error) {
	stream, err := c.conn.NewStream(ctx, &executeQueryStreamDesc, executeQueryMethod)
	if err != nil {
		return nil, fmt.Errorf("engine: open stream: %w", err)
	}

	wireReq := toWireRequest(req)
	if err := stream.SendMsg(&wireReq); err != nil {
		return nil, fmt.Errorf("engine: send request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("engine: close send: %w", err)
	}

	out := make(chan Response)
	go func() {
		defer close(out)
		for {
			var w wireResponse
			err := stream.RecvMsg(&w)
			if err == io.EOF {
				return
			}
			if err != nil {
				out <- Response{Kind: ResponseInternalError, Message: fmt.Sprintf("engine: stream error: %v", err)}
				return
			}

			resp := fromWireResponse(w)
			out <- resp

			switch resp.Kind {
			case ResponseSuccess, ResponseInvalidQuery, ResponseInternalError:
				return
			}
		}
	}()

	return out, nil
}
