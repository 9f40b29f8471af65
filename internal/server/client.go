package server

import (
	"context"
	"fmt"

	"github.com/muxable/callback/pkg/callback"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Invoke fires the binding published as name. event must be representable as
// a protobuf Value: nil, bool, numbers, strings, maps or slices of those.
func (c *Client) Invoke(ctx context.Context, name string, event interface{}) error {
	request, err := structpb.NewStruct(map[string]interface{}{
		"name":  name,
		"event": event,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", callback.ErrInvalidArgument, err)
	}
	if err := c.conn.Invoke(ctx, invokeMethod, request, new(emptypb.Empty)); err != nil {
		return fromStatus(err)
	}
	return nil
}

func (c *Client) Unregister(ctx context.Context, name string) error {
	if err := c.conn.Invoke(ctx, unregisterMethod, wrapperspb.String(name), new(emptypb.Empty)); err != nil {
		return fromStatus(err)
	}
	return nil
}
