package admin

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client talks to a running chatd over its admin socket.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the admin socket at socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodStatus, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func (c *Client) OnlineUsers(ctx context.Context) ([]string, error) {
	out := new(structpb.ListValue)
	if err := c.conn.Invoke(ctx, methodOnlineUsers, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		ids = append(ids, v.GetStringValue())
	}
	return ids, nil
}

// CreateUser registers a user and returns its id. An empty id lets the
// server assign one.
func (c *Client) CreateUser(ctx context.Context, id, fullName, email string) (string, error) {
	in, err := structpb.NewStruct(map[string]any{"id": id, "fullName": fullName, "email": email})
	if err != nil {
		return "", err
	}
	out := new(wrapperspb.StringValue)
	if err := c.conn.Invoke(ctx, methodCreateUser, in, out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
