package world

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name of the world service.
// Requests and responses are google.protobuf.Struct documents.
const ServiceName = "chatbridge.world.v1.WorldService"

const (
	methodMotd             = "Motd"
	methodCrossFactionChat = "CrossFactionChat"
	methodFindPlayer       = "FindPlayer"
	methodBroadcastGuild   = "BroadcastGuild"
	methodBroadcastChannel = "BroadcastChannel"
	methodWhisper          = "Whisper"
)

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

type rpcCall func(ctx context.Context, svc Service, req *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call rpcCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(structpb.Struct)
			if err := dec(req); err != nil {
				return nil, err
			}
			svc := srv.(Service)
			if interceptor == nil {
				return call(ctx, svc, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, req, info, func(ctx context.Context, r any) (any, error) {
				return call(ctx, svc, r.(*structpb.Struct))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Service)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(methodMotd, serveMotd),
		unaryMethod(methodCrossFactionChat, serveCrossFactionChat),
		unaryMethod(methodFindPlayer, serveFindPlayer),
		unaryMethod(methodBroadcastGuild, serveBroadcastGuild),
		unaryMethod(methodBroadcastChannel, serveBroadcastChannel),
		unaryMethod(methodWhisper, serveWhisper),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chatbridge/world/v1/world.proto",
}

// RegisterService exposes svc on a gRPC server.
//
// Precondition: s and svc must be non-nil.
func RegisterService(s grpc.ServiceRegistrar, svc Service) {
	s.RegisterService(&serviceDesc, svc)
}

func serveMotd(ctx context.Context, svc Service, _ *structpb.Struct) (*structpb.Struct, error) {
	motd, err := svc.Motd(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{"motd": motd})
}

func serveCrossFactionChat(ctx context.Context, svc Service, _ *structpb.Struct) (*structpb.Struct, error) {
	allowed, err := svc.CrossFactionChat(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{"allowed": allowed})
}

func serveFindPlayer(ctx context.Context, svc Service, req *structpb.Struct) (*structpb.Struct, error) {
	p, found, err := svc.FindPlayer(ctx, req.GetFields()["name"].GetStringValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"found":  found,
		"player": encodePlayer(p),
	})
}

func serveBroadcastGuild(ctx context.Context, svc Service, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	guildID := int64(fields["guild_id"].GetNumberValue())
	if err := svc.BroadcastGuild(ctx, guildID, decodeEvent(fields["event"].GetStructValue())); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{}, nil
}

func serveBroadcastChannel(ctx context.Context, svc Service, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	faction := Faction(fields["faction"].GetNumberValue())
	if err := svc.BroadcastChannel(ctx, faction, decodeEvent(fields["event"].GetStructValue())); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{}, nil
}

func serveWhisper(ctx context.Context, svc Service, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	to := decodePlayer(fields["player"].GetStructValue())
	if err := svc.Whisper(ctx, to, decodeEvent(fields["event"].GetStructValue())); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{}, nil
}

func encodeEvent(ev ChatEvent) map[string]any {
	return map[string]any{
		"kind":        int64(ev.Kind),
		"language":    int64(ev.Language),
		"sender_id":   ev.SenderID,
		"sender_name": ev.SenderName,
		"body":        ev.Body,
	}
}

func decodeEvent(s *structpb.Struct) ChatEvent {
	f := s.GetFields()
	return ChatEvent{
		Kind:       ChatKind(f["kind"].GetNumberValue()),
		Language:   Language(f["language"].GetNumberValue()),
		SenderID:   int64(f["sender_id"].GetNumberValue()),
		SenderName: f["sender_name"].GetStringValue(),
		Body:       f["body"].GetStringValue(),
	}
}

func encodePlayer(p Player) map[string]any {
	return map[string]any{
		"id":   p.ID,
		"name": p.Name,
		"race": int64(p.Race),
	}
}

func decodePlayer(s *structpb.Struct) Player {
	f := s.GetFields()
	return Player{
		ID:   int64(f["id"].GetNumberValue()),
		Name: f["name"].GetStringValue(),
		Race: uint8(f["race"].GetNumberValue()),
	}
}

var notFoundErrors = []error{ErrGuildNotFound, ErrChannelNotFound, ErrPlayerOffline}

func toStatus(err error) error {
	for _, sentinel := range notFoundErrors {
		if errors.Is(err, sentinel) {
			return status.Error(codes.NotFound, sentinel.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}

func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if ok && st.Code() == codes.NotFound {
		for _, sentinel := range notFoundErrors {
			if st.Message() == sentinel.Error() {
				return sentinel
			}
		}
	}
	return fmt.Errorf("world rpc: %w", err)
}

// Client is a Service backed by a remote world over gRPC.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// NewClient creates a client for the world service at target. Extra dial
// options are applied after the default insecure transport credentials.
//
// Precondition: target must be a valid gRPC target; timeout >= 0 (0 disables per-call deadlines).
// Postcondition: Returns a Client or a non-nil error. The connection is established lazily.
func NewClient(target string, timeout time.Duration, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dialing world service %s: %w", target, err)
	}
	return &Client{conn: conn, timeout: timeout}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", method, err)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod(method), req, out); err != nil {
		return nil, fromStatus(err)
	}
	return out, nil
}

func (c *Client) Motd(ctx context.Context) (string, error) {
	out, err := c.invoke(ctx, methodMotd, nil)
	if err != nil {
		return "", err
	}
	return out.GetFields()["motd"].GetStringValue(), nil
}

func (c *Client) CrossFactionChat(ctx context.Context) (bool, error) {
	out, err := c.invoke(ctx, methodCrossFactionChat, nil)
	if err != nil {
		return false, err
	}
	return out.GetFields()["allowed"].GetBoolValue(), nil
}

func (c *Client) FindPlayer(ctx context.Context, name string) (Player, bool, error) {
	out, err := c.invoke(ctx, methodFindPlayer, map[string]any{"name": name})
	if err != nil {
		return Player{}, false, err
	}
	fields := out.GetFields()
	if !fields["found"].GetBoolValue() {
		return Player{}, false, nil
	}
	return decodePlayer(fields["player"].GetStructValue()), true, nil
}

func (c *Client) BroadcastGuild(ctx context.Context, guildID int64, ev ChatEvent) error {
	_, err := c.invoke(ctx, methodBroadcastGuild, map[string]any{
		"guild_id": guildID,
		"event":    encodeEvent(ev),
	})
	return err
}

func (c *Client) BroadcastChannel(ctx context.Context, faction Faction, ev ChatEvent) error {
	_, err := c.invoke(ctx, methodBroadcastChannel, map[string]any{
		"faction": int64(faction),
		"event":   encodeEvent(ev),
	})
	return err
}

func (c *Client) Whisper(ctx context.Context, to Player, ev ChatEvent) error {
	_, err := c.invoke(ctx, methodWhisper, map[string]any{
		"player": encodePlayer(to),
		"event":  encodeEvent(ev),
	})
	return err
}
