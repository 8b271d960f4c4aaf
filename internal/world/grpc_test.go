package world

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// startWorldServer serves svc over an in-memory listener and returns a connected Client.
func startWorldServer(t *testing.T, svc Service) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterService(srv, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := NewClient("passthrough:///bufnet", time.Second,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClientRoundTrip(t *testing.T) {
	local := NewLocal("Welcome", true, zaptest.NewLogger(t))
	local.AddGuild(42, "Vanguard")
	local.AddPlayer(Player{ID: 77, Name: "Bob", Race: 8})
	client := startWorldServer(t, local)
	ctx := context.Background()

	motd, err := client.Motd(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Welcome", motd)

	allowed, err := client.CrossFactionChat(ctx)
	require.NoError(t, err)
	assert.True(t, allowed)

	p, found, err := client.FindPlayer(ctx, "Bob")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, Player{ID: 77, Name: "Bob", Race: 8}, p)

	_, found, err = client.FindPlayer(ctx, "Nobody")
	require.NoError(t, err)
	assert.False(t, found)

	ev := ChatEvent{Kind: ChatGuild, Language: LangUniversal, SenderID: 5, SenderName: "Alice", Body: "hello guild"}
	require.NoError(t, client.BroadcastGuild(ctx, 42, ev))
	require.NoError(t, client.BroadcastChannel(ctx, Alliance, ChatEvent{Kind: ChatChannel, Language: LangCommon, SenderID: 5, SenderName: "Alice", Body: "lfg"}))
	require.NoError(t, client.Whisper(ctx, p, ChatEvent{Kind: ChatWhisper, Language: LangUniversal, SenderID: 5, SenderName: "Alice", Body: "psst"}))

	got := local.Deliveries()
	require.Len(t, got, 3)
	assert.Equal(t, "guild:Vanguard", got[0].Target)
	assert.Equal(t, ev, got[0].Event)
	assert.Equal(t, "channel:LookingForGroup", got[1].Target)
	assert.Equal(t, LangCommon, got[1].Event.Language)
	assert.Equal(t, "player:Bob", got[2].Target)
}

func TestClientMapsNotFoundToSentinels(t *testing.T) {
	local := NewLocal("", false, zaptest.NewLogger(t))
	local.RemoveChannel(Horde)
	client := startWorldServer(t, local)
	ctx := context.Background()

	assert.ErrorIs(t, client.BroadcastGuild(ctx, 1, ChatEvent{}), ErrGuildNotFound)
	assert.ErrorIs(t, client.BroadcastChannel(ctx, Horde, ChatEvent{}), ErrChannelNotFound)
	assert.ErrorIs(t, client.Whisper(ctx, Player{Name: "Ghost"}, ChatEvent{}), ErrPlayerOffline)
}

type failingWorld struct {
	*Local
}

func (failingWorld) Motd(context.Context) (string, error) {
	return "", errors.New("world database unavailable")
}

func TestClientWrapsInternalErrors(t *testing.T) {
	client := startWorldServer(t, &failingWorld{Local: NewLocal("", false, zaptest.NewLogger(t))})

	_, err := client.Motd(context.Background())
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(errors.Unwrap(err)))
	assert.Contains(t, err.Error(), "world database unavailable")
}

func TestClientUnreachableTarget(t *testing.T) {
	client, err := NewClient("passthrough:///unreachable", 100*time.Millisecond,
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		}),
	)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Motd(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrGuildNotFound))
}
