package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/hawachat/internal/common"
	"github.com/dmitrijs2005/hawachat/internal/logging"
	"github.com/dmitrijs2005/hawachat/internal/rpc"
	"github.com/dmitrijs2005/hawachat/internal/store"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const testSecret = "secret"

type testEnv struct {
	store  *store.Memory
	client *rpc.StoreClient
	stop   context.CancelFunc
	done   chan error
}

// startServer serves a Memory store over bufconn.
func startServer(t *testing.T) *testEnv {
	t.Helper()

	st := store.NewMemory()
	srv := NewGRPCServer("bufnet", logging.Nop(), st, nil, testSecret, time.Hour)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		cancel()
		_ = conn.Close()
		_ = st.Close()
	})

	return &testEnv{store: st, client: rpc.NewStoreClient(conn), stop: cancel, done: done}
}

// login returns a context carrying a fresh access token for id.
func (e *testEnv) login(t *testing.T, id string) context.Context {
	t.Helper()

	tok, err := e.client.Login(context.Background(), rpc.LoginRequest(id, "123"))
	require.NoError(t, err)
	require.NotEmpty(t, tok.GetValue())

	return metadata.AppendToOutgoingContext(context.Background(), common.AccessTokenHeaderName, tok.GetValue())
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:0", logging.Nop(), store.NewMemory(), nil, testSecret, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:99999", logging.Nop(), store.NewMemory(), nil, testSecret, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Run(ctx); err == nil {
		t.Fatal("expected error from Run on bad address, got nil")
	}
}

func TestServe_ShutdownEndsOpenStreams(t *testing.T) {
	env := startServer(t)
	ctx := env.login(t, "u_1")

	stream, err := env.client.SubscribeUser(ctx, wrapperspb.String("u_1"))
	require.NoError(t, err)
	_, err = stream.Recv()
	require.NoError(t, err)

	env.stop()

	select {
	case err := <-env.done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("graceful stop blocked on an open stream")
	}

	_, err = stream.Recv()
	require.Error(t, err)
}
