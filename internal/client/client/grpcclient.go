package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/hawachat/internal/common"
	"github.com/dmitrijs2005/hawachat/internal/logging"
	"github.com/dmitrijs2005/hawachat/internal/models"
	"github.com/dmitrijs2005/hawachat/internal/rpc"
	"github.com/dmitrijs2005/hawachat/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      *rpc.StoreClient
	log         logging.Logger

	mu          sync.RWMutex
	accessToken string

	// streams end when base is cancelled by Close.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ store.Store = (*GRPCClient)(nil)

func withAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (c *GRPCClient) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

func (c *GRPCClient) accessTokenInterceptor(ctx context.Context, method string, req, reply any,
	cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	return invoker(withAccessToken(ctx, c.token()), method, req, reply, cc, opts...)
}

func (c *GRPCClient) accessTokenStreamInterceptor(ctx context.Context, desc *grpc.StreamDesc,
	cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	return streamer(withAccessToken(ctx, c.token()), desc, cc, method, opts...)
}

// NewGRPCClient prepares a client for endpointURL. Extra dial options are
// appended after the defaults (insecure transport, token interceptors).
func NewGRPCClient(endpointURL string, log logging.Logger, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, log: log.With("module", "grpc_client")}
	c.base, c.cancel = context.WithCancel(context.Background())

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
		grpc.WithStreamInterceptor(c.accessTokenStreamInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, dialOpts...)
	if err != nil {
		c.cancel()
		return nil, err
	}
	c.conn = conn
	c.client = rpc.NewStoreClient(conn)
	return c, nil
}

// Login obtains an access token for the participant id.
func (c *GRPCClient) Login(ctx context.Context, id, phone string) error {
	resp, err := c.client.Login(ctx, rpc.LoginRequest(id, phone))
	if err != nil {
		return c.mapError(err)
	}

	c.mu.Lock()
	c.accessToken = resp.GetValue()
	c.mu.Unlock()
	return nil
}

// Logout forgets the access token. Open subscriptions keep running.
func (c *GRPCClient) Logout() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
}

func (c *GRPCClient) Ping(ctx context.Context) error {
	if _, err := c.client.Ping(ctx, &emptypb.Empty{}); err != nil {
		return c.mapError(err)
	}
	return nil
}

func (c *GRPCClient) PutUser(ctx context.Context, user models.User) error {
	in, err := rpc.UserToStruct(user)
	if err != nil {
		return err
	}
	if _, err := c.client.PutUser(ctx, in); err != nil {
		return c.mapError(err)
	}
	return nil
}

func (c *GRPCClient) GetUser(ctx context.Context, id string) (models.User, error) {
	resp, err := c.client.GetUser(ctx, wrapperspb.String(id))
	if err != nil {
		return models.User{}, c.mapError(err)
	}
	u, err := rpc.StructToUser(resp)
	if err != nil {
		return models.User{}, err
	}
	if u == nil {
		return models.User{}, common.ErrorNotFound
	}
	return *u, nil
}

func (c *GRPCClient) ListUsers(ctx context.Context) ([]models.User, error) {
	resp, err := c.client.ListUsers(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, c.mapError(err)
	}
	return rpc.ListToUsers(resp)
}

func (c *GRPCClient) UpdatePresence(ctx context.Context, id string, online bool) error {
	if _, err := c.client.UpdatePresence(ctx, rpc.PresenceRequest(id, online)); err != nil {
		return c.mapError(err)
	}
	return nil
}

func (c *GRPCClient) AppendMessage(ctx context.Context, draft models.Draft) (string, error) {
	in, err := rpc.DraftToStruct(draft)
	if err != nil {
		return "", err
	}
	resp, err := c.client.AppendMessage(ctx, in)
	if err != nil {
		return "", c.mapError(err)
	}
	return resp.GetValue(), nil
}

func (c *GRPCClient) UpdateMessageStatus(ctx context.Context, id string, st models.Status) error {
	if _, err := c.client.UpdateMessageStatus(ctx, rpc.StatusRequest(id, st)); err != nil {
		return c.mapError(err)
	}
	return nil
}

func (c *GRPCClient) DeleteMessage(ctx context.Context, id string) error {
	if _, err := c.client.DeleteMessage(ctx, wrapperspb.String(id)); err != nil {
		return c.mapError(err)
	}
	return nil
}

// subscribe opens a stream with open, waits for the first item, then
// pumps items to deliver on a goroutine until the stream ends or the
// subscription is cancelled. onBreak is called once if the stream fails
// for any reason other than cancellation.
func subscribe[T any](c *GRPCClient, open func(ctx context.Context) (grpc.ServerStreamingClient[T], error),
	deliver func(*T) error, onBreak func(error)) (store.Unsubscribe, error) {
	ctx, cancel := context.WithCancel(c.base)

	stream, err := open(ctx)
	if err != nil {
		cancel()
		return nil, c.mapError(err)
	}
	first, err := stream.Recv()
	if err != nil {
		cancel()
		return nil, c.mapError(err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()

		item := first
		for {
			if err := deliver(item); err != nil {
				onBreak(err)
				return
			}
			item, err = stream.Recv()
			if err != nil {
				if ctx.Err() == nil {
					onBreak(c.mapError(err))
				}
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}

func (c *GRPCClient) SubscribeUser(ctx context.Context, id string, fn store.UserFunc) (store.Unsubscribe, error) {
	return subscribe(c,
		func(sctx context.Context) (grpc.ServerStreamingClient[structpb.Struct], error) {
			return c.client.SubscribeUser(sctx, wrapperspb.String(id))
		},
		func(s *structpb.Struct) error {
			u, err := rpc.StructToUser(s)
			if err != nil {
				return err
			}
			fn(u)
			return nil
		},
		func(err error) {
			c.log.Warn(ctx, "user stream ended", "id", id, "error", err)
		})
}

func (c *GRPCClient) SubscribeMessages(ctx context.Context, fn store.SnapshotFunc) (store.Unsubscribe, error) {
	return subscribe(c,
		func(sctx context.Context) (grpc.ServerStreamingClient[structpb.ListValue], error) {
			return c.client.SubscribeMessages(sctx, &emptypb.Empty{})
		},
		func(l *structpb.ListValue) error {
			msgs, err := rpc.ListToMessages(l)
			if err != nil {
				return err
			}
			fn(msgs, nil)
			return nil
		},
		func(err error) {
			fn(nil, err)
		})
}

// Close ends all subscriptions and the connection.
func (c *GRPCClient) Close() error {
	c.cancel()
	c.wg.Wait()
	return c.conn.Close()
}

func (c *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", common.ErrorUnauthorized, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.NotFound:
		return fmt.Errorf("%w: %s", common.ErrorNotFound, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", common.ErrorValidation, st.Message())
	case codes.Canceled:
		return context.Canceled
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
