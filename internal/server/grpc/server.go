// Package grpc exposes a store.Store over the StoreService gRPC contract.
package grpc

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/dmitrijs2005/hawachat/internal/common"
	"github.com/dmitrijs2005/hawachat/internal/logging"
	"github.com/dmitrijs2005/hawachat/internal/rpc"
	"github.com/dmitrijs2005/hawachat/internal/server/blob"
	"github.com/dmitrijs2005/hawachat/internal/store"
	"google.golang.org/grpc"
)

type GRPCServer struct {
	address       string
	store         store.Store
	blobs         *blob.Offloader
	logger        logging.Logger
	jwtSecret     []byte
	tokenValidity time.Duration
	assistantID   string

	// stopping is closed on shutdown so subscription streams return and
	// GracefulStop does not wait on them forever.
	stopping  chan struct{}
	closeOnce sync.Once
}

// NewGRPCServer builds a server for st. blobs may be nil, in which case
// attachments are always stored inline.
func NewGRPCServer(a string, l logging.Logger, st store.Store, blobs *blob.Offloader, secretKey string, tokenValidity time.Duration) *GRPCServer {
	return &GRPCServer{
		address:       a,
		logger:        l.With("module", "grpc_server"),
		store:         st,
		blobs:         blobs,
		jwtSecret:     []byte(secretKey),
		tokenValidity: tokenValidity,
		assistantID:   common.AssistantID,
		stopping:      make(chan struct{}),
	}
}

func (s *GRPCServer) endStreams() {
	s.closeOnce.Do(func() { close(s.stopping) })
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.accessTokenInterceptor),
		grpc.ChainStreamInterceptor(s.accessTokenStreamInterceptor),
	)
	rpc.RegisterStoreServer(srv, s)
	return srv
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Stopping gRPC server...")
			s.endStreams()
			srv.GracefulStop()
		case <-stopped:
		}
	}()
	defer close(stopped)

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
