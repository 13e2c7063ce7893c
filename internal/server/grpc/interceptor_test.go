package grpc

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/hawachat/internal/common"
	"github.com/dmitrijs2005/hawachat/internal/logging"
	"github.com/dmitrijs2005/hawachat/internal/rpc"
	"github.com/dmitrijs2005/hawachat/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func newTestServer(secret string) *GRPCServer {
	return NewGRPCServer("", logging.Nop(), nil, nil, secret, time.Hour)
}

func tokenContext(t *testing.T, token string) context.Context {
	t.Helper()
	md := metadata.New(map[string]string{common.AccessTokenHeaderName: token})
	return metadata.NewIncomingContext(context.Background(), md)
}

func TestInterceptor_PublicMethods_AllowWithoutToken(t *testing.T) {
	s := newTestServer("secret")

	for _, m := range []string{rpc.MethodLogin, rpc.MethodPing} {
		handlerCalled := false
		h := func(ctx context.Context, req any) (any, error) {
			handlerCalled = true
			return "ok", nil
		}

		resp, err := s.accessTokenInterceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: m}, h)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", m, err)
		}
		if !handlerCalled || resp != "ok" {
			t.Fatalf("%s: handler not called", m)
		}
	}
}

func TestInterceptor_MissingToken(t *testing.T) {
	s := newTestServer("secret")

	info := &grpc.UnaryServerInfo{FullMethod: rpc.MethodAppendMessage}
	h := func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler should not be called when token missing")
		return nil, nil
	}

	_, err := s.accessTokenInterceptor(context.Background(), nil, info, h)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", status.Code(err))
	}
	if status.Convert(err).Message() != "missing token" {
		t.Fatalf("expected 'missing token', got %q", status.Convert(err).Message())
	}
}

func TestInterceptor_InvalidAndExpiredTokens(t *testing.T) {
	s := newTestServer("secret")

	expired, err := auth.GenerateToken("u1", []byte("secret"), -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	foreign, err := auth.GenerateToken("u1", []byte("other"), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	info := &grpc.UnaryServerInfo{FullMethod: rpc.MethodListUsers}
	h := func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler should not be called")
		return nil, nil
	}

	for _, tok := range []string{"not-a-valid-jwt", expired, foreign} {
		_, err := s.accessTokenInterceptor(tokenContext(t, tok), nil, info, h)
		if status.Code(err) != codes.Unauthenticated {
			t.Fatalf("expected Unauthenticated, got %v", status.Code(err))
		}
	}
}

func TestInterceptor_ValidToken_PutsUserIDIntoContext(t *testing.T) {
	s := newTestServer("secret")

	tok, err := auth.GenerateToken("user-42", []byte("secret"), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	var got string
	h := func(ctx context.Context, req any) (any, error) {
		got, _ = userIDFromContext(ctx)
		return nil, nil
	}

	if _, err := s.accessTokenInterceptor(tokenContext(t, tok), nil, &grpc.UnaryServerInfo{FullMethod: rpc.MethodPutUser}, h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "user-42" {
		t.Fatalf("user id in context = %q, want user-42", got)
	}
}

type fakeServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f *fakeServerStream) Context() context.Context { return f.ctx }

func TestStreamInterceptor(t *testing.T) {
	s := newTestServer("secret")
	info := &grpc.StreamServerInfo{FullMethod: rpc.MethodSubscribeMessages, IsServerStream: true}

	err := s.accessTokenStreamInterceptor(nil, &fakeServerStream{ctx: context.Background()}, info,
		func(srv any, ss grpc.ServerStream) error {
			t.Fatal("handler should not be called")
			return nil
		})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", status.Code(err))
	}

	tok, err := auth.GenerateToken("u7", []byte("secret"), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	var got string
	err = s.accessTokenStreamInterceptor(nil, &fakeServerStream{ctx: tokenContext(t, tok)}, info,
		func(srv any, ss grpc.ServerStream) error {
			got, _ = userIDFromContext(ss.Context())
			return nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "u7" {
		t.Fatalf("user id in stream context = %q, want u7", got)
	}
}
