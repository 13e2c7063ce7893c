package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/hawachat/internal/common"
	"github.com/dmitrijs2005/hawachat/internal/models"
	"github.com/dmitrijs2005/hawachat/internal/rpc"
	"github.com/dmitrijs2005/hawachat/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// toStatus maps store errors onto gRPC codes.
func (s *GRPCServer) toStatus(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, common.ErrorValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	s.logger.Error(ctx, op+" failed", "error", err)
	return status.Error(codes.Internal, "internal error")
}

func (s *GRPCServer) Login(ctx context.Context, req *structpb.Struct) (*wrapperspb.StringValue, error) {
	id := rpc.StringField(req, "id")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	token, err := auth.GenerateToken(id, s.jwtSecret, s.tokenValidity)
	if err != nil {
		s.logger.Error(ctx, "token generation failed", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}

	s.logger.Info(ctx, "Logged in", "id", id)
	return wrapperspb.String(token), nil
}

func (s *GRPCServer) Ping(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) PutUser(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	u, err := rpc.StructToUser(req)
	if err != nil || u == nil {
		return nil, status.Error(codes.InvalidArgument, "malformed user")
	}
	if err := s.store.PutUser(ctx, *u); err != nil {
		return nil, s.toStatus(ctx, "put user", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) GetUser(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	u, err := s.store.GetUser(ctx, req.GetValue())
	if err != nil {
		return nil, s.toStatus(ctx, "get user", err)
	}
	out, err := rpc.UserToStruct(u)
	if err != nil {
		return nil, s.toStatus(ctx, "encode user", err)
	}
	return out, nil
}

func (s *GRPCServer) ListUsers(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, s.toStatus(ctx, "list users", err)
	}
	out, err := rpc.UsersToList(users)
	if err != nil {
		return nil, s.toStatus(ctx, "encode users", err)
	}
	return out, nil
}

func (s *GRPCServer) UpdatePresence(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	if err := s.store.UpdatePresence(ctx, rpc.StringField(req, "id"), rpc.BoolField(req, "online")); err != nil {
		return nil, s.toStatus(ctx, "update presence", err)
	}
	return &emptypb.Empty{}, nil
}

// AppendMessage stores a draft sent by the caller. The assistant's replies
// are written by the conversing client, so the assistant id is accepted as
// sender too.
func (s *GRPCServer) AppendMessage(ctx context.Context, req *structpb.Struct) (*wrapperspb.StringValue, error) {
	d, err := rpc.StructToDraft(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "malformed draft")
	}

	caller, _ := userIDFromContext(ctx)
	if d.From != caller && d.From != s.assistantID {
		return nil, status.Error(codes.PermissionDenied, "sender does not match session")
	}

	d.Attachment = s.blobs.Offload(ctx, d.Attachment)

	id, err := s.store.AppendMessage(ctx, d)
	if err != nil {
		return nil, s.toStatus(ctx, "append message", err)
	}

	s.logger.Debug(ctx, "message appended", "id", id, "type", d.Type)
	return wrapperspb.String(id), nil
}

func (s *GRPCServer) UpdateMessageStatus(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	id := rpc.StringField(req, "id")
	next := models.Status(rpc.StringField(req, "status"))
	if err := s.store.UpdateMessageStatus(ctx, id, next); err != nil {
		return nil, s.toStatus(ctx, "update message status", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) DeleteMessage(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.store.DeleteMessage(ctx, req.GetValue()); err != nil {
		return nil, s.toStatus(ctx, "delete message", err)
	}
	return &emptypb.Empty{}, nil
}

type snapshotEvent struct {
	msgs []models.Message
	err  error
}

// offerLatest puts v into a one-slot mailbox, replacing whatever the
// sender has not picked up yet. Callers must be the only producer.
func offerLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (s *GRPCServer) SubscribeUser(req *wrapperspb.StringValue, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()
	id := req.GetValue()

	box := make(chan *models.User, 1)
	unsubscribe, err := s.store.SubscribeUser(ctx, id, func(u *models.User) {
		offerLatest(box, u)
	})
	if err != nil {
		return s.toStatus(ctx, "subscribe user", err)
	}
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopping:
			return status.Error(codes.Unavailable, "server stopping")
		case u := <-box:
			out := &structpb.Struct{}
			if u != nil {
				if out, err = rpc.UserToStruct(*u); err != nil {
					return s.toStatus(ctx, "encode user", err)
				}
			}
			if err := stream.Send(out); err != nil {
				return err
			}
		}
	}
}

func (s *GRPCServer) SubscribeMessages(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.ListValue]) error {
	ctx := stream.Context()

	box := make(chan snapshotEvent, 1)
	unsubscribe, err := s.store.SubscribeMessages(ctx, func(msgs []models.Message, err error) {
		offerLatest(box, snapshotEvent{msgs: msgs, err: err})
	})
	if err != nil {
		return s.toStatus(ctx, "subscribe messages", err)
	}
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopping:
			return status.Error(codes.Unavailable, "server stopping")
		case ev := <-box:
			if ev.err != nil {
				return s.toStatus(ctx, "message stream", ev.err)
			}
			out, err := rpc.MessagesToList(ev.msgs)
			if err != nil {
				return s.toStatus(ctx, "encode messages", err)
			}
			if err := stream.Send(out); err != nil {
				return err
			}
		}
	}
}
