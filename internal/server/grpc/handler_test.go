package grpc

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/hawachat/internal/common"
	"github.com/dmitrijs2005/hawachat/internal/logging"
	"github.com/dmitrijs2005/hawachat/internal/models"
	"github.com/dmitrijs2005/hawachat/internal/rpc"
	"github.com/dmitrijs2005/hawachat/internal/server/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestLogin_IssuesTokenForID(t *testing.T) {
	env := startServer(t)

	tok, err := env.client.Login(context.Background(), rpc.LoginRequest("u_01111973405", "01111973405"))
	require.NoError(t, err)

	id, err := auth.GetUserIDFromToken(tok.GetValue(), []byte(testSecret))
	require.NoError(t, err)
	assert.Equal(t, "u_01111973405", id)
}

func TestLogin_RequiresID(t *testing.T) {
	env := startServer(t)

	_, err := env.client.Login(context.Background(), rpc.LoginRequest("", "123"))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestPing_NeedsNoToken(t *testing.T) {
	env := startServer(t)

	_, err := env.client.Ping(context.Background(), &emptypb.Empty{})
	assert.NoError(t, err)
}

func TestProtectedMethods_RequireToken(t *testing.T) {
	env := startServer(t)

	_, err := env.client.ListUsers(context.Background(), &emptypb.Empty{})
	require.Error(t, err)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, "missing token", status.Convert(err).Message())

	stream, err := env.client.SubscribeMessages(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestUsers_RoundTrip(t *testing.T) {
	env := startServer(t)
	ctx := env.login(t, "u_1")

	u := models.User{
		ID:               "u_1",
		Name:             "Ann",
		Phone:            "123456789",
		Avatar:           "A",
		Role:             models.RoleUser,
		LastSeen:         time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		ConsentedViewers: []string{"u_2"},
	}
	in, err := rpc.UserToStruct(u)
	require.NoError(t, err)

	_, err = env.client.PutUser(ctx, in)
	require.NoError(t, err)

	_, err = env.client.UpdatePresence(ctx, rpc.PresenceRequest("u_1", true))
	require.NoError(t, err)

	got, err := env.client.GetUser(ctx, wrapperspb.String("u_1"))
	require.NoError(t, err)
	decoded, err := rpc.StructToUser(got)
	require.NoError(t, err)
	require.NotNil(t, decoded)
	assert.Equal(t, "Ann", decoded.Name)
	assert.True(t, decoded.IsOnline)
	assert.Equal(t, []string{"u_2"}, decoded.ConsentedViewers)

	list, err := env.client.ListUsers(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	users, err := rpc.ListToUsers(list)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "u_1", users[0].ID)
}

func TestUsers_ErrorCodes(t *testing.T) {
	env := startServer(t)
	ctx := env.login(t, "u_1")

	_, err := env.client.GetUser(ctx, wrapperspb.String("ghost"))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = env.client.UpdatePresence(ctx, rpc.PresenceRequest("ghost", true))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = env.client.PutUser(ctx, &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	empty, err := rpc.UserToStruct(models.User{Name: "no id"})
	require.NoError(t, err)
	_, err = env.client.PutUser(ctx, empty)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestAppendMessage_SenderMustBeCallerOrAssistant(t *testing.T) {
	env := startServer(t)
	ctx := env.login(t, "u_1")

	tests := []struct {
		name string
		from string
		code codes.Code
	}{
		{name: "caller", from: "u_1", code: codes.OK},
		{name: "assistant", from: common.AssistantID, code: codes.OK},
		{name: "someone else", from: "u_2", code: codes.PermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := rpc.DraftToStruct(models.Draft{From: tt.from, To: "u_3", Text: "hi", Type: models.MessageTypeText})
			require.NoError(t, err)

			id, err := env.client.AppendMessage(ctx, in)
			assert.Equal(t, tt.code, status.Code(err))
			if tt.code == codes.OK {
				assert.NotEmpty(t, id.GetValue())
			}
		})
	}
}

func TestMessageLifecycle_OverRPC(t *testing.T) {
	env := startServer(t)
	ctx := env.login(t, "u_1")

	attachment := "data:image/png;base64," + strings.Repeat("A", 64)
	in, err := rpc.DraftToStruct(models.Draft{From: "u_1", To: "ai", Text: "pic", Type: models.MessageTypeImage, Attachment: attachment})
	require.NoError(t, err)

	id, err := env.client.AppendMessage(ctx, in)
	require.NoError(t, err)

	_, err = env.client.UpdateMessageStatus(ctx, rpc.StatusRequest(id.GetValue(), models.StatusRead))
	require.NoError(t, err)
	// backward move is a silent no-op
	_, err = env.client.UpdateMessageStatus(ctx, rpc.StatusRequest(id.GetValue(), models.StatusDelivered))
	require.NoError(t, err)

	_, err = env.client.UpdateMessageStatus(ctx, rpc.StatusRequest(id.GetValue(), "lost"))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	_, err = env.client.UpdateMessageStatus(ctx, rpc.StatusRequest("missing", models.StatusRead))
	assert.Equal(t, codes.NotFound, status.Code(err))

	stream, err := env.client.SubscribeMessages(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	snap, err := stream.Recv()
	require.NoError(t, err)
	msgs, err := rpc.ListToMessages(snap)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.StatusRead, msgs[0].Status)
	assert.True(t, msgs[0].IsRead)
	assert.Equal(t, attachment, msgs[0].Attachment, "nil offloader keeps attachments inline")

	_, err = env.client.DeleteMessage(ctx, id)
	require.NoError(t, err)
	_, err = env.client.DeleteMessage(ctx, id)
	assert.Equal(t, codes.NotFound, status.Code(err))

	require.Eventually(t, func() bool {
		snap, err := stream.Recv()
		return err == nil && len(snap.GetValues()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubscribeUser_AbsentThenPresent(t *testing.T) {
	env := startServer(t)
	ctx := env.login(t, "u_1")

	stream, err := env.client.SubscribeUser(ctx, wrapperspb.String("u_9"))
	require.NoError(t, err)

	first, err := stream.Recv()
	require.NoError(t, err)
	absent, err := rpc.StructToUser(first)
	require.NoError(t, err)
	assert.Nil(t, absent)

	require.NoError(t, env.store.PutUser(context.Background(), models.User{ID: "u_9", Name: "Late"}))

	next, err := stream.Recv()
	require.NoError(t, err)
	u, err := rpc.StructToUser(next)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Late", u.Name)
}

func TestToStatus(t *testing.T) {
	s := NewGRPCServer("", logging.Nop(), nil, nil, testSecret, time.Hour)
	ctx := context.Background()

	assert.Equal(t, codes.NotFound, status.Code(s.toStatus(ctx, "op", common.ErrorNotFound)))
	assert.Equal(t, codes.InvalidArgument, status.Code(s.toStatus(ctx, "op", common.ErrorValidation)))
	assert.Equal(t, codes.PermissionDenied, status.Code(s.toStatus(ctx, "op", common.ErrorUnauthorized)))
	assert.Equal(t, codes.Canceled, status.Code(s.toStatus(ctx, "op", context.Canceled)))

	err := s.toStatus(ctx, "op", assert.AnError)
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Equal(t, "internal error", status.Convert(err).Message())
}
