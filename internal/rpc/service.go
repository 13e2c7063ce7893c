// Package rpc declares the StoreService gRPC contract. Payloads are
// protobuf well-known types: records travel as structpb.Struct, ids and
// tokens as wrapperspb.StringValue.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "hawachat.store.StoreService"

const (
	MethodLogin               = "/" + ServiceName + "/Login"
	MethodPing                = "/" + ServiceName + "/Ping"
	MethodPutUser             = "/" + ServiceName + "/PutUser"
	MethodGetUser             = "/" + ServiceName + "/GetUser"
	MethodListUsers           = "/" + ServiceName + "/ListUsers"
	MethodUpdatePresence      = "/" + ServiceName + "/UpdatePresence"
	MethodAppendMessage       = "/" + ServiceName + "/AppendMessage"
	MethodUpdateMessageStatus = "/" + ServiceName + "/UpdateMessageStatus"
	MethodDeleteMessage       = "/" + ServiceName + "/DeleteMessage"
	MethodSubscribeUser       = "/" + ServiceName + "/SubscribeUser"
	MethodSubscribeMessages   = "/" + ServiceName + "/SubscribeMessages"
)

// StoreServer is implemented by the realtime store server.
type StoreServer interface {
	// Login takes {"id","phone"} and returns an access token.
	Login(context.Context, *structpb.Struct) (*wrapperspb.StringValue, error)
	Ping(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	PutUser(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	GetUser(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ListUsers(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	// UpdatePresence takes {"id","online"}.
	UpdatePresence(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	AppendMessage(context.Context, *structpb.Struct) (*wrapperspb.StringValue, error)
	// UpdateMessageStatus takes {"id","status"}.
	UpdateMessageStatus(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	DeleteMessage(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	// SubscribeUser streams the user record; an empty struct means absent.
	SubscribeUser(*wrapperspb.StringValue, grpc.ServerStreamingServer[structpb.Struct]) error
	// SubscribeMessages streams full message snapshots.
	SubscribeMessages(*emptypb.Empty, grpc.ServerStreamingServer[structpb.ListValue]) error
}

// unary builds a MethodDesc for a request/response call.
func unary[Req proto.Message](name, full string, newReq func() Req, call func(StoreServer, context.Context, Req) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(StoreServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(StoreServer), ctx, req.(Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func subscribeUserHandler(srv any, stream grpc.ServerStream) error {
	in := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(StoreServer).SubscribeUser(in, &grpc.GenericServerStream[wrapperspb.StringValue, structpb.Struct]{ServerStream: stream})
}

func subscribeMessagesHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(StoreServer).SubscribeMessages(in, &grpc.GenericServerStream[emptypb.Empty, structpb.ListValue]{ServerStream: stream})
}

func newStruct() *structpb.Struct { return new(structpb.Struct) }
func newString() *wrapperspb.StringValue { return new(wrapperspb.StringValue) }
func newEmpty() *emptypb.Empty { return new(emptypb.Empty) }

// ServiceDesc is registered with grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StoreServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Login", MethodLogin, newStruct, func(s StoreServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.Login(ctx, in)
		}),
		unary("Ping", MethodPing, newEmpty, func(s StoreServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.Ping(ctx, in)
		}),
		unary("PutUser", MethodPutUser, newStruct, func(s StoreServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.PutUser(ctx, in)
		}),
		unary("GetUser", MethodGetUser, newString, func(s StoreServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
			return s.GetUser(ctx, in)
		}),
		unary("ListUsers", MethodListUsers, newEmpty, func(s StoreServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.ListUsers(ctx, in)
		}),
		unary("UpdatePresence", MethodUpdatePresence, newStruct, func(s StoreServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.UpdatePresence(ctx, in)
		}),
		unary("AppendMessage", MethodAppendMessage, newStruct, func(s StoreServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.AppendMessage(ctx, in)
		}),
		unary("UpdateMessageStatus", MethodUpdateMessageStatus, newStruct, func(s StoreServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.UpdateMessageStatus(ctx, in)
		}),
		unary("DeleteMessage", MethodDeleteMessage, newString, func(s StoreServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
			return s.DeleteMessage(ctx, in)
		}),
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "SubscribeUser", Handler: subscribeUserHandler, ServerStreams: true},
		{StreamName: "SubscribeMessages", Handler: subscribeMessagesHandler, ServerStreams: true},
	},
	Metadata: "hawachat/store.proto",
}

// RegisterStoreServer attaches srv to s.
func RegisterStoreServer(s grpc.ServiceRegistrar, srv StoreServer) {
	s.RegisterService(&ServiceDesc, srv)
}
