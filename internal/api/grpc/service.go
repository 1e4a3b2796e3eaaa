package grpcapi

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "transcript.chat.v1.ConversationService"

// ConversationServer is the server API of ConversationService. Requests and
// responses are google.protobuf.Struct messages carrying the JSON shape of
// the HTTP API.
type ConversationServer interface {
	CreateSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EnsureIndexBuilt(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitQuery(*structpb.Struct, SubmitQueryStream) error
	Reset(context.Context, *structpb.Struct) (*structpb.Struct, error)
	History(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// SubmitQueryStream sends answer frames to the client.
type SubmitQueryStream interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type submitQueryStream struct {
	grpc.ServerStream
}

func (s *submitQueryStream) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

// ServiceDesc describes ConversationService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ConversationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateSession", Handler: unary("CreateSession", ConversationServer.CreateSession)},
		{MethodName: "EnsureIndexBuilt", Handler: unary("EnsureIndexBuilt", ConversationServer.EnsureIndexBuilt)},
		{MethodName: "Reset", Handler: unary("Reset", ConversationServer.Reset)},
		{MethodName: "History", Handler: unary("History", ConversationServer.History)},
		{MethodName: "DeleteSession", Handler: unary("DeleteSession", ConversationServer.DeleteSession)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "SubmitQuery",
			Handler:       submitQueryHandler,
			ServerStreams: true,
		},
	},
	Metadata: "transcript/chat/v1/conversation.proto",
}

// RegisterConversationServer registers srv on s.
func RegisterConversationServer(s grpc.ServiceRegistrar, srv ConversationServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type unaryMethod func(ConversationServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryMethod) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ConversationServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + name,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(ConversationServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func submitQueryHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ConversationServer).SubmitQuery(in, &submitQueryStream{stream})
}

// Client calls ConversationService.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateSession(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "CreateSession", in, opts...)
}

func (c *Client) EnsureIndexBuilt(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "EnsureIndexBuilt", in, opts...)
}

func (c *Client) Reset(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Reset", in, opts...)
}

func (c *Client) History(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "History", in, opts...)
}

func (c *Client) DeleteSession(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "DeleteSession", in, opts...)
}

// SubmitQuery opens the answer stream. Call Recv until io.EOF.
func (c *Client) SubmitQuery(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*AnswerStream, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+ServiceName+"/SubmitQuery", opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &AnswerStream{stream}, nil
}

// AnswerStream receives SubmitQuery frames.
type AnswerStream struct {
	grpc.ClientStream
}

func (s *AnswerStream) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := s.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// ErrNoDoneFrame is returned by Ask when the stream ends without a done frame.
var ErrNoDoneFrame = errors.New("answer stream ended without a done frame")

// Ask submits question on sessionID, calls onDelta for every streamed
// character and returns the final done frame.
func (c *Client) Ask(ctx context.Context, sessionID, question string, onDelta func(string)) (*structpb.Struct, error) {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"sessionId": structpb.NewStringValue(sessionID),
		"question":  structpb.NewStringValue(question),
	}}
	stream, err := c.SubmitQuery(ctx, in)
	if err != nil {
		return nil, err
	}
	for {
		frame, err := stream.Recv()
		if err == io.EOF {
			return nil, ErrNoDoneFrame
		}
		if err != nil {
			return nil, err
		}
		switch frame.Fields["type"].GetStringValue() {
		case "delta":
			if onDelta != nil {
				onDelta(frame.Fields["text"].GetStringValue())
			}
		case "done":
			return frame, nil
		}
	}
}
