// Package grpcapi exposes conversation sessions over gRPC.
package grpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"transcript-chat-service/internal/models"
	"transcript-chat-service/internal/observability/logging"
	"transcript-chat-service/internal/service/media"
	"transcript-chat-service/internal/service/qa"
	"transcript-chat-service/internal/service/session"
)

type Server struct {
	sessions *session.Manager
}

// Register adds ConversationService backed by sessions to g.
func Register(g *grpc.Server, sessions *session.Manager) {
	RegisterConversationServer(g, &Server{sessions: sessions})
}

func (s *Server) CreateSession(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	_, conv := s.sessions.Create()
	return toStruct(conv.Snapshot())
}

func (s *Server) EnsureIndexBuilt(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	conv, err := s.lookup(req)
	if err != nil {
		return nil, err
	}
	ref := media.Ref{Path: field(req, "path"), URL: field(req, "url")}
	h, err := conv.EnsureIndexBuilt(ctx, ref)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := toStruct(conv.Snapshot())
	if err != nil {
		return nil, err
	}
	out.Fields["chunkCount"] = structpb.NewNumberValue(float64(h.Len()))
	return out, nil
}

// SubmitQuery streams {"type":"delta","text":c} frames, one per character,
// then a {"type":"done"} frame with the query ID, full answer and sources.
func (s *Server) SubmitQuery(req *structpb.Struct, stream SubmitQueryStream) error {
	conv, err := s.lookup(req)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()

	reply, err := conv.SubmitQuery(ctx, field(req, "question"))
	if err != nil {
		return toStatus(err)
	}

	log := logging.WithQuery(conv.ID(), reply.QueryID)
	var sendErr error
	for delta := range reply.Deltas {
		if sendErr != nil {
			continue
		}
		frame := &structpb.Struct{Fields: map[string]*structpb.Value{
			"type": structpb.NewStringValue("delta"),
			"text": structpb.NewStringValue(delta),
		}}
		if sendErr = stream.Send(frame); sendErr != nil {
			log.Warn().Err(sendErr).Msg("Answer stream send failed")
			cancel()
		}
	}
	if sendErr != nil {
		return sendErr
	}

	done, err := toStruct(struct {
		Type    string                  `json:"type"`
		QueryID string                  `json:"queryId"`
		Answer  string                  `json:"answer"`
		Sources []models.SourceDocument `json:"sources"`
	}{"done", reply.QueryID, reply.Answer, reply.Sources})
	if err != nil {
		return err
	}
	return stream.Send(done)
}

func (s *Server) Reset(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	conv, err := s.lookup(req)
	if err != nil {
		return nil, err
	}
	conv.Reset()
	return toStruct(conv.Snapshot())
}

func (s *Server) History(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	conv, err := s.lookup(req)
	if err != nil {
		return nil, err
	}
	return toStruct(struct {
		History []models.Turn `json:"history"`
	}{conv.History()})
}

func (s *Server) DeleteSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.sessions.Delete(field(req, "sessionId")); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
}

func (s *Server) lookup(req *structpb.Struct) (*session.Conversation, error) {
	id := field(req, "sessionId")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "sessionId is required")
	}
	conv, err := s.sessions.Get(id)
	if err != nil {
		return nil, toStatus(err)
	}
	return conv, nil
}

func field(req *structpb.Struct, name string) string {
	return strings.TrimSpace(req.GetFields()[name].GetStringValue())
}

// toStruct converts v to a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// Code maps a session error to a gRPC status code.
func Code(err error) codes.Code {
	var (
		notFound *media.NotFoundError
		limited  *qa.RateLimitError
	)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return codes.NotFound
	case errors.Is(err, session.ErrInput):
		return codes.InvalidArgument
	case errors.Is(err, session.ErrNotReady):
		return codes.FailedPrecondition
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrSessionReset):
		return codes.Aborted
	case errors.As(err, &notFound):
		return codes.NotFound
	case errors.As(err, &limited):
		return codes.ResourceExhausted
	case errors.Is(err, session.ErrResource), errors.Is(err, session.ErrExternalService):
		return codes.Unavailable
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

func toStatus(err error) error {
	return status.Error(Code(err), err.Error())
}
