package server

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/segmentio/encoding/json"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"

	"github.com/harenayo/lean4-unicode-input-server/internal/logging"
)

var errMissingParams = errors.New("missing params")

// completionRequest mirrors protocol.CompletionParams with pointers so that
// absent required members can be told apart from zero values.
type completionRequest struct {
	TextDocument *protocol.TextDocumentIdentifier `json:"textDocument"`
	Position     *protocol.Position               `json:"position"`
	Context      *protocol.CompletionContext      `json:"context,omitempty"`
}

// Handler returns the jsonrpc2 handler for this server. jsonrpc2.Conn calls
// it for one message at a time, in arrival order, which is what keeps the
// server's state free of locks. Do not wrap it in jsonrpc2.AsyncHandler.
func (s *Server) Handler() jsonrpc2.Handler {
	return jsonrpc2.ReplyHandler(s.handle)
}

func (s *Server) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) (err error) {
	start := time.Now()
	method := req.Method()
	log := s.log.WithValues("method", method)
	ctx = logging.WithLogger(ctx, log)

	replied := false
	innerReply := reply
	reply = func(ctx context.Context, result interface{}, err error) error {
		replied = true
		return innerReply(ctx, result, err)
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error(fmt.Errorf("%v", r), "panic while handling message", "stack", string(debug.Stack()))
			if !replied {
				err = reply(ctx, nil, jsonrpc2.Errorf(jsonrpc2.InternalError, "internal error handling %q: %v", method, r))
			}
			return
		}
		log.V(1).Info("handled message", "duration", time.Since(start))
	}()

	if _, ok := req.(*jsonrpc2.Call); ok {
		return s.handleCall(ctx, reply, req)
	}
	s.handleNotification(ctx, req)
	return reply(ctx, nil, nil)
}

func (s *Server) handleCall(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	method := req.Method()

	switch s.state {
	case StateUninitialized:
		if method != protocol.MethodInitialize {
			return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.ServerNotInitialized, "server is not initialized"))
		}
	case StateShuttingDown, StateClosed:
		return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.InvalidRequest, "server is shutting down"))
	}

	switch method {
	case protocol.MethodInitialize:
		var params protocol.InitializeParams
		if err := unmarshalParams(req.Params(), &params); err != nil {
			return reply(ctx, nil, invalidParams(err))
		}
		result, err := s.Initialize(ctx, &params)
		return reply(ctx, result, err)

	case protocol.MethodShutdown:
		return reply(ctx, nil, s.Shutdown(ctx))

	case protocol.MethodTextDocumentCompletion:
		params, err := decodeCompletionParams(req.Params())
		if err != nil {
			logging.FromContext(ctx).V(1).Info("invalid completion params", "error", err.Error())
			return reply(ctx, nil, invalidParams(err))
		}
		items, err := s.Completion(ctx, params)
		return reply(ctx, items, err)

	default:
		return reply(ctx, nil, methodNotFound(method))
	}
}

// didOpenRequest and didChangeRequest use pointers for the members a
// notification cannot do without, so that their absence is detected.
type didOpenRequest struct {
	TextDocument *struct {
		URI        protocol.DocumentURI        `json:"uri"`
		LanguageID protocol.LanguageIdentifier `json:"languageId"`
		Version    int32                       `json:"version"`
		Text       *string                     `json:"text"`
	} `json:"textDocument"`
}

type didChangeRequest struct {
	TextDocument   *protocol.VersionedTextDocumentIdentifier `json:"textDocument"`
	ContentChanges *[]struct {
		Text *string `json:"text"`
	} `json:"contentChanges"`
}

// handleNotification never fails: there is no channel to report errors on,
// so malformed notifications are logged and dropped.
func (s *Server) handleNotification(ctx context.Context, req jsonrpc2.Request) {
	log := logging.FromContext(ctx)
	method := req.Method()

	if method == protocol.MethodExit {
		_ = s.Exit(ctx)
		return
	}
	if s.state != StateInitialized {
		log.V(1).Info("notification dropped", "state", s.state.String())
		return
	}

	var err error
	switch method {
	case protocol.MethodInitialized:
		var params protocol.InitializedParams
		_ = unmarshalParams(req.Params(), &params)
		err = s.Initialized(ctx, &params)

	case protocol.MethodTextDocumentDidOpen:
		var params *protocol.DidOpenTextDocumentParams
		if params, err = decodeDidOpenParams(req.Params()); err == nil {
			err = s.DidOpen(ctx, params)
		}

	case protocol.MethodTextDocumentDidChange:
		var params *protocol.DidChangeTextDocumentParams
		if params, err = decodeDidChangeParams(req.Params()); err == nil {
			err = s.DidChange(ctx, params)
		}

	case protocol.MethodTextDocumentDidClose:
		var params protocol.DidCloseTextDocumentParams
		if err = unmarshalParams(req.Params(), &params); err == nil {
			err = requireURI(params.TextDocument.URI)
		}
		if err == nil {
			err = s.DidClose(ctx, &params)
		}

	default:
		log.V(1).Info("notification ignored")
	}

	if err != nil {
		log.V(1).Info("notification failed", "error", err.Error())
	}
}

func unmarshalParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return errMissingParams
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}

func requireURI(uri protocol.DocumentURI) error {
	if uri == "" {
		return errors.New("missing textDocument.uri")
	}
	return nil
}

func decodeDidOpenParams(raw json.RawMessage) (*protocol.DidOpenTextDocumentParams, error) {
	var req didOpenRequest
	if err := unmarshalParams(raw, &req); err != nil {
		return nil, err
	}
	if req.TextDocument == nil {
		return nil, errors.New("missing textDocument")
	}
	if err := requireURI(req.TextDocument.URI); err != nil {
		return nil, err
	}
	if req.TextDocument.Text == nil {
		return nil, errors.New("missing textDocument.text")
	}

	return &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        req.TextDocument.URI,
			LanguageID: req.TextDocument.LanguageID,
			Version:    req.TextDocument.Version,
			Text:       *req.TextDocument.Text,
		},
	}, nil
}

func decodeDidChangeParams(raw json.RawMessage) (*protocol.DidChangeTextDocumentParams, error) {
	var req didChangeRequest
	if err := unmarshalParams(raw, &req); err != nil {
		return nil, err
	}
	if req.TextDocument == nil {
		return nil, errors.New("missing textDocument")
	}
	if err := requireURI(req.TextDocument.URI); err != nil {
		return nil, err
	}
	if req.ContentChanges == nil {
		return nil, errors.New("missing contentChanges")
	}

	changes := make([]protocol.TextDocumentContentChangeEvent, 0, len(*req.ContentChanges))
	for i, change := range *req.ContentChanges {
		if change.Text == nil {
			return nil, fmt.Errorf("missing contentChanges[%d].text", i)
		}
		changes = append(changes, protocol.TextDocumentContentChangeEvent{Text: *change.Text})
	}

	return &protocol.DidChangeTextDocumentParams{
		TextDocument:   *req.TextDocument,
		ContentChanges: changes,
	}, nil
}

func decodeCompletionParams(raw json.RawMessage) (*protocol.CompletionParams, error) {
	var req completionRequest
	if err := unmarshalParams(raw, &req); err != nil {
		return nil, err
	}
	if req.TextDocument == nil || req.TextDocument.URI == "" {
		return nil, errors.New("missing textDocument.uri")
	}
	if req.Position == nil {
		return nil, errors.New("missing position")
	}
	if req.Context != nil {
		if err := validateTriggerKind(req.Context.TriggerKind); err != nil {
			return nil, err
		}
	}

	return &protocol.CompletionParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: *req.TextDocument,
			Position:     *req.Position,
		},
		Context: req.Context,
	}, nil
}

func validateTriggerKind(kind protocol.CompletionTriggerKind) error {
	switch kind {
	case protocol.CompletionTriggerKindInvoked,
		protocol.CompletionTriggerKindTriggerCharacter,
		protocol.CompletionTriggerKindTriggerForIncompleteCompletions:
		return nil
	default:
		return fmt.Errorf("unknown completion trigger kind %v", float64(kind))
	}
}

func methodNotFound(method string) *jsonrpc2.Error {
	return jsonrpc2.Errorf(jsonrpc2.MethodNotFound, "'%s' is not found", method)
}

// invalidParams carries the decoding failure as the error's data member.
func invalidParams(cause error) *jsonrpc2.Error {
	rpcErr := jsonrpc2.NewError(jsonrpc2.InvalidParams, "parameters are invalid")
	if detail, err := json.Marshal(cause.Error()); err == nil {
		data := json.RawMessage(detail)
		rpcErr.Data = &data
	}
	return rpcErr
}
