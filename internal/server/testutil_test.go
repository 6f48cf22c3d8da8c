package server

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"

	"github.com/harenayo/lean4-unicode-input-server/internal/abbrev"
)

const integrationTestTimeout = 2 * time.Second

const (
	testURI  = protocol.DocumentURI("file:///tmp/Test.lean")
	otherURI = protocol.DocumentURI("file:///tmp/Other.lean")
)

type mockClient struct {
	mu       sync.Mutex
	messages []protocol.LogMessageParams
}

func (m *mockClient) Progress(_ context.Context, _ *protocol.ProgressParams) error {
	return nil
}

func (m *mockClient) WorkDoneProgressCreate(_ context.Context, _ *protocol.WorkDoneProgressCreateParams) error {
	return nil
}

func (m *mockClient) LogMessage(_ context.Context, params *protocol.LogMessageParams) error {
	m.mu.Lock()
	m.messages = append(m.messages, *params)
	m.mu.Unlock()
	return nil
}

func (m *mockClient) PublishDiagnostics(_ context.Context, _ *protocol.PublishDiagnosticsParams) error {
	return nil
}

func (m *mockClient) ShowMessage(_ context.Context, _ *protocol.ShowMessageParams) error {
	return nil
}

func (m *mockClient) ShowMessageRequest(_ context.Context, _ *protocol.ShowMessageRequestParams) (*protocol.MessageActionItem, error) {
	return nil, nil
}

func (m *mockClient) Telemetry(_ context.Context, _ interface{}) error {
	return nil
}

func (m *mockClient) RegisterCapability(_ context.Context, _ *protocol.RegistrationParams) error {
	return nil
}

func (m *mockClient) UnregisterCapability(_ context.Context, _ *protocol.UnregistrationParams) error {
	return nil
}

func (m *mockClient) ApplyEdit(_ context.Context, _ *protocol.ApplyWorkspaceEditParams) (bool, error) {
	return false, nil
}

func (m *mockClient) Configuration(_ context.Context, _ *protocol.ConfigurationParams) ([]interface{}, error) {
	return nil, nil
}

func (m *mockClient) WorkspaceFolders(_ context.Context) ([]protocol.WorkspaceFolder, error) {
	return nil, nil
}

func (m *mockClient) logMessages() []protocol.LogMessageParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.LogMessageParams(nil), m.messages...)
}

type testServer struct {
	*Server
	client *mockClient
}

func newTestServer(t *testing.T, dictionary string) *testServer {
	t.Helper()

	dict, err := abbrev.Parse([]byte(dictionary))
	require.NoError(t, err)

	srv := NewServer(Options{Name: "test-server", Version: "0.0.0-test", Dictionary: dict})
	client := &mockClient{}
	srv.SetClient(client)
	return &testServer{
		Server: srv,
		client: client,
	}
}

func (ts *testServer) initialize(t *testing.T) {
	t.Helper()
	_, err := ts.Initialize(context.Background(), &protocol.InitializeParams{})
	require.NoError(t, err)
}

func (ts *testServer) openDocument(uri protocol.DocumentURI, content string) error {
	return ts.DidOpen(context.Background(), &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        uri,
			LanguageID: "lean4",
			Version:    1,
			Text:       content,
		},
	})
}

func (ts *testServer) completion(line, character uint32, cc *protocol.CompletionContext) ([]protocol.CompletionItem, error) {
	return ts.Completion(context.Background(), &protocol.CompletionParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
			Position:     protocol.Position{Line: line, Character: character},
		},
		Context: cc,
	})
}

func triggeredBy(ch string) *protocol.CompletionContext {
	return &protocol.CompletionContext{
		TriggerKind:      protocol.CompletionTriggerKindTriggerCharacter,
		TriggerCharacter: ch,
	}
}

func extractCompletionLabels(items []protocol.CompletionItem) []string {
	labels := make([]string, len(items))
	for i, item := range items {
		labels[i] = item.Label
	}
	return labels
}

// wireSession runs a Server over an in-memory pipe and talks to it as an
// editor would.
type wireSession struct {
	srv      *Server
	conn     jsonrpc2.Conn
	serveErr chan error

	notifications chan jsonrpc2.Request
}

func startWireSession(t *testing.T, dictionary string) *wireSession {
	t.Helper()

	dict, err := abbrev.Parse([]byte(dictionary))
	require.NoError(t, err)

	serverSide, clientSide := net.Pipe()
	ws := &wireSession{
		srv:           NewServer(Options{Name: "test-server", Version: "0.0.0-test", Dictionary: dict}),
		serveErr:      make(chan error, 1),
		notifications: make(chan jsonrpc2.Request, 16),
	}

	ctx := context.Background()
	go func() {
		ws.serveErr <- ws.srv.Serve(ctx, jsonrpc2.NewStream(serverSide))
	}()

	ws.conn = jsonrpc2.NewConn(jsonrpc2.NewStream(clientSide))
	ws.conn.Go(ctx, func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		if _, ok := req.(*jsonrpc2.Notification); ok {
			select {
			case ws.notifications <- req:
			default:
			}
			return reply(ctx, nil, nil)
		}
		return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
	})

	t.Cleanup(func() {
		_ = ws.conn.Close()
		_ = serverSide.Close()
	})
	return ws
}

func (ws *wireSession) call(t *testing.T, method string, params, result interface{}) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), integrationTestTimeout)
	defer cancel()
	_, err := ws.conn.Call(ctx, method, params, result)
	return err
}

func (ws *wireSession) notify(t *testing.T, method string, params interface{}) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), integrationTestTimeout)
	defer cancel()
	require.NoError(t, ws.conn.Notify(ctx, method, params))
}

func (ws *wireSession) initialize(t *testing.T) {
	t.Helper()
	var result protocol.InitializeResult
	require.NoError(t, ws.call(t, protocol.MethodInitialize, map[string]interface{}{
		"processId":    nil,
		"rootUri":      nil,
		"capabilities": map[string]interface{}{},
	}, &result))
	ws.notify(t, protocol.MethodInitialized, map[string]interface{}{})
}

func (ws *wireSession) waitNotification(t *testing.T, method string) jsonrpc2.Request {
	t.Helper()
	timeout := time.After(integrationTestTimeout)
	for {
		select {
		case n := <-ws.notifications:
			if n.Method() == method {
				return n
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", method)
			return nil
		}
	}
}

func (ws *wireSession) waitServe(t *testing.T) error {
	t.Helper()
	select {
	case err := <-ws.serveErr:
		return err
	case <-time.After(integrationTestTimeout):
		t.Fatal("timed out waiting for Serve to return")
		return nil
	}
}

func requireRPCError(t *testing.T, err error, code jsonrpc2.Code) *jsonrpc2.Error {
	t.Helper()
	require.Error(t, err)
	var rpcErr *jsonrpc2.Error
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, code, rpcErr.Code)
	return rpcErr
}

func completionParamsJSON(line, character uint32, cc interface{}) map[string]interface{} {
	params := map[string]interface{}{
		"textDocument": map[string]interface{}{"uri": string(testURI)},
		"position":     map[string]interface{}{"line": line, "character": character},
	}
	if cc != nil {
		params["context"] = cc
	}
	return params
}
