package server

import (
	"context"
	"fmt"
	"strings"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateShuttingDown
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateShuttingDown:
		return "shutting down"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s *Server) State() State {
	return s.state
}

// Done is closed once the exit notification has been handled.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// ExitCode is the process status LSP clients expect: 0 when
// shutdown was requested before exit, 1 otherwise.
func (s *Server) ExitCode() int {
	if s.shutdownRequested {
		return 0
	}
	return 1
}

func (s *Server) Initialize(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error) {
	if s.state != StateUninitialized {
		return nil, jsonrpc2.NewError(jsonrpc2.InvalidRequest, "server is already initialized")
	}
	if params != nil {
		s.settings = parseSettingsFromRaw(s.settings, params.InitializationOptions)
		if params.ClientInfo != nil {
			s.log.Info("client connected", "client", params.ClientInfo.Name, "clientVersion", params.ClientInfo.Version)
		}
	}
	s.state = StateInitialized

	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.TextDocumentSyncKindFull,
			},
			CompletionProvider: &protocol.CompletionOptions{
				TriggerCharacters: []string{TriggerCharacter},
			},
		},
		ServerInfo: &protocol.ServerInfo{
			Name:    s.name,
			Version: s.version,
		},
	}, nil
}

func (s *Server) Initialized(ctx context.Context, _ *protocol.InitializedParams) error {
	s.log.Info("initialized", "abbreviations", len(s.entries), "labelPrefix", s.settings.Completion.LabelPrefix)
	if len(s.warnings) == 0 || s.client == nil {
		return nil
	}
	lines := make([]string, 0, len(s.warnings)+1)
	lines = append(lines, fmt.Sprintf("%d problem(s) in the abbreviation dictionary:", len(s.warnings)))
	for _, w := range s.warnings {
		lines = append(lines, w.String())
	}
	return s.client.LogMessage(ctx, &protocol.LogMessageParams{
		Type:    protocol.MessageTypeWarning,
		Message: strings.Join(lines, "\n"),
	})
}

func (s *Server) Shutdown(_ context.Context) error {
	s.shutdownRequested = true
	s.state = StateShuttingDown
	s.log.Info("shutdown requested")
	return nil
}

func (s *Server) Exit(_ context.Context) error {
	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosed
	s.log.Info("exit", "code", s.ExitCode())
	close(s.done)
	return nil
}
