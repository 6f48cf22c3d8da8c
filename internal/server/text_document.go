package server

import (
	"context"

	"go.lsp.dev/protocol"

	"github.com/harenayo/lean4-unicode-input-server/internal/logging"
)

func (s *Server) DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error {
	s.documents.Open(params.TextDocument.URI, params.TextDocument.Text)
	logging.FromContext(ctx).V(1).Info("document opened", "uri", params.TextDocument.URI, "open", s.documents.Len())
	return nil
}

// DidChange applies full-document sync: only the last change is kept.
func (s *Server) DidChange(ctx context.Context, params *protocol.DidChangeTextDocumentParams) error {
	if len(params.ContentChanges) == 0 {
		return nil
	}
	text := params.ContentChanges[len(params.ContentChanges)-1].Text
	if !s.documents.Change(params.TextDocument.URI, text) {
		logging.FromContext(ctx).V(1).Info("change for unknown document ignored", "uri", params.TextDocument.URI)
	}
	return nil
}

func (s *Server) DidClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams) error {
	s.documents.Close(params.TextDocument.URI)
	logging.FromContext(ctx).V(1).Info("document closed", "uri", params.TextDocument.URI, "open", s.documents.Len())
	return nil
}
