package server

import (
	"context"

	"go.lsp.dev/protocol"

	"github.com/harenayo/lean4-unicode-input-server/internal/abbrev"
	"github.com/harenayo/lean4-unicode-input-server/internal/logging"
)

type renderOptions struct {
	labelPrefix    string
	insertTextMode protocol.InsertTextMode
}

func (s *Server) renderOptions() renderOptions {
	opts := renderOptions{}
	if s.settings.Completion.LabelPrefix {
		opts.labelPrefix = TriggerCharacter
	}
	if s.settings.Completion.AdjustIndentation {
		opts.insertTextMode = protocol.InsertTextModeAdjustIndentation
	}
	return opts
}

// Completion answers with every abbreviation, each replacing the trigger
// character in front of the cursor. A request fired by some other trigger
// character gets an empty list.
func (s *Server) Completion(ctx context.Context, params *protocol.CompletionParams) ([]protocol.CompletionItem, error) {
	log := logging.FromContext(ctx)

	editRange, ok := resolveRange(params.Position, params.Context, TriggerCharacter)
	if !ok {
		log.V(1).Info("completion suppressed", "triggerCharacter", params.Context.TriggerCharacter)
		return []protocol.CompletionItem{}, nil
	}

	if log.V(2).Enabled() {
		if doc, found := s.documents.Get(params.TextDocument.URI); found {
			prefix, _ := doc.TextBefore(params.Position)
			log.V(2).Info("completion context", "uri", params.TextDocument.URI, "prefix", prefix)
		}
	}

	return renderItems(s.entries, editRange, s.renderOptions()), nil
}

// resolveRange returns the span the completion replaces: the one code unit
// before the cursor, which holds the trigger character. Manual invocations
// are assumed to happen in the same place. At the start of a line the range
// is empty.
func resolveRange(pos protocol.Position, ctx *protocol.CompletionContext, trigger string) (protocol.Range, bool) {
	if ctx != nil && ctx.TriggerKind == protocol.CompletionTriggerKindTriggerCharacter && ctx.TriggerCharacter != trigger {
		return protocol.Range{}, false
	}

	start := pos
	if start.Character > 0 {
		start.Character--
	}
	return protocol.Range{Start: start, End: pos}, true
}

func renderItems(entries []abbrev.Entry, editRange protocol.Range, opts renderOptions) []protocol.CompletionItem {
	items := make([]protocol.CompletionItem, 0, len(entries))
	for _, e := range entries {
		snippet := e.Snippet()
		items = append(items, protocol.CompletionItem{
			Label:            opts.labelPrefix + e.Label,
			FilterText:       TriggerCharacter + e.Label,
			Kind:             protocol.CompletionItemKindSnippet,
			InsertText:       snippet,
			InsertTextFormat: protocol.InsertTextFormatSnippet,
			InsertTextMode:   opts.insertTextMode,
			TextEdit: &protocol.TextEdit{
				Range:   editRange,
				NewText: snippet,
			},
		})
	}
	return items
}
