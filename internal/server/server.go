package server

import (
	"github.com/go-logr/logr"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/harenayo/lean4-unicode-input-server/internal/abbrev"
	"github.com/harenayo/lean4-unicode-input-server/internal/document"
	"github.com/harenayo/lean4-unicode-input-server/internal/logging"
)

// TriggerCharacter is the only character that starts an abbreviation.
const TriggerCharacter = `\`

type Options struct {
	Name       string
	Version    string
	Dictionary *abbrev.Dictionary
	Logger     *zap.Logger
}

// Server holds the state of one LSP session. It is driven by a single
// goroutine (see Handler) and does no locking of its own.
type Server struct {
	name      string
	version   string
	entries   []abbrev.Entry
	warnings  []abbrev.Warning
	documents *document.Store
	client    protocol.Client
	logger    *zap.Logger
	log       logr.Logger
	settings  serverSettings

	state             State
	shutdownRequested bool
	done              chan struct{}
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &Server{
		name:      opts.Name,
		version:   opts.Version,
		documents: document.NewStore(),
		logger:    logger,
		log:       logging.Logr(logger),
		settings:  defaultServerSettings(),
		done:      make(chan struct{}),
	}
	if opts.Dictionary != nil {
		srv.entries = opts.Dictionary.Entries()
		srv.warnings = opts.Dictionary.Warnings()
	}
	return srv
}

func (s *Server) SetClient(client protocol.Client) {
	s.client = client
}

func (s *Server) Documents() *document.Store {
	return s.documents
}
