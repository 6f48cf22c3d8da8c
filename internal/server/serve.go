package server

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

// ErrNoShutdown is returned by Serve when the session ended, by an exit
// notification or by the input closing, without a shutdown request first.
var ErrNoShutdown = errors.New("session ended without shutdown")

// Serve runs the session over stream until the client sends exit, the
// stream fails, or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, stream jsonrpc2.Stream) error {
	conn := jsonrpc2.NewConn(stream)
	s.SetClient(protocol.ClientDispatcher(conn, s.logger.Named("client")))
	conn.Go(ctx, s.Handler())

	s.log.Info("serving", "name", s.name, "version", s.version, "abbreviations", len(s.entries))

	select {
	case <-s.Done():
		_ = conn.Close()
		if s.ExitCode() != 0 {
			return ErrNoShutdown
		}
		return nil
	case <-conn.Done():
		err := conn.Err()
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("connection closed: %w", err)
		}
		if s.ExitCode() != 0 {
			return fmt.Errorf("input closed: %w", ErrNoShutdown)
		}
		return nil
	case <-ctx.Done():
		_ = conn.Close()
		return ctx.Err()
	}
}
