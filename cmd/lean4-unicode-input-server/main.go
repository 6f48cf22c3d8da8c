package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"
	"go.lsp.dev/jsonrpc2"
	"go.uber.org/zap"

	"github.com/harenayo/lean4-unicode-input-server/internal/abbrev"
	"github.com/harenayo/lean4-unicode-input-server/internal/logging"
	"github.com/harenayo/lean4-unicode-input-server/internal/server"
)

const name = "lean4-unicode-input-server"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(stdrwc{}).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	abbreviations string
	logLevel      string
	logFile       string
	debug         bool
}

func newRootCmd(rwc io.ReadWriteCloser) *cobra.Command {
	var opts rootOptions

	cmd := &cobra.Command{
		Use:           name,
		Short:         "Language server that completes Lean 4 backslash abbreviations",
		Long:          "Speaks LSP over standard input and output. Typing \\ in an editor offers every abbreviation, expanding to its Unicode symbol.",
		Args:          cobra.NoArgs,
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.debug && !cmd.Flags().Changed("log-level") {
				opts.logLevel = "debug"
			}
			return run(cmd.Context(), opts, rwc)
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")

	flags := cmd.Flags()
	flags.StringVar(&opts.abbreviations, "abbreviations", "", "abbreviation dictionary (JSON or YAML path, or file:// URI); the built-in table when empty")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	flags.StringVar(&opts.logFile, "log-file", "", "write logs to this file instead of standard error")
	flags.BoolVar(&opts.debug, "debug", false, "log at debug level unless --log-level is given")

	return cmd
}

func run(ctx context.Context, opts rootOptions, rwc io.ReadWriteCloser) error {
	version, commit, _ := buildInfo()
	logger, closeLog, err := logging.New(logging.Options{
		Level:   opts.logLevel,
		File:    opts.logFile,
		Version: version,
		Commit:  commit,
	})
	if err != nil {
		return err
	}
	defer closeLog()

	dict, err := loadDictionary(opts.abbreviations)
	if err != nil {
		return err
	}
	for _, w := range dict.Warnings() {
		logger.Warn("abbreviation dictionary problem",
			zap.Int("line", w.Line),
			zap.String("label", w.Label),
			zap.String("problem", w.Message),
		)
	}

	srv := server.NewServer(server.Options{
		Name:       name,
		Version:    version,
		Dictionary: dict,
		Logger:     logger,
	})
	err = srv.Serve(ctx, jsonrpc2.NewStream(rwc))
	if errors.Is(err, server.ErrNoShutdown) {
		logger.Warn("client went away without shutdown")
	}
	return err
}

func loadDictionary(location string) (*abbrev.Dictionary, error) {
	if location == "" {
		return abbrev.Default()
	}
	return abbrev.Load(location)
}

func versionString() string {
	version, commit, date := buildInfo()
	return fmt.Sprintf("%s %s (commit: %s, built: %s)", name, version, commit, date)
}

// buildInfo prefers values stamped with -ldflags and falls back to the
// module and VCS data recorded by the go tool.
func buildInfo() (version, commit, date string) {
	version, commit, date = Version, Commit, Date
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version, commit, date
	}
	if version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if commit == "none" && setting.Value != "" {
				commit = setting.Value
				if len(commit) > 12 {
					commit = commit[:12]
				}
			}
		case "vcs.time":
			if date == "unknown" && setting.Value != "" {
				date = setting.Value
			}
		}
	}
	return version, commit, date
}

type stdrwc struct{}

func (stdrwc) Read(p []byte) (int, error) {
	return os.Stdin.Read(p)
}

func (stdrwc) Write(p []byte) (int, error) {
	return os.Stdout.Write(p)
}

func (stdrwc) Close() error {
	return nil
}
