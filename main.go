package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sammcj/yaml-bridge/internal/bridge"
	devcli "github.com/sammcj/yaml-bridge/internal/cli"
	"github.com/sammcj/yaml-bridge/internal/clipboard"
	"github.com/sammcj/yaml-bridge/internal/codec"
	"github.com/sammcj/yaml-bridge/internal/config"
	"github.com/sammcj/yaml-bridge/internal/ports"
	"github.com/sammcj/yaml-bridge/internal/registry"
	"github.com/sammcj/yaml-bridge/internal/telemetry"
	"github.com/sammcj/yaml-bridge/internal/tools"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	// Import all tool packages to register them
	_ "github.com/sammcj/yaml-bridge/internal/imports"
)

// Version information (set during build)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Global resources that need cleanup
var (
	debugLogFile atomic.Pointer[os.File]
	isStdioMode  atomic.Bool
)

const logFileName = "yaml-bridge.log"

// parseLogLevel parses the LOG_LEVEL environment variable and returns the appropriate logrus level.
// Defaults to WarnLevel if not set or invalid.
func parseLogLevel() logrus.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.WarnLevel
	}
}

// configureLogging sends log output to ~/.yaml-bridge/logs. When the file
// cannot be opened, stdio modes discard logs and other modes use stderr.
func configureLogging(logger *logrus.Logger, stdio bool) {
	isStdioMode.Store(stdio)
	level := parseLogLevel()
	if stdio && level < logrus.WarnLevel {
		level = logrus.WarnLevel
	}
	logger.SetLevel(level)
	logrus.SetLevel(level)

	fallback := io.Writer(os.Stderr)
	if stdio {
		fallback = io.Discard
	}

	logDir := config.LogDir()
	if err := os.MkdirAll(logDir, 0700); err != nil {
		logger.SetOutput(fallback)
		logrus.SetOutput(fallback)
		return
	}
	file, err := os.OpenFile(filepath.Join(logDir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		logger.SetOutput(fallback)
		logrus.SetOutput(fallback)
		return
	}

	if old := debugLogFile.Swap(file); old != nil {
		_ = old.Close()
	}
	logger.SetOutput(file)
	logrus.SetOutput(file)
	logger.WithField("level", level.String()).Debug("Logging configured")
}

// runtime holds the shared resources every command needs
type runtime struct {
	logger         *logrus.Logger
	store          *config.Store
	factory        bridge.Factory
	errorLog        *tools.ErrorLog
	shutdownTracer  func() error
	shutdownMetrics func() error
}

// newRuntime loads configuration and wires the bridge factory, the tool
// registry, tracing, metrics and the tool error log.
func newRuntime(ctx context.Context, logger *logrus.Logger, configPath string, stdio bool) (*runtime, error) {
	configureLogging(logger, stdio)

	if err := config.LoadDotEnv(); err != nil {
		logger.WithError(err).Warn("Ignoring .env file")
	}
	if configPath == "" {
		configPath = config.Path()
	}

	store, err := config.NewStore(configPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if store.Current().AutoReload {
		store.OnChange(func(cfg *config.Config) {
			logger.WithFields(logrus.Fields{
				"path":            store.Path(),
				"yaml_indent":     cfg.YAML.Indent,
				"clipboard":       cfg.Clipboard.Backend,
				"max_input_bytes": cfg.MaxInputBytes,
			}).Info("Configuration reloaded")
		})
		if err := store.Watch(ctx); err != nil {
			logger.WithError(err).WithField("path", store.Path()).Warn("Failed to watch config file, auto-reload disabled")
		}
	}

	rt := &runtime{logger: logger, store: store, factory: newFactory(store, logger)}
	registry.Init(logger, rt.factory)

	if rt.shutdownTracer, err = telemetry.InitTracer(logger, Version); err != nil {
		logger.WithError(err).Warn("Failed to initialise tracing")
	}
	if rt.shutdownMetrics, err = telemetry.InitMetrics(logger, Version); err != nil {
		logger.WithError(err).Warn("Failed to initialise metrics")
	}

	if rt.errorLog, err = tools.OpenErrorLog(config.LogDir(), logger); err != nil {
		logger.WithError(err).Warn("Failed to initialise tool error logger")
	}
	return rt, nil
}

// Close releases the runtime's resources
func (rt *runtime) Close() {
	if rt.shutdownTracer != nil {
		if err := rt.shutdownTracer(); err != nil {
			rt.logger.WithError(err).Warn("Failed to shut down tracer")
		}
	}
	if rt.shutdownMetrics != nil {
		if err := rt.shutdownMetrics(); err != nil {
			rt.logger.WithError(err).Warn("Failed to shut down metrics")
		}
	}
	if err := rt.errorLog.Close(); err != nil {
		rt.logger.WithError(err).Warn("Failed to close tool error logger")
	}
}

// newFactory builds bridges from the current config. Clipboard writers are
// kept per backend so the in-memory clipboard survives across requests.
func newFactory(store *config.Store, logger *logrus.Logger) bridge.Factory {
	var mu sync.Mutex
	writers := make(map[string]clipboard.Writer)

	clipboardFor := func(backend string) clipboard.Writer {
		mu.Lock()
		defer mu.Unlock()
		if w, ok := writers[backend]; ok {
			return w
		}
		w, err := clipboard.New(backend)
		if err != nil {
			logger.WithError(err).Warn("Unknown clipboard backend, clipboard disabled")
			w = clipboard.Disabled{}
		}
		writers[backend] = w
		return w
	}

	return func(sink bridge.Sink) *bridge.Bridge {
		cfg := store.Current()
		c := codec.New(codec.WithIndent(cfg.YAML.Indent), codec.WithMaxInputBytes(cfg.MaxInputBytes))
		return bridge.New(sink, clipboardFor(cfg.Clipboard.Backend), bridge.WithLogger(logger), bridge.WithCodec(c))
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initially discard output, it is reconfigured once the mode is known
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(parseLogLevel())
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	defer performCleanup()

	app := newApp(logger)
	if err := app.Run(ctx, os.Args); err != nil {
		// stdout carries the protocol in stdio mode, so nothing may be printed
		if !isStdioMode.Load() && !errors.Is(err, devcli.ErrToolFailed) {
			_, _ = color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		}
		performCleanup()
		os.Exit(1)
	}
}

func newApp(logger *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:    "yaml-bridge",
		Usage:   "JSON/YAML conversion and clipboard bridge for GUI ports and MCP clients",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "transport",
				Aliases: []string{"t"},
				Value:   "stdio",
				Usage:   "Transport type (stdio, sse, or http)",
			},
			&cli.StringFlag{
				Name:  "port",
				Value: "18080",
				Usage: "Port to use for HTTP transports (SSE and Streamable HTTP)",
			},
			&cli.StringFlag{
				Name:  "base-url",
				Value: "http://localhost",
				Usage: "Base URL for HTTP transports",
			},
			&cli.StringFlag{
				Name:  "auth-token",
				Usage: "Bearer token required by the Streamable HTTP transport (optional)",
			},
			&cli.StringFlag{
				Name:  "endpoint-path",
				Value: "/http",
				Usage: "Endpoint path for Streamable HTTP transport",
			},
			&cli.DurationFlag{
				Name:  "session-timeout",
				Value: 30 * time.Minute,
				Usage: "Session timeout for Streamable HTTP transport",
			},
			&cli.StringFlag{
				Name:    "config-path",
				Usage:   "Path to the configuration file (default: ~/.yaml-bridge/config.yaml)",
				Sources: cli.EnvVars(config.ConfigPathEnvVar),
			},
		},
		Commands: []*cli.Command{
			versionCommand(),
			portsCommand(logger),
			toolsCommand(logger),
			configValidateCommand(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			transport := cmd.String("transport")
			rt, err := newRuntime(ctx, logger, cmd.String("config-path"), transport == "stdio")
			if err != nil {
				return err
			}
			defer rt.Close()

			if transport != "stdio" {
				logger.Infof("Starting yaml-bridge version %s (commit: %s, built: %s)", Version, Commit, BuildDate)
			}
			return serveMCP(ctx, cmd, rt)
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			w := cmd.Root().Writer
			_, _ = fmt.Fprintf(w, "yaml-bridge version %s\n", Version)
			_, _ = fmt.Fprintf(w, "Commit: %s\n", Commit)
			_, _ = fmt.Fprintf(w, "Built: %s\n", BuildDate)
			return nil
		},
	}
}

func portsCommand(logger *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "ports",
		Usage: "Serve the bridge ports as newline-delimited JSON on stdio, or on a websocket with --listen",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Address for the websocket host, e.g. 127.0.0.1:8765 (default: ports.listen from config)",
			},
			&cli.StringFlag{
				Name:  "path",
				Usage: "Websocket endpoint path (default: ports.path from config)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			listen := cmd.String("listen")
			// stdio unless a listen address is given on the command line or in config
			loaded, err := config.Load(configPath(cmd))
			if err == nil && listen == "" {
				listen = loaded.Ports.Listen
			}

			rt, err := newRuntime(ctx, logger, cmd.String("config-path"), listen == "")
			if err != nil {
				return err
			}
			defer rt.Close()

			if listen == "" {
				logger.Debug("Serving ports on stdio")
				stream := ports.NewStream(os.Stdin, os.Stdout, rt.factory, logger)
				if err := stream.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			}

			cfg := rt.store.Current()
			path := cmd.String("path")
			if path == "" {
				path = cfg.Ports.Path
			}
			server := ports.NewWebsocketServer(rt.factory, logger, path, cfg.Ports.AllowedOrigins)
			return server.ListenAndServe(ctx, listen)
		},
	}
}

func toolsCommand(logger *logrus.Logger) *cli.Command {
	outputFlag := &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Value:   string(devcli.OutputText),
		Usage:   "Output format (text or json)",
	}

	runner := func(ctx context.Context, cmd *cli.Command) (*devcli.Runner, func(), error) {
		output := devcli.OutputFormat(cmd.String("output"))
		if output != devcli.OutputText && output != devcli.OutputJSON {
			return nil, nil, fmt.Errorf("unsupported output format: %s", output)
		}
		rt, err := newRuntime(ctx, logger, cmd.String("config-path"), false)
		if err != nil {
			return nil, nil, err
		}
		return devcli.NewRunner(logger, rt.factory, output), rt.Close, nil
	}

	return &cli.Command{
		Name:  "cli",
		Usage: "Run tools directly without an MCP client",
		Flags: []cli.Flag{outputFlag},
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List available tools",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					r, done, err := runner(ctx, cmd)
					if err != nil {
						return err
					}
					defer done()
					return r.ListTools()
				},
			},
			{
				Name:      "help",
				Usage:     "Show a tool's parameters and examples",
				ArgsUsage: "<tool>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 1 {
						return fmt.Errorf("usage: yaml-bridge cli help <tool>")
					}
					r, done, err := runner(ctx, cmd)
					if err != nil {
						return err
					}
					defer done()
					return r.HelpTool(cmd.Args().First())
				},
			},
			{
				Name:            "run",
				Usage:           "Run a tool",
				ArgsUsage:       "<tool> [--key=value ...] ['{\"key\": \"value\"}']",
				SkipFlagParsing: true,
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() < 1 {
						return fmt.Errorf("usage: yaml-bridge cli run <tool> [arguments]")
					}
					r, done, err := runner(ctx, cmd)
					if err != nil {
						return err
					}
					defer done()
					args := cmd.Args().Slice()
					return r.RunTool(ctx, args[0], args[1:])
				},
			},
		},
	}
}

func configValidateCommand() *cli.Command {
	return &cli.Command{
		Name:  "config-validate",
		Usage: "Validate the configuration file and environment overrides",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return handleConfigValidate(cmd.Root().Writer, configPath(cmd))
		},
	}
}

func configPath(cmd *cli.Command) string {
	if p := cmd.String("config-path"); p != "" {
		return p
	}
	return config.Path()
}

// handleConfigValidate prints whether path, with environment overrides, is a valid config.
func handleConfigValidate(w io.Writer, path string) error {
	ok := color.New(color.FgGreen)
	bad := color.New(color.FgRed)

	if err := config.LoadDotEnv(); err != nil {
		_, _ = bad.Fprintf(w, "Warning: %v\n", err)
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		_, _ = fmt.Fprintf(w, "Configuration file not found: %s (defaults apply)\n", path)
	} else {
		_, _ = fmt.Fprintf(w, "Validating configuration: %s\n", path)
	}

	cfg, err := config.Load(path)
	if err != nil {
		_, _ = bad.Fprintln(w, "Configuration is invalid:")
		for line := range strings.SplitSeq(err.Error(), "\n") {
			_, _ = fmt.Fprintf(w, "  %s\n", line)
		}
		return errors.New("configuration has errors")
	}

	_, _ = ok.Fprintln(w, "Configuration is valid")
	_, _ = fmt.Fprintf(w, "\nClipboard backend: %s\n", cfg.Clipboard.Backend)
	_, _ = fmt.Fprintf(w, "YAML indent: %d\n", cfg.YAML.Indent)
	_, _ = fmt.Fprintf(w, "Max input bytes: %d\n", cfg.MaxInputBytes)
	listen := cfg.Ports.Listen
	if listen == "" {
		listen = "(stdio)"
	}
	_, _ = fmt.Fprintf(w, "Ports: %s%s\n", listen, cfg.Ports.Path)
	if len(cfg.Ports.AllowedOrigins) > 0 {
		_, _ = fmt.Fprintf(w, "Allowed origins: %s\n", strings.Join(cfg.Ports.AllowedOrigins, ", "))
	}
	_, _ = fmt.Fprintf(w, "Auto reload: %t\n", cfg.AutoReload)
	return nil
}

// performCleanup closes the log file. It is safe to call more than once.
func performCleanup() {
	if file := debugLogFile.Swap(nil); file != nil {
		_ = file.Close()
	}
}
