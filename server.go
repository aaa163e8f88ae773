package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/sammcj/yaml-bridge/internal/ports"
	"github.com/sammcj/yaml-bridge/internal/registry"
	"github.com/sammcj/yaml-bridge/internal/telemetry"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

// rejectedKey holds the reason a request failed the HTTP checks
type rejectedKey struct{}

// serveMCP registers the enabled tools and serves them on the chosen transport.
func serveMCP(ctx context.Context, cmd *cli.Command, rt *runtime) error {
	transport := cmd.String("transport")
	logger := rt.logger

	logger.Debug("Creating MCP server")
	mcpSrv := mcpserver.NewMCPServer("yaml-bridge", Version)

	enabledTools := registry.GetEnabledTools()
	logger.WithField("tool_count", len(enabledTools)).Debug("MCP server created, registering tools")

	for name, tool := range enabledTools {
		if transport != "stdio" {
			logger.Infof("Registering tool: %s", name)
		}
		mcpSrv.AddTool(tool.Definition(), toolHandler(name, transport, rt))
	}

	logger.WithField("transport", transport).Debug("Starting server")
	switch transport {
	case "stdio":
		return mcpserver.ServeStdio(mcpSrv)
	case "sse":
		port := cmd.String("port")
		logger.WithField("port", port).Debug("Starting SSE server")
		sseServer := mcpserver.NewSSEServer(mcpSrv, mcpserver.WithBaseURL(cmd.String("base-url")+":"+port))
		return sseServer.Start(":" + port)
	case "http":
		return startStreamableHTTPServer(ctx, cmd, mcpSrv, logger)
	default:
		return fmt.Errorf("unsupported transport: %s", transport)
	}
}

// toolHandler runs a registered tool, records the call metric and writes
// failures to the tool error log.
func toolHandler(name, transport string, rt *runtime) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx = telemetry.WithTransport(ctx, transport)

		if reason, _ := ctx.Value(rejectedKey{}).(string); reason != "" {
			return mcp.NewToolResultError("Unauthorised: " + reason), nil
		}

		tool, ok := registry.GetTool(name)
		if !ok {
			return nil, fmt.Errorf("tool not found: %s", name)
		}

		args, ok := request.Params.Arguments.(map[string]any)
		if !ok {
			if request.Params.Arguments != nil {
				return nil, fmt.Errorf("invalid arguments type: expected map[string]any, got %T", request.Params.Arguments)
			}
			args = map[string]any{}
		}

		start := time.Now()
		result, err := tool.Execute(ctx, registry.GetLogger(), registry.GetFactory(), args)
		telemetry.RecordToolCall(ctx, name, transport, err == nil && (result == nil || !result.IsError), time.Since(start))
		if err != nil {
			if transport != "stdio" {
				rt.logger.WithError(err).Errorf("Tool execution failed: %s", name)
			}
			rt.errorLog.Record(name, args, err.Error(), transport)
			return nil, fmt.Errorf("tool execution failed: %w", err)
		}

		if result != nil && result.IsError {
			rt.errorLog.Record(name, args, resultText(result), transport)
		}
		return result, nil
	}
}

func resultText(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if text, ok := mcp.AsTextContent(c); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// startStreamableHTTPServer serves the Streamable HTTP transport until ctx is done
func startStreamableHTTPServer(ctx context.Context, cmd *cli.Command, mcpServer *mcpserver.MCPServer, logger *logrus.Logger) error {
	port := cmd.String("port")
	endpointPath := cmd.String("endpoint-path")
	sessionTimeout := cmd.Duration("session-timeout")

	logger.Infof("Starting Streamable HTTP server on port %s with endpoint %s", port, endpointPath)

	opts := []mcpserver.StreamableHTTPOption{
		mcpserver.WithEndpointPath(endpointPath),
		mcpserver.WithLogger(&logrusAdapter{logger: logger}),
		mcpserver.WithHTTPContextFunc(createAuthMiddleware(cmd.String("auth-token"), logger)),
	}

	if sessionTimeout > 0 {
		opts = append(opts, mcpserver.WithSessionIdManager(NewTimeoutSessionManager(sessionTimeout, logger)))
	}

	// heartbeat at a quarter of the session timeout keeps idle sessions alive
	heartbeatInterval := 30 * time.Second
	if sessionTimeout > 0 {
		heartbeatInterval = sessionTimeout / 4
	}
	opts = append(opts, mcpserver.WithHeartbeatInterval(heartbeatInterval))

	httpServer := mcpserver.NewStreamableHTTPServer(mcpServer, opts...)

	mux := http.NewServeMux()
	mux.Handle(endpointPath, httpServer)
	server := &http.Server{
		Addr:           ":" + port,
		Handler:        mux,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
		return err
	}
	logger.Info("HTTP server stopped gracefully")
	return nil
}

// createAuthMiddleware checks the protocol version, origin and bearer token
// of each request. Requests failing the token check are marked in the
// context and refused by the tool handler.
func createAuthMiddleware(expectedToken string, logger *logrus.Logger) mcpserver.HTTPContextFunc {
	return func(ctx context.Context, req *http.Request) context.Context {
		if v := req.Header.Get("MCP-Protocol-Version"); v != "" && !isValidProtocolVersion(v) {
			logger.Warnf("Unsupported MCP Protocol Version: %s", v)
		}

		if origin := req.Header.Get("Origin"); !ports.OriginAllowed(origin, nil) {
			logger.Warnf("Invalid Origin header: %s", origin)
			return context.WithValue(ctx, rejectedKey{}, "origin not allowed")
		}

		if expectedToken == "" {
			return ctx
		}

		token, found := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer ")
		if !found || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			logger.Warn("Request missing or presenting an invalid bearer token")
			return context.WithValue(ctx, rejectedKey{}, "missing or invalid bearer token")
		}
		logger.Debug("Request authenticated successfully")
		return ctx
	}
}

// isValidProtocolVersion checks if the MCP protocol version is supported
func isValidProtocolVersion(version string) bool {
	return slices.Contains([]string{"2025-06-18", "2025-03-26", "2024-11-05"}, version)
}

// TimeoutSessionManager issues session ids and expires sessions idle for longer than timeout
type TimeoutSessionManager struct {
	timeout time.Duration
	logger  *logrus.Logger

	mu       sync.Mutex
	sessions map[string]*sessionTimes
	now      func() time.Time
}

type sessionTimes struct {
	created  time.Time
	lastSeen time.Time
}

// NewTimeoutSessionManager creates a session manager with the given idle timeout
func NewTimeoutSessionManager(timeout time.Duration, logger *logrus.Logger) *TimeoutSessionManager {
	return &TimeoutSessionManager{
		timeout:  timeout,
		logger:   logger,
		sessions: make(map[string]*sessionTimes),
		now:      time.Now,
	}
}

// Active returns the number of live sessions.
func (t *TimeoutSessionManager) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

func (t *TimeoutSessionManager) Generate() string {
	id := uuid.NewString()
	now := t.now()
	t.mu.Lock()
	t.sessions[id] = &sessionTimes{created: now, lastSeen: now}
	t.mu.Unlock()
	telemetry.RecordSessionStart(context.Background(), "http")
	return id
}

// end removes sessionID and records its lifetime. Caller holds t.mu.
func (t *TimeoutSessionManager) end(sessionID string) bool {
	s, ok := t.sessions[sessionID]
	if !ok {
		return false
	}
	delete(t.sessions, sessionID)
	telemetry.RecordSessionEnd(context.Background(), "http", t.now().Sub(s.created))
	return true
}

// Validate reports whether sessionID has been terminated or has expired.
func (t *TimeoutSessionManager) Validate(sessionID string) (bool, error) {
	if sessionID == "" {
		return false, fmt.Errorf("empty session ID")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return false, fmt.Errorf("unknown session ID: %s", sessionID)
	}
	if t.now().Sub(s.lastSeen) > t.timeout {
		t.end(sessionID)
		t.logger.Debugf("Session expired: %s", sessionID)
		return true, nil
	}
	s.lastSeen = t.now()
	return false, nil
}

func (t *TimeoutSessionManager) Terminate(sessionID string) (bool, error) {
	t.mu.Lock()
	ended := t.end(sessionID)
	t.mu.Unlock()
	if ended {
		t.logger.Debugf("Session terminated: %s", sessionID)
	}
	return false, nil
}

// logrusAdapter adapts logrus.Logger to the mcp-go util.Logger interface
type logrusAdapter struct {
	logger *logrus.Logger
}

func (l *logrusAdapter) Infof(format string, args ...any) {
	l.logger.Infof(format, args...)
}

func (l *logrusAdapter) Errorf(format string, args ...any) {
	l.logger.Errorf(format, args...)
}
