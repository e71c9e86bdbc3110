// Package mcpexec runs tool invocations against the target servers over
// MCP client sessions, one session per server.
//
// Each call sends the action parameters plus a "dry_run" flag. A tool that
// returns a non-error result succeeded. On a successful commit the event id
// is read from the structured result ("event_id"). A commit whose server
// reports no event id comes back without one and the orchestrator fails it,
// unless WithEventIDFunc opts in to generated ids.
package mcpexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designgov/internal/config"
	"github.com/fyrsmithlabs/designgov/internal/logging"
	"github.com/fyrsmithlabs/designgov/internal/session"
)

// DryRunArgument is the argument carrying the dry-run flag.
const DryRunArgument = "dry_run"

// ErrNotConnected is returned for servers without a session.
var ErrNotConnected = errors.New("server not connected")

// Session is the part of *mcp.ClientSession the executor uses.
type Session interface {
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	Close() error
}

// Config configures the client side of the executor.
type Config struct {
	// Name and Version identify designgov to the tool servers.
	Name    string
	Version string

	// CallTimeout bounds one tool call. Zero disables the bound.
	CallTimeout time.Duration
}

// DefaultConfig returns the default client settings.
func DefaultConfig() *Config {
	return &Config{
		Name:    "designgov",
		Version: "0.1.0",
	}
}

// Executor implements the orchestrator's tool executor.
type Executor struct {
	cfg      *Config
	client   *mcp.Client
	logger   *logging.Logger
	metrics  *Metrics
	mu       sync.RWMutex
	sessions map[string]Session
	newID    func() string
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithMetrics sets the call metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithEventIDFunc generates event ids for commits whose server reports
// none. Only use it for servers known to write without reporting ids.
func WithEventIDFunc(fn func() string) Option {
	return func(e *Executor) { e.newID = fn }
}

// New creates an executor with no connected servers.
func New(cfg *Config, opts ...Option) *Executor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	e := &Executor{
		cfg:      cfg,
		logger:   logging.NewNop(),
		sessions: make(map[string]Session),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil, e.logger)
	}
	e.client = mcp.NewClient(&mcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil)
	return e
}

// Dial connects to every configured server. On error, sessions opened so
// far are closed.
func Dial(ctx context.Context, servers map[string]config.MCPServerConfig, cfg *Config, opts ...Option) (*Executor, error) {
	e := New(cfg, opts...)

	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := e.Connect(ctx, name, Transport(servers[name])); err != nil {
			_ = e.Close()
			return nil, err
		}
	}
	return e, nil
}

// Transport builds the client transport for one configured server.
func Transport(srv config.MCPServerConfig) mcp.Transport {
	if srv.Command != "" {
		return &mcp.CommandTransport{Command: exec.Command(srv.Command, srv.Args...)}
	}
	return &mcp.StreamableClientTransport{Endpoint: srv.URL}
}

// Connect opens a session to server over transport.
func (e *Executor) Connect(ctx context.Context, server string, transport mcp.Transport) error {
	cs, err := e.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", server, err)
	}
	e.Register(server, cs)
	e.logger.Info(ctx, "connected to tool server", zap.String("server", server))
	return nil
}

// Register adds an already-open session for server, replacing any
// previous one.
func (e *Executor) Register(server string, s Session) {
	e.mu.Lock()
	old := e.sessions[server]
	e.sessions[server] = s
	e.mu.Unlock()
	if old != nil && old != s {
		_ = old.Close()
	}
}

// Servers returns the connected server names, sorted.
func (e *Executor) Servers() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.sessions))
	for name := range e.sessions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Execute calls tool on server. Transport failures are returned as
// errors; tool-reported failures are unsuccessful results.
func (e *Executor) Execute(ctx context.Context, server, tool string, params map[string]any, dryRun bool) (session.Result, error) {
	e.mu.RLock()
	s, ok := e.sessions[server]
	e.mu.RUnlock()
	if !ok {
		err := fmt.Errorf("%w: %s", ErrNotConnected, server)
		e.metrics.RecordInvocation(ctx, server, tool, dryRun, 0, err, false)
		return session.Result{}, err
	}

	args := make(map[string]any, len(params)+1)
	for k, v := range params {
		args[k] = v
	}
	args[DryRunArgument] = dryRun

	if e.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
	}

	e.metrics.IncrementActive(ctx, server)
	start := time.Now()
	res, err := s.CallTool(ctx, &mcp.CallToolParams{Name: tool, Arguments: args})
	e.metrics.DecrementActive(ctx, server)
	if err != nil {
		e.metrics.RecordInvocation(ctx, server, tool, dryRun, time.Since(start), err, false)
		e.logger.Warn(ctx, "tool call failed",
			zap.String("server", server),
			zap.String("tool", tool),
			zap.Bool("dry_run", dryRun),
			zap.Error(err))
		return session.Result{}, fmt.Errorf("call %s on %s: %w", tool, server, err)
	}
	e.metrics.RecordInvocation(ctx, server, tool, dryRun, time.Since(start), nil, res.IsError)

	r, err := e.toResult(res, dryRun)
	if err != nil {
		return session.Result{}, fmt.Errorf("decode %s result: %w", tool, err)
	}
	e.logger.Debug(ctx, "tool call",
		zap.String("server", server),
		zap.String("tool", tool),
		zap.Bool("dry_run", dryRun),
		zap.Bool("success", r.Success),
		zap.String("event_id", r.EventID))
	return r, nil
}

// structured is the optional structured payload of a tool result.
type structured struct {
	EventID  string   `json:"event_id"`
	Warnings []string `json:"warnings"`
	Data     any      `json:"data"`
}

func (e *Executor) toResult(res *mcp.CallToolResult, dryRun bool) (session.Result, error) {
	text := contentText(res.Content)
	r := session.Result{Success: !res.IsError, DryRun: dryRun}
	if res.IsError {
		r.Error = text
		if r.Error == "" {
			r.Error = "tool reported an error"
		}
		return r, nil
	}

	var out structured
	if res.StructuredContent != nil {
		raw, err := json.Marshal(res.StructuredContent)
		if err != nil {
			return session.Result{}, err
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return session.Result{}, err
		}
		r.Data = res.StructuredContent
		if out.Data != nil {
			r.Data = out.Data
		}
	} else if text != "" {
		r.Data = text
	}
	r.Warnings = out.Warnings

	if !dryRun {
		r.EventID = out.EventID
		if r.EventID == "" && e.newID != nil {
			r.EventID = e.newID()
		}
	}
	return r, nil
}

func contentText(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		if tc, ok := c.(*mcp.TextContent); ok && tc.Text != "" {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Close closes every session.
func (e *Executor) Close() error {
	e.mu.Lock()
	sessions := e.sessions
	e.sessions = make(map[string]Session)
	e.mu.Unlock()

	var errs []error
	for name, s := range sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
