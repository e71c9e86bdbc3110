// Package grants loads per-agent permission grants from a YAML file and
// keeps them current while the file changes.
//
//	agents:
//	  architect:
//	    permissions:
//	      create: {categories: [wall, door], branches: ["feature/*"]}
//	      read: {}
//	    require_approval: [export_ifc]
//	    max_elements_per_operation: 200
//	    max_operations_per_session: 20
//
// Caps left out of the file take the registry defaults. An explicit zero
// is kept: max_operations_per_session: 0 forbids every commit.
package grants

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/designgov/internal/logging"
	"github.com/fyrsmithlabs/designgov/internal/session"
)

// MaxFileSize bounds the grants file.
const MaxFileSize = 1 << 20

var (
	// ErrNoGrant is returned for agents without a grant.
	ErrNoGrant = errors.New("no grant configured")

	// ErrWatcherFailed is returned when the file watcher cannot start.
	ErrWatcherFailed = errors.New("failed to initialize grants watcher")
)

type file struct {
	Agents map[string]agentGrant `yaml:"agents"`
}

type agentGrant struct {
	Permissions             map[string]session.Scope `yaml:"permissions"`
	RequireApproval         []string                 `yaml:"require_approval"`
	MaxElementsPerOperation *int                     `yaml:"max_elements_per_operation"`
	MaxOperationsPerSession *int                     `yaml:"max_operations_per_session"`
}

var operationKinds = map[session.OperationKind]bool{
	session.OperationRead:     true,
	session.OperationCreate:   true,
	session.OperationModify:   true,
	session.OperationDelete:   true,
	session.OperationExport:   true,
	session.OperationValidate: true,
}

// Defaults are the caps applied when a grant omits them.
type Defaults struct {
	MaxElementsPerOperation int
	MaxOperationsPerSession int
}

// DefaultCaps returns the session package defaults.
func DefaultCaps() Defaults {
	return Defaults{
		MaxElementsPerOperation: session.DefaultMaxElementsPerOperation,
		MaxOperationsPerSession: session.DefaultMaxOperationsPerSession,
	}
}

// Parse decodes a grants document.
func Parse(data []byte, defaults Defaults) (map[string]*session.Grant, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse grants: %w", err)
	}

	out := make(map[string]*session.Grant, len(f.Agents))
	for agent, ag := range f.Agents {
		if agent == "" {
			return nil, errors.New("grant with empty agent id")
		}
		g := session.NewGrant()
		g.MaxElementsPerOperation = defaults.MaxElementsPerOperation
		g.MaxOperationsPerSession = defaults.MaxOperationsPerSession

		for kind, scope := range ag.Permissions {
			k := session.OperationKind(kind)
			if !operationKinds[k] {
				return nil, fmt.Errorf("agent %s: unknown operation %q", agent, kind)
			}
			g.Allow(k, scope)
		}
		g.RequireApproval = append([]string(nil), ag.RequireApproval...)

		if ag.MaxElementsPerOperation != nil {
			g.MaxElementsPerOperation = *ag.MaxElementsPerOperation
		}
		if ag.MaxOperationsPerSession != nil {
			g.MaxOperationsPerSession = *ag.MaxOperationsPerSession
		}
		if g.MaxElementsPerOperation < 0 || g.MaxOperationsPerSession < 0 {
			return nil, fmt.Errorf("agent %s: caps must not be negative", agent)
		}
		out[agent] = g
	}
	return out, nil
}

// Registry holds the grants of one file.
type Registry struct {
	path     string
	defaults Defaults
	logger   *logging.Logger

	mu     sync.RWMutex
	grants map[string]*session.Grant
}

// Option configures a Registry.
type Option func(*Registry)

// WithDefaults overrides DefaultCaps.
func WithDefaults(d Defaults) Option {
	return func(r *Registry) { r.defaults = d }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// Load reads path into a new registry.
func Load(path string, opts ...Option) (*Registry, error) {
	r := &Registry{
		path:     path,
		defaults: DefaultCaps(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Path returns the grants file path.
func (r *Registry) Path() string { return r.path }

// Get returns a copy of the grant for agentID.
func (r *Registry) Get(agentID string) (*session.Grant, error) {
	r.mu.RLock()
	g, ok := r.grants[agentID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for agent %q", ErrNoGrant, agentID)
	}
	return g.Clone(), nil
}

// Agents returns the agent ids with grants, sorted.
func (r *Registry) Agents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.grants))
	for id := range r.grants {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Reload re-reads the file. On error the previous grants stay in effect.
func (r *Registry) Reload() error {
	info, err := os.Stat(r.path)
	if err != nil {
		return fmt.Errorf("stat grants file: %w", err)
	}
	if info.Size() > MaxFileSize {
		return fmt.Errorf("grants file %s exceeds %d bytes", r.path, MaxFileSize)
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read grants file: %w", err)
	}
	grants, err := Parse(data, r.defaults)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.grants = grants
	r.mu.Unlock()
	return nil
}

// Watch reloads the registry whenever the file is written or replaced,
// until ctx is done. The directory is watched so editors that replace the
// file by rename are seen. onReload, when set, receives every reload
// outcome.
func (r *Registry) Watch(ctx context.Context, onReload func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	target := filepath.Clean(r.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				err := r.Reload()
				if err != nil {
					r.logger.Warn(ctx, "grants reload failed", zap.String("path", r.path), zap.Error(err))
				} else {
					r.logger.Info(ctx, "grants reloaded", zap.String("path", r.path), zap.Int("agents", len(r.Agents())))
				}
				if onReload != nil {
					onReload(err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Warn(ctx, "grants watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
