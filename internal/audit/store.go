// Package audit records every action the governance middleware sees.
//
// The Store is an append-only, ordered log shared by all concurrent runs.
// It has no update or delete operation; reads return copies. Each appended
// entry is also fanned out to the configured sinks (a JSONL file, a NATS
// subject). Sink failures are logged and counted but never fail the append.
package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designgov/internal/logging"
)

// Entry is one immutable audit record.
type Entry struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	SessionID  string         `json:"session_id"`
	AgentID    string         `json:"agent_id"`
	Action     string         `json:"action"`
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Success    bool           `json:"success"`
	EventID    string         `json:"event_id,omitempty"`
	Reasoning  string         `json:"reasoning,omitempty"`
	DryRun     bool           `json:"dry_run"`
	Phase      string         `json:"phase"`
}

// Sink receives a copy of every appended entry.
type Sink interface {
	Write(ctx context.Context, e Entry) error
	Close() error
}

// Filter selects entries. Empty fields match everything.
type Filter struct {
	AgentID   string
	SessionID string
	Tool      string
}

func (f Filter) match(e Entry) bool {
	return (f.AgentID == "" || e.AgentID == f.AgentID) &&
		(f.SessionID == "" || e.SessionID == f.SessionID) &&
		(f.Tool == "" || e.Tool == f.Tool)
}

// Store is the shared append-only audit log. It is safe for concurrent use.
type Store struct {
	logger *logging.Logger

	mu      sync.RWMutex
	entries []Entry
	sinks   []Sink

	sinkErrors atomic.Int64
}

// NewStore creates an empty store. A nil logger discards sink errors.
func NewStore(logger *logging.Logger, sinks ...Sink) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{logger: logger, sinks: sinks}
}

// AddSink registers another sink for subsequent appends.
func (s *Store) AddSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// Append assigns an id and timestamp when missing, records e and fans it
// out to the sinks. The stored entry is returned.
func (s *Store) Append(ctx context.Context, e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	e = e.clone()

	s.mu.Lock()
	s.entries = append(s.entries, e)
	sinks := s.sinks
	s.mu.Unlock()

	for _, sink := range sinks {
		if err := sink.Write(ctx, e.clone()); err != nil {
			s.sinkErrors.Add(1)
			s.logger.Warn(ctx, "audit sink write failed",
				zap.String("entry_id", e.ID),
				zap.Error(err))
		}
	}
	return e.clone()
}

// Restore loads previously persisted entries without fanning them out.
func (s *Store) Restore(entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.entries = append(s.entries, e.clone())
	}
}

// Query returns copies of the entries matching f, in append order.
func (s *Store) Query(f Filter) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0)
	for _, e := range s.entries {
		if f.match(e) {
			out = append(out, e.clone())
		}
	}
	return out
}

// ByAgent returns the entries written for agentID.
func (s *Store) ByAgent(agentID string) []Entry {
	return s.Query(Filter{AgentID: agentID})
}

// BySession returns the entries written for sessionID.
func (s *Store) BySession(sessionID string) []Entry {
	return s.Query(Filter{SessionID: sessionID})
}

// ByTool returns the entries written for tool.
func (s *Store) ByTool(tool string) []Entry {
	return s.Query(Filter{Tool: tool})
}

// All returns every entry.
func (s *Store) All() []Entry {
	return s.Query(Filter{})
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// SinkErrors returns how many sink writes have failed.
func (s *Store) SinkErrors() int64 {
	return s.sinkErrors.Load()
}

// Close closes every sink.
func (s *Store) Close() error {
	s.mu.Lock()
	sinks := s.sinks
	s.sinks = nil
	s.mu.Unlock()

	var errs []error
	for _, sink := range sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// clone copies the parameters recursively so stored entries never share
// nested maps or slices with writers or readers.
func (e Entry) clone() Entry {
	if e.Parameters != nil {
		e.Parameters = copyMap(e.Parameters)
	}
	return e
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = copyValue(x)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []float64:
		return append([]float64(nil), t...)
	case []int:
		return append([]int(nil), t...)
	default:
		return v
	}
}
