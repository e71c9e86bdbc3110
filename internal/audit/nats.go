package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

// NATSSink publishes each entry as JSON to <prefix>.<agent>.<session>.
type NATSSink struct {
	nc     *nats.Conn
	prefix string
	owned  bool
}

// NewNATSSink publishes over an existing connection. Close leaves nc open.
func NewNATSSink(nc *nats.Conn, prefix string) *NATSSink {
	return &NATSSink{nc: nc, prefix: prefix}
}

// DialNATSSink connects to url and owns the connection.
func DialNATSSink(url, token, prefix string) (*NATSSink, error) {
	opts := []nats.Option{nats.Name("designgov-audit")}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("audit: connect nats: %w", err)
	}
	return &NATSSink{nc: nc, prefix: prefix, owned: true}, nil
}

// Subject returns the subject e is published on.
func (s *NATSSink) Subject(e Entry) string {
	return fmt.Sprintf("%s.%s.%s", s.prefix, subjectToken(e.AgentID), subjectToken(e.SessionID))
}

// Write implements Sink.
func (s *NATSSink) Write(_ context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	if err := s.nc.Publish(s.Subject(e), data); err != nil {
		return fmt.Errorf("audit: publish: %w", err)
	}
	return nil
}

// Close implements Sink.
func (s *NATSSink) Close() error {
	if !s.owned {
		return nil
	}
	if err := s.nc.Drain(); err != nil {
		s.nc.Close()
		return err
	}
	return nil
}

// subjectToken makes v safe as a single subject token.
func subjectToken(v string) string {
	if v == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, v)
}
