package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func TestNATSSink_PublishesEntries(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	ch := make(chan *nats.Msg, 4)
	sub, err := nc.ChanSubscribe("designgov.audit.architect.>", ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, nc.Flush())

	sink, err := DialNATSSink(server.ClientURL(), "", "designgov.audit")
	require.NoError(t, err)

	s := NewStore(nil, sink)
	written := s.Append(context.Background(), sampleEntry("architect", "sess-1", "create_wall"))
	require.NoError(t, s.Close())

	select {
	case msg := <-ch:
		assert.Equal(t, "designgov.audit.architect.sess-1", msg.Subject)
		var got Entry
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, written.ID, got.ID)
		assert.Equal(t, "create:create_wall", got.Action)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for audit entry")
	}
	assert.Zero(t, s.SinkErrors())
}

func TestNATSSink_SubjectSanitizesTokens(t *testing.T) {
	sink := NewNATSSink(nil, "p")
	assert.Equal(t, "p.team_alpha.s_1", sink.Subject(Entry{AgentID: "team.alpha", SessionID: "s 1"}))
	assert.Equal(t, "p._._", sink.Subject(Entry{}))
	assert.NoError(t, sink.Close())
}
