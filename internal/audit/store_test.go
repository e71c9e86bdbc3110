package audit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/designgov/internal/logging"
)

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Write(ctx context.Context, e Entry) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockSink) Close() error {
	return m.Called().Error(0)
}

func sampleEntry(agent, session, tool string) Entry {
	return Entry{
		SessionID:  session,
		AgentID:    agent,
		Action:     "create:" + tool,
		Tool:       tool,
		Parameters: map[string]any{"height": 3.0},
		Success:    true,
		Reasoning:  "user request",
		DryRun:     true,
		Phase:      "execute",
	}
}

func TestStore_AppendAssignsIDAndTimestamp(t *testing.T) {
	s := NewStore(nil)
	e := s.Append(context.Background(), sampleEntry("a1", "s1", "create_wall"))

	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, 1, s.Len())
}

func TestStore_Queries(t *testing.T) {
	s := NewStore(nil)
	ctx := context.Background()
	s.Append(ctx, sampleEntry("a1", "s1", "create_wall"))
	s.Append(ctx, sampleEntry("a1", "s2", "delete_element"))
	s.Append(ctx, sampleEntry("a2", "s3", "create_wall"))

	assert.Len(t, s.ByAgent("a1"), 2)
	assert.Len(t, s.BySession("s3"), 1)
	assert.Len(t, s.ByTool("create_wall"), 2)
	assert.Len(t, s.Query(Filter{AgentID: "a1", Tool: "create_wall"}), 1)
	assert.Empty(t, s.ByAgent("nobody"))
	assert.NotNil(t, s.ByAgent("nobody"))

	all := s.All()
	require.Len(t, all, 3)
	assert.Equal(t, "s1", all[0].SessionID)
	assert.Equal(t, "s3", all[2].SessionID)
}

func TestStore_EntriesAreImmutable(t *testing.T) {
	s := NewStore(nil)
	start := []any{0.0, 0.0}
	opening := map[string]any{"width": 0.9, "offsets": []float64{1.0}}
	params := map[string]any{"height": 3.0, "start": start, "opening": opening}
	e := sampleEntry("a1", "s1", "create_wall")
	e.Parameters = params
	written := s.Append(context.Background(), e)

	// Mutating the caller's values, the returned entry and a read copy must
	// not reach the stored record, at any depth.
	params["height"] = 99.0
	start[0] = 99.0
	opening["width"] = 5.0
	opening["offsets"].([]float64)[0] = 8.0
	written.Parameters["height"] = 42.0
	written.Parameters["start"].([]any)[1] = 42.0

	got := s.All()
	got[0].Success = false
	got[0].Parameters["height"] = 7.0
	got[0].Parameters["start"].([]any)[1] = 42.0
	got[0].Parameters["opening"].(map[string]any)["width"] = 7.0
	s.Query(Filter{})[0].Parameters["start"].([]any)[0] = 13.0
	s.ByAgent("a1")[0].Parameters["opening"].(map[string]any)["offsets"].([]float64)[0] = 13.0

	stored := s.All()[0]
	assert.Equal(t, 3.0, stored.Parameters["height"])
	assert.Equal(t, []any{0.0, 0.0}, stored.Parameters["start"])
	assert.Equal(t, map[string]any{"width": 0.9, "offsets": []float64{1.0}}, stored.Parameters["opening"])
	assert.True(t, stored.Success)
	assert.Equal(t, written.ID, stored.ID)
}

func TestStore_RestoreCopiesNestedParameters(t *testing.T) {
	s := NewStore(nil)
	start := []any{1.0, 2.0}
	e := sampleEntry("a1", "s1", "create_wall")
	e.Parameters = map[string]any{"start": start}
	s.Restore([]Entry{e})

	start[0] = 99.0
	assert.Equal(t, []any{1.0, 2.0}, s.All()[0].Parameters["start"])
}

func TestStore_ConcurrentAppendsLoseNothing(t *testing.T) {
	s := NewStore(nil)
	ctx := context.Background()

	const workers, perWorker = 20, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				s.Append(ctx, sampleEntry(fmt.Sprintf("agent-%d", w), "s", "create_wall"))
				_ = s.Len()
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker, s.Len())
	assert.Len(t, s.ByAgent("agent-7"), perWorker)
}

func TestStore_SinkFailureNeverFailsAppend(t *testing.T) {
	tl := logging.NewTestLogger()
	sink := new(MockSink)
	sink.On("Write", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	sink.On("Close").Return(nil)

	s := NewStore(tl.Logger, sink)
	s.Append(context.Background(), sampleEntry("a1", "s1", "create_wall"))

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, int64(1), s.SinkErrors())
	tl.AssertLogged(t, zapcore.WarnLevel, "audit sink write failed")

	require.NoError(t, s.Close())
	sink.AssertExpectations(t)
}

func TestStore_RestoreDoesNotFanOut(t *testing.T) {
	sink := new(MockSink)
	s := NewStore(nil, sink)
	s.Restore([]Entry{sampleEntry("a1", "s1", "create_wall")})

	assert.Equal(t, 1, s.Len())
	sink.AssertNotCalled(t, "Write", mock.Anything, mock.Anything)
}

func TestJSONLSink_RoundTripIntoStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "audit.jsonl")
	sink, err := NewJSONLSink(path)
	require.NoError(t, err)

	s := NewStore(nil, sink)
	ctx := context.Background()
	first := s.Append(ctx, sampleEntry("a1", "s1", "create_wall"))
	second := sampleEntry("a1", "s1", "create_wall")
	second.DryRun = false
	second.EventID = "evt-1"
	s.Append(ctx, second)
	require.NoError(t, s.Close())

	entries, err := ReadJSONL(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first.ID, entries[0].ID)
	assert.Equal(t, "evt-1", entries[1].EventID)
	assert.False(t, entries[1].DryRun)

	replayed := NewStore(nil)
	replayed.Restore(entries)
	assert.Len(t, replayed.BySession("s1"), 2)
}

func TestJSONLSink_WriteAfterClose(t *testing.T) {
	sink, err := NewJSONLSink(filepath.Join(t.TempDir(), "a.jsonl"))
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	assert.Error(t, sink.Write(context.Background(), Entry{}))
	assert.NoError(t, sink.Close())
}

func TestReadJSONL_MissingAndMalformed(t *testing.T) {
	entries, err := ReadJSONL(filepath.Join(t.TempDir(), "none.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, entries)

	path := filepath.Join(t.TempDir(), "bad.jsonl")
	sink, err := NewJSONLSink(path)
	require.NoError(t, err)
	require.NoError(t, sink.Write(context.Background(), Entry{ID: "ok"}))
	_, err = sink.f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	_, err = ReadJSONL(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}
