package trace

import (
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordStampsSequence(t *testing.T) {
	r := NewRecorder(0)

	r.Record(Event{Op: "socketpair"})
	r.Record(Event{Op: "write", Fd: 1, Bytes: 4})
	r.Record(Event{Op: "read", Fd: 0, Bytes: 4})

	events := r.Events()
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, uint64(i), ev.Seq)
		assert.False(t, ev.Time.IsZero())
	}
	assert.Equal(t, "write", events[1].Op)
}

func TestLimitDropsOldest(t *testing.T) {
	r := NewRecorder(2)

	r.Record(Event{Op: "a"})
	r.Record(Event{Op: "b"})
	r.Record(Event{Op: "c"})

	events := r.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "b", events[0].Op)
	assert.Equal(t, "c", events[1].Op)
}

func TestDumpJSONRoundTrips(t *testing.T) {
	r := NewRecorder(0)
	r.Record(Event{Op: "write", Fd: 3, Bytes: 7, Thread: 2})

	data, err := r.DumpJSON()
	require.NoError(t, err)

	var decoded []Event
	require.NoError(t, sonic.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "write", decoded[0].Op)
	assert.Equal(t, uint32(3), decoded[0].Fd)
	assert.Equal(t, 7, decoded[0].Bytes)
}

func TestTraceIDPrefixed(t *testing.T) {
	r := NewRecorder(0)
	assert.True(t, strings.HasPrefix(r.ID().String(), "trace_"))
}
