package chat

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeHandle struct {
	mu     sync.Mutex
	frames []Frame
}

func (f *fakeHandle) SendRaw(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var fr Frame
	if err := json.Unmarshal(data, &fr); err == nil {
		f.frames = append(f.frames, fr)
	}
}

func (f *fakeHandle) received() []Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Frame, len(f.frames))
	copy(out, f.frames)
	return out
}

func TestBroadcastReachesAllMembersIncludingSender(t *testing.T) {
	reg := NewRegistry(zap.NewNop())

	handles := make([]*fakeHandle, 5)
	for i := range handles {
		handles[i] = &fakeHandle{}
		reg.Join("42", handles[i])
	}
	assert.Equal(t, 5, reg.Count("42"))

	reg.Broadcast("42", &Frame{Message: "hi", Username: "Alice", LastName: "Smith"})

	for i, h := range handles {
		got := h.received()
		require.Len(t, got, 1, "handle %d", i)
		assert.Equal(t, "hi", got[0].Message)
		assert.Equal(t, "Alice", got[0].Username)
	}
}

func TestRoomIsolation(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	inRoom := &fakeHandle{}
	elsewhere := &fakeHandle{}
	reg.Join("42", inRoom)
	reg.Join("43", elsewhere)

	reg.Broadcast("42", &Frame{Message: "hello 42"})

	assert.Len(t, inRoom.received(), 1)
	assert.Empty(t, elsewhere.received())
}

func TestLeavePrunesEmptyRoom(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	a := &fakeHandle{}
	b := &fakeHandle{}
	reg.Join("42", a)
	reg.Join("42", b)

	reg.Leave("42", a)
	assert.Equal(t, 1, reg.Count("42"))
	assert.Equal(t, []string{"42"}, reg.Rooms())

	reg.Leave("42", b)
	assert.Zero(t, reg.Count("42"))
	assert.Empty(t, reg.Rooms(), "empty room is dropped")

	// Leaving a room you are not in must not panic or create the room.
	reg.Leave("42", a)
	assert.Empty(t, reg.Rooms())

	// Departed members get no further frames.
	reg.Join("42", b)
	reg.Broadcast("42", &Frame{Message: "again"})
	assert.Empty(t, a.received())
	assert.Len(t, b.received(), 1)
}

func TestSameProfileMultipleConnections(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	phone := &fakeHandle{}
	laptop := &fakeHandle{}
	reg.Join("42", phone)
	reg.Join("42", laptop)

	reg.Broadcast("42", &Frame{Message: "ping"})

	assert.Len(t, phone.received(), 1)
	assert.Len(t, laptop.received(), 1)
}

func TestBroadcastToUnknownRoomIsNoop(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	reg.Broadcast("nobody-home", &Frame{Message: "echo"})
	assert.Empty(t, reg.Rooms())
}
