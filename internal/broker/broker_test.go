package broker

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records everything the broker sends or does to a connection.
type fakeConn struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
	code   int
	reason string
}

func newFakeConn() *fakeConn { return &fakeConn{} }

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection closed")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.sent = append(c.sent, buf)
	return nil
}

func (c *fakeConn) Close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.code = code
	c.reason = reason
}

func (c *fakeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *fakeConn) closeCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
}

// events decodes every payload sent so far.
func (c *fakeConn) events(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]map[string]any, 0, len(c.sent))
	for _, data := range c.sent {
		var ev map[string]any
		require.NoError(t, json.Unmarshal(data, &ev))
		out = append(out, ev)
	}
	return out
}

func (c *fakeConn) eventKinds(t *testing.T) []string {
	t.Helper()
	var kinds []string
	for _, ev := range c.events(t) {
		kinds = append(kinds, ev["event"].(string))
	}
	return kinds
}

func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	b := New("test", 80, clockwork.NewRealClock())
	t.Cleanup(b.Stop)
	return b
}

// admit is a test helper for admitting a session with the given profile.
func admit(t *testing.T, b *Broker, name, gender, lookingFor string) (uuid.UUID, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	id, err := b.Admit(Profile{Name: name, Gender: gender, LookingFor: lookingFor}, conn)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)
	return id, conn
}

func chatPayload(roomID, message string) []byte {
	return []byte(fmt.Sprintf(`{"event":"chat","roomId":%q,"message":%q}`, roomID, message))
}

func TestAdmit_MutualPreferencePairsImmediately(t *testing.T) {
	b := newTestBroker(t)

	_, connA := admit(t, b, "ana", "F", "M")
	_, connB := admit(t, b, "bob", "M", "F")

	stats := b.Stats()
	assert.Equal(t, 0, stats.Waiting)
	assert.Equal(t, 1, stats.Rooms)

	evsA := connA.events(t)
	require.Len(t, evsA, 1)
	assert.Equal(t, "matched", evsA[0]["event"])
	partnerA := evsA[0]["partner"].(map[string]any)
	assert.Equal(t, "bob", partnerA["name"])
	assert.Equal(t, "M", partnerA["gender"])

	evsB := connB.events(t)
	require.Len(t, evsB, 1)
	assert.Equal(t, "matched", evsB[0]["event"])
	partnerB := evsB[0]["partner"].(map[string]any)
	assert.Equal(t, "ana", partnerB["name"])
	assert.Equal(t, "F", partnerB["gender"])

	// Both members share one room id.
	assert.Equal(t, evsA[0]["roomId"], evsB[0]["roomId"])
}

func TestAdmit_NoMatchStaysWaiting(t *testing.T) {
	b := newTestBroker(t)

	admit(t, b, "ana", "F", "M")
	admit(t, b, "eva", "F", "M")

	stats := b.Stats()
	assert.Equal(t, 2, stats.Waiting)
	assert.Equal(t, 0, stats.Rooms)
}

func TestChat_RelayedWithSenderBlanked(t *testing.T) {
	b := newTestBroker(t)

	idA, connA := admit(t, b, "ana", "F", "M")
	_, connB := admit(t, b, "bob", "M", "F")

	roomID := connA.events(t)[0]["roomId"].(string)

	b.HandleMessage(idA, chatPayload(roomID, "hi"))
	b.Stats() // barrier

	evsB := connB.events(t)
	require.Len(t, evsB, 2)
	assert.Equal(t, "chat", evsB[1]["event"])
	assert.Equal(t, "", evsB[1]["from"])
	assert.Equal(t, "hi", evsB[1]["message"])

	// The sender receives nothing back.
	assert.Len(t, connA.events(t), 1)
}

func TestChat_WrongRoomDropped(t *testing.T) {
	b := newTestBroker(t)

	idA, connA := admit(t, b, "ana", "F", "M")
	_, connB := admit(t, b, "bob", "M", "F")
	require.NotEmpty(t, connA.events(t))

	b.HandleMessage(idA, chatPayload(uuid.NewString(), "sneaky"))
	b.Stats()

	assert.Len(t, connB.events(t), 1) // only the matched event
}

func TestChat_WhileWaitingDropped(t *testing.T) {
	b := newTestBroker(t)

	idA, connA := admit(t, b, "ana", "F", "M")

	b.HandleMessage(idA, chatPayload(uuid.NewString(), "anyone?"))
	b.Stats()

	assert.Empty(t, connA.events(t))
	assert.Equal(t, 1, b.Stats().Waiting)
}

func TestHandleMessage_MalformedAndUnknownIgnored(t *testing.T) {
	b := newTestBroker(t)

	idA, _ := admit(t, b, "ana", "F", "M")
	_, connB := admit(t, b, "bob", "M", "F")

	b.HandleMessage(idA, []byte(`not json at all`))
	b.HandleMessage(idA, []byte(`{"event":"wave"}`))
	b.HandleMessage(uuid.New(), chatPayload(uuid.NewString(), "ghost"))
	stats := b.Stats()

	assert.Len(t, connB.events(t), 1)
	assert.Equal(t, 1, stats.Rooms)
}

func TestDisconnect_PairedNotifiesPartnerAndRemovesRoom(t *testing.T) {
	b := newTestBroker(t)

	idA, connA := admit(t, b, "ana", "F", "M")
	_, connB := admit(t, b, "bob", "M", "F")
	require.NotEmpty(t, connA.events(t))

	b.HandleDisconnect(idA, 1000, "bye")
	stats := b.Stats()

	kinds := connB.eventKinds(t)
	require.Len(t, kinds, 2)
	assert.Equal(t, "partner_left", kinds[1])

	// Room is gone and the partner is NOT returned to the pool.
	assert.Equal(t, 0, stats.Rooms)
	assert.Equal(t, 0, stats.Waiting)
}

func TestDisconnect_WaitingIsSilentlyRemoved(t *testing.T) {
	b := newTestBroker(t)

	idA, _ := admit(t, b, "ana", "F", "M")
	_, connC := admit(t, b, "cleo", "F", "M")

	b.HandleDisconnect(idA, 1001, "going away")
	stats := b.Stats()

	assert.Equal(t, 1, stats.Waiting)
	assert.Equal(t, 0, stats.Rooms)
	assert.Empty(t, connC.events(t))
}

func TestDisconnect_UnknownSessionNoOp(t *testing.T) {
	b := newTestBroker(t)

	admit(t, b, "ana", "F", "M")
	b.HandleDisconnect(uuid.New(), 1000, "")

	assert.Equal(t, 1, b.Stats().Waiting)
}

func TestDisconnect_SecondDisconnectOfPartnerIsNoOp(t *testing.T) {
	b := newTestBroker(t)

	idA, connA := admit(t, b, "ana", "F", "M")
	idB, _ := admit(t, b, "bob", "M", "F")
	require.NotEmpty(t, connA.events(t))

	b.HandleDisconnect(idA, 1000, "")
	b.HandleDisconnect(idB, 1000, "")
	stats := b.Stats()

	assert.Equal(t, 0, stats.Waiting)
	assert.Equal(t, 0, stats.Rooms)
}

func TestReport_TearsDownPairingWithDistinctCloseCodes(t *testing.T) {
	b := newTestBroker(t)

	idA, connA := admit(t, b, "ana", "F", "M")
	_, connB := admit(t, b, "bob", "M", "F")
	require.NotEmpty(t, connA.events(t))

	b.HandleMessage(idA, []byte(`{"event":"report"}`))
	stats := b.Stats()

	// The reported party hears about it before the close.
	kindsB := connB.eventKinds(t)
	require.Len(t, kindsB, 2)
	assert.Equal(t, "partner_reported", kindsB[1])
	assert.False(t, connB.IsOpen())
	assert.Equal(t, 4001, connB.closeCode())

	// The reporter is closed with a different code and no extra event.
	assert.False(t, connA.IsOpen())
	assert.Equal(t, 4002, connA.closeCode())
	assert.Len(t, connA.events(t), 1)

	assert.Equal(t, 0, stats.Waiting)
	assert.Equal(t, 0, stats.Rooms)
}

func TestReport_WhileWaitingOnlyClosesReporter(t *testing.T) {
	b := newTestBroker(t)

	idA, connA := admit(t, b, "ana", "F", "M")
	_, connC := admit(t, b, "cleo", "F", "M")

	b.HandleMessage(idA, []byte(`{"event":"report"}`))
	b.Stats()

	assert.False(t, connA.IsOpen())
	assert.Equal(t, 4002, connA.closeCode())
	assert.True(t, connC.IsOpen())
	assert.Empty(t, connC.events(t))
}

func TestStop_ClosesAllConnections(t *testing.T) {
	b := New("stopper", 80, clockwork.NewRealClock())

	_, connA := admit(t, b, "ana", "F", "M")
	_, connB := admit(t, b, "bob", "M", "F")
	_, connC := admit(t, b, "cleo", "F", "M")

	b.Stop()

	assert.False(t, connA.IsOpen())
	assert.False(t, connB.IsOpen())
	assert.False(t, connC.IsOpen())
}

func TestAdmit_EmptyProfileAccepted(t *testing.T) {
	b := newTestBroker(t)

	conn := newFakeConn()
	id, err := b.Admit(Profile{}, conn)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, 1, b.Stats().Waiting)
}
