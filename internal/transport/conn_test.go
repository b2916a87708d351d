package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsPair upgrades a loopback connection and returns the server-side
// wrapped Conn together with the raw client socket.
func wsPair(t *testing.T) (*Conn, *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	connCh := make(chan *Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCh <- NewConn(ws, clockwork.NewRealClock())
	}))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case conn := <-connCh:
		t.Cleanup(func() { conn.Close(websocket.CloseNormalClosure, "") })
		return conn, client
	case <-time.After(2 * time.Second):
		t.Fatal("server side never upgraded")
		return nil, nil
	}
}

func TestConn_SendDeliversToPeer(t *testing.T) {
	conn, client := wsPair(t)

	require.NoError(t, conn.Send([]byte("hello")))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestConn_CloseSendsCodeAndReason(t *testing.T) {
	conn, client := wsPair(t)

	conn.Close(4001, "reported")

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected close error, got %v", err)
	assert.Equal(t, 4001, closeErr.Code)
	assert.Equal(t, "reported", closeErr.Text)
}

func TestConn_SendAfterCloseFails(t *testing.T) {
	conn, _ := wsPair(t)

	assert.True(t, conn.IsOpen())
	conn.Close(websocket.CloseNormalClosure, "")

	assert.False(t, conn.IsOpen())
	assert.ErrorIs(t, conn.Send([]byte("late")), ErrClosed)
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	conn, _ := wsPair(t)

	conn.Close(websocket.CloseNormalClosure, "")
	conn.Close(websocket.CloseGoingAway, "again") // must not panic or block
	assert.False(t, conn.IsOpen())
}

func TestConn_FullBufferDropsMessage(t *testing.T) {
	conn, client := wsPair(t)

	// The client never reads, so once the kernel socket buffers fill the
	// writer stalls mid-write and the send channel backs up. Enough large
	// payloads guarantee at least one drop.
	_ = client

	payload := make([]byte, 64*1024)
	dropped := false
	for i := 0; i < 1024; i++ {
		if err := conn.Send(payload); err != nil {
			assert.ErrorIs(t, err, ErrBufferFull)
			dropped = true
			break
		}
	}
	assert.True(t, dropped)
}
