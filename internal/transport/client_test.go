package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VigLinat/studiohub/internal/hub"
)

func shortPongWait(d *Deps) { d.PongWait = 500 * time.Millisecond }

// readForever keeps control frames flowing until the connection fails.
func readForever(conn *ws.Conn) {
	conn.SetReadDeadline(time.Time{})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func TestKeepalive_AnsweredPingsKeepPeer(t *testing.T) {
	f := newFixture(t, shortPongWait)
	p := f.dial(t)

	var pings atomic.Int32
	p.conn.SetPingHandler(func(data string) error {
		pings.Add(1)
		return p.conn.WriteControl(ws.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	readForever(p.conn)

	require.Eventually(t, func() bool { return pings.Load() >= 3 }, 4*time.Second, 10*time.Millisecond)
	assert.True(t, f.hub.Registry().IsRegistered(p.id), "peer answering pings outlives pong wait")
}

func TestKeepalive_SilentPeerIsDropped(t *testing.T) {
	f := newFixture(t, shortPongWait)
	p := f.dial(t)

	p.conn.SetPingHandler(func(string) error { return nil })
	readForever(p.conn)

	require.Eventually(t, func() bool {
		return !f.hub.Registry().IsRegistered(p.id)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestKeepalive_Defaults(t *testing.T) {
	k := newKeepalive(0)
	assert.Equal(t, pongWait, k.pongWait)
	assert.Equal(t, pingPeriod, k.pingPeriod)

	k = newKeepalive(time.Second)
	assert.Equal(t, 900*time.Millisecond, k.pingPeriod)
}

func TestWrite_FlushesQueueBeforeClose(t *testing.T) {
	frames := []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&ws.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		outbox := hub.NewOutbox(len(frames))
		for _, f := range frames {
			outbox.Push([]byte(f))
		}
		outbox.Close()
		client := &Client{id: "c1", conn: conn, outbox: outbox, alive: newKeepalive(0)}
		client.Write()
	}))
	defer srv.Close()
	u := "ws" + strings.TrimPrefix(srv.URL, "http")

	// Ready and Done are both pending; run enough sessions to hit either order
	for i := 0; i < 20; i++ {
		conn, _, err := ws.DefaultDialer.Dial(u, nil)
		require.NoError(t, err)
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

		for _, want := range frames {
			_, data, err := conn.ReadMessage()
			require.NoError(t, err)
			assert.Equal(t, want, string(data))
		}
		_, _, err = conn.ReadMessage()
		assert.True(t, ws.IsCloseError(err, ws.CloseGoingAway), "got %v", err)
		conn.Close()
	}
}
