package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/mintviewer/internal/models"
	"github.com/core-coin/mintviewer/pkg/logger"
)

const openPayload = `0{"sid":"s1","upgrades":[],"pingInterval":25000,"pingTimeout":20000,"maxPayload":1000000}`

type recorder struct {
	events chan models.Event
}

func newRecorder() *recorder {
	return &recorder{events: make(chan models.Event, 32)}
}

func (r *recorder) Dispatch(_ context.Context, e models.Event) {
	r.events <- e
}

func (r *recorder) next(t *testing.T) models.Event {
	t.Helper()
	select {
	case e := <-r.events:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("no event dispatched")
	}
	return models.Event{}
}

// fakeUpstream is a minimal Socket.IO server. script runs after the
// namespace handshake with the 1-based connection number.
type fakeUpstream struct {
	srv    *httptest.Server
	conns  atomic.Int32
	reject func(n int) bool
	script func(n int, conn *websocket.Conn)
}

func newFakeUpstream(t *testing.T, reject func(n int) bool, script func(n int, conn *websocket.Conn)) *fakeUpstream {
	t.Helper()
	u := &fakeUpstream{reject: reject, script: script}
	upgrader := websocket.Upgrader{}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(u.conns.Add(1))
		if u.reject != nil && u.reject(n) {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		if r.URL.Path != "/socket.io/" || r.URL.Query().Get("EIO") != "4" || r.URL.Query().Get("transport") != "websocket" {
			http.Error(w, "bad transport", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if err := conn.WriteMessage(websocket.TextMessage, []byte(openPayload)); err != nil {
			return
		}
		_, p, err := conn.ReadMessage()
		if err != nil || string(p) != "40" {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`40{"sid":"n1"}`)); err != nil {
			return
		}
		u.script(n, conn)
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func send(conn *websocket.Conn, packet string) {
	_ = conn.WriteMessage(websocket.TextMessage, []byte(packet))
}

// drain blocks until the client goes away.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

type delayLog struct {
	mu     sync.Mutex
	delays []time.Duration
	notify chan struct{}
}

func newDelayLog() *delayLog {
	return &delayLog{notify: make(chan struct{}, 64)}
}

func (d *delayLog) record(delay time.Duration, _ error) {
	d.mu.Lock()
	d.delays = append(d.delays, delay)
	d.mu.Unlock()
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

func (d *delayLog) waitFor(t *testing.T, n int) []time.Duration {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		d.mu.Lock()
		if len(d.delays) >= n {
			out := append([]time.Duration(nil), d.delays[:n]...)
			d.mu.Unlock()
			return out
		}
		d.mu.Unlock()
		select {
		case <-d.notify:
		case <-deadline:
			t.Fatalf("only %d reconnects scheduled, want %d", len(d.delays), n)
		}
	}
}

func newTestClient(t *testing.T, url string, handler models.EventHandler) *Client {
	t.Helper()
	c, err := NewClient(Options{
		URL:       url,
		BaseDelay: 5 * time.Millisecond,
		MaxDelay:  20 * time.Millisecond,
	}, handler, nil, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c
}

func TestBackoffSequence(t *testing.T) {
	b := NewBackoff(2*time.Second, 60*time.Second)

	var got []time.Duration
	for i := 0; i < 8; i++ {
		got = append(got, b.Next())
	}
	want := []time.Duration{2, 4, 8, 16, 32, 60, 60, 60}
	for i := range want {
		want[i] *= time.Second
	}
	assert.Equal(t, want, got)

	b.Reset()
	assert.Equal(t, 2*time.Second, b.Next())
	assert.Equal(t, 4*time.Second, b.Next())
}

func TestNewBackoffDefaults(t *testing.T) {
	b := NewBackoff(0, 0)
	assert.Equal(t, DefaultBaseDelay, b.Next())
	assert.Equal(t, DefaultBaseDelay, b.Next(), "max below base is raised to base")
}

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name string
		data string
		want models.Event
	}{
		{
			name: "object",
			data: `{"type":"newMint","slug":"abc123","owner":{"name":"Alice"},"gift_name":"Plush Pepe"}`,
			want: models.Event{Kind: models.EventNewMint, Slug: "abc123", OwnerName: "Alice", GiftName: "Plush Pepe", GiftNameNormalized: "plushpepe"},
		},
		{
			name: "array with payload at index 1",
			data: `["newMint",{"type":"newMint","slug":"s","gift_name":"Top Hat"},"extra"]`,
			want: models.Event{Kind: models.EventNewMint, Slug: "s", GiftName: "Top Hat", GiftNameNormalized: "tophat"},
		},
		{
			name: "missing optional fields",
			data: `{"type":"newMint","slug":"s"}`,
			want: models.Event{Kind: models.EventNewMint, Slug: "s"},
		},
		{
			name: "null owner",
			data: `{"type":"newMint","slug":"s","owner":null,"gift_name":null}`,
			want: models.Event{Kind: models.EventNewMint, Slug: "s"},
		},
		{
			name: "numeric slug",
			data: `{"type":"newMint","slug":12345}`,
			want: models.Event{Kind: models.EventNewMint, Slug: "12345"},
		},
		{name: "other type", data: `{"type":"newTransfer","slug":"s"}`, want: unrecognized},
		{name: "no type", data: `{"slug":"s"}`, want: unrecognized},
		{name: "short array", data: `[{"type":"newMint"}]`, want: unrecognized},
		{name: "array with scalar payload", data: `["a","b"]`, want: unrecognized},
		{name: "string", data: `"newMint"`, want: unrecognized},
		{name: "null", data: `null`, want: unrecognized},
		{name: "empty", data: ``, want: unrecognized},
		{name: "garbage", data: `{not json`, want: unrecognized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeFrame(json.RawMessage(tt.data)))
		})
	}
}

func TestParseEvent(t *testing.T) {
	f, ok := parseEvent([]byte(`["newMint",{"type":"newMint"}]`))
	require.True(t, ok)
	assert.Equal(t, "newMint", f.Name)
	assert.JSONEq(t, `{"type":"newMint"}`, string(f.Data))

	f, ok = parseEvent([]byte(`/gifts,12["evt",1]`))
	require.True(t, ok)
	assert.Equal(t, "evt", f.Name)
	assert.Equal(t, "1", string(f.Data))

	f, ok = parseEvent([]byte(`["ping"]`))
	require.True(t, ok)
	assert.Nil(t, f.Data)

	_, ok = parseEvent([]byte(`/gifts["evt"]`))
	assert.False(t, ok)
	_, ok = parseEvent([]byte(`[]`))
	assert.False(t, ok)
	_, ok = parseEvent([]byte(`[1,2]`))
	assert.False(t, ok)
}

func TestSocketURL(t *testing.T) {
	got, err := socketURL("https://gsocket.trump.tg")
	require.NoError(t, err)
	assert.Equal(t, "wss://gsocket.trump.tg/socket.io/?EIO=4&transport=websocket", got)

	got, err = socketURL("http://localhost:3000/custom/")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:3000/custom/?EIO=4&transport=websocket", got)

	_, err = socketURL("ftp://example.com")
	assert.Error(t, err)
	_, err = socketURL("https://")
	assert.Error(t, err)
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient(Options{URL: "gopher://x"}, newRecorder(), nil, logger.NewNop())
	assert.Error(t, err)
}

func TestClientDispatchesMintEventsInOrder(t *testing.T) {
	pong := make(chan string, 1)
	upstream := newFakeUpstream(t, nil, func(_ int, conn *websocket.Conn) {
		send(conn, `42["newMint",{"type":"newMint","slug":"a","owner":{"name":"Alice"},"gift_name":"Plush Pepe"}]`)
		send(conn, `42["message",["ignored",{"type":"newMint","slug":"b","gift_name":"Top Hat"}]]`)
		send(conn, `42["other",{"type":"transfer","slug":"x"}]`)
		send(conn, `42["noise"]`)
		send(conn, `6`)
		send(conn, `2`)
		if _, p, err := conn.ReadMessage(); err == nil {
			pong <- string(p)
		}
		send(conn, `42/gifts,7["newMint",{"type":"newMint","slug":"c"}]`)
		drain(conn)
	})

	rec := newRecorder()
	c := newTestClient(t, upstream.srv.URL, rec)
	require.NoError(t, c.Start(context.Background()))

	first := rec.next(t)
	assert.Equal(t, models.Event{Kind: models.EventNewMint, Slug: "a", OwnerName: "Alice", GiftName: "Plush Pepe", GiftNameNormalized: "plushpepe"}, first)
	assert.Equal(t, "b", rec.next(t).Slug)
	assert.Equal(t, "c", rec.next(t).Slug)

	select {
	case p := <-pong:
		assert.Equal(t, "3", p)
	case <-time.After(5 * time.Second):
		t.Fatal("ping not answered")
	}

	assert.Equal(t, StateConnected, c.State())
	c.Stop()
	assert.Equal(t, StateStopped, c.State())
	assert.Empty(t, rec.events, "non-mint frames must not be dispatched")
}

func TestClientReconnectsAfterDrop(t *testing.T) {
	upstream := newFakeUpstream(t, nil, func(n int, conn *websocket.Conn) {
		if n == 1 {
			send(conn, `42["newMint",{"type":"newMint","slug":"first"}]`)
			send(conn, `41`)
			return
		}
		send(conn, `42["newMint",{"type":"newMint","slug":"second"}]`)
		drain(conn)
	})

	rec := newRecorder()
	delays := newDelayLog()
	c := newTestClient(t, upstream.srv.URL, rec)
	c.onRetry = delays.record
	require.NoError(t, c.Start(context.Background()))

	assert.Equal(t, "first", rec.next(t).Slug)
	assert.Equal(t, "second", rec.next(t).Slug)
	assert.Equal(t, []time.Duration{5 * time.Millisecond}, delays.waitFor(t, 1))
}

func TestClientBacksOffWhileUnreachable(t *testing.T) {
	upstream := newFakeUpstream(t, func(int) bool { return true }, func(int, *websocket.Conn) {})

	delays := newDelayLog()
	c := newTestClient(t, upstream.srv.URL, newRecorder())
	c.onRetry = delays.record
	require.NoError(t, c.Start(context.Background()))

	got := delays.waitFor(t, 5)
	ms := time.Millisecond
	assert.Equal(t, []time.Duration{5 * ms, 10 * ms, 20 * ms, 20 * ms, 20 * ms}, got)

	c.Stop()
	assert.Equal(t, StateStopped, c.State())
}

func TestClientResetsBackoffAfterConnect(t *testing.T) {
	reject := func(n int) bool { return n <= 3 }
	upstream := newFakeUpstream(t, reject, func(n int, conn *websocket.Conn) {
		if n == 4 {
			// Drop right after the handshake.
			return
		}
		drain(conn)
	})

	delays := newDelayLog()
	c := newTestClient(t, upstream.srv.URL, newRecorder())
	c.onRetry = delays.record
	require.NoError(t, c.Start(context.Background()))

	ms := time.Millisecond
	assert.Equal(t, []time.Duration{5 * ms, 10 * ms, 20 * ms, 5 * ms}, delays.waitFor(t, 4))
}

func TestClientStopWhileConnected(t *testing.T) {
	connected := make(chan struct{})
	upstream := newFakeUpstream(t, nil, func(_ int, conn *websocket.Conn) {
		close(connected)
		drain(conn)
	})

	c := newTestClient(t, upstream.srv.URL, newRecorder())
	require.NoError(t, c.Start(context.Background()))

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("client never connected")
	}

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, StateStopped, c.State())
	c.Stop()
}

func TestClientStartTwice(t *testing.T) {
	upstream := newFakeUpstream(t, nil, func(_ int, conn *websocket.Conn) { drain(conn) })
	c := newTestClient(t, upstream.srv.URL, newRecorder())

	require.NoError(t, c.Start(context.Background()))
	assert.Error(t, c.Start(context.Background()))
}

type panicHandler struct {
	calls atomic.Int32
	done  chan struct{}
}

func (p *panicHandler) Dispatch(context.Context, models.Event) {
	if p.calls.Add(1) == 1 {
		panic("handler exploded")
	}
	close(p.done)
}

func TestClientSurvivesHandlerPanic(t *testing.T) {
	upstream := newFakeUpstream(t, nil, func(_ int, conn *websocket.Conn) {
		send(conn, `42["newMint",{"type":"newMint","slug":"a"}]`)
		send(conn, `42["newMint",{"type":"newMint","slug":"b"}]`)
		drain(conn)
	})

	h := &panicHandler{done: make(chan struct{})}
	c := newTestClient(t, upstream.srv.URL, h)
	require.NoError(t, c.Start(context.Background()))

	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		t.Fatal("second event not dispatched after panic")
	}
}
