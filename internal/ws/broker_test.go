package ws

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/peerchat/chat-client/internal/stomp"
)

// fakeBroker is a minimal STOMP broker speaking over gobwas/ws. It records
// every non-heart-beat client frame and lets tests push MESSAGE frames.
type fakeBroker struct {
	t   *testing.T
	srv *httptest.Server

	rejectFirst int32 // answer this many CONNECTs with ERROR
	connects    atomic.Int32
	frames      chan *stomp.Frame

	mu    sync.Mutex
	conns []net.Conn
	last  net.Conn
	seq   int
}

func newFakeBroker(t *testing.T) *fakeBroker {
	t.Helper()
	b := &fakeBroker{t: t, frames: make(chan *stomp.Frame, 256)}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.close)
	return b
}

func (b *fakeBroker) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/ws/websocket"
}

func (b *fakeBroker) serve(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return
	}
	b.mu.Lock()
	b.conns = append(b.conns, conn)
	b.mu.Unlock()
	defer conn.Close()

	for {
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			return
		}
		if stomp.IsHeartbeat(data) {
			continue
		}
		f, err := stomp.Decode(data)
		if err != nil {
			b.t.Errorf("broker: bad client frame %q: %v", data, err)
			return
		}
		b.frames <- f

		if f.Command == stomp.CommandConnect {
			n := b.connects.Add(1)
			if n <= atomic.LoadInt32(&b.rejectFirst) {
				b.write(conn, stomp.New(stomp.CommandError, stomp.HeaderMessage, "bad credentials"))
				return
			}
			b.mu.Lock()
			b.last = conn
			b.mu.Unlock()
			b.write(conn, stomp.New(stomp.CommandConnected,
				stomp.HeaderVersion, "1.2",
				stomp.HeaderHeartBeat, "0,0",
			))
		}
	}
}

func (b *fakeBroker) write(conn net.Conn, f *stomp.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = wsutil.WriteServerText(conn, f.Encode())
}

// push sends a MESSAGE frame for subscription on the most recent connection.
func (b *fakeBroker) push(subscription, destination, body string) {
	b.mu.Lock()
	conn := b.last
	b.seq++
	id := strconv.Itoa(b.seq)
	b.mu.Unlock()
	if conn == nil {
		b.t.Fatal("broker: no connection to push on")
	}

	f := stomp.New(stomp.CommandMessage,
		stomp.HeaderDestination, destination,
		stomp.HeaderSubscription, subscription,
		stomp.HeaderMessageID, id,
	)
	f.Body = []byte(body)
	b.write(conn, f)
}

// drop closes every open connection from the broker side.
func (b *fakeBroker) drop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.conns {
		c.Close()
	}
	b.conns = nil
	b.last = nil
}

func (b *fakeBroker) close() {
	b.drop()
	b.srv.Close()
}

// expect waits for the next client frame with the given command, skipping
// any others.
func (b *fakeBroker) expect(command string) *stomp.Frame {
	b.t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case f := <-b.frames:
			if f.Command == command {
				return f
			}
		case <-timeout:
			b.t.Fatalf("broker: no %s frame received", command)
			return nil
		}
	}
}

// quiet collects client frames for d and returns them.
func (b *fakeBroker) quiet(d time.Duration) []*stomp.Frame {
	var out []*stomp.Frame
	timeout := time.After(d)
	for {
		select {
		case f := <-b.frames:
			out = append(out, f)
		case <-timeout:
			return out
		}
	}
}
