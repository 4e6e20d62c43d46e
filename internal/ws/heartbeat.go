package ws

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/peerchat/chat-client/internal/metrics"
	"github.com/peerchat/chat-client/internal/stomp"
)

// heartbeat writes a bare EOL every interval until ctx is done. A failed
// write closes conn so the read loop observes the drop.
func (c *Connection) heartbeat(ctx context.Context, conn net.Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := wsutil.WriteClientText(conn, []byte{'\n'})
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Warn().Err(err).Msg("heart-beat write failed")
				conn.Close()
				return
			}
		}
	}
}

// lockedWriter lets the websocket control handler answer pings and close
// frames without interleaving with frames written by other goroutines. Each
// control reply is produced by a single Write call.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// frameReader reads websocket text messages and decodes them as STOMP
// frames, skipping heart-beats.
type frameReader struct {
	rd      wsutil.Reader
	control wsutil.FrameHandlerFunc
}

func newFrameReader(src io.Reader, ctl io.Writer) *frameReader {
	control := wsutil.ControlFrameHandler(ctl, ws.StateClientSide)
	return &frameReader{
		rd: wsutil.Reader{
			Source:         src,
			State:          ws.StateClientSide,
			CheckUTF8:      true,
			OnIntermediate: control,
		},
		control: control,
	}
}

// next returns the next non-heart-beat frame. Transport errors are returned
// as is; undecodable frames yield an error wrapping stomp.ErrMalformed.
func (r *frameReader) next() (*stomp.Frame, error) {
	for {
		data, err := r.message()
		if err != nil {
			return nil, err
		}
		metrics.FramesTotal.WithLabelValues("in").Inc()
		if stomp.IsHeartbeat(data) {
			continue
		}
		return stomp.Decode(data)
	}
}

// message reads one complete text message, answering control frames on the
// way.
func (r *frameReader) message() ([]byte, error) {
	for {
		hdr, err := r.rd.NextFrame()
		if err != nil {
			return nil, err
		}
		if hdr.OpCode.IsControl() {
			if err := r.control(hdr, &r.rd); err != nil {
				return nil, err
			}
			continue
		}
		if hdr.OpCode&ws.OpText == 0 {
			if err := r.rd.Discard(); err != nil {
				return nil, err
			}
			continue
		}
		return io.ReadAll(&r.rd)
	}
}
