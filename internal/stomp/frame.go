// Package stomp implements the STOMP 1.2 frame format as carried over a
// WebSocket: one frame per text message, NUL-terminated, with bare EOLs used
// as heart-beats.
package stomp

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Client commands.
const (
	CommandConnect     = "CONNECT"
	CommandSend        = "SEND"
	CommandSubscribe   = "SUBSCRIBE"
	CommandUnsubscribe = "UNSUBSCRIBE"
	CommandDisconnect  = "DISCONNECT"
)

// Server commands.
const (
	CommandConnected = "CONNECTED"
	CommandMessage   = "MESSAGE"
	CommandReceipt   = "RECEIPT"
	CommandError     = "ERROR"
)

// Header names used by the client.
const (
	HeaderAcceptVersion = "accept-version"
	HeaderHost          = "host"
	HeaderHeartBeat     = "heart-beat"
	HeaderAuthorization = "Authorization"
	HeaderDestination   = "destination"
	HeaderID            = "id"
	HeaderAck           = "ack"
	HeaderSubscription  = "subscription"
	HeaderMessageID     = "message-id"
	HeaderContentType   = "content-type"
	HeaderContentLength = "content-length"
	HeaderReceipt       = "receipt"
	HeaderReceiptID     = "receipt-id"
	HeaderMessage       = "message"
	HeaderVersion       = "version"
)

// ErrMalformed is returned for frames that cannot be parsed.
var ErrMalformed = errors.New("stomp: malformed frame")

// Header is one name/value pair. Order is preserved on the wire.
type Header struct {
	Name  string
	Value string
}

// Frame is a decoded STOMP frame.
type Frame struct {
	Command string
	Headers []Header
	Body    []byte
}

// New builds a frame from alternating name/value pairs.
func New(command string, kv ...string) *Frame {
	f := &Frame{Command: command}
	for i := 0; i+1 < len(kv); i += 2 {
		f.Headers = append(f.Headers, Header{Name: kv[i], Value: kv[i+1]})
	}
	return f
}

// Get returns the first value for name. Repeated headers are legal and the
// first occurrence wins.
func (f *Frame) Get(name string) string {
	for _, h := range f.Headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}

// Set replaces every value for name with a single value.
func (f *Frame) Set(name, value string) {
	out := f.Headers[:0]
	for _, h := range f.Headers {
		if h.Name != name {
			out = append(out, h)
		}
	}
	f.Headers = append(out, Header{Name: name, Value: value})
}

// escapes reports whether header values of this command are escaped.
// CONNECT and CONNECTED frames are exempt for 1.0 compatibility.
func escapes(command string) bool {
	return command != CommandConnect && command != CommandConnected
}

var (
	escaper   = strings.NewReplacer("\\", `\\`, "\r", `\r`, "\n", `\n`, ":", `\c`)
	unescaper = strings.NewReplacer(`\\`, "\\", `\r`, "\r", `\n`, "\n", `\c`, ":")
)

// Encode serializes the frame, adding content-length when there is a body.
func (f *Frame) Encode() []byte {
	var b bytes.Buffer
	b.WriteString(f.Command)
	b.WriteByte('\n')

	esc := escapes(f.Command)
	hasLength := false
	for _, h := range f.Headers {
		if h.Name == HeaderContentLength {
			hasLength = true
		}
		if esc {
			b.WriteString(escaper.Replace(h.Name))
			b.WriteByte(':')
			b.WriteString(escaper.Replace(h.Value))
		} else {
			b.WriteString(h.Name)
			b.WriteByte(':')
			b.WriteString(h.Value)
		}
		b.WriteByte('\n')
	}
	if len(f.Body) > 0 && !hasLength {
		b.WriteString(HeaderContentLength)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(len(f.Body)))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.Write(f.Body)
	b.WriteByte(0)
	return b.Bytes()
}

// IsHeartbeat reports whether data consists only of EOLs.
func IsHeartbeat(data []byte) bool {
	return len(bytes.Trim(data, "\r\n")) == 0
}

// Decode parses one frame. Leading EOLs (heart-beats sent ahead of a frame)
// are skipped.
func Decode(data []byte) (*Frame, error) {
	data = bytes.TrimLeft(data, "\r\n")
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformed)
	}

	line, rest, ok := cutLine(data)
	if !ok || line == "" {
		return nil, fmt.Errorf("%w: missing command", ErrMalformed)
	}
	f := &Frame{Command: line}
	esc := escapes(f.Command)

	for {
		line, rest, ok = cutLine(rest)
		if !ok {
			return nil, fmt.Errorf("%w: unterminated headers", ErrMalformed)
		}
		if line == "" {
			break
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("%w: header %q", ErrMalformed, line)
		}
		if esc {
			name, value = unescaper.Replace(name), unescaper.Replace(value)
		}
		f.Headers = append(f.Headers, Header{Name: name, Value: value})
	}

	if v := f.Get(HeaderContentLength); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n >= len(rest) || rest[n] != 0 {
			return nil, fmt.Errorf("%w: bad content-length %q", ErrMalformed, v)
		}
		f.Body = rest[:n:n]
		return f, nil
	}

	end := bytes.IndexByte(rest, 0)
	if end < 0 {
		return nil, fmt.Errorf("%w: missing NUL terminator", ErrMalformed)
	}
	f.Body = rest[:end:end]
	return f, nil
}

// cutLine splits at the first LF, dropping an optional preceding CR.
func cutLine(data []byte) (string, []byte, bool) {
	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		return "", nil, false
	}
	line := data[:i]
	line = bytes.TrimSuffix(line, []byte{'\r'})
	return string(line), data[i+1:], true
}

// HeartBeat formats a heart-beat header value.
func HeartBeat(outgoing, incoming time.Duration) string {
	return strconv.FormatInt(outgoing.Milliseconds(), 10) + "," + strconv.FormatInt(incoming.Milliseconds(), 10)
}

// ParseHeartBeat parses a heart-beat header value. An empty value means 0,0.
func ParseHeartBeat(v string) (outgoing, incoming time.Duration, err error) {
	if v == "" {
		return 0, 0, nil
	}
	a, b, ok := strings.Cut(v, ",")
	if !ok {
		return 0, 0, fmt.Errorf("%w: heart-beat %q", ErrMalformed, v)
	}
	x, err := strconv.ParseInt(strings.TrimSpace(a), 10, 64)
	if err != nil || x < 0 {
		return 0, 0, fmt.Errorf("%w: heart-beat %q", ErrMalformed, v)
	}
	y, err := strconv.ParseInt(strings.TrimSpace(b), 10, 64)
	if err != nil || y < 0 {
		return 0, 0, fmt.Errorf("%w: heart-beat %q", ErrMalformed, v)
	}
	return time.Duration(x) * time.Millisecond, time.Duration(y) * time.Millisecond, nil
}

// Negotiate combines the client's heart-beat offer with the server's
// CONNECTED reply. A zero result disables that direction.
func Negotiate(clientOut, clientIn, serverOut, serverIn time.Duration) (send, expect time.Duration) {
	if clientOut > 0 && serverIn > 0 {
		send = max(clientOut, serverIn)
	}
	if clientIn > 0 && serverOut > 0 {
		expect = max(clientIn, serverOut)
	}
	return send, expect
}
