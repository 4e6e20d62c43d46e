package stomp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeSend(t *testing.T) {
	f := New(CommandSend, HeaderDestination, "/app/chat.send", HeaderContentType, "application/json")
	f.Body = []byte(`{"content":"hi"}`)

	got := string(f.Encode())

	want := "SEND\ndestination:/app/chat.send\ncontent-type:application/json\ncontent-length:16\n\n{\"content\":\"hi\"}\x00"
	assert.Equal(t, want, got)
}

func TestEncodeConnectDoesNotEscape(t *testing.T) {
	f := New(CommandConnect, HeaderAuthorization, "Bearer a:b")
	assert.Equal(t, "CONNECT\nAuthorization:Bearer a:b\n\n\x00", string(f.Encode()))
}

func TestEncodeEscapesHeaders(t *testing.T) {
	f := New(CommandSubscribe, HeaderDestination, "a:b\nc\\d")
	assert.Equal(t, "SUBSCRIBE\ndestination:a\\cb\\nc\\\\d\n\n\x00", string(f.Encode()))
}

func TestDecodeRoundTrip(t *testing.T) {
	in := New(CommandMessage, HeaderDestination, "/topic/chat/7", HeaderSubscription, "sub-1", "weird", "x:y\\z")
	in.Body = []byte("body\x00with nul")

	out, err := Decode(in.Encode())
	require.NoError(t, err)
	assert.Equal(t, CommandMessage, out.Command)
	assert.Equal(t, "/topic/chat/7", out.Get(HeaderDestination))
	assert.Equal(t, "x:y\\z", out.Get("weird"))
	assert.Equal(t, in.Body, out.Body)
}

func TestDecodeWithoutContentLength(t *testing.T) {
	raw := "\n\nMESSAGE\r\ndestination:/topic/chat/1\r\nsubscription:s\r\nsubscription:other\r\n\r\n{\"a\":1}\x00\n"

	f, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, CommandMessage, f.Command)
	assert.Equal(t, "s", f.Get(HeaderSubscription))
	assert.Equal(t, `{"a":1}`, string(f.Body))
}

func TestDecodeErrors(t *testing.T) {
	for name, raw := range map[string]string{
		"empty":          "\n\n",
		"no terminator":  "MESSAGE\n\nbody",
		"bad header":     "MESSAGE\nnocolon\n\n\x00",
		"no blank line":  "MESSAGE\ndestination:x",
		"bad length":     "MESSAGE\ncontent-length:99\n\nabc\x00",
		"length not NUL": "MESSAGE\ncontent-length:1\n\nabc\x00",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestIsHeartbeat(t *testing.T) {
	assert.True(t, IsHeartbeat([]byte("\n")))
	assert.True(t, IsHeartbeat([]byte("\r\n\n")))
	assert.False(t, IsHeartbeat([]byte("CONNECTED\n\n\x00")))
}

func TestHeartBeatNegotiation(t *testing.T) {
	out, in, err := ParseHeartBeat("0,5000")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), out)
	assert.Equal(t, 5*time.Second, in)

	send, expect := Negotiate(10*time.Second, 10*time.Second, out, in)
	assert.Equal(t, 10*time.Second, send)
	assert.Equal(t, time.Duration(0), expect)

	assert.Equal(t, "10000,10000", HeartBeat(10*time.Second, 10*time.Second))

	_, _, err = ParseHeartBeat("abc")
	assert.ErrorIs(t, err, ErrMalformed)
	out, in, err = ParseHeartBeat("")
	require.NoError(t, err)
	assert.Zero(t, out+in)
}
