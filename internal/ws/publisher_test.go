package ws

import (
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerchat/chat-client/internal/chat"
	"github.com/peerchat/chat-client/internal/metrics"
	"github.com/peerchat/chat-client/internal/stomp"
)

type publishCall struct {
	destination string
	body        string
}

type fakeSink struct {
	mu    sync.Mutex
	calls []publishCall
	err   error
}

func (s *fakeSink) Publish(destination string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, publishCall{destination, string(body)})
	return nil
}

func TestPublisher_RejectsInvalidPayload(t *testing.T) {
	sink := &fakeSink{}
	p := NewPublisher(sink)

	err := p.Send("me", "", "hi")
	assert.ErrorIs(t, err, chat.ErrInvalidPayload)

	err = p.Send("me", "u1", "   ")
	assert.ErrorIs(t, err, chat.ErrInvalidPayload)

	assert.Empty(t, sink.calls)
}

func TestPublisher_Send(t *testing.T) {
	sink := &fakeSink{}
	p := NewPublisher(sink)

	require.NoError(t, p.Send("me", "42", "hello"))
	require.Len(t, sink.calls, 1)
	assert.Equal(t, "/app/chat.send", sink.calls[0].destination)
	assert.JSONEq(t, `{"senderId":"me","receiverId":"42","content":"hello"}`, sink.calls[0].body)
}

func TestPublisher_SendsLongMessage(t *testing.T) {
	sink := &fakeSink{}
	p := NewPublisher(sink)

	long := strings.Repeat("a", 2001)
	require.NoError(t, p.Send("me", "42", long))
	require.Len(t, sink.calls, 1)
	assert.Contains(t, sink.calls[0].body, long)
}

func TestPublisher_NotConnected(t *testing.T) {
	before := testutil.ToFloat64(metrics.SendFailures.WithLabelValues("not_connected"))
	p := NewPublisher(&fakeSink{err: chat.ErrNotConnected})

	err := p.Send("me", "42", "hello")
	assert.ErrorIs(t, err, chat.ErrNotConnected)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SendFailures.WithLabelValues("not_connected"))-before)
}

// ---------------------------------------------------------------------------
// Test: the dispatcher reads the handler per frame
// ---------------------------------------------------------------------------

func TestDispatcher_HandlerSwap(t *testing.T) {
	d := NewDispatcher(New(DefaultConfig()))
	frame := func(body string) *stomp.Frame {
		f := stomp.New(stomp.CommandMessage, stomp.HeaderSubscription, "sub-1")
		f.Body = []byte(body)
		return f
	}

	d.Dispatch(frame(`{"senderId":"1","content":"dropped"}`))

	var first, second []string
	d.SetHandler(func(m chat.Message) { first = append(first, m.Content) })
	d.Dispatch(frame(`{"senderId":"1","content":"a"}`))

	d.SetHandler(func(m chat.Message) { second = append(second, m.Content) })
	d.Dispatch(frame(`{"senderId":"1","content":"b"}`))

	assert.Equal(t, []string{"a"}, first)
	assert.Equal(t, []string{"b"}, second)
}

func TestDispatcher_DropsUndecodable(t *testing.T) {
	before := testutil.ToFloat64(metrics.InboundDropped.WithLabelValues("decode"))
	d := NewDispatcher(New(DefaultConfig()))
	called := false
	d.SetHandler(func(chat.Message) { called = true })

	f := stomp.New(stomp.CommandMessage)
	f.Body = []byte(`{not json`)
	d.Dispatch(f)

	assert.False(t, called)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.InboundDropped.WithLabelValues("decode"))-before)
}
