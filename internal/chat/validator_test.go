package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateOutgoing(t *testing.T) {
	cases := []struct {
		name     string
		receiver string
		content  string
		wantErr  bool
		want     string
	}{
		{"ok", "u1", "hi", false, "hi"},
		{"trims", "u1", "  hello \n", false, "hello"},
		{"empty receiver", "", "hi", true, ""},
		{"blank content", "u1", "   ", true, ""},
		{"long text accepted", "u1", strings.Repeat("a", 5000), false, strings.Repeat("a", 5000)},
		{"many chars accepted", "u1", strings.Repeat("é", 2500), false, strings.Repeat("é", 2500)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateOutgoing(tc.receiver, tc.content)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidPayload)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPlaceholderAndDirection(t *testing.T) {
	assert.True(t, Conversation{ConversationID: PlaceholderPrefix + "42"}.IsPlaceholder())
	assert.False(t, Conversation{ConversationID: "65f0c1"}.IsPlaceholder())

	m := Message{SenderID: "7"}
	assert.False(t, m.IsMine("7"))
	assert.True(t, m.IsMine("8"))
}
