package chat

import (
	"fmt"
	"strings"
)

// ValidateOutgoing checks a message before it is sent and returns the trimmed
// content. A missing receiver or blank content wraps ErrInvalidPayload; there
// is no length limit on the client.
func ValidateOutgoing(receiverID, content string) (string, error) {
	if strings.TrimSpace(receiverID) == "" {
		return "", fmt.Errorf("%w: receiver is empty", ErrInvalidPayload)
	}
	text := strings.TrimSpace(content)
	if len(text) == 0 {
		return "", fmt.Errorf("%w: message text is empty", ErrInvalidPayload)
	}
	return text, nil
}
