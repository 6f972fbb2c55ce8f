// Package chat is the chat-platform boundary: an adapter interface the
// engine posts through, a Slack implementation, the founder command
// surface, and the announcement poller.
package chat

import "context"

// MaxMessageBytes is the boundary at which outbound messages split.
const MaxMessageBytes = 1900

// InboundMessage is one message received from the platform.
type InboundMessage struct {
	FromUserID string
	Channel    string
	Text       string
}

// Adapter is the platform interface the engine consumes. Tests use
// fakes; production uses the Slack implementation.
type Adapter interface {
	// PostToChannel posts text to a named channel, splitting on the
	// byte boundary when needed.
	PostToChannel(ctx context.Context, channelName, text string) error
}

// SplitMessage cuts text into chunks of at most MaxMessageBytes,
// preferring newline boundaries so formatted reports stay readable.
func SplitMessage(text string) []string {
	if len(text) <= MaxMessageBytes {
		return []string{text}
	}
	var chunks []string
	rest := text
	for len(rest) > MaxMessageBytes {
		cut := MaxMessageBytes
		if idx := lastNewlineBefore(rest, MaxMessageBytes); idx > 0 {
			cut = idx
		}
		chunks = append(chunks, rest[:cut])
		rest = rest[cut:]
		if len(rest) > 0 && rest[0] == '\n' {
			rest = rest[1:]
		}
	}
	if len(rest) > 0 {
		chunks = append(chunks, rest)
	}
	return chunks
}

func lastNewlineBefore(s string, limit int) int {
	for i := limit - 1; i > 0; i-- {
		if s[i] == '\n' {
			return i
		}
	}
	return -1
}
