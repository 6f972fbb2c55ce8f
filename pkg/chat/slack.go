package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goslack "github.com/slack-go/slack"
)

// SlackAdapter implements Adapter over the slack-go SDK.
type SlackAdapter struct {
	api    *goslack.Client
	logger *slog.Logger

	mu       sync.Mutex
	channels map[string]string // name -> id, filled lazily
}

// NewSlackAdapter creates a SlackAdapter. Returns nil when the token is
// empty so callers can treat chat as optional.
func NewSlackAdapter(token string, logger *slog.Logger) *SlackAdapter {
	if token == "" {
		return nil
	}
	return &SlackAdapter{
		api:      goslack.New(token),
		logger:   logger.With("component", "slack"),
		channels: make(map[string]string),
	}
}

// NewSlackAdapterWithAPIURL targets a custom API URL; used with a mock
// server in tests.
func NewSlackAdapterWithAPIURL(token, apiURL string, logger *slog.Logger) *SlackAdapter {
	return &SlackAdapter{
		api:      goslack.New(token, goslack.OptionAPIURL(apiURL)),
		logger:   logger.With("component", "slack"),
		channels: make(map[string]string),
	}
}

// PostToChannel posts text, splitting on the byte boundary. Nil-safe:
// a nil adapter is a no-op.
func (a *SlackAdapter) PostToChannel(ctx context.Context, channelName, text string) error {
	if a == nil {
		return nil
	}
	channelID, err := a.resolveChannel(ctx, channelName)
	if err != nil {
		return err
	}
	for _, chunk := range SplitMessage(text) {
		postCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, _, err := a.api.PostMessageContext(postCtx, channelID, goslack.MsgOptionText(chunk, false))
		cancel()
		if err != nil {
			return fmt.Errorf("chat.postMessage to %s failed: %w", channelName, err)
		}
	}
	return nil
}

// History returns messages in a channel newer than the oldest timestamp,
// oldest first, along with the newest timestamp seen. Bot messages are
// skipped.
func (a *SlackAdapter) History(ctx context.Context, channelName, oldest string) ([]InboundMessage, string, error) {
	channelID, err := a.resolveChannel(ctx, channelName)
	if err != nil {
		return nil, oldest, err
	}
	resp, err := a.api.GetConversationHistoryContext(ctx, &goslack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Oldest:    oldest,
		Limit:     50,
	})
	if err != nil {
		return nil, oldest, fmt.Errorf("conversations.history failed: %w", err)
	}

	newest := oldest
	var out []InboundMessage
	// The API returns newest first; walk backwards for arrival order.
	for i := len(resp.Messages) - 1; i >= 0; i-- {
		m := resp.Messages[i]
		if m.Timestamp > newest {
			newest = m.Timestamp
		}
		if m.BotID != "" || m.SubType != "" {
			continue
		}
		out = append(out, InboundMessage{
			FromUserID: m.User,
			Channel:    channelName,
			Text:       m.Text,
		})
	}
	return out, newest, nil
}

// resolveChannel maps a channel name to its id, caching the conversation
// list on first use.
func (a *SlackAdapter) resolveChannel(ctx context.Context, name string) (string, error) {
	a.mu.Lock()
	if id, ok := a.channels[name]; ok {
		a.mu.Unlock()
		return id, nil
	}
	a.mu.Unlock()

	cursor := ""
	for {
		channels, next, err := a.api.GetConversationsContext(ctx, &goslack.GetConversationsParameters{
			Cursor:          cursor,
			Limit:           200,
			ExcludeArchived: true,
		})
		if err != nil {
			return "", fmt.Errorf("conversations.list failed: %w", err)
		}
		a.mu.Lock()
		for _, ch := range channels {
			a.channels[ch.Name] = ch.ID
		}
		id, ok := a.channels[name]
		a.mu.Unlock()
		if ok {
			return id, nil
		}
		if next == "" {
			return "", fmt.Errorf("channel %q not found", name)
		}
		cursor = next
	}
}
