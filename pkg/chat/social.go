package chat

import "context"

// SocialDrafts queues social posts by publishing them as drafts to a
// chat channel for manual posting. It satisfies the executor's social
// queue until a real social platform is connected.
type SocialDrafts struct {
	adapter Adapter
	channel string
}

// NewSocialDrafts creates a SocialDrafts queue.
func NewSocialDrafts(adapter Adapter, channel string) *SocialDrafts {
	return &SocialDrafts{adapter: adapter, channel: channel}
}

// Enqueue posts the draft.
func (s *SocialDrafts) Enqueue(ctx context.Context, text string) error {
	return s.adapter.PostToChannel(ctx, s.channel, "📣 Social post draft:\n"+text)
}
