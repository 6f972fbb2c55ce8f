package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMarkers(t *testing.T) {
	t.Run("extracts all marker kinds", func(t *testing.T) {
		content := `Let me check.
[WEB_SEARCH:golang worker pools]
[WEB_FETCH:https://example.com/a]
[SOCIAL_POST:We shipped it!]`
		m := ParseMarkers(content)
		assert.Equal(t, []string{"golang worker pools"}, m.Searches)
		assert.Equal(t, []string{"https://example.com/a"}, m.Fetches)
		assert.Equal(t, []string{"We shipped it!"}, m.SocialPosts)
		assert.True(t, m.HasWebMarkers())
	})

	t.Run("fetch cap drops extras", func(t *testing.T) {
		content := `[WEB_FETCH:https://a.com][WEB_FETCH:https://b.com][WEB_FETCH:https://c.com][WEB_FETCH:https://d.com]`
		m := ParseMarkers(content)
		assert.Len(t, m.Fetches, MaxFetchesPerResponse)
		assert.NotContains(t, m.Fetches, "https://d.com")
	})

	t.Run("empty markers are skipped", func(t *testing.T) {
		m := ParseMarkers("[WEB_SEARCH:   ] plain text")
		assert.Empty(t, m.Searches)
		assert.False(t, m.HasWebMarkers())
	})

	t.Run("social-only content has no web markers", func(t *testing.T) {
		m := ParseMarkers("[SOCIAL_POST:hello]")
		assert.False(t, m.HasWebMarkers())
		assert.Len(t, m.SocialPosts, 1)
	})
}

func TestStripMarkers(t *testing.T) {
	content := `Intro.
[WEB_SEARCH:query] middle [WEB_FETCH:https://x.com]
[SOCIAL_POST:post] outro.`
	got := StripMarkers(content)
	assert.NotContains(t, got, "WEB_SEARCH")
	assert.NotContains(t, got, "WEB_FETCH")
	assert.NotContains(t, got, "SOCIAL_POST")
	assert.Contains(t, got, "Intro.")
	assert.Contains(t, got, "outro.")
}

func TestExtractURLs(t *testing.T) {
	text := "See https://a.com/page and https://b.com, also https://c.com and https://d.com."
	urls := ExtractURLs(text, 3)
	assert.Len(t, urls, 3)
	assert.Equal(t, "https://a.com/page", urls[0])

	assert.Empty(t, ExtractURLs("no links here", 3))
}
