package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMessage(t *testing.T) {
	t.Run("short message is one chunk", func(t *testing.T) {
		chunks := SplitMessage("hello")
		assert.Equal(t, []string{"hello"}, chunks)
	})

	t.Run("exact boundary is one chunk", func(t *testing.T) {
		msg := strings.Repeat("a", MaxMessageBytes)
		chunks := SplitMessage(msg)
		assert.Len(t, chunks, 1)
	})

	t.Run("one byte over splits in two", func(t *testing.T) {
		msg := strings.Repeat("a", MaxMessageBytes+1)
		chunks := SplitMessage(msg)
		require.Len(t, chunks, 2)
		assert.Len(t, chunks[0], MaxMessageBytes)
		assert.Len(t, chunks[1], 1)
	})

	t.Run("prefers newline boundaries", func(t *testing.T) {
		line := strings.Repeat("x", 1000)
		msg := line + "\n" + line + "\n" + line
		chunks := SplitMessage(msg)
		require.Greater(t, len(chunks), 1)
		for _, c := range chunks {
			assert.LessOrEqual(t, len(c), MaxMessageBytes)
		}
		// Chunks rejoin to the original content modulo the consumed newlines.
		assert.Equal(t, strings.ReplaceAll(msg, "\n", ""), strings.ReplaceAll(strings.Join(chunks, ""), "\n", ""))
	})

	t.Run("no chunk ever exceeds the cap", func(t *testing.T) {
		msg := strings.Repeat("word ", 2000)
		for _, c := range SplitMessage(msg) {
			assert.LessOrEqual(t, len(c), MaxMessageBytes)
		}
	})
}
