package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zerohq/agentcorp/pkg/models"
)

func TestBundleRender(t *testing.T) {
	t.Run("empty bundle renders placeholders", func(t *testing.T) {
		out := (&Bundle{}).Render()
		assert.Contains(t, out, "## Recent Experiences\n(none yet)")
		assert.Contains(t, out, "## Relevant Past Work\n(none)")
		assert.Contains(t, out, "## Lessons Learned\n(none)")
	})

	t.Run("summary preferred over content", func(t *testing.T) {
		b := &Bundle{Recent: []*models.AgentMemory{{
			MemoryType: models.MemoryTypeTask,
			Summary:    "Completed task: market scan",
			Content:    "very long raw content",
			CreatedAt:  time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		}}}
		out := b.Render()
		assert.Contains(t, out, "- (task, 2026-03-14) Completed task: market scan")
		assert.NotContains(t, out, "very long raw content")
	})

	t.Run("content used when summary missing", func(t *testing.T) {
		b := &Bundle{TopicMatched: []*models.AgentMemory{{
			MemoryType: models.MemoryTypeLesson,
			Content:    "raw lesson text",
			CreatedAt:  time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		}}}
		assert.Contains(t, b.Render(), "raw lesson text")
	})

	t.Run("lessons carry importance", func(t *testing.T) {
		b := &Bundle{Lessons: []*models.Lesson{{Lesson: "cite your sources", Importance: 8}}}
		assert.Contains(t, b.Render(), "- [8/10] cite your sources")
	})
}
