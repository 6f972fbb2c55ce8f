// Package docstore integrates the external document stores: deliverable
// publishing, nightly table backups, and source-controlled state
// snapshots. External failures are logged and never block a mission —
// the deliverable of record stays in the datastore.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/zerohq/agentcorp/pkg/models"
	"github.com/zerohq/agentcorp/pkg/store"
)

// Deliverable is an approved step result ready to publish.
type Deliverable struct {
	Title     string
	Content   string
	TeamID    string
	AgentName string
	MissionID string
	StepID    string
}

// Ref identifies a published document.
type Ref struct {
	ID  string
	URL string
}

// Publisher publishes deliverables to an external document store.
type Publisher interface {
	PublishDeliverable(ctx context.Context, d Deliverable) (*Ref, error)
}

// Uploader writes named blobs under a path; the backup and state-push
// jobs target it. Implementations cover the file-storage and
// code-hosting platforms.
type Uploader interface {
	Upload(ctx context.Context, path string, data []byte) error
}

// DirPublisher publishes into a local directory tree; it doubles as the
// development and test implementation.
type DirPublisher struct {
	root   string
	logger *slog.Logger
}

// NewDirPublisher creates a DirPublisher rooted at dir.
func NewDirPublisher(dir string, logger *slog.Logger) *DirPublisher {
	return &DirPublisher{root: dir, logger: logger.With("component", "docstore")}
}

// PublishDeliverable writes the deliverable as a markdown file keyed by
// step id.
func (p *DirPublisher) PublishDeliverable(ctx context.Context, d Deliverable) (*Ref, error) {
	dir := filepath.Join(p.root, "deliverables", d.TeamID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating deliverable dir: %w", err)
	}
	path := filepath.Join(dir, d.StepID+".md")
	body := fmt.Sprintf("# %s\n\nAgent: %s\nMission: %s\n\n%s\n", d.Title, d.AgentName, d.MissionID, d.Content)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return nil, fmt.Errorf("writing deliverable: %w", err)
	}
	return &Ref{ID: d.StepID, URL: "file://" + path}, nil
}

// Upload implements Uploader against the local tree.
func (p *DirPublisher) Upload(ctx context.Context, path string, data []byte) error {
	full := filepath.Join(p.root, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating upload dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("writing upload: %w", err)
	}
	return nil
}

// backupLookback bounds the backup window for large tables.
const backupLookback = 7 * 24 * time.Hour

// Backup snapshots the core tables to a day-stamped folder.
func Backup(ctx context.Context, s *store.Store, up Uploader, now time.Time) error {
	doc, err := s.Snapshot(ctx, backupLookback)
	if err != nil {
		return fmt.Errorf("building backup snapshot: %w", err)
	}
	path := filepath.Join("backups", now.Format("2006-01-02"), "tables.json")
	if err := up.Upload(ctx, path, doc); err != nil {
		return fmt.Errorf("uploading backup: %w", err)
	}
	return nil
}

// PushState writes the source-controlled JSON snapshots under state/.
func PushState(ctx context.Context, s *store.Store, up Uploader) error {
	agents, err := s.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("loading agents for state push: %w", err)
	}
	teams, err := s.ListTeams(ctx)
	if err != nil {
		return fmt.Errorf("loading teams for state push: %w", err)
	}
	skills, err := s.AllSkills(ctx)
	if err != nil {
		return fmt.Errorf("loading skills for state push: %w", err)
	}

	personas := make(map[string]any, len(agents))
	for _, a := range agents {
		p, err := s.LatestPersona(ctx, a.ID)
		if err != nil {
			continue // agents without personas are skipped
		}
		personas[a.ID] = p
	}

	policies := make(map[string]any)
	for _, pt := range []string{"spending_limit", "model_routing", "operating_hours", "daily_summary", "cost_alert"} {
		// missing rows are fine; state reflects only what exists
		if p, err := s.ActivePolicy(ctx, models.PolicyType(pt)); err == nil {
			policies[pt] = p
		}
	}

	files := map[string]any{
		"state/agents.json":   agents,
		"state/teams.json":    teams,
		"state/skills.json":   skills,
		"state/personas.json": personas,
		"state/policy.json":   policies,
	}
	for path, payload := range files {
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding %s: %w", path, err)
		}
		if err := up.Upload(ctx, path, data); err != nil {
			return fmt.Errorf("uploading %s: %w", path, err)
		}
	}
	return nil
}
