// Package persona manages versioned agent personas: generation via one
// LLM call parsed by delimiters, compiled fallbacks so an agent is never
// left unserviceable, and the rejection-driven upskilling loop.
package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zerohq/agentcorp/pkg/events"
	"github.com/zerohq/agentcorp/pkg/llm"
	"github.com/zerohq/agentcorp/pkg/models"
	"github.com/zerohq/agentcorp/pkg/store"
)

// UpskillRejectionCount is the rejection count that triggers exactly one
// persona upgrade per chronic failure.
const UpskillRejectionCount = 5

// Section delimiters the generation prompt asks for.
const (
	delimIdentity    = "===IDENTITY==="
	delimPersonality = "===PERSONALITY==="
	delimSkills      = "===SKILLS==="
	delimBackground  = "===BACKGROUND==="
)

// Service generates and upgrades personas.
type Service struct {
	store   *store.Store
	router  *llm.Router
	emitter *events.Emitter
	logger  *slog.Logger
}

// NewService creates a persona Service.
func NewService(s *store.Store, router *llm.Router, emitter *events.Emitter, logger *slog.Logger) *Service {
	return &Service{store: s, router: router, emitter: emitter, logger: logger.With("component", "persona")}
}

const generationPrompt = `You are creating the working persona for a new AI agent.

Agent name: %s
Role: %s

Produce exactly four sections, each introduced by its delimiter line:
===IDENTITY===
One or two sentences: who this agent is.
===PERSONALITY===
Three or four traits that shape how they work and communicate.
===SKILLS===
The concrete capabilities this role demands.
===BACKGROUND===
A short invented professional history that explains the skills.

Write in second person ("You are..."). No preamble, no closing remarks.`

// Generate creates and saves the first persona version for an agent.
// Any missing section falls back to a compiled default; total LLM
// failure falls back to a generic persona.
func (s *Service) Generate(ctx context.Context, agent *models.Agent) (*models.Persona, error) {
	var sections map[string]string
	resp, err := s.router.CallLLM(ctx,
		"You write concise, specific working personas for AI agents.",
		fmt.Sprintf(generationPrompt, agent.DisplayName, agent.Role),
		models.TierT1, &agent.ID, nil)
	if err != nil {
		s.logger.Warn("persona generation call failed, using generic persona",
			"agent_id", agent.ID, "error", err)
		sections = map[string]string{}
	} else {
		sections = parseSections(resp.Content)
	}

	p := s.buildPersona(agent, sections)
	saved, err := s.store.SavePersona(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("saving persona: %w", err)
	}
	return saved, nil
}

// parseSections splits a generation response on the four delimiters.
func parseSections(content string) map[string]string {
	out := make(map[string]string, 4)
	delims := []string{delimIdentity, delimPersonality, delimSkills, delimBackground}
	for i, delim := range delims {
		start := strings.Index(content, delim)
		if start < 0 {
			continue
		}
		start += len(delim)
		end := len(content)
		for _, other := range delims[i+1:] {
			if idx := strings.Index(content[start:], other); idx >= 0 && start+idx < end {
				end = start + idx
			}
		}
		if text := strings.TrimSpace(content[start:end]); text != "" {
			out[delim] = text
		}
	}
	return out
}

// buildPersona fills missing sections with role-derived defaults and
// assembles the system prompt.
func (s *Service) buildPersona(agent *models.Agent, sections map[string]string) *models.Persona {
	identity := sections[delimIdentity]
	if identity == "" {
		identity = fmt.Sprintf("You are %s, a %s.", agent.DisplayName, agent.Role)
	}
	personality := sections[delimPersonality]
	if personality == "" {
		personality = "You are direct, thorough, and pragmatic. You prefer concrete deliverables over abstract discussion."
	}
	skillsText := sections[delimSkills]
	if skillsText == "" {
		skillsText = fmt.Sprintf("You have strong practical skills in everything a %s is expected to do.", agent.Role)
	}
	background := sections[delimBackground]
	if background == "" {
		background = fmt.Sprintf("You have years of hands-on experience as a %s across several companies.", agent.Role)
	}

	systemPrompt := strings.Join([]string{
		identity,
		"## Personality\n" + personality,
		"## Skills\n" + skillsText,
		"## Background\n" + background,
	}, "\n\n")

	return &models.Persona{
		AgentID:      agent.ID,
		Identity:     identity,
		Personality:  personality,
		Skills:       skillsText,
		Background:   background,
		SystemPrompt: systemPrompt,
	}
}

const upskillPrompt = `An agent's work on a task has been rejected %d times. Here is the
concatenated reviewer feedback:

%s

Identify the single most important skill gap, and write an expertise
addition that would close it. Respond with JSON only:
{"skillGap": "...", "expertiseAddition": "..."}`

type upskillAnalysis struct {
	SkillGap          string `json:"skillGap"`
	ExpertiseAddition string `json:"expertiseAddition"`
}

// MaybeUpskill checks the step's rejection count and, exactly when it
// reaches the trigger, runs the analysis call, appends a Learned
// Expertise block as a new persona version, emits an event, and writes a
// high-importance memory. Returns true when an upgrade happened.
func (s *Service) MaybeUpskill(ctx context.Context, agent *models.Agent, stepID string) (bool, error) {
	count, err := s.store.CountRejections(ctx, stepID)
	if err != nil {
		return false, fmt.Errorf("counting rejections: %w", err)
	}
	if count != UpskillRejectionCount {
		return false, nil
	}

	feedbacks, err := s.store.RejectionFeedback(ctx, stepID)
	if err != nil {
		return false, fmt.Errorf("loading rejection feedback: %w", err)
	}

	analysis := upskillAnalysis{
		SkillGap:          "meeting reviewer expectations",
		ExpertiseAddition: "You now double-check deliverables against the reviewer's feedback before submitting.",
	}
	resp, err := s.router.CallLLM(ctx,
		"You analyze repeated work rejections and identify skill gaps. Respond with JSON only.",
		fmt.Sprintf(upskillPrompt, count, strings.Join(feedbacks, "\n---\n")),
		models.TierT1, &agent.ID, &stepID)
	if err != nil {
		s.logger.Warn("upskill analysis call failed, using generic expertise",
			"agent_id", agent.ID, "error", err)
	} else if parsed, ok := parseUpskillJSON(resp.Content); ok {
		analysis = parsed
	}

	current, err := s.store.LatestPersona(ctx, agent.ID)
	if err != nil {
		return false, fmt.Errorf("loading current persona: %w", err)
	}

	upgraded := *current
	upgraded.ID = ""
	upgraded.Skills = current.Skills + "\n" + analysis.ExpertiseAddition
	upgraded.SystemPrompt = current.SystemPrompt +
		"\n\n## Learned Expertise\n" + analysis.ExpertiseAddition
	saved, err := s.store.SavePersona(ctx, &upgraded)
	if err != nil {
		return false, fmt.Errorf("saving upgraded persona: %w", err)
	}

	s.emitter.Emit(ctx, events.TypeAgentUpskilled,
		fmt.Sprintf("%s upskilled after %d rejections: %s", agent.DisplayName, count, analysis.SkillGap),
		map[string]any{"agent_id": agent.ID, "step_id": stepID, "persona_id": saved.ID})

	_, err = s.store.InsertMemory(ctx, &models.AgentMemory{
		AgentID:    agent.ID,
		MemoryType: models.MemoryTypeLesson,
		Content: fmt.Sprintf("After %d rejections I was upskilled. Gap: %s. New expertise: %s",
			count, analysis.SkillGap, analysis.ExpertiseAddition),
		Summary:    "Upskilled after repeated rejections: " + analysis.SkillGap,
		TopicTags:  []string{"upskill", "quality"},
		Importance: 9,
		SourceType: "step",
		SourceID:   stepID,
	})
	if err != nil {
		return false, fmt.Errorf("writing upskill memory: %w", err)
	}
	return true, nil
}

// parseUpskillJSON tolerates code fences and surrounding prose around
// the JSON object.
func parseUpskillJSON(content string) (upskillAnalysis, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return upskillAnalysis{}, false
	}
	var out upskillAnalysis
	if err := json.Unmarshal([]byte(content[start:end+1]), &out); err != nil {
		return upskillAnalysis{}, false
	}
	if out.ExpertiseAddition == "" {
		return upskillAnalysis{}, false
	}
	return out, true
}
