package roster

import (
	"context"
	"errors"
	"fmt"

	"github.com/zerohq/agentcorp/pkg/mission"
	"github.com/zerohq/agentcorp/pkg/models"
	"github.com/zerohq/agentcorp/pkg/store"
)

// namePool is the finite display-name pool, seeded once. Retired agents
// return their name to the pool.
var namePool = map[string][]string{
	"scientists": {
		"Ada", "Grace", "Alan", "Katherine", "Edsger", "Barbara",
		"Claude", "Margaret", "Dennis", "Radia", "Donald", "Frances",
	},
	"explorers": {
		"Amelia", "Ernest", "Roald", "Gertrude", "Thor", "Freya",
		"Marco", "Ibn", "Nellie", "Jacques",
	},
}

// standingTeamNames are the teams auto-hired agents land on; derived
// from the routing table so the two never drift.
func standingTeamNames() []string {
	seen := map[string]bool{}
	var names []string
	for _, c := range mission.Categories {
		name := mission.StandingTeams[c]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// Bootstrap seeds the fixed org scaffolding: standing teams, the name
// pool, and the chief of staff. Safe to run at every startup.
func (s *Service) Bootstrap(ctx context.Context) error {
	for _, name := range standingTeamNames() {
		_, err := s.store.GetTeamByName(ctx, name)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("checking team %s: %w", name, err)
		}
		if _, err := s.store.CreateTeam(ctx, name); err != nil {
			return fmt.Errorf("seeding team %s: %w", name, err)
		}
		s.logger.Info("seeded standing team", "team", name)
	}

	for source, names := range namePool {
		if err := s.store.SeedNamePool(ctx, source, names); err != nil {
			return fmt.Errorf("seeding name pool: %w", err)
		}
	}

	return s.ensureChiefOfStaff(ctx)
}

func (s *Service) ensureChiefOfStaff(ctx context.Context) error {
	agents, err := s.store.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("listing agents: %w", err)
	}
	for _, a := range agents {
		if a.AgentType == models.AgentTypeChiefOfStaff {
			return nil
		}
	}
	agent, err := s.CreateAgent(ctx, "Chief of Staff", models.AgentTypeChiefOfStaff, nil, "scientists")
	if err != nil {
		return fmt.Errorf("hiring chief of staff: %w", err)
	}
	s.logger.Info("chief of staff hired", "agent_id", agent.ID, "name", agent.DisplayName)
	return nil
}
