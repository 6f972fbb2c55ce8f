package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/zerohq/agentcorp/pkg/models"
	"github.com/zerohq/agentcorp/pkg/store"
)

// ErrAllTiersFailed indicates the full fallback ladder was exhausted.
var ErrAllTiersFailed = errors.New("all model tiers failed")

// t1RetryDelay is the pause before the single t1 retry.
const t1RetryDelay = 5 * time.Second

// ChatClient captures the subset of the go-openai client the router uses.
// Tests substitute fakes.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (
		openai.ChatCompletionResponse, error)
}

// Response is the outcome of a successful routed call.
type Response struct {
	Content      string
	Model        string
	Tier         models.ModelTier
	InputTokens  int
	OutputTokens int
}

// Router invokes the configured tiers with retry and fallback, writing
// one model-usage row per attempt.
type Router struct {
	registry *Registry
	store    *store.Store
	logger   *slog.Logger

	clients map[models.ModelTier]ChatClient
	sleep   func(time.Duration) // swapped in tests
}

// NewRouter builds a Router with real HTTP clients per tier.
func NewRouter(registry *Registry, s *store.Store, logger *slog.Logger) *Router {
	clients := make(map[models.ModelTier]ChatClient, 3)
	for _, tier := range []models.ModelTier{models.TierT1, models.TierT2, models.TierT3} {
		cfg := registry.Get(tier)
		clientCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
		clients[tier] = openai.NewClientWithConfig(clientCfg)
	}
	return &Router{
		registry: registry,
		store:    s,
		logger:   logger.With("component", "llm"),
		clients:  clients,
		sleep:    time.Sleep,
	}
}

// NewRouterWithClients builds a Router over injected clients; tests use
// this with fakes.
func NewRouterWithClients(registry *Registry, s *store.Store, logger *slog.Logger, clients map[models.ModelTier]ChatClient) *Router {
	return &Router{
		registry: registry,
		store:    s,
		logger:   logger.With("component", "llm"),
		clients:  clients,
		sleep:    func(time.Duration) {},
	}
}

// CallLLM routes one prompt through the requested tier with the
// tier-specific retry/fallback ladder:
//
//	t1: one retry after 5s, then surface the error
//	t2: fall back to t1 (single attempt)
//	t3: fall back to t2, then t1
//
// Every attempt, success or failure, writes one model-usage row.
func (r *Router) CallLLM(ctx context.Context, systemPrompt, userMessage string, tier models.ModelTier, agentID, stepID *string) (*Response, error) {
	switch tier {
	case models.TierT1:
		resp, err := r.attempt(ctx, systemPrompt, userMessage, models.TierT1, agentID, stepID, "")
		if err == nil {
			return resp, nil
		}
		r.logger.Warn("t1 call failed, retrying once", "error", err)
		r.sleep(t1RetryDelay)
		resp, err = r.attempt(ctx, systemPrompt, userMessage, models.TierT1, agentID, stepID, "")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAllTiersFailed, err)
		}
		return resp, nil

	case models.TierT2:
		resp, err := r.attempt(ctx, systemPrompt, userMessage, models.TierT2, agentID, stepID, "")
		if err == nil {
			return resp, nil
		}
		r.logger.Warn("t2 call failed, falling back to t1", "error", err)
		resp, err = r.attempt(ctx, systemPrompt, userMessage, models.TierT1, agentID, stepID, "t2")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAllTiersFailed, err)
		}
		return resp, nil

	case models.TierT3:
		resp, err := r.attempt(ctx, systemPrompt, userMessage, models.TierT3, agentID, stepID, "")
		if err == nil {
			return resp, nil
		}
		r.logger.Warn("t3 call failed, falling back to t2", "error", err)
		resp, err = r.attempt(ctx, systemPrompt, userMessage, models.TierT2, agentID, stepID, "t3")
		if err == nil {
			return resp, nil
		}
		r.logger.Warn("t2 fallback failed, falling back to t1", "error", err)
		resp, err = r.attempt(ctx, systemPrompt, userMessage, models.TierT1, agentID, stepID, "t3_via_t2")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAllTiersFailed, err)
		}
		return resp, nil

	default:
		return nil, fmt.Errorf("unknown tier %q", tier)
	}
}

// attempt performs a single chat-completions call against one tier and
// records its usage row.
func (r *Router) attempt(ctx context.Context, systemPrompt, userMessage string, tier models.ModelTier, agentID, stepID *string, fallbackFrom string) (*Response, error) {
	cfg := r.registry.Get(tier)
	client, ok := r.clients[tier]
	if !ok {
		return nil, fmt.Errorf("no client for tier %s", tier)
	}

	callCtx := ctx
	if cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	start := time.Now()
	resp, err := client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: cfg.ModelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userMessage},
		},
		MaxTokens:   cfg.MaxTokens,
		Temperature: 0.7,
	})
	latency := time.Since(start)

	usage := &models.ModelUsage{
		AgentID:   agentID,
		StepID:    stepID,
		ModelName: cfg.ModelName,
		Tier:      tier,
		LatencyMs: latency.Milliseconds(),
	}
	if fallbackFrom != "" {
		meta, _ := json.Marshal(map[string]string{"fallbackFrom": fallbackFrom})
		usage.Metadata = meta
	}

	if err != nil {
		usage.Success = false
		usage.ErrorMessage = err.Error()
		r.recordUsage(ctx, usage)
		return nil, fmt.Errorf("tier %s call: %w", tier, err)
	}
	if len(resp.Choices) == 0 {
		usage.Success = false
		usage.ErrorMessage = "empty choices"
		r.recordUsage(ctx, usage)
		return nil, fmt.Errorf("tier %s call: empty choices", tier)
	}

	usage.Success = true
	usage.InputTokens = resp.Usage.PromptTokens
	usage.OutputTokens = resp.Usage.CompletionTokens
	usage.EstimatedCost = cfg.EstimateCost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	r.recordUsage(ctx, usage)

	return &Response{
		Content:      resp.Choices[0].Message.Content,
		Model:        cfg.ModelName,
		Tier:         tier,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// recordUsage writes the usage row; accounting failures never fail the
// call itself.
func (r *Router) recordUsage(ctx context.Context, usage *models.ModelUsage) {
	if err := r.store.InsertUsage(ctx, usage); err != nil {
		r.logger.Warn("failed to record model usage", "tier", usage.Tier, "error", err)
	}
}
