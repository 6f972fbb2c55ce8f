package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Searcher runs a web search.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// Fetcher fetches a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}

// SocialQueue enqueues a post to the first matching connected profile.
// Enqueue failures are logged, never surfaced to the mission.
type SocialQueue interface {
	Enqueue(ctx context.Context, text string) error
}

// FollowUpFunc re-invokes the model at the same tier with a follow-up
// user message; the resolver never talks to the router directly.
type FollowUpFunc func(ctx context.Context, followUpMessage string) (string, error)

// Resolver executes the tool markers found in a model response.
type Resolver struct {
	searcher Searcher
	fetcher  Fetcher
	social   SocialQueue
	logger   *slog.Logger
}

// NewResolver creates a Resolver. social may be nil when no social
// profile is connected.
func NewResolver(searcher Searcher, fetcher Fetcher, social SocialQueue, logger *slog.Logger) *Resolver {
	return &Resolver{
		searcher: searcher,
		fetcher:  fetcher,
		social:   social,
		logger:   logger.With("component", "tools"),
	}
}

// Resolve scans a model response for tool markers, executes them, and,
// when any web marker occurred, re-invokes the model with the gathered
// live data. The returned content has all remaining markers stripped and
// is safe to persist.
func (r *Resolver) Resolve(ctx context.Context, task, content string, followUp FollowUpFunc) (string, error) {
	markers := ParseMarkers(content)

	for _, post := range markers.SocialPosts {
		if r.social == nil {
			r.logger.Warn("social post requested but no profile connected")
			continue
		}
		if err := r.social.Enqueue(ctx, post); err != nil {
			r.logger.Warn("failed to enqueue social post", "error", err)
		}
	}

	if !markers.HasWebMarkers() {
		return StripMarkers(content), nil
	}

	webData := r.gather(ctx, markers)
	followUpMsg := fmt.Sprintf(`TASK:
%s

LIVE WEB DATA:
%s

Use the live web data above to produce your final answer to the task.
Do not emit any further [WEB_SEARCH:...] or [WEB_FETCH:...] markers.`, task, webData)

	final, err := followUp(ctx, followUpMsg)
	if err != nil {
		return "", fmt.Errorf("tool follow-up call: %w", err)
	}
	return StripMarkers(final), nil
}

// gather executes searches and fetches, formatting results into one
// block. Individual tool failures are recorded inline so the model can
// still reason about partial data.
func (r *Resolver) gather(ctx context.Context, markers Markers) string {
	var sb strings.Builder
	for _, query := range markers.Searches {
		fmt.Fprintf(&sb, "### Search: %s\n", query)
		results, err := r.searcher.Search(ctx, query)
		if err != nil {
			r.logger.Warn("search failed", "query", query, "error", err)
			fmt.Fprintf(&sb, "(search failed: %v)\n\n", err)
			continue
		}
		for _, res := range results {
			fmt.Fprintf(&sb, "- %s — %s\n  %s\n", res.Title, res.URL, res.Snippet)
		}
		sb.WriteString("\n")
	}
	for _, u := range markers.Fetches {
		fmt.Fprintf(&sb, "### Fetched: %s\n", u)
		res, err := r.fetcher.Fetch(ctx, u)
		if err != nil {
			r.logger.Warn("fetch failed", "url", u, "error", err)
			fmt.Fprintf(&sb, "(fetch failed: %v)\n\n", err)
			continue
		}
		if res.Title != "" {
			fmt.Fprintf(&sb, "Title: %s\n", res.Title)
		}
		sb.WriteString(res.Content)
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}

// Prefetch eagerly fetches up to MaxFetchesPerResponse URLs found in a
// task description and returns the description with a "PRE-FETCHED URL
// CONTENT" appendix, so the first model call already has the content.
func (r *Resolver) Prefetch(ctx context.Context, description string) string {
	urls := ExtractURLs(description, MaxFetchesPerResponse)
	if len(urls) == 0 {
		return description
	}
	var sb strings.Builder
	for _, u := range urls {
		res, err := r.fetcher.Fetch(ctx, u)
		if err != nil {
			r.logger.Warn("prefetch failed", "url", u, "error", err)
			continue
		}
		fmt.Fprintf(&sb, "--- %s ---\n", u)
		if res.Title != "" {
			fmt.Fprintf(&sb, "Title: %s\n", res.Title)
		}
		sb.WriteString(res.Content)
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		return description
	}
	return description + "\n\nPRE-FETCHED URL CONTENT:\n" + sb.String()
}
