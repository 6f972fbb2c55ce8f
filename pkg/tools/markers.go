// Package tools parses and executes the tool-use markers an agent may
// embed in its responses. Markers are an untrusted mini-language: parsed
// with explicit regexes, capped per call, and stripped before any
// content is persisted.
package tools

import (
	"regexp"
	"strings"
)

// MaxFetchesPerResponse caps [WEB_FETCH:...] executions per response.
const MaxFetchesPerResponse = 3

var (
	searchMarkerRe = regexp.MustCompile(`\[WEB_SEARCH:([^\]]+)\]`)
	fetchMarkerRe  = regexp.MustCompile(`\[WEB_FETCH:([^\]]+)\]`)
	socialMarkerRe = regexp.MustCompile(`\[SOCIAL_POST:([^\]]+)\]`)

	// urlRe finds bare URLs in task descriptions for pre-fetching.
	urlRe = regexp.MustCompile(`https?://[^\s<>"')\]]+`)
)

// Markers is the parse result of one response.
type Markers struct {
	Searches    []string
	Fetches     []string
	SocialPosts []string
}

// HasWebMarkers reports whether a follow-up model call is needed.
func (m Markers) HasWebMarkers() bool {
	return len(m.Searches) > 0 || len(m.Fetches) > 0
}

// ParseMarkers extracts all markers from a response. Fetches beyond the
// cap are dropped.
func ParseMarkers(content string) Markers {
	var m Markers
	for _, match := range searchMarkerRe.FindAllStringSubmatch(content, -1) {
		if q := strings.TrimSpace(match[1]); q != "" {
			m.Searches = append(m.Searches, q)
		}
	}
	for _, match := range fetchMarkerRe.FindAllStringSubmatch(content, -1) {
		if len(m.Fetches) == MaxFetchesPerResponse {
			break
		}
		if u := strings.TrimSpace(match[1]); u != "" {
			m.Fetches = append(m.Fetches, u)
		}
	}
	for _, match := range socialMarkerRe.FindAllStringSubmatch(content, -1) {
		if t := strings.TrimSpace(match[1]); t != "" {
			m.SocialPosts = append(m.SocialPosts, t)
		}
	}
	return m
}

// StripMarkers removes every marker form from content before it is
// persisted as a final answer.
func StripMarkers(content string) string {
	content = searchMarkerRe.ReplaceAllString(content, "")
	content = fetchMarkerRe.ReplaceAllString(content, "")
	content = socialMarkerRe.ReplaceAllString(content, "")
	return strings.TrimSpace(content)
}

// ExtractURLs returns up to max bare URLs found in text.
func ExtractURLs(text string, max int) []string {
	matches := urlRe.FindAllString(text, -1)
	if len(matches) > max {
		matches = matches[:max]
	}
	return matches
}
