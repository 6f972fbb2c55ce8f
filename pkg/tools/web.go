package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// fetchByteCap truncates fetched page text.
const fetchByteCap = 12000

// maxBodyBytes bounds how much of a response body is read at all.
const maxBodyBytes = 2 << 20

var (
	multiNewlineRe = regexp.MustCompile(`\n{3,}`)
	multiSpaceRe   = regexp.MustCompile(`[ \t]{2,}`)
)

// SearchResult is one web-search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// FetchResult is a fetched page reduced to text.
type FetchResult struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// WebClient performs searches and fetches. The primary search path is an
// API-style endpoint; on failure it falls back to scraping a public HTML
// search page.
type WebClient struct {
	http       *http.Client
	logger     *slog.Logger
	searchAPI  string // API-style search endpoint, %s = query
	searchHTML string // HTML fallback endpoint, %s = query
	userAgent  string
}

// NewWebClient creates a WebClient with a 30s per-request timeout.
func NewWebClient(logger *slog.Logger) *WebClient {
	return &WebClient{
		http:       &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With("component", "tools"),
		searchAPI:  "https://api.duckduckgo.com/?q=%s&format=json&no_html=1",
		searchHTML: "https://html.duckduckgo.com/html/?q=%s",
		userAgent:  "Mozilla/5.0 (compatible; agentcorp/1.0)",
	}
}

// Search runs a web search, API first, HTML scrape fallback.
func (c *WebClient) Search(ctx context.Context, query string) ([]SearchResult, error) {
	results, err := c.searchViaAPI(ctx, query)
	if err == nil && len(results) > 0 {
		return results, nil
	}
	if err != nil {
		c.logger.Warn("api search failed, falling back to html scrape", "query", query, "error", err)
	}
	return c.searchViaHTML(ctx, query)
}

func (c *WebClient) searchViaAPI(ctx context.Context, query string) ([]SearchResult, error) {
	body, err := c.get(ctx, fmt.Sprintf(c.searchAPI, url.QueryEscape(query)))
	if err != nil {
		return nil, err
	}
	var payload struct {
		AbstractText string `json:"AbstractText"`
		AbstractURL  string `json:"AbstractURL"`
		Heading      string `json:"Heading"`
		RelatedTopics []struct {
			Text     string `json:"Text"`
			FirstURL string `json:"FirstURL"`
		} `json:"RelatedTopics"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	var out []SearchResult
	if payload.AbstractText != "" {
		out = append(out, SearchResult{Title: payload.Heading, URL: payload.AbstractURL, Snippet: payload.AbstractText})
	}
	for _, topic := range payload.RelatedTopics {
		if topic.FirstURL == "" || topic.Text == "" {
			continue
		}
		out = append(out, SearchResult{Title: topic.Text, URL: topic.FirstURL, Snippet: topic.Text})
		if len(out) == 5 {
			break
		}
	}
	return out, nil
}

func (c *WebClient) searchViaHTML(ctx context.Context, query string) ([]SearchResult, error) {
	body, err := c.get(ctx, fmt.Sprintf(c.searchHTML, url.QueryEscape(query)))
	if err != nil {
		return nil, fmt.Errorf("html search: %w", err)
	}
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parsing search page: %w", err)
	}
	var out []SearchResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(out) >= 5 {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			href := attr(n, "href")
			title := strings.TrimSpace(textContent(n))
			if href != "" && title != "" {
				out = append(out, SearchResult{Title: title, URL: href, Snippet: title})
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return out, nil
}

// socialHostRewrites maps social-media hosts to compatibility JSON
// endpoints that serve post content without script rendering.
var socialHostRewrites = map[string]string{
	"twitter.com": "api.fxtwitter.com",
	"x.com":       "api.fxtwitter.com",
}

// videoHosts get title/description extraction instead of body stripping.
var videoHosts = []string{"youtube.com", "youtu.be"}

// Fetch GETs a URL and reduces it to {title, content}. Social-host URLs
// are rewritten to their JSON endpoints; video URLs get metadata
// extraction.
func (c *WebClient) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || !strings.HasPrefix(parsed.Scheme, "http") {
		return nil, fmt.Errorf("invalid fetch url %q", rawURL)
	}

	host := strings.TrimPrefix(parsed.Hostname(), "www.")
	if rewrite, ok := socialHostRewrites[host]; ok {
		parsed.Host = rewrite
		return c.fetchJSON(ctx, parsed.String())
	}
	for _, vh := range videoHosts {
		if host == vh {
			return c.fetchVideo(ctx, rawURL)
		}
	}

	body, err := c.get(ctx, parsed.String())
	if err != nil {
		return nil, err
	}
	title, content := stripHTML(string(body))
	return &FetchResult{Title: title, Content: truncateBytes(content, fetchByteCap)}, nil
}

// fetchJSON returns a compatibility endpoint's JSON body as content.
func (c *WebClient) fetchJSON(ctx context.Context, u string) (*FetchResult, error) {
	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	return &FetchResult{Title: u, Content: truncateBytes(string(body), fetchByteCap)}, nil
}

// fetchVideo extracts title, channel, and description from a video page.
// Transcript extraction is best-effort and usually absent without script
// rendering.
func (c *WebClient) fetchVideo(ctx context.Context, u string) (*FetchResult, error) {
	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	page := string(body)
	title := metaContent(page, `property="og:title"`)
	if title == "" {
		title = u
	}
	var parts []string
	parts = append(parts, "Video: "+title)
	if channel := metaContent(page, `itemprop="author"`); channel != "" {
		parts = append(parts, "Channel: "+channel)
	}
	if desc := metaContent(page, `property="og:description"`); desc != "" {
		parts = append(parts, "Description: "+desc)
	}
	return &FetchResult{Title: title, Content: truncateBytes(strings.Join(parts, "\n"), fetchByteCap)}, nil
}

var metaRe = regexp.MustCompile(`<meta[^>]+content="([^"]*)"[^>]*>`)

// metaContent pulls the content attribute of the meta tag carrying the
// given attribute marker.
func metaContent(page, marker string) string {
	idx := strings.Index(page, marker)
	if idx < 0 {
		return ""
	}
	start := strings.LastIndex(page[:idx], "<meta")
	if start < 0 {
		return ""
	}
	end := strings.Index(page[start:], ">")
	if end < 0 {
		return ""
	}
	m := metaRe.FindStringSubmatch(page[start : start+end+1])
	if m == nil {
		return ""
	}
	return html.UnescapeString(m[1])
}

func (c *WebClient) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: HTTP %d", u, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", u, err)
	}
	return body, nil
}

// stripHTML reduces an HTML document to its title and visible text,
// skipping scripts, styles, and chrome elements, collapsing entities and
// whitespace.
func stripHTML(page string) (title, content string) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", collapseWhitespace(html.UnescapeString(page))
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "svg", "nav", "footer", "header":
				return
			case "title":
				if title == "" {
					title = strings.TrimSpace(textContent(n))
				}
				return
			case "p", "div", "br", "li", "h1", "h2", "h3", "h4", "tr":
				sb.WriteString("\n")
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				sb.WriteString(text)
				sb.WriteString(" ")
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return title, collapseWhitespace(html.UnescapeString(sb.String()))
}

func collapseWhitespace(s string) string {
	s = multiSpaceRe.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = multiNewlineRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// truncateBytes cuts s at the byte limit without splitting a UTF-8 rune.
func truncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	for len(cut) > 0 && cut[len(cut)-1] >= 0x80 && cut[len(cut)-1] < 0xC0 {
		cut = cut[:len(cut)-1]
	}
	if len(cut) > 0 && cut[len(cut)-1] >= 0xC0 {
		cut = cut[:len(cut)-1]
	}
	return cut + "\n[truncated]"
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}
