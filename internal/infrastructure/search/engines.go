package search

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

func (c *Client) searchSerper(ctx context.Context, query string) ([]Result, error) {
	var out serperResponse
	resp, err := c.apiClient.R().
		SetContext(ctx).
		SetHeader("X-API-KEY", c.cfg.SerperAPIKey).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{"q": query, "num": c.cfg.MaxResults}).
		SetResult(&out).
		Post(c.cfg.SerperURL)
	if err != nil {
		return nil, fmt.Errorf("serper request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("serper error (status %d): %s", resp.StatusCode(), resp.String())
	}

	results := make([]Result, 0, len(out.Organic))
	for _, o := range out.Organic {
		results = append(results, Result{Title: o.Title, Link: o.Link, Snippet: o.Snippet})
	}
	return results, nil
}

type searxngResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (c *Client) searchSearxng(ctx context.Context, query string) ([]Result, error) {
	var out searxngResponse
	resp, err := c.apiClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":          query,
			"format":     "json",
			"safesearch": "1",
		}).
		SetResult(&out).
		Get(strings.TrimRight(c.cfg.SearxngURL, "/") + searxngSearchPath)
	if err != nil {
		return nil, fmt.Errorf("searxng request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("searxng error (status %d): %s", resp.StatusCode(), resp.String())
	}

	results := make([]Result, 0, len(out.Results))
	for _, r := range out.Results {
		results = append(results, Result{Title: r.Title, Link: r.URL, Snippet: r.Content})
	}
	return results, nil
}

func (c *Client) searchDuckDuckGo(ctx context.Context, query string) ([]Result, error) {
	resp, err := c.scrapeClient.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		Get(c.cfg.DuckDuckGoURL)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("duckduckgo error (status %d)", resp.StatusCode())
	}
	return parseDuckDuckGo(resp.Body())
}

// parseDuckDuckGo reads results out of the HTML endpoint. Each result has an
// a.result__a title link followed by an a.result__snippet.
func parseDuckDuckGo(body []byte) ([]Result, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse duckduckgo html: %w", err)
	}

	var results []Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			switch {
			case hasClass(n, "result__a"):
				results = append(results, Result{
					Title: strings.TrimSpace(nodeText(n)),
					Link:  resolveDuckDuckGoLink(attr(n, "href")),
				})
				return
			case hasClass(n, "result__snippet") && len(results) > 0:
				results[len(results)-1].Snippet = strings.TrimSpace(nodeText(n))
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return results, nil
}

// resolveDuckDuckGoLink unwraps the /l/?uddg= redirect links.
func resolveDuckDuckGoLink(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
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

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
