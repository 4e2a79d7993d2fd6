// Package search runs web searches across several engines and extracts the
// main text of the result pages.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"travel-companion/internal/config"
	"travel-companion/internal/infrastructure/metrics"
	"travel-companion/internal/infrastructure/resilience"
)

const (
	defaultSerperURL     = "https://google.serper.dev/search"
	defaultDuckDuckGoURL = "https://html.duckduckgo.com/html/"
	searxngSearchPath    = "/search"
	maxMainTextRunes     = 4000
	browserUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Engine identifies a search backend.
type Engine string

const (
	EngineSerper     Engine = "serper"
	EngineSearxng    Engine = "searxng"
	EngineDuckDuckGo Engine = "duckduckgo"
)

// ErrNoResults is returned when every engine failed or returned nothing.
var ErrNoResults = errors.New("no search results")

// Result is one search hit with its extracted page text.
type Result struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Snippet     string `json:"snippet"`
	DisplayLink string `json:"display_link"`
	MainText    string `json:"main_text"`
}

// ClientConfig captures the knobs of the search client.
type ClientConfig struct {
	Engines       []Engine
	SerperAPIKey  string
	SerperURL     string
	SearxngURL    string
	DuckDuckGoURL string
	MaxResults    int
	ExtractLimit  int
	Workers       int
	HTTPTimeout   time.Duration
	ScrapeTimeout time.Duration
	Retry         resilience.RetryConfig
	Breaker       resilience.CircuitBreakerConfig
}

// ConfigFromService derives the client configuration from service settings.
func ConfigFromService(cfg *config.Config) ClientConfig {
	engines := make([]Engine, 0, len(cfg.SearchEngines))
	for _, e := range cfg.SearchEngines {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			engines = append(engines, Engine(e))
		}
	}
	return ClientConfig{
		Engines:       engines,
		SerperAPIKey:  cfg.SerperAPIKey,
		SearxngURL:    cfg.SearxngURL,
		MaxResults:    cfg.SearchMaxResults,
		ExtractLimit:  cfg.SearchExtractLimit,
		Workers:       cfg.SearchWorkers,
		HTTPTimeout:   cfg.HTTPTimeout,
		ScrapeTimeout: cfg.ScrapeTimeout,
		Retry:         resilience.RetryFromConfig(cfg),
		Breaker:       resilience.BreakerFromConfig(cfg),
	}
}

type engineFunc func(ctx context.Context, query string) ([]Result, error)

// Client searches the web.
type Client struct {
	cfg          ClientConfig
	apiClient    *resty.Client
	scrapeClient *resty.Client
	breakers     map[Engine]*resilience.CircuitBreaker
	engines      map[Engine]engineFunc
	log          zerolog.Logger
}

// NewClient wires HTTP clients for each engine.
func NewClient(cfg ClientConfig, log zerolog.Logger) *Client {
	if len(cfg.Engines) == 0 {
		cfg.Engines = []Engine{EngineSerper, EngineSearxng, EngineDuckDuckGo}
	}
	if cfg.SerperURL == "" {
		cfg.SerperURL = defaultSerperURL
	}
	if cfg.DuckDuckGoURL == "" {
		cfg.DuckDuckGoURL = defaultDuckDuckGoURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 40
	}
	if cfg.ExtractLimit < 0 {
		cfg.ExtractLimit = 0
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 15 * time.Second
	}
	if cfg.ScrapeTimeout <= 0 {
		cfg.ScrapeTimeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	apiClient := resty.New().
		SetHeader("User-Agent", "travel-companion/1.0").
		SetTimeout(cfg.HTTPTimeout).
		SetRetryCount(0).
		SetTransport(transport)

	// Browser-like headers avoid basic bot detection on result pages.
	scrapeClient := resty.New().
		SetHeader("User-Agent", browserUserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetHeader("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7").
		SetTimeout(cfg.ScrapeTimeout).
		SetRetryCount(0).
		SetTransport(transport)

	c := &Client{
		cfg:          cfg,
		apiClient:    apiClient,
		scrapeClient: scrapeClient,
		breakers:     make(map[Engine]*resilience.CircuitBreaker),
		log:          log.With().Str("component", "search-client").Logger(),
	}
	c.engines = map[Engine]engineFunc{
		EngineSerper:     c.searchSerper,
		EngineSearxng:    c.searchSearxng,
		EngineDuckDuckGo: c.searchDuckDuckGo,
	}
	for _, e := range cfg.Engines {
		c.breakers[e] = resilience.NewCircuitBreaker("search-"+string(e), cfg.Breaker)
	}
	return c
}

// Search queries the engines in order and returns deduplicated results with
// extracted page text. Extraction failures leave MainText empty.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty search query")
	}

	var errs []error
	for _, engine := range c.cfg.Engines {
		fn, ok := c.engines[engine]
		if !ok {
			continue
		}
		if !c.engineConfigured(engine) {
			continue
		}
		results, err := c.runEngine(ctx, engine, fn, query)
		if err != nil {
			c.log.Warn().Err(err).Str("engine", string(engine)).Msg("search engine failed, trying next")
			errs = append(errs, err)
			continue
		}
		results = Dedupe(results, c.cfg.MaxResults)
		if len(results) == 0 {
			continue
		}
		c.extractAll(ctx, results)
		return results, nil
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoResults, errors.Join(errs...))
	}
	return nil, ErrNoResults
}

func (c *Client) engineConfigured(engine Engine) bool {
	switch engine {
	case EngineSerper:
		return strings.TrimSpace(c.cfg.SerperAPIKey) != ""
	case EngineSearxng:
		return strings.TrimSpace(c.cfg.SearxngURL) != ""
	default:
		return true
	}
}

func (c *Client) runEngine(ctx context.Context, engine Engine, fn engineFunc, query string) ([]Result, error) {
	start := time.Now()
	var results []Result
	err := c.breakers[engine].Execute(func() error {
		res, err := resilience.WithRetry(ctx, c.cfg.Retry, string(engine)+"_search", func() ([]Result, error) {
			return fn(ctx, query)
		})
		results = res
		return err
	})
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordExternalProviderLatency(string(engine), status, time.Since(start).Seconds())
	return results, err
}

// extractAll fills MainText for the first ExtractLimit results concurrently.
func (c *Client) extractAll(ctx context.Context, results []Result) {
	limit := min(c.cfg.ExtractLimit, len(results))
	if limit == 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)
	for i := 0; i < limit; i++ {
		g.Go(func() error {
			results[i].MainText = c.extract(gctx, results[i].Link)
			return nil
		})
	}
	// extract reports failures as empty text, so Wait never returns an error.
	g.Wait()
}

func (c *Client) extract(ctx context.Context, link string) string {
	start := time.Now()
	resp, err := c.scrapeClient.R().SetContext(ctx).Get(link)
	if err != nil || resp.IsError() {
		metrics.RecordExternalProviderLatency("direct-http", "error", time.Since(start).Seconds())
		c.log.Debug().Err(err).Str("url", link).Int("status", statusOf(resp)).Msg("page extraction failed")
		return ""
	}
	metrics.RecordExternalProviderLatency("direct-http", "success", time.Since(start).Seconds())
	return truncateRunes(extractVisibleText(resp.Body()), maxMainTextRunes)
}

// Dedupe drops results whose link or domain was already seen and caps the
// list at limit.
func Dedupe(results []Result, limit int) []Result {
	seenLinks := make(map[string]bool, len(results))
	seenDomains := make(map[string]bool, len(results))
	out := make([]Result, 0, len(results))
	for _, r := range results {
		link := strings.TrimSpace(r.Link)
		if link == "" || seenLinks[link] {
			continue
		}
		domain := r.DisplayLink
		if domain == "" {
			domain = domainOf(link)
		}
		if domain != "" && seenDomains[domain] {
			continue
		}
		seenLinks[link] = true
		seenDomains[domain] = true
		r.Link = link
		r.DisplayLink = domain
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func domainOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func statusOf(resp *resty.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode()
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
