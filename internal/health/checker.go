// Package health probes proxy upstreams so unreachable backends are reported
// before the first request is forwarded to them.
package health

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kongwutw/devfront/internal/config"
)

// Status is the outcome of probing one upstream.
type Status string

const (
	StatusReachable   Status = "reachable"
	StatusAuthBlocked Status = "auth-blocked"
	StatusUnhealthy   Status = "unhealthy"
	StatusUnreachable Status = "unreachable"
)

// HTTPProber abstracts *http.Client for testability.
type HTTPProber interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result describes one probed proxy rule.
type Result struct {
	Prefix       string
	Target       string
	Status       Status
	HTTPCode     int
	ResponseTime time.Duration
	// Snippet is the first line of an error body or the transport error.
	Snippet string
}

// Checker probes the upstream of every proxy rule.
type Checker struct {
	client HTTPProber
	logger *slog.Logger
}

// NewChecker creates a new checker. If logger is nil, a no-op logger is used.
func NewChecker(client HTTPProber, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Checker{
		client: client,
		logger: logger,
	}
}

// CheckAll probes every rule concurrently. Results are in rule order. A
// probe only reports; it never changes how requests are routed.
func (c *Checker) CheckAll(ctx context.Context, rules []config.ProxyRule) []Result {
	results := make([]Result, len(rules))
	if len(rules) == 0 {
		return results
	}

	start := time.Now()

	var wg sync.WaitGroup
	for i, rule := range rules {
		wg.Go(func() {
			results[i] = c.probe(ctx, rule)
			c.logger.Debug("upstream probe completed",
				"prefix", rule.MatchPrefix,
				"target", results[i].Target,
				"status", string(results[i].Status),
				"responseTimeMs", results[i].ResponseTime.Milliseconds(),
			)
		})
	}
	wg.Wait()

	c.logger.Debug("upstream probe cycle complete",
		"upstreams", len(rules),
		"durationMs", time.Since(start).Milliseconds(),
	)
	return results
}

const maxSnippetLen = 256

// probe performs a single HTTP GET against the rule's upstream root.
func (c *Checker) probe(ctx context.Context, rule config.ProxyRule) Result {
	target := probeURL(rule.Upstream)
	res := Result{Prefix: rule.MatchPrefix, Target: target}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		res.Status = StatusUnreachable
		res.Snippet = err.Error()
		return res
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	res.ResponseTime = time.Since(start)

	if err != nil {
		res.Status = StatusUnreachable
		res.Snippet = err.Error()
		return res
	}
	defer resp.Body.Close()

	res.HTTPCode = resp.StatusCode
	res.Status = classifyStatus(resp.StatusCode)
	if res.Status == StatusUnhealthy {
		res.Snippet = readSnippet(resp.Body)
	}
	return res
}

// probeURL maps ws schemes to HTTP so the upstream can be probed with a
// plain request.
func probeURL(u *url.URL) string {
	p := *u
	switch p.Scheme {
	case "ws":
		p.Scheme = "http"
	case "wss":
		p.Scheme = "https"
	}
	return p.String()
}

// classifyStatus maps an HTTP status code to a Status. Any answer below 500
// proves the upstream is listening, including 404 for an unmapped root.
func classifyStatus(code int) Status {
	switch {
	case code == 401 || code == 403:
		return StatusAuthBlocked
	case code >= 500:
		return StatusUnhealthy
	default:
		return StatusReachable
	}
}

// readSnippet reads the first line of the response body, truncated to maxSnippetLen.
func readSnippet(body io.Reader) string {
	lr := &io.LimitedReader{R: body, N: maxSnippetLen}
	data, err := io.ReadAll(lr)
	if err != nil || len(data) == 0 {
		return ""
	}

	s := string(data)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
