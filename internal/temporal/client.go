package temporal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rendis/temporal-mcp/internal/logging"
	"github.com/rendis/temporal-mcp/internal/validation"
	"github.com/rendis/temporal-mcp/pkg/schema"
)

const (
	defaultMaxResponseBody = 32 * 1024 * 1024 // 32MB
	defaultRequestTimeout  = 30 * time.Second
	errorExcerptLen        = 512
)

// Breaker keys, one per upstream operation.
const (
	opSearch   = "search"
	opDescribe = "describe"
	opHistory  = "history"
)

// PageValidator checks a raw history page before it is accepted.
type PageValidator interface {
	ValidatePage(raw []byte) (*validation.PageReport, error)
}

// Config configures a Client.
type Config struct {
	Endpoint         string
	OverrideEndpoint string
	APIKey           string

	// RequestTimeout bounds each HTTP request, not the whole operation.
	RequestTimeout  time.Duration
	MaxResponseBody int64
	Retry           RetryPolicy
	Breaker         CircuitBreakerConfig

	HTTPClient *http.Client
	Validator  PageValidator
	Logger     *slog.Logger
}

// Client talks to the Temporal HTTP API. It is safe for concurrent use.
type Client struct {
	baseURL   string
	apiKey    string
	timeout   time.Duration
	maxBody   int64
	retry     RetryPolicy
	breakers  *upstreamBreakers
	http      *http.Client
	validator PageValidator
	logger    *slog.Logger
}

var _ Source = (*Client)(nil)

// NewClient resolves the endpoint and applies defaults to zero-valued
// settings.
func NewClient(cfg Config) (*Client, error) {
	base, err := ResolveEndpoint(cfg.Endpoint, cfg.OverrideEndpoint)
	if err != nil {
		return nil, err
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Breaker == (CircuitBreakerConfig{}) {
		cfg.Breaker = DefaultCircuitBreakerConfig()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		baseURL:   base,
		apiKey:    cfg.APIKey,
		timeout:   cfg.RequestTimeout,
		maxBody:   cfg.MaxResponseBody,
		retry:     cfg.Retry,
		breakers:  newUpstreamBreakers(cfg.Breaker),
		http:      cfg.HTTPClient,
		validator: cfg.Validator,
		logger:    cfg.Logger,
	}, nil
}

// BaseURL returns the resolved API base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// SearchWorkflows lists executions matching a visibility query.
func (c *Client) SearchWorkflows(ctx context.Context, namespace, query string) (json.RawMessage, error) {
	u := fmt.Sprintf("%s/api/v1/namespaces/%s/workflows?query=%s",
		c.baseURL, url.PathEscape(namespace), url.QueryEscape(query))

	body, err := c.get(ctx, opSearch, u)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, schema.NewError(schema.ErrCodeUpstream, "search response is not valid JSON")
	}
	return body, nil
}

// GetWorkflowData fetches the execution description and every history page
// concurrently.
func (c *Client) GetWorkflowData(ctx context.Context, namespace, workflowID, runID string) (*WorkflowData, error) {
	data := &WorkflowData{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u := fmt.Sprintf("%s/api/v1/namespaces/%s/workflows/%s?execution.runId=%s",
			c.baseURL, url.PathEscape(namespace), url.PathEscape(workflowID), url.QueryEscape(runID))
		body, err := c.get(gctx, opDescribe, u)
		if err != nil {
			return err
		}
		if !json.Valid(body) {
			return schema.NewError(schema.ErrCodeUpstream, "describe response is not valid JSON")
		}
		data.Execution = body
		return nil
	})
	g.Go(func() error {
		events, err := c.fetchHistory(gctx, namespace, workflowID, runID)
		if err != nil {
			return err
		}
		data.Events = events
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return data, nil
}

// fetchHistory follows nextPageToken until the history is exhausted.
func (c *Client) fetchHistory(ctx context.Context, namespace, workflowID, runID string) ([]json.RawMessage, error) {
	log := logging.LogWith(ctx, c.logger)
	events := []json.RawMessage{}
	token := ""

	for page := 0; ; page++ {
		u := fmt.Sprintf("%s/api/v1/namespaces/%s/workflows/%s/history?execution.runId=%s&next_page_token=%s",
			c.baseURL, url.PathEscape(namespace), url.PathEscape(workflowID),
			url.QueryEscape(runID), url.QueryEscape(token))

		body, err := c.get(ctx, opHistory, u)
		if err != nil {
			return nil, err
		}

		if c.validator != nil {
			report, err := c.validator.ValidatePage(body)
			if err != nil {
				return nil, fmt.Errorf("history page %d: %w", page, err)
			}
			for _, w := range report.Issues.Warnings {
				log.Warn("history page warning",
					"page", page, "event_id", string(w.EventID), "path", w.Path, "message", w.Message)
			}
		}

		var p struct {
			History struct {
				Events []json.RawMessage `json:"events"`
			} `json:"history"`
			NextPageToken string `json:"nextPageToken"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeUpstream, "decode history page %d", page).WithCause(err)
		}
		events = append(events, p.History.Events...)

		if p.NextPageToken == "" {
			log.Debug("history fetched", "pages", page+1, "events", len(events))
			return events, nil
		}
		if p.NextPageToken == token {
			return nil, schema.NewErrorf(schema.ErrCodeUpstream, "history pagination did not advance at page %d", page)
		}
		token = p.NextPageToken
	}
}

// get performs a GET with retries and backoff, guarded by the breaker for
// this endpoint and operation.
func (c *Client) get(ctx context.Context, op, u string) ([]byte, error) {
	log := logging.LogWith(ctx, c.logger)

	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := WaitForBackoff(ctx, ComputeBackoff(c.retry, attempt-1)); err != nil {
				return nil, err
			}
		}
		if err := c.breakers.allow(c.baseURL, op); err != nil {
			return nil, err
		}

		body, err := c.do(ctx, op, u)
		if err == nil {
			c.breakers.success(c.baseURL, op)
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil || !IsRetryableError(err) {
			return nil, err
		}
		state := c.breakers.failure(c.baseURL, op, err)
		log.Warn("temporal request failed",
			"operation", op, "attempt", attempt+1, "circuit", state.String(), "error", err)
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, op, u string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u, nil)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeUpstream, "%s: build request", op).WithCause(err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeUpstream, "%s: request failed: %v", op, err).WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeUpstream, "%s: read response body", op).WithCause(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt := string(body)
		if len(excerpt) > errorExcerptLen {
			excerpt = excerpt[:errorExcerptLen]
		}
		return nil, schema.NewErrorf(schema.ErrCodeUpstream, "failed to %s", opDescription(op)).
			WithStatus(resp.StatusCode).
			WithDetails(map[string]any{"body": excerpt})
	}
	if int64(len(body)) > c.maxBody {
		return nil, schema.NewErrorf(schema.ErrCodeUpstream, "%s: response exceeds %d bytes", op, c.maxBody).
			WithStatus(resp.StatusCode)
	}
	return body, nil
}

func opDescription(op string) string {
	switch op {
	case opSearch:
		return "search workflows"
	case opDescribe:
		return "get workflow data"
	case opHistory:
		return "get workflow events"
	default:
		return op
	}
}
