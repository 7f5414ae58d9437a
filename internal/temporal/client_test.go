package temporal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/temporal-mcp/internal/validation"
	"github.com/rendis/temporal-mcp/pkg/schema"
)

const (
	startedEvent   = `{"eventId":"1","eventTime":"2024-05-01T12:00:00Z","eventType":"EVENT_TYPE_WORKFLOW_EXECUTION_STARTED","workflowExecutionStartedEventAttributes":{"workflowType":{"name":"W"},"taskQueue":{"name":"q"}}}`
	scheduledEvent = `{"eventId":"2","eventTime":"2024-05-01T12:00:01Z","eventType":"EVENT_TYPE_ACTIVITY_TASK_SCHEDULED","activityTaskScheduledEventAttributes":{"activityId":"a","activityType":{"name":"A"},"taskQueue":{"name":"q"}}}`
	completedEvent = `{"eventId":"3","eventTime":"2024-05-01T12:00:02Z","eventType":"EVENT_TYPE_WORKFLOW_EXECUTION_COMPLETED","workflowExecutionCompletedEventAttributes":{}}`
	describeBody   = `{"executionConfig":{"taskQueue":{"name":"q"}},"workflowExecutionInfo":{"execution":{"workflowId":"wf-1","runId":"run-1"},"status":"WORKFLOW_EXECUTION_STATUS_COMPLETED"}}`
)

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, Backoff: "constant", Delay: time.Millisecond}
}

func newTestClient(t *testing.T, srv *httptest.Server, mutate ...func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		OverrideEndpoint: srv.URL,
		APIKey:           "secret",
		Retry:            fastRetry(),
		HTTPClient:       srv.Client(),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	return c
}

// pagedHistory serves describe plus a two-page history.
func pagedHistory(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/namespaces/default/workflows/wf-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "run-1", r.URL.Query().Get("execution.runId"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		fmt.Fprint(w, describeBody)
	})
	mux.HandleFunc("/api/v1/namespaces/default/workflows/wf-1/history", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "run-1", r.URL.Query().Get("execution.runId"))
		switch r.URL.Query().Get("next_page_token") {
		case "":
			fmt.Fprintf(w, `{"history":{"events":[%s,%s]},"nextPageToken":"cGFnZTI="}`, startedEvent, scheduledEvent)
		case "cGFnZTI=":
			fmt.Fprintf(w, `{"history":{"events":[%s]},"nextPageToken":null}`, completedEvent)
		default:
			t.Errorf("unexpected page token %q", r.URL.Query().Get("next_page_token"))
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	return mux
}

func TestGetWorkflowData_FollowsPagination(t *testing.T) {
	srv := httptest.NewServer(pagedHistory(t))
	defer srv.Close()

	c := newTestClient(t, srv)
	data, err := c.GetWorkflowData(context.Background(), "default", "wf-1", "run-1")
	require.NoError(t, err)

	require.Len(t, data.Events, 3)
	assert.JSONEq(t, describeBody, string(data.Execution))

	events := data.Decode()
	assert.Equal(t, schema.EventWorkflowExecutionStarted, events[0].EventType)
	assert.Equal(t, schema.EventID("3"), events[2].EventID)

	raw, err := data.Raw()
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Contains(t, doc, "workflowExecutionInfo")
	assert.Len(t, doc["history"].(map[string]any)["events"], 3)
}

// historyServer serves describeBody and a single history page.
func historyServer(page string) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/namespaces/default/workflows/wf-1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, describeBody)
	})
	mux.HandleFunc("/api/v1/namespaces/default/workflows/wf-1/history", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	})
	return httptest.NewServer(mux)
}

func TestGetWorkflowData_RejectsPageWithoutHistory(t *testing.T) {
	srv := historyServer(`{"events":[]}`)
	defer srv.Close()

	v, err := validation.NewHistoryValidator()
	require.NoError(t, err)
	c := newTestClient(t, srv, func(cfg *Config) { cfg.Validator = v })

	_, err = c.GetWorkflowData(context.Background(), "default", "wf-1", "run-1")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestGetWorkflowData_AcceptsPageWithMalformedEvents(t *testing.T) {
	marker := `{"eventId":"2","eventTime":"not-a-time","eventType":"EVENT_TYPE_MARKER_RECORDED"}`
	untyped := `{"eventId":"3","eventTime":"2024-05-01T12:00:01Z"}`
	srv := historyServer(fmt.Sprintf(`{"history":{"events":[%s,%s,%s,%s]}}`, startedEvent, marker, untyped, completedEvent))
	defer srv.Close()

	v, err := validation.NewHistoryValidator()
	require.NoError(t, err)
	c := newTestClient(t, srv, func(cfg *Config) { cfg.Validator = v })

	data, err := c.GetWorkflowData(context.Background(), "default", "wf-1", "run-1")
	require.NoError(t, err)
	require.Len(t, data.Events, 4)
	assert.JSONEq(t, marker, string(data.Events[1]))

	raw, err := data.Raw()
	require.NoError(t, err)
	var doc struct {
		History struct {
			Events []json.RawMessage `json:"events"`
		} `json:"history"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Len(t, doc.History.Events, 4)
	assert.JSONEq(t, untyped, string(doc.History.Events[2]))
}

func TestGetWorkflowData_PaginationMustAdvance(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/namespaces/default/workflows/wf-1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, describeBody)
	})
	mux.HandleFunc("/api/v1/namespaces/default/workflows/wf-1/history", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"history":{"events":[%s]},"nextPageToken":"c2FtZQ=="}`, startedEvent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.GetWorkflowData(context.Background(), "default", "wf-1", "run-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not advance")
}

func TestSearchWorkflows(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/namespaces/my-ns/workflows", r.URL.Path)
		gotQuery = r.URL.Query().Get("query")
		fmt.Fprint(w, `{"executions":[{"execution":{"workflowId":"wf-1"}}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	out, err := c.SearchWorkflows(context.Background(), "my-ns", `WorkflowType = "Order" AND ExecutionStatus = "Running"`)
	require.NoError(t, err)
	assert.Equal(t, `WorkflowType = "Order" AND ExecutionStatus = "Running"`, gotQuery)
	assert.Contains(t, string(out), "wf-1")
}

func TestSearchWorkflows_NoAPIKeyNoAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, func(cfg *Config) { cfg.APIKey = "" })
	_, err := c.SearchWorkflows(context.Background(), "ns", "")
	require.NoError(t, err)
}

func TestClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"code":5,"message":"workflow not found"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.SearchWorkflows(context.Background(), "ns", "")
	require.Error(t, err)

	var sErr *schema.Error
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, schema.ErrCodeUpstream, sErr.Code)
	assert.Equal(t, http.StatusNotFound, sErr.StatusCode)
	assert.Contains(t, sErr.Message, "failed to search workflows")
	assert.Contains(t, sErr.Details["body"], "workflow not found")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ServerErrorIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"executions":[]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.SearchWorkflows(context.Background(), "ns", "")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.SearchWorkflows(context.Background(), "ns", "")
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load(), "first attempt plus MaxRetries")
}

func TestClient_CircuitOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, func(cfg *Config) {
		cfg.Retry = RetryPolicy{MaxRetries: 0, Delay: time.Millisecond}
		cfg.Breaker = CircuitBreakerConfig{FailureThreshold: 2, Cooldown: time.Hour, HalfOpenMax: 1}
	})

	for i := 0; i < 2; i++ {
		_, err := c.SearchWorkflows(context.Background(), "ns", "")
		assert.Equal(t, schema.ErrCodeUpstream, schema.CodeOf(err))
	}
	_, err := c.SearchWorkflows(context.Background(), "ns", "")
	assert.Equal(t, schema.ErrCodeCircuitOpen, schema.CodeOf(err))
	assert.Contains(t, err.Error(), "search workflows at "+srv.URL)
	assert.Contains(t, err.Error(), "last upstream status 500")
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_ResponseTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"pad":"%s"}`, strings.Repeat("x", 200))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, func(cfg *Config) { cfg.MaxResponseBody = 64 })
	_, err := c.SearchWorkflows(context.Background(), "ns", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 64 bytes")
}

func TestClient_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient(t, srv)
	_, err := c.SearchWorkflows(ctx, "ns", "")
	require.Error(t, err)
}

func TestNewClient_RequiresEndpoint(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConfig, schema.CodeOf(err))
}
