// Package temporal fetches workflow data from the Temporal HTTP API.
package temporal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rendis/temporal-mcp/pkg/schema"
)

// Source provides the upstream documents the tool surface works on.
type Source interface {
	// SearchWorkflows runs a visibility query and returns the upstream
	// response unchanged.
	SearchWorkflows(ctx context.Context, namespace, query string) (json.RawMessage, error)
	// GetWorkflowData returns the execution description and the complete
	// event history of one run.
	GetWorkflowData(ctx context.Context, namespace, workflowID, runID string) (*WorkflowData, error)
}

// WorkflowData is one run's execution description plus its full history,
// both kept as received.
type WorkflowData struct {
	Execution json.RawMessage   `json:"execution"`
	Events    []json.RawMessage `json:"events"`
}

// Raw renders the upstream document: the describe response with the
// history events attached under "history.events".
func (d *WorkflowData) Raw() (json.RawMessage, error) {
	doc := map[string]json.RawMessage{}
	if len(d.Execution) > 0 && string(d.Execution) != "null" {
		if err := json.Unmarshal(d.Execution, &doc); err != nil {
			return nil, schema.NewError(schema.ErrCodeUpstream, "execution description is not a JSON object").WithCause(err)
		}
	}

	events := d.Events
	if events == nil {
		events = []json.RawMessage{}
	}
	history, err := json.Marshal(struct {
		Events []json.RawMessage `json:"events"`
	}{events})
	if err != nil {
		return nil, fmt.Errorf("marshal history: %w", err)
	}
	doc["history"] = history

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal workflow data: %w", err)
	}
	return out, nil
}

// Decode decodes every event and never fails. An event whose attribute
// payload does not decode keeps only its id, time and type, so
// reconstruction treats it as having no attributes and skips it. An event
// whose envelope does not decode either becomes an empty placeholder. The
// result always has one entry per raw event.
func (d *WorkflowData) Decode() []schema.HistoryEvent {
	events := make([]schema.HistoryEvent, len(d.Events))
	for i, raw := range d.Events {
		if err := json.Unmarshal(raw, &events[i]); err != nil {
			events[i] = decodeEnvelope(raw)
		}
	}
	return events
}

func decodeEnvelope(raw json.RawMessage) schema.HistoryEvent {
	var env struct {
		EventID   schema.EventID   `json:"eventId"`
		EventTime time.Time        `json:"eventTime"`
		EventType schema.EventType `json:"eventType"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return schema.HistoryEvent{}
	}
	return schema.HistoryEvent{EventID: env.EventID, EventTime: env.EventTime, EventType: env.EventType}
}
