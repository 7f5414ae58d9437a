// Package validation checks upstream Temporal history pages before they are
// accepted by the event source.
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/temporal-mcp/pkg/schema"
)

const historyPageSchemaURL = "https://temporal-mcp.dev/schemas/history-page.json"

// historyPageSchemaJSON describes one page of GetWorkflowExecutionHistory as
// served by the Temporal HTTP API. The page itself only needs a history
// object; events are checked one by one against $defs/event. Attribute
// payloads are left open; only the fields reconstruction keys on are
// constrained.
const historyPageSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://temporal-mcp.dev/schemas/history-page.json",
  "type": "object",
  "required": ["history"],
  "properties": {
    "history": {
      "type": "object",
      "properties": {
        "events": { "type": "array" }
      }
    },
    "nextPageToken": {
      "type": ["string", "null"]
    }
  },
  "$defs": {
    "eventId": {
      "oneOf": [
        { "type": "string", "pattern": "^[0-9]+$" },
        { "type": "integer", "minimum": 0 }
      ]
    },
    "event": {
      "type": "object",
      "required": ["eventId", "eventType"],
      "properties": {
        "eventId": { "$ref": "#/$defs/eventId" },
        "eventType": { "type": "string", "minLength": 1 },
        "eventTime": { "type": "string", "format": "date-time" },
        "activityTaskStartedEventAttributes": { "$ref": "#/$defs/scheduledRef" },
        "activityTaskCompletedEventAttributes": { "$ref": "#/$defs/scheduledRef" },
        "activityTaskFailedEventAttributes": { "$ref": "#/$defs/scheduledRef" },
        "activityTaskTimedOutEventAttributes": { "$ref": "#/$defs/scheduledRef" },
        "activityTaskCanceledEventAttributes": { "$ref": "#/$defs/scheduledRef" },
        "timerStartedEventAttributes": { "$ref": "#/$defs/timerRef" },
        "timerFiredEventAttributes": { "$ref": "#/$defs/timerRef" },
        "timerCanceledEventAttributes": { "$ref": "#/$defs/timerRef" }
      }
    },
    "scheduledRef": {
      "type": "object",
      "properties": {
        "scheduledEventId": { "$ref": "#/$defs/eventId" }
      }
    },
    "timerRef": {
      "type": "object",
      "properties": {
        "timerId": { "type": "string" }
      }
    }
  }
}`

// PageReport describes one accepted history page.
type PageReport struct {
	EventCount    int
	NextPageToken string
	// Issues holds non-fatal findings. It never contains errors.
	Issues *schema.ValidationResult
}

// HistoryValidator validates history pages against an embedded JSON Schema.
// It is safe for concurrent use.
type HistoryValidator struct {
	pageSchema  *jsonschema.Schema
	eventSchema *jsonschema.Schema
}

// NewHistoryValidator compiles the history page schema and its event
// definition.
func NewHistoryValidator() (*HistoryValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(historyPageSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal history page schema: %w", err)
	}
	if err := c.AddResource(historyPageSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add history page schema resource: %w", err)
	}
	page, err := c.Compile(historyPageSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile history page schema: %w", err)
	}
	event, err := c.Compile(historyPageSchemaURL + "#/$defs/event")
	if err != nil {
		return nil, fmt.Errorf("compile history event schema: %w", err)
	}
	return &HistoryValidator{pageSchema: page, eventSchema: event}, nil
}

// ValidatePage checks a raw history page. Only a page that is not JSON, or
// that has no history object, is rejected with a VALIDATION_ERROR. Events
// that break the schema, and structural oddities that reconstruction
// tolerates, are reported as warnings in the PageReport; the page is still
// accepted so the unprocessed history stays available.
func (v *HistoryValidator) ValidatePage(raw []byte) (*PageReport, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "history page is not valid JSON").WithCause(err)
	}
	if err := v.pageSchema.Validate(doc); err != nil {
		return nil, toValidationError(err)
	}

	var page struct {
		History struct {
			Events []json.RawMessage `json:"events"`
		} `json:"history"`
		NextPageToken *string `json:"nextPageToken"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "history page could not be decoded").WithCause(err)
	}

	report := &PageReport{
		EventCount: len(page.History.Events),
		Issues:     &schema.ValidationResult{},
	}
	if page.NextPageToken != nil {
		report.NextPageToken = *page.NextPageToken
	}

	docEvents := pageEvents(doc)
	for i, rawEvent := range page.History.Events {
		path := fmt.Sprintf("/history/events/%d", i)
		var ev pageEvent
		decoded := json.Unmarshal(rawEvent, &ev) == nil

		if i < len(docEvents) {
			if err := v.eventSchema.Validate(docEvents[i]); err != nil {
				addEventViolations(report.Issues, path, ev.EventID, err)
			}
		}
		if decoded {
			checkTimerCancel(report.Issues, path, ev)
		}
	}
	return report, nil
}

// pageEvents digs history.events out of a document that already passed the
// page schema.
func pageEvents(doc any) []any {
	root, _ := doc.(map[string]any)
	history, _ := root["history"].(map[string]any)
	events, _ := history["events"].([]any)
	return events
}

// pageEvent is the slice of an event the structural checks look at.
type pageEvent struct {
	EventID       schema.EventID   `json:"eventId"`
	EventType     schema.EventType `json:"eventType"`
	TimerCanceled json.RawMessage  `json:"timerCanceledEventAttributes"`
	TimerFired    json.RawMessage  `json:"timerFiredEventAttributes"`
}

// checkTimerCancel flags canceled timers whose id is only available through
// the fired attribute shape.
func checkTimerCancel(r *schema.ValidationResult, path string, ev pageEvent) {
	if ev.EventType != schema.EventTimerCanceled {
		return
	}
	switch {
	case len(ev.TimerCanceled) > 0:
		return
	case len(ev.TimerFired) > 0:
		r.AddEventWarning(path, ev.EventID, schema.ErrCodeValidation,
			"timer canceled event carries timerFiredEventAttributes; timer id read from fired shape")
	default:
		r.AddEventWarning(path, ev.EventID, schema.ErrCodeValidation,
			"timer canceled event has no attributes; event will be ignored")
	}
}

// addEventViolations records each leaf violation of one event as a warning
// located under the event's path in the page.
func addEventViolations(r *schema.ValidationResult, path string, id schema.EventID, err error) {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		r.AddEventWarning(path, id, schema.ErrCodeValidation, err.Error())
		return
	}
	for _, leaf := range leafViolations(verr) {
		loc := path
		if len(leaf.InstanceLocation) > 0 {
			loc += "/" + strings.Join(leaf.InstanceLocation, "/")
		}
		r.AddEventWarning(loc, id, schema.ErrCodeValidation, leaf.Error())
	}
}

// toValidationError flattens a jsonschema error tree into a VALIDATION_ERROR
// listing each leaf violation with its instance location.
func toValidationError(err error) error {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	result := &schema.ValidationResult{}
	for _, leaf := range leafViolations(verr) {
		loc := "/"
		if len(leaf.InstanceLocation) > 0 {
			loc = "/" + strings.Join(leaf.InstanceLocation, "/")
		}
		result.AddError(loc, schema.ErrCodeValidation, leaf.Error())
	}
	if result.Valid() {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	return result.ToError()
}

func leafViolations(verr *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(verr.Causes) == 0 {
		return []*jsonschema.ValidationError{verr}
	}
	var out []*jsonschema.ValidationError
	for _, cause := range verr.Causes {
		out = append(out, leafViolations(cause)...)
	}
	return out
}
