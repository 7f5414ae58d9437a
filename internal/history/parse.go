package history

import (
	"github.com/rendis/temporal-mcp/pkg/schema"
)

// ParsedHistory is the document returned for a successfully reconstructed
// run.
type ParsedHistory struct {
	Parsed             bool          `json:"parsed"`
	ChronologicalItems []schema.Item `json:"chronologicalItems"`
	Summary            Summary       `json:"summary"`
	RawEventCount      int           `json:"rawEventCount"`
}

// Root returns the root workflow, or nil when the history had none.
func (p *ParsedHistory) Root() *schema.Workflow {
	for _, it := range p.ChronologicalItems {
		if wf, ok := it.(*schema.Workflow); ok && wf.Type == schema.KindWorkflow {
			return wf
		}
	}
	return nil
}

// Parse reconstructs events and summarizes the result.
func Parse(events []schema.HistoryEvent, namespace, runID string) (*ParsedHistory, error) {
	items, err := Reconstruct(events, namespace, runID)
	if err != nil {
		return nil, err
	}
	return &ParsedHistory{
		Parsed:             true,
		ChronologicalItems: items,
		Summary:            Summarize(items, len(events)),
		RawEventCount:      len(events),
	}, nil
}
