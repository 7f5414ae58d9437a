package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/temporal-mcp/internal/expressions"
	"github.com/rendis/temporal-mcp/internal/history"
	"github.com/rendis/temporal-mcp/internal/temporal"
	"github.com/rendis/temporal-mcp/internal/validation"
)

type reconstructOptions struct {
	namespace      string
	runID          string
	summaryOnly    bool
	filter         string
	filterLanguage string
	jq             string
}

func reconstructCmd() *cobra.Command {
	opts := &reconstructOptions{}
	cmd := &cobra.Command{
		Use:   "reconstruct <history.json>",
		Short: "Reconstruct a saved workflow history offline",
		Long: `Reconstruct a saved workflow history and print the parsed document.

The file may hold a history page ({"history":{"events":[...]}}), a bare
{"events":[...]} object, or an array of events. Use "-" to read stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			return runReconstruct(cmd.Context(), raw, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.namespace, "namespace", "default", "namespace recorded on the items")
	cmd.Flags().StringVar(&opts.runID, "run-id", "", "run id recorded on the items")
	cmd.Flags().BoolVar(&opts.summaryOnly, "summary-only", false, "print only the summary")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "boolean expression over item")
	cmd.Flags().StringVar(&opts.filterLanguage, "filter-language", "cel", "filter language: cel or expr")
	cmd.Flags().StringVar(&opts.jq, "jq", "", "jq program applied to the output")
	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return data, nil
}

func runReconstruct(ctx context.Context, raw []byte, opts *reconstructOptions, stdout, stderr io.Writer) error {
	events, err := extractEvents(raw)
	if err != nil {
		return err
	}
	if events == nil {
		events = []json.RawMessage{}
	}

	validator, err := validation.NewHistoryValidator()
	if err != nil {
		return err
	}
	page, err := json.Marshal(map[string]any{"history": map[string]any{"events": events}})
	if err != nil {
		return fmt.Errorf("encode history page: %w", err)
	}
	report, err := validator.ValidatePage(page)
	if err != nil {
		return err
	}
	for _, w := range report.Issues.Warnings {
		fmt.Fprintf(stderr, "warning: %s: %s\n", w.Path, w.Message)
	}

	data := &temporal.WorkflowData{Events: events}
	parsed, err := history.Parse(data.Decode(), opts.namespace, opts.runID)
	if err != nil {
		return err
	}

	registry, err := expressions.NewRegistry()
	if err != nil {
		return err
	}
	if opts.filter != "" {
		engine, err := registry.Filter(opts.filterLanguage)
		if err != nil {
			return err
		}
		if parsed.ChronologicalItems, err = expressions.FilterItems(ctx, engine, opts.filter, parsed.ChronologicalItems); err != nil {
			return err
		}
	}

	var out any = parsed
	if opts.summaryOnly {
		out = parsed.Summary
	}
	if opts.jq != "" {
		if out, err = expressions.Project(ctx, registry.JQ(), opts.jq, out); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// extractEvents accepts the three shapes a saved history comes in.
func extractEvents(raw []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var events []json.RawMessage
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, fmt.Errorf("decode event array: %w", err)
		}
		return events, nil
	}

	var doc struct {
		History *struct {
			Events []json.RawMessage `json:"events"`
		} `json:"history"`
		Events []json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("decode history document: %w", err)
	}
	if doc.History != nil {
		return doc.History.Events, nil
	}
	if doc.Events != nil {
		return doc.Events, nil
	}
	return nil, fmt.Errorf("no events found: expected history.events, events, or an array")
}
