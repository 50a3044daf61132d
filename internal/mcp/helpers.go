package mcp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"flowmetrics-mcp/internal/flow"
	"flowmetrics-mcp/internal/stats"
)

// workflowArgs carries the query and workflow parameters shared by every
// compute tool.
type workflowArgs struct {
	JQL             string   `json:"jql"`
	ConfigurationID string   `json:"configuration_id"`
	States          []string `json:"states"`
	LeadStart       string   `json:"lead_start,omitempty"`
	LeadEnd         string   `json:"lead_end,omitempty"`
	CycleStart      string   `json:"cycle_start,omitempty"`
	CycleEnd        string   `json:"cycle_end,omitempty"`
	ActiveStates    []string `json:"active_states,omitempty"`
}

// windowArgs selects the analysis window for bucketed metrics.
type windowArgs struct {
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	Bucket    string `json:"bucket,omitempty"`
}

const defaultWindowWeeks = 12

// toWorkflow validates the arguments into an immutable workflow
// configuration. The lead clock ends at the last configured state unless
// overridden.
func toWorkflow(args workflowArgs) (flow.WorkflowConfig, error) {
	if args.JQL == "" {
		return flow.WorkflowConfig{}, fmt.Errorf("jql is required")
	}
	if args.ConfigurationID == "" {
		return flow.WorkflowConfig{}, fmt.Errorf("configuration_id is required")
	}
	if len(args.States) == 0 {
		return flow.WorkflowConfig{}, fmt.Errorf("states must list the workflow states in order")
	}

	cfg := flow.WorkflowConfig{
		ID:           args.ConfigurationID,
		States:       args.States,
		LeadStart:    args.LeadStart,
		LeadEnd:      args.LeadEnd,
		CycleStart:   args.CycleStart,
		CycleEnd:     args.CycleEnd,
		ActiveStates: args.ActiveStates,
	}
	if cfg.LeadEnd == "" {
		cfg.LeadEnd = args.States[len(args.States)-1]
	}

	for _, state := range []string{cfg.LeadStart, cfg.LeadEnd, cfg.CycleStart, cfg.CycleEnd} {
		if state != "" && cfg.Index(state) == -1 {
			return flow.WorkflowConfig{}, fmt.Errorf("state %q is not in the configured workflow", state)
		}
	}

	return cfg, nil
}

// toWindow resolves the analysis window, defaulting to the trailing twelve
// weeks bucketed weekly.
func toWindow(args windowArgs, now time.Time) (stats.AnalysisWindow, error) {
	bucket := args.Bucket
	if bucket == "" {
		bucket = "week"
	}
	switch bucket {
	case "day", "week", "month":
	default:
		return stats.AnalysisWindow{}, fmt.Errorf("bucket must be day, week or month, got %q", bucket)
	}

	end := now
	if args.EndDate != "" {
		parsed, err := time.Parse("2006-01-02", args.EndDate)
		if err != nil {
			return stats.AnalysisWindow{}, fmt.Errorf("invalid end_date %q: %w", args.EndDate, err)
		}
		end = parsed
	}

	start := end.AddDate(0, 0, -defaultWindowWeeks*7)
	if args.StartDate != "" {
		parsed, err := time.Parse("2006-01-02", args.StartDate)
		if err != nil {
			return stats.AnalysisWindow{}, fmt.Errorf("invalid start_date %q: %w", args.StartDate, err)
		}
		start = parsed
	}

	if !start.Before(end) {
		return stats.AnalysisWindow{}, fmt.Errorf("start_date must be before end_date")
	}

	return stats.NewAnalysisWindow(start, end, bucket), nil
}

// textResult wraps a payload as pretty-printed JSON text content.
func textResult(data any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(out)}},
	}, nil
}
