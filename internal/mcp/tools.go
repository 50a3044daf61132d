package mcp

import (
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func workflowProperties() map[string]*jsonschema.Schema {
	return map[string]*jsonschema.Schema{
		"jql": {
			Type:        "string",
			Description: "JQL query selecting the issues to analyze (e.g., 'project = PROJ AND issuetype = Story')",
		},
		"configuration_id": {
			Type:        "string",
			Description: "Identifier of the workflow configuration. Cached results are namespaced and invalidated per configuration.",
		},
		"states": {
			Type:        "array",
			Items:       &jsonschema.Schema{Type: "string"},
			Description: "Workflow states in canonical chronological order (e.g., ['Backlog', 'In Progress', 'Review', 'Done']).",
		},
		"lead_start": {
			Type:        "string",
			Description: "Optional: State where the lead-time clock starts. Default: issue creation.",
		},
		"lead_end": {
			Type:        "string",
			Description: "Optional: Terminal state where the lead-time clock stops. Default: the last configured state.",
		},
		"cycle_start": {
			Type:        "string",
			Description: "Optional: Commitment point where the cycle-time clock starts. Default: the lead start, or creation.",
		},
		"cycle_end": {
			Type:        "string",
			Description: "Optional: State where the cycle-time clock stops. Default: the lead end.",
		},
		"active_states": {
			Type:        "array",
			Items:       &jsonschema.Schema{Type: "string"},
			Description: "Optional: States counted as work in process. Default: every state except the first and the terminal one.",
		},
	}
}

func windowProperties() map[string]*jsonschema.Schema {
	return map[string]*jsonschema.Schema{
		"start_date": {
			Type:        "string",
			Description: "Optional: Window start (YYYY-MM-DD). Default: 12 weeks before the end date.",
		},
		"end_date": {
			Type:        "string",
			Description: "Optional: Window end (YYYY-MM-DD). Default: today.",
		},
		"bucket": {
			Type:        "string",
			Enum:        []any{"day", "week", "month"},
			Description: "Bucket size for the series. Default: week.",
		},
	}
}

func workflowSchema(extra map[string]*jsonschema.Schema) *jsonschema.Schema {
	props := workflowProperties()
	for name, schema := range extra {
		props[name] = schema
	}
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   []string{"jql", "configuration_id", "states"},
	}
}

func (s *Server) registerTools() {
	mcp.AddTool(s.srv, &mcp.Tool{
		Name: "compute_lead_time",
		Description: "Calculate lead time statistics (creation to completion) for the issues matching a JQL query. " +
			"Only issues that reached the terminal state contribute samples; unfinished work is excluded, not counted as zero. " +
			"Results are cached per configuration; a 'partial' flag marks results computed from incomplete upstream data.",
		InputSchema: workflowSchema(nil),
	}, s.handleComputeLeadTime)

	mcp.AddTool(s.srv, &mcp.Tool{
		Name: "compute_cycle_time",
		Description: "Calculate cycle time statistics (commitment point to completion) for the issues matching a JQL query. " +
			"Issues that never entered the start state are excluded. Guidance: set 'cycle_start' to the state where work actually begins, or the numbers will mirror lead time.",
		InputSchema: workflowSchema(nil),
	}, s.handleComputeCycleTime)

	mcp.AddTool(s.srv, &mcp.Tool{
		Name: "compute_throughput",
		Description: "Count completed issues per day, week or month across an analysis window. " +
			"The average is the total divided by the number of buckets, including empty ones.",
		InputSchema: workflowSchema(windowProperties()),
	}, s.handleComputeThroughput)

	mcp.AddTool(s.srv, &mcp.Tool{
		Name: "compute_wip",
		Description: "Snapshot the current work in process: issues sitting in active states right now, broken down per state. " +
			"Completed and not-yet-started work is excluded.",
		InputSchema: workflowSchema(nil),
	}, s.handleComputeWIP)

	mcp.AddTool(s.srv, &mcp.Tool{
		Name: "compute_cfd",
		Description: "Reconstruct the cumulative flow diagram series: per-state issue counts at the end of each bucket in the window. " +
			"Use this to spot growing queues and shrinking delivery bands over time.",
		InputSchema: workflowSchema(windowProperties()),
	}, s.handleComputeCFD)

	mcp.AddTool(s.srv, &mcp.Tool{
		Name: "detect_bottlenecks",
		Description: "Rank workflow states by bottleneck score (average dwell time x issue volume) and report workflow compliance. " +
			"A state is flagged as a candidate when its average dwell exceeds the multiplier times the overall per-state mean.",
		InputSchema: workflowSchema(map[string]*jsonschema.Schema{
			"multiplier": {
				Type:        "number",
				Description: "Optional: Candidate threshold multiplier. Default: 1.5.",
			},
		}),
	}, s.handleDetectBottlenecks)

	mcp.AddTool(s.srv, &mcp.Tool{
		Name: "analyze_wip_stability",
		Description: "Analyze WIP stability with an XmR process behavior chart: daily WIP run chart swept against Natural Process Limits derived from weekly samples. " +
			"Status 'unstable' means the WIP level shows special cause variation and historical flow data is a poor proxy for the future.",
		InputSchema: workflowSchema(windowProperties()),
	}, s.handleAnalyzeWIPStability)

	mcp.AddTool(s.srv, &mcp.Tool{
		Name: "invalidate_configuration",
		Description: "Drop every cached payload and metric computed under a workflow configuration. " +
			"Call this after changing a configuration's states or clock boundaries so stale results cannot be served.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"configuration_id": {
					Type:        "string",
					Description: "Identifier of the configuration to invalidate.",
				},
			},
			Required: []string{"configuration_id"},
		},
	}, s.handleInvalidateConfiguration)
}
