package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"flowmetrics-mcp/internal/cache"
	"flowmetrics-mcp/internal/flow"
	"flowmetrics-mcp/internal/jira"
	"flowmetrics-mcp/internal/stats"
)

// Fetcher retrieves the issues matching a JQL query. On failure it may
// return the issues gathered before the error alongside the error itself.
type Fetcher interface {
	FetchIssues(ctx context.Context, jql string) ([]jira.Issue, error)
}

// Engine orchestrates fetch, normalization, metric computation and caching
// for a single Jira instance. All Compute methods are safe for concurrent
// use.
type Engine struct {
	fetcher Fetcher
	cache   *cache.Cache
	now     func() time.Time
}

// New creates an engine over the given fetcher and cache.
func New(fetcher Fetcher, c *cache.Cache) *Engine {
	return &Engine{
		fetcher: fetcher,
		cache:   c,
		now:     time.Now,
	}
}

// partialResult smuggles a value that must not be cached out of a cache
// loader. Every waiter coalesced onto the flight unwraps it back into a
// successful, partial response.
type partialResult struct {
	value any
}

func (p *partialResult) Error() string {
	return "partial upstream data, result not cached"
}

// ComputeLeadTime calculates creation-to-completion statistics for the
// issues matching the query.
func (e *Engine) ComputeLeadTime(ctx context.Context, jql string, cfg flow.WorkflowConfig) (stats.LeadTimeResult, error) {
	v, err := e.run(ctx, cfg, "lead_time", jql, "", func(timelines [][]flow.StateInterval, partial bool) any {
		result := stats.CalculateLeadTime(timelines, cfg)
		result.Partial = partial
		return result
	})
	if err != nil {
		return stats.LeadTimeResult{}, err
	}
	return v.(stats.LeadTimeResult), nil
}

// ComputeCycleTime calculates start-state-to-completion statistics.
func (e *Engine) ComputeCycleTime(ctx context.Context, jql string, cfg flow.WorkflowConfig) (stats.CycleTimeResult, error) {
	v, err := e.run(ctx, cfg, "cycle_time", jql, "", func(timelines [][]flow.StateInterval, partial bool) any {
		result := stats.CalculateCycleTime(timelines, cfg)
		result.Partial = partial
		return result
	})
	if err != nil {
		return stats.CycleTimeResult{}, err
	}
	return v.(stats.CycleTimeResult), nil
}

// ComputeThroughput counts completions per bucket across the window.
func (e *Engine) ComputeThroughput(ctx context.Context, jql string, cfg flow.WorkflowConfig, window stats.AnalysisWindow) (stats.ThroughputResult, error) {
	v, err := e.run(ctx, cfg, "throughput", jql, windowKey(window), func(timelines [][]flow.StateInterval, partial bool) any {
		result := stats.CalculateThroughput(timelines, cfg, window)
		result.Partial = partial
		return result
	})
	if err != nil {
		return stats.ThroughputResult{}, err
	}
	return v.(stats.ThroughputResult), nil
}

// ComputeWIP snapshots the current work in process.
func (e *Engine) ComputeWIP(ctx context.Context, jql string, cfg flow.WorkflowConfig) (stats.WipResult, error) {
	at := e.now()
	v, err := e.run(ctx, cfg, "wip", jql, "", func(timelines [][]flow.StateInterval, partial bool) any {
		result := stats.CalculateWIP(timelines, cfg, at)
		result.Partial = partial
		return result
	})
	if err != nil {
		return stats.WipResult{}, err
	}
	return v.(stats.WipResult), nil
}

// ComputeCFD reconstructs the cumulative flow series across the window.
func (e *Engine) ComputeCFD(ctx context.Context, jql string, cfg flow.WorkflowConfig, window stats.AnalysisWindow) (stats.CFDResult, error) {
	v, err := e.run(ctx, cfg, "cfd", jql, windowKey(window), func(timelines [][]flow.StateInterval, partial bool) any {
		result := stats.CalculateCFD(timelines, cfg, window)
		result.Partial = partial
		return result
	})
	if err != nil {
		return stats.CFDResult{}, err
	}
	return v.(stats.CFDResult), nil
}

// ComputeBottlenecks ranks workflow states by dwell-based bottleneck score
// and reports workflow compliance.
func (e *Engine) ComputeBottlenecks(ctx context.Context, jql string, cfg flow.WorkflowConfig, multiplier float64) (stats.BottleneckResult, error) {
	at := e.now()
	rangeKey := strconv.FormatFloat(multiplier, 'f', -1, 64)
	v, err := e.run(ctx, cfg, "bottlenecks", jql, rangeKey, func(timelines [][]flow.StateInterval, partial bool) any {
		result := stats.DetectBottlenecks(timelines, cfg, multiplier, at)
		result.Partial = partial
		return result
	})
	if err != nil {
		return stats.BottleneckResult{}, err
	}
	return v.(stats.BottleneckResult), nil
}

// ComputeWIPStability runs the XmR process-behavior analysis over the
// daily WIP run chart.
func (e *Engine) ComputeWIPStability(ctx context.Context, jql string, cfg flow.WorkflowConfig, window stats.AnalysisWindow) (stats.WIPStabilityResult, error) {
	v, err := e.run(ctx, cfg, "wip_stability", jql, windowKey(window), func(timelines [][]flow.StateInterval, partial bool) any {
		result := stats.AnalyzeWIPStability(timelines, cfg, window)
		result.Partial = partial
		return result
	})
	if err != nil {
		return stats.WIPStabilityResult{}, err
	}
	return v.(stats.WIPStabilityResult), nil
}

// InvalidateForConfiguration drops every cached payload and metric computed
// under the configuration. Returns the number of entries removed.
func (e *Engine) InvalidateForConfiguration(id string) int {
	return e.cache.InvalidateNamespace(id)
}

// run resolves a metric through the two cache layers: the metric result
// itself, and beneath it the raw issue payload for the query. Partial
// upstream data flows through both layers without being stored.
func (e *Engine) run(ctx context.Context, cfg flow.WorkflowConfig, kind, jql, rangeKey string, compute func(timelines [][]flow.StateInterval, partial bool) any) (any, error) {
	requestID := uuid.NewString()
	logger := log.With().Str("request_id", requestID).Str("metric", kind).Str("jql", jql).Str("config", cfg.ID).Logger()

	key := cache.Key(cfg.ID, "metric", kind, jql, cfg.Fingerprint(), rangeKey)
	v, err := e.cache.Get(ctx, key, func(lctx context.Context) (any, error) {
		timelines, partial, err := e.timelines(lctx, jql, cfg)
		if err != nil {
			return nil, err
		}

		result := compute(timelines, partial)
		if partial {
			return nil, &partialResult{value: result}
		}
		return result, nil
	})
	if err != nil {
		var pr *partialResult
		if errors.As(err, &pr) {
			logger.Warn().Msg("Metric computed from partial upstream data")
			return pr.value, nil
		}
		logger.Error().Err(err).Msg("Metric computation failed")
		return nil, err
	}

	logger.Debug().Msg("Metric resolved")
	return v, nil
}

// timelines loads the issues for the query (through the payload cache
// layer) and normalizes each into its state intervals.
func (e *Engine) timelines(ctx context.Context, jql string, cfg flow.WorkflowConfig) ([][]flow.StateInterval, bool, error) {
	issues, partial, err := e.issues(ctx, jql, cfg)
	if err != nil {
		return nil, false, err
	}

	timelines := make([][]flow.StateInterval, 0, len(issues))
	for _, issue := range issues {
		timelines = append(timelines, flow.Normalize(issue, cfg))
	}
	return timelines, partial, nil
}

func (e *Engine) issues(ctx context.Context, jql string, cfg flow.WorkflowConfig) ([]jira.Issue, bool, error) {
	v, err := e.cache.Get(ctx, cache.Key(cfg.ID, "issues", jql), func(lctx context.Context) (any, error) {
		issues, err := e.fetcher.FetchIssues(lctx, jql)
		if err != nil {
			// Keep what came back before the failure, but never cache it.
			if len(issues) > 0 {
				return nil, &partialResult{value: issues}
			}
			return nil, err
		}
		return issues, nil
	})
	if err != nil {
		var pr *partialResult
		if errors.As(err, &pr) {
			return pr.value.([]jira.Issue), true, nil
		}
		return nil, false, fmt.Errorf("fetching issues for %q: %w", jql, err)
	}
	return v.([]jira.Issue), false, nil
}

func windowKey(w stats.AnalysisWindow) string {
	return w.Start.Format(time.RFC3339) + "|" + w.End.Format(time.RFC3339) + "|" + w.Bucket
}
