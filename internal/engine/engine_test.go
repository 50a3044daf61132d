package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"flowmetrics-mcp/internal/cache"
	"flowmetrics-mcp/internal/flow"
	"flowmetrics-mcp/internal/jira"
	"flowmetrics-mcp/internal/stats"
)

var workflow = flow.WorkflowConfig{
	ID:         "cfg-1",
	States:     []string{"Backlog", "In Progress", "Review", "Done"},
	LeadEnd:    "Done",
	CycleStart: "In Progress",
	CycleEnd:   "Done",
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	issues  []jira.Issue
	err     error
	blockCh chan struct{}
}

func (f *fakeFetcher) FetchIssues(ctx context.Context, jql string) ([]jira.Issue, error) {
	f.mu.Lock()
	f.calls++
	issues, err, block := f.issues, f.err, f.blockCh
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	return issues, err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func workedExampleIssues() []jira.Issue {
	return []jira.Issue{
		{
			Key:     "PROJ-A",
			Created: day(1),
			Events: []jira.StatusChangeEvent{
				{Date: day(3), From: "Backlog", To: "In Progress"},
				{Date: day(6), From: "In Progress", To: "Done"},
			},
		},
		{
			Key:     "PROJ-B",
			Created: day(1),
			Events: []jira.StatusChangeEvent{
				{Date: day(2), From: "Backlog", To: "In Progress"},
			},
		},
	}
}

func newTestEngine(fetcher Fetcher) *Engine {
	e := New(fetcher, cache.New(time.Hour))
	e.now = func() time.Time { return day(8) }
	return e
}

func TestEngine_WorkedExample(t *testing.T) {
	fetcher := &fakeFetcher{issues: workedExampleIssues()}
	e := newTestEngine(fetcher)

	lead, err := e.ComputeLeadTime(context.Background(), "project = PROJ", workflow)
	if err != nil {
		t.Fatalf("ComputeLeadTime failed: %v", err)
	}
	if len(lead.Data) != 1 || lead.Data[0].Days != 5.0 {
		t.Errorf("Lead time sample = %+v, want only PROJ-A at 5 days", lead.Data)
	}
	if lead.Mean != 5.0 {
		t.Errorf("Lead average = %v, want 5.0", lead.Mean)
	}

	wip, err := e.ComputeWIP(context.Background(), "project = PROJ", workflow)
	if err != nil {
		t.Fatalf("ComputeWIP failed: %v", err)
	}
	if wip.Total != 1 {
		t.Errorf("WIP total = %d, want 1 (only PROJ-B is still in flight)", wip.Total)
	}
}

func TestEngine_IdempotentWithinTTL(t *testing.T) {
	fetcher := &fakeFetcher{issues: workedExampleIssues()}
	e := newTestEngine(fetcher)

	var first stats.LeadTimeResult
	for i := 0; i < 3; i++ {
		result, err := e.ComputeLeadTime(context.Background(), "project = PROJ", workflow)
		if err != nil {
			t.Fatalf("Call %d failed: %v", i, err)
		}
		if i == 0 {
			first = result
		} else if result.Mean != first.Mean || len(result.Data) != len(first.Data) {
			t.Errorf("Call %d diverged from the first result", i)
		}
	}

	if fetcher.callCount() != 1 {
		t.Errorf("Upstream fetched %d times for 3 identical requests, want 1", fetcher.callCount())
	}
}

func TestEngine_MetricsShareTheIssuePayload(t *testing.T) {
	fetcher := &fakeFetcher{issues: workedExampleIssues()}
	e := newTestEngine(fetcher)
	window := stats.NewAnalysisWindow(day(1), day(7), "day")

	if _, err := e.ComputeLeadTime(context.Background(), "project = PROJ", workflow); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ComputeThroughput(context.Background(), "project = PROJ", workflow, window); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ComputeCFD(context.Background(), "project = PROJ", workflow, window); err != nil {
		t.Fatal(err)
	}

	if fetcher.callCount() != 1 {
		t.Errorf("Upstream fetched %d times across 3 metrics, want 1 shared payload", fetcher.callCount())
	}
}

func TestEngine_InvalidationTriggersRefetch(t *testing.T) {
	fetcher := &fakeFetcher{issues: workedExampleIssues()}
	e := newTestEngine(fetcher)

	if _, err := e.ComputeLeadTime(context.Background(), "project = PROJ", workflow); err != nil {
		t.Fatal(err)
	}

	removed := e.InvalidateForConfiguration(workflow.ID)
	if removed != 2 {
		t.Errorf("Invalidated %d entries, want 2 (payload + metric)", removed)
	}

	if _, err := e.ComputeLeadTime(context.Background(), "project = PROJ", workflow); err != nil {
		t.Fatal(err)
	}
	if fetcher.callCount() != 2 {
		t.Errorf("Upstream fetched %d times, want a refetch after invalidation", fetcher.callCount())
	}
}

func TestEngine_EmptyMatchYieldsZeroResults(t *testing.T) {
	fetcher := &fakeFetcher{}
	e := newTestEngine(fetcher)

	lead, err := e.ComputeLeadTime(context.Background(), "project = EMPTY", workflow)
	if err != nil {
		t.Fatalf("Empty match must not error: %v", err)
	}
	if lead.Mean != 0 || len(lead.Data) != 0 {
		t.Errorf("Empty match should yield the zero result, got %+v", lead)
	}

	// An empty result is still a successful result and is cached.
	if _, err := e.ComputeLeadTime(context.Background(), "project = EMPTY", workflow); err != nil {
		t.Fatal(err)
	}
	if fetcher.callCount() != 1 {
		t.Errorf("Empty results must be cached, fetched %d times", fetcher.callCount())
	}
}

func TestEngine_PartialDataFlaggedAndNotCached(t *testing.T) {
	fetcher := &fakeFetcher{
		issues: workedExampleIssues(),
		err:    &jira.UpstreamError{Status: 503},
	}
	e := newTestEngine(fetcher)

	lead, err := e.ComputeLeadTime(context.Background(), "project = PROJ", workflow)
	if err != nil {
		t.Fatalf("Partial data must be served, not rejected: %v", err)
	}
	if !lead.Partial {
		t.Error("Result from a partial fetch must carry the partial flag")
	}
	if len(lead.Data) != 1 {
		t.Errorf("Partial result should still include fetched issues, got %d", len(lead.Data))
	}

	// Nothing was cached, so the next request goes upstream again.
	if _, err := e.ComputeLeadTime(context.Background(), "project = PROJ", workflow); err != nil {
		t.Fatal(err)
	}
	if fetcher.callCount() != 2 {
		t.Errorf("Partial results must not be cached, fetched %d times", fetcher.callCount())
	}
}

func TestEngine_TotalFailurePropagatesUncached(t *testing.T) {
	upstream := &jira.UpstreamError{Status: 502}
	fetcher := &fakeFetcher{err: upstream}
	e := newTestEngine(fetcher)

	if _, err := e.ComputeLeadTime(context.Background(), "project = PROJ", workflow); !errors.Is(err, upstream) {
		t.Fatalf("Expected the upstream error, got %v", err)
	}

	// Failures are never cached; a retry reaches upstream.
	fetcher.mu.Lock()
	fetcher.err = nil
	fetcher.issues = workedExampleIssues()
	fetcher.mu.Unlock()

	lead, err := e.ComputeLeadTime(context.Background(), "project = PROJ", workflow)
	if err != nil {
		t.Fatalf("Retry after failure should succeed: %v", err)
	}
	if lead.Mean != 5.0 {
		t.Errorf("Retry result = %+v", lead.Summary)
	}
	if fetcher.callCount() != 2 {
		t.Errorf("Fetched %d times, want 2", fetcher.callCount())
	}
}

func TestEngine_ConcurrentRequestsCoalesce(t *testing.T) {
	block := make(chan struct{})
	fetcher := &fakeFetcher{issues: workedExampleIssues(), blockCh: block}
	e := newTestEngine(fetcher)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.ComputeLeadTime(context.Background(), "project = PROJ", workflow)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(block)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("Caller %d failed: %v", i, err)
		}
	}
	if fetcher.callCount() != 1 {
		t.Errorf("Upstream fetched %d times for %d concurrent callers, want 1", fetcher.callCount(), n)
	}
}

func TestEngine_ConfigurationsAreIsolated(t *testing.T) {
	other := workflow
	other.ID = "cfg-2"
	other.CycleStart = "Review"

	fetcher := &fakeFetcher{issues: workedExampleIssues()}
	e := newTestEngine(fetcher)

	if _, err := e.ComputeLeadTime(context.Background(), "project = PROJ", workflow); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ComputeLeadTime(context.Background(), "project = PROJ", other); err != nil {
		t.Fatal(err)
	}
	if fetcher.callCount() != 2 {
		t.Fatalf("Distinct configurations must not share payloads, fetched %d times", fetcher.callCount())
	}

	// Invalidating one configuration leaves the other cached.
	e.InvalidateForConfiguration(other.ID)
	if _, err := e.ComputeLeadTime(context.Background(), "project = PROJ", workflow); err != nil {
		t.Fatal(err)
	}
	if fetcher.callCount() != 2 {
		t.Errorf("cfg-1 should still be cached, fetched %d times", fetcher.callCount())
	}
}

func TestEngine_FingerprintSeparatesReconfiguredWorkflows(t *testing.T) {
	fetcher := &fakeFetcher{issues: workedExampleIssues()}
	e := newTestEngine(fetcher)

	first, err := e.ComputeCycleTime(context.Background(), "project = PROJ", workflow)
	if err != nil {
		t.Fatal(err)
	}

	// Same ID, different cycle bounds: the metric cache must not serve the
	// old result (the payload layer may still be shared).
	reconfigured := workflow
	reconfigured.CycleStart = "Review"

	second, err := e.ComputeCycleTime(context.Background(), "project = PROJ", reconfigured)
	if err != nil {
		t.Fatal(err)
	}
	if second.StartState != "Review" {
		t.Errorf("Reconfigured cycle start = %q, want Review", second.StartState)
	}
	if first.StartState == second.StartState {
		t.Error("Fingerprint failed to separate the reconfigured workflow")
	}
	if fetcher.callCount() != 1 {
		t.Errorf("Payload layer should be shared for the same ID and JQL, fetched %d times", fetcher.callCount())
	}
}
