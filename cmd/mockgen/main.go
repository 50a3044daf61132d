package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"flowmetrics-mcp/internal/jira"
)

// mockgen generates a synthetic Jira search response (issues with status
// changelogs) for exercising the engine without a live instance.

const jiraTimeLayout = "2006-01-02T15:04:05.000-0700"

var workflowStates = []string{"Backlog", "In Progress", "Review", "Done"}

type generatorConfig struct {
	Scenario string
	Count    int
	Now      time.Time
	rng      *rand.Rand
}

func main() {
	scenario := flag.String("scenario", "stable", "Scenario to generate: stable, chaotic")
	outDir := flag.String("out", "./.cache", "Output directory for mock files")
	count := flag.Int("count", 200, "Number of issues to generate")
	seed := flag.Int64("seed", 42, "Random seed for reproducible fixtures")
	flag.Parse()

	cfg := generatorConfig{
		Scenario: *scenario,
		Count:    *count,
		Now:      time.Now(),
		rng:      rand.New(rand.NewSource(*seed)),
	}

	fmt.Printf("Generating scenario '%s' (Count: %d) to %s...\n", cfg.Scenario, cfg.Count, *outDir)

	response := generate(cfg)
	if err := save(*outDir, cfg.Scenario, response); err != nil {
		fmt.Printf("Failed to save mock data: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Done.")
}

func generate(cfg generatorConfig) *jira.SearchResponse {
	response := &jira.SearchResponse{Total: cfg.Count}

	for i := 0; i < cfg.Count; i++ {
		created := cfg.Now.AddDate(0, 0, -cfg.rng.Intn(180)-1)
		response.Issues = append(response.Issues, generateIssue(cfg, i+1, created))
	}

	return response
}

func generateIssue(cfg generatorConfig, n int, created time.Time) jira.IssueDTO {
	issue := jira.IssueDTO{
		Key: fmt.Sprintf("MOCK-%d", n),
		Fields: jira.FieldsDTO{
			Created: created.Format(jiraTimeLayout),
		},
		Changelog: &jira.ChangelogDTO{},
	}
	issue.Fields.IssueType.Name = "Story"

	// Walk the workflow forward; each issue stops at a random depth so the
	// fixture contains backlog, in-flight and finished work.
	depth := cfg.rng.Intn(len(workflowStates))
	at := created
	for step := 1; step <= depth; step++ {
		at = at.Add(dwell(cfg, step))
		if at.After(cfg.Now) {
			break
		}
		issue.Changelog.Histories = append(issue.Changelog.Histories, jira.HistoryDTO{
			Created: at.Format(jiraTimeLayout),
			Items: []jira.ItemDTO{{
				Field:      "status",
				FromString: workflowStates[step-1],
				ToString:   workflowStates[step],
			}},
		})
		issue.Fields.Status.Name = workflowStates[step]
	}
	if issue.Fields.Status.Name == "" {
		issue.Fields.Status.Name = workflowStates[0]
	}
	if issue.Fields.Status.Name == workflowStates[len(workflowStates)-1] {
		issue.Fields.ResolutionDate = at.Format(jiraTimeLayout)
	}

	// Chaotic scenarios reopen a slice of finished work to exercise
	// backflow handling.
	if cfg.Scenario == "chaotic" && issue.Fields.ResolutionDate != "" && cfg.rng.Float64() < 0.3 {
		reopenAt := at.Add(dwell(cfg, 1))
		redoneAt := reopenAt.Add(dwell(cfg, 2))
		if redoneAt.Before(cfg.Now) {
			issue.Changelog.Histories = append(issue.Changelog.Histories,
				jira.HistoryDTO{
					Created: reopenAt.Format(jiraTimeLayout),
					Items: []jira.ItemDTO{{
						Field:      "status",
						FromString: "Done",
						ToString:   "In Progress",
					}},
				},
				jira.HistoryDTO{
					Created: redoneAt.Format(jiraTimeLayout),
					Items: []jira.ItemDTO{{
						Field:      "status",
						FromString: "In Progress",
						ToString:   "Done",
					}},
				},
			)
			issue.Fields.ResolutionDate = redoneAt.Format(jiraTimeLayout)
		}
	}

	return issue
}

// dwell returns a plausible residency duration. Stable scenarios draw from
// a narrow band; chaotic ones have a fat tail.
func dwell(cfg generatorConfig, step int) time.Duration {
	baseHours := 24.0 * float64(step)
	spread := 0.5
	if cfg.Scenario == "chaotic" {
		spread = 3.0
		if cfg.rng.Float64() < 0.1 {
			baseHours *= 6
		}
	}
	hours := baseHours * (1 + spread*cfg.rng.Float64())
	return time.Duration(hours * float64(time.Hour))
}

func save(outDir, scenario string, response *jira.SearchResponse) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}

	out, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(outDir, fmt.Sprintf("search_%s.json", scenario))
	return os.WriteFile(path, out, 0644)
}
