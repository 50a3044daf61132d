package jira

import (
	"testing"
	"time"
)

func historyEntry(ts, from, to string) HistoryDTO {
	return HistoryDTO{
		Created: ts,
		Items: []ItemDTO{
			{Field: "status", FromString: from, ToString: to},
		},
	}
}

func TestMapIssue_SortsEventsChronologically(t *testing.T) {
	dto := IssueDTO{
		Key: "PROJ-1",
		Fields: FieldsDTO{
			Created: "2024-01-01T09:00:00.000+0000",
		},
		Changelog: &ChangelogDTO{
			Histories: []HistoryDTO{
				historyEntry("2024-01-05T10:00:00.000+0000", "In Progress", "Done"),
				historyEntry("2024-01-02T10:00:00.000+0000", "Backlog", "In Progress"),
			},
		},
	}

	issue, err := MapIssue(dto)
	if err != nil {
		t.Fatalf("MapIssue returned error: %v", err)
	}

	if len(issue.Events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(issue.Events))
	}
	if issue.Events[0].To != "In Progress" || issue.Events[1].To != "Done" {
		t.Errorf("Events not sorted chronologically: %+v", issue.Events)
	}
	if !issue.Created.Equal(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected created date: %v", issue.Created)
	}
}

func TestMapIssue_SameTimestampKeepsEncounterOrder(t *testing.T) {
	ts := "2024-01-02T10:00:00.000+0000"
	dto := IssueDTO{
		Key:    "PROJ-2",
		Fields: FieldsDTO{Created: "2024-01-01T00:00:00.000+0000"},
		Changelog: &ChangelogDTO{
			Histories: []HistoryDTO{
				historyEntry(ts, "Backlog", "In Progress"),
				historyEntry(ts, "In Progress", "Review"),
			},
		},
	}

	issue, err := MapIssue(dto)
	if err != nil {
		t.Fatalf("MapIssue returned error: %v", err)
	}

	if issue.Events[0].To != "In Progress" || issue.Events[1].To != "Review" {
		t.Errorf("Stable order violated for equal timestamps: %+v", issue.Events)
	}
}

func TestMapIssue_DropsUnparseableHistoryEntry(t *testing.T) {
	dto := IssueDTO{
		Key:    "PROJ-3",
		Fields: FieldsDTO{Created: "2024-01-01T00:00:00.000+0000"},
		Changelog: &ChangelogDTO{
			Histories: []HistoryDTO{
				historyEntry("not-a-timestamp", "Backlog", "In Progress"),
				historyEntry("2024-01-03T10:00:00.000+0000", "In Progress", "Done"),
			},
		},
	}

	issue, err := MapIssue(dto)
	if err != nil {
		t.Fatalf("MapIssue returned error: %v", err)
	}

	if len(issue.Events) != 1 {
		t.Fatalf("Expected 1 surviving event, got %d", len(issue.Events))
	}
	if issue.Events[0].To != "Done" {
		t.Errorf("Wrong surviving event: %+v", issue.Events[0])
	}
}

func TestMapIssue_UnparseableCreatedFailsIssue(t *testing.T) {
	dto := IssueDTO{
		Key:    "PROJ-4",
		Fields: FieldsDTO{Created: "garbage"},
	}

	if _, err := MapIssue(dto); err == nil {
		t.Fatal("Expected error for unparseable created date")
	}
}

func TestMapIssue_IgnoresNonStatusItems(t *testing.T) {
	dto := IssueDTO{
		Key:    "PROJ-5",
		Fields: FieldsDTO{Created: "2024-01-01T00:00:00.000+0000"},
		Changelog: &ChangelogDTO{
			Histories: []HistoryDTO{
				{
					Created: "2024-01-02T10:00:00.000+0000",
					Items: []ItemDTO{
						{Field: "assignee", FromString: "alice", ToString: "bob"},
						{Field: "status", FromString: "Backlog", ToString: "In Progress"},
					},
				},
			},
		},
	}

	issue, err := MapIssue(dto)
	if err != nil {
		t.Fatalf("MapIssue returned error: %v", err)
	}
	if len(issue.Events) != 1 {
		t.Fatalf("Expected only the status item to produce an event, got %d", len(issue.Events))
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"30", 30 * time.Second},
		{"", 0},
		{"abc", 0},
		{"-5", 0},
	}

	for _, tt := range tests {
		if got := parseRetryAfter(tt.header); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}
