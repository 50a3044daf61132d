package jira

import (
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"
)

// MapIssue transforms a Jira DTO into a normalized domain Issue.
//
// A history entry whose timestamp fails to parse drops only that entry
// (with a warning); the rest of the issue survives. An unparseable
// created date invalidates the whole issue, since every downstream
// interval is anchored on it.
func MapIssue(item IssueDTO) (Issue, error) {
	issue := Issue{
		Key:    item.Key,
		Type:   item.Fields.IssueType.Name,
		Status: item.Fields.Status.Name,
	}

	created, err := ParseTime(item.Fields.Created)
	if err != nil {
		return Issue{}, fmt.Errorf("issue %s has unparseable created date %q: %w", item.Key, item.Fields.Created, err)
	}
	issue.Created = created

	if item.Fields.ResolutionDate != "" {
		if t, err := ParseTime(item.Fields.ResolutionDate); err == nil {
			issue.Resolved = &t
		}
	}

	if item.Changelog != nil {
		issue.Events = extractStatusEvents(item.Key, item.Changelog)
	}

	return issue, nil
}

// extractStatusEvents flattens the changelog into a chronological list of
// status transitions. Jira returns histories in no guaranteed order, so we
// stable-sort by timestamp; entries sharing a timestamp keep encounter order.
func extractStatusEvents(key string, changelog *ChangelogDTO) []StatusChangeEvent {
	var events []StatusChangeEvent

	for _, h := range changelog.Histories {
		hDate, err := ParseTime(h.Created)
		if err != nil {
			log.Warn().Str("issue", key).Str("timestamp", h.Created).Msg("Dropping changelog entry with unparseable timestamp")
			continue
		}

		for _, itm := range h.Items {
			if itm.Field != "status" {
				continue
			}
			events = append(events, StatusChangeEvent{
				Date: hDate,
				From: itm.FromString,
				To:   itm.ToString,
			})
		}
	}

	slices.SortStableFunc(events, func(a, b StatusChangeEvent) int {
		return a.Date.Compare(b.Date)
	})

	return events
}
