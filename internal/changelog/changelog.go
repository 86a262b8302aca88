// Package changelog groups commit messages into per-board changelog sections.
// It handles SDK filtering, board partitioning and deterministic ordering
// behind a single Group call.
package changelog

import (
	"sort"
	"strings"

	"github.com/robby/stevenson/internal/domain"
	"github.com/robby/stevenson/internal/ticketref"
)

// UnclassifiedHeading is the heading used for commits without a ticket.
const UnclassifiedHeading = "Other"

// SDKOptions describes how SDK releases are recognized and filtered.
// The zero value disables SDK filtering.
type SDKOptions struct {
	// AppName is the release app name that marks an SDK release (case-insensitive).
	AppName string
	// Marker is a token that tags a commit as SDK work (e.g., "[SDK]").
	Marker string
	// Boards lists boards whose tickets always count as SDK work.
	Boards []string
}

// Targets reports whether the release is an SDK release.
func (o SDKOptions) Targets(release domain.Release) bool {
	return o.AppName != "" && strings.EqualFold(release.AppName, o.AppName)
}

// Carries reports whether message is tagged as SDK work.
func (o SDKOptions) Carries(message string) bool {
	if o.Marker != "" && strings.Contains(strings.ToLower(message), strings.ToLower(o.Marker)) {
		return true
	}
	ref, ok := ticketref.Parse(message)
	if !ok {
		return false
	}
	for _, b := range o.Boards {
		if strings.EqualFold(b, ref.Board) {
			return true
		}
	}
	return false
}

// Group partitions messages by the board of their first ticket reference.
//
// Sections are sorted by board using ordinal comparison, with the
// unclassified section always last. Entries keep their input order.
// For SDK releases only messages carrying the SDK marker are kept.
func Group(messages []string, release domain.Release, sdk SDKOptions) []domain.ChangelogSection {
	filter := sdk.Targets(release)

	var boards []string
	byBoard := make(map[string][]domain.ChangelogEntry)
	var other []domain.ChangelogEntry

	for _, msg := range messages {
		if filter && !sdk.Carries(msg) {
			continue
		}

		entry := domain.ChangelogEntry{Message: msg, Ticket: ticketref.ParsePtr(msg)}
		if entry.Ticket == nil {
			other = append(other, entry)
			continue
		}

		board := entry.Ticket.Board
		if _, seen := byBoard[board]; !seen {
			boards = append(boards, board)
		}
		byBoard[board] = append(byBoard[board], entry)
	}

	sort.Strings(boards)

	sections := make([]domain.ChangelogSection, 0, len(boards)+1)
	for _, board := range boards {
		b := board
		sections = append(sections, domain.ChangelogSection{Board: &b, Entries: byBoard[board]})
	}
	if len(other) > 0 {
		sections = append(sections, domain.ChangelogSection{Entries: other})
	}
	return sections
}

// Heading returns the display heading of a section.
func Heading(section domain.ChangelogSection) string {
	if section.IsUnclassified() {
		return UnclassifiedHeading
	}
	return section.BoardName() + " tickets"
}

// Tickets returns the distinct ticket keys of a section in first-seen order.
func Tickets(section domain.ChangelogSection) []string {
	seen := make(map[string]bool, len(section.Entries))
	var keys []string
	for _, e := range section.Entries {
		if e.Ticket == nil {
			continue
		}
		key := e.Ticket.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}
