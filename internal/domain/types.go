// Package domain defines the normalized domain types for release tracking.
// These types represent the core concepts independent of the Jira and GitHub API structures.
package domain

import "time"

// TicketReference is a board/number pair parsed from commit text.
type TicketReference struct {
	Board  string // Upper-cased project code (e.g., "ABC")
	Number string // Ticket number as written (e.g., "42")
}

// Key returns the ticket key in "<BOARD>-<number>" form.
func (t TicketReference) Key() string {
	return t.Board + "-" + t.Number
}

// ChangelogEntry is one commit message with its optional ticket.
type ChangelogEntry struct {
	Message string           // Raw commit message
	Ticket  *TicketReference // First ticket reference in the message, nil if none
}

// ChangelogSection groups the entries of one board.
// A nil Board is the unclassified section.
type ChangelogSection struct {
	Board   *string
	Entries []ChangelogEntry
}

// IsUnclassified reports whether the section holds commits without a ticket.
func (s ChangelogSection) IsUnclassified() bool {
	return s.Board == nil
}

// BoardName returns the board code, or "" for the unclassified section.
func (s ChangelogSection) BoardName() string {
	if s.Board == nil {
		return ""
	}
	return *s.Board
}

// VersionRecord represents a fix version in the ticketing system.
type VersionRecord struct {
	ID          string    // Jira version ID, empty until created
	ProjectID   int       // Numeric Jira project ID
	Name        string    // Version name (e.g., "app 1.2.0")
	Description string    // Free-form description
	StartDate   time.Time // Day the release started
}

// CreatedIssue is the result of creating a tracking issue.
type CreatedIssue struct {
	ID  string // Jira issue ID
	Key string // Issue key (e.g., "REL-12")
	URL string // Browse URL for humans
}

// Issue is a search result from the ticketing system.
type Issue struct {
	ID      string
	Key     string
	Summary string
	Status  string
}

// PullRequest represents a pull request on the source-control host.
type PullRequest struct {
	Number  int
	Title   string
	Body    string
	URL     string
	HeadRef string // Source branch name
	BaseRef string // Target branch name
	Merged  bool
	NodeID  string // GraphQL node ID, the subject of comments
}

// Commit is one commit in the range being released.
type Commit struct {
	Hash    string
	Subject string // First line of the message
	Author  string
}

// Tag is a release tag and the commit it points to.
type Tag struct {
	Name   string
	Commit string // Commit hash the tag resolves to
}

// Messages returns the subjects of commits, in order.
func Messages(commits []Commit) []string {
	out := make([]string, len(commits))
	for i, c := range commits {
		out[i] = c.Subject
	}
	return out
}
