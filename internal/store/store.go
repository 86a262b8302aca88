// Package store holds the in-memory state of one release run: the changelog
// grouped into board columns, the tracking issue, notifications and the
// fix version report. It is safe for concurrent use; background jobs write
// while the UI reads.
package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robby/stevenson/internal/changelog"
	"github.com/robby/stevenson/internal/domain"
)

var (
	// ErrNoRelease indicates no release has been set in the store.
	ErrNoRelease = errors.New("no release set")
	// ErrNoIssue indicates the tracking issue has not been created yet.
	ErrNoIssue = errors.New("no release issue yet")
	// ErrUnknownBoard indicates the requested board has no column.
	ErrUnknownBoard = errors.New("unknown board")
)

// OtherKey is the column key for commits without a ticket.
const OtherKey = "_other_"

// Notification is one message posted during the run.
type Notification struct {
	Channel string
	Text    string
	At      time.Time
}

// Store manages the state of a release run.
type Store struct {
	mu sync.RWMutex

	release *domain.Release

	// Column mapping: board -> entry messages, OtherKey holds unclassified ones.
	columns map[string][]string
	order   []string
	tickets map[string][]string // board -> distinct ticket keys

	issue  *domain.CreatedIssue
	notes  []Notification
	report *domain.FixVersionReport
	err    error
}

// New creates a new empty Store instance.
func New() *Store {
	return &Store{
		columns: make(map[string][]string),
		tickets: make(map[string][]string),
	}
}

// SetRelease sets the release being run.
func (s *Store) SetRelease(r domain.Release) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.release = &r
}

// Release returns the current release.
func (s *Store) Release() (domain.Release, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.release == nil {
		return domain.Release{}, ErrNoRelease
	}
	return *s.release, nil
}

// SetSections replaces the changelog columns. Section order is preserved,
// so the unclassified column stays last.
func (s *Store) SetSections(sections []domain.ChangelogSection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.columns = make(map[string][]string, len(sections))
	s.tickets = make(map[string][]string, len(sections))
	s.order = s.order[:0]

	for _, section := range sections {
		key := OtherKey
		if !section.IsUnclassified() {
			key = section.BoardName()
			s.tickets[key] = changelog.Tickets(section)
		}
		if _, seen := s.columns[key]; !seen {
			s.order = append(s.order, key)
		}
		for _, e := range section.Entries {
			s.columns[key] = append(s.columns[key], e.Message)
		}
	}
}

// Boards returns the column keys in display order.
func (s *Store) Boards() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Column returns the messages of a board column.
func (s *Store) Column(board string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs, ok := s.columns[board]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBoard, board)
	}
	return append([]string(nil), msgs...), nil
}

// Tickets returns the distinct ticket keys of a board.
func (s *Store) Tickets(board string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.tickets[board]...)
}

// TicketCount is the number of distinct tickets across all boards.
func (s *Store) TicketCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, keys := range s.tickets {
		n += len(keys)
	}
	return n
}

// ColumnTitle returns the display title of a column key.
func ColumnTitle(key string) string {
	if key == OtherKey {
		return changelog.UnclassifiedHeading
	}
	return key + " tickets"
}

// SetIssue records the created tracking issue.
func (s *Store) SetIssue(issue domain.CreatedIssue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issue = &issue
}

// Issue returns the tracking issue.
func (s *Store) Issue() (domain.CreatedIssue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.issue == nil {
		return domain.CreatedIssue{}, ErrNoIssue
	}
	return *s.issue, nil
}

// AddNotification appends a notification.
func (s *Store) AddNotification(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, n)
}

// Notifications returns a copy of all notifications, oldest first.
func (s *Store) Notifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Notification(nil), s.notes...)
}

// SetReport records the fix version report, which ends the run.
func (s *Store) SetReport(r domain.FixVersionReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = &r
}

// Report returns the fix version report, if the run has finished.
func (s *Store) Report() (domain.FixVersionReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.report == nil {
		return domain.FixVersionReport{}, false
	}
	return *s.report, true
}

// Fail records a fatal error, which ends the run.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Err returns the fatal error, if any.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Done reports whether the run has finished, successfully or not.
func (s *Store) Done() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err != nil || s.report != nil
}

// Summary renders the run as plain text.
func (s *Store) Summary() string {
	var b strings.Builder

	if r, err := s.Release(); err == nil {
		fmt.Fprintf(&b, "Release %s (%s)\n", r.VersionName(), r.BranchName)
	}
	for _, key := range s.Boards() {
		msgs, _ := s.Column(key)
		fmt.Fprintf(&b, "%s (%d)\n", ColumnTitle(key), len(msgs))
		for _, m := range msgs {
			fmt.Fprintf(&b, "  - %s\n", m)
		}
	}
	if issue, err := s.Issue(); err == nil {
		fmt.Fprintf(&b, "Issue: %s %s\n", issue.Key, issue.URL)
	}
	if err := s.Err(); err != nil {
		fmt.Fprintf(&b, "Error: %v\n", err)
	}
	if report, ok := s.Report(); ok {
		if report.OK() {
			b.WriteString("Fix versions: ok\n")
		} else {
			fmt.Fprintf(&b, "Fix versions: %d problem(s)\n", report.Len())
			for _, m := range report.Messages() {
				fmt.Fprintf(&b, "  ! %s\n", m)
			}
		}
	}
	return b.String()
}
