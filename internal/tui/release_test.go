package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robby/stevenson/internal/changelog"
	"github.com/robby/stevenson/internal/domain"
	"github.com/robby/stevenson/internal/store"
)

var testIssue = domain.CreatedIssue{ID: "1", Key: "REL-7", URL: "https://acme.atlassian.net/browse/REL-7"}

// createTestStore creates a store with a grouped changelog.
func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	release, err := domain.NewRelease("acme/mobile", "release/app/1.0.0", "app")
	require.NoError(t, err)

	st := store.New()
	st.SetRelease(release)
	st.SetSections(changelog.Group([]string{"[ABC-1] a", "[DEF-2] b", "[ABC-3] c", "chore: bump deps"}, release, changelog.SDKOptions{}))
	return st
}

func createTestModel(t *testing.T, run RunFunc) (ReleaseModel, *store.Store) {
	t.Helper()
	st := createTestStore(t)
	m := NewReleaseModel(context.Background(), st, run)
	model, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return model.(ReleaseModel), st
}

func update(t *testing.T, m ReleaseModel, msg tea.Msg) (ReleaseModel, tea.Cmd) {
	t.Helper()
	model, cmd := m.Update(msg)
	return model.(ReleaseModel), cmd
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestReleaseModel_StartRunsWorkflow(t *testing.T) {
	m, _ := createTestModel(t, func(context.Context) (domain.CreatedIssue, error) {
		return testIssue, nil
	})

	msg := m.start()()
	assert.Equal(t, IssueCreatedMsg{Issue: testIssue}, msg)

	failing, _ := createTestModel(t, func(context.Context) (domain.CreatedIssue, error) {
		return domain.CreatedIssue{}, errors.New("jira down")
	})
	msg = failing.start()()
	require.IsType(t, ErrorMsg{}, msg)
	assert.EqualError(t, msg.(ErrorMsg).Err, "jira down")
}

func TestReleaseModel_Lifecycle(t *testing.T) {
	m, st := createTestModel(t, nil)

	view := m.View()
	assert.Contains(t, view, "Release app 1.0.0")
	assert.Contains(t, view, "Creating release issue")
	assert.Contains(t, view, "ABC tickets (2)")
	assert.Contains(t, view, "DEF tickets (1)")
	assert.Contains(t, view, "Other (1)")

	m, _ = update(t, m, IssueCreatedMsg{Issue: testIssue})
	issue, err := st.Issue()
	require.NoError(t, err)
	assert.Equal(t, "REL-7", issue.Key)
	assert.Contains(t, m.View(), "Issue REL-7 created")

	n := Notifier{Store: st, Now: func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) }}
	require.NoError(t, n.Post(context.Background(), "#releases", "Created release issue REL-7"))
	m, _ = update(t, m, NotificationMsg{})
	assert.Contains(t, m.View(), "09:00:00 #releases")

	m, _ = update(t, m, ReportMsg{Report: domain.NewFixVersionReport("Failed to link DEF-2")})
	view = m.View()
	assert.Contains(t, view, "1 problem(s)")
	assert.Contains(t, view, "! Failed to link DEF-2")
	assert.True(t, st.Done())

	_, cmd := update(t, m, m.spinner.Tick())
	assert.Nil(t, cmd, "spinner stops once the run is done")
}

func TestReleaseModel_Error(t *testing.T) {
	m, st := createTestModel(t, nil)

	m, _ = update(t, m, ErrorMsg{Err: errors.New("transport failed")})
	assert.Error(t, st.Err())
	assert.Contains(t, m.View(), "Release failed: transport failed")
}

func TestReleaseModel_OpenIssue(t *testing.T) {
	m, _ := createTestModel(t, nil)
	var opened string
	m.openURL = func(url string) error {
		opened = url
		return nil
	}

	_, cmd := update(t, m, keyMsg("o"))
	assert.Nil(t, cmd, "nothing to open before the issue exists")

	m, _ = update(t, m, IssueCreatedMsg{Issue: testIssue})
	_, cmd = update(t, m, keyMsg("o"))
	require.NotNil(t, cmd)
	assert.Equal(t, openedMsg{}, cmd())
	assert.Equal(t, testIssue.URL, opened)
}

func TestReleaseModel_Keys(t *testing.T) {
	m, _ := createTestModel(t, nil)

	m, _ = update(t, m, keyMsg("j"))
	assert.Equal(t, 1, m.offset)
	m, _ = update(t, m, keyMsg("k"))
	m, _ = update(t, m, keyMsg("k"))
	assert.Equal(t, 0, m.offset)

	m, _ = update(t, m, keyMsg("?"))
	assert.True(t, m.showHelp)
	assert.Contains(t, m.View(), "scroll down")

	_, cmd := update(t, m, keyMsg("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestHighlightTickets(t *testing.T) {
	out := highlightTickets("[ABC-1] fix ABC-2")
	assert.Contains(t, out, "ABC-1")
	assert.Contains(t, out, "ABC-2")
	assert.True(t, strings.Contains(out, "fix"))
	assert.Equal(t, EntryStyle.Render("plain"), highlightTickets("plain"))
}

func TestNotifier_Sends(t *testing.T) {
	st := store.New()
	var sent []tea.Msg
	n := Notifier{Store: st, Send: func(msg tea.Msg) { sent = append(sent, msg) }}

	require.NoError(t, n.Post(context.Background(), "#r", "hello"))
	require.Len(t, sent, 1)
	assert.Equal(t, "hello", sent[0].(NotificationMsg).Notification.Text)
	assert.Len(t, st.Notifications(), 1)
}
