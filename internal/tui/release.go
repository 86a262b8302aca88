package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/reflow/truncate"
	"github.com/pkg/browser"

	"github.com/robby/stevenson/internal/domain"
	"github.com/robby/stevenson/internal/store"
	"github.com/robby/stevenson/internal/ticketref"
)

// RunFunc creates the release issue. It returns once Phase 1 is over;
// the report arrives later as a ReportMsg.
type RunFunc func(ctx context.Context) (domain.CreatedIssue, error)

// maxNotes is the number of notifications kept on screen.
const maxNotes = 6

// ReleaseModel follows one release run: the changelog, the tracking issue
// and the notifications posted while fix versions are linked.
type ReleaseModel struct {
	ctx   context.Context
	store *store.Store
	run   RunFunc

	keys     KeyMap
	help     help.Model
	spinner  spinner.Model
	openURL  func(string) error
	showHelp bool

	width  int
	height int
	offset int // first changelog line shown

	status string
}

// NewReleaseModel creates the model. run is started by Init.
func NewReleaseModel(ctx context.Context, st *store.Store, run RunFunc) ReleaseModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return ReleaseModel{
		ctx:     ctx,
		store:   st,
		run:     run,
		keys:    DefaultKeyMap(),
		help:    help.New(),
		spinner: sp,
		openURL: browser.OpenURL,
		status:  "Creating release issue...",
	}
}

// Init starts the spinner and the run.
func (m ReleaseModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start())
}

func (m ReleaseModel) start() tea.Cmd {
	run, ctx := m.run, m.ctx
	return func() tea.Msg {
		issue, err := run(ctx)
		if err != nil {
			return ErrorMsg{Err: err}
		}
		return IssueCreatedMsg{Issue: issue}
	}
}

// Update handles messages.
func (m ReleaseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case IssueCreatedMsg:
		m.store.SetIssue(msg.Issue)
		if !m.store.Done() {
			m.status = fmt.Sprintf("Issue %s created, linking fix versions...", msg.Issue.Key)
		}
		return m, nil

	case ReportMsg:
		m.store.SetReport(msg.Report)
		m.status = reportStatus(msg.Report)
		return m, nil

	case ErrorMsg:
		m.store.Fail(msg.Err)
		m.status = "Release failed"
		return m, nil

	case NotificationMsg:
		return m, nil

	case openedMsg:
		if msg.err != nil {
			m.status = "Could not open browser: " + msg.err.Error()
		}
		return m, nil

	case spinner.TickMsg:
		if m.store.Done() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m ReleaseModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ForceQuit), key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp

	case key.Matches(msg, m.keys.Up):
		if m.offset > 0 {
			m.offset--
		}

	case key.Matches(msg, m.keys.Down):
		if m.offset < len(m.changelogLines())-1 {
			m.offset++
		}

	case key.Matches(msg, m.keys.Open):
		issue, err := m.store.Issue()
		if err != nil {
			return m, nil
		}
		open, url := m.openURL, issue.URL
		return m, func() tea.Msg { return openedMsg{err: open(url)} }
	}

	return m, nil
}

func reportStatus(r domain.FixVersionReport) string {
	if r.OK() {
		return "Fix versions linked"
	}
	return fmt.Sprintf("Fix versions finished with %d problem(s)", r.Len())
}

// View renders the screen.
func (m ReleaseModel) View() string {
	var b strings.Builder

	title := "Release"
	if r, err := m.store.Release(); err == nil {
		title = "Release " + r.VersionName()
	}
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("\n")

	b.WriteString(m.statusLine())
	b.WriteString("\n\n")

	lines := m.changelogLines()
	visible := lines
	if m.offset < len(lines) {
		visible = lines[m.offset:]
	}
	if limit := m.changelogHeight(); limit > 0 && len(visible) > limit {
		visible = visible[:limit]
	}
	b.WriteString(strings.Join(visible, "\n"))
	b.WriteString("\n")

	if notes := m.notificationLines(); len(notes) > 0 {
		b.WriteString(PanelStyle.Render(strings.Join(notes, "\n")))
		b.WriteString("\n")
	}

	if report, ok := m.store.Report(); ok && !report.OK() {
		for _, msg := range report.Messages() {
			b.WriteString(WarnStyle.Render("! " + m.fit(msg, 2)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m ReleaseModel) statusLine() string {
	if err := m.store.Err(); err != nil {
		return ErrorStyle.Render(m.status + ": " + err.Error())
	}
	if report, ok := m.store.Report(); ok {
		line := m.status
		if issue, err := m.store.Issue(); err == nil {
			line += " " + MutedStyle.Render(issue.URL)
		}
		if report.OK() {
			return SuccessStyle.Render("✓ ") + line
		}
		return WarnStyle.Render("! ") + line
	}
	return m.spinner.View() + " " + m.status
}

func (m ReleaseModel) changelogLines() []string {
	var lines []string
	for _, board := range m.store.Boards() {
		msgs, err := m.store.Column(board)
		if err != nil {
			continue
		}
		lines = append(lines, ColumnStyle.Render(fmt.Sprintf("%s (%d)", store.ColumnTitle(board), len(msgs))))
		for _, msg := range msgs {
			lines = append(lines, "  "+EntryStyle.Render("• ")+highlightTickets(m.fit(msg, 4)))
		}
	}
	if len(lines) == 0 {
		lines = append(lines, MutedStyle.Render("No commits in range"))
	}
	return lines
}

func (m ReleaseModel) notificationLines() []string {
	notes := m.store.Notifications()
	if len(notes) > maxNotes {
		notes = notes[len(notes)-maxNotes:]
	}
	lines := make([]string, 0, len(notes))
	for _, n := range notes {
		first, _, _ := strings.Cut(n.Text, "\n")
		lines = append(lines, MutedStyle.Render(n.At.Format("15:04:05")+" "+n.Channel)+" "+m.fit(first, 24))
	}
	return lines
}

// changelogHeight leaves room for the title, status, notifications and help.
func (m ReleaseModel) changelogHeight() int {
	if m.height == 0 {
		return 0
	}
	h := m.height - 6 - maxNotes - 3
	if h < 3 {
		h = 3
	}
	return h
}

func (m ReleaseModel) fit(s string, margin int) string {
	if m.width <= margin {
		return s
	}
	return truncate.StringWithTail(s, uint(m.width-margin), "…")
}

// highlightTickets styles every ticket key in s.
func highlightTickets(s string) string {
	matches := ticketref.FindAll(s)
	if len(matches) == 0 {
		return EntryStyle.Render(s)
	}

	var b strings.Builder
	last := 0
	for _, match := range matches {
		b.WriteString(EntryStyle.Render(s[last:match.KeyStart]))
		b.WriteString(TicketStyle.Render(s[match.KeyStart:match.KeyEnd]))
		last = match.KeyEnd
	}
	b.WriteString(EntryStyle.Render(s[last:]))
	return b.String()
}
