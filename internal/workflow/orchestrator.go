// Package workflow drives a release: it creates the tracking issue, then
// creates and links per-board fix versions in the background.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/robby/stevenson/internal/changelog"
	"github.com/robby/stevenson/internal/config"
	"github.com/robby/stevenson/internal/document"
	"github.com/robby/stevenson/internal/domain"
	"github.com/robby/stevenson/internal/jira"
	"github.com/robby/stevenson/internal/notify"
)

// Ticketing is the subset of the ticketing API the workflow uses.
// *jira.Client satisfies it.
type Ticketing interface {
	CreateIssue(ctx context.Context, fields jira.IssueFields) (domain.CreatedIssue, error)
	CreateVersion(ctx context.Context, record domain.VersionRecord) (domain.VersionRecord, error)
	LinkVersion(ctx context.Context, versionID, ticketKey string) error
	BrowseBase() string
}

// Settings is the immutable configuration of an Orchestrator.
type Settings struct {
	// Boards whitelists boards that receive fix versions.
	Boards config.Boards
	// ProjectKey is the project holding the release issue.
	ProjectKey string
	// IssueType defaults to "Task".
	IssueType string
	Labels    []string
	SDK       changelog.SDKOptions
	// MaxFanOut bounds concurrent goroutines per fan-out level; zero is unbounded.
	MaxFanOut int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithClock overrides the clock used for version start dates.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithPhaseHook is called with the report once Phase 2 completes.
func WithPhaseHook(fn func(domain.Release, domain.FixVersionReport)) Option {
	return func(o *Orchestrator) { o.onReport = fn }
}

// Orchestrator runs release workflows.
type Orchestrator struct {
	tickets  Ticketing
	settings Settings
	log      logr.Logger
	now      func() time.Time
	onReport func(domain.Release, domain.FixVersionReport)
	jobs     *Supervisor
}

// New creates an Orchestrator over tickets.
func New(tickets Ticketing, settings Settings, opts ...Option) *Orchestrator {
	if settings.IssueType == "" {
		settings.IssueType = "Task"
	}
	settings.Labels = append([]string(nil), settings.Labels...)

	o := &Orchestrator{
		tickets:  tickets,
		settings: settings,
		log:      logr.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.jobs = NewSupervisor(o.log.WithName("jobs"))
	return o
}

// Execute creates the release issue and posts its link to channel.
//
// It returns once the issue exists. Fix versions are then created and
// linked by a background job that reports through notifier; that job is
// not cancelled when ctx is. A failed issue creation returns the error and
// starts no background work.
func (o *Orchestrator) Execute(ctx context.Context, commits []string, release domain.Release, channel string, notifier notify.Notifier) (domain.CreatedIssue, error) {
	sections := changelog.Group(commits, release, o.settings.SDK)

	issue, err := o.tickets.CreateIssue(ctx, jira.IssueFields{
		ProjectKey:  o.settings.ProjectKey,
		IssueType:   o.settings.IssueType,
		Summary:     Summary(release),
		Description: document.Render(sections, document.Options{BrowseURL: o.tickets.BrowseBase()}),
		Labels:      o.settings.Labels,
	})
	if err != nil {
		return domain.CreatedIssue{}, fmt.Errorf("failed to create release issue for %s: %w", release.VersionName(), err)
	}

	log := o.log.WithValues("release", release.VersionName(), "issue", issue.Key)
	log.Info("release issue created", "url", issue.URL, "sections", len(sections))
	o.post(ctx, log, notifier, channel, IssueCreatedMessage(release, issue))

	o.jobs.Go(context.WithoutCancel(ctx), "fix-versions "+issue.Key, func(ctx context.Context) error {
		report := o.FixVersions(ctx, sections, release, issue)
		log.Info("fix versions processed", "problems", report.Len())
		if o.onReport != nil {
			o.onReport(release, report)
		}
		o.post(ctx, log, notifier, channel, ReportMessage(release, issue, report))
		return nil
	})

	return issue, nil
}

// Wait blocks until outstanding background jobs have finished or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	return o.jobs.Wait(ctx)
}

// FixVersions creates the release's fix version on every board in sections and
// links the board's tickets to it. Failures never abort siblings; each becomes
// one report message, ordered by board then ticket.
func (o *Orchestrator) FixVersions(ctx context.Context, sections []domain.ChangelogSection, release domain.Release, issue domain.CreatedIssue) domain.FixVersionReport {
	var boards []domain.ChangelogSection
	for _, s := range sections {
		if s.IsUnclassified() || len(changelog.Tickets(s)) == 0 {
			continue
		}
		boards = append(boards, s)
	}

	reports := make([]domain.FixVersionReport, len(boards))
	g := o.group()
	for i, section := range boards {
		g.Go(func() error {
			reports[i] = o.board(ctx, section, release, issue)
			return nil
		})
	}
	_ = g.Wait()

	return domain.NewFixVersionReport().Merge(reports...)
}

func (o *Orchestrator) board(ctx context.Context, section domain.ChangelogSection, release domain.Release, issue domain.CreatedIssue) domain.FixVersionReport {
	board := section.BoardName()
	name := release.VersionName()
	tickets := changelog.Tickets(section)
	log := o.log.WithValues("board", board, "version", name)

	projectID, ok := o.settings.Boards.ProjectID(board)
	if !ok {
		log.Info("board not whitelisted", "tickets", tickets)
		return domain.NewFixVersionReport(notWhitelistedMessage(board, name, tickets))
	}

	version, err := o.tickets.CreateVersion(ctx, domain.VersionRecord{
		ProjectID:   projectID,
		Name:        name,
		Description: fmt.Sprintf("Release tracked in %s", issue.Key),
		StartDate:   o.now(),
	})
	if err != nil {
		log.Error(err, "failed to create fix version")
		return domain.NewFixVersionReport(versionFailedMessage(board, name, err))
	}
	log.V(1).Info("fix version created", "id", version.ID)

	failures := make([]string, len(tickets))
	g := o.group()
	for i, key := range tickets {
		g.Go(func() error {
			if err := o.tickets.LinkVersion(ctx, version.ID, key); err != nil {
				log.Error(err, "failed to link ticket", "ticket", key)
				failures[i] = linkFailedMessage(key, name, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	var messages []string
	for _, m := range failures {
		if m != "" {
			messages = append(messages, m)
		}
	}
	return domain.NewFixVersionReport(messages...)
}

func (o *Orchestrator) group() *errgroup.Group {
	g := new(errgroup.Group)
	if o.settings.MaxFanOut > 0 {
		g.SetLimit(o.settings.MaxFanOut)
	}
	return g
}

func (o *Orchestrator) post(ctx context.Context, log logr.Logger, n notify.Notifier, channel, text string) {
	if n == nil {
		return
	}
	if err := n.Post(ctx, channel, text); err != nil {
		log.Error(err, "failed to post notification", "channel", channel)
	}
}

// Summary is the title of the release issue.
func Summary(release domain.Release) string {
	kind := "Release"
	if release.IsHotfix() {
		kind = "Hotfix"
	}
	return kind + " " + release.VersionName()
}
