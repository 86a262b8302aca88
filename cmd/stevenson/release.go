package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/robby/stevenson/internal/changelog"
	"github.com/robby/stevenson/internal/domain"
	"github.com/robby/stevenson/internal/notify"
	"github.com/robby/stevenson/internal/store"
	"github.com/robby/stevenson/internal/tui"
	"github.com/robby/stevenson/internal/workflow"
)

type releaseFlags struct {
	rangeFlags
	channel string
	open    bool
	plain   bool
	wait    time.Duration
}

func newReleaseCmd(a *app) *cobra.Command {
	f := &releaseFlags{}
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Create the release issue and link fix versions",
		Long: `release collects the commits of a release branch, creates the Jira release issue
with a changelog grouped by board, and then creates and links a fix version on
every whitelisted board. Problems during linking are reported, not fatal.`,
		Example: `  stevenson release --repo acme/mobile --branch release/app/1.2.0 --app app
  stevenson release --repo acme/mobile --pr 42 --plain
  stevenson release --repo acme/mobile --branch hotfix/1.2.1 --source git --path ~/src/mobile`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRelease(cmd.Context(), f)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&f.channel, "channel", "", "Notification channel (default from config)")
	cmd.Flags().BoolVar(&f.open, "open", false, "Open the release issue in a browser")
	cmd.Flags().BoolVar(&f.plain, "plain", false, "Print progress as text instead of the interactive view")
	cmd.Flags().DurationVar(&f.wait, "wait", 10*time.Minute, "How long to wait for fix versions before exiting")
	return cmd
}

func (a *app) runRelease(parent context.Context, f *releaseFlags) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := a.openSource(&f.rangeFlags)
	if err != nil {
		return err
	}
	release, commits, err := a.resolveRelease(ctx, src, &f.rangeFlags)
	if err != nil {
		return err
	}

	client, err := a.jiraClient()
	if err != nil {
		return err
	}
	defer client.Close()

	channel := f.channel
	if channel == "" {
		channel = a.cfg.Notify.Channel
	}

	st := store.New()
	st.SetRelease(release)
	st.SetSections(changelog.Group(commits, release, a.sdkOptions()))

	var program *tea.Program
	send := func(msg tea.Msg) {
		if program != nil {
			program.Send(msg)
		}
	}

	orch := workflow.New(client, workflow.Settings{
		Boards:     a.cfg.Boards,
		ProjectKey: a.cfg.Jira.TrackingProject,
		IssueType:  a.cfg.Jira.IssueType,
		Labels:     a.cfg.Jira.Labels,
		SDK:        a.sdkOptions(),
		MaxFanOut:  a.cfg.Workflow.MaxFanOut,
	},
		workflow.WithLogger(a.log.WithName("workflow")),
		workflow.WithPhaseHook(func(_ domain.Release, report domain.FixVersionReport) {
			st.SetReport(report)
			send(tui.ReportMsg{Report: report})
		}),
	)

	var notifier notify.Notifier
	if f.plain {
		notifier = notify.Multi{notify.NewWriter(os.Stdout), notify.Log{Logger: a.log.WithName("notify")}}
	} else {
		notifier = notify.Multi{tui.Notifier{Store: st, Send: send}, notify.Log{Logger: a.log.WithName("notify")}}
	}

	execute := func(ctx context.Context) (domain.CreatedIssue, error) {
		issue, err := orch.Execute(ctx, commits, release, channel, notifier)
		if err != nil {
			return issue, err
		}
		a.afterIssue(ctx, src, f, issue)
		return issue, nil
	}

	if f.plain {
		issue, err := execute(ctx)
		if err != nil {
			return err
		}
		st.SetIssue(issue)
	} else {
		program = tea.NewProgram(tui.NewReleaseModel(ctx, st, execute), tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("program error: %w", err)
		}
		if err := st.Err(); err != nil {
			return err
		}
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), f.wait)
	defer cancel()
	if !st.Done() {
		fmt.Fprintln(os.Stderr, "Waiting for fix versions...")
	}
	if err := orch.Wait(waitCtx); err != nil {
		return err
	}

	fmt.Print(st.Summary())
	return nil
}

// afterIssue comments on the release pull request and opens the issue.
// Both are best effort.
func (a *app) afterIssue(ctx context.Context, src source, f *releaseFlags, issue domain.CreatedIssue) {
	if f.pr > 0 {
		if commenter, ok := src.(interface {
			CommentOnPullRequest(ctx context.Context, repo string, number int, body string) error
		}); ok {
			body := fmt.Sprintf("Release issue: [%s](%s)", issue.Key, issue.URL)
			if err := commenter.CommentOnPullRequest(ctx, f.repo, f.pr, body); err != nil {
				a.log.Error(err, "failed to comment on pull request", "pr", f.pr)
			}
		}
	}
	if f.open {
		if err := browser.OpenURL(issue.URL); err != nil {
			a.log.Error(err, "failed to open browser", "url", issue.URL)
		}
	}
}
