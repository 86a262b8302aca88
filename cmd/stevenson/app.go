package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/robby/stevenson/internal/auth"
	"github.com/robby/stevenson/internal/changelog"
	"github.com/robby/stevenson/internal/config"
	"github.com/robby/stevenson/internal/dispatch"
	"github.com/robby/stevenson/internal/domain"
	"github.com/robby/stevenson/internal/gh"
	"github.com/robby/stevenson/internal/gitlog"
	"github.com/robby/stevenson/internal/jira"
)

// app carries global flags and lazily built dependencies.
type app struct {
	configPath string
	verbose    bool
	jiraToken  string

	cfg  *config.Config
	log  logr.Logger
	zap  *zap.Logger
	stat *dispatch.MemoryStatsStore
	rdb  *redis.Client
}

// source is where commits and tags come from.
type source interface {
	ListReleaseTags(ctx context.Context, repo string, limit int) ([]domain.Tag, error)
	ListCommits(ctx context.Context, repo, from, to string) ([]domain.Commit, error)
	GetPullRequest(ctx context.Context, repo string, number int) (domain.PullRequest, error)
}

// rangeFlags select the commits of a release.
type rangeFlags struct {
	repo     string
	branch   string
	appName  string
	from     string
	to       string
	source   string
	repoPath string
	pr       int
}

func (f *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.repo, "repo", "", "Repository as owner/name")
	cmd.Flags().StringVar(&f.branch, "branch", "", "Release branch, e.g. release/app/1.2.0. Defaults to the head branch of --pr.")
	cmd.Flags().StringVar(&f.appName, "app", "", "App name for multi-app repositories")
	cmd.Flags().StringVar(&f.from, "from", "", "Lower bound of the commit range. Defaults to the previous release tag.")
	cmd.Flags().StringVar(&f.to, "to", "", "Upper bound of the commit range. Defaults to the release branch.")
	cmd.Flags().StringVar(&f.source, "source", "github", "Where to read commits: github or git")
	cmd.Flags().StringVar(&f.repoPath, "path", ".", "Local clone used with --source git")
	cmd.Flags().IntVar(&f.pr, "pr", 0, "Release pull request number")
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "stevenson",
		Short: "Release bot for Jira-tracked mobile releases",
		Long: `stevenson turns the commits of a release branch into a Jira release issue,
then creates a fix version on every whitelisted board and links the tickets.

Authentication:
  GitHub: 'gh auth login' (preferred) or GITHUB_TOKEN
  Jira:   JIRA_API_TOKEN (or --jira-token) plus jira.email in the config

Configuration is read from stevenson.yaml unless --config is given.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to the YAML configuration (default stevenson.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&a.jiraToken, "jira-token", "", "Jira API token (default $JIRA_API_TOKEN)")

	root.AddCommand(newReleaseCmd(a), newChangelogCmd(a), newTicketsCmd(a))
	return root
}

func (a *app) setup() error {
	z, err := newZap(a.verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.zap = z
	a.log = zapr.NewLogger(z)

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log.V(1).Info("configuration loaded", "boards", cfg.Boards.Codes(), "jira", cfg.Jira.BaseURL)
	return nil
}

func newZap(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	return cfg.Build()
}

func (a *app) teardown() {
	if a.stat != nil {
		total := a.stat.Total()
		a.log.V(1).Info("jira dispatcher stats", "accepted", total.Accepted, "rejected", total.Rejected, "failed", total.Failed)
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.zap != nil {
		_ = a.zap.Sync()
	}
}

// jiraClient builds the Jira client and its dispatcher from configuration.
func (a *app) jiraClient() (*jira.Client, error) {
	if err := a.cfg.RequireJira(); err != nil {
		return nil, err
	}
	token, err := auth.JiraToken(a.jiraToken)
	if err != nil {
		return nil, err
	}

	a.stat = dispatch.NewMemoryStatsStore()
	stats := dispatch.MultiStats{a.stat}
	if addr := a.cfg.Stats.RedisAddr; addr != "" {
		a.rdb = redis.NewClient(&redis.Options{Addr: addr})
		stats = append(stats, dispatch.NewRedisStatsStore(a.rdb,
			dispatch.WithStatsPrefix(a.cfg.Stats.Prefix),
			dispatch.WithStatsTTL(a.cfg.Stats.TTL),
		))
	}

	opts := []jira.Option{
		jira.WithLogger(a.log),
		jira.WithFallbackDelay(a.cfg.RateLimit.FallbackDelay),
		jira.WithMaxAttempts(a.cfg.RateLimit.MaxAttempts),
		jira.WithStats(stats),
	}
	if rps := a.cfg.RateLimit.RPS; rps > 0 {
		opts = append(opts, jira.WithLimiter(rate.NewLimiter(rate.Limit(rps), a.cfg.RateLimit.Burst)))
	}

	return jira.New(jira.Config{
		BaseURL: a.cfg.Jira.BaseURL,
		Email:   a.cfg.Jira.Email,
		Token:   token,
	}, opts...)
}

func (a *app) openSource(f *rangeFlags) (source, error) {
	switch strings.ToLower(f.source) {
	case "github", "":
		token, err := auth.GitHubToken()
		if err != nil {
			return nil, err
		}
		return gh.NewWithEndpoint(a.cfg.GitHub.Endpoint, token), nil
	case "git":
		return gitlog.Collector{RepoPath: f.repoPath}, nil
	default:
		return nil, domain.InvalidParameter("source", fmt.Sprintf("%q is not one of github, git", f.source))
	}
}

func (a *app) sdkOptions() changelog.SDKOptions {
	return changelog.SDKOptions{
		AppName: a.cfg.SDK.App,
		Marker:  a.cfg.SDK.Marker,
		Boards:  a.cfg.SDK.Boards,
	}
}

// resolveRelease validates the flags and collects the release commits.
func (a *app) resolveRelease(ctx context.Context, src source, f *rangeFlags) (domain.Release, []string, error) {
	if f.repo == "" {
		return domain.Release{}, nil, domain.MissingParameter("repo")
	}

	branch := f.branch
	if branch == "" && f.pr > 0 {
		pr, err := src.GetPullRequest(ctx, f.repo, f.pr)
		if err != nil {
			return domain.Release{}, nil, fmt.Errorf("failed to read pull request #%d: %w", f.pr, err)
		}
		branch = pr.HeadRef
		a.log.V(1).Info("release branch from pull request", "pr", f.pr, "branch", branch)
	}

	release, err := domain.NewRelease(f.repo, branch, f.appName)
	if err != nil {
		return domain.Release{}, nil, err
	}

	to := f.to
	if to == "" {
		to = release.BranchName
	}
	from := f.from
	if from == "" {
		tags, err := src.ListReleaseTags(ctx, f.repo, 0)
		if err != nil {
			return domain.Release{}, nil, fmt.Errorf("failed to list release tags: %w", err)
		}
		from = previousTag(tags, release)
	}

	commits, err := src.ListCommits(ctx, f.repo, from, to)
	if err != nil {
		return domain.Release{}, nil, fmt.Errorf("failed to list commits %s..%s: %w", from, to, err)
	}
	a.log.Info("collected commits", "release", release.VersionName(), "from", from, "to", to, "count", len(commits))
	return release, domain.Messages(commits), nil
}

// previousTag picks the newest tag belonging to the release's app that is
// not the release itself. Tags come newest first.
func previousTag(tags []domain.Tag, release domain.Release) string {
	prefix := ""
	if release.AppName != "" {
		prefix = release.AppName + "/"
	}
	for _, t := range tags {
		if !strings.HasPrefix(t.Name, prefix) {
			continue
		}
		version := strings.TrimPrefix(strings.TrimPrefix(t.Name, prefix), "v")
		if version == release.Version {
			continue
		}
		return t.Name
	}
	return ""
}
