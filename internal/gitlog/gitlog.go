// Package gitlog reads release tags and commit ranges from a local clone.
package gitlog

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	gogitlog "github.com/tsuyoshiwada/go-gitlog"

	"github.com/robby/stevenson/internal/domain"
)

// ErrUnsupported is returned for operations that need the hosting service.
var ErrUnsupported = errors.New("not supported by a local repository")

// Collector reads history from the repository at RepoPath.
type Collector struct {
	RepoPath string
}

// ref is a single revision argument for git log.
type ref string

func (r ref) Args() []string { return []string{string(r)} }

// ListCommits returns the commits in from..to, oldest first.
// An empty from lists every commit reachable from to.
// The repo argument is ignored; the collector always reads RepoPath.
func (c Collector) ListCommits(_ context.Context, _ string, from, to string) ([]domain.Commit, error) {
	if to == "" {
		to = "HEAD"
	}

	git := gogitlog.New(&gogitlog.Config{Path: c.path()})

	var rev gogitlog.RevArgs = ref(to)
	if from != "" {
		rev = &gogitlog.RevRange{Old: from, New: to}
	}

	raw, err := git.Log(rev, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to get commits %s", strings.Join(rev.Args(), " "))
	}

	commits := make([]domain.Commit, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		commits = append(commits, convert(raw[i]))
	}
	return commits, nil
}

func convert(c *gogitlog.Commit) domain.Commit {
	out := domain.Commit{Subject: c.Subject}
	if c.Hash != nil {
		out.Hash = c.Hash.Long
	}
	if c.Author != nil {
		out.Author = c.Author.Name
	}
	return out
}

// ListReleaseTags returns up to limit tags, most recently created first.
// Annotated tags resolve to the commit they point at.
func (c Collector) ListReleaseTags(ctx context.Context, _ string, limit int) ([]domain.Tag, error) {
	args := []string{"-C", c.path(), "for-each-ref", "--sort=-creatordate",
		"--format=%(refname:short)%09%(objectname)%09%(*objectname)"}
	if limit > 0 {
		args = append(args, "--count", strconv.Itoa(limit))
	}
	args = append(args, "refs/tags")

	cmd := exec.CommandContext(ctx, "git", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, errors.Wrapf(err, "git for-each-ref: %s", strings.TrimSpace(stderr.String()))
	}

	return parseTags(string(out)), nil
}

func parseTags(out string) []domain.Tag {
	var tags []domain.Tag
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		tag := domain.Tag{Name: parts[0]}
		if len(parts) > 1 {
			tag.Commit = parts[1]
		}
		if len(parts) > 2 && parts[2] != "" {
			tag.Commit = parts[2]
		}
		tags = append(tags, tag)
	}
	return tags
}

// GetPullRequest is not available locally.
func (c Collector) GetPullRequest(context.Context, string, int) (domain.PullRequest, error) {
	return domain.PullRequest{}, ErrUnsupported
}

func (c Collector) path() string {
	if c.RepoPath == "" {
		return "."
	}
	return c.RepoPath
}
