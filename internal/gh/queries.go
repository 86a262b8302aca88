package gh

import (
	"context"

	"github.com/machinebox/graphql"
	"github.com/pkg/errors"

	"github.com/robby/stevenson/internal/domain"
)

const (
	pageSize = 100
	// maxHistory caps the commits walked when no lower bound is found.
	maxHistory = 1000
)

// ListReleaseTags returns up to limit tags of repo, newest commit first.
// Annotated tags are resolved to the commit they point at.
func (c *Client) ListReleaseTags(ctx context.Context, repo string, limit int) ([]domain.Tag, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > pageSize {
		limit = pageSize
	}

	req := graphql.NewRequest(`
		query($owner: String!, $name: String!, $first: Int!) {
			repository(owner: $owner, name: $name) {
				refs(refPrefix: "refs/tags/", first: $first, orderBy: {field: TAG_COMMIT_DATE, direction: DESC}) {
					nodes {
						name
						target {
							__typename
							oid
							... on Tag {
								target {
									oid
								}
							}
						}
					}
				}
			}
		}
	`)
	req.Var("owner", owner)
	req.Var("name", name)
	req.Var("first", limit)

	var resp struct {
		Repository *struct {
			Refs struct {
				Nodes []struct {
					Name   string `json:"name"`
					Target struct {
						Typename string `json:"__typename"`
						OID      string `json:"oid"`
						Target   *struct {
							OID string `json:"oid"`
						} `json:"target"`
					} `json:"target"`
				} `json:"nodes"`
			} `json:"refs"`
		} `json:"repository"`
	}

	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return nil, errors.Wrapf(err, "failed to list tags of %s", repo)
	}
	if resp.Repository == nil {
		return nil, errors.Wrapf(ErrNotFound, "repository %s", repo)
	}

	tags := make([]domain.Tag, 0, len(resp.Repository.Refs.Nodes))
	for _, n := range resp.Repository.Refs.Nodes {
		oid := n.Target.OID
		if n.Target.Typename == "Tag" && n.Target.Target != nil {
			oid = n.Target.Target.OID
		}
		tags = append(tags, domain.Tag{Name: n.Name, Commit: oid})
	}
	return tags, nil
}

// ListCommits returns the commits reachable from to but not from from,
// oldest first. An empty from walks the history of to up to a fixed cap.
// The walk follows first-parent order as reported by the history connection.
func (c *Client) ListCommits(ctx context.Context, repo, from, to string) ([]domain.Commit, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	if to == "" {
		to = "HEAD"
	}

	var stop string
	if from != "" {
		stop, err = c.resolveCommit(ctx, owner, name, from)
		if err != nil {
			return nil, err
		}
	}

	var (
		commits []domain.Commit
		cursor  *string
	)
	for len(commits) < maxHistory {
		page, next, err := c.historyPage(ctx, owner, name, to, cursor)
		if err != nil {
			return nil, err
		}
		for _, commit := range page {
			if commit.Hash == stop {
				return reverse(commits), nil
			}
			commits = append(commits, commit)
		}
		if next == nil {
			break
		}
		cursor = next
	}

	if stop != "" {
		return nil, errors.Errorf("%s is not an ancestor of %s within %d commits", from, to, maxHistory)
	}
	return reverse(commits), nil
}

func (c *Client) historyPage(ctx context.Context, owner, name, ref string, cursor *string) ([]domain.Commit, *string, error) {
	req := graphql.NewRequest(`
		query($owner: String!, $name: String!, $ref: String!, $first: Int!, $after: String) {
			repository(owner: $owner, name: $name) {
				object(expression: $ref) {
					... on Commit {
						history(first: $first, after: $after) {
							pageInfo {
								hasNextPage
								endCursor
							}
							nodes {
								oid
								messageHeadline
								author {
									name
								}
							}
						}
					}
				}
			}
		}
	`)
	req.Var("owner", owner)
	req.Var("name", name)
	req.Var("ref", ref)
	req.Var("first", pageSize)
	req.Var("after", cursor)

	var resp struct {
		Repository *struct {
			Object *struct {
				History struct {
					PageInfo struct {
						HasNextPage bool   `json:"hasNextPage"`
						EndCursor   string `json:"endCursor"`
					} `json:"pageInfo"`
					Nodes []struct {
						OID             string `json:"oid"`
						MessageHeadline string `json:"messageHeadline"`
						Author          struct {
							Name string `json:"name"`
						} `json:"author"`
					} `json:"nodes"`
				} `json:"history"`
			} `json:"object"`
		} `json:"repository"`
	}

	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return nil, nil, errors.Wrapf(err, "failed to read history of %s", ref)
	}
	if resp.Repository == nil || resp.Repository.Object == nil {
		return nil, nil, errors.Wrapf(ErrNotFound, "ref %s in %s/%s", ref, owner, name)
	}

	h := resp.Repository.Object.History
	page := make([]domain.Commit, 0, len(h.Nodes))
	for _, n := range h.Nodes {
		page = append(page, domain.Commit{Hash: n.OID, Subject: n.MessageHeadline, Author: n.Author.Name})
	}

	if !h.PageInfo.HasNextPage {
		return page, nil, nil
	}
	next := h.PageInfo.EndCursor
	return page, &next, nil
}

// resolveCommit resolves a ref expression (tag, branch, sha) to a commit oid.
func (c *Client) resolveCommit(ctx context.Context, owner, name, ref string) (string, error) {
	req := graphql.NewRequest(`
		query resolveRef($owner: String!, $name: String!, $ref: String!) {
			repository(owner: $owner, name: $name) {
				object(expression: $ref) {
					__typename
					oid
					... on Tag {
						target {
							oid
						}
					}
				}
			}
		}
	`)
	req.Var("owner", owner)
	req.Var("name", name)
	req.Var("ref", ref)

	var resp struct {
		Repository *struct {
			Object *struct {
				Typename string `json:"__typename"`
				OID      string `json:"oid"`
				Target   *struct {
					OID string `json:"oid"`
				} `json:"target"`
			} `json:"object"`
		} `json:"repository"`
	}

	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return "", errors.Wrapf(err, "failed to resolve %s", ref)
	}
	if resp.Repository == nil || resp.Repository.Object == nil {
		return "", errors.Wrapf(ErrNotFound, "ref %s in %s/%s", ref, owner, name)
	}

	obj := resp.Repository.Object
	if obj.Typename == "Tag" && obj.Target != nil {
		return obj.Target.OID, nil
	}
	return obj.OID, nil
}

// GetPullRequest fetches a pull request by number.
func (c *Client) GetPullRequest(ctx context.Context, repo string, number int) (domain.PullRequest, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return domain.PullRequest{}, err
	}

	req := graphql.NewRequest(`
		query($owner: String!, $name: String!, $number: Int!) {
			repository(owner: $owner, name: $name) {
				pullRequest(number: $number) {
					id
					number
					title
					body
					url
					headRefName
					baseRefName
					merged
				}
			}
		}
	`)
	req.Var("owner", owner)
	req.Var("name", name)
	req.Var("number", number)

	var resp struct {
		Repository *struct {
			PullRequest *struct {
				ID          string `json:"id"`
				Number      int    `json:"number"`
				Title       string `json:"title"`
				Body        string `json:"body"`
				URL         string `json:"url"`
				HeadRefName string `json:"headRefName"`
				BaseRefName string `json:"baseRefName"`
				Merged      bool   `json:"merged"`
			} `json:"pullRequest"`
		} `json:"repository"`
	}

	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return domain.PullRequest{}, errors.Wrapf(err, "failed to get pull request #%d", number)
	}
	if resp.Repository == nil || resp.Repository.PullRequest == nil {
		return domain.PullRequest{}, errors.Wrapf(ErrNotFound, "pull request #%d in %s", number, repo)
	}

	pr := resp.Repository.PullRequest
	return domain.PullRequest{
		Number:  pr.Number,
		Title:   pr.Title,
		Body:    pr.Body,
		URL:     pr.URL,
		HeadRef: pr.HeadRefName,
		BaseRef: pr.BaseRefName,
		Merged:  pr.Merged,
		NodeID:  pr.ID,
	}, nil
}

func reverse(commits []domain.Commit) []domain.Commit {
	for i, j := 0, len(commits)-1; i < j; i, j = i+1, j-1 {
		commits[i], commits[j] = commits[j], commits[i]
	}
	return commits
}
