package gh

import (
	"context"

	"github.com/machinebox/graphql"
	"github.com/pkg/errors"
)

const addCommentMutation = `
	mutation comment($subject: ID!, $body: String!) {
		addComment(input: {subjectId: $subject, body: $body}) {
			subject { id }
		}
	}
`

// CommentOnPullRequest posts body as a comment on pull request number of repo.
func (c *Client) CommentOnPullRequest(ctx context.Context, repo string, number int, body string) error {
	pr, err := c.GetPullRequest(ctx, repo, number)
	if err != nil {
		return err
	}
	if pr.NodeID == "" {
		return errors.Wrapf(ErrNotFound, "node id of pull request #%d in %s", number, repo)
	}

	req := graphql.NewRequest(addCommentMutation)
	req.Var("subject", pr.NodeID)
	req.Var("body", body)

	var resp struct {
		AddComment struct {
			Subject struct {
				ID string `json:"id"`
			} `json:"subject"`
		} `json:"addComment"`
	}
	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return errors.Wrapf(err, "failed to comment on pull request #%d", number)
	}
	return nil
}
