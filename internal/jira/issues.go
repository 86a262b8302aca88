package jira

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
	"github.com/robby/stevenson/internal/document"
	"github.com/robby/stevenson/internal/domain"
)

// IssueFields describes an issue to create.
type IssueFields struct {
	ProjectKey  string
	IssueType   string
	Summary     string
	Description document.Node
	Labels      []string
}

// CreateIssue creates an issue and returns its key and browse URL.
func (c *Client) CreateIssue(ctx context.Context, fields IssueFields) (domain.CreatedIssue, error) {
	payload := map[string]interface{}{
		"fields": map[string]interface{}{
			"project":     map[string]string{"key": fields.ProjectKey},
			"issuetype":   map[string]string{"name": fields.IssueType},
			"summary":     fields.Summary,
			"description": fields.Description,
			"labels":      nonNil(fields.Labels),
		},
	}

	var resp struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	if err := c.makeRequest(ctx, http.MethodPost, "/issue", payload, &resp); err != nil {
		return domain.CreatedIssue{}, errors.Wrap(err, "failed to create issue")
	}

	return domain.CreatedIssue{
		ID:  resp.ID,
		Key: resp.Key,
		URL: c.BrowseURL(resp.Key),
	}, nil
}

// LinkVersion adds a fix version to an issue.
func (c *Client) LinkVersion(ctx context.Context, versionID, ticketKey string) error {
	payload := map[string]interface{}{
		"update": map[string]interface{}{
			"fixVersions": []interface{}{
				map[string]interface{}{"add": map[string]string{"id": versionID}},
			},
		},
	}

	path := "/issue/" + url.PathEscape(ticketKey)
	if err := c.makeRequest(ctx, http.MethodPut, path, payload, nil); err != nil {
		return errors.Wrapf(err, "failed to link %s to version %s", ticketKey, versionID)
	}
	return nil
}

// Search runs a JQL query and returns up to maxResults issues.
func (c *Client) Search(ctx context.Context, jql string, maxResults int) ([]domain.Issue, error) {
	if maxResults <= 0 {
		maxResults = 50
	}
	payload := map[string]interface{}{
		"jql":        jql,
		"maxResults": maxResults,
		"fields":     []string{"summary", "status"},
	}

	var resp struct {
		Issues []struct {
			ID     string `json:"id"`
			Key    string `json:"key"`
			Fields struct {
				Summary string `json:"summary"`
				Status  struct {
					Name string `json:"name"`
				} `json:"status"`
			} `json:"fields"`
		} `json:"issues"`
	}
	if err := c.makeRequest(ctx, http.MethodPost, "/search", payload, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to search issues")
	}

	issues := make([]domain.Issue, 0, len(resp.Issues))
	for _, i := range resp.Issues {
		issues = append(issues, domain.Issue{
			ID:      i.ID,
			Key:     i.Key,
			Summary: i.Fields.Summary,
			Status:  i.Fields.Status.Name,
		})
	}
	return issues, nil
}

// FixVersionJQL builds a query matching every issue of a fix version.
func FixVersionJQL(versionName string) string {
	return "fixVersion = " + strconv.Quote(versionName) + " ORDER BY key ASC"
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
