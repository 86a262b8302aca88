// Package gh provides a GraphQL client for the GitHub repository API.
// It hides paging and object resolution behind a few release-oriented
// methods: tags, commit ranges, pull requests and comments.
package gh

import (
	"context"
	"strings"

	"github.com/machinebox/graphql"
	"github.com/pkg/errors"

	"github.com/robby/stevenson/internal/auth"
)

// DefaultEndpoint is the public GitHub GraphQL endpoint.
const DefaultEndpoint = "https://api.github.com/graphql"

// ErrNotFound is returned when a ref, tag or pull request does not exist.
var ErrNotFound = errors.New("not found")

// Client is a GitHub GraphQL API client.
type Client struct {
	gql   *graphql.Client
	token string
}

// New creates a client for the public endpoint.
// It obtains an authentication token using the auth package.
func New() (*Client, error) {
	token, err := auth.GitHubToken()
	if err != nil {
		return nil, err
	}
	return NewWithEndpoint(DefaultEndpoint, token), nil
}

// NewWithEndpoint creates a client for endpoint with a fixed token,
// e.g. for GitHub Enterprise.
func NewWithEndpoint(endpoint, token string) *Client {
	return &Client{
		gql:   graphql.NewClient(endpoint),
		token: token,
	}
}

// makeRequest executes a GraphQL request with authentication.
func (c *Client) makeRequest(ctx context.Context, req *graphql.Request, resp interface{}) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.gql.Run(ctx, req, resp)
}

// splitRepo splits "owner/name".
func splitRepo(repo string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(repo), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", errors.Errorf("invalid repository %q, expected owner/name", repo)
	}
	return owner, name, nil
}
