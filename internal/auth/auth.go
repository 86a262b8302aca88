// Package auth provides credential lookup for the GitHub and Jira APIs.
// Each credential has a chain of providers; the first one that yields a
// non-empty token wins.
package auth

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Environment variables consulted for tokens.
const (
	EnvGitHubToken = "GITHUB_TOKEN"
	EnvJiraToken   = "JIRA_API_TOKEN"
)

// TokenProvider defines the interface for obtaining an API token.
// Implementations may use different sources (CLI tools, environment variables, etc).
type TokenProvider interface {
	GetToken() (string, error)
}

// GhCliProvider obtains tokens by shelling out to the GitHub CLI (`gh auth token`).
// It respects the user's gh CLI authentication state.
type GhCliProvider struct {
	// Hostname defaults to github.com.
	Hostname string
}

// GetToken shells out to `gh auth token` to retrieve the current token.
// Returns an error if gh CLI is not installed, not authenticated, or the command fails.
func (g *GhCliProvider) GetToken() (string, error) {
	host := g.Hostname
	if host == "" {
		host = "github.com"
	}
	cmd := exec.Command("gh", "auth", "token", "--hostname", host)
	output, err := cmd.Output()
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
			return "", errors.New("gh CLI not found in PATH")
		}
		return "", fmt.Errorf("gh auth token failed: %w", err)
	}

	token := strings.TrimSpace(string(output))
	if token == "" {
		return "", errors.New("gh auth token returned empty token")
	}

	return token, nil
}

// EnvProvider obtains a token from an environment variable.
type EnvProvider struct {
	Var string
}

// GetToken reads the configured environment variable.
// Returns an error if the variable is not set or is empty.
func (e *EnvProvider) GetToken() (string, error) {
	token := strings.TrimSpace(os.Getenv(e.Var))
	if token == "" {
		return "", fmt.Errorf("%s environment variable not set or empty", e.Var)
	}
	return token, nil
}

// StaticProvider returns a fixed token, typically from a command-line flag.
type StaticProvider string

// GetToken returns the token or an error when it is empty.
func (s StaticProvider) GetToken() (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", errors.New("no token given")
	}
	return string(s), nil
}

// Chain tries each provider in order and returns the first token found.
// The error of every failed provider is kept so the final message is actionable.
type Chain []TokenProvider

// GetToken implements TokenProvider.
func (c Chain) GetToken() (string, error) {
	var errs []error
	for _, p := range c {
		token, err := p.GetToken()
		if err == nil {
			return token, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", errors.New("no token providers configured")
	}
	return "", errors.Join(errs...)
}

// GitHubToken attempts to obtain a GitHub token, gh CLI first and
// GITHUB_TOKEN second.
func GitHubToken() (string, error) {
	token, err := Chain{&GhCliProvider{}, &EnvProvider{Var: EnvGitHubToken}}.GetToken()
	if err == nil {
		return token, nil
	}

	return "", fmt.Errorf(
		"failed to obtain GitHub token: %v.\n"+
			"Please either:\n"+
			"  1. Run 'gh auth login' to authenticate with GitHub CLI, or\n"+
			"  2. Set the %s environment variable with a personal access token",
		flatten(err), EnvGitHubToken,
	)
}

// JiraToken obtains the Jira API token. The flag value, when non-empty,
// takes precedence over JIRA_API_TOKEN.
func JiraToken(flag string) (string, error) {
	var chain Chain
	if flag != "" {
		chain = append(chain, StaticProvider(flag))
	}
	chain = append(chain, &EnvProvider{Var: EnvJiraToken})

	token, err := chain.GetToken()
	if err != nil {
		return "", fmt.Errorf(
			"failed to obtain Jira API token: %v.\n"+
				"Create one at https://id.atlassian.com/manage-profile/security/api-tokens and set %s",
			flatten(err), EnvJiraToken,
		)
	}
	return token, nil
}

func flatten(err error) string {
	return strings.ReplaceAll(err.Error(), "\n", "; ")
}
