package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// ErrorKind classifies validation failures.
type ErrorKind string

const (
	KindInvalidParameter ErrorKind = "InvalidParameter"
	KindMissingParameter ErrorKind = "MissingParameter"
)

// ValidationError reports bad caller input. It is never retried.
type ValidationError struct {
	Kind      ErrorKind
	Parameter string
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Kind, e.Parameter, e.Reason)
}

// InvalidParameter builds a ValidationError of kind InvalidParameter.
func InvalidParameter(param, reason string) *ValidationError {
	return &ValidationError{Kind: KindInvalidParameter, Parameter: param, Reason: reason}
}

// MissingParameter builds a ValidationError of kind MissingParameter.
func MissingParameter(param string) *ValidationError {
	return &ValidationError{Kind: KindMissingParameter, Parameter: param, Reason: "value is required"}
}

// Release describes a release branch of one repository.
type Release struct {
	Repository string // "owner/name"
	BranchName string // e.g. "release/app/1.2.0"
	AppName    string // optional, empty for single-app repositories
	Version    string // e.g. "1.2.0"
}

const versionPattern = `\d+(?:\.\d+)*`

var plainBranchRegex = regexp.MustCompile(`^(?:release|hotfix)/(` + versionPattern + `)$`)

// NewRelease validates the branch name and extracts the version from it.
// The branch must be "(release|hotfix)/[<appName>/]<version>".
func NewRelease(repository, branchName, appName string) (Release, error) {
	repository = strings.TrimSpace(repository)
	branchName = strings.TrimSpace(branchName)
	appName = strings.TrimSpace(appName)

	if repository == "" {
		return Release{}, MissingParameter("repository")
	}
	if branchName == "" {
		return Release{}, MissingParameter("branch")
	}

	re := plainBranchRegex
	if appName != "" {
		re = regexp.MustCompile(`^(?:release|hotfix)/` + regexp.QuoteMeta(appName) + `/(` + versionPattern + `)$`)
	}

	match := re.FindStringSubmatch(branchName)
	if match == nil {
		expected := "(release|hotfix)/<version>"
		if appName != "" {
			expected = "(release|hotfix)/" + appName + "/<version>"
		}
		return Release{}, InvalidParameter("branch", fmt.Sprintf("%q does not match %s", branchName, expected))
	}

	return Release{
		Repository: repository,
		BranchName: branchName,
		AppName:    appName,
		Version:    match[1],
	}, nil
}

// IsHotfix reports whether the release comes from a hotfix branch.
func (r Release) IsHotfix() bool {
	return strings.HasPrefix(r.BranchName, "hotfix/")
}

// Product returns the app name, falling back to the repository name.
func (r Release) Product() string {
	if r.AppName != "" {
		return r.AppName
	}
	if i := strings.LastIndex(r.Repository, "/"); i >= 0 {
		return r.Repository[i+1:]
	}
	return r.Repository
}

// VersionName is the fix version name shared by every board of the release.
func (r Release) VersionName() string {
	return r.Product() + " " + r.Version
}
