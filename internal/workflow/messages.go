package workflow

import (
	"fmt"
	"strings"

	"github.com/robby/stevenson/internal/domain"
)

// IssueCreatedMessage is posted when Phase 1 succeeds.
func IssueCreatedMessage(release domain.Release, issue domain.CreatedIssue) string {
	return fmt.Sprintf("Created release issue %s for %s: %s", issue.Key, release.VersionName(), issue.URL)
}

// ReportMessage summarizes the fix version report.
func ReportMessage(release domain.Release, issue domain.CreatedIssue, report domain.FixVersionReport) string {
	name := release.VersionName()
	if report.OK() {
		return fmt.Sprintf("Fix version %q created and linked for every ticket in %s", name, issue.Key)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Fix version %q finished for %s with %d problem(s):", name, issue.Key, report.Len())
	for _, m := range report.Messages() {
		b.WriteString("\n- ")
		b.WriteString(m)
	}
	return b.String()
}

func notWhitelistedMessage(board, version string, tickets []string) string {
	return fmt.Sprintf("Board %s is not whitelisted; fix version %q was not created for %s",
		board, version, strings.Join(tickets, ", "))
}

func versionFailedMessage(board, version string, err error) string {
	return fmt.Sprintf("Failed to create fix version %q for board %s: %v", version, board, err)
}

func linkFailedMessage(ticket, version string, err error) string {
	return fmt.Sprintf("Failed to link %s to fix version %q: %v", ticket, version, err)
}
