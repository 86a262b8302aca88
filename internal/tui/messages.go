// Package tui provides the Bubble Tea program that follows a release run.
package tui

import (
	"github.com/robby/stevenson/internal/domain"
	"github.com/robby/stevenson/internal/store"
)

// IssueCreatedMsg is emitted when the tracking issue exists.
type IssueCreatedMsg struct {
	Issue domain.CreatedIssue
}

// NotificationMsg is emitted for every notification posted during the run.
type NotificationMsg struct {
	Notification store.Notification
}

// ReportMsg is emitted when fix versions have been processed.
type ReportMsg struct {
	Report domain.FixVersionReport
}

// ErrorMsg is emitted when the run fails.
type ErrorMsg struct {
	Err error
}

// openedMsg reports the outcome of opening the issue in a browser.
type openedMsg struct {
	err error
}
