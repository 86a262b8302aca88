package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/robby/stevenson/internal/store"
)

// Notifier records notifications in a store and forwards them to a running
// program. It satisfies notify.Notifier.
type Notifier struct {
	Store *store.Store
	// Send is usually (*tea.Program).Send.
	Send func(tea.Msg)
	Now  func() time.Time
}

// Post implements notify.Notifier.
func (n Notifier) Post(_ context.Context, channel, text string) error {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	note := store.Notification{Channel: channel, Text: text, At: now()}
	if n.Store != nil {
		n.Store.AddNotification(note)
	}
	if n.Send != nil {
		n.Send(NotificationMsg{Notification: note})
	}
	return nil
}
