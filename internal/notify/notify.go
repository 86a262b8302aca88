// Package notify delivers human-readable release notifications to a
// channel. Delivery is best effort: callers log failures and move on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-logr/logr"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
)

// Notifier posts text to a named channel.
type Notifier interface {
	Post(ctx context.Context, channel, text string) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, channel, text string) error

// Post implements Notifier.
func (f Func) Post(ctx context.Context, channel, text string) error {
	return f(ctx, channel, text)
}

// Log writes notifications to a logr.Logger.
type Log struct {
	Logger logr.Logger
}

// Post implements Notifier.
func (l Log) Post(_ context.Context, channel, text string) error {
	l.Logger.Info("notification", "channel", channel, "text", text)
	return nil
}

// Multi fans a notification out to every notifier, in order.
// All notifiers are attempted; their errors are joined.
type Multi []Notifier

// Post implements Notifier.
func (m Multi) Post(ctx context.Context, channel, text string) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Post(ctx, channel, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	channelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")). // Purple
			Bold(true)

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")) // Dark gray
)

// Writer renders notifications to a terminal-like stream.
type Writer struct {
	mu    sync.Mutex
	w     io.Writer
	width uint
	now   func() time.Time
	plain bool
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithWidth wraps message bodies at width columns. Zero disables wrapping.
func WithWidth(width uint) WriterOption {
	return func(w *Writer) { w.width = width }
}

// WithPlain disables styling.
func WithPlain() WriterOption {
	return func(w *Writer) { w.plain = true }
}

// WithWriterClock overrides the timestamp source.
func WithWriterClock(now func() time.Time) WriterOption {
	return func(w *Writer) { w.now = now }
}

// NewWriter creates a Writer on out.
func NewWriter(out io.Writer, opts ...WriterOption) *Writer {
	w := &Writer{w: out, width: 80, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Post implements Notifier.
func (w *Writer) Post(_ context.Context, channel, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, err := io.WriteString(w.w, w.Format(channel, text))
	if err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}
	return nil
}

// Format renders one notification: a header line with the timestamp and
// channel followed by the indented, wrapped body.
func (w *Writer) Format(channel, text string) string {
	stamp := w.now().Format("15:04:05")
	header := stamp + " " + channel
	if !w.plain {
		header = timeStyle.Render(stamp) + " " + channelStyle.Render(channel)
	}

	body := strings.TrimRight(text, "\n")
	if w.width > 2 {
		body = wordwrap.String(body, int(w.width-2))
	}
	return header + "\n" + indent.String(body, 2) + "\n"
}
