// Package document renders changelog sections as an Atlassian Document Format
// (ADF) payload for the Jira description field.
package document

import (
	"strings"

	"github.com/robby/stevenson/internal/changelog"
	"github.com/robby/stevenson/internal/domain"
	"github.com/robby/stevenson/internal/ticketref"
)

// Node type names used by the builder.
const (
	TypeDoc        = "doc"
	TypeHeading    = "heading"
	TypeBulletList = "bulletList"
	TypeListItem   = "listItem"
	TypeParagraph  = "paragraph"
	TypeText       = "text"

	MarkLink = "link"
)

// Node is an ADF node. Only the fields used by Jira descriptions are modelled.
type Node struct {
	Type    string         `json:"type"`
	Version int            `json:"version,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []Node         `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

// Mark decorates a text node.
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Span is a run of message text, optionally a ticket link.
type Span struct {
	Text   string
	Ticket *domain.TicketReference
}

// IsLink reports whether the span links to a ticket.
func (s Span) IsLink() bool {
	return s.Ticket != nil
}

// Options configure rendering.
type Options struct {
	// BrowseURL is the prefix of ticket links, e.g. "https://acme.atlassian.net/browse".
	BrowseURL string
	// HeadingLevel defaults to 3.
	HeadingLevel int
}

// Spans splits message into plain runs and ticket-link runs. Every reference
// in the message yields a link span holding the bare key text; brackets around
// it stay in the neighbouring plain runs. Concatenating the texts yields message.
func Spans(message string) []Span {
	matches := ticketref.FindAll(message)
	if len(matches) == 0 {
		if message == "" {
			return nil
		}
		return []Span{{Text: message}}
	}

	spans := make([]Span, 0, 2*len(matches)+1)
	pos := 0
	for _, m := range matches {
		if m.KeyStart > pos {
			spans = append(spans, Span{Text: message[pos:m.KeyStart]})
		}
		ticket := m.Ticket
		spans = append(spans, Span{Text: message[m.KeyStart:m.KeyEnd], Ticket: &ticket})
		pos = m.KeyEnd
	}
	if pos < len(message) {
		spans = append(spans, Span{Text: message[pos:]})
	}
	return spans
}

// Render builds the ADF document for the given sections.
func Render(sections []domain.ChangelogSection, opts Options) Node {
	level := opts.HeadingLevel
	if level <= 0 {
		level = 3
	}
	browse := strings.TrimRight(opts.BrowseURL, "/")

	doc := Node{Type: TypeDoc, Version: 1, Content: []Node{}}
	for _, section := range sections {
		doc.Content = append(doc.Content, Node{
			Type:    TypeHeading,
			Attrs:   map[string]any{"level": level},
			Content: []Node{{Type: TypeText, Text: changelog.Heading(section)}},
		})

		list := Node{Type: TypeBulletList}
		for _, entry := range section.Entries {
			list.Content = append(list.Content, Node{
				Type:    TypeListItem,
				Content: []Node{{Type: TypeParagraph, Content: inline(entry.Message, browse)}},
			})
		}
		if len(list.Content) > 0 {
			doc.Content = append(doc.Content, list)
		}
	}
	return doc
}

func inline(message, browse string) []Node {
	spans := Spans(message)
	nodes := make([]Node, 0, len(spans))
	for _, s := range spans {
		n := Node{Type: TypeText, Text: s.Text}
		if s.IsLink() {
			n.Marks = []Mark{{
				Type:  MarkLink,
				Attrs: map[string]any{"href": browse + "/" + s.Ticket.Key()},
			}}
		}
		nodes = append(nodes, n)
	}
	return nodes
}

// PlainText renders a document as an indented text outline.
func PlainText(doc Node) string {
	var b strings.Builder
	for _, n := range doc.Content {
		switch n.Type {
		case TypeHeading:
			b.WriteString(textOf(n))
			b.WriteString("\n")
		case TypeBulletList:
			for _, item := range n.Content {
				b.WriteString("  - ")
				b.WriteString(textOf(item))
				b.WriteString("\n")
			}
		default:
			b.WriteString(textOf(n))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func textOf(n Node) string {
	if n.Type == TypeText {
		return n.Text
	}
	var b strings.Builder
	for _, c := range n.Content {
		b.WriteString(textOf(c))
	}
	return b.String()
}
