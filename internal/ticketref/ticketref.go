// Package ticketref extracts Jira ticket references from free-text commit messages.
package ticketref

import (
	"regexp"
	"strings"

	"github.com/robby/stevenson/internal/domain"
)

// pattern matches "[ABC-123]", "ABC-123", "abc-123]" and friends.
// Group 1 spans the bare key, groups 2 and 3 the board and number.
var pattern = regexp.MustCompile(`\[?(([A-Za-z]+)-(\d+))\]?`)

// Match is one ticket reference found in a message.
type Match struct {
	Ticket domain.TicketReference
	// Start and End delimit the whole match, brackets included.
	Start, End int
	// KeyStart and KeyEnd delimit the bare "<board>-<number>" text.
	KeyStart, KeyEnd int
}

// Parse returns the first ticket reference in message.
func Parse(message string) (domain.TicketReference, bool) {
	loc := pattern.FindStringSubmatchIndex(message)
	if loc == nil {
		return domain.TicketReference{}, false
	}
	return toMatch(message, loc).Ticket, true
}

// ParsePtr is Parse returning nil when no reference is present.
func ParsePtr(message string) *domain.TicketReference {
	ref, ok := Parse(message)
	if !ok {
		return nil
	}
	return &ref
}

// FindAll returns every non-overlapping reference in message, left to right.
func FindAll(message string) []Match {
	locs := pattern.FindAllStringSubmatchIndex(message, -1)
	if len(locs) == 0 {
		return nil
	}
	matches := make([]Match, 0, len(locs))
	for _, loc := range locs {
		matches = append(matches, toMatch(message, loc))
	}
	return matches
}

func toMatch(message string, loc []int) Match {
	return Match{
		Ticket: domain.TicketReference{
			Board:  strings.ToUpper(message[loc[4]:loc[5]]),
			Number: message[loc[6]:loc[7]],
		},
		Start:    loc[0],
		End:      loc[1],
		KeyStart: loc[2],
		KeyEnd:   loc[3],
	}
}
