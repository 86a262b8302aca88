package config

import (
	"sort"
	"strings"
)

// Boards is the read-only whitelist of boards allowed to receive fix
// versions, mapping board codes to numeric Jira project ids.
type Boards struct {
	ids map[string]int
}

// NewBoards copies ids into a whitelist. Codes are upper-cased.
func NewBoards(ids map[string]int) Boards {
	b := Boards{ids: make(map[string]int, len(ids))}
	for code, id := range ids {
		b.ids[strings.ToUpper(code)] = id
	}
	return b
}

// ProjectID returns the project id of a board.
func (b Boards) ProjectID(board string) (int, bool) {
	id, ok := b.ids[strings.ToUpper(board)]
	return id, ok
}

// Codes returns the whitelisted board codes, sorted.
func (b Boards) Codes() []string {
	codes := make([]string, 0, len(b.ids))
	for c := range b.ids {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// Len is the number of whitelisted boards.
func (b Boards) Len() int {
	return len(b.ids)
}
