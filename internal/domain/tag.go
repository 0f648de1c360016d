package domain

import (
	"strings"
	"time"
)

// SentinelTag marks every note copied in from the reference bank.
const SentinelTag = "TEST SET"

// Tag is a label shared by any number of notes in one store.
type Tag struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	NoteCount int
}

// NormalizeTagNames trims names and removes blanks and duplicates, keeping
// the first occurrence order.
func NormalizeTagNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
