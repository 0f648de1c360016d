// Package fingerprint identifies a bank note by its normalized content so
// that re-scanning an unchanged file finds the same note again.
package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/conorfennell/memnotes/internal/domain"
)

func normalizePart(part string) string {
	p := strings.ToLower(part)
	p = strings.ReplaceAll(p, "\r\n", "\n")
	return strings.TrimSpace(p)
}

// Normalize joins the note's cleaned fields, one per line. Tags are
// compared as a set.
func Normalize(n domain.BankNote) string {
	parts := []string{normalizePart(n.Title), normalizePart(n.Content)}
	if n.Quiz != nil {
		parts = append(parts,
			normalizePart(n.Quiz.Question),
			normalizePart(n.Quiz.CorrectAnswer),
		)
		for _, w := range n.Quiz.WrongAnswers {
			parts = append(parts, normalizePart(w))
		}
	} else {
		parts = append(parts, "", "", "", "", "")
	}

	tags := make([]string, 0, len(n.Tags))
	for _, t := range n.Tags {
		if t = normalizePart(t); t != "" {
			tags = append(tags, t)
		}
	}
	sort.Strings(tags)
	parts = append(parts, strings.Join(tags, ","))

	// Fields are newline separated so adjacent values cannot run together.
	return strings.Join(parts, "\n")
}

// Hash returns the hex SHA-256 of the normalized note.
func Hash(n domain.BankNote) string {
	sum := sha256.Sum256([]byte(Normalize(n)))
	return fmt.Sprintf("%x", sum)
}
