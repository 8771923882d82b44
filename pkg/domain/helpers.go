package domain

import (
	"strings"
	"time"
	"unicode"
)

// Initials builds up to two upper-case initials from a display name.
func Initials(name string) string {
	var b strings.Builder
	n := 0
	for _, part := range strings.Fields(name) {
		r := []rune(part)
		if !unicode.IsLetter(r[0]) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r[0]))
		if n++; n == 2 {
			break
		}
	}
	return b.String()
}

// UniqueIDs drops blanks and duplicates while keeping first-seen order.
func UniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// LatestSentAt returns the newest SentAt among emails, or the zero time.
func LatestSentAt(emails []Email) time.Time {
	var latest time.Time
	for _, e := range emails {
		if e.SentAt.After(latest) {
			latest = e.SentAt
		}
	}
	return latest
}
