// Package assistant derives summaries, action items, reply drafts and
// priority orderings from email threads. Every function is pure: it reads
// the threads it is given and never touches storage.
package assistant

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"nebulaone/pkg/domain"
)

// Fixed confidence per summary branch.
const (
	ConfidenceMeeting     = 92
	ConfidenceStatus      = 89
	ConfidenceAttachments = 87
	ConfidenceDefault     = 75

	summaryWordLimit = 15
)

var (
	dateRE    = regexp.MustCompile(`(?i)\b(?:\d{1,2}/\d{1,2}/\d{2,4}|(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?)\b`)
	timeRE    = regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}(?:\s*[ap]m\b)?`)
	percentRE = regexp.MustCompile(`\d+(?:\.\d+)?%`)
)

// Summary is a one-paragraph description of a thread.
type Summary struct {
	Summary    string `json:"summary"`
	Confidence int    `json:"confidence"`
}

// Attachment kinds in the order they are reported.
var attachmentKinds = []string{"PDF", "Document", "Spreadsheet", "Image", "File"}

var extensionKinds = map[string]string{
	".pdf":  "PDF",
	".doc":  "Document",
	".docx": "Document",
	".odt":  "Document",
	".rtf":  "Document",
	".txt":  "Document",
	".md":   "Document",
	".xls":  "Spreadsheet",
	".xlsx": "Spreadsheet",
	".ods":  "Spreadsheet",
	".csv":  "Spreadsheet",
	".png":  "Image",
	".jpg":  "Image",
	".jpeg": "Image",
	".gif":  "Image",
	".webp": "Image",
	".svg":  "Image",
}

// AttachmentKind classifies an attachment by file extension.
func AttachmentKind(name string) string {
	if kind, ok := extensionKinds[strings.ToLower(filepath.Ext(name))]; ok {
		return kind
	}
	return "File"
}

// SummarizeThread picks the first matching branch: meeting invitation,
// status update, attachments, then the opening words of the newest email.
// A participant clause is appended in every case.
func SummarizeThread(t domain.EmailThread) Summary {
	subject := strings.ToLower(t.Subject)
	bodies := threadText(t)

	var s Summary
	switch {
	case strings.Contains(subject, "invitation") || strings.Contains(subject, "meeting"):
		s = Summary{Summary: meetingSummary(t.Subject, bodies), Confidence: ConfidenceMeeting}
	case strings.Contains(subject, "update") || strings.Contains(subject, "status"):
		s = Summary{Summary: statusSummary(t.Subject, bodies), Confidence: ConfidenceStatus}
	case t.HasAttachments():
		s = Summary{Summary: attachmentSummary(t), Confidence: ConfidenceAttachments}
	default:
		s = Summary{Summary: openingWords(t), Confidence: ConfidenceDefault}
	}
	if clause := participantClause(t); clause != "" {
		s.Summary += " " + clause
	}
	return s
}

func meetingSummary(subject, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Meeting invitation for %s", cleanSubject(subject))
	if date := dateRE.FindString(text); date != "" {
		fmt.Fprintf(&b, " on %s", date)
	}
	if tm := timeRE.FindString(text); tm != "" {
		fmt.Fprintf(&b, " at %s", tm)
	}
	b.WriteString(".")
	return b.String()
}

func statusSummary(subject, text string) string {
	figures := percentRE.FindAllString(text, -1)
	if len(figures) == 0 {
		return fmt.Sprintf("Status update for %s with no progress figures reported.", cleanSubject(subject))
	}
	return fmt.Sprintf("Status update for %s reporting %s progress.", cleanSubject(subject), strings.Join(figures, ", "))
}

func attachmentSummary(t domain.EmailThread) string {
	counts := make(map[string]int)
	total := 0
	for _, e := range t.Emails {
		for _, a := range e.Attachments {
			counts[AttachmentKind(a.Name)]++
			total++
		}
	}
	parts := make([]string, 0, len(counts))
	for _, kind := range attachmentKinds {
		if n := counts[kind]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, kind))
		}
	}
	return fmt.Sprintf("Shared %d %s: %s.", total, plural(total, "attachment", "attachments"), strings.Join(parts, ", "))
}

func openingWords(t domain.EmailThread) string {
	latest, ok := t.LatestEmail()
	if !ok {
		return "Empty thread..."
	}
	words := strings.Fields(latest.Body)
	if len(words) > summaryWordLimit {
		words = words[:summaryWordLimit]
	}
	return strings.Join(words, " ") + "..."
}

func participantClause(t domain.EmailThread) string {
	people := threadParticipants(t)
	switch {
	case len(people) > 2:
		return fmt.Sprintf("Conversation between %d people.", len(people))
	case len(people) == 2:
		return fmt.Sprintf("Conversation between %s and %s.", displayName(people[0]), displayName(people[1]))
	default:
		return ""
	}
}

// threadParticipants returns the stored participant list, or derives it
// from senders and recipients.
func threadParticipants(t domain.EmailThread) []domain.EmailParticipant {
	if len(t.Participants) > 0 {
		return t.Participants
	}
	seen := make(map[string]struct{})
	var out []domain.EmailParticipant
	add := func(p domain.EmailParticipant) {
		key := strings.ToLower(p.Email)
		if key == "" {
			key = strings.ToLower(p.Name)
		}
		if key == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	for _, e := range t.Emails {
		add(e.From)
		for _, p := range e.To {
			add(p)
		}
	}
	return out
}

func displayName(p domain.EmailParticipant) string {
	if p.Name != "" {
		return p.Name
	}
	return p.Email
}

var subjectPrefixes = []string{"re:", "fwd:", "fw:", "invitation:"}

// cleanSubject strips reply, forward and invitation prefixes.
func cleanSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for trimmed := true; trimmed; {
		trimmed = false
		for _, p := range subjectPrefixes {
			if len(s) >= len(p) && strings.EqualFold(s[:len(p)], p) {
				s = strings.TrimSpace(s[len(p):])
				trimmed = true
			}
		}
	}
	return s
}

func threadText(t domain.EmailThread) string {
	bodies := make([]string, 0, len(t.Emails))
	for _, e := range t.Emails {
		bodies = append(bodies, e.Body)
	}
	return strings.Join(bodies, "\n")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
