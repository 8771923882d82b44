package assistant

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"nebulaone/pkg/domain"
)

const (
	minTaskLength  = 10
	maxTitleLength = 120
)

// Pattern families, applied to every email in this order.
var taskPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:could|can|please)\s+you\s+([^.!?\n]+)`),
	regexp.MustCompile(`(?i)\b(?:need|must|should)\s+(?:to\s+)?([^.!?\n]+)`),
	regexp.MustCompile(`(?i)\b(?:action required|todo)\s*:\s*([^.!?\n]+)`),
	regexp.MustCompile(`(?i)\b(?:due|deadline)(?:\s+(?:by|on|is))?\s*:?\s+([^.!?\n]+)`),
}

var (
	fallbackTriggers = []string{"please", "request", "action", "needed", "required"}
	fallbackSentence = []string{"please", "need", "required"}
	sentenceSplitRE  = regexp.MustCompile(`[.!?\n]+`)
)

// ExtractTasks derives action items from a thread. The stages form a
// fallback chain: pattern matches, then request sentences, then a single
// review task for important threads. The result is never nil.
func ExtractTasks(t domain.EmailThread) []domain.TodoItem {
	created := t.LastActivity()
	items := patternTasks(t, created)
	if len(items) == 0 {
		items = fallbackTasks(t, created)
	}
	if len(items) == 0 && t.IsImportant {
		items = append(items, domain.TodoItem{
			ID:            taskID(t.ID, 0),
			Title:         "Review important email",
			Description:   t.Subject,
			Priority:      domain.PriorityHigh,
			EmailThreadID: t.ID,
			CreatedAt:     created,
		})
	}
	if items == nil {
		items = []domain.TodoItem{}
	}
	return items
}

// ExtractTasksFromThreads concatenates ExtractTasks over threads in order.
func ExtractTasksFromThreads(threads []domain.EmailThread) []domain.TodoItem {
	out := []domain.TodoItem{}
	for _, t := range threads {
		out = append(out, ExtractTasks(t)...)
	}
	return out
}

func patternTasks(t domain.EmailThread, created time.Time) []domain.TodoItem {
	var items []domain.TodoItem
	for _, e := range t.Emails {
		due := dateRE.FindString(e.Body)
		for _, re := range taskPatterns {
			for _, m := range re.FindAllStringSubmatch(e.Body, -1) {
				capture := strings.Join(strings.Fields(m[1]), " ")
				if utf8.RuneCountInString(capture) <= minTaskLength {
					continue
				}
				idx := len(items)
				items = append(items, domain.TodoItem{
					ID:            taskID(t.ID, idx),
					Title:         taskTitle(capture),
					Description:   describe(e),
					DueDate:       due,
					Priority:      priorityAt(idx),
					EmailThreadID: t.ID,
					CreatedAt:     created,
				})
			}
		}
	}
	return items
}

func fallbackTasks(t domain.EmailThread, created time.Time) []domain.TodoItem {
	var items []domain.TodoItem
	for _, e := range t.Emails {
		lower := strings.ToLower(e.Body)
		if !containsAny(lower, fallbackTriggers...) {
			continue
		}
		for _, sentence := range sentenceSplitRE.Split(e.Body, -1) {
			sentence = strings.Join(strings.Fields(sentence), " ")
			if sentence == "" || !containsAny(strings.ToLower(sentence), fallbackSentence...) {
				continue
			}
			items = append(items, domain.TodoItem{
				ID:            taskID(t.ID, len(items)),
				Title:         taskTitle(sentence),
				Description:   describe(e),
				Priority:      domain.PriorityMedium,
				EmailThreadID: t.ID,
				CreatedAt:     created,
			})
			break
		}
	}
	return items
}

// priorityAt cycles by extraction index; the high check runs first.
func priorityAt(idx int) domain.TodoPriority {
	switch {
	case idx%3 == 0:
		return domain.PriorityHigh
	case idx%2 == 0:
		return domain.PriorityMedium
	default:
		return domain.PriorityLow
	}
}

func taskID(threadID string, idx int) string {
	return fmt.Sprintf("%s-task-%d", threadID, idx+1)
}

func taskTitle(s string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > maxTitleLength {
		s = strings.TrimSpace(string(r[:maxTitleLength])) + "..."
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func describe(e domain.Email) string {
	from := displayName(e.From)
	if from == "" {
		return e.Subject
	}
	return fmt.Sprintf("From %s: %s", from, e.Subject)
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
