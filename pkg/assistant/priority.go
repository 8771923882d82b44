package assistant

import (
	"sort"
	"strings"
	"time"

	"nebulaone/pkg/domain"
)

// Score weights.
const (
	weightImportant      = 50
	weightUnread         = 30
	weightStarred        = 25
	weightUrgentSubject  = 40
	weightUrgentBody     = 30
	weightAction         = 20
	weightAttachments    = 10
	weightReplyToMe      = 15
	weightRecentHour     = 20
	weightRecentDay      = 15
	weightRecentThreeDay = 10
)

var (
	urgentKeywords = []string{"urgent", "asap", "immediately", "critical", "emergency", "deadline", "time-sensitive"}
	actionPhrases  = []string{"action required", "please review", "please respond", "please confirm", "can you", "could you", "need your", "let me know", "by end of day"}
	selfNames      = []string{"you", "current user"}
)

// ScoreThread is the additive priority score of t at now.
func ScoreThread(t domain.EmailThread, now time.Time) int {
	score := 0
	if t.IsImportant {
		score += weightImportant
	}
	if !t.IsRead {
		score += weightUnread
	}
	if t.IsStarred {
		score += weightStarred
	}
	if containsAny(strings.ToLower(t.Subject), urgentKeywords...) {
		score += weightUrgentSubject
	}
	for _, e := range t.Emails {
		if containsAny(strings.ToLower(e.Body), urgentKeywords...) {
			score += weightUrgentBody
			break
		}
	}
	score += recencyBonus(now.Sub(t.LastActivity()))
	for _, e := range t.Emails {
		if containsAny(strings.ToLower(e.Body), actionPhrases...) {
			score += weightAction
			break
		}
	}
	if t.HasAttachments() {
		score += weightAttachments
	}
	if repliesToMe(t) {
		score += weightReplyToMe
	}
	return score
}

func recencyBonus(age time.Duration) int {
	switch {
	case age < time.Hour:
		return weightRecentHour
	case age < 24*time.Hour:
		return weightRecentDay
	case age < 72*time.Hour:
		return weightRecentThreeDay
	default:
		return 0
	}
}

// repliesToMe reports whether someone answered an email sent by the
// current user. The parent is InReplyTo when set, else the previous email.
func repliesToMe(t domain.EmailThread) bool {
	byID := make(map[string]domain.Email, len(t.Emails))
	for _, e := range t.Emails {
		if e.ID != "" {
			byID[e.ID] = e
		}
	}
	for i, e := range t.Emails {
		if isSelf(e.From) {
			continue
		}
		var parent domain.Email
		var ok bool
		if e.InReplyTo != "" {
			parent, ok = byID[e.InReplyTo]
		} else if i > 0 {
			parent, ok = t.Emails[i-1], true
		}
		if ok && isSelf(parent.From) {
			return true
		}
	}
	return false
}

func isSelf(p domain.EmailParticipant) bool {
	name := strings.ToLower(strings.TrimSpace(p.Name))
	for _, s := range selfNames {
		if name == s {
			return true
		}
	}
	return false
}

// PrioritizeEmails returns a copy of threads ordered by descending score.
// Equal scores keep their input order.
func PrioritizeEmails(threads []domain.EmailThread, now time.Time) []domain.EmailThread {
	type scored struct {
		thread domain.EmailThread
		score  int
	}
	ranked := make([]scored, len(threads))
	for i, t := range threads {
		ranked[i] = scored{thread: t, score: ScoreThread(t, now)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	out := make([]domain.EmailThread, len(ranked))
	for i, r := range ranked {
		out[i] = r.thread
	}
	return out
}
