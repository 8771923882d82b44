package assistant

import (
	"fmt"
	"strings"
	"time"

	"nebulaone/pkg/domain"
)

const replyClosing = "Best regards"

const (
	replyMeeting  = "Thank you for the invitation. I'm available at the proposed time and look forward to the meeting. Please let me know if there is anything I should prepare in advance."
	replyStatus   = "Thanks for the update. I've reviewed the progress and everything looks on track. Let me know if you need any input from my side."
	replyQuestion = "Thanks for reaching out. I'll look into your question and get back to you with a detailed answer shortly."
	replyThanks   = "You're very welcome! I'm glad I could help. Don't hesitate to reach out if you need anything else."
	replyGeneric  = "Thank you for your email. I've received your message and will get back to you soon."
)

// GenerateReply drafts a reply to e. The greeting follows the hour of now
// in now's location.
func GenerateReply(e domain.Email, now time.Time) string {
	return fmt.Sprintf("%s %s,\n\n%s\n\n%s", greeting(now), firstName(e.From), replyBody(e), replyClosing)
}

func greeting(now time.Time) string {
	switch h := now.Hour(); {
	case h < 12:
		return "Good morning"
	case h < 18:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}

func firstName(p domain.EmailParticipant) string {
	if fields := strings.Fields(p.Name); len(fields) > 0 {
		return fields[0]
	}
	if local, _, ok := strings.Cut(p.Email, "@"); ok && local != "" {
		return local
	}
	return "there"
}

func replyBody(e domain.Email) string {
	text := strings.ToLower(e.Subject + "\n" + e.Body)
	switch {
	case containsAny(text, "invitation", "meeting"):
		return replyMeeting
	case containsAny(text, "update", "status"):
		return replyStatus
	case strings.Contains(text, "?"):
		return replyQuestion
	case containsAny(text, "thank"):
		return replyThanks
	default:
		return replyGeneric
	}
}
