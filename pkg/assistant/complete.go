package assistant

import (
	"slices"

	"nebulaone/pkg/domain"
)

// MarkAsCompleted returns a copy of t that is completed and read. The
// caller persists it.
func MarkAsCompleted(t domain.EmailThread) domain.EmailThread {
	out := t
	out.Emails = slices.Clone(t.Emails)
	out.Participants = slices.Clone(t.Participants)
	out.Labels = slices.Clone(t.Labels)
	out.IsCompleted = true
	out.IsRead = true
	return out
}
