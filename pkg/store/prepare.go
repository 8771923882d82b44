package store

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"nebulaone/internal/util"
	"nebulaone/pkg/domain"
)

const defaultTicketPrefix = "NEB"

// ticketID builds "<PREFIX>-<n>" from the first three letters of project.
func ticketID(project string, n int) string {
	var b strings.Builder
	letters := 0
	for _, r := range project {
		if !unicode.IsLetter(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
		if letters++; letters == 3 {
			break
		}
	}
	prefix := b.String()
	if prefix == "" {
		prefix = defaultTicketPrefix
	}
	return fmt.Sprintf("%s-%d", prefix, n)
}

func prepareUser(u domain.User, now time.Time) domain.User {
	u.Username = strings.TrimSpace(u.Username)
	u.Email = strings.TrimSpace(u.Email)
	if u.Name == "" {
		u.Name = u.Username
	}
	if u.Initials == "" {
		u.Initials = domain.Initials(u.Name)
	}
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	return u
}

// prepareTask fills defaults. taskCount is the number of existing tasks.
func prepareTask(t domain.Task, taskCount int, now time.Time) domain.Task {
	if t.Status == "" {
		t.Status = domain.TaskTodo
	}
	if t.Status == domain.TaskDone {
		t.IsCompleted = true
	}
	if strings.TrimSpace(t.TicketID) == "" {
		t.TicketID = ticketID(t.Project, taskCount+1)
	}
	t.Assignee = nil
	t.CreatedAt = now
	t.UpdatedAt = now
	return t
}

func prepareChat(c domain.Chat, now time.Time) domain.Chat {
	if c.Priority == "" {
		c.Priority = "medium"
	}
	c.CreatedAt = now
	return c
}

func prepareMessage(chatID string, m domain.Message, now time.Time) domain.Message {
	m.ChatID = chatID
	m.Author = nil
	m.CreatedAt = now
	if m.Time == "" {
		m.Time = now.Format("15:04")
	}
	return m
}

func prepareDocument(d domain.Document, now time.Time) domain.Document {
	d.CollaboratorIDs = domain.UniqueIDs(d.CollaboratorIDs)
	d.Collaborators = nil
	if d.LastEdited == "" {
		d.LastEdited = "Just now"
	}
	d.CreatedAt = now
	d.UpdatedAt = now
	return d
}

func prepareMeeting(m domain.Meeting, now time.Time) domain.Meeting {
	m.ParticipantIDs = domain.UniqueIDs(m.ParticipantIDs)
	m.Participants = nil
	m.ActionItems = append([]string{}, m.ActionItems...)
	m.CreatedAt = now
	return m
}

func prepareEmail(e domain.Email, now time.Time) domain.Email {
	if e.ID == "" {
		e.ID = util.NewID()
	}
	if e.SentAt.IsZero() {
		e.SentAt = now
	}
	return e
}

func prepareEmailThread(t domain.EmailThread, now time.Time) domain.EmailThread {
	emails := make([]domain.Email, 0, len(t.Emails))
	for _, e := range t.Emails {
		emails = append(emails, prepareEmail(e, now))
	}
	t.Emails = emails
	if t.Subject == "" && len(emails) > 0 {
		t.Subject = emails[0].Subject
	}
	if len(t.Participants) == 0 {
		t.Participants = participantsOf(emails)
	}
	if t.Labels == nil {
		t.Labels = []string{}
	}
	t.LastEmailAt = domain.LatestSentAt(emails)
	t.CreatedAt = now
	return t
}

// appendEmailToThread adds e, marks the thread unread and refreshes the
// participant list and LastEmailAt.
func appendEmailToThread(t domain.EmailThread, e domain.Email, now time.Time) domain.EmailThread {
	e = prepareEmail(e, now)
	if e.Subject == "" {
		e.Subject = t.Subject
	}
	t.Emails = append(append([]domain.Email{}, t.Emails...), e)
	t.Participants = mergeParticipants(t.Participants, participantsOf([]domain.Email{e}))
	t.IsRead = false
	t.IsCompleted = false
	t.LastEmailAt = domain.LatestSentAt(t.Emails)
	return t
}

func participantsOf(emails []domain.Email) []domain.EmailParticipant {
	var out []domain.EmailParticipant
	for _, e := range emails {
		out = mergeParticipants(out, append([]domain.EmailParticipant{e.From}, e.To...))
		out = mergeParticipants(out, e.Cc)
	}
	return out
}

// mergeParticipants appends members of add not already present, matched
// by lower-cased address.
func mergeParticipants(base, add []domain.EmailParticipant) []domain.EmailParticipant {
	out := append([]domain.EmailParticipant{}, base...)
	seen := make(map[string]struct{}, len(out))
	for _, p := range out {
		seen[strings.ToLower(p.Email)] = struct{}{}
	}
	for _, p := range add {
		key := strings.ToLower(strings.TrimSpace(p.Email))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}

func cloneThread(t domain.EmailThread) domain.EmailThread {
	t.Participants = append([]domain.EmailParticipant{}, t.Participants...)
	t.Labels = append([]string{}, t.Labels...)
	emails := make([]domain.Email, len(t.Emails))
	for i, e := range t.Emails {
		e.To = append([]domain.EmailParticipant(nil), e.To...)
		e.Cc = append([]domain.EmailParticipant(nil), e.Cc...)
		e.Bcc = append([]domain.EmailParticipant(nil), e.Bcc...)
		e.Attachments = append([]domain.Attachment(nil), e.Attachments...)
		emails[i] = e
	}
	t.Emails = emails
	return t
}

// attachToEmail adds att to the email with emailID. It reports false when
// the thread has no such email.
func attachToEmail(t *domain.EmailThread, emailID string, att domain.Attachment) bool {
	for i := range t.Emails {
		if t.Emails[i].ID != emailID {
			continue
		}
		t.Emails[i].Attachments = append(append([]domain.Attachment(nil), t.Emails[i].Attachments...), att)
		return true
	}
	return false
}
