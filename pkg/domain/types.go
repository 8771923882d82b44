package domain

import "time"

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "inprogress"
	TaskDone       TaskStatus = "done"
)

// Valid reports whether s is one of the known task statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskTodo, TaskInProgress, TaskDone:
		return true
	}
	return false
}

type TodoPriority string

const (
	PriorityLow    TodoPriority = "low"
	PriorityMedium TodoPriority = "medium"
	PriorityHigh   TodoPriority = "high"
)

type User struct {
	ID                   string    `json:"id"`
	Username             string    `json:"username"`
	Email                string    `json:"email"`
	Name                 string    `json:"name"`
	Initials             string    `json:"initials"`
	Avatar               string    `json:"avatar,omitempty"`
	PasswordHash         string    `json:"-"`
	Role                 UserRole  `json:"role"`
	StripeCustomerID     string    `json:"stripeCustomerId,omitempty"`
	StripeSubscriptionID string    `json:"stripeSubscriptionId,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
}

type Task struct {
	ID          string     `json:"id"`
	TicketID    string     `json:"ticketId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	AssigneeID  string     `json:"assigneeId"`
	Assignee    *User      `json:"assignee"`
	DueDate     string     `json:"dueDate"`
	Project     string     `json:"project"`
	IsCompleted bool       `json:"isCompleted"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Channel   string    `json:"channel"`
	Priority  string    `json:"priority"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
}

type Message struct {
	ID          string    `json:"id"`
	ChatID      string    `json:"chatId"`
	AuthorID    string    `json:"authorId"`
	Author      *User     `json:"author"`
	Content     string    `json:"content"`
	CodeSnippet string    `json:"codeSnippet,omitempty"`
	Time        string    `json:"time"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Document struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	LastEdited      string    `json:"lastEdited"`
	Content         string    `json:"content"`
	CollaboratorIDs []string  `json:"collaboratorIds"`
	Collaborators   []User    `json:"collaborators"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type Meeting struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	StartTime         string    `json:"startTime"`
	EndTime           string    `json:"endTime"`
	ParticipantIDs    []string  `json:"participantIds"`
	Participants      []User    `json:"participants"`
	Summary           string    `json:"summary"`
	SummaryConfidence int       `json:"summaryConfidence"`
	ActionItems       []string  `json:"actionItems"`
	RecordingURL      string    `json:"recordingUrl"`
	CreatedAt         time.Time `json:"createdAt"`
}

// EmailParticipant is a sender or recipient. It may or may not be a workspace user.
type EmailParticipant struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"`
}

type Attachment struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	Key  string `json:"key,omitempty"`
}

type Email struct {
	ID          string             `json:"id"`
	From        EmailParticipant   `json:"from"`
	To          []EmailParticipant `json:"to"`
	Cc          []EmailParticipant `json:"cc,omitempty"`
	Bcc         []EmailParticipant `json:"bcc,omitempty"`
	Subject     string             `json:"subject"`
	Body        string             `json:"body"`
	SentAt      time.Time          `json:"sentAt"`
	InReplyTo   string             `json:"inReplyTo,omitempty"`
	Attachments []Attachment       `json:"attachments,omitempty"`
	IsRead      bool               `json:"isRead"`
	IsStarred   bool               `json:"isStarred"`
	IsForwarded bool               `json:"isForwarded"`
	IsRepliedTo bool               `json:"isRepliedTo"`
	IsImportant bool               `json:"isImportant"`
}

// EmailThread groups emails that share a subject and participants. The
// summary, category, labels and completion flag are derived data.
type EmailThread struct {
	ID                string             `json:"id"`
	Subject           string             `json:"subject"`
	Participants      []EmailParticipant `json:"participants"`
	Emails            []Email            `json:"emails"`
	Labels            []string           `json:"labels"`
	Category          string             `json:"category"`
	IsRead            bool               `json:"isRead"`
	IsStarred         bool               `json:"isStarred"`
	IsImportant       bool               `json:"isImportant"`
	IsCompleted       bool               `json:"isCompleted"`
	AISummary         string             `json:"aiSummary,omitempty"`
	SummaryConfidence int                `json:"summaryConfidence,omitempty"`
	LastEmailAt       time.Time          `json:"lastEmailAt"`
	CreatedAt         time.Time          `json:"createdAt"`
}

// LatestEmail returns the most recently sent email of the thread.
func (t EmailThread) LatestEmail() (Email, bool) {
	if len(t.Emails) == 0 {
		return Email{}, false
	}
	latest := t.Emails[0]
	for _, e := range t.Emails[1:] {
		if !e.SentAt.Before(latest.SentAt) {
			latest = e
		}
	}
	return latest, true
}

// LastActivity is LastEmailAt, falling back to the newest email and then CreatedAt.
func (t EmailThread) LastActivity() time.Time {
	if !t.LastEmailAt.IsZero() {
		return t.LastEmailAt
	}
	if e, ok := t.LatestEmail(); ok {
		return e.SentAt
	}
	return t.CreatedAt
}

// HasAttachments reports whether any email in the thread carries an attachment.
func (t EmailThread) HasAttachments() bool {
	for _, e := range t.Emails {
		if len(e.Attachments) > 0 {
			return true
		}
	}
	return false
}

// TodoItem is derived from email content and never persisted.
type TodoItem struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	DueDate       string       `json:"dueDate,omitempty"`
	IsCompleted   bool         `json:"isCompleted"`
	Priority      TodoPriority `json:"priority"`
	EmailThreadID string       `json:"emailThreadId"`
	CreatedAt     time.Time    `json:"createdAt"`
}
