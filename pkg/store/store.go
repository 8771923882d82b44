package store

import (
	"errors"
	"time"

	"nebulaone/pkg/domain"
)

// ErrUnknownReference is returned when a write names a user that does not exist.
var ErrUnknownReference = errors.New("store: unknown reference")

// ErrUsernameTaken is returned by CreateUser for a duplicate username.
var ErrUsernameTaken = errors.New("store: username taken")

// Store defines persistence for every workspace entity. Lookups return
// (value, false, nil) when the record does not exist. Creating any entity
// other than a user also appends a timeline item in the same operation.
type Store interface {
	// users
	CreateUser(domain.User) (domain.User, error)
	// RegisterUser creates a user the way CreateUser does, except that the
	// first user of an empty store is made admin. The emptiness check and
	// the insert are one atomic step.
	RegisterUser(domain.User) (domain.User, error)
	GetUser(id string) (domain.User, bool, error)
	GetUserByUsername(username string) (domain.User, bool, error)
	UpdateUser(id string, patch domain.UserPatch) (domain.User, bool, error)
	ListUsers() ([]domain.User, error)
	UserCount() (int, error)

	// tasks
	ListTasks() ([]domain.Task, error)
	GetTask(id string) (domain.Task, bool, error)
	CreateTask(domain.Task) (domain.Task, error)
	UpdateTask(id string, patch domain.TaskPatch) (domain.Task, bool, error)

	// chats
	ListChats() ([]domain.Chat, error)
	GetChat(id string) (domain.Chat, bool, error)
	CreateChat(domain.Chat) (domain.Chat, error)
	AddMessage(chatID string, msg domain.Message) (domain.Message, bool, error)

	// documents
	ListDocuments() ([]domain.Document, error)
	GetDocument(id string) (domain.Document, bool, error)
	CreateDocument(domain.Document) (domain.Document, error)
	UpdateDocument(id string, patch domain.DocumentPatch) (domain.Document, bool, error)

	// meetings
	ListMeetings() ([]domain.Meeting, error)
	GetMeeting(id string) (domain.Meeting, bool, error)
	CreateMeeting(domain.Meeting) (domain.Meeting, error)
	UpdateMeeting(id string, patch domain.MeetingPatch) (domain.Meeting, bool, error)

	// email threads
	ListEmailThreads() ([]domain.EmailThread, error)
	GetEmailThread(id string) (domain.EmailThread, bool, error)
	CreateEmailThread(domain.EmailThread) (domain.EmailThread, error)
	UpdateEmailThread(id string, patch domain.EmailThreadPatch) (domain.EmailThread, bool, error)
	AppendEmail(threadID string, email domain.Email) (domain.EmailThread, bool, error)
	// AddAttachment records att on one email of the thread. It reports
	// false when either the thread or the email does not exist.
	AddAttachment(threadID, emailID string, att domain.Attachment) (domain.EmailThread, bool, error)

	// timeline
	ListTimeline() ([]domain.TimelineItem, error)
	GetTimelineItem(id string) (domain.TimelineItem, bool, error)
	AddTimelineItem(ref domain.EntityRef) (domain.TimelineItem, bool, error)
	// CreationItem returns the item appended when ref's entity was
	// created, without Data.
	CreationItem(ref domain.EntityRef) (domain.TimelineItem, bool, error)
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}

// Option configures a store implementation.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used for CreatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
