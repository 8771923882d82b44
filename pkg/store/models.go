package store

import (
	"time"

	"gorm.io/datatypes"

	"nebulaone/pkg/domain"
)

// GORM models used for persistence. Seq columns record insertion order
// so reads can break created_at ties deterministically.
type UserModel struct {
	ID                   string `gorm:"primaryKey"`
	Username             string `gorm:"uniqueIndex;not null"`
	Email                string `gorm:"index"`
	Name                 string `gorm:"not null"`
	Initials             string
	Avatar               string
	PasswordHash         string
	Role                 string `gorm:"not null"`
	StripeCustomerID     string
	StripeSubscriptionID string
	Seq                  int64     `gorm:"not null;index"`
	CreatedAt            time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

type TaskModel struct {
	ID          string `gorm:"primaryKey"`
	TicketID    string `gorm:"not null"`
	Title       string `gorm:"not null"`
	Description string `gorm:"type:text"`
	Status      string `gorm:"not null"`
	AssigneeID  string `gorm:"index"`
	DueDate     string
	Project     string
	IsCompleted bool
	Seq         int64     `gorm:"not null;index"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (TaskModel) TableName() string { return "tasks" }

type ChatModel struct {
	ID        string `gorm:"primaryKey"`
	Title     string `gorm:"not null"`
	Channel   string
	Priority  string
	Seq       int64     `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null"`
}

func (ChatModel) TableName() string { return "chats" }

type MessageModel struct {
	ID          string `gorm:"primaryKey"`
	ChatID      string `gorm:"not null;index"`
	AuthorID    string `gorm:"not null"`
	Content     string `gorm:"type:text;not null"`
	CodeSnippet string `gorm:"type:text"`
	Time        string
	Seq         int64     `gorm:"not null;index"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (MessageModel) TableName() string { return "messages" }

type DocumentModel struct {
	ID         string `gorm:"primaryKey"`
	Title      string `gorm:"not null"`
	LastEdited string
	Content    string    `gorm:"type:text"`
	Seq        int64     `gorm:"not null;index"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (DocumentModel) TableName() string { return "documents" }

// DocumentCollaboratorModel is a pure edge row; Position keeps the order
// the collaborator list was written in.
type DocumentCollaboratorModel struct {
	DocumentID string `gorm:"primaryKey"`
	UserID     string `gorm:"primaryKey"`
	Position   int    `gorm:"not null"`
}

func (DocumentCollaboratorModel) TableName() string { return "document_collaborators" }

type MeetingModel struct {
	ID                string `gorm:"primaryKey"`
	Title             string `gorm:"not null"`
	StartTime         string
	EndTime           string
	Summary           string `gorm:"type:text"`
	SummaryConfidence int
	ActionItems       datatypes.JSONType[[]string]
	RecordingURL      string
	Seq               int64     `gorm:"not null;index"`
	CreatedAt         time.Time `gorm:"not null"`
}

func (MeetingModel) TableName() string { return "meetings" }

type MeetingParticipantModel struct {
	MeetingID string `gorm:"primaryKey"`
	UserID    string `gorm:"primaryKey"`
	Position  int    `gorm:"not null"`
}

func (MeetingParticipantModel) TableName() string { return "meeting_participants" }

// EmailThreadModel stores a whole thread; individual emails live in a
// JSON column because they are only ever read with their thread.
type EmailThreadModel struct {
	ID                string `gorm:"primaryKey"`
	Subject           string `gorm:"not null"`
	Participants      datatypes.JSONType[[]domain.EmailParticipant]
	Messages          datatypes.JSONType[[]domain.Email]
	Labels            datatypes.JSONType[[]string]
	Category          string
	IsRead            bool
	IsStarred         bool
	IsImportant       bool
	IsCompleted       bool
	AISummary         string `gorm:"type:text"`
	SummaryConfidence int
	LastEmailAt       time.Time `gorm:"index"`
	Seq               int64     `gorm:"not null;index"`
	CreatedAt         time.Time `gorm:"not null"`
}

func (EmailThreadModel) TableName() string { return "emails" }

// TimelineModel is the polymorphic index: Type + ItemID point at a row in
// one of the entity tables. No foreign key is declared.
type TimelineModel struct {
	ID        string    `gorm:"primaryKey"`
	Type      string    `gorm:"not null;index:idx_timeline_ref"`
	ItemID    string    `gorm:"not null;index:idx_timeline_ref"`
	Seq       int64     `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null;index"`
}

func (TimelineModel) TableName() string { return "timeline" }

// SequenceModel holds the last Seq handed out for one table.
type SequenceModel struct {
	Name  string `gorm:"primaryKey"`
	Value int64  `gorm:"not null"`
}

func (SequenceModel) TableName() string { return "sequences" }

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:                   u.ID,
		Username:             u.Username,
		Email:                u.Email,
		Name:                 u.Name,
		Initials:             u.Initials,
		Avatar:               u.Avatar,
		PasswordHash:         u.PasswordHash,
		Role:                 string(u.Role),
		StripeCustomerID:     u.StripeCustomerID,
		StripeSubscriptionID: u.StripeSubscriptionID,
		CreatedAt:            u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:                   m.ID,
		Username:             m.Username,
		Email:                m.Email,
		Name:                 m.Name,
		Initials:             m.Initials,
		Avatar:               m.Avatar,
		PasswordHash:         m.PasswordHash,
		Role:                 domain.UserRole(m.Role),
		StripeCustomerID:     m.StripeCustomerID,
		StripeSubscriptionID: m.StripeSubscriptionID,
		CreatedAt:            m.CreatedAt.UTC(),
	}
}

func taskToModel(t domain.Task) TaskModel {
	return TaskModel{
		ID:          t.ID,
		TicketID:    t.TicketID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		AssigneeID:  t.AssigneeID,
		DueDate:     t.DueDate,
		Project:     t.Project,
		IsCompleted: t.IsCompleted,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func taskFromModel(m TaskModel) domain.Task {
	return domain.Task{
		ID:          m.ID,
		TicketID:    m.TicketID,
		Title:       m.Title,
		Description: m.Description,
		Status:      domain.TaskStatus(m.Status),
		AssigneeID:  m.AssigneeID,
		DueDate:     m.DueDate,
		Project:     m.Project,
		IsCompleted: m.IsCompleted,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}

func chatToModel(c domain.Chat) ChatModel {
	return ChatModel{ID: c.ID, Title: c.Title, Channel: c.Channel, Priority: c.Priority, CreatedAt: c.CreatedAt}
}

func chatFromModel(m ChatModel) domain.Chat {
	return domain.Chat{
		ID:        m.ID,
		Title:     m.Title,
		Channel:   m.Channel,
		Priority:  m.Priority,
		Messages:  []domain.Message{},
		CreatedAt: m.CreatedAt.UTC(),
	}
}

func messageToModel(msg domain.Message) MessageModel {
	return MessageModel{
		ID:          msg.ID,
		ChatID:      msg.ChatID,
		AuthorID:    msg.AuthorID,
		Content:     msg.Content,
		CodeSnippet: msg.CodeSnippet,
		Time:        msg.Time,
		CreatedAt:   msg.CreatedAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	return domain.Message{
		ID:          m.ID,
		ChatID:      m.ChatID,
		AuthorID:    m.AuthorID,
		Content:     m.Content,
		CodeSnippet: m.CodeSnippet,
		Time:        m.Time,
		CreatedAt:   m.CreatedAt.UTC(),
	}
}

func documentToModel(d domain.Document) DocumentModel {
	return DocumentModel{
		ID:         d.ID,
		Title:      d.Title,
		LastEdited: d.LastEdited,
		Content:    d.Content,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

func documentFromModel(m DocumentModel) domain.Document {
	return domain.Document{
		ID:              m.ID,
		Title:           m.Title,
		LastEdited:      m.LastEdited,
		Content:         m.Content,
		CollaboratorIDs: []string{},
		Collaborators:   []domain.User{},
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
	}
}

func meetingToModel(mt domain.Meeting) MeetingModel {
	return MeetingModel{
		ID:                mt.ID,
		Title:             mt.Title,
		StartTime:         mt.StartTime,
		EndTime:           mt.EndTime,
		Summary:           mt.Summary,
		SummaryConfidence: mt.SummaryConfidence,
		ActionItems:       datatypes.NewJSONType(append([]string{}, mt.ActionItems...)),
		RecordingURL:      mt.RecordingURL,
		CreatedAt:         mt.CreatedAt,
	}
}

func meetingFromModel(m MeetingModel) domain.Meeting {
	return domain.Meeting{
		ID:                m.ID,
		Title:             m.Title,
		StartTime:         m.StartTime,
		EndTime:           m.EndTime,
		ParticipantIDs:    []string{},
		Participants:      []domain.User{},
		Summary:           m.Summary,
		SummaryConfidence: m.SummaryConfidence,
		ActionItems:       append([]string{}, m.ActionItems.Data()...),
		RecordingURL:      m.RecordingURL,
		CreatedAt:         m.CreatedAt.UTC(),
	}
}

func threadToModel(t domain.EmailThread) EmailThreadModel {
	return EmailThreadModel{
		ID:                t.ID,
		Subject:           t.Subject,
		Participants:      datatypes.NewJSONType(t.Participants),
		Messages:          datatypes.NewJSONType(t.Emails),
		Labels:            datatypes.NewJSONType(append([]string{}, t.Labels...)),
		Category:          t.Category,
		IsRead:            t.IsRead,
		IsStarred:         t.IsStarred,
		IsImportant:       t.IsImportant,
		IsCompleted:       t.IsCompleted,
		AISummary:         t.AISummary,
		SummaryConfidence: t.SummaryConfidence,
		LastEmailAt:       t.LastEmailAt,
		CreatedAt:         t.CreatedAt,
	}
}

func threadFromModel(m EmailThreadModel) domain.EmailThread {
	emails := m.Messages.Data()
	for i := range emails {
		emails[i].SentAt = emails[i].SentAt.UTC()
	}
	return cloneThread(domain.EmailThread{
		ID:                m.ID,
		Subject:           m.Subject,
		Participants:      m.Participants.Data(),
		Emails:            emails,
		Labels:            m.Labels.Data(),
		Category:          m.Category,
		IsRead:            m.IsRead,
		IsStarred:         m.IsStarred,
		IsImportant:       m.IsImportant,
		IsCompleted:       m.IsCompleted,
		AISummary:         m.AISummary,
		SummaryConfidence: m.SummaryConfidence,
		LastEmailAt:       m.LastEmailAt.UTC(),
		CreatedAt:         m.CreatedAt.UTC(),
	})
}
