package domain

// Patch types carry partial updates. A nil field leaves the stored value
// untouched.

type UserPatch struct {
	Name                 *string   `json:"name,omitempty"`
	Email                *string   `json:"email,omitempty"`
	Avatar               *string   `json:"avatar,omitempty"`
	Role                 *UserRole `json:"role,omitempty"`
	StripeCustomerID     *string   `json:"stripeCustomerId,omitempty"`
	StripeSubscriptionID *string   `json:"stripeSubscriptionId,omitempty"`
}

type TaskPatch struct {
	TicketID    *string     `json:"ticketId,omitempty"`
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	Status      *TaskStatus `json:"status,omitempty"`
	AssigneeID  *string     `json:"assigneeId,omitempty"`
	DueDate     *string     `json:"dueDate,omitempty"`
	Project     *string     `json:"project,omitempty"`
	IsCompleted *bool       `json:"isCompleted,omitempty"`
}

type DocumentPatch struct {
	Title      *string `json:"title,omitempty"`
	LastEdited *string `json:"lastEdited,omitempty"`
	Content    *string `json:"content,omitempty"`
	// CollaboratorIDs replaces the whole collaborator set when non-nil.
	CollaboratorIDs *[]string `json:"collaboratorIds,omitempty"`
}

type MeetingPatch struct {
	Title             *string `json:"title,omitempty"`
	StartTime         *string `json:"startTime,omitempty"`
	EndTime           *string `json:"endTime,omitempty"`
	Summary           *string `json:"summary,omitempty"`
	SummaryConfidence *int    `json:"summaryConfidence,omitempty"`
	RecordingURL      *string `json:"recordingUrl,omitempty"`
	// ActionItems and ParticipantIDs replace the stored lists when non-nil.
	ActionItems    *[]string `json:"actionItems,omitempty"`
	ParticipantIDs *[]string `json:"participantIds,omitempty"`
}

type EmailThreadPatch struct {
	Subject           *string   `json:"subject,omitempty"`
	Labels            *[]string `json:"labels,omitempty"`
	Category          *string   `json:"category,omitempty"`
	IsRead            *bool     `json:"isRead,omitempty"`
	IsStarred         *bool     `json:"isStarred,omitempty"`
	IsImportant       *bool     `json:"isImportant,omitempty"`
	IsCompleted       *bool     `json:"isCompleted,omitempty"`
	AISummary         *string   `json:"aiSummary,omitempty"`
	SummaryConfidence *int      `json:"summaryConfidence,omitempty"`
	Emails            *[]Email  `json:"emails,omitempty"`
}

// Apply merges the patch into u.
func (p UserPatch) Apply(u *User) {
	if p.Name != nil {
		u.Name = *p.Name
		u.Initials = Initials(*p.Name)
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Avatar != nil {
		u.Avatar = *p.Avatar
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.StripeCustomerID != nil {
		u.StripeCustomerID = *p.StripeCustomerID
	}
	if p.StripeSubscriptionID != nil {
		u.StripeSubscriptionID = *p.StripeSubscriptionID
	}
}

// Apply merges the patch into t. The caller re-hydrates Assignee.
func (p TaskPatch) Apply(t *Task) {
	if p.TicketID != nil {
		t.TicketID = *p.TicketID
	}
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
		t.IsCompleted = *p.Status == TaskDone
	}
	if p.AssigneeID != nil {
		t.AssigneeID = *p.AssigneeID
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	if p.Project != nil {
		t.Project = *p.Project
	}
	if p.IsCompleted != nil {
		t.IsCompleted = *p.IsCompleted
	}
}

// Apply merges the scalar fields into d. Collaborators are handled by the store.
func (p DocumentPatch) Apply(d *Document) {
	if p.Title != nil {
		d.Title = *p.Title
	}
	if p.LastEdited != nil {
		d.LastEdited = *p.LastEdited
	}
	if p.Content != nil {
		d.Content = *p.Content
	}
	if p.CollaboratorIDs != nil {
		d.CollaboratorIDs = UniqueIDs(*p.CollaboratorIDs)
	}
}

// Apply merges the patch into m. Participants are handled by the store.
func (p MeetingPatch) Apply(m *Meeting) {
	if p.Title != nil {
		m.Title = *p.Title
	}
	if p.StartTime != nil {
		m.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		m.EndTime = *p.EndTime
	}
	if p.Summary != nil {
		m.Summary = *p.Summary
	}
	if p.SummaryConfidence != nil {
		m.SummaryConfidence = *p.SummaryConfidence
	}
	if p.RecordingURL != nil {
		m.RecordingURL = *p.RecordingURL
	}
	if p.ActionItems != nil {
		m.ActionItems = append([]string(nil), (*p.ActionItems)...)
	}
	if p.ParticipantIDs != nil {
		m.ParticipantIDs = UniqueIDs(*p.ParticipantIDs)
	}
}

// Apply merges the patch into t.
func (p EmailThreadPatch) Apply(t *EmailThread) {
	if p.Subject != nil {
		t.Subject = *p.Subject
	}
	if p.Labels != nil {
		t.Labels = append([]string(nil), (*p.Labels)...)
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.IsRead != nil {
		t.IsRead = *p.IsRead
	}
	if p.IsStarred != nil {
		t.IsStarred = *p.IsStarred
	}
	if p.IsImportant != nil {
		t.IsImportant = *p.IsImportant
	}
	if p.IsCompleted != nil {
		t.IsCompleted = *p.IsCompleted
	}
	if p.AISummary != nil {
		t.AISummary = *p.AISummary
	}
	if p.SummaryConfidence != nil {
		t.SummaryConfidence = *p.SummaryConfidence
	}
	if p.Emails != nil {
		t.Emails = append([]Email(nil), (*p.Emails)...)
		t.LastEmailAt = LatestSentAt(t.Emails)
	}
}
