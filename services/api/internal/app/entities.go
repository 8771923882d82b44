package app

import (
	"fmt"
	"strings"

	"nebulaone/pkg/domain"
)

// ListTimeline returns the hydrated feed, newest first.
func (a *App) ListTimeline() ([]domain.TimelineItem, error) {
	items, err := a.store.ListTimeline()
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	return items, nil
}

func (a *App) GetTimelineItem(id string) (domain.TimelineItem, error) {
	item, ok, err := a.store.GetTimelineItem(id)
	if err != nil {
		return domain.TimelineItem{}, fmt.Errorf("get timeline item: %w", err)
	}
	if !ok {
		return domain.TimelineItem{}, ErrNotFound
	}
	return item, nil
}

// AddTimelineItem records an extra feed entry for an existing entity.
func (a *App) AddTimelineItem(ref domain.EntityRef) (domain.TimelineItem, error) {
	if _, err := domain.ParseEntityKind(string(ref.Kind)); err != nil {
		return domain.TimelineItem{}, invalidf("%s", err.Error())
	}
	if strings.TrimSpace(ref.ID) == "" {
		return domain.TimelineItem{}, invalidf("itemId is required")
	}
	item, ok, err := a.store.AddTimelineItem(ref)
	if err != nil {
		return domain.TimelineItem{}, fmt.Errorf("add timeline item: %w", err)
	}
	if !ok {
		return domain.TimelineItem{}, ErrNotFound
	}
	a.publishItem(item)
	return item, nil
}

func (a *App) ListTasks() ([]domain.Task, error) {
	tasks, err := a.store.ListTasks()
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (a *App) GetTask(id string) (domain.Task, error) {
	task, ok, err := a.store.GetTask(id)
	if err != nil {
		return domain.Task{}, fmt.Errorf("get task: %w", err)
	}
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	return task, nil
}

func (a *App) CreateTask(t domain.Task) (domain.Task, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return domain.Task{}, invalidf("title is required")
	}
	if t.Status != "" && !t.Status.Valid() {
		return domain.Task{}, invalidf("unknown status %q", t.Status)
	}
	created, err := a.store.CreateTask(t)
	if err != nil {
		return domain.Task{}, translateStoreErr("create task", err)
	}
	a.publish(created, created.CreatedAt)
	return created, nil
}

func (a *App) UpdateTask(id string, patch domain.TaskPatch) (domain.Task, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return domain.Task{}, invalidf("unknown status %q", *patch.Status)
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return domain.Task{}, invalidf("title cannot be empty")
	}
	task, ok, err := a.store.UpdateTask(id, patch)
	if err != nil {
		return domain.Task{}, translateStoreErr("update task", err)
	}
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	return task, nil
}

func (a *App) ListChats() ([]domain.Chat, error) {
	chats, err := a.store.ListChats()
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}

func (a *App) GetChat(id string) (domain.Chat, error) {
	chat, ok, err := a.store.GetChat(id)
	if err != nil {
		return domain.Chat{}, fmt.Errorf("get chat: %w", err)
	}
	if !ok {
		return domain.Chat{}, ErrNotFound
	}
	return chat, nil
}

func (a *App) CreateChat(c domain.Chat) (domain.Chat, error) {
	c.Title = strings.TrimSpace(c.Title)
	if c.Title == "" {
		return domain.Chat{}, invalidf("title is required")
	}
	for _, m := range c.Messages {
		if strings.TrimSpace(m.Content) == "" {
			return domain.Chat{}, invalidf("message content is required")
		}
	}
	created, err := a.store.CreateChat(c)
	if err != nil {
		return domain.Chat{}, translateStoreErr("create chat", err)
	}
	a.publish(created, created.CreatedAt)
	return created, nil
}

// AddMessage appends a message to a chat.
func (a *App) AddMessage(chatID string, msg domain.Message) (domain.Message, error) {
	if strings.TrimSpace(msg.Content) == "" {
		return domain.Message{}, invalidf("content is required")
	}
	if strings.TrimSpace(msg.AuthorID) == "" {
		return domain.Message{}, invalidf("authorId is required")
	}
	created, ok, err := a.store.AddMessage(chatID, msg)
	if err != nil {
		return domain.Message{}, translateStoreErr("add message", err)
	}
	if !ok {
		return domain.Message{}, ErrNotFound
	}
	return created, nil
}

func (a *App) ListDocuments() ([]domain.Document, error) {
	docs, err := a.store.ListDocuments()
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

func (a *App) GetDocument(id string) (domain.Document, error) {
	doc, ok, err := a.store.GetDocument(id)
	if err != nil {
		return domain.Document{}, fmt.Errorf("get document: %w", err)
	}
	if !ok {
		return domain.Document{}, ErrNotFound
	}
	return doc, nil
}

func (a *App) CreateDocument(d domain.Document) (domain.Document, error) {
	d.Title = strings.TrimSpace(d.Title)
	if d.Title == "" {
		return domain.Document{}, invalidf("title is required")
	}
	created, err := a.store.CreateDocument(d)
	if err != nil {
		return domain.Document{}, translateStoreErr("create document", err)
	}
	a.publish(created, created.CreatedAt)
	return created, nil
}

// UpdateDocument merges the patch; a collaborator list replaces the old one.
func (a *App) UpdateDocument(id string, patch domain.DocumentPatch) (domain.Document, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return domain.Document{}, invalidf("title cannot be empty")
	}
	doc, ok, err := a.store.UpdateDocument(id, patch)
	if err != nil {
		return domain.Document{}, translateStoreErr("update document", err)
	}
	if !ok {
		return domain.Document{}, ErrNotFound
	}
	return doc, nil
}

func (a *App) ListMeetings() ([]domain.Meeting, error) {
	meetings, err := a.store.ListMeetings()
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	return meetings, nil
}

func (a *App) GetMeeting(id string) (domain.Meeting, error) {
	m, ok, err := a.store.GetMeeting(id)
	if err != nil {
		return domain.Meeting{}, fmt.Errorf("get meeting: %w", err)
	}
	if !ok {
		return domain.Meeting{}, ErrNotFound
	}
	return m, nil
}

func (a *App) CreateMeeting(m domain.Meeting) (domain.Meeting, error) {
	m.Title = strings.TrimSpace(m.Title)
	if m.Title == "" {
		return domain.Meeting{}, invalidf("title is required")
	}
	if err := checkConfidence(m.SummaryConfidence); err != nil {
		return domain.Meeting{}, err
	}
	created, err := a.store.CreateMeeting(m)
	if err != nil {
		return domain.Meeting{}, translateStoreErr("create meeting", err)
	}
	a.publish(created, created.CreatedAt)
	return created, nil
}

func (a *App) UpdateMeeting(id string, patch domain.MeetingPatch) (domain.Meeting, error) {
	if patch.SummaryConfidence != nil {
		if err := checkConfidence(*patch.SummaryConfidence); err != nil {
			return domain.Meeting{}, err
		}
	}
	m, ok, err := a.store.UpdateMeeting(id, patch)
	if err != nil {
		return domain.Meeting{}, translateStoreErr("update meeting", err)
	}
	if !ok {
		return domain.Meeting{}, ErrNotFound
	}
	return m, nil
}

func checkConfidence(c int) error {
	if c < 0 || c > 100 {
		return invalidf("summaryConfidence must be between 0 and 100")
	}
	return nil
}
