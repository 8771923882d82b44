package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"nebulaone/internal/util"
	"nebulaone/pkg/domain"
)

// MemoryStore keeps the whole workspace in-process. One store-wide lock
// guards every map so an entity write and its timeline append are never
// observed apart.
type MemoryStore struct {
	mu  sync.RWMutex
	now func() time.Time

	users     map[string]domain.User
	usernames map[string]string // username -> user ID
	userOrder []string

	tasks     map[string]domain.Task
	taskOrder []string

	chats     map[string]domain.Chat
	messages  map[string][]domain.Message // chat ID -> append order
	chatOrder []string

	documents map[string]domain.Document
	docOrder  []string

	meetings     map[string]domain.Meeting
	meetingOrder []string

	threads     map[string]domain.EmailThread
	threadOrder []string

	timeline []domain.TimelineItem // insertion order, Data never set
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		now:       o.now,
		users:     make(map[string]domain.User),
		usernames: make(map[string]string),
		tasks:     make(map[string]domain.Task),
		chats:     make(map[string]domain.Chat),
		messages:  make(map[string][]domain.Message),
		documents: make(map[string]domain.Document),
		meetings:  make(map[string]domain.Meeting),
		threads:   make(map[string]domain.EmailThread),
	}
}

func (m *MemoryStore) stamp() time.Time {
	return m.now().UTC()
}

// freshID returns an id not yet used by taken.
func freshID(taken func(string) bool) string {
	for {
		id := util.NewID()
		if !taken(id) {
			return id
		}
	}
}

// appendTimeline must be called with the write lock held.
func (m *MemoryStore) appendTimeline(kind domain.EntityKind, itemID string, at time.Time) domain.TimelineItem {
	item := domain.TimelineItem{
		ID: freshID(func(id string) bool {
			for _, it := range m.timeline {
				if it.ID == id {
					return true
				}
			}
			return false
		}),
		Type:      kind,
		ItemID:    itemID,
		CreatedAt: at,
	}
	m.timeline = append(m.timeline, item)
	return item
}

func (m *MemoryStore) userExists(id string) bool {
	_, ok := m.users[id]
	return ok
}

func (m *MemoryStore) checkUsers(ids ...string) error {
	for _, id := range ids {
		if id == "" {
			continue
		}
		if !m.userExists(id) {
			return fmt.Errorf("user %q: %w", id, ErrUnknownReference)
		}
	}
	return nil
}

// users

// CreateUser registers a user. Usernames are unique.
func (m *MemoryStore) CreateUser(u domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createUser(u)
}

// RegisterUser creates u, as admin when no user exists yet.
func (m *MemoryStore) RegisterUser(u domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.Role = domain.RoleUser
	if len(m.users) == 0 {
		u.Role = domain.RoleAdmin
	}
	return m.createUser(u)
}

// createUser must be called with the write lock held.
func (m *MemoryStore) createUser(u domain.User) (domain.User, error) {
	u = prepareUser(u, m.stamp())
	if _, exists := m.usernames[u.Username]; exists {
		return domain.User{}, ErrUsernameTaken
	}
	if u.ID == "" || m.userExists(u.ID) {
		u.ID = freshID(m.userExists)
	}
	m.users[u.ID] = u
	m.usernames[u.Username] = u.ID
	m.userOrder = append(m.userOrder, u.ID)
	return u, nil
}

// GetUser returns a user by ID.
func (m *MemoryStore) GetUser(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// GetUserByUsername looks up a user by username.
func (m *MemoryStore) GetUserByUsername(username string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.usernames[strings.TrimSpace(username)]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

// UpdateUser merges patch into the stored user.
func (m *MemoryStore) UpdateUser(id string, patch domain.UserPatch) (domain.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, false, nil
	}
	patch.Apply(&u)
	m.users[id] = u
	return u, true, nil
}

// ListUsers returns users in registration order.
func (m *MemoryStore) ListUsers() ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.User, 0, len(m.userOrder))
	for _, id := range m.userOrder {
		res = append(res, m.users[id])
	}
	return res, nil
}

// UserCount returns number of users.
func (m *MemoryStore) UserCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

func (m *MemoryStore) lookupUser(id string) (*domain.User, bool) {
	u, ok := m.users[id]
	if !ok {
		return nil, false
	}
	return &u, true
}

func (m *MemoryStore) resolveUsers(ids []string) []domain.User {
	out := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out
}

// tasks

func (m *MemoryStore) hydrateTask(t domain.Task) (domain.Task, bool) {
	if t.AssigneeID == "" {
		t.Assignee = nil
		return t, true
	}
	u, ok := m.lookupUser(t.AssigneeID)
	if !ok {
		return domain.Task{}, false
	}
	t.Assignee = u
	return t, true
}

// ListTasks returns tasks in insertion order. Tasks whose assignee no
// longer resolves are omitted.
func (m *MemoryStore) ListTasks() ([]domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Task, 0, len(m.taskOrder))
	for _, id := range m.taskOrder {
		if t, ok := m.hydrateTask(m.tasks[id]); ok {
			res = append(res, t)
		}
	}
	return res, nil
}

// GetTask returns one hydrated task.
func (m *MemoryStore) GetTask(id string) (domain.Task, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.getTask(id)
	return t, ok, nil
}

func (m *MemoryStore) getTask(id string) (domain.Task, bool) {
	t, ok := m.tasks[id]
	if !ok {
		return domain.Task{}, false
	}
	return m.hydrateTask(t)
}

// CreateTask stores a task and appends its timeline item.
func (m *MemoryStore) CreateTask(t domain.Task) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUsers(t.AssigneeID); err != nil {
		return domain.Task{}, err
	}
	now := m.stamp()
	t = prepareTask(t, len(m.tasks), now)
	t.ID = freshID(func(id string) bool { _, ok := m.tasks[id]; return ok })
	m.tasks[t.ID] = t
	m.taskOrder = append(m.taskOrder, t.ID)
	m.appendTimeline(domain.KindTask, t.ID, now)
	hydrated, _ := m.hydrateTask(t)
	return hydrated, nil
}

// UpdateTask merges patch and re-hydrates the assignee.
func (m *MemoryStore) UpdateTask(id string, patch domain.TaskPatch) (domain.Task, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return domain.Task{}, false, nil
	}
	if patch.AssigneeID != nil {
		if err := m.checkUsers(*patch.AssigneeID); err != nil {
			return domain.Task{}, false, err
		}
	}
	patch.Apply(&t)
	t.UpdatedAt = m.stamp()
	m.tasks[id] = t
	hydrated, ok := m.hydrateTask(t)
	return hydrated, ok, nil
}

// chats

func (m *MemoryStore) hydrateChat(c domain.Chat) domain.Chat {
	stored := m.messages[c.ID]
	c.Messages = make([]domain.Message, 0, len(stored))
	for _, msg := range stored {
		author, ok := m.lookupUser(msg.AuthorID)
		if !ok {
			continue
		}
		msg.Author = author
		c.Messages = append(c.Messages, msg)
	}
	return c
}

// ListChats returns chats with their messages in append order.
func (m *MemoryStore) ListChats() ([]domain.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Chat, 0, len(m.chatOrder))
	for _, id := range m.chatOrder {
		res = append(res, m.hydrateChat(m.chats[id]))
	}
	return res, nil
}

// GetChat returns one chat with messages.
func (m *MemoryStore) GetChat(id string) (domain.Chat, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chats[id]
	if !ok {
		return domain.Chat{}, false, nil
	}
	return m.hydrateChat(c), true, nil
}

// CreateChat stores a chat, any initial messages, and its timeline item.
func (m *MemoryStore) CreateChat(c domain.Chat) (domain.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range c.Messages {
		if err := m.checkUsers(msg.AuthorID); err != nil {
			return domain.Chat{}, err
		}
		if msg.AuthorID == "" {
			return domain.Chat{}, fmt.Errorf("message author: %w", ErrUnknownReference)
		}
	}
	now := m.stamp()
	initial := c.Messages
	c = prepareChat(c, now)
	c.ID = freshID(func(id string) bool { _, ok := m.chats[id]; return ok })
	c.Messages = nil
	m.chats[c.ID] = c
	m.chatOrder = append(m.chatOrder, c.ID)
	for _, msg := range initial {
		m.appendMessage(c.ID, msg, now)
	}
	m.appendTimeline(domain.KindChat, c.ID, now)
	return m.hydrateChat(c), nil
}

func (m *MemoryStore) appendMessage(chatID string, msg domain.Message, now time.Time) domain.Message {
	msg = prepareMessage(chatID, msg, now)
	msg.ID = freshID(func(id string) bool {
		for _, existing := range m.messages[chatID] {
			if existing.ID == id {
				return true
			}
		}
		return false
	})
	m.messages[chatID] = append(m.messages[chatID], msg)
	return msg
}

// AddMessage appends msg to the chat. The author must exist.
func (m *MemoryStore) AddMessage(chatID string, msg domain.Message) (domain.Message, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chats[chatID]; !ok {
		return domain.Message{}, false, nil
	}
	author, ok := m.lookupUser(msg.AuthorID)
	if !ok {
		return domain.Message{}, false, fmt.Errorf("message author %q: %w", msg.AuthorID, ErrUnknownReference)
	}
	msg = m.appendMessage(chatID, msg, m.stamp())
	msg.Author = author
	return msg, true, nil
}

// documents

func (m *MemoryStore) hydrateDocument(d domain.Document) domain.Document {
	d.CollaboratorIDs = append([]string{}, d.CollaboratorIDs...)
	d.Collaborators = m.resolveUsers(d.CollaboratorIDs)
	return d
}

// ListDocuments returns documents in insertion order.
func (m *MemoryStore) ListDocuments() ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Document, 0, len(m.docOrder))
	for _, id := range m.docOrder {
		res = append(res, m.hydrateDocument(m.documents[id]))
	}
	return res, nil
}

// GetDocument returns one document with collaborators.
func (m *MemoryStore) GetDocument(id string) (domain.Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	if !ok {
		return domain.Document{}, false, nil
	}
	return m.hydrateDocument(d), true, nil
}

// CreateDocument stores a document and appends its timeline item.
func (m *MemoryStore) CreateDocument(d domain.Document) (domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.stamp()
	d = prepareDocument(d, now)
	if err := m.checkUsers(d.CollaboratorIDs...); err != nil {
		return domain.Document{}, err
	}
	d.ID = freshID(func(id string) bool { _, ok := m.documents[id]; return ok })
	m.documents[d.ID] = d
	m.docOrder = append(m.docOrder, d.ID)
	m.appendTimeline(domain.KindDocument, d.ID, now)
	return m.hydrateDocument(d), nil
}

// UpdateDocument merges patch. A collaborator list replaces the old set.
func (m *MemoryStore) UpdateDocument(id string, patch domain.DocumentPatch) (domain.Document, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok {
		return domain.Document{}, false, nil
	}
	if patch.CollaboratorIDs != nil {
		if err := m.checkUsers(*patch.CollaboratorIDs...); err != nil {
			return domain.Document{}, false, err
		}
	}
	patch.Apply(&d)
	d.UpdatedAt = m.stamp()
	m.documents[id] = d
	return m.hydrateDocument(d), true, nil
}

// meetings

func (m *MemoryStore) hydrateMeeting(mt domain.Meeting) domain.Meeting {
	mt.ParticipantIDs = append([]string{}, mt.ParticipantIDs...)
	mt.ActionItems = append([]string{}, mt.ActionItems...)
	mt.Participants = m.resolveUsers(mt.ParticipantIDs)
	return mt
}

// ListMeetings returns meetings in insertion order.
func (m *MemoryStore) ListMeetings() ([]domain.Meeting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Meeting, 0, len(m.meetingOrder))
	for _, id := range m.meetingOrder {
		res = append(res, m.hydrateMeeting(m.meetings[id]))
	}
	return res, nil
}

// GetMeeting returns one meeting with participants.
func (m *MemoryStore) GetMeeting(id string) (domain.Meeting, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mt, ok := m.meetings[id]
	if !ok {
		return domain.Meeting{}, false, nil
	}
	return m.hydrateMeeting(mt), true, nil
}

// CreateMeeting stores a meeting and appends its timeline item.
func (m *MemoryStore) CreateMeeting(mt domain.Meeting) (domain.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.stamp()
	mt = prepareMeeting(mt, now)
	if err := m.checkUsers(mt.ParticipantIDs...); err != nil {
		return domain.Meeting{}, err
	}
	mt.ID = freshID(func(id string) bool { _, ok := m.meetings[id]; return ok })
	m.meetings[mt.ID] = mt
	m.meetingOrder = append(m.meetingOrder, mt.ID)
	m.appendTimeline(domain.KindMeeting, mt.ID, now)
	return m.hydrateMeeting(mt), nil
}

// UpdateMeeting merges patch. A participant list replaces the old set.
func (m *MemoryStore) UpdateMeeting(id string, patch domain.MeetingPatch) (domain.Meeting, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt, ok := m.meetings[id]
	if !ok {
		return domain.Meeting{}, false, nil
	}
	if patch.ParticipantIDs != nil {
		if err := m.checkUsers(*patch.ParticipantIDs...); err != nil {
			return domain.Meeting{}, false, err
		}
	}
	patch.Apply(&mt)
	m.meetings[id] = mt
	return m.hydrateMeeting(mt), true, nil
}

// email threads

// ListEmailThreads returns threads in insertion order.
func (m *MemoryStore) ListEmailThreads() ([]domain.EmailThread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.EmailThread, 0, len(m.threadOrder))
	for _, id := range m.threadOrder {
		res = append(res, cloneThread(m.threads[id]))
	}
	return res, nil
}

// GetEmailThread returns one thread.
func (m *MemoryStore) GetEmailThread(id string) (domain.EmailThread, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.threads[id]
	if !ok {
		return domain.EmailThread{}, false, nil
	}
	return cloneThread(t), true, nil
}

// CreateEmailThread stores a thread and appends its timeline item.
func (m *MemoryStore) CreateEmailThread(t domain.EmailThread) (domain.EmailThread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.stamp()
	t = cloneThread(prepareEmailThread(t, now))
	t.ID = freshID(func(id string) bool { _, ok := m.threads[id]; return ok })
	m.threads[t.ID] = t
	m.threadOrder = append(m.threadOrder, t.ID)
	m.appendTimeline(domain.KindEmail, t.ID, now)
	return cloneThread(t), nil
}

// UpdateEmailThread merges patch into the stored thread.
func (m *MemoryStore) UpdateEmailThread(id string, patch domain.EmailThreadPatch) (domain.EmailThread, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[id]
	if !ok {
		return domain.EmailThread{}, false, nil
	}
	patch.Apply(&t)
	t = cloneThread(t)
	m.threads[id] = t
	return cloneThread(t), true, nil
}

// AppendEmail adds an email to the thread and marks it unread.
func (m *MemoryStore) AppendEmail(threadID string, email domain.Email) (domain.EmailThread, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[threadID]
	if !ok {
		return domain.EmailThread{}, false, nil
	}
	t = cloneThread(appendEmailToThread(t, email, m.stamp()))
	m.threads[threadID] = t
	return cloneThread(t), true, nil
}

// AddAttachment records att on the email with emailID.
func (m *MemoryStore) AddAttachment(threadID, emailID string, att domain.Attachment) (domain.EmailThread, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[threadID]
	if !ok {
		return domain.EmailThread{}, false, nil
	}
	t = cloneThread(t)
	if !attachToEmail(&t, emailID, att) {
		return domain.EmailThread{}, false, nil
	}
	m.threads[threadID] = t
	return cloneThread(t), true, nil
}

// timeline

// hydrate resolves ref to its entity. Read lock must be held.
func (m *MemoryStore) hydrate(ref domain.EntityRef) (domain.Entity, bool, error) {
	switch ref.Kind {
	case domain.KindTask:
		t, ok := m.getTask(ref.ID)
		return t, ok, nil
	case domain.KindChat:
		c, ok := m.chats[ref.ID]
		if !ok {
			return nil, false, nil
		}
		return m.hydrateChat(c), true, nil
	case domain.KindDocument:
		d, ok := m.documents[ref.ID]
		if !ok {
			return nil, false, nil
		}
		return m.hydrateDocument(d), true, nil
	case domain.KindMeeting:
		mt, ok := m.meetings[ref.ID]
		if !ok {
			return nil, false, nil
		}
		return m.hydrateMeeting(mt), true, nil
	case domain.KindEmail:
		t, ok := m.threads[ref.ID]
		if !ok {
			return nil, false, nil
		}
		return cloneThread(t), true, nil
	default:
		return nil, false, fmt.Errorf("hydrate timeline item: unknown kind %q", ref.Kind)
	}
}

// ListTimeline returns hydrated items newest first; ties keep insertion
// order. Items whose entity no longer resolves are dropped.
func (m *MemoryStore) ListTimeline() ([]domain.TimelineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := append([]domain.TimelineItem(nil), m.timeline...)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	res := make([]domain.TimelineItem, 0, len(items))
	for _, item := range items {
		data, ok, err := m.hydrate(item.Ref())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		item.Data = data
		res = append(res, item)
	}
	return res, nil
}

// GetTimelineItem returns one hydrated item. A dangling item is not found.
func (m *MemoryStore) GetTimelineItem(id string) (domain.TimelineItem, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, item := range m.timeline {
		if item.ID != id {
			continue
		}
		data, ok, err := m.hydrate(item.Ref())
		if err != nil || !ok {
			return domain.TimelineItem{}, false, err
		}
		item.Data = data
		return item, true, nil
	}
	return domain.TimelineItem{}, false, nil
}

// AddTimelineItem appends an item pointing at an existing entity.
func (m *MemoryStore) AddTimelineItem(ref domain.EntityRef) (domain.TimelineItem, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok, err := m.hydrate(ref)
	if err != nil || !ok {
		return domain.TimelineItem{}, false, err
	}
	item := m.appendTimeline(ref.Kind, ref.ID, m.stamp())
	item.Data = data
	return item, true, nil
}

// CreationItem returns the earliest item for ref.
func (m *MemoryStore) CreationItem(ref domain.EntityRef) (domain.TimelineItem, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, item := range m.timeline {
		if item.Ref() == ref {
			return item, true, nil
		}
	}
	return domain.TimelineItem{}, false, nil
}
