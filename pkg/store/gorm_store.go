package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"nebulaone/internal/util"
	"nebulaone/pkg/domain"
)

const migrateLockID int64 = 62632851

// GormStore implements Store using GORM. Postgres in production; any
// dialector GORM supports works for tests.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore opens a Postgres database and runs auto-migrations.
func NewGormStore(dsn string, opts ...Option) (*GormStore, error) {
	return NewGormStoreWithDialector(postgres.Open(dsn), opts...)
}

// NewGormStoreWithDialector opens the database behind dialector and runs
// auto-migrations.
func NewGormStoreWithDialector(dialector gorm.Dialector, opts ...Option) (*GormStore, error) {
	o := buildOptions(opts)
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&UserModel{},
			&TaskModel{},
			&ChatModel{},
			&MessageModel{},
			&DocumentModel{},
			&DocumentCollaboratorModel{},
			&MeetingModel{},
			&MeetingParticipantModel{},
			&EmailThreadModel{},
			&TimelineModel{},
			&SequenceModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db, now: o.now}, nil
}

// DB exposes the underlying handle for health checks.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// withMigrationLock serializes migrations across replicas on Postgres.
// Other dialects run fn directly.
func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	if db.Dialector.Name() != "postgres" {
		return fn(db)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// stamp truncates to microseconds, the precision Postgres keeps.
func (s *GormStore) stamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

type tabler interface {
	TableName() string
}

// nextSeq allocates the next insertion sequence for model's table from
// its counter row. The row is incremented before it is read, so
// concurrent transactions wait on its lock until the holder commits.
func nextSeq(tx *gorm.DB, model tabler) (int64, error) {
	name := model.TableName()
	bumped, err := bumpSequence(tx, name)
	if err != nil {
		return 0, err
	}
	if !bumped {
		// First use: start from the rows already in the table.
		var maxSeq int64
		if err := tx.Model(model).Select("COALESCE(MAX(seq), 0)").Scan(&maxSeq).Error; err != nil {
			return 0, fmt.Errorf("next seq: %w", err)
		}
		seed := SequenceModel{Name: name, Value: maxSeq}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return 0, fmt.Errorf("seed seq %s: %w", name, err)
		}
		if _, err := bumpSequence(tx, name); err != nil {
			return 0, err
		}
	}
	var seq int64
	if err := tx.Model(&SequenceModel{}).Where("name = ?", name).Select("value").Scan(&seq).Error; err != nil {
		return 0, fmt.Errorf("read seq %s: %w", name, err)
	}
	return seq, nil
}

func bumpSequence(tx *gorm.DB, name string) (bool, error) {
	res := tx.Model(&SequenceModel{}).Where("name = ?", name).UpdateColumn("value", gorm.Expr("value + 1"))
	if res.Error != nil {
		return false, fmt.Errorf("bump seq %s: %w", name, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) appendTimeline(tx *gorm.DB, kind domain.EntityKind, itemID string, at time.Time) (domain.TimelineItem, error) {
	seq, err := nextSeq(tx, &TimelineModel{})
	if err != nil {
		return domain.TimelineItem{}, err
	}
	model := TimelineModel{ID: util.NewID(), Type: string(kind), ItemID: itemID, Seq: seq, CreatedAt: at}
	if err := tx.Create(&model).Error; err != nil {
		return domain.TimelineItem{}, fmt.Errorf("append timeline: %w", err)
	}
	return domain.TimelineItem{ID: model.ID, Type: kind, ItemID: itemID, CreatedAt: at}, nil
}

// checkUsers fails with ErrUnknownReference when any id is not a user.
func checkUsers(tx *gorm.DB, ids ...string) error {
	ids = domain.UniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	var found []string
	if err := tx.Model(&UserModel{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return fmt.Errorf("check users: %w", err)
	}
	if len(found) == len(ids) {
		return nil
	}
	known := make(map[string]struct{}, len(found))
	for _, id := range found {
		known[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("user %q: %w", id, ErrUnknownReference)
		}
	}
	return nil
}

// usersByID loads users in one query. Missing ids are absent from the map.
func usersByID(tx *gorm.DB, ids []string) (map[string]domain.User, error) {
	ids = domain.UniqueIDs(ids)
	out := make(map[string]domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var models []UserModel
	if err := tx.Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	for _, m := range models {
		out[m.ID] = userFromModel(m)
	}
	return out, nil
}

// scope narrows a query; nil means all rows.
type scope func(*gorm.DB) *gorm.DB

func byIDs(ids []string) scope {
	return func(db *gorm.DB) *gorm.DB { return db.Where("id IN ?", ids) }
}

func apply(db *gorm.DB, sc scope) *gorm.DB {
	if sc == nil {
		return db
	}
	return sc(db)
}

// users

// CreateUser registers a user.
func (s *GormStore) CreateUser(u domain.User) (domain.User, error) {
	return s.createUser(u, false)
}

// RegisterUser creates u, as admin when no user exists yet.
func (s *GormStore) RegisterUser(u domain.User) (domain.User, error) {
	return s.createUser(u, true)
}

// createUser takes the users sequence first. Its row lock serializes
// concurrent registrations, so the counts below see committed users.
func (s *GormStore) createUser(u domain.User, firstIsAdmin bool) (domain.User, error) {
	if firstIsAdmin {
		u.Role = domain.RoleUser
	}
	u = prepareUser(u, s.stamp())
	if u.ID == "" {
		u.ID = util.NewID()
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		seq, err := nextSeq(tx, &UserModel{})
		if err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&UserModel{}).Where("username = ?", u.Username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUsernameTaken
		}
		if firstIsAdmin {
			var total int64
			if err := tx.Model(&UserModel{}).Count(&total).Error; err != nil {
				return err
			}
			if total == 0 {
				u.Role = domain.RoleAdmin
			}
		}
		model := userToModel(u)
		model.Seq = seq
		return tx.Create(&model).Error
	})
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return domain.User{}, err
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// GetUser returns a user by ID.
func (s *GormStore) GetUser(id string) (domain.User, bool, error) {
	return s.firstUser("id = ?", id)
}

// GetUserByUsername looks up a user by username.
func (s *GormStore) GetUserByUsername(username string) (domain.User, bool, error) {
	return s.firstUser("username = ?", strings.TrimSpace(username))
}

func (s *GormStore) firstUser(query string, arg any) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where(query, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// UpdateUser merges patch into the stored user.
func (s *GormStore) UpdateUser(id string, patch domain.UserPatch) (domain.User, bool, error) {
	var (
		out   domain.User
		found bool
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var model UserModel
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		u := userFromModel(model)
		patch.Apply(&u)
		updated := userToModel(u)
		updated.Seq = model.Seq
		if err := tx.Save(&updated).Error; err != nil {
			return err
		}
		out, found = u, true
		return nil
	})
	if err != nil {
		return domain.User{}, false, fmt.Errorf("update user: %w", err)
	}
	return out, found, nil
}

// ListUsers returns users in registration order.
func (s *GormStore) ListUsers() ([]domain.User, error) {
	var models []UserModel
	if err := s.db.Order("seq ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// UserCount returns number of users.
func (s *GormStore) UserCount() (int, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// tasks

// findTasks loads tasks in insertion order with assignees hydrated in one
// batch. Tasks whose assignee does not resolve are omitted.
func findTasks(tx *gorm.DB, sc scope) ([]domain.Task, error) {
	var models []TaskModel
	if err := apply(tx, sc).Order("seq ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	assigneeIDs := make([]string, 0, len(models))
	for _, m := range models {
		assigneeIDs = append(assigneeIDs, m.AssigneeID)
	}
	users, err := usersByID(tx, assigneeIDs)
	if err != nil {
		return nil, err
	}
	res := make([]domain.Task, 0, len(models))
	for _, m := range models {
		t := taskFromModel(m)
		if t.AssigneeID != "" {
			u, ok := users[t.AssigneeID]
			if !ok {
				continue
			}
			t.Assignee = &u
		}
		res = append(res, t)
	}
	return res, nil
}

func firstTask(tx *gorm.DB, id string) (domain.Task, bool, error) {
	tasks, err := findTasks(tx, byIDs([]string{id}))
	if err != nil || len(tasks) == 0 {
		return domain.Task{}, false, err
	}
	return tasks[0], true, nil
}

// ListTasks returns tasks in insertion order.
func (s *GormStore) ListTasks() ([]domain.Task, error) {
	return findTasks(s.db, nil)
}

// GetTask returns one hydrated task.
func (s *GormStore) GetTask(id string) (domain.Task, bool, error) {
	return firstTask(s.db, id)
}

// CreateTask stores a task and its timeline item in one transaction.
func (s *GormStore) CreateTask(t domain.Task) (domain.Task, error) {
	var out domain.Task
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := checkUsers(tx, t.AssigneeID); err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&TaskModel{}).Count(&count).Error; err != nil {
			return err
		}
		now := s.stamp()
		t = prepareTask(t, int(count), now)
		t.ID = util.NewID()
		seq, err := nextSeq(tx, &TaskModel{})
		if err != nil {
			return err
		}
		model := taskToModel(t)
		model.Seq = seq
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		if _, err := s.appendTimeline(tx, domain.KindTask, t.ID, now); err != nil {
			return err
		}
		out, _, err = firstTask(tx, t.ID)
		return err
	})
	if err != nil {
		return domain.Task{}, fmt.Errorf("create task: %w", err)
	}
	return out, nil
}

// UpdateTask merges patch and re-hydrates the assignee.
func (s *GormStore) UpdateTask(id string, patch domain.TaskPatch) (domain.Task, bool, error) {
	var (
		out   domain.Task
		found bool
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var model TaskModel
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if patch.AssigneeID != nil {
			if err := checkUsers(tx, *patch.AssigneeID); err != nil {
				return err
			}
		}
		t := taskFromModel(model)
		patch.Apply(&t)
		t.UpdatedAt = s.stamp()
		updated := taskToModel(t)
		updated.Seq = model.Seq
		if err := tx.Save(&updated).Error; err != nil {
			return err
		}
		var err error
		out, found, err = firstTask(tx, id)
		return err
	})
	if err != nil {
		return domain.Task{}, false, fmt.Errorf("update task: %w", err)
	}
	return out, found, nil
}

// chats

// findChats loads chats with messages and authors in three queries.
func findChats(tx *gorm.DB, sc scope) ([]domain.Chat, error) {
	var models []ChatModel
	if err := apply(tx, sc).Order("seq ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("load chats: %w", err)
	}
	if len(models) == 0 {
		return []domain.Chat{}, nil
	}
	chatIDs := make([]string, 0, len(models))
	for _, m := range models {
		chatIDs = append(chatIDs, m.ID)
	}
	var msgModels []MessageModel
	if err := tx.Where("chat_id IN ?", chatIDs).Order("seq ASC").Find(&msgModels).Error; err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	authorIDs := make([]string, 0, len(msgModels))
	for _, m := range msgModels {
		authorIDs = append(authorIDs, m.AuthorID)
	}
	authors, err := usersByID(tx, authorIDs)
	if err != nil {
		return nil, err
	}
	byChat := make(map[string][]domain.Message, len(models))
	for _, mm := range msgModels {
		author, ok := authors[mm.AuthorID]
		if !ok {
			continue
		}
		msg := messageFromModel(mm)
		msg.Author = &author
		byChat[mm.ChatID] = append(byChat[mm.ChatID], msg)
	}
	res := make([]domain.Chat, 0, len(models))
	for _, m := range models {
		c := chatFromModel(m)
		if msgs, ok := byChat[c.ID]; ok {
			c.Messages = msgs
		}
		res = append(res, c)
	}
	return res, nil
}

func firstChat(tx *gorm.DB, id string) (domain.Chat, bool, error) {
	chats, err := findChats(tx, byIDs([]string{id}))
	if err != nil || len(chats) == 0 {
		return domain.Chat{}, false, err
	}
	return chats[0], true, nil
}

// ListChats returns chats with messages in append order.
func (s *GormStore) ListChats() ([]domain.Chat, error) {
	return findChats(s.db, nil)
}

// GetChat returns one chat with messages.
func (s *GormStore) GetChat(id string) (domain.Chat, bool, error) {
	return firstChat(s.db, id)
}

func insertMessage(tx *gorm.DB, msg domain.Message) (domain.Message, error) {
	msg.ID = util.NewID()
	seq, err := nextSeq(tx, &MessageModel{})
	if err != nil {
		return domain.Message{}, err
	}
	model := messageToModel(msg)
	model.Seq = seq
	if err := tx.Create(&model).Error; err != nil {
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// CreateChat stores a chat, its initial messages and its timeline item.
func (s *GormStore) CreateChat(c domain.Chat) (domain.Chat, error) {
	var out domain.Chat
	err := s.db.Transaction(func(tx *gorm.DB) error {
		authorIDs := make([]string, 0, len(c.Messages))
		for _, msg := range c.Messages {
			if msg.AuthorID == "" {
				return fmt.Errorf("message author: %w", ErrUnknownReference)
			}
			authorIDs = append(authorIDs, msg.AuthorID)
		}
		if err := checkUsers(tx, authorIDs...); err != nil {
			return err
		}
		now := s.stamp()
		initial := c.Messages
		c = prepareChat(c, now)
		c.ID = util.NewID()
		seq, err := nextSeq(tx, &ChatModel{})
		if err != nil {
			return err
		}
		model := chatToModel(c)
		model.Seq = seq
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		for _, msg := range initial {
			if _, err := insertMessage(tx, prepareMessage(c.ID, msg, now)); err != nil {
				return err
			}
		}
		if _, err := s.appendTimeline(tx, domain.KindChat, c.ID, now); err != nil {
			return err
		}
		out, _, err = firstChat(tx, c.ID)
		return err
	})
	if err != nil {
		return domain.Chat{}, fmt.Errorf("create chat: %w", err)
	}
	return out, nil
}

// AddMessage appends msg to the chat. The author must exist.
func (s *GormStore) AddMessage(chatID string, msg domain.Message) (domain.Message, bool, error) {
	var (
		out   domain.Message
		found bool
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&ChatModel{}).Where("id = ?", chatID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return nil
		}
		users, err := usersByID(tx, []string{msg.AuthorID})
		if err != nil {
			return err
		}
		author, ok := users[msg.AuthorID]
		if !ok {
			return fmt.Errorf("message author %q: %w", msg.AuthorID, ErrUnknownReference)
		}
		out, err = insertMessage(tx, prepareMessage(chatID, msg, s.stamp()))
		if err != nil {
			return err
		}
		out.Author = &author
		found = true
		return nil
	})
	if err != nil {
		return domain.Message{}, false, fmt.Errorf("add message: %w", err)
	}
	return out, found, nil
}

// documents

// findDocuments loads documents with collaborators in three queries.
func findDocuments(tx *gorm.DB, sc scope) ([]domain.Document, error) {
	var models []DocumentModel
	if err := apply(tx, sc).Order("seq ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	if len(models) == 0 {
		return []domain.Document{}, nil
	}
	docIDs := make([]string, 0, len(models))
	for _, m := range models {
		docIDs = append(docIDs, m.ID)
	}
	var edges []DocumentCollaboratorModel
	if err := tx.Where("document_id IN ?", docIDs).Order("document_id, position").Find(&edges).Error; err != nil {
		return nil, fmt.Errorf("load collaborators: %w", err)
	}
	userIDs := make([]string, 0, len(edges))
	for _, e := range edges {
		userIDs = append(userIDs, e.UserID)
	}
	users, err := usersByID(tx, userIDs)
	if err != nil {
		return nil, err
	}
	res := make([]domain.Document, 0, len(models))
	index := make(map[string]int, len(models))
	for _, m := range models {
		index[m.ID] = len(res)
		res = append(res, documentFromModel(m))
	}
	for _, e := range edges {
		d := &res[index[e.DocumentID]]
		d.CollaboratorIDs = append(d.CollaboratorIDs, e.UserID)
		if u, ok := users[e.UserID]; ok {
			d.Collaborators = append(d.Collaborators, u)
		}
	}
	return res, nil
}

func firstDocument(tx *gorm.DB, id string) (domain.Document, bool, error) {
	docs, err := findDocuments(tx, byIDs([]string{id}))
	if err != nil || len(docs) == 0 {
		return domain.Document{}, false, err
	}
	return docs[0], true, nil
}

// replaceCollaborators deletes every edge of the document and inserts ids.
func replaceCollaborators(tx *gorm.DB, docID string, ids []string) error {
	if err := tx.Where("document_id = ?", docID).Delete(&DocumentCollaboratorModel{}).Error; err != nil {
		return fmt.Errorf("clear collaborators: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	edges := make([]DocumentCollaboratorModel, 0, len(ids))
	for i, id := range ids {
		edges = append(edges, DocumentCollaboratorModel{DocumentID: docID, UserID: id, Position: i})
	}
	if err := tx.Create(&edges).Error; err != nil {
		return fmt.Errorf("insert collaborators: %w", err)
	}
	return nil
}

// ListDocuments returns documents in insertion order.
func (s *GormStore) ListDocuments() ([]domain.Document, error) {
	return findDocuments(s.db, nil)
}

// GetDocument returns one document with collaborators.
func (s *GormStore) GetDocument(id string) (domain.Document, bool, error) {
	return firstDocument(s.db, id)
}

// CreateDocument stores a document, its collaborator edges and its
// timeline item in one transaction.
func (s *GormStore) CreateDocument(d domain.Document) (domain.Document, error) {
	var out domain.Document
	err := s.db.Transaction(func(tx *gorm.DB) error {
		now := s.stamp()
		d = prepareDocument(d, now)
		if err := checkUsers(tx, d.CollaboratorIDs...); err != nil {
			return err
		}
		d.ID = util.NewID()
		seq, err := nextSeq(tx, &DocumentModel{})
		if err != nil {
			return err
		}
		model := documentToModel(d)
		model.Seq = seq
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		if err := replaceCollaborators(tx, d.ID, d.CollaboratorIDs); err != nil {
			return err
		}
		if _, err := s.appendTimeline(tx, domain.KindDocument, d.ID, now); err != nil {
			return err
		}
		out, _, err = firstDocument(tx, d.ID)
		return err
	})
	if err != nil {
		return domain.Document{}, fmt.Errorf("create document: %w", err)
	}
	return out, nil
}

// UpdateDocument merges patch. A collaborator list replaces every edge.
func (s *GormStore) UpdateDocument(id string, patch domain.DocumentPatch) (domain.Document, bool, error) {
	var (
		out   domain.Document
		found bool
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var model DocumentModel
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		d := documentFromModel(model)
		patch.Apply(&d)
		d.UpdatedAt = s.stamp()
		if patch.CollaboratorIDs != nil {
			if err := checkUsers(tx, d.CollaboratorIDs...); err != nil {
				return err
			}
			if err := replaceCollaborators(tx, id, d.CollaboratorIDs); err != nil {
				return err
			}
		}
		updated := documentToModel(d)
		updated.Seq = model.Seq
		if err := tx.Save(&updated).Error; err != nil {
			return err
		}
		var err error
		out, found, err = firstDocument(tx, id)
		return err
	})
	if err != nil {
		return domain.Document{}, false, fmt.Errorf("update document: %w", err)
	}
	return out, found, nil
}

// meetings

// findMeetings loads meetings with participants in three queries.
func findMeetings(tx *gorm.DB, sc scope) ([]domain.Meeting, error) {
	var models []MeetingModel
	if err := apply(tx, sc).Order("seq ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("load meetings: %w", err)
	}
	if len(models) == 0 {
		return []domain.Meeting{}, nil
	}
	meetingIDs := make([]string, 0, len(models))
	for _, m := range models {
		meetingIDs = append(meetingIDs, m.ID)
	}
	var edges []MeetingParticipantModel
	if err := tx.Where("meeting_id IN ?", meetingIDs).Order("meeting_id, position").Find(&edges).Error; err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	userIDs := make([]string, 0, len(edges))
	for _, e := range edges {
		userIDs = append(userIDs, e.UserID)
	}
	users, err := usersByID(tx, userIDs)
	if err != nil {
		return nil, err
	}
	res := make([]domain.Meeting, 0, len(models))
	index := make(map[string]int, len(models))
	for _, m := range models {
		index[m.ID] = len(res)
		res = append(res, meetingFromModel(m))
	}
	for _, e := range edges {
		mt := &res[index[e.MeetingID]]
		mt.ParticipantIDs = append(mt.ParticipantIDs, e.UserID)
		if u, ok := users[e.UserID]; ok {
			mt.Participants = append(mt.Participants, u)
		}
	}
	return res, nil
}

func firstMeeting(tx *gorm.DB, id string) (domain.Meeting, bool, error) {
	meetings, err := findMeetings(tx, byIDs([]string{id}))
	if err != nil || len(meetings) == 0 {
		return domain.Meeting{}, false, err
	}
	return meetings[0], true, nil
}

func replaceParticipants(tx *gorm.DB, meetingID string, ids []string) error {
	if err := tx.Where("meeting_id = ?", meetingID).Delete(&MeetingParticipantModel{}).Error; err != nil {
		return fmt.Errorf("clear participants: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	edges := make([]MeetingParticipantModel, 0, len(ids))
	for i, id := range ids {
		edges = append(edges, MeetingParticipantModel{MeetingID: meetingID, UserID: id, Position: i})
	}
	if err := tx.Create(&edges).Error; err != nil {
		return fmt.Errorf("insert participants: %w", err)
	}
	return nil
}

// ListMeetings returns meetings in insertion order.
func (s *GormStore) ListMeetings() ([]domain.Meeting, error) {
	return findMeetings(s.db, nil)
}

// GetMeeting returns one meeting with participants.
func (s *GormStore) GetMeeting(id string) (domain.Meeting, bool, error) {
	return firstMeeting(s.db, id)
}

// CreateMeeting stores a meeting, its participant edges and its timeline
// item in one transaction.
func (s *GormStore) CreateMeeting(mt domain.Meeting) (domain.Meeting, error) {
	var out domain.Meeting
	err := s.db.Transaction(func(tx *gorm.DB) error {
		now := s.stamp()
		mt = prepareMeeting(mt, now)
		if err := checkUsers(tx, mt.ParticipantIDs...); err != nil {
			return err
		}
		mt.ID = util.NewID()
		seq, err := nextSeq(tx, &MeetingModel{})
		if err != nil {
			return err
		}
		model := meetingToModel(mt)
		model.Seq = seq
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		if err := replaceParticipants(tx, mt.ID, mt.ParticipantIDs); err != nil {
			return err
		}
		if _, err := s.appendTimeline(tx, domain.KindMeeting, mt.ID, now); err != nil {
			return err
		}
		out, _, err = firstMeeting(tx, mt.ID)
		return err
	})
	if err != nil {
		return domain.Meeting{}, fmt.Errorf("create meeting: %w", err)
	}
	return out, nil
}

// UpdateMeeting merges patch. A participant list replaces every edge.
func (s *GormStore) UpdateMeeting(id string, patch domain.MeetingPatch) (domain.Meeting, bool, error) {
	var (
		out   domain.Meeting
		found bool
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var model MeetingModel
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		mt := meetingFromModel(model)
		patch.Apply(&mt)
		if patch.ParticipantIDs != nil {
			if err := checkUsers(tx, mt.ParticipantIDs...); err != nil {
				return err
			}
			if err := replaceParticipants(tx, id, mt.ParticipantIDs); err != nil {
				return err
			}
		}
		updated := meetingToModel(mt)
		updated.Seq = model.Seq
		if err := tx.Save(&updated).Error; err != nil {
			return err
		}
		var err error
		out, found, err = firstMeeting(tx, id)
		return err
	})
	if err != nil {
		return domain.Meeting{}, false, fmt.Errorf("update meeting: %w", err)
	}
	return out, found, nil
}

// email threads

func findThreads(tx *gorm.DB, sc scope) ([]domain.EmailThread, error) {
	var models []EmailThreadModel
	if err := apply(tx, sc).Order("seq ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("load email threads: %w", err)
	}
	res := make([]domain.EmailThread, 0, len(models))
	for _, m := range models {
		res = append(res, threadFromModel(m))
	}
	return res, nil
}

// ListEmailThreads returns threads in insertion order.
func (s *GormStore) ListEmailThreads() ([]domain.EmailThread, error) {
	return findThreads(s.db, nil)
}

// GetEmailThread returns one thread.
func (s *GormStore) GetEmailThread(id string) (domain.EmailThread, bool, error) {
	var model EmailThreadModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.EmailThread{}, false, nil
		}
		return domain.EmailThread{}, false, err
	}
	return threadFromModel(model), true, nil
}

// CreateEmailThread stores a thread and its timeline item.
func (s *GormStore) CreateEmailThread(t domain.EmailThread) (domain.EmailThread, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		now := s.stamp()
		t = prepareEmailThread(t, now)
		t.ID = util.NewID()
		seq, err := nextSeq(tx, &EmailThreadModel{})
		if err != nil {
			return err
		}
		model := threadToModel(t)
		model.Seq = seq
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		_, err = s.appendTimeline(tx, domain.KindEmail, t.ID, now)
		return err
	})
	if err != nil {
		return domain.EmailThread{}, fmt.Errorf("create email thread: %w", err)
	}
	return cloneThread(t), nil
}

// mutateThread loads, changes and saves one thread inside a transaction.
// The row is read FOR UPDATE so concurrent mutations apply in turn. When
// fn returns false nothing is saved and the thread counts as not found.
func (s *GormStore) mutateThread(id string, fn func(*domain.EmailThread) bool) (domain.EmailThread, bool, error) {
	var (
		out   domain.EmailThread
		found bool
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var model EmailThreadModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		t := threadFromModel(model)
		if !fn(&t) {
			return nil
		}
		updated := threadToModel(t)
		updated.Seq = model.Seq
		if err := tx.Save(&updated).Error; err != nil {
			return err
		}
		out, found = cloneThread(t), true
		return nil
	})
	if err != nil {
		return domain.EmailThread{}, false, fmt.Errorf("update email thread: %w", err)
	}
	return out, found, nil
}

// UpdateEmailThread merges patch into the stored thread.
func (s *GormStore) UpdateEmailThread(id string, patch domain.EmailThreadPatch) (domain.EmailThread, bool, error) {
	return s.mutateThread(id, func(t *domain.EmailThread) bool {
		patch.Apply(t)
		return true
	})
}

// AppendEmail adds an email to the thread and marks it unread.
func (s *GormStore) AppendEmail(threadID string, email domain.Email) (domain.EmailThread, bool, error) {
	now := s.stamp()
	return s.mutateThread(threadID, func(t *domain.EmailThread) bool {
		*t = appendEmailToThread(*t, email, now)
		return true
	})
}

// AddAttachment records att on the email with emailID.
func (s *GormStore) AddAttachment(threadID, emailID string, att domain.Attachment) (domain.EmailThread, bool, error) {
	return s.mutateThread(threadID, func(t *domain.EmailThread) bool {
		return attachToEmail(t, emailID, att)
	})
}

// timeline

// hydrateRefs resolves refs with one batched load per entity kind.
func hydrateRefs(tx *gorm.DB, refs []domain.EntityRef) (map[domain.EntityRef]domain.Entity, error) {
	idsByKind := make(map[domain.EntityKind][]string)
	for _, ref := range refs {
		idsByKind[ref.Kind] = append(idsByKind[ref.Kind], ref.ID)
	}
	out := make(map[domain.EntityRef]domain.Entity, len(refs))
	for kind, ids := range idsByKind {
		sc := byIDs(domain.UniqueIDs(ids))
		switch kind {
		case domain.KindTask:
			items, err := findTasks(tx, sc)
			if err != nil {
				return nil, err
			}
			for _, it := range items {
				out[domain.EntityRef{Kind: kind, ID: it.ID}] = it
			}
		case domain.KindChat:
			items, err := findChats(tx, sc)
			if err != nil {
				return nil, err
			}
			for _, it := range items {
				out[domain.EntityRef{Kind: kind, ID: it.ID}] = it
			}
		case domain.KindDocument:
			items, err := findDocuments(tx, sc)
			if err != nil {
				return nil, err
			}
			for _, it := range items {
				out[domain.EntityRef{Kind: kind, ID: it.ID}] = it
			}
		case domain.KindMeeting:
			items, err := findMeetings(tx, sc)
			if err != nil {
				return nil, err
			}
			for _, it := range items {
				out[domain.EntityRef{Kind: kind, ID: it.ID}] = it
			}
		case domain.KindEmail:
			items, err := findThreads(tx, sc)
			if err != nil {
				return nil, err
			}
			for _, it := range items {
				out[domain.EntityRef{Kind: kind, ID: it.ID}] = it
			}
		default:
			return nil, fmt.Errorf("hydrate timeline: unknown kind %q", kind)
		}
	}
	return out, nil
}

func timelineFromModel(m TimelineModel) domain.TimelineItem {
	return domain.TimelineItem{
		ID:        m.ID,
		Type:      domain.EntityKind(m.Type),
		ItemID:    m.ItemID,
		CreatedAt: m.CreatedAt.UTC(),
	}
}

func hydrateTimeline(tx *gorm.DB, models []TimelineModel) ([]domain.TimelineItem, error) {
	refs := make([]domain.EntityRef, 0, len(models))
	for _, m := range models {
		refs = append(refs, domain.EntityRef{Kind: domain.EntityKind(m.Type), ID: m.ItemID})
	}
	entities, err := hydrateRefs(tx, refs)
	if err != nil {
		return nil, err
	}
	res := make([]domain.TimelineItem, 0, len(models))
	for _, m := range models {
		item := timelineFromModel(m)
		data, ok := entities[item.Ref()]
		if !ok {
			continue
		}
		item.Data = data
		res = append(res, item)
	}
	return res, nil
}

// ListTimeline returns hydrated items newest first; ties keep insertion
// order. Dangling items are dropped.
func (s *GormStore) ListTimeline() ([]domain.TimelineItem, error) {
	var models []TimelineModel
	if err := s.db.Order("created_at DESC").Order("seq ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("load timeline: %w", err)
	}
	// Normalize in Go as well; some drivers compare timestamps as text.
	sort.SliceStable(models, func(i, j int) bool {
		if !models[i].CreatedAt.Equal(models[j].CreatedAt) {
			return models[i].CreatedAt.After(models[j].CreatedAt)
		}
		return models[i].Seq < models[j].Seq
	})
	return hydrateTimeline(s.db, models)
}

// GetTimelineItem returns one hydrated item. A dangling item is not found.
func (s *GormStore) GetTimelineItem(id string) (domain.TimelineItem, bool, error) {
	var model TimelineModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.TimelineItem{}, false, nil
		}
		return domain.TimelineItem{}, false, err
	}
	items, err := hydrateTimeline(s.db, []TimelineModel{model})
	if err != nil || len(items) == 0 {
		return domain.TimelineItem{}, false, err
	}
	return items[0], true, nil
}

// AddTimelineItem appends an item pointing at an existing entity.
func (s *GormStore) AddTimelineItem(ref domain.EntityRef) (domain.TimelineItem, bool, error) {
	var (
		out   domain.TimelineItem
		found bool
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		entities, err := hydrateRefs(tx, []domain.EntityRef{ref})
		if err != nil {
			return err
		}
		data, ok := entities[ref]
		if !ok {
			return nil
		}
		out, err = s.appendTimeline(tx, ref.Kind, ref.ID, s.stamp())
		if err != nil {
			return err
		}
		out.Data = data
		found = true
		return nil
	})
	if err != nil {
		return domain.TimelineItem{}, false, fmt.Errorf("add timeline item: %w", err)
	}
	return out, found, nil
}

// CreationItem returns the earliest item for ref.
func (s *GormStore) CreationItem(ref domain.EntityRef) (domain.TimelineItem, bool, error) {
	var model TimelineModel
	err := s.db.Where("type = ? AND item_id = ?", string(ref.Kind), ref.ID).Order("seq ASC").First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.TimelineItem{}, false, nil
		}
		return domain.TimelineItem{}, false, fmt.Errorf("find creation item: %w", err)
	}
	return timelineFromModel(model), true, nil
}
