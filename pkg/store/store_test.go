package store

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"

	"nebulaone/pkg/domain"
)

// steppingClock advances by step on every call.
type steppingClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

var clockBase = time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)

type storeFactory func(t *testing.T, now func() time.Time) Store

func newMemory(t *testing.T, now func() time.Time) Store {
	return NewMemoryStore(WithClock(now))
}

func newSQLite(t *testing.T, now func() time.Time) Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
	s, err := NewGormStoreWithDialector(sqlite.Open(dsn), WithClock(now))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	sqlDB, err := s.DB().DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return s
}

func forEachStore(t *testing.T, fn func(t *testing.T, newStore storeFactory)) {
	for name, factory := range map[string]storeFactory{"memory": newMemory, "gorm": newSQLite} {
		t.Run(name, func(t *testing.T) { fn(t, factory) })
	}
}

func stepping() func() time.Time {
	c := &steppingClock{t: clockBase, step: time.Second}
	return c.Now
}

func mustUser(t *testing.T, s Store, username string) domain.User {
	t.Helper()
	u, err := s.CreateUser(domain.User{Username: username, Name: strings.ToUpper(username[:1]) + username[1:] + " Tester"})
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

func TestCreateAppendsOneHydratedTimelineItem(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storeFactory) {
		s := newStore(t, stepping())
		alice := mustUser(t, s, "alice")
		bob := mustUser(t, s, "bob")

		cases := []struct {
			kind   domain.EntityKind
			create func() (string, error)
			get    func(id string) (domain.Entity, bool, error)
		}{
			{
				kind: domain.KindTask,
				create: func() (string, error) {
					v, err := s.CreateTask(domain.Task{Title: "Write docs", AssigneeID: alice.ID, Project: "docs"})
					return v.ID, err
				},
				get: func(id string) (domain.Entity, bool, error) { return s.GetTask(id) },
			},
			{
				kind: domain.KindChat,
				create: func() (string, error) {
					v, err := s.CreateChat(domain.Chat{Title: "Standup", Messages: []domain.Message{{AuthorID: bob.ID, Content: "hi"}}})
					return v.ID, err
				},
				get: func(id string) (domain.Entity, bool, error) { return s.GetChat(id) },
			},
			{
				kind: domain.KindDocument,
				create: func() (string, error) {
					v, err := s.CreateDocument(domain.Document{Title: "Spec", CollaboratorIDs: []string{alice.ID, bob.ID}})
					return v.ID, err
				},
				get: func(id string) (domain.Entity, bool, error) { return s.GetDocument(id) },
			},
			{
				kind: domain.KindMeeting,
				create: func() (string, error) {
					v, err := s.CreateMeeting(domain.Meeting{Title: "Retro", ParticipantIDs: []string{bob.ID}, ActionItems: []string{"ship"}})
					return v.ID, err
				},
				get: func(id string) (domain.Entity, bool, error) { return s.GetMeeting(id) },
			},
			{
				kind: domain.KindEmail,
				create: func() (string, error) {
					v, err := s.CreateEmailThread(domain.EmailThread{Subject: "Hello", Emails: []domain.Email{{
						From: domain.EmailParticipant{Name: "Ann", Email: "ann@x.io"},
						Body: "hello there",
					}}})
					return v.ID, err
				},
				get: func(id string) (domain.Entity, bool, error) { return s.GetEmailThread(id) },
			},
		}

		for _, tc := range cases {
			before, err := s.ListTimeline()
			if err != nil {
				t.Fatalf("list timeline: %v", err)
			}
			id, err := tc.create()
			if err != nil {
				t.Fatalf("create %s: %v", tc.kind, err)
			}
			after, err := s.ListTimeline()
			if err != nil {
				t.Fatalf("list timeline: %v", err)
			}
			if len(after) != len(before)+1 {
				t.Fatalf("%s: timeline grew by %d, want 1", tc.kind, len(after)-len(before))
			}
			var matches []domain.TimelineItem
			for _, item := range after {
				if item.ItemID == id {
					matches = append(matches, item)
				}
			}
			if len(matches) != 1 {
				t.Fatalf("%s: %d timeline items reference the new entity", tc.kind, len(matches))
			}
			item := matches[0]
			if item.Type != tc.kind || item.Data.Kind() != tc.kind {
				t.Fatalf("%s: item type %q data kind %q", tc.kind, item.Type, item.Data.Kind())
			}
			stored, ok, err := tc.get(id)
			if err != nil || !ok {
				t.Fatalf("%s: get after create ok=%v err=%v", tc.kind, ok, err)
			}
			if !reflect.DeepEqual(item.Data, stored) {
				t.Fatalf("%s: timeline data differs from stored entity\n got %#v\nwant %#v", tc.kind, item.Data, stored)
			}
		}
	})
}

func TestTimelineOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storeFactory) {
		t.Run("newest first", func(t *testing.T) {
			s := newStore(t, stepping())
			first, _ := s.CreateTask(domain.Task{Title: "first"})
			second, _ := s.CreateDocument(domain.Document{Title: "second"})
			items, err := s.ListTimeline()
			if err != nil {
				t.Fatalf("list timeline: %v", err)
			}
			if len(items) != 2 || items[0].ItemID != second.ID || items[1].ItemID != first.ID {
				t.Fatalf("unexpected order: %+v", items)
			}
		})
		t.Run("ties keep insertion order", func(t *testing.T) {
			s := newStore(t, func() time.Time { return clockBase })
			var ids []string
			for i := 0; i < 4; i++ {
				task, err := s.CreateTask(domain.Task{Title: fmt.Sprintf("task %d", i)})
				if err != nil {
					t.Fatalf("create task: %v", err)
				}
				ids = append(ids, task.ID)
			}
			items, err := s.ListTimeline()
			if err != nil {
				t.Fatalf("list timeline: %v", err)
			}
			for i, item := range items {
				if item.ItemID != ids[i] {
					t.Fatalf("item %d = %s, want %s", i, item.ItemID, ids[i])
				}
			}
		})
	})
}

func TestUpdateTaskStatusKeepsTicketID(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storeFactory) {
		s := newStore(t, stepping())
		created, err := s.CreateTask(domain.Task{Title: "Fix bug", Project: "nebula"})
		if err != nil {
			t.Fatalf("create task: %v", err)
		}
		if created.TicketID != "NEB-1" {
			t.Fatalf("ticket id = %q, want NEB-1", created.TicketID)
		}
		done := domain.TaskDone
		if _, ok, err := s.UpdateTask(created.ID, domain.TaskPatch{Status: &done}); err != nil || !ok {
			t.Fatalf("update task ok=%v err=%v", ok, err)
		}
		got, ok, err := s.GetTask(created.ID)
		if err != nil || !ok {
			t.Fatalf("get task ok=%v err=%v", ok, err)
		}
		if got.Status != domain.TaskDone || !got.IsCompleted {
			t.Fatalf("status = %q completed = %v", got.Status, got.IsCompleted)
		}
		if got.TicketID != created.TicketID {
			t.Fatalf("ticket id changed: %q -> %q", created.TicketID, got.TicketID)
		}
	})
}

func TestTicketIDDefaults(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storeFactory) {
		s := newStore(t, stepping())
		a, _ := s.CreateTask(domain.Task{Title: "a", Project: "mobile app"})
		b, _ := s.CreateTask(domain.Task{Title: "b"})
		c, _ := s.CreateTask(domain.Task{Title: "c", TicketID: "OPS-77"})
		if a.TicketID != "MOB-1" || b.TicketID != "NEB-2" || c.TicketID != "OPS-77" {
			t.Fatalf("ticket ids = %q %q %q", a.TicketID, b.TicketID, c.TicketID)
		}
	})
}

func TestUpdateTaskRehydratesAssignee(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storeFactory) {
		s := newStore(t, stepping())
		alice := mustUser(t, s, "alice")
		bob := mustUser(t, s, "bob")
		task, _ := s.CreateTask(domain.Task{Title: "review", AssigneeID: alice.ID})
		if task.Assignee == nil || task.Assignee.ID != alice.ID {
			t.Fatalf("assignee not hydrated on create: %+v", task.Assignee)
		}
		updated, ok, err := s.UpdateTask(task.ID, domain.TaskPatch{AssigneeID: &bob.ID})
		if err != nil || !ok {
			t.Fatalf("update ok=%v err=%v", ok, err)
		}
		if updated.Assignee == nil || updated.Assignee.Username != "bob" {
			t.Fatalf("assignee not re-hydrated: %+v", updated.Assignee)
		}
		ghost := "missing-user"
		if _, _, err := s.UpdateTask(task.ID, domain.TaskPatch{AssigneeID: &ghost}); !errors.Is(err, ErrUnknownReference) {
			t.Fatalf("expected ErrUnknownReference, got %v", err)
		}
	})
}

func TestDocumentCollaboratorsReplaceNotMerge(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storeFactory) {
		s := newStore(t, stepping())
		userA := mustUser(t, s, "usera")
		userB := mustUser(t, s, "userb")
		doc, err := s.CreateDocument(domain.Document{Title: "Spec", CollaboratorIDs: []string{userA.ID, userB.ID, userA.ID}})
		if err != nil {
			t.Fatalf("create document: %v", err)
		}
		if len(doc.Collaborators) != 2 {
			t.Fatalf("duplicates should collapse, got %d collaborators", len(doc.Collaborators))
		}
		only := []string{userA.ID}
		if _, ok, err := s.UpdateDocument(doc.ID, domain.DocumentPatch{CollaboratorIDs: &only}); err != nil || !ok {
			t.Fatalf("update ok=%v err=%v", ok, err)
		}
		got, _, _ := s.GetDocument(doc.ID)
		if len(got.Collaborators) != 1 || got.Collaborators[0].ID != userA.ID {
			t.Fatalf("collaborators = %+v, want only usera", got.Collaborators)
		}
		if !reflect.DeepEqual(got.CollaboratorIDs, only) {
			t.Fatalf("collaborator ids = %v", got.CollaboratorIDs)
		}
	})
}

func TestMeetingParticipantsReplace(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storeFactory) {
		s := newStore(t, stepping())
		a := mustUser(t, s, "ana")
		b := mustUser(t, s, "ben")
		m, _ := s.CreateMeeting(domain.Meeting{Title: "Sync", ParticipantIDs: []string{a.ID}})
		next := []string{b.ID}
		items := []string{"follow up"}
		updated, ok, err := s.UpdateMeeting(m.ID, domain.MeetingPatch{ParticipantIDs: &next, ActionItems: &items})
		if err != nil || !ok {
			t.Fatalf("update ok=%v err=%v", ok, err)
		}
		if len(updated.Participants) != 1 || updated.Participants[0].ID != b.ID {
			t.Fatalf("participants = %+v", updated.Participants)
		}
		if !reflect.DeepEqual(updated.ActionItems, items) {
			t.Fatalf("action items = %v", updated.ActionItems)
		}
	})
}

func TestCreateRejectsUnknownUsers(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storeFactory) {
		s := newStore(t, stepping())
		if _, err := s.CreateTask(domain.Task{Title: "x", AssigneeID: "nobody"}); !errors.Is(err, ErrUnknownReference) {
			t.Fatalf("task: %v", err)
		}
		if _, err := s.CreateDocument(domain.Document{Title: "x", CollaboratorIDs: []string{"nobody"}}); !errors.Is(err, ErrUnknownReference) {
			t.Fatalf("document: %v", err)
		}
		if _, err := s.CreateMeeting(domain.Meeting{Title: "x", ParticipantIDs: []string{"nobody"}}); !errors.Is(err, ErrUnknownReference) {
			t.Fatalf("meeting: %v", err)
		}
		items, _ := s.ListTimeline()
		if len(items) != 0 {
			t.Fatalf("failed creates must not leave timeline items, got %d", len(items))
		}
	})
}

func TestLookupsReportNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storeFactory) {
		s := newStore(t, stepping())
		if _, ok, err := s.GetTask("nope"); ok || err != nil {
			t.Fatalf("task ok=%v err=%v", ok, err)
		}
		if _, ok, err := s.GetChat("nope"); ok || err != nil {
			t.Fatalf("chat ok=%v err=%v", ok, err)
		}
		if _, ok, err := s.GetTimelineItem("nope"); ok || err != nil {
			t.Fatalf("timeline ok=%v err=%v", ok, err)
		}
		title := "x"
		if _, ok, err := s.UpdateDocument("nope", domain.DocumentPatch{Title: &title}); ok || err != nil {
			t.Fatalf("update document ok=%v err=%v", ok, err)
		}
		if _, ok, err := s.AddMessage("nope", domain.Message{Content: "hi"}); ok || err != nil {
			t.Fatalf("add message ok=%v err=%v", ok, err)
		}
	})
}

func TestChatMessagesKeepAppendOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storeFactory) {
		s := newStore(t, func() time.Time { return clockBase })
		u := mustUser(t, s, "carol")
		chat, _ := s.CreateChat(domain.Chat{Title: "general"})
		for _, text := range []string{"one", "two", "three"} {
			msg, ok, err := s.AddMessage(chat.ID, domain.Message{AuthorID: u.ID, Content: text})
			if err != nil || !ok {
				t.Fatalf("add message ok=%v err=%v", ok, err)
			}
			if msg.Author == nil || msg.Author.ID != u.ID || msg.Time != "09:00" {
				t.Fatalf("message not hydrated: %+v", msg)
			}
		}
		if _, _, err := s.AddMessage(chat.ID, domain.Message{AuthorID: "ghost", Content: "boo"}); !errors.Is(err, ErrUnknownReference) {
			t.Fatalf("expected ErrUnknownReference, got %v", err)
		}
		got, _, _ := s.GetChat(chat.ID)
		var contents []string
		for _, m := range got.Messages {
			contents = append(contents, m.Content)
		}
		if strings.Join(contents, ",") != "one,two,three" {
			t.Fatalf("messages = %v", contents)
		}
	})
}

func TestAppendEmailMarksThreadUnread(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storeFactory) {
		s := newStore(t, stepping())
		thread, _ := s.CreateEmailThread(domain.EmailThread{
			Subject: "Budget",
			IsRead:  true,
			Emails: []domain.Email{{
				From:   domain.EmailParticipant{Name: "Dee", Email: "dee@x.io"},
				Body:   "draft attached",
				SentAt: clockBase.Add(-time.Hour),
			}},
		})
		reply := domain.Email{
			From:   domain.EmailParticipant{Name: "Eli", Email: "eli@x.io"},
			To:     []domain.EmailParticipant{{Name: "Dee", Email: "dee@x.io"}},
			Body:   "looks good",
			SentAt: clockBase.Add(time.Hour),
		}
		updated, ok, err := s.AppendEmail(thread.ID, reply)
		if err != nil || !ok {
			t.Fatalf("append ok=%v err=%v", ok, err)
		}
		if updated.IsRead || len(updated.Emails) != 2 {
			t.Fatalf("thread read=%v emails=%d", updated.IsRead, len(updated.Emails))
		}
		if !updated.LastEmailAt.Equal(reply.SentAt) {
			t.Fatalf("last email at = %v, want %v", updated.LastEmailAt, reply.SentAt)
		}
		if len(updated.Participants) != 2 {
			t.Fatalf("participants = %+v", updated.Participants)
		}
		got, _, _ := s.GetEmailThread(thread.ID)
		if len(got.Emails) != 2 || got.Emails[1].Body != "looks good" || got.Emails[1].ID == "" {
			t.Fatalf("stored thread = %+v", got.Emails)
		}
	})
}

func TestUpdateEmailThreadPersistsFlags(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storeFactory) {
		s := newStore(t, stepping())
		thread, _ := s.CreateEmailThread(domain.EmailThread{Subject: "Ping"})
		yes := true
		labels := []string{"work"}
		if _, ok, err := s.UpdateEmailThread(thread.ID, domain.EmailThreadPatch{IsCompleted: &yes, IsRead: &yes, Labels: &labels}); err != nil || !ok {
			t.Fatalf("update ok=%v err=%v", ok, err)
		}
		got, _, _ := s.GetEmailThread(thread.ID)
		if !got.IsCompleted || !got.IsRead || !reflect.DeepEqual(got.Labels, labels) {
			t.Fatalf("thread = %+v", got)
		}
	})
}

func TestAddTimelineItem(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storeFactory) {
		s := newStore(t, stepping())
		task, _ := s.CreateTask(domain.Task{Title: "reshare"})
		item, ok, err := s.AddTimelineItem(domain.EntityRef{Kind: domain.KindTask, ID: task.ID})
		if err != nil || !ok {
			t.Fatalf("add ok=%v err=%v", ok, err)
		}
		got, ok, err := s.GetTimelineItem(item.ID)
		if err != nil || !ok || got.ItemID != task.ID {
			t.Fatalf("get ok=%v err=%v item=%+v", ok, err, got)
		}
		if _, ok, err := s.AddTimelineItem(domain.EntityRef{Kind: domain.KindMeeting, ID: task.ID}); ok || err != nil {
			t.Fatalf("mismatched kind should not resolve: ok=%v err=%v", ok, err)
		}
	})
}

func TestUsers(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storeFactory) {
		s := newStore(t, stepping())
		u, err := s.CreateUser(domain.User{Username: "dana", Name: "Dana Scully", PasswordHash: "hash"})
		if err != nil {
			t.Fatalf("create user: %v", err)
		}
		if u.Initials != "DS" || u.Role != domain.RoleUser {
			t.Fatalf("defaults not applied: %+v", u)
		}
		if _, err := s.CreateUser(domain.User{Username: "dana"}); !errors.Is(err, ErrUsernameTaken) {
			t.Fatalf("expected ErrUsernameTaken, got %v", err)
		}
		byName, ok, err := s.GetUserByUsername("dana")
		if err != nil || !ok || byName.ID != u.ID || byName.PasswordHash != "hash" {
			t.Fatalf("by username ok=%v err=%v user=%+v", ok, err, byName)
		}
		sub := "sub_123"
		updated, ok, err := s.UpdateUser(u.ID, domain.UserPatch{StripeSubscriptionID: &sub})
		if err != nil || !ok || updated.StripeSubscriptionID != sub {
			t.Fatalf("update ok=%v err=%v user=%+v", ok, err, updated)
		}
		if n, _ := s.UserCount(); n != 1 {
			t.Fatalf("user count = %d", n)
		}
	})
}

func TestSeedIsIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storeFactory) {
		s := newStore(t, stepping())
		if err := Seed(s, clockBase); err != nil {
			t.Fatalf("seed: %v", err)
		}
		first, _ := s.ListTimeline()
		if err := Seed(s, clockBase); err != nil {
			t.Fatalf("second seed: %v", err)
		}
		second, _ := s.ListTimeline()
		if len(first) == 0 || len(first) != len(second) {
			t.Fatalf("timeline sizes %d then %d", len(first), len(second))
		}
		threads, _ := s.ListEmailThreads()
		if len(threads) != 3 {
			t.Fatalf("threads = %d, want 3", len(threads))
		}
	})
}

func TestRegisterUserMakesOnlyFirstAdmin(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storeFactory) {
		s := newStore(t, stepping())
		const n = 8
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.RegisterUser(domain.User{Username: fmt.Sprintf("user%d", i), Role: domain.RoleAdmin})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("register: %v", err)
			}
		}
		users, err := s.ListUsers()
		if err != nil {
			t.Fatalf("list users: %v", err)
		}
		admins := 0
		for _, u := range users {
			if u.Role == domain.RoleAdmin {
				admins++
			}
		}
		if len(users) != n || admins != 1 {
			t.Fatalf("users=%d admins=%d, want %d and 1", len(users), admins, n)
		}
	})
}

func TestAddAttachmentKeepsOtherEmails(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storeFactory) {
		s := newStore(t, stepping())
		thread, _ := s.CreateEmailThread(domain.EmailThread{
			Subject: "Contract",
			Emails: []domain.Email{{
				From:   domain.EmailParticipant{Name: "Dee", Email: "dee@x.io"},
				Body:   "draft",
				SentAt: clockBase.Add(-time.Hour),
			}},
		})
		first := thread.Emails[0].ID
		if _, _, err := s.AppendEmail(thread.ID, domain.Email{
			From: domain.EmailParticipant{Name: "Eli", Email: "eli@x.io"},
			Body: "signed",
		}); err != nil {
			t.Fatalf("append: %v", err)
		}

		att := domain.Attachment{Name: "contract.pdf", Type: "application/pdf", Size: 10, Key: "emails/x/contract.pdf"}
		updated, ok, err := s.AddAttachment(thread.ID, first, att)
		if err != nil || !ok {
			t.Fatalf("add attachment ok=%v err=%v", ok, err)
		}
		if len(updated.Emails) != 2 {
			t.Fatalf("emails = %d, want 2", len(updated.Emails))
		}
		got, _, _ := s.GetEmailThread(thread.ID)
		if len(got.Emails) != 2 || len(got.Emails[0].Attachments) != 1 || got.Emails[0].Attachments[0] != att {
			t.Fatalf("stored thread = %+v", got.Emails)
		}
		if len(got.Emails[1].Attachments) != 0 {
			t.Fatalf("attachment landed on the wrong email")
		}

		if _, ok, err := s.AddAttachment(thread.ID, "no-such-email", att); ok || err != nil {
			t.Fatalf("unknown email: ok=%v err=%v", ok, err)
		}
		if _, ok, err := s.AddAttachment("no-such-thread", first, att); ok || err != nil {
			t.Fatalf("unknown thread: ok=%v err=%v", ok, err)
		}
	})
}

func TestCreationItemIsTheFirstTimelineEntry(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storeFactory) {
		s := newStore(t, stepping())
		task, err := s.CreateTask(domain.Task{Title: "Ship"})
		if err != nil {
			t.Fatalf("create task: %v", err)
		}
		ref := domain.EntityRef{Kind: domain.KindTask, ID: task.ID}
		created, ok, err := s.CreationItem(ref)
		if err != nil || !ok || created.ID == "" {
			t.Fatalf("creation item: %+v ok=%v err=%v", created, ok, err)
		}
		if _, _, err := s.AddTimelineItem(ref); err != nil {
			t.Fatalf("add timeline item: %v", err)
		}
		again, _, _ := s.CreationItem(ref)
		if again.ID != created.ID {
			t.Fatalf("creation item changed from %s to %s", created.ID, again.ID)
		}
		item, ok, err := s.GetTimelineItem(created.ID)
		if err != nil || !ok || item.ItemID != task.ID {
			t.Fatalf("timeline item %s: %+v ok=%v err=%v", created.ID, item, ok, err)
		}
		if _, ok, _ := s.CreationItem(domain.EntityRef{Kind: domain.KindTask, ID: "missing"}); ok {
			t.Fatalf("missing entity has a creation item")
		}
	})
}

func TestNextSeqUsesCounterRows(t *testing.T) {
	s := newSQLite(t, stepping()).(*GormStore)
	for _, title := range []string{"a", "b", "c"} {
		if _, err := s.CreateTask(domain.Task{Title: title}); err != nil {
			t.Fatalf("create task: %v", err)
		}
	}
	var counter SequenceModel
	if err := s.DB().First(&counter, "name = ?", "timeline").Error; err != nil {
		t.Fatalf("load counter: %v", err)
	}
	if counter.Value != 3 {
		t.Fatalf("timeline counter = %d, want 3", counter.Value)
	}

	// A missing counter restarts from the rows already stored.
	if err := s.DB().Where("name = ?", "tasks").Delete(&SequenceModel{}).Error; err != nil {
		t.Fatalf("drop counter: %v", err)
	}
	if _, err := s.CreateTask(domain.Task{Title: "d"}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	var seqs []int64
	if err := s.DB().Model(&TaskModel{}).Order("seq ASC").Pluck("seq", &seqs).Error; err != nil {
		t.Fatalf("load seqs: %v", err)
	}
	if fmt.Sprint(seqs) != "[1 2 3 4]" {
		t.Fatalf("task seqs = %v", seqs)
	}
}
