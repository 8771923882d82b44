package store

import (
	"fmt"
	"time"

	"nebulaone/pkg/domain"
)

// Seed loads a small sample workspace. It does nothing when the store
// already has users, so restarting against a database is safe.
func Seed(s Store, now time.Time) error {
	count, err := s.UserCount()
	if err != nil {
		return fmt.Errorf("seed: count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	people := []domain.User{
		{Username: "alex", Name: "Alex Morgan", Email: "alex@nebula.dev", Role: domain.RoleAdmin},
		{Username: "jordan", Name: "Jordan Lee", Email: "jordan@nebula.dev"},
		{Username: "sam", Name: "Sam Rivera", Email: "sam@nebula.dev"},
	}
	ids := make([]string, 0, len(people))
	for _, p := range people {
		u, err := s.CreateUser(p)
		if err != nil {
			return fmt.Errorf("seed: user %s: %w", p.Username, err)
		}
		ids = append(ids, u.ID)
	}
	alex, jordan, sam := ids[0], ids[1], ids[2]

	tasks := []domain.Task{
		{Title: "Ship timeline API", Description: "Expose the unified activity feed", Status: domain.TaskInProgress, AssigneeID: alex, Project: "Nebula", DueDate: now.AddDate(0, 0, 3).Format("2006-01-02")},
		{Title: "Fix login redirect", Description: "Users land on a blank page after login", Status: domain.TaskTodo, AssigneeID: jordan, Project: "Nebula"},
		{Title: "Write onboarding guide", Status: domain.TaskDone, AssigneeID: sam, Project: "Docs"},
	}
	for _, t := range tasks {
		if _, err := s.CreateTask(t); err != nil {
			return fmt.Errorf("seed: task %q: %w", t.Title, err)
		}
	}

	if _, err := s.CreateChat(domain.Chat{
		Title:    "Release planning",
		Channel:  "engineering",
		Priority: "high",
		Messages: []domain.Message{
			{AuthorID: alex, Content: "Can we freeze the API by Thursday?"},
			{AuthorID: jordan, Content: "Yes, the handler changes are in review.", CodeSnippet: "GET /api/timeline"},
		},
	}); err != nil {
		return fmt.Errorf("seed: chat: %w", err)
	}

	if _, err := s.CreateDocument(domain.Document{
		Title:           "Q3 Roadmap",
		Content:         "<h1>Q3 Roadmap</h1><p>Timeline, assistant and realtime updates.</p>",
		CollaboratorIDs: []string{alex, sam},
	}); err != nil {
		return fmt.Errorf("seed: document: %w", err)
	}

	if _, err := s.CreateMeeting(domain.Meeting{
		Title:             "Weekly sync",
		StartTime:         "10:00 AM",
		EndTime:           "10:30 AM",
		ParticipantIDs:    []string{alex, jordan, sam},
		Summary:           "Reviewed release scope and open bugs.",
		SummaryConfidence: 88,
		ActionItems:       []string{"Jordan to fix login redirect", "Sam to publish the guide"},
	}); err != nil {
		return fmt.Errorf("seed: meeting: %w", err)
	}

	me := domain.EmailParticipant{Name: "You", Email: "you@nebula.dev"}
	priya := domain.EmailParticipant{Name: "Priya Shah", Email: "priya@acme.io"}
	marco := domain.EmailParticipant{Name: "Marco Bianchi", Email: "marco@acme.io"}
	threads := []domain.EmailThread{
		{
			Subject:     "Invitation: Kickoff Meeting",
			IsImportant: true,
			Emails: []domain.Email{{
				From:    priya,
				To:      []domain.EmailParticipant{me, marco},
				Subject: "Invitation: Kickoff Meeting",
				Body:    "Hi all, please join the kickoff on 5/20/2025 at 10:00 AM. Could you review the agenda before the call?",
				SentAt:  now.Add(-2 * time.Hour),
			}},
		},
		{
			Subject: "Project status update",
			Emails: []domain.Email{
				{
					From:    me,
					To:      []domain.EmailParticipant{marco},
					Subject: "Project status update",
					Body:    "Where are we on the integration?",
					SentAt:  now.Add(-30 * time.Hour),
				},
				{
					From:    marco,
					To:      []domain.EmailParticipant{me},
					Subject: "Re: Project status update",
					Body:    "We are 75% done with the integration. We need to finalize the API contract by Friday.",
					SentAt:  now.Add(-26 * time.Hour),
				},
			},
		},
		{
			Subject:   "Contract documents",
			IsRead:    true,
			IsStarred: true,
			Emails: []domain.Email{{
				From:    priya,
				To:      []domain.EmailParticipant{me},
				Subject: "Contract documents",
				Body:    "Attached are the signed contract and the pricing sheet. Thanks for the quick turnaround!",
				SentAt:  now.Add(-96 * time.Hour),
				Attachments: []domain.Attachment{
					{Name: "contract.pdf", Type: "application/pdf", Size: 182044},
					{Name: "pricing.xlsx", Type: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", Size: 40211},
				},
			}},
		},
	}
	for _, t := range threads {
		if _, err := s.CreateEmailThread(t); err != nil {
			return fmt.Errorf("seed: email thread %q: %w", t.Subject, err)
		}
	}
	return nil
}
