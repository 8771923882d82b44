package assistant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nebulaone/pkg/domain"
)

var (
	now   = time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)
	me    = domain.EmailParticipant{Name: "You", Email: "you@nebula.dev"}
	priya = domain.EmailParticipant{Name: "Priya Shah", Email: "priya@acme.io"}
	marco = domain.EmailParticipant{Name: "Marco Bianchi", Email: "marco@acme.io"}
)

func thread(id, subject string, emails ...domain.Email) domain.EmailThread {
	t := domain.EmailThread{ID: id, Subject: subject, Emails: emails}
	t.LastEmailAt = domain.LatestSentAt(emails)
	return t
}

func email(from domain.EmailParticipant, body string, to ...domain.EmailParticipant) domain.Email {
	return domain.Email{From: from, To: to, Body: body, SentAt: now.Add(-2 * time.Hour)}
}

func TestSummarizeThreadMeetingInvitation(t *testing.T) {
	th := thread("t1", "Invitation: Kickoff Meeting",
		email(priya, "Hi all, please join the kickoff on 5/20/2025 at 10:00 AM. Could you review the agenda?", me, marco))

	s := SummarizeThread(th)

	assert.Equal(t, ConfidenceMeeting, s.Confidence)
	assert.Contains(t, s.Summary, "5/20/2025")
	assert.Contains(t, s.Summary, "10:00 AM")
	assert.Contains(t, s.Summary, "Kickoff Meeting")
	assert.Contains(t, s.Summary, "Conversation between 3 people.")
}

func TestSummarizeThreadIgnoresMonthLikeWords(t *testing.T) {
	th := thread("t1b", "Planning Meeting",
		email(priya, "Let's decide 3 items, maybe 2 more, on 5/20/2025 at 10:00 AM.", me))

	s := SummarizeThread(th)

	assert.Contains(t, s.Summary, "on 5/20/2025 at 10:00 AM")
	assert.NotContains(t, s.Summary, "decide")
	assert.NotContains(t, s.Summary, "maybe")
}

func TestSummarizeThreadWrittenDates(t *testing.T) {
	cases := map[string]string{
		"Join us on March 4th, 2025 at 9:30.": "March 4th, 2025",
		"Join us on Sept. 12 at 9:30.":        "Sept. 12",
		"Join us on dec 1 at 9:30.":           "dec 1",
	}
	for body, date := range cases {
		s := SummarizeThread(thread("t1c", "Meeting", email(priya, body, me)))
		assert.Contains(t, s.Summary, "on "+date+" at 9:30", body)
	}
}

func TestSummarizeThreadStatusUpdate(t *testing.T) {
	th := thread("t2", "Project status update", email(marco, "We are 75% done and QA is at 40%.", me))

	s := SummarizeThread(th)

	assert.Equal(t, ConfidenceStatus, s.Confidence)
	assert.Equal(t, "Status update for Project status update reporting 75%, 40% progress. Conversation between Marco Bianchi and You.", s.Summary)
}

func TestSummarizeThreadAttachments(t *testing.T) {
	e := email(priya, "Files attached.", me)
	e.Attachments = []domain.Attachment{
		{Name: "contract.pdf"}, {Name: "pricing.XLSX"}, {Name: "notes.docx"}, {Name: "logo.png"}, {Name: "dump.bin"},
	}
	s := SummarizeThread(thread("t3", "Contract documents", e))

	assert.Equal(t, ConfidenceAttachments, s.Confidence)
	assert.Contains(t, s.Summary, "Shared 5 attachments: 1 PDF, 1 Document, 1 Spreadsheet, 1 Image, 1 File.")
}

func TestSummarizeThreadPrecedence(t *testing.T) {
	e := email(priya, "Notes attached.")
	e.Attachments = []domain.Attachment{{Name: "notes.pdf"}}

	assert.Equal(t, ConfidenceMeeting, SummarizeThread(thread("a", "Meeting notes update", e)).Confidence)
	assert.Equal(t, ConfidenceStatus, SummarizeThread(thread("b", "Weekly update", e)).Confidence)
	assert.Equal(t, ConfidenceAttachments, SummarizeThread(thread("c", "Notes", e)).Confidence)
}

func TestSummarizeThreadDefaultUsesFirstWords(t *testing.T) {
	body := "one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen sixteen seventeen"
	s := SummarizeThread(thread("t4", "Hello", email(priya, body)))

	assert.Equal(t, ConfidenceDefault, s.Confidence)
	assert.Equal(t, "one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen...", s.Summary)
}

func TestExtractTasksPatterns(t *testing.T) {
	th := thread("t1", "Kickoff",
		email(priya, "Could you review the agenda before the call? We need to finalize the API contract by Friday. Please send it."))

	tasks := ExtractTasks(th)

	require.Len(t, tasks, 2)
	assert.Equal(t, "t1-task-1", tasks[0].ID)
	assert.Equal(t, "Review the agenda before the call", tasks[0].Title)
	assert.Equal(t, domain.PriorityHigh, tasks[0].Priority)
	assert.Equal(t, "t1-task-2", tasks[1].ID)
	assert.Equal(t, "Finalize the API contract by Friday", tasks[1].Title)
	assert.Equal(t, domain.PriorityLow, tasks[1].Priority)
	assert.Equal(t, "t1", tasks[1].EmailThreadID)
	assert.False(t, tasks[0].IsCompleted)
}

func TestExtractTasksKeepsRepeatedRequests(t *testing.T) {
	th := thread("t1", "Follow up",
		email(priya, "Could you review the agenda today?"),
		email(priya, "Could you review the agenda today?"))

	tasks := ExtractTasks(th)

	require.Len(t, tasks, 2)
	assert.Equal(t, tasks[0].Title, tasks[1].Title)
	assert.Equal(t, domain.PriorityHigh, tasks[0].Priority)
	assert.Equal(t, domain.PriorityLow, tasks[1].Priority)
	assert.Equal(t, "t1-task-2", tasks[1].ID)
}

func TestExtractTasksIsIdempotent(t *testing.T) {
	th := thread("t1", "Kickoff",
		email(priya, "Can you send the slides? You must update the budget sheet today. Action required: sign the vendor form."))

	first := ExtractTasks(th)
	second := ExtractTasks(th)

	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestPriorityCyclesByIndex(t *testing.T) {
	want := []domain.TodoPriority{
		domain.PriorityHigh, domain.PriorityLow, domain.PriorityMedium, domain.PriorityHigh,
		domain.PriorityMedium, domain.PriorityLow, domain.PriorityHigh,
	}
	for i, p := range want {
		assert.Equal(t, p, priorityAt(i), "index %d", i)
	}
}

func TestExtractTasksFallbackSentence(t *testing.T) {
	th := thread("t2", "Draft", email(priya, "I have a request. Please take a look at the draft when you get a chance."))

	tasks := ExtractTasks(th)

	require.Len(t, tasks, 1)
	assert.Equal(t, "Please take a look at the draft when you get a chance", tasks[0].Title)
	assert.Equal(t, domain.PriorityMedium, tasks[0].Priority)
}

func TestExtractTasksImportantFallback(t *testing.T) {
	th := thread("t3", "Lunch", email(priya, "Lunch on Friday sounds great."))

	assert.Empty(t, ExtractTasks(th))
	assert.NotNil(t, ExtractTasks(th))

	th.IsImportant = true
	tasks := ExtractTasks(th)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Review important email", tasks[0].Title)
	assert.Equal(t, domain.PriorityHigh, tasks[0].Priority)
	assert.Equal(t, "t3-task-1", tasks[0].ID)
}

func TestGenerateReply(t *testing.T) {
	invite := domain.Email{From: priya, Subject: "Invitation: Kickoff", Body: "Join us."}
	assert.Equal(t, "Good morning Priya,\n\n"+replyMeeting+"\n\nBest regards", GenerateReply(invite, now))

	afternoon := time.Date(2026, 5, 20, 14, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 5, 20, 20, 0, 0, 0, time.UTC)
	assert.Contains(t, GenerateReply(invite, afternoon), "Good afternoon Priya,")
	assert.Contains(t, GenerateReply(invite, evening), "Good evening Priya,")

	cases := map[string]domain.Email{
		replyStatus:   {From: marco, Subject: "Weekly update", Body: "All good."},
		replyQuestion: {From: marco, Subject: "Quick one", Body: "Can we ship today?"},
		replyThanks:   {From: marco, Subject: "Re: help", Body: "Thanks for the help."},
		replyGeneric:  {From: marco, Subject: "Hello", Body: "Just saying hi."},
	}
	for want, e := range cases {
		assert.Contains(t, GenerateReply(e, now), want)
	}

	anon := domain.Email{From: domain.EmailParticipant{Email: "ops@acme.io"}, Body: "hi"}
	assert.Contains(t, GenerateReply(anon, now), "Good morning ops,")
}

func TestPrioritizeImportantFirst(t *testing.T) {
	a := thread("a", "Same", email(priya, "Same body."))
	a.IsImportant = true
	b := thread("b", "Same", email(priya, "Same body."))

	got := PrioritizeEmails([]domain.EmailThread{b, a}, now)

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestScoreThreadAddsEveryWeight(t *testing.T) {
	question := domain.Email{ID: "e1", From: me, Body: "Is the server ok?", SentAt: now.Add(-time.Hour)}
	answer := domain.Email{ID: "e2", From: marco, Body: "Please fix this asap", SentAt: now.Add(-30 * time.Minute)}
	th := thread("t", "URGENT: server down", question, answer)
	th.IsImportant = true
	th.IsStarred = true

	assert.Equal(t, 50+30+25+40+30+20+15, ScoreThread(th, now))

	th.IsRead = true
	th.Emails[1].Attachments = []domain.Attachment{{Name: "log.txt"}}
	th.Emails[1].Body = "Please review the log, asap"
	assert.Equal(t, 50+25+40+30+20+20+10+15, ScoreThread(th, now))
}

func TestRecencyBuckets(t *testing.T) {
	assert.Equal(t, 20, recencyBonus(30*time.Minute))
	assert.Equal(t, 15, recencyBonus(time.Hour))
	assert.Equal(t, 10, recencyBonus(48*time.Hour))
	assert.Equal(t, 0, recencyBonus(72*time.Hour))
}

func queryThreads() []domain.EmailThread {
	invite := thread("t1", "Invitation: Kickoff Meeting", email(priya, "Please join the kickoff on 5/20/2025 at 10:00 AM.", me))
	status := thread("t2", "Weekly status", email(marco, "Everything is green. Could you confirm the release date?", me))
	status.IsRead = true
	contract := thread("t3", "Contract documents", email(priya, "Signed contract attached.", me))
	contract.IsRead = true
	contract.AISummary = "Cached contract summary."
	return []domain.EmailThread{invite, status, contract}
}

func TestProcessQuerySearch(t *testing.T) {
	res := ProcessQuery("find project status", queryThreads(), now)

	assert.Equal(t, IntentSearch, res.Intent)
	require.Len(t, res.RelatedThreads, 1)
	assert.Equal(t, "t2", res.RelatedThreads[0].ID)
	assert.Contains(t, res.Response, "Weekly status")
}

func TestProcessQuerySearchIgnoresPassingMentions(t *testing.T) {
	threads := []domain.EmailThread{
		thread("a", "Project status", email(marco, "All green this week.")),
		thread("b", "Kickoff", email(priya, "Welcome to the new project.")),
		thread("c", "Budget", email(priya, "The project status is in the deck.")),
	}

	res := ProcessQuery("find project status", threads, now)

	require.Len(t, res.RelatedThreads, 2)
	assert.Equal(t, "a", res.RelatedThreads[0].ID)
	assert.Equal(t, "c", res.RelatedThreads[1].ID)
}

func TestProcessQuerySummarize(t *testing.T) {
	res := ProcessQuery("Summarize unread emails", queryThreads(), now)
	assert.Equal(t, IntentSummarize, res.Intent)
	require.Len(t, res.RelatedThreads, 1)
	assert.Equal(t, "t1", res.RelatedThreads[0].ID)

	res = ProcessQuery("summarize all", queryThreads(), now)
	assert.Len(t, res.RelatedThreads, 3)
	assert.Contains(t, res.Response, "Cached contract summary.")
}

func TestProcessQueryDraft(t *testing.T) {
	res := ProcessQuery(`draft a reply to "contract"`, queryThreads(), now)
	assert.Equal(t, IntentDraft, res.Intent)
	require.Len(t, res.RelatedThreads, 1)
	assert.Equal(t, "t3", res.RelatedThreads[0].ID)
	assert.Contains(t, res.Response, "Best regards")

	res = ProcessQuery("write a reply to marco", queryThreads(), now)
	require.Len(t, res.RelatedThreads, 1)
	assert.Equal(t, "t2", res.RelatedThreads[0].ID)

	res = ProcessQuery("draft something", nil, now)
	assert.Empty(t, res.RelatedThreads)
}

func TestProcessQueryOtherIntents(t *testing.T) {
	threads := queryThreads()

	tasks := ProcessQuery("What are my tasks?", threads, now)
	assert.Equal(t, IntentTasks, tasks.Intent)
	assert.Contains(t, tasks.Response, "Confirm the release date")

	first := ProcessQuery("what should I handle first", threads, now)
	assert.Equal(t, IntentPrioritize, first.Intent)
	assert.Len(t, first.RelatedThreads, 3)

	plan := ProcessQuery("help me clean up my inbox", threads, now)
	assert.Equal(t, IntentOrganize, plan.Intent)
	assert.Contains(t, plan.Response, "\n5. ")

	help := ProcessQuery("hello there", threads, now)
	assert.Equal(t, IntentHelp, help.Intent)
	assert.Equal(t, HelpMessage, help.Response)
}

func TestMarkAsCompletedReturnsCopy(t *testing.T) {
	th := thread("t1", "Done", email(priya, "Thanks!"))
	th.Labels = []string{"work"}

	done := MarkAsCompleted(th)

	assert.True(t, done.IsCompleted)
	assert.True(t, done.IsRead)
	assert.False(t, th.IsCompleted)
	assert.False(t, th.IsRead)
	done.Labels[0] = "changed"
	assert.Equal(t, "work", th.Labels[0])
}
