package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"nebulaone/internal/metrics"
	"nebulaone/pkg/assistant"
	"nebulaone/pkg/domain"
	"nebulaone/pkg/storage"
)

func (a *App) ListEmailThreads() ([]domain.EmailThread, error) {
	threads, err := a.store.ListEmailThreads()
	if err != nil {
		return nil, fmt.Errorf("list email threads: %w", err)
	}
	return threads, nil
}

func (a *App) GetEmailThread(id string) (domain.EmailThread, error) {
	t, ok, err := a.store.GetEmailThread(id)
	if err != nil {
		return domain.EmailThread{}, fmt.Errorf("get email thread: %w", err)
	}
	if !ok {
		return domain.EmailThread{}, ErrNotFound
	}
	return t, nil
}

func (a *App) CreateEmailThread(t domain.EmailThread) (domain.EmailThread, error) {
	if strings.TrimSpace(t.Subject) == "" && len(t.Emails) == 0 {
		return domain.EmailThread{}, invalidf("subject or emails are required")
	}
	created, err := a.store.CreateEmailThread(t)
	if err != nil {
		return domain.EmailThread{}, fmt.Errorf("create email thread: %w", err)
	}
	a.publish(created, created.CreatedAt)
	if len(created.Emails) > 0 {
		a.enqueueSummary(created.ID)
	}
	return created, nil
}

func (a *App) UpdateEmailThread(id string, patch domain.EmailThreadPatch) (domain.EmailThread, error) {
	if patch.SummaryConfidence != nil {
		if err := checkConfidence(*patch.SummaryConfidence); err != nil {
			return domain.EmailThread{}, err
		}
	}
	t, ok, err := a.store.UpdateEmailThread(id, patch)
	if err != nil {
		return domain.EmailThread{}, fmt.Errorf("update email thread: %w", err)
	}
	if !ok {
		return domain.EmailThread{}, ErrNotFound
	}
	return t, nil
}

// AppendEmail adds an email to a thread and marks the thread unread.
func (a *App) AppendEmail(threadID string, e domain.Email) (domain.EmailThread, error) {
	if strings.TrimSpace(e.Body) == "" {
		return domain.EmailThread{}, invalidf("body is required")
	}
	t, ok, err := a.store.AppendEmail(threadID, e)
	if err != nil {
		return domain.EmailThread{}, fmt.Errorf("append email: %w", err)
	}
	if !ok {
		return domain.EmailThread{}, ErrNotFound
	}
	a.enqueueSummary(t.ID)
	return t, nil
}

// CompleteEmailThread marks the thread done and read, and persists it.
func (a *App) CompleteEmailThread(id string) (domain.EmailThread, error) {
	t, err := a.GetEmailThread(id)
	if err != nil {
		return domain.EmailThread{}, err
	}
	done := assistant.MarkAsCompleted(t)
	return a.UpdateEmailThread(id, domain.EmailThreadPatch{
		IsCompleted: &done.IsCompleted,
		IsRead:      &done.IsRead,
	})
}

// SummarizeEmailThread computes a summary and stores it on the thread so
// later queries can reuse it.
func (a *App) SummarizeEmailThread(id string) (assistant.Summary, error) {
	t, err := a.GetEmailThread(id)
	if err != nil {
		return assistant.Summary{}, err
	}
	s := assistant.SummarizeThread(t)
	if _, err := a.UpdateEmailThread(id, domain.EmailThreadPatch{
		AISummary:         &s.Summary,
		SummaryConfidence: &s.Confidence,
	}); err != nil {
		return assistant.Summary{}, err
	}
	return s, nil
}

func (a *App) EmailTasks(id string) ([]domain.TodoItem, error) {
	t, err := a.GetEmailThread(id)
	if err != nil {
		return nil, err
	}
	return assistant.ExtractTasks(t), nil
}

// DraftReply drafts a reply to the newest email of the thread.
func (a *App) DraftReply(id string) (string, error) {
	t, err := a.GetEmailThread(id)
	if err != nil {
		return "", err
	}
	latest, ok := t.LatestEmail()
	if !ok {
		return "", invalidf("thread has no emails")
	}
	return assistant.GenerateReply(latest, a.now()), nil
}

func (a *App) PrioritizedEmails() ([]domain.EmailThread, error) {
	threads, err := a.ListEmailThreads()
	if err != nil {
		return nil, err
	}
	return assistant.PrioritizeEmails(threads, a.now()), nil
}

// Query answers a free-text assistant request over all threads.
func (a *App) Query(q string) (assistant.QueryResult, error) {
	if strings.TrimSpace(q) == "" {
		return assistant.QueryResult{}, invalidf("query is required")
	}
	threads, err := a.ListEmailThreads()
	if err != nil {
		return assistant.QueryResult{}, err
	}
	res := assistant.ProcessQuery(q, threads, a.now())
	metrics.AssistantQuery(string(res.Intent))
	return res, nil
}

// AttachmentUpload describes a file attached to an email of a thread.
// EmailID selects the email; empty means the newest one.
type AttachmentUpload struct {
	ThreadID    string
	EmailID     string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadAttachment stores the file and records it on the email. The object
// is removed again when the thread update fails.
func (a *App) UploadAttachment(ctx context.Context, in AttachmentUpload) (domain.EmailThread, error) {
	if a.objects == nil {
		return domain.EmailThread{}, ErrStorageUnavailable
	}
	t, err := a.GetEmailThread(in.ThreadID)
	if err != nil {
		return domain.EmailThread{}, err
	}
	idx := emailIndex(t, in.EmailID)
	if idx < 0 {
		return domain.EmailThread{}, ErrNotFound
	}
	name := storage.SanitizeFilename(in.Filename)
	key := storage.AttachmentKey(t.ID, name)
	if err := a.objects.Put(ctx, key, in.Body, in.Size, in.ContentType); err != nil {
		return domain.EmailThread{}, fmt.Errorf("store attachment: %w", err)
	}

	updated, ok, err := a.store.AddAttachment(t.ID, t.Emails[idx].ID, domain.Attachment{
		Name: name,
		Type: in.ContentType,
		Size: in.Size,
		Key:  key,
	})
	if err == nil && !ok {
		err = ErrNotFound
	} else if err != nil {
		err = fmt.Errorf("record attachment: %w", err)
	}
	if err != nil {
		if delErr := a.objects.Delete(ctx, key); delErr != nil {
			err = errors.Join(err, delErr)
		}
		return domain.EmailThread{}, err
	}
	return updated, nil
}

// AttachmentURL returns a short-lived download link for a stored attachment.
func (a *App) AttachmentURL(ctx context.Context, threadID, name string) (string, error) {
	if a.objects == nil {
		return "", ErrStorageUnavailable
	}
	t, err := a.GetEmailThread(threadID)
	if err != nil {
		return "", err
	}
	key := ""
	for _, e := range t.Emails {
		for _, att := range e.Attachments {
			if att.Name == name && att.Key != "" {
				key = att.Key
			}
		}
	}
	if key == "" {
		return "", ErrNotFound
	}
	url, err := a.objects.PresignGet(ctx, key, storage.DefaultPresignExpiry)
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("presign attachment: %w", err)
	}
	return url, nil
}

func emailIndex(t domain.EmailThread, emailID string) int {
	if emailID == "" {
		latest, ok := t.LatestEmail()
		if !ok {
			return -1
		}
		emailID = latest.ID
	}
	for i, e := range t.Emails {
		if e.ID == emailID {
			return i
		}
	}
	return -1
}
