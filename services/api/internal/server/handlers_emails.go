package server

import (
	"errors"
	"net/http"
	"time"

	"nebulaone/pkg/domain"
	"nebulaone/services/api/internal/app"
)

type participantRequest struct {
	Name   string `json:"name"`
	Email  string `json:"email" validate:"required,email"`
	Avatar string `json:"avatar"`
}

type emailRequest struct {
	ID          string               `json:"id"`
	From        participantRequest   `json:"from"`
	To          []participantRequest `json:"to" validate:"dive"`
	Cc          []participantRequest `json:"cc" validate:"dive"`
	Subject     string               `json:"subject"`
	Body        string               `json:"body" validate:"required"`
	SentAt      time.Time            `json:"sentAt"`
	InReplyTo   string               `json:"inReplyTo"`
	Attachments []domain.Attachment  `json:"attachments"`
	IsImportant bool                 `json:"isImportant"`
}

type emailThreadRequest struct {
	Subject     string         `json:"subject" validate:"max=300"`
	Emails      []emailRequest `json:"emails" validate:"dive"`
	Labels      []string       `json:"labels"`
	Category    string         `json:"category"`
	IsRead      bool           `json:"isRead"`
	IsStarred   bool           `json:"isStarred"`
	IsImportant bool           `json:"isImportant"`
}

type queryRequest struct {
	Query string `json:"query" validate:"required,max=1000"`
}

func (p participantRequest) toDomain() domain.EmailParticipant {
	return domain.EmailParticipant{Name: p.Name, Email: p.Email, Avatar: p.Avatar}
}

func participants(in []participantRequest) []domain.EmailParticipant {
	out := make([]domain.EmailParticipant, 0, len(in))
	for _, p := range in {
		out = append(out, p.toDomain())
	}
	return out
}

func (e emailRequest) toDomain() domain.Email {
	return domain.Email{
		ID:          e.ID,
		From:        e.From.toDomain(),
		To:          participants(e.To),
		Cc:          participants(e.Cc),
		Subject:     e.Subject,
		Body:        e.Body,
		SentAt:      e.SentAt,
		InReplyTo:   e.InReplyTo,
		Attachments: e.Attachments,
		IsImportant: e.IsImportant,
	}
}

func (s *Server) handleListEmails(w http.ResponseWriter, r *http.Request) {
	threads, err := s.app.ListEmailThreads()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, threads)
}

func (s *Server) handlePrioritizedEmails(w http.ResponseWriter, r *http.Request) {
	threads, err := s.app.PrioritizedEmails()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, threads)
}

func (s *Server) handleGetEmail(w http.ResponseWriter, r *http.Request) {
	t, err := s.app.GetEmailThread(r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCreateEmail(w http.ResponseWriter, r *http.Request) {
	var req emailThreadRequest
	if !s.decode(w, r, &req) {
		return
	}
	emails := make([]domain.Email, 0, len(req.Emails))
	for _, e := range req.Emails {
		emails = append(emails, e.toDomain())
	}
	t, err := s.app.CreateEmailThread(domain.EmailThread{
		Subject:     req.Subject,
		Emails:      emails,
		Labels:      req.Labels,
		Category:    req.Category,
		IsRead:      req.IsRead,
		IsStarred:   req.IsStarred,
		IsImportant: req.IsImportant,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleUpdateEmail(w http.ResponseWriter, r *http.Request) {
	var patch domain.EmailThreadPatch
	if !s.decode(w, r, &patch) {
		return
	}
	t, err := s.app.UpdateEmailThread(r.PathValue("id"), patch)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleAppendEmail(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !s.decode(w, r, &req) {
		return
	}
	t, err := s.app.AppendEmail(r.PathValue("id"), req.toDomain())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleCompleteEmail(w http.ResponseWriter, r *http.Request) {
	t, err := s.app.CompleteEmailThread(r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleEmailSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.app.SummarizeEmailThread(r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleEmailTasks(w http.ResponseWriter, r *http.Request) {
	todos, err := s.app.EmailTasks(r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, todos)
}

func (s *Server) handleEmailReply(w http.ResponseWriter, r *http.Request) {
	reply, err := s.app.DraftReply(r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (s *Server) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	if !s.app.AttachmentsEnabled() {
		s.writeAppError(w, r, app.ErrStorageUnavailable)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	t, err := s.app.UploadAttachment(r.Context(), app.AttachmentUpload{
		ThreadID:    r.PathValue("id"),
		EmailID:     r.FormValue("emailId"),
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleAttachmentURL(w http.ResponseWriter, r *http.Request) {
	url, err := s.app.AttachmentURL(r.Context(), r.PathValue("id"), r.PathValue("name"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleAssistantQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.app.Query(req.Query)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.app.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
