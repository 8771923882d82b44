package server

import (
	"net/http"

	"nebulaone/pkg/domain"
)

type timelineRequest struct {
	Type   string `json:"type" validate:"required"`
	ItemID string `json:"itemId" validate:"required"`
}

type taskRequest struct {
	TicketID    string `json:"ticketId" validate:"max=32"`
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description"`
	Status      string `json:"status" validate:"omitempty,oneof=todo inprogress done"`
	AssigneeID  string `json:"assigneeId"`
	DueDate     string `json:"dueDate"`
	Project     string `json:"project" validate:"max=100"`
}

type messageRequest struct {
	AuthorID    string `json:"authorId" validate:"required"`
	Content     string `json:"content" validate:"required"`
	CodeSnippet string `json:"codeSnippet"`
	Time        string `json:"time"`
}

type chatRequest struct {
	Title    string           `json:"title" validate:"required,max=200"`
	Channel  string           `json:"channel"`
	Priority string           `json:"priority" validate:"omitempty,oneof=low medium high"`
	Messages []messageRequest `json:"messages" validate:"dive"`
}

type documentRequest struct {
	Title           string   `json:"title" validate:"required,max=200"`
	LastEdited      string   `json:"lastEdited"`
	Content         string   `json:"content"`
	CollaboratorIDs []string `json:"collaboratorIds"`
}

type meetingRequest struct {
	Title             string   `json:"title" validate:"required,max=200"`
	StartTime         string   `json:"startTime"`
	EndTime           string   `json:"endTime"`
	ParticipantIDs    []string `json:"participantIds"`
	Summary           string   `json:"summary"`
	SummaryConfidence int      `json:"summaryConfidence" validate:"gte=0,lte=100"`
	ActionItems       []string `json:"actionItems"`
	RecordingURL      string   `json:"recordingUrl" validate:"omitempty,url"`
}

func (m messageRequest) toDomain() domain.Message {
	return domain.Message{AuthorID: m.AuthorID, Content: m.Content, CodeSnippet: m.CodeSnippet, Time: m.Time}
}

// timeline
func (s *Server) handleListTimeline(w http.ResponseWriter, r *http.Request) {
	items, err := s.app.ListTimeline()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetTimelineItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.app.GetTimelineItem(r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleAddTimelineItem(w http.ResponseWriter, r *http.Request) {
	var req timelineRequest
	if !s.decode(w, r, &req) {
		return
	}
	item, err := s.app.AddTimelineItem(domain.EntityRef{Kind: domain.EntityKind(req.Type), ID: req.ItemID})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// tasks
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.app.ListTasks()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.app.GetTask(r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if !s.decode(w, r, &req) {
		return
	}
	task, err := s.app.CreateTask(domain.Task{
		TicketID:    req.TicketID,
		Title:       req.Title,
		Description: req.Description,
		Status:      domain.TaskStatus(req.Status),
		AssigneeID:  req.AssigneeID,
		DueDate:     req.DueDate,
		Project:     req.Project,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var patch domain.TaskPatch
	if !s.decode(w, r, &patch) {
		return
	}
	task, err := s.app.UpdateTask(r.PathValue("id"), patch)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// chats
func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.app.ListChats()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	chat, err := s.app.GetChat(r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}
	msgs := make([]domain.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, m.toDomain())
	}
	chat, err := s.app.CreateChat(domain.Chat{
		Title:    req.Title,
		Channel:  req.Channel,
		Priority: req.Priority,
		Messages: msgs,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, chat)
}

func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !s.decode(w, r, &req) {
		return
	}
	msg, err := s.app.AddMessage(r.PathValue("id"), req.toDomain())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// documents
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.app.ListDocuments()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.app.GetDocument(r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if !s.decode(w, r, &req) {
		return
	}
	doc, err := s.app.CreateDocument(domain.Document{
		Title:           req.Title,
		LastEdited:      req.LastEdited,
		Content:         req.Content,
		CollaboratorIDs: req.CollaboratorIDs,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	var patch domain.DocumentPatch
	if !s.decode(w, r, &patch) {
		return
	}
	doc, err := s.app.UpdateDocument(r.PathValue("id"), patch)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// meetings
func (s *Server) handleListMeetings(w http.ResponseWriter, r *http.Request) {
	meetings, err := s.app.ListMeetings()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meetings)
}

func (s *Server) handleGetMeeting(w http.ResponseWriter, r *http.Request) {
	m, err := s.app.GetMeeting(r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleCreateMeeting(w http.ResponseWriter, r *http.Request) {
	var req meetingRequest
	if !s.decode(w, r, &req) {
		return
	}
	m, err := s.app.CreateMeeting(domain.Meeting{
		Title:             req.Title,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
		ParticipantIDs:    req.ParticipantIDs,
		Summary:           req.Summary,
		SummaryConfidence: req.SummaryConfidence,
		ActionItems:       req.ActionItems,
		RecordingURL:      req.RecordingURL,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleUpdateMeeting(w http.ResponseWriter, r *http.Request) {
	var patch domain.MeetingPatch
	if !s.decode(w, r, &patch) {
		return
	}
	m, err := s.app.UpdateMeeting(r.PathValue("id"), patch)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
