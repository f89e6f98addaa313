package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/auth"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/backend"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/httputil"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/sanitize"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/session"
	"github.com/gorilla/mux"
)

// Draft fields survive a failed create so the form can be refilled.
const (
	draftTitle   = "draft.title"
	draftDetails = "draft.details"
	draftDue     = "draft.due_date"
)

// Backend field names mapped to the form anchors that render them.
var fieldAnchors = map[string]string{
	"title":       "#title",
	"description": "#details",
	"dueDate":     "#dueDate",
	"status":      "#status",
}

func taskID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	tasks, err := s.deps.Backend.ListTasks(r.Context(), sess.Data.Token)
	if err != nil {
		s.backendFailure(w, r, sess, err)
		return
	}
	s.render(w, r, http.StatusOK, "tasks", "Tasks", struct{ Tasks []backend.Task }{tasks})
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	task, err := s.deps.Backend.GetTask(r.Context(), sess.Data.Token, taskID(r))
	if err != nil {
		s.backendFailure(w, r, sess, err)
		return
	}
	s.render(w, r, http.StatusOK, "task", task.Title, struct {
		Task     *backend.Task
		Statuses []string
	}{task, backend.Statuses})
}

func (s *Server) handleNewTask(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	draft := backend.NewTask{
		Title:       sess.Get(draftTitle),
		Description: sess.Get(draftDetails),
		DueDate:     sess.Get(draftDue),
	}
	sess.Delete(draftTitle)
	sess.Delete(draftDetails)
	sess.Delete(draftDue)
	s.render(w, r, http.StatusOK, "new_task", "Create a task", struct{ Draft backend.NewTask }{draft})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	vals, err := input(r)
	if err != nil {
		s.errorPage(w, r, http.StatusBadRequest, "The request could not be understood.")
		return
	}
	sanitize.Values(vals)
	nt := backend.NewTask{
		Title:       vals.Get("title"),
		Description: vals.Get("details"),
		DueDate:     vals.Get("dueDate"),
		Status:      backend.StatusTodo,
	}

	if strings.TrimSpace(nt.Title) == "" {
		sess.AddError("Enter a title", "#title")
		s.keepDraft(sess, nt)
		http.Redirect(w, r, "/tasks/new", http.StatusSeeOther)
		return
	}

	created, err := s.deps.Backend.CreateTask(r.Context(), sess.Data.Token, nt)
	var re *backend.RemoteError
	switch {
	case err == nil:
		httputil.GetLogger(r.Context()).Info().Int64("task_id", created.ID).Msg("task created")
		http.Redirect(w, r, "/tasks/"+strconv.FormatInt(created.ID, 10), http.StatusSeeOther)
	case errors.As(err, &re) && re.StatusCode == http.StatusBadRequest:
		addValidationErrors(sess, re)
		s.keepDraft(sess, nt)
		http.Redirect(w, r, "/tasks/new", http.StatusSeeOther)
	default:
		s.backendFailure(w, r, sess, err)
	}
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	id := taskID(r)
	vals, err := input(r)
	if err != nil {
		s.errorPage(w, r, http.StatusBadRequest, "The request could not be understood.")
		return
	}
	status := vals.Get("status")
	back := "/tasks/" + strconv.FormatInt(id, 10)
	if !backend.ValidStatus(status) {
		sess.AddError("Select a status", "#status")
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}
	if _, err := s.deps.Backend.UpdateTaskStatus(r.Context(), sess.Data.Token, id, status); err != nil {
		s.backendFailure(w, r, sess, err)
		return
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}

func (s *Server) handleRemoveTask(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if err := s.deps.Backend.DeleteTask(r.Context(), sess.Data.Token, taskID(r)); err != nil {
		s.backendFailure(w, r, sess, err)
		return
	}
	http.Redirect(w, r, auth.HomePath, http.StatusSeeOther)
}

func (s *Server) keepDraft(sess *session.Session, nt backend.NewTask) {
	sess.Set(draftTitle, nt.Title)
	sess.Set(draftDetails, nt.Description)
	sess.Set(draftDue, nt.DueDate)
}

func addValidationErrors(sess *session.Session, re *backend.RemoteError) {
	if len(re.ValidationErrors) == 0 {
		sess.AddError(re.Message, "#title")
		return
	}
	// Stable order so the summary matches the form.
	for _, field := range []string{"title", "description", "dueDate", "status"} {
		if msg, ok := re.ValidationErrors[field]; ok {
			sess.AddError(msg, fieldAnchors[field])
		}
	}
	for field, msg := range re.ValidationErrors {
		if _, known := fieldAnchors[field]; !known {
			sess.AddError(msg, "#"+field)
		}
	}
}

// backendFailure maps a failed task call onto a response.
func (s *Server) backendFailure(w http.ResponseWriter, r *http.Request, sess *session.Session, err error) {
	logger := httputil.GetLogger(r.Context())
	switch backend.StatusOf(err) {
	case http.StatusUnauthorized:
		s.signOutAfter401(w, r, sess)
		return
	case http.StatusNotFound:
		s.errorPage(w, r, http.StatusNotFound, "The task could not be found.")
		return
	case http.StatusForbidden:
		s.errorPage(w, r, http.StatusForbidden, "You do not have permission to do that.")
		return
	}
	logger.Error().Err(err).Int("status", backend.StatusOf(err)).Msg("backend call failed")
	if errors.Is(err, backend.ErrNetwork) {
		s.errorPage(w, r, http.StatusServiceUnavailable, "The service is unavailable. Please try again.")
		return
	}
	s.errorPage(w, r, http.StatusBadGateway, "Sorry, there is a problem with the service. Please try again.")
}
