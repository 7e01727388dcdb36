package server

import (
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/jonathan/problem-workshop/internal/activity"
	"github.com/jonathan/problem-workshop/internal/server/middleware"
	"github.com/jonathan/problem-workshop/internal/steps"
	"github.com/jonathan/problem-workshop/internal/types"
	"github.com/jonathan/problem-workshop/internal/userkey"
)

// Messages shown on the code-entry screen
const (
	msgCodeRequired = "Please enter a user code"
	msgCodeInvalid  = "Invalid user code. Please check and try again."
)

// activityURL returns the page of activity id.
func activityURL(id string, parts ...string) string {
	u := "/activities/" + url.PathEscape(id)
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

// definition resolves the {activity} path value against the catalog.
func (s *Server) definition(r *http.Request) (*activity.Definition, error) {
	id := r.PathValue("activity")
	def, ok := s.catalog.Get(id)
	if !ok {
		return nil, &ErrActivityNotFound{ID: id}
	}
	return def, nil
}

// controller returns the live controller for the request's user key, or nil when the
// request carries no key.
func (s *Server) controller(r *http.Request, def *activity.Definition) *activity.Controller {
	key, ok := middleware.GetUserKey(r)
	if !ok {
		return nil
	}
	return s.sessions.acquire(r.Context(), key, def)
}

// handleIndex lists the activities of the catalog.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := &pageData{Title: "Problem Workshop", Activities: s.catalog.Activities}
	if key, ok := middleware.GetUserKey(r); ok {
		data.Key = key
		data.KeyAbbrev = userkey.Abbreviate(key)
	}
	s.renderPage(w, http.StatusOK, pageIndex, data)
}

// handleActivity renders the screen matching the controller's state: code entry,
// load error, or the current step.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	def, err := s.definition(r)
	if err != nil {
		s.renderError(w, err)
		return
	}

	ctl := s.controller(r, def)
	if ctl == nil {
		s.renderCode(w, http.StatusOK, def, "", "")
		return
	}
	s.renderSnapshot(w, http.StatusOK, def, ctl.Snapshot(), "")
}

// handleSubmitCode adopts a previously issued code.
func (s *Server) handleSubmitCode(w http.ResponseWriter, r *http.Request) {
	def, err := s.definition(r)
	if err != nil {
		s.renderError(w, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.renderCode(w, http.StatusBadRequest, def, "", msgCodeRequired)
		return
	}

	req := types.CodeSubmitRequest{Code: userkey.Normalize(r.PostForm.Get("code"))}
	if req.Code == "" {
		s.renderCode(w, http.StatusBadRequest, def, "", msgCodeRequired)
		return
	}
	if err := req.Validate(); err != nil {
		s.renderCode(w, http.StatusUnprocessableEntity, def, req.Code, msgCodeInvalid)
		return
	}

	ctl := s.sessions.detached(r.Context(), def)
	if !ctl.SubmitCode(r.Context(), req.Code) {
		ctl.Close(r.Context())
		s.logger.Info("user code rejected", zap.String("activity", def.ID))
		s.renderCode(w, http.StatusUnprocessableEntity, def, req.Code, msgCodeInvalid)
		return
	}

	s.sessions.adopt(r.Context(), req.Code, ctl)
	middleware.SetUserKeyCookie(w, req.Code)
	http.Redirect(w, r, activityURL(def.ID), http.StatusSeeOther)
}

// handleSkipCode starts fresh with a newly generated key.
func (s *Server) handleSkipCode(w http.ResponseWriter, r *http.Request) {
	def, err := s.definition(r)
	if err != nil {
		s.renderError(w, err)
		return
	}

	ctl := s.sessions.detached(r.Context(), def)
	key := ctl.StartFresh()
	s.sessions.adopt(r.Context(), key, ctl)
	s.logger.Info("started fresh", zap.String("activity", def.ID))

	middleware.SetUserKeyCookie(w, key)
	http.Redirect(w, r, activityURL(def.ID), http.StatusSeeOther)
}

// handleRetry re-runs a failed load.
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	def, err := s.definition(r)
	if err != nil {
		s.renderError(w, err)
		return
	}

	if ctl := s.controller(r, def); ctl != nil {
		// Retrying a controller that is not in error is a no-op
		_ = ctl.Retry(r.Context())
	}
	http.Redirect(w, r, activityURL(def.ID), http.StatusSeeOther)
}

// renderSnapshot renders the screen for snap.
func (s *Server) renderSnapshot(w http.ResponseWriter, status int, def *activity.Definition, snap activity.Snapshot, message string) {
	switch snap.State {
	case activity.StateReady:
		shell := steps.BuildShell(def, snap)
		view := steps.Build(def, snap.Step, snap)
		s.renderPage(w, status, pageStep, &pageData{
			Title: def.Title,
			Shell: &shell,
			Step:  &view,
			Error: message,
		})
	case activity.StateError:
		shell := steps.BuildShell(def, snap)
		s.renderPage(w, http.StatusServiceUnavailable, pageError, &pageData{
			Title:       def.Title,
			Shell:       &shell,
			Message:     snap.Error,
			RetryAction: activityURL(def.ID, "retry"),
		})
	default:
		s.renderCode(w, status, def, "", message)
	}
}

// renderCode renders the code-entry screen.
func (s *Server) renderCode(w http.ResponseWriter, status int, def *activity.Definition, code, message string) {
	s.renderPage(w, status, pageCode, &pageData{
		Title:      def.Title,
		Shell:      &steps.Shell{ActivityID: def.ID, Title: def.Title, Subtitle: def.Subtitle},
		Error:      message,
		Code:       code,
		CodeAction: activityURL(def.ID, "code"),
		SkipAction: activityURL(def.ID, "skip"),
	})
}

// renderError renders a page for a request that could not be served.
func (s *Server) renderError(w http.ResponseWriter, err error) {
	s.renderPage(w, HTTPStatus(err), pageError, &pageData{
		Title:   "Problem Workshop",
		Message: userMessage(err),
	})
}

func (s *Server) renderPage(w http.ResponseWriter, status int, page string, data *pageData) {
	if err := s.pages.render(w, status, page, data); err != nil {
		s.logger.Error("failed to render page", zap.String("page", page), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
