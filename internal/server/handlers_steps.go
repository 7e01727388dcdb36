package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/problem-workshop/internal/activity"
	"github.com/jonathan/problem-workshop/internal/types"
)

// Form field suffixes used by the step form
const (
	shownSuffix = "__shown"
	otherSuffix = "__other"
)

// Step form actions
const (
	actionSave     = "save"
	actionContinue = "continue"
	actionBack     = "back"
)

// readyController resolves the activity and its Ready controller. When there is none it
// writes the response (an error page or a redirect to the activity page) and returns
// false.
func (s *Server) readyController(w http.ResponseWriter, r *http.Request) (*activity.Definition, *activity.Controller, bool) {
	def, err := s.definition(r)
	if err != nil {
		s.renderError(w, err)
		return nil, nil, false
	}

	ctl := s.controller(r, def)
	if ctl == nil || ctl.Snapshot().State != activity.StateReady {
		http.Redirect(w, r, activityURL(def.ID), http.StatusSeeOther)
		return nil, nil, false
	}

	if err := r.ParseForm(); err != nil {
		s.renderSnapshot(w, http.StatusBadRequest, def, ctl.Snapshot(), "The form could not be read.")
		return nil, nil, false
	}
	return def, ctl, true
}

// finish redirects back to the activity page, or re-renders it with the error.
func (s *Server) finish(w http.ResponseWriter, r *http.Request, def *activity.Definition, ctl *activity.Controller, err error) {
	if err != nil {
		status := HTTPStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("step action failed", zap.String("activity", def.ID), zap.Error(err))
		}
		s.renderSnapshot(w, status, def, ctl.Snapshot(), userMessage(err))
		return
	}
	http.Redirect(w, r, activityURL(def.ID), http.StatusSeeOther)
}

// handleStep applies the text and choice fields of the current step, then performs the
// requested navigation.
func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	def, ctl, ok := s.readyController(w, r)
	if !ok {
		return
	}

	if err := applyStepForm(ctl, r); err != nil {
		s.finish(w, r, def, ctl, err)
		return
	}

	var err error
	switch r.PostForm.Get("action") {
	case actionContinue:
		err = ctl.Continue()
	case actionBack:
		err = ctl.Back()
	case actionSave, "":
		ctl.Flush(r.Context())
	default:
		err = &ErrValidation{Field: "action", Message: "unknown action"}
	}
	s.finish(w, r, def, ctl, err)
}

// applyStepForm writes every text and choice field of the current step present in the
// form. Markers and list items have their own actions.
func applyStepForm(ctl *activity.Controller, r *http.Request) error {
	snap := ctl.Snapshot()
	step, ok := ctl.Definition().Step(snap.Step)
	if !ok {
		return nil
	}

	for i := range step.Fields {
		rule := &step.Fields[i]
		switch rule.Kind {
		case types.KindText:
			values, present := r.PostForm[rule.Name]
			if !present {
				continue
			}
			if err := ctl.SetText(rule.Name, values[0]); err != nil {
				return err
			}
		case types.KindChoice:
			_, shown := r.PostForm[rule.Name+shownSuffix]
			selected, present := r.PostForm[rule.Name]
			if !shown && !present {
				continue
			}
			if err := ctl.SetChoice(rule.Name, selected, r.PostForm.Get(rule.Name+otherSuffix)); err != nil {
				return err
			}
		}
	}
	return nil
}

// handleReset clears the activity and persists the cleared state.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	def, ctl, ok := s.readyController(w, r)
	if !ok {
		return
	}
	s.finish(w, r, def, ctl, ctl.Reset(context.WithoutCancel(r.Context())))
}

// handleAddMarker places a marker from the form values type, x, y and label.
func (s *Server) handleAddMarker(w http.ResponseWriter, r *http.Request) {
	def, ctl, ok := s.readyController(w, r)
	if !ok {
		return
	}

	in, err := markerInput(r)
	if err == nil {
		_, err = ctl.AddMarker(r.PathValue("field"), in)
	}
	s.finish(w, r, def, ctl, err)
}

func markerInput(r *http.Request) (types.MarkerInput, error) {
	x, err := strconv.ParseFloat(strings.TrimSpace(r.PostForm.Get("x")), 64)
	if err != nil {
		return types.MarkerInput{}, &ErrValidation{Field: "x", Message: "Enter a position between 0 and 100."}
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(r.PostForm.Get("y")), 64)
	if err != nil {
		return types.MarkerInput{}, &ErrValidation{Field: "y", Message: "Enter a position between 0 and 100."}
	}
	return types.MarkerInput{
		Type:  strings.TrimSpace(r.PostForm.Get("type")),
		X:     x,
		Y:     y,
		Label: r.PostForm.Get("label"),
	}, nil
}

// handleRelabelMarker renames a marker.
func (s *Server) handleRelabelMarker(w http.ResponseWriter, r *http.Request) {
	def, ctl, ok := s.readyController(w, r)
	if !ok {
		return
	}
	err := ctl.RelabelMarker(r.PathValue("field"), r.PathValue("marker"), r.PostForm.Get("label"))
	s.finish(w, r, def, ctl, err)
}

// handleRemoveMarker deletes a marker.
func (s *Server) handleRemoveMarker(w http.ResponseWriter, r *http.Request) {
	def, ctl, ok := s.readyController(w, r)
	if !ok {
		return
	}
	err := ctl.RemoveMarker(r.PathValue("field"), r.PathValue("marker"))
	s.finish(w, r, def, ctl, err)
}

// handleAddItem appends a submitted item to a list field.
func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	def, ctl, ok := s.readyController(w, r)
	if !ok {
		return
	}
	err := ctl.AddItem(r.PathValue("field"), r.PostForm.Get("text"))
	s.finish(w, r, def, ctl, err)
}

// handleRemoveItem deletes a list item by index.
func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	def, ctl, ok := s.readyController(w, r)
	if !ok {
		return
	}

	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		s.finish(w, r, def, ctl, &ErrValidation{Field: "index", Message: "invalid item index"})
		return
	}
	s.finish(w, r, def, ctl, ctl.RemoveItem(r.PathValue("field"), index))
}
