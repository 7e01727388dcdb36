package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonathan/problem-workshop/internal/activity"
	"github.com/jonathan/problem-workshop/internal/server/middleware"
	"github.com/jonathan/problem-workshop/internal/types"
)

// StateResponse represents the response for the state API
type StateResponse struct {
	Activity    string                      `json:"activity"`
	State       activity.State              `json:"state"`
	Key         string                      `json:"key,omitempty"`
	Step        int                         `json:"step"`
	TotalSteps  int                         `json:"total_steps"`
	StepValid   bool                        `json:"step_valid"`
	CanContinue bool                        `json:"can_continue"`
	CanGoBack   bool                        `json:"can_go_back"`
	Answers     map[string]types.FieldValue `json:"answers"`
	StartedAt   *time.Time                  `json:"started_at,omitempty"`
	CompletedAt *time.Time                  `json:"completed_at,omitempty"`
	SavePending bool                        `json:"save_pending"`
	Error       string                      `json:"error,omitempty"`
}

func newStateResponse(snap activity.Snapshot) StateResponse {
	answers := snap.Answers
	if answers == nil {
		answers = map[string]types.FieldValue{}
	}
	return StateResponse{
		Activity:    snap.ActivityID,
		State:       snap.State,
		Key:         snap.Key,
		Step:        snap.Step,
		TotalSteps:  snap.TotalSteps,
		StepValid:   snap.StepValid,
		CanContinue: snap.CanContinue,
		CanGoBack:   snap.CanGoBack,
		Answers:     answers,
		StartedAt:   snap.StartedAt,
		CompletedAt: snap.CompletedAt,
		SavePending: snap.SavePending,
		Error:       snap.Error,
	}
}

// handleGetState returns the controller state of an activity for the caller's key.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	def, err := s.definition(r)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	ctl := s.controller(r, def)
	if ctl == nil {
		s.jsonResponse(w, http.StatusOK, StateResponse{
			Activity:   def.ID,
			State:      activity.StateNeedsUserCode,
			TotalSteps: def.TotalSteps(),
			Answers:    map[string]types.FieldValue{},
		})
		return
	}
	s.jsonResponse(w, http.StatusOK, newStateResponse(ctl.Snapshot()))
}

// handleUpdateField replaces the value of one field on the current step.
func (s *Server) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	def, err := s.definition(r)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	if _, ok := middleware.GetUserKey(r); !ok {
		err := &ErrNoUserKey{}
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	var req types.FieldUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	ctl := s.controller(r, def)
	if err := updateField(ctl, r.PathValue("field"), &req); err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, newStateResponse(ctl.Snapshot()))
}

// updateField applies req to field using the member matching the field's kind.
func updateField(ctl *activity.Controller, field string, req *types.FieldUpdateRequest) error {
	rule, _, ok := ctl.Definition().Rule(field)
	if !ok {
		return fmt.Errorf("%w: %s", activity.ErrUnknownField, field)
	}

	switch rule.Kind {
	case types.KindText:
		if req.Text == nil {
			return &ErrValidation{Field: "text", Message: "text is required for this field"}
		}
		return ctl.SetText(field, *req.Text)

	case types.KindChoice:
		return ctl.SetChoice(field, req.Selected, req.OtherText)

	case types.KindMarkers:
		if rule.MaxItems > 0 && len(req.Markers) > rule.MaxItems {
			return &ErrValidation{Field: "markers", Message: fmt.Sprintf("at most %d markers allowed", rule.MaxItems)}
		}
		markers := make([]types.Marker, 0, len(req.Markers))
		for _, in := range req.Markers {
			markers = append(markers, types.NewMarker(in))
		}
		return ctl.SetField(field, types.MarkersValue(markers))

	case types.KindList:
		if rule.MaxItems > 0 && len(req.Items) > rule.MaxItems {
			return &ErrValidation{Field: "items", Message: fmt.Sprintf("at most %d items allowed", rule.MaxItems)}
		}
		now := time.Now()
		items := make([]types.TextResponse, 0, len(req.Items))
		for _, text := range req.Items {
			items = append(items, types.NewTextResponse(text, max(rule.ItemMinWords, 1), now))
		}
		return ctl.SetField(field, types.ListValue(items))
	}
	return &ErrValidation{Field: field, Message: "unsupported field kind"}
}
