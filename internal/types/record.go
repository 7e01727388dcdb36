package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CurrentVersion is the version tag written on every saved record.
const CurrentVersion = "1.0"

// UserProfile holds optional contact details attached to a record.
type UserProfile struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// ActivityState is the persisted progress of one activity.
type ActivityState struct {
	// Step is the step the user was on when the state was saved. Zero means the
	// record predates explicit steps and the step has to be inferred from answers.
	Step         int                   `json:"step,omitempty"`
	StepAnswers  map[string]FieldValue `json:"stepAnswers"`
	StartedAt    *time.Time            `json:"startedAt,omitempty"`
	CompletedAt  *time.Time            `json:"completedAt,omitempty"`
	LastModified time.Time             `json:"lastModified"`
}

// HasData reports whether the state holds any answer or a completion marker.
func (s ActivityState) HasData() bool {
	if s.CompletedAt != nil {
		return true
	}
	for _, v := range s.StepAnswers {
		if !v.IsEmpty() {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of s.
func (s ActivityState) Clone() ActivityState {
	out := s
	out.StepAnswers = make(map[string]FieldValue, len(s.StepAnswers))
	for k, v := range s.StepAnswers {
		out.StepAnswers[k] = v.Clone()
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// UserRecord is everything stored under one user key.
type UserRecord struct {
	Key         string                   `json:"key"`
	Version     string                   `json:"version"`
	CreatedAt   time.Time                `json:"createdAt"`
	LastUpdated time.Time                `json:"lastUpdated"`
	UserProfile *UserProfile             `json:"userProfile,omitempty"`
	Activities  map[string]ActivityState `json:"activities"`
}

// NewUserRecord creates an empty record for key.
func NewUserRecord(key string, now time.Time) *UserRecord {
	return &UserRecord{
		Key:         key,
		Version:     CurrentVersion,
		CreatedAt:   now,
		LastUpdated: now,
		Activities:  make(map[string]ActivityState),
	}
}

// Activity returns the state stored for activity id.
func (r *UserRecord) Activity(id string) (ActivityState, bool) {
	if r == nil || r.Activities == nil {
		return ActivityState{}, false
	}
	st, ok := r.Activities[id]
	return st, ok
}

// SetActivity replaces the state stored for activity id, leaving siblings untouched.
func (r *UserRecord) SetActivity(id string, st ActivityState) {
	if r.Activities == nil {
		r.Activities = make(map[string]ActivityState)
	}
	r.Activities[id] = st
}

// Clone returns a deep copy of r.
func (r *UserRecord) Clone() *UserRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.UserProfile != nil {
		p := *r.UserProfile
		out.UserProfile = &p
	}
	out.Activities = make(map[string]ActivityState, len(r.Activities))
	for id, st := range r.Activities {
		out.Activities[id] = st.Clone()
	}
	return &out
}

// LegacyActivityPaths maps the "<workshop>.<activity>" locations used by earlier
// clients to current activity ids.
var LegacyActivityPaths = map[string]string{
	"workshop1.activity1": "problem-origin-story",
	"workshop1.activity2": "market-landscape",
	"day1.activity1":      "problem-origin-story",
	"day1.activity2":      "problem-validation",
}

// UnmarshalJSON decodes a record and folds any legacy per-workshop activity
// trees into Activities. Existing entries in Activities win over legacy ones.
func (r *UserRecord) UnmarshalJSON(data []byte) error {
	type plain UserRecord
	var aux struct {
		plain
		Workshop1 map[string]json.RawMessage `json:"workshop1"`
		Day1      map[string]json.RawMessage `json:"day1"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*r = UserRecord(aux.plain)
	if r.Activities == nil {
		r.Activities = make(map[string]ActivityState)
	}

	legacy := map[string]map[string]json.RawMessage{
		"workshop1": aux.Workshop1,
		"day1":      aux.Day1,
	}
	for workshop, activities := range legacy {
		for name, raw := range activities {
			id, ok := LegacyActivityPaths[workshop+"."+name]
			if !ok {
				continue
			}
			if _, exists := r.Activities[id]; exists {
				continue
			}
			st, found, err := decodeLegacyActivity(raw)
			if err != nil {
				return fmt.Errorf("failed to decode %s.%s: %w", workshop, name, err)
			}
			if found {
				r.Activities[id] = st
			}
		}
	}
	return nil
}

// legacyMetaKeys are keys of a legacy activity object that are not answers.
var legacyMetaKeys = map[string]bool{
	"startedAt":    true,
	"completedAt":  true,
	"lastModified": true,
	"metadata":     true,
	"stepData":     true,
}

func decodeLegacyActivity(raw json.RawMessage) (ActivityState, bool, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		// null or a non-object value means the activity was never started
		return ActivityState{}, false, nil
	}

	st := ActivityState{StepAnswers: make(map[string]FieldValue)}
	st.StartedAt = legacyTime(obj["startedAt"])
	st.CompletedAt = legacyTime(obj["completedAt"])
	if t := legacyTime(obj["lastModified"]); t != nil {
		st.LastModified = *t
	}

	if stepData, ok := obj["stepData"]; ok {
		var steps map[string]map[string]json.RawMessage
		if err := json.Unmarshal(stepData, &steps); err != nil {
			return ActivityState{}, false, fmt.Errorf("invalid stepData: %w", err)
		}
		for _, fields := range steps {
			for name, value := range fields {
				var fv FieldValue
				if err := json.Unmarshal(value, &fv); err != nil {
					return ActivityState{}, false, fmt.Errorf("invalid field %s: %w", name, err)
				}
				if fv.Kind != "" {
					st.StepAnswers[name] = fv
				}
			}
		}
	}

	for name, value := range obj {
		if legacyMetaKeys[name] {
			continue
		}
		var fv FieldValue
		if err := json.Unmarshal(value, &fv); err != nil {
			return ActivityState{}, false, fmt.Errorf("invalid field %s: %w", name, err)
		}
		if fv.Kind != "" {
			st.StepAnswers[name] = fv
		}
	}

	return st, true, nil
}

func legacyTime(raw json.RawMessage) *time.Time {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || strings.TrimSpace(s) == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}
