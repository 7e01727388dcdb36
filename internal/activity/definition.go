// Package activity holds the activity catalog and the generic progress controller
// that drives a user through an activity's steps.
package activity

import (
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/problem-workshop/internal/types"
	"github.com/jonathan/problem-workshop/internal/validation"
)

// Option is one selectable value of a choice field.
type Option struct {
	Value string `yaml:"value"`
	Label string `yaml:"label"`
}

// DisplayLabel returns Label, falling back to Value.
func (o Option) DisplayLabel() string {
	if o.Label != "" {
		return o.Label
	}
	return o.Value
}

// Rule describes one field of a step and the condition it must meet.
type Rule struct {
	Name        string          `yaml:"name"`
	Kind        types.FieldKind `yaml:"kind"`
	Label       string          `yaml:"label"`
	Help        string          `yaml:"help"`
	Placeholder string          `yaml:"placeholder"`

	// text fields
	MinWords int `yaml:"minWords"`

	// choice fields
	Options  []Option `yaml:"options"`
	Multiple bool     `yaml:"multiple"`

	// markers and list fields
	MinItems     int    `yaml:"minItems"`
	MaxItems     int    `yaml:"maxItems"`
	MarkerType   string `yaml:"markerType"`
	ItemMinWords int    `yaml:"itemMinWords"`
}

// minItems is the effective lower bound for choice, markers and list fields.
func (r *Rule) minItems() int {
	if r.MinItems < 1 {
		return 1
	}
	return r.MinItems
}

// HasOption reports whether value is one of the rule's options.
func (r *Rule) HasOption(value string) bool {
	for _, o := range r.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// Satisfied reports whether v meets the rule.
func (r *Rule) Satisfied(v types.FieldValue) bool {
	if v.Kind != r.Kind {
		return false
	}
	switch r.Kind {
	case types.KindText:
		if r.MinWords < 1 {
			return validation.WordCount(v.Text.Response) > 0
		}
		return validation.IsValid(v.Text.Response, r.MinWords)
	case types.KindChoice:
		n := len(v.Selection.Selected)
		if n < r.minItems() || (!r.Multiple && n > 1) {
			return false
		}
		for _, s := range v.Selection.Selected {
			if !r.HasOption(s) {
				return false
			}
		}
		return true
	case types.KindMarkers:
		n := types.CountMarkers(v.Markers, r.MarkerType)
		return n >= r.minItems() && (r.MaxItems == 0 || n <= r.MaxItems)
	case types.KindList:
		if len(v.Items) < r.minItems() || (r.MaxItems > 0 && len(v.Items) > r.MaxItems) {
			return false
		}
		for _, item := range v.Items {
			if !validation.IsValid(item.Response, max(r.ItemMinWords, 1)) {
				return false
			}
		}
		return true
	}
	return false
}

// Normalize coerces a stored value to the rule's kind and refreshes its cached
// word counts and validity. It returns false when the value cannot represent the
// field and should be dropped.
func (r *Rule) Normalize(v types.FieldValue) (types.FieldValue, bool) {
	switch r.Kind {
	case types.KindText:
		if v.Kind != types.KindText {
			return types.FieldValue{}, false
		}
		v.Text = v.Text.Recompute(r.MinWords)
	case types.KindChoice:
		switch v.Kind {
		case types.KindChoice:
		case types.KindText:
			s := strings.TrimSpace(v.Text.Response)
			if s == "" {
				return types.FieldValue{}, false
			}
			v = types.ChoiceValue(types.Selection{Selected: []string{s}, LastModified: v.Text.LastModified})
		default:
			return types.FieldValue{}, false
		}
		v.Selection.IsValid = r.Satisfied(v)
	case types.KindMarkers:
		if v.Kind != types.KindMarkers {
			return types.FieldValue{}, false
		}
		v = v.Clone()
		for i := range v.Markers {
			m := &v.Markers[i]
			if m.ID == "" {
				m.ID = uuid.NewString()
			}
			if m.Type == "" {
				m.Type = r.MarkerType
			}
			m.X = clampPercent(m.X)
			m.Y = clampPercent(m.Y)
		}
	case types.KindList:
		switch v.Kind {
		case types.KindList:
			v = v.Clone()
		case types.KindText:
			if strings.TrimSpace(v.Text.Response) == "" {
				return types.FieldValue{}, false
			}
			v = types.ListValue([]types.TextResponse{v.Text})
		default:
			return types.FieldValue{}, false
		}
		for i := range v.Items {
			v.Items[i] = v.Items[i].Recompute(max(r.ItemMinWords, 1))
		}
	default:
		return types.FieldValue{}, false
	}
	if v.IsEmpty() {
		return types.FieldValue{}, false
	}
	return v, true
}

func clampPercent(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(100, math.Max(0, v))
}

// Step is one screen of an activity.
type Step struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Summary     bool   `yaml:"summary"`
	Fields      []Rule `yaml:"fields"`
}

// Valid reports whether every field of the step is satisfied by answers.
func (s *Step) Valid(answers map[string]types.FieldValue) bool {
	for i := range s.Fields {
		if !s.Fields[i].Satisfied(answers[s.Fields[i].Name]) {
			return false
		}
	}
	return true
}

// Populated reports whether any field of the step has a non-empty answer.
func (s *Step) Populated(answers map[string]types.FieldValue) bool {
	for _, f := range s.Fields {
		if v, ok := answers[f.Name]; ok && !v.IsEmpty() {
			return true
		}
	}
	return false
}

// Definition is the schema of one activity.
type Definition struct {
	ID                  string `yaml:"id"`
	Title               string `yaml:"title"`
	Subtitle            string `yaml:"subtitle"`
	RequireActivityData bool   `yaml:"requireActivityData"`
	Steps               []Step `yaml:"steps"`
}

// TotalSteps returns the number of steps.
func (d *Definition) TotalSteps() int {
	return len(d.Steps)
}

// Step returns step n (1-based).
func (d *Definition) Step(n int) (*Step, bool) {
	if n < 1 || n > len(d.Steps) {
		return nil, false
	}
	return &d.Steps[n-1], true
}

// Rule returns the rule for field name and the 1-based step it belongs to.
func (d *Definition) Rule(name string) (*Rule, int, bool) {
	for i := range d.Steps {
		for j := range d.Steps[i].Fields {
			if d.Steps[i].Fields[j].Name == name {
				return &d.Steps[i].Fields[j], i + 1, true
			}
		}
	}
	return nil, 0, false
}

// StepValid reports whether step n's predicate holds. Unknown steps are invalid.
func (d *Definition) StepValid(n int, answers map[string]types.FieldValue) bool {
	s, ok := d.Step(n)
	if !ok {
		return false
	}
	return s.Valid(answers)
}

// NormalizeAnswers returns a copy of answers with every known field coerced by its
// rule. Values that cannot represent their field are dropped; unknown fields are kept.
func (d *Definition) NormalizeAnswers(answers map[string]types.FieldValue) map[string]types.FieldValue {
	out := make(map[string]types.FieldValue, len(answers))
	for name, v := range answers {
		rule, _, ok := d.Rule(name)
		if !ok {
			out[name] = v.Clone()
			continue
		}
		if nv, ok := rule.Normalize(v); ok {
			out[name] = nv
		}
	}
	return out
}

// ResumeStep derives the step to show for a stored activity state:
//  1. a completion marker resumes at the final step;
//  2. otherwise an explicit step in range is used, falling back to the highest step
//     with any populated field (legacy records), then step 1;
//  3. the result never passes the first step whose predicate fails.
func (d *Definition) ResumeStep(st types.ActivityState, answers map[string]types.FieldValue) int {
	n := d.TotalSteps()
	if n == 0 {
		return 1
	}

	step := 1
	switch {
	case st.CompletedAt != nil:
		step = n
	case st.Step >= 1 && st.Step <= n:
		step = st.Step
	default:
		for i := n; i >= 1; i-- {
			if d.Steps[i-1].Populated(answers) {
				step = i
				break
			}
		}
	}

	for i := 1; i < step; i++ {
		if !d.StepValid(i, answers) {
			return i
		}
	}
	return step
}
