// Package steps turns an activity definition and a controller snapshot into the
// view models rendered by the server. Builders are pure and never touch storage.
package steps

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/jonathan/problem-workshop/internal/activity"
	"github.com/jonathan/problem-workshop/internal/types"
	"github.com/jonathan/problem-workshop/internal/userkey"
	"github.com/jonathan/problem-workshop/internal/validation"
)

// OptionView is one option of a choice field.
type OptionView struct {
	Value    string
	Label    string
	Selected bool
}

// MarkerView is a placed marker with its edit actions.
type MarkerView struct {
	types.Marker
	RelabelAction string
	DeleteAction  string
}

// ItemView is a submitted list item with its delete action.
type ItemView struct {
	Index        int
	Text         string
	WordCount    int
	Valid        bool
	DeleteAction string
}

// FieldView carries everything needed to render one field.
type FieldView struct {
	Name        string
	Kind        types.FieldKind
	Label       string
	Help        string
	Placeholder string
	Valid       bool

	// text
	Text      string
	WordCount int
	MinWords  int
	Remaining int

	// choice
	Options   []OptionView
	Multiple  bool
	OtherText string

	// markers
	Markers         []MarkerView
	MarkerType      string
	MaxItems        int
	AddMarkerAction string

	// list
	Items         []ItemView
	ItemMinWords  int
	AddItemAction string
}

// SummaryEntry is one answered field on the summary screen.
type SummaryEntry struct {
	Label  string
	Answer string
	Lines  []string
}

// SummarySection groups summary entries by the step they were collected on.
type SummarySection struct {
	Title   string
	Entries []SummaryEntry
}

// StepView is the view model of one step.
type StepView struct {
	ActivityID  string
	Number      int
	Total       int
	Title       string
	Description string
	Summary     bool
	Fields      []FieldView
	Sections    []SummarySection

	Valid       bool
	CanContinue bool
	CanGoBack   bool

	SubmitAction string
	ResetAction  string
}

// Build returns the view of step number stepIndex (1-based) for snap.
func Build(def *activity.Definition, stepIndex int, snap activity.Snapshot) StepView {
	step, ok := def.Step(stepIndex)
	if !ok {
		stepIndex = 1
		step = &def.Steps[0]
	}

	view := StepView{
		ActivityID:   def.ID,
		Number:       stepIndex,
		Total:        def.TotalSteps(),
		Title:        step.Title,
		Description:  step.Description,
		Summary:      step.Summary,
		Valid:        step.Valid(snap.Answers),
		CanGoBack:    stepIndex > 1,
		SubmitAction: activityPath(def.ID, "step"),
		ResetAction:  activityPath(def.ID, "reset"),
	}
	view.CanContinue = view.Valid && stepIndex < view.Total

	for i := range step.Fields {
		view.Fields = append(view.Fields, buildField(def.ID, &step.Fields[i], snap.Answers[step.Fields[i].Name]))
	}
	if step.Summary {
		view.Sections = buildSummary(def, snap.Answers)
	}
	return view
}

func buildField(activityID string, rule *activity.Rule, value types.FieldValue) FieldView {
	fv := FieldView{
		Name:        rule.Name,
		Kind:        rule.Kind,
		Label:       rule.Label,
		Help:        rule.Help,
		Placeholder: rule.Placeholder,
		Valid:       rule.Satisfied(value),
	}

	switch rule.Kind {
	case types.KindText:
		fv.Text = value.Text.Response
		fv.WordCount = validation.WordCount(fv.Text)
		fv.MinWords = rule.MinWords
		fv.Remaining = validation.Remaining(fv.Text, rule.MinWords)
	case types.KindChoice:
		fv.Multiple = rule.Multiple
		fv.OtherText = value.Selection.OtherText
		for _, o := range rule.Options {
			fv.Options = append(fv.Options, OptionView{
				Value:    o.Value,
				Label:    o.DisplayLabel(),
				Selected: value.Selection.Contains(o.Value),
			})
		}
	case types.KindMarkers:
		fv.MarkerType = rule.MarkerType
		fv.MaxItems = rule.MaxItems
		fv.AddMarkerAction = fieldPath(activityID, rule.Name, "markers")
		for _, m := range value.Markers {
			base := fieldPath(activityID, rule.Name, "markers", m.ID)
			fv.Markers = append(fv.Markers, MarkerView{
				Marker:        m,
				RelabelAction: base + "/label",
				DeleteAction:  base + "/delete",
			})
		}
	case types.KindList:
		fv.ItemMinWords = rule.ItemMinWords
		fv.MaxItems = rule.MaxItems
		fv.AddItemAction = fieldPath(activityID, rule.Name, "items")
		for i, item := range value.Items {
			fv.Items = append(fv.Items, ItemView{
				Index:        i,
				Text:         item.Response,
				WordCount:    validation.WordCount(item.Response),
				Valid:        validation.IsValid(item.Response, max(rule.ItemMinWords, 1)),
				DeleteAction: fieldPath(activityID, rule.Name, "items", fmt.Sprint(i)) + "/delete",
			})
		}
	}
	return fv
}

func buildSummary(def *activity.Definition, answers map[string]types.FieldValue) []SummarySection {
	var sections []SummarySection
	for _, step := range def.Steps {
		if step.Summary || len(step.Fields) == 0 {
			continue
		}
		section := SummarySection{Title: step.Title}
		for i := range step.Fields {
			rule := &step.Fields[i]
			value, ok := answers[rule.Name]
			if !ok || value.IsEmpty() {
				continue
			}
			entry := SummaryEntry{Label: rule.Label}
			if rule.Kind == types.KindList || rule.Kind == types.KindMarkers {
				entry.Lines = DescribeLines(rule, value)
			} else {
				entry.Answer = Describe(rule, value)
			}
			section.Entries = append(section.Entries, entry)
		}
		sections = append(sections, section)
	}
	return sections
}

// Describe renders an answer as a single line of text.
func Describe(rule *activity.Rule, value types.FieldValue) string {
	switch value.Kind {
	case types.KindText:
		return strings.TrimSpace(value.Text.Response)
	case types.KindChoice:
		labels := make([]string, 0, len(value.Selection.Selected))
		for _, s := range value.Selection.Selected {
			labels = append(labels, optionLabel(rule, s))
		}
		out := strings.Join(labels, ", ")
		if value.Selection.OtherText != "" {
			out = strings.TrimPrefix(out+"; "+value.Selection.OtherText, "; ")
		}
		return out
	case types.KindMarkers, types.KindList:
		return strings.Join(DescribeLines(rule, value), "; ")
	}
	return ""
}

// DescribeLines renders a multi-valued answer as one line per marker or item.
func DescribeLines(rule *activity.Rule, value types.FieldValue) []string {
	var lines []string
	switch value.Kind {
	case types.KindMarkers:
		for _, m := range value.Markers {
			label := m.Label
			if label == "" {
				label = "(unlabelled)"
			}
			lines = append(lines, fmt.Sprintf("%s at (%.0f%%, %.0f%%)", label, m.X, m.Y))
		}
	case types.KindList:
		for _, item := range value.Items {
			lines = append(lines, strings.TrimSpace(item.Response))
		}
	default:
		if s := Describe(rule, value); s != "" {
			lines = append(lines, s)
		}
	}
	return lines
}

func optionLabel(rule *activity.Rule, value string) string {
	if rule != nil {
		for _, o := range rule.Options {
			if o.Value == value {
				return o.DisplayLabel()
			}
		}
	}
	return value
}

// ProgressStatus marks a step in the progress indicator.
type ProgressStatus string

// Progress statuses
const (
	StatusDone     ProgressStatus = "done"
	StatusCurrent  ProgressStatus = "current"
	StatusUpcoming ProgressStatus = "upcoming"
)

// ProgressItem is one numbered entry of the progress indicator.
type ProgressItem struct {
	Number int
	Title  string
	Status ProgressStatus
}

// Shell is the frame around every step: header, key and progress.
type Shell struct {
	ActivityID   string
	Title        string
	Subtitle     string
	Key          string
	KeyAbbrev    string
	Progress     []ProgressItem
	Percent      int
	ShowReset    bool
	ResetAction  string
	AtSummary    bool
	CopyKeyLabel string
}

// BuildShell returns the frame for the activity in snap.
func BuildShell(def *activity.Definition, snap activity.Snapshot) Shell {
	total := def.TotalSteps()
	shell := Shell{
		ActivityID:   def.ID,
		Title:        def.Title,
		Subtitle:     def.Subtitle,
		Key:          snap.Key,
		KeyAbbrev:    userkey.Abbreviate(snap.Key),
		ResetAction:  activityPath(def.ID, "reset"),
		ShowReset:    snap.State == activity.StateReady,
		AtSummary:    snap.State == activity.StateReady && snap.Step == total,
		CopyKeyLabel: "Copy my key",
	}

	for i, step := range def.Steps {
		n := i + 1
		status := StatusUpcoming
		switch {
		case n < snap.Step:
			status = StatusDone
		case n == snap.Step:
			status = StatusCurrent
		}
		shell.Progress = append(shell.Progress, ProgressItem{Number: n, Title: step.Title, Status: status})
	}
	if total > 0 {
		shell.Percent = snap.Step * 100 / total
	}
	return shell
}

func activityPath(activityID string, parts ...string) string {
	segments := append([]string{"", "activities", url.PathEscape(activityID)}, escapeAll(parts)...)
	return strings.Join(segments, "/")
}

func fieldPath(activityID, field string, parts ...string) string {
	return activityPath(activityID, append([]string{"fields", field}, parts...)...)
}

func escapeAll(parts []string) []string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = url.PathEscape(p)
	}
	return out
}
