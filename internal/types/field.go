// Package types provides the record types persisted for each workshop user.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jonathan/problem-workshop/internal/validation"
)

// FieldKind identifies which shape a FieldValue holds.
type FieldKind string

// Field kinds
const (
	KindText    FieldKind = "text"
	KindChoice  FieldKind = "choice"
	KindMarkers FieldKind = "markers"
	KindList    FieldKind = "list"
)

// TextResponse is a free-text answer with its cached word count and validity.
type TextResponse struct {
	Response     string    `json:"response"`
	WordCount    int       `json:"wordCount"`
	IsValid      bool      `json:"isValid"`
	LastModified time.Time `json:"lastModified"`
}

// NewTextResponse builds a TextResponse whose cached fields agree with text and minWords.
func NewTextResponse(text string, minWords int, now time.Time) TextResponse {
	return TextResponse{
		Response:     text,
		WordCount:    validation.WordCount(text),
		IsValid:      validation.IsValid(text, minWords),
		LastModified: now,
	}
}

// Recompute refreshes WordCount and IsValid from Response.
func (t TextResponse) Recompute(minWords int) TextResponse {
	t.WordCount = validation.WordCount(t.Response)
	t.IsValid = validation.IsValid(t.Response, minWords)
	return t
}

// Selection is a single or multiple choice answer.
type Selection struct {
	Selected     []string  `json:"selected"`
	OtherText    string    `json:"otherText,omitempty"`
	IsValid      bool      `json:"isValid"`
	LastModified time.Time `json:"lastModified"`
}

// Contains reports whether option is selected.
func (s Selection) Contains(option string) bool {
	for _, v := range s.Selected {
		if v == option {
			return true
		}
	}
	return false
}

// Marker is a labelled point placed on a 2D diagram. X and Y are percentages of the
// diagram's width and height.
type Marker struct {
	ID    string  `json:"id"`
	Type  string  `json:"type"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label"`
}

// FieldValue holds one answer. Only the member matching Kind is meaningful.
type FieldValue struct {
	Kind      FieldKind
	Text      TextResponse
	Selection Selection
	Markers   []Marker
	Items     []TextResponse
}

// TextValue wraps a TextResponse.
func TextValue(t TextResponse) FieldValue {
	return FieldValue{Kind: KindText, Text: t}
}

// ChoiceValue wraps a Selection.
func ChoiceValue(s Selection) FieldValue {
	return FieldValue{Kind: KindChoice, Selection: s}
}

// MarkersValue wraps a marker list.
func MarkersValue(markers []Marker) FieldValue {
	return FieldValue{Kind: KindMarkers, Markers: markers}
}

// ListValue wraps a list of free-text items.
func ListValue(items []TextResponse) FieldValue {
	return FieldValue{Kind: KindList, Items: items}
}

// IsEmpty reports whether the value carries no user input.
func (v FieldValue) IsEmpty() bool {
	switch v.Kind {
	case KindText:
		return strings.TrimSpace(v.Text.Response) == ""
	case KindChoice:
		return len(v.Selection.Selected) == 0 && strings.TrimSpace(v.Selection.OtherText) == ""
	case KindMarkers:
		return len(v.Markers) == 0
	case KindList:
		return len(v.Items) == 0
	default:
		return true
	}
}

// Clone returns a deep copy of v.
func (v FieldValue) Clone() FieldValue {
	out := v
	if v.Selection.Selected != nil {
		out.Selection.Selected = append([]string(nil), v.Selection.Selected...)
	}
	if v.Markers != nil {
		out.Markers = append([]Marker(nil), v.Markers...)
	}
	if v.Items != nil {
		out.Items = append([]TextResponse(nil), v.Items...)
	}
	return out
}

// MarshalJSON writes the canonical encoding for the value's kind.
func (v FieldValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindText:
		return json.Marshal(v.Text)
	case KindChoice:
		sel := v.Selection
		if sel.Selected == nil {
			sel.Selected = []string{}
		}
		return json.Marshal(sel)
	case KindMarkers:
		if v.Markers == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Markers)
	case KindList:
		if v.Items == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Items)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts the canonical encodings plus the looser shapes written by
// earlier clients: raw strings, single marker objects, {selectedOption} records and
// lists of them. Values of any other JSON type decode to an empty value.
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	*v = FieldValue{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("failed to decode text field: %w", err)
		}
		v.Kind = KindText
		v.Text = TextResponse{Response: s, WordCount: validation.WordCount(s)}
		return nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("failed to decode field object: %w", err)
		}
		return v.decodeObject(data, obj)
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(data, &elems); err != nil {
			return fmt.Errorf("failed to decode field list: %w", err)
		}
		return v.decodeArray(elems)
	default:
		return nil
	}
}

func (v *FieldValue) decodeObject(data []byte, obj map[string]json.RawMessage) error {
	switch {
	case has(obj, "response"):
		v.Kind = KindText
		if err := json.Unmarshal(data, &v.Text); err != nil {
			return fmt.Errorf("failed to decode text response: %w", err)
		}
	case has(obj, "selected"):
		v.Kind = KindChoice
		if err := json.Unmarshal(data, &v.Selection); err != nil {
			return fmt.Errorf("failed to decode selection: %w", err)
		}
	case has(obj, "selectedOption"):
		sel, err := decodeLegacyChoice(data)
		if err != nil {
			return err
		}
		v.Kind = KindChoice
		v.Selection = sel
	case has(obj, "x") && has(obj, "y"):
		var m Marker
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("failed to decode marker: %w", err)
		}
		v.Kind = KindMarkers
		v.Markers = []Marker{m}
	}
	return nil
}

func (v *FieldValue) decodeArray(elems []json.RawMessage) error {
	if len(elems) == 0 {
		return nil
	}

	first := bytes.TrimSpace(elems[0])
	if len(first) > 0 && first[0] == '"' {
		v.Kind = KindList
		for _, e := range elems {
			var s string
			if err := json.Unmarshal(e, &s); err != nil {
				return fmt.Errorf("failed to decode list item: %w", err)
			}
			v.Items = append(v.Items, TextResponse{Response: s, WordCount: validation.WordCount(s)})
		}
		return nil
	}

	var sample map[string]json.RawMessage
	if err := json.Unmarshal(first, &sample); err != nil {
		return nil
	}

	switch {
	case has(sample, "response"):
		v.Kind = KindList
		for _, e := range elems {
			var item TextResponse
			if err := json.Unmarshal(e, &item); err != nil {
				return fmt.Errorf("failed to decode list item: %w", err)
			}
			v.Items = append(v.Items, item)
		}
	case has(sample, "selectedOption"):
		v.Kind = KindChoice
		for _, e := range elems {
			sel, err := decodeLegacyChoice(e)
			if err != nil {
				return err
			}
			v.Selection.Selected = append(v.Selection.Selected, sel.Selected...)
			if sel.LastModified.After(v.Selection.LastModified) {
				v.Selection.LastModified = sel.LastModified
			}
		}
	case has(sample, "x"):
		v.Kind = KindMarkers
		for _, e := range elems {
			var m Marker
			if err := json.Unmarshal(e, &m); err != nil {
				return fmt.Errorf("failed to decode marker: %w", err)
			}
			v.Markers = append(v.Markers, m)
		}
	}
	return nil
}

// legacyChoice is the single-option record written by earlier clients.
type legacyChoice struct {
	SelectedOption string    `json:"selectedOption"`
	OtherText      string    `json:"otherText,omitempty"`
	IsValid        bool      `json:"isValid"`
	LastModified   time.Time `json:"lastModified"`
}

func decodeLegacyChoice(data []byte) (Selection, error) {
	var lc legacyChoice
	if err := json.Unmarshal(data, &lc); err != nil {
		return Selection{}, fmt.Errorf("failed to decode legacy selection: %w", err)
	}
	sel := Selection{OtherText: lc.OtherText, IsValid: lc.IsValid, LastModified: lc.LastModified}
	if lc.SelectedOption != "" {
		sel.Selected = []string{lc.SelectedOption}
	}
	return sel, nil
}

func has(obj map[string]json.RawMessage, key string) bool {
	_, ok := obj[key]
	return ok
}
