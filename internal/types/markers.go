package types

import (
	"strings"

	"github.com/google/uuid"
)

// NewMarker creates a marker with a fresh id from in.
func NewMarker(in MarkerInput) Marker {
	return Marker{
		ID:    uuid.NewString(),
		Type:  in.Type,
		X:     in.X,
		Y:     in.Y,
		Label: strings.TrimSpace(in.Label),
	}
}

// RelabelMarker returns a copy of markers with the label of marker id replaced.
// The boolean is false when no marker has that id.
func RelabelMarker(markers []Marker, id, label string) ([]Marker, bool) {
	out := append([]Marker(nil), markers...)
	for i := range out {
		if out[i].ID == id {
			out[i].Label = strings.TrimSpace(label)
			return out, true
		}
	}
	return out, false
}

// RemoveMarker returns a copy of markers without marker id.
func RemoveMarker(markers []Marker, id string) ([]Marker, bool) {
	out := make([]Marker, 0, len(markers))
	found := false
	for _, m := range markers {
		if m.ID == id {
			found = true
			continue
		}
		out = append(out, m)
	}
	return out, found
}

// CountMarkers returns how many markers have the given type. An empty type counts all.
func CountMarkers(markers []Marker, markerType string) int {
	if markerType == "" {
		return len(markers)
	}
	n := 0
	for _, m := range markers {
		if m.Type == markerType {
			n++
		}
	}
	return n
}
