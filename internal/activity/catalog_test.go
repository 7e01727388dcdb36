package activity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/problem-workshop/internal/types"
)

func mustCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := DefaultCatalog()
	require.NoError(t, err)
	return c
}

func mustDefinition(t *testing.T, id string) *Definition {
	t.Helper()
	def, ok := mustCatalog(t).Get(id)
	require.True(t, ok, "activity %s", id)
	return def
}

func TestDefaultCatalog(t *testing.T) {
	c := mustCatalog(t)

	require.Len(t, c.Activities, 3)
	assert.Equal(t, "problem-origin-story", c.First().ID)

	tests := []struct {
		id           string
		steps        int
		requiresData bool
	}{
		{id: "problem-origin-story", steps: 3, requiresData: true},
		{id: "market-landscape", steps: 4},
		{id: "problem-validation", steps: 3},
	}
	for _, tt := range tests {
		def, ok := c.Get(tt.id)
		require.True(t, ok, tt.id)
		assert.Equal(t, tt.steps, def.TotalSteps(), tt.id)
		assert.Equal(t, tt.requiresData, def.RequireActivityData, tt.id)
		last, _ := def.Step(def.TotalSteps())
		assert.True(t, last.Summary, tt.id)
		assert.Empty(t, last.Fields, tt.id)
	}

	_, ok := c.Get("nope")
	assert.False(t, ok)
}

func TestDefaultCatalog_Rules(t *testing.T) {
	def := mustDefinition(t, "problem-origin-story")

	rule, step, ok := def.Rule("whoExperienced")
	require.True(t, ok)
	assert.Equal(t, 1, step)
	assert.Equal(t, types.KindText, rule.Kind)
	assert.Equal(t, 5, rule.MinWords)

	market := mustDefinition(t, "market-landscape")
	rule, step, ok = market.Rule("strategicMarker")
	require.True(t, ok)
	assert.Equal(t, 2, step)
	assert.Equal(t, 1, rule.MaxItems)
	assert.Equal(t, "strategic", rule.MarkerType)

	validationDef := mustDefinition(t, "problem-validation")
	rule, _, ok = validationDef.Rule("researchMethods")
	require.True(t, ok)
	assert.True(t, rule.Multiple)
	assert.Len(t, rule.Options, 9)
}

func TestParseCatalog_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "malformed", yaml: "activities: [", wantErr: "failed to parse"},
		{name: "empty", yaml: "activities: []", wantErr: "empty"},
		{name: "missing id", yaml: "activities:\n  - title: X\n    steps: [{title: a}]", wantErr: "no id"},
		{name: "duplicate id", yaml: "activities:\n  - id: a\n    steps: [{title: a}]\n  - id: a\n    steps: [{title: a}]", wantErr: "duplicate"},
		{name: "no steps", yaml: "activities:\n  - id: a", wantErr: "no steps"},
		{name: "unknown kind", yaml: "activities:\n  - id: a\n    steps:\n      - fields: [{name: f, kind: slider}]", wantErr: "unknown kind"},
		{name: "choice without options", yaml: "activities:\n  - id: a\n    steps:\n      - fields: [{name: f, kind: choice}]", wantErr: "no options"},
		{name: "duplicate field", yaml: "activities:\n  - id: a\n    steps:\n      - fields: [{name: f, kind: text}]\n      - fields: [{name: f, kind: text}]", wantErr: "twice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
