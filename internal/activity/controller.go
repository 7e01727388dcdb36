package activity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/problem-workshop/internal/observability"
	"github.com/jonathan/problem-workshop/internal/types"
	"github.com/jonathan/problem-workshop/internal/userkey"
	"github.com/jonathan/problem-workshop/internal/validation"
)

// DefaultSaveDelay is the quiet period before a change is persisted.
const DefaultSaveDelay = time.Second

// LoadFailedMessage is shown when the initial load of a user's record fails.
const LoadFailedMessage = "Failed to load your progress."

// State is the lifecycle state of a Controller.
type State string

// Controller states
const (
	StateLoading       State = "loading"
	StateNeedsUserCode State = "needs_user_code"
	StateReady         State = "ready"
	StateError         State = "error"
)

// Storage is the persistence contract the controller relies on.
// Load and Save never fail loudly. Lookup reports errors; it backs the initial load
// and the read half of every save.
type Storage interface {
	Load(ctx context.Context, key string) (*types.UserRecord, bool)
	Save(ctx context.Context, key string, record *types.UserRecord) bool
	Lookup(ctx context.Context, key string) (*types.UserRecord, error)
}

// Options configures a Controller. Zero values select defaults.
type Options struct {
	SaveDelay time.Duration
	Logger    *zap.Logger
	Now       func() time.Time
	NewKey    func() string
}

// Snapshot is a copy of a controller's observable state.
type Snapshot struct {
	ActivityID  string
	State       State
	Key         string
	Step        int
	TotalSteps  int
	Answers     map[string]types.FieldValue
	StepValid   bool
	CanContinue bool
	CanGoBack   bool
	StartedAt   *time.Time
	CompletedAt *time.Time
	Error       string
	SavePending bool
}

// Controller drives one user through one activity. It is safe for concurrent use.
type Controller struct {
	def    *Definition
	store  Storage
	logger *zap.Logger
	now    func() time.Time
	newKey func() string
	saver  *Debouncer

	mu           sync.Mutex
	state        State
	key          string
	step         int
	answers      map[string]types.FieldValue
	startedAt    *time.Time
	completedAt  *time.Time
	lastModified time.Time
	errMsg       string
}

// NewController creates a controller in the Loading state. Call Start to load.
func NewController(def *Definition, store Storage, opts Options) *Controller {
	if opts.SaveDelay <= 0 {
		opts.SaveDelay = DefaultSaveDelay
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewKey == nil {
		opts.NewKey = userkey.Generate
	}
	return &Controller{
		def:     def,
		store:   store,
		logger:  opts.Logger.With(zap.String("activity", def.ID)),
		now:     opts.Now,
		newKey:  opts.NewKey,
		saver:   NewDebouncer(opts.SaveDelay),
		state:   StateLoading,
		step:    1,
		answers: make(map[string]types.FieldValue),
	}
}

// Definition returns the activity this controller drives.
func (c *Controller) Definition() *Definition {
	return c.def
}

// Start loads the record for key. An empty or malformed key moves to NeedsUserCode; a failed
// lookup moves to Error; otherwise the controller resumes and becomes Ready.
func (c *Controller) Start(ctx context.Context, key string) {
	key = userkey.Normalize(key)

	c.mu.Lock()
	c.state = StateLoading
	c.key = key
	c.errMsg = ""
	c.mu.Unlock()

	if !userkey.Valid(key) {
		c.mu.Lock()
		c.key = ""
		c.state = StateNeedsUserCode
		c.mu.Unlock()
		return
	}

	record, err := c.store.Lookup(ctx, key)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.logger.Error("failed to load progress", zap.String("key", key), zap.Error(err))
		c.state = StateError
		c.errMsg = LoadFailedMessage
		return
	}
	c.applyLocked(record)
	c.state = StateReady
}

// Retry re-runs Start with the same key after a failed load.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateError {
		c.mu.Unlock()
		return ErrNotInError
	}
	key := c.key
	c.mu.Unlock()

	c.Start(ctx, key)
	return nil
}

// SubmitCode tries to adopt a previously issued user code. The code is accepted when
// a record exists for it and, for activities that require it, holds data for this
// activity. A rejected code leaves the controller waiting for a code.
func (c *Controller) SubmitCode(ctx context.Context, code string) bool {
	c.mu.Lock()
	if c.state != StateNeedsUserCode {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	code = userkey.Normalize(code)
	if !userkey.Valid(code) {
		observability.RecordCodeSubmission("rejected")
		return false
	}

	record, ok := c.store.Load(ctx, code)
	if !ok {
		observability.RecordCodeSubmission("rejected")
		return false
	}
	if c.def.RequireActivityData {
		st, found := record.Activity(c.def.ID)
		if !found || !st.HasData() {
			observability.RecordCodeSubmission("rejected")
			return false
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateNeedsUserCode {
		return false
	}
	c.key = code
	c.applyLocked(record)
	c.state = StateReady
	observability.RecordCodeSubmission("accepted")
	return true
}

// StartFresh adopts a newly generated key and starts at step 1. It returns the
// controller's key, which is unchanged when the controller was not waiting for a code.
func (c *Controller) StartFresh() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateNeedsUserCode {
		return c.key
	}
	c.key = c.newKey()
	c.applyLocked(nil)
	c.state = StateReady
	return c.key
}

// applyLocked replaces the in-memory state with the stored one. c.mu must be held.
func (c *Controller) applyLocked(record *types.UserRecord) {
	c.step = 1
	c.answers = make(map[string]types.FieldValue)
	c.startedAt = nil
	c.completedAt = nil
	c.lastModified = time.Time{}

	st, ok := record.Activity(c.def.ID)
	if !ok {
		return
	}
	c.answers = c.def.NormalizeAnswers(st.StepAnswers)
	c.step = c.def.ResumeStep(st, c.answers)
	c.startedAt = cloneTime(st.StartedAt)
	c.lastModified = st.LastModified
	if c.step == c.def.TotalSteps() {
		c.completedAt = cloneTime(st.CompletedAt)
	}
}

// SetField replaces the value of a field on the current step.
func (c *Controller) SetField(name string, value types.FieldValue) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rule, err := c.editableLocked(name)
	if err != nil {
		return err
	}
	if value.Kind != "" && value.Kind != rule.Kind {
		return &validation.FieldError{Field: name, Message: fmt.Sprintf("expected a %s value", rule.Kind)}
	}
	value.Kind = rule.Kind
	c.putLocked(rule, value)
	return nil
}

// SetText sets a text field and recomputes its word count and validity.
func (c *Controller) SetText(name, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rule, err := c.editableKindLocked(name, types.KindText)
	if err != nil {
		return err
	}
	c.putLocked(rule, types.TextValue(types.NewTextResponse(text, rule.MinWords, c.now())))
	return nil
}

// SetChoice sets the selected options of a choice field.
func (c *Controller) SetChoice(name string, selected []string, otherText string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rule, err := c.editableKindLocked(name, types.KindChoice)
	if err != nil {
		return err
	}

	cleaned := make([]string, 0, len(selected))
	seen := make(map[string]bool, len(selected))
	for _, s := range selected {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		if !rule.HasOption(s) {
			return &validation.FieldError{Field: name, Message: fmt.Sprintf("%q is not an option", s)}
		}
		seen[s] = true
		cleaned = append(cleaned, s)
	}
	if !rule.Multiple && len(cleaned) > 1 {
		return &validation.FieldError{Field: name, Message: "only one option may be selected"}
	}

	c.putLocked(rule, types.ChoiceValue(types.Selection{
		Selected:     cleaned,
		OtherText:    strings.TrimSpace(otherText),
		LastModified: c.now(),
	}))
	return nil
}

// AddMarker places a marker on a markers field. Fields limited to a single marker
// have their marker replaced.
func (c *Controller) AddMarker(name string, in types.MarkerInput) (types.Marker, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rule, err := c.editableKindLocked(name, types.KindMarkers)
	if err != nil {
		return types.Marker{}, err
	}
	if in.Type == "" {
		in.Type = rule.MarkerType
	}
	if err := in.Validate(); err != nil {
		return types.Marker{}, &validation.FieldError{Field: name, Message: err.Error()}
	}
	if rule.MarkerType != "" && in.Type != rule.MarkerType {
		return types.Marker{}, &validation.FieldError{Field: name, Message: fmt.Sprintf("markers must have type %q", rule.MarkerType)}
	}

	current := c.answers[name].Clone().Markers
	switch {
	case rule.MaxItems == 1:
		current = nil
	case rule.MaxItems > 0 && len(current) >= rule.MaxItems:
		return types.Marker{}, &validation.FieldError{Field: name, Message: fmt.Sprintf("at most %d markers allowed", rule.MaxItems)}
	}

	marker := types.NewMarker(in)
	c.putLocked(rule, types.MarkersValue(append(current, marker)))
	return marker, nil
}

// RelabelMarker changes the label of a marker.
func (c *Controller) RelabelMarker(name, id, label string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rule, err := c.editableKindLocked(name, types.KindMarkers)
	if err != nil {
		return err
	}
	markers, ok := types.RelabelMarker(c.answers[name].Markers, id, label)
	if !ok {
		return ErrMarkerNotFound
	}
	c.putLocked(rule, types.MarkersValue(markers))
	return nil
}

// RemoveMarker deletes a marker.
func (c *Controller) RemoveMarker(name, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rule, err := c.editableKindLocked(name, types.KindMarkers)
	if err != nil {
		return err
	}
	markers, ok := types.RemoveMarker(c.answers[name].Markers, id)
	if !ok {
		return ErrMarkerNotFound
	}
	c.putLocked(rule, types.MarkersValue(markers))
	return nil
}

// AddItem appends a submitted item to a list field.
func (c *Controller) AddItem(name, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rule, err := c.editableKindLocked(name, types.KindList)
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return &validation.FieldError{Field: name, Message: "item is empty"}
	}

	items := c.answers[name].Clone().Items
	if rule.MaxItems > 0 && len(items) >= rule.MaxItems {
		return &validation.FieldError{Field: name, Message: fmt.Sprintf("at most %d items allowed", rule.MaxItems)}
	}
	items = append(items, types.NewTextResponse(text, max(rule.ItemMinWords, 1), c.now()))
	c.putLocked(rule, types.ListValue(items))
	return nil
}

// RemoveItem deletes the item at index from a list field.
func (c *Controller) RemoveItem(name string, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rule, err := c.editableKindLocked(name, types.KindList)
	if err != nil {
		return err
	}
	items := c.answers[name].Clone().Items
	if index < 0 || index >= len(items) {
		return &validation.FieldError{Field: name, Message: fmt.Sprintf("no item at index %d", index)}
	}
	items = append(items[:index], items[index+1:]...)
	c.putLocked(rule, types.ListValue(items))
	return nil
}

// Continue moves to the next step when the current one is valid. Entering the final
// step stamps the completion marker.
func (c *Controller) Continue() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateReady {
		return ErrNotReady
	}
	if c.step >= c.def.TotalSteps() {
		return ErrAtLastStep
	}
	if !c.def.StepValid(c.step, c.answers) {
		return ErrStepInvalid
	}

	c.step++
	if c.step == c.def.TotalSteps() {
		now := c.now()
		c.completedAt = &now
	}
	observability.RecordStepTransition(c.def.ID, "forward")
	c.changedLocked()
	return nil
}

// Back moves to the previous step. Leaving the final step clears the completion marker.
func (c *Controller) Back() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateReady {
		return ErrNotReady
	}
	if c.step <= 1 {
		return ErrAtFirstStep
	}

	if c.step == c.def.TotalSteps() {
		c.completedAt = nil
	}
	c.step--
	observability.RecordStepTransition(c.def.ID, "back")
	c.changedLocked()
	return nil
}

// Reset clears every answer and returns to step 1, keeping the key, and persists
// the cleared state immediately.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateReady {
		c.mu.Unlock()
		return ErrNotReady
	}

	c.saver.Cancel()
	c.step = 1
	c.answers = make(map[string]types.FieldValue)
	c.startedAt = nil
	c.completedAt = nil
	c.lastModified = c.now()
	save := c.saver.Reserve(c.saveTask(c.key, c.activityStateLocked()))
	c.mu.Unlock()

	observability.RecordStepTransition(c.def.ID, "reset")
	save(ctx)
	return nil
}

// Flush persists a pending change now.
func (c *Controller) Flush(ctx context.Context) {
	c.saver.Flush(ctx)
}

// Close flushes any pending change and stops scheduling saves.
func (c *Controller) Close(ctx context.Context) {
	c.saver.Close(ctx)
}

// Snapshot returns a copy of the controller's observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	answers := make(map[string]types.FieldValue, len(c.answers))
	for k, v := range c.answers {
		answers[k] = v.Clone()
	}

	snap := Snapshot{
		ActivityID:  c.def.ID,
		State:       c.state,
		Key:         c.key,
		Step:        c.step,
		TotalSteps:  c.def.TotalSteps(),
		Answers:     answers,
		StartedAt:   cloneTime(c.startedAt),
		CompletedAt: cloneTime(c.completedAt),
		Error:       c.errMsg,
		SavePending: c.saver.Pending(),
	}
	if c.state == StateReady {
		snap.StepValid = c.def.StepValid(c.step, c.answers)
		snap.CanContinue = snap.StepValid && c.step < snap.TotalSteps
		snap.CanGoBack = c.step > 1
	}
	return snap
}

// editableLocked returns the rule of a field that may be edited now. c.mu must be held.
func (c *Controller) editableLocked(name string) (*Rule, error) {
	if c.state != StateReady {
		return nil, ErrNotReady
	}
	rule, step, ok := c.def.Rule(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	if step != c.step {
		return nil, fmt.Errorf("%w: %s belongs to step %d", ErrFieldNotOnStep, name, step)
	}
	return rule, nil
}

func (c *Controller) editableKindLocked(name string, kind types.FieldKind) (*Rule, error) {
	rule, err := c.editableLocked(name)
	if err != nil {
		return nil, err
	}
	if rule.Kind != kind {
		return nil, &validation.FieldError{Field: name, Message: fmt.Sprintf("field holds %s values, not %s", rule.Kind, kind)}
	}
	return rule, nil
}

// putLocked stores a normalized value (or removes an empty one) and schedules a save.
func (c *Controller) putLocked(rule *Rule, value types.FieldValue) {
	if nv, ok := rule.Normalize(value); ok {
		c.answers[rule.Name] = nv
	} else {
		delete(c.answers, rule.Name)
	}
	c.changedLocked()
}

// changedLocked stamps the modification time and schedules a save of the current
// state. c.mu must be held and the controller must be Ready.
func (c *Controller) changedLocked() {
	now := c.now()
	c.lastModified = now
	if c.startedAt == nil {
		c.startedAt = &now
	}
	if c.saver.Schedule(c.saveTask(c.key, c.activityStateLocked())) {
		observability.RecordSaveCoalesced()
	}
}

func (c *Controller) activityStateLocked() types.ActivityState {
	answers := make(map[string]types.FieldValue, len(c.answers))
	for k, v := range c.answers {
		answers[k] = v.Clone()
	}
	return types.ActivityState{
		Step:         c.step,
		StepAnswers:  answers,
		StartedAt:    cloneTime(c.startedAt),
		CompletedAt:  cloneTime(c.completedAt),
		LastModified: c.lastModified,
	}
}

// saveTask merges st into the stored record for key, preserving other activities.
func (c *Controller) saveTask(key string, st types.ActivityState) Task {
	return func(ctx context.Context) {
		now := c.now()
		record, err := c.store.Lookup(ctx, key)
		if err != nil {
			// Leave an unreadable record alone; the next change saves the full state again.
			c.logger.Warn("progress not saved, record unreadable", zap.String("key", key), zap.Error(err))
			return
		}
		if record == nil {
			record = types.NewUserRecord(key, now)
		}
		if record.Version == "" {
			record.Version = types.CurrentVersion
		}
		if record.CreatedAt.IsZero() {
			record.CreatedAt = now
		}
		record.Key = key
		record.SetActivity(c.def.ID, st)
		record.LastUpdated = now

		if !c.store.Save(ctx, key, record) {
			c.logger.Warn("progress not saved", zap.String("key", key), zap.Int("step", st.Step))
		}
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
