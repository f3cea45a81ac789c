package dialog

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// SlotValue is one slot's current value and provenance (spec §3 Dialogue
// State: "a map from slot name to {value, confidence, source, turn_set}").
type SlotValue struct {
	Value      string
	Confidence float64
	Source     string // "regex" | "keyword" | "enum" | "correction"
	TurnSet    []int
	Confirmed  bool
}

// SlotDef describes how to extract and gate one slot, per spec §4.8.
type SlotDef struct {
	Name          string
	Pattern       *regexp.Regexp // nil if extraction is keyword/enum-driven
	Aliases       map[string]string // enumeration value -> canonical value
	RequireConfirm bool
	ConfirmThreshold float64 // default 0.1 margin for overwrites
}

// GoalDef is a set of required slots plus a completion action. OptionalSlots
// count toward CompletionForGoal's progress estimate but never gate
// CheckGoalCompletion, which only looks at RequiredSlots.
type GoalDef struct {
	ID             string
	RequiredSlots  []string
	OptionalSlots  []string
	CompletionFunc func(state map[string]SlotValue)
}

// State is the per-session dialogue state: extracted slots, pending
// confirmations, current goal and its confirmation/intent tracking.
type State struct {
	mu             sync.Mutex
	slots          map[string]SlotValue
	pending        map[string]bool
	currentGoal    string
	goalConfirmed  bool
	goalSetTurn    int
	completedGoals map[string]bool

	primaryIntent     string
	intentConfidence  float64
	secondaryIntents  []string
}

// NewState builds an empty dialogue state.
func NewState() *State {
	return &State{
		slots:          make(map[string]SlotValue),
		pending:        make(map[string]bool),
		completedGoals: make(map[string]bool),
	}
}

// Tracker extracts slots from utterances using configured definitions and
// writes them through ApplyChange, which enforces the overwrite/confirm
// rules of spec §4.8.
type Tracker struct {
	slotDefs map[string]SlotDef
	goals    map[string]GoalDef
}

// NewTracker builds a Tracker over the given slot and goal definitions.
func NewTracker(slotDefs []SlotDef, goals []GoalDef) *Tracker {
	t := &Tracker{slotDefs: make(map[string]SlotDef), goals: make(map[string]GoalDef)}
	for _, d := range slotDefs {
		t.slotDefs[d.Name] = d
	}
	for _, g := range goals {
		t.goals[g.ID] = g
	}
	return t
}

// Extract scans utterance against every configured slot pattern/alias set
// and returns the slots it matched, with a turn number attached. A turn
// where every slot regex fails to match produces no extractions
// (spec §8 boundary).
func (t *Tracker) Extract(utterance string, turn int) map[string]SlotValue {
	out := make(map[string]SlotValue)
	lower := strings.ToLower(utterance)
	for name, def := range t.slotDefs {
		if def.Pattern != nil {
			if m := def.Pattern.FindString(utterance); m != "" {
				out[name] = SlotValue{Value: strings.TrimSpace(m), Confidence: 0.85, Source: "regex", TurnSet: []int{turn}}
				continue
			}
		}
		for alias, canonical := range def.Aliases {
			if strings.Contains(lower, strings.ToLower(alias)) {
				out[name] = SlotValue{Value: canonical, Confidence: 0.8, Source: "enum", TurnSet: []int{turn}}
				break
			}
		}
	}
	return out
}

// ApplyChange is the single write path for slot values (spec §4.8):
//   - A slot marked confirm=true enters the pending set on first write.
//   - Overwrites require confidence to exceed the existing by at least the
//     slot's ConfirmThreshold (0.1 when unset), or an explicit correction
//     (isCorrection=true).
//   - Applying the same value twice does not duplicate it or flip its
//     confirmation state (spec §8 round-trip property).
func (t *Tracker) ApplyChange(s *State, name string, v SlotValue, isCorrection bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, hasDef := t.slotDefs[name]
	margin := 0.1
	if hasDef && def.ConfirmThreshold > 0 {
		margin = def.ConfirmThreshold
	}

	existing, exists := s.slots[name]
	if exists {
		if existing.Value == v.Value {
			// idempotent re-application: merge turn sets, change nothing else.
			existing.TurnSet = mergeTurns(existing.TurnSet, v.TurnSet)
			s.slots[name] = existing
			return false
		}
		if !isCorrection && v.Confidence < existing.Confidence+margin {
			return false // overwrite rejected: insufficient confidence margin
		}
	}

	s.slots[name] = v
	if hasDef && def.RequireConfirm && !exists {
		s.pending[name] = true
	}
	return true
}

// Confirm marks a pending slot as confirmed, e.g. on an explicit user
// affirmation turn (spec §4.8, scenario S3).
func (s *State) Confirm(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.slots[name]; ok {
		v.Confirmed = true
		s.slots[name] = v
	}
	delete(s.pending, name)
}

// Get returns a slot's current value.
func (s *State) Get(name string) (SlotValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.slots[name]
	return v, ok
}

// Pending returns the set of slot names awaiting confirmation.
func (s *State) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.pending))
	for k := range s.pending {
		out = append(out, k)
	}
	return out
}

// PendingConfirmationPrompt renders the slots awaiting confirmation into a
// single user-facing prompt, sorted by slot name for a deterministic
// rendering, e.g. "Please confirm: loan amount: 500000, pan number: ABCDE1234F".
// Returns "" if nothing is pending.
func (s *State) PendingConfirmationPrompt() string {
	s.mu.Lock()
	names := make([]string, 0, len(s.pending))
	for k := range s.pending {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		v, ok := s.slots[name]
		if !ok {
			continue
		}
		display := strings.ReplaceAll(name, "_", " ")
		parts = append(parts, fmt.Sprintf("%s: %s", display, v.Value))
	}
	s.mu.Unlock()
	if len(parts) == 0 {
		return ""
	}
	return "Please confirm: " + strings.Join(parts, ", ")
}

// SetIntent records the classified intent for the current turn: the primary
// intent with its confidence, plus any secondary candidates the classifier
// surfaced alongside it.
func (s *State) SetIntent(intent string, confidence float64, secondary []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.primaryIntent = intent
	s.intentConfidence = confidence
	s.secondaryIntents = append([]string{}, secondary...)
}

// Intent returns the current primary intent and its confidence.
func (s *State) Intent() (string, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.primaryIntent, s.intentConfidence
}

// SecondaryIntents returns the intent candidates that lost to the primary.
func (s *State) SecondaryIntents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.secondaryIntents))
	copy(out, s.secondaryIntents)
	return out
}

// SetGoal records the conversation goal the dialog stage has committed to,
// and the turn it was set on. Setting a new goal clears any prior
// confirmation.
func (s *State) SetGoal(goalID string, turn int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentGoal == goalID {
		return
	}
	s.currentGoal = goalID
	s.goalSetTurn = turn
	s.goalConfirmed = false
}

// CurrentGoal returns the goal id currently in play, or "" if none was set.
func (s *State) CurrentGoal() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentGoal
}

// GoalSetTurn returns the turn number CurrentGoal was last set on.
func (s *State) GoalSetTurn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.goalSetTurn
}

// ConfirmGoal marks the current goal as user-confirmed, e.g. after an
// explicit affirmation turn once every required slot is filled.
func (s *State) ConfirmGoal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goalConfirmed = true
}

// IsGoalConfirmed reports whether ConfirmGoal has fired for the current goal.
func (s *State) IsGoalConfirmed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.goalConfirmed
}

// CheckGoalCompletion reports whether every required slot of goal holds a
// confirmed value, and — if so and it has not already fired — invokes the
// goal's completion action exactly once (spec §8 invariant 6).
func (t *Tracker) CheckGoalCompletion(s *State, goalID string) bool {
	goal, ok := t.goals[goalID]
	if !ok {
		return false
	}
	s.mu.Lock()
	if s.completedGoals[goalID] {
		s.mu.Unlock()
		return false // already fired once
	}
	for _, slotName := range goal.RequiredSlots {
		v, ok := s.slots[slotName]
		if !ok || !v.Confirmed {
			s.mu.Unlock()
			return false
		}
	}
	s.completedGoals[goalID] = true
	snapshot := make(map[string]SlotValue, len(s.slots))
	for k, v := range s.slots {
		snapshot[k] = v
	}
	s.mu.Unlock()

	if goal.CompletionFunc != nil {
		goal.CompletionFunc(snapshot)
	}
	return true
}

// CompletionForGoal estimates progress toward a goal as a weighted fraction
// of its required and optional slots that hold any value (confirmed or not).
// Required slots carry 0.7 of the weight and optional slots 0.3; a goal with
// only one kind of slot is scored on that kind alone, and a goal with
// neither is already complete.
func (t *Tracker) CompletionForGoal(s *State, goalID string) float64 {
	goal, ok := t.goals[goalID]
	if !ok {
		return 0
	}
	if len(goal.RequiredSlots) == 0 && len(goal.OptionalSlots) == 0 {
		return 1
	}

	s.mu.Lock()
	requiredFilled := 0
	for _, name := range goal.RequiredSlots {
		if _, ok := s.slots[name]; ok {
			requiredFilled++
		}
	}
	optionalFilled := 0
	for _, name := range goal.OptionalSlots {
		if _, ok := s.slots[name]; ok {
			optionalFilled++
		}
	}
	s.mu.Unlock()

	switch {
	case len(goal.RequiredSlots) == 0:
		return float64(optionalFilled) / float64(len(goal.OptionalSlots))
	case len(goal.OptionalSlots) == 0:
		return float64(requiredFilled) / float64(len(goal.RequiredSlots))
	default:
		return float64(requiredFilled)/float64(len(goal.RequiredSlots))*0.7 +
			float64(optionalFilled)/float64(len(goal.OptionalSlots))*0.3
	}
}

func mergeTurns(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	out := make([]int, 0, len(a)+len(b))
	for _, t := range append(append([]int{}, a...), b...) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
