package dialog

import (
	"regexp"
	"testing"
)

func TestNewGraphRejectsEmptyStageSet(t *testing.T) {
	_, err := NewGraph(nil, "Opening")
	if err == nil {
		t.Fatal("expected an error for an empty stage graph")
	}
}

func TestGraphEvaluatesTransitionsInPriorityOrder(t *testing.T) {
	g, err := NewGraph([]Stage{
		{Name: "Opening", Transitions: []Transition{
			{To: "Closing", Priority: 1, When: func(s Signals) bool { return true }},
			{To: "Discovery", Priority: 10, When: func(s Signals) bool { return true }},
		}},
		{Name: "Discovery"},
		{Name: "Closing"},
	}, "Opening")
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	transitioned, next := g.Evaluate(Signals{})
	if !transitioned || next != "Discovery" {
		t.Fatalf("expected the higher-priority transition to win, got %q", next)
	}
}

func TestApplyChangeIsIdempotent(t *testing.T) {
	tr := NewTracker(nil, nil)
	s := NewState()

	changed1 := tr.ApplyChange(s, "loan_amount", SlotValue{Value: "500000", Confidence: 0.9, TurnSet: []int{1}}, false)
	changed2 := tr.ApplyChange(s, "loan_amount", SlotValue{Value: "500000", Confidence: 0.9, TurnSet: []int{2}}, false)

	if !changed1 {
		t.Fatal("expected the first write to apply")
	}
	if changed2 {
		t.Fatal("expected the identical second write to be a no-op")
	}
	v, _ := s.Get("loan_amount")
	if v.Confirmed {
		t.Fatal("applying the same value twice must not flip confirmation state")
	}
}

func TestApplyChangeRejectsLowConfidenceOverwrite(t *testing.T) {
	tr := NewTracker(nil, nil)
	s := NewState()
	tr.ApplyChange(s, "customer_name", SlotValue{Value: "Rahul", Confidence: 0.9}, false)
	changed := tr.ApplyChange(s, "customer_name", SlotValue{Value: "Rahool", Confidence: 0.91}, false)
	if changed {
		t.Fatal("expected overwrite to be rejected: confidence margin < 0.1")
	}
	v, _ := s.Get("customer_name")
	if v.Value != "Rahul" {
		t.Fatalf("expected original value retained, got %q", v.Value)
	}
}

func TestApplyChangeAllowsExplicitCorrection(t *testing.T) {
	tr := NewTracker(nil, nil)
	s := NewState()
	tr.ApplyChange(s, "customer_name", SlotValue{Value: "Rahul", Confidence: 0.9}, false)
	changed := tr.ApplyChange(s, "customer_name", SlotValue{Value: "Raj", Confidence: 0.5}, true)
	if !changed {
		t.Fatal("expected an explicit correction to override regardless of confidence margin")
	}
}

func TestRequireConfirmEntersPendingOnFirstWrite(t *testing.T) {
	tr := NewTracker([]SlotDef{{Name: "loan_amount", RequireConfirm: true}}, nil)
	s := NewState()
	tr.ApplyChange(s, "loan_amount", SlotValue{Value: "500000", Confidence: 0.9}, false)

	pending := s.Pending()
	if len(pending) != 1 || pending[0] != "loan_amount" {
		t.Fatalf("expected loan_amount pending confirmation, got %v", pending)
	}

	s.Confirm("loan_amount")
	v, _ := s.Get("loan_amount")
	if !v.Confirmed {
		t.Fatal("expected slot confirmed after explicit affirmation")
	}
	if len(s.Pending()) != 0 {
		t.Fatal("expected pending set cleared after confirmation")
	}
}

func TestGoalCompletionFiresExactlyOnce(t *testing.T) {
	var fired int
	tr := NewTracker(nil, []GoalDef{{
		ID:            "check_eligibility",
		RequiredSlots: []string{"loan_amount"},
		CompletionFunc: func(map[string]SlotValue) { fired++ },
	}})
	s := NewState()
	tr.ApplyChange(s, "loan_amount", SlotValue{Value: "500000", Confidence: 0.9}, false)
	s.Confirm("loan_amount")

	if !tr.CheckGoalCompletion(s, "check_eligibility") {
		t.Fatal("expected goal to complete")
	}
	if tr.CheckGoalCompletion(s, "check_eligibility") {
		t.Fatal("expected goal completion to fire only once")
	}
	if fired != 1 {
		t.Fatalf("expected completion action to fire exactly once, fired %d times", fired)
	}
}

func TestExtractProducesNoWritesWhenNothingMatches(t *testing.T) {
	tr := NewTracker([]SlotDef{{Name: "loan_amount", Pattern: regexp.MustCompile(`\d+`)}}, nil)
	extracted := tr.Extract("hello there how are you", 1)
	if len(extracted) != 0 {
		t.Fatalf("expected no extractions when no slot pattern matches, got %v", extracted)
	}
}

func TestSetGoalRecordsTurnAndResetsConfirmation(t *testing.T) {
	s := NewState()
	s.SetGoal("check_eligibility", 3)
	if s.CurrentGoal() != "check_eligibility" || s.GoalSetTurn() != 3 {
		t.Fatalf("expected goal recorded with its turn, got %q at turn %d", s.CurrentGoal(), s.GoalSetTurn())
	}
	s.ConfirmGoal()
	if !s.IsGoalConfirmed() {
		t.Fatal("expected goal confirmed")
	}

	s.SetGoal("top_up_loan", 5)
	if s.IsGoalConfirmed() {
		t.Fatal("expected confirmation cleared when the goal changes")
	}
	if s.GoalSetTurn() != 5 {
		t.Fatalf("expected goal-set turn updated, got %d", s.GoalSetTurn())
	}
}

func TestSetIntentRecordsPrimaryAndSecondary(t *testing.T) {
	s := NewState()
	s.SetIntent("check_loan_status", 0.92, []string{"top_up_loan", "close_account"})

	intent, confidence := s.Intent()
	if intent != "check_loan_status" || confidence != 0.92 {
		t.Fatalf("expected recorded intent, got %q at %v", intent, confidence)
	}
	secondary := s.SecondaryIntents()
	if len(secondary) != 2 || secondary[0] != "top_up_loan" || secondary[1] != "close_account" {
		t.Fatalf("expected secondary intents preserved, got %v", secondary)
	}
}

func TestPendingConfirmationPromptFormatsSlotsInOrder(t *testing.T) {
	tr := NewTracker([]SlotDef{
		{Name: "loan_amount", RequireConfirm: true},
		{Name: "pan_number", RequireConfirm: true},
	}, nil)
	s := NewState()
	tr.ApplyChange(s, "pan_number", SlotValue{Value: "ABCDE1234F", Confidence: 0.9}, false)
	tr.ApplyChange(s, "loan_amount", SlotValue{Value: "500000", Confidence: 0.9}, false)

	got := s.PendingConfirmationPrompt()
	want := "Please confirm: loan amount: 500000, pan number: ABCDE1234F"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	s.Confirm("loan_amount")
	s.Confirm("pan_number")
	if got := s.PendingConfirmationPrompt(); got != "" {
		t.Fatalf("expected empty prompt once everything is confirmed, got %q", got)
	}
}

func TestCompletionForGoalWeighsRequiredAndOptionalSlots(t *testing.T) {
	tr := NewTracker(nil, []GoalDef{{
		ID:            "check_eligibility",
		RequiredSlots: []string{"loan_amount", "pan_number"},
		OptionalSlots: []string{"employer_name"},
	}})
	s := NewState()

	if got := tr.CompletionForGoal(s, "check_eligibility"); got != 0 {
		t.Fatalf("expected 0 completion with no slots filled, got %v", got)
	}

	tr.ApplyChange(s, "loan_amount", SlotValue{Value: "500000", Confidence: 0.9}, false)
	if got := tr.CompletionForGoal(s, "check_eligibility"); got != 0.35 {
		t.Fatalf("expected 1/2 required * 0.7 = 0.35, got %v", got)
	}

	tr.ApplyChange(s, "pan_number", SlotValue{Value: "ABCDE1234F", Confidence: 0.9}, false)
	tr.ApplyChange(s, "employer_name", SlotValue{Value: "Acme Corp", Confidence: 0.9}, false)
	if got := tr.CompletionForGoal(s, "check_eligibility"); got != 1.0 {
		t.Fatalf("expected full completion once all required and optional slots are filled, got %v", got)
	}
}

func TestCompletionForGoalWithNoSlotsIsComplete(t *testing.T) {
	tr := NewTracker(nil, []GoalDef{{ID: "noop"}})
	if got := tr.CompletionForGoal(NewState(), "noop"); got != 1 {
		t.Fatalf("expected a goal with no slots to be trivially complete, got %v", got)
	}
}
