package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/formpipe/formpipe/internal/genai"
	"github.com/formpipe/formpipe/internal/models"
	"github.com/formpipe/formpipe/internal/store"
)

// fakeProposer returns canned results and counts calls, so tests can assert
// whether the heuristic pre-pass skipped the proposer.
type fakeProposer struct {
	decision models.Decision
	err      error
	raw      string
	rawErr   error
	calls    int
}

func (f *fakeProposer) ProposeDecision(ctx context.Context, prompt string) (models.Decision, error) {
	f.calls++
	return f.decision, f.err
}

func (f *fakeProposer) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.raw, f.rawErr
}

func (f *fakeProposer) Ping(ctx context.Context) error { return nil }

func newTestEngine(proposer genai.ClientInterface) *Engine {
	return NewEngine(store.NewInMemoryStore(), proposer)
}

func nameAndColorForm() []models.FieldDefinition {
	return []models.FieldDefinition{
		{ID: "name", FieldName: "Name", FieldType: models.FieldTypeSingleLineText, IsRequired: true},
		{ID: "color", FieldName: "Favorite Color", FieldType: models.FieldTypeDropdown, IsRequired: true, DropDownOptions: []string{"Red", "Blue", "Green"}},
	}
}

func TestStartSessionSingleRequired(t *testing.T) {
	engine := newTestEngine(&fakeProposer{})
	form := []models.FieldDefinition{
		{ID: "color", FieldName: "Favorite Color", FieldType: models.FieldTypeDropdown, IsRequired: true, DropDownOptions: []string{"Red", "Blue"}},
	}
	start, err := engine.StartSession(context.Background(), form)
	if err != nil {
		t.Fatalf("StartSession() error: %v", err)
	}
	if start.SessionID == "" {
		t.Error("StartSession() returned empty session id")
	}
	if !strings.Contains(start.Message, "I just need one piece of information") ||
		!strings.Contains(start.Message, "favorite color") {
		t.Errorf("single-required opening message = %q", start.Message)
	}
}

func TestStartSessionMultipleRequired(t *testing.T) {
	engine := newTestEngine(&fakeProposer{})
	start, err := engine.StartSession(context.Background(), nameAndColorForm())
	if err != nil {
		t.Fatalf("StartSession() error: %v", err)
	}
	if !strings.Contains(start.Message, "2 required fields") ||
		!strings.Contains(start.Message, "name") {
		t.Errorf("multi-required opening message = %q", start.Message)
	}
}

func TestStartSessionInvalidForm(t *testing.T) {
	engine := newTestEngine(&fakeProposer{})
	if _, err := engine.StartSession(context.Background(), nil); !errors.Is(err, models.ErrEmptyDefinition) {
		t.Errorf("StartSession(nil) error = %v, want ErrEmptyDefinition", err)
	}
}

func TestStepPrePassSkipsProposer(t *testing.T) {
	proposer := &fakeProposer{}
	engine := newTestEngine(proposer)
	start, err := engine.StartSession(context.Background(), nameAndColorForm())
	if err != nil {
		t.Fatalf("StartSession() error: %v", err)
	}

	resp, err := engine.Step(context.Background(), start.SessionID, "my name is Asha", "")
	if err != nil {
		t.Fatalf("Step() error: %v", err)
	}
	if proposer.calls != 0 {
		t.Errorf("proposer called %d times, want 0 for a clear answer", proposer.calls)
	}
	if resp.Type != models.ResponseFormUpdate {
		t.Errorf("response type = %q, want FORM_UPDATE", resp.Type)
	}
	// The filler phrase is stripped before storage.
	if resp.Form[0].FieldValue == nil || *resp.Form[0].FieldValue != "Asha" {
		t.Errorf("stored name = %+v, want Asha", resp.Form[0])
	}
	// Both required fields exist, so the next question targets the dropdown.
	if !strings.Contains(resp.UI.Text, "favorite color") {
		t.Errorf("next question text = %q", resp.UI.Text)
	}
	if resp.UI.Type != "dropdown" || len(resp.UI.Options) != 3 {
		t.Errorf("next question widget = %q options %v", resp.UI.Type, resp.UI.Options)
	}
}

func TestStepDropdownCompletesRequiredPhase(t *testing.T) {
	proposer := &fakeProposer{decision: models.Message{Text: "Anything else?"}}
	engine := newTestEngine(proposer)
	form := []models.FieldDefinition{
		{ID: "color", FieldName: "Favorite Color", FieldType: models.FieldTypeDropdown, IsRequired: true, DropDownOptions: []string{"Red", "Blue"}},
	}
	start, err := engine.StartSession(context.Background(), form)
	if err != nil {
		t.Fatalf("StartSession() error: %v", err)
	}

	resp, err := engine.Step(context.Background(), start.SessionID, "red", "")
	if err != nil {
		t.Fatalf("Step() error: %v", err)
	}
	if proposer.calls != 0 {
		t.Errorf("proposer called %d times for an exact option match", proposer.calls)
	}
	if resp.Type != models.ResponseFormUpdate {
		t.Errorf("response type = %q, want FORM_UPDATE", resp.Type)
	}
	if resp.Form[0].SelectedDropdownOption == nil || *resp.Form[0].SelectedDropdownOption != "Red" {
		t.Errorf("dropdown value = %+v, want canonical Red", resp.Form[0])
	}
	if !strings.Contains(resp.UI.Text, "All required fields are now complete") {
		t.Errorf("completion message = %q", resp.UI.Text)
	}

	// "submit" while required-complete finalizes the session.
	resp, err = engine.Step(context.Background(), start.SessionID, "submit", "")
	if err != nil {
		t.Fatalf("Step(submit) error: %v", err)
	}
	if resp.Type != models.ResponseComplete {
		t.Errorf("response type = %q, want COMPLETE", resp.Type)
	}
	if len(resp.Form) != 1 || resp.Form[0].SelectedDropdownOption == nil {
		t.Errorf("final form = %+v", resp.Form)
	}
}

func TestStepPostPassOverridesProposer(t *testing.T) {
	// The proposer mistakes a terse answer for chatter; the strict post-pass
	// reclaims it as the value of the last asked field.
	proposer := &fakeProposer{decision: models.Message{Text: "Could you clarify?"}}
	engine := newTestEngine(proposer)
	form := []models.FieldDefinition{
		{ID: "toppings", FieldName: "Toppings", FieldType: models.FieldTypeCheckbox, IsRequired: true, CheckBoxOptions: []string{"Cheese", "Olives"}},
	}
	start, err := engine.StartSession(context.Background(), form)
	if err != nil {
		t.Fatalf("StartSession() error: %v", err)
	}

	// Four characters, one token: below the lenient multi-token bar, above
	// the strict length bar.
	resp, err := engine.Step(context.Background(), start.SessionID, "abcd", "")
	if err != nil {
		t.Fatalf("Step() error: %v", err)
	}
	if proposer.calls != 1 {
		t.Errorf("proposer called %d times, want 1", proposer.calls)
	}
	if resp.Type != models.ResponseFormUpdate {
		t.Errorf("response type = %q, want FORM_UPDATE after override", resp.Type)
	}
	if got := resp.Form[0].SelectedCheckboxOptions; len(got) != 1 || got[0] != "abcd" {
		t.Errorf("checkbox selections = %v, want [abcd]", got)
	}
}

func TestStepProposerErrorLeavesStateUntouched(t *testing.T) {
	proposer := &fakeProposer{err: errors.New("rate limited")}
	engine := newTestEngine(proposer)
	start, err := engine.StartSession(context.Background(), nameAndColorForm())
	if err != nil {
		t.Fatalf("StartSession() error: %v", err)
	}

	// A greeting fails the pre-pass, so the failing proposer is consulted.
	resp, err := engine.Step(context.Background(), start.SessionID, "hi", "")
	if err != nil {
		t.Fatalf("Step() error: %v", err)
	}
	if resp.Type != models.ResponseChat || resp.UI.Text != msgProposerFailure {
		t.Errorf("response = %q %q, want apology chat", resp.Type, resp.UI.Text)
	}
	if len(resp.Form) != 0 {
		t.Errorf("form mutated on proposer failure: %+v", resp.Form)
	}
}

func TestStepUnknownActionAsksForClarification(t *testing.T) {
	proposer := &fakeProposer{err: genai.ErrUnknownAction}
	engine := newTestEngine(proposer)
	start, err := engine.StartSession(context.Background(), nameAndColorForm())
	if err != nil {
		t.Fatalf("StartSession() error: %v", err)
	}
	resp, err := engine.Step(context.Background(), start.SessionID, "hi", "")
	if err != nil {
		t.Fatalf("Step() error: %v", err)
	}
	if resp.Type != models.ResponseChat || resp.UI.Text != msgUnclearAction {
		t.Errorf("response = %q %q, want clarification chat", resp.Type, resp.UI.Text)
	}
}

func TestStepUnknownFieldRecovers(t *testing.T) {
	proposer := &fakeProposer{decision: models.SetField{FieldID: "nope", RawValue: "x"}}
	engine := newTestEngine(proposer)
	start, err := engine.StartSession(context.Background(), nameAndColorForm())
	if err != nil {
		t.Fatalf("StartSession() error: %v", err)
	}
	resp, err := engine.Step(context.Background(), start.SessionID, "hi", "")
	if err != nil {
		t.Fatalf("Step() error: %v", err)
	}
	if resp.Type != models.ResponseChat || resp.UI.Text != msgUnknownField {
		t.Errorf("response = %q %q, want unknown-field chat", resp.Type, resp.UI.Text)
	}
}

func TestStepAskFieldSetsLastAsked(t *testing.T) {
	proposer := &fakeProposer{decision: models.AskField{FieldID: "color", Question: "Which color do you like most?"}}
	st := store.NewInMemoryStore()
	engine := NewEngine(st, proposer)
	start, err := engine.StartSession(context.Background(), nameAndColorForm())
	if err != nil {
		t.Fatalf("StartSession() error: %v", err)
	}

	resp, err := engine.Step(context.Background(), start.SessionID, "hi", "")
	if err != nil {
		t.Fatalf("Step() error: %v", err)
	}
	if resp.Type != models.ResponseAsk {
		t.Errorf("response type = %q, want ASK", resp.Type)
	}
	if resp.UI.Text != "Which color do you like most?" || resp.UI.Type != "dropdown" {
		t.Errorf("question = %q widget %q", resp.UI.Text, resp.UI.Type)
	}

	sess, err := st.GetSession(start.SessionID)
	if err != nil {
		t.Fatalf("GetSession() error: %v", err)
	}
	if sess.LastAskedFieldID != "color" {
		t.Errorf("last asked field = %q, want color", sess.LastAskedFieldID)
	}
}

func TestStepOptionalContinueIsIdempotent(t *testing.T) {
	proposer := &fakeProposer{decision: models.AskOptionalContinue{}}
	st := store.NewInMemoryStore()
	engine := NewEngine(st, proposer)
	start, err := engine.StartSession(context.Background(), nameAndColorForm())
	if err != nil {
		t.Fatalf("StartSession() error: %v", err)
	}
	sess, _ := st.GetSession(start.SessionID)
	sess.State["name"] = models.TextValue("Asha")
	sess.State["color"] = models.TextValue("Red")
	sess.Phase = models.PhaseOptionalPhase

	resp, err := engine.Step(context.Background(), start.SessionID, "hmm what now", "")
	if err != nil {
		t.Fatalf("Step() error: %v", err)
	}
	if resp.Type != models.ResponseChat || !strings.Contains(resp.UI.Text, "optional fields") {
		t.Errorf("response = %q %q", resp.Type, resp.UI.Text)
	}
	if sess.Phase != models.PhaseOptionalPhase {
		t.Errorf("phase regressed to %q", sess.Phase)
	}
}

func TestStepContinueKeywordEntersOptionalPhase(t *testing.T) {
	proposer := &fakeProposer{decision: models.Message{Text: "Sure, which optional field first?"}}
	st := store.NewInMemoryStore()
	engine := NewEngine(st, proposer)
	form := append(nameAndColorForm(), models.FieldDefinition{ID: "notes", FieldName: "Notes", FieldType: models.FieldTypeMultiLineText})
	start, err := engine.StartSession(context.Background(), form)
	if err != nil {
		t.Fatalf("StartSession() error: %v", err)
	}
	sess, _ := st.GetSession(start.SessionID)
	sess.State["name"] = models.TextValue("Asha")
	sess.State["color"] = models.TextValue("Red")
	sess.Phase = models.PhaseRequiredComplete
	sess.LastAskedFieldID = ""

	resp, err := engine.Step(context.Background(), start.SessionID, "continue", "")
	if err != nil {
		t.Fatalf("Step() error: %v", err)
	}
	if resp.Type != models.ResponseChat {
		t.Errorf("response type = %q, want CHAT", resp.Type)
	}
	if sess.Phase != models.PhaseOptionalPhase {
		t.Errorf("phase = %q, want optional-phase", sess.Phase)
	}
}

func TestStepFinalizeRejectsStructuralViolation(t *testing.T) {
	proposer := &fakeProposer{decision: models.ConfirmForm{}}
	st := store.NewInMemoryStore()
	engine := NewEngine(st, proposer)
	form := []models.FieldDefinition{
		{ID: "when", FieldName: "Start Date", FieldType: models.FieldTypeDate, IsRequired: true},
	}
	start, err := engine.StartSession(context.Background(), form)
	if err != nil {
		t.Fatalf("StartSession() error: %v", err)
	}
	sess, _ := st.GetSession(start.SessionID)
	// An unparseable date got stored as raw text earlier in the conversation.
	sess.State["when"] = models.TextValue("soonish")
	sess.Phase = models.PhaseRequiredComplete
	sess.LastAskedFieldID = ""

	if _, err := engine.Step(context.Background(), start.SessionID, "hi", ""); !errors.Is(err, models.ErrInvalidDateFormat) {
		t.Errorf("Step() error = %v, want ErrInvalidDateFormat", err)
	}
	if sess.Phase == models.PhaseCompleted {
		t.Error("session completed despite an invalid snapshot")
	}
}

func TestStepUnknownSessionID(t *testing.T) {
	engine := newTestEngine(&fakeProposer{})
	if _, err := engine.Step(context.Background(), "missing", "hello there", ""); !errors.Is(err, store.ErrSessionNotFound) {
		t.Errorf("Step() error = %v, want ErrSessionNotFound", err)
	}
}

func TestStepSelectedOptionActsAsMessage(t *testing.T) {
	proposer := &fakeProposer{}
	engine := newTestEngine(proposer)
	form := []models.FieldDefinition{
		{ID: "color", FieldName: "Favorite Color", FieldType: models.FieldTypeDropdown, IsRequired: true, DropDownOptions: []string{"Red", "Blue"}},
	}
	start, err := engine.StartSession(context.Background(), form)
	if err != nil {
		t.Fatalf("StartSession() error: %v", err)
	}

	resp, err := engine.Step(context.Background(), start.SessionID, "", "Blue")
	if err != nil {
		t.Fatalf("Step() error: %v", err)
	}
	if proposer.calls != 0 {
		t.Errorf("proposer called %d times for a widget selection", proposer.calls)
	}
	if resp.Form[0].SelectedDropdownOption == nil || *resp.Form[0].SelectedDropdownOption != "Blue" {
		t.Errorf("dropdown value = %+v, want Blue", resp.Form[0])
	}
}

func TestNormalizeFieldValue(t *testing.T) {
	dateField := &models.FieldDefinition{FieldName: "Start Date", FieldType: models.FieldTypeDate}
	if got := normalizeFieldValue(dateField, "15/03/2024"); got.Text != "2024-03-15T00:00:00" {
		t.Errorf("date value = %q, want normalized wire format", got.Text)
	}
	if got := normalizeFieldValue(dateField, "soonish"); got.Text != "soonish" {
		t.Errorf("unparseable date = %q, want raw text kept", got.Text)
	}

	checklistField := &models.FieldDefinition{
		FieldName:        "Tasks",
		FieldType:        models.FieldTypeChecklist,
		ChecklistOptions: []string{"Pack", "Ship"},
	}
	got := normalizeFieldValue(checklistField, "pack, SHIP, label")
	want := []string{"Pack", "Ship", "label"}
	if len(got.Selections) != len(want) {
		t.Fatalf("selections = %v, want %v", got.Selections, want)
	}
	for i := range want {
		if got.Selections[i] != want[i] {
			t.Errorf("selections[%d] = %q, want %q", i, got.Selections[i], want[i])
		}
	}
}
