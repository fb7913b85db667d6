package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	st, err := NewLocalStore(filepath.Join(t.TempDir(), "events_test.db"))
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestAppendEventGeneratesID(t *testing.T) {
	st := newTestStore(t)
	id, err := st.AppendEvent(ReasoningEvent{
		EventType:  EventRuleBreached,
		EntityType: "rule",
		EntityID:   "R001",
		EntityName: "R001 → revenue_usd",
		Metrics:    map[string]interface{}{"gap": 0.08},
	})
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("expected a generated event id")
	}

	events, err := st.EventsByType(EventRuleBreached)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].ID != id || events[0].Timestamp.IsZero() {
		t.Errorf("stored event malformed: %+v", events[0])
	}
	if events[0].Metrics["gap"] != 0.08 {
		t.Errorf("metrics round-trip failed: %v", events[0].Metrics)
	}
}

func TestAppendEventRejectsUnknownType(t *testing.T) {
	st := newTestStore(t)
	_, err := st.AppendEvent(ReasoningEvent{
		EventType:  "totally_made_up",
		EntityType: "rule",
		EntityID:   "R001",
	})
	if !errors.Is(err, ErrUnknownEventType) {
		t.Fatalf("err = %v, want ErrUnknownEventType", err)
	}

	// A rejected append must leave no row behind.
	counts, err := st.EventCountsByType()
	if err != nil {
		t.Fatal(err)
	}
	if len(counts) != 0 {
		t.Errorf("expected empty log, got %v", counts)
	}
}

func TestEventsByTypeEmptyStringReturnsAll(t *testing.T) {
	st := newTestStore(t)
	for _, et := range []string{EventRuleBreached, EventRiskAssessed, EventFocusSelected} {
		if _, err := st.AppendEvent(ReasoningEvent{EventType: et, EntityType: "x", EntityID: "1"}); err != nil {
			t.Fatal(err)
		}
	}
	all, err := st.EventsByType("")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("got %d events, want 3", len(all))
	}
	// Append order is preserved.
	if all[0].EventType != EventRuleBreached || all[2].EventType != EventFocusSelected {
		t.Errorf("unexpected order: %v, %v, %v", all[0].EventType, all[1].EventType, all[2].EventType)
	}
}

func TestEventCountsAndLast(t *testing.T) {
	st := newTestStore(t)
	for i := 0; i < 3; i++ {
		if _, err := st.AppendEvent(ReasoningEvent{
			EventType:  EventLearningUpdated,
			EntityType: "system",
			EntityID:   "agent",
			Context:    map[string]interface{}{"day_number": i + 1},
		}); err != nil {
			t.Fatal(err)
		}
	}

	counts, err := st.EventCountsByType()
	if err != nil {
		t.Fatal(err)
	}
	if counts[EventLearningUpdated] != 3 {
		t.Errorf("count = %d, want 3", counts[EventLearningUpdated])
	}

	last, ok, err := st.LastEventOfType(EventLearningUpdated)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a last event")
	}
	if day, _ := last.Context["day_number"].(float64); day != 3 {
		t.Errorf("last event day = %v, want 3", last.Context["day_number"])
	}

	_, ok, err = st.LastEventOfType(EventRuleBreached)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected no rule_breached events")
	}
}

func TestResetEventLog(t *testing.T) {
	st := newTestStore(t)
	if _, err := st.AppendEvent(ReasoningEvent{EventType: EventRuleBreached, EntityType: "rule", EntityID: "R001"}); err != nil {
		t.Fatal(err)
	}
	if err := st.ResetEventLog(); err != nil {
		t.Fatal(err)
	}
	counts, err := st.EventCountsByType()
	if err != nil {
		t.Fatal(err)
	}
	if len(counts) != 0 {
		t.Errorf("log not cleared: %v", counts)
	}
}

func TestIsValidEventType(t *testing.T) {
	valid := []string{
		EventRuleBreached, EventRiskAssessed, EventFocusSelected,
		EventInvestigationStarted, EventLineageTraced, EventSQLAnalysisCompleted,
		EventPolicyGapDetected, EventRecommendationCreated, EventOutcomeMeasured,
		EventLearningUpdated,
	}
	for _, et := range valid {
		if !IsValidEventType(et) {
			t.Errorf("%q should be valid", et)
		}
	}
	if IsValidEventType("nope") {
		t.Error("unknown type should be invalid")
	}
}
