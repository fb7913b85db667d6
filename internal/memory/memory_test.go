package memory

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAttentionDefaultsToBaseline(t *testing.T) {
	m := NewLearningMemory()
	if got := m.Attention("unseen"); got != 1.0 {
		t.Fatalf("Attention(unseen) = %v, want 1.0", got)
	}
}

func TestRecordBreachBoostsAttention(t *testing.T) {
	m := NewLearningMemory()
	m.RecordBreach("revenue")
	if got := m.Attention("revenue"); !almostEqual(got, 1.05) {
		t.Errorf("after 1 breach: attention = %v, want 1.05", got)
	}
	m.RecordBreach("revenue")
	if got := m.Attention("revenue"); !almostEqual(got, 1.05*1.10) {
		t.Errorf("after 2 breaches: attention = %v, want %v", got, 1.05*1.10)
	}
}

func TestRecordBreachStreakSaturatesAtFive(t *testing.T) {
	m := NewLearningMemory()
	for i := 0; i < 8; i++ {
		m.RecordBreach("c")
	}
	// A long streak must still multiply by at most 1.25 per day and stay
	// capped at 2.5.
	if got := m.Attention("c"); got > 2.5 {
		t.Errorf("attention = %v, exceeds cap 2.5", got)
	}
	if got := m.Attention("c"); got != 2.5 {
		t.Errorf("attention = %v, want saturated 2.5", got)
	}
}

func TestRecordNoBreachDecaysTowardBaseline(t *testing.T) {
	m := NewLearningMemory()
	for i := 0; i < 4; i++ {
		m.RecordBreach("c")
	}
	before := m.Attention("c")
	m.RecordNoBreach("c")
	after := m.Attention("c")
	if after >= before {
		t.Errorf("no-breach should decay attention: %v -> %v", before, after)
	}
	// Decay never drops below baseline.
	for i := 0; i < 50; i++ {
		m.RecordNoBreach("c")
	}
	if got := m.Attention("c"); got != 1.0 {
		t.Errorf("attention after long decay = %v, want 1.0", got)
	}
}

func TestRecordNoBreachResetsStreak(t *testing.T) {
	m := NewLearningMemory()
	m.RecordBreach("c")
	m.RecordBreach("c")
	m.RecordNoBreach("c")
	w := m.Attention("c")
	m.RecordBreach("c")
	// Streak restarted at 1, so the multiplier is 1.05 again.
	if got := m.Attention("c"); !almostEqual(got, w*1.05) {
		t.Errorf("attention = %v, want %v (streak reset)", got, w*1.05)
	}
}

func TestRecordOutcomeWithoutPendingIsNoop(t *testing.T) {
	m := NewLearningMemory()
	if rec := m.RecordOutcome(3, "c", RecAddValidation, 0.9); rec != nil {
		t.Fatalf("expected nil outcome, got %+v", rec)
	}
	if got := m.Effectiveness(RecAddValidation); got != 0.0 {
		t.Errorf("effectiveness = %v, want 0 after no-op", got)
	}
	if got := m.Attention("c"); got != 1.0 {
		t.Errorf("attention = %v, want untouched 1.0", got)
	}
}

func TestRecordOutcomeImprovement(t *testing.T) {
	m := NewLearningMemory()
	m.RecordPendingRecommendation(1, "c", RecAddValidation, 0.80)
	rec := m.RecordOutcome(2, "c", RecAddValidation, 0.85)
	if rec == nil {
		t.Fatal("expected an outcome record")
	}
	if !rec.Improved() {
		t.Errorf("delta %v should count as improved", rec.Delta())
	}
	if got := m.Attention("c"); !almostEqual(got, 0.85) {
		t.Errorf("attention = %v, want 0.85 after improvement", got)
	}
	if got := m.Effectiveness(RecAddValidation); !almostEqual(got, 0.05) {
		t.Errorf("effectiveness = %v, want 0.05", got)
	}
	// Pending entry is consumed.
	if m.HasPending("c", RecAddValidation) {
		t.Error("pending entry should have been consumed")
	}
	if again := m.RecordOutcome(3, "c", RecAddValidation, 0.9); again != nil {
		t.Errorf("second measurement should be a no-op, got %+v", again)
	}
}

func TestRecordOutcomeNoImprovement(t *testing.T) {
	m := NewLearningMemory()
	m.RecordPendingRecommendation(1, "c", RecMoveEarlier, 0.80)
	rec := m.RecordOutcome(2, "c", RecMoveEarlier, 0.80)
	if rec == nil || rec.Improved() {
		t.Fatalf("zero delta must not count as improvement: %+v", rec)
	}
	if got := m.Attention("c"); !almostEqual(got, 1.10) {
		t.Errorf("attention = %v, want 1.10 after no improvement", got)
	}
}

func TestImprovementEpsilonBoundary(t *testing.T) {
	m := NewLearningMemory()
	m.RecordPendingRecommendation(1, "c", RecAddValidation, 0.800)
	rec := m.RecordOutcome(2, "c", RecAddValidation, 0.801)
	// Delta of exactly 0.001 does not clear the strict threshold.
	if rec.Improved() {
		t.Errorf("delta %v at epsilon should not be an improvement", rec.Delta())
	}
}

func TestPendingOverwrite(t *testing.T) {
	m := NewLearningMemory()
	m.RecordPendingRecommendation(1, "c", RecAddValidation, 0.70)
	m.RecordPendingRecommendation(2, "c", RecAddValidation, 0.90)
	rec := m.RecordOutcome(3, "c", RecAddValidation, 0.80)
	if rec == nil {
		t.Fatal("expected an outcome record")
	}
	// The later recommendation's baseline wins.
	if !almostEqual(rec.ScoreBefore, 0.90) {
		t.Errorf("ScoreBefore = %v, want overwritten 0.90", rec.ScoreBefore)
	}
}

func TestAttentionStaysInBounds(t *testing.T) {
	m := NewLearningMemory()
	// Arbitrary interleaving of every mutation path.
	for i := 0; i < 200; i++ {
		switch i % 5 {
		case 0, 1:
			m.RecordBreach("c")
		case 2:
			m.RecordNoBreach("c")
		case 3:
			m.RecordPendingRecommendation(i, "c", RecAddValidation, 0.8)
			m.RecordOutcome(i, "c", RecAddValidation, 0.9)
		case 4:
			m.RecordPendingRecommendation(i, "c", RecAdjustThreshold, 0.8)
			m.RecordOutcome(i, "c", RecAdjustThreshold, 0.7)
		}
		w := m.Attention("c")
		if w < 0.6 || w > 2.5 {
			t.Fatalf("step %d: attention %v out of [0.6, 2.5]", i, w)
		}
	}
}

func TestPreferredTypeColdStart(t *testing.T) {
	m := NewLearningMemory()
	if got := m.PreferredType(); got != RecAddValidation {
		t.Errorf("PreferredType = %q, want %q under all-zero effectiveness", got, RecAddValidation)
	}
}

func TestPreferredTypeFollowsEvidence(t *testing.T) {
	m := NewLearningMemory()
	m.RecordPendingRecommendation(1, "a", RecAddValidation, 0.80)
	m.RecordOutcome(2, "a", RecAddValidation, 0.81)
	m.RecordPendingRecommendation(2, "b", RecMoveEarlier, 0.80)
	m.RecordOutcome(3, "b", RecMoveEarlier, 0.90)
	if got := m.PreferredType(); got != RecMoveEarlier {
		t.Errorf("PreferredType = %q, want %q", got, RecMoveEarlier)
	}
}

func TestPreferredTypeTieBreaksByPriorityOrder(t *testing.T) {
	m := NewLearningMemory()
	m.RecordPendingRecommendation(1, "a", RecMoveEarlier, 0.80)
	m.RecordOutcome(2, "a", RecMoveEarlier, 0.85)
	m.RecordPendingRecommendation(2, "b", RecAddValidation, 0.80)
	m.RecordOutcome(3, "b", RecAddValidation, 0.85)
	// Equal mean effectiveness: the canonical order wins.
	if got := m.PreferredType(); got != RecAddValidation {
		t.Errorf("PreferredType = %q, want tie-break to %q", got, RecAddValidation)
	}
}

func TestSnapshot(t *testing.T) {
	m := NewLearningMemory()
	for day := 1; day <= 7; day++ {
		m.RecordFocus(day, "c")
	}
	m.RecordBreach("c")
	m.RecordPendingRecommendation(7, "c", RecAddValidation, 0.8)
	m.RecordOutcome(8, "c", RecAddValidation, 0.85)

	s := m.Snapshot()
	if s.OutcomesRecorded != 1 {
		t.Errorf("OutcomesRecorded = %d, want 1", s.OutcomesRecorded)
	}
	if len(s.FocusHistoryLast5) != 5 {
		t.Errorf("FocusHistoryLast5 len = %d, want 5", len(s.FocusHistoryLast5))
	}
	if s.FocusHistoryLast5[0].Day != 3 {
		t.Errorf("oldest retained focus day = %d, want 3", s.FocusHistoryLast5[0].Day)
	}
	if _, ok := s.Effectiveness[RecAddValidation]; !ok {
		t.Error("snapshot missing effectiveness for observed type")
	}
	if _, ok := s.Effectiveness[RecAdjustThreshold]; ok {
		t.Error("snapshot must omit effectiveness for unobserved types")
	}
}
