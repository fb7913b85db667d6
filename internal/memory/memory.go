// Package memory implements the agent's adaptive learning state: attention
// weights, breach streaks, recommendation effectiveness, and pending-outcome
// tracking. Everything here is deterministic arithmetic; the whole state is
// replayable from the reasoning log.
package memory

import (
	"datasteward/internal/logging"
)

// Attention weight bounds. 1.0 is neutral; the no-breach decay path never
// drops below baseline, only a measured improvement can.
const (
	attentionFloor    = 0.6
	attentionBaseline = 1.0
	attentionCap      = 2.5

	// A delta must clear this to count as an improvement.
	improvementEpsilon = 0.001
)

// The three canonical recommendation types, in tie-break priority order.
const (
	RecAddValidation   = "add_validation"
	RecMoveEarlier     = "move_earlier"
	RecAdjustThreshold = "adjust_threshold"
)

// RecommendationTypes lists the canonical types in priority order.
var RecommendationTypes = []string{RecAddValidation, RecMoveEarlier, RecAdjustThreshold}

// OutcomeRecord captures one measured recommendation outcome.
type OutcomeRecord struct {
	Day                int
	ConceptID          string
	RecommendationType string
	ScoreBefore        float64
	ScoreAfter         float64
}

// Delta is the score movement since the recommendation was made.
func (r OutcomeRecord) Delta() float64 {
	return r.ScoreAfter - r.ScoreBefore
}

// Improved reports whether the movement clears the improvement epsilon.
func (r OutcomeRecord) Improved() bool {
	return r.Delta() > improvementEpsilon
}

// FocusRecord is one entry in the focus history.
type FocusRecord struct {
	Day       int
	ConceptID string
}

type pendingKey struct {
	conceptID string
	recType   string
}

type pendingEntry struct {
	day         int
	scoreBefore float64
}

// LearningMemory holds all mutable per-run learning state. One instance per
// run; access is never concurrent so no locking is needed.
type LearningMemory struct {
	attention     map[string]float64
	breachStreaks map[string]int
	recDeltas     map[string][]float64
	pending       map[pendingKey]pendingEntry
	outcomes      []OutcomeRecord
	focusHistory  []FocusRecord
}

// NewLearningMemory returns an empty memory with all weights at baseline.
func NewLearningMemory() *LearningMemory {
	return &LearningMemory{
		attention:     make(map[string]float64),
		breachStreaks: make(map[string]int),
		recDeltas:     make(map[string][]float64),
		pending:       make(map[pendingKey]pendingEntry),
	}
}

// RecordFocus appends to the focus history.
func (m *LearningMemory) RecordFocus(day int, conceptID string) {
	m.focusHistory = append(m.focusHistory, FocusRecord{Day: day, ConceptID: conceptID})
}

// RecordBreach increments the concept's breach streak and boosts attention
// by 5% per consecutive breach day (streak contribution saturates at 5),
// capped at 2.5.
func (m *LearningMemory) RecordBreach(conceptID string) {
	m.breachStreaks[conceptID]++
	streak := m.breachStreaks[conceptID]
	if streak > 5 {
		streak = 5
	}
	w := m.Attention(conceptID) * (1 + 0.05*float64(streak))
	if w > attentionCap {
		w = attentionCap
	}
	m.attention[conceptID] = w
	logging.MemoryDebug("breach %s: streak=%d attention=%.3f", conceptID, m.breachStreaks[conceptID], w)
}

// RecordNoBreach resets the streak and decays attention toward neutral.
// This path never drops a weight below baseline.
func (m *LearningMemory) RecordNoBreach(conceptID string) {
	m.breachStreaks[conceptID] = 0
	w := m.Attention(conceptID) * 0.90
	if w < attentionBaseline {
		w = attentionBaseline
	}
	m.attention[conceptID] = w
}

// RecordPendingRecommendation stores the score at recommendation time so a
// later cycle can measure the outcome. A second recommendation for the same
// (concept, type) key overwrites the earlier pending entry.
func (m *LearningMemory) RecordPendingRecommendation(day int, conceptID, recType string, score float64) {
	m.pending[pendingKey{conceptID, recType}] = pendingEntry{day: day, scoreBefore: score}
	logging.MemoryDebug("pending %s/%s: day=%d score=%.4f", conceptID, recType, day, score)
}

// RecordOutcome measures a previously recorded recommendation. With no
// matching pending entry it is a no-op returning nil, the expected state
// on the first cycle touching a concept. Otherwise it consumes the pending
// entry, records the delta, and adjusts attention: improvement relaxes it
// (×0.85, floor 0.6), no improvement sustains it (×1.10, cap 2.5).
func (m *LearningMemory) RecordOutcome(day int, conceptID, recType string, scoreAfter float64) *OutcomeRecord {
	key := pendingKey{conceptID, recType}
	entry, ok := m.pending[key]
	if !ok {
		return nil
	}
	delete(m.pending, key)

	rec := OutcomeRecord{
		Day:                day,
		ConceptID:          conceptID,
		RecommendationType: recType,
		ScoreBefore:        entry.scoreBefore,
		ScoreAfter:         scoreAfter,
	}
	m.outcomes = append(m.outcomes, rec)
	m.recDeltas[recType] = append(m.recDeltas[recType], rec.Delta())

	w := m.Attention(conceptID)
	if rec.Improved() {
		w *= 0.85
		if w < attentionFloor {
			w = attentionFloor
		}
	} else {
		w *= 1.10
		if w > attentionCap {
			w = attentionCap
		}
	}
	m.attention[conceptID] = w

	logging.Memory("outcome %s/%s: delta=%.4f improved=%t attention=%.3f",
		conceptID, recType, rec.Delta(), rec.Improved(), w)
	return &rec
}

// Attention returns the current weight for a concept, 1.0 when unseen.
func (m *LearningMemory) Attention(conceptID string) float64 {
	if w, ok := m.attention[conceptID]; ok {
		return w
	}
	return attentionBaseline
}

// Effectiveness returns the mean observed delta for a recommendation type,
// 0.0 when nothing has been observed yet.
func (m *LearningMemory) Effectiveness(recType string) float64 {
	deltas := m.recDeltas[recType]
	if len(deltas) == 0 {
		return 0.0
	}
	var sum float64
	for _, d := range deltas {
		sum += d
	}
	return sum / float64(len(deltas))
}

// PreferredType returns the recommendation type with the best mean
// effectiveness. Ties, including the all-zero cold start, resolve to the
// earliest entry in the canonical priority order.
func (m *LearningMemory) PreferredType() string {
	best := RecommendationTypes[0]
	bestEff := m.Effectiveness(best)
	for _, t := range RecommendationTypes[1:] {
		if eff := m.Effectiveness(t); eff > bestEff {
			best, bestEff = t, eff
		}
	}
	return best
}

// HasPending reports whether an unmeasured recommendation exists for the key.
func (m *LearningMemory) HasPending(conceptID, recType string) bool {
	_, ok := m.pending[pendingKey{conceptID, recType}]
	return ok
}

// PendingTypes returns the recommendation types with a pending entry for the
// concept, in canonical priority order.
func (m *LearningMemory) PendingTypes(conceptID string) []string {
	var out []string
	for _, t := range RecommendationTypes {
		if m.HasPending(conceptID, t) {
			out = append(out, t)
		}
	}
	return out
}

// Outcomes returns a copy of the full outcome history.
func (m *LearningMemory) Outcomes() []OutcomeRecord {
	out := make([]OutcomeRecord, len(m.outcomes))
	copy(out, m.outcomes)
	return out
}

// FocusHistory returns a copy of the focus history, oldest first.
func (m *LearningMemory) FocusHistory() []FocusRecord {
	out := make([]FocusRecord, len(m.focusHistory))
	copy(out, m.focusHistory)
	return out
}

// Summary produces the serialisable state snapshot attached to
// learning_updated events.
type Summary struct {
	AttentionWeights  map[string]float64 `json:"attention_weights"`
	Effectiveness     map[string]float64 `json:"effectiveness"`
	OutcomesRecorded  int                `json:"outcomes_recorded"`
	FocusHistoryLast5 []FocusRecord      `json:"focus_history_last5"`
	PreferredType     string             `json:"preferred_recommendation"`
}

// Snapshot returns the current summary.
func (m *LearningMemory) Snapshot() Summary {
	s := Summary{
		AttentionWeights: make(map[string]float64, len(m.attention)),
		Effectiveness:    make(map[string]float64),
		OutcomesRecorded: len(m.outcomes),
		PreferredType:    m.PreferredType(),
	}
	for id, w := range m.attention {
		s.AttentionWeights[id] = w
	}
	for t, deltas := range m.recDeltas {
		if len(deltas) > 0 {
			s.Effectiveness[t] = m.Effectiveness(t)
		}
	}
	start := len(m.focusHistory) - 5
	if start < 0 {
		start = 0
	}
	s.FocusHistoryLast5 = append(s.FocusHistoryLast5, m.focusHistory[start:]...)
	return s
}
