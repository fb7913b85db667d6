package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"datasteward/internal/logging"

	"github.com/google/uuid"
)

// The ten registered reasoning event types. AppendEvent rejects anything
// else; consumers may rely on this vocabulary being stable.
const (
	EventRuleBreached          = "rule_breached"
	EventRiskAssessed          = "risk_assessed"
	EventFocusSelected         = "focus_selected"
	EventInvestigationStarted  = "investigation_started"
	EventLineageTraced         = "lineage_traced"
	EventSQLAnalysisCompleted  = "sql_analysis_completed"
	EventPolicyGapDetected     = "policy_gap_detected"
	EventRecommendationCreated = "recommendation_created"
	EventOutcomeMeasured       = "outcome_measured"
	EventLearningUpdated       = "learning_updated"
)

// ErrUnknownEventType is returned when an unregistered event type reaches
// the append primitive. This is a programming error, not a runtime
// condition to recover from.
var ErrUnknownEventType = errors.New("unknown event type")

var validEventTypes = map[string]struct{}{
	EventRuleBreached:          {},
	EventRiskAssessed:          {},
	EventFocusSelected:         {},
	EventInvestigationStarted:  {},
	EventLineageTraced:         {},
	EventSQLAnalysisCompleted:  {},
	EventPolicyGapDetected:     {},
	EventRecommendationCreated: {},
	EventOutcomeMeasured:       {},
	EventLearningUpdated:       {},
}

// IsValidEventType reports whether t is one of the ten registered types.
func IsValidEventType(t string) bool {
	_, ok := validEventTypes[t]
	return ok
}

// ReasoningEvent is the append-only record written once per decision step.
// Context and Metrics are structured payloads whose keys are additive and
// forward-compatible; consumers must not assume an exhaustive key set.
type ReasoningEvent struct {
	ID          string
	Timestamp   time.Time
	EventType   string
	EntityType  string // concept | rule | element | pipeline_model | system
	EntityID    string
	EntityName  string
	Context     map[string]interface{}
	Metrics     map[string]interface{}
	Explanation string
}

// AppendEvent writes one reasoning event and returns its generated id.
// The event type is validated first; an unregistered type produces
// ErrUnknownEventType and no row.
func (s *LocalStore) AppendEvent(e ReasoningEvent) (string, error) {
	if !IsValidEventType(e.EventType) {
		return "", fmt.Errorf("%w: %q", ErrUnknownEventType, e.EventType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Context == nil {
		e.Context = map[string]interface{}{}
	}
	if e.Metrics == nil {
		e.Metrics = map[string]interface{}{}
	}

	contextJSON, err := json.Marshal(e.Context)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event context: %w", err)
	}
	metricsJSON, err := json.Marshal(e.Metrics)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event metrics: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO event_log
			(event_id, timestamp, event_type, entity_type, entity_id, entity_name,
			 context, metrics, explanation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.Format(time.RFC3339Nano), e.EventType, e.EntityType,
		e.EntityID, e.EntityName, string(contextJSON), string(metricsJSON), e.Explanation)
	if err != nil {
		return "", fmt.Errorf("failed to append event: %w", err)
	}

	logging.StoreDebug("appended %s event %s for %s/%s", e.EventType, e.ID, e.EntityType, e.EntityID)
	return e.ID, nil
}

// EventsByType returns events of one type in insertion order. An empty type
// returns the whole log.
func (s *LocalStore) EventsByType(eventType string) ([]ReasoningEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT event_id, timestamp, event_type, entity_type, entity_id,
	                 entity_name, context, metrics, explanation
	          FROM event_log`
	args := []interface{}{}
	if eventType != "" {
		query += " WHERE event_type = ?"
		args = append(args, eventType)
	}
	query += " ORDER BY timestamp, event_id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []ReasoningEvent
	for rows.Next() {
		var (
			e           ReasoningEvent
			ts          string
			contextJSON string
			metricsJSON string
		)
		if err := rows.Scan(&e.ID, &ts, &e.EventType, &e.EntityType, &e.EntityID,
			&e.EntityName, &contextJSON, &metricsJSON, &e.Explanation); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("failed to parse event timestamp: %w", err)
		}
		if err := json.Unmarshal([]byte(contextJSON), &e.Context); err != nil {
			return nil, fmt.Errorf("failed to decode event context: %w", err)
		}
		if err := json.Unmarshal([]byte(metricsJSON), &e.Metrics); err != nil {
			return nil, fmt.Errorf("failed to decode event metrics: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EventCountsByType returns the number of events recorded per type.
func (s *LocalStore) EventCountsByType() (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT event_type, COUNT(*) FROM event_log GROUP BY event_type")
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", err)
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

// LastEventOfType returns the most recently appended event of one type.
// The boolean is false when none exists.
func (s *LocalStore) LastEventOfType(eventType string) (ReasoningEvent, bool, error) {
	events, err := s.EventsByType(eventType)
	if err != nil {
		return ReasoningEvent{}, false, err
	}
	if len(events) == 0 {
		return ReasoningEvent{}, false, nil
	}
	return events[len(events)-1], true, nil
}

// ResetEventLog wipes the reasoning log. This is an explicit administrative
// operation, outside the append-only contract.
func (s *LocalStore) ResetEventLog() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM event_log"); err != nil {
		return fmt.Errorf("failed to reset event log: %w", err)
	}
	logging.Store("event log reset")
	return nil
}
