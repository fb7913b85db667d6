package store

import (
	"database/sql"
	"fmt"
)

// GovernedConcept is a governed business term whose quality is tracked.
// Criticality is a fixed risk multiplier in (0,1], immutable for a run.
type GovernedConcept struct {
	ID          string
	Name        string
	Criticality float64
}

// Rule is a data quality rule bound to a concept.
type Rule struct {
	ID          string
	ConceptID   string
	Description string
	Threshold   float64
}

// MeasuredElement is a concrete data element bound to a concept, with its
// own daily score series.
type MeasuredElement struct {
	ID        string
	Name      string
	ConceptID string
}

// LineageMapping bridges a measured element to the pipeline model column
// that materializes it.
type LineageMapping struct {
	ModelName  string
	ColumnName string
	ElementID  string
}

// SQLBody is the text of one pipeline model, the unit the scanner analyzes.
type SQLBody struct {
	ModelName string
	Text      string
}

// Concepts returns all governed concepts in stable id order.
func (s *LocalStore) Concepts() ([]GovernedConcept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT concept_id, name, criticality FROM concepts ORDER BY concept_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query concepts: %w", err)
	}
	defer rows.Close()

	var out []GovernedConcept
	for rows.Next() {
		var c GovernedConcept
		if err := rows.Scan(&c.ID, &c.Name, &c.Criticality); err != nil {
			return nil, fmt.Errorf("failed to scan concept: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RulesForConcept returns the rules bound to a concept in stable id order.
func (s *LocalStore) RulesForConcept(conceptID string) ([]Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT rule_id, concept_id, description, threshold FROM rules WHERE concept_id = ? ORDER BY rule_id",
		conceptID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		var r Rule
		if err := rows.Scan(&r.ID, &r.ConceptID, &r.Description, &r.Threshold); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ElementsForConcept returns the measured elements bound to a concept in
// stable id order.
func (s *LocalStore) ElementsForConcept(conceptID string) ([]MeasuredElement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT element_id, name, concept_id FROM elements WHERE concept_id = ? ORDER BY element_id",
		conceptID)
	if err != nil {
		return nil, fmt.Errorf("failed to query elements: %w", err)
	}
	defer rows.Close()

	var out []MeasuredElement
	for rows.Next() {
		var e MeasuredElement
		if err := rows.Scan(&e.ID, &e.Name, &e.ConceptID); err != nil {
			return nil, fmt.Errorf("failed to scan element: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Score returns the quality score for an element on a date. The boolean is
// false when no measurement exists; absence of measurement is not a breach.
func (s *LocalStore) Score(elementID, date string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var score float64
	err := s.db.QueryRow(
		"SELECT score FROM scores WHERE element_id = ? AND date = ?",
		elementID, date).Scan(&score)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query score: %w", err)
	}
	return score, true, nil
}

// RecentScores returns up to window scores for an element at or before the
// given date, ordered oldest to newest.
func (s *LocalStore) RecentScores(elementID, date string, window int) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT score FROM (
			SELECT date, score FROM scores
			WHERE element_id = ? AND date <= ?
			ORDER BY date DESC
			LIMIT ?
		) ORDER BY date ASC`,
		elementID, date, window)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent scores: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var sc float64
		if err := rows.Scan(&sc); err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// LineageForElement returns the pipeline model columns that materialize an
// element. Empty result means the element has no pipeline mapping.
func (s *LocalStore) LineageForElement(elementID string) ([]LineageMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT model_name, column_name, element_id FROM lineage WHERE element_id = ? ORDER BY model_name, column_name",
		elementID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lineage: %w", err)
	}
	defer rows.Close()

	var out []LineageMapping
	for rows.Next() {
		var m LineageMapping
		if err := rows.Scan(&m.ModelName, &m.ColumnName, &m.ElementID); err != nil {
			return nil, fmt.Errorf("failed to scan lineage mapping: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SQLForModel returns the SQL body of a pipeline model. The boolean is false
// when the model is unknown.
func (s *LocalStore) SQLForModel(modelName string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var text string
	err := s.db.QueryRow(
		"SELECT sql_text FROM sql_models WHERE model_name = ?", modelName).Scan(&text)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query sql model: %w", err)
	}
	return text, true, nil
}

// UpsertConcept inserts or replaces a governed concept.
func (s *LocalStore) UpsertConcept(c GovernedConcept) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO concepts (concept_id, name, criticality) VALUES (?, ?, ?)",
		c.ID, c.Name, c.Criticality)
	if err != nil {
		return fmt.Errorf("failed to upsert concept %s: %w", c.ID, err)
	}
	return nil
}

// UpsertRule inserts or replaces a rule.
func (s *LocalStore) UpsertRule(r Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO rules (rule_id, concept_id, description, threshold) VALUES (?, ?, ?, ?)",
		r.ID, r.ConceptID, r.Description, r.Threshold)
	if err != nil {
		return fmt.Errorf("failed to upsert rule %s: %w", r.ID, err)
	}
	return nil
}

// UpsertElement inserts or replaces a measured element.
func (s *LocalStore) UpsertElement(e MeasuredElement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO elements (element_id, name, concept_id) VALUES (?, ?, ?)",
		e.ID, e.Name, e.ConceptID)
	if err != nil {
		return fmt.Errorf("failed to upsert element %s: %w", e.ID, err)
	}
	return nil
}

// UpsertScore inserts or replaces one (date, element) score observation.
// Out-of-range scores are clamped to [0,1] rather than rejected.
func (s *LocalStore) UpsertScore(date, elementID string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO scores (date, element_id, score) VALUES (?, ?, ?)",
		date, elementID, score)
	if err != nil {
		return fmt.Errorf("failed to upsert score for %s@%s: %w", elementID, date, err)
	}
	return nil
}

// UpsertLineage inserts a lineage mapping, replacing an identical one.
func (s *LocalStore) UpsertLineage(m LineageMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`DELETE FROM lineage WHERE model_name = ? AND column_name = ? AND element_id = ?`,
		m.ModelName, m.ColumnName, m.ElementID)
	if err != nil {
		return fmt.Errorf("failed to clear lineage mapping: %w", err)
	}
	_, err = s.db.Exec(
		"INSERT INTO lineage (model_name, column_name, element_id) VALUES (?, ?, ?)",
		m.ModelName, m.ColumnName, m.ElementID)
	if err != nil {
		return fmt.Errorf("failed to upsert lineage mapping: %w", err)
	}
	return nil
}

// UpsertSQLModel inserts or replaces a pipeline model body.
func (s *LocalStore) UpsertSQLModel(b SQLBody) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO sql_models (model_name, sql_text) VALUES (?, ?)",
		b.ModelName, b.Text)
	if err != nil {
		return fmt.Errorf("failed to upsert sql model %s: %w", b.ModelName, err)
	}
	return nil
}
