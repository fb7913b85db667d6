// Package risk computes per-concept risk scores from rule breaches,
// quality-score trends, and the learning memory's attention weights.
package risk

import (
	"fmt"
	"sort"

	"datasteward/internal/logging"
	"datasteward/internal/memory"
	"datasteward/internal/store"
)

// Breach describes one rule threshold violation on a given date.
type Breach struct {
	ConceptID    string  `json:"concept_id"`
	ConceptName  string  `json:"concept_name"`
	RuleID       string  `json:"rule_id"`
	RuleDesc     string  `json:"rule_description"`
	ElementID    string  `json:"element_id"`
	ElementName  string  `json:"element_name"`
	Score        float64 `json:"score"`
	Threshold    float64 `json:"threshold"`
	Gap          float64 `json:"gap"`
	TrendFactor  float64 `json:"trend_factor,omitempty"`
	Contribution float64 `json:"risk_contribution,omitempty"`
}

// Assessment is the aggregated risk picture for one concept on one date.
type Assessment struct {
	Concept      store.GovernedConcept
	RawRisk      float64
	Attention    float64
	AdjustedRisk float64
	Breaches     []Breach
}

// Assessor owns the risk math. It reads catalog data from the store and
// attention state from the learning memory; the only memory mutation it
// performs is the no-breach streak reset.
type Assessor struct {
	store      *store.LocalStore
	mem        *memory.LearningMemory
	windowDays int
	minFactor  float64
	maxFactor  float64
}

// NewAssessor builds an assessor with the given trend window and factor
// bounds.
func NewAssessor(st *store.LocalStore, mem *memory.LearningMemory, windowDays int, minFactor, maxFactor float64) *Assessor {
	return &Assessor{
		store:      st,
		mem:        mem,
		windowDays: windowDays,
		minFactor:  minFactor,
		maxFactor:  maxFactor,
	}
}

// TrendFactor maps a score trajectory (oldest to newest) to a risk
// multiplier via the slope of an ordinary least-squares fit: improving
// scores dampen risk (factor below 1.0), declining scores amplify it.
// Fewer than two points is neutral.
func (a *Assessor) TrendFactor(scores []float64) float64 {
	if len(scores) < 2 {
		return 1.0
	}
	n := float64(len(scores))
	var meanX, meanY float64
	for i, s := range scores {
		meanX += float64(i)
		meanY += s
	}
	meanX /= n
	meanY /= n

	var num, den float64
	for i, s := range scores {
		dx := float64(i) - meanX
		num += dx * (s - meanY)
		den += dx * dx
	}
	if den == 0 {
		den = 1e-9
	}
	slope := num / den

	// A slope of 0.05/day maps to a full ±1.0 swing.
	factor := 1.0 - slope*20
	if factor < a.minFactor {
		factor = a.minFactor
	}
	if factor > a.maxFactor {
		factor = a.maxFactor
	}
	return factor
}

// DetectBreaches lists every rule violation across all concepts on the date
// and records each breach with the learning memory. Missing scores are
// skipped; absence of measurement is not a breach.
func (a *Assessor) DetectBreaches(date string) ([]Breach, error) {
	concepts, err := a.store.Concepts()
	if err != nil {
		return nil, fmt.Errorf("loading concepts: %w", err)
	}

	var breaches []Breach
	for _, c := range concepts {
		rules, err := a.store.RulesForConcept(c.ID)
		if err != nil {
			return nil, fmt.Errorf("rules for %s: %w", c.ID, err)
		}
		elements, err := a.store.ElementsForConcept(c.ID)
		if err != nil {
			return nil, fmt.Errorf("elements for %s: %w", c.ID, err)
		}
		for _, r := range rules {
			for _, e := range elements {
				score, ok, err := a.store.Score(e.ID, date)
				if err != nil {
					return nil, fmt.Errorf("score %s@%s: %w", e.ID, date, err)
				}
				if !ok || score >= r.Threshold {
					continue
				}
				breaches = append(breaches, Breach{
					ConceptID:   c.ID,
					ConceptName: c.Name,
					RuleID:      r.ID,
					RuleDesc:    r.Description,
					ElementID:   e.ID,
					ElementName: e.Name,
					Score:       score,
					Threshold:   r.Threshold,
					Gap:         r.Threshold - score,
				})
				a.mem.RecordBreach(c.ID)
			}
		}
	}
	logging.Risk("detected %d breaches on %s", len(breaches), date)
	return breaches, nil
}

// AssessConcept computes the adjusted risk for one concept on a date. Every
// breach contributes criticality x gap x trend factor; the sum is weighted
// by the concept's attention. Zero breaches signal a no-breach streak reset
// to memory even though the contribution is zero.
func (a *Assessor) AssessConcept(c store.GovernedConcept, date string) (Assessment, error) {
	rules, err := a.store.RulesForConcept(c.ID)
	if err != nil {
		return Assessment{}, fmt.Errorf("rules for %s: %w", c.ID, err)
	}
	elements, err := a.store.ElementsForConcept(c.ID)
	if err != nil {
		return Assessment{}, fmt.Errorf("elements for %s: %w", c.ID, err)
	}

	assessment := Assessment{Concept: c}
	for _, r := range rules {
		for _, e := range elements {
			score, ok, err := a.store.Score(e.ID, date)
			if err != nil {
				return Assessment{}, fmt.Errorf("score %s@%s: %w", e.ID, date, err)
			}
			if !ok || score >= r.Threshold {
				continue
			}
			recent, err := a.store.RecentScores(e.ID, date, a.windowDays)
			if err != nil {
				return Assessment{}, fmt.Errorf("recent scores %s@%s: %w", e.ID, date, err)
			}
			factor := a.TrendFactor(recent)
			gap := r.Threshold - score
			contribution := c.Criticality * gap * factor
			assessment.RawRisk += contribution
			assessment.Breaches = append(assessment.Breaches, Breach{
				ConceptID:    c.ID,
				ConceptName:  c.Name,
				RuleID:       r.ID,
				RuleDesc:     r.Description,
				ElementID:    e.ID,
				ElementName:  e.Name,
				Score:        score,
				Threshold:    r.Threshold,
				Gap:          gap,
				TrendFactor:  factor,
				Contribution: contribution,
			})
		}
	}

	if len(assessment.Breaches) == 0 {
		a.mem.RecordNoBreach(c.ID)
	}

	assessment.Attention = a.mem.Attention(c.ID)
	assessment.AdjustedRisk = assessment.RawRisk * assessment.Attention
	return assessment, nil
}

// RankConcepts assesses every concept and orders them by adjusted risk,
// descending. Ties keep the store's catalog order so ranking stays
// deterministic.
func (a *Assessor) RankConcepts(date string) ([]Assessment, error) {
	concepts, err := a.store.Concepts()
	if err != nil {
		return nil, fmt.Errorf("loading concepts: %w", err)
	}

	assessments := make([]Assessment, 0, len(concepts))
	for _, c := range concepts {
		as, err := a.AssessConcept(c, date)
		if err != nil {
			return nil, err
		}
		assessments = append(assessments, as)
	}

	sort.SliceStable(assessments, func(i, j int) bool {
		return assessments[i].AdjustedRisk > assessments[j].AdjustedRisk
	})
	if len(assessments) > 0 {
		logging.Risk("ranked %d concepts on %s, top=%s risk=%.4f",
			len(assessments), date, assessments[0].Concept.ID, assessments[0].AdjustedRisk)
	}
	return assessments, nil
}
