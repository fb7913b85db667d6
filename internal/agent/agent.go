// Package agent sequences the ten-step daily governance cycle:
// breach detection, risk ranking, focus selection, outcome measurement,
// investigation, lineage tracing, SQL analysis, policy checking,
// recommendation, and learning update. Every step transition appends at
// least one event to the reasoning log.
package agent

import (
	"context"
	"fmt"
	"sort"

	"datasteward/internal/config"
	"datasteward/internal/logging"
	"datasteward/internal/memory"
	"datasteward/internal/oracle"
	"datasteward/internal/policy"
	"datasteward/internal/risk"
	"datasteward/internal/scanner"
	"datasteward/internal/store"
)

// CycleResult summarises one daily cycle for console reporting.
type CycleResult struct {
	Day         int
	Date        string
	Status      string // "ok" or "no_terms"
	FocusName   string
	FocusID     string
	RiskScore   float64
	BreachCount int
	GapCount    int
	RecType     string
	RecAction   string
	PrimaryScore float64
}

// modelAnalysis holds one pipeline model's combined static and semantic
// analysis.
type modelAnalysis struct {
	scan            scanner.Result
	semanticTypes   map[string]string
	oracleRisks     []oracle.RiskFinding
	relevantColumns []string
}

// lineageInfo is the traced concept-to-model mapping from one cycle.
type lineageInfo struct {
	// element id -> model/column mappings
	byElement map[string][]store.LineageMapping
	// element id -> element name
	elementNames map[string]string
	// distinct model names, sorted
	models []string
}

// Agent owns one run's mutable state. Execution is strictly sequential;
// one cycle completes before the next begins.
type Agent struct {
	store    *store.LocalStore
	mem      *memory.LearningMemory
	oracle   oracle.Client
	assessor *risk.Assessor
	ontology policy.Ontology

	// concept id -> last recommendation type, for outcome measurement
	lastRecType map[string]string
}

// New wires an agent from its collaborators.
func New(st *store.LocalStore, orc oracle.Client, ont policy.Ontology, cfg config.RiskConfig) *Agent {
	mem := memory.NewLearningMemory()
	return &Agent{
		store:       st,
		mem:         mem,
		oracle:      orc,
		assessor:    risk.NewAssessor(st, mem, cfg.TrendWindowDays, cfg.MinTrendFactor, cfg.MaxTrendFactor),
		ontology:    ont,
		lastRecType: make(map[string]string),
	}
}

// Memory exposes the learning state for reporting.
func (a *Agent) Memory() *memory.LearningMemory {
	return a.mem
}

// RunDailyCycle executes the full governance cycle for one simulated day.
// If no governed concepts exist the cycle short-circuits with status
// "no_terms" after the risk assessment step.
func (a *Agent) RunDailyCycle(ctx context.Context, date string, day int) (CycleResult, error) {
	logging.Cycle("day %d (%s): cycle start", day, date)

	breaches, err := a.stepDetectBreaches(ctx, date)
	if err != nil {
		return CycleResult{}, fmt.Errorf("detect breaches: %w", err)
	}

	ranked, err := a.stepAssessRisk(ctx, date)
	if err != nil {
		return CycleResult{}, fmt.Errorf("assess risk: %w", err)
	}
	if len(ranked) == 0 {
		logging.Cycle("day %d: no governed concepts, cycle short-circuits", day)
		return CycleResult{Day: day, Date: date, Status: "no_terms"}, nil
	}

	focus, err := a.stepSelectFocus(ctx, ranked, date, day)
	if err != nil {
		return CycleResult{}, fmt.Errorf("select focus: %w", err)
	}

	// Outcome of a previous cycle's recommendation for this concept is
	// measured before the new investigation begins.
	if err := a.stepMeasurePriorOutcome(ctx, focus.Concept, date, day); err != nil {
		return CycleResult{}, fmt.Errorf("measure outcome: %w", err)
	}

	if err := a.stepStartInvestigation(ctx, focus.Concept, date); err != nil {
		return CycleResult{}, fmt.Errorf("start investigation: %w", err)
	}

	lineage, err := a.stepTraceLineage(ctx, focus.Concept, date)
	if err != nil {
		return CycleResult{}, fmt.Errorf("trace lineage: %w", err)
	}

	analyses, err := a.stepAnalyzeSQL(ctx, focus.Concept, lineage, date)
	if err != nil {
		return CycleResult{}, fmt.Errorf("analyze sql: %w", err)
	}

	gaps, err := a.stepCheckPolicies(ctx, focus.Concept, lineage, analyses, date)
	if err != nil {
		return CycleResult{}, fmt.Errorf("check policies: %w", err)
	}

	primaryScore, err := a.primaryScore(focus.Concept, date)
	if err != nil {
		return CycleResult{}, fmt.Errorf("primary score: %w", err)
	}

	rec, err := a.stepCreateRecommendation(ctx, focus.Concept, gaps, lineage, analyses, date, day, primaryScore)
	if err != nil {
		return CycleResult{}, fmt.Errorf("create recommendation: %w", err)
	}

	if err := a.stepUpdateLearning(ctx, date, day); err != nil {
		return CycleResult{}, fmt.Errorf("update learning: %w", err)
	}

	logging.Cycle("day %d: focus=%s risk=%.4f gaps=%d rec=%s",
		day, focus.Concept.Name, focus.AdjustedRisk, len(gaps), rec.Type)

	return CycleResult{
		Day:          day,
		Date:         date,
		Status:       "ok",
		FocusName:    focus.Concept.Name,
		FocusID:      focus.Concept.ID,
		RiskScore:    focus.AdjustedRisk,
		BreachCount:  len(breaches),
		GapCount:     len(gaps),
		RecType:      rec.Type,
		RecAction:    rec.Action,
		PrimaryScore: primaryScore,
	}, nil
}

// Step 1: detect breaches and emit a rule_breached event per violation.
func (a *Agent) stepDetectBreaches(ctx context.Context, date string) ([]risk.Breach, error) {
	breaches, err := a.assessor.DetectBreaches(date)
	if err != nil {
		return nil, err
	}
	for _, b := range breaches {
		category := a.oracle.InterpretRule(ctx, b.RuleDesc)
		_, err := a.store.AppendEvent(store.ReasoningEvent{
			EventType:  store.EventRuleBreached,
			EntityType: "rule",
			EntityID:   b.RuleID,
			EntityName: fmt.Sprintf("%s → %s", b.RuleID, b.ElementName),
			Context: map[string]interface{}{
				"date":                date,
				"business_concept":    b.ConceptName,
				"element":             b.ElementName,
				"rule_description":    b.RuleDesc,
				"validation_category": category,
			},
			Metrics: map[string]interface{}{
				"score":     b.Score,
				"threshold": b.Threshold,
				"gap":       b.Gap,
			},
			Explanation: fmt.Sprintf(
				"Rule %s breached on %s: '%s' scored %.4f against threshold %.2f (gap=%.4f). Business concept '%s' is at risk.",
				b.RuleID, date, b.ElementName, b.Score, b.Threshold, b.Gap, b.ConceptName),
		})
		if err != nil {
			return nil, err
		}
	}
	return breaches, nil
}

// Step 2: rank concepts by adjusted risk, one risk_assessed event each.
func (a *Agent) stepAssessRisk(ctx context.Context, date string) ([]risk.Assessment, error) {
	ranked, err := a.assessor.RankConcepts(date)
	if err != nil {
		return nil, err
	}
	for _, as := range ranked {
		topBreaches := as.Breaches
		if len(topBreaches) > 3 {
			topBreaches = topBreaches[:3]
		}
		_, err := a.store.AppendEvent(store.ReasoningEvent{
			EventType:  store.EventRiskAssessed,
			EntityType: "business_concept",
			EntityID:   as.Concept.ID,
			EntityName: as.Concept.Name,
			Context: map[string]interface{}{
				"date":              date,
				"breaches_detected": len(as.Breaches),
				"attention_weight":  as.Attention,
				"breach_details":    topBreaches,
			},
			Metrics: map[string]interface{}{
				"risk_score":           as.AdjustedRisk,
				"criticality":          as.Concept.Criticality,
				"breach_count":         len(as.Breaches),
				"attention_multiplier": as.Attention,
			},
			Explanation: fmt.Sprintf(
				"Business concept '%s' carries a composite risk score of %.4f on %s, derived from %d active rule breach(es) weighted by criticality %.2f and attention multiplier %.2f.",
				as.Concept.Name, as.AdjustedRisk, date, len(as.Breaches), as.Concept.Criticality, as.Attention),
		})
		if err != nil {
			return nil, err
		}
	}
	return ranked, nil
}

// Step 3: select the top-ranked concept as today's focus.
func (a *Agent) stepSelectFocus(ctx context.Context, ranked []risk.Assessment, date string, day int) (risk.Assessment, error) {
	focus := ranked[0]
	a.mem.RecordFocus(day, focus.Concept.ID)

	runnerUpName := "none"
	runnerUpRisk := 0.0
	margin := focus.AdjustedRisk
	if len(ranked) > 1 {
		runnerUpName = ranked[1].Concept.Name
		runnerUpRisk = ranked[1].AdjustedRisk
		margin = focus.AdjustedRisk - runnerUpRisk
	}

	explanation := a.oracle.GenerateExplanation(ctx, store.EventFocusSelected, map[string]interface{}{
		"entity_name":      focus.Concept.Name,
		"risk_score":       focus.AdjustedRisk,
		"date":             date,
		"runner_up":        runnerUpName,
		"runner_up_risk":   runnerUpRisk,
		"attention_weight": focus.Attention,
	})

	allRisks := make([]map[string]interface{}, 0, len(ranked))
	for _, as := range ranked {
		allRisks = append(allRisks, map[string]interface{}{
			"concept": as.Concept.Name,
			"risk":    as.AdjustedRisk,
		})
	}

	_, err := a.store.AppendEvent(store.ReasoningEvent{
		EventType:  store.EventFocusSelected,
		EntityType: "business_concept",
		EntityID:   focus.Concept.ID,
		EntityName: focus.Concept.Name,
		Context: map[string]interface{}{
			"date":             date,
			"selection_reason": "highest_adjusted_risk",
			"all_risks":        allRisks,
		},
		Metrics: map[string]interface{}{
			"risk_score":            focus.AdjustedRisk,
			"margin_over_runner_up": margin,
		},
		Explanation: explanation,
	})
	return focus, err
}

// Step 4: measure the outcome of a prior cycle's recommendation for the
// focus concept. Silently no-ops when nothing is pending.
func (a *Agent) stepMeasurePriorOutcome(ctx context.Context, c store.GovernedConcept, date string, day int) error {
	recType, ok := a.lastRecType[c.ID]
	if !ok {
		return nil
	}

	elements, err := a.store.ElementsForConcept(c.ID)
	if err != nil {
		return err
	}
	if len(elements) == 0 {
		return nil
	}
	primary := elements[0]

	score, ok, err := a.store.Score(primary.ID, date)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	outcome := a.mem.RecordOutcome(day, c.ID, recType, score)
	if outcome == nil {
		return nil
	}

	narrative := "Score did not improve; the recommendation may need reinforcement or escalation."
	if outcome.Improved() {
		narrative = "The previous recommendation appears effective: score improved."
	}

	_, err = a.store.AppendEvent(store.ReasoningEvent{
		EventType:  store.EventOutcomeMeasured,
		EntityType: "business_concept",
		EntityID:   c.ID,
		EntityName: c.Name,
		Context: map[string]interface{}{
			"date":                 date,
			"element_measured":     primary.Name,
			"recommendation_type":  recType,
			"improvement_observed": outcome.Improved(),
		},
		Metrics: map[string]interface{}{
			"score_before": outcome.ScoreBefore,
			"score_after":  outcome.ScoreAfter,
			"delta":        outcome.Delta(),
			"improved":     outcome.Improved(),
		},
		Explanation: fmt.Sprintf(
			"Outcome measured for '%s' on %s: score moved from %.4f to %.4f (delta=%+.4f). %s",
			c.Name, date, outcome.ScoreBefore, outcome.ScoreAfter, outcome.Delta(), narrative),
	})
	return err
}

// Step 5: open the investigation.
func (a *Agent) stepStartInvestigation(ctx context.Context, c store.GovernedConcept, date string) error {
	explanation := a.oracle.GenerateExplanation(ctx, store.EventInvestigationStarted, map[string]interface{}{
		"entity_name": c.Name,
		"date":        date,
		"criticality": c.Criticality,
	})
	_, err := a.store.AppendEvent(store.ReasoningEvent{
		EventType:  store.EventInvestigationStarted,
		EntityType: "business_concept",
		EntityID:   c.ID,
		EntityName: c.Name,
		Context: map[string]interface{}{
			"date":                date,
			"investigation_scope": []string{"element_lineage", "pipeline_scan", "policy_gap_check"},
		},
		Metrics:     map[string]interface{}{"criticality": c.Criticality},
		Explanation: explanation,
	})
	return err
}

// Step 6: trace concept → element → pipeline model lineage.
func (a *Agent) stepTraceLineage(ctx context.Context, c store.GovernedConcept, date string) (lineageInfo, error) {
	elements, err := a.store.ElementsForConcept(c.ID)
	if err != nil {
		return lineageInfo{}, err
	}

	info := lineageInfo{
		byElement:    make(map[string][]store.LineageMapping, len(elements)),
		elementNames: make(map[string]string, len(elements)),
	}
	modelSet := make(map[string]struct{})
	for _, e := range elements {
		mappings, err := a.store.LineageForElement(e.ID)
		if err != nil {
			return lineageInfo{}, err
		}
		info.byElement[e.ID] = mappings
		info.elementNames[e.ID] = e.Name
		for _, m := range mappings {
			modelSet[m.ModelName] = struct{}{}
		}
	}
	for m := range modelSet {
		info.models = append(info.models, m)
	}
	sort.Strings(info.models)

	lineagePayload := make(map[string]interface{}, len(elements))
	for id, mappings := range info.byElement {
		models := make([]map[string]string, 0, len(mappings))
		for _, m := range mappings {
			models = append(models, map[string]string{
				"model_name":  m.ModelName,
				"column_name": m.ColumnName,
			})
		}
		lineagePayload[id] = map[string]interface{}{
			"element_name": info.elementNames[id],
			"models":       models,
		}
	}

	_, err = a.store.AppendEvent(store.ReasoningEvent{
		EventType:  store.EventLineageTraced,
		EntityType: "business_concept",
		EntityID:   c.ID,
		EntityName: c.Name,
		Context: map[string]interface{}{
			"date":          date,
			"element_count": len(elements),
			"model_count":   len(info.models),
			"lineage":       lineagePayload,
		},
		Metrics: map[string]interface{}{
			"element_count": len(elements),
			"model_count":   len(info.models),
		},
		Explanation: fmt.Sprintf(
			"Lineage traced for '%s': %d measured element(s) materialised across %d pipeline model(s): %v. Each element-to-model link is a potential governance injection point.",
			c.Name, len(elements), len(info.models), info.models),
	})
	return info, err
}

// Step 7: static scan plus semantic enrichment for every model in the
// lineage. One sql_analysis_completed event per model.
func (a *Agent) stepAnalyzeSQL(ctx context.Context, c store.GovernedConcept, lineage lineageInfo, date string) (map[string]modelAnalysis, error) {
	analyses := make(map[string]modelAnalysis, len(lineage.models))
	for _, modelName := range lineage.models {
		sqlText, ok, err := a.store.SQLForModel(modelName)
		if err != nil {
			return nil, err
		}
		if !ok || sqlText == "" {
			continue
		}

		scan := scanner.Scan(modelName, sqlText)

		var relevant []string
		for _, mappings := range lineage.byElement {
			for _, m := range mappings {
				if m.ModelName == modelName {
					relevant = append(relevant, m.ColumnName)
				}
			}
		}
		allCols := dedupeStrings(append(relevant, scan.ColumnsDetected...))

		semTypes := a.oracle.InferSemanticTypes(ctx, sqlText, allCols)
		oracleRisks := a.oracle.DetectRiskyTransformations(ctx, sqlText)

		analyses[modelName] = modelAnalysis{
			scan:            scan,
			semanticTypes:   semTypes,
			oracleRisks:     oracleRisks,
			relevantColumns: relevant,
		}

		explanation := a.oracle.GenerateExplanation(ctx, store.EventSQLAnalysisCompleted, map[string]interface{}{
			"entity_name":      modelName,
			"business_concept": c.Name,
			"summary_flags":    scan.SummaryFlags,
			"risk_count":       len(oracleRisks),
			"semantic_types":   semTypes,
		})

		topRisks := oracleRisks
		if len(topRisks) > 5 {
			topRisks = topRisks[:5]
		}
		_, err = a.store.AppendEvent(store.ReasoningEvent{
			EventType:  store.EventSQLAnalysisCompleted,
			EntityType: "pipeline_model",
			EntityID:   modelName,
			EntityName: modelName,
			Context: map[string]interface{}{
				"date":             date,
				"business_concept": c.Name,
				"summary_flags":    scan.SummaryFlags,
				"semantic_types":   semTypes,
				"oracle_risks":     topRisks,
				"pii_exposed":      scan.PIIExposed,
			},
			Metrics: map[string]interface{}{
				"transformation_count": len(scan.Transformations),
				"join_count":           scan.JoinCount,
				"has_non_equi_join":    scan.HasNonEquiJoin,
				"flag_count":           len(scan.SummaryFlags),
				"oracle_risk_count":    len(oracleRisks),
			},
			Explanation: explanation,
		})
		if err != nil {
			return nil, err
		}
	}
	return analyses, nil
}

// Step 8: deterministic policy gap detection across all analysed models.
// One policy_gap_detected event per gap.
func (a *Agent) stepCheckPolicies(ctx context.Context, c store.GovernedConcept, lineage lineageInfo, analyses map[string]modelAnalysis, date string) ([]policy.Gap, error) {
	var allGaps []policy.Gap
	for _, modelName := range lineage.models {
		analysis, ok := analyses[modelName]
		if !ok {
			continue
		}
		gaps := policy.DetectGaps(a.ontology, analysis.semanticTypes, analysis.scan)
		allGaps = append(allGaps, gaps...)

		for _, g := range gaps {
			explanation := a.oracle.GenerateExplanation(ctx, store.EventPolicyGapDetected, map[string]interface{}{
				"entity_name":         modelName,
				"business_concept":    c.Name,
				"column":              g.ColumnName,
				"semantic_type":       g.SemanticType,
				"missing_validation":  g.MissingValidation,
				"forbidden_transform": g.ForbiddenFound,
				"severity":            g.Severity,
			})
			_, err := a.store.AppendEvent(store.ReasoningEvent{
				EventType:  store.EventPolicyGapDetected,
				EntityType: "pipeline_model",
				EntityID:   modelName,
				EntityName: modelName,
				Context: map[string]interface{}{
					"date":                date,
					"business_concept":    c.Name,
					"column":              g.ColumnName,
					"semantic_type":       g.SemanticType,
					"missing_validation":  g.MissingValidation,
					"forbidden_transform": g.ForbiddenFound,
					"gap_description":     g.Description,
				},
				Metrics: map[string]interface{}{
					"severity_level": g.Severity,
					"severity_code":  severityCode(g.Severity),
				},
				Explanation: explanation,
			})
			if err != nil {
				return nil, err
			}
		}
	}
	return allGaps, nil
}

// Step 9: choose and record the cycle's remediation.
func (a *Agent) stepCreateRecommendation(ctx context.Context, c store.GovernedConcept, gaps []policy.Gap, lineage lineageInfo, analyses map[string]modelAnalysis, date string, day int, currentScore float64) (Recommendation, error) {
	// The first analysed model's scan provides flag context when no gap
	// exists.
	var firstScan scanner.Result
	for _, modelName := range lineage.models {
		if analysis, ok := analyses[modelName]; ok {
			firstScan = analysis.scan
			break
		}
	}

	rec := chooseRecommendation(gaps, firstScan, a.mem)
	a.mem.RecordPendingRecommendation(day, c.ID, rec.Type, currentScore)
	a.lastRecType[c.ID] = rec.Type

	explanation := a.oracle.GenerateExplanation(ctx, store.EventRecommendationCreated, map[string]interface{}{
		"entity_name":         c.Name,
		"recommendation_type": rec.Type,
		"action":              rec.Action,
		"rationale":           rec.Rationale,
		"gaps_count":          len(gaps),
	})

	_, err := a.store.AppendEvent(store.ReasoningEvent{
		EventType:  store.EventRecommendationCreated,
		EntityType: "business_concept",
		EntityID:   c.ID,
		EntityName: c.Name,
		Context: map[string]interface{}{
			"date":                date,
			"recommendation_type": rec.Type,
			"action":              rec.Action,
			"rationale":           rec.Rationale,
			"target_column":       rec.TargetColumn,
			"validation_required": rec.Validation,
			"gaps_addressed":      len(gaps),
		},
		Metrics: map[string]interface{}{
			"gap_count":     len(gaps),
			"current_score": currentScore,
		},
		Explanation: explanation,
	})
	return rec, err
}

// Step 10: snapshot the learning state.
func (a *Agent) stepUpdateLearning(ctx context.Context, date string, day int) error {
	summary := a.mem.Snapshot()
	explanation := a.oracle.GenerateExplanation(ctx, store.EventLearningUpdated, map[string]interface{}{
		"day":                      day,
		"date":                     date,
		"preferred_recommendation": summary.PreferredType,
		"outcomes_recorded":        summary.OutcomesRecorded,
		"attention_weights":        summary.AttentionWeights,
	})
	_, err := a.store.AppendEvent(store.ReasoningEvent{
		EventType:  store.EventLearningUpdated,
		EntityType: "system",
		EntityID:   "agent",
		EntityName: "DataStewardAgent",
		Context: map[string]interface{}{
			"date":                     date,
			"day_number":               day,
			"focus_history_last5":      summary.FocusHistoryLast5,
			"preferred_recommendation": summary.PreferredType,
		},
		Metrics: map[string]interface{}{
			"outcomes_recorded": summary.OutcomesRecorded,
			"attention_weights": summary.AttentionWeights,
			"effectiveness":     summary.Effectiveness,
		},
		Explanation: explanation,
	})
	return err
}

// primaryScore is today's score of the concept's first element, 0 when
// unmeasured.
func (a *Agent) primaryScore(c store.GovernedConcept, date string) (float64, error) {
	elements, err := a.store.ElementsForConcept(c.ID)
	if err != nil {
		return 0, err
	}
	if len(elements) == 0 {
		return 0, nil
	}
	score, ok, err := a.store.Score(elements[0].ID, date)
	if err != nil || !ok {
		return 0, err
	}
	return score, nil
}

func severityCode(severity string) int {
	switch severity {
	case policy.SeverityCritical:
		return 3
	case policy.SeverityHigh:
		return 2
	default:
		return 1
	}
}

// dedupeStrings keeps the first occurrence of each value.
func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
