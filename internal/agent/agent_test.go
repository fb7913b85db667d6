package agent

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"datasteward/internal/config"
	"datasteward/internal/memory"
	"datasteward/internal/oracle"
	"datasteward/internal/policy"
	"datasteward/internal/scanner"
	"datasteward/internal/seed"
	"datasteward/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestAgent(t *testing.T, seeded bool) (*Agent, *store.LocalStore) {
	t.Helper()
	st, err := store.NewLocalStore(filepath.Join(t.TempDir(), "agent_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	if seeded {
		require.NoError(t, seed.Populate(st, "2026-01-01", 30))
	}

	cfg := config.DefaultConfig().Risk
	a := New(st, oracle.NewCachedClient(oracle.NewStaticOracle()), policy.DefaultOntology(), cfg)
	return a, st
}

func TestRunDailyCycleEmptyCatalog(t *testing.T) {
	a, st := newTestAgent(t, false)

	result, err := a.RunDailyCycle(context.Background(), "2026-01-01", 1)
	require.NoError(t, err)
	require.Equal(t, "no_terms", result.Status)

	counts, err := st.EventCountsByType()
	require.NoError(t, err)
	require.Empty(t, counts, "empty catalog must emit no events")
}

func TestRunDailyCycleFullDay(t *testing.T) {
	a, st := newTestAgent(t, true)

	result, err := a.RunDailyCycle(context.Background(), "2026-01-01", 1)
	require.NoError(t, err)
	require.Equal(t, "ok", result.Status)

	// Day 1: revenue scores sit well below both thresholds while email and
	// transaction elements are healthy, so Revenue Amount must win focus.
	require.Equal(t, "Revenue Amount", result.FocusName)
	require.Greater(t, result.RiskScore, 0.0)
	require.Greater(t, result.BreachCount, 0)
	require.Greater(t, result.GapCount, 0)
	require.Equal(t, memory.RecAddValidation, result.RecType)

	counts, err := st.EventCountsByType()
	require.NoError(t, err)
	require.Equal(t, 3, counts[store.EventRiskAssessed], "one risk_assessed per concept")
	require.Equal(t, 1, counts[store.EventFocusSelected])
	require.Equal(t, 1, counts[store.EventInvestigationStarted])
	require.Equal(t, 1, counts[store.EventLineageTraced])
	require.Equal(t, 1, counts[store.EventSQLAnalysisCompleted], "revenue lineage spans one model")
	require.Equal(t, 1, counts[store.EventRecommendationCreated])
	require.Equal(t, 1, counts[store.EventLearningUpdated])
	require.Greater(t, counts[store.EventRuleBreached], 0)
	require.Greater(t, counts[store.EventPolicyGapDetected], 0)
	// First cycle for a concept has nothing pending to measure.
	require.Zero(t, counts[store.EventOutcomeMeasured])
}

func TestOutcomeMeasuredOnRepeatFocus(t *testing.T) {
	a, st := newTestAgent(t, true)
	ctx := context.Background()

	_, err := a.RunDailyCycle(ctx, "2026-01-01", 1)
	require.NoError(t, err)

	// Revenue keeps breaching on day 2, so the same concept is refocused
	// and the prior recommendation's outcome gets measured.
	result, err := a.RunDailyCycle(ctx, "2026-01-02", 2)
	require.NoError(t, err)
	require.Equal(t, "Revenue Amount", result.FocusName)

	counts, err := st.EventCountsByType()
	require.NoError(t, err)
	require.Equal(t, 1, counts[store.EventOutcomeMeasured])

	outcomes := a.Memory().Outcomes()
	require.Len(t, outcomes, 1)
	require.Equal(t, "BC002", outcomes[0].ConceptID)
}

func TestBreachBoostsAttentionAcrossCycles(t *testing.T) {
	a, _ := newTestAgent(t, true)
	ctx := context.Background()

	_, err := a.RunDailyCycle(ctx, "2026-01-01", 1)
	require.NoError(t, err)
	require.Greater(t, a.Memory().Attention("BC002"), 1.0, "breaching concept gains attention")
}

func TestRunSimulationCoversAllDays(t *testing.T) {
	a, st := newTestAgent(t, true)

	var seen []int
	results, err := a.RunSimulation(context.Background(), "2026-01-01", 5, func(r CycleResult) {
		seen = append(seen, r.Day)
	})
	require.NoError(t, err)
	require.Len(t, results, 5)
	require.Equal(t, []int{1, 2, 3, 4, 5}, seen)

	counts, err := st.EventCountsByType()
	require.NoError(t, err)
	require.Equal(t, 5, counts[store.EventLearningUpdated])
	require.Equal(t, 5, counts[store.EventFocusSelected])

	for eventType := range counts {
		require.True(t, store.IsValidEventType(eventType), "unexpected event type %q", eventType)
	}
}

func TestRunSimulationHonorsContext(t *testing.T) {
	a, _ := newTestAgent(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := a.RunSimulation(ctx, "2026-01-01", 5, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, results)
}

func TestChooseRecommendationPriority(t *testing.T) {
	mem := memory.NewLearningMemory()

	criticalPII := policy.Gap{
		ColumnName:        "full_name",
		SemanticType:      "pii",
		MissingValidation: "masking",
		Severity:          policy.SeverityCritical,
	}
	highGap := policy.Gap{
		ColumnName:        "order_id",
		SemanticType:      "id",
		MissingValidation: "uniqueness",
		ForbiddenFound:    "coalesce",
		Severity:          policy.SeverityHigh,
	}

	// PII masking wins outright regardless of order.
	rec := chooseRecommendation([]policy.Gap{highGap, criticalPII}, scannerResultWithFlags("JOIN_PRESENT: 1 join(s) detected"), mem)
	require.Equal(t, memory.RecAddValidation, rec.Type)
	require.Equal(t, "full_name", rec.TargetColumn)
	require.Equal(t, "masking", rec.Validation)

	// Without PII, the top gap drives an add_validation.
	rec = chooseRecommendation([]policy.Gap{highGap}, scannerResultWithFlags(), mem)
	require.Equal(t, memory.RecAddValidation, rec.Type)
	require.Equal(t, "order_id", rec.TargetColumn)

	// A move_earlier preference switches the gap branch.
	mem.RecordPendingRecommendation(1, "x", memory.RecMoveEarlier, 0.8)
	mem.RecordOutcome(2, "x", memory.RecMoveEarlier, 0.9)
	rec = chooseRecommendation([]policy.Gap{highGap}, scannerResultWithFlags(), mem)
	require.Equal(t, memory.RecMoveEarlier, rec.Type)

	// No gaps: first scan flag drives a generic validation.
	rec = chooseRecommendation(nil, scannerResultWithFlags("COALESCE: null masking detected - root cause obscured"), memory.NewLearningMemory())
	require.Equal(t, memory.RecAddValidation, rec.Type)
	require.Equal(t, "multiple", rec.TargetColumn)
	require.Equal(t, "format", rec.Validation)

	// Nothing at all: threshold review fallback.
	rec = chooseRecommendation(nil, scannerResultWithFlags(), memory.NewLearningMemory())
	require.Equal(t, memory.RecAdjustThreshold, rec.Type)
	require.Equal(t, "n/a", rec.TargetColumn)
}

func scannerResultWithFlags(flags ...string) scanner.Result {
	return scanner.Result{SummaryFlags: flags}
}
