package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCatalog(t *testing.T, st *LocalStore) {
	t.Helper()
	require.NoError(t, st.UpsertConcept(GovernedConcept{ID: "BC002", Name: "Revenue Amount", Criticality: 0.95}))
	require.NoError(t, st.UpsertConcept(GovernedConcept{ID: "BC001", Name: "Customer Email", Criticality: 0.90}))
	require.NoError(t, st.UpsertRule(Rule{ID: "R002", ConceptID: "BC001", Description: "email must match format", Threshold: 0.90}))
	require.NoError(t, st.UpsertRule(Rule{ID: "R001", ConceptID: "BC001", Description: "email must not be null", Threshold: 0.95}))
	require.NoError(t, st.UpsertRule(Rule{ID: "R003", ConceptID: "BC002", Description: "revenue must be numeric", Threshold: 0.90}))
	require.NoError(t, st.UpsertElement(MeasuredElement{ID: "DE002", Name: "cleansed_email", ConceptID: "BC001"}))
	require.NoError(t, st.UpsertElement(MeasuredElement{ID: "DE001", Name: "email", ConceptID: "BC001"}))
}

func TestCatalogOrdering(t *testing.T) {
	st := newTestStore(t)
	seedCatalog(t, st)

	concepts, err := st.Concepts()
	require.NoError(t, err)
	require.Len(t, concepts, 2)
	assert.Equal(t, "BC001", concepts[0].ID)
	assert.Equal(t, "BC002", concepts[1].ID)
	assert.InDelta(t, 0.90, concepts[0].Criticality, 1e-9)

	rules, err := st.RulesForConcept("BC001")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "R001", rules[0].ID)
	assert.Equal(t, "R002", rules[1].ID)

	elements, err := st.ElementsForConcept("BC001")
	require.NoError(t, err)
	require.Len(t, elements, 2)
	assert.Equal(t, "DE001", elements[0].ID)
	assert.Equal(t, "DE002", elements[1].ID)
}

func TestRulesForUnknownConceptEmpty(t *testing.T) {
	st := newTestStore(t)
	seedCatalog(t, st)

	rules, err := st.RulesForConcept("BC999")
	require.NoError(t, err)
	assert.Empty(t, rules)

	elements, err := st.ElementsForConcept("BC999")
	require.NoError(t, err)
	assert.Empty(t, elements)
}

func TestScoreMissingIsNotAnError(t *testing.T) {
	st := newTestStore(t)

	_, found, err := st.Score("DE001", "2026-01-01")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, st.UpsertScore("2026-01-01", "DE001", 0.92))
	score, found, err := st.Score("DE001", "2026-01-01")
	require.NoError(t, err)
	assert.True(t, found)
	assert.InDelta(t, 0.92, score, 1e-9)
}

func TestUpsertScoreClampsAndReplaces(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.UpsertScore("2026-01-01", "DE001", 1.4))
	score, found, err := st.Score("DE001", "2026-01-01")
	require.NoError(t, err)
	require.True(t, found)
	assert.InDelta(t, 1.0, score, 1e-9)

	require.NoError(t, st.UpsertScore("2026-01-01", "DE001", -0.2))
	score, _, err = st.Score("DE001", "2026-01-01")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, score, 1e-9)

	require.NoError(t, st.UpsertScore("2026-01-01", "DE001", 0.77))
	score, _, err = st.Score("DE001", "2026-01-01")
	require.NoError(t, err)
	assert.InDelta(t, 0.77, score, 1e-9)
}

func TestRecentScoresWindow(t *testing.T) {
	st := newTestStore(t)
	days := []struct {
		date  string
		score float64
	}{
		{"2026-01-01", 0.80},
		{"2026-01-02", 0.82},
		{"2026-01-03", 0.84},
		{"2026-01-04", 0.86},
		{"2026-01-05", 0.88},
	}
	for _, d := range days {
		require.NoError(t, st.UpsertScore(d.date, "DE001", d.score))
	}
	// A second element's series must not leak into the window.
	require.NoError(t, st.UpsertScore("2026-01-03", "DE002", 0.10))

	scores, err := st.RecentScores("DE001", "2026-01-05", 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.84, 0.86, 0.88}, scores)

	// Anchoring at an earlier date excludes later measurements.
	scores, err = st.RecentScores("DE001", "2026-01-03", 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.80, 0.82, 0.84}, scores)

	// A window larger than the series returns what exists, oldest first.
	scores, err = st.RecentScores("DE001", "2026-01-02", 10)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.80, 0.82}, scores)

	scores, err = st.RecentScores("DE003", "2026-01-05", 3)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestLineageForElement(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.UpsertLineage(LineageMapping{ModelName: "fct_revenue", ColumnName: "revenue_usd", ElementID: "DE003"}))
	require.NoError(t, st.UpsertLineage(LineageMapping{ModelName: "dim_customer", ColumnName: "email", ElementID: "DE003"}))

	mappings, err := st.LineageForElement("DE003")
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	assert.Equal(t, "dim_customer", mappings[0].ModelName)
	assert.Equal(t, "fct_revenue", mappings[1].ModelName)

	// Re-upserting the same mapping does not duplicate it.
	require.NoError(t, st.UpsertLineage(LineageMapping{ModelName: "dim_customer", ColumnName: "email", ElementID: "DE003"}))
	mappings, err = st.LineageForElement("DE003")
	require.NoError(t, err)
	assert.Len(t, mappings, 2)

	mappings, err = st.LineageForElement("DE999")
	require.NoError(t, err)
	assert.Empty(t, mappings)
}

func TestSQLForModel(t *testing.T) {
	st := newTestStore(t)

	_, found, err := st.SQLForModel("dim_customer")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, st.UpsertSQLModel(SQLBody{ModelName: "dim_customer", Text: "SELECT email FROM raw_customers"}))
	text, found, err := st.SQLForModel("dim_customer")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "SELECT email FROM raw_customers", text)

	// Replacing a model body keeps a single row.
	require.NoError(t, st.UpsertSQLModel(SQLBody{ModelName: "dim_customer", Text: "SELECT lower(email) FROM raw_customers"}))
	text, _, err = st.SQLForModel("dim_customer")
	require.NoError(t, err)
	assert.Equal(t, "SELECT lower(email) FROM raw_customers", text)
}
