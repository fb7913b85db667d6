// Package seed loads the synthetic governance catalog and thirty days of
// quality scores used for demonstration runs.
//
// Scenario narrative:
//
//	Days  1-10  Revenue Amount heavily breaches threshold (0.82-0.88 vs 0.90)
//	Days 11-18  Revenue recovers after remediation; Customer Email degrades
//	Days 19-25  Email recovers; Transaction ID hits a uniqueness crisis
//	Days 26-30  All concepts stabilising
package seed

import (
	"fmt"
	"math/rand"
	"time"

	"datasteward/internal/logging"
	"datasteward/internal/store"
)

// Fixed noise seed keeps runs reproducible.
const noiseSeed = 42

// Concepts is the governed business concept catalog.
var Concepts = []store.GovernedConcept{
	{ID: "BC001", Name: "Customer Email", Criticality: 0.90},
	{ID: "BC002", Name: "Revenue Amount", Criticality: 0.95},
	{ID: "BC003", Name: "Transaction ID", Criticality: 0.85},
}

// Rules binds quality thresholds to concepts.
var Rules = []store.Rule{
	{ID: "R001", ConceptID: "BC001", Description: "Email addresses must be non-null and conform to RFC 5322 format specification", Threshold: 0.95},
	{ID: "R002", ConceptID: "BC001", Description: "Email domain must belong to an approved allowlist; unknown domains must be flagged", Threshold: 0.90},
	{ID: "R003", ConceptID: "BC002", Description: "Revenue values must be numeric and within the expected business range of 0 to 10,000,000 USD", Threshold: 0.90},
	{ID: "R004", ConceptID: "BC002", Description: "Revenue fields must not be null and must not carry negative values", Threshold: 0.95},
	{ID: "R005", ConceptID: "BC003", Description: "Transaction identifiers must be globally unique within each 24-hour processing window", Threshold: 0.98},
	{ID: "R006", ConceptID: "BC003", Description: "Transaction IDs must follow the canonical format TXN-YYYYMMDD-NNNNNN with zero-padded sequence", Threshold: 0.92},
}

// Elements are the measured data elements behind each concept.
var Elements = []store.MeasuredElement{
	{ID: "DE001", Name: "customer_email_raw", ConceptID: "BC001"},
	{ID: "DE002", Name: "customer_email_cleansed", ConceptID: "BC001"},
	{ID: "DE003", Name: "revenue_usd", ConceptID: "BC002"},
	{ID: "DE004", Name: "revenue_local_currency", ConceptID: "BC002"},
	{ID: "DE005", Name: "transaction_id_raw", ConceptID: "BC003"},
	{ID: "DE006", Name: "transaction_id_normalized", ConceptID: "BC003"},
}

// Lineage maps pipeline model columns to measured elements.
var Lineage = []store.LineageMapping{
	{ModelName: "dim_customer", ColumnName: "email", ElementID: "DE001"},
	{ModelName: "dim_customer", ColumnName: "cleansed_email", ElementID: "DE002"},
	{ModelName: "fct_revenue", ColumnName: "revenue_usd", ElementID: "DE003"},
	{ModelName: "fct_revenue", ColumnName: "revenue_local", ElementID: "DE004"},
	{ModelName: "fct_transactions", ColumnName: "transaction_id", ElementID: "DE005"},
	{ModelName: "fct_transactions", ColumnName: "normalized_txn_id", ElementID: "DE006"},
}

// SQLModels holds the pipeline SQL bodies the scanner analyses.
var SQLModels = []store.SQLBody{
	{
		ModelName: "dim_customer",
		Text: `-- Customer dimension with light cleansing
WITH raw AS (
    SELECT
        c.customer_id,
        c.email,
        c.first_name,
        c.last_name,
        c.date_of_birth,
        c.created_at
    FROM raw_customers c
)
SELECT
    r.customer_id,
    r.email AS email,
    LOWER(COALESCE(r.email, 'unknown@placeholder.invalid')) AS cleansed_email,
    CONCAT(r.first_name, ' ', r.last_name) AS full_name,
    r.date_of_birth AS date_of_birth,
    DATE_TRUNC('day', r.created_at) AS signup_day
FROM raw r`,
	},
	{
		ModelName: "fct_revenue",
		Text: `-- Revenue fact in USD and local currency
SELECT
    o.order_id,
    CAST(o.revenue AS INTEGER) AS revenue_usd,
    COALESCE(o.revenue_local, 0) AS revenue_local,
    o.currency_code,
    fx.rate
FROM orders o
JOIN fx_rates fx
    ON o.currency_code = fx.currency_code
   AND o.order_date >= fx.valid_from`,
	},
	{
		ModelName: "fct_transactions",
		Text: `-- Transaction fact with normalised identifiers
SELECT
    t.transaction_id AS transaction_id,
    LPAD(REPLACE(t.transaction_id, 'TXN', ''), 14, '0') AS normalized_txn_id,
    t.account_id,
    CAST(t.amount AS INTEGER) AS amount,
    DATE_TRUNC('day', t.processed_at) AS processing_day
FROM raw_transactions t
JOIN accounts a ON t.account_id = a.account_id`,
	},
}

type breakpoint struct {
	day   int
	score float64
}

// scoreProfiles are piecewise-linear quality trajectories per element.
var scoreProfiles = map[string][]breakpoint{
	// Revenue starts below threshold, recovers after day 10.
	"DE003": {{1, 0.820}, {5, 0.835}, {10, 0.865}, {14, 0.905}, {20, 0.930}, {30, 0.945}},
	"DE004": {{1, 0.800}, {5, 0.818}, {10, 0.850}, {14, 0.895}, {20, 0.920}, {30, 0.940}},

	// Customer Email is fine early, degrades days 10-17, recovers.
	"DE001": {{1, 0.960}, {9, 0.952}, {13, 0.880}, {17, 0.910}, {22, 0.950}, {30, 0.970}},
	"DE002": {{1, 0.970}, {9, 0.960}, {13, 0.900}, {17, 0.930}, {22, 0.960}, {30, 0.980}},

	// Transaction ID is mostly fine, crisis days 20-25, recovers.
	"DE005": {{1, 0.984}, {18, 0.982}, {21, 0.960}, {24, 0.945}, {27, 0.985}, {30, 0.990}},
	"DE006": {{1, 0.990}, {18, 0.985}, {21, 0.965}, {24, 0.950}, {27, 0.988}, {30, 0.995}},
}

// profileElementIDs lists the profiled elements in a fixed order so the
// noise table assignment is reproducible.
var profileElementIDs = []string{"DE001", "DE002", "DE003", "DE004", "DE005", "DE006"}

// interpolate linearly interpolates between (day, score) breakpoints.
// Days outside the profile clamp to the endpoints. day is 1-indexed.
func interpolate(day int, bps []breakpoint) float64 {
	if day <= bps[0].day {
		return bps[0].score
	}
	if day >= bps[len(bps)-1].day {
		return bps[len(bps)-1].score
	}
	for i := 0; i < len(bps)-1; i++ {
		b0, b1 := bps[i], bps[i+1]
		if day >= b0.day && day <= b1.day {
			t := float64(day-b0.day) / float64(b1.day-b0.day)
			return b0.score + t*(b1.score-b0.score)
		}
	}
	return bps[len(bps)-1].score
}

// noiseTable precomputes per-element daily jitter from the fixed seed.
func noiseTable(days int) map[string][]float64 {
	rng := rand.New(rand.NewSource(noiseSeed))
	table := make(map[string][]float64, len(profileElementIDs))
	for _, id := range profileElementIDs {
		jitter := make([]float64, days)
		for i := range jitter {
			jitter[i] = -0.008 + rng.Float64()*0.016
		}
		table[id] = jitter
	}
	return table
}

// ScoreFor computes the seeded quality score of an element on a 1-indexed
// simulation day. Scores are clamped to [0, 1].
func ScoreFor(elementID string, day, totalDays int) float64 {
	bps, ok := scoreProfiles[elementID]
	if !ok {
		return 0
	}
	noise := noiseTable(totalDays)
	s := interpolate(day, bps) + noise[elementID][day-1]
	if s < 0 {
		s = 0
	}
	if s > 1 {
		s = 1
	}
	return s
}

// Populate loads the full synthetic catalog and score history into the
// store. Idempotent: upserts throughout, safe to call repeatedly.
func Populate(st *store.LocalStore, startDate string, days int) error {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return fmt.Errorf("parsing start date %q: %w", startDate, err)
	}

	for _, c := range Concepts {
		if err := st.UpsertConcept(c); err != nil {
			return fmt.Errorf("seeding concept %s: %w", c.ID, err)
		}
	}
	for _, r := range Rules {
		if err := st.UpsertRule(r); err != nil {
			return fmt.Errorf("seeding rule %s: %w", r.ID, err)
		}
	}
	for _, e := range Elements {
		if err := st.UpsertElement(e); err != nil {
			return fmt.Errorf("seeding element %s: %w", e.ID, err)
		}
	}
	for _, m := range Lineage {
		if err := st.UpsertLineage(m); err != nil {
			return fmt.Errorf("seeding lineage %s.%s: %w", m.ModelName, m.ColumnName, err)
		}
	}
	for _, b := range SQLModels {
		if err := st.UpsertSQLModel(b); err != nil {
			return fmt.Errorf("seeding sql model %s: %w", b.ModelName, err)
		}
	}

	noise := noiseTable(days)
	for day := 1; day <= days; day++ {
		date := start.AddDate(0, 0, day-1).Format("2006-01-02")
		for _, id := range profileElementIDs {
			s := interpolate(day, scoreProfiles[id]) + noise[id][day-1]
			if err := st.UpsertScore(date, id, s); err != nil {
				return fmt.Errorf("seeding score %s@%s: %w", id, date, err)
			}
		}
	}

	logging.Seed("catalog seeded: %d concepts, %d rules, %d elements, %d days of scores",
		len(Concepts), len(Rules), len(Elements), days)
	return nil
}
