// Package oracle is the semantic interpretation layer. It answers four
// advisory questions (rule category, column semantic types, risky
// transformations, event narratives) and never makes governance
// decisions. Every capability degrades to a documented deterministic
// default when the backing model is unavailable, so a total outage
// reduces output quality but never halts a cycle.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Semantic type vocabulary the oracle labels columns with.
var SemanticTypes = []string{"email", "amount", "id", "pii", "text", "date", "numeric"}

// Validation categories a rule description can classify into.
var ValidationCategories = []string{"not_null", "format", "numeric", "range", "uniqueness", "masking"}

// RiskFinding is one model-reported risky transformation.
type RiskFinding struct {
	TransformationType string `json:"transformation_type"`
	ColumnAffected     string `json:"column_affected"`
	RiskDescription    string `json:"risk_description"`
	Severity           string `json:"severity"`
}

// Client is the semantic oracle contract. Implementations own their retry
// and fallback behaviour; callers always receive a usable value.
type Client interface {
	// InterpretRule classifies a rule description into one validation
	// category. Falls back to "format".
	InterpretRule(ctx context.Context, ruleDescription string) string

	// InferSemanticTypes labels each candidate column with a semantic
	// type. Falls back to "text" for every column.
	InferSemanticTypes(ctx context.Context, sqlText string, columns []string) map[string]string

	// DetectRiskyTransformations lists model-judged risky transformations
	// in a SQL body. Falls back to an empty list.
	DetectRiskyTransformations(ctx context.Context, sqlText string) []RiskFinding

	// GenerateExplanation writes a short narrative for a reasoning event.
	// Falls back to a template string.
	GenerateExplanation(ctx context.Context, eventType string, eventContext map[string]interface{}) string
}

// FallbackRuleCategory is the safe default when rule classification fails.
const FallbackRuleCategory = "format"

// FallbackSemanticTypes labels every column "text".
func FallbackSemanticTypes(columns []string) map[string]string {
	out := make(map[string]string, len(columns))
	for _, c := range columns {
		out[c] = "text"
	}
	return out
}

// FallbackExplanation is the templated narrative used when generation fails.
func FallbackExplanation(eventType string, eventContext map[string]interface{}) string {
	entity := "entity"
	if v, ok := eventContext["entity_name"].(string); ok && v != "" {
		entity = v
	}
	return fmt.Sprintf("Governance event '%s' recorded for %s. Further investigation is required to assess impact on downstream consumers.",
		eventType, entity)
}

var fenceRe = regexp.MustCompile("(?i)```(?:json)?")

// parseJSON extracts a JSON value from model output, tolerating markdown
// fences. Returns false when nothing parseable remains.
func parseJSON(text string, v interface{}) bool {
	clean := strings.TrimSpace(fenceRe.ReplaceAllString(text, ""))
	clean = strings.Trim(clean, "`")
	clean = strings.TrimSpace(clean)
	return json.Unmarshal([]byte(clean), v) == nil
}

// normalizeCategory maps a free-form classification answer onto the valid
// category vocabulary, defaulting to the fallback.
func normalizeCategory(answer string) string {
	lower := strings.ToLower(strings.TrimSpace(answer))
	for _, cat := range ValidationCategories {
		if strings.Contains(lower, cat) {
			return cat
		}
	}
	return FallbackRuleCategory
}
