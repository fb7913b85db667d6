package oracle

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// StaticOracle is a deterministic, offline implementation of the oracle
// contract built on name and keyword heuristics. It backs keyless runs and
// tests; answers are advisory only, exactly like the live oracle's.
type StaticOracle struct{}

// NewStaticOracle returns the offline oracle.
func NewStaticOracle() *StaticOracle {
	return &StaticOracle{}
}

var ruleKeywords = []struct {
	category string
	re       *regexp.Regexp
}{
	{"not_null", regexp.MustCompile(`(?i)null|missing|complete|populated`)},
	{"uniqueness", regexp.MustCompile(`(?i)unique|duplicate|distinct`)},
	{"masking", regexp.MustCompile(`(?i)mask|token|encrypt|redact|pii`)},
	{"range", regexp.MustCompile(`(?i)range|between|exceed|bound|minimum|maximum`)},
	{"numeric", regexp.MustCompile(`(?i)numeric|decimal|precision|number`)},
	{"format", regexp.MustCompile(`(?i)format|pattern|match|valid|syntax`)},
}

func (s *StaticOracle) InterpretRule(_ context.Context, ruleDescription string) string {
	for _, k := range ruleKeywords {
		if k.re.MatchString(ruleDescription) {
			return k.category
		}
	}
	return FallbackRuleCategory
}

var semanticNameHints = []struct {
	semType string
	re      *regexp.Regexp
}{
	{"email", regexp.MustCompile(`(?i)email|e_mail`)},
	{"pii", regexp.MustCompile(`(?i)full_name|first_name|last_name|surname|date_of_birth|dob|ssn|phone|address|passport`)},
	{"amount", regexp.MustCompile(`(?i)amount|revenue|price|cost|total|balance`)},
	{"id", regexp.MustCompile(`(?i)_id$|^id$|_key$|identifier`)},
	{"date", regexp.MustCompile(`(?i)date|_at$|timestamp|day`)},
	{"numeric", regexp.MustCompile(`(?i)count|qty|quantity|rate|score`)},
}

func (s *StaticOracle) InferSemanticTypes(_ context.Context, _ string, columns []string) map[string]string {
	out := make(map[string]string, len(columns))
	for _, col := range columns {
		out[col] = "text"
		for _, h := range semanticNameHints {
			if h.re.MatchString(col) {
				out[col] = h.semType
				break
			}
		}
	}
	return out
}

func (s *StaticOracle) DetectRiskyTransformations(_ context.Context, sqlText string) []RiskFinding {
	var findings []RiskFinding
	upper := strings.ToUpper(sqlText)
	if strings.Contains(upper, "CAST(") || strings.Contains(upper, "CAST (") {
		findings = append(findings, RiskFinding{
			TransformationType: "cast",
			ColumnAffected:     "multiple",
			RiskDescription:    "Type casting may lose precision or alter value semantics.",
			Severity:           "medium",
		})
	}
	if strings.Contains(upper, "COALESCE(") {
		findings = append(findings, RiskFinding{
			TransformationType: "coalesce",
			ColumnAffected:     "multiple",
			RiskDescription:    "Null substitution hides missing data instead of fixing the source.",
			Severity:           "medium",
		})
	}
	if strings.Contains(upper, "JOIN ") {
		findings = append(findings, RiskFinding{
			TransformationType: "join",
			ColumnAffected:     "multiple",
			RiskDescription:    "Join conditions can fan out rows and duplicate measures.",
			Severity:           "low",
		})
	}
	return findings
}

func (s *StaticOracle) GenerateExplanation(_ context.Context, eventType string, eventContext map[string]interface{}) string {
	entity := "the affected data asset"
	if v, ok := eventContext["entity_name"].(string); ok && v != "" {
		entity = fmt.Sprintf("'%s'", v)
	}
	switch eventType {
	case "focus_selected":
		return fmt.Sprintf("Attention has shifted to %s because it currently carries the highest adjusted risk across the governed portfolio. Downstream consumers relying on this asset face the greatest exposure until the underlying quality issue is resolved.", entity)
	case "recommendation_created":
		return fmt.Sprintf("A remediation has been proposed for %s to close the observed compliance gap. Acting on it is expected to restore quality scores over the coming measurement cycles.", entity)
	case "outcome_measured":
		return fmt.Sprintf("The effect of an earlier remediation on %s has now been measured against its recorded baseline. The observed movement feeds back into how aggressively this asset is prioritised going forward.", entity)
	default:
		return FallbackExplanation(eventType, eventContext)
	}
}
