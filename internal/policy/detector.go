package policy

import (
	"fmt"
	"sort"
	"strings"

	"datasteward/internal/logging"
	"datasteward/internal/scanner"
)

// Gap severities, strongest first.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
)

// Gap records one detected mismatch between a policy requirement and what a
// pipeline body implements.
type Gap struct {
	ColumnName        string
	SemanticType      string
	MissingValidation string // e.g. "not_null", "format", "masking"
	ForbiddenFound    string // scanner pattern that triggered it, or "plain_select"
	Severity          string
	Description       string
}

// scannerToOntology translates scanner pattern categories to the ontology's
// forbidden-transformation keys. General casts fold into the integer-cast
// policy since both endanger amount semantics.
var scannerToOntology = map[string]string{
	"cast_integer": "cast_integer",
	"cast":         "cast_integer",
	"coalesce":     "coalesce",
	"lower":        "lower",
	"concat_pii":   "concat_pii",
	"lpad":         "concat_fallback",
	"replace":      "concat_fallback",
}

// patternImpliesMissing expands a (semantic type, observed pattern) pair to
// the validations that pattern compromises.
var patternImpliesMissing = map[[2]string][]string{
	{"email", "coalesce"}:      {"not_null", "format"},
	{"amount", "cast_integer"}: {"numeric", "range"},
	{"amount", "coalesce"}:     {"range"},
	{"id", "coalesce"}:         {"uniqueness"},
	{"id", "lpad"}:             {"format"},
	{"pii", "concat_pii"}:      {"masking"},
	{"pii", "lower"}:           {"masking"},
}

func severityFor(validation, semanticType string) string {
	if validation == "masking" || semanticType == "pii" {
		return SeverityCritical
	}
	if validation == "uniqueness" || validation == "not_null" || semanticType == "id" {
		return SeverityHigh
	}
	return SeverityMedium
}

// DetectGaps compares the ontology's requirements for each semantically
// typed column against the scanner's findings for one pipeline model.
// Output is deduplicated by (column, missing validation) keeping the first
// occurrence, then stably ordered critical > high > medium. The result is a
// pure function of its inputs.
func DetectGaps(ont Ontology, columnTypes map[string]string, scan scanner.Result) []Gap {
	observed := observedPatterns(scan.Transformations)

	// Iterate columns in sorted order so the pre-sort gap order, and
	// therefore dedup, is deterministic.
	columns := make([]string, 0, len(columnTypes))
	for col := range columnTypes {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	var gaps []Gap
	for _, col := range columns {
		semType := strings.ToLower(columnTypes[col])
		entry, ok := ont[semType]
		if !ok {
			continue
		}

		for _, pattern := range observed {
			key, ok := scannerToOntology[pattern]
			if !ok || !contains(entry.ForbiddenTransformations, key) {
				continue
			}
			for _, missing := range patternImpliesMissing[[2]string{semType, pattern}] {
				if !contains(entry.RequiredValidations, missing) {
					continue
				}
				gaps = append(gaps, Gap{
					ColumnName:        col,
					SemanticType:      semType,
					MissingValidation: missing,
					ForbiddenFound:    pattern,
					Severity:          severityFor(missing, semType),
					Description: fmt.Sprintf(
						"Column '%s' (%s) uses '%s' transformation which violates the '%s' policy requirement. The ontology forbids '%s' for semantic type '%s'.",
						col, semType, pattern, missing, key, semType),
				})
			}
		}

		// PII materialised in plain text always needs masking, with or
		// without a transformation finding.
		if semType == "pii" && contains(scan.PIIExposed, col) {
			gaps = append(gaps, Gap{
				ColumnName:        col,
				SemanticType:      "pii",
				MissingValidation: "masking",
				ForbiddenFound:    "plain_select",
				Severity:          SeverityCritical,
				Description: fmt.Sprintf(
					"Column '%s' contains PII data and is materialised in plain text without masking, tokenisation, or encryption. This violates the PII masking policy for analytical data products.",
					col),
			})
		}
	}

	gaps = dedupeGaps(gaps)
	sort.SliceStable(gaps, func(i, j int) bool {
		return severityRank(gaps[i].Severity) < severityRank(gaps[j].Severity)
	})

	logging.Policy("model %s: %d gaps after dedup", scan.ModelName, len(gaps))
	return gaps
}

// observedPatterns returns the distinct pattern categories in sorted order.
func observedPatterns(findings []scanner.TransformationFinding) []string {
	set := make(map[string]struct{}, len(findings))
	for _, f := range findings {
		set[f.PatternType] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func dedupeGaps(gaps []Gap) []Gap {
	seen := make(map[[2]string]struct{}, len(gaps))
	out := gaps[:0]
	for _, g := range gaps {
		key := [2]string{g.ColumnName, g.MissingValidation}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, g)
	}
	return out
}

func severityRank(s string) int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	default:
		return 3
	}
}
