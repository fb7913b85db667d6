package agent

import (
	"fmt"

	"datasteward/internal/memory"
	"datasteward/internal/policy"
	"datasteward/internal/scanner"
)

// Recommendation is the single remediation a cycle proposes.
type Recommendation struct {
	Type         string // add_validation | move_earlier | adjust_threshold
	Action       string
	TargetColumn string
	Validation   string
	Rationale    string
}

// chooseRecommendation maps the cycle's evidence to one remediation with a
// fixed priority: critical PII masking gap, then the top remaining gap
// (memory may prefer moving the check earlier), then the first scan flag,
// then a threshold review. No randomness anywhere.
func chooseRecommendation(gaps []policy.Gap, scan scanner.Result, mem *memory.LearningMemory) Recommendation {
	preferred := mem.PreferredType()

	if len(gaps) > 0 {
		// A critical PII masking gap wins outright.
		for _, g := range gaps {
			if g.Severity == policy.SeverityCritical && g.MissingValidation == "masking" {
				return Recommendation{
					Type:         memory.RecAddValidation,
					Action:       fmt.Sprintf("Add masking validation for PII column '%s'", g.ColumnName),
					TargetColumn: g.ColumnName,
					Validation:   "masking",
					Rationale: fmt.Sprintf(
						"Column '%s' exposes PII in plain text. A masking or tokenisation step must be added upstream.",
						g.ColumnName),
				}
			}
		}

		top := gaps[0]
		if preferred == memory.RecMoveEarlier {
			return Recommendation{
				Type:         memory.RecMoveEarlier,
				Action:       fmt.Sprintf("Move '%s' validation for '%s' to the staging model", top.MissingValidation, top.ColumnName),
				TargetColumn: top.ColumnName,
				Validation:   top.MissingValidation,
				Rationale: fmt.Sprintf(
					"The '%s' check is applied too late in the pipeline. Moving it to staging prevents corrupt '%s' values from propagating downstream.",
					top.MissingValidation, top.ColumnName),
			}
		}
		return Recommendation{
			Type:         memory.RecAddValidation,
			Action:       fmt.Sprintf("Add '%s' validation for column '%s' (%s)", top.MissingValidation, top.ColumnName, top.SemanticType),
			TargetColumn: top.ColumnName,
			Validation:   top.MissingValidation,
			Rationale: fmt.Sprintf(
				"Policy requires '%s' for semantic type '%s', but this check is absent. Forbidden transform '%s' was detected.",
				top.MissingValidation, top.SemanticType, top.ForbiddenFound),
		}
	}

	if len(scan.SummaryFlags) > 0 {
		flag := scan.SummaryFlags[0]
		return Recommendation{
			Type:         memory.RecAddValidation,
			Action:       "Add data quality test to address: " + flag,
			TargetColumn: "multiple",
			Validation:   "format",
			Rationale: fmt.Sprintf(
				"Static SQL scan identified a risk pattern: %s. Adding an explicit DQ test will surface violations before downstream impact.",
				flag),
		}
	}

	return Recommendation{
		Type:         memory.RecAdjustThreshold,
		Action:       "Review and adjust DQ rule threshold based on current score trajectory",
		TargetColumn: "n/a",
		Validation:   "n/a",
		Rationale:    "No specific SQL pattern gap detected. The threshold may not reflect achievable data quality given current pipeline constraints.",
	}
}
