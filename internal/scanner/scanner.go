// Package scanner performs static, regex-based detection of
// governance-relevant transformation patterns in pipeline SQL bodies.
// All analysis is purely lexical/structural; no SQL is ever executed and
// no semantic interpretation happens here. Identical input always yields
// identical output, which lets callers cache results safely.
package scanner

import (
	"fmt"
	"regexp"
	"strings"

	"datasteward/internal/logging"
)

// TransformationFinding records one pattern match inside a SQL body.
type TransformationFinding struct {
	PatternType string // e.g. "coalesce", "cast_integer"
	MatchedText string // the snippet that triggered the match
	LineNumber  int    // approximate 1-indexed line
}

// Result holds everything the scanner extracted from one pipeline model.
type Result struct {
	ModelName       string
	ColumnsDetected []string
	Transformations []TransformationFinding
	PIIExposed      []string
	JoinCount       int
	HasNonEquiJoin  bool
	SummaryFlags    []string
}

// namedPattern keeps the detection order stable across scans.
type namedPattern struct {
	name string
	re   *regexp.Regexp
}

var patterns = []namedPattern{
	{"cast", regexp.MustCompile(`(?i)\bCAST\s*\([^)]+\bAS\s+(\w+)`)},
	{"cast_integer", regexp.MustCompile(`(?i)\bCAST\s*\([^)]+\bAS\s+(?:INTEGER|INT|BIGINT|SMALLINT|TINYINT)\b`)},
	{"coalesce", regexp.MustCompile(`(?i)\bCOALESCE\s*\(`)},
	{"join", regexp.MustCompile(`(?i)\b(?:INNER|LEFT|RIGHT|FULL|CROSS)?\s*JOIN\b`)},
	// Non-equi join condition (<=, >=, <, >) can cause row fan-out.
	{"non_equi_join", regexp.MustCompile(`(?is)\bJOIN\b.*?\bON\b.*?(?:<=|>=|<|>)`)},
	{"lower", regexp.MustCompile(`(?i)\bLOWER\s*\(`)},
	{"upper", regexp.MustCompile(`(?i)\bUPPER\s*\(`)},
	// CONCAT over multiple columns is potential PII assembly.
	{"concat_pii", regexp.MustCompile(`(?i)\bCONCAT\s*\([^)]+,[^)]+\)`)},
	{"lpad", regexp.MustCompile(`(?i)\bLPAD\s*\(`)},
	{"date_truncation", regexp.MustCompile(`(?i)\bDATE_TRUNC\s*\(|\bTRUNC\s*\(`)},
	{"replace", regexp.MustCompile(`(?i)\bREPLACE\s*\(`)},
}

// Column names that suggest PII content.
var piiColumnHints = regexp.MustCompile(`(?i)\b(full_name|date_of_birth|dob|ssn|national_id|passport|phone|address|first_name|last_name|surname|forename|email)\b`)

var (
	selectRe   = regexp.MustCompile(`(?i)\bSELECT\b`)
	fromRe     = regexp.MustCompile(`(?i)\bFROM\b`)
	asAliasRe  = regexp.MustCompile(`(?i)\bAS\s+(\w+)`)
	bareColRe  = regexp.MustCompile(`\b\w+\.(\w+)\b`)
	wildcardRe = regexp.MustCompile(`(?i)\bSELECT\s+\*`)
)

// extractSelectColumns heuristically extracts output column names from the
// final SELECT clause: AS aliases, bare table.column references, and a "*"
// sentinel when SELECT * appears. Order of first appearance is preserved
// with case-insensitive de-duplication.
func extractSelectColumns(sqlText string) []string {
	selects := selectRe.FindAllStringIndex(sqlText, -1)
	if len(selects) == 0 {
		return nil
	}

	start := selects[len(selects)-1][1]
	clause := sqlText[start:]
	if loc := fromRe.FindStringIndex(clause); loc != nil {
		clause = clause[:loc[0]]
	}

	var candidates []string
	for _, m := range asAliasRe.FindAllStringSubmatch(clause, -1) {
		candidates = append(candidates, m[1])
	}
	for _, m := range bareColRe.FindAllStringSubmatch(clause, -1) {
		candidates = append(candidates, m[1])
	}
	if wildcardRe.MatchString(sqlText) {
		candidates = append(candidates, "*")
	}

	seen := make(map[string]struct{}, len(candidates))
	var out []string
	for _, col := range candidates {
		key := strings.ToLower(col)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, col)
	}
	return out
}

// Scan statically analyses one pipeline SQL model for governance-relevant
// patterns.
func Scan(modelName, sqlText string) Result {
	result := Result{ModelName: modelName}
	result.ColumnsDetected = extractSelectColumns(sqlText)

	for _, p := range patterns {
		for _, loc := range p.re.FindAllStringIndex(sqlText, -1) {
			snippet := sqlText[loc[0]:loc[1]]
			if len(snippet) > 120 {
				snippet = snippet[:120]
			}
			result.Transformations = append(result.Transformations, TransformationFinding{
				PatternType: p.name,
				MatchedText: snippet,
				LineNumber:  strings.Count(sqlText[:loc[0]], "\n") + 1,
			})
		}
	}

	for _, t := range result.Transformations {
		switch t.PatternType {
		case "join":
			result.JoinCount++
		case "non_equi_join":
			result.HasNonEquiJoin = true
		}
	}

	// PII exposure: unmasked PII-suggestive column names in the output.
	for _, col := range result.ColumnsDetected {
		if piiColumnHints.MatchString(col) {
			result.PIIExposed = append(result.PIIExposed, col)
		}
	}

	result.SummaryFlags = buildSummaryFlags(&result)

	logging.Scanner("scanned %s: %d columns, %d findings, %d flags",
		modelName, len(result.ColumnsDetected), len(result.Transformations), len(result.SummaryFlags))
	return result
}

// buildSummaryFlags derives the deduplicated human-readable flags from the
// pattern categories that were found.
func buildSummaryFlags(r *Result) []string {
	found := make(map[string]bool, len(r.Transformations))
	for _, t := range r.Transformations {
		found[t.PatternType] = true
	}

	var flags []string
	if found["cast_integer"] {
		flags = append(flags, "INTEGER_CAST: decimal precision at risk")
	} else if found["cast"] {
		flags = append(flags, "CAST: type conversion may alter semantics")
	}
	if found["coalesce"] {
		flags = append(flags, "COALESCE: null masking detected - root cause obscured")
	}
	if r.HasNonEquiJoin {
		flags = append(flags, "NON_EQUI_JOIN: potential row fan-out on join condition")
	} else if r.JoinCount > 0 {
		flags = append(flags, fmt.Sprintf("JOIN_PRESENT: %d join(s) detected", r.JoinCount))
	}
	if found["lower"] || found["upper"] {
		flags = append(flags, "CASE_TRANSFORM: LOWER/UPPER applied - format risk")
	}
	if found["concat_pii"] {
		flags = append(flags, "CONCAT_PII: PII fields concatenated in plain text")
	}
	if len(r.PIIExposed) > 0 {
		flags = append(flags, fmt.Sprintf("PII_EXPOSED: %v present unmasked", r.PIIExposed))
	}
	if found["lpad"] {
		flags = append(flags, "LPAD: ID formatting without null guard")
	}
	if found["date_truncation"] {
		flags = append(flags, "DATE_TRUNCATION: temporal granularity may be lost")
	}
	return flags
}
