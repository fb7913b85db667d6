package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"datasteward/internal/logging"
)

// Token ceilings per answer shape.
const (
	maxTokensShort  = 64
	maxTokensMedium = 1024
	maxTokensLong   = 512
)

// GeminiOracle answers semantic questions via the Gemini API.
type GeminiOracle struct {
	client *genai.Client
	model  string
}

// NewGeminiOracle creates an oracle backed by the given model.
func NewGeminiOracle(ctx context.Context, apiKey, model string) (*GeminiOracle, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiOracle{client: client, model: model}, nil
}

// complete is the low-level call with a single retry on failure.
func (o *GeminiOracle) complete(ctx context.Context, prompt string, maxTokens int32) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := o.client.Models.GenerateContent(ctx,
			o.model,
			genai.Text(prompt),
			&genai.GenerateContentConfig{MaxOutputTokens: maxTokens},
		)
		if err != nil {
			lastErr = err
			logging.OracleWarn("attempt %d failed: %v", attempt+1, err)
			continue
		}
		return strings.TrimSpace(resp.Text()), nil
	}
	return "", fmt.Errorf("oracle call failed after 2 attempts: %w", lastErr)
}

func (o *GeminiOracle) InterpretRule(ctx context.Context, ruleDescription string) string {
	prompt := "You are a data quality rule classifier for a governance system.\n" +
		"Given the rule description below, respond with EXACTLY ONE of these validation categories and nothing else:\n" +
		"  not_null | format | numeric | range | uniqueness | masking\n\n" +
		"Do not explain. Do not add punctuation. Output only the category name.\n\n" +
		"Rule: " + ruleDescription

	answer, err := o.complete(ctx, prompt, maxTokensShort)
	if err != nil {
		logging.OracleError("interpret rule fell back: %v", err)
		return FallbackRuleCategory
	}
	return normalizeCategory(answer)
}

func (o *GeminiOracle) InferSemanticTypes(ctx context.Context, sqlText string, columns []string) map[string]string {
	if len(columns) == 0 {
		return map[string]string{}
	}
	prompt := fmt.Sprintf(`You are a data governance semantic classifier.
Given the SQL model below, classify each output column's semantic type.
Valid semantic types: email | amount | id | pii | text | date | numeric

Rules:
- email: columns storing email addresses
- amount: monetary, metric, or measurement values
- id: primary/foreign keys and identifiers
- pii: names, birth dates, addresses, SSNs
- date: temporal columns
- numeric: any numeric that is not monetary
- text: general string data

Columns to classify: %s

SQL:
%s

Respond with ONLY a valid JSON object mapping each column name to its semantic type. No explanation, no markdown fences.
Example: {%q: "email"}`, strings.Join(columns, ", "), sqlText, columns[0])

	answer, err := o.complete(ctx, prompt, maxTokensMedium)
	if err != nil {
		logging.OracleError("semantic typing fell back: %v", err)
		return FallbackSemanticTypes(columns)
	}

	var parsed map[string]string
	if !parseJSON(answer, &parsed) {
		logging.OracleWarn("unparseable semantic typing answer, using fallback")
		return FallbackSemanticTypes(columns)
	}
	// Unanswered columns default to text.
	out := make(map[string]string, len(columns))
	for _, col := range columns {
		if t, ok := parsed[col]; ok {
			out[col] = strings.ToLower(t)
		} else {
			out[col] = "text"
		}
	}
	return out
}

func (o *GeminiOracle) DetectRiskyTransformations(ctx context.Context, sqlText string) []RiskFinding {
	prompt := `You are a SQL data governance risk analyst.
Analyse the SQL below for transformations that could compromise data quality.
Focus on:
  - CAST operations that lose precision or change semantics
  - COALESCE that masks nulls instead of fixing the root cause
  - JOINs that can fan out and create duplicate rows
  - String manipulation that could corrupt data formats
  - Date truncation that loses temporal granularity

SQL:
` + sqlText + `

Respond with ONLY a valid JSON array. Each element must have:
  "transformation_type": one of [cast, coalesce, join, string_manipulation, date_truncation]
  "column_affected": the output column name (or "multiple")
  "risk_description": one sentence describing the data quality risk
  "severity": one of [low, medium, high]

No explanation. No markdown. Only the JSON array.`

	answer, err := o.complete(ctx, prompt, maxTokensMedium)
	if err != nil {
		logging.OracleError("risk detection fell back: %v", err)
		return nil
	}
	var findings []RiskFinding
	if !parseJSON(answer, &findings) {
		logging.OracleWarn("unparseable risk detection answer, using fallback")
		return nil
	}
	return findings
}

func (o *GeminiOracle) GenerateExplanation(ctx context.Context, eventType string, eventContext map[string]interface{}) string {
	ctxJSON, err := json.MarshalIndent(eventContext, "", "  ")
	if err != nil {
		ctxJSON = []byte("{}")
	}
	prompt := fmt.Sprintf(`You are an enterprise data steward agent explaining your reasoning to a human data steward.

Event type: %s
Context:
%s

Write 2-3 sentences explaining this governance event. Requirements:
- Use business language, not code or technical jargon
- Be specific about which data asset is affected and why it matters
- Describe the implication for data consumers
- Do NOT start with 'I' or use first-person pronouns
- Do NOT repeat the event type verbatim
Output only the explanation text.`, eventType, ctxJSON)

	answer, err := o.complete(ctx, prompt, maxTokensLong)
	if err != nil {
		logging.OracleError("explanation fell back: %v", err)
		return FallbackExplanation(eventType, eventContext)
	}
	return answer
}
