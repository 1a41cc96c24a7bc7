package analyze

import "github.com/lexfield/contract-insight/constants"

// BuildAnalysisJSONSchema returns the JSON schema for the structured
// analysis reply. Model output is validated against it before merging, so
// a malformed reply never reaches the merge step.
func BuildAnalysisJSONSchema() map[string]any {
	clauseTypes := toAnySlice(constants.ClauseTypeStrings())
	entityTypes := toAnySlice(constants.EntityTypeStrings())

	return map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"title": map[string]any{
				"type": "string",
			},
			"parties": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties": map[string]any{
						"name": map[string]any{"type": "string"},
						"role": map[string]any{"type": "string"},
					},
					"required": []any{"name"},
				},
			},
			"effective_date": map[string]any{
				"type": "string",
			},
			"termination_date": map[string]any{
				"type": "string",
			},
			"clauses": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties": map[string]any{
						"type": map[string]any{
							"type": "string",
							"enum": clauseTypes,
						},
						"segment_from": map[string]any{
							"type":    "integer",
							"minimum": 0,
						},
						"segment_to": map[string]any{
							"type":    "integer",
							"minimum": 0,
						},
						"text": map[string]any{"type": "string"},
						"confidence": map[string]any{
							"type":    "number",
							"minimum": 0,
							"maximum": 1,
						},
					},
					"required": []any{"type", "segment_from", "segment_to", "confidence"},
				},
			},
			"entities": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties": map[string]any{
						"type": map[string]any{
							"type": "string",
							"enum": entityTypes,
						},
						"value": map[string]any{"type": "string"},
						"confidence": map[string]any{
							"type":    "number",
							"minimum": 0,
							"maximum": 1,
						},
					},
					"required": []any{"type", "value", "confidence"},
				},
			},
			"obligations": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties": map[string]any{
						"party": map[string]any{"type": "string"},
						"obligations": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "string"},
						},
					},
					"required": []any{"party", "obligations"},
				},
			},
		},
		"required": []any{"clauses", "entities"},
	}
}

// BuildVerifyJSONSchema returns the JSON schema for a single-candidate
// verdict reply.
func BuildVerifyJSONSchema() map[string]any {
	return map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"verdict": map[string]any{
				"type": "string",
				"enum": []any{verdictConfirm, verdictAdjust, verdictReject},
			},
			"segment_from": map[string]any{
				"type":    "integer",
				"minimum": 0,
			},
			"segment_to": map[string]any{
				"type":    "integer",
				"minimum": 0,
			},
			"text": map[string]any{"type": "string"},
			"confidence": map[string]any{
				"type":    "number",
				"minimum": 0,
				"maximum": 1,
			},
		},
		"required": []any{"verdict", "confidence"},
	}
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
