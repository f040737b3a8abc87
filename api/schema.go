package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/qri-io/jsonschema"

	"github.com/garnizeh/whitelist/pkg/fault"
)

// maxJSONBody caps admin request bodies.
const maxJSONBody = 1 << 20

var (
	createQuestionSchema = mustSchema(`{
		"type": "object",
		"required": ["text", "type"],
		"properties": {
			"text": {"type": "string", "minLength": 1, "maxLength": 1000},
			"type": {"enum": ["text", "textarea", "audio"]},
			"required": {"type": "boolean"}
		}
	}`)

	updateQuestionSchema = mustSchema(`{
		"type": "object",
		"required": ["text", "type", "required", "order"],
		"properties": {
			"text": {"type": "string", "minLength": 1, "maxLength": 1000},
			"type": {"enum": ["text", "textarea", "audio"]},
			"required": {"type": "boolean"},
			"order": {"type": "integer", "minimum": 0}
		}
	}`)

	reorderSchema = mustSchema(`{
		"type": "object",
		"required": ["question_ids"],
		"properties": {
			"question_ids": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}}
		}
	}`)

	reviewSchema = mustSchema(`{
		"type": "object",
		"required": ["status"],
		"properties": {
			"status": {"enum": ["approved", "denied", "revision"]},
			"denial_reason": {"type": "string", "maxLength": 2000},
			"revision_reason": {"type": "string", "maxLength": 2000},
			"revision_question_ids": {"type": "array", "items": {"type": "string"}}
		}
	}`)
)

func mustSchema(src string) *jsonschema.Schema {
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal([]byte(src), rs); err != nil {
		panic(fmt.Sprintf("api: invalid schema: %v", err))
	}
	return rs
}

// decodeValid reads a JSON body, validates it against rs and decodes it into dst.
func decodeValid(r *http.Request, rs *jsonschema.Schema, dst any) error {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody+1))
	if err != nil {
		return fault.Invalid("invalid request body")
	}
	if len(b) > maxJSONBody {
		return fault.Invalid("request body too large")
	}
	if !json.Valid(b) {
		return fault.Invalid("invalid json")
	}

	keyErrs, err := rs.ValidateBytes(r.Context(), b)
	if err != nil {
		return fault.Invalid("invalid json")
	}
	if len(keyErrs) > 0 {
		msgs := make([]string, 0, len(keyErrs))
		for _, ke := range keyErrs {
			msgs = append(msgs, strings.TrimSpace(ke.PropertyPath+" "+ke.Message))
		}
		return fault.Invalid(strings.Join(msgs, "; "))
	}

	if err := json.Unmarshal(b, dst); err != nil {
		return fault.Invalid("invalid json")
	}
	return nil
}
