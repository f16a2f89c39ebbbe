package ai

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// GenerateSchema creates a JSON Schema from the given Go type.
// Fields without omitempty are required and additional properties are
// rejected, which is what strict structured output expects.
func GenerateSchema(value any) any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	v := reflect.New(t).Interface()
	return reflector.Reflect(v)
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func stripDuplicateLeadingBrace(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		rest := strings.TrimSpace(s[1:])
		if strings.HasPrefix(rest, "{") {
			return rest
		}
	}
	return s
}

// RepairJSON turns model output into valid JSON text. It unwraps markdown
// code fences and double-encoded strings before falling back to
// jsonrepair. Output that still is not JSON yields an error.
//
// Example:
//
//	RepairJSON("```json\n{\"a\": 1}\n```") // `{"a": 1}`
//	RepairJSON(`"{\"a\": 1}"`)              // `{"a": 1}`
//	RepairJSON(`{a: 1,}`)                   // `{"a": 1}`
func RepairJSON(input string) (string, error) {
	input = stripCodeFence(input)
	if input == "" {
		return "", fmt.Errorf("empty model output")
	}

	if json.Valid([]byte(input)) {
		var asString string
		if err := json.Unmarshal([]byte(input), &asString); err != nil {
			return input, nil
		}
		input = stripCodeFence(asString)
		if json.Valid([]byte(input)) {
			return input, nil
		}
	}

	input = stripDuplicateLeadingBrace(input)
	repaired, err := jsonrepair.JSONRepair(input)
	if err != nil {
		return "", fmt.Errorf("json repair failed: %w", err)
	}
	if !json.Valid([]byte(repaired)) {
		return "", fmt.Errorf("json repair produced invalid output")
	}
	return repaired, nil
}

// UnmarshalFlexible repairs input with RepairJSON and decodes it into out.
func UnmarshalFlexible(input string, out any) error {
	repaired, err := RepairJSON(input)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("unmarshal failed after repair: %w", err)
	}
	return nil
}
