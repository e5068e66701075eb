package command

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// Schema builds an object schema from properties and required keys.
func Schema(properties map[string]any, required ...string) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// Property builds a property schema of the given JSON type.
func Property(typ, description string) map[string]any {
	p := map[string]any{"type": typ}
	if description != "" {
		p["description"] = description
	}
	return p
}

// Enum builds a string property restricted to values.
func Enum(description string, values ...string) map[string]any {
	p := Property("string", description)
	p["enum"] = values
	return p
}

// Validator checks input objects against a compiled object schema.
type Validator struct {
	root     *jsonschema.Resolved
	props    map[string]*jsonschema.Resolved
	required []string
}

// CompileSchema resolves schema and each of its properties once so that
// failures can be reported against the offending key.
func CompileSchema(schema map[string]any) (*Validator, error) {
	if schema == nil {
		schema = Schema(nil)
	}
	root, err := decodeSchema(schema)
	if err != nil {
		return nil, err
	}
	v := &Validator{props: make(map[string]*jsonschema.Resolved, len(root.Properties)), required: root.Required}
	if v.root, err = root.Resolve(&jsonschema.ResolveOptions{}); err != nil {
		return nil, fmt.Errorf("resolving schema: %w", err)
	}
	for key, prop := range root.Properties {
		// Resolve a private copy; a Schema belongs to one resolution.
		sub, err := decodeSchema(prop)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", key, err)
		}
		if v.props[key], err = sub.Resolve(&jsonschema.ResolveOptions{}); err != nil {
			return nil, fmt.Errorf("property %s: %w", key, err)
		}
	}
	return v, nil
}

// Validate reports the first problem as an invalid_input *Error. Required
// keys must be present and non-null; null optional keys are ignored.
// Undeclared keys are accepted unless the schema says otherwise.
func (v *Validator) Validate(inputs map[string]any) error {
	for _, key := range v.required {
		if val, ok := inputs[key]; !ok || val == nil {
			return InvalidInput(key, "is required")
		}
	}

	keys := make([]string, 0, len(inputs))
	present := make(map[string]any, len(inputs))
	for k, val := range inputs {
		if val == nil {
			continue
		}
		keys = append(keys, k)
		present[k] = val
	}
	sort.Strings(keys)

	for _, key := range keys {
		prop, ok := v.props[key]
		if !ok {
			continue
		}
		if err := prop.Validate(present[key]); err != nil {
			return &Error{Code: CodeInvalidInput, Message: describe(err), Path: key, Cause: err}
		}
	}
	if err := v.root.Validate(present); err != nil {
		return &Error{Code: CodeInvalidInput, Message: describe(err), Cause: err}
	}
	return nil
}

// ValidateInputs compiles schema and validates inputs against it. A schema
// that does not compile is an internal error.
func ValidateInputs(schema map[string]any, inputs map[string]any) error {
	v, err := CompileSchema(schema)
	if err != nil {
		return Wrap(CodeInternal, fmt.Sprintf("invalid schema: %v", err), err)
	}
	return v.Validate(inputs)
}

func decodeSchema(v any) (*jsonschema.Schema, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding schema: %w", err)
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding schema: %w", err)
	}
	return &s, nil
}

// describe drops the "validating <schema>: " frames the library adds.
func describe(err error) string {
	msg := err.Error()
	for strings.HasPrefix(msg, "validating ") {
		i := strings.Index(msg, ": ")
		if i < 0 {
			break
		}
		msg = msg[i+2:]
	}
	return msg
}

// RequiredKeys returns the schema's "required" list whatever its decoded
// form ([]string from Go literals, []any from JSON or YAML).
func RequiredKeys(schema map[string]any) []string {
	return stringList(schema["required"])
}

// DecodeInputs converts validated inputs into a typed struct via JSON.
func DecodeInputs(inputs map[string]any, dst any) error {
	data, err := json.Marshal(inputs)
	if err != nil {
		return Wrap(CodeInvalidInput, "inputs are not JSON-encodable", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return Wrap(CodeInvalidInput, fmt.Sprintf("decoding inputs: %v", err), err)
	}
	return nil
}

func stringList(v any) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
