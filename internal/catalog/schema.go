package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

const schemaID = "https://github.com/rollbear/crpcut/schemas/catalog-v1.json"

// JSONSchema describes both accepted forms of a log entry.
func (LogEntry) JSONSchema() *jsonschema.Schema {
	props := jsonschema.NewProperties()
	props.Set("type", &jsonschema.Schema{Type: "string"})
	props.Set("pattern", &jsonschema.Schema{Type: "string"})
	props.Set("flavor", &jsonschema.Schema{Type: "string", Enum: []any{string(FlavorRE2), string(FlavorRegexp2)}})

	return &jsonschema.Schema{
		AnyOf: []*jsonschema.Schema{
			{
				Type:        "object",
				Properties:  props,
				Required:    []string{"type", "pattern"},
				Description: "log expectation with explicit fields",
			},
			{
				Type:                 "object",
				AdditionalProperties: &jsonschema.Schema{Type: "string"},
				Description:          "shorthand `type: pattern`",
			},
		},
	}
}

// GenerateJSONSchema produces the JSON Schema of the catalog file format.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&File{})
	s.ID = schemaID
	s.Title = "crpcut self-test expectation catalog"
	s.Description = "Expected outcome of every subject test, keyed by test id"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}

// SchemaViolation is one schema validation failure.
type SchemaViolation struct {
	Path    string
	Message string
}

func (v SchemaViolation) String() string {
	if v.Path == "" {
		return v.Message
	}
	return "/" + v.Path + ": " + v.Message
}

// ValidateSchema checks a YAML or JSON catalog document against the catalog
// JSON Schema. An error is returned only if validation could not be carried
// out at all.
func ValidateSchema(data []byte) ([]SchemaViolation, error) {
	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return nil, err
	}
	schemaDoc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource(schemaID, schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := c.Compile(schemaID)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	// YAML is a superset of JSON; normalise through JSON so the validator
	// sees plain JSON types.
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return []SchemaViolation{{Message: fmt.Sprintf("document is not valid YAML: %v", err)}}, nil
	}
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert document: %w", err)
	}
	doc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}

	err = sch.Validate(doc)
	if err == nil {
		return nil, nil
	}
	ve, ok := err.(*sjsonschema.ValidationError)
	if !ok {
		return []SchemaViolation{{Message: err.Error()}}, nil
	}
	var out []SchemaViolation
	for _, cause := range flattenValidationErrors(ve) {
		out = append(out, SchemaViolation{
			Path:    strings.Join(cause.InstanceLocation, "/"),
			Message: fmt.Sprintf("%v", cause.ErrorKind),
		})
	}
	return out, nil
}

func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}
