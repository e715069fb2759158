package spec

import (
	"bytes"
	_ "embed"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tracklab/launch/internal/launcherr"
)

//go:embed runspec.schema.json
var runSpecSchemaJSON []byte

const runSpecSchemaURL = "https://tracklab.ai/schemas/runspec.schema.json"

// runSpecSchema is compiled once at init; the schema is embedded, so a
// compile failure is a build defect, not a runtime condition.
var runSpecSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(runSpecSchemaURL, bytes.NewReader(runSpecSchemaJSON)); err != nil {
		panic(err)
	}
	return compiler.MustCompile(runSpecSchemaURL)
}

// Decode validates a raw queue payload against the run spec schema and
// decodes it. Malformed payloads yield a ValidationError so the agent drops
// the item instead of retrying it.
func Decode(raw []byte) (*Spec, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, launcherr.WrapValidation(err, "run spec payload is not valid JSON")
	}
	if err := runSpecSchema.Validate(doc); err != nil {
		return nil, launcherr.WrapValidation(err, "run spec payload failed schema validation")
	}

	var s Spec
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, launcherr.WrapValidation(err, "run spec payload could not be decoded")
	}
	if s.Resource == "" {
		s.Resource = ResourceLocal
	}
	if s.Parameters == nil {
		s.Parameters = map[string]string{}
	}
	if s.DockerArgs == nil {
		s.DockerArgs = map[string]string{}
	}
	if s.Config == nil {
		s.Config = map[string]any{}
	}
	return &s, nil
}
