package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	reflectschema "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaBaseURL = "https://arcanecycles.io/schemas/"

// schemaTypes lists the client-facing messages that get a JSON schema.
var schemaTypes = map[string]any{
	"hello":   &HelloMsg{},
	"welcome": &WelcomeMsg{},
	"act":     &ActMsg{},
	"result":  &ResultMsg{},
	"event":   &EventMsg{},
}

// Schemas reflects the protocol structs into JSON schema documents keyed by
// file name (e.g. "act.schema.json").
func Schemas() (map[string][]byte, error) {
	r := &reflectschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	out := make(map[string][]byte, len(schemaTypes))
	for name, v := range schemaTypes {
		s := r.Reflect(v)
		s.ID = reflectschema.ID(schemaBaseURL + name + ".schema.json")
		b, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal %s schema: %w", name, err)
		}
		out[name+".schema.json"] = append(b, '\n')
	}
	return out, nil
}

// SchemaNames returns the schema file names in stable order.
func SchemaNames() []string {
	names := make([]string, 0, len(schemaTypes))
	for name := range schemaTypes {
		names = append(names, name+".schema.json")
	}
	sort.Strings(names)
	return names
}

// Validator checks inbound client messages against the reflected schemas.
type Validator struct {
	hello *jsonschema.Schema
	act   *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	docs, err := Schemas()
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	for name, b := range docs {
		if err := c.AddResource(schemaBaseURL+name, bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
	}
	v := &Validator{}
	if v.hello, err = c.Compile(schemaBaseURL + "hello.schema.json"); err != nil {
		return nil, fmt.Errorf("compile hello schema: %w", err)
	}
	if v.act, err = c.Compile(schemaBaseURL + "act.schema.json"); err != nil {
		return nil, fmt.Errorf("compile act schema: %w", err)
	}
	return v, nil
}

func (v *Validator) ValidateHello(raw []byte) error { return validateRaw(v.hello, raw) }
func (v *Validator) ValidateAct(raw []byte) error   { return validateRaw(v.act, raw) }

func validateRaw(s *jsonschema.Schema, raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return s.Validate(doc)
}
