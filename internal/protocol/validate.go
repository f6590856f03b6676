package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// Validator checks raw inbound messages against the embedded JSON schemas
// before they are decoded into typed structs.
type Validator struct {
	hello   *jsonschema.Schema
	cmd     *jsonschema.Schema
	welcome *jsonschema.Schema
	ack     *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	for _, name := range []string{"hello", "cmd", "welcome", "ack"} {
		file := "schemas/" + name + ".schema.json"
		raw, err := schemaFS.ReadFile(file)
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(name+".schema.json", bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}
	}
	v := &Validator{}
	var err error
	if v.hello, err = c.Compile("hello.schema.json"); err != nil {
		return nil, err
	}
	if v.cmd, err = c.Compile("cmd.schema.json"); err != nil {
		return nil, err
	}
	if v.welcome, err = c.Compile("welcome.schema.json"); err != nil {
		return nil, err
	}
	if v.ack, err = c.Compile("ack.schema.json"); err != nil {
		return nil, err
	}
	return v, nil
}

// MustValidator compiles the embedded schemas and panics on failure. The
// schemas ship inside the binary, so a failure here is a build defect.
func MustValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

func validateRaw(s *jsonschema.Schema, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return s.Validate(v)
}

func (v *Validator) ValidateHello(raw []byte) error   { return validateRaw(v.hello, raw) }
func (v *Validator) ValidateCmd(raw []byte) error     { return validateRaw(v.cmd, raw) }
func (v *Validator) ValidateWelcome(raw []byte) error { return validateRaw(v.welcome, raw) }
func (v *Validator) ValidateAck(raw []byte) error     { return validateRaw(v.ack, raw) }
