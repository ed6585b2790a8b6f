package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBase = "mem://protocol/"

var (
	schemaOnce sync.Once
	schemas    map[string]*jsonschema.Schema
	schemaErr  error
)

func schemaName(msgType string) string {
	return strings.ToLower(msgType) + ".schema.json"
}

func loadSchemas() {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		schemaErr = err
		return
	}
	c := jsonschema.NewCompiler()
	for _, e := range entries {
		b, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			schemaErr = err
			return
		}
		if err := c.AddResource(schemaBase+e.Name(), bytes.NewReader(b)); err != nil {
			schemaErr = fmt.Errorf("%s: %w", e.Name(), err)
			return
		}
	}
	schemas = map[string]*jsonschema.Schema{}
	for _, e := range entries {
		s, err := c.Compile(schemaBase + e.Name())
		if err != nil {
			schemaErr = fmt.Errorf("%s: %w", e.Name(), err)
			return
		}
		schemas[e.Name()] = s
	}
}

// Schema returns the compiled schema for a message type.
func Schema(msgType string) (*jsonschema.Schema, error) {
	schemaOnce.Do(loadSchemas)
	if schemaErr != nil {
		return nil, schemaErr
	}
	s, ok := schemas[schemaName(msgType)]
	if !ok {
		return nil, fmt.Errorf("no schema for %q", msgType)
	}
	return s, nil
}

// Validate decodes the routing header of b and checks the whole message
// against the schema of its type.
func Validate(b []byte) (BaseMessage, error) {
	base, err := DecodeBase(b)
	if err != nil {
		return base, err
	}
	if base.Type == "" {
		return base, fmt.Errorf("missing type")
	}
	s, err := Schema(base.Type)
	if err != nil {
		return base, err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return base, err
	}
	if err := s.Validate(v); err != nil {
		return base, err
	}
	return base, nil
}
