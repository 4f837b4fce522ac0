package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BrandonDHaskell/llllogs/internal/llllogs/types"
)

// LoadLayout reads a YAML layout from path. An empty path yields the
// Apache access log layout.
func LoadLayout(path string) (types.Layout, error) {
	if path == "" {
		return types.ApacheLayout(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return types.Layout{}, fmt.Errorf("read layout: %w", err)
	}
	return ParseLayout(b)
}

// ParseLayout decodes and validates a YAML layout. Unknown keys are errors.
func ParseLayout(b []byte) (types.Layout, error) {
	var l types.Layout
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&l); err != nil {
		return types.Layout{}, fmt.Errorf("parse layout: %w", err)
	}
	if err := l.Validate(); err != nil {
		return types.Layout{}, err
	}
	return l, nil
}
