// Package manifest defines the document that drives a bootstrap: which
// source files to stage, which extension modules to install and which
// module to run.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/caffeineduck/mimas/vfs"
)

var ErrInvalid = errors.New("invalid manifest")

// Manifest is the wire document served at the discovery endpoint root.
type Manifest struct {
	SourcePaths  []string `json:"frontend_source_paths"`
	ExtraModules []string `json:"frontend_extra_modules"`
	EntryModule  string   `json:"frontend_module"`
}

// Parse decodes and validates a manifest document.
func Parse(data []byte) (Manifest, error) {
	var m Manifest
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("%w: decode: %v", ErrInvalid, err)
	}
	if dec.More() {
		return Manifest{}, fmt.Errorf("%w: trailing data after document", ErrInvalid)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m.normalized(), nil
}

// Validate checks the manifest invariants.
func (m Manifest) Validate() error {
	if strings.TrimSpace(m.EntryModule) == "" {
		return fmt.Errorf("%w: frontend_module is required", ErrInvalid)
	}
	for i, p := range m.SourcePaths {
		if _, err := vfs.Clean(p); err != nil {
			return fmt.Errorf("%w: frontend_source_paths[%d]: %v", ErrInvalid, i, err)
		}
	}
	for i, mod := range m.ExtraModules {
		if strings.TrimSpace(mod) == "" {
			return fmt.Errorf("%w: frontend_extra_modules[%d] is empty", ErrInvalid, i)
		}
	}
	return nil
}

// Marshal encodes the manifest, always emitting arrays rather than null.
func (m Manifest) Marshal() ([]byte, error) {
	return json.Marshal(m.normalized())
}

func (m Manifest) normalized() Manifest {
	if m.SourcePaths == nil {
		m.SourcePaths = []string{}
	}
	if m.ExtraModules == nil {
		m.ExtraModules = []string{}
	}
	return m
}
