// Package parser reads the files that drive a migration: table mapping files
// in JSON, YAML or TOML, and DDL dumps of the target schema.
package parser

import (
	"io"
	"path/filepath"
	"strings"

	"mbmigrate/internal/core"
	"mbmigrate/internal/parser/toml"
	"mbmigrate/internal/parser/yaml"
)

// MappingParser reads a table mapping document.
type MappingParser interface {
	Parse(r io.Reader) (*core.TableMapping, error)
	ParseFile(path string) (*core.TableMapping, error)
}

// ForPath returns the mapping parser for the extension of path.
func ForPath(path string) (MappingParser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return NewJSONParser(), nil
	case ".yaml", ".yml":
		return yaml.NewParser(), nil
	case ".toml":
		return toml.NewParser(), nil
	default:
		return nil, &UnsupportedFormatError{Path: path}
	}
}

// ParseMappingFile reads the mapping file at path.
func ParseMappingFile(path string) (*core.TableMapping, error) {
	p, err := ForPath(path)
	if err != nil {
		return nil, err
	}
	return p.ParseFile(path)
}

type UnsupportedFormatError struct {
	Path string
}

func (e *UnsupportedFormatError) Error() string {
	return "unsupported file format: " + e.Path
}
