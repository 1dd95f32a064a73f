// Package yaml reads table mapping files written in YAML:
//
//	table_mapping:
//	  EXA.ORDERS: sr_orders
package yaml

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"mbmigrate/internal/core"
)

type mappingFile struct {
	TableMapping map[string]string `yaml:"table_mapping"`
}

// Parser reads YAML mapping files.
type Parser struct{}

// NewParser creates a new YAML mapping parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseFile opens the file at the given path and parses it as a YAML mapping.
func (p *Parser) ParseFile(path string) (*core.TableMapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("yaml: open file %q: %w", path, err)
	}
	defer f.Close()

	return p.Parse(f)
}

// Parse reads YAML content from reader and returns the table mapping.
func (p *Parser) Parse(r io.Reader) (*core.TableMapping, error) {
	var mf mappingFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&mf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("yaml: empty document")
		}
		return nil, fmt.Errorf("yaml: decode error: %w", err)
	}
	if mf.TableMapping == nil {
		return nil, fmt.Errorf("yaml: missing table_mapping")
	}

	m, err := core.NewTableMapping(mf.TableMapping)
	if err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	return m, nil
}
