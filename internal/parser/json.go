package parser

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"mbmigrate/internal/core"
)

type jsonMappingFile struct {
	TableMapping map[string]string `json:"table_mapping"`
}

// JSONParser reads mapping files of the form {"table_mapping": {"SCHEMA.TABLE": "target"}}.
type JSONParser struct{}

func NewJSONParser() *JSONParser {
	return &JSONParser{}
}

func (p *JSONParser) ParseFile(path string) (*core.TableMapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("json: open file %q: %w", path, err)
	}
	defer f.Close()

	return p.Parse(f)
}

func (p *JSONParser) Parse(r io.Reader) (*core.TableMapping, error) {
	var mf jsonMappingFile
	if err := json.NewDecoder(r).Decode(&mf); err != nil {
		return nil, fmt.Errorf("json: decode error: %w", err)
	}
	if mf.TableMapping == nil {
		return nil, fmt.Errorf("json: missing table_mapping")
	}

	m, err := core.NewTableMapping(mf.TableMapping)
	if err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	return m, nil
}
