// Package restore repairs cards damaged by earlier bulk edits. It rebuilds
// native queries that lost their SELECT or FROM clause from a query template,
// and resets visualization settings to known values per display type.
//
// Both repairs are driven by YAML files so that the card specific SQL and
// chart settings stay out of the tool.
package restore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"mbmigrate/internal/mbql"
)

func decodeFile(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("restore: open %q: %w", path, err)
	}
	defer f.Close()
	if err := decode(f, out); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func decode(r io.Reader, out any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("restore: empty document")
		}
		return fmt.Errorf("restore: decode error: %w", err)
	}
	return nil
}

// toMapping converts a decoded YAML object. Keys come out sorted.
func toMapping(v map[string]any) (*mbql.Mapping, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mbql.DecodeMapping(raw)
}
