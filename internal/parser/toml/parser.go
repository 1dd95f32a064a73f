// Package toml reads table mapping files written in TOML:
//
//	[table_mapping]
//	"EXA.ORDERS" = "sr_orders"
package toml

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"

	"mbmigrate/internal/core"
)

// mappingFile is the top-level TOML document.
type mappingFile struct {
	TableMapping map[string]string `toml:"table_mapping"`
}

// Parser reads TOML mapping files.
type Parser struct{}

// NewParser creates a new TOML mapping parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseFile opens the file at the given path and parses it as a TOML mapping.
func (p *Parser) ParseFile(path string) (*core.TableMapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("toml: open file %q: %w", path, err)
	}
	defer f.Close()

	return p.Parse(f)
}

// Parse reads TOML content from reader and returns the table mapping.
func (p *Parser) Parse(r io.Reader) (*core.TableMapping, error) {
	var mf mappingFile
	md, err := toml.NewDecoder(r).Decode(&mf)
	if err != nil {
		return nil, fmt.Errorf("toml: decode error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("toml: unknown key %q", undecoded[0].String())
	}
	if !md.IsDefined("table_mapping") {
		return nil, fmt.Errorf("toml: missing [table_mapping] section")
	}

	m, err := core.NewTableMapping(mf.TableMapping)
	if err != nil {
		return nil, fmt.Errorf("toml: %w", err)
	}
	return m, nil
}
