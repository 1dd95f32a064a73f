package restore

import (
	"fmt"
	"io"
	"strings"

	"mbmigrate/internal/mbql"
)

// DefaultDisplay is used for cards without a display of their own.
const DefaultDisplay = "scalar"

const builtinSettings = `{
	"line": {
		"graph.dimensions": ["CREATED_AT"],
		"graph.metrics": ["count"],
		"graph.show_values": false,
		"graph.x_axis.title_text": "Created At",
		"graph.y_axis.title_text": "Count"
	},
	"bar": {
		"graph.dimensions": ["CREATED_AT"],
		"graph.metrics": ["count"],
		"graph.show_values": false,
		"graph.x_axis.title_text": "Created At",
		"graph.y_axis.title_text": "Count"
	},
	"pie": {"pie.show_legend": true, "pie.show_values": false},
	"table": {"table.column_widths": [], "table.pivot_column": null, "table.cell_column": null},
	"scalar": {"scalar.decimals": 0, "scalar.prefix": "", "scalar.suffix": ""}
}`

// CardVisualization overrides the display and settings of one card, matched
// by card name.
type CardVisualization struct {
	Display  string         `yaml:"display"`
	Settings map[string]any `yaml:"settings"`
}

type visualizationFile struct {
	DefaultDisplay string                       `yaml:"default_display"`
	Displays       map[string]map[string]any    `yaml:"displays"`
	Cards          map[string]CardVisualization `yaml:"cards"`
}

// Visualizations resolves the settings a card is restored to.
type Visualizations struct {
	defaultDisplay string
	displays       map[string]*mbql.Mapping
	cards          map[string]CardVisualization
	cardSettings   map[string]*mbql.Mapping
}

// DefaultVisualizations returns the built-in settings per display type.
func DefaultVisualizations() *Visualizations {
	v, err := newVisualizations(visualizationFile{})
	if err != nil {
		panic(err)
	}
	return v
}

// LoadVisualizations reads a settings file. Displays it names replace the
// built-in settings of that display; the others are kept.
func LoadVisualizations(path string) (*Visualizations, error) {
	var f visualizationFile
	if err := decodeFile(path, &f); err != nil {
		return nil, err
	}
	return newVisualizations(f)
}

// ParseVisualizations is LoadVisualizations for an open reader.
func ParseVisualizations(r io.Reader) (*Visualizations, error) {
	var f visualizationFile
	if err := decode(r, &f); err != nil {
		return nil, err
	}
	return newVisualizations(f)
}

func newVisualizations(f visualizationFile) (*Visualizations, error) {
	builtin, err := mbql.DecodeMapping([]byte(builtinSettings))
	if err != nil {
		return nil, err
	}
	v := &Visualizations{
		defaultDisplay: DefaultDisplay,
		displays:       make(map[string]*mbql.Mapping),
		cards:          f.Cards,
		cardSettings:   make(map[string]*mbql.Mapping),
	}
	if f.DefaultDisplay != "" {
		v.defaultDisplay = f.DefaultDisplay
	}
	builtin.Each(func(display string, n mbql.Node) {
		v.displays[display] = n.(*mbql.Mapping)
	})
	for display, settings := range f.Displays {
		m, err := toMapping(settings)
		if err != nil {
			return nil, fmt.Errorf("restore: displays.%s: %w", display, err)
		}
		v.displays[display] = m
	}
	for name, c := range f.Cards {
		if c.Settings == nil {
			continue
		}
		m, err := toMapping(c.Settings)
		if err != nil {
			return nil, fmt.Errorf("restore: cards.%s: %w", name, err)
		}
		v.cardSettings[name] = m
	}
	return v, nil
}

// Restore sets the display and visualization_settings of card in place. The
// settings come from the card's own entry, else from its display: the entry's
// display, then the card's, then the default. skip is set when no settings
// are known for the display.
func (v *Visualizations) Restore(card *mbql.Mapping) (changes []string, skip string) {
	name := card.StringAt("name")
	entry := v.cards[name]

	display := strings.TrimSpace(entry.Display)
	if display == "" {
		display = card.StringAt("display")
	}
	if display == "" {
		display = v.defaultDisplay
	}

	settings, source := v.cardSettings[name], "card entry"
	if settings == nil {
		settings, source = v.displays[display], display+" defaults"
	}
	if settings == nil {
		return nil, fmt.Sprintf("no visualization settings for display %q", display)
	}

	if entry.Display != "" && card.StringAt("display") != display {
		changes = append(changes, fmt.Sprintf("display %q -> %q", card.StringAt("display"), display))
		card.Set("display", mbql.String(display))
	}
	if current, ok := card.Lookup("visualization_settings"); !ok || !mbql.Equal(current, settings) {
		changes = append(changes, "visualization_settings restored from "+source)
		card.Set("visualization_settings", settings.Clone())
	}
	return changes, ""
}
