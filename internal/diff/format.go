package diff

import (
	"fmt"
	"strings"
)

// String returns a human readable listing of the column differences.
func (d *TableDiff) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Comparing %s -> %s\n", d.Source, d.Target))

	if len(d.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, w := range d.Warnings {
			w = strings.TrimSpace(w)
			if w == "" {
				continue
			}
			sb.WriteString(fmt.Sprintf("  - %s\n", w))
		}
	}

	if d.IsEmpty() {
		sb.WriteString("No differences detected.\n")
		return sb.String()
	}

	if len(d.OnlyInSource) > 0 {
		sb.WriteString("\nOnly in source (fields would be removed):\n")
		for _, c := range d.OnlyInSource {
			sb.WriteString(fmt.Sprintf("  - %s\n", c.Name))
		}
	}

	if len(d.OnlyInTarget) > 0 {
		sb.WriteString("\nOnly in target:\n")
		for _, c := range d.OnlyInTarget {
			sb.WriteString(fmt.Sprintf("  - %s\n", c.Name))
		}
	}

	if changed := d.Changed(); len(changed) > 0 {
		sb.WriteString("\nModified columns:\n")
		for _, mc := range changed {
			sb.WriteString(fmt.Sprintf("  - %s\n", mc.Name))
			for _, ch := range mc.Changes {
				sb.WriteString(fmt.Sprintf("    - %s: %q -> %q\n", ch.Field, ch.Old, ch.New))
			}
		}
	}

	sb.WriteString(fmt.Sprintf("\n%d common, %d only in source, %d only in target\n",
		len(d.Common), len(d.OnlyInSource), len(d.OnlyInTarget)))
	return sb.String()
}

// String summarises a mapping check.
func (c *MappingCheck) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Checked %d mapped tables: %d present, %d missing\n",
		c.Checked, len(c.Present), len(c.Missing)))
	for _, e := range c.Missing {
		sb.WriteString(fmt.Sprintf("  - %s -> %s\n", e.Source, e.Target))
	}
	return sb.String()
}
