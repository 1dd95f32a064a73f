package sqltag

import "mbmigrate/internal/mbql"

// Copy adds the template tags called names from src to dst. Tags already
// defined in dst are kept. With clearDefault the copies lose their default
// value. An empty names list copies every tag of src. It returns the names
// that were added.
func Copy(src, dst *mbql.Mapping, names []string, clearDefault bool) []string {
	if len(names) == 0 {
		names = src.Keys()
	}
	var added []string
	for _, name := range names {
		def := src.MappingAt(name)
		if def == nil || dst.Has(name) {
			continue
		}
		cp := def.Clone().(*mbql.Mapping)
		if clearDefault && cp.Has("default") {
			cp.Set("default", mbql.Null())
		}
		dst.Set(name, cp)
		added = append(added, name)
	}
	return added
}
