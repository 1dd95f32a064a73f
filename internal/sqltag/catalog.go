// Package sqltag reconciles the template tags of native SQL cards with a
// catalog of standard dashboard filters: it finds hardcoded filter literals,
// missing or defaulted tag definitions and single-bracket references, and
// fixes them in place.
package sqltag

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"mbmigrate/internal/mbql"
)

// Tag describes a standard field filter template tag.
type Tag struct {
	Name        string `toml:"name" json:"name"`
	DisplayName string `toml:"display_name" json:"displayName"`
	// ID is the template tag id. A random UUID is generated when empty.
	ID         string `toml:"id" json:"id"`
	FieldID    int64  `toml:"field_id" json:"fieldId"`
	WidgetType string `toml:"widget_type" json:"widgetType"`
	// Column is the SQL column whose hardcoded "COLUMN = 'literal'" predicates
	// the tag replaces.
	Column          string `toml:"column" json:"column,omitempty"`
	RequiredInWhere bool   `toml:"required_in_where" json:"requiredInWhere,omitempty"`
	CaseSensitive   *bool  `toml:"case_sensitive" json:"caseSensitive,omitempty"`
}

var tagNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Definition returns the template-tags entry for t.
func (t Tag) Definition() *mbql.Mapping {
	def := mbql.NewMapping()
	def.Set("type", mbql.String("dimension"))
	def.Set("name", mbql.String(t.Name))
	def.Set("id", mbql.String(t.ID))
	def.Set("display-name", mbql.String(t.DisplayName))
	def.Set("dimension", mbql.NewSequence(mbql.String(mbql.FieldRefTag), mbql.Int(t.FieldID), mbql.Null()))
	def.Set("widget-type", mbql.String(t.WidgetType))
	if t.CaseSensitive != nil {
		opts := mbql.NewMapping()
		opts.Set("case-sensitive", mbql.Bool(*t.CaseSensitive))
		def.Set("options", opts)
	}
	return def
}

// Catalog is an ordered set of tags addressed by name.
type Catalog struct {
	tags   []Tag
	byName map[string]int
}

// NewCatalog validates tags and fills in missing ids and display names.
func NewCatalog(tags []Tag) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]int, len(tags))}
	for _, t := range tags {
		if !tagNameRe.MatchString(t.Name) {
			return nil, fmt.Errorf("template tag %q: invalid name", t.Name)
		}
		if _, dup := c.byName[t.Name]; dup {
			return nil, fmt.Errorf("template tag %q: defined twice", t.Name)
		}
		if t.FieldID <= 0 {
			return nil, fmt.Errorf("template tag %q: field_id is required", t.Name)
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		} else if _, err := uuid.Parse(t.ID); err != nil {
			return nil, fmt.Errorf("template tag %q: invalid id: %w", t.Name, err)
		}
		if t.DisplayName == "" {
			t.DisplayName = t.Name
		}
		if t.WidgetType == "" {
			t.WidgetType = "string/="
		}
		c.byName[t.Name] = len(c.tags)
		c.tags = append(c.tags, t)
	}
	return c, nil
}

// Get returns the tag called name.
func (c *Catalog) Get(name string) (Tag, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Tag{}, false
	}
	return c.tags[i], true
}

// Tags returns all tags in catalog order.
func (c *Catalog) Tags() []Tag {
	out := make([]Tag, len(c.tags))
	copy(out, c.tags)
	return out
}

// Subset returns a catalog restricted to names. An empty list keeps every tag.
func (c *Catalog) Subset(names []string) (*Catalog, error) {
	if len(names) == 0 {
		return c, nil
	}
	tags := make([]Tag, 0, len(names))
	for _, n := range names {
		t, ok := c.Get(n)
		if !ok {
			return nil, fmt.Errorf("template tag %q is not in the catalog", n)
		}
		tags = append(tags, t)
	}
	return NewCatalog(tags)
}

func boolPtr(b bool) *bool { return &b }

// StandardTags returns the dashboard filters used across the migrated
// dashboards.
func StandardTags() []Tag {
	return []Tag{
		{Name: "Card_Geo", DisplayName: "Card Geo", ID: "f9338c61-c741-44d7-a6a5-ac57bac8b387", FieldID: 756074, WidgetType: "string/=", Column: "CARD_GEO", RequiredInWhere: true},
		{Name: "CARD_ISOCOUNTRY", DisplayName: "Card Isocountry", ID: "3c2e2b6a-c8ca-4c78-824e-32e304de4bd9", FieldID: 756215, WidgetType: "string/contains", Column: "CARD_ISOCOUNTRY", CaseSensitive: boolPtr(false)},
		{Name: "CREATED_AT", DisplayName: "Created At", ID: "764144ae-9181-4109-af3d-1fc83ae0e936", FieldID: 756080, WidgetType: "date/all-options"},
		{Name: "PAY_SYSTEM", DisplayName: "Pay System", ID: "d08fbf9b-68ea-4906-bd1b-186b5aa73330", FieldID: 756097, WidgetType: "string/="},
		{Name: "WIDGET_PARTNER_NAME", DisplayName: "Widget Partner Name", ID: "6327ab6f-1235-4157-b45e-4b1f9425b5d4", FieldID: 756138, WidgetType: "string/="},
		{Name: "CURRENCY", DisplayName: "Currency", ID: "1a31bc3f-cdc2-4904-b21d-9a150d0b7937", FieldID: 756119, WidgetType: "string/="},
		{Name: "CRYPTO", DisplayName: "Crypto", ID: "381c2993-7db6-4a68-9787-9cd1ec02b7b9", FieldID: 756104, WidgetType: "string/="},
		{Name: "TYPE", DisplayName: "Type", ID: "a716ead1-bce3-46fc-b726-9f883f099e5f", FieldID: 756091, WidgetType: "string/="},
		{Name: "CARD_BIN", DisplayName: "Card Bin", ID: "7aca042c-08a3-400a-8df1-8394c48ca875", FieldID: 756200, WidgetType: "string/="},
	}
}

// DefaultCatalog returns a catalog of StandardTags.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(StandardTags())
	if err != nil {
		panic(err)
	}
	return c
}
