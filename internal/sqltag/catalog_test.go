package sqltag

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mbmigrate/internal/mbql"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	assert.Len(t, c.Tags(), 9)

	geo, ok := c.Get("Card_Geo")
	require.True(t, ok)
	assert.Equal(t, int64(756074), geo.FieldID)
	assert.True(t, geo.RequiredInWhere)

	_, ok = c.Get("card_geo")
	assert.False(t, ok)
}

func TestNewCatalogGeneratesIDs(t *testing.T) {
	c, err := NewCatalog([]Tag{{Name: "VENDOR", FieldID: 91055}})
	require.NoError(t, err)

	tag, ok := c.Get("VENDOR")
	require.True(t, ok)
	_, err = uuid.Parse(tag.ID)
	require.NoError(t, err)
	assert.Equal(t, "VENDOR", tag.DisplayName)
	assert.Equal(t, "string/=", tag.WidgetType)
}

func TestNewCatalogErrors(t *testing.T) {
	tests := []struct {
		name    string
		tags    []Tag
		wantErr string
	}{
		{name: "invalid name", tags: []Tag{{Name: "card geo", FieldID: 1}}, wantErr: "invalid name"},
		{name: "duplicate", tags: []Tag{{Name: "A", FieldID: 1}, {Name: "A", FieldID: 2}}, wantErr: "defined twice"},
		{name: "no field", tags: []Tag{{Name: "A"}}, wantErr: "field_id is required"},
		{name: "bad id", tags: []Tag{{Name: "A", FieldID: 1, ID: "nope"}}, wantErr: "invalid id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.tags)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCatalogSubset(t *testing.T) {
	c, err := DefaultCatalog().Subset([]string{"CURRENCY", "Card_Geo"})
	require.NoError(t, err)
	tags := c.Tags()
	require.Len(t, tags, 2)
	assert.Equal(t, "CURRENCY", tags[0].Name)

	_, err = DefaultCatalog().Subset([]string{"NOPE"})
	require.Error(t, err)
}

func TestTagDefinition(t *testing.T) {
	tag, _ := DefaultCatalog().Get("CARD_ISOCOUNTRY")
	out, err := mbql.Marshal(tag.Definition())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "dimension",
		"name": "CARD_ISOCOUNTRY",
		"id": "3c2e2b6a-c8ca-4c78-824e-32e304de4bd9",
		"display-name": "Card Isocountry",
		"dimension": ["field", 756215, null],
		"widget-type": "string/contains",
		"options": {"case-sensitive": false}
	}`, string(out))
}
