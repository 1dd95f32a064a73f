package mbql

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePreservesKeyOrderAndNumbers(t *testing.T) {
	src := `{"z":1,"a":[1.50,"x",null,true],"m":{"b":2,"a":3}}`

	n, err := Decode([]byte(src))
	require.NoError(t, err)

	m, ok := n.(*Mapping)
	require.True(t, ok)
	assert.Equal(t, []string{"z", "a", "m"}, m.Keys())
	assert.Equal(t, []string{"b", "a"}, m.MappingAt("m").Keys())

	out, err := Marshal(n)
	require.NoError(t, err)
	assert.Equal(t, src, string(out))
}

func TestMarshalDoesNotEscapeHTML(t *testing.T) {
	m := NewMapping()
	m.Set("query", String("select * from t where a < 1 & b > 2"))

	out, err := Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"query":"select * from t where a < 1 & b > 2"}`, string(out))
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	_, err := Decode([]byte(`{"a":1} {"b":2}`))
	require.Error(t, err)
}

func TestDecodeMappingRejectsArray(t *testing.T) {
	_, err := DecodeMapping([]byte(`[1,2]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected object")
}

func TestMappingUnmarshalJSON(t *testing.T) {
	var doc struct {
		Query *Mapping `json:"query"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"query":{"source-table":5}}`), &doc))
	id, ok := doc.Query.IntAt("source-table")
	assert.True(t, ok)
	assert.Equal(t, int64(5), id)
}

func TestMappingSetDelete(t *testing.T) {
	m := NewMapping()
	m.Set("a", Int(1))
	m.Set("b", Int(2))
	m.Set("a", Int(3))
	assert.Equal(t, []string{"a", "b"}, m.Keys())

	v, _ := m.IntAt("a")
	assert.Equal(t, int64(3), v)

	m.Delete("a")
	m.Delete("missing")
	assert.Equal(t, []string{"b"}, m.Keys())
	assert.False(t, m.Has("a"))
}

func TestPathDefaults(t *testing.T) {
	m, err := DecodeMapping([]byte(`{"dataset_query":{"type":"native","native":{"query":"select 1"}}}`))
	require.NoError(t, err)

	assert.Equal(t, "native", m.StringAt("dataset_query", "type"))
	assert.Equal(t, "select 1", m.StringAt("dataset_query", "native", "query"))
	assert.Equal(t, "", m.StringAt("dataset_query", "missing", "query"))
	assert.Nil(t, m.MappingAt("dataset_query", "native", "template-tags"))
	assert.True(t, m.Path("nope").(Scalar).IsNull())

	var nilMap *Mapping
	assert.Equal(t, "", nilMap.StringAt("a"))
}

func TestAsFieldRef(t *testing.T) {
	tests := []struct {
		name string
		json string
		id   int64
		ok   bool
	}{
		{name: "numeric id", json: `["field", 100, null]`, id: 100, ok: true},
		{name: "with options", json: `["field", 7, {"join-alias": "t1"}]`, id: 7, ok: true},
		{name: "name reference", json: `["field", "AMOUNT", {"base-type": "type/Float"}]`},
		{name: "other clause", json: `["=", 1, 2]`},
		{name: "fractional id", json: `["field", 1.5, null]`},
		{name: "too short", json: `["field"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Decode([]byte(tt.json))
			require.NoError(t, err)
			id, ok := AsFieldRef(n)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestIsJoin(t *testing.T) {
	join, err := DecodeMapping([]byte(`{"source-table": 5, "alias": "t1", "condition": ["=", 1, 1]}`))
	require.NoError(t, err)
	root, err := DecodeMapping([]byte(`{"source-table": 5, "filter": ["=", 1, 1]}`))
	require.NoError(t, err)

	assert.True(t, IsJoin(join))
	assert.False(t, IsJoin(root))
}

func TestCloneIsDeep(t *testing.T) {
	n, err := Decode([]byte(`{"a":[["field",1,null]]}`))
	require.NoError(t, err)

	c := n.Clone()
	require.True(t, Equal(n, c))

	c.(*Mapping).SequenceAt("a").Items[0].(*Sequence).Items[1] = Int(2)
	assert.False(t, Equal(n, c))
	id, _ := AsFieldRef(n.(*Mapping).SequenceAt("a").At(0))
	assert.Equal(t, int64(1), id)
}

func TestEqualNil(t *testing.T) {
	var a, b *Mapping
	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, NewMapping()))
}
