package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mbmigrate/internal/core"
)

func TestParseCreateTable(t *testing.T) {
	sql := `CREATE TABLE dwh.sr_orders (
		id BIGINT NOT NULL COMMENT 'order id',
		amount DECIMAL(18,2) NULL,
		card_geo VARCHAR(8)
	) COMMENT='orders';
	INSERT INTO x VALUES (1);
	CREATE TABLE sr_vendors (vendor_id INT PRIMARY KEY);`

	db, err := NewParser().Parse(sql)
	require.NoError(t, err)
	require.Len(t, db.Tables, 2)

	orders := db.Tables[0]
	assert.Equal(t, "dwh.sr_orders", orders.QualifiedName())
	assert.Equal(t, "orders", orders.Comment)
	require.Len(t, orders.Columns, 3)
	assert.False(t, orders.Columns[0].Nullable)
	assert.Equal(t, "order id", orders.Columns[0].Comment)
	assert.Equal(t, core.DataTypeFloat, orders.Columns[1].Type)
	assert.True(t, orders.Columns[2].Nullable)

	vendors := db.FindTable("SR_VENDORS")
	require.NotNil(t, vendors)
	assert.False(t, vendors.FindColumn("vendor_id").Nullable)
}

func TestParseInvalidDDL(t *testing.T) {
	_, err := NewParser().Parse("CREATE TABLE (")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse DDL dump")
}

func TestTryUnquoteSQLStringLiteral(t *testing.T) {
	s, ok := tryUnquoteSQLStringLiteral("'it''s'")
	assert.True(t, ok)
	assert.Equal(t, "it's", s)

	_, ok = tryUnquoteSQLStringLiteral("42")
	assert.False(t, ok)
}
