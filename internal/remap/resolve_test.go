package remap

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mbmigrate/internal/core"
	"mbmigrate/internal/metabase"
	"mbmigrate/internal/metabase/metabasetest"
)

func TestIdentityResolverCaches(t *testing.T) {
	srv := metabasetest.New(t)
	srv.Set("/api/table/5", `{"id":5,"name":"ORDERS","schema":"EXA"}`)
	srv.Set("/api/field/100", `{"id":100,"name":"AMOUNT"}`)
	r, err := NewIdentityResolver(srv.Session(t), 0)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		name, err := r.TableName(ctx, "5")
		require.NoError(t, err)
		assert.Equal(t, "EXA.ORDERS", name)

		col, err := r.ColumnName(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, "AMOUNT", col)
	}
	assert.Equal(t, 1, srv.Requests("/api/table/5"))
	assert.Equal(t, 1, srv.Requests("/api/field/100"))
}

func TestIdentityResolverErrors(t *testing.T) {
	srv := metabasetest.New(t)
	srv.Fail("/api/field/2", http.StatusInternalServerError)
	r, err := NewIdentityResolver(srv.Session(t), 10)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = r.TableName(ctx, "404")
	var lookupErr *LookupError
	require.True(t, errors.As(err, &lookupErr))
	assert.True(t, lookupErr.NotFound())
	assert.Equal(t, core.ReasonSourceUnknown, ReasonOf(err))

	_, err = r.ColumnName(ctx, 2)
	require.True(t, errors.As(err, &lookupErr))
	assert.False(t, lookupErr.NotFound())
	assert.Equal(t, core.ReasonLookupFailed, ReasonOf(err))

	_, err = r.TableName(ctx, "card__12")
	assert.ErrorIs(t, err, ErrVirtualTable)
	assert.Equal(t, core.ReasonSourceUnknown, ReasonOf(err))
}

func TestTargetResolverOverrideWins(t *testing.T) {
	srv := metabasetest.New(t)
	srv.Set("/api/table/91055/query_metadata", `{"id":91055,"name":"vendors","fields":[{"id":1,"name":"VENDOR_ID"},{"id":2,"name":"NAME"}]}`)
	r := NewTargetResolver(srv.Session(t), 16, []Override{{Column: "VENDOR_ID", TableID: 91055, FieldID: 756121}})
	ctx := context.Background()

	id, err := r.ResolveField(ctx, 91055, "VENDOR_ID")
	require.NoError(t, err)
	assert.Equal(t, int64(756121), id, "override must win over metadata")

	id, err = r.ResolveField(ctx, 91055, "vendor_id")
	require.NoError(t, err)
	assert.Equal(t, int64(756121), id)

	id, err = r.ResolveField(ctx, 91055, "name")
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)

	_, err = r.ResolveField(ctx, 91055, "AMOUNT")
	assert.ErrorIs(t, err, ErrUnresolved)
	assert.ErrorIs(t, err, ErrColumnMissing)
	assert.Equal(t, core.ReasonColumnMissing, ReasonOf(err))

	assert.Equal(t, 1, srv.Requests("/api/table/91055/query_metadata"))
}

func TestTargetResolverTables(t *testing.T) {
	srv := metabasetest.New(t)
	srv.Set("/api/database/16/metadata", `{"id":16,"tables":[{"id":91,"name":"SR_ORDERS"}]}`)
	r := NewTargetResolver(srv.Session(t), 16, nil)
	ctx := context.Background()

	id, err := r.ResolveTable(ctx, "sr_orders")
	require.NoError(t, err)
	assert.Equal(t, int64(91), id)

	_, err = r.ResolveTable(ctx, "sr_missing")
	assert.ErrorIs(t, err, ErrTableMissing)
	assert.Equal(t, core.ReasonTargetTableMissing, ReasonOf(err))

	_, err = r.ResolveField(ctx, 999, "AMOUNT")
	assert.ErrorIs(t, err, metabase.ErrNotFound)
	assert.Equal(t, core.ReasonTargetTableMissing, ReasonOf(err))
	assert.Equal(t, 1, srv.Requests("/api/database/16/metadata"))
}

func TestTargetResolverUnavailable(t *testing.T) {
	srv := metabasetest.New(t)
	srv.Fail("/api/database/16/metadata", http.StatusBadGateway)
	r := NewTargetResolver(srv.Session(t), 16, nil)

	_, err := r.ResolveTable(context.Background(), "sr_orders")
	assert.ErrorIs(t, err, ErrUnresolved)
	assert.Equal(t, core.ReasonLookupFailed, ReasonOf(err))
}
