package metabase_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mbmigrate/internal/mbql"
	"mbmigrate/internal/metabase"
	"mbmigrate/internal/metabase/metabasetest"
)

func TestNewClient_TrailingSlash(t *testing.T) {
	c := metabase.NewClient("http://localhost:3000/")
	assert.Equal(t, "http://localhost:3000", c.BaseURL)
}

func TestNewClient_SetsTimeout(t *testing.T) {
	c := metabase.NewClient("http://localhost:3000")
	require.NotNil(t, c.HTTPClient)
	assert.Equal(t, 30*time.Second, c.HTTPClient.Timeout)

	c = metabase.NewClient("http://localhost:3000", metabase.WithTimeout(5*time.Second))
	assert.Equal(t, 5*time.Second, c.HTTPClient.Timeout)
}

func TestLogin(t *testing.T) {
	srv := metabasetest.New(t)

	sess := srv.Session(t)
	assert.Equal(t, metabasetest.Token, sess.Token())
}

func TestLogin_BadCredentials(t *testing.T) {
	srv := metabasetest.New(t)

	_, err := metabase.NewClient(srv.URL).Login(context.Background(), "admin", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, metabase.ErrAuth)

	var apiErr *metabase.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.HTTPStatus)
}

func TestLogin_EmptySessionID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":""}`))
	}))
	t.Cleanup(srv.Close)

	_, err := metabase.NewClient(srv.URL).Login(context.Background(), "a", "b")
	assert.ErrorIs(t, err, metabase.ErrAuth)
}

func TestSession_SendsHeader(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(metabase.SessionHeader)
		_, _ = w.Write([]byte(`{"id": 1}`))
	}))
	t.Cleanup(srv.Close)

	sess := metabase.NewSession(metabase.NewClient(srv.URL), "tok")
	_, err := sess.Card(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "tok", got)
}

func TestCard_NotFound(t *testing.T) {
	srv := metabasetest.New(t)
	sess := srv.Session(t)

	_, err := sess.Card(context.Background(), 42)
	require.Error(t, err)
	assert.ErrorIs(t, err, metabase.ErrNotFound)
	assert.Contains(t, err.Error(), "API error (HTTP 404) GET /api/card/42")
}

func TestCard_ServerError(t *testing.T) {
	srv := metabasetest.New(t)
	srv.Fail("/api/card/1", http.StatusInternalServerError)
	sess := srv.Session(t)

	_, err := sess.Card(context.Background(), 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, metabase.ErrNotFound)
}

func TestUpdateCard_PreservesKeyOrder(t *testing.T) {
	srv := metabasetest.New(t)
	srv.Set("/api/card/7", `{"name":"Turnover","id":7,"dataset_query":{"type":"native","native":{"query":"select 1 where a < 2"}}}`)
	sess := srv.Session(t)

	card, err := sess.Card(context.Background(), 7)
	require.NoError(t, err)
	card.Set("name", mbql.String("Turnover SR"))

	require.NoError(t, sess.UpdateCard(context.Background(), 7, card))
	puts := srv.Puts("/api/card/7")
	require.Len(t, puts, 1)
	assert.Equal(t,
		`{"name":"Turnover SR","id":7,"dataset_query":{"type":"native","native":{"query":"select 1 where a < 2"}}}`,
		puts[0])
}

func TestCreateMetric(t *testing.T) {
	srv := metabasetest.New(t)
	sess := srv.Session(t)

	doc, err := mbql.DecodeMapping([]byte(`{"name":"Turnover SR","table_id":90,"collection_id":767}`))
	require.NoError(t, err)
	created, err := sess.CreateMetric(context.Background(), doc)
	require.NoError(t, err)

	id, ok := created.IntAt("id")
	require.True(t, ok)
	assert.Equal(t, int64(metabasetest.FirstCreatedID), id)
	require.Len(t, srv.Posts("/api/metric"), 1)
	assert.Equal(t, `{"name":"Turnover SR","table_id":90,"collection_id":767}`, srv.Posts("/api/metric")[0])

	got, err := sess.Metric(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Turnover SR", got.StringAt("name"))
}

func TestCreateCard_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"visualization_settings is required"}`))
	}))
	t.Cleanup(srv.Close)

	sess := metabase.NewSession(metabase.NewClient(srv.URL), "tok")
	_, err := sess.CreateCard(context.Background(), mbql.NewMapping())

	var apiErr *metabase.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.MethodPost, apiErr.Method)
	assert.Contains(t, apiErr.Error(), "visualization_settings is required")
}

func TestUpdate_Non200IsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	sess := metabase.NewSession(metabase.NewClient(srv.URL), "tok")
	err := sess.UpdateMetric(context.Background(), 3, mbql.NewMapping())
	require.Error(t, err)

	var apiErr *metabase.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusAccepted, apiErr.HTTPStatus)
}

func TestCollectionItemsAndSearch(t *testing.T) {
	srv := metabasetest.New(t)
	srv.Set("/api/collection/767/items", `{"total":2,"data":[{"id":1,"name":"Turnover"},{"id":2,"name":"Fees"},3]}`)
	srv.Set("/api/search", `{"data":[{"id":9,"name":"Turnover (oor)","model":"metric"}]}`)
	sess := srv.Session(t)

	items, err := sess.CollectionItems(context.Background(), 767, "metric")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Fees", items[1].StringAt("name"))

	found, err := sess.Search(context.Background(), "metric", "")
	require.NoError(t, err)
	require.Len(t, found, 1)
	id, _ := found[0].IntAt("id")
	assert.Equal(t, int64(9), id)
}

func TestCollectionItems_BareArray(t *testing.T) {
	srv := metabasetest.New(t)
	srv.Set("/api/collection/5/items", `[{"id":1}]`)
	sess := srv.Session(t)

	items, err := sess.CollectionItems(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestTableMetadata(t *testing.T) {
	srv := metabasetest.New(t)
	srv.Set("/api/table/5", `{"id":5,"db_id":2,"name":"ORDERS","schema":"EXA","display_name":"Orders"}`)
	srv.Set("/api/table/91/query_metadata", `{"id":91,"name":"sr_orders","fields":[{"id":700,"name":"amount","database_type":"DECIMAL(18,2)"},{"id":701,"name":"id","database_type":"BIGINT"}]}`)
	srv.Set("/api/field/100", `{"id":100,"name":"AMOUNT","table_id":5}`)
	srv.Set("/api/database/16/metadata", `{"id":16,"name":"StarRocks","engine":"starrocks","tables":[{"id":91,"name":"sr_orders","schema":"dwh"}]}`)
	sess := srv.Session(t)
	ctx := context.Background()

	table, err := sess.Table(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "EXA.ORDERS", table.QualifiedName())

	meta, err := sess.TableQueryMetadata(ctx, 91)
	require.NoError(t, err)
	f, ok := meta.FindField("AMOUNT")
	require.True(t, ok)
	assert.Equal(t, int64(700), f.ID)

	ct := meta.CoreTable()
	require.Len(t, ct.Columns, 2)
	assert.Equal(t, "float", string(ct.Columns[0].Type))

	field, err := sess.Field(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "AMOUNT", field.Name)

	db, err := sess.DatabaseMetadata(ctx, 16)
	require.NoError(t, err)
	tbl, ok := db.FindTable("SR_ORDERS")
	require.True(t, ok)
	assert.Equal(t, int64(91), tbl.ID)
	_, ok = db.FindTable("dwh.sr_orders")
	assert.True(t, ok)
}

func TestRateLimitHonoursContext(t *testing.T) {
	srv := metabasetest.New(t)
	srv.Set("/api/card/1", `{"id":1}`)

	c := metabase.NewClient(srv.URL, metabase.WithRateLimit(0.001))
	sess := metabase.NewSession(c, metabasetest.Token)

	_, err := sess.Card(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = sess.Card(ctx, 1)
	require.Error(t, err)
}

func TestAPIErrorMessage(t *testing.T) {
	err := &metabase.APIError{HTTPStatus: 403}
	assert.Equal(t, "API error (HTTP 403): Forbidden", err.Error())
}
