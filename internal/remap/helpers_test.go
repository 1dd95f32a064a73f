package remap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mbmigrate/internal/mbql"
)

func mustMapping(t *testing.T, src string) *mbql.Mapping {
	t.Helper()
	m, err := mbql.DecodeMapping([]byte(src))
	require.NoError(t, err)
	return m
}

func requireJSON(t *testing.T, want string, got mbql.Node) {
	t.Helper()
	raw, err := mbql.Marshal(got)
	require.NoError(t, err)
	require.JSONEq(t, want, string(raw))
}

func marshal(t *testing.T, n mbql.Node) string {
	t.Helper()
	raw, err := mbql.Marshal(n)
	require.NoError(t, err)
	return string(raw)
}
