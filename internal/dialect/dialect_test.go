package dialect

import (
	"maps"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTranslator struct {
	opts Options
}

func (m *mockTranslator) Source() Type { return "a" }
func (m *mockTranslator) Target() Type { return "b" }
func (m *mockTranslator) Translate(sql string) *Result {
	return &Result{SQL: sql}
}

func TestRegisterTranslator(t *testing.T) {
	originalRegistry := make(map[pair]func(Options) Translator)
	maps.Copy(originalRegistry, registry)
	defer func() {
		registry = originalRegistry
	}()

	registry = make(map[pair]func(Options) Translator)

	_, err := GetTranslator("a", "b", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "available: none")

	RegisterTranslator("a", "b", func(opts Options) Translator {
		return &mockTranslator{opts: opts}
	})

	tr, err := GetTranslator("a", "b", Options{Functions: map[string]string{"X": "Y"}})
	require.NoError(t, err)
	assert.Equal(t, "Y", tr.(*mockTranslator).opts.Functions["X"])

	_, err = GetTranslator("b", "a", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a->b")
}

func TestResultChanged(t *testing.T) {
	assert.False(t, (&Result{SQL: "select 1"}).Changed())
	assert.True(t, (&Result{Rewrites: []Rewrite{{From: "SUBSTR", To: "SUBSTRING", Count: 1}}}).Changed())
}
