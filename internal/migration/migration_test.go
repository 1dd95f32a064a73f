package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mbmigrate/internal/core"
)

func TestMigrationPlan(t *testing.T) {
	key := core.FieldKey{ID: 100, Table: "5", Alias: "t1"}

	m := &Migration{}
	m.AddTable("5", "EXA.ORDERS", "SR_ORDERS", 91, "")
	m.AddMapped(key, "AMOUNT", 700)
	m.AddJoin("t1", "5", 91, "inner-join")
	m.AddNote("  root table 91  ")
	m.AddNote("   ")

	plan := m.Plan()
	assert.Len(t, plan, 4)
	assert.Equal(t, core.DecisionTable, plan[0].Kind)
	assert.Equal(t, core.Decision{
		Kind:     core.DecisionMapped,
		FieldID:  100,
		Table:    "5",
		Alias:    "t1",
		Column:   "AMOUNT",
		TargetID: 700,
	}, plan[1])
	assert.Equal(t, "inner-join", plan[2].Message)
	assert.Equal(t, []string{"root table 91"}, m.InfoNotes())
}

func TestMigrationDedupe(t *testing.T) {
	key := core.FieldKey{ID: 100, Table: "5", Alias: "t1"}

	m := &Migration{}
	m.AddUnresolved(key, "AMOUNT", core.ReasonColumnMissing, "")
	m.AddRemoved(key, "AMOUNT", core.ReasonColumnMissing)
	m.AddRemoved(key, "AMOUNT", core.ReasonColumnMissing)
	m.AddUnresolved(key, "AMOUNT", core.ReasonColumnMissing, "")
	m.AddTable("7", "EXA.X", "", 0, core.ReasonNoTableMapping)
	m.AddTable("7", "EXA.X", "", 0, core.ReasonNoTableMapping)
	m.AddNote("a")
	m.AddNote("a")

	m.Dedupe()

	assert.Equal(t, 1, m.Count(core.DecisionUnresolved))
	assert.Equal(t, 2, m.Count(core.DecisionRemoved))
	assert.Equal(t, 1, m.Count(core.DecisionTable))
	assert.Equal(t, 1, m.Count(core.DecisionNote))
	assert.Len(t, m.Removed(), 2)
}

func TestMigrationDedupeEmpty(t *testing.T) {
	m := &Migration{}
	m.Dedupe()
	assert.Empty(t, m.Plan())
	assert.Empty(t, m.UnresolvedNotes())
}

func TestFormatUnresolved(t *testing.T) {
	tests := []struct {
		name string
		d    core.Decision
		want string
	}{
		{
			name: "join context",
			d: core.Decision{
				Kind: core.DecisionUnresolved, FieldID: 100, Table: "5", Alias: "t1",
				Column: "AMOUNT", Reason: core.ReasonColumnMissing,
			},
			want: "table 5 / alias t1 / column AMOUNT (field 100): column-missing",
		},
		{
			name: "root without column",
			d: core.Decision{
				Kind: core.DecisionUnresolved, FieldID: 3, Table: "9",
				Reason: core.ReasonSourceUnknown, Message: "field 3 not found",
			},
			want: "table 9 (field 3): source-unknown (field 3 not found)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUnresolved(tt.d))
		})
	}
}

func TestUnresolvedNotes(t *testing.T) {
	m := &Migration{}
	m.AddUnresolved(core.FieldKey{ID: 100, Table: "5", Alias: "t1"}, "AMOUNT", core.ReasonColumnMissing, "")
	assert.Equal(t, []string{"table 5 / alias t1 / column AMOUNT (field 100): column-missing"}, m.UnresolvedNotes())
}
