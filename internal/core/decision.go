package core

// DecisionKind is used to identify what the remapper decided for a query element.
type DecisionKind string

const (
	DecisionMapped     DecisionKind = "MAPPED"
	DecisionRemoved    DecisionKind = "REMOVED"
	DecisionTable      DecisionKind = "TABLE"
	DecisionJoin       DecisionKind = "JOIN"
	DecisionNote       DecisionKind = "NOTE"
	DecisionUnresolved DecisionKind = "UNRESOLVED"
)

// Reason explains why a field or table could not be mapped.
type Reason string

const (
	// ReasonNoTableMapping means the mapping file has no entry for the source table.
	ReasonNoTableMapping Reason = "no-table-mapping"
	// ReasonTargetTableMissing means the mapped table does not exist in the target database.
	ReasonTargetTableMissing Reason = "target-table-missing"
	// ReasonColumnMissing means the target table has no column with the source column's name.
	ReasonColumnMissing Reason = "column-missing"
	// ReasonLookupFailed means a metadata request failed for a reason other than absence.
	ReasonLookupFailed Reason = "lookup-failed"
	// ReasonSourceUnknown means the source table or field is unknown to Metabase.
	ReasonSourceUnknown Reason = "source-unknown"
	// ReasonUnmapped means the field reference had no entry in the remap table.
	ReasonUnmapped Reason = "unmapped"
)

// Decision is one entry of the log written while migrating a query.
type Decision struct {
	Kind DecisionKind `json:"kind"`

	FieldID int64   `json:"fieldId,omitempty"`
	Table   TableID `json:"table,omitempty"`
	Alias   string  `json:"alias,omitempty"`
	Column  string  `json:"column,omitempty"`

	TargetTable string `json:"targetTable,omitempty"`
	TargetID    int64  `json:"targetId,omitempty"`

	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}
