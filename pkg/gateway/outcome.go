package gateway

import "time"

// Kind identifies which variant of an Outcome is populated.
type Kind int

const (
	// KindRowSet is the result of a read statement.
	KindRowSet Kind = iota
	// KindAck acknowledges a write or DDL statement.
	KindAck
	// KindFailure carries the executor's diagnostic.
	KindFailure
)

// String returns the kind's lowercase name.
func (k Kind) String() string {
	switch k {
	case KindRowSet:
		return "rowset"
	case KindAck:
		return "ack"
	case KindFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Outcome is the normalized result of executing one statement.
type Outcome struct {
	Kind Kind `json:"kind"`

	// RowSet
	Columns []string `json:"columns,omitempty"`
	Rows    [][]any  `json:"rows,omitempty"`

	// Ack. Zero when the driver does not report a count.
	Affected int64 `json:"affected,omitempty"`

	// Failure
	Message string `json:"message,omitempty"`

	Statement string        `json:"statement"`
	Duration  time.Duration `json:"duration"`
}

// RowSet builds a row set outcome. Every row must have len(columns) cells.
func RowSet(columns []string, rows [][]any) *Outcome {
	if columns == nil {
		columns = []string{}
	}
	if rows == nil {
		rows = [][]any{}
	}
	return &Outcome{Kind: KindRowSet, Columns: columns, Rows: rows}
}

// Ack builds an acknowledgement outcome.
func Ack(affected int64) *Outcome {
	return &Outcome{Kind: KindAck, Affected: affected}
}

// Failure builds a failure outcome carrying msg verbatim.
func Failure(msg string) *Outcome {
	return &Outcome{Kind: KindFailure, Message: msg}
}

// IsRowSet reports whether the statement returned rows.
func (o *Outcome) IsRowSet() bool { return o.Kind == KindRowSet }

// IsAck reports whether a non-query statement completed.
func (o *Outcome) IsAck() bool { return o.Kind == KindAck }

// IsFailure reports whether the executor rejected the statement.
func (o *Outcome) IsFailure() bool { return o.Kind == KindFailure }
