package database

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Descriptor holds the connection parameters for one database. It is owned
// by the caller's request and never persisted.
type Descriptor struct {
	Dialect                        string
	Host                           string
	Port                           int
	User                           string
	Password                       string
	DBName                         string
	SSLMode                        string
	CloudSQLInstanceConnectionName string
	UsePrivateIP                   bool
}

// ColumnKind is the coarse type the analyzer works with.
type ColumnKind string

const (
	ColumnString  ColumnKind = "string"
	ColumnNumber  ColumnKind = "number"
	ColumnDate    ColumnKind = "date"
	ColumnBoolean ColumnKind = "boolean"
)

// ColumnInfo holds basic information about a database column.
type ColumnInfo struct {
	Name     string
	DataType string
	Kind     ColumnKind
}

// TableSchema is one table with its columns in ordinal order.
type TableSchema struct {
	Name    string
	Columns []ColumnInfo
}

// SchemaSnapshot is a per-request view of the database schema, table-name
// ordered. Truncated reports that the table cap was applied so callers can
// tell the prompt no longer covers the whole database.
type SchemaSnapshot struct {
	Tables      []TableSchema
	TotalTables int
	Truncated   bool
}

// ScalarKind tags the value held by a Scalar.
type ScalarKind int

const (
	ScalarNull ScalarKind = iota
	ScalarString
	ScalarNumber
	ScalarBool
	ScalarTime
)

// Scalar is the tagged union a result cell normalizes to: string, number,
// boolean, timestamp or null. Keeping the tag lets the analyzer classify
// columns without re-sniffing strings.
type Scalar struct {
	Kind ScalarKind
	Str  string
	Num  float64
	Bool bool
	Time time.Time
}

func NullScalar() Scalar            { return Scalar{Kind: ScalarNull} }
func StringScalar(s string) Scalar  { return Scalar{Kind: ScalarString, Str: s} }
func NumberScalar(f float64) Scalar { return Scalar{Kind: ScalarNumber, Num: f} }
func BoolScalar(b bool) Scalar      { return Scalar{Kind: ScalarBool, Bool: b} }
func TimeScalar(t time.Time) Scalar { return Scalar{Kind: ScalarTime, Time: t} }

// IsNull reports whether the scalar holds no value.
func (s Scalar) IsNull() bool { return s.Kind == ScalarNull }

// Display renders the scalar for labels and insight text. Timestamps use
// ISO-8601, matching what the JSON encoding emits.
func (s Scalar) Display() string {
	switch s.Kind {
	case ScalarString:
		return s.Str
	case ScalarNumber:
		return strconv.FormatFloat(s.Num, 'f', -1, 64)
	case ScalarBool:
		return strconv.FormatBool(s.Bool)
	case ScalarTime:
		return s.Time.Format(time.RFC3339)
	default:
		return ""
	}
}

// MarshalJSON emits the native JSON form of the scalar so rows serialize as
// plain objects the front end can consume structurally.
func (s Scalar) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case ScalarString:
		return json.Marshal(s.Str)
	case ScalarNumber:
		return json.Marshal(s.Num)
	case ScalarBool:
		return json.Marshal(s.Bool)
	case ScalarTime:
		return json.Marshal(s.Time.Format(time.RFC3339))
	default:
		return []byte("null"), nil
	}
}

// Row maps column name to scalar. Every row of a ResultSet has exactly the
// ResultSet's column set as keys.
type Row map[string]Scalar

// ResultSet is the normalized tabular output of a query. An empty ResultSet
// is valid. Truncated reports that the row cap was applied.
type ResultSet struct {
	Columns   []string
	Rows      []Row
	Truncated bool
}

// CoarseKind maps an engine-declared column type to the coarse kind set.
// Shared by all dialect handlers since information-schema type names
// overlap heavily across engines.
func CoarseKind(dataType string) ColumnKind {
	t := strings.ToLower(dataType)
	switch {
	case strings.Contains(t, "bool"), t == "bit", strings.HasPrefix(t, "tinyint(1)"):
		return ColumnBoolean
	case strings.Contains(t, "date"), strings.Contains(t, "time"):
		return ColumnDate
	case strings.Contains(t, "int"), strings.Contains(t, "decimal"),
		strings.Contains(t, "numeric"), strings.Contains(t, "float"),
		strings.Contains(t, "double"), strings.Contains(t, "real"),
		strings.Contains(t, "money"), strings.Contains(t, "serial"),
		t == "number":
		return ColumnNumber
	default:
		return ColumnString
	}
}
