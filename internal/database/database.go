package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/queryscope/queryscope/internal/qerr"
)

// Limits bounds one request's use of the database.
type Limits struct {
	QueryTimeout    time.Duration // execution deadline, connection force-closed on expiry
	MaxRows         int           // result rows kept before truncation
	MaxSchemaTables int           // tables embedded in the schema snapshot
}

// DefaultLimits returns the stock request bounds.
func DefaultLimits() Limits {
	return Limits{
		QueryTimeout:    30 * time.Second,
		MaxRows:         10000,
		MaxSchemaTables: 200,
	}
}

// DialectHandler is implemented once per engine. Handlers own DSN
// construction, identifier quoting, information-schema introspection,
// read-only session setup and error classification.
type DialectHandler interface {
	CreateStandardPool(cfg Descriptor) (*sql.DB, error)
	CreateCloudSQLPool(cfg Descriptor) (*sql.DB, error)
	QuoteIdentifier(name string) string
	ListTables(ctx context.Context, db *DB) ([]string, error)
	ListColumns(ctx context.Context, db *DB, tableName string) ([]ColumnInfo, error)
	// ReadOnlySessionSQL returns statements run on the request connection
	// before the query to enforce read-only execution. Empty when the
	// engine has no session-level switch.
	ReadOnlySessionSQL() []string
	// ClassifyError maps a driver error to the pipeline taxonomy.
	ClassifyError(err error) qerr.Kind
}

var (
	dialectHandlers = make(map[string]DialectHandler)
	mu              sync.RWMutex
)

func RegisterDialectHandler(dialect string, handler DialectHandler) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := dialectHandlers[dialect]; exists {
		log.Printf("WARN: Dialect handler for '%s' is being overwritten.", dialect)
	}
	dialectHandlers[dialect] = handler
}

func GetDialectHandler(dialect string) (DialectHandler, error) {
	mu.RLock()
	defer mu.RUnlock()
	handler, ok := dialectHandlers[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported database dialect: %s", dialect)
	}
	return handler, nil
}

// DB holds one request's connection pool and dialect handler. The pool is
// opened per request and closed when the request finishes; there is no
// cross-request pooling.
type DB struct {
	Pool    *sql.DB
	Handler DialectHandler
	Config  Descriptor
	Limits  Limits
}

// New opens a pool for the descriptor and verifies connectivity. The
// returned error is tagged: unreachable hosts and bad credentials map to
// the connection kind.
func New(ctx context.Context, cfg Descriptor, limits Limits) (*DB, error) {
	handler, err := GetDialectHandler(cfg.Dialect)
	if err != nil {
		return nil, qerr.Wrap(qerr.KindConnection, err.Error(), err)
	}

	var pool *sql.DB
	if strings.HasPrefix(cfg.Dialect, "cloudsql") {
		pool, err = handler.CreateCloudSQLPool(cfg)
	} else {
		pool, err = handler.CreateStandardPool(cfg)
	}
	if err != nil {
		return nil, qerr.Wrap(qerr.KindConnection, "failed to open database connection", err)
	}

	// One logical connection per request.
	pool.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, limits.QueryTimeout)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		pool.Close()
		return nil, classify(handler, err, qerr.KindConnection, "failed to connect to database")
	}

	return &DB{Pool: pool, Handler: handler, Config: cfg, Limits: limits}, nil
}

func (db *DB) Ping(ctx context.Context) error {
	if db.Pool == nil {
		return qerr.New(qerr.KindConnection, "database connection pool is not initialized")
	}
	if err := db.Pool.PingContext(ctx); err != nil {
		return classify(db.Handler, err, qerr.KindConnection, "failed to reach database")
	}
	return nil
}

func (db *DB) Close() error {
	if db.Pool != nil {
		return db.Pool.Close()
	}
	return nil
}

// FetchSchema introspects table and column metadata for prompt grounding.
// Schemas larger than the table cap are truncated in name order and the
// truncation is reported on the snapshot, never silently applied.
func (db *DB) FetchSchema(ctx context.Context) (*SchemaSnapshot, error) {
	if db.Handler == nil {
		return nil, qerr.New(qerr.KindConnection, "dialect handler not initialized")
	}

	tables, err := db.Handler.ListTables(ctx, db)
	if err != nil {
		return nil, classify(db.Handler, err, qerr.KindQueryExecution, "failed to list tables")
	}

	snapshot := &SchemaSnapshot{TotalTables: len(tables)}
	if db.Limits.MaxSchemaTables > 0 && len(tables) > db.Limits.MaxSchemaTables {
		tables = tables[:db.Limits.MaxSchemaTables]
		snapshot.Truncated = true
	}

	for _, table := range tables {
		columns, err := db.Handler.ListColumns(ctx, db, table)
		if err != nil {
			return nil, classify(db.Handler, err, qerr.KindQueryExecution, fmt.Sprintf("failed to list columns for table %s", table))
		}
		snapshot.Tables = append(snapshot.Tables, TableSchema{Name: table, Columns: columns})
	}

	return snapshot, nil
}

// ExecuteQuery runs a validated statement on a dedicated connection with
// the configured deadline and row cap, normalizes every cell to a Scalar
// and releases the connection on every exit path.
func (db *DB) ExecuteQuery(ctx context.Context, sqlText string) (*ResultSet, error) {
	if db.Pool == nil {
		return nil, qerr.New(qerr.KindConnection, "database connection pool is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, db.Limits.QueryTimeout)
	defer cancel()

	conn, err := db.Pool.Conn(ctx)
	if err != nil {
		return nil, classify(db.Handler, err, qerr.KindConnection, "failed to acquire database connection")
	}
	defer conn.Close()

	for _, stmt := range db.Handler.ReadOnlySessionSQL() {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return nil, classify(db.Handler, err, qerr.KindQueryExecution, "failed to enforce read-only session")
		}
	}

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, classify(db.Handler, err, qerr.KindQueryExecution, "query execution failed")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, classify(db.Handler, err, qerr.KindQueryExecution, "failed to read result columns")
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, classify(db.Handler, err, qerr.KindQueryExecution, "failed to read result column types")
	}
	dbTypes := make([]string, len(colTypes))
	for i, ct := range colTypes {
		dbTypes[i] = ct.DatabaseTypeName()
	}

	result := &ResultSet{Columns: columns}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if db.Limits.MaxRows > 0 && len(result.Rows) >= db.Limits.MaxRows {
			result.Truncated = true
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classify(db.Handler, err, qerr.KindQueryExecution, "failed to scan result row")
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = convertScalar(values[i], dbTypes[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(db.Handler, err, qerr.KindQueryExecution, "query execution failed")
	}

	return result, nil
}

// decimalTypes are engine type names delivered as []byte that carry
// numeric values. Anything else byte-shaped stays a string so that
// numeric-looking identifiers are not coerced.
var decimalTypes = map[string]bool{
	"DECIMAL":    true,
	"NUMERIC":    true,
	"MONEY":      true,
	"NEWDECIMAL": true,
}

// convertScalar maps a driver value to the ResultSet scalar union: dates to
// timestamps (serialized ISO-8601), decimals to numbers, booleans preserved.
func convertScalar(v any, dbType string) Scalar {
	switch value := v.(type) {
	case nil:
		return NullScalar()
	case bool:
		return BoolScalar(value)
	case int64:
		return NumberScalar(float64(value))
	case float64:
		return NumberScalar(value)
	case float32:
		return NumberScalar(float64(value))
	case time.Time:
		return TimeScalar(value)
	case []byte:
		s := string(value)
		if decimalTypes[strings.ToUpper(dbType)] {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return NumberScalar(f)
			}
		}
		return StringScalar(s)
	case string:
		return StringScalar(value)
	default:
		return StringScalar(fmt.Sprintf("%v", value))
	}
}

// classify tags a driver error with a taxonomy kind and a caller-safe
// message. Deadline expiry always wins so held connections are reported as
// timeouts; otherwise the dialect handler decides, falling back to the
// caller's default kind. The raw driver error is wrapped but never shown.
func classify(handler DialectHandler, err error, fallback qerr.Kind, msg string) *qerr.Error {
	kind := fallback
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = qerr.KindTimeout
		msg = "query exceeded the execution deadline"
	case errors.Is(err, context.Canceled):
		kind = qerr.KindTimeout
		msg = "query was cancelled"
	default:
		if handler != nil {
			if k := handler.ClassifyError(err); k != "" {
				kind = k
			}
		}
	}
	return qerr.Wrap(kind, msg, err)
}
