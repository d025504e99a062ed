package torm

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Executor is the database executor capability consumed by the table
// operations engine. 每个方法都有可取消的 Context 变体；
// 参数为位置参数，布尔和 GUID 在绑定前按方言编码，nil 映射为数据库 NULL
type Executor interface {
	// DatabaseType returns the dialect of the underlying connection
	DatabaseType() DatabaseType

	// ExecuteNonQuery executes a statement and returns the affected row count
	ExecuteNonQuery(sqlText string, args ...interface{}) (int64, error)
	ExecuteNonQueryContext(ctx context.Context, sqlText string, args ...interface{}) (int64, error)

	// ExecuteScalar executes a query and returns the first column of the
	// first row, nil when the query produces no rows
	ExecuteScalar(sqlText string, args ...interface{}) (interface{}, error)
	ExecuteScalarContext(ctx context.Context, sqlText string, args ...interface{}) (interface{}, error)

	// ExecuteReader executes a query and returns a streaming row cursor
	ExecuteReader(sqlText string, args ...interface{}) (*sql.Rows, error)
	ExecuteReaderContext(ctx context.Context, sqlText string, args ...interface{}) (*sql.Rows, error)

	// RetrieveRow returns the first row of a query, nil when absent
	RetrieveRow(sqlText string, args ...interface{}) (*Record, error)
	RetrieveRowContext(ctx context.Context, sqlText string, args ...interface{}) (*Record, error)

	// RetrieveData buffers a full result set into a DataTable
	RetrieveData(sqlText string, args ...interface{}) (*DataTable, error)
	RetrieveDataContext(ctx context.Context, sqlText string, args ...interface{}) (*DataTable, error)

	// RetrieveDataSet buffers every result set of a multi-statement query
	RetrieveDataSet(sqlText string, args ...interface{}) (*DataSet, error)
	RetrieveDataSetContext(ctx context.Context, sqlText string, args ...interface{}) (*DataSet, error)
}

// rowScanner 抽象 sql.Rows 的扫描面，方便结果集物化复用
type rowScanner interface {
	Columns() ([]string, error)
	ColumnTypes() ([]*sql.ColumnType, error)
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// TypedParameter wraps a parameter value with a dialect-specific declared DB
// type. 多数驱动忽略声明类型，绑定时仅取 Value
type TypedParameter struct {
	Value  interface{}
	DBType string
}

// Config holds the database connection configuration
type Config struct {
	Driver          DatabaseType  // 数据库方言（同时也是 database/sql 驱动名）
	DriverName      string        // 显式驱动名，为空时使用 Driver
	DSN             string        // Data source name (connection string)
	MaxOpen         int           // Maximum number of open connections
	MaxIdle         int           // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum connection lifetime
	QueryTimeout    time.Duration // Default query timeout (0 means no timeout)

	StmtCache StmtCacheConfig // 预编译语句缓存配置
}

// Connection is the production Executor over database/sql.
// 单个 Connection 内部使用连接池，但引擎按「每实例一个逻辑连接」的约定使用它
type Connection struct {
	name    string
	config  *Config
	db      *sql.DB
	dialect DatabaseType
	stmts   *stmtCache
}

// OpenConnection opens a database connection with default settings
func OpenConnection(driver DatabaseType, dsn string, maxOpen int) (*Connection, error) {
	config := &Config{
		Driver:          driver,
		DSN:             dsn,
		MaxOpen:         maxOpen,
		MaxIdle:         maxOpen / 2,
		ConnMaxLifetime: time.Hour,
		StmtCache:       DefaultStmtCacheConfig(),
	}
	return OpenConnectionWithConfig("default", config)
}

// OpenConnectionWithConfig opens a named database connection
func OpenConnectionWithConfig(name string, config *Config) (*Connection, error) {
	if config == nil || config.DSN == "" {
		return nil, fmt.Errorf("torm: connection config requires a DSN")
	}
	driverName := config.DriverName
	if driverName == "" {
		driverName = string(config.Driver)
	}

	db, err := sql.Open(driverName, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("torm: open database %q: %w", name, err)
	}
	if config.MaxOpen > 0 {
		db.SetMaxOpenConns(config.MaxOpen)
	}
	if config.MaxIdle > 0 {
		db.SetMaxIdleConns(config.MaxIdle)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("torm: ping database %q: %w", name, err)
	}

	return &Connection{
		name:    name,
		config:  config,
		db:      db,
		dialect: ParseDatabaseType(driverName),
		stmts:   newStmtCache(config.StmtCache),
	}, nil
}

// WrapConnection wraps an already-open *sql.DB.
// 用于测试或调用方自行管理连接生命周期的场景
func WrapConnection(db *sql.DB, dialect DatabaseType) *Connection {
	return &Connection{
		name:    "wrapped",
		config:  &Config{Driver: dialect, StmtCache: DefaultStmtCacheConfig()},
		db:      db,
		dialect: dialect,
		stmts:   newStmtCache(DefaultStmtCacheConfig()),
	}
}

// DatabaseType returns the dialect of this connection
func (c *Connection) DatabaseType() DatabaseType {
	return c.dialect
}

// DB returns the underlying database handle
func (c *Connection) DB() *sql.DB {
	return c.db
}

// Close closes the connection and every cached prepared statement
func (c *Connection) Close() error {
	if c.stmts != nil {
		c.stmts.Clear()
	}
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// BeginTx starts a transaction at the dialect's default isolation level
func (c *Connection) BeginTx(ctx context.Context) (*sql.Tx, error) {
	if c.db == nil {
		return nil, ErrNotInitialized
	}
	return c.db.BeginTx(ctx, &sql.TxOptions{Isolation: c.dialect.DefaultIsolationLevel()})
}

// queryContext 返回带超时控制的 context
func (c *Connection) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config != nil && c.config.QueryTimeout > 0 {
		return context.WithTimeout(ctx, c.config.QueryTimeout)
	}
	return ctx, func() {}
}

// prepareSQL converts placeholders to the dialect form and sanitizes the
// argument list
func (c *Connection) prepareSQL(sqlText string, args []interface{}) (string, []interface{}) {
	converted := c.dialect.convertPlaceholders(sqlText)
	return converted, c.sanitizeArgs(sqlText, args)
}

// sanitizeArgs 解引用指针参数、展开 TypedParameter、按方言编码布尔和
// GUID 值，并截断超出占位符数量的多余参数
func (c *Connection) sanitizeArgs(sqlText string, args []interface{}) []interface{} {
	if len(args) == 0 {
		return args
	}

	maxArgs := len(args)
	if count := countPlaceholders(sqlText); count > 0 && count < maxArgs {
		maxArgs = count
	}

	cleaned := make([]interface{}, 0, maxArgs)
	for i := 0; i < maxArgs; i++ {
		cleaned = append(cleaned, c.encodeArg(args[i]))
	}
	return cleaned
}

// encodeArg encodes one parameter value for binding
func (c *Connection) encodeArg(arg interface{}) interface{} {
	if arg == nil {
		return nil
	}

	if typed, ok := arg.(TypedParameter); ok {
		return c.encodeArg(typed.Value)
	}

	// 解引用指针，获取实际值
	v := reflect.ValueOf(arg)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		arg = v.Elem().Interface()
	}

	switch value := arg.(type) {
	case bool:
		return c.dialect.EncodeBoolean(value)
	case uuid.UUID:
		return c.dialect.EncodeGuid(value)
	case time.Time:
		if c.dialect == Oracle {
			// Oracle 驱动对 time.Time 的绑定不稳定，转为标准字符串
			return value.Format("2006-01-02 15:04:05")
		}
		return value
	default:
		return arg
	}
}

// getOrPrepareStmt 获取或创建预编译语句
func (c *Connection) getOrPrepareStmt(ctx context.Context, sqlText string) (*sql.Stmt, error) {
	cacheKey := c.name + ":" + sqlText
	if stmt, ok := c.stmts.Get(cacheKey); ok {
		return stmt, nil
	}

	stmt, err := c.db.PrepareContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	c.stmts.Set(cacheKey, stmt, sqlText)
	return stmt, nil
}

// isStmtInvalidError 检查是否是连接失效导致的语句错误
func isStmtInvalidError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "invalid connection") ||
		strings.Contains(errStr, "bad connection") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset")
}

// ExecuteNonQuery executes a statement and returns the affected row count
func (c *Connection) ExecuteNonQuery(sqlText string, args ...interface{}) (int64, error) {
	return c.ExecuteNonQueryContext(context.Background(), sqlText, args...)
}

// ExecuteNonQueryContext is the cancellable twin of ExecuteNonQuery
func (c *Connection) ExecuteNonQueryContext(ctx context.Context, sqlText string, args ...interface{}) (int64, error) {
	if c == nil || c.db == nil {
		return 0, ErrNotInitialized
	}
	ctx, cancel := c.queryContext(ctx)
	defer cancel()

	converted, cleaned := c.prepareSQL(sqlText, args)
	start := time.Now()

	result, err := c.db.ExecContext(ctx, converted, cleaned...)
	c.logTrace(start, converted, cleaned, err)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		// 个别驱动不支持 RowsAffected，按 0 行处理
		return 0, nil
	}
	return affected, nil
}

// ExecuteScalar executes a query and returns the first column of the first
// row, nil when no rows match
func (c *Connection) ExecuteScalar(sqlText string, args ...interface{}) (interface{}, error) {
	return c.ExecuteScalarContext(context.Background(), sqlText, args...)
}

// ExecuteScalarContext is the cancellable twin of ExecuteScalar
func (c *Connection) ExecuteScalarContext(ctx context.Context, sqlText string, args ...interface{}) (interface{}, error) {
	row, err := c.RetrieveRowContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	if row == nil || row.Len() == 0 {
		return nil, nil
	}
	return row.Get(row.Columns()[0]), nil
}

// ExecuteReader executes a query and returns the raw row cursor
func (c *Connection) ExecuteReader(sqlText string, args ...interface{}) (*sql.Rows, error) {
	return c.ExecuteReaderContext(context.Background(), sqlText, args...)
}

// ExecuteReaderContext is the cancellable twin of ExecuteReader.
// 返回游标的查询不经过语句缓存：游标生命周期由调用方控制
func (c *Connection) ExecuteReaderContext(ctx context.Context, sqlText string, args ...interface{}) (*sql.Rows, error) {
	if c == nil || c.db == nil {
		return nil, ErrNotInitialized
	}
	converted, cleaned := c.prepareSQL(sqlText, args)
	start := time.Now()

	rows, err := c.db.QueryContext(ctx, converted, cleaned...)
	c.logTrace(start, converted, cleaned, err)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// RetrieveRow returns the first row of a query, nil when the query matches
// nothing
func (c *Connection) RetrieveRow(sqlText string, args ...interface{}) (*Record, error) {
	return c.RetrieveRowContext(context.Background(), sqlText, args...)
}

// RetrieveRowContext is the cancellable twin of RetrieveRow
func (c *Connection) RetrieveRowContext(ctx context.Context, sqlText string, args ...interface{}) (*Record, error) {
	table, err := c.retrieveTable(ctx, sqlText, args, true)
	if err != nil {
		return nil, err
	}
	if table.RowCount() == 0 {
		return nil, nil
	}
	return table.Rows[0], nil
}

// RetrieveData buffers a full result set into a DataTable
func (c *Connection) RetrieveData(sqlText string, args ...interface{}) (*DataTable, error) {
	return c.RetrieveDataContext(context.Background(), sqlText, args...)
}

// RetrieveDataContext is the cancellable twin of RetrieveData
func (c *Connection) RetrieveDataContext(ctx context.Context, sqlText string, args ...interface{}) (*DataTable, error) {
	return c.retrieveTable(ctx, sqlText, args, false)
}

// retrieveTable 查询并物化一个结果集；*sql.DB 查询路径使用语句缓存
func (c *Connection) retrieveTable(ctx context.Context, sqlText string, args []interface{}, firstRowOnly bool) (*DataTable, error) {
	if c == nil || c.db == nil {
		return nil, ErrNotInitialized
	}
	ctx, cancel := c.queryContext(ctx)
	defer cancel()

	converted, cleaned := c.prepareSQL(sqlText, args)
	start := time.Now()

	var rows *sql.Rows
	var err error
	if c.stmts != nil && c.stmts.config.Enabled {
		var stmt *sql.Stmt
		stmt, err = c.getOrPrepareStmt(ctx, converted)
		if err != nil {
			c.logTrace(start, converted, cleaned, err)
			return nil, err
		}
		rows, err = stmt.QueryContext(ctx, cleaned...)
		if err != nil && isStmtInvalidError(err) {
			// 连接失效的语句从缓存移除，下次重新准备
			c.stmts.Delete(c.name + ":" + converted)
		}
	} else {
		// 缓存关闭时不做预编译，避免语句无人关闭而泄漏
		rows, err = c.db.QueryContext(ctx, converted, cleaned...)
	}
	c.logTrace(start, converted, cleaned, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	table, err := scanDataTable(rows, "")
	if err != nil {
		return nil, err
	}
	if firstRowOnly && table.RowCount() > 1 {
		table.Rows = table.Rows[:1]
	}
	return table, nil
}

// RetrieveDataSet buffers every result set of a multi-statement query
func (c *Connection) RetrieveDataSet(sqlText string, args ...interface{}) (*DataSet, error) {
	return c.RetrieveDataSetContext(context.Background(), sqlText, args...)
}

// RetrieveDataSetContext is the cancellable twin of RetrieveDataSet
func (c *Connection) RetrieveDataSetContext(ctx context.Context, sqlText string, args ...interface{}) (*DataSet, error) {
	if c == nil || c.db == nil {
		return nil, ErrNotInitialized
	}
	ctx, cancel := c.queryContext(ctx)
	defer cancel()

	converted, cleaned := c.prepareSQL(sqlText, args)
	start := time.Now()

	rows, err := c.db.QueryContext(ctx, converted, cleaned...)
	c.logTrace(start, converted, cleaned, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := &DataSet{}
	for {
		table, err := scanDataTable(rows, fmt.Sprintf("table%d", len(set.Tables)))
		if err != nil {
			return nil, err
		}
		set.Tables = append(set.Tables, table)
		if !rows.NextResultSet() {
			break
		}
	}
	return set, nil
}

// StmtCacheStats 返回预编译语句缓存的统计信息
func (c *Connection) StmtCacheStats() map[string]interface{} {
	if c == nil || c.stmts == nil {
		return map[string]interface{}{"enabled": false, "error": "cache not initialized"}
	}
	return c.stmts.Stats()
}

// logTrace 封装 SQL 日志记录
func (c *Connection) logTrace(start time.Time, sqlText string, args []interface{}, err error) {
	duration := time.Since(start)
	if err != nil {
		LogSQLError(c.name, sqlText, args, duration, err)
		return
	}
	LogSQL(c.name, sqlText, args, duration)
}
