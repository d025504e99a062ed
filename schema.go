package torm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ColumnInfo describes one catalog column
type ColumnInfo struct {
	Name         string `json:"name"`
	DataType     string `json:"dataType"`
	Nullable     bool   `json:"nullable"`
	IsPrimaryKey bool   `json:"isPrimaryKey"`
	IsIdentity   bool   `json:"isIdentity"`
	Comment      string `json:"comment,omitempty"`
}

// ForeignKeyInfo describes one catalog foreign key reference
type ForeignKeyInfo struct {
	Column           string `json:"column"`
	ReferencedTable  string `json:"referencedTable"`
	ReferencedColumn string `json:"referencedColumn"`
}

// TableInfo describes one catalog table with its referential dependencies
type TableInfo struct {
	Name        string           `json:"name"`
	Columns     []ColumnInfo     `json:"columns"`
	ForeignKeys []ForeignKeyInfo `json:"foreignKeys,omitempty"`

	priority int
}

// PrimaryKeyColumnCount returns the number of primary key columns
func (t *TableInfo) PrimaryKeyColumnCount() int {
	count := 0
	for _, column := range t.Columns {
		if column.IsPrimaryKey {
			count++
		}
	}
	return count
}

// Column resolves a column by name, case-insensitive
func (t *TableInfo) Column(name string) *ColumnInfo {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i]
		}
	}
	return nil
}

// SchemaLoader reads table catalog metadata through an executor.
// 目录查询按方言走各自的系统视图，SQLite 用 PRAGMA
type SchemaLoader struct {
	executor Executor
}

// NewSchemaLoader creates a schema loader over an executor
func NewSchemaLoader(executor Executor) *SchemaLoader {
	return &SchemaLoader{executor: executor}
}

// TableNames lists the base table names of the connected catalog
func (l *SchemaLoader) TableNames(ctx context.Context) ([]string, error) {
	var query string
	switch l.executor.DatabaseType() {
	case MySQL:
		query = "SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME"
	case SQLite:
		query = "SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
	case PostgreSQL:
		query = "SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name"
	case SQLServer:
		query = "SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME"
	case Oracle:
		query = "SELECT TABLE_NAME FROM USER_TABLES ORDER BY TABLE_NAME"
	default:
		return nil, fmt.Errorf("torm: schema loading is not supported for dialect %q", l.executor.DatabaseType())
	}

	table, err := l.executor.RetrieveDataContext(ctx, query)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, table.RowCount())
	for _, row := range table.Rows {
		for _, value := range row.Values() {
			if name, ok := value.(string); ok && name != "" {
				names = append(names, name)
			}
			break
		}
	}
	return names, nil
}

// LoadTable reads column and foreign key metadata for one table
func (l *SchemaLoader) LoadTable(ctx context.Context, tableName string) (*TableInfo, error) {
	if err := ValidateIdentifier(tableName); err != nil {
		return nil, err
	}

	columns, err := l.loadColumns(ctx, tableName)
	if err != nil {
		return nil, err
	}
	foreignKeys, err := l.loadForeignKeys(ctx, tableName)
	if err != nil {
		return nil, err
	}

	return &TableInfo{Name: tableName, Columns: columns, ForeignKeys: foreignKeys}, nil
}

// LoadTables reads every base table of the catalog
func (l *SchemaLoader) LoadTables(ctx context.Context) ([]*TableInfo, error) {
	names, err := l.TableNames(ctx)
	if err != nil {
		return nil, err
	}
	tables := make([]*TableInfo, 0, len(names))
	for _, name := range names {
		info, err := l.LoadTable(ctx, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, info)
	}
	return tables, nil
}

func (l *SchemaLoader) loadColumns(ctx context.Context, tableName string) ([]ColumnInfo, error) {
	dialect := l.executor.DatabaseType()

	if dialect == SQLite {
		return l.loadColumnsSQLite(ctx, tableName)
	}

	var query string
	var args []interface{}
	switch dialect {
	case MySQL:
		query = `SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLUMN_COMMENT, COLUMN_KEY, EXTRA
			FROM INFORMATION_SCHEMA.COLUMNS
			WHERE LOWER(TABLE_NAME) = LOWER(?) AND TABLE_SCHEMA = (SELECT DATABASE())
			ORDER BY ORDINAL_POSITION`
		args = []interface{}{tableName}
	case PostgreSQL:
		query = `SELECT c.column_name, c.data_type, c.is_nullable,
			CASE WHEN pk.column_name IS NOT NULL THEN 'PRI' ELSE '' END AS column_key,
			CASE WHEN c.column_default LIKE 'nextval%' THEN 'auto_increment' ELSE '' END AS extra
			FROM information_schema.columns c
			LEFT JOIN (
				SELECT ku.column_name
				FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage ku ON tc.constraint_name = ku.constraint_name
				WHERE tc.constraint_type = 'PRIMARY KEY'
				AND tc.table_schema = current_schema()
				AND LOWER(tc.table_name) = LOWER(?)
			) pk ON c.column_name = pk.column_name
			WHERE c.table_schema = current_schema() AND LOWER(c.table_name) = LOWER(?)
			ORDER BY c.ordinal_position`
		args = []interface{}{tableName, tableName}
	case SQLServer:
		query = `SELECT c.COLUMN_NAME, c.DATA_TYPE, c.IS_NULLABLE,
			CASE WHEN pk.COLUMN_NAME IS NOT NULL THEN 'PRI' ELSE '' END AS COLUMN_KEY,
			CASE WHEN COLUMNPROPERTY(OBJECT_ID(c.TABLE_SCHEMA + '.' + c.TABLE_NAME), c.COLUMN_NAME, 'IsIdentity') = 1
				THEN 'auto_increment' ELSE '' END AS EXTRA
			FROM INFORMATION_SCHEMA.COLUMNS c
			LEFT JOIN (
				SELECT ku.COLUMN_NAME
				FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
				JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE ku ON tc.CONSTRAINT_NAME = ku.CONSTRAINT_NAME
				WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY' AND LOWER(tc.TABLE_NAME) = LOWER(?)
			) pk ON c.COLUMN_NAME = pk.COLUMN_NAME
			WHERE LOWER(c.TABLE_NAME) = LOWER(?)
			ORDER BY c.ORDINAL_POSITION`
		args = []interface{}{tableName, tableName}
	case Oracle:
		query = `SELECT c.COLUMN_NAME, c.DATA_TYPE, c.NULLABLE,
			CASE WHEN pk.COLUMN_NAME IS NOT NULL THEN 'PRI' ELSE '' END AS COLUMN_KEY,
			'' AS EXTRA
			FROM USER_TAB_COLUMNS c
			LEFT JOIN (
				SELECT cols.COLUMN_NAME
				FROM USER_CONSTRAINTS cons
				JOIN USER_CONS_COLUMNS cols ON cons.CONSTRAINT_NAME = cols.CONSTRAINT_NAME
				WHERE cons.CONSTRAINT_TYPE = 'P' AND cons.TABLE_NAME = ?
			) pk ON c.COLUMN_NAME = pk.COLUMN_NAME
			WHERE c.TABLE_NAME = ?
			ORDER BY c.COLUMN_ID`
		upper := strings.ToUpper(tableName)
		args = []interface{}{upper, upper}
	default:
		return nil, fmt.Errorf("torm: schema loading is not supported for dialect %q", dialect)
	}

	table, err := l.executor.RetrieveDataContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	columns := make([]ColumnInfo, 0, table.RowCount())
	for _, row := range table.Rows {
		nullable := catalogString(row, "IS_NULLABLE", "is_nullable", "NULLABLE")
		columns = append(columns, ColumnInfo{
			Name:         catalogString(row, "COLUMN_NAME", "column_name"),
			DataType:     catalogString(row, "DATA_TYPE", "data_type"),
			Nullable:     strings.EqualFold(nullable, "YES") || strings.EqualFold(nullable, "Y"),
			IsPrimaryKey: strings.EqualFold(catalogString(row, "COLUMN_KEY", "column_key"), "PRI"),
			IsIdentity:   strings.Contains(strings.ToLower(catalogString(row, "EXTRA", "extra")), "auto_increment"),
			Comment:      catalogString(row, "COLUMN_COMMENT", "column_comment"),
		})
	}
	return columns, nil
}

// loadColumnsSQLite reads column metadata from PRAGMA table_info.
// pk 列大于 0 表示主键；INTEGER PRIMARY KEY 即 rowid 自增
func (l *SchemaLoader) loadColumnsSQLite(ctx context.Context, tableName string) ([]ColumnInfo, error) {
	table, err := l.executor.RetrieveDataContext(ctx, "PRAGMA table_info("+tableName+")")
	if err != nil {
		return nil, err
	}

	columns := make([]ColumnInfo, 0, table.RowCount())
	for _, row := range table.Rows {
		pkOrder, _ := toInt64(row.Get("pk"))
		notNull, _ := toInt64(row.Get("notnull"))
		dataType := catalogString(row, "type")
		isPK := pkOrder > 0
		columns = append(columns, ColumnInfo{
			Name:         catalogString(row, "name"),
			DataType:     dataType,
			Nullable:     notNull == 0 && !isPK,
			IsPrimaryKey: isPK,
			IsIdentity:   isPK && strings.EqualFold(dataType, "INTEGER") && table.RowCount() > 0 && pkOrder == 1,
		})
	}
	return columns, nil
}

func (l *SchemaLoader) loadForeignKeys(ctx context.Context, tableName string) ([]ForeignKeyInfo, error) {
	dialect := l.executor.DatabaseType()

	if dialect == SQLite {
		table, err := l.executor.RetrieveDataContext(ctx, "PRAGMA foreign_key_list("+tableName+")")
		if err != nil {
			return nil, err
		}
		keys := make([]ForeignKeyInfo, 0, table.RowCount())
		for _, row := range table.Rows {
			keys = append(keys, ForeignKeyInfo{
				Column:           catalogString(row, "from"),
				ReferencedTable:  catalogString(row, "table"),
				ReferencedColumn: catalogString(row, "to"),
			})
		}
		return keys, nil
	}

	var query string
	var args []interface{}
	switch dialect {
	case MySQL:
		query = `SELECT COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
			FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
			WHERE TABLE_SCHEMA = DATABASE() AND LOWER(TABLE_NAME) = LOWER(?)
			AND REFERENCED_TABLE_NAME IS NOT NULL`
		args = []interface{}{tableName}
	case PostgreSQL:
		query = `SELECT ku.column_name, ccu.table_name AS referenced_table_name, ccu.column_name AS referenced_column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage ku ON tc.constraint_name = ku.constraint_name
			JOIN information_schema.constraint_column_usage ccu ON tc.constraint_name = ccu.constraint_name
			WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = current_schema()
			AND LOWER(tc.table_name) = LOWER(?)`
		args = []interface{}{tableName}
	case SQLServer:
		query = `SELECT cu.COLUMN_NAME, pk.TABLE_NAME AS REFERENCED_TABLE_NAME, pt.COLUMN_NAME AS REFERENCED_COLUMN_NAME
			FROM INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS rc
			JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE cu ON rc.CONSTRAINT_NAME = cu.CONSTRAINT_NAME
			JOIN INFORMATION_SCHEMA.TABLE_CONSTRAINTS pk ON rc.UNIQUE_CONSTRAINT_NAME = pk.CONSTRAINT_NAME
			JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE pt ON pk.CONSTRAINT_NAME = pt.CONSTRAINT_NAME
			WHERE LOWER(cu.TABLE_NAME) = LOWER(?)`
		args = []interface{}{tableName}
	case Oracle:
		query = `SELECT a.COLUMN_NAME, c_pk.TABLE_NAME AS REFERENCED_TABLE_NAME, b.COLUMN_NAME AS REFERENCED_COLUMN_NAME
			FROM USER_CONS_COLUMNS a
			JOIN USER_CONSTRAINTS c ON a.CONSTRAINT_NAME = c.CONSTRAINT_NAME
			JOIN USER_CONSTRAINTS c_pk ON c.R_CONSTRAINT_NAME = c_pk.CONSTRAINT_NAME
			JOIN USER_CONS_COLUMNS b ON c_pk.CONSTRAINT_NAME = b.CONSTRAINT_NAME
			WHERE c.CONSTRAINT_TYPE = 'R' AND a.TABLE_NAME = ?`
		args = []interface{}{strings.ToUpper(tableName)}
	default:
		return nil, nil
	}

	table, err := l.executor.RetrieveDataContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	keys := make([]ForeignKeyInfo, 0, table.RowCount())
	for _, row := range table.Rows {
		keys = append(keys, ForeignKeyInfo{
			Column:           catalogString(row, "COLUMN_NAME", "column_name"),
			ReferencedTable:  catalogString(row, "REFERENCED_TABLE_NAME", "referenced_table_name"),
			ReferencedColumn: catalogString(row, "REFERENCED_COLUMN_NAME", "referenced_column_name"),
		})
	}
	return keys, nil
}

// catalogString reads the first non-empty named value from a catalog row
func catalogString(row *Record, names ...string) string {
	for _, name := range names {
		if value, ok := row.GetOk(name); ok && value != nil {
			return stringifyValue(value)
		}
	}
	return ""
}

// TablesByPriority orders tables so that referenced tables come before the
// tables referencing them, suitable for bulk load order.
// 自引用不提升优先级；最多迭代表数轮，存在环时按已收敛的优先级输出
func TablesByPriority(tables []*TableInfo) []*TableInfo {
	byName := make(map[string]*TableInfo, len(tables))
	for _, table := range tables {
		table.priority = 0
		byName[strings.ToLower(table.Name)] = table
	}

	for round := 0; round < len(tables); round++ {
		changed := false
		for _, table := range tables {
			for _, fk := range table.ForeignKeys {
				referenced := byName[strings.ToLower(fk.ReferencedTable)]
				if referenced == nil || referenced == table {
					continue
				}
				if table.priority <= referenced.priority {
					table.priority = referenced.priority + 1
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}

	ordered := make([]*TableInfo, len(tables))
	copy(ordered, tables)
	// 稳定插入排序，同优先级保持目录顺序
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j].priority < ordered[j-1].priority; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	return ordered
}

// EncodeSQLValue renders a Go value as an inline SQL literal for the given
// dialect, intended for generated bulk load scripts, never for query
// execution with untrusted input
func EncodeSQLValue(dialect DatabaseType, value interface{}) string {
	value = derefPointer(value)
	if value == nil {
		return "NULL"
	}

	switch v := value.(type) {
	case bool:
		encoded := dialect.EncodeBoolean(v)
		if b, ok := encoded.(bool); ok {
			if b {
				return "TRUE"
			}
			return "FALSE"
		}
		return fmt.Sprintf("%v", encoded)
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case time.Time:
		if dialect == Oracle {
			return fmt.Sprintf("TO_TIMESTAMP('%s', 'YYYY-MM-DD HH24:MI:SS')", v.Format("2006-01-02 15:04:05"))
		}
		return "'" + v.Format("2006-01-02 15:04:05") + "'"
	case uuid.UUID:
		return "'" + fmt.Sprintf("%v", dialect.EncodeGuid(v)) + "'"
	case []byte:
		return "X'" + fmt.Sprintf("%X", v) + "'"
	default:
		return fmt.Sprintf("%v", v)
	}
}
