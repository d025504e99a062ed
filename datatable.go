package torm

import (
	"reflect"
	"strings"
)

// ColumnSchema describes one column of a DataTable
type ColumnSchema struct {
	Name      string
	ValueType reflect.Type
	Nullable  bool
}

// DataTable bundles raw rows with a column schema for bulk downstream
// consumption
type DataTable struct {
	Name    string
	Columns []ColumnSchema
	Rows    []*Record
}

// NewDataTable creates an empty table with the given schema
func NewDataTable(name string, columns []ColumnSchema) *DataTable {
	return &DataTable{Name: name, Columns: columns}
}

// Column returns the schema of the named column, nil when absent
func (t *DataTable) Column(name string) *ColumnSchema {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i]
		}
	}
	return nil
}

// AppendRow adds a row to the table
func (t *DataTable) AppendRow(row *Record) {
	t.Rows = append(t.Rows, row)
}

// RowCount returns the number of rows
func (t *DataTable) RowCount() int {
	return len(t.Rows)
}

// DataSet holds the tables produced by a multi-result-set query
type DataSet struct {
	Tables []*DataTable
}

// Table returns the table at the given index, nil when out of range
func (s *DataSet) Table(index int) *DataTable {
	if index < 0 || index >= len(s.Tables) {
		return nil
	}
	return s.Tables[index]
}

// scanDataTable 将 sql.Rows 的当前结果集扫描为 DataTable。
// 列的可空性和值类型取自驱动报告的列元数据
func scanDataTable(rows rowScanner, name string) (*DataTable, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	schema := make([]ColumnSchema, len(columns))
	for i, col := range columns {
		schema[i] = ColumnSchema{Name: col}
		if i < len(columnTypes) {
			if nullable, ok := columnTypes[i].Nullable(); ok {
				schema[i].Nullable = nullable
			}
			schema[i].ValueType = columnTypes[i].ScanType()
		}
	}

	table := NewDataTable(name, schema)

	numCols := len(columns)
	// 重用扫描缓冲区，避免每行分配新的 slice
	values := make([]interface{}, numCols)
	valuePtrs := make([]interface{}, numCols)
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}
		row := newRowWithCapacity(numCols)
		for i, col := range columns {
			dbType := ""
			if i < len(columnTypes) {
				dbType = strings.ToUpper(columnTypes[i].DatabaseTypeName())
			}
			row.setDirect(col, normalizeDBValue(values[i], dbType))
		}
		table.AppendRow(row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return table, nil
}
