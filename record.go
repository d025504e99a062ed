package torm

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Record represents a single raw database row.
// columns 保留原始大小写用于生成 SQL，lowerKeyMap 提供大小写不敏感的查找，
// keys 保存列的插入顺序，用于 JSON 输出和参数展开时保持顺序
type Record struct {
	columns     map[string]interface{} // 原始列名 -> 值
	lowerKeyMap map[string]string      // 小写列名 -> 原始列名
	keys        []string               // 列插入顺序
	mu          sync.RWMutex
}

// NewRow creates a new empty Record
func NewRow() *Record {
	return &Record{
		columns:     make(map[string]interface{}),
		lowerKeyMap: make(map[string]string),
		keys:        make([]string, 0),
	}
}

// newRowWithCapacity 按已知列数预分配，供行扫描路径使用
func newRowWithCapacity(numCols int) *Record {
	return &Record{
		columns:     make(map[string]interface{}, numCols),
		lowerKeyMap: make(map[string]string, numCols),
		keys:        make([]string, 0, numCols),
	}
}

// RowFromMap creates a Record populated from a map
func RowFromMap(m map[string]interface{}) *Record {
	r := NewRow()
	for key, value := range m {
		r.Set(key, value)
	}
	return r
}

// Set assigns a column value, matching existing columns case-insensitively.
// 指针参数自动解引用后存储实际值
func (r *Record) Set(column string, value interface{}) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	value = derefPointer(value)
	lowerKey := strings.ToLower(column)

	if existingKey, exists := r.lowerKeyMap[lowerKey]; exists {
		r.columns[existingKey] = value
		return r
	}

	r.columns[column] = value
	r.lowerKeyMap[lowerKey] = column
	r.keys = append(r.keys, column)
	return r
}

// setDirect 直接写入列值，不加锁也不解引用指针。
// 仅用于行扫描：Record 是局部新建对象，列名由数据库保证唯一
func (r *Record) setDirect(column string, value interface{}) {
	r.columns[column] = value
	r.lowerKeyMap[strings.ToLower(column)] = column
	r.keys = append(r.keys, column)
}

// Get returns a column value, nil when absent
func (r *Record) Get(column string) interface{} {
	value, _ := r.GetOk(column)
	return value
}

// GetOk returns a column value and whether the column exists
func (r *Record) GetOk(column string) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if key, exists := r.lowerKeyMap[strings.ToLower(column)]; exists {
		return r.columns[key], true
	}
	return nil, false
}

// Has reports whether the column exists
func (r *Record) Has(column string) bool {
	_, exists := r.GetOk(column)
	return exists
}

// Remove deletes a column from the record
func (r *Record) Remove(column string) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, exists := r.lowerKeyMap[strings.ToLower(column)]
	if !exists {
		return r
	}
	delete(r.columns, key)
	delete(r.lowerKeyMap, strings.ToLower(column))
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
	return r
}

// Columns returns the column names in insertion order
func (r *Record) Columns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.keys))
	copy(names, r.keys)
	return names
}

// Len returns the number of columns
func (r *Record) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}

// Values returns the column values in insertion order
func (r *Record) Values() []interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	values := make([]interface{}, len(r.keys))
	for i, key := range r.keys {
		values[i] = r.columns[key]
	}
	return values
}

// ToMap returns a copy of the record as a plain map
func (r *Record) ToMap() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m := make(map[string]interface{}, len(r.columns))
	for key, value := range r.columns {
		m[key] = value
	}
	return m
}

// GetString returns a column value coerced to string
func (r *Record) GetString(column string) string {
	value := r.Get(column)
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// GetInt64 returns a column value coerced to int64
func (r *Record) GetInt64(column string) int64 {
	value := r.Get(column)
	switch v := value.(type) {
	case nil:
		return 0
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case uint64:
		return int64(v)
	case float64:
		return int64(v)
	case []byte:
		n, _ := strconv.ParseInt(string(v), 10, 64)
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

// GetFloat64 returns a column value coerced to float64
func (r *Record) GetFloat64(column string) float64 {
	value := r.Get(column)
	switch v := value.(type) {
	case nil:
		return 0
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case []byte:
		f, _ := strconv.ParseFloat(string(v), 64)
		return f
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

// GetBool returns a column value coerced to bool.
// 数据库中的 0/1 整数按布尔语义解释
func (r *Record) GetBool(column string) bool {
	value := r.Get(column)
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	case []byte:
		b, _ := strconv.ParseBool(string(v))
		return b
	default:
		return false
	}
}

// GetTime returns a column value coerced to time.Time
func (r *Record) GetTime(column string) time.Time {
	value := r.Get(column)
	switch v := value.(type) {
	case time.Time:
		return v
	case string:
		return parseTimeValue(v)
	case []byte:
		return parseTimeValue(string(v))
	default:
		return time.Time{}
	}
}

// ToJson returns a JSON representation of the record preserving column order
func (r *Record) ToJson() string {
	return ToJson(r.ToMap())
}
