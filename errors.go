package torm

import (
	"errors"
	"fmt"
	"strings"
)

// Error definitions for table operations
var (
	// ErrUnsupportedOperator is returned when a record filter is assigned an
	// operator outside the supported set
	ErrUnsupportedOperator = errors.New("torm: unsupported record filter operator")

	// ErrUnknownField is returned when a sort or filter field name does not
	// match any known field or extension pattern
	ErrUnknownField = errors.New("torm: unknown field name")

	// ErrInvalidConfiguration marks model definition defects detected at
	// metadata derivation time
	ErrInvalidConfiguration = errors.New("torm: invalid table configuration")

	// ErrNotInitialized is returned when an operation runs against a closed
	// or unopened connection
	ErrNotInitialized = errors.New("torm: connection not initialized, call torm.OpenConnection first")

	// ErrEncryptionKeyNotFound is returned when a field references an
	// unregistered encryption key
	ErrEncryptionKeyNotFound = errors.New("torm: encryption key not registered")
)

// ExecutionError wraps a database failure with the rendered SQL text and the
// bound parameter values that produced it.
// 配置错误不会被包装成 ExecutionError，它们属于模型缺陷，必须直接失败
type ExecutionError struct {
	SQL        string
	Parameters []interface{}
	Err        error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "torm: execution failed: %v [sql: %s]", e.Err, e.SQL)
	if len(e.Parameters) > 0 {
		fmt.Fprintf(&builder, " [params: %s]", formatParameters(e.Parameters))
	}
	return builder.String()
}

// Unwrap returns the underlying database error
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// newExecutionError wraps err with its SQL context
func newExecutionError(err error, sqlText string, parameters []interface{}) *ExecutionError {
	return &ExecutionError{SQL: sqlText, Parameters: parameters, Err: err}
}

// ExceptionHandler receives execution errors instead of the caller.
// 处理器不返回值，对应操作改为返回文档约定的空哨兵值（nil、-1 或空切片）
type ExceptionHandler func(err error)

// formatParameters renders parameter values for error and log output
func formatParameters(parameters []interface{}) string {
	parts := make([]string, len(parameters))
	for i, p := range parameters {
		switch v := p.(type) {
		case nil:
			parts[i] = "NULL"
		case string:
			parts[i] = "'" + v + "'"
		default:
			parts[i] = fmt.Sprintf("%v", v)
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
