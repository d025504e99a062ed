package torm

import (
	"fmt"
	"regexp"
	"strings"
)

// Pre-compiled regular expressions for identifier validation
var (
	// identifierPattern matches valid SQL identifiers.
	// 支持 table_name 与 schema.table_name 两种形式：
	// 以字母或下划线开头，后续为字母、数字、下划线
	identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)
)

const (
	// 多数数据库的标识符长度上限在 64-128 之间
	maxIdentifierLength = 128
)

// InvalidIdentifierError represents an invalid table or field name
type InvalidIdentifierError struct {
	Name   string
	Reason string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("torm: invalid identifier '%s': %s", e.Name, e.Reason)
}

// ValidateIdentifier validates SQL identifiers (table and column names)
func ValidateIdentifier(name string) error {
	if name == "" {
		return &InvalidIdentifierError{Name: name, Reason: "name cannot be empty"}
	}
	if len(name) > maxIdentifierLength {
		return &InvalidIdentifierError{Name: name, Reason: fmt.Sprintf("name exceeds maximum length of %d characters", maxIdentifierLength)}
	}
	if !identifierPattern.MatchString(name) {
		return &InvalidIdentifierError{Name: name, Reason: "name contains invalid characters or format (only letters, numbers, underscores allowed; must start with letter or underscore; optional schema.table format)"}
	}
	return nil
}

// validateSafeSQL 检查直接拼接进语句的 SQL 片段（如 ORDER BY 表达式）
// 是否包含注入风险字符
func validateSafeSQL(sqlPart string) error {
	if sqlPart == "" {
		return nil
	}

	// 严禁分号，防止多语句执行
	if strings.Contains(sqlPart, ";") {
		return fmt.Errorf("torm: unsafe SQL detected: semicolon not allowed in SQL fragment")
	}

	// 严禁注释符，防止语法截断
	if strings.Contains(sqlPart, "--") || strings.Contains(sqlPart, "/*") {
		return fmt.Errorf("torm: unsafe SQL detected: comments not allowed in SQL fragment")
	}

	return nil
}
