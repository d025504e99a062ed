package torm

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DatabaseType represents the database dialect a connection speaks
type DatabaseType string

const (
	// SQLServer database dialect
	SQLServer DatabaseType = "sqlserver"
	// MySQL database dialect
	MySQL DatabaseType = "mysql"
	// Oracle database dialect
	Oracle DatabaseType = "oracle"
	// SQLite database dialect
	SQLite DatabaseType = "sqlite3"
	// PostgreSQL database dialect
	PostgreSQL DatabaseType = "postgres"
	// Access database dialect (OLEDB/ODBC)
	Access DatabaseType = "access"
	// Other is the fallback dialect for unmapped drivers
	Other DatabaseType = "other"

	// AnyDatabase matches every dialect in amendment and escaping rules
	AnyDatabase DatabaseType = ""
)

// SupportedDatabaseTypes returns all dialects with dedicated rules
func SupportedDatabaseTypes() []DatabaseType {
	return []DatabaseType{SQLServer, MySQL, Oracle, SQLite, PostgreSQL, Access, Other}
}

// ParseDatabaseType maps a driver name to a DatabaseType.
// 无法识别的驱动名统一归入 Other，使用 ANSI 引号和原生布尔值
func ParseDatabaseType(driverName string) DatabaseType {
	switch strings.ToLower(strings.TrimSpace(driverName)) {
	case "sqlserver", "mssql":
		return SQLServer
	case "mysql", "mariadb":
		return MySQL
	case "oracle", "godror", "oci8", "ora":
		return Oracle
	case "sqlite3", "sqlite":
		return SQLite
	case "postgres", "postgresql", "pgx":
		return PostgreSQL
	case "access", "odbc", "oledb":
		return Access
	default:
		return Other
	}
}

// EscapeIdentifier escapes a table or field name for this dialect.
// useAnsiQuotes 强制使用标准 SQL 双引号，忽略方言本身的引用风格
func (d DatabaseType) EscapeIdentifier(name string, useAnsiQuotes bool) string {
	if useAnsiQuotes {
		return `"` + name + `"`
	}
	switch d {
	case SQLServer, Access:
		return "[" + name + "]"
	case MySQL:
		return "`" + name + "`"
	default:
		return `"` + name + `"`
	}
}

// EncodeBoolean converts a bool to the parameter value this dialect binds.
// Oracle 和 PostgreSQL 的旧式布尔列按 0/1 整数处理，其余方言使用原生布尔
func (d DatabaseType) EncodeBoolean(value bool) interface{} {
	switch d {
	case Oracle, PostgreSQL:
		if value {
			return 1
		}
		return 0
	default:
		return value
	}
}

// EncodeGuid converts a GUID to the parameter value this dialect binds.
// SQL Server 驱动支持原生 GUID 类型；Access 使用大括号包裹的字符串；
// 其它方言统一使用小写字符串字面量
func (d DatabaseType) EncodeGuid(value uuid.UUID) interface{} {
	switch d {
	case SQLServer:
		return value
	case Access:
		return "{" + strings.ToUpper(value.String()) + "}"
	default:
		return strings.ToLower(value.String())
	}
}

// DecodeGuid converts a raw database value back to a GUID
func (d DatabaseType) DecodeGuid(value interface{}) (uuid.UUID, error) {
	switch v := value.(type) {
	case nil:
		return uuid.Nil, fmt.Errorf("torm: cannot decode GUID from NULL value")
	case uuid.UUID:
		return v, nil
	case string:
		return uuid.Parse(strings.Trim(v, "{}"))
	case []byte:
		if len(v) == 16 {
			return uuid.FromBytes(v)
		}
		return uuid.Parse(strings.Trim(string(v), "{}"))
	default:
		return uuid.Nil, fmt.Errorf("torm: cannot decode GUID from value of type %T", value)
	}
}

// ParameterPrefix returns the leading character of named parameters
func (d DatabaseType) ParameterPrefix() byte {
	if d == Oracle {
		return ':'
	}
	return '@'
}

// DefaultIsolationLevel returns the isolation level used when the caller
// does not specify one.
// SQL Server 默认读未提交以避免报表查询阻塞写入，其余方言交由驱动决定
func (d DatabaseType) DefaultIsolationLevel() sql.IsolationLevel {
	if d == SQLServer {
		return sql.LevelReadUncommitted
	}
	return sql.LevelDefault
}

// convertPlaceholders converts ? placeholders to the dialect's native form.
// MySQL 和 SQLite 直接使用 ?，其余方言按位置编号转换；
// 扫描时跳过字符串字面量和被引用的标识符
func (d DatabaseType) convertPlaceholders(querySQL string) string {
	return d.convertPlaceholdersWithOffset(querySQL, 0)
}

// convertPlaceholdersWithOffset converts ? placeholders starting the
// positional numbering after offset
func (d DatabaseType) convertPlaceholdersWithOffset(querySQL string, offset int) string {
	switch d {
	case PostgreSQL, SQLServer, Oracle:
		// 需要编号转换的方言
	default:
		return querySQL
	}

	var builder strings.Builder
	builder.Grow(len(querySQL) + 10)
	paramIndex := 1 + offset
	inSingleQuote := false
	inDoubleQuote := false
	inBracket := false

	for i := 0; i < len(querySQL); i++ {
		char := querySQL[i]

		if i+1 < len(querySQL) && char == '\\' {
			builder.WriteByte(char)
			builder.WriteByte(querySQL[i+1])
			i++
			continue
		}

		if char == '\'' && !inDoubleQuote && !inBracket {
			// 标准 SQL 转义 '' 按两个字符跳过
			if i+1 < len(querySQL) && querySQL[i+1] == '\'' {
				builder.WriteString("''")
				i++
				continue
			}
			inSingleQuote = !inSingleQuote
			builder.WriteByte('\'')
			continue
		}

		if char == '"' && !inSingleQuote && !inBracket {
			inDoubleQuote = !inDoubleQuote
			builder.WriteByte('"')
			continue
		}

		if (char == '[' || char == ']') && !inSingleQuote && !inDoubleQuote {
			inBracket = char == '['
			builder.WriteByte(char)
			continue
		}

		if char == '?' && !inSingleQuote && !inDoubleQuote && !inBracket {
			switch d {
			case PostgreSQL:
				fmt.Fprintf(&builder, "$%d", paramIndex)
			case SQLServer:
				fmt.Fprintf(&builder, "@p%d", paramIndex)
			case Oracle:
				fmt.Fprintf(&builder, ":%d", paramIndex)
			}
			paramIndex++
		} else {
			builder.WriteByte(char)
		}
	}
	return builder.String()
}

// countPlaceholders counts ? placeholders outside string literals and
// quoted identifiers
func countPlaceholders(querySQL string) int {
	count := 0
	inString := false
	var quoteChar byte
	for i := 0; i < len(querySQL); i++ {
		char := querySQL[i]
		if char == '\'' || char == '"' || char == '`' {
			if !inString {
				inString = true
				quoteChar = char
			} else if char == quoteChar {
				inString = false
			}
		}
		if char == '?' && !inString {
			count++
		}
	}
	return count
}
