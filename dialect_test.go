package torm

import (
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/smartystreets/goconvey/convey"
)

func TestEscapeIdentifier(t *testing.T) {
	convey.Convey("标识符转义", t, func() {
		convey.Convey("各方言使用各自的引用风格", func() {
			convey.So(SQLServer.EscapeIdentifier("Order", false), convey.ShouldEqual, "[Order]")
			convey.So(Access.EscapeIdentifier("Order", false), convey.ShouldEqual, "[Order]")
			convey.So(MySQL.EscapeIdentifier("Order", false), convey.ShouldEqual, "`Order`")
			convey.So(PostgreSQL.EscapeIdentifier("Order", false), convey.ShouldEqual, `"Order"`)
			convey.So(SQLite.EscapeIdentifier("Order", false), convey.ShouldEqual, `"Order"`)
			convey.So(Oracle.EscapeIdentifier("Order", false), convey.ShouldEqual, `"Order"`)
		})

		convey.Convey("ANSI 引号覆盖方言风格", func() {
			convey.So(SQLServer.EscapeIdentifier("Order", true), convey.ShouldEqual, `"Order"`)
			convey.So(MySQL.EscapeIdentifier("Order", true), convey.ShouldEqual, `"Order"`)
		})

		convey.Convey("同一输入转义结果稳定", func() {
			first := MySQL.EscapeIdentifier("user_name", false)
			second := MySQL.EscapeIdentifier("user_name", false)
			convey.So(first, convey.ShouldEqual, second)
		})
	})
}

func TestEncodeBoolean(t *testing.T) {
	convey.Convey("布尔值编码", t, func() {
		convey.So(Oracle.EncodeBoolean(true), convey.ShouldEqual, 1)
		convey.So(Oracle.EncodeBoolean(false), convey.ShouldEqual, 0)
		convey.So(PostgreSQL.EncodeBoolean(true), convey.ShouldEqual, 1)
		convey.So(MySQL.EncodeBoolean(true), convey.ShouldEqual, true)
		convey.So(SQLite.EncodeBoolean(false), convey.ShouldEqual, false)
	})
}

func TestEncodeGuid(t *testing.T) {
	convey.Convey("GUID 编码", t, func() {
		id := uuid.MustParse("11D2C4A1-36FA-4C10-8D16-7E3E1E8C4A55")

		convey.Convey("SQL Server 绑定原生 GUID", func() {
			convey.So(SQLServer.EncodeGuid(id), convey.ShouldEqual, id)
		})

		convey.Convey("Access 使用大写大括号形式", func() {
			convey.So(Access.EncodeGuid(id), convey.ShouldEqual, "{11D2C4A1-36FA-4C10-8D16-7E3E1E8C4A55}")
		})

		convey.Convey("其余方言使用小写字符串", func() {
			convey.So(MySQL.EncodeGuid(id), convey.ShouldEqual, "11d2c4a1-36fa-4c10-8d16-7e3e1e8c4a55")
		})

		convey.Convey("解码容忍大括号和字节形式", func() {
			decoded, err := MySQL.DecodeGuid("{11D2C4A1-36FA-4C10-8D16-7E3E1E8C4A55}")
			convey.So(err, convey.ShouldBeNil)
			convey.So(decoded, convey.ShouldEqual, id)

			decoded, err = SQLite.DecodeGuid("11d2c4a1-36fa-4c10-8d16-7e3e1e8c4a55")
			convey.So(err, convey.ShouldBeNil)
			convey.So(decoded, convey.ShouldEqual, id)
		})
	})
}

func TestDialectDefaults(t *testing.T) {
	convey.Convey("方言默认行为", t, func() {
		convey.So(Oracle.ParameterPrefix(), convey.ShouldEqual, byte(':'))
		convey.So(SQLServer.ParameterPrefix(), convey.ShouldEqual, byte('@'))

		convey.So(SQLServer.DefaultIsolationLevel(), convey.ShouldEqual, sql.LevelReadUncommitted)
		convey.So(MySQL.DefaultIsolationLevel(), convey.ShouldEqual, sql.LevelDefault)
	})
}

func TestParseDatabaseType(t *testing.T) {
	convey.Convey("驱动名到方言的映射", t, func() {
		convey.So(ParseDatabaseType("sqlite3"), convey.ShouldEqual, SQLite)
		convey.So(ParseDatabaseType("pgx"), convey.ShouldEqual, PostgreSQL)
		convey.So(ParseDatabaseType("mssql"), convey.ShouldEqual, SQLServer)
		convey.So(ParseDatabaseType("odbc"), convey.ShouldEqual, Access)
		convey.So(ParseDatabaseType("somethingelse"), convey.ShouldEqual, Other)
	})
}

func TestConvertPlaceholders(t *testing.T) {
	convey.Convey("占位符按方言转换", t, func() {
		query := "SELECT * FROM t WHERE a = ? AND b = ?"

		convey.So(MySQL.convertPlaceholders(query), convey.ShouldEqual, query)
		convey.So(SQLite.convertPlaceholders(query), convey.ShouldEqual, query)
		convey.So(PostgreSQL.convertPlaceholders(query), convey.ShouldEqual, "SELECT * FROM t WHERE a = $1 AND b = $2")
		convey.So(SQLServer.convertPlaceholders(query), convey.ShouldEqual, "SELECT * FROM t WHERE a = @p1 AND b = @p2")
		convey.So(Oracle.convertPlaceholders(query), convey.ShouldEqual, "SELECT * FROM t WHERE a = :1 AND b = :2")

		convey.Convey("字符串字面量里的问号不转换", func() {
			literal := "SELECT * FROM t WHERE a = '?' AND b = ?"
			convey.So(PostgreSQL.convertPlaceholders(literal), convey.ShouldEqual, "SELECT * FROM t WHERE a = '?' AND b = $1")
		})

		convey.Convey("方括号标识符里的问号不转换", func() {
			bracketed := "SELECT [a?] FROM t WHERE b = ?"
			convey.So(SQLServer.convertPlaceholders(bracketed), convey.ShouldEqual, "SELECT [a?] FROM t WHERE b = @p1")
		})

		convey.Convey("偏移量从指定序号后开始", func() {
			convey.So(PostgreSQL.convertPlaceholdersWithOffset("a = ?", 2), convey.ShouldEqual, "a = $3")
		})
	})
}

func TestCountPlaceholders(t *testing.T) {
	convey.Convey("占位符计数跳过字符串字面量", t, func() {
		convey.So(countPlaceholders("a = ? AND b = ?"), convey.ShouldEqual, 2)
		convey.So(countPlaceholders("a = '?' AND b = ?"), convey.ShouldEqual, 1)
		convey.So(countPlaceholders("no parameters here"), convey.ShouldEqual, 0)
	})
}
