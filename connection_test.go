package torm

import (
	"testing"

	"github.com/google/uuid"
	"github.com/smartystreets/goconvey/convey"
)

func TestConnectionArgEncoding(t *testing.T) {
	convey.Convey("参数绑定前的编码", t, func() {
		conn := WrapConnection(nil, PostgreSQL)

		convey.Convey("布尔值按方言编码", func() {
			convey.So(conn.encodeArg(true), convey.ShouldEqual, 1)
			convey.So(conn.encodeArg(false), convey.ShouldEqual, 0)

			mysqlConn := WrapConnection(nil, MySQL)
			convey.So(mysqlConn.encodeArg(true), convey.ShouldEqual, true)
		})

		convey.Convey("GUID 按方言编码为字符串", func() {
			id := uuid.MustParse("A1B2C3D4-0000-0000-0000-000000000001")
			convey.So(conn.encodeArg(id), convey.ShouldEqual, "a1b2c3d4-0000-0000-0000-000000000001")
		})

		convey.Convey("指针解引用，nil 指针绑定为 NULL", func() {
			n := 7
			convey.So(conn.encodeArg(&n), convey.ShouldEqual, 7)

			var missing *int
			convey.So(conn.encodeArg(missing), convey.ShouldBeNil)
			convey.So(conn.encodeArg(nil), convey.ShouldBeNil)
		})

		convey.Convey("TypedParameter 只取内部值", func() {
			convey.So(conn.encodeArg(TypedParameter{Value: true, DBType: "boolean"}), convey.ShouldEqual, 1)
		})

		convey.Convey("多余参数按占位符数量截断", func() {
			cleaned := conn.sanitizeArgs("SELECT * FROM t WHERE a=? AND b=?", []interface{}{1, 2, 3, 4})
			convey.So(cleaned, convey.ShouldResemble, []interface{}{1, 2})
		})
	})
}

func TestConnectionQueries(t *testing.T) {
	convey.Convey("Connection 查询路径", t, func() {
		conn := newTestConnection(t)

		_, err := conn.ExecuteNonQuery(`CREATE TABLE gadgets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			price REAL
		)`)
		convey.So(err, convey.ShouldBeNil)

		affected, err := conn.ExecuteNonQuery(
			"INSERT INTO gadgets (name, price) VALUES (?, ?), (?, ?)",
			"widget", 9.5, "gizmo", nil)
		convey.So(err, convey.ShouldBeNil)
		convey.So(affected, convey.ShouldEqual, 2)

		convey.Convey("ExecuteScalar 无结果时返回 nil", func() {
			value, err := conn.ExecuteScalar("SELECT name FROM gadgets WHERE id=?", 999)
			convey.So(err, convey.ShouldBeNil)
			convey.So(value, convey.ShouldBeNil)

			count, err := conn.ExecuteScalar("SELECT COUNT(*) FROM gadgets")
			convey.So(err, convey.ShouldBeNil)
			convey.So(count, convey.ShouldEqual, 1)
		})

		convey.Convey("RetrieveRow 返回首行，未命中返回 nil", func() {
			row, err := conn.RetrieveRow("SELECT * FROM gadgets ORDER BY id")
			convey.So(err, convey.ShouldBeNil)
			convey.So(row, convey.ShouldNotBeNil)
			convey.So(row.GetString("name"), convey.ShouldEqual, "widget")
			convey.So(row.GetFloat64("price"), convey.ShouldEqual, 9.5)

			row, err = conn.RetrieveRow("SELECT * FROM gadgets WHERE id=?", 999)
			convey.So(err, convey.ShouldBeNil)
			convey.So(row, convey.ShouldBeNil)
		})

		convey.Convey("RetrieveData 物化全部结果并保留 NULL", func() {
			table, err := conn.RetrieveData("SELECT name, price FROM gadgets ORDER BY id")
			convey.So(err, convey.ShouldBeNil)
			convey.So(table.RowCount(), convey.ShouldEqual, 2)
			convey.So(table.Rows[1].Get("price"), convey.ShouldBeNil)
		})

		convey.Convey("关闭语句缓存时直接查询，不预编译", func() {
			direct, err := OpenConnectionWithConfig("nocache", &Config{
				Driver:    SQLite,
				DSN:       ":memory:",
				MaxOpen:   1,
				MaxIdle:   1,
				StmtCache: StmtCacheConfig{Enabled: false},
			})
			convey.So(err, convey.ShouldBeNil)
			defer direct.Close()

			_, err = direct.ExecuteNonQuery("CREATE TABLE pings (n INTEGER)")
			convey.So(err, convey.ShouldBeNil)
			for i := 0; i < 5; i++ {
				_, err = direct.ExecuteNonQuery("INSERT INTO pings (n) VALUES (?)", i)
				convey.So(err, convey.ShouldBeNil)
				row, err := direct.RetrieveRow("SELECT n FROM pings WHERE n=?", i)
				convey.So(err, convey.ShouldBeNil)
				convey.So(row.GetInt64("n"), convey.ShouldEqual, i)
			}

			stats := direct.StmtCacheStats()
			convey.So(stats["enabled"], convey.ShouldBeFalse)
			convey.So(stats["size"], convey.ShouldEqual, 0)
		})

		convey.Convey("重复查询命中语句缓存", func() {
			for i := 0; i < 3; i++ {
				_, err := conn.RetrieveData("SELECT name FROM gadgets WHERE id=?", 1)
				convey.So(err, convey.ShouldBeNil)
			}
			stats := conn.StmtCacheStats()
			convey.So(stats["enabled"], convey.ShouldBeTrue)
			convey.So(stats["hits"].(int64), convey.ShouldBeGreaterThanOrEqualTo, 2)
		})
	})
}
