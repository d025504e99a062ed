package torm

import (
	"context"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/require"
)

func TestSchemaLoader(t *testing.T) {
	convey.Convey("目录元数据加载", t, func() {
		conn := newTestConnection(t)
		ctx := context.Background()

		ddl := []string{
			`CREATE TABLE authors (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL
			)`,
			`CREATE TABLE books (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				title TEXT NOT NULL,
				author_id INTEGER NOT NULL REFERENCES authors(id)
			)`,
			`CREATE TABLE reviews (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				book_id INTEGER NOT NULL REFERENCES books(id),
				body TEXT
			)`,
		}
		for _, stmt := range ddl {
			_, err := conn.ExecuteNonQuery(stmt)
			require.NoError(t, err)
		}

		loader := NewSchemaLoader(conn)

		convey.Convey("列出全部基础表", func() {
			names, err := loader.TableNames(ctx)
			convey.So(err, convey.ShouldBeNil)
			convey.So(names, convey.ShouldResemble, []string{"authors", "books", "reviews"})
		})

		convey.Convey("加载列与主键信息", func() {
			info, err := loader.LoadTable(ctx, "books")
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(info.Columns), convey.ShouldEqual, 3)
			convey.So(info.PrimaryKeyColumnCount(), convey.ShouldEqual, 1)

			id := info.Column("id")
			convey.So(id, convey.ShouldNotBeNil)
			convey.So(id.IsPrimaryKey, convey.ShouldBeTrue)
			convey.So(id.IsIdentity, convey.ShouldBeTrue)

			title := info.Column("title")
			convey.So(title.Nullable, convey.ShouldBeFalse)

			body, err := loader.LoadTable(ctx, "reviews")
			convey.So(err, convey.ShouldBeNil)
			convey.So(body.Column("body").Nullable, convey.ShouldBeTrue)
		})

		convey.Convey("加载外键依赖", func() {
			info, err := loader.LoadTable(ctx, "books")
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(info.ForeignKeys), convey.ShouldEqual, 1)
			convey.So(info.ForeignKeys[0].Column, convey.ShouldEqual, "author_id")
			convey.So(info.ForeignKeys[0].ReferencedTable, convey.ShouldEqual, "authors")
		})

		convey.Convey("按引用完整性排定批量加载顺序", func() {
			tables, err := loader.LoadTables(ctx)
			convey.So(err, convey.ShouldBeNil)

			ordered := TablesByPriority(tables)
			position := make(map[string]int, len(ordered))
			for i, table := range ordered {
				position[table.Name] = i
			}
			convey.So(position["authors"], convey.ShouldBeLessThan, position["books"])
			convey.So(position["books"], convey.ShouldBeLessThan, position["reviews"])
		})

		convey.Convey("非法表名被拒绝", func() {
			_, err := loader.LoadTable(ctx, "books; DROP TABLE authors")
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestEncodeSQLValue(t *testing.T) {
	convey.Convey("批量脚本的字面量编码", t, func() {
		convey.So(EncodeSQLValue(MySQL, nil), convey.ShouldEqual, "NULL")
		convey.So(EncodeSQLValue(MySQL, "it's"), convey.ShouldEqual, "'it''s'")
		convey.So(EncodeSQLValue(MySQL, 42), convey.ShouldEqual, "42")
		convey.So(EncodeSQLValue(MySQL, 3.5), convey.ShouldEqual, "3.5")

		convey.Convey("布尔值按方言编码", func() {
			convey.So(EncodeSQLValue(PostgreSQL, true), convey.ShouldEqual, "1")
			convey.So(EncodeSQLValue(MySQL, true), convey.ShouldEqual, "TRUE")
			convey.So(EncodeSQLValue(MySQL, false), convey.ShouldEqual, "FALSE")
		})

		convey.Convey("时间按方言格式化", func() {
			moment := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			convey.So(EncodeSQLValue(MySQL, moment), convey.ShouldEqual, "'2026-01-02 03:04:05'")
			convey.So(EncodeSQLValue(Oracle, moment), convey.ShouldEqual,
				"TO_TIMESTAMP('2026-01-02 03:04:05', 'YYYY-MM-DD HH24:MI:SS')")
		})

		convey.Convey("指针参数解引用", func() {
			value := "x"
			convey.So(EncodeSQLValue(MySQL, &value), convey.ShouldEqual, "'x'")
		})
	})
}
