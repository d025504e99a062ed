package torm

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/require"
)

type engPerson struct {
	ID    int64  `column:"id"`
	Name  string `column:"name"`
	Email string `column:"email"`
	Age   int    `column:"age"`
}

type engTask struct {
	ID     int64  `column:"id"`
	Title  string `column:"title"`
	Status string `column:"status"`
}

type engGhost struct {
	ID int64 `column:"id" torm:"pk"`
}

type engNote struct {
	ID   int64  `column:"id"`
	Body string `column:"body"`
}

func init() {
	if err := RegisterEncryptionKey("pii", []byte("0123456789abcdef0123456789abcdef")); err != nil {
		panic(err)
	}
	if _, err := RegisterTable[engPerson](
		NewTableConfig("people").
			Identity("ID").
			Encrypt("Email", "pii")); err != nil {
		panic(err)
	}
	if _, err := RegisterTable[engTask](
		NewTableConfig("tasks").
			Identity("ID").
			RootRestriction(NewRestriction("status = {0}", "active")).
			ApplyRootToDeletes(true).
			DefaultValue("Status", ConstantExpression("active"))); err != nil {
		panic(err)
	}
	if _, err := RegisterTable[engGhost](NewTableConfig("ghost_rows")); err != nil {
		panic(err)
	}
	if _, err := RegisterTable[engNote](
		NewTableConfig("notes").
			Identity("ID").
			SortExtension("^(?i)rank$", func(name string, ascending bool) (string, error) {
				if ascending {
					return "length(body) ASC", nil
				}
				return "length(body) DESC; --", nil
			})); err != nil {
		panic(err)
	}
}

// 每个测试使用独立的内存库；单连接保证 :memory: 数据不丢失
func newTestConnection(t *testing.T) *Connection {
	t.Helper()
	conn, err := OpenConnectionWithConfig("test", &Config{
		Driver:    SQLite,
		DSN:       ":memory:",
		MaxOpen:   1,
		MaxIdle:   1,
		StmtCache: DefaultStmtCacheConfig(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func newPeopleOps(t *testing.T) (*Connection, *TableOperations[engPerson]) {
	t.Helper()
	conn := newTestConnection(t)
	_, err := conn.ExecuteNonQuery(`CREATE TABLE people (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		age INTEGER
	)`)
	require.NoError(t, err)

	ops, err := NewTableOperations[engPerson](conn)
	require.NoError(t, err)
	return conn, ops
}

func seedPeople(t *testing.T, ops *TableOperations[engPerson]) {
	t.Helper()
	for _, p := range []engPerson{
		{Name: "Ann", Email: "ann@example.com", Age: 30},
		{Name: "Bob", Email: "bob@example.com", Age: 25},
		{Name: "Cee", Email: "cee@example.com", Age: 41},
		{Name: "Dan", Email: "dan@example.com", Age: 25},
		{Name: "Eve", Email: "eve@example.com", Age: 36},
	} {
		record := p
		affected, err := ops.AddNewRecord(&record)
		require.NoError(t, err)
		require.EqualValues(t, 1, affected)
	}
}

func TestEngineCRUD(t *testing.T) {
	convey.Convey("基础增删改查", t, func() {
		conn, ops := newPeopleOps(t)

		convey.Convey("插入后计数和按主键取回", func() {
			record := &engPerson{Name: "Ann", Email: "ann@example.com", Age: 30}
			affected, err := ops.AddNewRecord(record)
			convey.So(err, convey.ShouldBeNil)
			convey.So(affected, convey.ShouldEqual, 1)

			count, err := ops.QueryRecordCount(nil)
			convey.So(err, convey.ShouldBeNil)
			convey.So(count, convey.ShouldEqual, 1)

			loaded, err := ops.LoadRecord(int64(1))
			convey.So(err, convey.ShouldBeNil)
			convey.So(loaded, convey.ShouldNotBeNil)
			convey.So(loaded.ID, convey.ShouldEqual, 1)
			convey.So(loaded.Name, convey.ShouldEqual, "Ann")
			convey.So(loaded.Age, convey.ShouldEqual, 30)

			convey.Convey("加密字段存密文、取明文", func() {
				convey.So(loaded.Email, convey.ShouldEqual, "ann@example.com")

				stored, err := conn.ExecuteScalar("SELECT email FROM people WHERE id = ?", 1)
				convey.So(err, convey.ShouldBeNil)
				cipher := fmt.Sprintf("%v", stored)
				convey.So(cipher, convey.ShouldNotEqual, "ann@example.com")

				plain, err := DecryptField(cipher, "pii")
				convey.So(err, convey.ShouldBeNil)
				convey.So(plain, convey.ShouldEqual, "ann@example.com")
			})

			convey.Convey("不存在的主键返回 nil", func() {
				missing, err := ops.LoadRecord(int64(999))
				convey.So(err, convey.ShouldBeNil)
				convey.So(missing, convey.ShouldBeNil)
			})

			convey.Convey("更新后重新取回", func() {
				loaded.Age = 31
				affected, err := ops.UpdateRecord(loaded)
				convey.So(err, convey.ShouldBeNil)
				convey.So(affected, convey.ShouldEqual, 1)

				again, err := ops.LoadRecord(int64(1))
				convey.So(err, convey.ShouldBeNil)
				convey.So(again.Age, convey.ShouldEqual, 31)
			})

			convey.Convey("按主键删除", func() {
				affected, err := ops.DeleteRecordByKeys(int64(1))
				convey.So(err, convey.ShouldBeNil)
				convey.So(affected, convey.ShouldEqual, 1)

				count, err := ops.QueryRecordCount(nil)
				convey.So(err, convey.ShouldBeNil)
				convey.So(count, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("空条件的整表删除被拒绝", func() {
			_, err := ops.DeleteRecordWhere(nil)
			convey.So(errors.Is(err, ErrInvalidConfiguration), convey.ShouldBeTrue)
		})
	})
}

func TestEngineQueries(t *testing.T) {
	convey.Convey("查询操作", t, func() {
		_, ops := newPeopleOps(t)
		seedPeople(t, ops)

		convey.Convey("排序查询", func() {
			records, err := ops.QueryRecords("age DESC", nil, 0)
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(records), convey.ShouldEqual, 5)
			convey.So(records[0].Name, convey.ShouldEqual, "Cee")
			convey.So(records[len(records)-1].Age, convey.ShouldEqual, 25)
		})

		convey.Convey("限制条件与行数上限", func() {
			records, err := ops.QueryRecords("age", NewRestriction("age >= {0}", 30), 2)
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(records), convey.ShouldEqual, 2)
			convey.So(records[0].Name, convey.ShouldEqual, "Ann")
		})

		convey.Convey("乱序和重复的占位符索引按索引取值", func() {
			records, err := ops.QueryRecords("name", NewRestriction("name = {1} OR age = {0}", 25, "Ann"), 0)
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(records), convey.ShouldEqual, 3)
			convey.So(records[0].Name, convey.ShouldEqual, "Ann")
			convey.So(records[1].Name, convey.ShouldEqual, "Bob")
			convey.So(records[2].Name, convey.ShouldEqual, "Dan")

			repeated, err := ops.QueryRecords("", NewRestriction("name = {0} OR email = {0}", "Eve"), 0)
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(repeated), convey.ShouldEqual, 1)
			convey.So(repeated[0].Name, convey.ShouldEqual, "Eve")
		})

		convey.Convey("未知排序字段在生成 SQL 前报错", func() {
			_, err := ops.QueryRecords("no_such_field", nil, 0)
			convey.So(errors.Is(err, ErrUnknownField), convey.ShouldBeTrue)
		})

		convey.Convey("排序扩展输出经过注入检查", func() {
			conn := newTestConnection(t)
			_, err := conn.ExecuteNonQuery(`CREATE TABLE notes (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				body TEXT NOT NULL
			)`)
			convey.So(err, convey.ShouldBeNil)

			notes, err := NewTableOperations[engNote](conn)
			convey.So(err, convey.ShouldBeNil)
			for _, body := range []string{"medium one", "hi", "the longest body here"} {
				_, err := notes.AddNewRecord(&engNote{Body: body})
				convey.So(err, convey.ShouldBeNil)
			}

			sorted, err := notes.QueryRecords("rank", nil, 0)
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(sorted), convey.ShouldEqual, 3)
			convey.So(sorted[0].Body, convey.ShouldEqual, "hi")
			convey.So(sorted[2].Body, convey.ShouldEqual, "the longest body here")

			_, err = notes.QueryRecords("rank DESC", nil, 0)
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "unsafe SQL")
		})

		convey.Convey("单条查询", func() {
			record, err := ops.QueryRecordWhere("name = {0}", "Eve")
			convey.So(err, convey.ShouldBeNil)
			convey.So(record, convey.ShouldNotBeNil)
			convey.So(record.Age, convey.ShouldEqual, 36)

			none, err := ops.QueryRecord(NewRestriction("name = {0}", "Zed"))
			convey.So(err, convey.ShouldBeNil)
			convey.So(none, convey.ShouldBeNil)
		})

		convey.Convey("记录数不匹配时 QueryRecordCount 带条件", func() {
			count, err := ops.QueryRecordCount(NewRestriction("age = {0}", 25))
			convey.So(err, convey.ShouldBeNil)
			convey.So(count, convey.ShouldEqual, 2)
		})
	})
}

func TestEnginePagedQueries(t *testing.T) {
	convey.Convey("主键分页查询", t, func() {
		conn, ops := newPeopleOps(t)
		seedPeople(t, ops)

		convey.Convey("翻页复用键集缓存", func() {
			page1, err := ops.QueryRecordsPaged("Age", true, 1, 2, nil)
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(page1), convey.ShouldEqual, 2)
			convey.So(page1[0].Age, convey.ShouldEqual, 25)
			convey.So(ops.PrimaryKeyCacheSize(), convey.ShouldEqual, 5)

			page3, err := ops.QueryRecordsPaged("Age", true, 3, 2, nil)
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(page3), convey.ShouldEqual, 1)
			convey.So(page3[0].Name, convey.ShouldEqual, "Cee")

			convey.Convey("越界页码返回空集", func() {
				beyond, err := ops.QueryRecordsPaged("Age", true, 9, 2, nil)
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(beyond), convey.ShouldEqual, 0)
			})

			convey.Convey("缓存建立后被其他连接删除的行被跳过", func() {
				// 绕过引擎直接删除，主键缓存不失效
				_, err := conn.ExecuteNonQuery("DELETE FROM people WHERE name = ?", "Bob")
				convey.So(err, convey.ShouldBeNil)
				convey.So(ops.PrimaryKeyCacheSize(), convey.ShouldEqual, 5)

				refetched, err := ops.QueryRecordsPaged("Age", true, 1, 2, nil)
				convey.So(err, convey.ShouldBeNil)
				for _, record := range refetched {
					convey.So(record.Name, convey.ShouldNotEqual, "Bob")
				}
			})
		})

		convey.Convey("排序参数变化使缓存重建", func() {
			_, err := ops.QueryRecordsPaged("Age", true, 1, 2, nil)
			convey.So(err, convey.ShouldBeNil)

			desc, err := ops.QueryRecordsPaged("Age", false, 1, 2, nil)
			convey.So(err, convey.ShouldBeNil)
			convey.So(desc[0].Age, convey.ShouldEqual, 41)
		})

		convey.Convey("引擎内的写操作清空缓存", func() {
			_, err := ops.QueryRecordsPaged("Age", true, 1, 2, nil)
			convey.So(err, convey.ShouldBeNil)
			convey.So(ops.PrimaryKeyCacheSize(), convey.ShouldEqual, 5)

			extra := &engPerson{Name: "Fay", Email: "fay@example.com", Age: 50}
			_, err = ops.AddNewRecord(extra)
			convey.So(err, convey.ShouldBeNil)
			convey.So(ops.PrimaryKeyCacheSize(), convey.ShouldEqual, -1)
		})

		convey.Convey("加密字段排序走本地解密排序", func() {
			records, err := ops.QueryRecordsPaged("Email", true, 1, 10, nil)
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(records), convey.ShouldEqual, 5)
			for i := 1; i < len(records); i++ {
				convey.So(records[i-1].Email <= records[i].Email, convey.ShouldBeTrue)
			}
		})

		convey.Convey("Page 包装返回分页汇总", func() {
			page, err := ops.QueryPage("Age", true, 2, 2, nil)
			convey.So(err, convey.ShouldBeNil)
			convey.So(page.TotalRow, convey.ShouldEqual, 5)
			convey.So(page.TotalPage, convey.ShouldEqual, 3)
			convey.So(page.IsFirstPage(), convey.ShouldBeFalse)
			convey.So(page.IsLastPage(), convey.ShouldBeFalse)
			convey.So(len(page.List), convey.ShouldEqual, 2)
		})
	})
}

func TestEngineSearchRecords(t *testing.T) {
	convey.Convey("过滤器搜索", t, func() {
		_, ops := newPeopleOps(t)
		seedPeople(t, ops)

		convey.Convey("多个过滤器按 AND 组合", func() {
			ageFilter, err := NewRecordFilter("Age", ">=", 25)
			convey.So(err, convey.ShouldBeNil)
			nameFilter, err := NewRecordFilter("Name", "LIKE", "D%")
			convey.So(err, convey.ShouldBeNil)

			records, err := ops.SearchRecords("Name", true, ageFilter, nameFilter)
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(records), convey.ShouldEqual, 1)
			convey.So(records[0].Name, convey.ShouldEqual, "Dan")
		})

		convey.Convey("IN 过滤器展开参数", func() {
			filter, err := NewRecordFilter("Age", "IN", []int{25, 36})
			convey.So(err, convey.ShouldBeNil)

			records, err := ops.SearchRecords("Age", true, filter)
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(records), convey.ShouldEqual, 3)
			convey.So(records[len(records)-1].Name, convey.ShouldEqual, "Eve")
		})

		convey.Convey("客户端排序使用自定义比较", func() {
			records, err := ops.SearchRecordsCompared("Name", false, CompareOrdinalIgnoreCase)
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(records), convey.ShouldEqual, 5)
			convey.So(records[0].Name, convey.ShouldEqual, "Eve")
		})

		convey.Convey("加密字段的模糊匹配被拒绝", func() {
			filter, err := NewRecordFilter("Email", "LIKE", "ann%")
			convey.So(err, convey.ShouldBeNil)

			_, err = ops.SearchRecords("Name", true, filter)
			convey.So(errors.Is(err, ErrUnsupportedOperator), convey.ShouldBeTrue)
		})

		convey.Convey("未知搜索字段提前报错", func() {
			filter, err := NewRecordFilter("NoSuch", "=", 1)
			convey.So(err, convey.ShouldBeNil)

			_, err = ops.SearchRecords("Name", true, filter)
			convey.So(errors.Is(err, ErrUnknownField), convey.ShouldBeTrue)
		})
	})
}

func TestEngineRootRestriction(t *testing.T) {
	convey.Convey("隐式根查询条件", t, func() {
		conn := newTestConnection(t)
		_, err := conn.ExecuteNonQuery(`CREATE TABLE tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			status TEXT NOT NULL
		)`)
		require.NoError(t, err)

		ops, err := NewTableOperations[engTask](conn)
		require.NoError(t, err)

		for _, task := range []engTask{
			{Title: "write", Status: "active"},
			{Title: "review", Status: "active"},
			{Title: "shipped", Status: "archived"},
		} {
			record := task
			_, err := ops.AddNewRecord(&record)
			require.NoError(t, err)
		}

		convey.Convey("查询自动附加根条件", func() {
			count, err := ops.QueryRecordCount(nil)
			convey.So(err, convey.ShouldBeNil)
			convey.So(count, convey.ShouldEqual, 2)

			records, err := ops.QueryRecords("Title", NewRestriction("title = {0}", "shipped"), 0)
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(records), convey.ShouldEqual, 0)
		})

		convey.Convey("根条件按开关作用于删除", func() {
			affected, err := ops.DeleteRecordWhere(NewRestriction("title = {0}", "shipped"))
			convey.So(err, convey.ShouldBeNil)
			convey.So(affected, convey.ShouldEqual, 0)

			ops.SetApplyRootToDeletes(false)
			affected, err = ops.DeleteRecordWhere(NewRestriction("title = {0}", "shipped"))
			convey.So(err, convey.ShouldBeNil)
			convey.So(affected, convey.ShouldEqual, 1)
		})

		convey.Convey("NewRecord 应用默认值表达式", func() {
			record, err := ops.NewRecord()
			convey.So(err, convey.ShouldBeNil)
			convey.So(record.Status, convey.ShouldEqual, "active")
		})

		convey.Convey("UpdateRecordWhere 的条件占位符在 SET 值之后重新编号", func() {
			record, err := ops.QueryRecordWhere("title = {0}", "write")
			convey.So(err, convey.ShouldBeNil)
			convey.So(record, convey.ShouldNotBeNil)

			record.Title = "write-v2"
			affected, err := ops.UpdateRecordWhere(record, NewRestriction("id = {0}", record.ID))
			convey.So(err, convey.ShouldBeNil)
			convey.So(affected, convey.ShouldEqual, 1)

			again, err := ops.QueryRecordWhere("title = {0}", "write-v2")
			convey.So(err, convey.ShouldBeNil)
			convey.So(again, convey.ShouldNotBeNil)
			convey.So(again.ID, convey.ShouldEqual, record.ID)
		})
	})
}

func TestEngineExceptionHandler(t *testing.T) {
	convey.Convey("异常处理器路由", t, func() {
		conn := newTestConnection(t)
		// ghost_rows 表故意不建，所有执行都会失败
		ops, err := NewTableOperations[engGhost](conn)
		require.NoError(t, err)

		var handled []error
		ops.SetExceptionHandler(func(err error) { handled = append(handled, err) })

		convey.Convey("计数失败返回 -1 和 nil 错误", func() {
			count, err := ops.QueryRecordCount(nil)
			convey.So(err, convey.ShouldBeNil)
			convey.So(count, convey.ShouldEqual, -1)
			convey.So(len(handled), convey.ShouldEqual, 1)

			var execErr *ExecutionError
			convey.So(errors.As(handled[0], &execErr), convey.ShouldBeTrue)
			convey.So(strings.Contains(execErr.SQL, "ghost_rows"), convey.ShouldBeTrue)
		})

		convey.Convey("查询失败返回空切片", func() {
			records, err := ops.QueryRecords("", nil, 0)
			convey.So(err, convey.ShouldBeNil)
			convey.So(records, convey.ShouldNotBeNil)
			convey.So(len(records), convey.ShouldEqual, 0)
		})

		convey.Convey("写入失败返回 0", func() {
			affected, err := ops.AddNewRecord(&engGhost{ID: 1})
			convey.So(err, convey.ShouldBeNil)
			convey.So(affected, convey.ShouldEqual, 0)
		})

		convey.Convey("配置错误不经过处理器", func() {
			before := len(handled)
			_, err := ops.QueryRecords("no_such_field", nil, 0)
			convey.So(errors.Is(err, ErrUnknownField), convey.ShouldBeTrue)
			convey.So(len(handled), convey.ShouldEqual, before)
		})

		convey.Convey("未安装处理器时错误直接返回", func() {
			ops.SetExceptionHandler(nil)
			_, err := ops.QueryRecordCount(nil)
			convey.So(err, convey.ShouldNotBeNil)

			var execErr *ExecutionError
			convey.So(errors.As(err, &execErr), convey.ShouldBeTrue)
		})
	})
}

func TestEngineFieldAccess(t *testing.T) {
	convey.Convey("字段访问辅助操作", t, func() {
		_, ops := newPeopleOps(t)
		record := &engPerson{ID: 9, Name: "Ann", Email: "ann@example.com", Age: 30}

		convey.Convey("主键提取", func() {
			keys := ops.GetPrimaryKeys(record)
			convey.So(keys, convey.ShouldResemble, []interface{}{int64(9)})
		})

		convey.Convey("按名称读写字段", func() {
			value, err := ops.GetFieldValue(record, "age")
			convey.So(err, convey.ShouldBeNil)
			convey.So(value, convey.ShouldEqual, 30)

			convey.So(ops.SetFieldValue(record, "Age", 31), convey.ShouldBeNil)
			convey.So(record.Age, convey.ShouldEqual, 31)

			_, err = ops.GetFieldValue(record, "bogus")
			convey.So(errors.Is(err, ErrUnknownField), convey.ShouldBeTrue)
		})

		convey.Convey("取值解释应用加密", func() {
			interpreted, err := ops.GetInterpretedFieldValue("Email", "ann@example.com")
			convey.So(err, convey.ShouldBeNil)

			cipher, ok := interpreted.(string)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(cipher, convey.ShouldNotEqual, "ann@example.com")

			plain, err := DecryptField(cipher, "pii")
			convey.So(err, convey.ShouldBeNil)
			convey.So(plain, convey.ShouldEqual, "ann@example.com")
		})

		convey.Convey("非主键字段限制条件", func() {
			restriction, err := ops.GetNonPrimaryFieldRecordRestriction(record)
			convey.So(err, convey.ShouldBeNil)
			convey.So(restriction, convey.ShouldNotBeNil)
			convey.So(restriction.FilterText, convey.ShouldStartWith, "name={0}")
			convey.So(restriction.ParameterCount(), convey.ShouldEqual, 3)
		})

		convey.Convey("记录集转 DataTable", func() {
			table := ops.ToDataTable([]*engPerson{record})
			convey.So(table.Name, convey.ShouldEqual, "people")
			convey.So(table.RowCount(), convey.ShouldEqual, 1)
			convey.So(table.Rows[0].Get("name"), convey.ShouldEqual, "Ann")
		})
	})
}

func TestEngineFinalizedSQL(t *testing.T) {
	convey.Convey("引擎按方言固化 SQL", t, func() {
		_, ops := newPeopleOps(t)

		convey.So(ops.SQL(StatementCount), convey.ShouldEqual, "SELECT COUNT(*) FROM people")
		convey.So(ops.SQL(StatementInsert), convey.ShouldEqual,
			"INSERT INTO people(name, email, age) VALUES ({0}, {1}, {2})")
		convey.So(ops.SQL(StatementUpdate), convey.ShouldEqual,
			"UPDATE people SET name={0}, email={1}, age={2} WHERE id={3}")
		convey.So(ops.SQL(StatementDelete), convey.ShouldEqual, "DELETE FROM people WHERE id={0}")
		convey.So(ops.TableName(), convey.ShouldEqual, "people")
	})
}
