/*
Package torm provides a reflection-driven, typed table-operations layer for Go.

TORM (Table ORM) derives the full set of CRUD, paging, searching and filtering
statements for a record struct once, then binds that static metadata to a live
database connection. It abstracts over vendor SQL dialects including MySQL,
PostgreSQL, SQLite, SQL Server, Oracle and Access/ODBC.

Key Features:
  - Typed table operations: TableOperations[T] derives SQL templates from a
    record struct exactly once and serves every connection from that metadata.
  - Restriction algebra: composable parameterized WHERE fragments with
    positional placeholders and AND/OR combination.
  - Multi-dialect: identifier escaping, boolean/GUID encoding and parameter
    placeholder conversion follow the active database type.
  - Field encryption: per-field AES-GCM encryption bound to named keys, with
    transparent decrypt on materialization.
  - Stable pagination: an opportunistic primary-key cache turns repeated page
    requests over one sort/filter into cheap by-key lookups.

Basic Usage:

	// 定义记录类型，使用 column / torm 标签描述字段
	type Person struct {
		ID    int64  `column:"id" torm:"pk,identity"`
		Name  string `column:"name"`
		Email string `column:"email" torm:"encrypt=default"`
	}

	conn, err := torm.OpenConnection(torm.SQLite, "file:app.db", 10)
	if err != nil {
		log.Fatal(err)
	}

	ops, err := torm.NewTableOperations[Person](conn)
	if err != nil {
		log.Fatal(err)
	}

	_, err = ops.AddNewRecord(&Person{Name: "Ann", Email: "a@x.com"})
	people, err := ops.QueryRecords("name", nil, 0)

Database drivers live in submodules under drivers/ and are wired with a blank
import, for example:

	import _ "github.com/zzguang83325/torm/drivers/sqlite"
*/
package torm
