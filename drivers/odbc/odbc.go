// Package odbc 提供ODBC数据库驱动支持
// 使用 github.com/alexbrainman/odbc 驱动，Access 等 ODBC 数据源走此驱动
package odbc

import (
	_ "github.com/alexbrainman/odbc" // ODBC驱动
)

// 导入此包会自动注册ODBC驱动
// 使用方式：
// import _ "github.com/zzguang83325/torm/drivers/odbc"
//
// Access 示例（DriverName 需显式指定为 odbc）：
// torm.OpenConnectionWithConfig("access", &torm.Config{
//	Driver:     torm.Access,
//	DriverName: "odbc",
//	DSN:        "Driver={Microsoft Access Driver (*.mdb, *.accdb)};DBQ=C:\\data\\app.accdb;",
// })
