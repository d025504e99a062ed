package torm

import (
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"
)

func TestSchemaVersionKey(t *testing.T) {
	convey.Convey("迁移版本键打包", t, func() {
		date := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
		v := NewSchemaVersion(3, date, 7, "ops")

		convey.Convey("打包和解包往返", func() {
			key := v.Key()
			convey.So(key, convey.ShouldEqual, int64(3_2026_0830_0007))

			parsed, err := ParseSchemaVersionKey(key)
			convey.So(err, convey.ShouldBeNil)
			convey.So(parsed.Branch, convey.ShouldEqual, 3)
			convey.So(parsed.Year, convey.ShouldEqual, 2026)
			convey.So(parsed.Month, convey.ShouldEqual, 8)
			convey.So(parsed.Day, convey.ShouldEqual, 30)
			convey.So(parsed.Sequence, convey.ShouldEqual, 7)
		})

		convey.Convey("键序与时间序一致", func() {
			earlier := NewSchemaVersion(3, date.AddDate(0, 0, -1), 9999, "ops")
			sameDayLater := NewSchemaVersion(3, date, 8, "ops")
			higherBranch := NewSchemaVersion(4, date.AddDate(-2, 0, 0), 0, "ops")

			convey.So(earlier.Compare(v), convey.ShouldEqual, -1)
			convey.So(v.Compare(sameDayLater), convey.ShouldEqual, -1)
			convey.So(v.Compare(v), convey.ShouldEqual, 0)
			// 分支号权重最高
			convey.So(higherBranch.Compare(v), convey.ShouldEqual, 1)
		})

		convey.Convey("非法键被拒绝", func() {
			_, err := ParseSchemaVersionKey(-1)
			convey.So(err, convey.ShouldNotBeNil)

			// 月份 13 非法
			_, err = ParseSchemaVersionKey(int64(2026_1301_0000))
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("显示格式", func() {
			convey.So(v.String(), convey.ShouldEqual, "3.20260830.7 (ops)")
		})
	})
}
