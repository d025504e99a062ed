package torm

import (
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func TestCombineRestrictions(t *testing.T) {
	convey.Convey("限制条件组合", t, func() {
		convey.Convey("空值恒等", func() {
			r := NewRestriction("name = {0}", "Ann")
			convey.So(CombineRestrictions("AND", nil, r), convey.ShouldEqual, r)
			convey.So(CombineRestrictions("AND", r, nil), convey.ShouldEqual, r)
			convey.So(CombineRestrictions("AND", nil, nil), convey.ShouldBeNil)
		})

		convey.Convey("空白模板等同于 nil", func() {
			blank := NewRestriction("   ")
			r := NewRestriction("age > {0}", 18)
			convey.So(CombineRestrictions("OR", blank, r), convey.ShouldEqual, r)
			convey.So(CombineRestrictions("OR", r, blank), convey.ShouldEqual, r)
			convey.So(blank.IsEmpty(), convey.ShouldBeTrue)
		})

		convey.Convey("右侧占位符按左侧参数个数偏移", func() {
			left := NewRestriction("a = {0} AND b = {1}", 1, 2)
			right := NewRestriction("c = {0} OR d = {1}", 3, 4)

			combined := left.And(right)
			convey.So(combined.FilterText, convey.ShouldEqual, "(a = {0} AND b = {1}) AND (c = {2} OR d = {3})")
			convey.So(combined.Parameters, convey.ShouldResemble, []interface{}{1, 2, 3, 4})
		})

		convey.Convey("组合不修改原有实例", func() {
			left := NewRestriction("a = {0}", 1)
			right := NewRestriction("b = {0}", 2)
			_ = left.Or(right)

			convey.So(left.FilterText, convey.ShouldEqual, "a = {0}")
			convey.So(right.FilterText, convey.ShouldEqual, "b = {0}")
			convey.So(right.Parameters, convey.ShouldResemble, []interface{}{2})
		})

		convey.Convey("嵌套组合保持占位符连续", func() {
			a := NewRestriction("x = {0}", 1)
			b := NewRestriction("y = {0}", 2)
			c := NewRestriction("z = {0}", 3)

			combined := a.And(b).Or(c)
			convey.So(combined.FilterText, convey.ShouldEqual, "((x = {0}) AND (y = {1})) OR (z = {2})")
			convey.So(combined.ParameterCount(), convey.ShouldEqual, 3)
		})
	})
}

func TestRestrictionEqual(t *testing.T) {
	convey.Convey("限制条件等价比较", t, func() {
		convey.So(NewRestriction("a = {0}", 1).Equal(NewRestriction("a = {0}", 1)), convey.ShouldBeTrue)
		convey.So(NewRestriction("a = {0}", 1).Equal(NewRestriction("a = {0}", 2)), convey.ShouldBeFalse)
		convey.So(NewRestriction("a = {0}", 1).Equal(NewRestriction("b = {0}", 1)), convey.ShouldBeFalse)

		var nilRestriction *Restriction
		convey.So(nilRestriction.Equal(nil), convey.ShouldBeTrue)
		convey.So(nilRestriction.Equal(NewRestriction("a = {0}", 1)), convey.ShouldBeFalse)
	})
}

func TestRestrictionString(t *testing.T) {
	convey.Convey("限制条件显示输出", t, func() {
		r := NewRestriction("name = {0} AND age > {1}", "Ann", 18)
		convey.So(r.String(), convey.ShouldEqual, "name = Ann AND age > 18")

		convey.Convey("越界占位符原样保留", func() {
			broken := NewRestriction("name = {5}", "Ann")
			convey.So(broken.String(), convey.ShouldEqual, "name = {5}")
		})
	})
}

func TestRenderPlaceholders(t *testing.T) {
	convey.Convey("占位符渲染为 ? 标记", t, func() {
		sqlText, args := renderPlaceholders("a = {0} AND b IN ({1},{2})", []interface{}{1, 2, 3})
		convey.So(sqlText, convey.ShouldEqual, "a = ? AND b IN (?,?)")
		convey.So(args, convey.ShouldResemble, []interface{}{1, 2, 3})

		convey.Convey("乱序索引按出现顺序重排参数", func() {
			sqlText, args := renderPlaceholders("name = {1} OR age = {0}", []interface{}{25, "Ann"})
			convey.So(sqlText, convey.ShouldEqual, "name = ? OR age = ?")
			convey.So(args, convey.ShouldResemble, []interface{}{"Ann", 25})
		})

		convey.Convey("重复索引复制同一个参数", func() {
			sqlText, args := renderPlaceholders("x = {0} OR y = {0}", []interface{}{7})
			convey.So(sqlText, convey.ShouldEqual, "x = ? OR y = ?")
			convey.So(args, convey.ShouldResemble, []interface{}{7, 7})
		})

		convey.Convey("越界索引绑定 NULL", func() {
			sqlText, args := renderPlaceholders("x = {3}", []interface{}{7})
			convey.So(sqlText, convey.ShouldEqual, "x = ?")
			convey.So(args, convey.ShouldResemble, []interface{}{nil})
		})
	})

	convey.Convey("占位符整体偏移", t, func() {
		convey.So(shiftPlaceholders("a = {0} AND b = {1}", 3), convey.ShouldEqual, "a = {3} AND b = {4}")
		convey.So(shiftPlaceholders("a = {0}", 0), convey.ShouldEqual, "a = {0}")
	})
}
