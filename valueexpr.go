package torm

import "time"

// ValueExpression computes a field's default value when a new record is
// created. 表达式由外部求值器提供，这一层只负责调用和错误路由
type ValueExpression func() (interface{}, error)

// UpdateValueExpression computes a field's value at update time from the
// record being written
type UpdateValueExpression func(record interface{}) (interface{}, error)

// NowExpression is a ready-made default-value expression returning the
// current time
func NowExpression() (interface{}, error) {
	return time.Now(), nil
}

// UpdateNowExpression is a ready-made update-value expression returning the
// current time regardless of the record content
func UpdateNowExpression(record interface{}) (interface{}, error) {
	return time.Now(), nil
}

// ConstantExpression returns a default-value expression that always yields
// the given value
func ConstantExpression(value interface{}) ValueExpression {
	return func() (interface{}, error) {
		return value, nil
	}
}
