package torm

import (
	"fmt"
	"reflect"
	"strings"
)

// supportedOperators 是记录过滤器允许的全部运算符集合，
// 其余任何字符串都在赋值阶段被拒绝
var supportedOperators = map[string]bool{
	"=":        true,
	"<>":       true,
	"<":        true,
	">":        true,
	"IN":       true,
	"NOT IN":   true,
	"LIKE":     true,
	"NOT LIKE": true,
	"<=":       true,
	">=":       true,
	"IS":       true,
	"IS NOT":   true,
}

// encryptedOperators 是可以直接作用于密文的运算符。
// 加密后的值只保留判等语义，范围和模糊匹配对密文没有意义
var encryptedOperators = map[string]bool{
	"=":      true,
	"<>":     true,
	"IN":     true,
	"NOT IN": true,
	"IS":     true,
	"IS NOT": true,
}

// RecordFilter represents a user-facing single-field search criterion that
// resolves to a Restriction
type RecordFilter struct {
	fieldName string
	operator  string

	// SearchParameter is the comparison value, a scalar or a slice for
	// IN / NOT IN operators
	SearchParameter interface{}
}

// NewRecordFilter creates a record filter, rejecting unsupported operators
// immediately
func NewRecordFilter(fieldName, operator string, searchParameter interface{}) (*RecordFilter, error) {
	filter := &RecordFilter{fieldName: fieldName, SearchParameter: searchParameter}
	if err := filter.SetOperator(operator); err != nil {
		return nil, err
	}
	return filter, nil
}

// FieldName returns the target field name
func (f *RecordFilter) FieldName() string {
	return f.fieldName
}

// Operator returns the comparison operator
func (f *RecordFilter) Operator() string {
	return f.operator
}

// SetOperator assigns the comparison operator.
// 非法运算符立即返回 ErrUnsupportedOperator，不会延迟到生成 SQL 时才发现
func (f *RecordFilter) SetOperator(operator string) error {
	normalized := strings.ToUpper(strings.TrimSpace(operator))
	if !supportedOperators[normalized] {
		return fmt.Errorf("%w: %q", ErrUnsupportedOperator, operator)
	}
	f.operator = normalized
	return nil
}

// SupportsEncrypted reports whether this filter can be applied to an
// encrypted field by comparing ciphertext
func (f *RecordFilter) SupportsEncrypted() bool {
	return encryptedOperators[f.operator]
}

// GenerateRestriction converts the filter to a Restriction.
// 若元数据中注册了匹配该字段名的搜索扩展，则交由扩展生成；
// 否则按运算符生成默认的单字段条件
func (f *RecordFilter) GenerateRestriction(meta *TableMetadata) (*Restriction, error) {
	if meta != nil {
		if extension := meta.searchExtensionFor(f.fieldName); extension != nil {
			return extension(f)
		}
	}

	switch f.operator {
	case "IN", "NOT IN":
		return f.generateInRestriction()
	case "IS", "IS NOT":
		// IS / IS NOT 只对 NULL 有意义，直接内联 NULL 字面量
		return NewRestriction(fmt.Sprintf("%s %s NULL", f.fieldName, f.operator)), nil
	default:
		return NewRestriction(fmt.Sprintf("%s %s {0}", f.fieldName, f.operator), f.SearchParameter), nil
	}
}

// generateInRestriction expands a slice parameter into one placeholder per
// element: field IN ({0},{1},{2})
func (f *RecordFilter) generateInRestriction() (*Restriction, error) {
	values := expandSliceParameter(f.SearchParameter)
	if len(values) == 0 {
		return nil, fmt.Errorf("torm: %s operator requires a non-empty value list for field %q", f.operator, f.fieldName)
	}

	placeholders := make([]string, len(values))
	for i := range values {
		placeholders[i] = fmt.Sprintf("{%d}", i)
	}

	filterText := fmt.Sprintf("%s %s (%s)", f.fieldName, f.operator, strings.Join(placeholders, ","))
	return NewRestriction(filterText, values...), nil
}

// expandSliceParameter flattens a slice or array parameter into a value list.
// 标量参数视为单元素列表
func expandSliceParameter(parameter interface{}) []interface{} {
	if parameter == nil {
		return nil
	}
	if values, ok := parameter.([]interface{}); ok {
		return values
	}

	v := reflect.ValueOf(parameter)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return []interface{}{parameter}
	}
	values := make([]interface{}, v.Len())
	for i := 0; i < v.Len(); i++ {
		values[i] = v.Index(i).Interface()
	}
	return values
}
