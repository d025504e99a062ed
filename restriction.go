package torm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// placeholderPattern matches {0}, {1}, ... positional placeholders
var placeholderPattern = regexp.MustCompile(`\{(\d+)\}`)

// Restriction represents a parameterized SQL filter fragment.
// FilterText 使用 {0}、{1} 形式的位置占位符，与 Parameters 按顺序一一对应。
// 组合操作总是生成新的 Restriction，原有实例不会被修改
type Restriction struct {
	FilterText string
	Parameters []interface{}
}

// NewRestriction creates a restriction from filter text and positional parameters
func NewRestriction(filterText string, parameters ...interface{}) *Restriction {
	return &Restriction{
		FilterText: filterText,
		Parameters: parameters,
	}
}

// ParameterCount returns the number of bound parameter values
func (r *Restriction) ParameterCount() int {
	if r == nil {
		return 0
	}
	return len(r.Parameters)
}

// IsEmpty reports whether the restriction carries no filter text
func (r *Restriction) IsEmpty() bool {
	return r == nil || strings.TrimSpace(r.FilterText) == ""
}

// And combines this restriction with another using the AND operator
func (r *Restriction) And(other *Restriction) *Restriction {
	return CombineRestrictions("AND", r, other)
}

// Or combines this restriction with another using the OR operator
func (r *Restriction) Or(other *Restriction) *Restriction {
	return CombineRestrictions("OR", r, other)
}

// CombineRestrictions joins two restrictions with the given logical operator.
// 组合规则：nil+nil 为 nil；nil 或空模板与 X 组合直接返回 X；
// 其余情况将两侧模板用括号包裹后以 operator 连接，
// 右侧占位符整体偏移左侧参数个数
func CombineRestrictions(operator string, left, right *Restriction) *Restriction {
	if left.IsEmpty() && right.IsEmpty() {
		return nil
	}
	if left.IsEmpty() {
		return right
	}
	if right.IsEmpty() {
		return left
	}

	offset := len(left.Parameters)
	shifted := shiftPlaceholders(right.FilterText, offset)

	parameters := make([]interface{}, 0, len(left.Parameters)+len(right.Parameters))
	parameters = append(parameters, left.Parameters...)
	parameters = append(parameters, right.Parameters...)

	return &Restriction{
		FilterText: fmt.Sprintf("(%s) %s (%s)", left.FilterText, operator, shifted),
		Parameters: parameters,
	}
}

// Equal reports whether two restrictions have the same filter text and
// element-wise identical parameters
func (r *Restriction) Equal(other *Restriction) bool {
	if r == nil || other == nil {
		return r == nil && other == nil
	}
	if r.FilterText != other.FilterText {
		return false
	}
	if len(r.Parameters) != len(other.Parameters) {
		return false
	}
	for i := range r.Parameters {
		if r.Parameters[i] != other.Parameters[i] {
			return false
		}
	}
	return true
}

// String returns the filter text with parameter values substituted for
// display purposes only, never for execution
func (r *Restriction) String() string {
	if r.IsEmpty() {
		return ""
	}
	return placeholderPattern.ReplaceAllStringFunc(r.FilterText, func(match string) string {
		index, err := strconv.Atoi(match[1 : len(match)-1])
		if err != nil || index < 0 || index >= len(r.Parameters) {
			return match
		}
		return fmt.Sprintf("%v", r.Parameters[index])
	})
}

// shiftPlaceholders renumbers every {n} placeholder by offset
func shiftPlaceholders(filterText string, offset int) string {
	if offset == 0 {
		return filterText
	}
	return placeholderPattern.ReplaceAllStringFunc(filterText, func(match string) string {
		index, err := strconv.Atoi(match[1 : len(match)-1])
		if err != nil {
			return match
		}
		return "{" + strconv.Itoa(index+offset) + "}"
	})
}

// renderPlaceholders replaces every {n} placeholder with the driver-level ?
// marker and returns the argument list matching the ? sequence.
// {n} 是指向参数表的位置索引，可以乱序出现或重复引用同一个参数，
// 渲染时按占位符出现顺序重排（必要时复制）参数；
// 索引越界的占位符绑定 NULL，属于调用方的编程错误
func renderPlaceholders(filterText string, parameters []interface{}) (string, []interface{}) {
	rendered := make([]interface{}, 0, len(parameters))
	sqlText := placeholderPattern.ReplaceAllStringFunc(filterText, func(match string) string {
		index, err := strconv.Atoi(match[1 : len(match)-1])
		if err != nil || index < 0 || index >= len(parameters) {
			rendered = append(rendered, nil)
		} else {
			rendered = append(rendered, parameters[index])
		}
		return "?"
	})
	return sqlText, rendered
}
