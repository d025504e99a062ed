package torm

import (
	"bytes"
	"encoding/json"
	"reflect"
	"time"
)

// ToJson converts any value to a JSON string.
// 对 nil 和 typed-nil 指针返回 "{}"，关闭 HTML 转义，出错时不 panic
func ToJson(v interface{}) string {
	if isNil(v) {
		return "{}"
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(v); err != nil {
		return "{}"
	}

	// json.Encoder 末尾会追加换行符，这里去掉
	res := buf.Bytes()
	if len(res) > 0 && res[len(res)-1] == '\n' {
		res = res[:len(res)-1]
	}
	return string(res)
}

// isNil checks if an interface is truly nil, including typed nil pointers
func isNil(i interface{}) bool {
	if i == nil {
		return true
	}
	v := reflect.ValueOf(i)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Map, reflect.Ptr, reflect.UnsafePointer, reflect.Interface, reflect.Slice:
		return v.IsNil()
	}
	return false
}

// derefPointer 解引用任意层指针，nil 指针返回 nil
func derefPointer(value interface{}) interface{} {
	if value == nil {
		return nil
	}
	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	return v.Interface()
}

// timeLayouts 按常见程度排列的时间解析格式
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"15:04:05",
}

// parseTimeValue parses a time string trying the known layouts in order
func parseTimeValue(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
