package torm

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// normalizeDBValue 统一驱动返回的原始值。
// 文本列的 []byte 转为 string，避免外部持有驱动重用的底层缓冲区；
// 二进制列复制一份字节数据
func normalizeDBValue(val interface{}, dbType string) interface{} {
	if val == nil {
		return nil
	}

	if b, ok := val.([]byte); ok {
		if isNumericDBType(dbType) {
			if s := string(b); s != "" {
				return s
			}
			return nil
		}
		if !isBinaryDBType(dbType) {
			return string(b)
		}
		bCopy := make([]byte, len(b))
		copy(bCopy, b)
		return bCopy
	}

	return val
}

// isNumericDBType reports whether the driver column type is numeric
func isNumericDBType(dbType string) bool {
	switch {
	case strings.Contains(dbType, "INT"),
		strings.Contains(dbType, "DECIMAL"),
		strings.Contains(dbType, "NUMERIC"),
		strings.Contains(dbType, "FLOAT"),
		strings.Contains(dbType, "DOUBLE"),
		strings.Contains(dbType, "REAL"),
		strings.Contains(dbType, "NUMBER"):
		return true
	}
	return false
}

// isBinaryDBType reports whether the driver column type holds raw bytes
func isBinaryDBType(dbType string) bool {
	switch {
	case strings.Contains(dbType, "BLOB"),
		strings.Contains(dbType, "BINARY"),
		strings.Contains(dbType, "BYTEA"),
		strings.Contains(dbType, "IMAGE"),
		strings.Contains(dbType, "RAW"):
		return true
	}
	return false
}

// coerceValue converts a raw database value to the target property type.
// 无法转换时返回错误，由调用方决定按字段路由还是中止
func coerceValue(value interface{}, targetType reflect.Type) (reflect.Value, error) {
	if targetType.Kind() == reflect.Ptr {
		if value == nil {
			return reflect.Zero(targetType), nil
		}
		inner, err := coerceValue(value, targetType.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(targetType.Elem())
		ptr.Elem().Set(inner)
		return ptr, nil
	}

	if value == nil {
		return reflect.Zero(targetType), nil
	}

	v := reflect.ValueOf(value)
	if v.Type() == targetType {
		return v, nil
	}
	if v.Type().ConvertibleTo(targetType) && compatibleKinds(v.Kind(), targetType.Kind()) {
		return v.Convert(targetType), nil
	}

	switch targetType.Kind() {
	case reflect.String:
		return reflect.ValueOf(stringifyValue(value)), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := toInt64(value)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(n).Convert(targetType), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := toInt64(value)
		if err != nil {
			return reflect.Value{}, err
		}
		if n < 0 {
			return reflect.Value{}, fmt.Errorf("torm: cannot store negative value %d in %s", n, targetType)
		}
		return reflect.ValueOf(uint64(n)).Convert(targetType), nil
	case reflect.Float32, reflect.Float64:
		f, err := toFloat64(value)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(f).Convert(targetType), nil
	case reflect.Bool:
		b, err := toBool(value)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(b), nil
	case reflect.Struct:
		if targetType == reflect.TypeOf(time.Time{}) {
			t, err := toTime(value)
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(t), nil
		}
	case reflect.Slice:
		if targetType.Elem().Kind() == reflect.Uint8 {
			switch raw := value.(type) {
			case []byte:
				return reflect.ValueOf(raw), nil
			case string:
				return reflect.ValueOf([]byte(raw)), nil
			}
		}
	}

	return reflect.Value{}, fmt.Errorf("torm: cannot convert value of type %T to %s", value, targetType)
}

// compatibleKinds 限制 Convert 只用于数值族之间的转换，
// 防止 int→string 这类产生乱码的合法但无意义的转换
func compatibleKinds(from, to reflect.Kind) bool {
	numeric := func(k reflect.Kind) bool {
		return k >= reflect.Int && k <= reflect.Float64
	}
	if numeric(from) && numeric(to) {
		return true
	}
	return from == to
}

func stringifyValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
	default:
		return 0, fmt.Errorf("torm: cannot convert %T to integer", value)
	}
}

func toFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
	default:
		return 0, fmt.Errorf("torm: cannot convert %T to float", value)
	}
}

func toBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(v))
	case []byte:
		return strconv.ParseBool(strings.TrimSpace(string(v)))
	default:
		return false, fmt.Errorf("torm: cannot convert %T to bool", value)
	}
}

func toTime(value interface{}) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		if t := parseTimeValue(v); !t.IsZero() {
			return t, nil
		}
		return time.Time{}, fmt.Errorf("torm: cannot parse time value %q", v)
	case []byte:
		return toTime(string(v))
	case int64:
		// 整数按 Unix 秒处理
		return time.Unix(v, 0), nil
	default:
		return time.Time{}, fmt.Errorf("torm: cannot convert %T to time.Time", value)
	}
}
