package torm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// LogLevel defines the severity of the log
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger interface defines simple behavior for logging with structured fields
type Logger interface {
	// Log records a log entry. fields is optional (can be nil).
	Log(level LogLevel, msg string, fields map[string]interface{})
}

// slogLogger is an adapter for log/slog
type slogLogger struct {
	logger *slog.Logger
}

func (s *slogLogger) Log(level LogLevel, msg string, fields map[string]interface{}) {
	l := s.logger
	if l == nil {
		l = slog.Default()
	}

	// 字段按固定优先级排序输出，保证日志可读且稳定
	var args []interface{}
	if len(fields) > 0 {
		args = make([]interface{}, 0, len(fields)*2)

		priorityKeys := []string{"db", "duration", "sql", "args", "error"}
		processedKeys := make(map[string]bool)

		for _, k := range priorityKeys {
			if v, ok := fields[k]; ok {
				if k == "args" {
					if slice, ok := v.([]interface{}); ok {
						v = formatLogValue(slice)
					}
				}
				args = append(args, k, v)
				processedKeys[k] = true
			}
		}

		remainingKeys := make([]string, 0, len(fields)-len(processedKeys))
		for k := range fields {
			if !processedKeys[k] {
				remainingKeys = append(remainingKeys, k)
			}
		}
		sort.Strings(remainingKeys)
		for _, k := range remainingKeys {
			args = append(args, k, fields[k])
		}
	}

	switch level {
	case LevelDebug:
		l.Debug(msg, args...)
	case LevelInfo:
		l.Info(msg, args...)
	case LevelWarn:
		l.Warn(msg, args...)
	case LevelError:
		l.Error(msg, args...)
	}
}

// NewSlogLogger creates a Logger that uses log/slog
func NewSlogLogger(logger *slog.Logger) Logger {
	return &slogLogger{logger: logger}
}

// formatLogValue formats a log field value
func formatLogValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("'%s'", val)
	case []interface{}:
		var strs []string
		for _, item := range val {
			if s, ok := item.(string); ok {
				strs = append(strs, fmt.Sprintf("'%s'", s))
			} else {
				strs = append(strs, fmt.Sprintf("%v", item))
			}
		}
		return fmt.Sprintf("[%s]", strings.Join(strs, ", "))
	default:
		return fmt.Sprintf("%v", val)
	}
}

var (
	currentLogger Logger = &slogLogger{logger: nil}
	debug         bool
	slowThreshold time.Duration
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// consoleEncodings 按优先级尝试的本地化控制台编码。
// 部分驱动在非 UTF-8 系统区域下返回本地编码的错误信息
var consoleEncodings = []struct {
	name string
	enc  encoding.Encoding
}{
	{"GBK", simplifiedchinese.GBK},
	{"GB18030", simplifiedchinese.GB18030},
	{"Big5", traditionalchinese.Big5},
	{"Shift_JIS", japanese.ShiftJIS},
	{"EUC-KR", korean.EUCKR},
	{"Windows-1252", charmap.Windows1252},
}

// fixStringEncoding 将疑似本地编码的文本转换为 UTF-8，
// 已经是合法 UTF-8 或全部转换失败时原样返回
func fixStringEncoding(text string) string {
	if utf8.ValidString(text) {
		return text
	}

	data := []byte(text)
	for _, candidate := range consoleEncodings {
		decoded, err := candidate.enc.NewDecoder().Bytes(data)
		if err != nil {
			continue
		}
		if utf8.Valid(decoded) && !strings.ContainsRune(string(decoded), 0xFFFD) {
			return string(decoded)
		}
	}
	return text
}

// SetLogger sets the global logger
func SetLogger(l Logger) {
	currentLogger = l
}

// SetDebugMode enables or disables debug mode
func SetDebugMode(enabled bool) {
	debug = enabled
	if enabled {
		// 如果全局 slog 还不支持 Debug 级别，则强制设置一个 Debug 级别的默认 slog
		if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})))
		}
	}
}

// IsDebugEnabled returns true if debug mode is enabled
func IsDebugEnabled() bool {
	return debug
}

// cleanSQL removes newlines, tabs and multiple spaces from SQL string
func cleanSQL(sql string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(sql, " "))
}

// SetSlowQueryThreshold enables slow-query warnings for statements that run
// longer than the given duration. 设为 0 关闭慢查询告警
func SetSlowQueryThreshold(threshold time.Duration) {
	slowThreshold = threshold
}

// LogSQL logs SQL statement, parameters and execution time in debug mode.
// 超过慢查询阈值的语句不论是否开启调试模式都会以 Warn 级别记录
func LogSQL(dbName string, sql string, args []interface{}, duration time.Duration) {
	slow := slowThreshold > 0 && duration >= slowThreshold
	if !debug && !slow {
		return
	}

	fields := map[string]interface{}{
		"db":       dbName,
		"sql":      cleanSQL(sql),
		"duration": duration.String(),
	}
	if len(args) > 0 {
		fields["args"] = args
	}
	if slow {
		currentLogger.Log(LevelWarn, "slow SQL log", fields)
		return
	}
	currentLogger.Log(LevelDebug, "SQL log", fields)
}

// LogSQLError logs a failed SQL statement with its parameters and error
func LogSQLError(dbName string, sql string, args []interface{}, duration time.Duration, err error) {
	fields := map[string]interface{}{
		"db":       dbName,
		"sql":      cleanSQL(sql),
		"duration": duration.String(),
		"error":    fixStringEncoding(err.Error()),
	}
	if len(args) > 0 {
		fields["args"] = args
	}
	currentLogger.Log(LevelError, "SQL failed log", fields)
}

// LogInfo logs info message
func LogInfo(msg string, fields ...map[string]interface{}) {
	var f map[string]interface{}
	if len(fields) > 0 {
		f = fields[0]
	}
	currentLogger.Log(LevelInfo, msg, f)
}

// LogWarn logs warning message
func LogWarn(msg string, fields ...map[string]interface{}) {
	var f map[string]interface{}
	if len(fields) > 0 {
		f = fields[0]
	}
	currentLogger.Log(LevelWarn, msg, f)
}

// LogError logs error message
func LogError(msg string, fields ...map[string]interface{}) {
	var f map[string]interface{}
	if len(fields) > 0 {
		f = fields[0]
	}
	currentLogger.Log(LevelError, msg, f)
}

// LogDebug logs debug message
func LogDebug(msg string, fields ...map[string]interface{}) {
	if debug {
		var f map[string]interface{}
		if len(fields) > 0 {
			f = fields[0]
		}
		currentLogger.Log(LevelDebug, msg, f)
	}
}

// InitLogger initializes the global slog logger with a specific level to console
func InitLogger(level string) {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(level),
	})
	slog.SetDefault(slog.New(handler))
	SetLogger(&slogLogger{logger: nil})
}

// InitLoggerWithFile initializes the logger to both console and a file
func InitLoggerWithFile(level string, filePath string) {
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "torm: failed to open log file: %v\n", err)
		return
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	handler := slog.NewTextHandler(multiWriter, &slog.HandlerOptions{
		Level: parseLogLevel(level),
	})
	slog.SetDefault(slog.New(handler))
	SetLogger(&slogLogger{logger: nil})
}

func parseLogLevel(level string) slog.Level {
	switch {
	case strings.EqualFold(level, "debug"):
		SetDebugMode(true)
		return slog.LevelDebug
	case strings.EqualFold(level, "warn"):
		return slog.LevelWarn
	case strings.EqualFold(level, "error"):
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
