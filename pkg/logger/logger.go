package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tapo-exporter/pkg/config"
	"github.com/tapo-exporter/pkg/device"
)

// FilePattern 日志文件名模板（按天切分）
const FilePattern = "tapo-exporter-%Y%m%d.log"

const timeLayout = "2006-01-02 15:04:05.000 -07:00"

var (
	mu sync.RWMutex
	// base 供 GetGlobalLogger 返回；helper 为包级函数额外跳过一层调用栈
	base   = zap.NewNop()
	helper = zap.NewNop()
)

// InitLogger 初始化全局日志：控制台 + 按天切分的 JSON 文件
// 未调用前所有包级函数均为 no-op。
func InitLogger(cfg *config.ZapLogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}

	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	writer, err := rotatelogs.New(filepath.Join(cfg.Path, FilePattern), rotateOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	var stdoutEncoder zapcore.Encoder
	if cfg.Format == "json" {
		stdoutEncoder = zapcore.NewJSONEncoder(jsonEncoderConfig())
	} else {
		stdoutEncoder = zapcore.NewConsoleEncoder(consoleEncoderConfig())
	}

	core := zapcore.NewTee(
		// stdout 在管道下不支持 fsync，只保留写入
		zapcore.NewCore(stdoutEncoder, zapcore.Lock(zapcore.AddSync(struct{ io.Writer }{os.Stdout})), level),
		zapcore.NewCore(zapcore.NewJSONEncoder(jsonEncoderConfig()), zapcore.AddSync(writer), level),
	)

	l := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	ReplaceGlobal(l)
	return l, nil
}

// ReplaceGlobal 替换全局日志实例，返回恢复函数
func ReplaceGlobal(l *zap.Logger) func() {
	mu.Lock()
	prevBase, prevHelper := base, helper
	base = l
	helper = l.WithOptions(zap.AddCallerSkip(1))
	mu.Unlock()

	return func() {
		mu.Lock()
		base, helper = prevBase, prevHelper
		mu.Unlock()
	}
}

func rotateOptions(cfg *config.ZapLogConfig) []rotatelogs.Option {
	opts := []rotatelogs.Option{
		rotatelogs.WithRotationTime(24 * time.Hour),
	}
	if cfg.MaxSize > 0 {
		opts = append(opts, rotatelogs.WithRotationSize(int64(cfg.MaxSize)*1024*1024))
	}
	// rotatelogs 中 MaxAge 与 RotationCount 互斥
	if cfg.MaxBackup > 0 {
		opts = append(opts, rotatelogs.WithMaxAge(-1), rotatelogs.WithRotationCount(uint(cfg.MaxBackup)))
	} else if cfg.MaxAge > 0 {
		opts = append(opts, rotatelogs.WithMaxAge(time.Duration(cfg.MaxAge)*24*time.Hour))
	}
	return opts
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.ConsoleSeparator = " "
	encCfg.EncodeLevel = coloredLevelEncoder
	// 控制台彩色时间
	encCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(fmt.Sprintf("\033[34m%s\033[0m", t.Format(timeLayout)))
	}
	// Caller 两级路径
	encCfg.EncodeCaller = func(c zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		rel := filepath.Join(filepath.Base(filepath.Dir(c.File)), filepath.Base(c.File))
		enc.AppendString(fmt.Sprintf("%s:%d", rel, c.Line))
	}
	return encCfg
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format(timeLayout))
	}
	encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	return encCfg
}

func coloredLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var levelStr string
	switch level {
	case zapcore.DebugLevel:
		levelStr = "\033[36mDEBUG\033[0m"
	case zapcore.InfoLevel:
		levelStr = "\033[32mINFO \033[0m"
	case zapcore.WarnLevel:
		levelStr = "\033[33mWARN \033[0m"
	case zapcore.ErrorLevel:
		levelStr = "\033[31mERROR\033[0m"
	case zapcore.DPanicLevel:
		levelStr = "\033[35mDPANIC\033[0m"
	case zapcore.PanicLevel:
		levelStr = "\033[35mPANIC\033[0m"
	case zapcore.FatalLevel:
		levelStr = "\033[35mFATAL\033[0m"
	default:
		levelStr = "UNK  "
	}
	enc.AppendString(levelStr)
}

// GetGlobalLogger 返回全局日志实例
func GetGlobalLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// WithDevice 返回附带设备身份字段的日志实例（不含任何凭据）
func WithDevice(id device.Identity) *zap.Logger {
	return GetGlobalLogger().With(zap.Object("device", id))
}

func helperLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return helper
}

// goid 当前 goroutine 编号，栈首行形如 "goroutine 123 [running]:"
func goid() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	var id uint64
	for i := len("goroutine "); i < len(b); i++ {
		c := b[i]
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}

func withGoid(fields []zap.Field) []zap.Field {
	return append(fields, zap.Uint64("goid", goid()))
}

func Debug(msg string, fields ...zap.Field) { helperLogger().Debug(msg, withGoid(fields)...) }
func Info(msg string, fields ...zap.Field)  { helperLogger().Info(msg, withGoid(fields)...) }
func Warn(msg string, fields ...zap.Field)  { helperLogger().Warn(msg, withGoid(fields)...) }
func Error(msg string, fields ...zap.Field) { helperLogger().Error(msg, withGoid(fields)...) }
func Panic(msg string, fields ...zap.Field) { helperLogger().Panic(msg, withGoid(fields)...) }
func Fatal(msg string, fields ...zap.Field) { helperLogger().Fatal(msg, withGoid(fields)...) }

// Sync 刷新缓冲
func Sync() error {
	return GetGlobalLogger().Sync()
}
