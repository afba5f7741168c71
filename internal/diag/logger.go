package diag

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 为结构化日志器：单行 JSON，底层为 zap core。
// 零值与 nil 均为 no-op。
type Logger struct {
	z    *zap.Logger
	sink *RotatingFile
}

// NewLogger 按 level 初始化，写入 logs/pagegen-current.txt，10MiB 轮转。
func NewLogger(corrID, level string) *Logger {
	sink := NewRotatingFile("logs", 10*1024*1024)
	l := NewLoggerTo(corrID, level, zapcore.AddSync(sink))
	l.sink = sink
	return l
}

// NewLoggerTo 将日志写入给定 sink（测试或自定义输出）。
func NewLoggerTo(corrID, level string, ws zapcore.WriteSyncer) *Logger {
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     utcTime,
		EncodeDuration: zapcore.MillisDurationEncoder,
	})
	core := zapcore.NewCore(enc, ws, ParseLevel(level))
	return &Logger{z: zap.New(core).With(zap.String("corr_id", corrID))}
}

func utcTime(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format(time.RFC3339))
}

// ParseLevel 解析 debug|info|warn|error，未知值为 info。
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Ref 标识事件关联的输入源与页面。
type Ref struct {
	Source string
	Seq    int
	Page   int
	page   bool
}

// PageRef 构造指向某个请求的引用。
func PageRef(seq, page int) Ref { return Ref{Seq: seq, Page: page, page: true} }

// SourceRef 构造指向输入源的引用。
func SourceRef(src string) Ref { return Ref{Source: src} }

func (r Ref) fields(fs []zap.Field) []zap.Field {
	if r.Source != "" {
		fs = append(fs, zap.String("source", r.Source))
	}
	if r.page {
		fs = append(fs, zap.Int("seq", r.Seq), zap.Int("page", r.Page))
	}
	return fs
}

func (l *Logger) log(lv zapcore.Level, comp, stage, msg string, ref Ref, extra ...zap.Field) {
	if l == nil || l.z == nil {
		return
	}
	ce := l.z.Check(lv, msg)
	if ce == nil {
		return
	}
	fs := make([]zap.Field, 0, 4+len(extra))
	fs = append(fs, zap.String("comp", comp), zap.String("stage", stage))
	fs = ref.fields(fs)
	ce.Write(append(fs, extra...)...)
}

func kvField(kv map[string]string) []zap.Field {
	if len(kv) == 0 {
		return nil
	}
	return []zap.Field{zap.Any("kv", kv)}
}

func durField(since *time.Time) []zap.Field {
	if since == nil {
		return nil
	}
	return []zap.Field{zap.Int64("dur_ms", time.Since(*since).Milliseconds())}
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	return l.StartWithKV(comp, msg, Ref{}, nil)
}

// StartWith 记录带引用的 start。
func (l *Logger) StartWith(comp, msg string, ref Ref) *Timer {
	return l.StartWithKV(comp, msg, ref, nil)
}

// StartWithKV 记录带引用与键值的 start。
func (l *Logger) StartWithKV(comp, msg string, ref Ref, kv map[string]string) *Timer {
	l.log(zapcore.InfoLevel, comp, "start", msg, ref, kvField(kv)...)
	return &Timer{l: l, comp: comp, ref: ref, t0: time.Now()}
}

// DebugStart 输出调试级别的 start 类事件。
func (l *Logger) DebugStart(comp, msg string, ref Ref, kv map[string]string) {
	l.log(zapcore.DebugLevel, comp, "start", msg, ref, kvField(kv)...)
}

// Warn 记录 warn 事件（如限额跳过、重试）。
func (l *Logger) Warn(comp, code, msg string, ref Ref, kv map[string]string) {
	fs := kvField(kv)
	if code != "" {
		fs = append(fs, zap.String("code", code))
	}
	l.log(zapcore.WarnLevel, comp, "warn", msg, ref, fs...)
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWithKV(comp, code, msg, durSince, Ref{}, nil)
}

// ErrorWith 带引用的 error 事件。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, ref Ref) {
	l.ErrorWithKV(comp, code, msg, durSince, ref, nil)
}

// ErrorWithKV 附带键值对（例如 HTTP 状态码、上游错误片段）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, ref Ref, kv map[string]string) {
	fs := append([]zap.Field{zap.String("code", code)}, durField(durSince)...)
	l.log(zapcore.ErrorLevel, comp, "error", msg, ref, append(fs, kvField(kv)...)...)
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.log(zapcore.InfoLevel, comp, "finish", msg, Ref{}, zap.Int64("dur_ms", time.Since(start).Milliseconds()), zap.Int64("count", count))
}

// Sync 刷新底层输出。
func (l *Logger) Sync() error {
	if l == nil || l.z == nil {
		return nil
	}
	return l.z.Sync()
}

// Close 刷新并关闭默认文件 sink。
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	_ = l.Sync()
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l    *Logger
	comp string
	ref  Ref
	t0   time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	ObserveDuration(t.comp, "finish", time.Since(t.t0).Milliseconds())
	t.l.log(zapcore.InfoLevel, t.comp, "finish", msg, t.ref,
		zap.Int64("dur_ms", time.Since(t.t0).Milliseconds()), zap.Int64("count", count))
}

// Since 返回计时起点，供 Error 计算耗时。
func (t *Timer) Since() *time.Time {
	if t == nil {
		return nil
	}
	return &t.t0
}
