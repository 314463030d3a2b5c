package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New 根据运行环境创建日志器，开发环境输出可读格式，其余输出JSON
func New(env string) zerolog.Logger {
	return NewWithWriter(env, os.Stderr)
}

// NewWithWriter 同New，可指定输出位置
func NewWithWriter(env string, w io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	out := w
	if env == "development" || env == "dev" {
		level = zerolog.DebugLevel
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
