package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options 日志初始化参数
type Options struct {
	Level  string
	Format string
	// Output: stdout / stderr / file
	Output     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type Fields = logrus.Fields

var log *logrus.Logger

func Init(opts Options) error {
	l := logrus.New()

	// 设置日志级别
	switch opts.Level {
	case "debug":
		l.SetLevel(logrus.DebugLevel)
	case "info":
		l.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		l.SetLevel(logrus.WarnLevel)
	case "error":
		l.SetLevel(logrus.ErrorLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}

	// 设置日志格式
	switch opts.Format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	out, err := output(opts)
	if err != nil {
		return err
	}
	l.SetOutput(out)

	log = l
	return nil
}

func output(opts Options) (io.Writer, error) {
	switch opts.Output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "file":
		if opts.File == "" {
			return nil, fmt.Errorf("log output is file but no file path configured")
		}
		// 按大小滚动
		return &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}, nil
	default:
		return nil, fmt.Errorf("unknown log output %q", opts.Output)
	}
}

// SetOutput 测试中捕获日志用
func SetOutput(w io.Writer) {
	if log == nil {
		log = logrus.New()
	}
	log.SetOutput(w)
}

// current 未初始化时退回 logrus 标准 logger，Init 之前的日志不会丢
func current() logrus.FieldLogger {
	if log == nil {
		return logrus.StandardLogger()
	}
	return log
}

func WithFields(fields Fields) *logrus.Entry {
	return current().WithFields(fields)
}

func Debugf(format string, args ...interface{}) {
	current().Debugf(format, args...)
}

func Info(args ...interface{}) {
	current().Info(args...)
}

func Infof(format string, args ...interface{}) {
	current().Infof(format, args...)
}

func Warn(args ...interface{}) {
	current().Warn(args...)
}

func Warnf(format string, args ...interface{}) {
	current().Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	current().Errorf(format, args...)
}
