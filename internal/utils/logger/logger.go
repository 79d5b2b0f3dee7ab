package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config describes where log output goes and how verbose it is.
type Config struct {
	Level    string
	FilePath string
	// Writer receives console output; nil means os.Stderr.
	Writer io.Writer
}

type nopSyncer struct {
	mu     sync.RWMutex
	writer io.Writer
}

func (n *nopSyncer) Write(p []byte) (int, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.writer == nil {
		return 0, nil
	}
	return n.writer.Write(p)
}

func (n *nopSyncer) Sync() error {
	return nil // no-op
}

// Handle owns a configured logger, its level and its optional log file.
type Handle struct {
	sugar *zap.SugaredLogger
	base  *zap.Logger
	level zap.AtomicLevel
	file  *os.File
	mu    sync.Mutex
}

// New builds a logger from cfg. The caller passes Handle.Sugar() to the
// components that log and must call Close when done.
func New(cfg Config) (*Handle, error) {
	level := zap.NewAtomicLevelAt(ParseLevel(cfg.Level))

	encoderCfg := zap.NewDevelopmentConfig().EncoderConfig
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeCaller = zapcore.ShortCallerEncoder

	out := cfg.Writer
	if out == nil {
		out = os.Stderr
	}
	consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(&nopSyncer{writer: out}), level)
	cores := []zapcore.Core{consoleCore}

	h := &Handle{level: level}

	if filePath := strings.TrimSpace(cfg.FilePath); filePath != "" {
		fileCore, file, err := buildFileCore(encoderCfg, filePath, level)
		if err != nil {
			return nil, err
		}
		h.file = file
		cores = append(cores, fileCore)
	}

	h.base = zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	h.sugar = h.base.Sugar()
	return h, nil
}

func buildFileCore(encoderCfg zapcore.EncoderConfig, path string, level zap.AtomicLevel) (zapcore.Core, *os.File, error) {
	cleanedPath := filepath.Clean(path)
	dir := filepath.Dir(cleanedPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory %q: %w", dir, err)
		}
	}

	file, err := os.OpenFile(cleanedPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %q: %w", cleanedPath, err)
	}

	fileEncoderCfg := encoderCfg
	fileEncoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(fileEncoderCfg), zapcore.AddSync(file), level)
	return core, file, nil
}

// Sugar returns the sugared logger.
func (h *Handle) Sugar() *zap.SugaredLogger {
	return h.sugar
}

// Level reports the current log level.
func (h *Handle) Level() zapcore.Level {
	return h.level.Level()
}

// SetLevel changes the log level without rebuilding the logger.
func (h *Handle) SetLevel(level string) {
	h.level.SetLevel(ParseLevel(level))
}

// Close flushes the logger and closes the log file, if any.
func (h *Handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.base != nil {
		_ = h.base.Sync()
	}
	if h.file != nil {
		if err := h.file.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "error closing log file: %v\n", err)
		}
		h.file = nil
	}
}

// OrNop returns l, or a logger that discards everything when l is nil.
func OrNop(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l == nil {
		return zap.NewNop().Sugar()
	}
	return l
}

// ParseLevel maps a level name to a zap level; unknown names mean info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
