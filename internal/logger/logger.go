// Package logger builds the process zap logger.
//
// Every core is wrapped so that fields carrying secret material are replaced
// before they reach an encoder.
package logger

import (
	"fmt"
	"os"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/tyler-smith/go-bip39"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Redacted replaces the value of a sensitive field.
const Redacted = "[REDACTED]"

// Options configures New.
type Options struct {
	Level        string
	FilePath     string // rotatelogs pattern base; empty disables the file sink
	MaxAge       time.Duration
	RotationTime time.Duration
}

var encCfg = zapcore.EncoderConfig{
	TimeKey:        "date",
	LevelKey:       "level",
	NameKey:        "logger",
	CallerKey:      "caller",
	MessageKey:     "msg",
	StacktraceKey:  "stacktrace",
	LineEnding:     zapcore.DefaultLineEnding,
	EncodeLevel:    zapcore.CapitalLevelEncoder,
	EncodeTime:     zapcore.ISO8601TimeEncoder,
	EncodeDuration: zapcore.StringDurationEncoder,
	EncodeCaller:   zapcore.ShortCallerEncoder,
}

// New returns a logger writing console output to stderr and, when
// opts.FilePath is set, JSON lines to a daily-rotated file.
func New(opts Options) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level),
	}

	if opts.FilePath != "" {
		if opts.MaxAge == 0 {
			opts.MaxAge = 7 * 24 * time.Hour
		}
		if opts.RotationTime == 0 {
			opts.RotationTime = 24 * time.Hour
		}
		rotator, err := rotatelogs.New(
			opts.FilePath+"_%Y-%m-%d.log",
			rotatelogs.WithMaxAge(opts.MaxAge),
			rotatelogs.WithRotationTime(opts.RotationTime))
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotator), level))
	}

	return zap.New(NewRedactingCore(zapcore.NewTee(cores...)), zap.AddCaller()), nil
}

// NewRedactingCore wraps core so sensitive fields are masked.
func NewRedactingCore(core zapcore.Core) zapcore.Core {
	return &redactingCore{Core: core}
}

type redactingCore struct {
	zapcore.Core
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(redact(fields))}
}

func (c *redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(ent, redact(fields))
}

var sensitiveKeys = []string{
	"seed", "secret", "mnemonic", "passphrase", "password", "token", "private", "authorization",
}

// IsSensitiveKey reports whether a field named key must never be logged.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// LooksLikeMnemonic reports whether s is twelve or more BIP-39 words.
func LooksLikeMnemonic(s string) bool {
	words := strings.Fields(strings.ToLower(s))
	if len(words) < 12 {
		return false
	}
	for _, w := range words {
		if _, ok := bip39.GetWordIndex(w); !ok {
			return false
		}
	}
	return true
}

func redact(fields []zapcore.Field) []zapcore.Field {
	var out []zapcore.Field
	for i, f := range fields {
		if !needsRedaction(f) {
			continue
		}
		if out == nil {
			out = make([]zapcore.Field, len(fields))
			copy(out, fields)
		}
		out[i] = zap.String(f.Key, Redacted)
	}
	if out == nil {
		return fields
	}
	return out
}

func needsRedaction(f zapcore.Field) bool {
	if IsSensitiveKey(f.Key) {
		return true
	}
	switch f.Type {
	case zapcore.StringType:
		return LooksLikeMnemonic(f.String)
	case zapcore.ByteStringType:
		if b, ok := f.Interface.([]byte); ok {
			return LooksLikeMnemonic(string(b))
		}
	}
	return false
}
