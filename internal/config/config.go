// Package config loads the rxsql command-line configuration from TOML.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/roach88/rxsql/internal/sqlite"
	"github.com/roach88/rxsql/reactive"
)

// DatabaseConfiguration selects the database the CLI opens.
type DatabaseConfiguration struct {
	Path          string `toml:"path"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms"`
}

// AnalyzerConfiguration tunes statement analysis.
type AnalyzerConfiguration struct {
	CacheSize int `toml:"cache_size"` // 0 disables the analysis cache
}

// LogConfiguration controls the stderr logger.
type LogConfiguration struct {
	Level  string `toml:"level"`  // debug|info|warn|error
	Format string `toml:"format"` // text|json
}

// Configuration is the whole file.
type Configuration struct {
	Database DatabaseConfiguration `toml:"database"`
	Analyzer AnalyzerConfiguration `toml:"analyzer"`
	Log      LogConfiguration      `toml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() *Configuration {
	return &Configuration{
		Database: DatabaseConfiguration{
			Path:          ":memory:",
			BusyTimeoutMS: sqlite.DefaultBusyTimeoutMS,
		},
		Analyzer: AnalyzerConfiguration{CacheSize: reactive.DefaultAnalysisCacheSize},
		Log:      LogConfiguration{Level: "warn", Format: "text"},
	}
}

// ErrorCode categorizes configuration errors.
type ErrorCode string

const (
	// ErrCodeRead indicates the file could not be read.
	ErrCodeRead ErrorCode = "CONFIG_READ"
	// ErrCodeParse indicates invalid TOML.
	ErrCodeParse ErrorCode = "CONFIG_PARSE"
	// ErrCodeUnknownKey indicates a key the configuration does not define.
	ErrCodeUnknownKey ErrorCode = "CONFIG_UNKNOWN_KEY"
	// ErrCodeInvalid indicates a value out of range.
	ErrCodeInvalid ErrorCode = "CONFIG_INVALID"
)

// Error is a configuration problem.
type Error struct {
	Code    ErrorCode
	Path    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", e.Path, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsInvalid reports whether err is a validation failure.
func IsInvalid(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Code == ErrCodeInvalid
}

// Load reads path over the defaults. An empty path returns the defaults.
// Keys the configuration does not define are rejected so typos surface.
func Load(path string) (*Configuration, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Code: ErrCodeRead, Path: path, Message: "cannot read file", Err: err}
	}
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, &Error{Code: ErrCodeParse, Path: path, Message: "invalid TOML", Err: err}
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, &Error{Code: ErrCodeUnknownKey, Path: path, Message: "unknown keys " + strings.Join(keys, ", ")}
	}
	if err := cfg.Validate(); err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			ce.Path = path
		}
		return nil, err
	}
	return cfg, nil
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Validate checks value ranges.
func (c *Configuration) Validate() error {
	invalid := func(format string, args ...any) error {
		return &Error{Code: ErrCodeInvalid, Message: fmt.Sprintf(format, args...)}
	}
	if c.Database.Path == "" {
		return invalid("database.path must not be empty")
	}
	if c.Database.BusyTimeoutMS < 0 {
		return invalid("database.busy_timeout_ms must be >= 0, got %d", c.Database.BusyTimeoutMS)
	}
	if c.Analyzer.CacheSize < 0 {
		return invalid("analyzer.cache_size must be >= 0, got %d", c.Analyzer.CacheSize)
	}
	if _, ok := logLevels[strings.ToLower(c.Log.Level)]; !ok {
		return invalid("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// LogLevel returns the configured slog level. Call Validate first.
func (c *Configuration) LogLevel() slog.Level {
	return logLevels[strings.ToLower(c.Log.Level)]
}

// StoreOptions converts the configuration into reactive store options.
func (c *Configuration) StoreOptions() []reactive.Option {
	return []reactive.Option{
		reactive.WithBusyTimeout(c.Database.BusyTimeoutMS),
		reactive.WithAnalysisCacheSize(c.Analyzer.CacheSize),
	}
}
