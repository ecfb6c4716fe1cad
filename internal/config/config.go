// Package config loads execinfo settings from the environment.
//
// All keys are read through viper with the EXECINFO_ prefix:
//
//	EXECINFO_ENGINE      dwarf | runtime | none   (default dwarf)
//	EXECINFO_BINARY      file holding debug info  (default: the running executable)
//	EXECINFO_MAX_BUFFER  arena ceiling in bytes   (default 0, unlimited)
//	EXECINFO_CACHE       cache per-address lookups (default true)
//	EXECINFO_LOG_LEVEL   trace | debug | info | warn | error (default: library silent, CLI info)
//	EXECINFO_LOG_TYPE    text | json              (default text)
package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const envPrefix = "EXECINFO"

// Keys understood by Load.
const (
	KeyEngine    = "engine"
	KeyBinary    = "binary"
	KeyMaxBuffer = "max_buffer"
	KeyCache     = "cache"
	KeyLogLevel  = "log_level"
	KeyLogType   = "log_type"
)

// Config is the resolved configuration.
type Config struct {
	// Engine names the debug-information engine to load.
	Engine string

	// Binary is the file whose debug information is loaded.
	// Empty means the running executable.
	Binary string

	// MaxBuffer caps the size of a symbols arena in bytes. 0 disables the cap.
	MaxBuffer int

	// Cache enables the per-address lookup cache of the process engine.
	Cache bool

	// LogLevel enables the library's diagnostics. Empty keeps them off.
	LogLevel string
	LogType  string
}

// Default returns the configuration used when no variables are set.
func Default() Config {
	return Config{
		Engine:  "dwarf",
		Cache:   true,
		LogType: "text",
	}
}

// New returns a viper instance bound to the EXECINFO_ environment.
func New() *viper.Viper {
	d := Default()
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	v.SetDefault(KeyEngine, d.Engine)
	v.SetDefault(KeyBinary, d.Binary)
	v.SetDefault(KeyMaxBuffer, d.MaxBuffer)
	v.SetDefault(KeyCache, d.Cache)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyLogType, d.LogType)
	return v
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	return FromViper(New())
}

// FromViper extracts and validates a Config from v.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Engine:    strings.ToLower(strings.TrimSpace(v.GetString(KeyEngine))),
		Binary:    v.GetString(KeyBinary),
		MaxBuffer: v.GetInt(KeyMaxBuffer),
		Cache:     v.GetBool(KeyCache),
		LogLevel:  v.GetString(KeyLogLevel),
		LogType:   v.GetString(KeyLogType),
	}
	if cfg.Engine == "" {
		cfg.Engine = Default().Engine
	}
	if cfg.MaxBuffer < 0 {
		return Config{}, errors.Errorf("%s_MAX_BUFFER must not be negative, got %d", envPrefix, cfg.MaxBuffer)
	}
	return cfg, nil
}
