// Package config provides Viper-based configuration loading for the chat bridge.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Line terminator names accepted by BridgeConfig.LineTerminator.
const (
	TerminatorLF   = "lf"
	TerminatorNUL  = "nul"
	TerminatorNone = "none"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// BridgeConfig holds settings for the line protocol listener.
type BridgeConfig struct {
	// Enabled gates the listener; a disabled bridge logs and exits.
	Enabled bool `mapstructure:"enabled"`
	// Host is the bind address for the listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the listener.
	Port int `mapstructure:"port"`
	// ReadTimeout is the per-line read timeout. Zero, the default, disables it;
	// clients that only listen would otherwise be dropped while idle.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the per-write timeout. Zero disables it.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// MaxLineLength is the largest accepted inbound line in bytes.
	MaxLineLength int `mapstructure:"max_line_length"`
	// LineTerminator is appended to every outbound line: "lf", "nul" or "none".
	LineTerminator string `mapstructure:"line_terminator"`
	// LegacyListSeparator keeps the trailing comma on the character list.
	LegacyListSeparator bool `mapstructure:"legacy_list_separator"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (b BridgeConfig) Addr() string {
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}

// Terminator returns the byte sequence written after each outbound line.
func (b BridgeConfig) Terminator() string {
	switch b.LineTerminator {
	case TerminatorNUL:
		return "\x00"
	case TerminatorNone:
		return ""
	default:
		return "\n"
	}
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// WorldConfig holds the connection settings for the game world service.
type WorldConfig struct {
	GRPCHost string `mapstructure:"grpc_host"`
	GRPCPort int    `mapstructure:"grpc_port"`
	// CallTimeout bounds every unary call made to the world service.
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	// Motd is served by the development world stub.
	Motd string `mapstructure:"motd"`
	// CrossFactionChat is served by the development world stub.
	CrossFactionChat bool `mapstructure:"cross_faction_chat"`
}

// Addr returns the "host:port" gRPC address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (w WorldConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.GRPCHost, w.GRPCPort)
}

// ScriptingConfig holds the optional Lua chat filter settings.
type ScriptingConfig struct {
	// FilterScript is the path of the Lua filter script; empty disables filtering.
	FilterScript string `mapstructure:"filter_script"`
	// InstructionLimit caps the opcodes a single filter call may execute.
	InstructionLimit int `mapstructure:"instruction_limit"`
}

// Config is the top-level application configuration.
type Config struct {
	Logging           LoggingConfig   `mapstructure:"logging"`
	AuthDatabase      DatabaseConfig  `mapstructure:"auth_database"`
	CharacterDatabase DatabaseConfig  `mapstructure:"character_database"`
	Bridge            BridgeConfig    `mapstructure:"bridge"`
	World             WorldConfig     `mapstructure:"world"`
	Scripting         ScriptingConfig `mapstructure:"scripting"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateDatabase("auth_database", c.AuthDatabase); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateDatabase("character_database", c.CharacterDatabase); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateBridge(c.Bridge); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateWorld(c.World); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Scripting.InstructionLimit < 0 {
		errs = append(errs, "scripting.instruction_limit must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(section string, d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, section+".host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("%s.port must be 1-65535, got %d", section, d.Port))
	}
	if d.User == "" {
		errs = append(errs, section+".user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, section+".name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("%s.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", section, d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("%s.max_conns must be >= 1, got %d", section, d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("%s.min_conns must be >= 0, got %d", section, d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, section+".min_conns must not exceed "+section+".max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateBridge(b BridgeConfig) error {
	var errs []string
	if b.Port < 1 || b.Port > 65535 {
		errs = append(errs, fmt.Sprintf("bridge.port must be 1-65535, got %d", b.Port))
	}
	if b.ReadTimeout < 0 {
		errs = append(errs, "bridge.read_timeout must not be negative")
	}
	if b.WriteTimeout < 0 {
		errs = append(errs, "bridge.write_timeout must not be negative")
	}
	if b.MaxLineLength < 1 {
		errs = append(errs, fmt.Sprintf("bridge.max_line_length must be >= 1, got %d", b.MaxLineLength))
	}
	switch b.LineTerminator {
	case TerminatorLF, TerminatorNUL, TerminatorNone:
	default:
		errs = append(errs, fmt.Sprintf("bridge.line_terminator must be one of [lf, nul, none], got %q", b.LineTerminator))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateWorld(w WorldConfig) error {
	var errs []string
	if w.GRPCHost == "" {
		errs = append(errs, "world.grpc_host must not be empty")
	}
	if w.GRPCPort < 1 || w.GRPCPort > 65535 {
		errs = append(errs, fmt.Sprintf("world.grpc_port must be 1-65535, got %d", w.GRPCPort))
	}
	if w.CallTimeout < 0 {
		errs = append(errs, "world.call_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with CHATBRIDGE_ prefix
	v.SetEnvPrefix("CHATBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	for _, section := range []string{"auth_database", "character_database"} {
		v.SetDefault(section+".host", "localhost")
		v.SetDefault(section+".port", 5432)
		v.SetDefault(section+".user", "trinity")
		v.SetDefault(section+".password", "trinity")
		v.SetDefault(section+".sslmode", "disable")
		v.SetDefault(section+".max_conns", 10)
		v.SetDefault(section+".min_conns", 2)
		v.SetDefault(section+".max_conn_lifetime", "1h")
	}
	v.SetDefault("auth_database.name", "auth")
	v.SetDefault("character_database.name", "characters")

	v.SetDefault("bridge.enabled", false)
	v.SetDefault("bridge.host", "0.0.0.0")
	v.SetDefault("bridge.port", 3448)
	v.SetDefault("bridge.read_timeout", 0)
	v.SetDefault("bridge.write_timeout", "30s")
	v.SetDefault("bridge.max_line_length", 4096)
	v.SetDefault("bridge.line_terminator", TerminatorLF)
	v.SetDefault("bridge.legacy_list_separator", true)

	v.SetDefault("world.grpc_host", "127.0.0.1")
	v.SetDefault("world.grpc_port", 50061)
	v.SetDefault("world.call_timeout", "5s")
	v.SetDefault("world.motd", "Welcome to the realm.")
	v.SetDefault("world.cross_faction_chat", false)

	v.SetDefault("scripting.filter_script", "")
	v.SetDefault("scripting.instruction_limit", 100_000)
}
