// Package config provides Viper-based configuration loading for the damage simulator.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Journal sink names.
const (
	SinkNone     = "none"
	SinkLog      = "log"
	SinkPostgres = "postgres"
)

// DatabaseConfig holds PostgreSQL connection settings for the event journal.
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

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// JournalConfig selects where damage events are recorded.
type JournalConfig struct {
	// Sink is one of "none", "log", "postgres".
	Sink string `mapstructure:"sink"`
	// BatchSize is how many events the postgres sink buffers before writing.
	BatchSize int `mapstructure:"batch_size"`
}

// SimulationConfig holds the content locations and run settings.
type SimulationConfig struct {
	// TemplatesDir holds damagable template YAML files.
	TemplatesDir string `mapstructure:"templates_dir"`
	// ScriptsDir holds Lua modifier scripts; empty disables scripting.
	ScriptsDir string `mapstructure:"scripts_dir"`
	// ConditionsDir holds condition YAML definitions; empty disables conditions.
	ConditionsDir string `mapstructure:"conditions_dir"`
	// InstructionLimit caps Lua opcodes per hook call; 0 uses the scripting default.
	InstructionLimit int `mapstructure:"instruction_limit"`
	// FlashDuration overrides the hit flash length for templates that do not set one.
	FlashDuration time.Duration `mapstructure:"flash_duration"`
	// Seed makes dice rolls reproducible; 0 uses crypto randomness.
	Seed uint64 `mapstructure:"seed"`
	// Parallelism bounds how many scenarios run at once.
	Parallelism int `mapstructure:"parallelism"`
	// UIRoot is the tag of the indicator canvas added to each arena scene.
	// Empty runs without a canvas.
	UIRoot string `mapstructure:"ui_root"`
}

// Config is the top-level application configuration.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Journal    JournalConfig    `mapstructure:"journal"`
	Simulation SimulationConfig `mapstructure:"simulation"`
}

// Validate checks all configuration invariants. Database settings are only
// checked when the postgres journal is selected.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateJournal(c.Journal); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Journal.Sink == SinkPostgres {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateSimulation(c.Simulation); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
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

func validateJournal(j JournalConfig) error {
	valid := map[string]bool{SinkNone: true, SinkLog: true, SinkPostgres: true}
	if !valid[j.Sink] {
		return fmt.Errorf("journal.sink must be one of [none, log, postgres], got %q", j.Sink)
	}
	if j.BatchSize < 1 {
		return fmt.Errorf("journal.batch_size must be >= 1, got %d", j.BatchSize)
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateSimulation(s SimulationConfig) error {
	var errs []string
	if s.TemplatesDir == "" {
		errs = append(errs, "simulation.templates_dir must not be empty")
	}
	if s.InstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("simulation.instruction_limit must be >= 0, got %d", s.InstructionLimit))
	}
	if s.FlashDuration < 0 {
		errs = append(errs, fmt.Sprintf("simulation.flash_duration must be >= 0, got %s", s.FlashDuration))
	}
	if s.Parallelism < 1 {
		errs = append(errs, fmt.Sprintf("simulation.parallelism must be >= 1, got %d", s.Parallelism))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
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

	// Environment variable overrides with DMG_ prefix
	v.SetEnvPrefix("DMG")
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

// Defaults returns a Viper instance holding only the default values.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("journal.sink", SinkLog)
	v.SetDefault("journal.batch_size", 64)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "damagable")
	v.SetDefault("database.password", "damagable")
	v.SetDefault("database.name", "damagable")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("simulation.templates_dir", "content/templates")
	v.SetDefault("simulation.scripts_dir", "content/scripts")
	v.SetDefault("simulation.conditions_dir", "content/conditions")
	v.SetDefault("simulation.instruction_limit", 0)
	v.SetDefault("simulation.flash_duration", "150ms")
	v.SetDefault("simulation.seed", 0)
	v.SetDefault("simulation.parallelism", 4)
	v.SetDefault("simulation.ui_root", "WorldspaceIndicators")
}
