// Package main applies or rolls back the damage-event journal schema.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cory-johannsen/damagable/internal/config"
	"github.com/cory-johannsen/damagable/internal/observability"
)

// options are the parsed command line.
type options struct {
	configPath string
	command    string
	steps      int
	version    int
	source     string
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&o.configPath, "config", "configs/dev.yaml", "path to configuration file")
	fs.StringVar(&o.command, "direction", "up", "up, down, version or force")
	fs.IntVar(&o.steps, "steps", 0, "number of steps for up/down (0 = all)")
	fs.IntVar(&o.version, "version", -1, "schema version for force")
	fs.StringVar(&o.source, "source", "file://migrations", "migration source URL")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	switch o.command {
	case "up", "down", "version":
	case "force":
		if o.version < 0 {
			return o, errors.New("force requires -version >= 0")
		}
	default:
		return o, fmt.Errorf("invalid direction %q: must be up, down, version or force", o.command)
	}
	if o.steps < 0 {
		return o, fmt.Errorf("steps must be >= 0, got %d", o.steps)
	}
	return o, nil
}

// loadSettings reads only the logging and database sections. The journal sink
// in the file may be "log", so full validation is not applied.
func loadSettings(path string) (config.LoggingConfig, config.DatabaseConfig, error) {
	var settings struct {
		Logging  config.LoggingConfig  `mapstructure:"logging"`
		Database config.DatabaseConfig `mapstructure:"database"`
	}
	v := config.Defaults()
	v.SetConfigFile(path)
	v.SetEnvPrefix("DMG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return settings.Logging, settings.Database, fmt.Errorf("reading config: %w", err)
		}
	}
	// Unmarshal rather than UnmarshalKey so env overrides of nested keys apply.
	if err := v.Unmarshal(&settings); err != nil {
		return settings.Logging, settings.Database, fmt.Errorf("parsing config: %w", err)
	}
	return settings.Logging, settings.Database, nil
}

func run(args []string, stdout io.Writer) error {
	start := time.Now()

	o, err := parseFlags(args)
	if err != nil {
		return err
	}
	logCfg, dbCfg, err := loadSettings(o.configPath)
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger("migrate", logCfg)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	m, err := migrate.New(o.source, dbCfg.DSN())
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	switch o.command {
	case "up":
		if o.steps > 0 {
			err = m.Steps(o.steps)
		} else {
			err = m.Up()
		}
	case "down":
		if o.steps > 0 {
			err = m.Steps(-o.steps)
		} else {
			err = m.Down()
		}
	case "force":
		err = m.Force(o.version)
	case "version":
	}
	noChange := errors.Is(err, migrate.ErrNoChange)
	if err != nil && !noChange {
		return fmt.Errorf("migration %s failed: %w", o.command, err)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return fmt.Errorf("reading schema version: %w", verr)
	}
	logger.Info("migration finished",
		zap.String("command", o.command),
		zap.Bool("changed", !noChange && o.command != "version"),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
		zap.Duration("elapsed", time.Since(start)),
	)
	fmt.Fprintf(stdout, "%s: version=%d dirty=%v\n", o.command, version, dirty)
	return nil
}
