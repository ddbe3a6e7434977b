// Package config loads runtime options: defaults, then an optional YAML file
// named by CONFIG_FILE, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alanyang/call-dispatch/internal/domain/distribution"
	"github.com/alanyang/call-dispatch/internal/domain/intake"
)

// Range is an inclusive [Min, Max] length bound.
type Range struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Options is the allocation configuration surface.
type Options struct {
	MaxFileSizeBytes     int64    `yaml:"max_file_size_bytes"`
	AllowedExtensions    []string `yaml:"allowed_extensions"`
	AllowedContentTypes  []string `yaml:"allowed_content_types"`
	NameLength           Range    `yaml:"name_length"`
	PhoneLength          Range    `yaml:"phone_length"`
	NotesMaxLength       int      `yaml:"notes_max_length"`
	MaxRecordsPerUpload  int      `yaml:"max_records_per_upload"`
	MaxTasksPerAgent     int      `yaml:"max_tasks_per_agent"`
	CapacityWarningRatio float64  `yaml:"capacity_warning_ratio"`
}

type Config struct {
	DatabaseURL string `yaml:"database_url"`
	Port        string `yaml:"port"`
	AutoMigrate bool   `yaml:"auto_migrate"`
	DBMaxConns  int32  `yaml:"db_max_conns"`
	// LockWaitSeconds bounds the wait for a tenant lock; 0 waits for the request.
	LockWaitSeconds int     `yaml:"lock_wait_seconds"`
	Options         Options `yaml:"options"`
}

func Default() Config {
	il := intake.DefaultLimits()
	dl := distribution.DefaultLimits()
	return Config{
		Port:        "8080",
		AutoMigrate: true,

		LockWaitSeconds: 30,
		Options: Options{
			MaxFileSizeBytes:     il.MaxFileSizeBytes,
			AllowedExtensions:    il.AllowedExtensions,
			AllowedContentTypes:  il.AllowedContentTypes,
			NameLength:           Range{Min: il.NameMinLength, Max: il.NameMaxLength},
			PhoneLength:          Range{Min: il.PhoneMinLength, Max: il.PhoneMaxLength},
			NotesMaxLength:       il.NotesMaxLength,
			MaxRecordsPerUpload:  il.MaxRecords,
			MaxTasksPerAgent:     dl.MaxTasksPerAgent,
			CapacityWarningRatio: dl.CapacityWarningRatio,
		},
	}
}

// Load builds the configuration from defaults, the CONFIG_FILE YAML (if set)
// and environment variables, in that order of increasing precedence.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := Parse(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Options.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse overlays YAML onto cfg. Keys absent from data keep their current values.
func Parse(data []byte, cfg *Config) error {
	return yaml.Unmarshal(data, cfg)
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("AUTO_MIGRATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AUTO_MIGRATE: %w", err)
		}
		cfg.AutoMigrate = b
	}
	if v := os.Getenv("DB_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("DB_MAX_CONNS: %w", err)
		}
		cfg.DBMaxConns = int32(n)
	}
	if v := os.Getenv("LOCK_WAIT_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LOCK_WAIT_SECONDS: %w", err)
		}
		cfg.LockWaitSeconds = n
	}
	if v := os.Getenv("MAX_TASKS_PER_AGENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_TASKS_PER_AGENT: %w", err)
		}
		cfg.Options.MaxTasksPerAgent = n
	}
	if v := os.Getenv("MAX_FILE_SIZE_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_FILE_SIZE_BYTES: %w", err)
		}
		cfg.Options.MaxFileSizeBytes = n
	}
	if v := os.Getenv("ALLOWED_EXTENSIONS"); v != "" {
		var exts []string
		for _, e := range strings.Split(v, ",") {
			if e = strings.TrimSpace(e); e != "" {
				exts = append(exts, strings.ToLower(e))
			}
		}
		cfg.Options.AllowedExtensions = exts
	}
	return nil
}

// Validate reports every invalid option at once.
func (o Options) Validate() error {
	var errs []error
	if o.MaxFileSizeBytes <= 0 {
		errs = append(errs, errors.New("max_file_size_bytes must be positive"))
	}
	if len(o.AllowedExtensions) == 0 {
		errs = append(errs, errors.New("allowed_extensions must not be empty"))
	}
	if o.NameLength.Min < 1 || o.NameLength.Max < o.NameLength.Min {
		errs = append(errs, fmt.Errorf("name_length [%d,%d] is not a valid range", o.NameLength.Min, o.NameLength.Max))
	}
	if o.PhoneLength.Min < 1 || o.PhoneLength.Max < o.PhoneLength.Min {
		errs = append(errs, fmt.Errorf("phone_length [%d,%d] is not a valid range", o.PhoneLength.Min, o.PhoneLength.Max))
	}
	if o.NotesMaxLength < 0 {
		errs = append(errs, errors.New("notes_max_length must not be negative"))
	}
	if o.MaxTasksPerAgent <= 0 {
		errs = append(errs, errors.New("max_tasks_per_agent must be positive"))
	}
	if o.CapacityWarningRatio <= 0 || o.CapacityWarningRatio > 1 {
		errs = append(errs, errors.New("capacity_warning_ratio must be in (0,1]"))
	}
	return errors.Join(errs...)
}

func (o Options) Intake() intake.Limits {
	return intake.Limits{
		MaxFileSizeBytes:    o.MaxFileSizeBytes,
		AllowedExtensions:   o.AllowedExtensions,
		AllowedContentTypes: o.AllowedContentTypes,
		NameMinLength:       o.NameLength.Min,
		NameMaxLength:       o.NameLength.Max,
		PhoneMinLength:      o.PhoneLength.Min,
		PhoneMaxLength:      o.PhoneLength.Max,
		NotesMaxLength:      o.NotesMaxLength,
		MaxRecords:          o.MaxRecordsPerUpload,
	}
}

func (o Options) Distribution() distribution.Limits {
	return distribution.Limits{
		MaxTasksPerAgent:     o.MaxTasksPerAgent,
		CapacityWarningRatio: o.CapacityWarningRatio,
	}
}
