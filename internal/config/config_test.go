package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyang/call-dispatch/internal/config"
	"github.com/alanyang/call-dispatch/internal/domain/distribution"
	"github.com/alanyang/call-dispatch/internal/domain/intake"
)

func TestDefaultMatchesDomainDefaults(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, intake.DefaultLimits(), cfg.Options.Intake())
	assert.Equal(t, distribution.DefaultLimits(), cfg.Options.Distribution())
	assert.Equal(t, "8080", cfg.Port)
	assert.NoError(t, cfg.Options.Validate())
}

func TestParse_OverlaysOnlyGivenKeys(t *testing.T) {
	cfg := config.Default()
	yml := []byte(`
port: "9090"
options:
  max_tasks_per_agent: 50
  phone_length:
    min: 7
    max: 12
`)
	require.NoError(t, config.Parse(yml, &cfg))

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 50, cfg.Options.MaxTasksPerAgent)
	assert.Equal(t, config.Range{Min: 7, Max: 12}, cfg.Options.PhoneLength)
	assert.Equal(t, 500, cfg.Options.NotesMaxLength, "absent keys keep defaults")
	assert.InDelta(t, 0.8, cfg.Options.CapacityWarningRatio, 1e-9)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dispatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("options:\n  max_tasks_per_agent: 40\n  notes_max_length: 100\n"), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("MAX_TASKS_PER_AGENT", "75")
	t.Setenv("ALLOWED_EXTENSIONS", ".CSV, .xlsx")
	t.Setenv("DATABASE_URL", "postgres://localhost/dispatch")
	t.Setenv("DB_MAX_CONNS", "12")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 75, cfg.Options.MaxTasksPerAgent, "env wins over file")
	assert.Equal(t, 100, cfg.Options.NotesMaxLength)
	assert.Equal(t, []string{".csv", ".xlsx"}, cfg.Options.AllowedExtensions)
	assert.Equal(t, "postgres://localhost/dispatch", cfg.DatabaseURL)
	assert.Equal(t, int32(12), cfg.DBMaxConns)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("MAX_TASKS_PER_AGENT", "lots")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_TASKS_PER_AGENT")
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *config.Options)
		wantMsg string
	}{
		{name: "zero ceiling", mutate: func(o *config.Options) { o.MaxTasksPerAgent = 0 }, wantMsg: "max_tasks_per_agent"},
		{name: "ratio above one", mutate: func(o *config.Options) { o.CapacityWarningRatio = 1.5 }, wantMsg: "capacity_warning_ratio"},
		{name: "inverted name range", mutate: func(o *config.Options) { o.NameLength = config.Range{Min: 10, Max: 2} }, wantMsg: "name_length"},
		{name: "no extensions", mutate: func(o *config.Options) { o.AllowedExtensions = nil }, wantMsg: "allowed_extensions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := config.Default().Options
			tt.mutate(&o)
			err := o.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}
