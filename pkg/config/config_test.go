package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestline-io/snowcap/pkg/errors"
	"github.com/crestline-io/snowcap/pkg/models"
)

func validConfig() *ImportConfig {
	return &ImportConfig{
		Account:            "acme-prod",
		Username:           "importer",
		Password:           "secret",
		Database:           "ANALYTICS",
		Schema:             "PUBLIC",
		Warehouse:          "COMPUTE_WH",
		Role:               "IMPORTER",
		Table:              "EVENTS",
		OrderBy:            "ID",
		BatchSize:          "200",
		Frequency:          "60",
		TransformationName: TransformDefault,
		ImportMechanism:    MechanismContinuous,
	}
}

func TestValidate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(200), cfg.BatchSizeInt())
	assert.Equal(t, int64(60), cfg.FrequencySeconds())
}

func TestValidateMissingRequiredKeys(t *testing.T) {
	tests := []struct {
		key    string
		mutate func(*ImportConfig)
	}{
		{"account", func(c *ImportConfig) { c.Account = "" }},
		{"password", func(c *ImportConfig) { c.Password = "" }},
		{"warehouse", func(c *ImportConfig) { c.Warehouse = "" }},
		{"role", func(c *ImportConfig) { c.Role = "" }},
		{"table", func(c *ImportConfig) { c.Table = "" }},
		{"order_by", func(c *ImportConfig) { c.OrderBy = "" }},
		{"batch_size", func(c *ImportConfig) { c.BatchSize = "" }},
		{"frequency", func(c *ImportConfig) { c.Frequency = "" }},
		{"transformation_name", func(c *ImportConfig) { c.TransformationName = "" }},
		{"import_mechanism", func(c *ImportConfig) { c.ImportMechanism = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestValidateNumericValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ImportConfig)
	}{
		{"non-numeric batch_size", func(c *ImportConfig) { c.BatchSize = "many" }},
		{"zero batch_size", func(c *ImportConfig) { c.BatchSize = "0" }},
		{"negative batch_size", func(c *ImportConfig) { c.BatchSize = "-5" }},
		{"non-numeric frequency", func(c *ImportConfig) { c.Frequency = "hourly" }},
		{"zero frequency", func(c *ImportConfig) { c.Frequency = "0" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
		})
	}
}

func TestValidateUnknownTransformation(t *testing.T) {
	cfg := validConfig()
	cfg.TransformationName = "CSV Explode"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transformation_name")
}

func TestValidateUnknownMechanism(t *testing.T) {
	cfg := validConfig()
	cfg.ImportMechanism = "Import sometimes"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "import_mechanism")
}

func TestMode(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, models.ModeContinuous, cfg.Mode())

	cfg.ImportMechanism = MechanismHistorical
	assert.Equal(t, models.ModeHistorical, cfg.Mode())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "import.yaml")

	content := `account: acme-prod
username: importer
password: secret
database: ANALYTICS
schema: PUBLIC
warehouse: COMPUTE_WH
role: LOADER
table: EVENTS
order_by: ID
batch_size: "500"
frequency: "30"
transformation_name: JSON Map
import_mechanism: Only import historical data
row_to_event_map: mapping.json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "acme-prod", cfg.Account)
	assert.Equal(t, "EVENTS", cfg.Table)
	assert.Equal(t, int64(500), cfg.BatchSizeInt())
	assert.Equal(t, int64(30), cfg.FrequencySeconds())
	assert.Equal(t, TransformJSONMap, cfg.TransformationName)
	assert.Equal(t, models.ModeHistorical, cfg.Mode())
	assert.Equal(t, "mapping.json", cfg.RowToEventMapPath)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestLoadInvalidConfigFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "import.yaml")
	require.NoError(t, os.WriteFile(path, []byte("account: acme\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestLoadAttachments(t *testing.T) {
	dir := t.TempDir()
	mappingPath := filepath.Join(dir, "mapping.json")
	require.NoError(t, os.WriteFile(mappingPath, []byte(`{"col":"event"}`), 0o644))

	cfg := validConfig()
	cfg.RowToEventMapPath = mappingPath

	attachments, err := cfg.LoadAttachments()
	require.NoError(t, err)

	assert.Equal(t, []byte(`{"col":"event"}`), attachments[AttachmentRowToEventMap])
	_, ok := attachments[AttachmentFieldConfig]
	assert.False(t, ok, "unconfigured attachments must be absent, not empty")
}

func TestLoadAttachmentsUnreadablePath(t *testing.T) {
	cfg := validConfig()
	cfg.FieldConfigPath = filepath.Join(t.TempDir(), "gone.json")

	_, err := cfg.LoadAttachments()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snowcap.yaml")
	require.NoError(t, WriteDefault(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "transformation_name: default")
	assert.Contains(t, string(data), "import_mechanism: Import continuously")
}
