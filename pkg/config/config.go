// Package config provides the configuration system for Snowcap. An import is
// described by a single ImportConfig loaded from a YAML file with SNOWCAP_*
// environment overrides. All connection and table keys are required; loading
// fails fast so a misconfigured import never reaches the scheduler.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/crestline-io/snowcap/pkg/errors"
	"github.com/crestline-io/snowcap/pkg/models"
)

// Transformation names accepted by the transformation_name key. These match
// the names under which strategies register themselves.
const (
	TransformDefault          = "default"
	TransformJSONMap          = "JSON Map"
	TransformPredefinedFields = "Predefined Fields"
	TransformPassthrough      = "passthrough"
	TransformCleanedProps     = "Cleaned-Up Properties"
)

// Import mechanism values accepted by the import_mechanism key.
const (
	MechanismContinuous = "Import continuously"
	MechanismHistorical = "Only import historical data"
)

// Attachment names. Strategies declare which of these they require.
const (
	AttachmentRowToEventMap  = "rowToEventMap"
	AttachmentFieldConfig    = "fieldConfigJson"
	AttachmentPropertyConfig = "propertyConfigJson"
)

// ImportConfig describes one Snowflake import. All values arrive as strings
// and are parsed during validation, mirroring the string-typed key/value
// surface the host exposes.
type ImportConfig struct {
	// Snowflake connection
	Account   string `mapstructure:"account" yaml:"account"`
	Username  string `mapstructure:"username" yaml:"username"`
	Password  string `mapstructure:"password" yaml:"password"`
	Database  string `mapstructure:"database" yaml:"database"`
	Schema    string `mapstructure:"schema" yaml:"schema"`
	Warehouse string `mapstructure:"warehouse" yaml:"warehouse"`
	Role      string `mapstructure:"role" yaml:"role"`

	// Table iteration
	Table     string `mapstructure:"table" yaml:"table"`
	OrderBy   string `mapstructure:"order_by" yaml:"order_by"`
	BatchSize string `mapstructure:"batch_size" yaml:"batch_size"`
	// Frequency is the polling interval between successful batches, in seconds.
	Frequency string `mapstructure:"frequency" yaml:"frequency"`

	TransformationName string `mapstructure:"transformation_name" yaml:"transformation_name"`
	ImportMechanism    string `mapstructure:"import_mechanism" yaml:"import_mechanism"`

	// Capture sink
	CaptureEndpoint string `mapstructure:"capture_endpoint" yaml:"capture_endpoint"`
	CaptureAPIKey   string `mapstructure:"capture_api_key" yaml:"capture_api_key"`

	// Attachment file paths, required only by the strategies that declare them.
	RowToEventMapPath  string `mapstructure:"row_to_event_map" yaml:"row_to_event_map"`
	FieldConfigPath    string `mapstructure:"field_config_json" yaml:"field_config_json"`
	PropertyConfigPath string `mapstructure:"property_config_json" yaml:"property_config_json"`

	// Checkpoint file location
	CheckpointPath string `mapstructure:"checkpoint_path" yaml:"checkpoint_path"`

	// Observability
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`

	// Parsed during Validate
	batchSize int64
	frequency int64
}

// Load reads an ImportConfig from a YAML file, applying SNOWCAP_* environment
// variable overrides, and validates it.
func Load(path string) (*ImportConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("SNOWCAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file")
	}

	var cfg ImportConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse config file")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks required keys and parses the numeric string values. It
// returns a config error on the first violation.
func (c *ImportConfig) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"account", c.Account},
		{"username", c.Username},
		{"password", c.Password},
		{"database", c.Database},
		{"schema", c.Schema},
		{"warehouse", c.Warehouse},
		{"role", c.Role},
		{"table", c.Table},
		{"order_by", c.OrderBy},
		{"batch_size", c.BatchSize},
		{"frequency", c.Frequency},
		{"transformation_name", c.TransformationName},
		{"import_mechanism", c.ImportMechanism},
	}
	for _, r := range required {
		if r.value == "" {
			return errors.Newf(errors.ErrorTypeConfig, "missing required config key %q", r.key)
		}
	}

	var err error
	c.batchSize, err = strconv.ParseInt(c.BatchSize, 10, 64)
	if err != nil || c.batchSize <= 0 {
		return errors.Newf(errors.ErrorTypeConfig, "batch_size must be a positive integer, got %q", c.BatchSize)
	}

	c.frequency, err = strconv.ParseInt(c.Frequency, 10, 64)
	if err != nil || c.frequency <= 0 {
		return errors.Newf(errors.ErrorTypeConfig, "frequency must be a positive number of seconds, got %q", c.Frequency)
	}

	switch c.TransformationName {
	case TransformDefault, TransformJSONMap, TransformPredefinedFields,
		TransformPassthrough, TransformCleanedProps:
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown transformation_name %q", c.TransformationName)
	}

	switch c.ImportMechanism {
	case MechanismContinuous, MechanismHistorical:
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown import_mechanism %q", c.ImportMechanism)
	}

	return nil
}

// BatchSizeInt returns the parsed batch size. Validate must have succeeded.
func (c *ImportConfig) BatchSizeInt() int64 { return c.batchSize }

// FrequencySeconds returns the parsed polling interval in seconds.
func (c *ImportConfig) FrequencySeconds() int64 { return c.frequency }

// Mode maps the import mechanism to an import mode.
func (c *ImportConfig) Mode() models.ImportMode {
	if c.ImportMechanism == MechanismHistorical {
		return models.ModeHistorical
	}
	return models.ModeContinuous
}

// LoadAttachments reads the configured attachment files into memory, keyed by
// attachment name. Missing paths are simply absent from the result; whether
// an absence is fatal is decided by the selected transform strategy.
func (c *ImportConfig) LoadAttachments() (map[string][]byte, error) {
	paths := map[string]string{
		AttachmentRowToEventMap:  c.RowToEventMapPath,
		AttachmentFieldConfig:    c.FieldConfigPath,
		AttachmentPropertyConfig: c.PropertyConfigPath,
	}

	attachments := make(map[string][]byte)
	for name, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read attachment "+name)
		}
		attachments[name] = data
	}

	return attachments, nil
}

// WriteDefault writes a starter configuration file to path.
func WriteDefault(path string) error {
	cfg := ImportConfig{
		Account:            "my-account",
		Username:           "importer",
		Password:           "${SNOWCAP_PASSWORD}",
		Database:           "ANALYTICS",
		Schema:             "PUBLIC",
		Warehouse:          "COMPUTE_WH",
		Role:               "IMPORTER",
		Table:              "EVENTS",
		OrderBy:            "ID",
		BatchSize:          "100",
		Frequency:          "60",
		TransformationName: TransformDefault,
		ImportMechanism:    MechanismContinuous,
		CaptureEndpoint:    "https://capture.example.com/capture",
		CheckpointPath:     "snowcap-checkpoint.json",
		LogLevel:           "info",
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to marshal default config")
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to write config file")
	}

	return nil
}
