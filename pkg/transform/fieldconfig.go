package transform

import (
	"github.com/goccy/go-json"

	"github.com/crestline-io/snowcap/pkg/errors"
)

// fieldConfig names the columns holding the event name, timestamp and
// identity key. Attached as fieldConfigJson by the strategies that need it.
type fieldConfig struct {
	EventColumn      string `json:"eventColumn"`
	TimestampColumn  string `json:"timestampColumn"`
	DistinctIDColumn string `json:"distinctIdColumn"`
}

func parseFieldConfig(data []byte) (*fieldConfig, error) {
	var cfg fieldConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeTransform,
			"fieldConfigJson is not a valid JSON object")
	}
	if cfg.EventColumn == "" {
		return nil, errors.New(errors.ErrorTypeTransform,
			"fieldConfigJson must name an eventColumn")
	}
	return &cfg, nil
}

// isFieldColumn reports whether the column is consumed by the field config
// rather than forwarded as a property.
func (c *fieldConfig) isFieldColumn(column string) bool {
	return column == c.EventColumn ||
		(c.TimestampColumn != "" && column == c.TimestampColumn) ||
		(c.DistinctIDColumn != "" && column == c.DistinctIDColumn)
}
