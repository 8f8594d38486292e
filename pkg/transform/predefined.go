package transform

import (
	"github.com/crestline-io/snowcap/pkg/config"
	"github.com/crestline-io/snowcap/pkg/models"
)

func init() {
	must(Register(config.TransformPredefinedFields,
		[]string{config.AttachmentFieldConfig}, newPredefinedStrategy))
}

// predefinedStrategy reads the event name, timestamp and distinct ID from the
// columns named by the attached field config and forwards every remaining
// column into properties unchanged.
type predefinedStrategy struct {
	fields *fieldConfig
}

func newPredefinedStrategy(attachments map[string][]byte) (Strategy, error) {
	fields, err := parseFieldConfig(attachments[config.AttachmentFieldConfig])
	if err != nil {
		return nil, err
	}
	return &predefinedStrategy{fields: fields}, nil
}

func (s *predefinedStrategy) Name() string { return config.TransformPredefinedFields }

func (s *predefinedStrategy) Transform(row *models.RawRow) (*models.Event, error) {
	event := &models.Event{Properties: make(map[string]interface{})}

	if v, ok := row.Get(s.fields.EventColumn); ok {
		event.Name = toString(v)
	}
	if s.fields.TimestampColumn != "" {
		if v, ok := row.Get(s.fields.TimestampColumn); ok && v != nil {
			event.Timestamp = NormalizeTimestamp(v)
		}
	}
	if s.fields.DistinctIDColumn != "" {
		if v, ok := row.Get(s.fields.DistinctIDColumn); ok && v != nil {
			event.DistinctID = v
		}
	}

	for _, column := range row.Columns {
		if s.fields.isFieldColumn(column) {
			continue
		}
		event.Properties[column] = row.Values[column]
	}
	event.Properties["source"] = sourceTag

	return event, nil
}
