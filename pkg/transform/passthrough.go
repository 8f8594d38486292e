package transform

import (
	"github.com/crestline-io/snowcap/pkg/config"
	"github.com/crestline-io/snowcap/pkg/models"
)

// passthroughEventName is the fixed event name of passthrough imports.
const passthroughEventName = "snowflake_row"

func init() {
	must(Register(config.TransformPassthrough, nil, newPassthroughStrategy))
}

// passthroughStrategy emits the row verbatim as event properties under a
// fixed event name, with a best-effort date normalization on the timestamp
// column.
type passthroughStrategy struct{}

func newPassthroughStrategy(_ map[string][]byte) (Strategy, error) {
	return &passthroughStrategy{}, nil
}

func (s *passthroughStrategy) Name() string { return config.TransformPassthrough }

func (s *passthroughStrategy) Transform(row *models.RawRow) (*models.Event, error) {
	event := &models.Event{
		Name:       passthroughEventName,
		Properties: make(map[string]interface{}, len(row.Columns)+1),
	}

	for _, column := range row.Columns {
		event.Properties[column] = row.Values[column]
	}

	if v, ok := row.Get("timestamp"); ok && v != nil {
		normalized := NormalizeTimestamp(v)
		event.Properties["timestamp"] = normalized
		event.Timestamp = normalized
	}
	event.Properties["source"] = sourceTag

	return event, nil
}
