package transform

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/crestline-io/snowcap/pkg/config"
	"github.com/crestline-io/snowcap/pkg/errors"
	"github.com/crestline-io/snowcap/pkg/models"
)

// sourceTag marks every imported event with its origin.
const sourceTag = "snowflake_import"

func init() {
	must(Register(config.TransformDefault, nil, newDefaultStrategy))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// defaultStrategy expects the columns event, timestamp, distinct_id and
// properties, the last holding a JSON-encoded object that is merged into the
// output properties.
type defaultStrategy struct{}

func newDefaultStrategy(_ map[string][]byte) (Strategy, error) {
	return &defaultStrategy{}, nil
}

func (s *defaultStrategy) Name() string { return config.TransformDefault }

func (s *defaultStrategy) Transform(row *models.RawRow) (*models.Event, error) {
	properties := make(map[string]interface{})

	if raw, ok := row.Get("properties"); ok && raw != nil {
		encoded, ok := raw.(string)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeTransform,
				"properties column must be a JSON-encoded string, got %T", raw)
		}
		if err := json.Unmarshal([]byte(encoded), &properties); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeTransform,
				"properties column is not a valid JSON object")
		}
	}

	event := &models.Event{Properties: properties}

	if v, ok := row.Get("event"); ok {
		event.Name = toString(v)
	}
	if v, ok := row.Get("timestamp"); ok && v != nil {
		event.Timestamp = v
		properties["timestamp"] = v
	}
	if v, ok := row.Get("distinct_id"); ok && v != nil {
		event.DistinctID = v
		properties["distinct_id"] = v
	}
	properties["source"] = sourceTag

	return event, nil
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprintf("%v", s)
	}
}
