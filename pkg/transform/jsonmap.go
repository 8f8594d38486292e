package transform

import (
	"github.com/goccy/go-json"

	"github.com/crestline-io/snowcap/pkg/config"
	"github.com/crestline-io/snowcap/pkg/errors"
	"github.com/crestline-io/snowcap/pkg/models"
)

func init() {
	must(Register(config.TransformJSONMap,
		[]string{config.AttachmentRowToEventMap}, newJSONMapStrategy))
}

// jsonMapStrategy routes row columns through an attached column→field mapping
// document. A column mapped to the literal "event" becomes the event name;
// other mapped columns land in properties under the mapped key; unmapped
// columns are dropped.
type jsonMapStrategy struct {
	mapping map[string]string
}

func newJSONMapStrategy(attachments map[string][]byte) (Strategy, error) {
	var mapping map[string]string
	if err := json.Unmarshal(attachments[config.AttachmentRowToEventMap], &mapping); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeTransform,
			"rowToEventMap is not a valid JSON object of strings")
	}
	if len(mapping) == 0 {
		return nil, errors.New(errors.ErrorTypeTransform, "rowToEventMap maps no columns")
	}

	return &jsonMapStrategy{mapping: mapping}, nil
}

func (s *jsonMapStrategy) Name() string { return config.TransformJSONMap }

func (s *jsonMapStrategy) Transform(row *models.RawRow) (*models.Event, error) {
	event := &models.Event{Properties: make(map[string]interface{})}

	for _, column := range row.Columns {
		target, mapped := s.mapping[column]
		if !mapped {
			continue
		}

		value := row.Values[column]
		if target == "event" {
			event.Name = toString(value)
			continue
		}
		event.Properties[target] = value
	}

	if v, ok := event.Properties["distinct_id"]; ok {
		event.DistinctID = v
	}
	if v, ok := event.Properties["timestamp"]; ok {
		event.Timestamp = v
	}

	return event, nil
}
