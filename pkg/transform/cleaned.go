package transform

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/crestline-io/snowcap/pkg/config"
	"github.com/crestline-io/snowcap/pkg/errors"
	"github.com/crestline-io/snowcap/pkg/models"
)

func init() {
	must(Register(config.TransformCleanedProps,
		[]string{config.AttachmentFieldConfig, config.AttachmentPropertyConfig},
		newCleanedStrategy))
}

// cleanedStrategy rewrites property keys into human-readable form: each key
// is split on underscores, every segment title-cased, segments found in the
// attached replacement dictionary substituted, and the result rejoined with
// spaces. Values under rewritten keys that look like timestamps are
// reformatted to fixed-offset ISO-8601; null values are dropped.
type cleanedStrategy struct {
	fields       *fieldConfig
	replacements map[string]string
}

func newCleanedStrategy(attachments map[string][]byte) (Strategy, error) {
	fields, err := parseFieldConfig(attachments[config.AttachmentFieldConfig])
	if err != nil {
		return nil, err
	}

	var replacements map[string]string
	if err := json.Unmarshal(attachments[config.AttachmentPropertyConfig], &replacements); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeTransform,
			"propertyConfigJson is not a valid JSON object of strings")
	}

	return &cleanedStrategy{fields: fields, replacements: replacements}, nil
}

func (s *cleanedStrategy) Name() string { return config.TransformCleanedProps }

func (s *cleanedStrategy) Transform(row *models.RawRow) (*models.Event, error) {
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

		value := row.Values[column]
		if value == nil {
			continue
		}

		key := s.rewriteKey(column)
		if looksLikeTimestampKey(key) {
			value = NormalizeTimestamp(value)
		}
		event.Properties[key] = value
	}
	event.Properties["source"] = sourceTag

	return event, nil
}

// rewriteKey turns a column like "user_signup_ts" into "User Signup Ts",
// with dictionary segments substituted after title-casing.
func (s *cleanedStrategy) rewriteKey(column string) string {
	segments := strings.Split(column, "_")
	for i, segment := range segments {
		tc := titleCase(segment)
		if replacement, ok := s.replacements[tc]; ok {
			tc = replacement
		}
		segments[i] = tc
	}
	return strings.Join(segments, " ")
}

func titleCase(segment string) string {
	if segment == "" {
		return segment
	}
	return strings.ToUpper(segment[:1]) + strings.ToLower(segment[1:])
}

// looksLikeTimestampKey detects timestamp properties by substring match on
// the rewritten key.
func looksLikeTimestampKey(key string) bool {
	lower := strings.ToLower(key)
	return strings.Contains(lower, "time") || strings.Contains(lower, "date")
}
