package sink

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/crestline-io/snowcap/pkg/logger"
	"github.com/crestline-io/snowcap/pkg/models"
)

// HTTPSink posts each event to a capture endpoint as a JSON document. Send
// failures are logged and dropped: the capture contract is fire-and-forget,
// and delivery retries are the runner's job at batch granularity, not here.
type HTTPSink struct {
	endpoint string
	apiKey   string
	client   *http.Client
	log      *zap.Logger
}

// capturePayload is the wire shape of one captured event.
type capturePayload struct {
	APIKey     string                 `json:"api_key,omitempty"`
	Event      string                 `json:"event"`
	DistinctID interface{}            `json:"distinct_id,omitempty"`
	Timestamp  interface{}            `json:"timestamp,omitempty"`
	Properties map[string]interface{} `json:"properties"`
}

// NewHTTPSink creates a sink posting to the given capture endpoint.
func NewHTTPSink(endpoint, apiKey string) *HTTPSink {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	return &HTTPSink{
		endpoint: endpoint,
		apiKey:   apiKey,
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		log: logger.With(zap.String("component", "capture_sink")),
	}
}

// Capture posts one event.
func (s *HTTPSink) Capture(ctx context.Context, event *models.Event) {
	payload := capturePayload{
		APIKey:     s.apiKey,
		Event:      event.Name,
		DistinctID: event.DistinctID,
		Timestamp:  event.Timestamp,
		Properties: event.Properties,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("failed to encode event", zap.String("event", event.Name), zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		s.log.Error("failed to build capture request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn("capture request failed", zap.String("event", event.Name), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		s.log.Warn("capture endpoint rejected event",
			zap.String("event", event.Name),
			zap.Int("status", resp.StatusCode))
	}
}
