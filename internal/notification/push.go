package notification

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPPushSender posts the notification payload to each subscription
// endpoint. Delivery is best effort: endpoint failures surface as
// errors for logging and nothing retries them.
type HTTPPushSender struct {
	client *http.Client
}

func NewHTTPPushSender() *HTTPPushSender {
	return &HTTPPushSender{
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPPushSender) Send(ctx context.Context, sub *PushSubscription, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("TTL", "60")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("push endpoint returned %d", resp.StatusCode)
	}
	return nil
}
