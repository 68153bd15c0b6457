package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// Notifier tells a driver they were assigned a trip. Delivery is
// best-effort: the assignment is already committed when this runs, and no
// failure here may roll it back or delay the dispatch response.
type Notifier interface {
	NotifyAssignment(tripID, driverID int64)
}

// WebhookNotifier posts assignments to an external push gateway,
// fire-and-forget with its own timeout.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (n *WebhookNotifier) NotifyAssignment(tripID, driverID int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.client.Timeout)
		defer cancel()

		body, _ := json.Marshal(map[string]int64{
			"trip_id":   tripID,
			"driver_id": driverID,
		})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			log.Printf("notify: building request for trip %d: %v", tripID, err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			log.Printf("notify: driver %d about trip %d: %v", driverID, tripID, err)
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= http.StatusMultipleChoices {
			log.Printf("notify: driver %d about trip %d: gateway returned %d", driverID, tripID, resp.StatusCode)
		}
	}()
}

// NoopNotifier drops notifications; used when no gateway is configured.
type NoopNotifier struct{}

func (NoopNotifier) NotifyAssignment(int64, int64) {}
