package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/savegress/aquasense/pkg/models"
)

// Notifier delivers a triggered alert to one channel.
type Notifier interface {
	Notify(alert *models.Alert) error
}

// ConsoleNotifier logs alerts, used in development.
type ConsoleNotifier struct{}

// NewConsoleNotifier creates a console notifier.
func NewConsoleNotifier() *ConsoleNotifier {
	return &ConsoleNotifier{}
}

// Notify logs the alert.
func (n *ConsoleNotifier) Notify(alert *models.Alert) error {
	log.Printf("ALERT [%s] %s", alert.Severity, alert.Message)
	return nil
}

// WebhookNotifier POSTs alerts to a configured URL.
type WebhookNotifier struct {
	url  string
	http *http.Client
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:  url,
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

// Notify delivers the alert as a JSON payload.
func (n *WebhookNotifier) Notify(alert *models.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	resp, err := n.http.Post(n.url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("alerts: webhook delivery failed: %v", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		err := fmt.Errorf("webhook returned status %d", resp.StatusCode)
		log.Printf("alerts: %v", err)
		return err
	}
	return nil
}
