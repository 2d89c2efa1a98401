// Package notify delivers operational notifications raised by the feeder.
//
// Two severities exist: soft notifications record expected but noteworthy
// events (e.g. losing a submission race to another oracle), critical
// notifications are meant to page (e.g. a round that could not be submitted
// after all retries, or a dead price source).
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gopartyparrot/solana-flux-aggregator/pkg/logging"
)

// Severity classifies a notification.
type Severity string

const (
	SeveritySoft     Severity = "soft"
	SeverityCritical Severity = "critical"
)

// Notification is the payload delivered to the sink.
type Notification struct {
	Severity  Severity               `json:"severity"`
	Component string                 `json:"component"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Time      time.Time              `json:"time"`
}

// Notifier is the notification sink consumed by feeds and submitters.
// Implementations must never block control flow on delivery failures.
type Notifier interface {
	Soft(component, message string, context map[string]interface{}, err error)
	Critical(component, message string, context map[string]interface{}, err error)
}

// Webhook posts notifications as JSON to a configured endpoint. Delivery
// failures are logged and dropped.
type Webhook struct {
	url    string
	client *http.Client
	logger *logging.Logger
}

// NewWebhook creates a webhook notifier.
func NewWebhook(url string, timeout time.Duration, logger *logging.Logger) *Webhook {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Soft delivers a soft notification.
func (w *Webhook) Soft(component, message string, context map[string]interface{}, err error) {
	w.deliver(SeveritySoft, component, message, context, err)
}

// Critical delivers a critical notification.
func (w *Webhook) Critical(component, message string, context map[string]interface{}, err error) {
	w.deliver(SeverityCritical, component, message, context, err)
}

func (w *Webhook) deliver(sev Severity, component, message string, nctx map[string]interface{}, nerr error) {
	n := Notification{
		Severity:  sev,
		Component: component,
		Message:   message,
		Context:   nctx,
		Time:      time.Now(),
	}
	if nerr != nil {
		n.Error = nerr.Error()
	}

	body, err := json.Marshal(n)
	if err != nil {
		w.logger.Error("failed to encode notification", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.logger.Error("failed to build notification request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Error("failed to deliver notification", "error", err, "severity", sev)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		w.logger.Error("notification sink rejected payload",
			"status", resp.StatusCode, "severity", sev)
		return
	}

	w.logger.Debug("notification delivered", "severity", sev, "component", component)
}

// Nop is a Notifier that only logs, for deployments without a sink.
type Nop struct {
	logger *logging.Logger
}

// NewNop creates a log-only notifier.
func NewNop(logger *logging.Logger) *Nop {
	return &Nop{logger: logger}
}

// Soft logs a soft notification.
func (n *Nop) Soft(component, message string, context map[string]interface{}, err error) {
	n.logger.Info(fmt.Sprintf("[%s] %s", component, message), "context", context, "error", errString(err))
}

// Critical logs a critical notification.
func (n *Nop) Critical(component, message string, context map[string]interface{}, err error) {
	n.logger.Error(fmt.Sprintf("[%s] %s", component, message), "context", context, "error", errString(err))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
