package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/darshan-rambhia/voltline/internal/model"
	"github.com/go-resty/resty/v2"
)

// WebhookProvider sends notifications as JSON to an HTTP endpoint.
type WebhookProvider struct {
	url     string
	method  string
	headers map[string]string
	client  *resty.Client
}

// NewWebhook creates a new webhook notification provider.
func NewWebhook(url, method string, headers map[string]string) *WebhookProvider {
	if method == "" {
		method = http.MethodPost
	}
	return &WebhookProvider{
		url:     url,
		method:  method,
		headers: headers,
		client:  newHTTPClient(),
	}
}

func (w *WebhookProvider) Name() string { return "webhook" }

func (w *WebhookProvider) Send(ctx context.Context, n model.Notification) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeaders(w.headers).
		SetBody(n).
		Execute(w.method, w.url)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	return checkStatus("webhook", resp)
}
