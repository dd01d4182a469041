package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/darshan-rambhia/voltline/internal/model"
	"github.com/go-resty/resty/v2"
)

// NtfyProvider publishes plain-text messages to an ntfy topic.
type NtfyProvider struct {
	url    string
	topic  string
	client *resty.Client
}

// NewNtfy creates a new ntfy notification provider.
func NewNtfy(url, topic string) *NtfyProvider {
	return &NtfyProvider{
		url:    strings.TrimRight(url, "/"),
		topic:  topic,
		client: newHTTPClient(),
	}
}

func (n *NtfyProvider) Name() string { return "ntfy" }

func (n *NtfyProvider) Send(ctx context.Context, notif model.Notification) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Title", notif.Title).
		SetHeader("Priority", ntfyPriority(notif.Severity)).
		SetHeader("Tags", ntfyTags(notif)).
		SetBody(notif.Message).
		Post(fmt.Sprintf("%s/%s", n.url, n.topic))
	if err != nil {
		return fmt.Errorf("ntfy: send: %w", err)
	}
	return checkStatus("ntfy", resp)
}

func ntfyPriority(severity string) string {
	switch severity {
	case SeverityCritical:
		return "5"
	case SeverityInfo:
		return "2"
	default:
		return "3"
	}
}

func ntfyTags(n model.Notification) string {
	var tags []string
	switch n.Status {
	case model.StatusFailed:
		tags = append(tags, "x")
	case model.StatusPartial:
		tags = append(tags, "warning")
	case model.StatusSuccess:
		tags = append(tags, "white_check_mark")
	}
	if n.SyncType != "" {
		tags = append(tags, string(n.SyncType))
	}
	return strings.Join(tags, ",")
}
