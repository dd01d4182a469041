// Package notify delivers sync run outcomes to external channels.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/darshan-rambhia/voltline/internal/model"
	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
)

// Provider sends notifications through a specific channel.
type Provider interface {
	Name() string
	Send(ctx context.Context, n model.Notification) error
}

const sendTimeout = 10 * time.Second

func newHTTPClient() *resty.Client {
	return resty.New().
		SetTimeout(sendTimeout).
		SetRetryCount(0).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)
}

func checkStatus(provider string, resp *resty.Response) error {
	if !resp.IsSuccess() {
		return fmt.Errorf("%s: unexpected status %d", provider, resp.StatusCode())
	}
	return nil
}
