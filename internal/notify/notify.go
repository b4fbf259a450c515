package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Notifier pushes plain-text event messages to an NTFY-style endpoint. A
// Notifier with an empty endpoint is valid and drops every message, so call
// sites never need to branch on whether notifications are configured.
type Notifier struct {
	endpoint string
	client   *http.Client
}

func New(endpoint string, client *http.Client) *Notifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &Notifier{endpoint: endpoint, client: client}
}

func (n *Notifier) Enabled() bool { return n != nil && n.endpoint != "" }

// Action announces a performed buyout action.
func (n *Notifier) Action(ctx context.Context, targetName, rowText string, actionNumber int64) error {
	msg := fmt.Sprintf("trade sniper: action #%d on %s", actionNumber, targetName)
	if rowText != "" {
		msg += " | " + rowText
	}
	return n.Send(ctx, msg)
}

// Reconnected announces a restored browser link.
func (n *Notifier) Reconnected(ctx context.Context) error {
	return n.Send(ctx, "trade sniper: browser connection restored, rediscovering targets")
}

// Send posts a message to the configured endpoint using HTTP POST.
func (n *Notifier) Send(ctx context.Context, message string) error {
	if !n.Enabled() {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
