package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/skillcoder/watchhamster/internal/logic/alert"
	"github.com/skillcoder/watchhamster/internal/logic/delivery"
)

const (
	contentType     = "application/json; charset=utf-8"
	maxErrorBodyLen = 512
)

type sender struct {
	logger  *slog.Logger
	client  *http.Client
	botName string
	iconURL string
}

// New creates a webhook sender. The request timeout is applied by the pipeline through the context.
func New(
	logger *slog.Logger,
	client *http.Client,
	botName,
	iconURL string,
) delivery.Sender {
	if client == nil {
		client = http.DefaultClient
	}

	return &sender{
		logger:  logger.With("component", "webhook"),
		client:  client,
		botName: botName,
		iconURL: iconURL,
	}
}

var _ delivery.Sender = (*sender)(nil)

func (s *sender) Send(ctx context.Context, url string, event alert.Event) error {
	body, err := json.Marshal(toMessage(s.botName, s.iconURL, event))
	if err != nil {
		return fmt.Errorf("marshal webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		s.logger.DebugContext(ctx, "webhook delivered",
			"id", event.ID,
			"status", resp.StatusCode,
		)

		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))

	kind := delivery.KindHTTPStatus
	if resp.StatusCode == http.StatusTooManyRequests {
		kind = delivery.KindRateLimited
	}

	var cause error
	if len(bytes.TrimSpace(snippet)) > 0 {
		cause = errors.New(string(bytes.TrimSpace(snippet)))
	}

	return &delivery.Error{Kind: kind, StatusCode: resp.StatusCode, Err: cause}
}

// classifyTransportError maps every failure without a response onto a delivery kind.
// DNS, reset and TLS failures count as a refused connection.
func classifyTransportError(err error) error {
	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &delivery.Error{Kind: delivery.KindTimeout, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &delivery.Error{Kind: delivery.KindTimeout, Err: err}
	default:
		return &delivery.Error{Kind: delivery.KindConnectionRefused, Err: err}
	}
}
