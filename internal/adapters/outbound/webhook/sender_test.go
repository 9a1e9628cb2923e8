package webhook_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skillcoder/watchhamster/internal/adapters/outbound/webhook"
	"github.com/skillcoder/watchhamster/internal/logic/alert"
	"github.com/skillcoder/watchhamster/internal/logic/delivery"
)

func TestSendPayload(t *testing.T) {
	t.Parallel()

	var got map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Contains(t, r.Header.Get("Content-Type"), "application/json")

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))

		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	s := webhook.New(slog.New(slog.DiscardHandler), srv.Client(), "WatchHamster", "https://example.test/hamster.png")
	ev := alert.NewEvent(alert.SeverityCritical, "supervisor", "ops", "CPU usage Emergency", "CPU 96.0% (Emergency)")

	require.NoError(t, s.Send(t.Context(), srv.URL, ev))

	require.Equal(t, "WatchHamster", got["botName"])
	require.Equal(t, "https://example.test/hamster.png", got["botIconImage"])
	require.Equal(t, "CPU usage Emergency", got["text"])

	attachments, ok := got["attachments"].([]any)
	require.True(t, ok)
	require.Len(t, attachments, 1)

	first, ok := attachments[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "#dc3545", first["color"])
	require.Equal(t, "CPU 96.0% (Emergency)", first["text"])
}

func TestSendClassifiesFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		giveStatus int
		wantErr    error
		wantStatus int
	}{
		{name: "server error", giveStatus: http.StatusInternalServerError, wantErr: delivery.ErrHTTPStatus, wantStatus: 500},
		{name: "not found", giveStatus: http.StatusNotFound, wantErr: delivery.ErrHTTPStatus, wantStatus: 404},
		{name: "rate limited", giveStatus: http.StatusTooManyRequests, wantErr: delivery.ErrRateLimited, wantStatus: 429},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.giveStatus)
				_, _ = w.Write([]byte("nope"))
			}))
			t.Cleanup(srv.Close)

			s := webhook.New(slog.New(slog.DiscardHandler), srv.Client(), "WatchHamster", "")
			err := s.Send(t.Context(), srv.URL, alert.NewEvent(alert.SeverityLow, "test", "ops", "t", "b"))

			require.ErrorIs(t, err, tt.wantErr)

			var derr *delivery.Error
			require.ErrorAs(t, err, &derr)
			require.Equal(t, tt.wantStatus, derr.StatusCode)
			require.Contains(t, err.Error(), "nope")
		})
	}
}

func TestSendTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	s := webhook.New(slog.New(slog.DiscardHandler), srv.Client(), "WatchHamster", "")

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	err := s.Send(ctx, srv.URL, alert.NewEvent(alert.SeverityLow, "test", "ops", "t", "b"))
	require.ErrorIs(t, err, delivery.ErrTimeout)
}

func TestSendConnectionRefused(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	s := webhook.New(slog.New(slog.DiscardHandler), nil, "WatchHamster", "")
	err = s.Send(t.Context(), "http://"+addr+"/hook", alert.NewEvent(alert.SeverityLow, "test", "ops", "t", "b"))

	require.ErrorIs(t, err, delivery.ErrConnectionRefused)
}

func TestSendClassifiesTransportFailures(t *testing.T) {
	t.Parallel()

	tlsSrv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(tlsSrv.Close)

	resetSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		conn, _, err := http.NewResponseController(w).Hijack()
		if err == nil {
			_ = conn.Close()
		}
	}))
	t.Cleanup(resetSrv.Close)

	tests := []struct {
		name    string
		giveURL string
	}{
		{name: "unresolvable host", giveURL: "http://watchhamster.invalid/hook"},
		{name: "untrusted certificate", giveURL: tlsSrv.URL + "/hook"},
		{name: "connection closed without response", giveURL: resetSrv.URL + "/hook"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := &http.Client{Transport: &http.Transport{}, Timeout: 5 * time.Second}
			s := webhook.New(slog.New(slog.DiscardHandler), client, "WatchHamster", "")
			err := s.Send(t.Context(), tt.giveURL, alert.NewEvent(alert.SeverityLow, "test", "ops", "t", "b"))

			var derr *delivery.Error
			require.ErrorAs(t, err, &derr)
			require.Equal(t, delivery.KindConnectionRefused, derr.Kind)
			require.ErrorIs(t, err, delivery.ErrConnectionRefused)
		})
	}
}
