package cronparser_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skillcoder/watchhamster/internal/infra/cronparser"
)

func TestParser_NextAfter(t *testing.T) {
	t.Parallel()

	p := cronparser.New()

	tests := []struct {
		name      string
		giveSpec  string
		giveTZ    string
		giveAfter time.Time
		wantHour  int
		wantMin   int
		wantErr   bool
	}{
		{
			name:      "standard spec returns next occurrence",
			giveSpec:  "40 7 * * *",
			giveAfter: time.Date(2026, 2, 15, 7, 0, 0, 0, time.UTC),
			wantHour:  7,
			wantMin:   40,
		},
		{
			name:      "every minute",
			giveSpec:  "* * * * *",
			giveAfter: time.Date(2026, 2, 15, 7, 0, 30, 0, time.UTC),
			wantHour:  7,
			wantMin:   1,
		},
		{
			name:      "inline CRON_TZ ignores tz param",
			giveSpec:  "CRON_TZ=UTC 0 14 * * *",
			giveTZ:    "America/New_York",
			giveAfter: time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC),
			wantHour:  14,
		},
		{
			name:      "hourly descriptor",
			giveSpec:  "@hourly",
			giveAfter: time.Date(2026, 2, 15, 12, 10, 0, 0, time.UTC),
			wantHour:  13,
		},
		{
			name:      "malformed spec returns error",
			giveSpec:  "invalid",
			giveAfter: time.Now(),
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			next, err := p.NextAfter(tt.giveSpec, tt.giveTZ, tt.giveAfter)
			if tt.wantErr {
				require.Error(t, err)
				require.Error(t, p.Validate(tt.giveSpec, tt.giveTZ))

				return
			}

			require.NoError(t, err)
			require.NoError(t, p.Validate(tt.giveSpec, tt.giveTZ))
			require.True(t, next.After(tt.giveAfter))
			require.Equal(t, tt.wantHour, next.UTC().Hour())
			require.Equal(t, tt.wantMin, next.UTC().Minute())
		})
	}

	t.Run("with tz uses timezone", func(t *testing.T) {
		t.Parallel()

		after := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
		next, err := p.NextAfter("0 8 * * *", "America/New_York", after)
		require.NoError(t, err)
		require.Equal(t, 13, next.UTC().Hour())
	})
}

func TestParser_Run(t *testing.T) {
	t.Parallel()

	p := cronparser.New()

	t.Run("invalid spec fails fast", func(t *testing.T) {
		t.Parallel()

		err := p.Run(t.Context(), "nope", "", func(context.Context) {})
		require.Error(t, err)
	})

	t.Run("returns when context is cancelled", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())

		var calls atomic.Int32

		done := make(chan error, 1)

		go func() {
			done <- p.Run(ctx, "@yearly", "", func(context.Context) { calls.Add(1) })
		}()

		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("run did not return after cancel")
		}

		require.Zero(t, calls.Load())
	})
}
