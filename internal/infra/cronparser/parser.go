package cronparser

import (
	"context"
	"fmt"
	"strings"
	"time"

	cron "github.com/netresearch/go-cron"
)

var _parser = cron.MustNewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Parser computes next cron occurrences using go-cron.
type Parser struct {
	now func() time.Time
}

// New creates a new cron parser.
func New() *Parser {
	return &Parser{now: time.Now}
}

// Validate reports whether spec (with optional tz) parses.
func (p *Parser) Validate(spec, tz string) error {
	if _, err := _parser.Parse(buildSpec(spec, tz)); err != nil {
		return fmt.Errorf("parse cron spec %q: %w", spec, err)
	}

	return nil
}

// NextAfter returns the next cron occurrence strictly after `after`.
// If tz is non-empty and the spec has no CRON_TZ=/TZ= prefix, it prepends CRON_TZ=<tz>.
// Defaults to UTC when no tz is given.
func (p *Parser) NextAfter(
	spec,
	tz string,
	after time.Time,
) (time.Time, error) {
	schedule, err := _parser.Parse(buildSpec(spec, tz))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}

	return schedule.Next(after), nil
}

// Run calls fn at every occurrence of spec until ctx is done.
// The spec is parsed once up front; a parse error is returned immediately.
func (p *Parser) Run(ctx context.Context, spec, tz string, fn func(ctx context.Context)) error {
	schedule, err := _parser.Parse(buildSpec(spec, tz))
	if err != nil {
		return fmt.Errorf("parse cron spec %q: %w", spec, err)
	}

	for {
		next := schedule.Next(p.now())

		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()

			return nil
		case <-timer.C:
			fn(ctx)
		}
	}
}

func buildSpec(spec, tz string) string {
	spec = strings.TrimSpace(spec)

	if strings.HasPrefix(spec, "@") {
		return spec
	}

	hasTZPrefix := strings.HasPrefix(spec, "CRON_TZ=") ||
		strings.HasPrefix(spec, "TZ=")

	if tz != "" && !hasTZPrefix {
		return "CRON_TZ=" + tz + " " + spec
	}

	if !hasTZPrefix {
		return "CRON_TZ=UTC " + spec
	}

	return spec
}
