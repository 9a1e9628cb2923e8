// Package alert holds the notification model shared by the supervisor,
// the stability manager and the delivery pipeline.
package alert

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultRoute is the routing key used by internally generated alerts.
const DefaultRoute = "watchhamster"

// dedupBodyPrefix is how many runes of the body take part in the dedup hash.
const dedupBodyPrefix = 100

// ErrUnknownSeverity is returned by ParseSeverity.
var ErrUnknownSeverity = errors.New("unknown severity")

// Severity orders alerts; a higher value is delivered first.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityNormal
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "low",
	SeverityNormal:   "normal",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

var severityColors = map[Severity]string{
	SeverityLow:      "#6c757d",
	SeverityNormal:   "#28a745",
	SeverityHigh:     "#fd7e14",
	SeverityCritical: "#dc3545",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}

	return fmt.Sprintf("severity(%d)", int(s))
}

// Color is the attachment color used in chat payloads.
func (s Severity) Color() string {
	if c, ok := severityColors[s]; ok {
		return c
	}

	return severityColors[SeverityNormal]
}

func (s Severity) Valid() bool {
	_, ok := severityNames[s]

	return ok
}

// ParseSeverity accepts the lowercase names produced by String, case-insensitively.
func ParseSeverity(v string) (Severity, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	for sev, name := range severityNames {
		if name == v {
			return sev, nil
		}
	}

	return SeverityLow, fmt.Errorf("parse severity %q: %w", v, ErrUnknownSeverity)
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	sev, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}

	*s = sev

	return nil
}

// Event is an immutable, routable notification.
type Event struct {
	ID        string    `json:"id"`
	Severity  Severity  `json:"severity"`
	Source    string    `json:"source"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	RouteKey  string    `json:"routeKey"`
	DedupHash string    `json:"dedupHash"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewEvent builds an event with a fresh ID and its dedup hash filled in.
// An empty routeKey selects DefaultRoute.
func NewEvent(severity Severity, source, routeKey, title, body string) Event {
	if routeKey == "" {
		routeKey = DefaultRoute
	}

	return Event{
		ID:        uuid.NewString(),
		Severity:  severity,
		Source:    source,
		Title:     title,
		Body:      body,
		RouteKey:  routeKey,
		DedupHash: DedupHash(routeKey, title, body),
		CreatedAt: time.Now().UTC(),
	}
}

// DedupHash fingerprints the route, the title and the first 100 runes of the body.
func DedupHash(routeKey, title, body string) string {
	h := sha256.New()
	h.Write([]byte(routeKey))
	h.Write([]byte{0})
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(runePrefix(body, dedupBodyPrefix)))

	return hex.EncodeToString(h.Sum(nil))
}

func runePrefix(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}

		count++
	}

	return s
}

// Sink receives alerts produced by a component.
type Sink func(ctx context.Context, event Event)
