// Package clock provides the single source of wall-clock time used across
// the central system. Every component that needs "now" takes a Clock
// instead of calling time.Now() directly, so tests can pin time.
package clock

import "time"

// Clock exposes wall-clock time in UTC; the production Now carries no
// monotonic reading. All timestamps handed to
// OCPP payloads go through NowISO so the wire format is consistent.
type Clock interface {
	Now() time.Time
	NowISO() string
}

// system is the production Clock, backed by the real wall clock.
type system struct{}

// New returns the production Clock.
func New() Clock {
	return system{}
}

func (system) Now() time.Time {
	return time.Now().UTC()
}

func (system) NowISO() string {
	return FormatISO(time.Now().UTC())
}

// FormatISO renders t as RFC 3339 / ISO-8601 UTC with millisecond precision
// and a trailing Z, the wire format OCPP 1.6J expects for every DateTime
// field.
func FormatISO(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// ParseISO parses a wire-format timestamp. It also accepts plain RFC3339
// (no milliseconds) since some charge points omit the fractional part.
func ParseISO(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02T15:04:05.000Z", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// Pinned is a test Clock that always reports the same instant unless
// advanced explicitly.
type Pinned struct {
	t time.Time
}

// NewPinned returns a Clock fixed at t.
func NewPinned(t time.Time) *Pinned {
	return &Pinned{t: t.UTC()}
}

func (p *Pinned) Now() time.Time {
	return p.t
}

func (p *Pinned) NowISO() string {
	return FormatISO(p.t)
}

// Advance moves the pinned clock forward by d.
func (p *Pinned) Advance(d time.Duration) {
	p.t = p.t.Add(d)
}

// Set pins the clock to t.
func (p *Pinned) Set(t time.Time) {
	p.t = t.UTC()
}
