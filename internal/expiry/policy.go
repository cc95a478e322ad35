// Package expiry decides when images expire, notifies viewers when they do,
// and removes them once they have.
package expiry

import (
	"fmt"
	"strings"
	"time"

	"imagehost/internal/domain"
)

type PolicyKind string

const (
	PolicyNever  PolicyKind = "never"
	PolicyFixed  PolicyKind = "fixed"
	PolicyOnOpen PolicyKind = "on-open"
)

// Policy is the expiry option chosen at upload time.
type Policy struct {
	Kind     PolicyKind
	Duration time.Duration // only for PolicyFixed
}

func Never() Policy                { return Policy{Kind: PolicyNever} }
func OnOpen() Policy               { return Policy{Kind: PolicyOnOpen} }
func Fixed(d time.Duration) Policy { return Policy{Kind: PolicyFixed, Duration: d} }
func (p Policy) String() string {
	if p.Kind == PolicyFixed {
		return p.Duration.String()
	}
	return string(p.Kind)
}

var presets = map[string]time.Duration{
	"1-hour": time.Hour,
	"1-day":  24 * time.Hour,
	"3-days": 3 * 24 * time.Hour,
	"7-days": 7 * 24 * time.Hour,
}

// ParsePolicy reads an upload option: "never", "on-open", a preset such as
// "1-day", or a Go duration like "90m". Empty means never.
func ParsePolicy(s string) (Policy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", string(PolicyNever):
		return Never(), nil
	case string(PolicyOnOpen), "on-view":
		return OnOpen(), nil
	}
	if d, ok := presets[s]; ok {
		return Fixed(d), nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return Policy{}, fmt.Errorf("%w: unknown expiry %q", domain.ErrValidation, s)
	}
	if d <= 0 {
		return Policy{}, fmt.Errorf("%w: expiry must be positive", domain.ErrValidation)
	}
	return Fixed(d), nil
}

// Precision is the resolution deadlines are kept at. Postgres timestamptz
// holds microseconds; milliseconds round-trip through every store.
const Precision = time.Millisecond

// StoreTime normalizes t to the value a store reads back.
func StoreTime(t time.Time) time.Time { return t.UTC().Truncate(Precision) }

// Initial returns the expiry fields of a new image created at createdAt.
func Initial(p Policy, createdAt time.Time) (expiresAt *time.Time, expiresOnOpen bool) {
	switch p.Kind {
	case PolicyFixed:
		at := createdAt.Add(p.Duration).UTC()
		return &at, false
	case PolicyOnOpen:
		return nil, true
	default:
		return nil, false
	}
}

// Windows holds the on-open countdown length per image family.
type Windows struct {
	Owner time.Duration
	Guest time.Duration
}

func (w Windows) For(img *domain.Image) time.Duration {
	if img.IsGuest() {
		return w.Guest
	}
	return w.Owner
}
