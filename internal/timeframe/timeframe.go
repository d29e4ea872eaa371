// Package timeframe maps dashboard period tokens to bounded time windows.
package timeframe

import (
	"fmt"
	"time"
)

// Period is a dashboard period token.
type Period string

const (
	Period24h Period = "24h"
	Period7d  Period = "7d"
	Period30d Period = "30d"
	Period90d Period = "90d"
)

// durations maps each period token to its window length.
var durations = map[Period]time.Duration{
	Period24h: 24 * time.Hour,
	Period7d:  7 * 24 * time.Hour,
	Period30d: 30 * 24 * time.Hour,
	Period90d: 90 * 24 * time.Hour,
}

// TimeFrame is a half-open window [From, To).
type TimeFrame struct {
	From   time.Time
	To     time.Time
	Period Period
}

// TimeProvider abstracts the clock so tests can pin it.
type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider uses the system clock.
type DefaultTimeProvider struct{}

func (DefaultTimeProvider) Now() time.Time {
	return time.Now().UTC()
}

// Parser resolves period tokens against an injected clock.
type Parser struct {
	timeProvider TimeProvider
}

func NewParser(timeProvider ...TimeProvider) *Parser {
	var provider TimeProvider = DefaultTimeProvider{}
	if len(timeProvider) > 0 && timeProvider[0] != nil {
		provider = timeProvider[0]
	}
	return &Parser{timeProvider: provider}
}

// Parse maps a period token to the window ending now. Unknown tokens are an
// error so callers can reject bad requests instead of silently defaulting.
func (p *Parser) Parse(period string) (*TimeFrame, error) {
	duration, ok := durations[Period(period)]
	if !ok {
		return nil, fmt.Errorf("unknown period: %q", period)
	}

	now := p.timeProvider.Now().UTC()
	return &TimeFrame{
		From:   now.Add(-duration),
		To:     now,
		Period: Period(period),
	}, nil
}

// Duration returns the window length.
func (tf *TimeFrame) Duration() time.Duration {
	return tf.To.Sub(tf.From)
}

// Previous returns the immediately preceding equal-length window, used for
// growth comparisons.
func (tf *TimeFrame) Previous() *TimeFrame {
	duration := tf.Duration()
	return &TimeFrame{
		From:   tf.From.Add(-duration),
		To:     tf.From,
		Period: tf.Period,
	}
}

// Validate checks window ordering.
func (tf *TimeFrame) Validate() error {
	if !tf.From.Before(tf.To) {
		return fmt.Errorf("window start must precede window end")
	}
	return nil
}
