package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"hydrobot/internal/schedule"
)

// Defaults applied when the corresponding field is empty.
const (
	DefaultFeedInterval         = 5 * time.Minute
	DefaultFeedTimeout          = 20 * time.Second
	DefaultPresenceInterval     = 45 * time.Second
	DefaultPresenceIdleInterval = 30 * time.Second
	DefaultPresenceTimeout      = 15 * time.Second
	DefaultSendTimeout          = 10 * time.Second
	DefaultNotifyRatePerSec     = 5
)

// ParseDurationField parses a Go duration string. Empty means 0.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// DurationOr is ParseDurationField with a default for empty or zero values.
func DurationOr(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}

// CadenceOr parses a monitor cadence string with a default interval.
func CadenceOr(path, raw string, def time.Duration) (schedule.Parsed, error) {
	p, err := schedule.ParseOrDefault(raw, def)
	if err != nil {
		return schedule.Parsed{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Validate checks a config before it is committed. It never mutates cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	_, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	add(err)

	_, err = CadenceOr("feed.interval", cfg.Feed.Interval, DefaultFeedInterval)
	add(err)
	_, err = ParseDurationField("feed.timeout", cfg.Feed.Timeout)
	add(err)
	for i, u := range cfg.Feed.URLs {
		if err := ValidateFeedURL(u); err != nil {
			add(fmt.Errorf("feed.urls[%d]: %w", i, err))
		}
	}

	_, err = CadenceOr("presence.interval", cfg.Presence.Interval, DefaultPresenceInterval)
	add(err)
	_, err = CadenceOr("presence.idle_interval", cfg.Presence.IdleInterval, DefaultPresenceIdleInterval)
	add(err)
	_, err = ParseDurationField("presence.timeout", cfg.Presence.Timeout)
	add(err)
	if ep := strings.TrimSpace(cfg.Presence.Endpoint); ep != "" {
		if _, err := url.ParseRequestURI(ep); err != nil {
			add(fmt.Errorf("presence.endpoint: %w", err))
		}
	}

	if cfg.Notifier.RatePerSec < 0 {
		add(errors.New("notifier.rate_per_sec must be >= 0"))
	}
	_, err = ParseDurationField("notifier.send_timeout", cfg.Notifier.SendTimeout)
	add(err)

	if cfg.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			add(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
		}
	}

	return errors.Join(errs...)
}

// ValidateFeedURL accepts absolute http(s) URLs only.
func ValidateFeedURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", raw)
	}
	return nil
}
